package runtime

import (
	"errors"
	"fmt"
)

// ConfigError reports an invalid RunConfig. It is always fatal and is
// returned before the loop starts.
type ConfigError struct {
	// Field is the offending config field.
	Field string
	// Msg describes the problem.
	Msg string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid run config: %s %s", e.Field, e.Msg)
}

// IsConfigError returns true if err is a configuration error.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}

// SetupStage identifies the worker setup step that failed.
type SetupStage string

const (
	// SetupStageCreateSession is session creation.
	SetupStageCreateSession SetupStage = "create_session"
	// SetupStageSubscribe is opening the session event stream.
	SetupStageSubscribe SetupStage = "subscribe"
)

// SetupError reports a worker setup failure. The run never started iterating.
type SetupError struct {
	Stage SetupStage
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("worker setup failed (%s): %v", e.Stage, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// IsSetupError returns true if err is a worker setup failure.
func IsSetupError(err error) bool {
	var setupErr *SetupError
	return errors.As(err, &setupErr)
}
