package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	wardenconfig "github.com/pithecene-io/warden/cli/config"
)

// Precedence for every setting: an explicit flag or its env var, then the
// config file, then the flag default.

// loadConfig reads --config when given. A nil config means no file.
func loadConfig(c *cli.Context) (*wardenconfig.Config, error) {
	path := c.String("config")
	if path == "" {
		return nil, nil
	}
	return wardenconfig.Load(path)
}

// configVal reads a field from cfg, or the zero value when cfg is nil.
func configVal[T any](cfg *wardenconfig.Config, get func(*wardenconfig.Config) T) T {
	var zero T
	if cfg == nil {
		return zero
	}
	return get(cfg)
}

func resolveString(c *cli.Context, name, cfgVal string) string {
	if c.IsSet(name) || cfgVal == "" {
		return c.String(name)
	}
	return cfgVal
}

func resolveInt(c *cli.Context, name string, cfgVal int) int {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Int(name)
	}
	return cfgVal
}

func resolveBool(c *cli.Context, name string, cfgVal bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	return cfgVal || c.Bool(name)
}

func resolveDuration(c *cli.Context, name string, cfgVal time.Duration) time.Duration {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Duration(name)
	}
	return cfgVal
}

// resolveTimeout is resolveDuration for string flags that also accept a
// bare number of seconds, as WARDEN_INACTIVITY_TIMEOUT does.
func resolveTimeout(c *cli.Context, name string, cfgVal time.Duration) (time.Duration, error) {
	if !c.IsSet(name) && cfgVal != 0 {
		return cfgVal, nil
	}
	d, err := parseTimeout(c.String(name))
	if err != nil {
		return 0, fmt.Errorf("invalid --%s: %w", name, err)
	}
	return d, nil
}

func parseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}
