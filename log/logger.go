// Package log provides structured JSON logging with run context.
//
// Every entry carries run_id, and session_id once a worker session exists.
// Call-site fields are nested under "fields" so they never collide with the
// context keys.
package log

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger provides structured logging with run context.
type Logger struct {
	zap   *zap.Logger
	level zap.AtomicLevel
}

// NewLogger creates a logger tagged with runID, writing to os.Stderr at
// info level.
func NewLogger(runID string) *Logger {
	return newLoggerWithWriter(runID, os.Stderr)
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop(), level: zap.NewAtomicLevel()}
}

func newLoggerWithWriter(runID string, w io.Writer) *Logger {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	return &Logger{
		zap:   zap.New(newCore(w, level)).With(zap.String("run_id", runID)),
		level: level,
	}
}

func newCore(w io.Writer, level zapcore.LevelEnabler) zapcore.Core {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
	return zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(w), level)
}

// SetLevel changes the minimum level (debug, info, warn, error) for this
// logger and every logger derived from it.
func (l *Logger) SetLevel(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil || lvl > zapcore.ErrorLevel {
		return fmt.Errorf("invalid log level %q (must be debug, info, warn or error)", level)
	}
	l.level.SetLevel(lvl)
	return nil
}

// WithOutput returns a logger writing to w. Context fields and the level
// are preserved.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	core := newCore(w, l.level)
	return l.derive(l.zap.WithOptions(zap.WrapCore(func(zapcore.Core) zapcore.Core { return core })))
}

// WithSession returns a logger that also tags entries with the worker session.
func (l *Logger) WithSession(sessionID string) *Logger {
	return l.derive(l.zap.With(zap.String("session_id", sessionID)))
}

// With returns a logger with a component tag.
func (l *Logger) With(component string) *Logger {
	return l.derive(l.zap.With(zap.String("component", component)))
}

func (l *Logger) derive(z *zap.Logger) *Logger {
	return &Logger{zap: z, level: l.level}
}

func (l *Logger) Debug(message string, fields map[string]any) {
	l.zap.Debug(message, zap.Any("fields", fields))
}

func (l *Logger) Info(message string, fields map[string]any) {
	l.zap.Info(message, zap.Any("fields", fields))
}

func (l *Logger) Warn(message string, fields map[string]any) {
	l.zap.Warn(message, zap.Any("fields", fields))
}

func (l *Logger) Error(message string, fields map[string]any) {
	l.zap.Error(message, zap.Any("fields", fields))
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}
