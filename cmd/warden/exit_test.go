package main

import (
	"errors"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/warden/runtime"
)

func TestExitErrHandler_NilError(t *testing.T) {
	// Should not panic or exit on nil error
	exitErrHandler(nil, nil)
}

func TestExitStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"completed", cli.Exit("", runtime.ExitCodeCompleted), 0, ""},
		{"aborted", cli.Exit("", runtime.ExitCodeAborted), 1, ""},
		{"config error with message", cli.Exit("--task is required", runtime.ExitCodeConfigError), 2, "--task is required"},
		{"setup failure", cli.Exit("worker setup failed: boom", runtime.ExitCodeSetupFailure), 3, "worker setup failed: boom"},
		{"max iterations", cli.Exit("", runtime.ExitCodeMaxIterations), 4, ""},
		{"interrupted", cli.Exit("interrupted", runtime.ExitCodeInterrupted), 130, "interrupted"},
		{"wrapped", errors.Join(errors.New("context"), cli.Exit("inner", 42)), 42, "inner"},
		{"regular error", errors.New("regular error"), 1, "Error: regular error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, msg := exitStatus(tt.err)
			if code != tt.wantCode {
				t.Errorf("code = %d, want %d", code, tt.wantCode)
			}
			if msg != tt.wantMsg {
				t.Errorf("msg = %q, want %q", msg, tt.wantMsg)
			}
		})
	}
}
