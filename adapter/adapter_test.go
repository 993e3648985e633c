package adapter

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name      string
		retries   int
		failFirst int
		permanent bool
		wantCalls int
		wantErr   bool
	}{
		{"first try", 3, 0, false, 1, false},
		{"succeeds on third", 3, 2, false, 3, false},
		{"exhausted", 2, 10, false, 3, true},
		{"no retries", 0, 10, false, 1, true},
		{"permanent stops", 3, 10, true, 1, true},
		{"negative retries", -1, 10, false, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(t.Context(), tt.retries, time.Millisecond, func(context.Context) error {
				calls++
				if calls <= tt.failFirst {
					if tt.permanent {
						return Permanent(boom)
					}
					return boom
				}
				return nil
			})
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("Retry() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, boom) {
				t.Errorf("error chain lost cause: %v", err)
			}
		})
	}
}

func TestRetry_ContextCanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	calls := 0
	err := Retry(ctx, 3, time.Hour, func(context.Context) error {
		calls++
		cancel()
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
