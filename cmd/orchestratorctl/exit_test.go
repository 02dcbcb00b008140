package main

import (
	"errors"
	"testing"

	"github.com/urfave/cli/v2"
)

func TestExitErrHandler_NilError(t *testing.T) {
	exitErrHandler(nil, nil)
}

func TestExitErrHandler_ExitCoder(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"exit code 0 no message", cli.Exit("", 0), 0},
		{"exit code 1 with message", cli.Exit("compile failed", 1), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var exitCoder cli.ExitCoder
			if !errors.As(tt.err, &exitCoder) {
				t.Fatalf("error should be cli.ExitCoder")
			}
			if exitCoder.ExitCode() != tt.wantCode {
				t.Errorf("exit code = %d, want %d", exitCoder.ExitCode(), tt.wantCode)
			}
		})
	}
}

func TestExitErrHandler_WrappedExitCoder(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), cli.Exit("inner error", 42))

	var exitCoder cli.ExitCoder
	if !errors.As(wrapped, &exitCoder) {
		t.Fatal("wrapped error should still match cli.ExitCoder")
	}
	if exitCoder.ExitCode() != 42 {
		t.Errorf("exit code = %d, want 42", exitCoder.ExitCode())
	}
}

func TestExitErrHandler_RegularError(t *testing.T) {
	err := errors.New("regular error")

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		t.Fatal("regular error should not be cli.ExitCoder")
	}
}
