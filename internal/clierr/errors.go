// Package clierr holds the error kinds the CLI distinguishes when deciding how
// to report a failure and which exit code to use.
package clierr

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	ExitOK    = 0
	ExitError = 1
	ExitAbort = 1
	ExitUsage = 2
)

// SpecError is a broken document detected while building the command tree.
type SpecError struct {
	Module string
	Method string
	Route  string
	Msg    string
}

func (e *SpecError) Error() string {
	switch {
	case e.Route != "" && e.Method != "":
		return fmt.Sprintf("spec %s: %s %s: %s", e.Module, e.Method, e.Route, e.Msg)
	case e.Route != "":
		return fmt.Sprintf("spec %s: %s: %s", e.Module, e.Route, e.Msg)
	default:
		return fmt.Sprintf("spec %s: %s", e.Module, e.Msg)
	}
}

// UsageError is a problem with what the operator typed.
type UsageError struct {
	// Option names the flag or argument at fault, without dashes.
	Option string
	Msg    string
}

func (e *UsageError) Error() string {
	if e.Option == "" {
		return e.Msg
	}
	return fmt.Sprintf("invalid value for --%s: %s", e.Option, e.Msg)
}

func Usage(option, format string, args ...any) error {
	return &UsageError{Option: option, Msg: fmt.Sprintf(format, args...)}
}

// MissingParameter reports a required option that was not supplied.
func MissingParameter(option string) error {
	return &UsageError{Msg: fmt.Sprintf("missing required option --%s", option)}
}

// BadValueFromList reports a value outside an enumerated set.
func BadValueFromList(option, value string, allowed []string) error {
	return &UsageError{Option: option, Msg: fmt.Sprintf("%q is not one of %v", value, allowed)}
}

// AbortError is a negative answer to a confirmation prompt.
type AbortError struct{}

func (AbortError) Error() string { return "Aborted!" }

var ErrAbort error = AbortError{}

// IOError is a local file that could not be used as input.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ExitCode maps an error returned from command execution to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var usage *UsageError
	if errors.As(err, &usage) {
		return ExitUsage
	}
	if errors.Is(err, ErrAbort) {
		return ExitAbort
	}
	return ExitError
}
