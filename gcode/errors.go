package gcode

import (
	"errors"
	"fmt"
)

// Parse error kinds, matched with errors.Is.
var (
	ErrUnknownFamily    = errors.New("unknown command family")
	ErrUnsupported      = errors.New("unsupported command")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrMissingRequired  = errors.New("missing required parameter")
	ErrForbiddenPresent = errors.New("forbidden parameter")
)

// ParseError describes why a line was rejected.
type ParseError struct {
	Line   string
	Code   Code
	Kind   error
	Reason string
}

func (e *ParseError) Error() string {
	if e.Code.Family == 0 {
		return fmt.Sprintf("%v: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s: %v: %s", e.Code, e.Kind, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Kind }

func fail(kind error, format string, args ...interface{}) *ParseError {
	return &ParseError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}
