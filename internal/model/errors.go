package model

import (
	"errors"
	"fmt"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// ErrorCode classifies model loading failures.
type ErrorCode string

const (
	ErrCodeNotFound     ErrorCode = "MODEL_NOT_FOUND"
	ErrCodeNoFiles      ErrorCode = "NO_MODEL_FILES"
	ErrCodeSyntax       ErrorCode = "CUE_ERROR"
	ErrCodeInvalidModel ErrorCode = "INVALID_MODEL"
	ErrCodeUnknownType  ErrorCode = "UNKNOWN_TYPE"
	ErrCodeUnmapped     ErrorCode = "UNMAPPED_TYPE"
)

// LoadError reports a problem in a model definition. Path is the CUE path
// of the offending definition, e.g. "entity.Order.properties.Total".
type LoadError struct {
	Code    ErrorCode
	Message string
	Path    string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Path != "" {
		msg += " (at " + e.Path + ")"
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), msg)
	}
	return msg
}

// IsLoadError reports whether err is a LoadError with the given code.
func IsLoadError(err error, code ErrorCode) bool {
	var le *LoadError
	return errors.As(err, &le) && le.Code == code
}

// CodeOf returns the code of a LoadError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// fromCUE converts a CUE evaluation error, keeping the first position.
func fromCUE(err error) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: ErrCodeSyntax, Message: err.Error()}
	}
	first := errs[0]
	le := &LoadError{Code: ErrCodeSyntax, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}
