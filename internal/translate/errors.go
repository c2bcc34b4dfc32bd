package translate

import (
	"errors"
	"fmt"
	"strings"
)

// TranslationError reports why a query could not be translated.
//
// Translation errors abort the whole compilation; no partial SQL is ever
// produced. Position locates the offending node in the query tree using the
// same notation as query.Validate, e.g. "ops[1].where.body.args[0]".
type TranslationError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Operation is the method or operator that failed (Contains, ==).
	Operation string

	// Member is the receiver kind or property involved, when known.
	Member string

	// Position locates the node in the query tree.
	Position string
}

// ErrorCode categorizes translation errors.
type ErrorCode string

const (
	// ErrCodeUnsupportedOperation indicates no translator matched the call
	// shape, or the target dialect cannot express the result.
	ErrCodeUnsupportedOperation ErrorCode = "UNSUPPORTED_OPERATION"

	// ErrCodeTypeMappingMismatch indicates operand SQL types are
	// incompatible with the requested operator.
	ErrCodeTypeMappingMismatch ErrorCode = "TYPE_MAPPING_MISMATCH"

	// ErrCodeAmbiguousTranslation indicates two equally specific
	// translators matched one call shape. This is an internal invariant
	// violation, never resolved silently.
	ErrCodeAmbiguousTranslation ErrorCode = "AMBIGUOUS_TRANSLATION"

	// ErrCodeClientEvaluationRequired indicates an operation that can only
	// run on materialized rows appeared outside the final projection.
	ErrCodeClientEvaluationRequired ErrorCode = "CLIENT_EVALUATION_REQUIRED"
)

// Error implements the error interface.
func (e *TranslationError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	var details []string
	if e.Operation != "" {
		details = append(details, "operation="+e.Operation)
	}
	if e.Member != "" {
		details = append(details, "member="+e.Member)
	}
	if e.Position != "" {
		details = append(details, "at="+e.Position)
	}
	if len(details) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(details, ", "))
	}
	return b.String()
}

func hasCode(err error, code ErrorCode) bool {
	var te *TranslationError
	if errors.As(err, &te) {
		return te.Code == code
	}
	return false
}

// IsUnsupported returns true if the error is an unsupported operation error.
// Uses errors.As to handle wrapped errors.
func IsUnsupported(err error) bool {
	return hasCode(err, ErrCodeUnsupportedOperation)
}

// IsTypeMismatch returns true if the error is a type mapping mismatch.
func IsTypeMismatch(err error) bool {
	return hasCode(err, ErrCodeTypeMappingMismatch)
}

// IsAmbiguous returns true if the error is an ambiguous translation.
func IsAmbiguous(err error) bool {
	return hasCode(err, ErrCodeAmbiguousTranslation)
}

// IsClientEvaluation returns true if the error reports a nested operation
// that requires client-side evaluation.
func IsClientEvaluation(err error) bool {
	return hasCode(err, ErrCodeClientEvaluationRequired)
}

// CodeOf returns the code of a translation error, or "" for other errors.
func CodeOf(err error) ErrorCode {
	var te *TranslationError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// NewUnsupportedError creates a TranslationError for an operation no
// translator handles.
func NewUnsupportedError(operation, member, format string, args ...any) *TranslationError {
	return &TranslationError{
		Code:      ErrCodeUnsupportedOperation,
		Message:   fmt.Sprintf(format, args...),
		Operation: operation,
		Member:    member,
	}
}

// NewTypeMismatchError creates a TranslationError for incompatible operands.
func NewTypeMismatchError(operation, member, format string, args ...any) *TranslationError {
	return &TranslationError{
		Code:      ErrCodeTypeMappingMismatch,
		Message:   fmt.Sprintf(format, args...),
		Operation: operation,
		Member:    member,
	}
}

// NewAmbiguousError creates a TranslationError for duplicate matches.
func NewAmbiguousError(operation, member string, candidates int) *TranslationError {
	return &TranslationError{
		Code:      ErrCodeAmbiguousTranslation,
		Message:   fmt.Sprintf("%d translators match with equal specificity", candidates),
		Operation: operation,
		Member:    member,
	}
}

// NewClientEvaluationError creates a TranslationError for a client-only
// operation used inside the server-side part of a query.
func NewClientEvaluationError(operation string) *TranslationError {
	return &TranslationError{
		Code:      ErrCodeClientEvaluationRequired,
		Message:   "operation can only be evaluated on materialized rows and is only allowed in the final projection",
		Operation: operation,
	}
}
