package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/roach88/querylift/internal/execute"
	"github.com/roach88/querylift/internal/model"
	"github.com/roach88/querylift/internal/query"
	"github.com/roach88/querylift/internal/translate"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Translation or validation failure, failing scenarios
	ExitCommandError = 2 // Command error (missing files, bad config, database unreachable)
)

// Error codes reported for failures that carry no code of their own.
const (
	ErrCodeGeneric      = "ERROR"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeDecode       = "DECODE_ERROR"
	ErrCodeInvalidQuery = "INVALID_QUERY"
	ErrCodeInvalidSQL   = "INVALID_SQL"
	ErrCodeExecution    = "EXECUTION_ERROR"
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)

	// Reported is set when the error was already written to the output.
	Reported bool
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// IsReported reports whether err was already written by an OutputFormatter.
func IsReported(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.Reported
}

// ErrorCode maps an error to the code shown in CLI output. Translation and
// model errors keep their own codes.
func ErrorCode(err error) string {
	if code := translate.CodeOf(err); code != "" {
		return string(code)
	}
	if code := model.CodeOf(err); code != "" {
		return string(code)
	}
	var ce *CheckError
	switch {
	case query.IsDecodeError(err):
		return ErrCodeDecode
	case errors.As(err, &ce):
		return ErrCodeInvalidSQL
	case errors.Is(err, fs.ErrNotExist):
		return ErrCodeNotFound
	case errors.Is(err, execute.ErrNoRows), errors.Is(err, execute.ErrNotSingle):
		return ErrCodeExecution
	}
	return ErrCodeGeneric
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // UNSUPPORTED_OPERATION, MODEL_NOT_FOUND, ...
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result. Text output prints data with
// fmt.Println unless it implements textRenderer.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	if r, ok := data.(textRenderer); ok {
		return r.renderText(f.Writer)
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err and returns the ExitError the command should return.
func (f *OutputFormatter) Fail(exitCode int, err error) error {
	code := ErrorCode(err)
	if outErr := f.Error(code, err.Error(), errorDetails(err)); outErr != nil {
		return outErr
	}
	return &ExitError{Code: exitCode, Message: code, Err: err, Reported: true}
}

// errorDetails exposes the structured fields of known errors.
func errorDetails(err error) any {
	var te *translate.TranslationError
	if errors.As(err, &te) {
		return map[string]string{
			"operation": te.Operation,
			"member":    te.Member,
			"position":  te.Position,
		}
	}
	var le *model.LoadError
	if errors.As(err, &le) && le.Path != "" {
		return map[string]string{"path": le.Path}
	}
	var de *query.DecodeError
	if errors.As(err, &de) {
		return map[string]any{"line": de.Line, "path": de.Path}
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Verbose output goes to ErrWriter so it never corrupts JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// textRenderer is implemented by results with a custom text layout.
type textRenderer interface {
	renderText(w io.Writer) error
}
