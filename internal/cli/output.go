package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Success, or a run stopped by the operator
	ExitFailure      = 1 // Run limit reached, hardware failure, or failing scenarios
	ExitCommandError = 2 // Invalid configuration or arguments
)

// Error codes reported in CLI responses that do not come from the
// controller's own ErrorCode set.
const (
	ErrCodeInvalidConfig = "INVALID_CONFIG"
	ErrCodeHardware      = "HARDWARE"
	ErrCodeRunFailed     = "RUN_FAILED"
	ErrCodeTestFailed    = "TEST_FAILED"
	ErrCodeNotFound      = "NOT_FOUND"
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // ExitFailure or ExitCommandError
	Message string
	Err     error
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

// GetExitCode extracts the exit code from an error. A nil error is
// ExitSuccess; any error that is not an ExitError is ExitFailure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; keeps JSON on Writer clean
	Verbose   bool
}

// CLIResponse is the JSON envelope for every command.
type CLIResponse struct {
	Status string      `json:"status"` // "ok" or "error"
	RunID  string      `json:"run_id,omitempty"`
	Data   interface{} `json:"data,omitempty"`
	Error  *CLIError   `json:"error,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data interface{}) error {
	return f.Report("", data, nil)
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	return f.Report("", nil, &CLIError{Code: code, Message: message, Details: details})
}

// Report outputs data and an optional error together. A run that stopped on
// a limit still has a summary worth printing.
func (f *OutputFormatter) Report(runID string, data interface{}, cliErr *CLIError) error {
	if f.Format == "json" {
		status := "ok"
		if cliErr != nil {
			status = "error"
		}
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: status,
			RunID:  runID,
			Data:   data,
			Error:  cliErr,
		})
	}

	if data != nil {
		fmt.Fprintln(f.Writer, data)
	}
	if cliErr != nil {
		fmt.Fprintf(f.Writer, "Error [%s]: %s\n", cliErr.Code, cliErr.Message)
		if f.Verbose && cliErr.Details != nil {
			fmt.Fprintf(f.Writer, "Details: %v\n", cliErr.Details)
		}
	}
	return nil
}

// VerboseLog writes a diagnostic line when verbose mode is enabled.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
