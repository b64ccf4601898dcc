package glitch

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode categorizes controller errors.
type ErrorCode string

const (
	// ErrCodeInvalidWidth indicates a zero min or max width.
	ErrCodeInvalidWidth ErrorCode = "INVALID_WIDTH"

	// ErrCodeInvalidWidthRange indicates min_width > max_width.
	ErrCodeInvalidWidthRange ErrorCode = "INVALID_WIDTH_RANGE"

	// ErrCodeInvalidSettle indicates a negative settle interval.
	ErrCodeInvalidSettle ErrorCode = "INVALID_SETTLE"

	// ErrCodeInvalidThreshold indicates a negative silence threshold.
	ErrCodeInvalidThreshold ErrorCode = "INVALID_THRESHOLD"

	// ErrCodeInvalidMarkers indicates an empty marker list or an empty marker.
	ErrCodeInvalidMarkers ErrorCode = "INVALID_MARKERS"

	// ErrCodeAttemptLimit indicates the run used up its attempt budget.
	ErrCodeAttemptLimit ErrorCode = "ATTEMPT_LIMIT"

	// ErrCodeDurationLimit indicates the run used up its time budget.
	ErrCodeDurationLimit ErrorCode = "DURATION_LIMIT"

	// ErrCodeResetLimit indicates the target stayed silent across too many
	// consecutive resets.
	ErrCodeResetLimit ErrorCode = "RESET_LIMIT"
)

// ConfigError is returned before the search loop starts when parameters are
// unusable. It is always fatal.
type ConfigError struct {
	Code    ErrorCode
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LimitError is returned by Run when a configured budget is exhausted.
type LimitError struct {
	Code     ErrorCode
	RunID    string
	Attempts int
	Resets   int
	Elapsed  time.Duration
	Limit    string
}

// Error implements the error interface.
func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: run %s stopped after %d attempts, %d resets, %s (limit %s)",
		e.Code, e.RunID, e.Attempts, e.Resets, e.Elapsed.Round(time.Millisecond), e.Limit)
}

// IsConfigError returns true if err wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsLimitError returns true if err wraps a LimitError.
func IsLimitError(err error) bool {
	var le *LimitError
	return errors.As(err, &le)
}

// Code returns the ErrorCode carried by err, or "" if it carries none.
func Code(err error) ErrorCode {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce.Code
	}
	var le *LimitError
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}
