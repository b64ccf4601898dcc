package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/roach88/glitchctl/internal/config"
	"github.com/roach88/glitchctl/internal/glitch"
)

// ValidationError is one rejected configuration value.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	MinWidth uint32            `json:"min_width,omitempty"`
	MaxWidth uint32            `json:"max_width,omitempty"`
	DryRun   bool              `json:"dry_run,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config.yaml>",
		Short: "Validate a run configuration without touching hardware",
		Long: `Validate a YAML run configuration.

Checks the file against the embedded schema and the controller's parameter
rules. Nothing is opened or driven.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	formatter.VerboseLog("Validating %s", path)

	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return outputValidateError(formatter, ErrCodeNotFound, err.Error())
	}
	if err != nil && !config.IsInvalid(err) {
		return outputValidateError(formatter, ErrCodeInvalidConfig, err.Error())
	}
	if err != nil {
		return outputValidationErrors(formatter, validationErrors(err))
	}

	return outputValidateSuccess(formatter, cfg)
}

// validationErrors flattens a configuration failure into one entry per field.
func validationErrors(err error) []ValidationError {
	var se *config.SchemaError
	if errors.As(err, &se) {
		out := make([]ValidationError, 0, len(se.Errors))
		for _, fe := range se.Errors {
			out = append(out, ValidationError{Field: fe.Field, Message: fe.Message, Code: ErrCodeInvalidConfig})
		}
		return out
	}

	var fe *config.Error
	if errors.As(err, &fe) {
		return []ValidationError{{Field: fe.Field, Message: fe.Message, Code: ErrCodeInvalidConfig}}
	}

	var ce *glitch.ConfigError
	if errors.As(err, &ce) {
		return []ValidationError{{Field: ce.Field, Message: ce.Message, Code: string(ce.Code)}}
	}

	return []ValidationError{{Message: err.Error(), Code: ErrCodeInvalidConfig}}
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, cfg config.Config) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{
			Valid:    true,
			MinWidth: cfg.MinWidth,
			MaxWidth: cfg.MaxWidth,
			DryRun:   cfg.DryRun,
		})
	}

	fmt.Fprintf(formatter.Writer, "✓ Config valid (widths %d..%d", cfg.MinWidth, cfg.MaxWidth)
	if cfg.DryRun {
		fmt.Fprint(formatter.Writer, ", dry run")
	}
	fmt.Fprintln(formatter.Writer, ")")
	return nil
}

// outputValidateError outputs an error that stopped validation early.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs every rejected value.
func outputValidationErrors(formatter *OutputFormatter, errs []ValidationError) error {
	exitErr := NewExitError(ExitCommandError, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return exitErr
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, e := range errs {
		if e.Field != "" {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n", e.Field, e.Message)
		} else {
			fmt.Fprintf(formatter.Writer, "  %s\n", e.Message)
		}
	}
	return exitErr
}
