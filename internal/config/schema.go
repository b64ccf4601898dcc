package config

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSource string

// Error reports a configuration value that failed validation.
type Error struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// SchemaError collects every schema violation found in one config.
type SchemaError struct {
	Errors []*Error
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.Error()
	}
	return "invalid config: " + strings.Join(msgs, "; ")
}

// Schema returns the embedded CUE schema source.
func Schema() string { return schemaSource }

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error
)

func compiledSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile config schema: %w", err)
			return
		}
		schemaDef = v.LookupPath(cue.ParsePath("#Config"))
		if !schemaDef.Exists() {
			schemaErr = fmt.Errorf("config schema has no #Config definition")
		}
	})
	return schemaCtx, schemaDef, schemaErr
}

// validateSchema unifies the config's document form with #Config.
func validateSchema(c Config) error {
	ctx, def, err := compiledSchema()
	if err != nil {
		return err
	}

	doc := ctx.Encode(c.document())
	if err := doc.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	unified := def.Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return toSchemaError(err)
	}
	return nil
}

func toSchemaError(err error) *SchemaError {
	se := &SchemaError{}
	for _, ce := range cueerrors.Errors(err) {
		path := ce.Path()
		if len(path) > 0 && path[0] == "#Config" {
			path = path[1:]
		}
		fe := &Error{Field: strings.Join(path, ".")}
		if fe.Field == "" {
			fe.Message = ce.Error()
		} else {
			format, args := ce.Msg()
			fe.Message = fmt.Sprintf(format, args...)
		}
		se.Errors = append(se.Errors, fe)
	}
	if len(se.Errors) == 0 {
		se.Errors = append(se.Errors, &Error{Message: err.Error()})
	}
	return se
}

// document renders the config with the same keys as its YAML form and
// durations as Go duration strings.
func (c Config) document() map[string]any {
	markers := c.Markers
	if markers == nil {
		markers = []string{}
	}
	return map[string]any{
		"port":              c.Port,
		"baud":              c.Baud,
		"glitch_pin":        c.GlitchPin,
		"reset_pin":         c.ResetPin,
		"min_width":         c.MinWidth,
		"max_width":         c.MaxWidth,
		"tick":              c.Tick.String(),
		"settle":            c.Settle.String(),
		"silence_threshold": c.SilenceThreshold,
		"markers":           markers,
		"ignore_case":       c.IgnoreCase,
		"seed":              c.Seed,
		"read_timeout":      c.ReadTimeout.String(),
		"reset": map[string]any{
			"assert":      c.Reset.Assert.String(),
			"release":     c.Reset.Release.String(),
			"active_high": c.Reset.ActiveHigh,
		},
		"limits": map[string]any{
			"max_attempts":           c.Limits.MaxAttempts,
			"max_duration":           c.Limits.MaxDuration.String(),
			"max_consecutive_resets": c.Limits.MaxConsecutiveResets,
		},
		"metrics_addr": c.MetricsAddr,
		"dry_run":      c.DryRun,
		"simulation": map[string]any{
			"vuln_min": c.Simulation.VulnMin,
			"vuln_max": c.Simulation.VulnMax,
			"brownout": c.Simulation.Brownout,
			"period":   c.Simulation.Period,
		},
	}
}
