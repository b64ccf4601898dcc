package glitch

import (
	"fmt"

	"github.com/roach88/glitchctl/internal/pulse"
)

// Params is the inclusive width range sampled by one search run. It is
// immutable for the duration of the run.
type Params struct {
	MinWidth pulse.Width `json:"min_width"`
	MaxWidth pulse.Width `json:"max_width"`
}

// Validate fails fast on ranges that can never produce a valid pulse.
func (p Params) Validate() error {
	if p.MinWidth == 0 {
		return &ConfigError{Code: ErrCodeInvalidWidth, Field: "min_width", Message: "width must be greater than zero"}
	}
	if p.MaxWidth == 0 {
		return &ConfigError{Code: ErrCodeInvalidWidth, Field: "max_width", Message: "width must be greater than zero"}
	}
	if p.MinWidth > p.MaxWidth {
		return &ConfigError{
			Code:    ErrCodeInvalidWidthRange,
			Field:   "max_width",
			Message: fmt.Sprintf("min_width %d exceeds max_width %d", p.MinWidth, p.MaxWidth),
		}
	}
	return nil
}

// span is the number of widths in the inclusive range. It can reach 1<<32,
// so it is computed in uint64.
func (p Params) span() uint64 {
	return uint64(p.MaxWidth-p.MinWidth) + 1
}
