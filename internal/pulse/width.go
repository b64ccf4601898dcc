package pulse

import (
	"errors"
	"fmt"
)

// Width is a pulse duration in timebase ticks.
type Width uint32

// ErrZeroWidth is returned for a width of zero ticks.
var ErrZeroWidth = errors.New("pulse width must be greater than zero")

// Validate reports whether w can be emitted.
func (w Width) Validate() error {
	if w == 0 {
		return ErrZeroWidth
	}
	return nil
}

// String implements fmt.Stringer.
func (w Width) String() string {
	return fmt.Sprintf("%d ticks", uint32(w))
}
