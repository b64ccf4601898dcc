package pulse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClockTimebase_HoldsAtLeastWidth(t *testing.T) {
	tb := ClockTimebase{Tick: time.Millisecond}

	start := time.Now()
	tb.Hold(5)
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestLoopTimebase_Returns(t *testing.T) {
	done := make(chan struct{})
	go func() {
		LoopTimebase{}.Hold(1 << 16)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("decrement loop did not terminate")
	}
}

func TestWidth_Validate(t *testing.T) {
	assert.ErrorIs(t, Width(0).Validate(), ErrZeroWidth)
	assert.NoError(t, Width(1).Validate())
	assert.Equal(t, "17 ticks", Width(17).String())
}
