package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/glitchctl/internal/pulse"
)

func TestSeqSource_ReplaysAndWraps(t *testing.T) {
	src := NewSeqSource(3, 1)

	assert.Equal(t, uint64(3), src.Uint64N(11))
	assert.Equal(t, uint64(1), src.Uint64N(11))
	assert.Equal(t, uint64(3), src.Uint64N(11), "script starts over when exhausted")
	assert.Equal(t, uint64(1), src.Uint64N(2), "offsets are reduced modulo n")
	assert.Equal(t, []uint64{11, 11, 11, 2}, src.Spans())
}

func TestWidthSource(t *testing.T) {
	src := NewWidthSource(10, 17, 10, 20)

	assert.Equal(t, uint64(7), src.Uint64N(11))
	assert.Equal(t, uint64(0), src.Uint64N(11))
	assert.Equal(t, uint64(10), src.Uint64N(11))
}

func TestScriptedTarget(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("uart overrun")
	tgt := NewScriptedTarget().Output(2, "hello").FailRead(3, boom)

	data, err := tgt.Read(ctx)
	require.NoError(t, err)
	assert.Empty(t, data)

	data, err = tgt.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = tgt.Read(ctx)
	assert.ErrorIs(t, err, boom)

	require.NoError(t, tgt.Reset(ctx))
	assert.Equal(t, 3, tgt.Reads())
	assert.Equal(t, 1, tgt.Resets())
	assert.Equal(t, []int{3}, tgt.ResetAt())
}

func TestRecordingPulser(t *testing.T) {
	p := NewRecordingPulser().Reject(2)

	require.NoError(t, p.Trigger(12))
	assert.ErrorIs(t, p.Trigger(13), pulse.ErrBusy)
	assert.ErrorIs(t, p.Trigger(0), pulse.ErrZeroWidth)
	require.NoError(t, p.Trigger(14))

	assert.Equal(t, []pulse.Width{12, 14}, p.Widths())
	assert.Equal(t, 3, p.Calls())
}
