package glitch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_Classify(t *testing.T) {
	m, err := NewMatcher(DefaultMarkers, false)
	require.NoError(t, err)

	tests := []struct {
		name string
		data string
		want Class
	}{
		{"empty", "", ClassEmpty},
		{"counter line", "25000000 5000 5000 17\r\n", ClassData},
		{"success banner", "#######\r\nSUCCESSFUL GLITCH\r\n#######\r\n", ClassSuccess},
		{"embedded success", "...SUCCESS...", ClassSuccess},
		{"delimiter only", "garbage ### garbage", ClassSuccess},
		{"two hashes", "##", ClassData},
		{"case sensitive", "successful glitch", ClassData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := m.Classify([]byte(tt.data))
			assert.Equal(t, tt.want, obs.Class)
			if tt.want == ClassEmpty {
				assert.Nil(t, obs.Data)
			} else {
				assert.Equal(t, tt.data, string(obs.Data))
			}
		})
	}
}

func TestMatcher_IgnoreCase(t *testing.T) {
	m, err := NewMatcher([]string{"Success"}, true)
	require.NoError(t, err)

	assert.True(t, m.Match([]byte("successful glitch")))
	assert.True(t, m.Match([]byte("SUCCESSFUL GLITCH")))
	assert.False(t, m.Match([]byte("fail")))
}

func TestNewMatcher_Invalid(t *testing.T) {
	_, err := NewMatcher(nil, false)
	assert.Equal(t, ErrCodeInvalidMarkers, Code(err))

	_, err = NewMatcher([]string{"SUCCESS", ""}, false)
	assert.Equal(t, ErrCodeInvalidMarkers, Code(err))
	assert.Contains(t, err.Error(), "markers[1]")
}

func TestStateAndClassNames(t *testing.T) {
	assert.Equal(t, "searching", StateSearching.String())
	assert.Equal(t, "succeeded", StateSucceeded.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.True(t, StateSucceeded.Terminal())
	assert.False(t, StateRecovering.Terminal())

	s, ok := ParseState("recovering")
	assert.True(t, ok)
	assert.Equal(t, StateRecovering, s)
	_, ok = ParseState("bogus")
	assert.False(t, ok)

	text, err := ClassData.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "data", string(text))
}

func TestParams_Validate(t *testing.T) {
	assert.NoError(t, Params{MinWidth: 10, MaxWidth: 10}.Validate())
	assert.NoError(t, Params{MinWidth: 10, MaxWidth: 20}.Validate())

	err := Params{MinWidth: 20, MaxWidth: 10}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_WIDTH_RANGE")
	assert.Contains(t, err.Error(), "min_width 20 exceeds max_width 10")
}
