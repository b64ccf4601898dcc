package glitch

// State is the controller's position in the search state machine.
type State int

const (
	// StateSearching picks widths and pulses. Initial state.
	StateSearching State = iota
	// StateStalled means the silence counter exceeded the threshold.
	StateStalled
	// StateRecovering means the target reset sequence is running.
	StateRecovering
	// StateSucceeded is terminal; no further pulses are issued.
	StateSucceeded
)

var stateNames = [...]string{"searching", "stalled", "recovering", "succeeded"}

// String implements fmt.Stringer.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText renders the state by name in JSON and YAML output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether the controller stops pulsing in this state.
func (s State) Terminal() bool {
	return s == StateSucceeded
}

// ParseState maps a state name back to its State.
func ParseState(name string) (State, bool) {
	for i, n := range stateNames {
		if n == name {
			return State(i), true
		}
	}
	return 0, false
}
