package glitch

import (
	"bytes"
	"fmt"

	"golang.org/x/text/cases"
)

// Class is the classification of one read from the target.
type Class int

const (
	// ClassEmpty means the target printed nothing (or the read failed).
	ClassEmpty Class = iota
	// ClassData means output without a success marker.
	ClassData
	// ClassSuccess means the output contains a success marker.
	ClassSuccess
)

var classNames = [...]string{"empty", "data", "success"}

// String implements fmt.Stringer.
func (c Class) String() string {
	if c < 0 || int(c) >= len(classNames) {
		return "unknown"
	}
	return classNames[c]
}

// MarshalText renders the class by name.
func (c Class) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Observation is the bytes read in one polling interval and their class.
type Observation struct {
	Class Class
	Data  []byte
}

// DefaultMarkers are the markers printed by the counter firmware when the
// integrity loop is escaped: the "#######" delimiter and "SUCCESSFUL GLITCH".
var DefaultMarkers = []string{"SUCCESS", "###"}

// Matcher recognizes success markers by substring containment.
type Matcher struct {
	markers    [][]byte
	ignoreCase bool
}

// NewMatcher builds a matcher. With ignoreCase, markers and observations are
// compared after Unicode case folding.
func NewMatcher(markers []string, ignoreCase bool) (*Matcher, error) {
	if len(markers) == 0 {
		return nil, &ConfigError{Code: ErrCodeInvalidMarkers, Field: "markers", Message: "at least one success marker is required"}
	}

	m := &Matcher{ignoreCase: ignoreCase}
	for i, s := range markers {
		if s == "" {
			return nil, &ConfigError{
				Code:    ErrCodeInvalidMarkers,
				Field:   fmt.Sprintf("markers[%d]", i),
				Message: "marker must not be empty",
			}
		}
		b := []byte(s)
		if ignoreCase {
			b = cases.Fold().Bytes(b)
		}
		m.markers = append(m.markers, b)
	}
	return m, nil
}

// Match reports whether data contains any marker.
func (m *Matcher) Match(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	if m.ignoreCase {
		data = cases.Fold().Bytes(data)
	}
	for _, marker := range m.markers {
		if bytes.Contains(data, marker) {
			return true
		}
	}
	return false
}

// Classify turns raw target bytes into an Observation.
func (m *Matcher) Classify(data []byte) Observation {
	switch {
	case len(data) == 0:
		return Observation{Class: ClassEmpty}
	case m.Match(data):
		return Observation{Class: ClassSuccess, Data: data}
	default:
		return Observation{Class: ClassData, Data: data}
	}
}
