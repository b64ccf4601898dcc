package glitch

import "github.com/roach88/glitchctl/internal/pulse"

// EventType distinguishes controller events.
type EventType string

const (
	// EventPulse is emitted after a width is accepted by the Pulser.
	EventPulse EventType = "pulse"
	// EventObservation is emitted after every classified read.
	EventObservation EventType = "observation"
	// EventTransition is emitted on every state change.
	EventTransition EventType = "transition"
	// EventReset is emitted after the target reset sequence returns.
	EventReset EventType = "reset"
)

// Event is one step of a run, delivered synchronously to an Observer from
// the controller goroutine. Seq is strictly increasing within a run.
type Event struct {
	Seq     int
	Attempt int
	Type    EventType

	Width   pulse.Width // EventPulse, EventObservation
	Class   Class       // EventObservation
	Data    []byte      // EventObservation
	Silence int         // EventObservation, EventReset
	From    State       // EventTransition
	To      State       // EventTransition
	Err     error       // EventObservation (read failure), EventReset (reset failure)
}

// Observer receives controller events. Implementations must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(e Event) { f(e) }

type multiObserver []Observer

func (m multiObserver) Observe(e Event) {
	for _, o := range m {
		o.Observe(e)
	}
}

// Observers fans events out to every non-nil observer in order.
func Observers(obs ...Observer) Observer {
	var m multiObserver
	for _, o := range obs {
		if o != nil {
			m = append(m, o)
		}
	}
	return m
}
