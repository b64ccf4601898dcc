// Package glitch implements the fault-injection search and recovery loop.
//
// A Controller repeatedly picks a pulse width uniformly at random from the
// configured range, hands it to a Pulser, dwells for the settle interval,
// reads whatever the target printed, and classifies the bytes as empty, data,
// or success. Consecutive empty reads feed a silence counter; once it exceeds
// the threshold the controller resets the target and resumes searching. The
// first observation containing a success marker ends the run.
//
// State machine:
//
//	Searching --empty, silence > threshold--> Stalled --> Recovering --> Searching
//	Searching --success marker--> Succeeded (terminal)
//
// CRITICAL: the controller is single-threaded. It never calls Trigger again
// before the dwell of the previous iteration has elapsed, and when the Pulser
// also implements Completer it waits for the pulse to finish as well.
package glitch
