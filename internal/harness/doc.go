// Package harness replays glitch campaigns from YAML scenarios against the
// real controller with scripted collaborators.
//
// # Scenario Format
//
//	name: silent_target_single_reset
//	description: "A target that never answers is reset once per threshold"
//	params: { min_width: 10, max_width: 20 }
//	silence_threshold: 100
//	steps: 101
//	target:
//	  outputs: { 42: "SUCCESS" }
//	  read_errors: [3]
//	  reset_errors: [1]
//	assertions:
//	  - type: reset_count
//	    count: 1
//	  - type: final_state
//	    state: searching
//
// Reads and resets are numbered from 1. When steps is zero the controller
// runs until it succeeds or hits a limit; limits are then required so the
// scenario terminates.
//
// Widths come from the scripted widths list when present and from a seeded
// PCG source otherwise. With engine: sim, pulses go through a real
// pulse.Sequencer driving a simulated line.
//
// # Assertion Types
//
//   - final_state: the controller ends in state
//   - reset_count, pulse_count, attempts, silence: exact counters
//   - result_width: the run succeeded with width
//   - error_code: the run stopped (or was rejected) with code
//   - widths_in_range: every triggered width lies in params
//   - trace_count: event occurs exactly count times
//   - trace_order: events occur in order, not necessarily adjacent
//   - no_overlap: simulated pulses never overlapped (engine: sim)
//
// Trace events are named by type ("pulse", "observation", "reset"), by
// class ("observation:empty"), or by transition
// ("transition:searching->stalled").
//
// # Deterministic Testing
//
// Every scenario runs with a virtual clock, a fixed run ID, and scripted or
// seeded widths, so traces are identical across runs and can be compared
// against golden files.
package harness
