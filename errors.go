package planner

import "errors"

var (
	// Origin or destination stop not present in the graph.
	ErrUnknownStop = errors.New("unknown stop")

	// The graph has no route between the stops, or every candidate
	// was filtered out.
	ErrNoPathFound = errors.New("no path found between stops")

	// Malformed date/time or out-of-range tuning knob. Rejected
	// before any search work happens.
	ErrInvalidParameter = errors.New("invalid parameter")

	// A candidate path could not be matched to scheduled trips.
	// Internal: candidates failing resolution are skipped, never
	// surfaced to callers.
	errUnresolvable = errors.New("no scheduled trips cover path")
)
