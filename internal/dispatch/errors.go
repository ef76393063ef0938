package dispatch

import "fmt"

// Outcome failure reasons. Per-participant failures are contained at the
// execution-unit or scheduler boundary and converted to data; they never
// abort sibling participants or sibling tasks.
const (
	ReasonLaunchFailure    = "launch_failure"
	ReasonNavigationFailed = "navigation_failed"
	ReasonJoinError        = "join_error"
	ReasonTimeout          = "timeout"
	ReasonWorkerFault      = "worker_fault"

	// ReasonNotDispatched marks participants the partitioner excluded
	// because they fell beyond the per-engine capacity window. They never
	// reach an engine, but the one-outcome-per-participant contract still
	// holds for them.
	ReasonNotDispatched = "not_dispatched"
)

// ValidationError rejects a request before any dispatch is attempted.
// Surfaced to the HTTP layer as a 400.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("dispatch: invalid request: %s: %s", e.Field, e.Msg)
}
