package supervisor

import (
	"github.com/monstack/monstack/pkg/errors"
)

// validTransitions encodes the handle lifecycle:
// Pending -> Starting -> Ready/Failed -> Stopped.
// Pending -> Ready covers the already-running short-circuit, and
// Ready -> Failed covers an unexpected exit after startup.
var validTransitions = map[Status][]Status{
	StatusPending:  {StatusStarting, StatusReady},
	StatusStarting: {StatusReady, StatusFailed, StatusStopped},
	StatusReady:    {StatusFailed, StatusStopped},
	StatusFailed:   {StatusStopped},
	StatusStopped:  {},
}

func canTransition(from, to Status) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// transition validates and applies a status change. Callers hold the
// supervisor mutex.
func transition(handle *ServiceHandle, to Status) error {
	from := handle.Status
	if !canTransition(from, to) {
		return errors.NewInternalError("invalid status transition", nil).
			WithContext("service_id", handle.Spec.ID).
			WithContext("from", string(from)).
			WithContext("to", string(to))
	}
	handle.Status = to
	return nil
}
