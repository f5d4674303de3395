package model

import "fmt"

const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusError   = "error"
)

// Terminal statuses have no outgoing transitions. A unit that failed before
// its sandbox ever existed jumps pending -> error directly.
var allowedTransitions = map[string]map[string]bool{
	"": {
		StatusPending: true,
	},
	StatusPending: {
		StatusRunning: true,
		StatusError:   true,
	},
	StatusRunning: {
		StatusDone:  true,
		StatusError: true,
	},
	StatusDone:  {},
	StatusError: {},
}

func IsKnownStatus(status string) bool {
	_, ok := allowedTransitions[status]
	return ok
}

func CanTransition(from, to string) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

func TransitionUnitStatus(unit *Unit, toStatus string, reason string) error {
	from := unit.Status
	if !CanTransition(from, toStatus) {
		return fmt.Errorf("invalid unit status transition: %q -> %q (unit_id=%s)", from, toStatus, unit.ID)
	}
	unit.Status = toStatus
	unit.Reason = reason
	return nil
}
