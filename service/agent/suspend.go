package agent

import "errors"

// suspendError is returned by agents that want to park the execution until
// an external event (approval, webhook, human input) arrives.
type suspendError struct {
	Reason  string
	Payload interface{}
}

func (e *suspendError) Error() string {
	return "execution suspended: " + e.Reason
}

// NewSuspendError signals that the ensemble should be snapshotted and parked
// instead of continuing. Payload is surfaced to the caller alongside the
// resume token.
func NewSuspendError(reason string, payload interface{}) error {
	return &suspendError{Reason: reason, Payload: payload}
}

// IsSuspendError returns (reason, payload, true) if err indicates that the
// step wants to suspend the execution.
func IsSuspendError(err error) (string, interface{}, bool) {
	var s *suspendError
	if errors.As(err, &s) {
		return s.Reason, s.Payload, true
	}
	return "", nil, false
}
