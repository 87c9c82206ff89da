package delivery

import "fmt"

// The status engine is a pure decision table. It never calls the network; it
// gates which actions the CLI and the intake orchestrator expose for the
// current (role, status) pair.

// IsTerminal reports whether no further transitions are allowed from s.
func IsTerminal(s Status) bool {
	return s == StatusAccepted || s == StatusRejected
}

// CanPerform reports whether role may request action on a delivery currently
// in status. Receiving additionally requires a completed intake flow, which
// the orchestrator enforces; this check covers only the status table.
func CanPerform(status Status, role Role, action Action) bool {
	switch action {
	case ActionReceive:
		if role != RoleForeman {
			return false
		}
		return status != StatusAccepted && status != StatusRejected && status != StatusReceived
	case ActionSendToLab:
		if role != RoleSSK {
			return false
		}
		return status == StatusDelivered || status == StatusReceived
	case ActionAccept, ActionReject:
		if role != RoleSSK {
			return false
		}
		return status == StatusDelivered || status == StatusInLab || status == StatusReceived
	default:
		return false
	}
}

// NextStatus returns the status that a legal action transitions into.
func NextStatus(action Action) Status {
	switch action {
	case ActionReceive:
		return StatusReceived
	case ActionSendToLab:
		return StatusSentToLab
	case ActionAccept:
		return StatusAccepted
	case ActionReject:
		return StatusRejected
	default:
		return ""
	}
}

// ValidateAction checks action inputs before any request is issued.
// Accept and reject require a non-empty comment.
func ValidateAction(action Action, comment string) error {
	if (action == ActionAccept || action == ActionReject) && comment == "" {
		return &ValidationError{Reason: fmt.Sprintf("%s requires a comment", action)}
	}
	return nil
}

// ParseStatus converts a backend status string, rejecting unknown values.
func ParseStatus(s string) (Status, error) {
	for _, known := range allStatuses {
		if Status(s) == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown delivery status %q", s)
}

// DisplayStatus maps a status to its user-facing label. The backend stores
// sent_to_lab; once confirmed it is shown as in_lab.
func DisplayStatus(s Status) string {
	if s == StatusSentToLab {
		return string(StatusInLab)
	}
	return string(s)
}
