// Package lifecycle encodes the polyp state machine as a pure function,
// validated independently of storage. Transitions are one-directional; the
// only path that supersedes earlier work is the explicit molting event.
package lifecycle

// #region imports
import (
	"fmt"

	"github.com/reefipedia/reef/internal/polyp"
)

// #endregion

// #region event

// Event is a lifecycle trigger observed by the consensus engine.
type Event string

const (
	// EventProofVerified fires when the ZK proof verifies and bindings match.
	EventProofVerified Event = "proof_verified"
	// EventProofFailed fires when verification fails or bindings mismatch.
	EventProofFailed Event = "proof_failed"
	// EventReviewPicked fires when a sweep or threshold picks a Soft polyp.
	EventReviewPicked Event = "review_picked"
	// EventApproved fires when the composite score passes approval.
	EventApproved Event = "approved"
	// EventRejected fires when review cycles are exhausted below threshold.
	EventRejected Event = "rejected"
	// EventHardened fires on external epoch confirmation of an Approved polyp.
	EventHardened Event = "hardened"
	// EventMolted fires when a successor supersedes this polyp.
	EventMolted Event = "molted"
)

// #endregion event

// #region next

// Next computes the state an event leads to from the current state.
// Returns polyp.ErrTerminalState when current has no exits, and a descriptive
// error wrapping it for any other disallowed pair.
func Next(current polyp.State, ev Event) (polyp.State, error) {
	if current.Terminal() {
		return current, fmt.Errorf("%w: %s ignores %s", polyp.ErrTerminalState, current, ev)
	}

	// Molting supersedes any non-terminal state.
	if ev == EventMolted {
		return polyp.StateMolted, nil
	}

	switch current {
	case polyp.StateDraft:
		switch ev {
		case EventProofVerified:
			return polyp.StateSoft, nil
		case EventProofFailed:
			return polyp.StateRejected, nil
		}
	case polyp.StateSoft:
		if ev == EventReviewPicked {
			return polyp.StateUnderReview, nil
		}
	case polyp.StateUnderReview:
		switch ev {
		case EventApproved:
			return polyp.StateApproved, nil
		case EventRejected:
			return polyp.StateRejected, nil
		}
	case polyp.StateApproved:
		if ev == EventHardened {
			return polyp.StateHardened, nil
		}
	}

	return current, fmt.Errorf("lifecycle: disallowed transition %s -> %s", current, ev)
}

// #endregion next

// #region allowed

// Allowed reports whether ev is valid from current.
func Allowed(current polyp.State, ev Event) bool {
	_, err := Next(current, ev)
	return err == nil
}

// #endregion allowed
