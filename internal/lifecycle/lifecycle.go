// Package lifecycle encodes the document status state machine.
//
// Allowed transitions:
//
//	ingested       -> rejected | pending_review | completed   (governance pipeline)
//	pending_review -> completed | rejected                    (reviewer override)
//
// Nothing re-enters ingested and terminal states are never left.
package lifecycle

import (
	"errors"
	"fmt"

	"docgov/internal/model"
)

// ErrInvalidTransition is returned for a transition not in the table.
var ErrInvalidTransition = errors.New("invalid status transition")

var transitions = map[model.Status][]model.Status{
	model.StatusIngested: {
		model.StatusRejected,
		model.StatusPendingReview,
		model.StatusCompleted,
	},
	model.StatusPendingReview: {
		model.StatusCompleted,
		model.StatusRejected,
	},
}

// CanTransition reports whether from -> to is a permitted edge.
func CanTransition(from, to model.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Validate returns ErrInvalidTransition wrapped with both states when from -> to is not allowed.
func Validate(from, to model.Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// TargetFor maps a governance decision onto the status an ingested document moves to.
func TargetFor(d model.Decision) model.Status {
	switch d.Kind {
	case model.DecisionReject:
		return model.StatusRejected
	case model.DecisionReview:
		return model.StatusPendingReview
	default:
		return model.StatusCompleted
	}
}
