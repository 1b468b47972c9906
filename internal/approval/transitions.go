// Package approval implements the draft state machine: the single module
// allowed to mutate a draft's status. Every other component holds only
// read references to drafts by identity.
package approval

import "github.com/NomadonaTrip/sophia/pkg/models"

// validTransitions is the exhaustive transition table. Any (from, to) pair
// not present here fails with ErrInvalidTransition, except in_review →
// in_review, which Transition accepts as an in-place edit.
var validTransitions = map[models.DraftStatus]map[models.DraftStatus]bool{
	models.DraftStatusDraft: {
		models.DraftStatusInReview: true,
	},
	models.DraftStatusInReview: {
		models.DraftStatusApproved: true,
		models.DraftStatusRejected: true,
		models.DraftStatusSkipped:  true,
	},
	models.DraftStatusApproved: {
		models.DraftStatusInReview:  true,
		models.DraftStatusPublished: true,
	},
	models.DraftStatusRejected: {
		models.DraftStatusInReview: true,
	},
	models.DraftStatusSkipped: {
		models.DraftStatusInReview: true,
	},
	models.DraftStatusPublished: {
		models.DraftStatusRecovered: true,
	},
	models.DraftStatusRecovered: {
		models.DraftStatusInReview: true,
	},
}

// isValidTransition reports whether from → to appears in the transition
// table.
func isValidTransition(from, to models.DraftStatus) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}
