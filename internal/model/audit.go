package model

import "time"

// AuditKind classifies an audit entry.
type AuditKind string

const (
	AuditSummarized AuditKind = "summarized"
	AuditFlagged    AuditKind = "flagged"
)

// Actions recorded on flagged entries.
const (
	ActionAutoReject       = "auto_reject"
	ActionFlaggedForReview = "flagged_for_review"
	ActionReviewApprove    = "review_approve"
	ActionReviewReject     = "review_reject"
)

// AuditEntry is an immutable compliance record of one governance decision.
type AuditEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	DocID     string    `json:"doc_id"`
	OwnerID   string    `json:"owner_id"`
	Kind      AuditKind `json:"kind"`
	Override  bool      `json:"override"`

	// summarized
	DocType       string `json:"doc_type,omitempty"`
	SummaryLength int    `json:"summary_length,omitempty"`

	// flagged
	Reason string `json:"reason,omitempty"`
	Role   Role   `json:"role,omitempty"`
	Action string `json:"action,omitempty"`

	// override
	ReviewerID string `json:"reviewer_id,omitempty"`
}
