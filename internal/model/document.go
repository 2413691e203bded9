package model

import "time"

// Status is a document lifecycle state.
type Status string

const (
	StatusIngested      Status = "ingested"
	StatusPendingReview Status = "pending_review"
	StatusCompleted     Status = "completed"
	StatusRejected      Status = "rejected"
)

// Terminal reports whether no further transition can leave this status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// Document is a submitted piece of content and its lifecycle record.
// ID is generated at ingestion and never changes.
//
// PendingAudit is the audit entry for the current status while it has not
// yet been appended to the audit log. It is written together with the status.
type Document struct {
	ID          string    `json:"doc_id"`
	OwnerID     string    `json:"owner_id"`
	Role        Role      `json:"role"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	StorageKey  string    `json:"storage_key"`
	RawText     string    `json:"-"`
	DocType     string    `json:"doc_type"`
	Status      Status    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	Attempts    int       `json:"attempts"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	PendingAudit *AuditEntry `json:"-"`
}

// Summary is the summarization output persisted for a completed document.
type Summary struct {
	DocID       string    `json:"doc_id"`
	SummaryText string    `json:"summary_text"`
	NotesJSON   string    `json:"notes_json"`
	CreatedAt   time.Time `json:"created_at"`
}
