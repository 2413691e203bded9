package repository

import (
	"context"
	"time"

	"docgov/internal/model"
)

// StatusChange is a conditional status update. Audit, when set, is stored on
// the row in the same write and stays pending until MarkAudited clears it.
type StatusChange struct {
	From    model.Status
	To      model.Status
	DocType string
	Reason  string
	Audit   *model.AuditEntry
}

// DocumentRepository is the lifecycle store: one row per document keyed by ID.
type DocumentRepository interface {
	// Create inserts a new document in its initial status.
	Create(ctx context.Context, doc *model.Document) (*model.Document, error)

	// FindByID returns a document by its ID or ErrNotFound.
	FindByID(ctx context.Context, id string) (*model.Document, error)

	// Transition moves a document from ch.From to ch.To and stamps updated_at.
	// DocType and Reason overwrite the stored values when non-empty; the
	// pending audit entry is always replaced by ch.Audit.
	// Returns ErrConflict if the document is no longer in ch.From, ErrNotFound if it does not exist.
	Transition(ctx context.Context, id string, ch StatusChange) (*model.Document, error)

	// MarkAudited clears the pending audit entry of a document if it is still auditID.
	MarkAudited(ctx context.Context, id, auditID string) error

	// ListUnaudited returns up to limit documents whose pending audit entry was
	// written before olderThan, oldest first.
	ListUnaudited(ctx context.Context, olderThan time.Time, limit int) ([]model.Document, error)

	// List returns a page of documents, optionally filtered by status ("" for all), newest first.
	List(ctx context.Context, status model.Status, pq PageQuery) (*PageResult[model.Document], error)

	// ListStale returns up to limit documents in status whose updated_at is before olderThan, oldest first.
	ListStale(ctx context.Context, status model.Status, olderThan time.Time, limit int) ([]model.Document, error)

	// IncrementAttempts bumps the processing attempt counter and returns the new value.
	IncrementAttempts(ctx context.Context, id string) (int, error)
}

// SummaryRepository stores summarization output.
type SummaryRepository interface {
	// Upsert stores the summary for a document, replacing an earlier one for the same document.
	Upsert(ctx context.Context, s *model.Summary) error

	// FindByDocID returns the summary of a document or ErrNotFound.
	FindByDocID(ctx context.Context, docID string) (*model.Summary, error)
}

// PolicyRepository is the durable policy key/value store.
type PolicyRepository interface {
	// FetchAll returns every stored policy as key -> raw string value.
	FetchAll(ctx context.Context) (map[string]string, error)

	// Upsert inserts or replaces a policy value.
	Upsert(ctx context.Context, key, value string) error
}

// AuditRepository is the append-only audit log.
type AuditRepository interface {
	// Append stores a new entry. Entries are never updated or deleted; appending
	// an ID that is already stored is a no-op.
	Append(ctx context.Context, e *model.AuditEntry) error

	// ListByDocument returns the entries for a document, oldest first.
	ListByDocument(ctx context.Context, docID string) ([]model.AuditEntry, error)
}
