package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"docgov/internal/model"
	"docgov/internal/repository"
)

// AuditPostgres is the append-only audit log backed by the audit_entries table.
// It only ever inserts; there is no update or delete path.
type AuditPostgres struct {
	db *sql.DB
}

// NewAuditPostgres creates a new AuditPostgres repository.
func NewAuditPostgres(db *sql.DB) *AuditPostgres {
	return &AuditPostgres{db: db}
}

var _ repository.AuditRepository = (*AuditPostgres)(nil)

// Append inserts one audit entry. Re-appending an existing ID is ignored.
func (r *AuditPostgres) Append(ctx context.Context, e *model.AuditEntry) error {
	const q = `
		INSERT INTO audit_entries
		(id, ts, doc_id, owner_id, kind, override, doc_type, summary_length, reason, role, action, reviewer_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.Timestamp,
		e.DocID,
		e.OwnerID,
		e.Kind,
		e.Override,
		e.DocType,
		e.SummaryLength,
		e.Reason,
		e.Role,
		e.Action,
		e.ReviewerID,
	)
	if err != nil {
		return fmt.Errorf("append audit entry %s: %w", e.ID, err)
	}
	return nil
}

// ListByDocument returns a document's audit trail ordered by time.
func (r *AuditPostgres) ListByDocument(ctx context.Context, docID string) ([]model.AuditEntry, error) {
	const q = `
		SELECT id, ts, doc_id, owner_id, kind, override, doc_type, summary_length, reason, role, action, reviewer_id
		FROM audit_entries
		WHERE doc_id = $1
		ORDER BY ts ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, q, docID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries %s: %w", docID, err)
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		if err := rows.Scan(
			&e.ID,
			&e.Timestamp,
			&e.DocID,
			&e.OwnerID,
			&e.Kind,
			&e.Override,
			&e.DocType,
			&e.SummaryLength,
			&e.Reason,
			&e.Role,
			&e.Action,
			&e.ReviewerID,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
