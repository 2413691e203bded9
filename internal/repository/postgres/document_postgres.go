package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"docgov/internal/lifecycle"
	"docgov/internal/model"
	"docgov/internal/repository"
)

const documentColumns = `id, owner_id, role, filename, content_type, storage_key, raw_text,
		doc_type, status, reason, attempts, created_at, updated_at, pending_audit`

// DocumentPostgres is a PostgreSQL implementation of repository.DocumentRepository.
// Status changes are conditional updates so concurrent writers cannot both win.
type DocumentPostgres struct {
	db  *sql.DB
	now func() time.Time
}

// NewDocumentPostgres creates a new DocumentPostgres repository.
func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db, now: func() time.Time { return time.Now().UTC() }}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var d model.Document
	var pending []byte
	if err := row.Scan(
		&d.ID,
		&d.OwnerID,
		&d.Role,
		&d.Filename,
		&d.ContentType,
		&d.StorageKey,
		&d.RawText,
		&d.DocType,
		&d.Status,
		&d.Reason,
		&d.Attempts,
		&d.CreatedAt,
		&d.UpdatedAt,
		&pending,
	); err != nil {
		return nil, err
	}
	if len(pending) > 0 {
		d.PendingAudit = new(model.AuditEntry)
		if err := json.Unmarshal(pending, d.PendingAudit); err != nil {
			return nil, fmt.Errorf("decode pending audit of %s: %w", d.ID, err)
		}
	}
	return &d, nil
}

// encodeAudit renders a pending audit entry for the jsonb column; nil maps to NULL.
func encodeAudit(e *model.AuditEntry) (any, error) {
	if e == nil {
		return nil, nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode audit entry %s: %w", e.ID, err)
	}
	return string(b), nil
}

// Create inserts a new document row and returns the stored record.
func (r *DocumentPostgres) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	pending, err := encodeAudit(doc.PendingAudit)
	if err != nil {
		return nil, err
	}
	q := `
		INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING ` + documentColumns
	row := r.db.QueryRowContext(ctx, q,
		doc.ID,
		doc.OwnerID,
		doc.Role,
		doc.Filename,
		doc.ContentType,
		doc.StorageKey,
		doc.RawText,
		doc.DocType,
		doc.Status,
		doc.Reason,
		doc.Attempts,
		doc.CreatedAt,
		doc.UpdatedAt,
		pending,
	)
	out, err := scanDocument(row)
	if err != nil {
		return nil, fmt.Errorf("insert document %s: %w", doc.ID, err)
	}
	return out, nil
}

// FindByID fetches a single document by its ID.
func (r *DocumentPostgres) FindByID(ctx context.Context, id string) (*model.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	d, err := scanDocument(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("find document %s: %w", id, err)
	}
	return d, nil
}

// Transition performs `UPDATE ... WHERE status = from`. The pending audit
// entry is written in the same statement. When no row matches it
// distinguishes a missing document from one that has already moved on.
func (r *DocumentPostgres) Transition(ctx context.Context, id string, ch repository.StatusChange) (*model.Document, error) {
	if err := lifecycle.Validate(ch.From, ch.To); err != nil {
		return nil, err
	}
	pending, err := encodeAudit(ch.Audit)
	if err != nil {
		return nil, err
	}

	q := `
		UPDATE documents
		SET status = $3,
		    doc_type = COALESCE(NULLIF($4, ''), doc_type),
		    reason = COALESCE(NULLIF($5, ''), reason),
		    updated_at = $6,
		    pending_audit = $7
		WHERE id = $1 AND status = $2
		RETURNING ` + documentColumns
	d, err := scanDocument(r.db.QueryRowContext(ctx, q, id, ch.From, ch.To, ch.DocType, ch.Reason, r.now(), pending))
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transition document %s: %w", id, err)
	}

	var current model.Status
	err = r.db.QueryRowContext(ctx, `SELECT status FROM documents WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("transition document %s: %w", id, err)
	}
	return nil, fmt.Errorf("document %s is %s, not %s: %w", id, current, ch.From, repository.ErrConflict)
}

// MarkAudited clears pending_audit only while it still holds auditID, so a
// later transition's entry is never dropped.
func (r *DocumentPostgres) MarkAudited(ctx context.Context, id, auditID string) error {
	const q = `UPDATE documents SET pending_audit = NULL WHERE id = $1 AND pending_audit->>'id' = $2`
	if _, err := r.db.ExecContext(ctx, q, id, auditID); err != nil {
		return fmt.Errorf("mark audited %s: %w", id, err)
	}
	return nil
}

// ListUnaudited returns documents whose audit entry has not reached the log.
func (r *DocumentPostgres) ListUnaudited(ctx context.Context, olderThan time.Time, limit int) ([]model.Document, error) {
	q := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE pending_audit IS NOT NULL AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, q, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list unaudited documents: %w", err)
	}
	defer rows.Close()

	var out []model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// List returns documents using LIMIT/OFFSET pagination and a total count.
func (r *DocumentPostgres) List(ctx context.Context, status model.Status, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	const qCount = `SELECT COUNT(*) FROM documents WHERE ($1 = '' OR status = $1)`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount, status).Scan(&total); err != nil {
		return nil, err
	}

	qList := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, qList, status, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Document]{
		Items: items,
		Total: total,
	}, nil
}

// ListStale returns documents stuck in status since before olderThan.
func (r *DocumentPostgres) ListStale(ctx context.Context, status model.Status, olderThan time.Time, limit int) ([]model.Document, error) {
	q := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, q, status, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale documents: %w", err)
	}
	defer rows.Close()

	var out []model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// IncrementAttempts bumps the attempt counter without touching updated_at.
func (r *DocumentPostgres) IncrementAttempts(ctx context.Context, id string) (int, error) {
	const q = `UPDATE documents SET attempts = attempts + 1 WHERE id = $1 RETURNING attempts`
	var attempts int
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, repository.ErrNotFound
		}
		return 0, fmt.Errorf("increment attempts %s: %w", id, err)
	}
	return attempts, nil
}
