package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"docgov/internal/model"
	"docgov/internal/repository"
)

// SummaryPostgres stores summaries, one row per document.
type SummaryPostgres struct {
	db *sql.DB
}

// NewSummaryPostgres creates a new SummaryPostgres repository.
func NewSummaryPostgres(db *sql.DB) *SummaryPostgres {
	return &SummaryPostgres{db: db}
}

var _ repository.SummaryRepository = (*SummaryPostgres)(nil)

// Upsert stores a summary; a re-driven document overwrites its earlier summary.
func (r *SummaryPostgres) Upsert(ctx context.Context, s *model.Summary) error {
	const q = `
		INSERT INTO summaries (doc_id, summary_text, notes_json, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (doc_id) DO UPDATE
		SET summary_text = EXCLUDED.summary_text,
		    notes_json = EXCLUDED.notes_json,
		    created_at = EXCLUDED.created_at
	`
	if _, err := r.db.ExecContext(ctx, q, s.DocID, s.SummaryText, s.NotesJSON, s.CreatedAt); err != nil {
		return fmt.Errorf("upsert summary %s: %w", s.DocID, err)
	}
	return nil
}

// FindByDocID returns the summary for a document.
func (r *SummaryPostgres) FindByDocID(ctx context.Context, docID string) (*model.Summary, error) {
	const q = `SELECT doc_id, summary_text, notes_json, created_at FROM summaries WHERE doc_id = $1`
	var s model.Summary
	err := r.db.QueryRowContext(ctx, q, docID).Scan(&s.DocID, &s.SummaryText, &s.NotesJSON, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find summary %s: %w", docID, err)
	}
	return &s, nil
}
