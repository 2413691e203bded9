// Package audit records governance decisions in the append-only audit log.
//
// Entries are built when a decision is made and stored on the document row
// with its status change. Deliver then appends them to the log; the recovery
// sweep re-drives any entry whose delivery failed.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docgov/internal/auth"
	"docgov/internal/logger"
	"docgov/internal/model"
	"docgov/internal/repository"
	"docgov/internal/retry"
)

// Logger builds and appends audit entries. Writes are retried; a write that
// still fails is returned to the caller, never dropped silently.
type Logger struct {
	repo   repository.AuditRepository
	policy retry.Policy
	log    *zap.Logger
	now    func() time.Time
}

func NewLogger(repo repository.AuditRepository, policy retry.Policy, log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{
		repo:   repo,
		policy: policy,
		log:    log.With(zap.String("component", "audit")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SummarizedEntry is the entry for a document completed by the automated path.
func (l *Logger) SummarizedEntry(doc *model.Document, docType string, summaryLength int) *model.AuditEntry {
	return l.entry(&model.AuditEntry{
		DocID:         doc.ID,
		OwnerID:       doc.OwnerID,
		Kind:          model.AuditSummarized,
		DocType:       docType,
		SummaryLength: summaryLength,
	})
}

// FlaggedEntry is the entry for an automated rejection or a hand-off to review.
func (l *Logger) FlaggedEntry(doc *model.Document, reason, action string) *model.AuditEntry {
	return l.entry(&model.AuditEntry{
		DocID:   doc.ID,
		OwnerID: doc.OwnerID,
		Kind:    model.AuditFlagged,
		Reason:  reason,
		Role:    doc.Role,
		Action:  action,
	})
}

// ApprovedEntry is the entry for a reviewer moving a pending document to completed.
func (l *Logger) ApprovedEntry(doc *model.Document, reviewer auth.Identity) *model.AuditEntry {
	return l.entry(&model.AuditEntry{
		DocID:      doc.ID,
		OwnerID:    doc.OwnerID,
		Kind:       model.AuditSummarized,
		Override:   true,
		DocType:    doc.DocType,
		Reason:     model.ReasonReviewOverride,
		Role:       reviewer.Role,
		Action:     model.ActionReviewApprove,
		ReviewerID: reviewer.UserID,
	})
}

// RejectedEntry is the entry for a reviewer moving a pending document to rejected.
func (l *Logger) RejectedEntry(doc *model.Document, reviewer auth.Identity) *model.AuditEntry {
	return l.entry(&model.AuditEntry{
		DocID:      doc.ID,
		OwnerID:    doc.OwnerID,
		Kind:       model.AuditFlagged,
		Override:   true,
		Reason:     model.ReasonReviewReject,
		Role:       reviewer.Role,
		Action:     model.ActionReviewReject,
		ReviewerID: reviewer.UserID,
	})
}

func (l *Logger) entry(e *model.AuditEntry) *model.AuditEntry {
	e.ID = uuid.NewString()
	e.Timestamp = l.now()
	return e
}

// Record appends e under the retry policy.
func (l *Logger) Record(ctx context.Context, e *model.AuditEntry) error {
	if e.ID == "" {
		l.entry(e)
	}
	err := retry.Do(ctx, l.policy, func(ctx context.Context) error {
		return l.repo.Append(ctx, e)
	})
	if err != nil {
		logger.For(ctx, l.log).Error("audit write failed",
			zap.String("doc_id", e.DocID),
			zap.String("audit_id", e.ID),
			zap.String("kind", string(e.Kind)),
			zap.Error(err),
		)
		return fmt.Errorf("audit %s %s: %w", e.Kind, e.DocID, err)
	}
	return nil
}

// Deliver appends the pending audit entry of doc and clears it from the row.
// The entry is durable once the append succeeds; if the clear fails the sweep
// appends the same ID again, which the log ignores.
func (l *Logger) Deliver(ctx context.Context, docs repository.DocumentRepository, doc *model.Document) error {
	e := doc.PendingAudit
	if e == nil {
		return nil
	}
	if err := l.Record(ctx, e); err != nil {
		return err
	}
	err := retry.Do(ctx, l.policy, func(ctx context.Context) error {
		return docs.MarkAudited(ctx, doc.ID, e.ID)
	})
	if err != nil {
		logger.For(ctx, l.log).Warn("pending audit not cleared", zap.String("doc_id", doc.ID), zap.String("audit_id", e.ID), zap.Error(err))
	}
	return nil
}
