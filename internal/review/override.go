// Package review resolves documents held in pending_review.
//
// The queue consumer only surfaces work; Override is the one operation that
// changes a pending document's status.
package review

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"docgov/internal/audit"
	"docgov/internal/auth"
	"docgov/internal/logger"
	"docgov/internal/metrics"
	"docgov/internal/model"
	"docgov/internal/repository"
	"docgov/internal/retry"
)

var (
	// ErrOverrideConflict is returned when the document is no longer pending review,
	// including when a concurrent override won.
	ErrOverrideConflict = errors.New("document is not pending review")
	ErrInvalidAction    = errors.New("action must be approve or reject")
	ErrNotFound         = errors.New("document not found")
)

// Override actions.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// OverrideResult acknowledges an applied override.
type OverrideResult struct {
	DocID      string       `json:"doc_id"`
	Status     model.Status `json:"status"`
	Action     string       `json:"action"`
	ReviewerID string       `json:"reviewer_id"`
}

// Service is the reviewer override boundary.
type Service interface {
	// Override moves a pending_review document to completed (approve) or
	// rejected (reject). Exactly one of several concurrent calls succeeds.
	// The result is returned only once the override's audit entry is written.
	Override(ctx context.Context, reviewer auth.Identity, docID, action string) (*OverrideResult, error)
}

type service struct {
	docs    repository.DocumentRepository
	audit   *audit.Logger
	metrics *metrics.Governance
	retry   retry.Policy
	log     *zap.Logger
}

// NewService constructs a review Service.
func NewService(docs repository.DocumentRepository, auditLog *audit.Logger, m *metrics.Governance, policy retry.Policy, log *zap.Logger) Service {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &service{
		docs:    docs,
		audit:   auditLog,
		metrics: m,
		retry:   policy,
		log:     log.With(zap.String("component", "review")),
	}
}

func (s *service) Override(ctx context.Context, reviewer auth.Identity, docID, action string) (*OverrideResult, error) {
	if err := auth.Require(reviewer, model.RoleReviewer); err != nil {
		s.metrics.Override(action, "forbidden")
		return nil, err
	}

	var target model.Status
	switch action {
	case ActionApprove:
		target = model.StatusCompleted
	case ActionReject:
		target = model.StatusRejected
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}

	current, err := s.docs.FindByID(ctx, docID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		s.metrics.Override(action, "not_found")
		return nil, fmt.Errorf("%w: %s", ErrNotFound, docID)
	case err != nil:
		return nil, fmt.Errorf("override %s: %w", docID, err)
	}

	entry := s.audit.ApprovedEntry(current, reviewer)
	if action == ActionReject {
		entry = s.audit.RejectedEntry(current, reviewer)
	}

	var doc *model.Document
	err = retry.Do(ctx, s.retry, func(ctx context.Context) error {
		var err error
		doc, err = s.docs.Transition(ctx, docID, repository.StatusChange{
			From:  model.StatusPendingReview,
			To:    target,
			Audit: entry,
		})
		if errors.Is(err, repository.ErrConflict) || errors.Is(err, repository.ErrNotFound) {
			return retry.Permanent(err)
		}
		return err
	})
	switch {
	case errors.Is(err, repository.ErrNotFound):
		s.metrics.Override(action, "not_found")
		return nil, fmt.Errorf("%w: %s", ErrNotFound, docID)
	case errors.Is(err, repository.ErrConflict):
		s.metrics.Override(action, "conflict")
		return nil, fmt.Errorf("%w: %v", ErrOverrideConflict, err)
	case err != nil:
		return nil, fmt.Errorf("override %s: %w", docID, err)
	}
	s.metrics.Override(action, "ok")

	// The status change stands; the stored entry is re-driven by the recovery sweep.
	if err := s.audit.Deliver(ctx, s.docs, doc); err != nil {
		return nil, fmt.Errorf("record override of %s: %w", docID, err)
	}

	logger.For(ctx, s.log).Info("review override applied",
		zap.String("doc_id", docID),
		zap.String("action", action),
		zap.String("reviewer_id", reviewer.UserID),
	)
	return &OverrideResult{DocID: doc.ID, Status: doc.Status, Action: action, ReviewerID: reviewer.UserID}, nil
}
