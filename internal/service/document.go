package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"docgov/internal/audit"
	"docgov/internal/auth"
	"docgov/internal/classify"
	"docgov/internal/extract"
	"docgov/internal/governance"
	"docgov/internal/lifecycle"
	"docgov/internal/logger"
	"docgov/internal/metrics"
	"docgov/internal/model"
	"docgov/internal/notify"
	"docgov/internal/repository"
	"docgov/internal/retry"
	"docgov/internal/storage"
	"docgov/internal/summarize"
)

var (
	ErrIDRequired      = errors.New("id is required")
	ErrNotFound        = errors.New("document not found")
	ErrReaderNil       = errors.New("reader is nil")
	ErrContentRejected = errors.New("content rejected")
)

// RejectionError is returned by Submit when governance rejects a document.
// It unwraps to ErrContentRejected.
type RejectionError struct {
	DocID  string
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("document %s rejected: %s", e.DocID, e.Reason)
}

func (e *RejectionError) Unwrap() error { return ErrContentRejected }

// SubmitInput is one upload from an authenticated caller.
type SubmitInput struct {
	Caller      auth.Identity
	Filename    string
	ContentType string
	Body        io.Reader
}

// SubmitResult is the non-rejected outcome of a submission.
type SubmitResult struct {
	Status model.Status `json:"status"`
	DocID  string       `json:"doc_id"`
	Reason string       `json:"reason,omitempty"`
}

// DocumentView is a document as returned to API callers.
type DocumentView struct {
	model.Document
	Summary     *model.Summary `json:"summary,omitempty"`
	DownloadURL string         `json:"download_url,omitempty"`
}

// DocumentListResult is the service-level DTO for paginated documents.
type DocumentListResult struct {
	Items []model.Document `json:"data"`
	Total int              `json:"total"`
}

// TemplateSource resolves the summarization instruction for a document type.
type TemplateSource interface {
	TemplateFor(docType string) (string, bool)
}

// DocumentService runs the governance pipeline.
type DocumentService interface {
	// Submit stores the upload, records it as ingested and drives it to
	// completed, pending_review or rejected. A rejection is returned as a
	// *RejectionError only after its audit entry has been written; when the
	// audit write fails a plain error is returned instead.
	Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error)

	// Get returns a document to its owner, a Reviewer or an Admin.
	Get(ctx context.Context, caller auth.Identity, id string) (*DocumentView, error)

	// List returns documents filtered by status ("" for all). Reviewer and Admin only.
	List(ctx context.Context, caller auth.Identity, status model.Status, limit, offset int) (*DocumentListResult, error)

	// RecoverStale re-drives documents left in ingested longer than the
	// configured threshold and delivers audit entries that never reached the
	// log. It returns how many documents it resolved or audited.
	RecoverStale(ctx context.Context) (int, error)
}

// RecoveryOptions bounds the stale-document sweep.
type RecoveryOptions struct {
	StaleAfter  time.Duration
	MaxAttempts int
	BatchSize   int
}

// Dependencies wires a DocumentService.
type Dependencies struct {
	Store         storage.Storage
	Documents     repository.DocumentRepository
	Summaries     repository.SummaryRepository
	Engine        *governance.Engine
	Templates     TemplateSource
	Extractor     extract.Extractor
	Summarizer    summarize.Summarizer
	Notifier      notify.Notifier
	Audit         *audit.Logger
	Metrics       *metrics.Governance
	Retry         retry.Policy
	Recovery      RecoveryOptions
	PresignExpiry time.Duration
	Logger        *zap.Logger
}

// documentService is a concrete implementation of DocumentService.
type documentService struct {
	store      storage.Storage
	docs       repository.DocumentRepository
	summaries  repository.SummaryRepository
	engine     *governance.Engine
	templates  TemplateSource
	extractor  extract.Extractor
	summarizer summarize.Summarizer
	notifier   notify.Notifier
	audit      *audit.Logger
	metrics    *metrics.Governance
	retry      retry.Policy
	recovery   RecoveryOptions
	presign    time.Duration
	log        *zap.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// NewDocumentService constructs a new DocumentService.
func NewDocumentService(d Dependencies) DocumentService {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	m := d.Metrics
	if m == nil {
		m = metrics.Nop()
	}
	presign := d.PresignExpiry
	if presign <= 0 {
		presign = 15 * time.Minute
	}
	return &documentService{
		store:      d.Store,
		docs:       d.Documents,
		summaries:  d.Summaries,
		engine:     d.Engine,
		templates:  d.Templates,
		extractor:  d.Extractor,
		summarizer: d.Summarizer,
		notifier:   d.Notifier,
		audit:      d.Audit,
		metrics:    m,
		retry:      d.Retry,
		recovery:   d.Recovery,
		presign:    presign,
		log:        log.With(zap.String("component", "pipeline")),
		tracer:     otel.Tracer("docgov/service"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *documentService) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	if in.Body == nil {
		return nil, ErrReaderNil
	}
	ctx, span := s.tracer.Start(ctx, "document.submit",
		trace.WithAttributes(attribute.String("role", in.Caller.Role.String())))
	defer span.End()

	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	docID := uuid.NewString()
	filename := path.Base(strings.ReplaceAll(in.Filename, "\\", "/"))
	key := storage.DocumentKey(docID, filename)
	span.SetAttributes(attribute.String("doc_id", docID))

	if _, err := s.store.Put(ctx, key, bytes.NewReader(data), storage.PutObjectOptions{
		Size:        int64(len(data)),
		ContentType: in.ContentType,
		Metadata: map[string]string{
			"original-filename": filename,
			"owner-id":          in.Caller.UserID,
		},
	}); err != nil {
		return nil, fmt.Errorf("upload to storage: %w", err)
	}

	now := s.now()
	doc := &model.Document{
		ID:          docID,
		OwnerID:     in.Caller.UserID,
		Role:        in.Caller.Role,
		Filename:    filename,
		ContentType: in.ContentType,
		StorageKey:  key,
		RawText:     s.extractor.Extract(ctx, data, in.ContentType, filename),
		Status:      model.StatusIngested,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var stored *model.Document
	err = s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		stored, err = s.docs.Create(ctx, doc)
		return err
	})
	if err != nil {
		// Rollback: the row was never written so the object is orphaned.
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			return nil, fmt.Errorf("db save failed: %v; rollback delete failed: %v", err, delErr)
		}
		return nil, fmt.Errorf("db save failed: %w", err)
	}
	doc = stored

	logger.For(ctx, s.log).Info("document ingested",
		zap.String("doc_id", doc.ID),
		zap.String("owner_id", doc.OwnerID),
		zap.String("role", doc.Role.String()),
		zap.Int("bytes", len(data)),
	)

	// Past this point the row is durable; a caller disconnect must not
	// abandon the document short of a decision.
	return s.process(context.WithoutCancel(ctx), doc)
}

// process classifies and evaluates an ingested document and applies the
// decision: status first, then events, then audit.
func (s *documentService) process(ctx context.Context, doc *model.Document) (*SubmitResult, error) {
	ctx, span := s.tracer.Start(ctx, "document.process", trace.WithAttributes(attribute.String("doc_id", doc.ID)))
	defer span.End()

	docType := classify.Classify(doc.RawText)
	decision := s.engine.Evaluate(doc.RawText, doc.Role)
	span.SetAttributes(
		attribute.String("doc_type", docType),
		attribute.String("decision", string(decision.Kind)),
	)

	if decision.Kind == model.DecisionProceed {
		return s.complete(ctx, doc, docType)
	}

	target := lifecycle.TargetFor(decision)
	action := model.ActionFlaggedForReview
	if decision.Kind == model.DecisionReject {
		action = model.ActionAutoReject
	}
	updated, err := s.transition(ctx, doc.ID, repository.StatusChange{
		To:      target,
		DocType: docType,
		Reason:  decision.Reason,
		Audit:   s.audit.FlaggedEntry(doc, decision.Reason, action),
	})
	if err != nil {
		return s.resolveLost(ctx, doc.ID, err)
	}
	s.metrics.Decision(decision, updated.Role, docType)

	if decision.Kind == model.DecisionReject {
		if err := s.audit.Deliver(ctx, s.docs, updated); err != nil {
			return nil, fmt.Errorf("record rejection of %s: %w", updated.ID, err)
		}
		logger.For(ctx, s.log).Info("document rejected",
			zap.String("doc_id", updated.ID),
			zap.String("reason", decision.Reason),
		)
		return nil, &RejectionError{DocID: updated.ID, Reason: decision.Reason}
	}

	if err := s.notifier.EnqueueReview(ctx, model.ReviewMessage{
		DocID:     updated.ID,
		OwnerID:   updated.OwnerID,
		Reason:    decision.Reason,
		Timestamp: updated.UpdatedAt,
	}); err != nil {
		// The document stays pending_review and is still listed for reviewers.
		s.metrics.PublishFailed(model.TopicReviewQueue)
		logger.For(ctx, s.log).Error("review enqueue failed", zap.String("doc_id", updated.ID), zap.Error(err))
	}
	if err := s.audit.Deliver(ctx, s.docs, updated); err != nil {
		return nil, fmt.Errorf("record review hand-off of %s: %w", updated.ID, err)
	}
	logger.For(ctx, s.log).Info("document flagged for review",
		zap.String("doc_id", updated.ID),
		zap.String("reason", decision.Reason),
	)
	return &SubmitResult{Status: updated.Status, DocID: updated.ID, Reason: decision.Reason}, nil
}

func (s *documentService) complete(ctx context.Context, doc *model.Document, docType string) (*SubmitResult, error) {
	instruction, _ := s.templates.TemplateFor(docType)
	res, err := s.summarizer.Summarize(ctx, doc.RawText, instruction, docType)
	if err != nil {
		return nil, fmt.Errorf("summarize %s: %w", doc.ID, err)
	}

	summary := &model.Summary{
		DocID:       doc.ID,
		SummaryText: res.Summary,
		NotesJSON:   res.Notes,
		CreatedAt:   s.now(),
	}
	if err := s.withRetry(ctx, func(ctx context.Context) error {
		return s.summaries.Upsert(ctx, summary)
	}); err != nil {
		return nil, fmt.Errorf("store summary %s: %w", doc.ID, err)
	}

	updated, err := s.transition(ctx, doc.ID, repository.StatusChange{
		To:      model.StatusCompleted,
		DocType: docType,
		Audit:   s.audit.SummarizedEntry(doc, docType, len(res.Summary)),
	})
	if err != nil {
		return s.resolveLost(ctx, doc.ID, err)
	}
	s.metrics.Decision(model.Proceed(), updated.Role, docType)

	if err := s.notifier.AnnounceProcessed(ctx, model.ProcessedNotification{
		DocID:     updated.ID,
		OwnerID:   updated.OwnerID,
		DocType:   docType,
		Timestamp: updated.UpdatedAt,
	}); err != nil {
		s.metrics.PublishFailed(model.TopicProcessedNotifications)
		logger.For(ctx, s.log).Error("processed notification failed", zap.String("doc_id", updated.ID), zap.Error(err))
	}
	if err := s.audit.Deliver(ctx, s.docs, updated); err != nil {
		return nil, fmt.Errorf("record completion of %s: %w", updated.ID, err)
	}
	logger.For(ctx, s.log).Info("document completed",
		zap.String("doc_id", updated.ID),
		zap.String("doc_type", docType),
	)
	return &SubmitResult{Status: updated.Status, DocID: updated.ID}, nil
}

// transition applies ch to a document that must still be ingested.
func (s *documentService) transition(ctx context.Context, id string, ch repository.StatusChange) (*model.Document, error) {
	ch.From = model.StatusIngested
	var updated *model.Document
	err := s.withRetry(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.docs.Transition(ctx, id, ch)
		return err
	})
	return updated, err
}

// resolveLost handles a failed ingested -> X transition. When another worker
// already moved the document, its outcome is reported without repeating the
// side effects other than making sure its audit entry is in the log; any
// other failure leaves the row ingested for the sweep.
func (s *documentService) resolveLost(ctx context.Context, id string, err error) (*SubmitResult, error) {
	if !errors.Is(err, repository.ErrConflict) {
		return nil, fmt.Errorf("transition %s: %w", id, err)
	}
	current, findErr := s.docs.FindByID(ctx, id)
	if findErr != nil {
		return nil, fmt.Errorf("transition %s: %w", id, err)
	}
	logger.For(ctx, s.log).Debug("document already resolved by another worker",
		zap.String("doc_id", id),
		zap.String("status", string(current.Status)),
	)
	if err := s.audit.Deliver(ctx, s.docs, current); err != nil {
		return nil, fmt.Errorf("record outcome of %s: %w", id, err)
	}
	if current.Status == model.StatusRejected {
		return nil, &RejectionError{DocID: id, Reason: current.Reason}
	}
	return &SubmitResult{Status: current.Status, DocID: id, Reason: current.Reason}, nil
}

func (s *documentService) withRetry(ctx context.Context, op func(context.Context) error) error {
	return retry.Do(ctx, s.retry, func(ctx context.Context) error {
		err := op(ctx)
		if errors.Is(err, repository.ErrConflict) ||
			errors.Is(err, repository.ErrNotFound) ||
			errors.Is(err, lifecycle.ErrInvalidTransition) {
			return retry.Permanent(err)
		}
		return err
	})
}

func (s *documentService) Get(ctx context.Context, caller auth.Identity, id string) (*DocumentView, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	doc, err := s.docs.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if doc.OwnerID != caller.UserID {
		if err := auth.Require(caller, model.RoleReviewer, model.RoleAdmin); err != nil {
			return nil, err
		}
	}

	view := &DocumentView{Document: *doc}
	if doc.Status == model.StatusCompleted {
		sum, err := s.summaries.FindByDocID(ctx, id)
		switch {
		case err == nil:
			view.Summary = sum
		case !errors.Is(err, repository.ErrNotFound):
			return nil, err
		}
	}

	u, err := s.store.PresignGet(ctx, doc.StorageKey, s.presign)
	if err != nil {
		logger.For(ctx, s.log).Warn("presign failed", zap.String("doc_id", id), zap.Error(err))
	} else {
		view.DownloadURL = u
	}
	return view, nil
}

// List returns paginated documents without exposing repository types.
func (s *documentService) List(ctx context.Context, caller auth.Identity, status model.Status, limit, offset int) (*DocumentListResult, error) {
	if err := auth.Require(caller, model.RoleReviewer, model.RoleAdmin); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	res, err := s.docs.List(ctx, status, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &DocumentListResult{Items: res.Items, Total: res.Total}, nil
}

func (s *documentService) RecoverStale(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.recovery.StaleAfter)
	delivered, err := s.redeliverAudits(ctx, cutoff)
	if err != nil {
		return delivered, err
	}

	stale, err := s.docs.ListStale(ctx, model.StatusIngested, cutoff, s.recovery.BatchSize)
	if err != nil {
		return delivered, fmt.Errorf("list stale documents: %w", err)
	}

	resolved := 0
	for i := range stale {
		if err := ctx.Err(); err != nil {
			return delivered + resolved, err
		}
		doc := &stale[i]
		if s.recovery.MaxAttempts > 0 && doc.Attempts >= s.recovery.MaxAttempts {
			logger.For(ctx, s.log).Warn("stale document exceeded recovery attempts",
				zap.String("doc_id", doc.ID),
				zap.Int("attempts", doc.Attempts),
			)
			continue
		}
		if _, err := s.docs.IncrementAttempts(ctx, doc.ID); err != nil {
			logger.For(ctx, s.log).Error("recovery attempt not recorded", zap.String("doc_id", doc.ID), zap.Error(err))
			continue
		}

		_, err := s.process(ctx, doc)
		var rejected *RejectionError
		if err != nil && !errors.As(err, &rejected) {
			logger.For(ctx, s.log).Error("recovery failed", zap.String("doc_id", doc.ID), zap.Error(err))
			continue
		}
		resolved++
		s.metrics.Recovered()
	}
	if len(stale) > 0 || delivered > 0 {
		logger.For(ctx, s.log).Info("recovery sweep finished",
			zap.Int("stale", len(stale)),
			zap.Int("resolved", resolved),
			zap.Int("audits_delivered", delivered),
		)
	}
	return delivered + resolved, nil
}

// redeliverAudits appends audit entries that were stored with a status change
// but never reached the log.
func (s *documentService) redeliverAudits(ctx context.Context, cutoff time.Time) (int, error) {
	pending, err := s.docs.ListUnaudited(ctx, cutoff, s.recovery.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list unaudited documents: %w", err)
	}
	delivered := 0
	for i := range pending {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		if err := s.audit.Deliver(ctx, s.docs, &pending[i]); err != nil {
			logger.For(ctx, s.log).Error("audit redelivery failed", zap.String("doc_id", pending[i].ID), zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered, nil
}
