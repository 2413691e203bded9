// Package memory provides in-process repository implementations used by
// local runs and tests. They honour the same contracts as the postgres
// implementations, including conditional status transitions.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"docgov/internal/lifecycle"
	"docgov/internal/model"
	"docgov/internal/repository"
)

// DocumentRepo is a mutex-guarded DocumentRepository.
type DocumentRepo struct {
	mu   sync.RWMutex
	docs map[string]model.Document
	now  func() time.Time
}

func NewDocumentRepo() *DocumentRepo {
	return &DocumentRepo{
		docs: make(map[string]model.Document),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

var _ repository.DocumentRepository = (*DocumentRepo)(nil)

func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[doc.ID]; ok {
		return nil, fmt.Errorf("document %s already exists: %w", doc.ID, repository.ErrConflict)
	}
	r.docs[doc.ID] = *cloneDocument(*doc)
	return cloneDocument(*doc), nil
}

func (r *DocumentRepo) FindByID(ctx context.Context, id string) (*model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneDocument(d), nil
}

func (r *DocumentRepo) Transition(ctx context.Context, id string, ch repository.StatusChange) (*model.Document, error) {
	if err := lifecycle.Validate(ch.From, ch.To); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if d.Status != ch.From {
		return nil, fmt.Errorf("document %s is %s, not %s: %w", id, d.Status, ch.From, repository.ErrConflict)
	}
	d.Status = ch.To
	if ch.DocType != "" {
		d.DocType = ch.DocType
	}
	if ch.Reason != "" {
		d.Reason = ch.Reason
	}
	d.PendingAudit = copyEntry(ch.Audit)
	d.UpdatedAt = r.now()
	r.docs[id] = d
	return cloneDocument(d), nil
}

func (r *DocumentRepo) MarkAudited(ctx context.Context, id, auditID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return repository.ErrNotFound
	}
	if d.PendingAudit != nil && d.PendingAudit.ID == auditID {
		d.PendingAudit = nil
		r.docs[id] = d
	}
	return nil
}

func (r *DocumentRepo) ListUnaudited(ctx context.Context, olderThan time.Time, limit int) ([]model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	var out []model.Document
	for _, d := range r.docs {
		if d.PendingAudit != nil && d.UpdatedAt.Before(olderThan) {
			out = append(out, *cloneDocument(d))
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneDocument(d model.Document) *model.Document {
	d.PendingAudit = copyEntry(d.PendingAudit)
	return &d
}

func copyEntry(e *model.AuditEntry) *model.AuditEntry {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

func (r *DocumentRepo) List(ctx context.Context, status model.Status, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	matched := make([]model.Document, 0, len(r.docs))
	for _, d := range r.docs {
		if status == "" || d.Status == status {
			matched = append(matched, *cloneDocument(d))
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := min(max(pq.Offset, 0), total)
	end := total
	if pq.Limit > 0 {
		end = min(start+pq.Limit, total)
	}
	return &repository.PageResult[model.Document]{Items: matched[start:end], Total: total}, nil
}

func (r *DocumentRepo) ListStale(ctx context.Context, status model.Status, olderThan time.Time, limit int) ([]model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	var out []model.Document
	for _, d := range r.docs {
		if d.Status == status && d.UpdatedAt.Before(olderThan) {
			out = append(out, *cloneDocument(d))
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *DocumentRepo) IncrementAttempts(ctx context.Context, id string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	d.Attempts++
	r.docs[id] = d
	return d.Attempts, nil
}

// SummaryRepo keeps one summary per document.
type SummaryRepo struct {
	mu        sync.RWMutex
	summaries map[string]model.Summary
}

func NewSummaryRepo() *SummaryRepo {
	return &SummaryRepo{summaries: make(map[string]model.Summary)}
}

var _ repository.SummaryRepository = (*SummaryRepo)(nil)

func (r *SummaryRepo) Upsert(ctx context.Context, s *model.Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries[s.DocID] = *s
	return nil
}

func (r *SummaryRepo) FindByDocID(ctx context.Context, docID string) (*model.Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.summaries[docID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

// PolicyRepo is a key/value policy store.
type PolicyRepo struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewPolicyRepo returns a store pre-populated with seed. seed is copied.
func NewPolicyRepo(seed map[string]string) *PolicyRepo {
	values := make(map[string]string, len(seed))
	for k, v := range seed {
		values[k] = v
	}
	return &PolicyRepo{values: values}
}

var _ repository.PolicyRepository = (*PolicyRepo)(nil)

func (r *PolicyRepo) FetchAll(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out, nil
}

func (r *PolicyRepo) Upsert(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = value
	return nil
}

// AuditRepo is an append-only slice of entries.
type AuditRepo struct {
	mu      sync.RWMutex
	entries []model.AuditEntry
}

func NewAuditRepo() *AuditRepo {
	return &AuditRepo{}
}

var _ repository.AuditRepository = (*AuditRepo)(nil)

func (r *AuditRepo) Append(ctx context.Context, e *model.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.entries {
		if existing.ID == e.ID {
			return nil
		}
	}
	r.entries = append(r.entries, *e)
	return nil
}

func (r *AuditRepo) ListByDocument(ctx context.Context, docID string) ([]model.AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.AuditEntry
	for _, e := range r.entries {
		if e.DocID == docID {
			out = append(out, e)
		}
	}
	return out, nil
}

// All returns a copy of every entry in append order.
func (r *AuditRepo) All() []model.AuditEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.AuditEntry(nil), r.entries...)
}
