package review

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docgov/internal/audit"
	"docgov/internal/auth"
	"docgov/internal/model"
	"docgov/internal/repository"
	"docgov/internal/repository/memory"
	repoMocks "docgov/internal/repository/mocks"
	"docgov/internal/retry"
)

var fastRetry = retry.Policy{MaxAttempts: 2, InitialInterval: time.Millisecond}

var reviewer = auth.Identity{UserID: "rev-1", Role: model.RoleReviewer}

func pendingDocs(t *testing.T, ids ...string) *memory.DocumentRepo {
	t.Helper()
	docs := memory.NewDocumentRepo()
	for _, id := range ids {
		_, err := docs.Create(context.Background(), &model.Document{
			ID:      id,
			OwnerID: "owner-" + id,
			Role:    model.RolePremiumUser,
			DocType: "news",
			Reason:  "keyword_match:terror",
			Status:  model.StatusPendingReview,
		})
		require.NoError(t, err)
	}
	return docs
}

func TestOverride(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		caller     auth.Identity
		docID      string
		action     string
		wantErr    error
		wantStatus model.Status
		wantKind   model.AuditKind
	}{
		{name: "approve", caller: reviewer, docID: "d1", action: ActionApprove, wantStatus: model.StatusCompleted, wantKind: model.AuditSummarized},
		{name: "reject", caller: reviewer, docID: "d1", action: ActionReject, wantStatus: model.StatusRejected, wantKind: model.AuditFlagged},
		{name: "admin is not a reviewer", caller: auth.Identity{UserID: "a", Role: model.RoleAdmin}, docID: "d1", action: ActionApprove, wantErr: auth.ErrForbidden},
		{name: "premium user forbidden", caller: auth.Identity{UserID: "p", Role: model.RolePremiumUser}, docID: "d1", action: ActionReject, wantErr: auth.ErrForbidden},
		{name: "invalid action", caller: reviewer, docID: "d1", action: "escalate", wantErr: ErrInvalidAction},
		{name: "unknown document", caller: reviewer, docID: "missing", action: ActionApprove, wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs := pendingDocs(t, "d1")
			auditRepo := memory.NewAuditRepo()
			svc := NewService(docs, audit.NewLogger(auditRepo, fastRetry, nil), nil, fastRetry, nil)

			res, err := svc.Override(ctx, tt.caller, tt.docID, tt.action)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				doc, findErr := docs.FindByID(ctx, "d1")
				require.NoError(t, findErr)
				assert.Equal(t, model.StatusPendingReview, doc.Status)
				assert.Empty(t, auditRepo.All())
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, res.Status)
			assert.Equal(t, "rev-1", res.ReviewerID)

			entries := auditRepo.All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.wantKind, entries[0].Kind)
			assert.True(t, entries[0].Override)
			assert.Equal(t, model.RoleReviewer, entries[0].Role)
			assert.Equal(t, "owner-d1", entries[0].OwnerID)
			assert.Equal(t, "rev-1", entries[0].ReviewerID)

			doc, err := docs.FindByID(ctx, "d1")
			require.NoError(t, err)
			assert.Nil(t, doc.PendingAudit)
		})
	}
}

func TestOverride_SecondCallConflicts(t *testing.T) {
	ctx := context.Background()
	docs := pendingDocs(t, "d1")
	svc := NewService(docs, audit.NewLogger(memory.NewAuditRepo(), fastRetry, nil), nil, fastRetry, nil)

	_, err := svc.Override(ctx, reviewer, "d1", ActionApprove)
	require.NoError(t, err)

	_, err = svc.Override(ctx, reviewer, "d1", ActionReject)
	assert.ErrorIs(t, err, ErrOverrideConflict)

	doc, err := docs.FindByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, doc.Status)
}

func TestOverride_ConcurrentExactlyOnce(t *testing.T) {
	ctx := context.Background()
	docs := pendingDocs(t, "d1")
	auditRepo := memory.NewAuditRepo()
	svc := NewService(docs, audit.NewLogger(auditRepo, fastRetry, nil), nil, fastRetry, nil)

	const workers = 20
	results := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		action := ActionApprove
		if i%2 == 1 {
			action = ActionReject
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Override(ctx, reviewer, "d1", action)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrOverrideConflict):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, conflicts)
	assert.Len(t, auditRepo.All(), 1)

	doc, err := docs.FindByID(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, doc.Status.Terminal())
}

func TestOverride_TransientStoreErrorIsRetried(t *testing.T) {
	ctx := context.Background()
	repo := new(repoMocks.MockDocumentRepository)
	toRejected := mock.MatchedBy(func(ch repository.StatusChange) bool {
		return ch.From == model.StatusPendingReview && ch.To == model.StatusRejected &&
			ch.Audit != nil && ch.Audit.ReviewerID == "rev-1"
	})
	repo.On("FindByID", mock.Anything, "d1").
		Return(&model.Document{ID: "d1", OwnerID: "o1", Status: model.StatusPendingReview}, nil)
	repo.On("Transition", mock.Anything, "d1", toRejected).
		Return(nil, errors.New("connection reset")).Once()
	repo.On("Transition", mock.Anything, "d1", toRejected).
		Return(&model.Document{ID: "d1", Status: model.StatusRejected}, nil).Once()

	svc := NewService(repo, audit.NewLogger(memory.NewAuditRepo(), fastRetry, nil), nil, fastRetry, nil)
	res, err := svc.Override(ctx, reviewer, "d1", ActionReject)

	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, res.Status)
	repo.AssertExpectations(t)
}

type failingAuditRepo struct{}

func (failingAuditRepo) Append(context.Context, *model.AuditEntry) error {
	return errors.New("audit store unavailable")
}

func (failingAuditRepo) ListByDocument(context.Context, string) ([]model.AuditEntry, error) {
	return nil, nil
}

func TestOverride_AuditFailureIsNotAcknowledged(t *testing.T) {
	ctx := context.Background()
	docs := pendingDocs(t, "d1")
	svc := NewService(docs, audit.NewLogger(failingAuditRepo{}, fastRetry, nil), nil, fastRetry, nil)

	res, err := svc.Override(ctx, reviewer, "d1", ActionReject)

	assert.Nil(t, res)
	require.Error(t, err)
	assert.ErrorContains(t, err, "audit store unavailable")
	assert.NotErrorIs(t, err, ErrOverrideConflict)

	// The decision is kept with its entry so the sweep can write it later.
	doc, err := docs.FindByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, doc.Status)
	require.NotNil(t, doc.PendingAudit)
	assert.Equal(t, model.ActionReviewReject, doc.PendingAudit.Action)
	assert.Equal(t, "rev-1", doc.PendingAudit.ReviewerID)

	unaudited, err := docs.ListUnaudited(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, unaudited, 1)

	auditRepo := memory.NewAuditRepo()
	require.NoError(t, audit.NewLogger(auditRepo, fastRetry, nil).Deliver(ctx, docs, &unaudited[0]))
	entries := auditRepo.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "rev-1", entries[0].ReviewerID)
}
