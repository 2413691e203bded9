package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docgov/internal/lifecycle"
	"docgov/internal/model"
	"docgov/internal/repository"
)

func seedDocument(t *testing.T, r *DocumentRepo, id string, status model.Status, at time.Time) {
	t.Helper()
	_, err := r.Create(context.Background(), &model.Document{
		ID: id, OwnerID: "owner", Role: model.RoleFreeUser, Status: status, CreatedAt: at, UpdatedAt: at,
	})
	require.NoError(t, err)
}

func TestDocumentRepo_Transition(t *testing.T) {
	ctx := context.Background()
	r := NewDocumentRepo()
	seedDocument(t, r, "d1", model.StatusIngested, time.Now())

	got, err := r.Transition(ctx, "d1", repository.StatusChange{From: model.StatusIngested, To: model.StatusPendingReview, DocType: "news", Reason: "keyword_match:hate"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingReview, got.Status)
	assert.Equal(t, "news", got.DocType)

	_, err = r.Transition(ctx, "d1", repository.StatusChange{From: model.StatusIngested, To: model.StatusCompleted})
	assert.ErrorIs(t, err, repository.ErrConflict)

	_, err = r.Transition(ctx, "missing", repository.StatusChange{From: model.StatusIngested, To: model.StatusCompleted})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = r.Transition(ctx, "d1", repository.StatusChange{From: model.StatusPendingReview, To: model.StatusIngested})
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

	stored, err := r.FindByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingReview, stored.Status)
	assert.Equal(t, "keyword_match:hate", stored.Reason)
}

func TestDocumentRepo_PendingAudit(t *testing.T) {
	ctx := context.Background()
	r := NewDocumentRepo()
	base := time.Now().UTC()
	seedDocument(t, r, "d1", model.StatusIngested, base)
	seedDocument(t, r, "d2", model.StatusIngested, base)

	entry := &model.AuditEntry{ID: "a1", DocID: "d1", Kind: model.AuditFlagged, Action: model.ActionAutoReject}
	got, err := r.Transition(ctx, "d1", repository.StatusChange{From: model.StatusIngested, To: model.StatusRejected, Audit: entry})
	require.NoError(t, err)
	require.NotNil(t, got.PendingAudit)
	assert.Equal(t, "a1", got.PendingAudit.ID)

	// Callers get copies; mutating one does not reach the store.
	got.PendingAudit.Action = "tampered"

	unaudited, err := r.ListUnaudited(ctx, base.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, unaudited, 1)
	assert.Equal(t, "d1", unaudited[0].ID)
	assert.Equal(t, model.ActionAutoReject, unaudited[0].PendingAudit.Action)

	none, err := r.ListUnaudited(ctx, base.Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, r.MarkAudited(ctx, "d1", "other-entry"))
	stored, err := r.FindByID(ctx, "d1")
	require.NoError(t, err)
	assert.NotNil(t, stored.PendingAudit)

	require.NoError(t, r.MarkAudited(ctx, "d1", "a1"))
	stored, err = r.FindByID(ctx, "d1")
	require.NoError(t, err)
	assert.Nil(t, stored.PendingAudit)

	assert.ErrorIs(t, r.MarkAudited(ctx, "missing", "a1"), repository.ErrNotFound)
}

func TestAuditRepo_AppendIsIdempotentByID(t *testing.T) {
	ctx := context.Background()
	r := NewAuditRepo()
	e := &model.AuditEntry{ID: "a1", DocID: "d1", Kind: model.AuditSummarized}

	require.NoError(t, r.Append(ctx, e))
	require.NoError(t, r.Append(ctx, e))

	assert.Len(t, r.All(), 1)
}

func TestDocumentRepo_ConcurrentTransitionHasOneWinner(t *testing.T) {
	ctx := context.Background()
	r := NewDocumentRepo()
	seedDocument(t, r, "d1", model.StatusPendingReview, time.Now())

	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		to := model.StatusCompleted
		if i%2 == 0 {
			to = model.StatusRejected
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Transition(ctx, "d1", repository.StatusChange{From: model.StatusPendingReview, To: to})
			if err == nil {
				wins.Add(1)
			} else if assert.ErrorIs(t, err, repository.ErrConflict) {
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(15), conflicts.Load())
}

func TestDocumentRepo_ListAndStale(t *testing.T) {
	ctx := context.Background()
	r := NewDocumentRepo()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedDocument(t, r, "a", model.StatusIngested, base)
	seedDocument(t, r, "b", model.StatusIngested, base.Add(time.Minute))
	seedDocument(t, r, "c", model.StatusCompleted, base.Add(2*time.Minute))

	page, err := r.List(ctx, "", repository.PageQuery{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "c", page.Items[0].ID)

	page, err = r.List(ctx, model.StatusIngested, repository.PageQuery{Limit: 10, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "a", page.Items[0].ID)

	stale, err := r.ListStale(ctx, model.StatusIngested, base.Add(90*time.Second), 10)
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, "a", stale[0].ID)

	n, err := r.IncrementAttempts(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPolicyRepo_SeedIsCopied(t *testing.T) {
	seed := map[string]string{model.PolicyMaxWordsFree: "2000"}
	r := NewPolicyRepo(seed)
	seed[model.PolicyMaxWordsFree] = "1"

	got, err := r.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2000", got[model.PolicyMaxWordsFree])
}
