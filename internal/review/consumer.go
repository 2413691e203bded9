package review

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"docgov/internal/model"
	"docgov/internal/notify"
	"docgov/internal/repository"
)

// GroupName is the consumer group shared by all reviewer workers.
const GroupName = "reviewers"

// ConsumerConfig tunes one reviewer worker.
type ConsumerConfig struct {
	Name      string
	BatchSize int
	Block     time.Duration
	ClaimIdle time.Duration
}

// Consumer drains review_queue. Each message is logged for reviewers and
// stays pending until its document has left pending_review; the idle claim
// pass re-checks pending messages, so a crashed worker loses nothing and an
// unresolved document is never acknowledged away.
//
// A Consumer is driven by a single goroutine; Poll must not be called concurrently.
type Consumer struct {
	stream notify.Stream
	docs   repository.DocumentRepository
	cfg    ConsumerConfig
	log    *zap.Logger
	// where the next idle claim scan resumes
	cursor string
}

func NewConsumer(stream notify.Stream, docs repository.DocumentRepository, cfg ConsumerConfig, log *zap.Logger) *Consumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.ClaimIdle <= 0 {
		cfg.ClaimIdle = time.Minute
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{
		stream: stream,
		docs:   docs,
		cfg:    cfg,
		log:    log.With(zap.String("component", "review_consumer"), zap.String("consumer", cfg.Name)),
		cursor: notify.ScanStart,
	}
}

// Run polls until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.stream.EnsureGroup(ctx, model.TopicReviewQueue, GroupName); err != nil {
		return err
	}
	c.log.Info("review consumer started")

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			c.log.Info("review consumer stopped")
			return nil
		}
		if _, err := c.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.log.Error("review queue poll failed", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(backoff):
			}
		}
	}
}

// Poll runs one claim pass and one read pass and returns how many messages
// were acknowledged. Successive claim passes continue from where the previous
// one stopped, so every pending entry is revisited however many stay unresolved.
func (c *Consumer) Poll(ctx context.Context) (int, error) {
	claimed, next, err := c.stream.ClaimIdle(ctx, model.TopicReviewQueue, GroupName, c.cfg.Name, c.cfg.ClaimIdle, c.cursor, c.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	c.cursor = next
	acked, err := c.handle(ctx, claimed)
	if err != nil {
		return acked, err
	}

	fresh, err := c.stream.ReadGroup(ctx, model.TopicReviewQueue, GroupName, c.cfg.Name, c.cfg.BatchSize, c.cfg.Block)
	if err != nil {
		return acked, err
	}
	n, err := c.handle(ctx, fresh)
	return acked + n, err
}

func (c *Consumer) handle(ctx context.Context, msgs []notify.Message) (int, error) {
	var done []string
	for _, m := range msgs {
		if c.settled(ctx, m) {
			done = append(done, m.ID)
		}
	}
	if len(done) == 0 {
		return 0, nil
	}
	if err := c.stream.Ack(ctx, model.TopicReviewQueue, GroupName, done...); err != nil {
		return 0, err
	}
	return len(done), nil
}

// settled reports whether a message can be acknowledged.
func (c *Consumer) settled(ctx context.Context, m notify.Message) bool {
	msg, err := notify.DecodeReview(m.Values)
	if err != nil {
		c.log.Warn("dropping malformed review message", zap.String("entry_id", m.ID), zap.Error(err))
		return true
	}

	doc, err := c.docs.FindByID(ctx, msg.DocID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.log.Warn("review message for unknown document", zap.String("doc_id", msg.DocID))
		return true
	case err != nil:
		c.log.Error("review lookup failed", zap.String("doc_id", msg.DocID), zap.Error(err))
		return false
	case doc.Status != model.StatusPendingReview:
		c.log.Info("review resolved",
			zap.String("doc_id", msg.DocID),
			zap.String("status", string(doc.Status)),
		)
		return true
	}

	c.log.Info("document awaiting review",
		zap.String("doc_id", msg.DocID),
		zap.String("owner_id", msg.OwnerID),
		zap.String("reason", msg.Reason),
		zap.Time("flagged_at", msg.Timestamp),
	)
	return false
}
