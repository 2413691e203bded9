// Package notify carries governance events over an at-least-once stream.
//
// Two topics are used: review_queue, drained by reviewer workers through a
// consumer group, and processed_notifications, a broadcast for downstream
// readers. Redis Streams is the production broker; Broker is an in-process
// stand-in with the same group semantics.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"docgov/internal/logger"
	"docgov/internal/model"
	"docgov/internal/retry"
)

// ErrMalformedMessage is returned when a stream entry lacks required fields.
var ErrMalformedMessage = errors.New("malformed message")

// ScanStart is the ClaimIdle cursor that begins at the oldest pending entry.
const ScanStart = "0-0"

// Message is one stream entry.
type Message struct {
	ID     string
	Values map[string]string
}

// Publisher appends entries to a topic and returns the broker-assigned ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, values map[string]string) (string, error)
}

// Stream is the consumer-group side of the broker.
type Stream interface {
	// EnsureGroup creates the group (and topic) if missing. Safe to call repeatedly.
	EnsureGroup(ctx context.Context, topic, group string) error
	// ReadGroup returns up to count never-delivered entries, waiting up to block for
	// new ones. Returned entries stay pending for consumer until acknowledged.
	ReadGroup(ctx context.Context, topic, group, consumer string, count int, block time.Duration) ([]Message, error)
	// ClaimIdle scans the group's pending entries from start in stream order and
	// transfers to consumer up to count of those idle for at least minIdle. It
	// returns the cursor for the next scan, which is ScanStart once the whole
	// pending list has been walked.
	ClaimIdle(ctx context.Context, topic, group, consumer string, minIdle time.Duration, start string, count int) ([]Message, string, error)
	// Ack removes entries from the group's pending list.
	Ack(ctx context.Context, topic, group string, ids ...string) error
}

// Notifier publishes the domain events produced by the pipeline.
type Notifier interface {
	EnqueueReview(ctx context.Context, msg model.ReviewMessage) error
	AnnounceProcessed(ctx context.Context, n model.ProcessedNotification) error
}

type notifier struct {
	pub    Publisher
	policy retry.Policy
	log    *zap.Logger
}

// NewNotifier wraps pub with bounded retries.
func NewNotifier(pub Publisher, policy retry.Policy, log *zap.Logger) Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &notifier{pub: pub, policy: policy, log: log.With(zap.String("component", "notifier"))}
}

func (n *notifier) EnqueueReview(ctx context.Context, msg model.ReviewMessage) error {
	return n.publish(ctx, model.TopicReviewQueue, msg.DocID, EncodeReview(msg))
}

func (n *notifier) AnnounceProcessed(ctx context.Context, p model.ProcessedNotification) error {
	return n.publish(ctx, model.TopicProcessedNotifications, p.DocID, EncodeProcessed(p))
}

func (n *notifier) publish(ctx context.Context, topic, docID string, values map[string]string) error {
	var id string
	err := retry.Do(ctx, n.policy, func(ctx context.Context) error {
		var err error
		id, err = n.pub.Publish(ctx, topic, values)
		return err
	})
	if err != nil {
		return fmt.Errorf("publish %s for %s: %w", topic, docID, err)
	}
	logger.For(ctx, n.log).Debug("event published",
		zap.String("topic", topic),
		zap.String("doc_id", docID),
		zap.String("entry_id", id),
	)
	return nil
}

const (
	fieldDocID     = "doc_id"
	fieldOwnerID   = "owner_id"
	fieldReason    = "reason"
	fieldDocType   = "doc_type"
	fieldTimestamp = "timestamp"
)

// EncodeReview flattens a review message into stream fields.
func EncodeReview(m model.ReviewMessage) map[string]string {
	return map[string]string{
		fieldDocID:     m.DocID,
		fieldOwnerID:   m.OwnerID,
		fieldReason:    m.Reason,
		fieldTimestamp: m.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

// DecodeReview parses stream fields written by EncodeReview.
func DecodeReview(values map[string]string) (model.ReviewMessage, error) {
	ts, err := decodeCommon(values)
	if err != nil {
		return model.ReviewMessage{}, err
	}
	return model.ReviewMessage{
		DocID:     values[fieldDocID],
		OwnerID:   values[fieldOwnerID],
		Reason:    values[fieldReason],
		Timestamp: ts,
	}, nil
}

// EncodeProcessed flattens a processed notification into stream fields.
func EncodeProcessed(n model.ProcessedNotification) map[string]string {
	return map[string]string{
		fieldDocID:     n.DocID,
		fieldOwnerID:   n.OwnerID,
		fieldDocType:   n.DocType,
		fieldTimestamp: n.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

// DecodeProcessed parses stream fields written by EncodeProcessed.
func DecodeProcessed(values map[string]string) (model.ProcessedNotification, error) {
	ts, err := decodeCommon(values)
	if err != nil {
		return model.ProcessedNotification{}, err
	}
	return model.ProcessedNotification{
		DocID:     values[fieldDocID],
		OwnerID:   values[fieldOwnerID],
		DocType:   values[fieldDocType],
		Timestamp: ts,
	}, nil
}

func decodeCommon(values map[string]string) (time.Time, error) {
	if values[fieldDocID] == "" {
		return time.Time{}, fmt.Errorf("%w: missing %s", ErrMalformedMessage, fieldDocID)
	}
	raw := values[fieldTimestamp]
	if raw == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %q", ErrMalformedMessage, raw)
	}
	return ts, nil
}
