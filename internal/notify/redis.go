package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStream implements Publisher and Stream on Redis Streams.
type RedisStream struct {
	rdb *redis.Client
}

var (
	_ Publisher = (*RedisStream)(nil)
	_ Stream    = (*RedisStream)(nil)
)

// Connect parses a redis:// URL and verifies connectivity.
func Connect(ctx context.Context, url string) (*RedisStream, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisStream{rdb: rdb}, nil
}

// NewRedisStream wraps an existing client.
func NewRedisStream(rdb *redis.Client) *RedisStream {
	return &RedisStream{rdb: rdb}
}

// Ping checks broker connectivity.
func (s *RedisStream) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (s *RedisStream) Close() error {
	return s.rdb.Close()
}

func (s *RedisStream) Publish(ctx context.Context, topic string, values map[string]string) (string, error) {
	fields := make(map[string]any, len(values))
	for k, v := range values {
		fields[k] = v
	}
	return s.rdb.XAdd(ctx, &redis.XAddArgs{Stream: topic, Values: fields}).Result()
}

func (s *RedisStream) EnsureGroup(ctx context.Context, topic, group string) error {
	err := s.rdb.XGroupCreateMkStream(ctx, topic, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s on %s: %w", group, topic, err)
	}
	return nil
}

func (s *RedisStream) ReadGroup(ctx context.Context, topic, group, consumer string, count int, block time.Duration) ([]Message, error) {
	if block <= 0 {
		block = -1
	}
	streams, err := s.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{topic, ">"},
		Count:    int64(count),
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []Message
	for _, st := range streams {
		out = append(out, convert(st.Messages)...)
	}
	return out, nil
}

func (s *RedisStream) ClaimIdle(ctx context.Context, topic, group, consumer string, minIdle time.Duration, start string, count int) ([]Message, string, error) {
	if start == "" {
		start = ScanStart
	}
	msgs, next, err := s.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   topic,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    start,
		Count:    int64(count),
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ScanStart, nil
	}
	if err != nil {
		return nil, start, err
	}
	if next == "" {
		next = ScanStart
	}
	return convert(msgs), next, nil
}

func (s *RedisStream) Ack(ctx context.Context, topic, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.rdb.XAck(ctx, topic, group, ids...).Err()
}

func convert(msgs []redis.XMessage) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		values := make(map[string]string, len(m.Values))
		for k, v := range m.Values {
			values[k] = fmt.Sprint(v)
		}
		out = append(out, Message{ID: m.ID, Values: values})
	}
	return out
}
