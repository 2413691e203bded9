package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Broker is an in-process Publisher and Stream. Entries are kept for the
// life of the process; pending entries behave like Redis consumer-group PEL
// entries and are redelivered through ClaimIdle until acknowledged.
type Broker struct {
	mu     sync.Mutex
	seq    uint64
	topics map[string]*topic
	now    func() time.Time
}

type topic struct {
	entries []Message
	groups  map[string]*group
	// closed and replaced on every publish to wake blocked readers
	signal chan struct{}
}

type group struct {
	next    int
	pending map[string]*pendingEntry
}

type pendingEntry struct {
	msg         Message
	consumer    string
	deliveredAt time.Time
	deliveries  int
}

var (
	_ Publisher = (*Broker)(nil)
	_ Stream    = (*Broker)(nil)
)

func NewBroker() *Broker {
	return &Broker{topics: make(map[string]*topic), now: time.Now}
}

func (b *Broker) topicLocked(name string) *topic {
	t, ok := b.topics[name]
	if !ok {
		t = &topic{groups: make(map[string]*group), signal: make(chan struct{})}
		b.topics[name] = t
	}
	return t
}

func (b *Broker) Publish(ctx context.Context, name string, values map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	id := fmt.Sprintf("%d-0", b.seq)
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}

	t := b.topicLocked(name)
	t.entries = append(t.entries, Message{ID: id, Values: copied})
	close(t.signal)
	t.signal = make(chan struct{})
	return id, nil
}

func (b *Broker) EnsureGroup(ctx context.Context, name, groupName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.topicLocked(name)
	if _, ok := t.groups[groupName]; !ok {
		t.groups[groupName] = &group{pending: make(map[string]*pendingEntry)}
	}
	return nil
}

func (b *Broker) ReadGroup(ctx context.Context, name, groupName, consumer string, count int, block time.Duration) ([]Message, error) {
	var deadline <-chan time.Time
	if block > 0 {
		timer := time.NewTimer(block)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		b.mu.Lock()
		t := b.topicLocked(name)
		g, ok := t.groups[groupName]
		if !ok {
			b.mu.Unlock()
			return nil, fmt.Errorf("NOGROUP no such consumer group %s for %s", groupName, name)
		}
		if g.next < len(t.entries) {
			out := b.deliverLocked(t, g, consumer, count)
			b.mu.Unlock()
			return out, nil
		}
		wake := t.signal
		b.mu.Unlock()

		if deadline == nil {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, nil
		case <-wake:
		}
	}
}

func (b *Broker) deliverLocked(t *topic, g *group, consumer string, count int) []Message {
	end := len(t.entries)
	if count > 0 && g.next+count < end {
		end = g.next + count
	}
	now := b.now()
	out := make([]Message, 0, end-g.next)
	for _, m := range t.entries[g.next:end] {
		g.pending[m.ID] = &pendingEntry{msg: m, consumer: consumer, deliveredAt: now, deliveries: 1}
		out = append(out, m)
	}
	g.next = end
	return out
}

// ClaimIdle follows XAUTOCLAIM: it walks pending entries with IDs at or
// after start and returns the ID where the next scan should resume.
func (b *Broker) ClaimIdle(ctx context.Context, name, groupName, consumer string, minIdle time.Duration, start string, count int) ([]Message, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, start, err
	}
	from, err := entrySeq(start)
	if err != nil {
		return nil, start, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topicLocked(name)
	g, ok := t.groups[groupName]
	if !ok {
		return nil, start, fmt.Errorf("NOGROUP no such consumer group %s for %s", groupName, name)
	}

	now := b.now()
	var out []Message
	scanned := 0
	for _, m := range t.entries {
		p, ok := g.pending[m.ID]
		if !ok {
			continue
		}
		seq, _ := entrySeq(m.ID)
		if seq < from {
			continue
		}
		if count > 0 && scanned >= count {
			return out, m.ID, nil
		}
		scanned++
		if now.Sub(p.deliveredAt) < minIdle {
			continue
		}
		p.consumer = consumer
		p.deliveredAt = now
		p.deliveries++
		out = append(out, p.msg)
	}
	return out, ScanStart, nil
}

// entrySeq parses the sequence part of a "<seq>-0" entry ID.
func entrySeq(id string) (uint64, error) {
	if id == "" {
		return 0, nil
	}
	seq, _, _ := strings.Cut(id, "-")
	n, err := strconv.ParseUint(seq, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid stream id %q: %w", id, err)
	}
	return n, nil
}

func (b *Broker) Ack(ctx context.Context, name, groupName string, ids ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.topicLocked(name).groups[groupName]
	if !ok {
		return nil
	}
	for _, id := range ids {
		delete(g.pending, id)
	}
	return nil
}

// Entries returns a copy of everything published on a topic.
func (b *Broker) Entries(name string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[name]
	if !ok {
		return nil
	}
	return append([]Message(nil), t.entries...)
}

// Pending returns the number of unacknowledged entries for a group.
func (b *Broker) Pending(name, groupName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[name]
	if !ok {
		return 0
	}
	g, ok := t.groups[groupName]
	if !ok {
		return 0
	}
	return len(g.pending)
}
