// Package bus implements an in-process, many-publisher many-subscriber
// fan-out keyed by channel name, with bounded per-subscriber queues and a
// drop-oldest overflow policy. The registry mutex covers only
// subscribe/unsubscribe/publish bookkeeping, never the per-queue
// put/get, so a blocked consumer can never stall the registry.
package bus

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/tradewithmeai/cryptolake/internal/model"
)

// ChannelAll is the wildcard channel every event is also published to.
const ChannelAll = "all"

// ChannelFor returns the per-symbol channel name for a stream kind, e.g.
// "trade:BTCUSDT".
func ChannelFor(kind model.StreamKind, symbol string) string {
	return string(kind) + ":" + symbol
}

// Queue is a bounded FIFO owned by exactly one subscriber. Overflow is
// drop-oldest: the oldest queued element is evicted to make room for the
// newest, so a slow consumer never stalls the publisher and never loses
// the freshest information.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []model.CanonicalEvent
	cap     int
	closed  bool
	dropped uint64
}

func newQueue(capacity int) *Queue {
	q := &Queue{cap: capacity, items: make([]model.CanonicalEvent, 0, capacity)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push enqueues ev, dropping the oldest element first if the queue is
// full. Returns true if an element was dropped.
func (q *Queue) push(ev model.CanonicalEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := false
	if len(q.items) >= q.cap {
		q.items = q.items[1:]
		q.dropped++
		dropped = true
	}
	q.items = append(q.items, ev)
	q.cond.Signal()
	return dropped
}

// Read blocks until an event is available or the queue is closed, in
// which case it returns (zero, false).
func (q *Queue) Read() (model.CanonicalEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return model.CanonicalEvent{}, false
	}
	ev := q.items[0]
	q.items = q.items[1:]
	return ev, true
}

// TryRead returns immediately with (zero, false) if nothing is queued.
func (q *Queue) TryRead() (model.CanonicalEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return model.CanonicalEvent{}, false
	}
	ev := q.items[0]
	q.items = q.items[1:]
	return ev, true
}

// Dropped returns the number of events evicted by drop-oldest so far.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *Queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Bus is the in-process pub/sub registry.
type Bus struct {
	maxQueue int

	mu   sync.Mutex
	subs map[string]map[*Queue]struct{}
}

// New constructs a Bus whose subscriber queues each hold up to maxQueue
// events before drop-oldest kicks in.
func New(maxQueue int) *Bus {
	if maxQueue <= 0 {
		maxQueue = 1000
	}
	return &Bus{maxQueue: maxQueue, subs: make(map[string]map[*Queue]struct{})}
}

// Subscribe allocates a bounded queue and registers it against channel.
func (b *Bus) Subscribe(channel string) *Queue {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := newQueue(b.maxQueue)
	set, ok := b.subs[channel]
	if !ok {
		set = make(map[*Queue]struct{})
		b.subs[channel] = set
	}
	set[q] = struct{}{}
	return q
}

// Unsubscribe removes the registration; the queue becomes
// garbage-collectable once its last registration is removed.
func (b *Bus) Unsubscribe(channel string, q *Queue) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if set, ok := b.subs[channel]; ok {
		delete(set, q)
		if len(set) == 0 {
			delete(b.subs, channel)
		}
	}
	q.close()
}

// Publish is synchronous and non-blocking: it never waits on a
// subscriber. Every registered queue on the channel either gains room or
// has its oldest element dropped.
func (b *Bus) Publish(channel string, ev model.CanonicalEvent) {
	b.mu.Lock()
	set := b.subs[channel]
	queues := make([]*Queue, 0, len(set))
	for q := range set {
		queues = append(queues, q)
	}
	b.mu.Unlock()

	for _, q := range queues {
		if q.push(ev) {
			log.Debug().Str("channel", channel).Msg("bus: queue full, dropped oldest")
		}
	}
}

// PublishEvent fans ev out to both its specific channel
// (<stream_kind>:<SYMBOL>) and the wildcard "all" channel.
func (b *Bus) PublishEvent(ev model.CanonicalEvent) {
	b.Publish(ChannelFor(ev.StreamKind, ev.Symbol), ev)
	b.Publish(ChannelAll, ev)
}

// SubscriberCount reports how many queues are registered on a channel,
// used by the health reporter for observability.
func (b *Bus) SubscriberCount(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[channel])
}
