package events

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jamesainslie/hotreload/pkg/reload/cache"
	"github.com/jamesainslie/hotreload/pkg/reload/logging"
)

// ErrUnsubscribed is returned by Subscribe after the broadcaster is closed.
var ErrUnsubscribed = errors.New("broadcaster closed")

// Filter selects which events a subscription receives. The zero value
// matches everything.
type Filter struct {
	// Paths restricts delivery to these identities.
	Paths []cache.Identity
	// Root restricts delivery to identities under this directory.
	Root string
}

// Subscription receives events in publication order.
type Subscription struct {
	ID string

	paths map[cache.Identity]struct{}
	root  string
	queue *Queue
	b     *Broadcaster
}

// Next waits for the next event. After the subscription is closed, events
// already queued are still returned before ErrClosed.
func (s *Subscription) Next(ctx context.Context) (FileEvent, error) {
	return s.queue.Pop(ctx)
}

// Poll returns the next event if one is ready.
func (s *Subscription) Poll() (FileEvent, bool) {
	return s.queue.TryPop()
}

// Drain returns every event currently queued.
func (s *Subscription) Drain() []FileEvent {
	var out []FileEvent
	for {
		ev, ok := s.queue.TryPop()
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}

// Pending returns the number of undelivered events.
func (s *Subscription) Pending() int {
	return s.queue.Len()
}

// Close detaches the subscription from its broadcaster.
func (s *Subscription) Close() {
	s.b.Unsubscribe(s.ID)
}

// Matches reports whether the subscription wants events for id.
func (s *Subscription) Matches(id cache.Identity) bool {
	if len(s.paths) > 0 {
		if _, ok := s.paths[id]; !ok {
			return false
		}
	}
	if s.root == "" {
		return true
	}
	p := string(id)
	if !strings.HasPrefix(p, s.root) {
		return false
	}
	if strings.HasSuffix(s.root, string(filepath.Separator)) {
		return true
	}
	return len(p) == len(s.root) || p[len(s.root)] == filepath.Separator
}

// Broadcaster fans published events out to subscriptions.
type Broadcaster struct {
	mu            sync.Mutex
	subscriptions map[string]*Subscription
	closed        bool
	seq           uint64
	published     [3]int64
	now           func() time.Time
}

// New creates a new Broadcaster.
func New() *Broadcaster {
	return &Broadcaster{
		subscriptions: make(map[string]*Subscription),
		now:           time.Now,
	}
}

// Subscribe registers a subscription matching filter. A relative Root is
// resolved against the working directory.
func (b *Broadcaster) Subscribe(filter Filter) (*Subscription, error) {
	var root string
	if filter.Root != "" {
		abs, err := filepath.Abs(filter.Root)
		if err != nil {
			return nil, fmt.Errorf("resolving root %s: %w", filter.Root, err)
		}
		root = abs
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrUnsubscribed
	}

	sub := &Subscription{
		ID:    uuid.New().String(),
		queue: NewQueue(),
		b:     b,
	}
	if len(filter.Paths) > 0 {
		sub.paths = make(map[cache.Identity]struct{}, len(filter.Paths))
		for _, id := range filter.Paths {
			sub.paths[id] = struct{}{}
		}
	}
	sub.root = root

	b.subscriptions[sub.ID] = sub
	logging.Get("events").Debug("subscribed", "id", sub.ID, "paths", len(filter.Paths), "root", sub.root)
	return sub, nil
}

// Unsubscribe removes a subscription. Queued events stay readable.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscriptions[id]; ok {
		sub.queue.Close()
		delete(b.subscriptions, id)
		logging.Get("events").Debug("unsubscribed", "id", id, "pending", sub.queue.Len())
	}
}

// Publish stamps ev with a sequence number and time and enqueues it for
// every matching subscription. It never blocks on consumers.
// The stamped event is returned; ok is false once the broadcaster is closed.
func (b *Broadcaster) Publish(ev FileEvent) (FileEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ev, false
	}

	b.seq++
	h := ev.Meta()
	h.Seq = b.seq
	h.At = b.now()
	ev = ev.withHeader(h)

	if k := ev.Kind(); int(k) < len(b.published) {
		b.published[k]++
	}

	for _, sub := range b.subscriptions {
		if sub.Matches(h.Identity) {
			// Push only fails on a closed queue, which Unsubscribe removes
			// from the map under the same lock.
			_ = sub.queue.Push(ev)
		}
	}
	return ev, true
}

// Close closes the broadcaster and all subscriptions.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	for _, sub := range b.subscriptions {
		sub.queue.Close()
	}
	b.subscriptions = make(map[string]*Subscription)
}

// SubscriberCount returns the number of active subscriptions.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscriptions)
}

// Stats is a point-in-time view of publication counters.
type Stats struct {
	Changed     int64 `json:"changed"`
	Removed     int64 `json:"removed"`
	WatchErrors int64 `json:"watch_errors"`
	Subscribers int   `json:"subscribers"`
	Backlog     int   `json:"backlog"`
}

// Stats returns the publication counters and the total undelivered backlog.
func (b *Broadcaster) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Stats{
		Changed:     b.published[KindChanged],
		Removed:     b.published[KindRemoved],
		WatchErrors: b.published[KindWatchError],
		Subscribers: len(b.subscriptions),
	}
	for _, sub := range b.subscriptions {
		s.Backlog += sub.queue.Len()
	}
	return s
}
