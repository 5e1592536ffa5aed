// Package engine wires the content cache, change detector, event channel and
// file watcher into one hot-reload engine.
//
// Each Engine owns its own cache, metrics and Prometheus registry, so several
// engines can run in one process without sharing counters.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jamesainslie/hotreload/pkg/reload/cache"
	"github.com/jamesainslie/hotreload/pkg/reload/detector"
	"github.com/jamesainslie/hotreload/pkg/reload/events"
	"github.com/jamesainslie/hotreload/pkg/reload/logging"
	"github.com/jamesainslie/hotreload/pkg/reload/watcher"
)

// ErrAlreadyStarted is returned by Start when the engine is running.
var ErrAlreadyStarted = errors.New("engine already started")

// Options configures an Engine.
type Options struct {
	// Debounce is the settling period per path.
	Debounce time.Duration

	// Patterns are the default globs used by WatchDir.
	Patterns []string

	// SnapshotPath enables cache persistence in a Badger directory.
	// Entries are restored by New and saved by Close.
	SnapshotPath string

	// Notifier overrides the fsnotify-backed notifier.
	Notifier watcher.Notifier

	// OnStateChange observes watcher state transitions.
	OnStateChange func(id cache.Identity, from, to watcher.State)
}

// Engine is a running hot-reload engine.
type Engine struct {
	cache    *cache.Cache
	detector *detector.Detector
	events   *events.Broadcaster
	watcher  *watcher.Watcher
	store    *cache.Store
	registry *prometheus.Registry
	patterns []string

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// New creates an engine. Call Start to begin processing notifications.
func New(opts Options) (*Engine, error) {
	log := logging.Get("engine")

	c := cache.New()
	e := &Engine{
		cache:    c,
		detector: detector.New(c),
		events:   events.New(),
		patterns: opts.Patterns,
	}
	if len(e.patterns) == 0 {
		e.patterns = DefaultPatterns()
	}

	if opts.SnapshotPath != "" {
		store, err := cache.OpenStore(opts.SnapshotPath)
		if err != nil {
			return nil, fmt.Errorf("opening cache snapshot: %w", err)
		}
		entries, err := store.Load()
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("loading cache snapshot: %w", err)
		}
		c.Restore(entries)
		e.store = store
		log.Info("cache snapshot restored", "path", opts.SnapshotPath, "entries", len(entries))
	}

	w, err := watcher.New(e.detector, e.events, watcher.Options{
		Debounce:      opts.Debounce,
		Notifier:      opts.Notifier,
		OnStateChange: opts.OnStateChange,
	})
	if err != nil {
		if e.store != nil {
			_ = e.store.Close()
		}
		return nil, err
	}
	e.watcher = w

	e.registry = prometheus.NewRegistry()
	e.registry.MustRegister(
		cache.NewCollector(c),
		events.NewCollector(e.events),
		newStateCollector(w),
	)

	return e, nil
}

// Start runs the watcher loop in the background until Close or ctx ends.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return watcher.ErrClosed
	}
	if e.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})

	go func() {
		defer close(e.done)
		e.watcher.Run(ctx)
	}()

	logging.Get("engine").Info("engine started", "debounce", e.watcher.Debounce())
	return nil
}

// Run starts the engine and blocks until ctx is cancelled, then closes it.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return e.Close()
}

// Watch starts watching a file. See watcher.Watcher.Watch.
func (e *Engine) Watch(path string) (cache.Identity, error) {
	return e.watcher.Watch(path)
}

// Unwatch drops one reference to a watched file.
func (e *Engine) Unwatch(path string) error {
	return e.watcher.Unwatch(path)
}

// Subscribe returns a new subscription. Events published before the call
// are not replayed.
func (e *Engine) Subscribe(filter events.Filter) (*events.Subscription, error) {
	return e.events.Subscribe(filter)
}

// Metrics returns the current hit and miss counters.
func (e *Engine) Metrics() cache.MetricsSnapshot {
	return e.cache.Metrics().Snapshot()
}

// EventStats returns publication counters and the undelivered backlog.
func (e *Engine) EventStats() events.Stats {
	return e.events.Stats()
}

// State returns the debounce state of path.
func (e *Engine) State(path string) (watcher.StateInfo, bool) {
	return e.watcher.State(path)
}

// States returns the debounce state of every watched path.
func (e *Engine) States() []watcher.StateInfo {
	return e.watcher.States()
}

// Cache returns the engine's content cache.
func (e *Engine) Cache() *cache.Cache {
	return e.cache
}

// Registry returns the engine's Prometheus registry.
func (e *Engine) Registry() *prometheus.Registry {
	return e.registry
}

// Debounce returns the settling period in use.
func (e *Engine) Debounce() time.Duration {
	return e.watcher.Debounce()
}

// Close stops the watcher, closes every subscription and saves the cache
// snapshot if persistence is enabled.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	var errs []error
	if err := e.watcher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing watcher: %w", err))
	}
	if cancel != nil {
		cancel()
		<-done
	}
	e.events.Close()

	if e.store != nil {
		entries := e.cache.Entries()
		if err := e.store.Replace(entries); err != nil {
			errs = append(errs, fmt.Errorf("saving cache snapshot: %w", err))
		} else {
			logging.Get("engine").Info("cache snapshot saved", "entries", len(entries))
		}
		if err := e.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing cache snapshot: %w", err))
		}
	}

	return errors.Join(errs...)
}
