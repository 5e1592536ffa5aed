// Package watcher turns bursts of raw filesystem notifications into at most
// one classified event per path per settling period.
//
// Each watched file has its own debounce state machine:
//
//	Idle -> Pending -> Emitting -> Idle
//
// Events arriving while Pending restart the countdown. Events arriving while
// Emitting mark the path dirty so it re-enters Pending once the emission
// finishes; a path never has two emissions in flight, which keeps per-path
// order intact. When the window closes the watcher reads the file's final
// on-disk state, so a modify-then-delete settles to Removed and a
// delete-then-recreate settles to a single Changed.
//
// The OS watch is installed on the file's parent directory. Editors that save
// by renaming a temp file over the target keep being observed.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jamesainslie/hotreload/pkg/reload/cache"
	"github.com/jamesainslie/hotreload/pkg/reload/detector"
	"github.com/jamesainslie/hotreload/pkg/reload/events"
	"github.com/jamesainslie/hotreload/pkg/reload/logging"
)

// DefaultDebounce is the settling period used when none is configured.
const DefaultDebounce = 75 * time.Millisecond

var (
	// ErrWatchInstall wraps failures to establish an OS watch.
	ErrWatchInstall = errors.New("watch installation failed")
	// ErrWatchLost is reported when a watched file's directory disappears.
	ErrWatchLost = errors.New("watch lost")
	// ErrNotWatched is returned by Unwatch for unknown paths.
	ErrNotWatched = errors.New("path not watched")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("watcher closed")
)

// Settler reads and classifies the settled state of a file.
type Settler interface {
	Settle(id cache.Identity) detector.Result
	Forget(id cache.Identity) bool
}

// Options configures a Watcher.
type Options struct {
	// Debounce is the settling period. Zero uses DefaultDebounce.
	Debounce time.Duration

	// Notifier overrides the fsnotify-backed notifier.
	Notifier Notifier

	// OnStateChange is called with the watcher lock held on every
	// transition. It must not call back into the Watcher.
	OnStateChange func(id cache.Identity, from, to State)
}

// Watcher owns one debounce state machine per watched file.
type Watcher struct {
	debounce      time.Duration
	notifier      Notifier
	settler       Settler
	events        *events.Broadcaster
	onStateChange func(cache.Identity, State, State)
	now           func() time.Time

	mu     sync.Mutex
	paths  map[cache.Identity]*pathState
	dirs   map[string]int
	closed bool
	wg     sync.WaitGroup
}

// New creates a Watcher that settles files with s and publishes to b.
func New(s Settler, b *events.Broadcaster, opts Options) (*Watcher, error) {
	n := opts.Notifier
	if n == nil {
		var err error
		n, err = NewNotifier()
		if err != nil {
			return nil, fmt.Errorf("creating notifier: %w", err)
		}
	}

	d := opts.Debounce
	if d <= 0 {
		d = DefaultDebounce
	}

	return &Watcher{
		debounce:      d,
		notifier:      n,
		settler:       s,
		events:        b,
		onStateChange: opts.OnStateChange,
		now:           time.Now,
		paths:         make(map[cache.Identity]*pathState),
		dirs:          make(map[string]int),
	}, nil
}

// Debounce returns the settling period.
func (w *Watcher) Debounce() time.Duration {
	return w.debounce
}

// Watch starts watching a file. Watching a path that is already watched
// adds a reference to the existing state machine and OS watch.
//
// If the watch cannot be installed a terminal WatchError is published, the
// path enters StateFailed, and the returned error wraps ErrWatchInstall.
// Watching a failed path again retries the installation.
func (w *Watcher) Watch(path string) (cache.Identity, error) {
	id, err := cache.NewIdentity(path)
	if err != nil {
		return "", err
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return id, ErrClosed
	}
	if ps, ok := w.paths[id]; ok && ps.state != StateFailed {
		ps.refs++
		w.mu.Unlock()
		return id, nil
	}
	w.mu.Unlock()

	// Seed the cache with the current content so the first no-op save is
	// suppressed. Done before any state exists so no pending change can be
	// absorbed by it.
	primed := w.settler.Settle(id)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return id, ErrClosed
	}

	refs := 1
	if ps, ok := w.paths[id]; ok {
		if ps.state != StateFailed {
			ps.refs++
			return id, nil
		}
		refs = ps.refs + 1
	}

	ps := &pathState{id: id, state: StateUnwatched, refs: refs, lastOutcome: primed.Outcome.String()}
	w.paths[id] = ps

	if err := w.install(id, primed); err != nil {
		w.fail(ps, err)
		return id, err
	}
	w.transition(ps, StateIdle)

	logging.Get("watcher").Debug("watching", "path", id, "refs", refs)
	return id, nil
}

// install validates the primed read and adds a reference to the parent
// directory watch.
func (w *Watcher) install(id cache.Identity, primed detector.Result) error {
	switch primed.Outcome {
	case detector.OutcomeRemoved, detector.OutcomeAbsent:
		return fmt.Errorf("%w: %s: %w", ErrWatchInstall, id, os.ErrNotExist)
	case detector.OutcomeError:
		return fmt.Errorf("%w: %s: %w", ErrWatchInstall, id, primed.Err)
	}

	dir := id.Dir()
	if w.dirs[dir] == 0 {
		if err := w.notifier.Add(dir); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrWatchInstall, id, err)
		}
	}
	w.dirs[dir]++
	return nil
}

// fail moves ps to the terminal Failed state and reports err once.
func (w *Watcher) fail(ps *pathState, err error) {
	ps.stop()
	ps.dirty = false
	ps.lastErr = err
	w.transition(ps, StateFailed)
	w.events.Publish(events.NewWatchError(ps.id, err, true))
	logging.Get("watcher").Warn("watch failed", "path", ps.id, "error", err)
}

// Unwatch drops one reference to path. When the last reference goes, any
// pending timer is discarded and an in-flight emission is not published.
func (w *Watcher) Unwatch(path string) error {
	id, err := cache.NewIdentity(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	ps, ok := w.paths[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotWatched, id)
	}

	ps.refs--
	if ps.refs > 0 {
		return nil
	}

	ps.stop()
	ps.cancelled = true
	delete(w.paths, id)
	if ps.state != StateFailed {
		w.releaseDir(id.Dir())
	}

	logging.Get("watcher").Debug("unwatched", "path", id, "state", ps.state)
	w.transition(ps, StateUnwatched)
	return nil
}

func (w *Watcher) releaseDir(dir string) {
	n, ok := w.dirs[dir]
	if !ok {
		return
	}
	if n > 1 {
		w.dirs[dir] = n - 1
		return
	}
	delete(w.dirs, dir)
	if err := w.notifier.Remove(dir); err != nil {
		logging.Get("watcher").Debug("removing directory watch", "dir", dir, "error", err)
	}
}

// State returns the current state of path.
func (w *Watcher) State(path string) (StateInfo, bool) {
	id, err := cache.NewIdentity(path)
	if err != nil {
		return StateInfo{}, false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	ps, ok := w.paths[id]
	if !ok {
		return StateInfo{Identity: id, State: StateUnwatched}, false
	}
	return ps.info(), true
}

// States returns every watched path ordered by identity.
func (w *Watcher) States() []StateInfo {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]StateInfo, 0, len(w.paths))
	for _, ps := range w.paths {
		out = append(out, ps.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// Run processes OS notifications until ctx is cancelled or the notifier
// closes. Timers and emissions run on their own goroutines.
func (w *Watcher) Run(ctx context.Context) {
	log := logging.Get("watcher")
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.notifier.Events():
			if !ok {
				return
			}
			w.handleEvent(ev)

		case err, ok := <-w.notifier.Errors():
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				log.Warn("event queue overflowed, rescanning watched files")
				w.rescan()
				continue
			}
			log.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	// Permission changes never alter content.
	if ev.Op == fsnotify.Chmod {
		return
	}

	name := filepath.Clean(ev.Name)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	if _, isDir := w.dirs[name]; isDir && ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		w.dirLost(name)
		return
	}

	ps, ok := w.paths[cache.Identity(name)]
	if !ok {
		return
	}
	w.touch(ps)
}

// touch records a raw event for ps and advances its state machine.
func (w *Watcher) touch(ps *pathState) {
	now := w.now()
	ps.lastEvent = now

	switch ps.state {
	case StateIdle:
		ps.pendingSince = now
		w.transition(ps, StatePending)
		w.arm(ps)
	case StatePending:
		w.arm(ps)
	case StateEmitting:
		ps.dirty = true
	case StateFailed:
	}
}

// arm (re)starts the debounce countdown. A timer from an earlier generation
// that is already running finds a stale gen and does nothing.
func (w *Watcher) arm(ps *pathState) {
	ps.stop()
	gen := ps.gen
	ps.timer = time.AfterFunc(w.debounce, func() { w.fire(ps, gen) })
}

func (w *Watcher) fire(ps *pathState, gen uint64) {
	w.mu.Lock()
	if w.closed || ps.cancelled || ps.gen != gen || ps.state != StatePending {
		w.mu.Unlock()
		return
	}
	ps.timer = nil
	w.transition(ps, StateEmitting)
	w.wg.Add(1)
	w.mu.Unlock()

	w.emit(ps)
}

// emit settles the file outside the lock and publishes the result.
func (w *Watcher) emit(ps *pathState) {
	defer w.wg.Done()

	res := w.settler.Settle(ps.id)

	w.mu.Lock()
	defer w.mu.Unlock()

	ps.emissions++
	ps.lastOutcome = res.Outcome.String()

	log := logging.Get("watcher")

	// Cancelled, closed, or failed while reading.
	if ps.cancelled || w.closed || ps.state != StateEmitting {
		// The removal was forgotten before the path failed, so dirLost
		// could not report it.
		if ps.state == StateFailed && !ps.cancelled && !w.closed && res.Outcome == detector.OutcomeRemoved {
			w.events.Publish(events.NewRemoved(ps.id))
			log.Debug("removed", "path", ps.id)
		}
		return
	}

	switch res.Outcome {
	case detector.OutcomeChanged:
		ps.lastErr = nil
		w.events.Publish(events.NewChanged(ps.id, res.Hash))
		log.Debug("changed", "path", ps.id, "hash", res.Hash)
	case detector.OutcomeRemoved:
		ps.lastErr = nil
		w.events.Publish(events.NewRemoved(ps.id))
		log.Debug("removed", "path", ps.id)
	case detector.OutcomeError:
		ps.lastErr = res.Err
		w.events.Publish(events.NewWatchError(ps.id, res.Err, false))
		log.Warn("read failed", "path", ps.id, "error", res.Err)
	case detector.OutcomeUnchanged:
		log.Debug("unchanged, suppressed", "path", ps.id)
	case detector.OutcomeAbsent:
		log.Debug("still absent, suppressed", "path", ps.id)
	}

	if ps.dirty {
		ps.dirty = false
		ps.pendingSince = w.now()
		w.transition(ps, StatePending)
		w.arm(ps)
		return
	}
	ps.pendingSince = time.Time{}
	w.transition(ps, StateIdle)
}

// dirLost fails every path whose parent directory was removed. Paths that
// had content cached get a Removed first, since the file cannot still exist.
func (w *Watcher) dirLost(dir string) {
	delete(w.dirs, dir)
	_ = w.notifier.Remove(dir)

	var ids []cache.Identity
	for id, ps := range w.paths {
		if id.Dir() == dir && ps.state != StateFailed {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		ps := w.paths[id]
		if w.settler.Forget(id) {
			w.events.Publish(events.NewRemoved(id))
		}
		w.fail(ps, fmt.Errorf("%w: %s: directory %s removed", ErrWatchLost, id, dir))
	}
}

// rescan marks every idle path pending so its final state is re-read after
// notifications may have been lost.
func (w *Watcher) rescan() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, ps := range w.paths {
		if ps.state != StateFailed {
			w.touch(ps)
		}
	}
}

func (w *Watcher) transition(ps *pathState, to State) {
	from := ps.state
	if from == to {
		return
	}
	ps.state = to
	if w.onStateChange != nil {
		w.onStateChange(ps.id, from, to)
	}
}

// Close cancels every state machine, waits for in-flight emissions and
// closes the notifier.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for id, ps := range w.paths {
		ps.stop()
		ps.cancelled = true
		delete(w.paths, id)
	}
	w.dirs = make(map[string]int)
	w.mu.Unlock()

	w.wg.Wait()
	return w.notifier.Close()
}
