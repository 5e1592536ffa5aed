// Package reloader applies file events to in-memory documents on the
// consumer side. A successful parse replaces the document; a failed parse
// keeps the last good one and records a diagnostic.
package reloader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/jamesainslie/hotreload/pkg/reload/cache"
	"github.com/jamesainslie/hotreload/pkg/reload/events"
	"github.com/jamesainslie/hotreload/pkg/reload/logging"
)

// Parser turns source bytes into a document.
type Parser[D any] interface {
	Parse(content []byte) (D, error)
}

// ParseFunc adapts a function to Parser.
type ParseFunc[D any] func(content []byte) (D, error)

// Parse implements Parser.
func (f ParseFunc[D]) Parse(content []byte) (D, error) {
	return f(content)
}

// Locator is implemented by parse errors that know where they happened.
type Locator interface {
	Location() (line, column int)
}

// Outcome is the effect of applying one event.
type Outcome int

const (
	// OutcomeReloaded means a new document replaced the previous one.
	OutcomeReloaded Outcome = iota
	// OutcomeUnchanged means the content was already loaded.
	OutcomeUnchanged
	// OutcomeFailed means parsing failed and the last good document is kept.
	OutcomeFailed
	// OutcomeRemoved means the file was deleted.
	OutcomeRemoved
	// OutcomeWatchFailed means the watch reported an error.
	OutcomeWatchFailed
)

// String returns a human-readable representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeReloaded:
		return "reloaded"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeFailed:
		return "failed"
	case OutcomeRemoved:
		return "removed"
	case OutcomeWatchFailed:
		return "watch failed"
	default:
		return "unknown"
	}
}

// RemovePolicy decides what happens to a document whose file is deleted.
type RemovePolicy int

const (
	// KeepLastGood keeps serving the last document and records a diagnostic.
	KeepLastGood RemovePolicy = iota
	// Drop forgets the document.
	Drop
)

// Diagnostic is a developer-facing failure attributed to a file.
type Diagnostic struct {
	Identity cache.Identity `json:"path"`
	Line     int            `json:"line,omitempty"`
	Column   int            `json:"column,omitempty"`
	Message  string         `json:"message"`
	At       time.Time      `json:"at"`
}

// String formats the diagnostic as path:line:column: message.
func (d Diagnostic) String() string {
	switch {
	case d.Line > 0 && d.Column > 0:
		return fmt.Sprintf("%s:%d:%d: %s", d.Identity, d.Line, d.Column, d.Message)
	case d.Line > 0:
		return fmt.Sprintf("%s:%d: %s", d.Identity, d.Line, d.Message)
	default:
		return fmt.Sprintf("%s: %s", d.Identity, d.Message)
	}
}

// Result describes the effect of Load or Apply.
type Result[D any] struct {
	Identity   cache.Identity
	Outcome    Outcome
	Document   D
	HasDoc     bool
	Diagnostic *Diagnostic
}

// Stats counts outcomes since the reloader was created.
type Stats struct {
	Reloads  int64 `json:"reloads"`
	Failures int64 `json:"failures"`
	Removals int64 `json:"removals"`
}

// Options configures a Reloader.
type Options struct {
	RemovePolicy RemovePolicy
}

type entry[D any] struct {
	doc     D
	hasDoc  bool
	hash    cache.Hash
	diag    *Diagnostic
	outcome Outcome
	updated time.Time
}

// Reloader owns the current document of every loaded file plus a Session
// that reloads never touch.
type Reloader[D any] struct {
	parser   Parser[D]
	policy   RemovePolicy
	session  *Session
	readFile func(string) ([]byte, error)
	now      func() time.Time

	mu      sync.RWMutex
	entries map[cache.Identity]*entry[D]
	stats   Stats
}

// New creates a Reloader that parses with p.
func New[D any](p Parser[D], opts Options) *Reloader[D] {
	return &Reloader[D]{
		parser:   p,
		policy:   opts.RemovePolicy,
		session:  NewSession(),
		readFile: os.ReadFile,
		now:      time.Now,
		entries:  make(map[cache.Identity]*entry[D]),
	}
}

// Session returns the application state preserved across reloads.
func (r *Reloader[D]) Session() *Session {
	return r.session
}

// Load reads and parses id. It is the initial load and counts as a reload
// when it succeeds.
func (r *Reloader[D]) Load(id cache.Identity) Result[D] {
	content, err := r.readFile(id.String())
	if err != nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		e := r.entry(id)
		if errors.Is(err, fs.ErrNotExist) {
			return r.removeLocked(id, e)
		}
		return r.failLocked(id, e, err)
	}
	return r.ingest(id, content)
}

// Apply updates the document for one event.
func (r *Reloader[D]) Apply(ev events.FileEvent) Result[D] {
	id := ev.Meta().Identity

	switch ev := ev.(type) {
	case events.Changed:
		r.mu.RLock()
		e, ok := r.entries[id]
		same := ok && e.hasDoc && e.diag == nil && e.hash == ev.Hash
		r.mu.RUnlock()
		if same {
			return r.result(id, OutcomeUnchanged)
		}
		return r.Load(id)

	case events.Removed:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.removeLocked(id, r.entry(id))

	case events.WatchError:
		r.mu.Lock()
		defer r.mu.Unlock()
		e := r.entry(id)
		msg := "watch error"
		if ev.Reason != nil {
			msg = ev.Reason.Error()
		}
		e.diag = &Diagnostic{Identity: id, Message: msg, At: r.now()}
		e.outcome = OutcomeWatchFailed
		e.updated = r.now()
		logging.Get("reloader").Warn("watch failed", "path", id, "error", ev.Reason, "terminal", ev.Terminal)
		return r.resultLocked(id, e)
	}

	return Result[D]{Identity: id, Outcome: OutcomeUnchanged}
}

func (r *Reloader[D]) ingest(id cache.Identity, content []byte) Result[D] {
	hash := cache.Sum(content)
	doc, err := r.parser.Parse(content)

	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entry(id)
	if err != nil {
		return r.failLocked(id, e, err)
	}

	if e.hasDoc && e.diag == nil && e.hash == hash {
		e.outcome = OutcomeUnchanged
		return r.resultLocked(id, e)
	}

	e.doc = doc
	e.hasDoc = true
	e.hash = hash
	e.diag = nil
	e.outcome = OutcomeReloaded
	e.updated = r.now()
	r.stats.Reloads++
	logging.Get("reloader").Info("reloaded", "path", id, "hash", hash)
	return r.resultLocked(id, e)
}

func (r *Reloader[D]) failLocked(id cache.Identity, e *entry[D], err error) Result[D] {
	d := &Diagnostic{Identity: id, Message: err.Error(), At: r.now()}
	var loc Locator
	if errors.As(err, &loc) {
		d.Line, d.Column = loc.Location()
	}

	e.diag = d
	e.outcome = OutcomeFailed
	e.updated = r.now()
	r.stats.Failures++
	logging.Get("reloader").Warn("reload failed, keeping last good document", "diagnostic", d.String())
	return r.resultLocked(id, e)
}

func (r *Reloader[D]) removeLocked(id cache.Identity, e *entry[D]) Result[D] {
	r.stats.Removals++
	e.outcome = OutcomeRemoved
	e.updated = r.now()

	if r.policy == Drop {
		delete(r.entries, id)
		logging.Get("reloader").Info("file removed, document dropped", "path", id)
		return Result[D]{Identity: id, Outcome: OutcomeRemoved}
	}

	e.diag = &Diagnostic{Identity: id, Message: "file removed; keeping last good document", At: r.now()}
	e.hash = 0
	logging.Get("reloader").Info("file removed, keeping last good document", "path", id)
	return r.resultLocked(id, e)
}

func (r *Reloader[D]) entry(id cache.Identity) *entry[D] {
	e, ok := r.entries[id]
	if !ok {
		e = &entry[D]{}
		r.entries[id] = e
	}
	return e
}

func (r *Reloader[D]) result(id cache.Identity, o Outcome) Result[D] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := Result[D]{Identity: id, Outcome: o}
	if e, ok := r.entries[id]; ok {
		res.Document, res.HasDoc, res.Diagnostic = e.doc, e.hasDoc, e.diag
	}
	return res
}

func (r *Reloader[D]) resultLocked(id cache.Identity, e *entry[D]) Result[D] {
	return Result[D]{
		Identity:   id,
		Outcome:    e.outcome,
		Document:   e.doc,
		HasDoc:     e.hasDoc,
		Diagnostic: e.diag,
	}
}

// Document returns the current document for id.
func (r *Reloader[D]) Document(id cache.Identity) (D, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok || !e.hasDoc {
		var zero D
		return zero, false
	}
	return e.doc, true
}

// Diagnostic returns the active diagnostic for id, if any.
func (r *Reloader[D]) Diagnostic(id cache.Identity) (Diagnostic, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok || e.diag == nil {
		return Diagnostic{}, false
	}
	return *e.diag, true
}

// Diagnostics returns every active diagnostic ordered by path.
func (r *Reloader[D]) Diagnostics() []Diagnostic {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Diagnostic
	for _, e := range r.entries {
		if e.diag != nil {
			out = append(out, *e.diag)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// LastOutcome returns the most recent outcome for id.
func (r *Reloader[D]) LastOutcome(id cache.Identity) (Outcome, time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return 0, time.Time{}, false
	}
	return e.outcome, e.updated, true
}

// Stats returns outcome counters.
func (r *Reloader[D]) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}
