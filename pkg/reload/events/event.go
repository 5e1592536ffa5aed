// Package events carries classified file events from the watcher's
// background goroutines to a single-threaded consumer loop.
//
// Delivery never drops an event: every subscription owns an unbounded FIFO
// queue, so a slow consumer costs memory, not correctness.
package events

import (
	"time"

	"github.com/jamesainslie/hotreload/pkg/reload/cache"
)

// Kind identifies the variant of a FileEvent.
type Kind int

const (
	KindChanged Kind = iota
	KindRemoved
	KindWatchError
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindChanged:
		return "changed"
	case KindRemoved:
		return "removed"
	case KindWatchError:
		return "watch_error"
	default:
		return "unknown"
	}
}

// Header is common to every event.
type Header struct {
	// Identity is the file the event is about.
	Identity cache.Identity
	// Seq is assigned at publication and increases across all paths.
	Seq uint64
	// At is the publication time.
	At time.Time
}

// FileEvent is one of Changed, Removed or WatchError. The set is closed;
// consumers should type-switch over the three concrete types.
type FileEvent interface {
	// Kind reports the variant.
	Kind() Kind
	// Meta returns the common header.
	Meta() Header

	withHeader(Header) FileEvent
}

// Changed reports content that differs from the last ingested version.
type Changed struct {
	Header
	Hash cache.Hash
}

// Removed reports a file confirmed gone from disk.
type Removed struct {
	Header
}

// WatchError reports a filesystem failure for one path.
type WatchError struct {
	Header
	Reason error
	// Terminal is set when the watch itself is gone and will not be retried.
	Terminal bool
}

func (Changed) Kind() Kind    { return KindChanged }
func (Removed) Kind() Kind    { return KindRemoved }
func (WatchError) Kind() Kind { return KindWatchError }

func (e Changed) Meta() Header    { return e.Header }
func (e Removed) Meta() Header    { return e.Header }
func (e WatchError) Meta() Header { return e.Header }

func (e Changed) withHeader(h Header) FileEvent    { e.Header = h; return e }
func (e Removed) withHeader(h Header) FileEvent    { e.Header = h; return e }
func (e WatchError) withHeader(h Header) FileEvent { e.Header = h; return e }

func (e WatchError) Error() string {
	if e.Reason == nil {
		return "watch error: " + string(e.Identity)
	}
	return "watch error: " + string(e.Identity) + ": " + e.Reason.Error()
}

// Unwrap returns the underlying filesystem error.
func (e WatchError) Unwrap() error {
	return e.Reason
}

// NewChanged builds an unpublished Changed event.
func NewChanged(id cache.Identity, h cache.Hash) Changed {
	return Changed{Header: Header{Identity: id}, Hash: h}
}

// NewRemoved builds an unpublished Removed event.
func NewRemoved(id cache.Identity) Removed {
	return Removed{Header: Header{Identity: id}}
}

// NewWatchError builds an unpublished WatchError event.
func NewWatchError(id cache.Identity, reason error, terminal bool) WatchError {
	return WatchError{Header: Header{Identity: id}, Reason: reason, Terminal: terminal}
}
