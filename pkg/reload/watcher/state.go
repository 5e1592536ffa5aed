package watcher

import (
	"time"

	"github.com/jamesainslie/hotreload/pkg/reload/cache"
)

// State is the debounce lifecycle of one watched path.
type State int

const (
	// StateIdle has no pending notification.
	StateIdle State = iota
	// StatePending has a debounce timer running.
	StatePending
	// StateEmitting is reading and classifying the settled file.
	StateEmitting
	// StateFailed means the OS watch could not be installed or was lost.
	// It is terminal until the path is watched again.
	StateFailed
	// StateUnwatched is reported for paths with no state machine, and as the
	// source and target of the transitions that create and remove one.
	StateUnwatched
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateEmitting:
		return "emitting"
	case StateFailed:
		return "failed"
	case StateUnwatched:
		return "unwatched"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StateInfo is a snapshot of one path's state machine.
type StateInfo struct {
	Identity     cache.Identity `json:"path"`
	State        State          `json:"state"`
	Refs         int            `json:"refs"`
	PendingSince time.Time      `json:"pending_since,omitzero"`
	LastEvent    time.Time      `json:"last_event,omitzero"`
	LastOutcome  string         `json:"last_outcome,omitempty"`
	LastError    string         `json:"last_error,omitempty"`
	Dirty        bool           `json:"dirty,omitempty"`
	Emissions    int64          `json:"emissions"`
}

// pathState is the mutable state behind a StateInfo. Guarded by Watcher.mu.
type pathState struct {
	id           cache.Identity
	state        State
	refs         int
	gen          uint64
	timer        *time.Timer
	pendingSince time.Time
	lastEvent    time.Time
	lastOutcome  string
	lastErr      error
	dirty        bool
	cancelled    bool
	emissions    int64
}

func (ps *pathState) info() StateInfo {
	si := StateInfo{
		Identity:     ps.id,
		State:        ps.state,
		Refs:         ps.refs,
		PendingSince: ps.pendingSince,
		LastEvent:    ps.lastEvent,
		LastOutcome:  ps.lastOutcome,
		Dirty:        ps.dirty,
		Emissions:    ps.emissions,
	}
	if ps.lastErr != nil {
		si.LastError = ps.lastErr.Error()
	}
	return si
}

// stop discards any armed timer so it can never fire into this state.
func (ps *pathState) stop() {
	ps.gen++
	if ps.timer != nil {
		ps.timer.Stop()
		ps.timer = nil
	}
}
