// Package detector decides whether a settled file is worth reloading.
//
// It reads the final on-disk state of a file after its debounce window has
// closed and classifies the bytes against the content cache.
package detector

import (
	"errors"
	"io/fs"
	"os"

	"github.com/jamesainslie/hotreload/pkg/reload/cache"
	"github.com/jamesainslie/hotreload/pkg/reload/logging"
)

// Outcome is the result of settling one file.
type Outcome int

const (
	// OutcomeUnchanged means the content matched the cache and is suppressed.
	OutcomeUnchanged Outcome = iota
	// OutcomeChanged means the content differs and must be propagated.
	OutcomeChanged
	// OutcomeRemoved means the file no longer exists; its cache entry is gone.
	OutcomeRemoved
	// OutcomeError means the file exists but could not be read.
	OutcomeError
	// OutcomeAbsent means the file is missing and its removal was already
	// reported.
	OutcomeAbsent
)

// String returns a human-readable representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeChanged:
		return "changed"
	case OutcomeRemoved:
		return "removed"
	case OutcomeError:
		return "error"
	case OutcomeAbsent:
		return "absent"
	default:
		return "unknown"
	}
}

// Result describes a settled file.
type Result struct {
	Identity cache.Identity
	Outcome  Outcome
	Hash     cache.Hash
	Err      error
}

// Detector classifies file content through a shared cache.
type Detector struct {
	cache    *cache.Cache
	readFile func(string) ([]byte, error)
}

// New creates a Detector backed by c.
func New(c *cache.Cache) *Detector {
	return &Detector{
		cache:    c,
		readFile: os.ReadFile,
	}
}

// Cache returns the underlying content cache.
func (d *Detector) Cache() *cache.Cache {
	return d.cache
}

// Classify compares content with the last ingested version of id.
func (d *Detector) Classify(id cache.Identity, content []byte) cache.Classification {
	return d.cache.Classify(id, content)
}

// Forget drops the cache entry of a file confirmed removed from disk.
func (d *Detector) Forget(id cache.Identity) bool {
	return d.cache.Remove(id)
}

// Settle reads the current content of id and classifies it. A missing file
// yields OutcomeRemoved and clears its cache entry, or OutcomeAbsent when
// there was no entry to clear. No classification is counted for a missing
// file because no content was ingested.
func (d *Detector) Settle(id cache.Identity) Result {
	log := logging.Get("detector")

	content, err := d.readFile(id.String())
	if errors.Is(err, fs.ErrNotExist) {
		if !d.Forget(id) {
			log.Debug("file still absent", "path", id)
			return Result{Identity: id, Outcome: OutcomeAbsent}
		}
		log.Debug("file removed", "path", id)
		return Result{Identity: id, Outcome: OutcomeRemoved}
	}
	if err != nil {
		log.Warn("read failed", "path", id, "error", err)
		return Result{Identity: id, Outcome: OutcomeError, Err: err}
	}

	c := d.cache.Classify(id, content)
	if c.Hit {
		log.Debug("content unchanged, suppressing", "path", id, "hash", c.Hash)
		return Result{Identity: id, Outcome: OutcomeUnchanged, Hash: c.Hash}
	}

	log.Debug("content changed", "path", id, "hash", c.Hash, "bytes", len(content))
	return Result{Identity: id, Outcome: OutcomeChanged, Hash: c.Hash}
}
