package cache

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Identity is the canonical path of a watched file. It is the cache key.
//
// Normalization is syntactic only: the path is made absolute and cleaned,
// symlinks are not resolved. Two identities are equal iff their strings are.
type Identity string

// NewIdentity normalizes path into an Identity.
func NewIdentity(path string) (Identity, error) {
	if path == "" {
		return "", ErrEmptyPath
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	return Identity(filepath.Clean(abs)), nil
}

// String returns the path.
func (id Identity) String() string {
	return string(id)
}

// Base returns the last element of the path.
func (id Identity) Base() string {
	return filepath.Base(string(id))
}

// Dir returns the parent directory of the path.
func (id Identity) Dir() string {
	return filepath.Dir(string(id))
}

// Hash is a fixed-size digest of a file's full content.
type Hash uint64

// Sum hashes content. Byte-identical content always yields the same Hash.
func Sum(content []byte) Hash {
	return Hash(xxhash.Sum64(content))
}

// String returns the hash as 16 hex digits.
func (h Hash) String() string {
	return fmt.Sprintf("%016x", uint64(h))
}

// Entry records the last ingested content hash of one identity.
type Entry struct {
	Identity   Identity
	LastHash   Hash
	LastSeenAt time.Time
}

// Encode serializes the entry using gob.
func (e *Entry) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode deserializes data into the entry.
func (e *Entry) Decode(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(e)
}

// Classification is the outcome of comparing content with the cache.
type Classification struct {
	// Hit is true when the content is byte-identical to the last observed version.
	Hit bool
	// Hash is the digest of the classified content. It is set for hits and misses.
	Hash Hash
}

// Miss reports whether the content changed.
func (c Classification) Miss() bool {
	return !c.Hit
}
