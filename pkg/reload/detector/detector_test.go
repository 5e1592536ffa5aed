package detector

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/hotreload/pkg/reload/cache"
)

func identity(t *testing.T, path string) cache.Identity {
	t.Helper()
	id, err := cache.NewIdentity(path)
	require.NoError(t, err)
	return id
}

func TestSettle_ChangedThenUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.yaml")
	require.NoError(t, os.WriteFile(path, []byte("title: one\n"), 0o644))

	d := New(cache.New())
	id := identity(t, path)

	first := d.Settle(id)
	assert.Equal(t, OutcomeChanged, first.Outcome)
	assert.Equal(t, cache.Sum([]byte("title: one\n")), first.Hash)

	// Re-save without edits.
	require.NoError(t, os.WriteFile(path, []byte("title: one\n"), 0o644))
	second := d.Settle(id)
	assert.Equal(t, OutcomeUnchanged, second.Outcome)
	assert.Equal(t, first.Hash, second.Hash)

	require.NoError(t, os.WriteFile(path, []byte("title: two\n"), 0o644))
	assert.Equal(t, OutcomeChanged, d.Settle(id).Outcome)

	snap := d.Cache().Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.Hits)
	assert.Equal(t, int64(2), snap.Misses)
}

func TestSettle_MissingFileIsRemoved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gone.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0o644))

	d := New(cache.New())
	id := identity(t, path)
	require.Equal(t, OutcomeChanged, d.Settle(id).Outcome)

	require.NoError(t, os.Remove(path))
	res := d.Settle(id)
	assert.Equal(t, OutcomeRemoved, res.Outcome)
	assert.NoError(t, res.Err)

	_, err := d.Cache().Get(id)
	assert.ErrorIs(t, err, cache.ErrNotFound)

	// Removal does not count as a classification.
	assert.Equal(t, int64(1), d.Cache().Metrics().Snapshot().Total())
}

func TestSettle_MissingFileReportedOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gone.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0o644))

	d := New(cache.New())
	id := identity(t, path)
	d.Settle(id)
	require.NoError(t, os.Remove(path))

	assert.Equal(t, OutcomeRemoved, d.Settle(id).Outcome)
	assert.Equal(t, OutcomeAbsent, d.Settle(id).Outcome)
	assert.Equal(t, OutcomeAbsent, New(cache.New()).Settle(id).Outcome, "never seen")
}

func TestSettle_RecreateAfterRemoveIsChanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.yaml")
	d := New(cache.New())
	id := identity(t, path)

	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	d.Settle(id)
	require.NoError(t, os.Remove(path))
	d.Settle(id)

	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	assert.Equal(t, OutcomeChanged, d.Settle(id).Outcome, "forgotten identity must treat content as new")
}

func TestSettle_ReadError(t *testing.T) {
	d := New(cache.New())
	boom := errors.New("permission denied")
	d.readFile = func(string) ([]byte, error) { return nil, boom }

	res := d.Settle("/ui/locked.yaml")
	assert.Equal(t, OutcomeError, res.Outcome)
	assert.ErrorIs(t, res.Err, boom)
	assert.Zero(t, d.Cache().Len())
}

func TestSettle_DirectoryIsError(t *testing.T) {
	d := New(cache.New())
	res := d.Settle(identity(t, t.TempDir()))
	assert.Equal(t, OutcomeError, res.Outcome)
	assert.Error(t, res.Err)
}

func TestClassifyAndForget(t *testing.T) {
	d := New(cache.New())
	id := cache.Identity("/ui/a.yaml")

	assert.True(t, d.Classify(id, []byte("a")).Miss())
	assert.True(t, d.Classify(id, []byte("a")).Hit)
	assert.True(t, d.Forget(id))
	assert.False(t, d.Forget(id))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "unchanged", OutcomeUnchanged.String())
	assert.Equal(t, "changed", OutcomeChanged.String())
	assert.Equal(t, "removed", OutcomeRemoved.String())
	assert.Equal(t, "error", OutcomeError.String())
	assert.Equal(t, "absent", OutcomeAbsent.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}
