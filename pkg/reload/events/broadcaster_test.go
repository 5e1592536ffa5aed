package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/hotreload/pkg/reload/cache"
)

func TestBroadcaster_Subscribe(t *testing.T) {
	b := New()
	defer b.Close()

	sub, err := b.Subscribe(Filter{})
	require.NoError(t, err)
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, 1, b.SubscriberCount())
}

func TestBroadcaster_PublishStampsSequence(t *testing.T) {
	b := New()
	defer b.Close()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b.now = func() time.Time { return fixed }

	sub, err := b.Subscribe(Filter{})
	require.NoError(t, err)

	first, ok := b.Publish(NewChanged("/ui/a.yaml", 1))
	require.True(t, ok)
	second, _ := b.Publish(NewRemoved("/ui/b.yaml"))

	assert.Equal(t, uint64(1), first.Meta().Seq)
	assert.Equal(t, uint64(2), second.Meta().Seq)
	assert.Equal(t, fixed, first.Meta().At)

	got := sub.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, KindChanged, got[0].Kind())
	assert.Equal(t, KindRemoved, got[1].Kind())
}

func TestBroadcaster_SlowConsumerLosesNothing(t *testing.T) {
	b := New()
	defer b.Close()

	sub, err := b.Subscribe(Filter{})
	require.NoError(t, err)

	const n = 10_000
	done := make(chan struct{})
	go func() {
		for i := range n {
			b.Publish(NewChanged("/ui/a.yaml", cache.Hash(i)))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publisher blocked on an idle consumer")
	}

	ctx := context.Background()
	for i := range n {
		ev, err := sub.Next(ctx)
		require.NoError(t, err)
		changed, ok := ev.(Changed)
		require.True(t, ok)
		require.Equal(t, cache.Hash(i), changed.Hash, "out of order at %d", i)
	}
	assert.Zero(t, sub.Pending())
}

func TestBroadcaster_FilterByPaths(t *testing.T) {
	b := New()
	defer b.Close()

	sub, err := b.Subscribe(Filter{Paths: []cache.Identity{"/ui/a.yaml"}})
	require.NoError(t, err)

	b.Publish(NewChanged("/ui/b.yaml", 1))
	b.Publish(NewChanged("/ui/a.yaml", 2))

	got := sub.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, cache.Identity("/ui/a.yaml"), got[0].Meta().Identity)
}

func TestBroadcaster_FilterByRoot(t *testing.T) {
	b := New()
	defer b.Close()

	sub, err := b.Subscribe(Filter{Root: "/ui/"})
	require.NoError(t, err)

	b.Publish(NewChanged("/ui/screens/home.yaml", 1))
	b.Publish(NewChanged("/uix/other.yaml", 2))
	b.Publish(NewChanged("/elsewhere.yaml", 3))

	got := sub.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, cache.Identity("/ui/screens/home.yaml"), got[0].Meta().Identity)
}

func TestBroadcaster_FilterByFilesystemRoot(t *testing.T) {
	b := New()
	defer b.Close()

	sub, err := b.Subscribe(Filter{Root: "/"})
	require.NoError(t, err)

	b.Publish(NewChanged("/ui/home.yaml", 1))
	b.Publish(NewRemoved("/settings.yaml"))

	assert.Len(t, sub.Drain(), 2)
}

func TestBroadcaster_FilterByRelativeRoot(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	b := New()
	defer b.Close()

	sub, err := b.Subscribe(Filter{Root: "ui"})
	require.NoError(t, err)

	id, err := cache.NewIdentity("ui/home.yaml")
	require.NoError(t, err)
	other, err := cache.NewIdentity("uix/home.yaml")
	require.NoError(t, err)

	b.Publish(NewChanged(id, 1))
	b.Publish(NewChanged(other, 2))

	got := sub.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].Meta().Identity)
}

func TestBroadcaster_UnsubscribeKeepsQueued(t *testing.T) {
	b := New()
	defer b.Close()

	sub, err := b.Subscribe(Filter{})
	require.NoError(t, err)
	b.Publish(NewRemoved("/ui/a.yaml"))
	sub.Close()
	b.Publish(NewRemoved("/ui/b.yaml"))

	assert.Equal(t, 0, b.SubscriberCount())

	ev, err := sub.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cache.Identity("/ui/a.yaml"), ev.Meta().Identity)

	_, err = sub.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBroadcaster_Close(t *testing.T) {
	b := New()
	sub, err := b.Subscribe(Filter{})
	require.NoError(t, err)

	b.Close()
	b.Close()

	_, ok := b.Publish(NewRemoved("/x"))
	assert.False(t, ok)

	_, err = b.Subscribe(Filter{})
	assert.ErrorIs(t, err, ErrUnsubscribed)

	_, err = sub.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWatchErrorUnwraps(t *testing.T) {
	cause := errors.New("permission denied")
	ev := NewWatchError("/ui/a.yaml", cause, true)

	assert.ErrorIs(t, ev, cause)
	assert.Equal(t, "watch_error", ev.Kind().String())
}

func TestBroadcaster_Stats(t *testing.T) {
	b := New()
	defer b.Close()

	sub, err := b.Subscribe(Filter{})
	require.NoError(t, err)
	b.Publish(NewChanged("/a", 1))
	b.Publish(NewChanged("/a", 2))
	b.Publish(NewRemoved("/a"))
	b.Publish(NewWatchError("/b", errors.New("boom"), false))
	_, _ = sub.Poll()

	s := b.Stats()
	assert.Equal(t, int64(2), s.Changed)
	assert.Equal(t, int64(1), s.Removed)
	assert.Equal(t, int64(1), s.WatchErrors)
	assert.Equal(t, 1, s.Subscribers)
	assert.Equal(t, 3, s.Backlog)

	assert.Equal(t, 5, testutil.CollectAndCount(NewCollector(b)))
}
