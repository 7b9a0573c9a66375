package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/grabsmart/internal/client/client"
	"github.com/dmitrijs2005/grabsmart/internal/client/repositories/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openDurable(t *testing.T, path string) *DurableStorage {
	t.Helper()
	db, err := client.InitDatabase(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewDurableStorage(kv.NewSQLiteRepository(db), path, nil)
}

func TestDurableStorage_ReadWrite(t *testing.T) {
	s := openDurable(t, filepath.Join(t.TempDir(), "client.db"))
	ctx := context.Background()

	_, ok, err := s.Get(ctx, DefaultKey)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, DefaultKey, "tok"))
	v, ok, err := s.Get(ctx, DefaultKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok", v)

	require.NoError(t, s.Remove(ctx, DefaultKey))
	_, ok, err = s.Get(ctx, DefaultKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDurableStorage_WatchSeesOtherProcessWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.db")
	a := openDurable(t, path)
	b := openDurable(t, path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, _, err := b.Get(ctx, DefaultKey)
	require.NoError(t, err)

	events, err := b.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, a.Set(ctx, DefaultKey, "tok1"))

	select {
	case k := <-events:
		assert.Equal(t, DefaultKey, k)
	case <-time.After(5 * time.Second):
		t.Fatal("no change event from the other handle")
	}

	v, ok, err := b.Get(ctx, DefaultKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok1", v)
}

func TestDurableStorage_OwnWritesAreNotReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.db")
	s := openDurable(t, path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := s.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, DefaultKey, "mine"))

	select {
	case k := <-events:
		t.Fatalf("own write reported for %q", k)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestDurableStorage_WatchMissingDir(t *testing.T) {
	s := NewDurableStorage(nil, filepath.Join(t.TempDir(), "nope", "client.db"), nil)
	_, err := s.Watch(context.Background())
	assert.Error(t, err)
}
