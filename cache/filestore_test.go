package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	fs, err := NewFileStore(t.TempDir(), clock)
	require.NoError(t, err)

	require.NoError(t, fs.Set(ctx, &Entry{Key: "GET:/api/clients?id=5", Value: []byte(`{"id":5}`), TTL: time.Minute, Version: "v1"}))

	e, err := fs.Get(ctx, "GET:/api/clients?id=5", "v1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":5}`, string(e.Value))
	assert.Equal(t, clock.Now(), e.InsertedAt.UTC())

	_, err = fs.Get(ctx, "GET:/api/clients?id=5", "v2")
	assert.ErrorIs(t, err, ErrNotFound)

	clock.Advance(time.Minute)
	_, err = fs.Get(ctx, "GET:/api/clients?id=5", "")
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := fs.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "expired file is removed on read")
}

func TestFileStoreKeysThatSanitizeAlike(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	require.NoError(t, fs.Set(ctx, &Entry{Key: "a:b", Value: []byte("1")}))
	require.NoError(t, fs.Set(ctx, &Entry{Key: "a?b", Value: []byte("2")}))

	e, err := fs.Get(ctx, "a:b", "")
	require.NoError(t, err)
	assert.Equal(t, "1", string(e.Value))
	e, err = fs.Get(ctx, "a?b", "")
	require.NoError(t, err)
	assert.Equal(t, "2", string(e.Value))
}

func TestFileStoreLongKey(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	key := "GET:/api/assets?q=" + strings.Repeat("x", 300)
	require.NoError(t, fs.Set(ctx, &Entry{Key: key, Value: []byte("v")}))
	e, err := fs.Get(ctx, key, "")
	require.NoError(t, err)
	assert.Equal(t, "v", string(e.Value))
}

func TestFileStoreInvalidation(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	for _, k := range []string{"GET:/api/clients", "GET:/api/clients?id=5", "GET:/api/assets"} {
		require.NoError(t, fs.Set(ctx, &Entry{Key: k, Value: []byte("v")}))
	}

	n, err := fs.DeleteMatching(ctx, "clients")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = fs.Get(ctx, "GET:/api/assets", "")
	assert.NoError(t, err)

	require.NoError(t, fs.Delete(ctx, "GET:/api/assets"))
	require.NoError(t, fs.Delete(ctx, "GET:/api/assets"), "deleting a missing key is not an error")

	require.NoError(t, fs.Set(ctx, &Entry{Key: "x", Value: []byte("v")}))
	require.NoError(t, fs.Clear(ctx))
	n, err = fs.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewFileStoreRequiresDir(t *testing.T) {
	_, err := NewFileStore("", nil)
	assert.Error(t, err)
}
