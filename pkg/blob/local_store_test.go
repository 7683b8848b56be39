package blob

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBlobStore(t *testing.T) {
	root := t.TempDir()
	store := NewLocalBlobStore(root)
	ctx := context.Background()

	key := "events/2026/10/18/a.jsonl.gz"
	require.NoError(t, store.Put(ctx, key, strings.NewReader("hello world")))
	_, err := os.Stat(filepath.Join(root, filepath.FromSlash(key)))
	require.NoError(t, err)

	reader, err := store.Get(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(reader)
	reader.Close()
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	// Overwrite replaces content.
	require.NoError(t, store.Put(ctx, key, strings.NewReader("again")))
	require.NoError(t, store.Put(ctx, "events/2026/10/17/b.jsonl.gz", strings.NewReader("other")))

	keys, err := store.List(ctx, "events")
	require.NoError(t, err)
	assert.Equal(t, []string{"events/2026/10/17/b.jsonl.gz", "events/2026/10/18/a.jsonl.gz"}, keys)

	keys, err = store.List(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, key), ErrNotFound)
}

func TestLocalBlobStore_RejectsEscapingKeys(t *testing.T) {
	store := NewLocalBlobStore(t.TempDir())
	ctx := context.Background()

	for _, key := range []string{"../outside", "/etc/passwd", "", "a/../../b"} {
		assert.Error(t, store.Put(ctx, key, strings.NewReader("x")), key)
	}
}
