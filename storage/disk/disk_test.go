package disk

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/querysafe/core"
	"github.com/poiesic/querysafe/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewArtifactStore(dir)
	require.NoError(t, err)

	ctx := context.Background()
	chunks := []string{"first chunk", "second \"quoted\" chunk", "ünïcode"}
	index := []byte{1, 2, 3, 4}

	require.NoError(t, store.WriteArtifacts(ctx, "T1", chunks, index))

	assert.FileExists(t, filepath.Join(dir, "T1-chunks.json"))
	assert.FileExists(t, filepath.Join(dir, "T1-index.index"))

	gotChunks, gotIndex, err := store.ReadArtifacts(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, chunks, gotChunks)
	assert.Equal(t, index, gotIndex)
}

func TestArtifactStore_ChunkFileIsJSONArray(t *testing.T) {
	dir := t.TempDir()
	store, err := NewArtifactStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.WriteArtifacts(context.Background(), "T1", []string{"a", "b"}, []byte{0}))

	data, err := os.ReadFile(filepath.Join(dir, "T1-chunks.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b"]`, string(data))
}

func TestArtifactStore_Replace(t *testing.T) {
	store, err := NewArtifactStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.WriteArtifacts(ctx, "T1", []string{"old"}, []byte{1}))
	require.NoError(t, store.WriteArtifacts(ctx, "T1", []string{"new", "newer"}, []byte{2}))

	chunks, index, err := store.ReadArtifacts(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "newer"}, chunks)
	assert.Equal(t, []byte{2}, index)
}

func TestArtifactStore_FailedChunkCommitKeepsPreviousPair(t *testing.T) {
	dir := t.TempDir()
	store, err := NewArtifactStore(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.WriteArtifacts(ctx, "T1", []string{"old"}, []byte{1}))

	// A non-empty directory where the chunk file belongs makes its rename fail.
	chunkPath := filepath.Join(dir, "T1-chunks.json")
	require.NoError(t, os.Remove(chunkPath))
	require.NoError(t, os.MkdirAll(filepath.Join(chunkPath, "blocker"), 0o755))

	err = store.WriteArtifacts(ctx, "T1", []string{"new", "newer"}, []byte{2})
	require.Error(t, err)

	index, err := os.ReadFile(filepath.Join(dir, "T1-index.index"))
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, index)
	assert.NoFileExists(t, filepath.Join(dir, "T1-index.index.prev"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

func TestArtifactStore_FailedFirstWriteLeavesNoIndex(t *testing.T) {
	dir := t.TempDir()
	store, err := NewArtifactStore(dir)
	require.NoError(t, err)

	chunkPath := filepath.Join(dir, "T1-chunks.json")
	require.NoError(t, os.MkdirAll(filepath.Join(chunkPath, "blocker"), 0o755))

	require.Error(t, store.WriteArtifacts(context.Background(), "T1", []string{"a"}, []byte{1}))
	assert.NoFileExists(t, filepath.Join(dir, "T1-index.index"))
}

func TestArtifactStore_Missing(t *testing.T) {
	store, err := NewArtifactStore(t.TempDir())
	require.NoError(t, err)

	_, _, err = store.ReadArtifacts(context.Background(), "T2")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NoError(t, store.DeleteArtifacts(context.Background(), "T2"))
}

func TestArtifactStore_CorruptChunks(t *testing.T) {
	dir := t.TempDir()
	store, err := NewArtifactStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "T1-index.index"), []byte{1}, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "T1-chunks.json"), []byte("{not json"), 0644))

	_, _, err = store.ReadArtifacts(context.Background(), "T1")
	assert.ErrorIs(t, err, storage.ErrCorruptArtifact)
}

func TestArtifactStore_Delete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewArtifactStore(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.WriteArtifacts(ctx, "T1", []string{"x"}, []byte{1}))
	require.NoError(t, store.DeleteArtifacts(ctx, "T1"))

	_, _, err = store.ReadArtifacts(ctx, "T1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBlobStore_TenantNamespaces(t *testing.T) {
	dir := t.TempDir()
	store, err := NewBlobStore(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.PutBlob(ctx, "T1", "doc.txt", []byte("tenant one")))
	require.NoError(t, store.PutBlob(ctx, "T2", "doc.txt", []byte("tenant two")))

	one, err := store.GetBlob(ctx, "T1", "doc.txt")
	require.NoError(t, err)
	assert.Equal(t, "tenant one", string(one))

	two, err := store.GetBlob(ctx, "T2", "doc.txt")
	require.NoError(t, err)
	assert.Equal(t, "tenant two", string(two))

	assert.FileExists(t, filepath.Join(dir, "T1", "doc.txt"))

	require.NoError(t, store.DeleteBlob(ctx, "T1", "doc.txt"))
	_, err = store.GetBlob(ctx, "T1", "doc.txt")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBlobStore_RejectsTraversal(t *testing.T) {
	store, err := NewBlobStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	for _, key := range []string{"", "..", "../x", "a/b"} {
		err := store.PutBlob(ctx, "T1", key, []byte("x"))
		assert.ErrorIs(t, err, ErrInvalidBlobKey, "key %q", key)
	}
	err = store.PutBlob(ctx, core.TenantID("../T1"), "ok", []byte("x"))
	assert.ErrorIs(t, err, core.ErrInvalidTenant)
}
