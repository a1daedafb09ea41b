package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLocalDocumentStore_PutGet(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	store := NewLocalDocumentStore(base, zap.NewNop())

	ref, err := store.Put(ctx, "req-1", "medical note.pdf", []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "req-1/medicalnote.pdf", ref)

	content, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF"), content)

	_, err = os.Stat(filepath.Join(base, "req-1", "medicalnote.pdf"))
	assert.NoError(t, err)
}

func TestLocalDocumentStore_Traversal(t *testing.T) {
	ctx := context.Background()
	store := NewLocalDocumentStore(t.TempDir(), zap.NewNop())

	ref, err := store.Put(ctx, "../../etc", "../passwd", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "etc/passwd", ref)

	_, err = store.Get(ctx, "../outside.txt")
	assert.Error(t, err)

	_, err = store.Put(ctx, "../..", "a.txt", nil)
	assert.Error(t, err)

	_, err = store.Put(ctx, "req-2", "..", nil)
	assert.Error(t, err)
}

func TestLocalDocumentStore_Delete(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	store := NewLocalDocumentStore(base, zap.NewNop())

	ref, err := store.Put(ctx, "req-3", "a.txt", []byte("a"))
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, "req-3"))
	require.NoError(t, store.Delete(ctx, "req-3"))

	_, err = store.Get(ctx, ref)
	assert.Error(t, err)
}

func TestSanitizeFileName(t *testing.T) {
	tests := map[string]string{
		"report.xlsx":     "report.xlsx",
		"a/b/c.txt":       "c.txt",
		`dir\evil.exe`:    "evil.exe",
		".hidden":         "hidden",
		"spa ce&sym#.pdf": "spacesym.pdf",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizeFileName(in), in)
	}
}
