package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLocalFileStorage_SaveReadDelete(t *testing.T) {
	s := NewLocalFileStorage(t.TempDir(), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "receipts/session-1/a.jpg", []byte("jpeg")))
	assert.True(t, s.Exists(ctx, "receipts/session-1/a.jpg"))

	content, err := s.Read(ctx, "receipts/session-1/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), content)

	require.NoError(t, s.Delete(ctx, "receipts/session-1/a.jpg"))
	assert.False(t, s.Exists(ctx, "receipts/session-1/a.jpg"))
	assert.NoError(t, s.Delete(ctx, "receipts/session-1/a.jpg"), "deleting twice is fine")
}

func TestLocalFileStorage_RejectsEscapingPaths(t *testing.T) {
	s := NewLocalFileStorage(t.TempDir(), zap.NewNop())

	err := s.Save(context.Background(), "../outside.txt", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes base directory")

	_, err = s.Read(context.Background(), "../../etc/passwd")
	assert.Error(t, err)
}

func TestLocalFileStorage_Prune(t *testing.T) {
	base := t.TempDir()
	s := NewLocalFileStorage(base, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "receipts/old/a.jpg", []byte("a")))
	require.NoError(t, s.Save(ctx, "receipts/new/b.jpg", []byte("b")))

	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(base, "receipts/old/a.jpg"), past, past))

	removed, err := s.Prune(ctx, "receipts", time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.False(t, s.Exists(ctx, "receipts/old/a.jpg"))
	assert.True(t, s.Exists(ctx, "receipts/new/b.jpg"))
	_, statErr := os.Stat(filepath.Join(base, "receipts/old"))
	assert.True(t, os.IsNotExist(statErr), "empty directories are removed")

	removed, err = s.Prune(ctx, "missing", time.Now())
	require.NoError(t, err)
	assert.Zero(t, removed)
}
