package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLocalReportStore_SaveAndRead(t *testing.T) {
	tempDir := t.TempDir()
	store := NewLocalReportStore(filepath.Join(tempDir, "reports"), zap.NewNop())
	ctx := context.Background()

	t.Run("creates directory and saves report", func(t *testing.T) {
		path, err := store.Save(ctx, "memory-20240101.xlsx", []byte("xlsx"))
		require.NoError(t, err)
		assert.FileExists(t, path)

		content, err := store.Read(ctx, "memory-20240101.xlsx")
		require.NoError(t, err)
		assert.Equal(t, []byte("xlsx"), content)
	})

	t.Run("overwrites existing report", func(t *testing.T) {
		_, err := store.Save(ctx, "same.xlsx", []byte("original"))
		require.NoError(t, err)
		_, err = store.Save(ctx, "same.xlsx", []byte("updated"))
		require.NoError(t, err)

		content, err := store.Read(ctx, "same.xlsx")
		require.NoError(t, err)
		assert.Equal(t, []byte("updated"), content)
	})

	t.Run("lists saved reports", func(t *testing.T) {
		names, err := store.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"memory-20240101.xlsx", "same.xlsx"}, names)
	})
}

func TestLocalReportStore_RejectsEscapingPaths(t *testing.T) {
	store := NewLocalReportStore(t.TempDir(), zap.NewNop())
	ctx := context.Background()

	tests := []string{"../outside.xlsx", "../../etc/passwd", "", "  "}
	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := store.Save(ctx, name, []byte("x"))
			assert.Error(t, err)
		})
	}
}

func TestLocalReportStore_ListMissingDirectory(t *testing.T) {
	store := NewLocalReportStore(filepath.Join(t.TempDir(), "never-created"), zap.NewNop())
	names, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}
