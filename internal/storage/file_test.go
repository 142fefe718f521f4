package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "fingerprints")
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	_, ok, err := store.Fingerprint(ctx, "financial_overview_analysis_flow")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SetFingerprint(ctx, "financial_overview_analysis_flow", "abc123"))
	fp, ok, err := store.Fingerprint(ctx, "financial_overview_analysis_flow")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc123", fp)

	data, err := os.ReadFile(filepath.Join(dir, "financial_overview_analysis_flow_hash.txt"))
	require.NoError(t, err)
	assert.Equal(t, "abc123", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileStore_BlankFileIsAbsent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x_hash.txt"), []byte("\n"), 0o644))
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	_, ok, err := store.Fingerprint(context.Background(), "x")
	require.NoError(t, err)
	assert.False(t, ok)
}
