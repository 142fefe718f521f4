package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_Fingerprints(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	_, ok, err := store.Fingerprint(ctx, "executive_summary_analysis_flow")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SetFingerprint(ctx, "executive_summary_analysis_flow", "aaa"))
	require.NoError(t, store.SetFingerprint(ctx, "executive_summary_analysis_flow", "bbb"))

	fp, ok, err := store.Fingerprint(ctx, "executive_summary_analysis_flow")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "bbb", fp)
}

func TestSQLiteStore_FingerprintsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.SetFingerprint(context.Background(), "company_overview_analysis_flow", "c0ffee"))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	fp, ok, err := reopened.Fingerprint(context.Background(), "company_overview_analysis_flow")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "c0ffee", fp)
}

func TestSQLiteStore_Ledger(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	first := Artifact{
		RunID:       "run-1",
		ClientID:    "acme",
		Key:         "output/IC_deck_acme_2024-03-01_10-00-00.md",
		GeneratedAt: base,
		Sections: []SectionRecord{
			{SectionID: "executive_summary", FlowName: "executive_summary_analysis_flow", EvidenceItems: 4, Chars: 120, Status: "ok"},
			{SectionID: "company_overview", FlowName: "company_overview_analysis_flow", QueryFailures: 1, Status: "ok"},
		},
	}
	second := Artifact{RunID: "run-2", ClientID: "acme", Key: "k2", GeneratedAt: base.Add(time.Hour)}
	other := Artifact{RunID: "run-2", ClientID: "globex", Key: "k3", GeneratedAt: base.Add(time.Hour)}

	require.NoError(t, store.RecordArtifact(ctx, first))
	require.NoError(t, store.RecordArtifact(ctx, second))
	require.NoError(t, store.RecordArtifact(ctx, other))

	acme, err := store.ListArtifacts(ctx, "acme", 0)
	require.NoError(t, err)
	require.Len(t, acme, 2)
	assert.Equal(t, "run-2", acme[0].RunID)
	assert.Equal(t, "run-1", acme[1].RunID)
	assert.Equal(t, first.Sections, acme[1].Sections)
	assert.True(t, base.Equal(acme[1].GeneratedAt))

	all, err := store.ListArtifacts(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	// Re-recording replaces the section rows.
	first.Sections = first.Sections[:1]
	require.NoError(t, store.RecordArtifact(ctx, first))
	acme, err = store.ListArtifacts(ctx, "acme", 0)
	require.NoError(t, err)
	assert.Len(t, acme[1].Sections, 1)
}
