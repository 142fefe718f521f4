package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icdeck/internal/kendra"
)

type fakeProvisioner struct {
	names []string
	err   error
}

func (f *fakeProvisioner) Provision(_ context.Context, name string) (kendra.SyncResult, error) {
	f.names = append(f.names, name)
	if f.err != nil {
		return kendra.SyncResult{}, f.err
	}
	return kendra.SyncResult{ClientID: "client_" + name, DataSourceID: "DS1", ExecutionID: "EX1"}, nil
}

func TestParseMarker(t *testing.T) {
	cases := []struct {
		key  string
		name string
		ok   bool
	}{
		{"client_nvidia/_complete.txt", "nvidia", true},
		{"client_acme_corp/_complete.txt", "acme_corp", true},
		{"client_nvidia/report.pdf", "", false},
		{"client_nvidia/", "", false},
		{"client_/_complete.txt", "", false},
		{"_complete.txt", "", false},
		{"other/_complete.txt", "", false},
		{"client_a/nested/_complete.txt", "", false},
	}
	for _, tc := range cases {
		name, ok := ParseMarker(tc.key)
		assert.Equal(t, tc.ok, ok, tc.key)
		assert.Equal(t, tc.name, name, tc.key)
	}
}

func s3Event(t *testing.T, keys ...string) events.S3Event {
	t.Helper()
	var recs []map[string]any
	for _, k := range keys {
		recs = append(recs, map[string]any{
			"s3": map[string]any{
				"bucket": map[string]any{"name": "inputs"},
				"object": map[string]any{"key": k},
			},
		})
	}
	raw, err := json.Marshal(map[string]any{"Records": recs})
	require.NoError(t, err)
	var ev events.S3Event
	require.NoError(t, json.Unmarshal(raw, &ev))
	return ev
}

func TestTrigger_OnlyMarkerProvisions(t *testing.T) {
	p := &fakeProvisioner{}
	tr := NewTrigger(p, nil)

	outs, err := tr.Handle(context.Background(), s3Event(t, "client_nvidia/10-K.pdf", "client_nvidia/_complete.txt"))
	require.NoError(t, err)
	require.Len(t, outs, 2)

	assert.Equal(t, ActionIgnored, outs[0].Action)
	assert.Equal(t, ActionProvisioned, outs[1].Action)
	assert.Equal(t, "nvidia", outs[1].ClientName)
	assert.Equal(t, "DS1", outs[1].Sync.DataSourceID)
	assert.Equal(t, "inputs", outs[1].Bucket)
	assert.Equal(t, []string{"nvidia"}, p.names)
}

func TestTrigger_DecodesKeys(t *testing.T) {
	p := &fakeProvisioner{}
	outs, err := NewTrigger(p, nil).Handle(context.Background(), s3Event(t, "client_big+co/_complete.txt"))
	require.NoError(t, err)
	assert.Equal(t, "big co", outs[0].ClientName)
}

func TestTrigger_ProvisionFailure(t *testing.T) {
	p := &fakeProvisioner{err: errors.New("data source client_x failed: bad role")}
	outs, err := NewTrigger(p, nil).Handle(context.Background(), s3Event(t, "client_x/_complete.txt", "client_y/_complete.txt"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "client_x")
	assert.Len(t, outs, 2)
	assert.Equal(t, []string{"x", "y"}, p.names)
}
