package storage

import (
	"context"
	"time"
)

// Store persists the last published prompt fingerprint of each flow.
type Store interface {
	// Fingerprint returns the stored fingerprint for a flow name. ok is false
	// when nothing has been recorded yet.
	Fingerprint(ctx context.Context, flowName string) (fp string, ok bool, err error)

	// SetFingerprint records the fingerprint, replacing any previous value.
	SetFingerprint(ctx context.Context, flowName, fp string) error

	Close() error
}

// Ledger keeps a history of generated decks.
type Ledger interface {
	RecordArtifact(ctx context.Context, a Artifact) error
	ListArtifacts(ctx context.Context, clientID string, limit int) ([]Artifact, error)
}

// Artifact is one assembled deck as stored in the ledger.
type Artifact struct {
	RunID       string
	ClientID    string
	Key         string
	GeneratedAt time.Time
	Sections    []SectionRecord
}

// SectionRecord summarizes how one section of a deck was produced.
type SectionRecord struct {
	SectionID     string
	FlowName      string
	EvidenceItems int
	QueryFailures int
	Chars         int
	Status        string
}
