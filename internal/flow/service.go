package flow

import "context"

// Handle identifies a published flow. It is all the executor needs.
type Handle struct {
	FlowID  string `json:"flow_id"`
	AliasID string `json:"alias_id"`
}

func (h Handle) Valid() bool {
	return h.FlowID != "" && h.AliasID != ""
}

// LookupStatus tags the outcome of a lookup by name.
type LookupStatus int

const (
	// NotFound means no flow has the name.
	NotFound LookupStatus = iota
	// Found means the flow and its alias both exist.
	Found
	// AliasMissing means the flow exists but was never published under the alias.
	AliasMissing
)

func (s LookupStatus) String() string {
	switch s {
	case Found:
		return "found"
	case AliasMissing:
		return "alias_missing"
	default:
		return "not_found"
	}
}

// LookupResult is the tagged result of Service.Lookup. FlowID is set for Found
// and AliasMissing; Handle.AliasID only for Found.
type LookupResult struct {
	Status LookupStatus
	Handle Handle
}

// Spec is what the registry asks the service to create or update.
type Spec struct {
	Name        string
	Description string
	Definition  Definition
}

// Service is the remote flow lifecycle API. Lookup reports absence through
// LookupResult; its error is reserved for real remote failures.
type Service interface {
	Lookup(ctx context.Context, name, alias string) (LookupResult, error)
	Create(ctx context.Context, spec Spec) (flowID string, err error)
	Update(ctx context.Context, flowID string, spec Spec) error
	GetDefinition(ctx context.Context, flowID string) (Definition, error)
	Prepare(ctx context.Context, flowID string) error
	CreateVersion(ctx context.Context, flowID string) (version string, err error)
	CreateAlias(ctx context.Context, flowID, alias, version string) (aliasID string, err error)
	UpdateAlias(ctx context.Context, flowID, aliasID, alias, version string) error
}

// FingerprintStore persists the last applied prompt fingerprint per flow name.
// A missing entry is reported as ok == false, not as an error.
type FingerprintStore interface {
	Fingerprint(ctx context.Context, flowName string) (fp string, ok bool, err error)
	SetFingerprint(ctx context.Context, flowName, fp string) error
}
