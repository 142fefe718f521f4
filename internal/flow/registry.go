package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"icdeck/internal/faults"
	"icdeck/internal/logging"
	"icdeck/internal/sections"
)

// ErrNotInitialized is returned by Handle before Initialize has been called.
var ErrNotInitialized = errors.New("flow registry not initialized")

// Outcome records what initialization did for one section.
type Outcome struct {
	SectionID   string `json:"section_id"`
	FlowName    string `json:"flow_name"`
	Action      string `json:"action"`
	Fingerprint string `json:"fingerprint"`
	Handle      Handle `json:"handle"`
}

// Registry actions.
const (
	ActionCreated   = "created"
	ActionUpdated   = "updated"
	ActionPublished = "published"
	ActionUnchanged = "unchanged"
	ActionBaseline  = "baseline"
	ActionAccepted  = "accepted"
)

// Registry owns the section id -> flow handle mapping. It is initialized once
// per process; handles are read-only afterwards.
type Registry struct {
	service    Service
	store      FingerprintStore
	alias      string
	inference  Inference
	driftCheck bool
	logger     *zap.Logger
	tracer     trace.Tracer

	mu       sync.Mutex
	started  bool
	done     chan struct{}
	initErr  error
	handles  map[string]Handle
	outcomes []Outcome
}

type RegistryOption func(*Registry)

// WithAlias overrides the alias flows are published under.
func WithAlias(name string) RegistryOption {
	return func(r *Registry) {
		if name != "" {
			r.alias = name
		}
	}
}

// WithDriftCheck enables comparing existing flows against the persisted
// fingerprint. When disabled a found flow is accepted as-is.
func WithDriftCheck(enabled bool) RegistryOption {
	return func(r *Registry) { r.driftCheck = enabled }
}

func WithInference(inf Inference) RegistryOption {
	return func(r *Registry) { r.inference = inf }
}

func WithRegistryLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logging.OrNop(l) }
}

func WithRegistryTracer(t trace.Tracer) RegistryOption {
	return func(r *Registry) { r.tracer = t }
}

func NewRegistry(service Service, store FingerprintStore, opts ...RegistryOption) *Registry {
	r := &Registry{
		service:    service,
		store:      store,
		alias:      "LATEST",
		inference:  DefaultInference(),
		driftCheck: true,
		logger:     zap.NewNop(),
		tracer:     otel.Tracer("icdeck/internal/flow"),
		done:       make(chan struct{}),
		handles:    make(map[string]Handle),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Initialize ensures every section has a published flow whose prompt matches
// the section's prompt. Only the first call does work; later and concurrent
// calls wait for it and return its result. Any failure is fatal: no handle is
// served afterwards.
func (r *Registry) Initialize(ctx context.Context, secs []sections.Section) error {
	r.mu.Lock()
	if r.started {
		done := r.done
		r.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.initErr
	}
	r.started = true
	r.mu.Unlock()

	handles := make(map[string]Handle, len(secs))
	outcomes := make([]Outcome, 0, len(secs))
	var initErr error
	for _, sec := range secs {
		out, err := r.ensure(ctx, sec)
		if err != nil {
			initErr = fmt.Errorf("failed to initialize flow for section %s: %w", sec.ID, err)
			break
		}
		handles[sec.ID] = out.Handle
		outcomes = append(outcomes, out)
		r.logger.Info("flow ready",
			zap.String("section", sec.ID),
			zap.String("flow", sec.FlowName),
			zap.String("action", out.Action),
			zap.String("flow_id", out.Handle.FlowID),
			zap.String("alias_id", out.Handle.AliasID))
	}

	r.mu.Lock()
	if initErr == nil {
		r.handles = handles
	}
	r.outcomes = outcomes
	r.initErr = initErr
	close(r.done)
	r.mu.Unlock()
	return initErr
}

// Handle returns the flow handle for a section. It blocks while
// initialization is running and fails if it never started or failed.
func (r *Registry) Handle(ctx context.Context, sectionID string) (Handle, error) {
	r.mu.Lock()
	started, done := r.started, r.done
	r.mu.Unlock()
	if !started {
		return Handle{}, &faults.Error{Op: "flow.Handle", Kind: faults.KindConfiguration, Err: ErrNotInitialized}
	}

	select {
	case <-done:
	case <-ctx.Done():
		return Handle{}, ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initErr != nil {
		return Handle{}, &faults.Error{Op: "flow.Handle", Kind: faults.KindConfiguration, Err: r.initErr}
	}
	h, ok := r.handles[sectionID]
	if !ok || !h.Valid() {
		return Handle{}, faults.Configuration("flow.Handle", "no flow handle for section %s", sectionID)
	}
	return h, nil
}

// Outcomes returns what initialization did per section, in section order.
func (r *Registry) Outcomes() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Outcome(nil), r.outcomes...)
}

func (r *Registry) spec(sec sections.Section) Spec {
	return Spec{
		Name:        sec.FlowName,
		Description: sec.Description(),
		Definition:  NewDefinition(sec.ID, sec.Prompt, r.inference),
	}
}

func (r *Registry) ensure(ctx context.Context, sec sections.Section) (out Outcome, err error) {
	ctx, span := r.tracer.Start(ctx, "flow.Registry.ensure", trace.WithAttributes(
		attribute.String("section.id", sec.ID),
		attribute.String("flow.name", sec.FlowName),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.String("flow.action", out.Action))
		}
		span.End()
	}()

	out = Outcome{SectionID: sec.ID, FlowName: sec.FlowName, Fingerprint: Fingerprint(sec.Prompt)}

	found, err := r.service.Lookup(ctx, sec.FlowName, r.alias)
	if err != nil {
		return out, fmt.Errorf("failed to look up flow %s: %w", sec.FlowName, err)
	}

	switch found.Status {
	case NotFound:
		out.Handle, err = r.create(ctx, sec)
		out.Action = ActionCreated
	case AliasMissing:
		out.Handle, err = r.publish(ctx, sec, found.Handle.FlowID)
		out.Action = ActionPublished
	default:
		out.Handle = found.Handle
		out.Action, err = r.reconcile(ctx, sec, found.Handle)
	}
	return out, err
}

// create builds a new flow and publishes version 1 under the alias.
func (r *Registry) create(ctx context.Context, sec sections.Section) (Handle, error) {
	spec := r.spec(sec)
	if err := spec.Definition.Validate(); err != nil {
		return Handle{}, faults.Configuration("flow.create", "%v", err)
	}

	flowID, err := r.service.Create(ctx, spec)
	if err != nil {
		return Handle{}, fmt.Errorf("failed to create flow %s: %w", sec.FlowName, err)
	}
	if err := r.service.Prepare(ctx, flowID); err != nil {
		return Handle{}, fmt.Errorf("failed to prepare flow %s: %w", sec.FlowName, err)
	}
	version, err := r.service.CreateVersion(ctx, flowID)
	if err != nil {
		return Handle{}, fmt.Errorf("failed to version flow %s: %w", sec.FlowName, err)
	}
	aliasID, err := r.service.CreateAlias(ctx, flowID, r.alias, version)
	if err != nil {
		return Handle{}, fmt.Errorf("failed to alias flow %s: %w", sec.FlowName, err)
	}
	if err := r.store.SetFingerprint(ctx, sec.FlowName, Fingerprint(sec.Prompt)); err != nil {
		return Handle{}, fmt.Errorf("failed to persist fingerprint for %s: %w", sec.FlowName, err)
	}
	return Handle{FlowID: flowID, AliasID: aliasID}, nil
}

// publish repairs a flow that exists without the alias: its definition is
// rewritten to the current prompt, then versioned and aliased.
func (r *Registry) publish(ctx context.Context, sec sections.Section, flowID string) (Handle, error) {
	spec := r.spec(sec)
	if err := spec.Definition.Validate(); err != nil {
		return Handle{}, faults.Configuration("flow.publish", "%v", err)
	}
	if err := r.service.Update(ctx, flowID, spec); err != nil {
		return Handle{}, faults.StateDrift("flow.publish", err)
	}
	if err := r.service.Prepare(ctx, flowID); err != nil {
		return Handle{}, faults.StateDrift("flow.publish", err)
	}
	version, err := r.service.CreateVersion(ctx, flowID)
	if err != nil {
		return Handle{}, faults.StateDrift("flow.publish", err)
	}
	aliasID, err := r.service.CreateAlias(ctx, flowID, r.alias, version)
	if err != nil {
		return Handle{}, faults.StateDrift("flow.publish", err)
	}
	if err := r.store.SetFingerprint(ctx, sec.FlowName, Fingerprint(sec.Prompt)); err != nil {
		return Handle{}, fmt.Errorf("failed to persist fingerprint for %s: %w", sec.FlowName, err)
	}
	return Handle{FlowID: flowID, AliasID: aliasID}, nil
}

// reconcile compares an existing flow's persisted fingerprint with the
// current prompt and rewrites the flow only when they differ.
func (r *Registry) reconcile(ctx context.Context, sec sections.Section, h Handle) (string, error) {
	if !r.driftCheck {
		return ActionAccepted, nil
	}

	current := Fingerprint(sec.Prompt)
	stored, ok, err := r.store.Fingerprint(ctx, sec.FlowName)
	if err != nil {
		return "", fmt.Errorf("failed to read fingerprint for %s: %w", sec.FlowName, err)
	}

	if !ok {
		r.recordBaseline(ctx, sec, h, current)
		return ActionBaseline, nil
	}
	if stored == current {
		return ActionUnchanged, nil
	}

	r.logger.Info("prompt changed, updating flow",
		zap.String("flow", sec.FlowName),
		zap.String("stored", stored),
		zap.String("current", current))

	spec := r.spec(sec)
	if err := spec.Definition.Validate(); err != nil {
		return "", faults.Configuration("flow.update", "%v", err)
	}
	if err := r.service.Update(ctx, h.FlowID, spec); err != nil {
		return "", faults.StateDrift("flow.update", err)
	}
	if err := r.service.Prepare(ctx, h.FlowID); err != nil {
		return "", faults.StateDrift("flow.prepare", err)
	}
	version, err := r.service.CreateVersion(ctx, h.FlowID)
	if err != nil {
		return "", faults.StateDrift("flow.version", err)
	}
	if err := r.service.UpdateAlias(ctx, h.FlowID, h.AliasID, r.alias, version); err != nil {
		return "", faults.StateDrift("flow.alias", err)
	}
	if err := r.store.SetFingerprint(ctx, sec.FlowName, current); err != nil {
		return "", fmt.Errorf("failed to persist fingerprint for %s: %w", sec.FlowName, err)
	}
	return ActionUpdated, nil
}

// recordBaseline persists the fingerprint of what the remote flow actually
// serves, so a mismatch with the local prompt is corrected by the next
// initialization. It never mutates the flow and never fails initialization.
func (r *Registry) recordBaseline(ctx context.Context, sec sections.Section, h Handle, current string) {
	def, err := r.service.GetDefinition(ctx, h.FlowID)
	if err != nil {
		r.logger.Warn("no stored fingerprint and remote definition unavailable",
			zap.String("flow", sec.FlowName),
			zap.Error(err))
		return
	}
	remote, err := def.Fingerprint()
	if err != nil {
		r.logger.Warn("remote definition has no usable prompt",
			zap.String("flow", sec.FlowName),
			zap.Error(err))
		return
	}
	if remote != current {
		r.logger.Warn("remote prompt differs from local prompt; flow will be updated on next initialization",
			zap.String("flow", sec.FlowName),
			zap.String("remote", remote),
			zap.String("current", current))
	}
	if err := r.store.SetFingerprint(ctx, sec.FlowName, remote); err != nil {
		r.logger.Warn("failed to persist baseline fingerprint",
			zap.String("flow", sec.FlowName),
			zap.Error(err))
	}
}

// Verify looks up each section's published flow and reports whether its
// prompt fingerprint matches the local prompt. It never mutates remote state
// and does not need Initialize.
func (r *Registry) Verify(ctx context.Context, secs []sections.Section) ([]Verification, error) {
	out := make([]Verification, 0, len(secs))
	for _, sec := range secs {
		v := Verification{
			SectionID: sec.ID,
			FlowName:  sec.FlowName,
			Local:     Fingerprint(sec.Prompt),
		}
		res, err := r.service.Lookup(ctx, sec.FlowName, r.alias)
		if err != nil {
			return nil, fmt.Errorf("failed to look up flow %s: %w", sec.FlowName, err)
		}
		v.Status = res.Status
		if res.Status != NotFound {
			def, err := r.service.GetDefinition(ctx, res.Handle.FlowID)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch definition of %s: %w", sec.FlowName, err)
			}
			if v.Remote, err = def.Fingerprint(); err != nil {
				return nil, fmt.Errorf("flow %s: %w", sec.FlowName, err)
			}
		}
		v.InSync = res.Status == Found && v.Local == v.Remote
		out = append(out, v)
	}
	return out, nil
}

// Verification compares a flow's remote prompt with the local one.
type Verification struct {
	SectionID string       `json:"section_id"`
	FlowName  string       `json:"flow_name"`
	Local     string       `json:"local"`
	Remote    string       `json:"remote"`
	Status    LookupStatus `json:"status"`
	InSync    bool         `json:"in_sync"`
}
