package flow

import (
	"context"
	"fmt"
	"sync"
)

// fakeService is an in-memory flow service that records lifecycle calls.
type fakeService struct {
	mu      sync.Mutex
	flows   map[string]*fakeFlow // by name
	byID    map[string]*fakeFlow
	nextID  int
	calls   []string
	failOn  map[string]error
	blockOn chan struct{}
}

type fakeFlow struct {
	id       string
	name     string
	def      Definition
	versions []Definition
	aliases  map[string]string // alias name -> alias id
	routes   map[string]string // alias id -> version
}

func newFakeService() *fakeService {
	return &fakeService{
		flows:  make(map[string]*fakeFlow),
		byID:   make(map[string]*fakeFlow),
		failOn: make(map[string]error),
	}
}

func (f *fakeService) record(call string) error {
	f.calls = append(f.calls, call)
	return f.failOn[call]
}

func (f *fakeService) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeService) mutations() int {
	return f.count("create") + f.count("update")
}

func (f *fakeService) Lookup(ctx context.Context, name, alias string) (LookupResult, error) {
	if f.blockOn != nil {
		select {
		case <-f.blockOn:
		case <-ctx.Done():
			return LookupResult{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("lookup"); err != nil {
		return LookupResult{}, err
	}
	fl, ok := f.flows[name]
	if !ok {
		return LookupResult{Status: NotFound}, nil
	}
	aliasID, ok := fl.aliases[alias]
	if !ok {
		return LookupResult{Status: AliasMissing, Handle: Handle{FlowID: fl.id}}, nil
	}
	return LookupResult{Status: Found, Handle: Handle{FlowID: fl.id, AliasID: aliasID}}, nil
}

func (f *fakeService) Create(_ context.Context, spec Spec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("create"); err != nil {
		return "", err
	}
	f.nextID++
	fl := &fakeFlow{
		id:      fmt.Sprintf("FLOW%d", f.nextID),
		name:    spec.Name,
		def:     spec.Definition,
		aliases: map[string]string{},
		routes:  map[string]string{},
	}
	f.flows[spec.Name] = fl
	f.byID[fl.id] = fl
	return fl.id, nil
}

func (f *fakeService) Update(_ context.Context, flowID string, spec Spec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("update"); err != nil {
		return err
	}
	f.byID[flowID].def = spec.Definition
	return nil
}

func (f *fakeService) GetDefinition(_ context.Context, flowID string) (Definition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("get"); err != nil {
		return Definition{}, err
	}
	return f.byID[flowID].def, nil
}

func (f *fakeService) Prepare(_ context.Context, flowID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record("prepare")
}

func (f *fakeService) CreateVersion(_ context.Context, flowID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("version"); err != nil {
		return "", err
	}
	fl := f.byID[flowID]
	fl.versions = append(fl.versions, fl.def)
	return fmt.Sprint(len(fl.versions)), nil
}

func (f *fakeService) CreateAlias(_ context.Context, flowID, alias, version string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("alias"); err != nil {
		return "", err
	}
	fl := f.byID[flowID]
	id := "ALIAS" + flowID
	fl.aliases[alias] = id
	fl.routes[id] = version
	return id, nil
}

func (f *fakeService) UpdateAlias(_ context.Context, flowID, aliasID, alias, version string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("update-alias"); err != nil {
		return err
	}
	f.byID[flowID].routes[aliasID] = version
	return nil
}

// seed installs a published flow directly, bypassing the call log.
func (f *fakeService) seed(name, prompt string) *fakeFlow {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	def := NewDefinition("seeded", prompt, DefaultInference())
	fl := &fakeFlow{
		id:       fmt.Sprintf("FLOW%d", f.nextID),
		name:     name,
		def:      def,
		versions: []Definition{def},
		aliases:  map[string]string{},
		routes:   map[string]string{},
	}
	fl.aliases["LATEST"] = "ALIAS" + fl.id
	fl.routes["ALIAS"+fl.id] = "1"
	f.flows[name] = fl
	f.byID[fl.id] = fl
	return fl
}

type memStore struct {
	mu   sync.Mutex
	fps  map[string]string
	sets int
	err  error
}

func newMemStore() *memStore {
	return &memStore{fps: make(map[string]string)}
}

func (m *memStore) Fingerprint(_ context.Context, name string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", false, m.err
	}
	fp, ok := m.fps[name]
	return fp, ok, nil
}

func (m *memStore) SetFingerprint(_ context.Context, name, fp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	m.fps[name] = fp
	return nil
}
