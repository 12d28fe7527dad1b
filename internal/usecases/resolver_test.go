package usecases

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MyCarrier-DevOps/pcb-deps/internal/domain"
)

func mustClassify(t *testing.T, raw string) domain.Reference {
	t.Helper()
	ref, err := domain.ClassifyReference(raw)
	require.NoError(t, err)
	return ref
}

// resolverFixture wires an Orchestrator over in-memory tiers.
type resolverFixture struct {
	ws      *domain.Workspace
	lock    mockLock
	store   *mockDiscoveryStore
	remotes *mockRemotes
	log     *mockLogger
	orch    *Orchestrator
}

func newResolverFixture(t *testing.T) *resolverFixture {
	t.Helper()
	root := t.TempDir()
	f := &resolverFixture{
		ws: newTestWorkspace(root, "github.com/acme/ws",
			member(root, "github.com/acme/ws", "modules/psu", "0.2.0"),
			member(root, "github.com/acme/ws", "modules/psu/regulators", ""),
		),
		lock: mockLock{
			"github.com/acme/ws/modules/psu": "0.1.0",
			"github.com/acme/parts/res":      "1.0.0",
			"github.com/acme/parts/cap":      "0.5.0",
		},
		store:   newMockDiscoveryStore(),
		remotes: &mockRemotes{tags: map[string][]string{}},
		log:     &mockLogger{},
	}
	f.store.entries["github.com/acme/parts"] = domain.DiscoveryEntry{
		Repository: "github.com/acme/parts",
		Packages:   map[string]string{"res": "1.4.0", "ind": "0.2.0"},
	}
	engine := NewDiscoveryEngine(f.remotes, NewRemoteIndexCache(), f.log)
	f.orch = NewOrchestrator(NewDiscoveryService(f.store, engine, f.log), f.log)
	return f
}

func (f *resolverFixture) resolve(t *testing.T, raw string, offline bool) domain.Resolution {
	t.Helper()
	return f.orch.Resolve(context.Background(), mustClassify(t, raw), ResolveContext{
		Workspace: f.ws,
		Lockfile:  f.lock,
		FromDir:   filepath.Join(f.ws.Root, "modules", "psu"),
		Offline:   offline,
	})
}

func TestOrchestrator_TierPrecedence(t *testing.T) {
	tests := []struct {
		name       string
		ref        string
		wantModule string
		wantVer    string
		wantSource domain.ResolutionSource
	}{
		{
			name:       "workspace beats lockfile",
			ref:        "github.com/acme/ws/modules/psu/Psu.zen",
			wantModule: "github.com/acme/ws/modules/psu",
			wantVer:    "0.2.0",
			wantSource: domain.SourceWorkspace,
		},
		{
			name:       "nested workspace member wins by depth",
			ref:        "github.com/acme/ws/modules/psu/regulators/Buck.zen",
			wantModule: "github.com/acme/ws/modules/psu/regulators",
			wantVer:    "",
			wantSource: domain.SourceWorkspace,
		},
		{
			name:       "lockfile beats discovery cache",
			ref:        "github.com/acme/parts/res/R.zen",
			wantModule: "github.com/acme/parts/res",
			wantVer:    "1.0.0",
			wantSource: domain.SourceLockfile,
		},
		{
			name:       "discovery cache",
			ref:        "github.com/acme/parts/ind/L.zen",
			wantModule: "github.com/acme/parts/ind",
			wantVer:    "0.2.0",
			wantSource: domain.SourceCache,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newResolverFixture(t)

			res := f.resolve(t, tt.ref, false)

			require.True(t, res.Resolved, res.Diagnostic)
			assert.Equal(t, tt.wantModule, res.ModulePath)
			assert.Equal(t, tt.wantVer, res.Version.String())
			assert.Equal(t, tt.wantSource, res.Source)
			assert.Equal(t, int32(0), f.remotes.fetchCalls.Load())
		})
	}
}

func TestOrchestrator_RemoteDiscovery(t *testing.T) {
	f := newResolverFixture(t)
	f.remotes.tags["github.com/other/lib"] = []string{"sensors/v0.4.0", "sensors/v0.4.1"}

	res := f.resolve(t, "github.com/other/lib/sensors/Temp.zen", false)

	require.True(t, res.Resolved)
	assert.Equal(t, domain.SourceRemote, res.Source)
	assert.Equal(t, "github.com/other/lib/sensors", res.ModulePath)
	assert.Equal(t, "0.4.1", res.Version.String())
	assert.Equal(t, int32(1), f.remotes.fetchCalls.Load())

	res = f.resolve(t, "github.com/other/lib/sensors/Humidity.zen", false)
	require.True(t, res.Resolved)
	assert.Equal(t, domain.SourceCache, res.Source, "discovered facts are persisted")
	assert.Equal(t, int32(1), f.remotes.fetchCalls.Load())
}

func TestOrchestrator_OfflineNeverDiscovers(t *testing.T) {
	f := newResolverFixture(t)
	f.remotes.tags["github.com/other/lib"] = []string{"sensors/v0.4.0"}

	res := f.resolve(t, "github.com/other/lib/sensors/Temp.zen", true)

	assert.False(t, res.Resolved)
	assert.Contains(t, res.Diagnostic, "offline")
	assert.Equal(t, int32(0), f.remotes.fetchCalls.Load())
}

func TestOrchestrator_OfflineStillUsesCache(t *testing.T) {
	f := newResolverFixture(t)

	res := f.resolve(t, "github.com/acme/parts/ind/L.zen", true)

	require.True(t, res.Resolved)
	assert.Equal(t, domain.SourceCache, res.Source)
}

func TestOrchestrator_TransportFailureIsAMiss(t *testing.T) {
	f := newResolverFixture(t)
	f.remotes.fetchErr = fmt.Errorf("%w: both clone URLs failed", domain.ErrDiscoveryUnavailable)

	res := f.resolve(t, "github.com/other/lib/sensors/Temp.zen", false)

	assert.False(t, res.Resolved)
	assert.Contains(t, res.Diagnostic, "remote discovery unavailable")
	assert.Equal(t, []string{"remote discovery failed"}, f.log.warns)
}

func TestOrchestrator_NoPublishedPackage(t *testing.T) {
	f := newResolverFixture(t)
	f.remotes.tags["github.com/other/lib"] = []string{"sensors/v0.4.0"}

	res := f.resolve(t, "github.com/other/lib/actuators/Motor.zen", false)

	assert.False(t, res.Resolved)
	assert.Equal(t, "no published package contains this path", res.Diagnostic)
}

func TestOrchestrator_Aliases(t *testing.T) {
	f := newResolverFixture(t)

	res := f.resolve(t, "@stdlib/interfaces.zen", false)
	require.True(t, res.Resolved)
	assert.Equal(t, domain.SourceAlias, res.Source)
	assert.Equal(t, "github.com/diodeinc/stdlib", res.ModulePath)
	assert.True(t, res.Implicit)

	res = f.resolve(t, "@kicad-symbols/Device.kicad_sym", false)
	require.True(t, res.Resolved)
	assert.True(t, res.Asset)
	assert.Equal(t, "9.0.0", res.Version.String())

	res = f.resolve(t, "@unknown/x.zen", false)
	assert.False(t, res.Resolved)
	assert.Equal(t, "unknown alias @unknown", res.Diagnostic)
}

func TestOrchestrator_LocalPaths(t *testing.T) {
	f := newResolverFixture(t)

	res := f.resolve(t, "./regulators/Buck.zen", false)
	require.True(t, res.Resolved)
	assert.Equal(t, domain.SourceLocal, res.Source)
	assert.Equal(t, "github.com/acme/ws/modules/psu/regulators", res.ModulePath)

	res = f.resolve(t, "modules/psu/Psu.zen", false)
	require.True(t, res.Resolved, "bare relative paths are workspace-relative")
	assert.Equal(t, "github.com/acme/ws/modules/psu", res.ModulePath)
	assert.Equal(t, "0.2.0", res.Version.String())

	res = f.resolve(t, "../../elsewhere/X.zen", false)
	assert.False(t, res.Resolved)
}

func TestOrchestrator_WorkspaceWithoutRepository(t *testing.T) {
	root := t.TempDir()
	ws := newTestWorkspace(root, "", member(root, "", "", ""), member(root, "", "boards/main", ""))
	ws.RootManifest.Workspace = nil
	orch := NewOrchestrator(nil, &mockLogger{})

	res := orch.Resolve(context.Background(), mustClassify(t, "github.com/acme/lib/r.zen"), ResolveContext{
		Workspace: ws,
		Lockfile:  mockLock{"github.com/acme/lib": "1.2.0"},
		FromDir:   filepath.Join(root, "boards", "main"),
	})

	require.True(t, res.Resolved)
	assert.Equal(t, domain.SourceLockfile, res.Source)
	assert.Equal(t, "github.com/acme/lib", res.ModulePath)
	assert.Equal(t, "1.2.0", res.Version.String())

	res = orch.Resolve(context.Background(), mustClassify(t, "./R.zen"), ResolveContext{
		Workspace: ws,
		FromDir:   filepath.Join(root, "boards", "main"),
	})
	require.True(t, res.Resolved)
	assert.Equal(t, domain.SourceLocal, res.Source)
	assert.Equal(t, "boards/main", res.ModulePath)
}

func TestOrchestrator_WithoutDiscovery(t *testing.T) {
	orch := NewOrchestrator(nil, &mockLogger{})

	res := orch.Resolve(context.Background(), mustClassify(t, "github.com/acme/parts/res/R.zen"), ResolveContext{})

	assert.False(t, res.Resolved)
}

func TestReferenceService_ResolveOne(t *testing.T) {
	f := newResolverFixture(t)
	svc := NewReferenceService(&mockLoader{ws: f.ws}, lockLoader(f.lock, nil), f.orch, f.log)

	res, err := svc.ResolveOne(context.Background(), domain.ResolveInput{
		Start:     f.ws.Root,
		Reference: "github.com/acme/parts/res/R.zen",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.SourceLockfile, res.Source)
	assert.Equal(t, "1.0.0", res.Version.String())
}

func TestReferenceService_ResolveOne_LocalFromFile(t *testing.T) {
	f := newResolverFixture(t)
	psuDir := filepath.Join(f.ws.Root, "modules", "psu")
	require.NoError(t, os.MkdirAll(psuDir, 0o755))
	from := filepath.Join(psuDir, "Psu.zen")
	require.NoError(t, os.WriteFile(from, nil, 0o644))
	svc := NewReferenceService(&mockLoader{ws: f.ws}, lockLoader(f.lock, nil), f.orch, f.log)

	res, err := svc.ResolveOne(context.Background(), domain.ResolveInput{
		Start:     f.ws.Root,
		Reference: "./regulators/Buck.zen",
		FromFile:  from,
	})

	require.NoError(t, err)
	assert.Equal(t, "github.com/acme/ws/modules/psu/regulators", res.ModulePath)
}

func TestReferenceService_ResolveOne_Miss(t *testing.T) {
	f := newResolverFixture(t)
	svc := NewReferenceService(&mockLoader{ws: f.ws}, lockLoader(f.lock, nil), f.orch, f.log)

	res, err := svc.ResolveOne(context.Background(), domain.ResolveInput{
		Start:     f.ws.Root,
		Reference: "github.com/other/lib/sensors/Temp.zen",
		Offline:   true,
	})

	require.Error(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Resolved)
	assert.ErrorIs(t, err, domain.ErrUnresolved)
	var miss *domain.ResolutionMiss
	require.True(t, errors.As(err, &miss))
	assert.Equal(t, "github.com/other/lib", miss.Repository)
}

func TestReferenceService_ResolveOne_Errors(t *testing.T) {
	f := newResolverFixture(t)
	lockErr := errors.New("bad lockfile")

	tests := []struct {
		name    string
		svc     *ReferenceService
		ref     string
		wantErr error
	}{
		{
			name:    "invalid reference",
			svc:     NewReferenceService(&mockLoader{ws: f.ws}, lockLoader(f.lock, nil), f.orch, f.log),
			ref:     "  ",
			wantErr: domain.ErrInvalidReference,
		},
		{
			name:    "no workspace",
			svc:     NewReferenceService(&mockLoader{err: domain.ErrWorkspaceNotFound}, lockLoader(f.lock, nil), f.orch, f.log),
			ref:     "@stdlib",
			wantErr: domain.ErrWorkspaceNotFound,
		},
		{
			name:    "lockfile error",
			svc:     NewReferenceService(&mockLoader{ws: f.ws}, lockLoader(nil, lockErr), f.orch, f.log),
			ref:     "@stdlib",
			wantErr: lockErr,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.svc.ResolveOne(context.Background(), domain.ResolveInput{Start: f.ws.Root, Reference: tt.ref})

			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
