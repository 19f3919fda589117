package replicator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/archive"
	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/state"
	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/store"
	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/utils"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type fakeArchiver struct {
	mu         sync.Mutex
	artifact   *archive.Artifact
	exportErr  error
	importErr  error
	blockOnCtx bool
	importedTo string
}

func (f *fakeArchiver) Export(ctx context.Context, connStr, database string, progress archive.ProgressFunc) (*archive.Artifact, error) {
	if f.blockOnCtx {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.exportErr != nil {
		return nil, f.exportErr
	}
	if progress != nil {
		progress(50, "Extracting data")
	}
	return f.artifact, nil
}

func (f *fakeArchiver) Import(ctx context.Context, artifact *archive.Artifact, targetConnStr string, progress archive.ProgressFunc) error {
	if f.importErr != nil {
		return f.importErr
	}
	f.mu.Lock()
	f.importedTo = targetConnStr
	f.mu.Unlock()
	if progress != nil {
		progress(70, "Importing data")
	}
	return nil
}

type fakeProvisioner struct {
	name string
	err  error
}

func (f *fakeProvisioner) EnsureTarget(ctx context.Context, rawConnStr string) (string, string, error) {
	if f.err != nil {
		return "", "", f.err
	}
	return f.name, "Server=db2;Database=" + f.name, nil
}

type testRig struct {
	orch     *Orchestrator
	archiver *fakeArchiver
	prov     *fakeProvisioner

	mu         sync.Mutex
	ranScripts []string
	scriptConn string
}

func newRig(t *testing.T, st ConfigStore) *testRig {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Sales_x.bacpac")
	if err := os.WriteFile(path, []byte("archive"), 0o644); err != nil {
		t.Fatal(err)
	}

	rig := &testRig{
		archiver: &fakeArchiver{artifact: &archive.Artifact{Path: path, Database: "Sales"}},
		prov:     &fakeProvisioner{name: "Sales_copy"},
	}
	runScripts := func(ctx context.Context, rawConnStr string, scripts []string, logger utils.Logger) error {
		rig.mu.Lock()
		defer rig.mu.Unlock()
		rig.scriptConn = rawConnStr
		rig.ranScripts = append(rig.ranScripts, scripts...)
		return nil
	}
	rig.orch = New(utils.NewSilentLogger(), state.NewRegistry(16, time.Minute), rig.archiver, rig.prov, st, runScripts)
	rig.orch.connectSource = func(ctx context.Context, rawConnStr string) (io.Closer, error) {
		return nopCloser{}, nil
	}
	return rig
}

func waitTerminal(t *testing.T, o *Orchestrator, id string) state.Snapshot {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := o.Status(id)
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if snap.Status.IsTerminal() {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Job never reached a terminal state")
	return state.Snapshot{}
}

func TestOrchestrator_SuccessfulPipeline(t *testing.T) {
	rig := newRig(t, nil)

	id, err := rig.orch.Start(&Request{
		SourceConnStr: "Server=db1;Database=Sales;User Id=svc;Password=pw",
		TargetConnStr: "Server=db2;Database=Sales_copy",
		Scripts:       []string{"UPDATE dbo.Settings SET Env = 'staging'"},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	snap := waitTerminal(t, rig.orch, id)
	if snap.Status != state.StatusCompleted {
		t.Fatalf("Expected completed, got %q (%s)", snap.Status, snap.Error)
	}
	if snap.Progress != 100 {
		t.Errorf("Expected progress 100, got %d", snap.Progress)
	}
	if snap.EndTime == nil {
		t.Error("Expected end time on completion")
	}

	rig.mu.Lock()
	defer rig.mu.Unlock()
	if len(rig.ranScripts) != 1 {
		t.Fatalf("Expected 1 script run, got %d", len(rig.ranScripts))
	}
	// Scripts must target the database that was actually provisioned.
	if rig.scriptConn != "Server=db2;Database=Sales_copy" {
		t.Errorf("Scripts ran against %q", rig.scriptConn)
	}
	rig.archiver.mu.Lock()
	importedTo := rig.archiver.importedTo
	rig.archiver.mu.Unlock()
	if importedTo != "Server=db2;Database=Sales_copy" {
		t.Errorf("Import targeted %q", importedTo)
	}

	if _, err := os.Stat(rig.archiver.artifact.Path); !os.IsNotExist(err) {
		t.Error("Expected the archive to be deleted after import")
	}
}

func TestOrchestrator_SourceMustNameDatabase(t *testing.T) {
	rig := newRig(t, nil)

	_, err := rig.orch.Start(&Request{
		SourceConnStr: "Server=db1;User Id=svc;Password=pw",
		TargetConnStr: "Server=db2;Database=Sales_copy",
	})
	if !errors.Is(err, utils.ErrValidation) {
		t.Errorf("Expected ErrValidation, got %v", err)
	}
}

func TestOrchestrator_ExportFailureFailsJob(t *testing.T) {
	rig := newRig(t, nil)
	rig.archiver.exportErr = &archive.ToolError{Tool: "sqlpackage", ExitCode: 3, Stderr: "login failed"}

	id, err := rig.orch.Start(&Request{
		SourceConnStr: "Server=db1;Database=Sales",
		TargetConnStr: "Server=db2;Database=Sales_copy",
	})
	if err != nil {
		t.Fatal(err)
	}

	snap := waitTerminal(t, rig.orch, id)
	if snap.Status != state.StatusFailed {
		t.Fatalf("Expected failed, got %q", snap.Status)
	}
	for _, want := range []string{"exited with code 3"} {
		if !strings.Contains(snap.Error, want) {
			t.Errorf("Error %q missing %q", snap.Error, want)
		}
	}
	// Progress must stay at the last reached checkpoint.
	if snap.Progress != 10 {
		t.Errorf("Expected progress frozen at 10, got %d", snap.Progress)
	}
}

func TestOrchestrator_ProvisionFailureFailsJob(t *testing.T) {
	rig := newRig(t, nil)
	rig.prov.err = fmt.Errorf("%w: create database failed", utils.ErrProvisionFailed)

	id, err := rig.orch.Start(&Request{
		SourceConnStr: "Server=db1;Database=Sales",
		TargetConnStr: "Server=db2;Database=Sales_copy",
	})
	if err != nil {
		t.Fatal(err)
	}

	snap := waitTerminal(t, rig.orch, id)
	if snap.Status != state.StatusFailed {
		t.Fatalf("Expected failed, got %q", snap.Status)
	}
	// The archive is still cleaned up on the failure path.
	if _, err := os.Stat(rig.archiver.artifact.Path); !os.IsNotExist(err) {
		t.Error("Expected best-effort archive cleanup after failure")
	}
}

func TestOrchestrator_CancelKillsPipeline(t *testing.T) {
	rig := newRig(t, nil)
	rig.archiver.blockOnCtx = true

	id, err := rig.orch.Start(&Request{
		SourceConnStr: "Server=db1;Database=Sales",
		TargetConnStr: "Server=db2;Database=Sales_copy",
	})
	if err != nil {
		t.Fatal(err)
	}

	// Let the pipeline reach the blocking export.
	deadline := time.Now().Add(3 * time.Second)
	for {
		snap, err := rig.orch.Status(id)
		if err != nil {
			t.Fatal(err)
		}
		if snap.Status == state.StatusRunning && snap.Progress >= 10 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Pipeline never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := rig.orch.Cancel(id); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	snap := waitTerminal(t, rig.orch, id)
	if snap.Status != state.StatusCancelled {
		t.Fatalf("Expected cancelled, got %q", snap.Status)
	}

	// The unblocked pipeline must not flip the job to failed afterwards.
	time.Sleep(50 * time.Millisecond)
	snap, err = rig.orch.Status(id)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Status != state.StatusCancelled {
		t.Errorf("Late pipeline overwrote cancellation with %q", snap.Status)
	}
}

func TestOrchestrator_UnknownJob(t *testing.T) {
	rig := newRig(t, nil)

	if _, err := rig.orch.Status("missing"); !errors.Is(err, utils.ErrJobNotFound) {
		t.Errorf("Status(missing) = %v, want ErrJobNotFound", err)
	}
	if err := rig.orch.Cancel("missing"); !errors.Is(err, utils.ErrJobNotFound) {
		t.Errorf("Cancel(missing) = %v, want ErrJobNotFound", err)
	}
}

type fakeStore struct {
	mu          sync.Mutex
	connections map[string]*store.Connection
	scripts     map[string]*store.Script
	configs     map[string]*store.ReplicationConfig
	lastRun     map[string]time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		connections: map[string]*store.Connection{},
		scripts:     map[string]*store.Script{},
		configs:     map[string]*store.ReplicationConfig{},
		lastRun:     map[string]time.Time{},
	}
}

func (f *fakeStore) GetConnection(ctx context.Context, id string) (*store.Connection, error) {
	if c, ok := f.connections[id]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: connection %s", utils.ErrRecordNotFound, id)
}

func (f *fakeStore) GetScript(ctx context.Context, id string) (*store.Script, error) {
	if s, ok := f.scripts[id]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: script %s", utils.ErrRecordNotFound, id)
}

func (f *fakeStore) GetReplicationConfig(ctx context.Context, id string) (*store.ReplicationConfig, error) {
	if c, ok := f.configs[id]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: replication config %s", utils.ErrRecordNotFound, id)
}

func (f *fakeStore) UpdateReplicationConfigLastRun(ctx context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRun[id] = at
	return nil
}

func savedConfigFixture(targetCapable bool) *fakeStore {
	st := newFakeStore()
	st.connections["src"] = &store.Connection{
		ID: "src", Name: "prod", ConnectionString: "Server=db1;Database=Sales",
	}
	st.connections["dst"] = &store.Connection{
		ID: "dst", Name: "staging", ConnectionString: "Server=db2;Database=Sales_copy", IsTarget: targetCapable,
	}
	st.scripts["s1"] = &store.Script{ID: "s1", Name: "first", Body: "SELECT 1"}
	st.scripts["s2"] = &store.Script{ID: "s2", Name: "second", Body: "SELECT 2"}
	st.configs["cfg"] = &store.ReplicationConfig{
		ID: "cfg", Name: "nightly", SourceID: "src", TargetID: "dst", ScriptIDs: []string{"s1", "s2"},
	}
	return st
}

func TestOrchestrator_StartFromSavedConfig(t *testing.T) {
	st := savedConfigFixture(true)
	rig := newRig(t, st)

	id, err := rig.orch.StartFromSavedConfig(context.Background(), "cfg")
	if err != nil {
		t.Fatalf("StartFromSavedConfig failed: %v", err)
	}

	snap := waitTerminal(t, rig.orch, id)
	if snap.Status != state.StatusCompleted {
		t.Fatalf("Expected completed, got %q (%s)", snap.Status, snap.Error)
	}
	if snap.Config == nil || snap.Config.ID != "cfg" || snap.Config.Name != "nightly" {
		t.Errorf("Expected config ref on the job, got %+v", snap.Config)
	}

	rig.mu.Lock()
	scripts := append([]string(nil), rig.ranScripts...)
	rig.mu.Unlock()
	if len(scripts) != 2 || scripts[0] != "SELECT 1" || scripts[1] != "SELECT 2" {
		t.Errorf("Scripts out of order: %v", scripts)
	}

	// Last run is recorded asynchronously right after completion.
	deadline := time.Now().Add(time.Second)
	for {
		st.mu.Lock()
		_, recorded := st.lastRun["cfg"]
		st.mu.Unlock()
		if recorded {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Last run never recorded")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestOrchestrator_StartFromSavedConfig_TargetNotCapable(t *testing.T) {
	rig := newRig(t, savedConfigFixture(false))

	_, err := rig.orch.StartFromSavedConfig(context.Background(), "cfg")
	if !errors.Is(err, utils.ErrValidation) {
		t.Errorf("Expected ErrValidation, got %v", err)
	}
}

func TestOrchestrator_StartFromSavedConfig_UnknownConfig(t *testing.T) {
	rig := newRig(t, newFakeStore())

	_, err := rig.orch.StartFromSavedConfig(context.Background(), "missing")
	if !errors.Is(err, utils.ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound, got %v", err)
	}
}
