// Package replicator drives replication jobs end to end: connect to the
// source, export an archive, provision the target database, import, run the
// operator's scripts, clean up. Each job runs its own pipeline goroutine and
// reports through the shared job record.
package replicator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/archive"
	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/connstr"
	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/state"
	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/store"
	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/utils"
)

// Request carries everything one replication needs. Scripts are full script
// bodies in execution order.
type Request struct {
	SourceConnStr string
	TargetConnStr string
	Scripts       []string
	Settings      store.Settings
	ConfigRef     *state.ConfigRef
}

// Archiver exports a database to an archive and imports it elsewhere.
type Archiver interface {
	Export(ctx context.Context, connStr, database string, progress archive.ProgressFunc) (*archive.Artifact, error)
	Import(ctx context.Context, artifact *archive.Artifact, targetConnStr string, progress archive.ProgressFunc) error
}

// Provisioner ensures the target database exists, returning the name actually
// provisioned and the connection string rewritten to it.
type Provisioner interface {
	EnsureTarget(ctx context.Context, rawConnStr string) (string, string, error)
}

// ConfigStore resolves saved configurations for StartFromSavedConfig.
type ConfigStore interface {
	GetConnection(ctx context.Context, id string) (*store.Connection, error)
	GetScript(ctx context.Context, id string) (*store.Script, error)
	GetReplicationConfig(ctx context.Context, id string) (*store.ReplicationConfig, error)
	UpdateReplicationConfigLastRun(ctx context.Context, id string, at time.Time) error
}

// Orchestrator owns the job registry and runs one pipeline goroutine per job.
// Jobs do not block each other and there is no concurrency cap.
type Orchestrator struct {
	logger   utils.Logger
	registry *state.Registry
	archiver Archiver
	prov     Provisioner
	store    ConfigStore

	// Seams for tests; production wiring uses the package defaults.
	connectSource func(ctx context.Context, rawConnStr string) (io.Closer, error)
	runScripts    func(ctx context.Context, rawConnStr string, scripts []string, logger utils.Logger) error
	newID         func() string
}

// New creates an orchestrator. st may be nil when no saved-configuration
// storage is attached (one-shot CLI use).
func New(logger utils.Logger, registry *state.Registry, archiver Archiver, prov Provisioner, st ConfigStore, runScripts func(ctx context.Context, rawConnStr string, scripts []string, logger utils.Logger) error) *Orchestrator {
	o := &Orchestrator{
		logger:     logger,
		registry:   registry,
		archiver:   archiver,
		prov:       prov,
		store:      st,
		runScripts: runScripts,
		newID:      uuid.NewString,
	}
	o.connectSource = func(ctx context.Context, rawConnStr string) (io.Closer, error) {
		cfg, err := connstr.Parse(rawConnStr)
		if err != nil {
			return nil, err
		}
		return connstr.Connect(ctx, cfg, rawConnStr, logger)
	}
	return o
}

// Start validates the request, registers a pending job, launches the pipeline
// without blocking, and returns the job id.
func (o *Orchestrator) Start(req *Request) (string, error) {
	sourceCfg, err := connstr.Parse(req.SourceConnStr)
	if err != nil {
		return "", err
	}
	if sourceCfg.Database == "" {
		return "", fmt.Errorf("%w: source connection string names no database", utils.ErrValidation)
	}
	if _, err := connstr.Parse(req.TargetConnStr); err != nil {
		return "", err
	}

	id := o.newID()
	job := state.NewJob(id, req.ConfigRef)
	if err := o.registry.Add(job); err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(context.Background())
	job.BindCancel(cancel)

	go o.run(ctx, cancel, job, req, sourceCfg.Database)

	o.logger.Info("Replication job %s queued (source database %s)", id, sourceCfg.Database)
	return id, nil
}

// run is the pipeline. Progress checkpoints: connect 10, export 10-60,
// provision 60-70, import 70-90, scripts 95, cleanup 100.
func (o *Orchestrator) run(ctx context.Context, cancel context.CancelFunc, job *state.Job, req *Request, sourceDB string) {
	defer cancel()

	if !job.Start() {
		// Cancelled before the pipeline got scheduled.
		return
	}

	src, err := o.connectSource(ctx, req.SourceConnStr)
	if err != nil {
		o.fail(ctx, job, fmt.Errorf("connect to source: %w", err))
		return
	}
	defer src.Close()
	job.SetProgress(10, "Connected to source database")

	artifact, err := o.archiver.Export(ctx, req.SourceConnStr, sourceDB, window(job, 10, 60))
	if err != nil {
		o.fail(ctx, job, fmt.Errorf("export archive: %w", err))
		return
	}
	cleaned := false
	defer func() {
		if !cleaned {
			o.cleanup(job, artifact, req.Settings.KeepArchive)
		}
	}()
	job.SetProgress(60, "Archive exported")

	targetName, targetConnStr, err := o.prov.EnsureTarget(ctx, req.TargetConnStr)
	if err != nil {
		o.fail(ctx, job, err)
		return
	}
	job.SetProgress(70, "Provisioned target database "+targetName)

	job.SetProgress(70, "Import started")
	if err := o.archiver.Import(ctx, artifact, targetConnStr, window(job, 70, 90)); err != nil {
		o.fail(ctx, job, fmt.Errorf("import archive: %w", err))
		return
	}
	job.SetProgress(90, "Archive imported")

	if len(req.Scripts) > 0 {
		if err := o.runScripts(ctx, targetConnStr, req.Scripts, o.logger); err != nil {
			o.fail(ctx, job, err)
			return
		}
		job.SetProgress(95, "Configuration scripts executed")
	}

	o.cleanup(job, artifact, req.Settings.KeepArchive)
	cleaned = true

	if job.Complete("Replication completed, target database " + targetName) {
		o.registry.MarkTerminal(job.ID())
		o.logger.Success("Replication job %s completed into %s", job.ID(), targetName)
		o.recordLastRun(job)
	}
}

// fail routes a pipeline error into the job record. A pipeline torn down by
// cancellation keeps the cancelled status instead of flipping to failed.
func (o *Orchestrator) fail(ctx context.Context, job *state.Job, err error) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, utils.ErrCanceled) {
		o.logger.Info("Replication job %s stopped after cancellation", job.ID())
		o.registry.MarkTerminal(job.ID())
		return
	}
	if job.Fail(err.Error()) {
		o.registry.MarkTerminal(job.ID())
		o.logger.Error("Replication job %s failed: %v", job.ID(), err)
	}
}

// cleanup deletes the exported archive, best effort.
func (o *Orchestrator) cleanup(job *state.Job, artifact *archive.Artifact, keep bool) {
	if keep {
		o.logger.Info("Keeping archive %s", artifact.Path)
		return
	}
	if err := artifact.Remove(); err != nil {
		o.logger.Warn("Could not delete archive %s: %v", artifact.Path, err)
		return
	}
	job.SetProgress(100, "Temporary archive deleted")
}

func (o *Orchestrator) recordLastRun(job *state.Job) {
	ref := job.Snapshot().Config
	if o.store == nil || ref == nil {
		return
	}
	// The pipeline context is already cancelled at this point.
	if err := o.store.UpdateReplicationConfigLastRun(context.Background(), ref.ID, time.Now()); err != nil {
		o.logger.Warn("Could not record last run for config %s: %v", ref.ID, err)
	}
}

// window rescales the adapter's [0,100] progress into a checkpoint window.
func window(job *state.Job, lo, hi int) archive.ProgressFunc {
	return func(percent int, stage string) {
		job.SetProgress(lo+(hi-lo)*percent/100, stage)
	}
}

// Status returns the job's snapshot or utils.ErrJobNotFound.
func (o *Orchestrator) Status(id string) (state.Snapshot, error) {
	job, err := o.registry.Get(id)
	if err != nil {
		return state.Snapshot{}, err
	}
	return job.Snapshot(), nil
}

// List returns snapshots of every known job.
func (o *Orchestrator) List() []state.Snapshot {
	return o.registry.Snapshots()
}

// Subscribe attaches a listener to the job's change events.
func (o *Orchestrator) Subscribe(id string, l state.Listener) error {
	job, err := o.registry.Get(id)
	if err != nil {
		return err
	}
	job.Subscribe(l)
	return nil
}

// Cancel transitions a running job to cancelled and kills its in-flight
// pipeline, child process included. Cancelling a job that is not running is a
// no-op; an unknown id is utils.ErrJobNotFound.
func (o *Orchestrator) Cancel(id string) error {
	job, err := o.registry.Get(id)
	if err != nil {
		return err
	}
	if job.Cancel("Replication cancelled by operator") {
		o.registry.MarkTerminal(id)
		o.logger.Warn("Replication job %s cancelled", id)
	}
	return nil
}

// TestConnection connects with the fallback chain and introspects the server:
// product, version, current database, base tables.
func (o *Orchestrator) TestConnection(ctx context.Context, rawConnStr string) (*connstr.ServerInfo, error) {
	cfg, err := connstr.Parse(rawConnStr)
	if err != nil {
		return nil, err
	}
	db, err := connstr.Connect(ctx, cfg, rawConnStr, o.logger)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return connstr.Introspect(ctx, db)
}

// StartFromSavedConfig resolves a saved configuration through the store,
// validates the target, and starts the pipeline. The caller gets the job id
// immediately; later failures land in the job record only.
func (o *Orchestrator) StartFromSavedConfig(ctx context.Context, configID string) (string, error) {
	if o.store == nil {
		return "", fmt.Errorf("%w: no configuration store attached", utils.ErrValidation)
	}

	cfg, err := o.store.GetReplicationConfig(ctx, configID)
	if err != nil {
		return "", err
	}
	source, err := o.store.GetConnection(ctx, cfg.SourceID)
	if err != nil {
		return "", err
	}
	target, err := o.store.GetConnection(ctx, cfg.TargetID)
	if err != nil {
		return "", err
	}
	if !target.IsTarget {
		return "", fmt.Errorf("%w: connection %q is not flagged as a replication target", utils.ErrValidation, target.Name)
	}

	scripts := make([]string, 0, len(cfg.ScriptIDs))
	for _, id := range cfg.ScriptIDs {
		script, err := o.store.GetScript(ctx, id)
		if err != nil {
			return "", err
		}
		scripts = append(scripts, script.Body)
	}

	targetConnStr := target.ConnectionString
	if cfg.Settings.TargetDatabaseName != "" {
		targetConnStr = connstr.SetDatabase(targetConnStr, cfg.Settings.TargetDatabaseName)
	}

	return o.Start(&Request{
		SourceConnStr: source.ConnectionString,
		TargetConnStr: targetConnStr,
		Scripts:       scripts,
		Settings:      cfg.Settings,
		ConfigRef:     &state.ConfigRef{ID: cfg.ID, Name: cfg.Name},
	})
}
