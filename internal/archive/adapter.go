// Package archive supervises the external sqlpackage tool that exports a
// database to a .bacpac archive and imports it on the target server. Progress
// is inferred from the tool's streamed stdout via a pluggable ProgressParser.
package archive

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/utils"
)

const (
	// DefaultToolPath is resolved against PATH when no explicit path is set.
	DefaultToolPath = "sqlpackage"
	// ArtifactExt is the archive file extension produced by the tool.
	ArtifactExt = ".bacpac"

	tempSubdir = "replicator-archives"
)

// Artifact is an exported archive on disk together with the database it was
// derived from.
type Artifact struct {
	Path     string
	Database string
}

// Remove deletes the archive file.
func (a *Artifact) Remove() error {
	return os.Remove(a.Path)
}

// ProgressFunc receives progress estimates on the adapter's [0,100] scale
// while the tool is still running.
type ProgressFunc func(percent int, stage string)

// ToolError reports an external tool invocation that could not start or that
// ran and exited nonzero. The two cases need different operator action, so
// Missing distinguishes them.
type ToolError struct {
	Tool     string
	Missing  bool
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	if e.Missing {
		return fmt.Sprintf("archive tool %q could not be started (is sqlpackage installed and on PATH?): %v", e.Tool, e.Err)
	}
	detail := strings.TrimSpace(e.Stderr)
	if detail == "" {
		detail = strings.TrimSpace(e.Stdout)
	}
	if detail != "" {
		return fmt.Sprintf("archive tool exited with code %d: %s", e.ExitCode, detail)
	}
	return fmt.Sprintf("archive tool exited with code %d", e.ExitCode)
}

// Unwrap lets callers match with errors.Is(err, utils.ErrExternalTool).
func (e *ToolError) Unwrap() error {
	return utils.ErrExternalTool
}

// Adapter invokes the external tool for export and import. The zero value is
// usable; fields override the defaults.
type Adapter struct {
	// ToolPath is the sqlpackage executable, default resolved from PATH.
	ToolPath string
	// TempDir is where exported archives are written, default a dedicated
	// subdirectory of the OS temp dir.
	TempDir string
	// Logger for stage transitions. Connection strings are never logged here.
	Logger utils.Logger

	// ExportParser and ImportParser override the default milestone sets.
	ExportParser func() ProgressParser
	ImportParser func() ProgressParser

	// now is swapped in tests for deterministic artifact names.
	now func() time.Time
}

// New creates an adapter with an explicit tool path and temp directory.
// Empty values keep the defaults.
func New(toolPath, tempDir string, logger utils.Logger) *Adapter {
	return &Adapter{ToolPath: toolPath, TempDir: tempDir, Logger: logger}
}

func (a *Adapter) tool() string {
	if a.ToolPath != "" {
		return a.ToolPath
	}
	return DefaultToolPath
}

func (a *Adapter) tempDir() string {
	if a.TempDir != "" {
		return a.TempDir
	}
	return filepath.Join(os.TempDir(), tempSubdir)
}

func (a *Adapter) timestamp() time.Time {
	if a.now != nil {
		return a.now()
	}
	return time.Now()
}

func (a *Adapter) logf(level string, format string, args ...interface{}) {
	if a.Logger == nil {
		return
	}
	switch level {
	case "debug":
		a.Logger.Debug(format, args...)
	case "warn":
		a.Logger.Warn(format, args...)
	default:
		a.Logger.Info(format, args...)
	}
}

// ArtifactName derives the deterministic archive file name for a database:
// the database name plus a sortable timestamp, filesystem-safe.
func ArtifactName(database string, t time.Time) string {
	ts := t.UTC().Format(time.RFC3339)
	ts = strings.ReplaceAll(ts, ":", "-")
	ts = strings.ReplaceAll(ts, ".", "-")
	return database + "_" + ts + ArtifactExt
}

// Export captures the database behind connStr into a .bacpac archive and
// returns the artifact. The archive directory is created on demand. progress
// may be nil.
func (a *Adapter) Export(ctx context.Context, connStr, database string, progress ProgressFunc) (*Artifact, error) {
	dir := a.tempDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, ArtifactName(database, a.timestamp()))

	parser := ProgressParser(NewMilestoneParser(DefaultExportMilestones()))
	if a.ExportParser != nil {
		parser = a.ExportParser()
	}

	a.logf("info", "Exporting database %s to %s", database, path)
	args := []string{
		"/a:Export",
		"/scs:" + connStr,
		"/tf:" + path,
	}
	if err := a.run(ctx, args, parser, progress); err != nil {
		return nil, err
	}
	a.logf("info", "Export of %s finished", database)
	return &Artifact{Path: path, Database: database}, nil
}

// Import restores the artifact into the database behind targetConnStr.
// progress may be nil.
func (a *Adapter) Import(ctx context.Context, artifact *Artifact, targetConnStr string, progress ProgressFunc) error {
	parser := ProgressParser(NewMilestoneParser(DefaultImportMilestones()))
	if a.ImportParser != nil {
		parser = a.ImportParser()
	}

	a.logf("info", "Importing archive %s", filepath.Base(artifact.Path))
	args := []string{
		"/a:Import",
		"/tcs:" + targetConnStr,
		"/sf:" + artifact.Path,
	}
	if err := a.run(ctx, args, parser, progress); err != nil {
		return err
	}
	a.logf("info", "Import of archive %s finished", filepath.Base(artifact.Path))
	return nil
}

// run starts the tool, feeds every stdout line through the parser while the
// process is still running, and maps start/exit failures to ToolError.
func (a *Adapter) run(ctx context.Context, args []string, parser ProgressParser, progress ProgressFunc) error {
	tool := a.tool()
	cmd := exec.CommandContext(ctx, tool, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("attach to archive tool stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return &ToolError{Tool: tool, Missing: true, Err: err}
	}

	var accumulated strings.Builder
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		accumulated.WriteString(line)
		accumulated.WriteString("\n")
		a.logf("debug", "%s: %s", filepath.Base(tool), line)
		if parser == nil {
			continue
		}
		if percent, stage, ok := parser.Parse(accumulated.String()); ok {
			a.logf("info", "%s (%d%%)", stage, percent)
			if progress != nil {
				progress(percent, stage)
			}
		}
	}

	err = cmd.Wait()
	if ctx.Err() != nil {
		// CommandContext killed the child; surface the cancellation so the
		// orchestrator can tell it apart from a tool failure.
		return fmt.Errorf("archive tool terminated: %w", ctx.Err())
	}
	if err != nil {
		toolErr := &ToolError{
			Tool:     tool,
			ExitCode: -1,
			Stdout:   accumulated.String(),
			Stderr:   stderr.String(),
			Err:      err,
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			toolErr.ExitCode = exitErr.ExitCode()
		}
		return toolErr
	}
	return nil
}
