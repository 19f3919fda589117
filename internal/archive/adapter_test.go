package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/utils"
)

func TestArtifactName(t *testing.T) {
	at := time.Date(2024, 3, 7, 14, 5, 9, 0, time.UTC)

	got := ArtifactName("Sales", at)
	want := "Sales_2024-03-07T14-05-09Z.bacpac"
	if got != want {
		t.Errorf("ArtifactName = %q, want %q", got, want)
	}
	if strings.ContainsAny(got, ":.") && !strings.HasSuffix(got, ArtifactExt) {
		t.Errorf("ArtifactName %q contains filesystem-hostile characters", got)
	}
}

// fakeTool writes an executable shell script standing in for sqlpackage.
func fakeTool(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tool scripts require a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-sqlpackage")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAdapter_ExportSuccess(t *testing.T) {
	tool := fakeTool(t, `
echo "Connecting to database Sales"
echo "Extracting schema"
echo "Processing Table '[dbo].[Orders]'"
echo "Writing package"
exit 0
`)
	a := New(tool, t.TempDir(), utils.NewSilentLogger())
	a.now = func() time.Time { return time.Date(2024, 3, 7, 14, 5, 9, 0, time.UTC) }

	var stages []string
	var percents []int
	artifact, err := a.Export(context.Background(), "Server=db1;Database=Sales", "Sales", func(p int, stage string) {
		percents = append(percents, p)
		stages = append(stages, stage)
	})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	if artifact.Database != "Sales" {
		t.Errorf("Expected database Sales, got %q", artifact.Database)
	}
	if filepath.Base(artifact.Path) != "Sales_2024-03-07T14-05-09Z.bacpac" {
		t.Errorf("Unexpected artifact path %q", artifact.Path)
	}

	if len(percents) != 4 {
		t.Fatalf("Expected 4 progress updates, got %d: %v", len(percents), percents)
	}
	for i := 1; i < len(percents); i++ {
		if percents[i] <= percents[i-1] {
			t.Errorf("Progress not monotonic: %v", percents)
		}
	}
	if stages[1] != "Extracting schema" {
		t.Errorf("Unexpected stage %q", stages[1])
	}
}

func TestAdapter_ExportToolFailure(t *testing.T) {
	tool := fakeTool(t, `
echo "some unrecognized output"
echo "login failed for user" >&2
exit 3
`)
	a := New(tool, t.TempDir(), utils.NewSilentLogger())

	updates := 0
	_, err := a.Export(context.Background(), "Server=db1;Database=Sales", "Sales", func(int, string) {
		updates++
	})
	if err == nil {
		t.Fatal("Expected an error from a nonzero exit")
	}
	if !errors.Is(err, utils.ErrExternalTool) {
		t.Errorf("Expected ErrExternalTool, got %v", err)
	}

	var toolErr *ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("Expected *ToolError, got %T", err)
	}
	if toolErr.Missing {
		t.Error("A tool that ran and failed must not be reported as missing")
	}
	if toolErr.ExitCode != 3 {
		t.Errorf("Expected exit code 3, got %d", toolErr.ExitCode)
	}
	if !strings.Contains(toolErr.Stderr, "login failed") {
		t.Errorf("Expected captured stderr, got %q", toolErr.Stderr)
	}
	if !strings.Contains(err.Error(), "exited with code 3") {
		t.Errorf("Expected exit code in message, got %q", err.Error())
	}
	if updates != 0 {
		t.Errorf("Expected no progress updates without milestones, got %d", updates)
	}
}

func TestAdapter_ToolMissing(t *testing.T) {
	a := New(filepath.Join(t.TempDir(), "no-such-tool"), t.TempDir(), utils.NewSilentLogger())

	_, err := a.Export(context.Background(), "Server=db1;Database=Sales", "Sales", nil)
	if err == nil {
		t.Fatal("Expected an error for a missing tool")
	}
	if !errors.Is(err, utils.ErrExternalTool) {
		t.Errorf("Expected ErrExternalTool, got %v", err)
	}

	var toolErr *ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("Expected *ToolError, got %T", err)
	}
	if !toolErr.Missing {
		t.Error("A tool that never started must be reported as missing")
	}
}

func TestAdapter_ImportArgs(t *testing.T) {
	// The fake tool echoes its arguments so the test can check the wiring.
	tool := fakeTool(t, `
echo "$@"
echo "Importing data"
exit 0
`)
	a := New(tool, t.TempDir(), utils.NewSilentLogger())

	artifact := &Artifact{Path: "/tmp/Sales_x.bacpac", Database: "Sales"}
	var sawImport bool
	err := a.Import(context.Background(), artifact, "Server=db2;Database=Sales_copy", func(p int, stage string) {
		if stage == "Importing data" {
			sawImport = true
		}
	})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if !sawImport {
		t.Error("Expected the import-data milestone to be reported")
	}
}

func TestAdapter_Cancellation(t *testing.T) {
	tool := fakeTool(t, `
echo "Extracting schema"
sleep 10
exit 0
`)
	a := New(tool, t.TempDir(), utils.NewSilentLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := a.Export(ctx, "Server=db1;Database=Sales", "Sales", nil)
	if err == nil {
		t.Fatal("Expected an error after cancellation")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Cancellation must kill the child process, took %v", elapsed)
	}
}

func TestArtifact_Remove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Sales_x.bacpac")
	if err := os.WriteFile(path, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	artifact := &Artifact{Path: path, Database: "Sales"}
	if err := artifact.Remove(); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Expected the archive file to be gone")
	}
}
