package state

import (
	"errors"
	"testing"
	"time"

	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/utils"
)

func TestRegistry_AddAndGet(t *testing.T) {
	r := NewRegistry(8, time.Minute)

	job := NewJob("job-1", nil)
	if err := r.Add(job); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	got, err := r.Get("job-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID() != "job-1" {
		t.Errorf("Expected job-1, got %q", got.ID())
	}
}

func TestRegistry_UnknownJob(t *testing.T) {
	r := NewRegistry(8, time.Minute)

	if _, err := r.Get("missing"); !errors.Is(err, utils.ErrJobNotFound) {
		t.Errorf("Get(missing) = %v, want ErrJobNotFound", err)
	}
}

func TestRegistry_TerminalJobsExpire(t *testing.T) {
	r := NewRegistry(8, 20*time.Millisecond)

	job := NewJob("job-1", nil)
	if err := r.Add(job); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	job.Start()
	job.Complete("done")
	r.MarkTerminal("job-1")

	if _, err := r.Get("job-1"); err != nil {
		t.Fatalf("Terminal job must remain visible within the horizon: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	if _, err := r.Get("job-1"); !errors.Is(err, utils.ErrJobNotFound) {
		t.Errorf("Expected expiry after the retention horizon, got %v", err)
	}
}

func TestRegistry_ActiveJobsDoNotExpire(t *testing.T) {
	r := NewRegistry(8, 20*time.Millisecond)

	job := NewJob("job-1", nil)
	if err := r.Add(job); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	job.Start()

	time.Sleep(50 * time.Millisecond)

	if _, err := r.Get("job-1"); err != nil {
		t.Errorf("Running jobs must never expire, got %v", err)
	}
}

func TestRegistry_Snapshots(t *testing.T) {
	r := NewRegistry(8, time.Minute)

	for _, id := range []string{"a", "b", "c"} {
		if err := r.Add(NewJob(id, nil)); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	snaps := r.Snapshots()
	if len(snaps) != 3 {
		t.Errorf("Expected 3 snapshots, got %d", len(snaps))
	}
	if r.Len() != 3 {
		t.Errorf("Expected Len 3, got %d", r.Len())
	}
}

func TestRegistry_Defaults(t *testing.T) {
	r := NewRegistry(0, 0)

	if r.retention != DefaultRetention {
		t.Errorf("Expected default retention, got %v", r.retention)
	}
}
