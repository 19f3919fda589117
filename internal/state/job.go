// Package state provides the replication job model: a validated status state
// machine with progress snapshots and change notification for observers.
package state

import (
	"context"
	"sync"
	"time"
)

// JobStatus represents the current status of a replication job.
type JobStatus string

const (
	// StatusPending indicates the job record exists but the pipeline has not started
	StatusPending JobStatus = "pending"
	// StatusRunning indicates the background pipeline is executing
	StatusRunning JobStatus = "running"
	// StatusCompleted indicates the job finished successfully
	StatusCompleted JobStatus = "completed"
	// StatusFailed indicates the job failed
	StatusFailed JobStatus = "failed"
	// StatusCancelled indicates the job was cancelled by the operator
	StatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// validTransitions defines allowed status transitions. Terminal states admit
// none, which is what prevents a pipeline that finishes late from overwriting
// a cancellation.
var validTransitions = map[JobStatus][]JobStatus{
	StatusPending:   {StatusRunning, StatusFailed, StatusCancelled},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

func isValidTransition(old, next JobStatus) bool {
	for _, s := range validTransitions[old] {
		if s == next {
			return true
		}
	}
	return false
}

// ConfigRef identifies the saved replication configuration a job originated
// from, when it did.
type ConfigRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Job is the mutable job record owned by the orchestrator. External observers
// only ever see value Snapshots, never the record itself.
type Job struct {
	mu        sync.RWMutex
	listeners []Listener
	cancel    context.CancelFunc

	id        string
	status    JobStatus
	progress  int
	message   string
	startTime time.Time
	endTime   *time.Time
	errMsg    string
	config    *ConfigRef
}

// Snapshot is a consistent, fully-written view of a job at one point in time.
type Snapshot struct {
	ID        string     `json:"id"`
	Status    JobStatus  `json:"status"`
	Progress  int        `json:"progress"`
	Message   string     `json:"message"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Error     string     `json:"error,omitempty"`
	Config    *ConfigRef `json:"config,omitempty"`
}

// NewJob creates a pending job record.
func NewJob(id string, config *ConfigRef) *Job {
	return &Job{
		id:        id,
		status:    StatusPending,
		message:   "Replication queued",
		startTime: time.Now(),
		config:    config,
	}
}

// ID returns the job id.
func (j *Job) ID() string {
	return j.id
}

// BindCancel attaches the pipeline's cancellation function. Cancelling the
// job cancels the context, which also terminates an in-flight child process.
func (j *Job) BindCancel(cancel context.CancelFunc) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cancel = cancel
}

// Snapshot returns a consistent copy of the job's observable fields.
func (j *Job) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.snapshotLocked()
}

func (j *Job) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:        j.id,
		Status:    j.status,
		Progress:  j.progress,
		Message:   j.message,
		StartTime: j.startTime,
		Error:     j.errMsg,
		Config:    j.config,
	}
	if j.endTime != nil {
		end := *j.endTime
		snap.EndTime = &end
	}
	return snap
}

// Status returns the current status.
func (j *Job) Status() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// SetProgress updates progress and message together so observers never see a
// half-written pair. Updates after a terminal transition are dropped.
func (j *Job) SetProgress(progress int, message string) {
	j.mu.Lock()
	if j.status.IsTerminal() {
		j.mu.Unlock()
		return
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	j.progress = progress
	j.message = message
	snap := j.snapshotLocked()
	listeners := j.listeners
	j.mu.Unlock()

	emit(listeners, snap, Event{Type: EventProgress, Timestamp: time.Now()})
}

// transition moves the job to next if the state machine allows it, applying
// fn to the record under the lock. Returns false when the transition is
// rejected, e.g. completing a job that was already cancelled.
func (j *Job) transition(next JobStatus, fn func(*Job)) bool {
	j.mu.Lock()
	if !isValidTransition(j.status, next) {
		j.mu.Unlock()
		return false
	}
	old := j.status
	j.status = next
	if next.IsTerminal() {
		now := time.Now()
		j.endTime = &now
	}
	if fn != nil {
		fn(j)
	}
	snap := j.snapshotLocked()
	listeners := j.listeners
	cancel := j.cancel
	j.mu.Unlock()

	if next == StatusCancelled && cancel != nil {
		cancel()
	}

	emit(listeners, snap, Event{
		Type:      EventStatusChanged,
		Timestamp: time.Now(),
		Data:      map[string]any{"oldStatus": old, "newStatus": next},
	})
	return true
}

// Start marks the job running. Returns false if it was cancelled first.
func (j *Job) Start() bool {
	return j.transition(StatusRunning, func(j *Job) {
		j.message = "Replication started"
	})
}

// Complete marks the job completed with full progress.
func (j *Job) Complete(message string) bool {
	return j.transition(StatusCompleted, func(j *Job) {
		j.progress = 100
		j.message = message
	})
}

// Fail marks the job failed and records the error message.
func (j *Job) Fail(message string) bool {
	return j.transition(StatusFailed, func(j *Job) {
		j.errMsg = message
		j.message = "Replication failed: " + message
	})
}

// Cancel transitions a running job to cancelled and cancels its pipeline
// context. Jobs in any other state are left untouched and false is returned.
func (j *Job) Cancel(message string) bool {
	j.mu.RLock()
	running := j.status == StatusRunning
	j.mu.RUnlock()
	if !running {
		return false
	}
	return j.transition(StatusCancelled, func(j *Job) {
		j.message = message
	})
}
