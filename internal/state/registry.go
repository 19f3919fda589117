package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/bluele/gcache"

	"github.com/BrianMcGrathOtised/Replicator-sub001/internal/utils"
)

// Registry default sizing. Active jobs are never evicted; terminal jobs are
// retained for the retention horizon and then expire.
const (
	DefaultCapacity  = 1024
	DefaultRetention = 24 * time.Hour
)

// Registry holds replication jobs for the process lifetime of their pipeline
// plus a bounded retention horizon after they reach a terminal state.
type Registry struct {
	cache     gcache.Cache
	retention time.Duration
}

// NewRegistry creates a registry with the given capacity and terminal-job
// retention horizon. Non-positive values fall back to the defaults.
func NewRegistry(capacity int, retention time.Duration) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Registry{
		cache:     gcache.New(capacity).LRU().Build(),
		retention: retention,
	}
}

// Add registers a job. Jobs without an expiration stay until MarkTerminal.
func (r *Registry) Add(job *Job) error {
	if err := r.cache.Set(job.ID(), job); err != nil {
		return fmt.Errorf("register job %s: %w", job.ID(), err)
	}
	return nil
}

// Get returns the job with the given id, or utils.ErrJobNotFound.
func (r *Registry) Get(id string) (*Job, error) {
	v, err := r.cache.Get(id)
	if err != nil {
		if errors.Is(err, gcache.KeyNotFoundError) {
			return nil, fmt.Errorf("%w: %s", utils.ErrJobNotFound, id)
		}
		return nil, fmt.Errorf("lookup job %s: %w", id, err)
	}
	return v.(*Job), nil
}

// MarkTerminal re-registers a finished job with the retention horizon so it
// eventually expires instead of accumulating for the process lifetime.
func (r *Registry) MarkTerminal(id string) {
	v, err := r.cache.Get(id)
	if err != nil {
		return
	}
	// Best effort: an eviction race here only shortens retention.
	_ = r.cache.SetWithExpire(id, v, r.retention)
}

// Snapshots returns a snapshot of every currently known job.
func (r *Registry) Snapshots() []Snapshot {
	all := r.cache.GetALL(true)
	snapshots := make([]Snapshot, 0, len(all))
	for _, v := range all {
		snapshots = append(snapshots, v.(*Job).Snapshot())
	}
	return snapshots
}

// Len returns the number of currently known jobs.
func (r *Registry) Len() int {
	return len(r.cache.GetALL(true))
}
