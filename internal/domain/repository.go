package domain

import (
	"context"
	"time"
)

// JobRepository defines persistence for job records. Every write is a
// compare-and-set on Job.Version.
type JobRepository interface {
	// Create inserts a new job at version 1.
	Create(ctx context.Context, job *Job) error
	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, jobID string) (*Job, error)
	// Update persists job when the stored version equals job.Version, then
	// increments job.Version. A mismatch returns ErrConflict.
	Update(ctx context.Context, job *Job) error
	// List returns the most recently created jobs first.
	List(ctx context.Context, limit int) ([]Job, error)
	// Touch records a poll heartbeat without bumping the version.
	Touch(ctx context.Context, jobID string, at time.Time) error
	// ClaimStale atomically claims one job whose pending operation has no
	// heartbeat since staleBefore. It returns ErrNotFound when none qualify.
	ClaimStale(ctx context.Context, staleBefore, now time.Time) (*Job, error)
}

// ArtifactStore persists produced media and returns a public locator.
type ArtifactStore interface {
	Put(ctx context.Context, data []byte, contentType string) (string, error)
}
