package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"panelmotion/internal/domain"
)

// JobRepositoryMemory is a process-local domain.JobRepository for development and tests.
type JobRepositoryMemory struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
	now  func() time.Time
}

// NewMemoryJobRepository returns an empty in-memory repository.
func NewMemoryJobRepository() *JobRepositoryMemory {
	return &JobRepositoryMemory{jobs: make(map[string]*domain.Job), now: time.Now}
}

func (r *JobRepositoryMemory) Create(ctx context.Context, job *domain.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.ID]; exists {
		return domain.ErrConflict
	}
	now := r.now().UTC()
	job.Version = 1
	job.CreatedAt = now
	job.UpdatedAt = now
	r.jobs[job.ID] = job.Clone()
	return nil
}

func (r *JobRepositoryMemory) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.jobs[jobID]
	if !ok {
		return nil, &domain.NotFoundError{JobID: jobID}
	}
	return stored.Clone(), nil
}

func (r *JobRepositoryMemory) Update(ctx context.Context, job *domain.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.jobs[job.ID]
	if !ok {
		return &domain.NotFoundError{JobID: job.ID}
	}
	if stored.Version != job.Version {
		return domain.ErrConflict
	}
	next := job.Clone()
	next.OriginalURL = stored.OriginalURL
	next.CreatedAt = stored.CreatedAt
	next.HeartbeatAt = stored.HeartbeatAt
	next.Version = stored.Version + 1
	next.UpdatedAt = r.now().UTC()
	r.jobs[job.ID] = next

	job.Version = next.Version
	job.UpdatedAt = next.UpdatedAt
	return nil
}

func (r *JobRepositoryMemory) List(ctx context.Context, limit int) ([]domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, *job.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *JobRepositoryMemory) Touch(ctx context.Context, jobID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.jobs[jobID]
	if !ok {
		return &domain.NotFoundError{JobID: jobID}
	}
	ts := at.UTC()
	stored.HeartbeatAt = &ts
	return nil
}

func (r *JobRepositoryMemory) ClaimStale(ctx context.Context, staleBefore, now time.Time) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pick *domain.Job
	for _, job := range r.jobs {
		if !job.HasPending() || !lastSeen(job).Before(staleBefore) {
			continue
		}
		if pick == nil || pendingBefore(job, pick) {
			pick = job
		}
	}
	if pick == nil {
		return nil, domain.ErrNotFound
	}
	ts := now.UTC()
	pick.HeartbeatAt = &ts
	return pick.Clone(), nil
}

func lastSeen(job *domain.Job) time.Time {
	switch {
	case job.HeartbeatAt != nil:
		return *job.HeartbeatAt
	case job.PendingSince != nil:
		return *job.PendingSince
	default:
		return job.UpdatedAt
	}
}

func pendingBefore(a, b *domain.Job) bool {
	if a.PendingSince == nil || b.PendingSince == nil {
		return a.PendingSince == nil && b.PendingSince != nil
	}
	return a.PendingSince.Before(*b.PendingSince)
}

var _ domain.JobRepository = (*JobRepositoryMemory)(nil)
