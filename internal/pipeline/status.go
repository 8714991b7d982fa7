package pipeline

import (
	"context"

	"panelmotion/internal/domain"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// StatusQuery serves read-only job snapshots. It never polls or mutates.
type StatusQuery struct {
	repo domain.JobRepository
}

func NewStatusQuery(repo domain.JobRepository) *StatusQuery {
	return &StatusQuery{repo: repo}
}

// Status returns the stored job or a NotFoundError.
func (q *StatusQuery) Status(ctx context.Context, jobID string) (*domain.Job, error) {
	return q.repo.Get(ctx, jobID)
}

// List returns the newest jobs first. The limit is clamped to 1..100 and
// defaults to 20.
func (q *StatusQuery) List(ctx context.Context, limit int) ([]domain.Job, error) {
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	return q.repo.List(ctx, limit)
}

// Stages returns the ordered stage catalogue.
func (q *StatusQuery) Stages() []domain.StageInfo {
	return domain.Stages()
}
