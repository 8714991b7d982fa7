package pipeline

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"panelmotion/internal/domain"
	"panelmotion/internal/infra"
)

// Resumer claims jobs whose pending operation lost its poller and re-attaches
// to them with bounded concurrency.
type Resumer struct {
	repo         domain.JobRepository
	orchestrator *Orchestrator
	logger       *infra.Logger
	staleAfter   time.Duration
	concurrency  int
	now          func() time.Time
}

// ResumerOptions wires a Resumer.
type ResumerOptions struct {
	StaleAfter  time.Duration
	Concurrency int
	Logger      *infra.Logger
	Now         func() time.Time
}

func NewResumer(repo domain.JobRepository, orchestrator *Orchestrator, opts ResumerOptions) *Resumer {
	r := &Resumer{
		repo:         repo,
		orchestrator: orchestrator,
		logger:       opts.Logger,
		staleAfter:   opts.StaleAfter,
		concurrency:  opts.Concurrency,
		now:          opts.Now,
	}
	if r.logger == nil {
		r.logger = infra.DiscardLogger()
	}
	if r.staleAfter <= 0 {
		r.staleAfter = 2 * time.Minute
	}
	if r.concurrency <= 0 {
		r.concurrency = 1
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// RunOnce claims up to the concurrency limit of stale jobs and resumes them.
// It returns the number of jobs claimed. Resume failures are logged, not returned.
func (r *Resumer) RunOnce(ctx context.Context) (int, error) {
	var claimed []*domain.Job
	for len(claimed) < r.concurrency {
		now := r.now()
		job, err := r.repo.ClaimStale(ctx, now.Add(-r.staleAfter), now)
		if errors.Is(err, domain.ErrNotFound) {
			break
		}
		if err != nil {
			return len(claimed), err
		}
		claimed = append(claimed, job)
	}
	if len(claimed) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, job := range claimed {
		job := job
		g.Go(func() error {
			updated, err := r.orchestrator.resume(gctx, job)
			log := r.logger.With().Str("job_id", job.ID).Str("stage", string(job.PendingStage)).Logger()
			if err != nil {
				log.Warn().Err(err).Msg("resumer: resume ended with error")
				return nil
			}
			log.Info().Str("now_stage", string(updated.Stage)).Int("progress", updated.Progress).Msg("resumer: job resumed")
			return nil
		})
	}
	return len(claimed), g.Wait()
}

// Run calls RunOnce every interval until ctx ends.
func (r *Resumer) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if n, err := r.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error().Err(err).Msg("resumer: claim failed")
		} else if n > 0 {
			r.logger.Info().Int("claimed", n).Msg("resumer: round finished")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
