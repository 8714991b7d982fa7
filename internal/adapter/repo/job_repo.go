package repo

import (
	"context"
	"fmt"
	"time"

	"panelmotion/internal/domain"
	"panelmotion/internal/infra"
	"panelmotion/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository on PostgreSQL.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

type scanner interface {
	Scan(dest ...any) error
}

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	row := r.sql.QueryRow(ctx, sqlinline.QInsertJob,
		job.ID,
		string(job.Stage),
		job.Progress,
		job.OriginalURL,
		job.PreprocessedURL,
		job.ColorizedURL,
		job.BackgroundURL,
		job.AnimatedURL,
		job.AudioURL,
		job.FinalVideoURL,
		job.BackgroundType,
		job.BackgroundPrompt,
		job.AnimationType,
		job.VoiceType,
		job.DialogueText,
		job.PendingOperationID,
		string(job.PendingStage),
		job.PendingSince,
	)
	if err := row.Scan(&job.Version, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

// Get fetches a job by its identifier.
func (r *JobRepositoryPG) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectJobByID, jobID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, &domain.NotFoundError{JobID: jobID}
		}
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return job, nil
}

// Update writes job when the stored version still matches job.Version.
func (r *JobRepositoryPG) Update(ctx context.Context, job *domain.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	row := r.sql.QueryRow(ctx, sqlinline.QUpdateJob,
		job.ID,
		job.Version,
		string(job.Stage),
		job.Progress,
		job.PreprocessedURL,
		job.ColorizedURL,
		job.BackgroundURL,
		job.AnimatedURL,
		job.AudioURL,
		job.FinalVideoURL,
		job.BackgroundType,
		job.BackgroundPrompt,
		job.AnimationType,
		job.VoiceType,
		job.DialogueText,
		job.PendingOperationID,
		string(job.PendingStage),
		job.PendingSince,
	)
	var (
		version   int64
		updatedAt time.Time
	)
	if err := row.Scan(&version, &updatedAt); err != nil {
		if !infra.IsNoRows(err) {
			return fmt.Errorf("update job %s: %w", job.ID, err)
		}
		if _, getErr := r.Get(ctx, job.ID); getErr != nil {
			return getErr
		}
		return domain.ErrConflict
	}
	job.Version = version
	job.UpdatedAt = updatedAt
	return nil
}

// List returns the newest jobs first.
func (r *JobRepositoryPG) List(ctx context.Context, limit int) ([]domain.Job, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListJobs, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]domain.Job, 0, limit)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Touch records a poll heartbeat.
func (r *JobRepositoryPG) Touch(ctx context.Context, jobID string, at time.Time) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QTouchJob, jobID, at.UTC())
	if err != nil {
		return fmt.Errorf("touch job %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{JobID: jobID}
	}
	return nil
}

// ClaimStale claims one abandoned in-flight job, skipping rows locked by other workers.
func (r *JobRepositoryPG) ClaimStale(ctx context.Context, staleBefore, now time.Time) (*domain.Job, error) {
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QClaimStaleJob, staleBefore.UTC(), now.UTC()))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("claim stale job: %w", err)
	}
	return job, nil
}

func scanJob(row scanner) (*domain.Job, error) {
	var (
		job          domain.Job
		stage        string
		pendingStage string
	)
	if err := row.Scan(
		&job.ID,
		&stage,
		&job.Progress,
		&job.OriginalURL,
		&job.PreprocessedURL,
		&job.ColorizedURL,
		&job.BackgroundURL,
		&job.AnimatedURL,
		&job.AudioURL,
		&job.FinalVideoURL,
		&job.BackgroundType,
		&job.BackgroundPrompt,
		&job.AnimationType,
		&job.VoiceType,
		&job.DialogueText,
		&job.PendingOperationID,
		&pendingStage,
		&job.PendingSince,
		&job.Version,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.HeartbeatAt,
	); err != nil {
		return nil, err
	}
	job.Stage = domain.Stage(stage)
	job.PendingStage = domain.Stage(pendingStage)
	return &job, nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
