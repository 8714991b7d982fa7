package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"panelmotion/internal/domain"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS pipeline_jobs (
    id TEXT PRIMARY KEY,
    stage TEXT NOT NULL,
    progress INTEGER NOT NULL DEFAULT 0,
    original_url TEXT NOT NULL,
    preprocessed_url TEXT NOT NULL DEFAULT '',
    colorized_url TEXT NOT NULL DEFAULT '',
    background_url TEXT NOT NULL DEFAULT '',
    animated_url TEXT NOT NULL DEFAULT '',
    audio_url TEXT NOT NULL DEFAULT '',
    final_video_url TEXT NOT NULL DEFAULT '',
    background_type TEXT NOT NULL DEFAULT '',
    background_prompt TEXT NOT NULL DEFAULT '',
    animation_type TEXT NOT NULL DEFAULT '',
    voice_type TEXT NOT NULL DEFAULT '',
    dialogue_text TEXT NOT NULL DEFAULT '',
    pending_operation_id TEXT NOT NULL DEFAULT '',
    pending_stage TEXT NOT NULL DEFAULT '',
    pending_since INTEGER,
    version INTEGER NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    heartbeat_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_pipeline_jobs_created ON pipeline_jobs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_pipeline_jobs_pending ON pipeline_jobs(pending_operation_id, pending_since);
`

const sqliteJobColumns = `id, stage, progress,
    original_url, preprocessed_url, colorized_url, background_url, animated_url, audio_url, final_video_url,
    background_type, background_prompt, animation_type, voice_type, dialogue_text,
    pending_operation_id, pending_stage, pending_since,
    version, created_at, updated_at, heartbeat_at`

// JobRepositorySQLite implements domain.JobRepository on a local SQLite file.
// Timestamps are stored as unix milliseconds.
type JobRepositorySQLite struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(path string) (*JobRepositorySQLite, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &JobRepositorySQLite{db: db, path: path, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (r *JobRepositorySQLite) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Ping verifies the database is reachable.
func (r *JobRepositorySQLite) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *JobRepositorySQLite) Create(ctx context.Context, job *domain.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	now := r.now().UTC().Truncate(time.Millisecond)
	err := retryOnBusy(ctx, func() error {
		_, err := r.db.ExecContext(ctx, `INSERT INTO pipeline_jobs (`+sqliteJobColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, NULL)`,
			job.ID, string(job.Stage), job.Progress,
			job.OriginalURL, job.PreprocessedURL, job.ColorizedURL, job.BackgroundURL, job.AnimatedURL, job.AudioURL, job.FinalVideoURL,
			job.BackgroundType, job.BackgroundPrompt, job.AnimationType, job.VoiceType, job.DialogueText,
			job.PendingOperationID, string(job.PendingStage), toMillis(job.PendingSince),
			now.UnixMilli(), now.UnixMilli(),
		)
		return err
	})
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	job.Version = 1
	job.CreatedAt = now
	job.UpdatedAt = now
	return nil
}

func (r *JobRepositorySQLite) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sqliteJobColumns+` FROM pipeline_jobs WHERE id = ?`, jobID)
	job, err := scanSQLiteJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.NotFoundError{JobID: jobID}
		}
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return job, nil
}

func (r *JobRepositorySQLite) Update(ctx context.Context, job *domain.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	now := r.now().UTC().Truncate(time.Millisecond)
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := r.db.ExecContext(ctx, `UPDATE pipeline_jobs SET
    stage = ?, progress = ?,
    preprocessed_url = ?, colorized_url = ?, background_url = ?, animated_url = ?, audio_url = ?, final_video_url = ?,
    background_type = ?, background_prompt = ?, animation_type = ?, voice_type = ?, dialogue_text = ?,
    pending_operation_id = ?, pending_stage = ?, pending_since = ?,
    version = version + 1, updated_at = ?
WHERE id = ? AND version = ?`,
			string(job.Stage), job.Progress,
			job.PreprocessedURL, job.ColorizedURL, job.BackgroundURL, job.AnimatedURL, job.AudioURL, job.FinalVideoURL,
			job.BackgroundType, job.BackgroundPrompt, job.AnimationType, job.VoiceType, job.DialogueText,
			job.PendingOperationID, string(job.PendingStage), toMillis(job.PendingSince),
			now.UnixMilli(),
			job.ID, job.Version,
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("update job %s: %w", job.ID, err)
	}
	if affected == 0 {
		if _, getErr := r.Get(ctx, job.ID); getErr != nil {
			return getErr
		}
		return domain.ErrConflict
	}
	job.Version++
	job.UpdatedAt = now
	return nil
}

func (r *JobRepositorySQLite) List(ctx context.Context, limit int) ([]domain.Job, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sqliteJobColumns+` FROM pipeline_jobs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanSQLiteJob(rows)
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

func (r *JobRepositorySQLite) Touch(ctx context.Context, jobID string, at time.Time) error {
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := r.db.ExecContext(ctx, `UPDATE pipeline_jobs SET heartbeat_at = ? WHERE id = ?`, at.UTC().UnixMilli(), jobID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("touch job %s: %w", jobID, err)
	}
	if affected == 0 {
		return &domain.NotFoundError{JobID: jobID}
	}
	return nil
}

// ClaimStale relies on the single connection to serialize competing claims.
func (r *JobRepositorySQLite) ClaimStale(ctx context.Context, staleBefore, now time.Time) (*domain.Job, error) {
	var job *domain.Job
	err := retryOnBusy(ctx, func() error {
		row := r.db.QueryRowContext(ctx, `UPDATE pipeline_jobs SET heartbeat_at = ?
WHERE id = (
    SELECT id FROM pipeline_jobs
    WHERE pending_operation_id <> ''
      AND COALESCE(heartbeat_at, pending_since, updated_at) < ?
    ORDER BY pending_since ASC
    LIMIT 1
)
RETURNING `+sqliteJobColumns, now.UTC().UnixMilli(), staleBefore.UTC().UnixMilli())
		var err error
		job, err = scanSQLiteJob(row)
		return err
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("claim stale job: %w", err)
	}
	return job, nil
}

func scanSQLiteJob(row scanner) (*domain.Job, error) {
	var (
		job          domain.Job
		stage        string
		pendingStage string
		pendingSince sql.NullInt64
		createdAt    int64
		updatedAt    int64
		heartbeatAt  sql.NullInt64
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
		&pendingSince,
		&job.Version,
		&createdAt,
		&updatedAt,
		&heartbeatAt,
	); err != nil {
		return nil, err
	}
	job.Stage = domain.Stage(stage)
	job.PendingStage = domain.Stage(pendingStage)
	job.PendingSince = fromMillis(pendingSince)
	job.CreatedAt = time.UnixMilli(createdAt).UTC()
	job.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	job.HeartbeatAt = fromMillis(heartbeatAt)
	return &job, nil
}

func toMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().UnixMilli()
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

var _ domain.JobRepository = (*JobRepositorySQLite)(nil)
