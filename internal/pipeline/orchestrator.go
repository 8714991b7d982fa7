// Package pipeline sequences the stages of a panel-to-video job: it commits
// each stage start, invokes the stage's external operation, polls it to a
// terminal state and records the produced artifact.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"panelmotion/internal/domain"
	"panelmotion/internal/infra"
)

const (
	defaultMaxUploadBytes = 10 << 20
	defaultPollInterval   = 5 * time.Second
	defaultPollTimeout    = 10 * time.Minute
	defaultMaxTransient   = 3
	defaultOperationTTL   = time.Hour
	maxCommitAttempts     = 3
)

var (
	// ErrImageTooLarge marks an upload over the configured byte limit.
	ErrImageTooLarge = errors.New("image exceeds upload limit")
	// ErrUnsupportedImage marks an upload that is neither JPEG nor PNG.
	ErrUnsupportedImage = errors.New("unsupported image type")

	errSettled   = errors.New("already settled")
	errClaimLost = errors.New("stage start claim lost")
)

// Mirrorer copies an upstream output into the artifact store and returns the
// store locator. Locators the store already owns pass through.
type Mirrorer interface {
	Mirror(ctx context.Context, source string) (string, error)
}

// Image is an uploaded source panel.
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Options wires an Orchestrator.
type Options struct {
	Repo      domain.JobRepository
	Store     domain.ArtifactStore
	Mirror    Mirrorer
	Executors Executors
	Logger    *infra.Logger

	MaxUploadBytes int64
	PollInterval   time.Duration
	PollTimeout    time.Duration
	MaxTransient   int
	OperationTTL   time.Duration

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Orchestrator owns stage ordering, the two-phase invoke/poll protocol and
// progress accounting.
type Orchestrator struct {
	repo      domain.JobRepository
	store     domain.ArtifactStore
	mirror    Mirrorer
	executors map[domain.Stage]StageExecutor
	logger    *infra.Logger

	maxUploadBytes int64
	pollInterval   time.Duration
	pollTimeout    time.Duration
	maxTransient   int
	operationTTL   time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator validates opts and applies defaults.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Repo == nil {
		return nil, errors.New("pipeline: job repository is required")
	}
	if opts.Store == nil {
		return nil, errors.New("pipeline: artifact store is required")
	}
	executors := opts.Executors.build()
	for stage, exec := range executors {
		if exec.Operation() == nil {
			return nil, fmt.Errorf("pipeline: no operation configured for stage %s", stage)
		}
	}
	o := &Orchestrator{
		repo:           opts.Repo,
		store:          opts.Store,
		mirror:         opts.Mirror,
		executors:      executors,
		logger:         opts.Logger,
		maxUploadBytes: opts.MaxUploadBytes,
		pollInterval:   opts.PollInterval,
		pollTimeout:    opts.PollTimeout,
		maxTransient:   opts.MaxTransient,
		operationTTL:   opts.OperationTTL,
		now:            opts.Now,
		sleep:          opts.Sleep,
	}
	if o.logger == nil {
		o.logger = infra.DiscardLogger()
	}
	if o.maxUploadBytes <= 0 {
		o.maxUploadBytes = defaultMaxUploadBytes
	}
	if o.pollInterval <= 0 {
		o.pollInterval = defaultPollInterval
	}
	if o.pollTimeout <= 0 {
		o.pollTimeout = defaultPollTimeout
	}
	if o.maxTransient <= 0 {
		o.maxTransient = defaultMaxTransient
	}
	if o.operationTTL <= 0 {
		o.operationTTL = defaultOperationTTL
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.sleep == nil {
		o.sleep = sleepContext
	}
	return o, nil
}

// Start stores the image, creates the job and runs preprocessing and
// colorizing synchronously. When colorizing fails the persisted job is
// returned along with the error so the caller learns its id.
func (o *Orchestrator) Start(ctx context.Context, img Image) (*domain.Job, error) {
	contentType, err := o.validateImage(img)
	if err != nil {
		return nil, err
	}
	locator, err := o.store.Put(ctx, img.Data, contentType)
	if err != nil {
		return nil, fmt.Errorf("pipeline: store upload: %w", err)
	}

	job := &domain.Job{
		ID:          uuid.NewString(),
		Stage:       domain.StageUploaded,
		Progress:    domain.StageUploaded.Progress(),
		OriginalURL: locator,
	}
	if err := o.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("pipeline: create job: %w", err)
	}
	o.logger.Info().
		Str("job_id", job.ID).
		Str("filename", img.Filename).
		Int("bytes", len(img.Data)).
		Str("content_type", contentType).
		Msg("pipeline: job created")

	pre := job.Clone()
	pre.Stage = domain.StagePreprocessing
	if err := pre.SetArtifact(domain.StagePreprocessing, locator); err != nil {
		return job, err
	}
	pre.RaiseProgress(domain.StagePreprocessing)
	if err := o.repo.Update(ctx, pre); err != nil {
		return job, fmt.Errorf("pipeline: record preprocessing: %w", err)
	}

	return o.run(ctx, pre, o.executors[domain.StageColorizing], domain.StageParams{})
}

func (o *Orchestrator) validateImage(img Image) (string, error) {
	if len(img.Data) == 0 {
		return "", domain.Invalid("image", "image is empty")
	}
	if int64(len(img.Data)) > o.maxUploadBytes {
		return "", fmt.Errorf("%w: %w", ErrImageTooLarge,
			domain.Invalid("image", "image is %d bytes, limit is %d", len(img.Data), o.maxUploadBytes))
	}
	contentType := http.DetectContentType(img.Data)
	switch contentType {
	case "image/jpeg", "image/png":
		return contentType, nil
	default:
		return "", fmt.Errorf("%w: %w", ErrUnsupportedImage,
			domain.Invalid("image", "content type %s is not accepted, use JPEG or PNG", contentType))
	}
}

// Advance runs exactly one named stage with its parameters. Precondition and
// validation failures return a nil job and leave the record unchanged. Stage
// failures return the persisted job together with the error.
func (o *Orchestrator) Advance(ctx context.Context, jobID string, name domain.StageName, params domain.StageParams) (*domain.Job, error) {
	target, err := name.Stage()
	if err != nil {
		return nil, err
	}
	exec, ok := o.executors[target]
	if !ok {
		return nil, domain.Invalid("stage", "stage %s cannot be run directly", name)
	}
	job, err := o.repo.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return o.run(ctx, job, exec, params)
}

func (o *Orchestrator) run(ctx context.Context, job *domain.Job, exec StageExecutor, params domain.StageParams) (*domain.Job, error) {
	target := exec.Stage()
	if target.Before(job.Stage) {
		return nil, domain.Precondition(target, "job is already at stage %s", job.Stage)
	}
	if job.HasPending() {
		if job.PendingStage != target {
			return nil, domain.Precondition(target, "stage %s has an operation in flight", job.PendingStage)
		}
		o.logger.Info().
			Str("job_id", job.ID).
			Str("stage", string(target)).
			Str("operation_id", job.PendingOperationID).
			Msg("pipeline: re-attaching to pending operation")
		return o.await(ctx, job, exec)
	}
	if job.Claimed() {
		if !o.expired(job) {
			return nil, domain.Precondition(target, "stage %s is being started", job.PendingStage)
		}
		o.logger.Warn().
			Str("job_id", job.ID).
			Str("stage", string(job.PendingStage)).
			Msg("pipeline: taking over expired stage start")
	}

	inv, err := exec.Prepare(job, params)
	if err != nil {
		return nil, err
	}
	if job.Stage == target && job.Artifact(target) != "" {
		if sameParams(job, inv.Job) {
			return job, nil
		}
		return nil, domain.Precondition(target, "stage already completed with different parameters")
	}

	next := inv.Job
	next.Stage = target
	next.Claim(o.now())
	if err := o.repo.Update(ctx, next); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, &domain.PreconditionError{Stage: target, Reason: domain.ErrConflict.Error(), Err: err}
		}
		return nil, fmt.Errorf("pipeline: commit %s start: %w", target, err)
	}
	log := o.logger.With().Str("job_id", next.ID).Str("stage", string(target)).Logger()
	log.Info().Msg("pipeline: stage started")

	if inv.Local() {
		locator := inv.LocalURL
		if len(inv.LocalData) > 0 {
			locator, err = o.store.Put(ctx, inv.LocalData, inv.LocalType)
			if err != nil {
				return o.fail(ctx, next, target, fmt.Errorf("store local artifact: %w", err))
			}
		}
		return o.commit(ctx, next, target, locator)
	}

	state, err := exec.Operation().Invoke(ctx, domain.OperationRequest{JobID: next.ID, Stage: target, Input: inv.Input})
	if err != nil {
		log.Error().Err(err).Msg("pipeline: invoke failed")
		return o.fail(ctx, next, target, err)
	}
	if state.Done {
		return o.complete(ctx, next, target, state)
	}
	if state.Handle == "" {
		return o.fail(ctx, next, target, &domain.UpstreamError{Stage: target, Detail: "operation returned neither output nor handle"})
	}

	pending, err := o.attach(ctx, next, target, state.Handle)
	if err != nil {
		log.Error().Err(err).Str("operation_id", state.Handle).Msg("pipeline: persist pending operation")
		if errors.Is(err, errClaimLost) || errors.Is(err, domain.ErrConflict) {
			return nil, &domain.PreconditionError{Stage: target, Reason: "stage start was taken over by another request", Err: err}
		}
		return next, fmt.Errorf("pipeline: persist pending %s: %w", target, err)
	}
	log.Info().Str("operation_id", state.Handle).Msg("pipeline: operation pending")
	return o.await(ctx, pending, exec)
}

// Finalize marks a job with a composed video as completed. It is idempotent.
func (o *Orchestrator) Finalize(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := o.repo.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Stage == domain.StageCompleted {
		return job, nil
	}
	if job.FinalVideoURL == "" {
		return nil, domain.Precondition(domain.StageCompleted, "final video is missing")
	}
	next := job.Clone()
	next.Stage = domain.StageCompleted
	next.RaiseProgress(domain.StageCompleted)
	if err := o.repo.Update(ctx, next); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, &domain.PreconditionError{Stage: domain.StageCompleted, Reason: domain.ErrConflict.Error(), Err: err}
		}
		return nil, fmt.Errorf("pipeline: finalize: %w", err)
	}
	o.logger.Info().Str("job_id", next.ID).Msg("pipeline: job completed")
	return next, nil
}

// Resume re-attaches to the persisted pending operation of a job. A job with
// nothing pending is returned as stored.
func (o *Orchestrator) Resume(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := o.repo.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return o.resume(ctx, job)
}

func (o *Orchestrator) resume(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	if !job.HasPending() {
		return job, nil
	}
	exec, ok := o.executors[job.PendingStage]
	if !ok {
		return o.fail(ctx, job, job.PendingStage, fmt.Errorf("no executor for stage %s", job.PendingStage))
	}
	o.logger.Info().
		Str("job_id", job.ID).
		Str("stage", string(job.PendingStage)).
		Str("operation_id", job.PendingOperationID).
		Msg("pipeline: resuming pending operation")
	return o.await(ctx, job, exec)
}

// attach replaces the stage start claim held by job with the operation
// handle. It fails with errClaimLost when another writer took the claim.
func (o *Orchestrator) attach(ctx context.Context, job *domain.Job, stage domain.Stage, handle string) (*domain.Job, error) {
	claimedAt := job.PendingSince
	return o.mutate(ctx, job, func(next *domain.Job) error {
		if next.PendingOperationID == handle && next.PendingStage == stage {
			return errSettled
		}
		if !next.Claimed() || next.PendingStage != stage || claimedAt == nil ||
			next.PendingSince == nil || !next.PendingSince.Equal(*claimedAt) {
			return errClaimLost
		}
		next.SetPending(handle, o.now())
		return nil
	})
}

// complete mirrors the upstream output into the store and records it. When
// the output cannot be fetched the finished operation stays attached, so the
// next call on the stage re-polls it instead of invoking again.
func (o *Orchestrator) complete(ctx context.Context, job *domain.Job, stage domain.Stage, state domain.OperationState) (*domain.Job, error) {
	if state.OutputURL == "" {
		return o.fail(ctx, job, stage, &domain.UpstreamError{Stage: stage, Detail: "operation succeeded without output"})
	}
	locator := state.OutputURL
	if o.mirror != nil {
		mirrored, err := o.mirrorOutput(ctx, job, stage, state.OutputURL)
		if err != nil {
			return o.keepFinished(ctx, job, stage, state.Handle, fmt.Errorf("mirror output: %w", err))
		}
		locator = mirrored
	}
	return o.commit(ctx, job, stage, locator)
}

func (o *Orchestrator) mirrorOutput(ctx context.Context, job *domain.Job, stage domain.Stage, output string) (string, error) {
	for attempt := 1; ; attempt++ {
		locator, err := o.mirror.Mirror(ctx, output)
		if err == nil {
			return locator, nil
		}
		if ctx.Err() != nil || attempt >= o.maxTransient {
			return "", err
		}
		delay := backoffDelay(attempt)
		o.logger.Warn().
			Err(err).
			Str("job_id", job.ID).
			Str("stage", string(stage)).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Msg("pipeline: mirror failed")
		if err := o.sleep(ctx, delay); err != nil {
			return "", err
		}
	}
}

// keepFinished reports a failure after the upstream operation succeeded. The
// handle is persisted as pending; without one the stage fails outright.
func (o *Orchestrator) keepFinished(ctx context.Context, job *domain.Job, stage domain.Stage, handle string, cause error) (*domain.Job, error) {
	if handle == "" {
		return o.fail(ctx, job, stage, cause)
	}
	updated := job
	if job.PendingOperationID != handle {
		attached, err := o.attach(ctx, job, stage, handle)
		if err != nil {
			o.logger.Error().Err(err).Str("job_id", job.ID).Str("operation_id", handle).Msg("pipeline: keep finished operation")
			return o.fail(ctx, job, stage, cause)
		}
		updated = attached
	}
	o.logger.Error().
		Err(cause).
		Str("job_id", job.ID).
		Str("stage", string(stage)).
		Str("operation_id", handle).
		Msg("pipeline: output not stored, operation kept for re-attach")
	return updated, &domain.StageExecutionError{Stage: stage, Err: cause}
}

// commit records the artifact, raises progress and clears the pending handle
// in one write. A concurrent writer that already stored the artifact wins.
func (o *Orchestrator) commit(ctx context.Context, job *domain.Job, stage domain.Stage, locator string) (*domain.Job, error) {
	updated, err := o.mutate(ctx, job, func(next *domain.Job) error {
		if next.Stage != stage || next.Artifact(stage) != "" {
			return errSettled
		}
		if err := next.SetArtifact(stage, locator); err != nil {
			return err
		}
		next.RaiseProgress(stage)
		next.ClearPending()
		return nil
	})
	if err != nil {
		return job, fmt.Errorf("pipeline: record %s artifact: %w", stage, err)
	}
	o.logger.Info().
		Str("job_id", updated.ID).
		Str("stage", string(stage)).
		Int("progress", updated.Progress).
		Msg("pipeline: stage completed")
	return updated, nil
}

// fail clears the claim or pending handle of stage and reports the failure. The
// artifact stays unset so the stage can be retried.
func (o *Orchestrator) fail(ctx context.Context, job *domain.Job, stage domain.Stage, cause error) (*domain.Job, error) {
	updated, err := o.mutate(ctx, job, func(next *domain.Job) error {
		if next.PendingStage != stage {
			return errSettled
		}
		next.ClearPending()
		return nil
	})
	if err != nil {
		o.logger.Error().Err(err).Str("job_id", job.ID).Str("stage", string(stage)).Msg("pipeline: clear pending after failure")
		updated = job
	}
	o.logger.Error().Err(cause).Str("job_id", job.ID).Str("stage", string(stage)).Msg("pipeline: stage failed")
	return updated, &domain.StageExecutionError{Stage: stage, Err: cause}
}

// mutate applies fn to a copy of job and writes it, reloading and reapplying
// on version conflicts. fn returns errSettled when the stored record needs no write.
func (o *Orchestrator) mutate(ctx context.Context, job *domain.Job, fn func(*domain.Job) error) (*domain.Job, error) {
	current := job
	for attempt := 1; ; attempt++ {
		next := current.Clone()
		if err := fn(next); err != nil {
			if errors.Is(err, errSettled) {
				return current, nil
			}
			return current, err
		}
		err := o.repo.Update(ctx, next)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, domain.ErrConflict) || attempt >= maxCommitAttempts {
			return current, err
		}
		fresh, getErr := o.repo.Get(ctx, job.ID)
		if getErr != nil {
			return current, getErr
		}
		current = fresh
	}
}
