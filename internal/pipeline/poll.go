package pipeline

import (
	"context"
	"errors"
	"time"

	"panelmotion/internal/domain"
)

const (
	retryBaseDelay = time.Second
	retryMaxDelay  = 30 * time.Second
)

var (
	// ErrPollTimeout reports that a poll window closed while the operation was
	// still running. The handle stays persisted so a later call can re-attach.
	ErrPollTimeout = errors.New("operation still running after poll timeout")
	// ErrOperationExpired reports an in-flight operation older than the
	// operation TTL. It is abandoned and the stage fails.
	ErrOperationExpired = errors.New("operation expired")
)

// retryHint is implemented by transient errors that carry a server supplied delay.
type retryHint interface {
	RetryDelay() time.Duration
}

// await polls the pending operation of job until it resolves, fails, the poll
// window closes or ctx ends. Cancellation leaves the pending handle in place.
func (o *Orchestrator) await(ctx context.Context, job *domain.Job, exec StageExecutor) (*domain.Job, error) {
	stage := exec.Stage()
	handle := job.PendingOperationID
	log := o.logger.With().Str("job_id", job.ID).Str("stage", string(stage)).Str("operation_id", handle).Logger()

	if o.expired(job) {
		log.Warn().Msg("pipeline: abandoning expired operation")
		return o.fail(ctx, job, stage, ErrOperationExpired)
	}

	deadline := o.now().Add(o.pollTimeout)
	delay := o.pollInterval
	transient := 0
	for {
		if err := o.sleep(ctx, delay); err != nil {
			log.Info().Err(err).Msg("pipeline: polling cancelled, operation left pending")
			return job, err
		}

		state, err := exec.Operation().Poll(ctx, handle)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return job, ctxErr
			}
			var upstream *domain.UpstreamError
			if errors.As(err, &upstream) {
				log.Error().Str("detail", upstream.Detail).Msg("pipeline: operation failed")
				return o.fail(ctx, job, stage, err)
			}
			transient++
			if transient >= o.maxTransient {
				log.Error().Err(err).Int("attempts", transient).Msg("pipeline: poll failed repeatedly")
				return o.fail(ctx, job, stage, err)
			}
			delay = backoffDelay(transient)
			var hinted retryHint
			if errors.As(err, &hinted) && hinted.RetryDelay() > 0 {
				delay = capDelay(hinted.RetryDelay())
			}
			log.Warn().Err(err).Int("attempt", transient).Dur("retry_in", delay).Msg("pipeline: transient poll failure")
			continue
		}
		transient = 0
		delay = o.pollInterval

		if state.Done {
			if state.Handle == "" {
				state.Handle = handle
			}
			return o.complete(ctx, job, stage, state)
		}
		if err := o.repo.Touch(ctx, job.ID, o.now()); err != nil {
			log.Warn().Err(err).Msg("pipeline: heartbeat failed")
		}
		if !o.now().Before(deadline) {
			log.Warn().Dur("timeout", o.pollTimeout).Msg("pipeline: poll window closed")
			return job, &domain.StageExecutionError{Stage: stage, Err: ErrPollTimeout}
		}
	}
}

func (o *Orchestrator) expired(job *domain.Job) bool {
	if o.operationTTL <= 0 || job.PendingSince == nil {
		return false
	}
	return o.now().Sub(*job.PendingSince) > o.operationTTL
}

// backoffDelay doubles from the base delay per attempt up to the cap.
func backoffDelay(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	delay := retryBaseDelay
	for i := 1; i < attempt; i++ {
		if delay > retryMaxDelay/2 {
			return retryMaxDelay
		}
		delay *= 2
	}
	return delay
}

func capDelay(d time.Duration) time.Duration {
	if d > retryMaxDelay {
		return retryMaxDelay
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
