package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"panelmotion/internal/domain"
)

func TestAdvanceDuringInvokeIsRejected(t *testing.T) {
	h := newHarness(t)
	job := h.start(t)
	op := h.ops[domain.StageBackground]

	var (
		racedJob *domain.Job
		racedErr error
		claimed  *domain.Job
	)
	op.invoke = pollStep{
		state: domain.OperationState{Handle: "bg-1"},
		hook: func() {
			claimed = h.status(t, job.ID)
			racedJob, racedErr = h.orch.Advance(context.Background(), job.ID, "background", domain.StageParams{Style: "realistic"})
		},
	}
	op.polls = []pollStep{done("https://cdn.example/bg.png")}

	got := h.advance(t, job.ID, "background", domain.StageParams{Style: "realistic"})

	if !claimed.Claimed() || claimed.PendingStage != domain.StageBackground {
		t.Fatalf("stage start should be claimed before invoking: %+v", claimed)
	}
	if !errors.Is(racedErr, domain.ErrPrecondition) || racedJob != nil {
		t.Fatalf("overlapping advance should be a precondition failure, got %v", racedErr)
	}
	if invokes, _ := op.calls(); invokes != 1 {
		t.Fatalf("expected one external operation, got %d", invokes)
	}
	if got.BackgroundURL != "https://cdn.example/bg.png" || got.HasPending() || got.Claimed() {
		t.Fatalf("unexpected final state: %+v", got)
	}
}

func TestAdvanceOnOtherStageDuringInvokeIsRejected(t *testing.T) {
	h := newHarness(t)
	job := h.start(t)
	op := h.ops[domain.StageBackground]

	var racedErr error
	op.invoke = pollStep{
		state: domain.OperationState{Done: true, OutputURL: "https://cdn.example/bg.png"},
		hook: func() {
			_, racedErr = h.orch.Advance(context.Background(), job.ID, "animate", domain.StageParams{})
		},
	}
	h.advance(t, job.ID, "background", domain.StageParams{})
	if !errors.Is(racedErr, domain.ErrPrecondition) {
		t.Fatalf("expected precondition error, got %v", racedErr)
	}
	if invokes, _ := h.ops[domain.StageAnimating].calls(); invokes != 0 {
		t.Fatalf("animate must not be invoked while background starts")
	}
}

func TestLostClaimIsPreconditionFailure(t *testing.T) {
	h := newHarness(t)
	job := h.start(t)
	op := h.ops[domain.StageBackground]
	op.invoke = pollStep{
		state: domain.OperationState{Handle: "bg-late"},
		hook: func() {
			other := h.status(t, job.ID)
			other.ClearPending()
			if err := h.repo.Update(context.Background(), other); err != nil {
				t.Errorf("takeover update failed: %v", err)
			}
		},
	}

	_, err := h.orch.Advance(context.Background(), job.ID, "background", domain.StageParams{})
	var pre *domain.PreconditionError
	if !errors.As(err, &pre) || pre.Stage != domain.StageBackground {
		t.Fatalf("expected precondition error for background, got %v", err)
	}
	if stored := h.status(t, job.ID); stored.HasPending() {
		t.Fatalf("handle must not be attached after the claim was lost: %+v", stored)
	}
}

func TestExpiredClaimIsTakenOver(t *testing.T) {
	h := newHarness(t)
	job := h.start(t)

	crashed := h.status(t, job.ID)
	crashed.Stage = domain.StageBackground
	crashed.Claim(h.clock.Now())
	if err := h.repo.Update(context.Background(), crashed); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	if _, err := h.orch.Advance(context.Background(), job.ID, "background", domain.StageParams{}); !errors.Is(err, domain.ErrPrecondition) {
		t.Fatalf("live claim should block, got %v", err)
	}

	h.clock.Advance(2 * time.Hour)
	got := h.advance(t, job.ID, "background", domain.StageParams{})
	if got.BackgroundURL == "" || got.Claimed() {
		t.Fatalf("expired claim should be taken over: %+v", got)
	}
	if invokes, _ := h.ops[domain.StageBackground].calls(); invokes != 1 {
		t.Fatalf("expected one invoke, got %d", invokes)
	}
}

// flakyMirror fails the next fails calls, then copies sources under mirror://.
type flakyMirror struct {
	mu    sync.Mutex
	fails int
	calls int
}

func (m *flakyMirror) failNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fails = n
}

func (m *flakyMirror) Mirror(ctx context.Context, source string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fails > 0 {
		m.fails--
		return "", errors.New("connection reset")
	}
	return "mirror://" + strings.TrimPrefix(source, "https://"), nil
}

func withMirror(m Mirrorer) func(*Options) {
	return func(o *Options) { o.Mirror = m }
}

func TestMirrorRetriesTransientFailures(t *testing.T) {
	mirror := &flakyMirror{}
	h := newHarness(t, withMirror(mirror))
	job := h.start(t)
	op := h.ops[domain.StageBackground]
	op.invoke = running("bg-1")
	op.polls = []pollStep{done("https://cdn.example/bg.png")}

	mirror.failNext(2)
	h.clock.sleeps = nil
	got := h.advance(t, job.ID, "background", domain.StageParams{})

	if got.BackgroundURL != "mirror://cdn.example/bg.png" {
		t.Fatalf("mirrored locator not recorded: %+v", got)
	}
	want := []time.Duration{5 * time.Second, time.Second, 2 * time.Second}
	if fmt.Sprint(h.clock.sleeps) != fmt.Sprint(want) {
		t.Fatalf("sleeps = %v, want %v", h.clock.sleeps, want)
	}
}

func TestMirrorFailureKeepsFinishedOperation(t *testing.T) {
	mirror := &flakyMirror{}
	h := newHarness(t, withMirror(mirror))
	job := h.start(t)
	op := h.ops[domain.StageBackground]
	op.invoke = running("bg-paid")
	op.polls = []pollStep{done("https://cdn.example/bg.png")}

	mirror.failNext(3)
	failed, err := h.orch.Advance(context.Background(), job.ID, "background", domain.StageParams{})
	var stageErr *domain.StageExecutionError
	if !errors.As(err, &stageErr) || stageErr.Stage != domain.StageBackground {
		t.Fatalf("expected stage execution error, got %v", err)
	}
	if failed == nil || failed.PendingOperationID != "bg-paid" {
		t.Fatalf("returned job should keep the handle: %+v", failed)
	}
	if stored := h.status(t, job.ID); stored.PendingOperationID != "bg-paid" || stored.BackgroundURL != "" {
		t.Fatalf("finished operation should stay pending: %+v", stored)
	}

	got := h.advance(t, job.ID, "background", domain.StageParams{})
	if got.BackgroundURL != "mirror://cdn.example/bg.png" || got.HasPending() {
		t.Fatalf("re-attach should store the output: %+v", got)
	}
	if invokes, _ := op.calls(); invokes != 1 {
		t.Fatalf("re-attach must not invoke again, got %d invokes", invokes)
	}
}

func TestMirrorFailureAfterImmediateCompletionKeepsHandle(t *testing.T) {
	mirror := &flakyMirror{}
	h := newHarness(t, withMirror(mirror))
	job := h.start(t)
	op := h.ops[domain.StageBackground]
	op.invoke = pollStep{state: domain.OperationState{Done: true, Handle: "bg-now", OutputURL: "https://cdn.example/now.png"}}
	op.polls = []pollStep{{state: domain.OperationState{Done: true, Handle: "bg-now", OutputURL: "https://cdn.example/now.png"}}}

	mirror.failNext(3)
	if _, err := h.orch.Advance(context.Background(), job.ID, "background", domain.StageParams{}); !errors.Is(err, domain.ErrStageExecution) {
		t.Fatalf("expected stage execution error, got %v", err)
	}
	stored := h.status(t, job.ID)
	if stored.PendingOperationID != "bg-now" || stored.Claimed() {
		t.Fatalf("handle should be attached for re-attach: %+v", stored)
	}

	got := h.advance(t, job.ID, "background", domain.StageParams{})
	if got.BackgroundURL != "mirror://cdn.example/now.png" {
		t.Fatalf("unexpected locator: %+v", got)
	}
	if invokes, polls := op.calls(); invokes != 1 || polls != 1 {
		t.Fatalf("expected 1 invoke and 1 poll, got %d and %d", invokes, polls)
	}
}
