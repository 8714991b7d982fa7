package domain

import (
	"errors"
	"testing"
	"time"
)

func TestStageOrderAndCheckpoints(t *testing.T) {
	stages := Stages()
	if len(stages) != 8 {
		t.Fatalf("unexpected stage count: %d", len(stages))
	}
	want := []int{10, 20, 50, 70, 85, 90, 98, 100}
	for i, info := range stages {
		if info.Progress != want[i] {
			t.Fatalf("checkpoint mismatch for %s: got %d want %d", info.Stage, info.Progress, want[i])
		}
		if info.Stage.Index() != i {
			t.Fatalf("index mismatch for %s: got %d want %d", info.Stage, info.Stage.Index(), i)
		}
	}
	if !StageVoiceover.AtOrAfter(StageBackground) {
		t.Fatalf("voiceover should be after background")
	}
	if !StageColorizing.Before(StageCompleted) {
		t.Fatalf("colorizing should be before completed")
	}
	if _, err := ParseStage("rendering"); err == nil {
		t.Fatalf("expected error for unknown stage")
	}
}

func TestStagesReturnsCopy(t *testing.T) {
	stages := Stages()
	stages[0].Progress = 99
	if StageUploaded.Progress() != 10 {
		t.Fatalf("catalogue mutated through returned slice")
	}
}

func validJob() *Job {
	return &Job{
		ID:              "job-1",
		Stage:           StageColorizing,
		Progress:        50,
		OriginalURL:     "http://store/a.png",
		PreprocessedURL: "http://store/a.png",
		ColorizedURL:    "http://store/b.png",
	}
}

func TestValidateAcceptsConsistentJob(t *testing.T) {
	if err := validJob().Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
}

func TestValidateRejectsInconsistentJob(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Job)
	}{
		{"missing id", func(j *Job) { j.ID = "" }},
		{"missing original", func(j *Job) { j.OriginalURL = "" }},
		{"unknown stage", func(j *Job) { j.Stage = "rendering" }},
		{"artifact ahead of stage", func(j *Job) { j.BackgroundURL = "http://store/c.png" }},
		{"progress below checkpoint", func(j *Job) { j.Progress = 20 }},
		{"progress above range", func(j *Job) { j.Progress = 101 }},
		{"pending on other stage", func(j *Job) {
			j.ColorizedURL = ""
			j.PendingOperationID = "op"
			j.PendingStage = StageBackground
		}},
		{"pending on completed stage", func(j *Job) {
			j.PendingOperationID = "op"
			j.PendingStage = StageColorizing
		}},
		{"pending stage without id", func(j *Job) { j.PendingStage = StageColorizing }},
		{"claim without start time", func(j *Job) {
			j.ColorizedURL = ""
			j.PendingStage = StageColorizing
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			job := validJob()
			tc.mutate(job)
			if err := job.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestSetArtifactIsWriteOnce(t *testing.T) {
	job := validJob()
	if err := job.SetArtifact(StageColorizing, job.ColorizedURL); err != nil {
		t.Fatalf("same value should be accepted: %v", err)
	}
	if err := job.SetArtifact(StageColorizing, "http://store/other.png"); err == nil {
		t.Fatalf("expected error when overwriting an artifact")
	}
	if err := job.SetArtifact(StageCompleted, "x"); err == nil {
		t.Fatalf("completed stage has no artifact")
	}
}

func TestRaiseProgressNeverLowers(t *testing.T) {
	job := validJob()
	job.Progress = 90
	job.RaiseProgress(StageBackground)
	if job.Progress != 90 {
		t.Fatalf("progress lowered: %d", job.Progress)
	}
	job.RaiseProgress(StageVideoComposition)
	if job.Progress != 98 {
		t.Fatalf("progress mismatch: got %d want 98", job.Progress)
	}
}

func TestPendingLifecycle(t *testing.T) {
	job := validJob()
	job.Stage = StageBackground
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	job.SetPending("op-1", now)
	if job.PendingStage != StageBackground || !job.HasPending() {
		t.Fatalf("pending not recorded: %+v", job)
	}
	if err := job.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	clone := job.Clone()
	*clone.PendingSince = clone.PendingSince.Add(time.Hour)
	if job.PendingSince.Equal(*clone.PendingSince) {
		t.Fatalf("clone shares pendingSince")
	}
	job.ClearPending()
	if job.HasPending() || job.PendingStage != "" || job.PendingSince != nil {
		t.Fatalf("pending not cleared: %+v", job)
	}
}

func TestClaimHoldsStageWithoutHandle(t *testing.T) {
	job := validJob()
	job.Stage = StageBackground
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	job.Claim(now)
	if !job.Claimed() || job.HasPending() || job.PendingStage != StageBackground {
		t.Fatalf("claim not recorded: %+v", job)
	}
	if err := job.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	job.SetPending("op-1", now.Add(time.Second))
	if job.Claimed() || !job.HasPending() {
		t.Fatalf("handle should replace the claim: %+v", job)
	}
	job.ClearPending()
	if job.Claimed() || job.PendingSince != nil {
		t.Fatalf("claim not cleared: %+v", job)
	}
}

func TestTypedErrorsMatchSentinels(t *testing.T) {
	cases := []struct {
		err    error
		target error
	}{
		{Invalid("image", "empty"), ErrValidation},
		{&NotFoundError{JobID: "x"}, ErrNotFound},
		{Precondition(StageBackground, "missing colorized image"), ErrPrecondition},
		{&UpstreamError{Stage: StageAnimating, Detail: "nsfw"}, ErrUpstream},
		{&StageExecutionError{Stage: StageAnimating, Err: &UpstreamError{Detail: "nsfw"}}, ErrStageExecution},
		{&StageExecutionError{Stage: StageAnimating, Err: &UpstreamError{Detail: "nsfw"}}, ErrUpstream},
		{&PreconditionError{Reason: "conflict", Err: ErrConflict}, ErrConflict},
	}
	for _, tc := range cases {
		if !errors.Is(tc.err, tc.target) {
			t.Fatalf("%v should match %v", tc.err, tc.target)
		}
	}
	var pre *PreconditionError
	if !errors.As(Precondition(StageVoiceover, "x"), &pre) || pre.Stage != StageVoiceover {
		t.Fatalf("errors.As failed for PreconditionError")
	}
}
