package pipeline

import (
	"errors"
	"testing"

	"panelmotion/internal/domain"
)

func TestDefaultBackgroundPrompt(t *testing.T) {
	cases := map[string]string{
		"anime-style": "anime style background, detailed scenery, vibrant colors, studio ghibli inspired",
		"realistic":   "photorealistic background, highly detailed, 8k resolution, cinematic lighting",
		"controlnet":  "detailed background scene, professional illustration, sharp focus",
		"other":       "anime background, professional quality, detailed",
	}
	for style, want := range cases {
		if got := DefaultBackgroundPrompt(style); got != want {
			t.Fatalf("%s: got %q want %q", style, got, want)
		}
	}
}

func TestSeedForJobIsStable(t *testing.T) {
	a := SeedForJob("job-1")
	if a != SeedForJob("job-1") {
		t.Fatalf("seed should be deterministic")
	}
	if a < 0 || a >= 1000000 {
		t.Fatalf("seed out of range: %d", a)
	}
}

func TestPrepareDoesNotMutateJob(t *testing.T) {
	job := &domain.Job{ID: "j", Stage: domain.StageColorizing, Progress: 50, OriginalURL: "o", PreprocessedURL: "o", ColorizedURL: "c"}
	exec := backgroundExecutor{}
	inv, err := exec.Prepare(job, domain.StageParams{Style: "Realistic ", Prompt: "  city at dusk "})
	if err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	if job.BackgroundType != "" || job.BackgroundPrompt != "" {
		t.Fatalf("Prepare mutated the job: %+v", job)
	}
	if inv.Job.BackgroundType != "realistic" || inv.Job.BackgroundPrompt != "city at dusk" {
		t.Fatalf("unexpected recorded params: %+v", inv.Job)
	}
	if inv.Input["structure"] != "scribble" || inv.Input["num_inference_steps"] != 30 || inv.Input["guidance_scale"] != 9 {
		t.Fatalf("unexpected background input: %v", inv.Input)
	}
}

func TestPrepareRequiresPrerequisites(t *testing.T) {
	bare := &domain.Job{ID: "j", Stage: domain.StagePreprocessing, Progress: 20, OriginalURL: "o"}
	cases := []StageExecutor{
		colorizeExecutor{},
		backgroundExecutor{},
		animateExecutor{},
		voiceoverExecutor{},
		composeExecutor{},
	}
	for _, exec := range cases {
		_, err := exec.Prepare(bare, domain.StageParams{Voice: "none"})
		var pre *domain.PreconditionError
		if !errors.As(err, &pre) || pre.Stage != exec.Stage() {
			t.Fatalf("%s: expected precondition error, got %v", exec.Stage(), err)
		}
	}
}

func TestBackoffDelay(t *testing.T) {
	want := []int64{1, 2, 4, 8, 16, 30, 30}
	for i, seconds := range want {
		if got := backoffDelay(i + 1); got.Seconds() != float64(seconds) {
			t.Fatalf("attempt %d: got %s want %ds", i+1, got, seconds)
		}
	}
}
