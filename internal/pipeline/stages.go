package pipeline

import (
	"strings"
	"time"
	"unicode/utf8"

	"panelmotion/internal/domain"
	"panelmotion/internal/providers/synthetic"
)

const (
	defaultBackgroundStyle = "anime-style"
	defaultAnimationStyle  = "pan-zoom"
	defaultVoice           = "female"

	maxPromptLength = 2000
)

// Invocation is what an executor prepared for one stage run. Job carries the
// recorded parameters. A local invocation resolves without an external call,
// either by passing LocalURL through or by storing LocalData.
type Invocation struct {
	Job       *domain.Job
	Input     map[string]any
	LocalURL  string
	LocalData []byte
	LocalType string
}

// Local reports whether the stage resolves without an external operation.
func (inv Invocation) Local() bool {
	return inv.LocalURL != "" || len(inv.LocalData) > 0
}

// StageExecutor translates a job and stage parameters into an external operation request.
type StageExecutor interface {
	Stage() domain.Stage
	// Prepare checks prerequisites, validates params and records them on a
	// copy of job. It never mutates job.
	Prepare(job *domain.Job, params domain.StageParams) (Invocation, error)
	Operation() domain.Operation
}

// Executors bundles one operation per externally executed stage.
type Executors struct {
	Colorize   domain.Operation
	Background domain.Operation
	Animate    domain.Operation
	Voiceover  domain.Operation
	Compose    domain.Operation
}

func (e Executors) build() map[domain.Stage]StageExecutor {
	return map[domain.Stage]StageExecutor{
		domain.StageColorizing:       colorizeExecutor{op: e.Colorize},
		domain.StageBackground:       backgroundExecutor{op: e.Background},
		domain.StageAnimating:        animateExecutor{op: e.Animate},
		domain.StageVoiceover:        voiceoverExecutor{op: e.Voiceover},
		domain.StageVideoComposition: composeExecutor{op: e.Compose},
	}
}

type colorizeExecutor struct{ op domain.Operation }

func (colorizeExecutor) Stage() domain.Stage { return domain.StageColorizing }

func (e colorizeExecutor) Operation() domain.Operation { return e.op }

func (colorizeExecutor) Prepare(job *domain.Job, _ domain.StageParams) (Invocation, error) {
	if job.PreprocessedURL == "" {
		return Invocation{}, domain.Precondition(domain.StageColorizing, "preprocessed image is missing")
	}
	return Invocation{
		Job:   job.Clone(),
		Input: map[string]any{"image": job.PreprocessedURL},
	}, nil
}

type backgroundExecutor struct{ op domain.Operation }

func (backgroundExecutor) Stage() domain.Stage { return domain.StageBackground }

func (e backgroundExecutor) Operation() domain.Operation { return e.op }

func (backgroundExecutor) Prepare(job *domain.Job, params domain.StageParams) (Invocation, error) {
	if job.ColorizedURL == "" {
		return Invocation{}, domain.Precondition(domain.StageBackground, "colorized image is missing")
	}
	style, err := domain.NormalizeBackgroundType(params.Style, defaultBackgroundStyle)
	if err != nil {
		return Invocation{}, err
	}
	next := job.Clone()
	next.BackgroundType = style
	if style == domain.StyleNone {
		next.BackgroundPrompt = ""
		return Invocation{Job: next, LocalURL: job.ColorizedURL}, nil
	}
	prompt := strings.TrimSpace(params.Prompt)
	if n := utf8.RuneCountInString(prompt); n > maxPromptLength {
		return Invocation{}, domain.Invalid("prompt", "prompt has %d characters, limit is %d", n, maxPromptLength)
	}
	if prompt == "" {
		prompt = DefaultBackgroundPrompt(style)
	}
	next.BackgroundPrompt = prompt
	return Invocation{
		Job: next,
		Input: map[string]any{
			"image":               job.ColorizedURL,
			"prompt":              prompt,
			"structure":           "scribble",
			"num_inference_steps": 30,
			"guidance_scale":      9,
			"seed":                SeedForJob(job.ID),
		},
	}, nil
}

type animateExecutor struct{ op domain.Operation }

func (animateExecutor) Stage() domain.Stage { return domain.StageAnimating }

func (e animateExecutor) Operation() domain.Operation { return e.op }

func (animateExecutor) Prepare(job *domain.Job, params domain.StageParams) (Invocation, error) {
	if job.ColorizedURL == "" {
		return Invocation{}, domain.Precondition(domain.StageAnimating, "colorized image is missing")
	}
	style, err := domain.NormalizeAnimationType(params.Style, defaultAnimationStyle)
	if err != nil {
		return Invocation{}, err
	}
	source := job.BackgroundURL
	if source == "" {
		source = job.ColorizedURL
	}
	next := job.Clone()
	next.AnimationType = style
	if style == domain.StyleNone {
		return Invocation{Job: next, LocalURL: source}, nil
	}
	return Invocation{
		Job:   next,
		Input: map[string]any{"image": source, "motion": style},
	}, nil
}

type voiceoverExecutor struct{ op domain.Operation }

func (voiceoverExecutor) Stage() domain.Stage { return domain.StageVoiceover }

func (e voiceoverExecutor) Operation() domain.Operation { return e.op }

func (voiceoverExecutor) Prepare(job *domain.Job, params domain.StageParams) (Invocation, error) {
	if job.ColorizedURL == "" {
		return Invocation{}, domain.Precondition(domain.StageVoiceover, "colorized image is missing")
	}
	voice, dialogue, err := domain.NormalizeVoice(params.Voice, params.Dialogue, defaultVoice)
	if err != nil {
		return Invocation{}, err
	}
	next := job.Clone()
	next.VoiceType = voice
	next.DialogueText = dialogue
	if voice == domain.StyleNone {
		next.DialogueText = ""
		return Invocation{Job: next, LocalData: synthetic.SilentWAV(time.Second), LocalType: "audio/wav"}, nil
	}
	return Invocation{
		Job:   next,
		Input: map[string]any{"text": dialogue, "voice": voice},
	}, nil
}

type composeExecutor struct{ op domain.Operation }

func (composeExecutor) Stage() domain.Stage { return domain.StageVideoComposition }

func (e composeExecutor) Operation() domain.Operation { return e.op }

func (composeExecutor) Prepare(job *domain.Job, _ domain.StageParams) (Invocation, error) {
	var missing []string
	if job.AnimatedURL == "" {
		missing = append(missing, "animation")
	}
	if job.AudioURL == "" {
		missing = append(missing, "audio")
	}
	if len(missing) > 0 {
		return Invocation{}, domain.Precondition(domain.StageVideoComposition, "%s missing", strings.Join(missing, " and "))
	}
	return Invocation{
		Job:   job.Clone(),
		Input: map[string]any{"video": job.AnimatedURL, "audio": job.AudioURL},
	}, nil
}

// sameParams reports whether prepared records the same stage parameters as stored.
func sameParams(stored, prepared *domain.Job) bool {
	return stored.BackgroundType == prepared.BackgroundType &&
		stored.BackgroundPrompt == prepared.BackgroundPrompt &&
		stored.AnimationType == prepared.AnimationType &&
		stored.VoiceType == prepared.VoiceType &&
		stored.DialogueText == prepared.DialogueText
}
