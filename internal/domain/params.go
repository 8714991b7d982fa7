package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxDialogueLength bounds the voiceover text in characters.
const MaxDialogueLength = 1000

// StyleNone selects the local pass-through variant of a stage.
const StyleNone = "none"

var (
	backgroundTypes = []string{"controlnet", "anime-style", "realistic", StyleNone}
	animationTypes  = []string{"pan-zoom", "motion-simulation", "custom-transitions", StyleNone}
	voiceTypes      = []string{"male", "female", "child", "robot", StyleNone}
)

// StageName is the client-facing name of an advanceable stage.
type StageName string

const (
	StageNameColorize     StageName = "colorize"
	StageNameBackground   StageName = "background"
	StageNameAnimate      StageName = "animate"
	StageNameVoiceover    StageName = "voiceover"
	StageNameComposeVideo StageName = "composeVideo"
)

// Stage maps the client-facing name to the pipeline stage it runs.
func (n StageName) Stage() (Stage, error) {
	switch n {
	case StageNameColorize:
		return StageColorizing, nil
	case StageNameBackground:
		return StageBackground, nil
	case StageNameAnimate:
		return StageAnimating, nil
	case StageNameVoiceover:
		return StageVoiceover, nil
	case StageNameComposeVideo:
		return StageVideoComposition, nil
	default:
		return "", Invalid("stage", "unknown stage %q", string(n))
	}
}

// StageParams carries the optional per-stage options supplied by the client.
type StageParams struct {
	Style    string `json:"style,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
	Voice    string `json:"voice,omitempty"`
	Dialogue string `json:"dialogue,omitempty"`
}

// BackgroundTypes returns the accepted background styles.
func BackgroundTypes() []string { return append([]string(nil), backgroundTypes...) }

// AnimationTypes returns the accepted animation styles.
func AnimationTypes() []string { return append([]string(nil), animationTypes...) }

// VoiceTypes returns the accepted voices.
func VoiceTypes() []string { return append([]string(nil), voiceTypes...) }

// NormalizeBackgroundType validates a background style. Empty selects fallback.
func NormalizeBackgroundType(raw, fallback string) (string, error) {
	return pickKeyword("style", raw, fallback, backgroundTypes)
}

// NormalizeAnimationType validates an animation style. Empty selects fallback.
func NormalizeAnimationType(raw, fallback string) (string, error) {
	return pickKeyword("style", raw, fallback, animationTypes)
}

// NormalizeVoice validates the voice and dialogue pair.
func NormalizeVoice(rawVoice, rawDialogue, fallback string) (string, string, error) {
	voice, err := pickKeyword("voice", rawVoice, fallback, voiceTypes)
	if err != nil {
		return "", "", err
	}
	dialogue := strings.TrimSpace(rawDialogue)
	if voice == StyleNone {
		return voice, dialogue, nil
	}
	if dialogue == "" {
		return "", "", Invalid("dialogue", "dialogue text is required for voice %q", voice)
	}
	if n := utf8.RuneCountInString(dialogue); n > MaxDialogueLength {
		return "", "", Invalid("dialogue", "dialogue text has %d characters, limit is %d", n, MaxDialogueLength)
	}
	return voice, dialogue, nil
}

func pickKeyword(field, raw, fallback string, allowed []string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		value = fallback
	}
	for _, candidate := range allowed {
		if candidate == value {
			return value, nil
		}
	}
	return "", Invalid(field, "unsupported value %q (allowed: %s)", raw, strings.Join(allowed, ", "))
}

// String implements fmt.Stringer.
func (p StageParams) String() string {
	return fmt.Sprintf("style=%q voice=%q dialogue=%d chars", p.Style, p.Voice, utf8.RuneCountInString(p.Dialogue))
}
