package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestStageNameMapping(t *testing.T) {
	cases := map[StageName]Stage{
		StageNameColorize:     StageColorizing,
		StageNameBackground:   StageBackground,
		StageNameAnimate:      StageAnimating,
		StageNameVoiceover:    StageVoiceover,
		StageNameComposeVideo: StageVideoComposition,
	}
	for name, want := range cases {
		got, err := name.Stage()
		if err != nil || got != want {
			t.Fatalf("stage mismatch for %s: got %q (%v) want %q", name, got, err, want)
		}
	}
	if _, err := StageName("upscale").Stage(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNormalizeStyles(t *testing.T) {
	got, err := NormalizeBackgroundType(" Anime-Style ", "anime-style")
	if err != nil || got != "anime-style" {
		t.Fatalf("unexpected background style: %q (%v)", got, err)
	}
	got, err = NormalizeBackgroundType("", "anime-style")
	if err != nil || got != "anime-style" {
		t.Fatalf("fallback not applied: %q (%v)", got, err)
	}
	if _, err := NormalizeBackgroundType("watercolor", "anime-style"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	got, err = NormalizeAnimationType("none", "pan-zoom")
	if err != nil || got != StyleNone {
		t.Fatalf("unexpected animation style: %q (%v)", got, err)
	}
	if _, err := NormalizeAnimationType("spin", "pan-zoom"); err == nil {
		t.Fatalf("expected error for unknown animation style")
	}
}

func TestNormalizeVoice(t *testing.T) {
	cases := []struct {
		name     string
		voice    string
		dialogue string
		wantErr  bool
	}{
		{"female with text", "female", "Hello there", false},
		{"none without text", "none", "", false},
		{"robot without text", "robot", "   ", true},
		{"unknown voice", "narrator", "Hi", true},
		{"too long", "male", strings.Repeat("a", MaxDialogueLength+1), true},
		{"exact limit", "child", strings.Repeat("a", MaxDialogueLength), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := NormalizeVoice(tc.voice, tc.dialogue, "female")
			if tc.wantErr && !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
