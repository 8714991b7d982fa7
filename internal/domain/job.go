package domain

import (
	"fmt"
	"strings"
	"time"
)

// Stage enumerates the ordered steps a job moves through.
type Stage string

const (
	StageUploaded         Stage = "uploaded"
	StagePreprocessing    Stage = "preprocessing"
	StageColorizing       Stage = "colorizing"
	StageBackground       Stage = "background"
	StageAnimating        Stage = "animating"
	StageVoiceover        Stage = "voiceover"
	StageVideoComposition Stage = "videoComposition"
	StageCompleted        Stage = "completed"
)

// StageInfo describes a stage for status displays.
type StageInfo struct {
	Stage    Stage  `json:"stage"`
	Label    string `json:"label"`
	Progress int    `json:"progress"`
}

// stageOrder is the single definition of the pipeline order and its progress checkpoints.
var stageOrder = []StageInfo{
	{Stage: StageUploaded, Label: "Upload", Progress: 10},
	{Stage: StagePreprocessing, Label: "Preprocess", Progress: 20},
	{Stage: StageColorizing, Label: "Colorize", Progress: 50},
	{Stage: StageBackground, Label: "Background", Progress: 70},
	{Stage: StageAnimating, Label: "Animate", Progress: 85},
	{Stage: StageVoiceover, Label: "Voiceover", Progress: 90},
	{Stage: StageVideoComposition, Label: "Compose Video", Progress: 98},
	{Stage: StageCompleted, Label: "Complete", Progress: 100},
}

// Stages returns the ordered stage catalogue.
func Stages() []StageInfo {
	out := make([]StageInfo, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// ParseStage converts a persisted stage name into a Stage.
func ParseStage(raw string) (Stage, error) {
	s := Stage(strings.TrimSpace(raw))
	if s.Index() < 0 {
		return "", fmt.Errorf("unknown stage %q", raw)
	}
	return s, nil
}

// Index returns the position of the stage in the pipeline order, or -1.
func (s Stage) Index() int {
	for i, info := range stageOrder {
		if info.Stage == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	return s.Index() >= 0
}

// Progress returns the fixed progress checkpoint owned by the stage.
func (s Stage) Progress() int {
	if i := s.Index(); i >= 0 {
		return stageOrder[i].Progress
	}
	return 0
}

// Label returns the human readable stage name.
func (s Stage) Label() string {
	if i := s.Index(); i >= 0 {
		return stageOrder[i].Label
	}
	return string(s)
}

// AtOrAfter reports whether s is the same as or later than other.
func (s Stage) AtOrAfter(other Stage) bool {
	return s.Index() >= other.Index()
}

// Before reports whether s comes strictly before other.
func (s Stage) Before(other Stage) bool {
	return s.Index() < other.Index()
}

// Job is the persisted state of one pipeline run.
type Job struct {
	ID       string `json:"id"`
	Stage    Stage  `json:"stage"`
	Progress int    `json:"progress"`

	OriginalURL     string `json:"originalUrl"`
	PreprocessedURL string `json:"preprocessedUrl,omitempty"`
	ColorizedURL    string `json:"colorizedUrl,omitempty"`
	BackgroundURL   string `json:"backgroundUrl,omitempty"`
	AnimatedURL     string `json:"animatedUrl,omitempty"`
	AudioURL        string `json:"audioUrl,omitempty"`
	FinalVideoURL   string `json:"finalVideoUrl,omitempty"`

	BackgroundType   string `json:"backgroundType,omitempty"`
	BackgroundPrompt string `json:"backgroundPrompt,omitempty"`
	AnimationType    string `json:"animationType,omitempty"`
	VoiceType        string `json:"voiceType,omitempty"`
	DialogueText     string `json:"dialogueText,omitempty"`

	PendingOperationID string     `json:"pendingOperationId,omitempty"`
	PendingStage       Stage      `json:"pendingStage,omitempty"`
	PendingSince       *time.Time `json:"pendingSince,omitempty"`

	Version     int64      `json:"version"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	HeartbeatAt *time.Time `json:"heartbeatAt,omitempty"`
}

// artifactStages lists the stages that produce an artifact, in pipeline order.
var artifactStages = []Stage{
	StageUploaded,
	StagePreprocessing,
	StageColorizing,
	StageBackground,
	StageAnimating,
	StageVoiceover,
	StageVideoComposition,
}

func (j *Job) artifactField(stage Stage) *string {
	switch stage {
	case StageUploaded:
		return &j.OriginalURL
	case StagePreprocessing:
		return &j.PreprocessedURL
	case StageColorizing:
		return &j.ColorizedURL
	case StageBackground:
		return &j.BackgroundURL
	case StageAnimating:
		return &j.AnimatedURL
	case StageVoiceover:
		return &j.AudioURL
	case StageVideoComposition:
		return &j.FinalVideoURL
	default:
		return nil
	}
}

// Artifact returns the locator produced by stage, or "" when unset.
func (j *Job) Artifact(stage Stage) string {
	if field := j.artifactField(stage); field != nil {
		return *field
	}
	return ""
}

// SetArtifact records the locator for stage. An artifact, once set, never changes.
func (j *Job) SetArtifact(stage Stage, url string) error {
	field := j.artifactField(stage)
	if field == nil {
		return fmt.Errorf("stage %s produces no artifact", stage)
	}
	if *field != "" && *field != url {
		return fmt.Errorf("artifact for stage %s already set", stage)
	}
	*field = url
	return nil
}

// HasPending reports whether an external operation is in flight.
func (j *Job) HasPending() bool {
	return j.PendingOperationID != ""
}

// Claim marks the current stage as being started: the operation is being
// invoked and no handle exists yet. Only one caller can hold the claim.
func (j *Job) Claim(at time.Time) {
	j.PendingOperationID = ""
	j.PendingStage = j.Stage
	since := at.UTC().Truncate(time.Millisecond)
	j.PendingSince = &since
}

// Claimed reports whether a stage start holds the claim without a handle.
func (j *Job) Claimed() bool {
	return j.PendingStage != "" && j.PendingOperationID == ""
}

// SetPending records an in-flight operation handle for the current stage.
func (j *Job) SetPending(handle string, at time.Time) {
	j.PendingOperationID = handle
	j.PendingStage = j.Stage
	since := at.UTC()
	j.PendingSince = &since
}

// ClearPending drops the in-flight operation handle.
func (j *Job) ClearPending() {
	j.PendingOperationID = ""
	j.PendingStage = ""
	j.PendingSince = nil
}

// RaiseProgress lifts progress to the checkpoint of stage without ever lowering it.
func (j *Job) RaiseProgress(stage Stage) {
	if p := stage.Progress(); p > j.Progress {
		j.Progress = p
	}
}

// Clone returns a deep copy safe to mutate.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	if j.PendingSince != nil {
		t := *j.PendingSince
		out.PendingSince = &t
	}
	if j.HeartbeatAt != nil {
		t := *j.HeartbeatAt
		out.HeartbeatAt = &t
	}
	return &out
}

// Validate checks the record invariants. Repositories call it before every write.
func (j *Job) Validate() error {
	if strings.TrimSpace(j.ID) == "" {
		return fmt.Errorf("job: id is required")
	}
	if !j.Stage.Valid() {
		return fmt.Errorf("job %s: unknown stage %q", j.ID, j.Stage)
	}
	if j.OriginalURL == "" {
		return fmt.Errorf("job %s: original url is required", j.ID)
	}
	if j.Progress < 0 || j.Progress > 100 {
		return fmt.Errorf("job %s: progress %d out of range", j.ID, j.Progress)
	}
	for _, stage := range artifactStages {
		if j.Artifact(stage) == "" {
			continue
		}
		if !j.Stage.AtOrAfter(stage) {
			return fmt.Errorf("job %s: %s artifact set before reaching that stage", j.ID, stage)
		}
		if j.Progress < stage.Progress() {
			return fmt.Errorf("job %s: progress %d below %s checkpoint", j.ID, j.Progress, stage)
		}
	}
	if j.PendingOperationID != "" || j.PendingStage != "" {
		if j.PendingStage != j.Stage {
			return fmt.Errorf("job %s: pending operation belongs to %s, current stage is %s", j.ID, j.PendingStage, j.Stage)
		}
		if j.Artifact(j.Stage) != "" {
			return fmt.Errorf("job %s: pending operation on a completed stage", j.ID)
		}
		if j.PendingSince == nil {
			return fmt.Errorf("job %s: pending stage without a start time", j.ID)
		}
	}
	return nil
}
