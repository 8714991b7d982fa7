// Package synthetic renders deterministic placeholder artifacts locally. It
// stands in for the upstream models when no model version is configured, so
// the pipeline runs end to end in development and CI.
package synthetic

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"panelmotion/internal/domain"
	"panelmotion/internal/infra"
)

const handlePrefix = "synthetic"

// Options configures a synthetic backend for one stage.
type Options struct {
	Stage  domain.Stage
	Store  domain.ArtifactStore
	Delay  time.Duration
	Now    func() time.Time
	Logger *infra.Logger
}

// Backend implements domain.Operation. Handles carry the start time and seed,
// so polling survives a process restart.
type Backend struct {
	stage  domain.Stage
	store  domain.ArtifactStore
	delay  time.Duration
	now    func() time.Time
	logger *infra.Logger
}

// New constructs a synthetic backend.
func New(opts Options) (*Backend, error) {
	if opts.Store == nil {
		return nil, errors.New("synthetic: artifact store is required")
	}
	if !opts.Stage.Valid() {
		return nil, fmt.Errorf("synthetic: unknown stage %q", opts.Stage)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &Backend{stage: opts.Stage, store: opts.Store, delay: opts.Delay, now: now, logger: logger}, nil
}

// Invoke starts a synthetic operation. With no delay it completes immediately.
func (b *Backend) Invoke(ctx context.Context, req domain.OperationRequest) (domain.OperationState, error) {
	seed := DeterministicSeed(req.JobID, string(b.stage), inputFingerprint(req.Input))
	started := b.now()
	handle := strings.Join([]string{handlePrefix, string(b.stage), req.JobID, strconv.FormatInt(started.UnixMilli(), 10), seed}, ":")
	if b.delay <= 0 {
		return b.complete(ctx, handle, seed, req.Input)
	}
	b.logger.Debug().
		Str("job_id", req.JobID).
		Str("stage", string(b.stage)).
		Str("operation_id", handle).
		Msg("synthetic: operation started")
	return domain.OperationState{Handle: handle}, nil
}

// Poll completes the operation once the configured delay has elapsed.
func (b *Backend) Poll(ctx context.Context, handle string) (domain.OperationState, error) {
	h, err := parseHandle(handle)
	if err != nil {
		return domain.OperationState{}, &domain.UpstreamError{Stage: b.stage, Detail: err.Error()}
	}
	if h.stage != b.stage {
		return domain.OperationState{}, &domain.UpstreamError{Stage: b.stage, Detail: fmt.Sprintf("handle belongs to stage %s", h.stage)}
	}
	if b.now().Before(h.started.Add(b.delay)) {
		return domain.OperationState{Handle: handle}, nil
	}
	return b.complete(ctx, handle, h.seed, nil)
}

func (b *Backend) complete(ctx context.Context, handle, seed string, input map[string]any) (domain.OperationState, error) {
	data, contentType, err := b.render(seed, input)
	if err != nil {
		return domain.OperationState{}, fmt.Errorf("synthetic: render %s: %w", b.stage, err)
	}
	locator, err := b.store.Put(ctx, data, contentType)
	if err != nil {
		return domain.OperationState{}, fmt.Errorf("synthetic: store %s: %w", b.stage, err)
	}
	b.logger.Debug().
		Str("stage", string(b.stage)).
		Str("operation_id", handle).
		Str("url", locator).
		Msg("synthetic: generated artifact")
	return domain.OperationState{Done: true, Handle: handle, OutputURL: locator}, nil
}

func (b *Backend) render(seed string, input map[string]any) ([]byte, string, error) {
	switch b.stage {
	case domain.StageColorizing, domain.StageBackground:
		data, err := RenderImage(640, 640, seed)
		return data, "image/png", err
	case domain.StageAnimating, domain.StageVideoComposition:
		data, err := RenderAnimation(320, 320, 12, seed)
		return data, "image/gif", err
	case domain.StageVoiceover:
		seconds := 2.0
		if text, ok := input["text"].(string); ok && text != "" {
			seconds = float64(len([]rune(text)))/15 + 1
		}
		return ToneWAV(time.Duration(seconds*float64(time.Second)), 220+float64(seedByte(seed, 0))), "audio/wav", nil
	default:
		return nil, "", fmt.Errorf("stage %s has no synthetic renderer", b.stage)
	}
}

type parsedHandle struct {
	stage   domain.Stage
	jobID   string
	started time.Time
	seed    string
}

// IsHandle reports whether handle was issued by a synthetic backend.
func IsHandle(handle string) bool {
	return strings.HasPrefix(handle, handlePrefix+":")
}

func parseHandle(handle string) (parsedHandle, error) {
	parts := strings.Split(handle, ":")
	if len(parts) != 5 || parts[0] != handlePrefix {
		return parsedHandle{}, fmt.Errorf("malformed synthetic handle %q", handle)
	}
	millis, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return parsedHandle{}, fmt.Errorf("malformed synthetic handle %q", handle)
	}
	return parsedHandle{
		stage:   domain.Stage(parts[1]),
		jobID:   parts[2],
		started: time.UnixMilli(millis),
		seed:    parts[4],
	}, nil
}

// DeterministicSeed hashes parts into a 16 character hex seed.
func DeterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write([]byte(fmt.Sprintf("%v", part)))
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

func inputFingerprint(input map[string]any) string {
	if len(input) == 0 {
		return ""
	}
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s=%v;", k, input[k])
	}
	return sb.String()
}

var _ domain.Operation = (*Backend)(nil)
