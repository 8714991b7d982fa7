package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"panelmotion/internal/domain"
	"panelmotion/internal/infra"
	"panelmotion/internal/pipeline"
)

// Pipeline is the orchestrator surface the handlers drive.
type Pipeline interface {
	Start(ctx context.Context, img pipeline.Image) (*domain.Job, error)
	Advance(ctx context.Context, jobID string, name domain.StageName, params domain.StageParams) (*domain.Job, error)
	Finalize(ctx context.Context, jobID string) (*domain.Job, error)
}

// ArtifactReader loads stored artifacts for archive downloads.
type ArtifactReader interface {
	Read(ctx context.Context, locator string) ([]byte, error)
}

type App struct {
	Pipeline       Pipeline
	Status         *pipeline.StatusQuery
	Artifacts      ArtifactReader
	Logger         *infra.Logger
	MaxUploadBytes int64
	// Ping reports backing store health; nil means always healthy.
	Ping func(ctx context.Context) error
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log().Error().Err(err).Msg("encode response")
	}
}

func (a *App) log() *infra.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return infra.DiscardLogger()
}
