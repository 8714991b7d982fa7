// Package bootstrap assembles the job store, artifact store, stage backends
// and orchestrator from configuration. The API and worker binaries share it.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"panelmotion/internal/adapter/repo"
	"panelmotion/internal/domain"
	"panelmotion/internal/infra"
	"panelmotion/internal/infra/credentials"
	"panelmotion/internal/pipeline"
	"panelmotion/internal/providers/replicate"
	"panelmotion/internal/providers/synthetic"
	"panelmotion/internal/storage"
)

// Runtime holds the wired components. Close releases database handles.
type Runtime struct {
	Config       *infra.Config
	Repo         domain.JobRepository
	Store        *storage.FileStore
	Orchestrator *pipeline.Orchestrator
	Status       *pipeline.StatusQuery
	Credentials  *credentials.Store
	Ping         func(ctx context.Context) error

	closers []func()
}

// Close releases resources in reverse acquisition order.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

// Open builds a Runtime for cfg.
func Open(ctx context.Context, cfg *infra.Config, logger *infra.Logger) (*Runtime, error) {
	rt := &Runtime{Config: cfg}
	if err := rt.openRepo(ctx, cfg, logger); err != nil {
		rt.Close()
		return nil, err
	}

	storagePath := cfg.StoragePath
	if abs, err := filepath.Abs(storagePath); err == nil {
		storagePath = abs
	}
	store, err := storage.NewFileStore(storagePath, cfg.StorageBaseURL)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Store = store

	executors, err := rt.executors(cfg, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	opts := pipeline.Options{
		Repo:           rt.Repo,
		Store:          store,
		Executors:      executors,
		Logger:         logger,
		MaxUploadBytes: cfg.MaxUploadBytes,
		PollInterval:   cfg.PollInterval,
		PollTimeout:    cfg.PollTimeout,
		MaxTransient:   cfg.PollMaxTransient,
		OperationTTL:   cfg.OperationTTL,
	}
	if cfg.MirrorArtifact {
		opts.Mirror = store
	}
	orch, err := pipeline.NewOrchestrator(opts)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Orchestrator = orch
	rt.Status = pipeline.NewStatusQuery(rt.Repo)
	return rt, nil
}

func (rt *Runtime) openRepo(ctx context.Context, cfg *infra.Config, logger *infra.Logger) error {
	switch cfg.JobStore {
	case infra.StorePostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, pool.Close)
		runner := infra.NewSQLRunner(pool, logger.With().Str("component", "sql").Logger())
		rt.Repo = repo.NewJobRepository(runner)
		rt.Credentials = credentials.NewStore(runner)
		rt.Ping = pool.Ping
	case infra.StoreSQLite:
		db, err := repo.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, func() { _ = db.Close() })
		rt.Repo = db
		rt.Ping = db.Ping
	case infra.StoreMemory:
		rt.Repo = repo.NewMemoryJobRepository()
	default:
		return fmt.Errorf("bootstrap: unknown job store %q", cfg.JobStore)
	}
	logger.Info().Str("job_store", cfg.JobStore).Msg("job store ready")
	return nil
}

// executors picks the Replicate backend for every stage with a configured
// model version and the synthetic backend otherwise.
func (rt *Runtime) executors(cfg *infra.Config, logger *infra.Logger) (pipeline.Executors, error) {
	tokens := credentials.TokenSource{Static: cfg.ReplicateToken, Store: rt.Credentials}
	httpClient := &http.Client{Timeout: 60 * time.Second}

	build := func(stage domain.Stage, version string) (domain.Operation, error) {
		if version == "" {
			logger.Warn().Str("stage", string(stage)).Msg("no model version configured, using synthetic backend")
			return synthetic.New(synthetic.Options{
				Stage:  stage,
				Store:  rt.Store,
				Delay:  cfg.SyntheticDelay,
				Logger: logger,
			})
		}
		return replicate.NewClient(replicate.Options{
			Tokens:     tokens,
			BaseURL:    cfg.ReplicateBaseURL,
			Version:    version,
			Stage:      stage,
			HTTPClient: httpClient,
			Logger:     logger,
		})
	}

	var (
		out pipeline.Executors
		err error
	)
	if out.Colorize, err = build(domain.StageColorizing, cfg.Models.Colorize); err != nil {
		return out, err
	}
	if out.Background, err = build(domain.StageBackground, cfg.Models.Background); err != nil {
		return out, err
	}
	if out.Animate, err = build(domain.StageAnimating, cfg.Models.Animate); err != nil {
		return out, err
	}
	if out.Voiceover, err = build(domain.StageVoiceover, cfg.Models.Voiceover); err != nil {
		return out, err
	}
	if out.Compose, err = build(domain.StageVideoComposition, cfg.Models.Compose); err != nil {
		return out, err
	}
	return out, nil
}
