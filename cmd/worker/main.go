package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"panelmotion/internal/bootstrap"
	"panelmotion/internal/infra"
	"panelmotion/internal/pipeline"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)
	if cfg.JobStore == infra.StoreMemory {
		logger.Fatal().Msg("worker: the memory job store is process local, nothing to resume")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Open(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to initialize runtime")
	}
	defer rt.Close()

	workerLogger := logger.With().Str("component", "resumer").Logger()
	resumer := pipeline.NewResumer(rt.Repo, rt.Orchestrator, pipeline.ResumerOptions{
		StaleAfter:  cfg.ResumeStaleAfter,
		Concurrency: cfg.WorkerConcurrent,
		Logger:      &workerLogger,
	})

	workerLogger.Info().
		Dur("interval", cfg.WorkerInterval).
		Dur("stale_after", cfg.ResumeStaleAfter).
		Int("concurrency", cfg.WorkerConcurrent).
		Msg("worker: started")
	if err := resumer.Run(ctx, cfg.WorkerInterval); err != nil && !errors.Is(err, context.Canceled) {
		workerLogger.Error().Err(err).Msg("worker: stopped with error")
		return
	}
	workerLogger.Info().Msg("worker: stopped")
}
