package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"panelmotion/internal/infra"
	"panelmotion/internal/sqlinline"
)

func main() {
	_ = godotenv.Load()

	var (
		dbURLFlag string
		printOnly bool
	)
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (fallbacks to DATABASE_URL)")
	flag.BoolVar(&printOnly, "print", false, "Print the schema instead of applying it")
	flag.Parse()

	if printOnly {
		fmt.Print(sqlinline.Schema)
		return
	}

	dbURL := strings.TrimSpace(dbURLFlag)
	if dbURL == "" {
		dbURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required via -database-url or environment")
		os.Exit(1)
	}

	logger := infra.NewLogger(os.Getenv("APP_ENV")).With().Str("cmd", "migrate").Logger()

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("begin transaction")
	}
	if _, err := tx.ExecContext(ctx, sqlinline.Schema); err != nil {
		_ = tx.Rollback()
		logger.Fatal().Err(err).Msg("apply schema")
	}
	if err := tx.Commit(); err != nil {
		logger.Fatal().Err(err).Msg("commit schema")
	}

	var jobs int
	if err := db.QueryRowContext(ctx, "select count(*) from pipeline_jobs").Scan(&jobs); err != nil {
		logger.Fatal().Err(err).Msg("verify schema")
	}
	logger.Info().Int("jobs", jobs).Msg("schema applied")
}
