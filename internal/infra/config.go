package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Job store backends selectable through JOB_STORE.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

// ModelVersions pins the upstream model version used per stage. An empty
// version routes the stage to the synthetic backend.
type ModelVersions struct {
	Colorize   string
	Background string
	Animate    string
	Voiceover  string
	Compose    string
}

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv         string
	Port           string
	JobStore       string
	DatabaseURL    string
	SQLitePath     string
	StoragePath    string
	StorageBaseURL string
	MaxUploadBytes int64
	MirrorArtifact bool
	GeoIPDBPath    string
	DefaultLocale  string
	AllowedOrigins []string

	ReplicateToken   string
	ReplicateBaseURL string
	Models           ModelVersions
	SyntheticDelay   time.Duration

	PollInterval     time.Duration
	PollTimeout      time.Duration
	PollMaxTransient int
	OperationTTL     time.Duration
	ResumeStaleAfter time.Duration
	WorkerInterval   time.Duration
	WorkerConcurrent int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           port,
		JobStore:       strings.ToLower(getEnv("JOB_STORE", StorePostgres)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		SQLitePath:     getEnv("SQLITE_PATH", "panelmotion.db"),
		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL: strings.TrimRight(getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"), "/"),
		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20)),
		MirrorArtifact: getEnvBool("MIRROR_ARTIFACTS", true),
		GeoIPDBPath:    os.Getenv("GEOIP_DB_PATH"),
		DefaultLocale:  getEnv("DEFAULT_LOCALE", "en"),
		AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),

		ReplicateToken:   strings.TrimSpace(os.Getenv("REPLICATE_API_TOKEN")),
		ReplicateBaseURL: strings.TrimRight(getEnv("REPLICATE_BASE_URL", "https://api.replicate.com/v1"), "/"),
		Models: ModelVersions{
			Colorize:   os.Getenv("REPLICATE_COLORIZE_VERSION"),
			Background: os.Getenv("REPLICATE_BACKGROUND_VERSION"),
			Animate:    os.Getenv("REPLICATE_ANIMATE_VERSION"),
			Voiceover:  os.Getenv("REPLICATE_VOICEOVER_VERSION"),
			Compose:    os.Getenv("REPLICATE_COMPOSE_VERSION"),
		},
		SyntheticDelay: getEnvSeconds("SYNTHETIC_DELAY_SECONDS", 0),

		PollInterval:     getEnvSeconds("POLL_INTERVAL_SECONDS", 5),
		PollTimeout:      getEnvSeconds("POLL_TIMEOUT_SECONDS", 600),
		PollMaxTransient: getEnvInt("POLL_MAX_TRANSIENT", 3),
		OperationTTL:     getEnvSeconds("OPERATION_TTL_SECONDS", 3600),
		ResumeStaleAfter: getEnvSeconds("RESUME_STALE_AFTER_SECONDS", 120),
		WorkerInterval:   getEnvSeconds("WORKER_INTERVAL_SECONDS", 15),
		WorkerConcurrent: getEnvInt("WORKER_CONCURRENCY", 4),

		HTTPReadTimeout:  getEnvSeconds("HTTP_READ_TIMEOUT_SECONDS", 30),
		HTTPWriteTimeout: getEnvSeconds("HTTP_WRITE_TIMEOUT_SECONDS", 900),
		HTTPIdleTimeout:  getEnvSeconds("HTTP_IDLE_TIMEOUT_SECONDS", 60),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	switch cfg.JobStore {
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	case StoreSQLite:
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("SQLITE_PATH is required")
		}
	case StoreMemory:
	default:
		return nil, fmt.Errorf("JOB_STORE %q is not supported", cfg.JobStore)
	}

	if cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL_SECONDS must be positive")
	}
	if cfg.WorkerConcurrent < 1 {
		cfg.WorkerConcurrent = 1
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Second * time.Duration(getEnvInt(key, fallback))
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
