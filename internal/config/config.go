// Package config loads the process-wide AppConfig once at startup from
// .env files and the environment, the way bbak-mcs-mcp's config package
// does for its MCP server.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// AppConfig holds everything cmd/server and cmd/pipelinectl need, parsed
// once and passed down by reference.
type AppConfig struct {
	PostgresURL       string
	RedisURL          string
	AnthropicAPIKey   string
	AnthropicModel    string
	FilmCatalogURL    string
	MusicCatalogURL   string
	CronSharedSecret  string
	HTTPAddr          string
	RollingWindowDays int
	RequestTimeout    time.Duration
}

// Load reads a local .env (if present) then resolves every field from the
// environment, applying the same defaults a missing PipelineConfig row
// would get.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found in working directory, relying on environment variables")
	}

	cfg := &AppConfig{
		PostgresURL:       getEnv("DATABASE_URL", "postgres://localhost:5432/dailyconnect?sslmode=disable"),
		RedisURL:          getEnv("REDIS_URL", "redis://localhost:6379/0"),
		AnthropicAPIKey:   getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:    getEnv("ANTHROPIC_MODEL", ""),
		FilmCatalogURL:    getEnv("FILM_CATALOG_URL", ""),
		MusicCatalogURL:   getEnv("MUSIC_CATALOG_URL", ""),
		CronSharedSecret:  getEnv("CRON_SHARED_SECRET", ""),
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		RollingWindowDays: getEnvInt("ROLLING_WINDOW_DAYS", 30),
		RequestTimeout:    time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 60)) * time.Second,
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("invalid integer env var, using default")
		return fallback
	}
	return n
}
