package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dailyconnect/pipeline/internal/api"
	"github.com/dailyconnect/pipeline/internal/config"
	"github.com/dailyconnect/pipeline/internal/llm"
	"github.com/dailyconnect/pipeline/internal/models"
	"github.com/dailyconnect/pipeline/internal/pipeline"
	"github.com/dailyconnect/pipeline/internal/store"
	"github.com/dailyconnect/pipeline/internal/verifier"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	pg, err := store.NewPostgres(cfg.PostgresURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	if err := pg.InitSchema(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("init schema")
	}
	log.Info().Msg("database connected and schema initialized")

	var bus *store.StageBus
	if cfg.RedisURL != "" {
		bus, err = store.NewStageBus(cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, stage streaming and pool caching disabled")
			bus = nil
		}
	}

	groups := pg.Groups()
	puzzles := pg.Puzzles()
	feedback := pg.Feedback()
	connectionTypes := pg.ConnectionTypes()
	configs := pg.Configs()

	filmVerifier := verifier.NewFilmVerifier(verifier.NewHTTPCatalogClient(cfg.FilmCatalogURL, ""))
	musicVerifier := verifier.NewMusicVerifier(verifier.NewHTTPCatalogClient(cfg.MusicCatalogURL, ""))
	verifierFor := func(genre models.Genre) verifier.Verifier {
		return verifier.ForGenre(genre, filmVerifier, musicVerifier)
	}

	var llmClient llm.Client
	var credentials llm.CredentialProvider
	if cfg.AnthropicAPIKey != "" {
		llmClient, err = llm.NewAnthropicClient(llm.AnthropicConfig{
			APIKey:  cfg.AnthropicAPIKey,
			Model:   cfg.AnthropicModel,
			Timeout: cfg.RequestTimeout,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("configure anthropic client")
		}
		credentials = llm.NewEnvCredentialProvider("ANTHROPIC_API_KEY")
	} else {
		log.Warn().Msg("no anthropic api key configured, falling back to local ollama")
		llmClient, err = llm.NewOllamaClient(llm.OllamaConfig{Timeout: cfg.RequestTimeout})
		if err != nil {
			log.Fatal().Err(err).Msg("configure ollama client")
		}
	}
	groupGenerator := llm.NewGenerator(llmClient, credentials)

	generator := &pipeline.Generator{
		LLM:       groupGenerator,
		Verifiers: verifierFor,
		Groups:    groups,
		Feedback:  feedback,
		Types:     connectionTypes,
	}

	service := &pipeline.Service{
		Groups:    groups,
		Puzzles:   puzzles,
		Configs:   configs,
		Generator: generator,
	}

	handlers := api.NewHandlers(service, configs, bus)
	router := api.NewRouter(handlers, cfg.CronSharedSecret)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()
	log.Info().Str("addr", cfg.HTTPAddr).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}
	if bus != nil {
		bus.Close()
	}
	log.Info().Msg("server exited")
}
