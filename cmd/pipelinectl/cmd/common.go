package cmd

import (
	"context"
	"fmt"

	"github.com/dailyconnect/pipeline/internal/config"
	"github.com/dailyconnect/pipeline/internal/llm"
	"github.com/dailyconnect/pipeline/internal/models"
	"github.com/dailyconnect/pipeline/internal/pipeline"
	"github.com/dailyconnect/pipeline/internal/store"
	"github.com/dailyconnect/pipeline/internal/verifier"
)

// wiring holds every store the CLI subcommands need, built once per
// invocation from the resolved AppConfig.
type wiring struct {
	cfg     *config.AppConfig
	pg      *store.Postgres
	service *pipeline.Service
}

// newWiring loads config, opens Postgres, and assembles a PipelineService
// from the same stores cmd/server uses, minus the HTTP/Redis layers a
// one-shot CLI invocation doesn't need. Unlike cmd/server, it attaches an
// LLM generator only when an Anthropic API key is configured; with no key
// there is no Ollama fallback and FillWindow runs without generation.
func newWiring(ctx context.Context) (*wiring, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("pipelinectl: load config: %w", err)
	}

	pg, err := store.NewPostgres(cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("pipelinectl: connect postgres: %w", err)
	}
	if err := pg.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("pipelinectl: init schema: %w", err)
	}

	groups := pg.Groups()
	puzzles := pg.Puzzles()
	feedback := pg.Feedback()
	connectionTypes := pg.ConnectionTypes()

	var generator *pipeline.Generator
	if cfg.AnthropicAPIKey != "" {
		llmClient, err := llm.NewAnthropicClient(llm.AnthropicConfig{
			APIKey:  cfg.AnthropicAPIKey,
			Model:   cfg.AnthropicModel,
			Timeout: cfg.RequestTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("pipelinectl: configure anthropic client: %w", err)
		}
		filmVerifier := verifier.NewFilmVerifier(verifier.NewHTTPCatalogClient(cfg.FilmCatalogURL, ""))
		musicVerifier := verifier.NewMusicVerifier(verifier.NewHTTPCatalogClient(cfg.MusicCatalogURL, ""))
		generator = &pipeline.Generator{
			LLM: llm.NewGenerator(llmClient, llm.NewEnvCredentialProvider("ANTHROPIC_API_KEY")),
			Verifiers: func(genre models.Genre) verifier.Verifier {
				return verifier.ForGenre(genre, filmVerifier, musicVerifier)
			},
			Groups:   groups,
			Feedback: feedback,
			Types:    connectionTypes,
		}
	}

	service := &pipeline.Service{
		Groups:    groups,
		Puzzles:   puzzles,
		Configs:   pg.Configs(),
		Generator: generator,
	}

	return &wiring{cfg: cfg, pg: pg, service: service}, nil
}

func (w *wiring) Close() error {
	return w.pg.DB.Close()
}
