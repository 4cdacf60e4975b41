// Package pipeline drives the LLM group generator and the per-date
// assembler against the store and verifier interfaces, implementing the
// orchestration described for PipelineGenerator and PipelineService.
package pipeline

import (
	"context"
	"fmt"

	"github.com/dailyconnect/pipeline/internal/llm"
	"github.com/dailyconnect/pipeline/internal/models"
	"github.com/dailyconnect/pipeline/internal/store"
	"github.com/dailyconnect/pipeline/internal/verifier"
	"github.com/rs/zerolog/log"
)

const exemplarLimit = 10

// Generator drives Generate → Verify → Save for a set of colors needing
// more supply, per genre. It never touches dates or puzzles; that is
// Service's job.
type Generator struct {
	LLM       *llm.Generator
	Verifiers func(models.Genre) verifier.Verifier
	Groups    store.GroupStore
	Feedback  store.FeedbackStore
	Types     store.ConnectionTypeStore
}

// GenerateResult is the per-run tally PipelineService folds into a
// PipelineFillResult.
type GenerateResult struct {
	GroupsGenerated int
	GroupsSaved     int
	ByColor         map[models.Color]models.ColorOutcome
	Errors          []models.PipelineError
}

func newGenerateResult() *GenerateResult {
	byColor := make(map[models.Color]models.ColorOutcome, len(models.Colors))
	for _, c := range models.Colors {
		byColor[c] = models.ColorOutcome{}
	}
	return &GenerateResult{ByColor: byColor}
}

// Generate runs one generation pass for each color in colorsNeeded, in
// the canonical color order, invoking stage before each color.
func (g *Generator) Generate(ctx context.Context, genre models.Genre, colorsNeeded map[models.Color]bool, groupsPerColor int, stage models.StageCallback) (*GenerateResult, error) {
	result := newGenerateResult()

	activeTypes, err := g.Types.ListActive(ctx, genre)
	if err != nil {
		return result, fmt.Errorf("pipeline: list active connection types: %w", err)
	}
	goodExamples, err := g.Feedback.AcceptedExamples(ctx, exemplarLimit, genre)
	if err != nil {
		return result, fmt.Errorf("pipeline: accepted examples: %w", err)
	}
	badExamples, err := g.Feedback.RejectedExamples(ctx, exemplarLimit, genre)
	if err != nil {
		return result, fmt.Errorf("pipeline: rejected examples: %w", err)
	}

	excludeConnections, err := existingConnections(ctx, g.Groups, genre)
	if err != nil {
		return result, fmt.Errorf("pipeline: existing connections: %w", err)
	}

	v := g.Verifiers(genre)

	for _, color := range models.Colors {
		if !colorsNeeded[color] {
			continue
		}
		if stage != nil {
			stage(models.GeneratingStage(color))
		}

		saved, generated, connections, genErrs := g.generateColor(ctx, genre, color, groupsPerColor, activeTypes, goodExamples, badExamples, excludeConnections, v)
		excludeConnections = append(excludeConnections, connections...)

		result.GroupsGenerated += generated
		result.GroupsSaved += saved
		result.ByColor[color] = models.ColorOutcome{Generated: generated, Saved: saved}
		result.Errors = append(result.Errors, genErrs...)
	}

	return result, nil
}

func (g *Generator) generateColor(
	ctx context.Context,
	genre models.Genre,
	color models.Color,
	count int,
	activeTypes []models.ConnectionType,
	goodExamples, badExamples []models.FeedbackRecord,
	excludeConnections []string,
	v verifier.Verifier,
) (saved, generated int, newConnections []string, errs []models.PipelineError) {
	req := llm.GenerateRequest{
		Filters: llm.GenerateFilters{
			Genre:              genre,
			TargetDifficulty:   color,
			ExcludeConnections: excludeConnections,
		},
		ConnectionTypes: activeTypes,
		Count:           count,
		GoodExamples:    goodExamples,
		BadExamples:     badExamples,
	}

	candidates, err := g.LLM.Generate(ctx, req)
	if err != nil {
		log.Error().Err(err).Str("genre", string(genre)).Str("color", string(color)).Msg("llm generation failed")
		errs = append(errs, models.PipelineError{
			Message: fmt.Sprintf("generation failed for %s: %v", color, err),
			Code:    models.ErrCodeGenerationFailed,
		})
		return 0, 0, nil, errs
	}
	generated = len(candidates)

	for _, cand := range candidates {
		if len(cand.Items) != 4 {
			errs = append(errs, models.PipelineError{
				Message: fmt.Sprintf("malformed candidate %q: expected 4 items, got %d", cand.Connection, len(cand.Items)),
				Code:    models.ErrCodeUnverified,
			})
			continue
		}

		items := make([]models.Item, len(cand.Items))
		for i, it := range cand.Items {
			items[i] = models.Item{Title: it.Title, Year: it.Year}
		}
		verified := v.VerifyMany(ctx, items)

		if !admissible(genre, verified) {
			errs = append(errs, models.PipelineError{
				Message: fmt.Sprintf("unverified items, skipping (%s)", cand.Connection),
				Code:    models.ErrCodeUnverified,
			})
			continue
		}

		var groupItems [4]models.Item
		for i, vi := range verified {
			groupItems[i] = models.Item{Title: vi.Title, Year: vi.Year, ExternalID: vi.ExternalID}
		}

		g2 := models.Group{
			Items:           groupItems,
			Connection:      cand.Connection,
			ConnectionType:  cand.ConnectionType,
			Difficulty:      models.ColorDifficulty[color],
			Color:           color,
			DifficultyScore: models.ColorDifficultyScore[color],
			Status:          models.GroupStatusApproved,
			Genre:           genre,
			Source:          models.SourceSystem,
		}

		if _, err := g.Groups.Save(ctx, g2); err != nil {
			if err == store.ErrDuplicateConnection {
				log.Debug().Str("connection", cand.Connection).Msg("duplicate connection, skipping")
				continue
			}
			errs = append(errs, models.PipelineError{
				Message: fmt.Sprintf("save failed for %s: %v", cand.Connection, err),
				Code:    models.ErrCodeStorageError,
			})
			continue
		}

		saved++
		newConnections = append(newConnections, cand.Connection)
	}

	return saved, generated, newConnections, errs
}

// admissible decides whether a candidate's verified items qualify for
// auto-approval: verifying domains (film, music) require both Verified
// and a non-nil ExternalID; the pass-through domain accepts Verified
// alone.
func admissible(genre models.Genre, items []models.VerifiedItem) bool {
	requireExternalID := genre == models.GenreFilms || genre == models.GenreMusic
	for _, it := range items {
		if !it.Verified {
			return false
		}
		if requireExternalID && it.ExternalID == nil {
			return false
		}
	}
	return true
}

func existingConnections(ctx context.Context, groups store.GroupStore, genre models.Genre) ([]string, error) {
	all, _, err := groups.List(ctx, store.GroupFilter{Genre: genre, Limit: 0})
	if err != nil {
		return nil, err
	}
	out := make([]string, len(all))
	for i, g := range all {
		out[i] = g.Connection
	}
	return out, nil
}
