package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dailyconnect/pipeline/internal/models"
	"github.com/dailyconnect/pipeline/internal/store"
	"github.com/rs/zerolog/log"
)

// maxAssembleAttempts is the hard bound on AssemblePuzzleForDate's
// uniqueness-collision retry loop. Collisions inside the bound are not
// errors; only the terminal give-up is reported.
const maxAssembleAttempts = 10

// maxGroupsPerColorBatch caps how many groups one generation pass asks
// for per color, regardless of deficit size.
const maxGroupsPerColorBatch = 30

// Clock abstracts "today" so tests can pin a date without touching the
// system clock.
type Clock func() time.Time

// Service is the top-level orchestrator: FillWindow computes demand,
// drives the LLM generator for deficits, then assembles and publishes
// puzzles for every empty date in the rolling window.
type Service struct {
	Groups    store.GroupStore
	Puzzles   store.PuzzleStore
	Configs   store.PipelineConfigStore
	Generator *Generator
	Now       Clock
}

// PoolHealth is the read-only CheckPool result.
type PoolHealth struct {
	Counts     map[models.Color]int `json:"counts"`
	Total      int                  `json:"total"`
	Sufficient bool                 `json:"sufficient"`
}

// CheckPool reports approved-group counts per color and whether every
// color has at least one.
func (s *Service) CheckPool(ctx context.Context, genre models.Genre) (PoolHealth, error) {
	counts, err := s.Groups.CountsByColor(ctx, genre)
	if err != nil {
		return PoolHealth{}, fmt.Errorf("pipeline: check pool: %w", err)
	}
	total := 0
	sufficient := true
	for _, c := range models.Colors {
		n := counts[c]
		total += n
		if n < 1 {
			sufficient = false
		}
	}
	return PoolHealth{Counts: counts, Total: total, Sufficient: sufficient}, nil
}

// UnusedCounts returns, per color, the number of approved groups not
// referenced by any puzzle of this genre.
func (s *Service) UnusedCounts(ctx context.Context, genre models.Genre) (map[models.Color]int, error) {
	used, err := s.Puzzles.UsedGroupIDs(ctx, genre)
	if err != nil {
		return nil, fmt.Errorf("pipeline: used group ids: %w", err)
	}

	approvedStatus := models.GroupStatusApproved
	all, _, err := s.Groups.List(ctx, store.GroupFilter{Genre: genre, Status: &approvedStatus, Limit: 0})
	if err != nil {
		return nil, fmt.Errorf("pipeline: list approved groups: %w", err)
	}

	counts := map[models.Color]int{}
	for _, c := range models.Colors {
		counts[c] = 0
	}
	for _, g := range all {
		if used[g.ID] {
			continue
		}
		counts[g.Color]++
	}
	return counts, nil
}

// ColorsNeeded returns the colors whose unused supply is below demand.
func ColorsNeeded(unused map[models.Color]int, demand int) map[models.Color]bool {
	needed := map[models.Color]bool{}
	for _, c := range models.Colors {
		if unused[c] < demand {
			needed[c] = true
		}
	}
	return needed
}

// EmptyDates returns the ISO dates in the rolling window with no puzzle
// row for genre.
func (s *Service) EmptyDates(ctx context.Context, genre models.Genre, windowDays int) ([]string, error) {
	if windowDays <= 0 {
		return nil, nil
	}
	today := s.now()
	from := today.Format("2006-01-02")
	to := today.AddDate(0, 0, windowDays-1).Format("2006-01-02")
	dates, err := s.Puzzles.EmptyDays(ctx, from, to, genre)
	if err != nil {
		return nil, fmt.Errorf("pipeline: empty days: %w", err)
	}
	return dates, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// AssemblePuzzleForDate runs the bounded freshest-set assembly loop:
// up to maxAssembleAttempts tries, excluding whichever combination
// collided with an existing puzzle on each retry.
func (s *Service) AssemblePuzzleForDate(ctx context.Context, date string, genre models.Genre, usedSet map[string]bool) (*models.Puzzle, error) {
	exclude := make(map[string]bool, len(usedSet))
	for id := range usedSet {
		exclude[id] = true
	}

	for attempt := 0; attempt < maxAssembleAttempts; attempt++ {
		excludeIDs := make([]string, 0, len(exclude))
		for id := range exclude {
			excludeIDs = append(excludeIDs, id)
		}

		freshest, err := s.Groups.FreshestSet(ctx, excludeIDs, genre)
		if err != nil {
			return nil, fmt.Errorf("pipeline: freshest set: %w", err)
		}

		var ids [4]string
		complete := true
		for i, c := range models.Colors {
			g := freshest[c]
			if g == nil {
				complete = false
				break
			}
			ids[i] = g.ID
		}
		if !complete {
			return nil, nil
		}

		exists, err := s.Puzzles.ExistsWithGroupMultiset(ctx, ids, genre)
		if err != nil {
			return nil, fmt.Errorf("pipeline: check multiset: %w", err)
		}
		if exists {
			for _, id := range ids {
				exclude[id] = true
			}
			continue
		}

		pz, err := s.Puzzles.Save(ctx, genre, ids)
		if err != nil {
			if errors.Is(err, store.ErrDuplicatePuzzle) {
				for _, id := range ids {
					exclude[id] = true
				}
				continue
			}
			return nil, fmt.Errorf("pipeline: save puzzle: %w", err)
		}

		publishedStatus := models.PuzzleStatusPublished
		dateCopy := date
		pz, err = s.Puzzles.Update(ctx, pz.ID, store.PuzzlePatch{PuzzleDate: &dateCopy, Status: &publishedStatus})
		if err != nil {
			return nil, fmt.Errorf("pipeline: publish puzzle: %w", err)
		}

		if err := s.Groups.IncrementUsage(ctx, ids[:]); err != nil {
			return nil, fmt.Errorf("pipeline: increment usage: %w", err)
		}

		return &pz, nil
	}

	return nil, nil
}

// FillWindow is the single end-to-end orchestration entry point: plan
// demand, generate for deficits, assemble and publish every empty date.
func (s *Service) FillWindow(ctx context.Context, genre models.Genre, cfg models.PipelineConfig, stage models.StageCallback) *models.PipelineFillResult {
	result := models.NewPipelineFillResult()
	emit := func(st models.Stage) {
		if stage != nil {
			stage(st)
		}
	}

	emit(models.StageCheckingPool)
	emptyDates, err := s.EmptyDates(ctx, genre, cfg.RollingWindowDays)
	if err != nil {
		result.Errors = append(result.Errors, models.PipelineError{Message: err.Error(), Code: models.ErrCodeStorageError})
		emit(models.StageError)
		return result
	}
	if len(emptyDates) == 0 {
		emit(models.StageComplete)
		return result
	}

	unused, err := s.UnusedCounts(ctx, genre)
	if err != nil {
		result.Errors = append(result.Errors, models.PipelineError{Message: err.Error(), Code: models.ErrCodeStorageError})
		emit(models.StageError)
		return result
	}
	demand := len(emptyDates)
	colorsNeeded := ColorsNeeded(unused, demand)

	if len(colorsNeeded) > 0 {
		if s.Generator != nil {
			groupsPerColor := groupsPerColorBatch(cfg.AIGenerationBatchSize, demand, unused)
			genResult, err := s.Generator.Generate(ctx, genre, colorsNeeded, groupsPerColor, func(st models.Stage) {
				emit(st)
			})
			if err != nil {
				result.Errors = append(result.Errors, models.PipelineError{Message: err.Error(), Code: models.ErrCodeGenerationFailed})
			}
			if genResult != nil {
				result.AIGenerationTriggered = true
				result.GroupsGenerated = genResult.GroupsGenerated
				result.GroupsSaved = genResult.GroupsSaved
				for c, outcome := range genResult.ByColor {
					result.GroupsByColor[c] = outcome
				}
				result.Errors = append(result.Errors, genResult.Errors...)
			}
		} else {
			result.Errors = append(result.Errors, models.PipelineError{
				Message: fmt.Sprintf("insufficient groups for colors: %s", colorNames(colorsNeeded)),
				Code:    models.ErrCodeInsufficientGroups,
			})
		}
	}

	usedSet, err := s.Puzzles.UsedGroupIDs(ctx, genre)
	if err != nil {
		result.Errors = append(result.Errors, models.PipelineError{Message: err.Error(), Code: models.ErrCodeStorageError})
		emit(models.StageError)
		return result
	}

	emit(models.StageCreatingPuzzles)
	for _, date := range emptyDates {
		select {
		case <-ctx.Done():
			result.Errors = append(result.Errors, models.PipelineError{Date: date, Message: "cancelled", Code: models.ErrCodeCancelled})
			emit(models.StageError)
			return result
		default:
		}

		pz, err := s.AssemblePuzzleForDate(ctx, date, genre, usedSet)
		if err != nil {
			code := models.ErrCodeStorageError
			if strings.Contains(err.Error(), "duplicate") {
				code = models.ErrCodeDuplicatePuzzle
			}
			log.Error().Err(err).Str("genre", string(genre)).Str("date", date).Msg("assemble puzzle failed")
			result.Errors = append(result.Errors, models.PipelineError{Date: date, Message: err.Error(), Code: code})
			continue
		}
		if pz == nil {
			result.EmptyDaysRemaining++
			result.Errors = append(result.Errors, models.PipelineError{
				Date:    date,
				Message: "insufficient groups to assemble a puzzle",
				Code:    models.ErrCodeInsufficientGroups,
			})
			continue
		}

		for _, id := range pz.GroupIDs {
			usedSet[id] = true
		}
		result.PuzzlesCreated++
	}

	emit(models.StageComplete)
	return result
}

// groupsPerColorBatch sizes one generation pass: at least the configured
// batch size, enough to cover the worst color's deficit plus slack, and
// never more than maxGroupsPerColorBatch.
func groupsPerColorBatch(batchSize, demand int, unused map[models.Color]int) int {
	minUnused := unused[models.Colors[0]]
	for _, c := range models.Colors[1:] {
		if unused[c] < minUnused {
			minUnused = unused[c]
		}
	}
	want := demand - minUnused + 5
	if want < batchSize {
		want = batchSize
	}
	if want > maxGroupsPerColorBatch {
		want = maxGroupsPerColorBatch
	}
	return want
}

func colorNames(colors map[models.Color]bool) string {
	names := make([]string, 0, len(colors))
	for _, c := range models.Colors {
		if colors[c] {
			names = append(names, string(c))
		}
	}
	return strings.Join(names, ", ")
}
