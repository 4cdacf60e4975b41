// Package store defines the persistence contracts the pipeline depends
// on, plus Postgres/Redis-backed and in-memory implementations.
package store

import (
	"context"
	"errors"

	"github.com/dailyconnect/pipeline/internal/models"
)

// ErrDuplicateConnection is raised by GroupStore.Save when an approved
// group with the same (connection, genre) already exists.
var ErrDuplicateConnection = errors.New("store: duplicate connection")

// ErrNotFound is returned by Get-style lookups that find nothing.
var ErrNotFound = errors.New("store: not found")

// ErrDuplicatePuzzle is raised by PuzzleStore.Save/Update when the
// (sorted group-id multiset, genre) or (puzzleDate, genre) uniqueness
// constraint is violated. When Save raises it, the assembler's bounded
// retry loop tries the next freshest combination; when Update raises it,
// the assembler returns the error and FillWindow records that date as a
// DuplicatePuzzle error.
var ErrDuplicatePuzzle = errors.New("store: duplicate puzzle")

// GroupFilter selects groups for GroupStore.List.
type GroupFilter struct {
	Status          *models.GroupStatus
	Colors          []models.Color
	ConnectionType  *string
	Genre           models.Genre
	ExcludeIDs      []string
	SortByFreshness bool
	Limit           int
	Offset          int
}

// GroupStore persists Group rows and the read patterns the pipeline needs
// to assemble puzzles from them.
type GroupStore interface {
	Save(ctx context.Context, g models.Group) (models.Group, error)
	SaveBatch(ctx context.Context, groups []models.Group) ([]models.Group, error)
	List(ctx context.Context, filter GroupFilter) ([]models.Group, int, error)
	GetByIDs(ctx context.Context, ids []string) ([]models.Group, error)
	Update(ctx context.Context, id string, patch GroupPatch) (models.Group, error)
	Delete(ctx context.Context, id string) error
	IncrementUsage(ctx context.Context, ids []string) error
	CountsByColor(ctx context.Context, genre models.Genre) (map[models.Color]int, error)
	// FreshestSet returns one group per color, ordered by
	// (usageCount ASC, lastUsedAt ASC NULLS FIRST, createdAt ASC),
	// skipping excludeIDs. A nil entry means no eligible group remains
	// for that color.
	FreshestSet(ctx context.Context, excludeIDs []string, genre models.Genre) (map[models.Color]*models.Group, error)
}

// GroupPatch carries the mutable subset of Group fields for Update.
type GroupPatch struct {
	Color          *models.Color
	Difficulty     *models.Difficulty
	Status         *models.GroupStatus
	ConnectionType *string
}

// PuzzlePatch carries the mutable subset of Puzzle fields for Update.
// When Status points at PuzzleStatusPublished, the store MUST atomically
// snapshot the current Group rows for GroupIDs into GroupsSnapshot.
type PuzzlePatch struct {
	PuzzleDate *string
	Status     *models.PuzzleStatus
	GroupIDs   *[4]string
	Title      *string
}

// PuzzleFilter selects puzzles for PuzzleStore.List.
type PuzzleFilter struct {
	Genre  models.Genre
	Status *models.PuzzleStatus
	Limit  int
	Offset int
}

// PuzzleStore persists Puzzle rows and the uniqueness/assembly queries
// the pipeline depends on.
type PuzzleStore interface {
	Save(ctx context.Context, genre models.Genre, groupIDs [4]string) (models.Puzzle, error)
	Get(ctx context.Context, id string) (models.Puzzle, error)
	List(ctx context.Context, filter PuzzleFilter) ([]models.Puzzle, error)
	Delete(ctx context.Context, id string) error
	BatchUpdate(ctx context.Context, updates map[string]PuzzlePatch) ([]models.Puzzle, error)
	BatchDelete(ctx context.Context, ids []string) error
	Update(ctx context.Context, id string, patch PuzzlePatch) (models.Puzzle, error)
	// GetDaily returns only a published puzzle for the date, with the
	// groups snapshot stored at publication. When no snapshot is stored,
	// GroupsSnapshot is nil; the groups are not assembled from live rows.
	GetDaily(ctx context.Context, date string, genre models.Genre) (*models.Puzzle, error)
	// EmptyDays returns the ISO dates in [from, to] with no puzzle row
	// for genre.
	EmptyDays(ctx context.Context, from, to string, genre models.Genre) ([]string, error)
	ExistsWithGroupMultiset(ctx context.Context, groupIDs [4]string, genre models.Genre) (bool, error)
	UsedGroupIDs(ctx context.Context, genre models.Genre) (map[string]bool, error)
}

// FeedbackStore persists accept/reject verdicts used to shape prompts.
type FeedbackStore interface {
	Record(ctx context.Context, rec models.FeedbackRecord) error
	AcceptedExamples(ctx context.Context, limit int, genre models.Genre) ([]models.FeedbackRecord, error)
	RejectedExamples(ctx context.Context, limit int, genre models.Genre) ([]models.FeedbackRecord, error)
}

// ConnectionTypeStore persists the prompt-facing connection taxonomy.
type ConnectionTypeStore interface {
	ListActive(ctx context.Context, genre models.Genre) ([]models.ConnectionType, error)
	ListAll(ctx context.Context, genre models.Genre) ([]models.ConnectionType, error)
	Create(ctx context.Context, ct models.ConnectionType) (models.ConnectionType, error)
	Update(ctx context.Context, id string, ct models.ConnectionType) (models.ConnectionType, error)
	Delete(ctx context.Context, id string) error
	ToggleActive(ctx context.Context, id string, active bool) error
}

// PipelineConfigStore persists the per-genre tuning row, synthesizing
// defaults for genres with no row.
type PipelineConfigStore interface {
	Get(ctx context.Context, genre models.Genre) (models.PipelineConfig, error)
	Upsert(ctx context.Context, cfg models.PipelineConfig) (models.PipelineConfig, error)
	ListEnabled(ctx context.Context) ([]models.PipelineConfig, error)
}
