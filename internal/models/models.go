// Package models defines the domain types shared by the store, verifier,
// LLM, and pipeline packages.
package models

import "time"

// Genre identifies a content domain the pipeline can produce puzzles for.
type Genre string

const (
	GenreFilms  Genre = "films"
	GenreMusic  Genre = "music"
	GenreBooks  Genre = "books"
	GenreSports Genre = "sports"
)

// Color is the four-valued difficulty band every group and every published
// puzzle slot carries.
type Color string

const (
	ColorYellow Color = "yellow"
	ColorGreen  Color = "green"
	ColorBlue   Color = "blue"
	ColorPurple Color = "purple"
)

// Colors lists the four bands in their canonical, deterministic order.
var Colors = [4]Color{ColorYellow, ColorGreen, ColorBlue, ColorPurple}

// Difficulty is the storage-facing name for a Color's difficulty band.
type Difficulty string

const (
	DifficultyEasy    Difficulty = "easy"
	DifficultyMedium  Difficulty = "medium"
	DifficultyHard    Difficulty = "hard"
	DifficultyHardest Difficulty = "hardest"
)

// ColorDifficulty is the one-to-one color<->difficulty mapping.
var ColorDifficulty = map[Color]Difficulty{
	ColorYellow: DifficultyEasy,
	ColorGreen:  DifficultyMedium,
	ColorBlue:   DifficultyHard,
	ColorPurple: DifficultyHardest,
}

// ColorDifficultyScore is the 1..4 numeric score paired with each color.
var ColorDifficultyScore = map[Color]int{
	ColorYellow: 1,
	ColorGreen:  2,
	ColorBlue:   3,
	ColorPurple: 4,
}

// TargetDifficultyToken is the LLM-facing name for a color's difficulty,
// which diverges from the storage-facing Difficulty in exactly one place:
// the LLM is asked for "expert" where storage records "hardest".
func TargetDifficultyToken(c Color) string {
	if c == ColorPurple {
		return "expert"
	}
	return string(ColorDifficulty[c])
}

// GroupStatus is the lifecycle state of a Group.
type GroupStatus string

const (
	GroupStatusPending  GroupStatus = "pending"
	GroupStatusApproved GroupStatus = "approved"
	GroupStatusRejected GroupStatus = "rejected"
)

// PuzzleStatus is the lifecycle state of a Puzzle.
type PuzzleStatus string

const (
	PuzzleStatusPending   PuzzleStatus = "pending"
	PuzzleStatusApproved  PuzzleStatus = "approved"
	PuzzleStatusPublished PuzzleStatus = "published"
	PuzzleStatusRejected  PuzzleStatus = "rejected"
)

// Source distinguishes system-generated (LLM pipeline) from
// human-authored records.
type Source string

const (
	SourceSystem Source = "system"
	SourceUser   Source = "user"
)

// ConnectionCategory enumerates the taxonomy a ConnectionType may belong to.
type ConnectionCategory string

const (
	CategoryWordGame   ConnectionCategory = "word-game"
	CategoryPeople     ConnectionCategory = "people"
	CategoryThematic   ConnectionCategory = "thematic"
	CategorySetting    ConnectionCategory = "setting"
	CategoryCultural   ConnectionCategory = "cultural"
	CategoryNarrative  ConnectionCategory = "narrative"
	CategoryCharacter  ConnectionCategory = "character"
	CategoryProduction ConnectionCategory = "production"
	CategoryElements   ConnectionCategory = "elements"
)

// Item is an informal catalog entry before or after verification.
type Item struct {
	ExternalID *int64 `json:"externalId,omitempty"`
	Title      string `json:"title"`
	Year       *int   `json:"year,omitempty"`
}

// VerifiedItem is the Verifier's output for one Item. Invariant: once
// Verified is true for a verifying domain, ExternalID is set; see
// admissible in internal/pipeline for the per-genre admission policy.
type VerifiedItem struct {
	Title      string `json:"title"`
	Year       *int   `json:"year,omitempty"`
	ExternalID *int64 `json:"externalId,omitempty"`
	Verified   bool   `json:"verified"`
}

// Group is a candidate or approved set of four items sharing a connection.
type Group struct {
	ID              string      `json:"id"`
	CreatedAt       time.Time   `json:"createdAt"`
	Items           [4]Item     `json:"items"`
	Connection      string      `json:"connection"`
	ConnectionType  string      `json:"connectionType"`
	Difficulty      Difficulty  `json:"difficulty"`
	Color           Color       `json:"color"`
	DifficultyScore int         `json:"difficultyScore"`
	Status          GroupStatus `json:"status"`
	UsageCount      int         `json:"usageCount"`
	LastUsedAt      *time.Time  `json:"lastUsedAt,omitempty"`
	Genre           Genre       `json:"genre"`
	Metadata        any         `json:"metadata,omitempty"`
	Source          Source      `json:"source"`
}

// Puzzle is a daily four-group assembly, pending until published.
type Puzzle struct {
	ID             string       `json:"id"`
	CreatedAt      time.Time    `json:"createdAt"`
	PuzzleDate     *string      `json:"puzzleDate,omitempty"`
	Title          *string      `json:"title,omitempty"`
	GroupIDs       [4]string    `json:"groupIds"`
	Status         PuzzleStatus `json:"status"`
	Genre          Genre        `json:"genre"`
	Source         Source       `json:"source"`
	GroupsSnapshot *[4]Group    `json:"groupsSnapshot,omitempty"`
}

// ConnectionType is prompt material describing a category of connection;
// it is never referenced structurally by a Group.
type ConnectionType struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Category    ConnectionCategory `json:"category"`
	Description string             `json:"description"`
	Examples    []string           `json:"examples,omitempty"`
	Active      bool               `json:"active"`
	Genre       Genre              `json:"genre"`
}

// FeedbackItem is the minimal item shape recorded with a FeedbackRecord.
type FeedbackItem struct {
	Title string `json:"title"`
	Year  *int   `json:"year,omitempty"`
}

// FeedbackRecord is an append-only accept/reject verdict used to shape
// future prompts.
type FeedbackRecord struct {
	ID              string         `json:"id"`
	CreatedAt       time.Time      `json:"createdAt"`
	Items           []FeedbackItem `json:"items"`
	Connection      string         `json:"connection"`
	Accepted        bool           `json:"accepted"`
	RejectionReason *string        `json:"rejectionReason,omitempty"`
	Genre           Genre          `json:"genre"`
}

// PipelineConfig is the per-genre tuning row; a missing row yields
// DefaultPipelineConfig(genre).
type PipelineConfig struct {
	Genre                 Genre `json:"genre"`
	Enabled               bool  `json:"enabled"`
	RollingWindowDays     int   `json:"rollingWindowDays"`
	MinGroupsPerColor     int   `json:"minGroupsPerColor"`
	AIGenerationBatchSize int   `json:"aiGenerationBatchSize"`
}

// DefaultPipelineConfig constructs the implicit config used when no row
// exists for a genre. Callers MUST NOT synthesize defaults themselves;
// the config store owns this.
func DefaultPipelineConfig(genre Genre) PipelineConfig {
	return PipelineConfig{
		Genre:                 genre,
		Enabled:               true,
		RollingWindowDays:     30,
		MinGroupsPerColor:     10,
		AIGenerationBatchSize: 20,
	}
}

// PipelineErrorCode is the closed taxonomy of non-panic pipeline failures.
type PipelineErrorCode string

const (
	ErrCodeInsufficientGroups PipelineErrorCode = "InsufficientGroups"
	ErrCodeDuplicatePuzzle    PipelineErrorCode = "DuplicatePuzzle"
	ErrCodeGenerationFailed   PipelineErrorCode = "GenerationFailed"
	ErrCodeUnverified         PipelineErrorCode = "Unverified"
	ErrCodeStorageError       PipelineErrorCode = "StorageError"
	ErrCodeCancelled          PipelineErrorCode = "Cancelled"
	ErrCodeMisconfigured      PipelineErrorCode = "Misconfigured"
)

// PipelineError is one recorded, non-fatal failure within a FillWindow run.
type PipelineError struct {
	Date    string            `json:"date"`
	Message string            `json:"message"`
	Code    PipelineErrorCode `json:"code"`
}

// ColorOutcome is the generated/saved tally for one color within a run.
type ColorOutcome struct {
	Generated int `json:"generated"`
	Saved     int `json:"saved"`
}

// PipelineFillResult is the wire-format summary of one FillWindow run.
type PipelineFillResult struct {
	PuzzlesCreated        int                    `json:"puzzlesCreated"`
	EmptyDaysRemaining    int                    `json:"emptyDaysRemaining"`
	AIGenerationTriggered bool                   `json:"aiGenerationTriggered"`
	GroupsGenerated       int                    `json:"groupsGenerated"`
	GroupsSaved           int                    `json:"groupsSaved"`
	GroupsByColor         map[Color]ColorOutcome `json:"groupsByColor"`
	Errors                []PipelineError        `json:"errors"`
}

// NewPipelineFillResult returns a zero-value result with an initialized
// per-color map and a non-nil, empty error slice.
func NewPipelineFillResult() *PipelineFillResult {
	byColor := make(map[Color]ColorOutcome, len(Colors))
	for _, c := range Colors {
		byColor[c] = ColorOutcome{}
	}
	return &PipelineFillResult{
		GroupsByColor: byColor,
		Errors:        []PipelineError{},
	}
}

// Stage is a named milestone within a single FillWindow invocation.
type Stage string

const (
	StageIdle             Stage = "idle"
	StageCheckingPool     Stage = "checking-pool"
	StageGeneratingYellow Stage = "generating-yellow"
	StageGeneratingGreen  Stage = "generating-green"
	StageGeneratingBlue   Stage = "generating-blue"
	StageGeneratingPurple Stage = "generating-purple"
	StageCreatingPuzzles  Stage = "creating-puzzles"
	StageComplete         Stage = "complete"
	StageError            Stage = "error"
)

// GeneratingStage returns the stage name emitted before generation begins
// for the given color.
func GeneratingStage(c Color) Stage {
	return Stage("generating-" + string(c))
}

// StageCallback receives stage transitions during FillWindow. A nil
// callback is valid and treated as a no-op sink.
type StageCallback func(Stage)
