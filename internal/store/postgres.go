package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dailyconnect/pipeline/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// pqStringArray adapts a []string for use as a Postgres text[]/uuid[]
// bind parameter via lib/pq's array support.
func pqStringArray(ids []string) any {
	return pq.Array(ids)
}

// Postgres is the connection pool backing every persistence contract in
// this package: a single *sql.DB with connection-pool tuning and an
// inline-SQL InitSchema. Each store interface is implemented by its own
// thin wrapper type sharing this pool, since Go methods can't overload
// on patch type (GroupPatch vs PuzzlePatch vs ConnectionType) under one
// shared "Update" name.
type Postgres struct {
	DB *sql.DB
}

// NewPostgres opens a connection pool against postgresURL.
func NewPostgres(postgresURL string) (*Postgres, error) {
	db, err := sql.Open("postgres", postgresURL)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	return &Postgres{DB: db}, nil
}

// Groups returns a GroupStore backed by this pool.
func (p *Postgres) Groups() *PostgresGroupStore { return &PostgresGroupStore{db: p.DB} }

// Puzzles returns a PuzzleStore backed by this pool.
func (p *Postgres) Puzzles() *PostgresPuzzleStore { return &PostgresPuzzleStore{db: p.DB} }

// Feedback returns a FeedbackStore backed by this pool.
func (p *Postgres) Feedback() *PostgresFeedbackStore { return &PostgresFeedbackStore{db: p.DB} }

// ConnectionTypes returns a ConnectionTypeStore backed by this pool.
func (p *Postgres) ConnectionTypes() *PostgresConnectionTypeStore {
	return &PostgresConnectionTypeStore{db: p.DB}
}

// Configs returns a PipelineConfigStore backed by this pool.
func (p *Postgres) Configs() *PostgresPipelineConfigStore {
	return &PostgresPipelineConfigStore{db: p.DB}
}

// PostgresGroupStore implements GroupStore against the connection_groups
// table.
type PostgresGroupStore struct{ db *sql.DB }

// PostgresPuzzleStore implements PuzzleStore against the puzzles table.
type PostgresPuzzleStore struct{ db *sql.DB }

// PostgresFeedbackStore implements FeedbackStore against the
// group_feedback table.
type PostgresFeedbackStore struct{ db *sql.DB }

// PostgresConnectionTypeStore implements ConnectionTypeStore against the
// connection_types table.
type PostgresConnectionTypeStore struct{ db *sql.DB }

// PostgresPipelineConfigStore implements PipelineConfigStore against the
// pipeline_config table.
type PostgresPipelineConfigStore struct{ db *sql.DB }

// InitSchema creates the pipeline's tables along with the uniqueness
// constraints and the atomic usage-increment function.
func (p *Postgres) InitSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS connection_groups (
	id UUID PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	items JSONB NOT NULL,
	connection TEXT NOT NULL,
	connection_type TEXT NOT NULL,
	difficulty TEXT NOT NULL,
	color TEXT NOT NULL,
	difficulty_score INT NOT NULL,
	status TEXT NOT NULL,
	usage_count INT NOT NULL DEFAULT 0,
	last_used_at TIMESTAMPTZ,
	genre TEXT NOT NULL,
	metadata JSONB,
	source TEXT NOT NULL DEFAULT 'system'
);

CREATE UNIQUE INDEX IF NOT EXISTS connection_groups_connection_genre_approved_idx
	ON connection_groups (connection, genre)
	WHERE status = 'approved';

CREATE TABLE IF NOT EXISTS puzzles (
	id UUID PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	puzzle_date DATE,
	title TEXT,
	group_ids UUID[] NOT NULL,
	sorted_group_ids UUID[] NOT NULL,
	status TEXT NOT NULL,
	genre TEXT NOT NULL,
	source TEXT NOT NULL DEFAULT 'system',
	groups JSONB
);

CREATE UNIQUE INDEX IF NOT EXISTS puzzles_date_genre_idx
	ON puzzles (puzzle_date, genre)
	WHERE puzzle_date IS NOT NULL;

CREATE UNIQUE INDEX IF NOT EXISTS puzzles_sorted_group_ids_genre_idx
	ON puzzles (sorted_group_ids, genre);

CREATE TABLE IF NOT EXISTS connection_types (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	category TEXT NOT NULL,
	description TEXT NOT NULL,
	examples JSONB,
	active BOOLEAN NOT NULL DEFAULT true,
	genre TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS group_feedback (
	id UUID PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	items JSONB NOT NULL,
	connection TEXT NOT NULL,
	accepted BOOLEAN NOT NULL,
	rejection_reason TEXT,
	genre TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS pipeline_config (
	genre TEXT PRIMARY KEY,
	enabled BOOLEAN NOT NULL DEFAULT true,
	rolling_window_days INT NOT NULL DEFAULT 30,
	min_groups_per_color INT NOT NULL DEFAULT 10,
	ai_generation_batch_size INT NOT NULL DEFAULT 20
);

CREATE OR REPLACE FUNCTION increment_group_usage(ids UUID[])
RETURNS void AS $$
	UPDATE connection_groups
	SET usage_count = usage_count + 1, last_used_at = now()
	WHERE id = ANY(ids);
$$ LANGUAGE sql;
`
	if _, err := p.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("store: init schema: %w", err)
	}
	return nil
}

// ---- GroupStore ----

func (p *PostgresGroupStore) Save(ctx context.Context, g models.Group) (models.Group, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	itemsJSON, err := json.Marshal(g.Items)
	if err != nil {
		return models.Group{}, fmt.Errorf("store: marshal items: %w", err)
	}
	var metaJSON []byte
	if g.Metadata != nil {
		metaJSON, err = json.Marshal(g.Metadata)
		if err != nil {
			return models.Group{}, fmt.Errorf("store: marshal metadata: %w", err)
		}
	}

	const q = `
INSERT INTO connection_groups
	(id, items, connection, connection_type, difficulty, color, difficulty_score, status, genre, metadata, source)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
RETURNING created_at`

	err = p.db.QueryRowContext(ctx, q, g.ID, itemsJSON, g.Connection, g.ConnectionType,
		g.Difficulty, g.Color, g.DifficultyScore, g.Status, g.Genre, metaJSON, g.Source).Scan(&g.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Group{}, ErrDuplicateConnection
		}
		return models.Group{}, fmt.Errorf("store: save group: %w", err)
	}
	return g, nil
}

func (p *PostgresGroupStore) SaveBatch(ctx context.Context, groups []models.Group) ([]models.Group, error) {
	out := make([]models.Group, 0, len(groups))
	for _, g := range groups {
		saved, err := p.Save(ctx, g)
		if err == ErrDuplicateConnection {
			log.Debug().Str("connection", g.Connection).Msg("skipping duplicate connection on batch save")
			continue
		}
		if err != nil {
			return out, err
		}
		out = append(out, saved)
	}
	return out, nil
}

func (p *PostgresGroupStore) List(ctx context.Context, filter GroupFilter) ([]models.Group, int, error) {
	var (
		conds []string
		args  []any
	)
	conds = append(conds, fmt.Sprintf("genre = $%d", len(args)+1))
	args = append(args, filter.Genre)

	if filter.Status != nil {
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if len(filter.Colors) > 0 {
		conds = append(conds, fmt.Sprintf("color = ANY($%d)", len(args)+1))
		args = append(args, pqStringArray(colorsToStrings(filter.Colors)))
	}
	if filter.ConnectionType != nil {
		conds = append(conds, fmt.Sprintf("connection_type = $%d", len(args)+1))
		args = append(args, *filter.ConnectionType)
	}
	if len(filter.ExcludeIDs) > 0 {
		conds = append(conds, fmt.Sprintf("NOT (id = ANY($%d))", len(args)+1))
		args = append(args, pqStringArray(filter.ExcludeIDs))
	}

	where := strings.Join(conds, " AND ")

	var total int
	countQ := "SELECT count(*) FROM connection_groups WHERE " + where
	if err := p.db.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count groups: %w", err)
	}

	order := "created_at ASC"
	if filter.SortByFreshness {
		order = "usage_count ASC, last_used_at ASC NULLS FIRST, created_at ASC"
	}
	q := fmt.Sprintf(`SELECT id, created_at, items, connection, connection_type, difficulty,
		color, difficulty_score, status, usage_count, last_used_at, genre, metadata, source
		FROM connection_groups WHERE %s ORDER BY %s`, where, order)
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list groups: %w", err)
	}
	defer rows.Close()

	groups, err := scanGroups(rows)
	if err != nil {
		return nil, 0, err
	}
	return groups, total, nil
}

func (p *PostgresGroupStore) GetByIDs(ctx context.Context, ids []string) ([]models.Group, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const q = `SELECT id, created_at, items, connection, connection_type, difficulty,
		color, difficulty_score, status, usage_count, last_used_at, genre, metadata, source
		FROM connection_groups WHERE id = ANY($1)`
	rows, err := p.db.QueryContext(ctx, q, pqStringArray(ids))
	if err != nil {
		return nil, fmt.Errorf("store: get groups by ids: %w", err)
	}
	defer rows.Close()

	unordered, err := scanGroups(rows)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.Group, len(unordered))
	for _, g := range unordered {
		byID[g.ID] = g
	}
	out := make([]models.Group, 0, len(ids))
	for _, id := range ids {
		if g, ok := byID[id]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

func (p *PostgresGroupStore) Update(ctx context.Context, id string, patch GroupPatch) (models.Group, error) {
	var (
		sets []string
		args []any
	)
	if patch.Color != nil {
		args = append(args, *patch.Color)
		sets = append(sets, fmt.Sprintf("color = $%d", len(args)))
	}
	if patch.Difficulty != nil {
		args = append(args, *patch.Difficulty)
		sets = append(sets, fmt.Sprintf("difficulty = $%d", len(args)))
	}
	if patch.Status != nil {
		args = append(args, *patch.Status)
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if patch.ConnectionType != nil {
		args = append(args, *patch.ConnectionType)
		sets = append(sets, fmt.Sprintf("connection_type = $%d", len(args)))
	}
	if len(sets) == 0 {
		return p.getGroup(ctx, id)
	}

	args = append(args, id)
	q := fmt.Sprintf("UPDATE connection_groups SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	if _, err := p.db.ExecContext(ctx, q, args...); err != nil {
		return models.Group{}, fmt.Errorf("store: update group: %w", err)
	}
	return p.getGroup(ctx, id)
}

func (p *PostgresGroupStore) getGroup(ctx context.Context, id string) (models.Group, error) {
	const q = `SELECT id, created_at, items, connection, connection_type, difficulty,
		color, difficulty_score, status, usage_count, last_used_at, genre, metadata, source
		FROM connection_groups WHERE id = $1`
	rows, err := p.db.QueryContext(ctx, q, id)
	if err != nil {
		return models.Group{}, fmt.Errorf("store: get group: %w", err)
	}
	defer rows.Close()
	groups, err := scanGroups(rows)
	if err != nil {
		return models.Group{}, err
	}
	if len(groups) == 0 {
		return models.Group{}, ErrNotFound
	}
	return groups[0], nil
}

func (p *PostgresGroupStore) Delete(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, "DELETE FROM connection_groups WHERE id = $1 AND status != 'approved'", id)
	if err != nil {
		return fmt.Errorf("store: delete group: %w", err)
	}
	return nil
}

func (p *PostgresGroupStore) IncrementUsage(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := p.db.ExecContext(ctx, "SELECT increment_group_usage($1)", pqStringArray(ids))
	if err != nil {
		return fmt.Errorf("store: increment usage: %w", err)
	}
	return nil
}

func (p *PostgresGroupStore) CountsByColor(ctx context.Context, genre models.Genre) (map[models.Color]int, error) {
	const q = `SELECT color, count(*) FROM connection_groups
		WHERE genre = $1 AND status = 'approved' GROUP BY color`
	rows, err := p.db.QueryContext(ctx, q, genre)
	if err != nil {
		return nil, fmt.Errorf("store: counts by color: %w", err)
	}
	defer rows.Close()

	counts := map[models.Color]int{}
	for _, c := range models.Colors {
		counts[c] = 0
	}
	for rows.Next() {
		var color models.Color
		var n int
		if err := rows.Scan(&color, &n); err != nil {
			return nil, fmt.Errorf("store: scan color count: %w", err)
		}
		counts[color] = n
	}
	return counts, rows.Err()
}

func (p *PostgresGroupStore) FreshestSet(ctx context.Context, excludeIDs []string, genre models.Genre) (map[models.Color]*models.Group, error) {
	result := map[models.Color]*models.Group{}
	for _, c := range models.Colors {
		filter := GroupFilter{
			Status:          statusPtr(models.GroupStatusApproved),
			Colors:          []models.Color{c},
			Genre:           genre,
			ExcludeIDs:      excludeIDs,
			SortByFreshness: true,
			Limit:           1,
		}
		groups, _, err := p.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		if len(groups) == 0 {
			result[c] = nil
			continue
		}
		result[c] = &groups[0]
	}
	return result, nil
}

func statusPtr(s models.GroupStatus) *models.GroupStatus { return &s }

func scanGroups(rows *sql.Rows) ([]models.Group, error) {
	var out []models.Group
	for rows.Next() {
		var (
			g          models.Group
			itemsJSON  []byte
			metaJSON   []byte
			lastUsedAt sql.NullTime
		)
		if err := rows.Scan(&g.ID, &g.CreatedAt, &itemsJSON, &g.Connection, &g.ConnectionType,
			&g.Difficulty, &g.Color, &g.DifficultyScore, &g.Status, &g.UsageCount,
			&lastUsedAt, &g.Genre, &metaJSON, &g.Source); err != nil {
			return nil, fmt.Errorf("store: scan group: %w", err)
		}
		if err := json.Unmarshal(itemsJSON, &g.Items); err != nil {
			return nil, fmt.Errorf("store: unmarshal items: %w", err)
		}
		if lastUsedAt.Valid {
			t := lastUsedAt.Time
			g.LastUsedAt = &t
		}
		if len(metaJSON) > 0 {
			var meta any
			if err := json.Unmarshal(metaJSON, &meta); err != nil {
				return nil, fmt.Errorf("store: unmarshal metadata: %w", err)
			}
			g.Metadata = meta
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func colorsToStrings(colors []models.Color) []string {
	out := make([]string, len(colors))
	for i, c := range colors {
		out[i] = string(c)
	}
	return out
}

func sortedGroupIDs(ids [4]string) []string {
	out := append([]string(nil), ids[:]...)
	sort.Strings(out)
	return out
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "duplicate key value violates unique constraint")
}

// ---- PuzzleStore ----

func (p *PostgresPuzzleStore) Save(ctx context.Context, genre models.Genre, groupIDs [4]string) (models.Puzzle, error) {
	id := uuid.NewString()
	const q = `
INSERT INTO puzzles (id, group_ids, sorted_group_ids, status, genre, source)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at`

	var pz models.Puzzle
	pz.ID = id
	pz.GroupIDs = groupIDs
	pz.Status = models.PuzzleStatusPending
	pz.Genre = genre
	pz.Source = models.SourceSystem

	err := p.db.QueryRowContext(ctx, q, id, pqStringArray(groupIDs[:]),
		pqStringArray(sortedGroupIDs(groupIDs)), pz.Status, genre, pz.Source).Scan(&pz.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Puzzle{}, fmt.Errorf("store: save puzzle: %w", ErrDuplicatePuzzle)
		}
		return models.Puzzle{}, fmt.Errorf("store: save puzzle: %w", err)
	}
	return pz, nil
}

func (p *PostgresPuzzleStore) Get(ctx context.Context, id string) (models.Puzzle, error) {
	return p.getPuzzle(ctx, id)
}

func (p *PostgresPuzzleStore) getPuzzle(ctx context.Context, id string) (models.Puzzle, error) {
	const q = `SELECT id, created_at, puzzle_date, title, group_ids, status, genre, source, groups
		FROM puzzles WHERE id = $1`
	rows, err := p.db.QueryContext(ctx, q, id)
	if err != nil {
		return models.Puzzle{}, fmt.Errorf("store: get puzzle: %w", err)
	}
	defer rows.Close()
	puzzles, err := scanPuzzles(rows)
	if err != nil {
		return models.Puzzle{}, err
	}
	if len(puzzles) == 0 {
		return models.Puzzle{}, ErrNotFound
	}
	return puzzles[0], nil
}

func (p *PostgresPuzzleStore) List(ctx context.Context, filter PuzzleFilter) ([]models.Puzzle, error) {
	conds := []string{"genre = $1"}
	args := []any{filter.Genre}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	q := fmt.Sprintf(`SELECT id, created_at, puzzle_date, title, group_ids, status, genre, source, groups
		FROM puzzles WHERE %s ORDER BY created_at ASC`, strings.Join(conds, " AND "))
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list puzzles: %w", err)
	}
	defer rows.Close()
	return scanPuzzles(rows)
}

func (p *PostgresPuzzleStore) Delete(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, "DELETE FROM puzzles WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("store: delete puzzle: %w", err)
	}
	return nil
}

func (p *PostgresPuzzleStore) BatchDelete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := p.db.ExecContext(ctx, "DELETE FROM puzzles WHERE id = ANY($1)", pqStringArray(ids))
	if err != nil {
		return fmt.Errorf("store: batch delete puzzles: %w", err)
	}
	return nil
}

func (p *PostgresPuzzleStore) BatchUpdate(ctx context.Context, updates map[string]PuzzlePatch) ([]models.Puzzle, error) {
	out := make([]models.Puzzle, 0, len(updates))
	for id, patch := range updates {
		pz, err := p.Update(ctx, id, patch)
		if err != nil {
			return out, err
		}
		out = append(out, pz)
	}
	return out, nil
}

// Update applies patch to the puzzle row. When patch.Status points at
// PuzzleStatusPublished, the group_ids/sorted_group_ids/puzzle_date/
// status/groups columns are all written in one transaction, snapshotting
// the current Group rows into the groups JSONB column.
func (p *PostgresPuzzleStore) Update(ctx context.Context, id string, patch PuzzlePatch) (models.Puzzle, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Puzzle{}, fmt.Errorf("store: begin update puzzle: %w", err)
	}
	defer tx.Rollback()

	var (
		sets []string
		args []any
	)
	if patch.GroupIDs != nil {
		args = append(args, pqStringArray(patch.GroupIDs[:]))
		sets = append(sets, fmt.Sprintf("group_ids = $%d", len(args)))
		args = append(args, pqStringArray(sortedGroupIDs(*patch.GroupIDs)))
		sets = append(sets, fmt.Sprintf("sorted_group_ids = $%d", len(args)))
	}
	if patch.PuzzleDate != nil {
		args = append(args, *patch.PuzzleDate)
		sets = append(sets, fmt.Sprintf("puzzle_date = $%d", len(args)))
	}
	if patch.Title != nil {
		args = append(args, *patch.Title)
		sets = append(sets, fmt.Sprintf("title = $%d", len(args)))
	}

	publishing := patch.Status != nil && *patch.Status == models.PuzzleStatusPublished
	if patch.Status != nil {
		args = append(args, *patch.Status)
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}

	if publishing {
		current, err := p.getPuzzleTx(ctx, tx, id)
		if err != nil {
			return models.Puzzle{}, err
		}
		groupIDs := current.GroupIDs
		if patch.GroupIDs != nil {
			groupIDs = *patch.GroupIDs
		}
		groups, err := p.getGroupsTx(ctx, tx, groupIDs[:])
		if err != nil {
			return models.Puzzle{}, err
		}
		var snapshot [4]models.Group
		copy(snapshot[:], groups)
		snapshotJSON, err := json.Marshal(snapshot)
		if err != nil {
			return models.Puzzle{}, fmt.Errorf("store: marshal snapshot: %w", err)
		}
		args = append(args, snapshotJSON)
		sets = append(sets, fmt.Sprintf("groups = $%d", len(args)))
	}

	if len(sets) > 0 {
		args = append(args, id)
		q := fmt.Sprintf("UPDATE puzzles SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			if isUniqueViolation(err) {
				return models.Puzzle{}, fmt.Errorf("store: update puzzle: %w", ErrDuplicatePuzzle)
			}
			return models.Puzzle{}, fmt.Errorf("store: update puzzle: %w", err)
		}
	}

	updated, err := p.getPuzzleTx(ctx, tx, id)
	if err != nil {
		return models.Puzzle{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Puzzle{}, fmt.Errorf("store: commit update puzzle: %w", err)
	}
	return updated, nil
}

func (p *PostgresPuzzleStore) getPuzzleTx(ctx context.Context, tx *sql.Tx, id string) (models.Puzzle, error) {
	const q = `SELECT id, created_at, puzzle_date, title, group_ids, status, genre, source, groups
		FROM puzzles WHERE id = $1`
	rows, err := tx.QueryContext(ctx, q, id)
	if err != nil {
		return models.Puzzle{}, fmt.Errorf("store: get puzzle: %w", err)
	}
	defer rows.Close()
	puzzles, err := scanPuzzles(rows)
	if err != nil {
		return models.Puzzle{}, err
	}
	if len(puzzles) == 0 {
		return models.Puzzle{}, ErrNotFound
	}
	return puzzles[0], nil
}

func (p *PostgresPuzzleStore) getGroupsTx(ctx context.Context, tx *sql.Tx, ids []string) ([]models.Group, error) {
	const q = `SELECT id, created_at, items, connection, connection_type, difficulty,
		color, difficulty_score, status, usage_count, last_used_at, genre, metadata, source
		FROM connection_groups WHERE id = ANY($1)`
	rows, err := tx.QueryContext(ctx, q, pqStringArray(ids))
	if err != nil {
		return nil, fmt.Errorf("store: get groups for snapshot: %w", err)
	}
	defer rows.Close()
	unordered, err := scanGroups(rows)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.Group, len(unordered))
	for _, g := range unordered {
		byID[g.ID] = g
	}
	out := make([]models.Group, 0, len(ids))
	for _, id := range ids {
		if g, ok := byID[id]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

func (p *PostgresPuzzleStore) GetDaily(ctx context.Context, date string, genre models.Genre) (*models.Puzzle, error) {
	const q = `SELECT id, created_at, puzzle_date, title, group_ids, status, genre, source, groups
		FROM puzzles WHERE puzzle_date = $1 AND genre = $2 AND status = 'published'`
	rows, err := p.db.QueryContext(ctx, q, date, genre)
	if err != nil {
		return nil, fmt.Errorf("store: get daily puzzle: %w", err)
	}
	defer rows.Close()
	puzzles, err := scanPuzzles(rows)
	if err != nil {
		return nil, err
	}
	if len(puzzles) == 0 {
		return nil, nil
	}
	return &puzzles[0], nil
}

func (p *PostgresPuzzleStore) EmptyDays(ctx context.Context, from, to string, genre models.Genre) ([]string, error) {
	const q = `SELECT puzzle_date FROM puzzles
		WHERE genre = $1 AND puzzle_date IS NOT NULL AND puzzle_date BETWEEN $2 AND $3`
	rows, err := p.db.QueryContext(ctx, q, genre, from, to)
	if err != nil {
		return nil, fmt.Errorf("store: scheduled dates: %w", err)
	}
	defer rows.Close()

	scheduled := map[string]bool{}
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("store: scan scheduled date: %w", err)
		}
		scheduled[d.Format("2006-01-02")] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	fromT, err := time.Parse("2006-01-02", from)
	if err != nil {
		return nil, fmt.Errorf("store: parse from date: %w", err)
	}
	toT, err := time.Parse("2006-01-02", to)
	if err != nil {
		return nil, fmt.Errorf("store: parse to date: %w", err)
	}

	var out []string
	for d := fromT; !d.After(toT); d = d.AddDate(0, 0, 1) {
		iso := d.Format("2006-01-02")
		if !scheduled[iso] {
			out = append(out, iso)
		}
	}
	return out, nil
}

func (p *PostgresPuzzleStore) ExistsWithGroupMultiset(ctx context.Context, groupIDs [4]string, genre models.Genre) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM puzzles WHERE genre = $1 AND sorted_group_ids = $2)`
	var exists bool
	err := p.db.QueryRowContext(ctx, q, genre, pqStringArray(sortedGroupIDs(groupIDs))).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("store: check group multiset: %w", err)
	}
	return exists, nil
}

func (p *PostgresPuzzleStore) UsedGroupIDs(ctx context.Context, genre models.Genre) (map[string]bool, error) {
	const q = `SELECT group_ids FROM puzzles WHERE genre = $1`
	rows, err := p.db.QueryContext(ctx, q, genre)
	if err != nil {
		return nil, fmt.Errorf("store: used group ids: %w", err)
	}
	defer rows.Close()

	used := map[string]bool{}
	for rows.Next() {
		var ids pq.StringArray
		if err := rows.Scan(&ids); err != nil {
			return nil, fmt.Errorf("store: scan used group ids: %w", err)
		}
		for _, id := range ids {
			used[id] = true
		}
	}
	return used, rows.Err()
}

func scanPuzzles(rows *sql.Rows) ([]models.Puzzle, error) {
	var out []models.Puzzle
	for rows.Next() {
		var (
			pz         models.Puzzle
			puzzleDate sql.NullTime
			title      sql.NullString
			groupIDs   pq.StringArray
			groupsJSON []byte
		)
		if err := rows.Scan(&pz.ID, &pz.CreatedAt, &puzzleDate, &title, &groupIDs,
			&pz.Status, &pz.Genre, &pz.Source, &groupsJSON); err != nil {
			return nil, fmt.Errorf("store: scan puzzle: %w", err)
		}
		if puzzleDate.Valid {
			d := puzzleDate.Time.Format("2006-01-02")
			pz.PuzzleDate = &d
		}
		if title.Valid {
			pz.Title = &title.String
		}
		copy(pz.GroupIDs[:], groupIDs)
		if len(groupsJSON) > 0 {
			var snapshot [4]models.Group
			if err := json.Unmarshal(groupsJSON, &snapshot); err != nil {
				return nil, fmt.Errorf("store: unmarshal snapshot: %w", err)
			}
			pz.GroupsSnapshot = &snapshot
		}
		out = append(out, pz)
	}
	return out, rows.Err()
}

// ---- FeedbackStore ----

func (p *PostgresFeedbackStore) Record(ctx context.Context, rec models.FeedbackRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	itemsJSON, err := json.Marshal(rec.Items)
	if err != nil {
		return fmt.Errorf("store: marshal feedback items: %w", err)
	}
	const q = `INSERT INTO group_feedback (id, items, connection, accepted, rejection_reason, genre)
		VALUES ($1,$2,$3,$4,$5,$6)`
	_, err = p.db.ExecContext(ctx, q, rec.ID, itemsJSON, rec.Connection, rec.Accepted, rec.RejectionReason, rec.Genre)
	if err != nil {
		return fmt.Errorf("store: record feedback: %w", err)
	}
	return nil
}

func (p *PostgresFeedbackStore) AcceptedExamples(ctx context.Context, limit int, genre models.Genre) ([]models.FeedbackRecord, error) {
	return p.examplesByVerdict(ctx, limit, genre, true)
}

func (p *PostgresFeedbackStore) RejectedExamples(ctx context.Context, limit int, genre models.Genre) ([]models.FeedbackRecord, error) {
	return p.examplesByVerdict(ctx, limit, genre, false)
}

func (p *PostgresFeedbackStore) examplesByVerdict(ctx context.Context, limit int, genre models.Genre, accepted bool) ([]models.FeedbackRecord, error) {
	q := `SELECT id, created_at, items, connection, accepted, rejection_reason, genre
		FROM group_feedback WHERE genre = $1 AND accepted = $2 ORDER BY created_at DESC`
	args := []any{genre, accepted}
	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: feedback examples: %w", err)
	}
	defer rows.Close()

	var out []models.FeedbackRecord
	for rows.Next() {
		var (
			rec       models.FeedbackRecord
			itemsJSON []byte
			reason    sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.CreatedAt, &itemsJSON, &rec.Connection, &rec.Accepted, &reason, &rec.Genre); err != nil {
			return nil, fmt.Errorf("store: scan feedback: %w", err)
		}
		if err := json.Unmarshal(itemsJSON, &rec.Items); err != nil {
			return nil, fmt.Errorf("store: unmarshal feedback items: %w", err)
		}
		if reason.Valid {
			rec.RejectionReason = &reason.String
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ---- ConnectionTypeStore ----

func (p *PostgresConnectionTypeStore) ListActive(ctx context.Context, genre models.Genre) ([]models.ConnectionType, error) {
	return p.listConnectionTypes(ctx, genre, true)
}

func (p *PostgresConnectionTypeStore) ListAll(ctx context.Context, genre models.Genre) ([]models.ConnectionType, error) {
	return p.listConnectionTypes(ctx, genre, false)
}

func (p *PostgresConnectionTypeStore) listConnectionTypes(ctx context.Context, genre models.Genre, activeOnly bool) ([]models.ConnectionType, error) {
	q := `SELECT id, name, category, description, examples, active, genre
		FROM connection_types WHERE genre = $1`
	args := []any{genre}
	if activeOnly {
		q += " AND active = true"
	}
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list connection types: %w", err)
	}
	defer rows.Close()

	var out []models.ConnectionType
	for rows.Next() {
		var (
			ct           models.ConnectionType
			examplesJSON []byte
		)
		if err := rows.Scan(&ct.ID, &ct.Name, &ct.Category, &ct.Description, &examplesJSON, &ct.Active, &ct.Genre); err != nil {
			return nil, fmt.Errorf("store: scan connection type: %w", err)
		}
		if len(examplesJSON) > 0 {
			if err := json.Unmarshal(examplesJSON, &ct.Examples); err != nil {
				return nil, fmt.Errorf("store: unmarshal examples: %w", err)
			}
		}
		out = append(out, ct)
	}
	return out, rows.Err()
}

func (p *PostgresConnectionTypeStore) Create(ctx context.Context, ct models.ConnectionType) (models.ConnectionType, error) {
	if ct.ID == "" {
		ct.ID = uuid.NewString()
	}
	examplesJSON, err := json.Marshal(ct.Examples)
	if err != nil {
		return models.ConnectionType{}, fmt.Errorf("store: marshal examples: %w", err)
	}
	const q = `INSERT INTO connection_types (id, name, category, description, examples, active, genre)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err = p.db.ExecContext(ctx, q, ct.ID, ct.Name, ct.Category, ct.Description, examplesJSON, ct.Active, ct.Genre)
	if err != nil {
		return models.ConnectionType{}, fmt.Errorf("store: create connection type: %w", err)
	}
	return ct, nil
}

func (p *PostgresConnectionTypeStore) Update(ctx context.Context, id string, ct models.ConnectionType) (models.ConnectionType, error) {
	return p.updateConnectionType(ctx, id, ct)
}

func (p *PostgresConnectionTypeStore) updateConnectionType(ctx context.Context, id string, ct models.ConnectionType) (models.ConnectionType, error) {
	examplesJSON, err := json.Marshal(ct.Examples)
	if err != nil {
		return models.ConnectionType{}, fmt.Errorf("store: marshal examples: %w", err)
	}
	const q = `UPDATE connection_types SET name=$1, category=$2, description=$3, examples=$4, active=$5 WHERE id=$6`
	res, err := p.db.ExecContext(ctx, q, ct.Name, ct.Category, ct.Description, examplesJSON, ct.Active, id)
	if err != nil {
		return models.ConnectionType{}, fmt.Errorf("store: update connection type: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ConnectionType{}, ErrNotFound
	}
	ct.ID = id
	return ct, nil
}

func (p *PostgresConnectionTypeStore) Delete(ctx context.Context, id string) error {
	_, err := p.db.ExecContext(ctx, "DELETE FROM connection_types WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("store: delete connection type: %w", err)
	}
	return nil
}

func (p *PostgresConnectionTypeStore) ToggleActive(ctx context.Context, id string, active bool) error {
	res, err := p.db.ExecContext(ctx, "UPDATE connection_types SET active = $1 WHERE id = $2", active, id)
	if err != nil {
		return fmt.Errorf("store: toggle connection type: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- PipelineConfigStore ----

func (p *PostgresPipelineConfigStore) Get(ctx context.Context, genre models.Genre) (models.PipelineConfig, error) {
	const q = `SELECT genre, enabled, rolling_window_days, min_groups_per_color, ai_generation_batch_size
		FROM pipeline_config WHERE genre = $1`
	var cfg models.PipelineConfig
	err := p.db.QueryRowContext(ctx, q, genre).Scan(&cfg.Genre, &cfg.Enabled, &cfg.RollingWindowDays,
		&cfg.MinGroupsPerColor, &cfg.AIGenerationBatchSize)
	if err == sql.ErrNoRows {
		return models.DefaultPipelineConfig(genre), nil
	}
	if err != nil {
		return models.PipelineConfig{}, fmt.Errorf("store: get pipeline config: %w", err)
	}
	return cfg, nil
}

func (p *PostgresPipelineConfigStore) Upsert(ctx context.Context, cfg models.PipelineConfig) (models.PipelineConfig, error) {
	const q = `
INSERT INTO pipeline_config (genre, enabled, rolling_window_days, min_groups_per_color, ai_generation_batch_size)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (genre) DO UPDATE SET
	enabled = EXCLUDED.enabled,
	rolling_window_days = EXCLUDED.rolling_window_days,
	min_groups_per_color = EXCLUDED.min_groups_per_color,
	ai_generation_batch_size = EXCLUDED.ai_generation_batch_size`
	_, err := p.db.ExecContext(ctx, q, cfg.Genre, cfg.Enabled, cfg.RollingWindowDays,
		cfg.MinGroupsPerColor, cfg.AIGenerationBatchSize)
	if err != nil {
		return models.PipelineConfig{}, fmt.Errorf("store: upsert pipeline config: %w", err)
	}
	return cfg, nil
}

func (p *PostgresPipelineConfigStore) ListEnabled(ctx context.Context) ([]models.PipelineConfig, error) {
	const q = `SELECT genre, enabled, rolling_window_days, min_groups_per_color, ai_generation_batch_size
		FROM pipeline_config WHERE enabled = true`
	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list enabled configs: %w", err)
	}
	defer rows.Close()

	var out []models.PipelineConfig
	for rows.Next() {
		var cfg models.PipelineConfig
		if err := rows.Scan(&cfg.Genre, &cfg.Enabled, &cfg.RollingWindowDays,
			&cfg.MinGroupsPerColor, &cfg.AIGenerationBatchSize); err != nil {
			return nil, fmt.Errorf("store: scan pipeline config: %w", err)
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}
