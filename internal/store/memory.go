package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/dailyconnect/pipeline/internal/models"
	"github.com/google/uuid"
)

// MemoryGroupStore is an in-memory GroupStore for tests; it implements
// the same uniqueness and freshness semantics as the Postgres-backed
// store without needing a database.
type MemoryGroupStore struct {
	mu     sync.Mutex
	groups map[string]models.Group
}

func NewMemoryGroupStore() *MemoryGroupStore {
	return &MemoryGroupStore{groups: make(map[string]models.Group)}
}

func (s *MemoryGroupStore) Save(_ context.Context, g models.Group) (models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g.Status == models.GroupStatusApproved {
		for _, existing := range s.groups {
			if existing.Status == models.GroupStatusApproved &&
				existing.Genre == g.Genre && existing.Connection == g.Connection {
				return models.Group{}, ErrDuplicateConnection
			}
		}
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	s.groups[g.ID] = g
	return g, nil
}

func (s *MemoryGroupStore) SaveBatch(ctx context.Context, groups []models.Group) ([]models.Group, error) {
	out := make([]models.Group, 0, len(groups))
	for _, g := range groups {
		saved, err := s.Save(ctx, g)
		if err == ErrDuplicateConnection {
			continue
		}
		if err != nil {
			return out, err
		}
		out = append(out, saved)
	}
	return out, nil
}

func (s *MemoryGroupStore) List(_ context.Context, filter GroupFilter) ([]models.Group, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exclude := make(map[string]bool, len(filter.ExcludeIDs))
	for _, id := range filter.ExcludeIDs {
		exclude[id] = true
	}
	colorSet := make(map[models.Color]bool, len(filter.Colors))
	for _, c := range filter.Colors {
		colorSet[c] = true
	}

	var matched []models.Group
	for _, g := range s.groups {
		if g.Genre != filter.Genre {
			continue
		}
		if filter.Status != nil && g.Status != *filter.Status {
			continue
		}
		if len(colorSet) > 0 && !colorSet[g.Color] {
			continue
		}
		if filter.ConnectionType != nil && g.ConnectionType != *filter.ConnectionType {
			continue
		}
		if exclude[g.ID] {
			continue
		}
		matched = append(matched, g)
	}

	if filter.SortByFreshness {
		sortByFreshness(matched)
	}

	total := len(matched)
	if filter.Offset > 0 && filter.Offset < len(matched) {
		matched = matched[filter.Offset:]
	} else if filter.Offset >= len(matched) {
		matched = nil
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *MemoryGroupStore) GetByIDs(_ context.Context, ids []string) ([]models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Group, 0, len(ids))
	for _, id := range ids {
		if g, ok := s.groups[id]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *MemoryGroupStore) Update(_ context.Context, id string, patch GroupPatch) (models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[id]
	if !ok {
		return models.Group{}, ErrNotFound
	}
	if patch.Color != nil {
		g.Color = *patch.Color
	}
	if patch.Difficulty != nil {
		g.Difficulty = *patch.Difficulty
	}
	if patch.Status != nil {
		g.Status = *patch.Status
	}
	if patch.ConnectionType != nil {
		g.ConnectionType = *patch.ConnectionType
	}
	s.groups[id] = g
	return g, nil
}

func (s *MemoryGroupStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, id)
	return nil
}

func (s *MemoryGroupStore) IncrementUsage(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, id := range ids {
		g, ok := s.groups[id]
		if !ok {
			continue
		}
		g.UsageCount++
		g.LastUsedAt = &now
		s.groups[id] = g
	}
	return nil
}

func (s *MemoryGroupStore) CountsByColor(_ context.Context, genre models.Genre) (map[models.Color]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := map[models.Color]int{}
	for _, c := range models.Colors {
		counts[c] = 0
	}
	for _, g := range s.groups {
		if g.Genre == genre && g.Status == models.GroupStatusApproved {
			counts[g.Color]++
		}
	}
	return counts, nil
}

func (s *MemoryGroupStore) FreshestSet(_ context.Context, excludeIDs []string, genre models.Genre) (map[models.Color]*models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exclude := make(map[string]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		exclude[id] = true
	}

	byColor := map[models.Color][]models.Group{}
	for _, g := range s.groups {
		if g.Genre != genre || g.Status != models.GroupStatusApproved || exclude[g.ID] {
			continue
		}
		byColor[g.Color] = append(byColor[g.Color], g)
	}

	result := map[models.Color]*models.Group{}
	for _, c := range models.Colors {
		candidates := byColor[c]
		sortByFreshness(candidates)
		if len(candidates) == 0 {
			result[c] = nil
			continue
		}
		chosen := candidates[0]
		result[c] = &chosen
	}
	return result, nil
}

// sortByFreshness orders groups by (usageCount ASC, lastUsedAt ASC NULLS
// FIRST, createdAt ASC), the same ordering the Postgres store queries by.
func sortByFreshness(groups []models.Group) {
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.UsageCount != b.UsageCount {
			return a.UsageCount < b.UsageCount
		}
		if (a.LastUsedAt == nil) != (b.LastUsedAt == nil) {
			return a.LastUsedAt == nil
		}
		if a.LastUsedAt != nil && b.LastUsedAt != nil && !a.LastUsedAt.Equal(*b.LastUsedAt) {
			return a.LastUsedAt.Before(*b.LastUsedAt)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

// MemoryPuzzleStore is an in-memory PuzzleStore for tests.
type MemoryPuzzleStore struct {
	mu      sync.Mutex
	puzzles map[string]models.Puzzle
	groups  GroupStore
}

func NewMemoryPuzzleStore(groups GroupStore) *MemoryPuzzleStore {
	return &MemoryPuzzleStore{puzzles: make(map[string]models.Puzzle), groups: groups}
}

func (s *MemoryPuzzleStore) Save(_ context.Context, genre models.Genre, groupIDs [4]string) (models.Puzzle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := models.Puzzle{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		GroupIDs:  groupIDs,
		Status:    models.PuzzleStatusPending,
		Genre:     genre,
		Source:    models.SourceSystem,
	}
	s.puzzles[p.ID] = p
	return p, nil
}

func (s *MemoryPuzzleStore) Get(_ context.Context, id string) (models.Puzzle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.puzzles[id]
	if !ok {
		return models.Puzzle{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryPuzzleStore) List(_ context.Context, filter PuzzleFilter) ([]models.Puzzle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Puzzle
	for _, p := range s.puzzles {
		if p.Genre != filter.Genre {
			continue
		}
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *MemoryPuzzleStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.puzzles, id)
	return nil
}

func (s *MemoryPuzzleStore) BatchDelete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.puzzles, id)
	}
	return nil
}

func (s *MemoryPuzzleStore) BatchUpdate(ctx context.Context, updates map[string]PuzzlePatch) ([]models.Puzzle, error) {
	out := make([]models.Puzzle, 0, len(updates))
	for id, patch := range updates {
		p, err := s.Update(ctx, id, patch)
		if err != nil {
			return out, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *MemoryPuzzleStore) Update(ctx context.Context, id string, patch PuzzlePatch) (models.Puzzle, error) {
	s.mu.Lock()
	p, ok := s.puzzles[id]
	if !ok {
		s.mu.Unlock()
		return models.Puzzle{}, ErrNotFound
	}

	if patch.GroupIDs != nil {
		p.GroupIDs = *patch.GroupIDs
	}
	if patch.PuzzleDate != nil {
		p.PuzzleDate = patch.PuzzleDate
	}
	if patch.Title != nil {
		p.Title = patch.Title
	}

	publishing := patch.Status != nil && *patch.Status == models.PuzzleStatusPublished
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	s.mu.Unlock()

	if publishing {
		groups, err := s.groups.GetByIDs(ctx, p.GroupIDs[:])
		if err != nil {
			return models.Puzzle{}, err
		}
		var snapshot [4]models.Group
		copy(snapshot[:], groups)
		// deep-copy via marshal round trip so later live-group edits
		// cannot mutate the snapshot through a shared pointer.
		raw, err := json.Marshal(snapshot)
		if err != nil {
			return models.Puzzle{}, err
		}
		var copyOf [4]models.Group
		if err := json.Unmarshal(raw, &copyOf); err != nil {
			return models.Puzzle{}, err
		}
		p.GroupsSnapshot = &copyOf
	}

	s.mu.Lock()
	s.puzzles[id] = p
	s.mu.Unlock()
	return p, nil
}

func (s *MemoryPuzzleStore) GetDaily(_ context.Context, date string, genre models.Genre) (*models.Puzzle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.puzzles {
		if p.Genre == genre && p.Status == models.PuzzleStatusPublished &&
			p.PuzzleDate != nil && *p.PuzzleDate == date {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryPuzzleStore) EmptyDays(_ context.Context, from, to string, genre models.Genre) ([]string, error) {
	s.mu.Lock()
	scheduled := map[string]bool{}
	for _, p := range s.puzzles {
		if p.Genre == genre && p.PuzzleDate != nil {
			scheduled[*p.PuzzleDate] = true
		}
	}
	s.mu.Unlock()

	fromT, err := time.Parse("2006-01-02", from)
	if err != nil {
		return nil, err
	}
	toT, err := time.Parse("2006-01-02", to)
	if err != nil {
		return nil, err
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

func (s *MemoryPuzzleStore) ExistsWithGroupMultiset(_ context.Context, groupIDs [4]string, genre models.Genre) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := sortedIDs(groupIDs)
	for _, p := range s.puzzles {
		if p.Genre != genre {
			continue
		}
		if sortedIDs(p.GroupIDs) == want {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryPuzzleStore) UsedGroupIDs(_ context.Context, genre models.Genre) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	used := map[string]bool{}
	for _, p := range s.puzzles {
		if p.Genre != genre {
			continue
		}
		for _, id := range p.GroupIDs {
			used[id] = true
		}
	}
	return used, nil
}

func sortedIDs(ids [4]string) [4]string {
	out := ids
	sort.Strings(out[:])
	return out
}

// MemoryFeedbackStore is an in-memory FeedbackStore for tests.
type MemoryFeedbackStore struct {
	mu      sync.Mutex
	records []models.FeedbackRecord
}

func NewMemoryFeedbackStore() *MemoryFeedbackStore {
	return &MemoryFeedbackStore{}
}

func (s *MemoryFeedbackStore) Record(_ context.Context, rec models.FeedbackRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *MemoryFeedbackStore) AcceptedExamples(_ context.Context, limit int, genre models.Genre) ([]models.FeedbackRecord, error) {
	return s.filteredByVerdict(limit, genre, true), nil
}

func (s *MemoryFeedbackStore) RejectedExamples(_ context.Context, limit int, genre models.Genre) ([]models.FeedbackRecord, error) {
	return s.filteredByVerdict(limit, genre, false), nil
}

func (s *MemoryFeedbackStore) filteredByVerdict(limit int, genre models.Genre, accepted bool) []models.FeedbackRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []models.FeedbackRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		r := s.records[i]
		if r.Genre == genre && r.Accepted == accepted {
			matched = append(matched, r)
			if limit > 0 && len(matched) >= limit {
				break
			}
		}
	}
	return matched
}

// MemoryConnectionTypeStore is an in-memory ConnectionTypeStore for tests.
type MemoryConnectionTypeStore struct {
	mu    sync.Mutex
	types map[string]models.ConnectionType
}

func NewMemoryConnectionTypeStore() *MemoryConnectionTypeStore {
	return &MemoryConnectionTypeStore{types: make(map[string]models.ConnectionType)}
}

func (s *MemoryConnectionTypeStore) ListActive(_ context.Context, genre models.Genre) ([]models.ConnectionType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ConnectionType
	for _, ct := range s.types {
		if ct.Genre == genre && ct.Active {
			out = append(out, ct)
		}
	}
	return out, nil
}

func (s *MemoryConnectionTypeStore) ListAll(_ context.Context, genre models.Genre) ([]models.ConnectionType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ConnectionType
	for _, ct := range s.types {
		if ct.Genre == genre {
			out = append(out, ct)
		}
	}
	return out, nil
}

func (s *MemoryConnectionTypeStore) Create(_ context.Context, ct models.ConnectionType) (models.ConnectionType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ct.ID == "" {
		ct.ID = uuid.NewString()
	}
	s.types[ct.ID] = ct
	return ct, nil
}

func (s *MemoryConnectionTypeStore) Update(_ context.Context, id string, ct models.ConnectionType) (models.ConnectionType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.types[id]; !ok {
		return models.ConnectionType{}, ErrNotFound
	}
	ct.ID = id
	s.types[id] = ct
	return ct, nil
}

func (s *MemoryConnectionTypeStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.types, id)
	return nil
}

func (s *MemoryConnectionTypeStore) ToggleActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ct, ok := s.types[id]
	if !ok {
		return ErrNotFound
	}
	ct.Active = active
	s.types[id] = ct
	return nil
}

// MemoryPipelineConfigStore is an in-memory PipelineConfigStore for tests.
type MemoryPipelineConfigStore struct {
	mu      sync.Mutex
	configs map[models.Genre]models.PipelineConfig
}

func NewMemoryPipelineConfigStore() *MemoryPipelineConfigStore {
	return &MemoryPipelineConfigStore{configs: make(map[models.Genre]models.PipelineConfig)}
}

func (s *MemoryPipelineConfigStore) Get(_ context.Context, genre models.Genre) (models.PipelineConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg, ok := s.configs[genre]; ok {
		return cfg, nil
	}
	return models.DefaultPipelineConfig(genre), nil
}

func (s *MemoryPipelineConfigStore) Upsert(_ context.Context, cfg models.PipelineConfig) (models.PipelineConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.Genre] = cfg
	return cfg, nil
}

func (s *MemoryPipelineConfigStore) ListEnabled(_ context.Context) ([]models.PipelineConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PipelineConfig
	for _, cfg := range s.configs {
		if cfg.Enabled {
			out = append(out, cfg)
		}
	}
	return out, nil
}
