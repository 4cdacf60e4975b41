package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/dailyconnect/pipeline/internal/models"
	"github.com/dailyconnect/pipeline/internal/store"
	"github.com/stretchr/testify/require"
)

const testGenre = models.GenreFilms

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func newTestService(t *testing.T, today time.Time) (*Service, *store.MemoryGroupStore, *store.MemoryPuzzleStore) {
	t.Helper()
	groups := store.NewMemoryGroupStore()
	puzzles := store.NewMemoryPuzzleStore(groups)
	configs := store.NewMemoryPipelineConfigStore()
	svc := &Service{
		Groups:  groups,
		Puzzles: puzzles,
		Configs: configs,
		Now:     fixedClock(today),
	}
	return svc, groups, puzzles
}

func intPtr(v int) *int { return &v }

// approvedGroup builds a ready-to-save approved Group with four distinct
// items and a unique connection string, for direct insertion into the
// test pool.
func approvedGroup(color models.Color, connection string) models.Group {
	return models.Group{
		Items: [4]models.Item{
			{Title: connection + "-item-1", Year: intPtr(2000)},
			{Title: connection + "-item-2", Year: intPtr(2001)},
			{Title: connection + "-item-3", Year: intPtr(2002)},
			{Title: connection + "-item-4", Year: intPtr(2003)},
		},
		Connection:      connection,
		ConnectionType:  "thematic",
		Difficulty:      models.ColorDifficulty[color],
		Color:           color,
		DifficultyScore: models.ColorDifficultyScore[color],
		Status:          models.GroupStatusApproved,
		Genre:           testGenre,
		Source:          models.SourceSystem,
	}
}

// seedPool saves n approved, never-used groups per color with distinct
// connections, returning the ids grouped by color.
func seedPool(t *testing.T, groups *store.MemoryGroupStore, n int) map[models.Color][]string {
	t.Helper()
	base := mustDate(t, "2020-01-01")
	ids := map[models.Color][]string{}
	for _, c := range models.Colors {
		for i := 0; i < n; i++ {
			g := approvedGroup(c, string(c)+"-conn-"+itoa(i))
			// Pin CreatedAt so freshest-set ordering (createdAt ASC as the
			// final tie-break) is deterministic across runs instead of
			// depending on wall-clock resolution between back-to-back saves.
			g.CreatedAt = base.Add(time.Duration(i) * time.Minute)
			saved, err := groups.Save(context.Background(), g)
			require.NoError(t, err)
			ids[c] = append(ids[c], saved.ID)
		}
	}
	return ids
}

func itoa(i int) string {
	digits := "0123456789"
	if i == 0 {
		return "0"
	}
	var out []byte
	for i > 0 {
		out = append([]byte{digits[i%10]}, out...)
		i /= 10
	}
	return string(out)
}

// --- Scenario A: nothing to do ---

func TestFillWindow_ScenarioA_NothingToDo(t *testing.T) {
	today := mustDate(t, "2025-01-10")
	svc, _, puzzles := newTestService(t, today)
	ctx := context.Background()

	for _, d := range []string{"2025-01-10", "2025-01-11", "2025-01-12"} {
		pz, err := puzzles.Save(ctx, testGenre, [4]string{"a-" + d, "b-" + d, "c-" + d, "d-" + d})
		require.NoError(t, err)
		dd := d
		published := models.PuzzleStatusPublished
		_, err = puzzles.Update(ctx, pz.ID, store.PuzzlePatch{PuzzleDate: &dd, Status: &published})
		require.NoError(t, err)
	}

	cfg := models.PipelineConfig{Genre: testGenre, Enabled: true, RollingWindowDays: 3, MinGroupsPerColor: 10, AIGenerationBatchSize: 20}
	result := svc.FillWindow(ctx, testGenre, cfg, nil)

	require.Equal(t, 0, result.PuzzlesCreated)
	require.Equal(t, 0, result.EmptyDaysRemaining)
	require.False(t, result.AIGenerationTriggered)
	require.Equal(t, 0, result.GroupsGenerated)
	require.Empty(t, result.Errors)
}

// --- Scenario B: straight fill, ample pool ---

func TestFillWindow_ScenarioB_StraightFill(t *testing.T) {
	today := mustDate(t, "2025-01-10")
	svc, groups, _ := newTestService(t, today)
	ctx := context.Background()
	seedPool(t, groups, 5)

	cfg := models.PipelineConfig{Genre: testGenre, Enabled: true, RollingWindowDays: 2, MinGroupsPerColor: 10, AIGenerationBatchSize: 20}
	result := svc.FillWindow(ctx, testGenre, cfg, nil)

	require.Equal(t, 2, result.PuzzlesCreated)
	require.Equal(t, 0, result.EmptyDaysRemaining)
	require.False(t, result.AIGenerationTriggered)
	require.Empty(t, result.Errors)

	for _, date := range []string{"2025-01-10", "2025-01-11"} {
		pz, err := svc.Puzzles.GetDaily(ctx, date, testGenre)
		require.NoError(t, err)
		require.NotNil(t, pz)
		require.Equal(t, models.PuzzleStatusPublished, pz.Status)
		require.NotNil(t, pz.GroupsSnapshot)

		exists, err := svc.Puzzles.ExistsWithGroupMultiset(ctx, pz.GroupIDs, testGenre)
		require.NoError(t, err)
		require.True(t, exists)
	}

	counts, err := groups.CountsByColor(ctx, testGenre)
	require.NoError(t, err)
	for _, c := range models.Colors {
		require.Equal(t, 5, counts[c], "approved count unaffected by usage")
	}

	all, _, err := groups.List(ctx, store.GroupFilter{Genre: testGenre, Limit: 0})
	require.NoError(t, err)
	usedCount := 0
	for _, g := range all {
		if g.UsageCount > 0 {
			require.Equal(t, 1, g.UsageCount)
			usedCount++
		}
	}
	require.Equal(t, 8, usedCount, "8 groups (2 puzzles * 4 colors) should have usageCount=1")
}

// --- Scenario C: uniqueness retry ---

func TestFillWindow_ScenarioC_UniquenessRetry(t *testing.T) {
	today := mustDate(t, "2025-01-10")
	svc, groups, puzzles := newTestService(t, today)
	ctx := context.Background()
	ids := seedPool(t, groups, 5)

	existing := [4]string{ids[models.ColorYellow][0], ids[models.ColorGreen][0], ids[models.ColorBlue][0], ids[models.ColorPurple][0]}
	_, err := puzzles.Save(ctx, testGenre, existing)
	require.NoError(t, err)

	cfg := models.PipelineConfig{Genre: testGenre, Enabled: true, RollingWindowDays: 1, MinGroupsPerColor: 10, AIGenerationBatchSize: 20}
	result := svc.FillWindow(ctx, testGenre, cfg, nil)

	require.Equal(t, 1, result.PuzzlesCreated)
	require.Equal(t, 0, result.EmptyDaysRemaining)
	require.Empty(t, result.Errors)

	pz, err := puzzles.GetDaily(ctx, "2025-01-10", testGenre)
	require.NoError(t, err)
	require.NotNil(t, pz)
	for _, id := range pz.GroupIDs {
		require.NotContains(t, existing[:], id, "assembler must not reuse the colliding combination")
	}

	// FillWindow never hits the collision above: the pending puzzle's groups
	// are in UsedGroupIDs, so they are excluded before the first attempt.
	// With an empty used set the freshest combination is the existing one
	// (usageCount 0, earliest createdAt), so the assembler must retry once
	// and settle on the next-freshest groups.
	retried, err := svc.AssemblePuzzleForDate(ctx, "2025-01-11", testGenre, map[string]bool{})
	require.NoError(t, err)
	require.NotNil(t, retried)
	require.Equal(t, [4]string{ids[models.ColorYellow][2], ids[models.ColorGreen][2], ids[models.ColorBlue][2], ids[models.ColorPurple][2]}, retried.GroupIDs)
}

// --- Scenario D: deficit without LLM ---

func TestFillWindow_ScenarioD_DeficitWithoutLLM(t *testing.T) {
	today := mustDate(t, "2025-01-10")
	svc, groups, _ := newTestService(t, today)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		for _, c := range []models.Color{models.ColorYellow, models.ColorGreen, models.ColorBlue} {
			_, err := groups.Save(ctx, approvedGroup(c, string(c)+"-conn-"+itoa(i)))
			require.NoError(t, err)
		}
	}
	_, err := groups.Save(ctx, approvedGroup(models.ColorPurple, "purple-conn-0"))
	require.NoError(t, err)

	cfg := models.PipelineConfig{Genre: testGenre, Enabled: true, RollingWindowDays: 3, MinGroupsPerColor: 10, AIGenerationBatchSize: 20}
	result := svc.FillWindow(ctx, testGenre, cfg, nil)

	require.Nil(t, svc.Generator)
	require.False(t, result.AIGenerationTriggered)
	require.Equal(t, 1, result.PuzzlesCreated)
	require.Equal(t, 2, result.EmptyDaysRemaining)

	var insufficientCount int
	var noDateCount int
	for _, e := range result.Errors {
		require.Equal(t, models.ErrCodeInsufficientGroups, e.Code)
		if e.Date == "" {
			noDateCount++
		} else {
			insufficientCount++
		}
	}
	require.Equal(t, 1, noDateCount, "one deficit-announcement error with no date")
	require.Equal(t, 2, insufficientCount, "one error per unfillable date")
}

// --- Scenario F: snapshot immutability ---

func TestFillWindow_ScenarioF_SnapshotImmutability(t *testing.T) {
	today := mustDate(t, "2025-01-10")
	svc, groups, puzzles := newTestService(t, today)
	ctx := context.Background()
	ids := seedPool(t, groups, 5)

	cfg := models.PipelineConfig{Genre: testGenre, Enabled: true, RollingWindowDays: 1, MinGroupsPerColor: 10, AIGenerationBatchSize: 20}
	result := svc.FillWindow(ctx, testGenre, cfg, nil)
	require.Equal(t, 1, result.PuzzlesCreated)

	yellowID := ids[models.ColorYellow][0]
	newConn := "Directed by Xander"

	g, err := groups.GetByIDs(ctx, []string{yellowID})
	require.NoError(t, err)
	require.Len(t, g, 1)

	// Simulate an admin editing the live group's connection string after
	// publication (GroupPatch has no Connection field since that's not an
	// admin-editable column; overwrite the row directly the way a raw SQL
	// edit would, to exercise the snapshot's independence from it).
	mutated := g[0]
	mutated.Connection = newConn
	_, err = groups.Save(ctx, mutated)
	require.NoError(t, err)

	pz, err := puzzles.GetDaily(ctx, "2025-01-10", testGenre)
	require.NoError(t, err)
	require.NotNil(t, pz)
	require.NotNil(t, pz.GroupsSnapshot)

	var snapshotConn string
	for _, sg := range pz.GroupsSnapshot {
		if sg.ID == yellowID {
			snapshotConn = sg.Connection
		}
	}
	require.NotEqual(t, newConn, snapshotConn, "snapshot must retain the original connection string")
}

// --- Invariants & idempotence ---

func TestFillWindow_IdempotentOnSecondCall(t *testing.T) {
	today := mustDate(t, "2025-01-10")
	svc, groups, _ := newTestService(t, today)
	ctx := context.Background()
	seedPool(t, groups, 5)

	cfg := models.PipelineConfig{Genre: testGenre, Enabled: true, RollingWindowDays: 2, MinGroupsPerColor: 10, AIGenerationBatchSize: 20}
	first := svc.FillWindow(ctx, testGenre, cfg, nil)
	require.Equal(t, 2, first.PuzzlesCreated)

	second := svc.FillWindow(ctx, testGenre, cfg, nil)
	require.Equal(t, 0, second.PuzzlesCreated)
	require.Equal(t, 0, second.EmptyDaysRemaining)
}

func TestFillWindow_ZeroWindowReturnsImmediately(t *testing.T) {
	today := mustDate(t, "2025-01-10")
	svc, _, _ := newTestService(t, today)
	cfg := models.PipelineConfig{Genre: testGenre, Enabled: true, RollingWindowDays: 0, MinGroupsPerColor: 10, AIGenerationBatchSize: 20}
	result := svc.FillWindow(context.Background(), testGenre, cfg, nil)

	require.Equal(t, 0, result.PuzzlesCreated)
	require.Equal(t, 0, result.EmptyDaysRemaining)
	require.Empty(t, result.Errors)
}

func TestExistsWithGroupMultiset_OrderIndependent(t *testing.T) {
	today := mustDate(t, "2025-01-10")
	svc, groups, puzzles := newTestService(t, today)
	ctx := context.Background()
	ids := seedPool(t, groups, 1)

	combo := [4]string{ids[models.ColorYellow][0], ids[models.ColorGreen][0], ids[models.ColorBlue][0], ids[models.ColorPurple][0]}
	_, err := puzzles.Save(ctx, testGenre, combo)
	require.NoError(t, err)

	permuted := [4]string{combo[3], combo[1], combo[2], combo[0]}
	exists, err := svc.Puzzles.ExistsWithGroupMultiset(ctx, permuted, testGenre)
	require.NoError(t, err)
	require.True(t, exists, "multiset equality must be order-independent")
}

func TestAssemblePuzzleForDate_StopsWhenAColorIsExhausted(t *testing.T) {
	today := mustDate(t, "2025-01-10")
	svc, groups, _ := newTestService(t, today)
	ctx := context.Background()

	for _, c := range []models.Color{models.ColorYellow, models.ColorGreen, models.ColorBlue} {
		_, err := groups.Save(ctx, approvedGroup(c, string(c)+"-only"))
		require.NoError(t, err)
	}

	pz, err := svc.AssemblePuzzleForDate(ctx, "2025-01-10", testGenre, map[string]bool{})
	require.NoError(t, err)
	require.Nil(t, pz, "no purple group exists, assembly must fail cleanly")
}

func mustDate(t *testing.T, iso string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", iso)
	require.NoError(t, err)
	return d
}
