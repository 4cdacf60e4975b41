package store

import (
	"context"
	"testing"
	"time"

	"github.com/dailyconnect/pipeline/internal/models"
	"github.com/stretchr/testify/require"
)

const testGenre = models.GenreFilms

func baseGroup(color models.Color, connection string) models.Group {
	return models.Group{
		Items: [4]models.Item{
			{Title: connection + "-1"},
			{Title: connection + "-2"},
			{Title: connection + "-3"},
			{Title: connection + "-4"},
		},
		Connection:     connection,
		ConnectionType: "thematic",
		Difficulty:     models.ColorDifficulty[color],
		Color:          color,
		Status:         models.GroupStatusApproved,
		Genre:          testGenre,
		Source:         models.SourceSystem,
	}
}

func TestMemoryGroupStore_Save_RejectsDuplicateConnection(t *testing.T) {
	s := NewMemoryGroupStore()
	ctx := context.Background()

	_, err := s.Save(ctx, baseGroup(models.ColorYellow, "same connection"))
	require.NoError(t, err)

	_, err = s.Save(ctx, baseGroup(models.ColorGreen, "same connection"))
	require.ErrorIs(t, err, ErrDuplicateConnection)
}

func TestMemoryGroupStore_Save_AllowsDuplicateConnectionAcrossGenres(t *testing.T) {
	s := NewMemoryGroupStore()
	ctx := context.Background()

	_, err := s.Save(ctx, baseGroup(models.ColorYellow, "shared"))
	require.NoError(t, err)

	other := baseGroup(models.ColorYellow, "shared")
	other.Genre = models.GenreMusic
	_, err = s.Save(ctx, other)
	require.NoError(t, err, "same connection string in a different genre is not a collision")
}

func TestMemoryGroupStore_Save_AllowsDuplicateConnectionWhenNotApproved(t *testing.T) {
	s := NewMemoryGroupStore()
	ctx := context.Background()

	pending := baseGroup(models.ColorYellow, "shared")
	pending.Status = models.GroupStatusPending
	_, err := s.Save(ctx, pending)
	require.NoError(t, err)

	_, err = s.Save(ctx, baseGroup(models.ColorYellow, "shared"))
	require.NoError(t, err, "pending rows don't collide with an approved save of the same connection")
}

func TestMemoryGroupStore_FreshestSet_OrdersByUsageThenLastUsedThenCreated(t *testing.T) {
	s := NewMemoryGroupStore()
	ctx := context.Background()

	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	older := baseGroup(models.ColorYellow, "older")
	older.CreatedAt = base
	savedOlder, err := s.Save(ctx, older)
	require.NoError(t, err)

	newer := baseGroup(models.ColorYellow, "newer")
	newer.CreatedAt = base.Add(time.Hour)
	savedNewer, err := s.Save(ctx, newer)
	require.NoError(t, err)

	used := baseGroup(models.ColorYellow, "used-but-earliest")
	used.CreatedAt = base.Add(-time.Hour)
	used.UsageCount = 1
	_, err = s.Save(ctx, used)
	require.NoError(t, err)

	freshest, err := s.FreshestSet(ctx, nil, testGenre)
	require.NoError(t, err)
	require.NotNil(t, freshest[models.ColorYellow])
	require.Equal(t, savedOlder.ID, freshest[models.ColorYellow].ID, "zero-usage, earlier createdAt wins over a used group")

	again, err := s.FreshestSet(ctx, []string{savedOlder.ID}, testGenre)
	require.NoError(t, err)
	require.Equal(t, savedNewer.ID, again[models.ColorYellow].ID, "excluding the freshest falls through to the next by createdAt")
}

func TestMemoryGroupStore_FreshestSet_NilWhenColorExhausted(t *testing.T) {
	s := NewMemoryGroupStore()
	ctx := context.Background()
	_, err := s.Save(ctx, baseGroup(models.ColorYellow, "only yellow"))
	require.NoError(t, err)

	freshest, err := s.FreshestSet(ctx, nil, testGenre)
	require.NoError(t, err)
	require.NotNil(t, freshest[models.ColorYellow])
	require.Nil(t, freshest[models.ColorPurple])
}

func TestMemoryPuzzleStore_ExistsWithGroupMultiset(t *testing.T) {
	groups := NewMemoryGroupStore()
	puzzles := NewMemoryPuzzleStore(groups)
	ctx := context.Background()

	a, _ := groups.Save(ctx, baseGroup(models.ColorYellow, "a"))
	b, _ := groups.Save(ctx, baseGroup(models.ColorGreen, "b"))
	c, _ := groups.Save(ctx, baseGroup(models.ColorBlue, "c"))
	d, _ := groups.Save(ctx, baseGroup(models.ColorPurple, "d"))

	_, err := puzzles.Save(ctx, testGenre, [4]string{a.ID, b.ID, c.ID, d.ID})
	require.NoError(t, err)

	exists, err := puzzles.ExistsWithGroupMultiset(ctx, [4]string{d.ID, c.ID, b.ID, a.ID}, testGenre)
	require.NoError(t, err)
	require.True(t, exists)

	e, _ := groups.Save(ctx, baseGroup(models.ColorPurple, "e"))
	exists, err = puzzles.ExistsWithGroupMultiset(ctx, [4]string{a.ID, b.ID, c.ID, e.ID}, testGenre)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestMemoryPuzzleStore_Update_SnapshotsGroupsIndependently(t *testing.T) {
	groups := NewMemoryGroupStore()
	puzzles := NewMemoryPuzzleStore(groups)
	ctx := context.Background()

	a, _ := groups.Save(ctx, baseGroup(models.ColorYellow, "a"))
	b, _ := groups.Save(ctx, baseGroup(models.ColorGreen, "b"))
	c, _ := groups.Save(ctx, baseGroup(models.ColorBlue, "c"))
	d, _ := groups.Save(ctx, baseGroup(models.ColorPurple, "d"))

	pz, err := puzzles.Save(ctx, testGenre, [4]string{a.ID, b.ID, c.ID, d.ID})
	require.NoError(t, err)

	date := "2025-02-01"
	published := models.PuzzleStatusPublished
	updated, err := puzzles.Update(ctx, pz.ID, PuzzlePatch{PuzzleDate: &date, Status: &published})
	require.NoError(t, err)
	require.NotNil(t, updated.GroupsSnapshot)
	require.Len(t, updated.GroupsSnapshot[:], 4)

	mutated := a
	mutated.Connection = "changed after publish"
	_, err = groups.Save(ctx, mutated)
	require.NoError(t, err)

	reread, err := puzzles.GetDaily(ctx, date, testGenre)
	require.NoError(t, err)
	require.NotNil(t, reread)
	for _, sg := range reread.GroupsSnapshot {
		if sg.ID == a.ID {
			require.Equal(t, "a", sg.Connection, "snapshot must not reflect the post-publish edit")
		}
	}
}
