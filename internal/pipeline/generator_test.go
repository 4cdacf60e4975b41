package pipeline

import (
	"context"
	"testing"

	"github.com/dailyconnect/pipeline/internal/llm"
	"github.com/dailyconnect/pipeline/internal/models"
	"github.com/dailyconnect/pipeline/internal/store"
	"github.com/dailyconnect/pipeline/internal/verifier"
	"github.com/stretchr/testify/require"
)

// fakeLLMClient returns a fixed raw response regardless of prompt, so
// tests can drive Generator.Generate without a real provider.
type fakeLLMClient struct {
	response string
	err      error
}

func (f fakeLLMClient) Complete(_ context.Context, _ string) (string, error) {
	return f.response, f.err
}

// fakeVerifier marks every item verified with a synthetic external id,
// except for titles in unverifiable, which come back unverified.
type fakeVerifier struct {
	unverifiable map[string]bool
}

func (f fakeVerifier) VerifyOne(_ context.Context, item models.Item) models.VerifiedItem {
	if f.unverifiable[item.Title] {
		return models.VerifiedItem{Title: item.Title, Year: item.Year, Verified: false}
	}
	id := int64(len(item.Title))
	return models.VerifiedItem{Title: item.Title, Year: item.Year, ExternalID: &id, Verified: true}
}

func (f fakeVerifier) VerifyMany(ctx context.Context, items []models.Item) []models.VerifiedItem {
	out := make([]models.VerifiedItem, len(items))
	for i, it := range items {
		out[i] = f.VerifyOne(ctx, it)
	}
	return out
}

const fiveCandidatesOneUnverifiable = `{
  "groups": [
    {"items": [{"title":"A1","year":2000},{"title":"A2","year":2001},{"title":"A3","year":2002},{"title":"A4","year":2003}], "connection":"conn-a", "connectionType":"thematic", "explanation":"x"},
    {"items": [{"title":"B1","year":2000},{"title":"B2","year":2001},{"title":"B3","year":2002},{"title":"B4","year":2003}], "connection":"conn-b", "connectionType":"thematic", "explanation":"x"},
    {"items": [{"title":"C1","year":2000},{"title":"C2","year":2001},{"title":"C3","year":2002},{"title":"C4","year":2003}], "connection":"conn-c", "connectionType":"thematic", "explanation":"x"},
    {"items": [{"title":"Bad Item","year":2000},{"title":"D2","year":2001},{"title":"D3","year":2002},{"title":"D4","year":2003}], "connection":"conn-d", "connectionType":"thematic", "explanation":"x"},
    {"items": [{"title":"E1","year":2000},{"title":"E2","year":2001},{"title":"E3","year":2002},{"title":"E4","year":2003}], "connection":"conn-e", "connectionType":"thematic", "explanation":"x"}
  ]
}`

func TestGenerator_PartialVerificationSuccess(t *testing.T) {
	groups := store.NewMemoryGroupStore()
	feedback := store.NewMemoryFeedbackStore()
	types := store.NewMemoryConnectionTypeStore()

	llmGen := llm.NewGenerator(fakeLLMClient{response: fiveCandidatesOneUnverifiable}, nil)
	g := &Generator{
		LLM:      llmGen,
		Groups:   groups,
		Feedback: feedback,
		Types:    types,
		Verifiers: func(models.Genre) verifier.Verifier {
			return fakeVerifier{unverifiable: map[string]bool{"Bad Item": true}}
		},
	}

	result, err := g.Generate(context.Background(), testGenre, map[models.Color]bool{models.ColorPurple: true}, 5, nil)
	require.NoError(t, err)

	require.Equal(t, 5, result.GroupsGenerated)
	require.Equal(t, 4, result.GroupsSaved)
	require.Equal(t, 4, result.ByColor[models.ColorPurple].Saved)
	require.Equal(t, 5, result.ByColor[models.ColorPurple].Generated)

	var unverifiedErrs int
	for _, e := range result.Errors {
		if e.Code == models.ErrCodeUnverified {
			unverifiedErrs++
		}
	}
	require.Equal(t, 1, unverifiedErrs)

	saved, _, err := groups.List(context.Background(), store.GroupFilter{Genre: testGenre, Limit: 0})
	require.NoError(t, err)
	require.Len(t, saved, 4)
	for _, sg := range saved {
		require.Equal(t, models.ColorPurple, sg.Color)
		require.Equal(t, models.DifficultyHardest, sg.Difficulty)
		require.Equal(t, models.GroupStatusApproved, sg.Status)
	}
}

func TestGenerator_FillWindowEndToEnd_ScenarioE(t *testing.T) {
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

	feedback := store.NewMemoryFeedbackStore()
	types := store.NewMemoryConnectionTypeStore()
	llmGen := llm.NewGenerator(fakeLLMClient{response: fiveCandidatesOneUnverifiable}, nil)
	svc.Generator = &Generator{
		LLM:      llmGen,
		Groups:   groups,
		Feedback: feedback,
		Types:    types,
		Verifiers: func(models.Genre) verifier.Verifier {
			return fakeVerifier{unverifiable: map[string]bool{"Bad Item": true}}
		},
	}

	cfg := models.PipelineConfig{Genre: testGenre, Enabled: true, RollingWindowDays: 3, MinGroupsPerColor: 10, AIGenerationBatchSize: 20}
	result := svc.FillWindow(ctx, testGenre, cfg, nil)

	require.True(t, result.AIGenerationTriggered)
	require.Equal(t, 5, result.GroupsGenerated)
	require.Equal(t, 4, result.GroupsSaved)
	require.Equal(t, 3, result.PuzzlesCreated)
	require.Equal(t, 0, result.EmptyDaysRemaining)
}

func TestAdmissible_RequiresExternalIDForVerifyingGenres(t *testing.T) {
	verifiedNoID := []models.VerifiedItem{{Title: "x", Verified: true}}
	require.False(t, admissible(models.GenreFilms, verifiedNoID))
	require.False(t, admissible(models.GenreMusic, verifiedNoID))
	require.True(t, admissible(models.GenreSports, verifiedNoID))

	id := int64(1)
	verifiedWithID := []models.VerifiedItem{{Title: "x", Verified: true, ExternalID: &id}}
	require.True(t, admissible(models.GenreFilms, verifiedWithID))

	unverified := []models.VerifiedItem{{Title: "x", Verified: false}}
	require.False(t, admissible(models.GenreSports, unverified))
}
