package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dailyconnect/pipeline/internal/models"
	"github.com/dailyconnect/pipeline/internal/pipeline"
	"github.com/dailyconnect/pipeline/internal/store"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T, secret string) (*gin.Engine, *store.MemoryGroupStore, *store.MemoryPipelineConfigStore) {
	t.Helper()

	groups := store.NewMemoryGroupStore()
	puzzles := store.NewMemoryPuzzleStore(groups)
	configs := store.NewMemoryPipelineConfigStore()

	svc := &pipeline.Service{
		Groups:  groups,
		Puzzles: puzzles,
		Configs: configs,
		Now: func() time.Time {
			d, _ := time.Parse("2006-01-02", "2025-01-10")
			return d
		},
	}

	h := NewHandlers(svc, configs, nil)
	return NewRouter(h, secret), groups, configs
}

func seedApprovedGroups(t *testing.T, groups *store.MemoryGroupStore, genre models.Genre, perColor int) {
	t.Helper()
	for _, c := range models.Colors {
		for i := 0; i < perColor; i++ {
			g := models.Group{
				Items: [4]models.Item{
					{Title: string(c) + "-1"}, {Title: string(c) + "-2"},
					{Title: string(c) + "-3"}, {Title: string(c) + "-4"},
				},
				Connection:      string(c) + "-conn-" + string(rune('a'+i)),
				ConnectionType:  "thematic",
				Difficulty:      models.ColorDifficulty[c],
				Color:           c,
				DifficultyScore: models.ColorDifficultyScore[c],
				Status:          models.GroupStatusApproved,
				Genre:           genre,
				Source:          models.SourceSystem,
			}
			if _, err := groups.Save(context.Background(), g); err != nil {
				t.Fatalf("seed group: %v", err)
			}
		}
	}
}

func TestRequireBearerRejectsMissingToken(t *testing.T) {
	router, _, _ := newTestRouter(t, "s3cret")

	req := httptest.NewRequest(http.MethodGet, "/admin/pool/films", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/pool/films", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", w.Code)
	}
}

func TestRequireBearerAcceptsSharedSecret(t *testing.T) {
	router, _, _ := newTestRouter(t, "s3cret")

	req := httptest.NewRequest(http.MethodGet, "/admin/pool/films", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRequireBearerDisabledWhenNoSecretConfigured(t *testing.T) {
	router, _, _ := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodGet, "/admin/pool/films", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with auth disabled, got %d", w.Code)
	}
}

func TestFillRunsEveryEnabledGenre(t *testing.T) {
	router, groups, configs := newTestRouter(t, "")
	seedApprovedGroups(t, groups, models.GenreFilms, 2)

	_, err := configs.Upsert(context.Background(), models.PipelineConfig{
		Genre:                 models.GenreFilms,
		Enabled:               true,
		RollingWindowDays:     1,
		MinGroupsPerColor:     10,
		AIGenerationBatchSize: 20,
	})
	if err != nil {
		t.Fatalf("upsert config: %v", err)
	}
	_, err = configs.Upsert(context.Background(), models.PipelineConfig{
		Genre:   models.GenreBooks,
		Enabled: false,
	})
	if err != nil {
		t.Fatalf("upsert config: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/admin/fill", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp fillResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Timestamp == "" {
		t.Error("expected a timestamp in the response")
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 genre result (books disabled), got %d", len(resp.Results))
	}

	films, ok := resp.Results["films"]
	if !ok {
		t.Fatal("expected a films entry in results")
	}
	if !films.Success {
		t.Errorf("expected films run to succeed, errors: %+v", films.Result)
	}
	if films.Result == nil || films.Result.PuzzlesCreated != 1 {
		t.Errorf("expected 1 puzzle created for the 1-day window, got %+v", films.Result)
	}
}

func TestPoolReportsPerColorCounts(t *testing.T) {
	router, groups, _ := newTestRouter(t, "")
	seedApprovedGroups(t, groups, models.GenreFilms, 3)

	req := httptest.NewRequest(http.MethodGet, "/admin/pool/films", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var health pipeline.PoolHealth
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if health.Total != 12 {
		t.Errorf("expected 12 approved groups total, got %d", health.Total)
	}
	if !health.Sufficient {
		t.Error("expected sufficient=true with 3 groups per color")
	}
	for _, c := range models.Colors {
		if health.Counts[c] != 3 {
			t.Errorf("expected 3 %s groups, got %d", c, health.Counts[c])
		}
	}
}
