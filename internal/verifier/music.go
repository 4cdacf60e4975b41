package verifier

import (
	"context"
	"time"

	"github.com/dailyconnect/pipeline/internal/models"
	"golang.org/x/time/rate"
)

// musicRequestInterval is the minimum gap between sequential requests to
// the music catalog, keeping batch throughput near 3 req/s.
const musicRequestInterval = 300 * time.Millisecond

// MusicVerifier matches against a music catalog. Unlike FilmVerifier,
// requests within a batch MUST be issued sequentially with a ≥300ms gap
// to respect the upstream catalog's rate limit.
type MusicVerifier struct {
	Catalog CatalogClient
	limiter *rate.Limiter
}

func NewMusicVerifier(catalog CatalogClient) *MusicVerifier {
	return &MusicVerifier{
		Catalog: catalog,
		limiter: rate.NewLimiter(rate.Every(musicRequestInterval), 1),
	}
}

func (m *MusicVerifier) VerifyOne(ctx context.Context, item models.Item) models.VerifiedItem {
	if err := m.limiter.Wait(ctx); err != nil {
		return models.VerifiedItem{Title: item.Title, Year: item.Year, Verified: false}
	}
	results, err := m.Catalog.Search(ctx, item.Title)
	if err != nil {
		return models.VerifiedItem{Title: item.Title, Year: item.Year, Verified: false}
	}
	return matchCandidate(item, results, normalizeMusicTitle)
}

func (m *MusicVerifier) VerifyMany(ctx context.Context, items []models.Item) []models.VerifiedItem {
	out := make([]models.VerifiedItem, len(items))
	for i, item := range items {
		out[i] = m.VerifyOne(ctx, item)
	}
	return out
}
