package verifier

import (
	"context"

	"github.com/dailyconnect/pipeline/internal/models"
	"golang.org/x/sync/errgroup"
)

// FilmVerifier matches against a film catalog. Items within a batch are
// verified in parallel, since the catalog imposes no meaningful
// per-request pacing for this domain.
type FilmVerifier struct {
	Catalog CatalogClient
}

func NewFilmVerifier(catalog CatalogClient) *FilmVerifier {
	return &FilmVerifier{Catalog: catalog}
}

func (f *FilmVerifier) VerifyOne(ctx context.Context, item models.Item) models.VerifiedItem {
	results, err := f.Catalog.Search(ctx, item.Title)
	if err != nil {
		return models.VerifiedItem{Title: item.Title, Year: item.Year, Verified: false}
	}
	return matchCandidate(item, results, normalizeTitle)
}

func (f *FilmVerifier) VerifyMany(ctx context.Context, items []models.Item) []models.VerifiedItem {
	out := make([]models.VerifiedItem, len(items))
	g, gctx := errgroup.WithContext(ctx)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			out[i] = f.VerifyOne(gctx, item)
			return nil
		})
	}
	// VerifyOne never errors, so this Wait only rejoins the goroutines.
	_ = g.Wait()
	return out
}

// matchCandidate implements the film-style matching policy: accept a
// normalized title match within one year of the input year, or failing
// that a year-only match when a year was supplied.
func matchCandidate(item models.Item, results []CatalogResult, normalize func(string) string) models.VerifiedItem {
	wantTitle := normalize(item.Title)

	for _, r := range results {
		if normalize(r.Title) != wantTitle {
			continue
		}
		if item.Year == nil || yearWithinTolerance(*item.Year, r.Year, 1) {
			id := r.ExternalID
			year := r.Year
			return models.VerifiedItem{Title: r.Title, Year: &year, ExternalID: &id, Verified: true}
		}
	}

	if item.Year != nil {
		for _, r := range results {
			if yearWithinTolerance(*item.Year, r.Year, 1) {
				id := r.ExternalID
				year := r.Year
				return models.VerifiedItem{Title: r.Title, Year: &year, ExternalID: &id, Verified: true}
			}
		}
	}

	return models.VerifiedItem{Title: item.Title, Year: item.Year, Verified: false}
}
