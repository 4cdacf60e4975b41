// Package verifier maps informal (title, year) pairs to catalog records.
// Implementations are selected per genre; the pipeline depends only on
// the Verifier interface.
package verifier

import (
	"context"

	"github.com/dailyconnect/pipeline/internal/models"
)

// Verifier looks up an item's informal title/year against a domain
// catalog. Implementations MUST NOT return an error to the caller for
// network or parse failures; they report VerifiedItem.Verified=false
// instead, so a flaky upstream degrades a puzzle's pool rather than
// aborting the run.
type Verifier interface {
	// VerifyOne resolves a single item. Never returns an error.
	VerifyOne(ctx context.Context, item models.Item) models.VerifiedItem

	// VerifyMany resolves items preserving input order and length.
	VerifyMany(ctx context.Context, items []models.Item) []models.VerifiedItem
}

// ForGenre selects the Verifier implementation appropriate for a genre.
func ForGenre(genre models.Genre, film, music Verifier) Verifier {
	switch genre {
	case models.GenreFilms:
		return film
	case models.GenreMusic:
		return music
	default:
		return PassThrough{}
	}
}
