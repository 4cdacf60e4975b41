package verifier

import (
	"context"

	"github.com/dailyconnect/pipeline/internal/models"
)

// PassThrough marks every item verified with no catalog lookup, for
// genres (sports today) with no wired catalog. For this variant
// Verified=true alone is sufficient admission, unlike the verifying
// domains which additionally require ExternalID.
type PassThrough struct{}

func (PassThrough) VerifyOne(_ context.Context, item models.Item) models.VerifiedItem {
	return models.VerifiedItem{
		Title:    item.Title,
		Year:     item.Year,
		Verified: true,
	}
}

func (p PassThrough) VerifyMany(ctx context.Context, items []models.Item) []models.VerifiedItem {
	out := make([]models.VerifiedItem, len(items))
	for i, item := range items {
		out[i] = p.VerifyOne(ctx, item)
	}
	return out
}
