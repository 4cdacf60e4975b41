package verifier

import (
	"context"
	"testing"

	"github.com/dailyconnect/pipeline/internal/models"
)

type fakeCatalog struct {
	results []CatalogResult
	err     error
}

func (f fakeCatalog) Search(_ context.Context, _ string) ([]CatalogResult, error) {
	return f.results, f.err
}

func intPtr(v int) *int { return &v }

func TestFilmVerifierMatchesTitleAndYear(t *testing.T) {
	cat := fakeCatalog{results: []CatalogResult{{ExternalID: 42, Title: "Inception", Year: 2010}}}
	fv := NewFilmVerifier(cat)

	got := fv.VerifyOne(context.Background(), models.Item{Title: "inception", Year: intPtr(2011)})
	if !got.Verified {
		t.Fatal("expected match within one year tolerance")
	}
	if got.ExternalID == nil || *got.ExternalID != 42 {
		t.Fatalf("expected external id 42, got %v", got.ExternalID)
	}
}

func TestFilmVerifierRejectsYearOutsideTolerance(t *testing.T) {
	cat := fakeCatalog{results: []CatalogResult{{ExternalID: 1, Title: "Inception", Year: 2010}}}
	fv := NewFilmVerifier(cat)

	got := fv.VerifyOne(context.Background(), models.Item{Title: "inception", Year: intPtr(2013)})
	if got.Verified {
		t.Fatal("expected no match, year outside tolerance")
	}
}

func TestFilmVerifierYearOnlyFallback(t *testing.T) {
	cat := fakeCatalog{results: []CatalogResult{{ExternalID: 7, Title: "Some Other Title", Year: 2010}}}
	fv := NewFilmVerifier(cat)

	got := fv.VerifyOne(context.Background(), models.Item{Title: "Unmatched Title", Year: intPtr(2010)})
	if !got.Verified {
		t.Fatal("expected year-only fallback match")
	}
}

func TestFilmVerifierCatalogErrorYieldsUnverifiedNotError(t *testing.T) {
	cat := fakeCatalog{err: context.DeadlineExceeded}
	fv := NewFilmVerifier(cat)

	got := fv.VerifyOne(context.Background(), models.Item{Title: "x"})
	if got.Verified {
		t.Fatal("expected unverified on catalog error")
	}
}

func TestFilmVerifierPreservesOrderAndLength(t *testing.T) {
	cat := fakeCatalog{results: nil}
	fv := NewFilmVerifier(cat)

	items := []models.Item{{Title: "a"}, {Title: "b"}, {Title: "c"}}
	got := fv.VerifyMany(context.Background(), items)
	if len(got) != len(items) {
		t.Fatalf("expected %d results, got %d", len(items), len(got))
	}
	for i, item := range items {
		if got[i].Title != item.Title {
			t.Errorf("index %d: expected title %q, got %q", i, item.Title, got[i].Title)
		}
	}
}

func TestPassThroughAlwaysVerifiesWithNilExternalID(t *testing.T) {
	pt := PassThrough{}
	got := pt.VerifyOne(context.Background(), models.Item{Title: "anything"})
	if !got.Verified || got.ExternalID != nil {
		t.Fatalf("expected verified=true, externalId=nil, got %+v", got)
	}
}
