package verifier

import "testing"

func TestNormalizeTitle(t *testing.T) {
	cases := map[string]string{
		"  Inception  ": "inception",
		"THE MATRIX":    "the matrix",
	}
	for in, want := range cases {
		if got := normalizeTitle(in); got != want {
			t.Errorf("normalizeTitle(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeMusicTitle(t *testing.T) {
	cases := []struct{ in, want string }{
		{"The Rolling Stones", "rolling stones"},
		{"Let It Be (Remastered 2009)", "let it be"},
		{"A-Ha!", "aha"},
	}
	for _, c := range cases {
		if got := normalizeMusicTitle(c.in); got != c.want {
			t.Errorf("normalizeMusicTitle(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestYearWithinTolerance(t *testing.T) {
	if !yearWithinTolerance(1999, 2000, 1) {
		t.Error("expected 1999 and 2000 to be within tolerance 1")
	}
	if yearWithinTolerance(1998, 2000, 1) {
		t.Error("expected 1998 and 2000 to exceed tolerance 1")
	}
}
