package banner

import (
	"testing"

	"github.com/openmediate/gateway/internal/models"
)

func TestResolve_ExactCatalogSizes(t *testing.T) {
	cases := []struct {
		name string
		req  models.RequestedSize
		want models.StandardAdSize
	}{
		{"standard banner", models.RequestedSize{Width: 320, Height: 50}, StandardBanner},
		{"medium rectangle", models.RequestedSize{Width: 300, Height: 250}, MediumRectangle},
		{"leaderboard", models.RequestedSize{Width: 728, Height: 90}, Leaderboard},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Resolve(tc.req)
			if !ok {
				t.Fatalf("expected a fit for %dx%d", tc.req.Width, tc.req.Height)
			}
			if got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

// TestResolve_LargestFitWins verifies the greedy largest-fit-first policy:
// an area big enough for several catalog entries resolves to the most
// prominent one.
func TestResolve_LargestFitWins(t *testing.T) {
	got, ok := Resolve(models.RequestedSize{Width: 1024, Height: 768})
	if !ok {
		t.Fatal("expected a fit")
	}
	if got != Leaderboard {
		t.Errorf("expected leaderboard, got %s", got)
	}
}

// TestResolve_UnconstrainedHeight verifies the height sentinel: a requested
// height of 0 means only the width matters.
func TestResolve_UnconstrainedHeight(t *testing.T) {
	got, ok := Resolve(models.RequestedSize{Width: 728, Height: 0})
	if !ok {
		t.Fatal("expected a fit")
	}
	if got != Leaderboard {
		t.Errorf("expected leaderboard for unconstrained height, got %s", got)
	}

	// With an unconstrained height, the medium rectangle is the first
	// catalog hit for any width from 300 up to the leaderboard's 728.
	for _, width := range []int{300, 320, 727} {
		got, ok = Resolve(models.RequestedSize{Width: width, Height: 0})
		if !ok {
			t.Fatalf("expected a fit for %dx0", width)
		}
		if got != MediumRectangle {
			t.Errorf("expected medium rectangle for %dx0, got %s", width, got)
		}
	}
}

// TestResolve_ScanOrderOnHeightMiss verifies that an entry failing its height
// requirement does not end the scan: a wide but short area falls through to a
// smaller size whose height fits.
func TestResolve_ScanOrderOnHeightMiss(t *testing.T) {
	got, ok := Resolve(models.RequestedSize{Width: 728, Height: 50})
	if !ok {
		t.Fatal("expected a fit")
	}
	if got != StandardBanner {
		t.Errorf("expected standard banner for 728x50, got %s", got)
	}

	// 300 wide but shorter than 250: medium rectangle misses on height and
	// the standard banner misses on width.
	if _, ok := Resolve(models.RequestedSize{Width: 300, Height: 100}); ok {
		t.Error("expected no fit for 300x100")
	}
}

func TestResolve_NoFit(t *testing.T) {
	cases := []models.RequestedSize{
		{Width: 100, Height: 100},
		{Width: 299, Height: 0},
		{Width: 0, Height: 0},
		{Width: 320, Height: 49},
	}
	for _, req := range cases {
		if got, ok := Resolve(req); ok {
			t.Errorf("expected no fit for %dx%d, got %s", req.Width, req.Height, got)
		}
	}
}

// TestResolveDefault verifies that a missing size resolves identically to
// requesting exactly the standard banner slot.
func TestResolveDefault(t *testing.T) {
	if got := ResolveDefault(); got != StandardBanner {
		t.Errorf("expected standard banner default, got %s", got)
	}
	viaResolve, ok := Resolve(models.RequestedSize{Width: 320, Height: 50})
	if !ok || viaResolve != ResolveDefault() {
		t.Error("default request must resolve like an explicit 320x50 request")
	}
}

// TestResolve_Pure verifies idempotence: the resolver has no state, so the
// same input always yields the same result.
func TestResolve_Pure(t *testing.T) {
	req := models.RequestedSize{Width: 728, Height: 90}
	first, ok1 := Resolve(req)
	second, ok2 := Resolve(req)
	if ok1 != ok2 || first != second {
		t.Errorf("resolver not pure: %v/%v vs %v/%v", first, ok1, second, ok2)
	}
}

func TestCatalog_Order(t *testing.T) {
	cat := Catalog()
	if len(cat) != 3 {
		t.Fatalf("expected 3 catalog entries, got %d", len(cat))
	}
	want := []models.StandardAdSize{Leaderboard, MediumRectangle, StandardBanner}
	for i, e := range want {
		if cat[i] != e {
			t.Errorf("catalog[%d] = %s, want %s", i, cat[i], e)
		}
	}
}
