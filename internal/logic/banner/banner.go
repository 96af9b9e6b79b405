// Package banner resolves a publisher-requested banner area to one of the
// fixed standard ad sizes that partner networks accept.
package banner

import "github.com/openmediate/gateway/internal/models"

// The standard size catalog, ordered by descending preference: publishers
// want the most prominent ad that still fits their slot, so the scan returns
// the first (largest) entry that fits. The literal order is part of the
// contract; width thresholds overlap across entries, so reordering would
// change which size wins.
var (
	Leaderboard     = models.StandardAdSize{Width: 728, Height: 90}
	MediumRectangle = models.StandardAdSize{Width: 300, Height: 250}
	StandardBanner  = models.StandardAdSize{Width: 320, Height: 50}
)

// Catalog returns the fixed size catalog in preference order.
func Catalog() []models.StandardAdSize {
	return []models.StandardAdSize{Leaderboard, MediumRectangle, StandardBanner}
}

// catalog is the scan order used by Resolve.
var catalog = []models.StandardAdSize{Leaderboard, MediumRectangle, StandardBanner}

// DefaultRequest is the requested area substituted when a mediation request
// carries no size at all: the standard banner slot.
var DefaultRequest = models.RequestedSize{Width: StandardBanner.Width, Height: StandardBanner.Height}

// Resolve selects the largest standard ad size that fits within the requested
// area. A catalog entry fits when the requested width accommodates the entry
// width and one of: the entry has a flexible height (0), the requested height
// is unconstrained (0), or the requested height accommodates the entry
// height. The second return value is false when no catalog entry fits; the
// caller must treat that as a load failure and not call any partner.
//
// Resolve is a pure function of its input and the static catalog and is safe
// for concurrent use.
func Resolve(req models.RequestedSize) (models.StandardAdSize, bool) {
	for _, entry := range catalog {
		if !fits(req, entry) {
			continue
		}
		return entry, true
	}
	return models.StandardAdSize{}, false
}

// ResolveDefault resolves the default request. It always succeeds because the
// default is itself a catalog entry.
func ResolveDefault() models.StandardAdSize {
	size, _ := Resolve(DefaultRequest)
	return size
}

func fits(req models.RequestedSize, entry models.StandardAdSize) bool {
	if req.Width < entry.Width {
		return false
	}
	if entry.Height == 0 || req.Height == 0 {
		return true
	}
	return req.Height >= entry.Height
}
