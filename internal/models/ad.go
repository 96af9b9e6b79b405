package models

// AdFormat identifies the kind of ad unit a placement can request.
// These values are the generic mediation vocabulary; each network adapter
// translates them into whatever its partner API expects.
type AdFormat string

const (
	FormatBanner       AdFormat = "banner"
	FormatInterstitial AdFormat = "interstitial"
	FormatRewarded     AdFormat = "rewarded"
)

// Valid reports whether f is one of the known mediation formats.
func (f AdFormat) Valid() bool {
	switch f {
	case FormatBanner, FormatInterstitial, FormatRewarded:
		return true
	}
	return false
}

// AdFill is the normalized result of a successful adapter load. Whatever shape
// the partner response had on the wire, the mediation layer only ever sees
// this struct.
type AdFill struct {
	NetworkID   int     `json:"network_id"`   // Network that filled the request. Corresponds to Network.ID.
	NetworkName string  `json:"network_name"` // Human-readable network name for reporting.
	CreativeID  string  `json:"creative_id"`  // Partner-scoped creative identifier, opaque to us.
	Markup      string  `json:"markup"`       // Renderable ad markup returned by the partner.
	Width       int     `json:"width"`        // Resolved fixed size actually served.
	Height      int     `json:"height"`
	PriceCPM    float64 `json:"price_cpm"` // Clearing price in CPM, 0 for house fills.
	Currency    string  `json:"currency"`
}

// HouseCreative is a locally-configured fallback ad served by the house
// adapter when no partner network fills. House creatives are plain markup
// with a fixed size; they carry no price.
type HouseCreative struct {
	ID          int    `json:"id"`
	PlacementID string `json:"placement_id"` // Placement this creative is configured for. Corresponds to Placement.ID.
	Markup      string `json:"markup"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	// Format of the creative; house creatives are banner-only today but the
	// column exists so interstitial fallbacks can be added without a migration.
	Format   AdFormat `json:"format"`
	ClickURL string   `json:"click_url,omitempty"`
	Active   bool     `json:"active"`
}
