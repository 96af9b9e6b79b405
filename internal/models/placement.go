package models

// Placement represents an ad slot in a publisher's app. It defines the slot's
// maximum dimensions, the formats it accepts, and the ordered list of partner
// networks the mediation waterfall should try for it. Publishers configure
// placements to map areas of their inventory to mediation behavior.
type Placement struct {
	// ID is a publisher-defined unique identifier for the placement
	// (e.g. "home-banner", "level-complete-interstitial"). Ad requests carry
	// this ID to say which slot is being filled.
	ID          string `json:"id"`
	PublisherID int    `json:"publisher_id"`
	// Width and Height are the maximum area the slot can display. They form
	// the default RequestedSize when an ad request does not carry its own.
	// A Height of 0 means the slot's height is unconstrained.
	Width  int `json:"width"`
	Height int `json:"height"`
	// Formats lists the mediation formats allowed in this slot
	// (e.g. ["banner"] or ["interstitial", "rewarded"]).
	Formats []AdFormat `json:"formats"`
	// Networks is the waterfall: network references in descending priority.
	// The mediation engine tries them in this order and the first fill wins.
	Networks []NetworkEntry `json:"networks"`
	// FrequencyCap limits how many ads one user sees in this slot per
	// window. Zero means the gateway default applies.
	FrequencyCap int `json:"frequency_cap,omitempty"`
	// FrequencyWindowSec is the cap window in seconds. Zero means the
	// gateway default applies.
	FrequencyWindowSec int `json:"frequency_window,omitempty"`
}

// NetworkEntry ties a placement to one configured network with a position in
// the waterfall. Lower Priority values are tried first.
type NetworkEntry struct {
	NetworkID int `json:"network_id"` // Corresponds to Network.ID.
	Priority  int `json:"priority"`
	// FloorCPM, when > 0, rejects fills from this network priced below the
	// floor. Partner networks that cannot honor floors simply no-fill.
	FloorCPM float64 `json:"floor_cpm,omitempty"`
}

// SupportsFormat reports whether the placement accepts the given format.
// An empty Formats list means the placement accepts anything.
func (p *Placement) SupportsFormat(f AdFormat) bool {
	if len(p.Formats) == 0 {
		return true
	}
	for _, pf := range p.Formats {
		if pf == f {
			return true
		}
	}
	return false
}
