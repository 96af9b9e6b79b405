package models

// NetworkKind selects which adapter implementation drives a network.
// It is the key used for adapter discovery in the registry.
type NetworkKind string

const (
	// NetworkKindHTTP is the generic HTTP partner adapter: the partner
	// exposes a bid endpoint and a numeric error-code vocabulary.
	NetworkKindHTTP NetworkKind = "http"
	// NetworkKindHouse serves locally-configured house creatives and never
	// talks to the outside world.
	NetworkKindHouse NetworkKind = "house"
)

// Network is one configured partner ad network. A Network row carries the
// partner-specific credentials and capabilities; the adapter registry turns
// its Kind into a live Adapter instance at startup.
type Network struct {
	ID   int         `json:"id"`
	Name string      `json:"name"` // e.g. "unityads", "applovin", "house"
	Kind NetworkKind `json:"kind"`
	// Endpoint is the partner bid endpoint for HTTP networks. Unused by the
	// house adapter.
	Endpoint string `json:"endpoint,omitempty"`
	// AppID and APIKey are the partner-issued credentials forwarded on every
	// load call.
	AppID  string `json:"app_id,omitempty"`
	APIKey string `json:"api_key,omitempty"`
	// ZoneID is the partner-side placement identifier. Mediation placements
	// map many-to-one onto partner zones.
	ZoneID string `json:"zone_id,omitempty"`
	// Formats lists the mediation formats the partner supports. Empty means
	// banner-only, the minimum every network must support.
	Formats []AdFormat `json:"formats"`
	// RequiresConsent marks networks that must not be called without user
	// consent under a consent-demanding privacy regime.
	RequiresConsent bool `json:"requires_consent"`
	Active          bool `json:"active"`
	// ECPM is the observed effective CPM for this network, refreshed from
	// revenue counters. Used only when auto-ranking is enabled.
	ECPM float64 `json:"ecpm"`
}

// SupportsFormat reports whether the network can serve the given format.
// Banner is always supported.
func (n *Network) SupportsFormat(f AdFormat) bool {
	if f == FormatBanner {
		return true
	}
	for _, nf := range n.Formats {
		if nf == f {
			return true
		}
	}
	return false
}
