package models

// MediationRequest is the wire format publishers (or their SDKs) POST to the
// /mediate endpoint. It names an ad opportunity in the generic mediation
// vocabulary; the gateway translates it into partner-specific calls.
type MediationRequest struct {
	ID string `json:"id"` // Unique ID of the request, provided by the client. Used for tracking and debugging.
	// PlacementID names the configured ad slot being filled.
	// Corresponds to Placement.ID.
	PlacementID string `json:"placement_id"`
	// Format is the requested ad format. Defaults to banner when empty.
	Format AdFormat `json:"format,omitempty"`
	// Size is the maximum area the publisher will display. When nil the
	// placement's configured dimensions are used; when those are absent too,
	// the standard banner slot (320x50) is requested.
	Size    *RequestedSize `json:"size,omitempty"`
	User    User           `json:"user"`
	Device  Device         `json:"device"`
	Consent Consent        `json:"consent,omitempty"`
	Ext     RequestExt     `json:"ext,omitempty"`
}

// User identifies the end user the ad is for.
type User struct {
	ID string `json:"id"` // Publisher-managed user identifier (e.g. an IDFV or first-party ID).
}

// Device describes the requesting device.
type Device struct {
	UA string `json:"ua"` // User-Agent string; parsed for device class and OS.
	IP string `json:"ip"` // Device IP; used for geo-derived privacy regime resolution.
}

// RequestExt carries publisher extension fields.
type RequestExt struct {
	PublisherID int `json:"publisher_id"`
	// CustomParams are key-value pairs made available for macro expansion in
	// tracking and click URLs via the {CUSTOM.key} syntax.
	CustomParams map[string]string `json:"custom_params,omitempty"`
}

// MediationResponse is returned for every mediation request. Exactly one of
// Fill or Error is meaningful: a no-fill response carries the mediation error
// code that ended the waterfall and an empty Fill.
type MediationResponse struct {
	ID string `json:"id"` // Mirrors MediationRequest.ID.
	// Filled is true when a network returned an ad.
	Filled bool `json:"filled"`
	// Error is the mediation error code for no-fill responses, e.g.
	// "no_fill" or "invalid_banner_size".
	Error string `json:"error,omitempty"`
	// Fill holds the ad when Filled is true.
	Fill *AdFill `json:"fill,omitempty"`
	// ImpURL and ClickURL are pre-signed tracking URLs the SDK calls when the
	// ad is shown and clicked. They embed an HMAC token identifying the fill.
	ImpURL   string `json:"impurl,omitempty"`
	ClickURL string `json:"clkurl,omitempty"`
	// Attempts summarizes the waterfall for debugging when debug tracing is
	// enabled: one entry per network tried, in order.
	Attempts []AttemptTrace `json:"attempts,omitempty"`
}

// AttemptTrace records one waterfall step for debug responses and analytics.
type AttemptTrace struct {
	NetworkID   int    `json:"network_id"`
	NetworkName string `json:"network_name"`
	Outcome     string `json:"outcome"` // "fill", mediation error code, or skip reason
	DurationMS  int64  `json:"duration_ms"`
}
