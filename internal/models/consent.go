package models

// PrivacyRegime names the privacy framework that governs a request.
type PrivacyRegime string

const (
	RegimeNone      PrivacyRegime = "none"
	RegimeGDPR      PrivacyRegime = "gdpr"
	RegimeUSPrivacy PrivacyRegime = "us_privacy"
)

// Consent carries the privacy signals attached to a mediation request.
// The gateway never interprets the strings beyond presence checks; they are
// forwarded verbatim to partner networks, which own the legal interpretation.
type Consent struct {
	// GDPRApplies is a tri-state: nil means "not stated", in which case the
	// regime is derived from the request's country.
	GDPRApplies *bool `json:"gdpr_applies,omitempty"`
	// TCString is the IAB TCF consent string, present when the user has
	// responded to a consent prompt under GDPR.
	TCString string `json:"tc_string,omitempty"`
	// USPrivacy is the IAB US privacy ("CCPA") string, e.g. "1YNN".
	USPrivacy string `json:"us_privacy,omitempty"`
	// COPPA flags the request as child-directed. COPPA requests are only
	// served by networks that do not require consent-based targeting.
	COPPA bool `json:"coppa,omitempty"`
}

// HasGDPRConsent reports whether a TCF consent string is present.
func (c Consent) HasGDPRConsent() bool {
	return c.TCString != ""
}

// ResolvedConsent is the outcome of regime resolution for one request: the
// governing regime plus the signals to forward to partners. It is what the
// adapters receive on every load call.
type ResolvedConsent struct {
	Regime  PrivacyRegime `json:"regime"`
	Consent Consent       `json:"consent"`
	// Country is the ISO code the regime was derived from, kept for
	// analytics labels. Empty when geo lookup failed.
	Country string `json:"country,omitempty"`
}

// PermitsNetwork reports whether a network may be called under the resolved
// regime. Networks that require consent are blocked under GDPR without a TC
// string and always blocked for COPPA traffic.
func (rc ResolvedConsent) PermitsNetwork(n *Network) bool {
	if !n.RequiresConsent {
		return true
	}
	if rc.Consent.COPPA {
		return false
	}
	if rc.Regime == RegimeGDPR && !rc.Consent.HasGDPRConsent() {
		return false
	}
	return true
}
