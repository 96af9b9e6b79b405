// Package consent resolves which privacy regime governs a mediation request
// and assembles the consent payload forwarded to partner networks.
package consent

import (
	"net"

	"github.com/openmediate/gateway/internal/geoip"
	"github.com/openmediate/gateway/internal/models"
)

// eeaCountries lists the countries where GDPR applies: EU members plus the
// EEA EFTA states and the UK (UK GDPR is treated identically here).
var eeaCountries = map[string]bool{
	"AT": true, "BE": true, "BG": true, "HR": true, "CY": true, "CZ": true,
	"DK": true, "EE": true, "FI": true, "FR": true, "DE": true, "GR": true,
	"HU": true, "IE": true, "IT": true, "LV": true, "LT": true, "LU": true,
	"MT": true, "NL": true, "PL": true, "PT": true, "RO": true, "SK": true,
	"SI": true, "ES": true, "SE": true, "IS": true, "LI": true, "NO": true,
	"GB": true,
}

// Resolver decides the governing privacy regime for requests. The explicit
// request signals always win; geo lookup only fills the gap when the request
// does not state whether GDPR applies.
type Resolver struct {
	geo *geoip.GeoIP
}

// NewResolver returns a Resolver using the given geo database. A nil geo
// database is allowed; resolution then relies on request signals alone.
func NewResolver(geo *geoip.GeoIP) *Resolver {
	return &Resolver{geo: geo}
}

// Resolve determines the regime for one request. Precedence:
//
//  1. an explicit GDPRApplies signal in the request
//  2. a US privacy string (implies the US regime)
//  3. the country derived from the request IP
//
// Requests whose country cannot be determined fall back to RegimeNone, which
// forwards whatever signals are present without blocking any network.
func (r *Resolver) Resolve(c models.Consent, ipString string) models.ResolvedConsent {
	rc := models.ResolvedConsent{Regime: models.RegimeNone, Consent: c}

	if ip := net.ParseIP(ipString); ip != nil && r.geo != nil {
		rc.Country = r.geo.Country(ip)
	}

	if c.GDPRApplies != nil {
		if *c.GDPRApplies {
			rc.Regime = models.RegimeGDPR
		} else if c.USPrivacy != "" {
			rc.Regime = models.RegimeUSPrivacy
		}
		return rc
	}

	if c.USPrivacy != "" {
		rc.Regime = models.RegimeUSPrivacy
		return rc
	}

	switch {
	case eeaCountries[rc.Country]:
		rc.Regime = models.RegimeGDPR
	case rc.Country == "US":
		rc.Regime = models.RegimeUSPrivacy
	}
	return rc
}

// Merge overlays request-level consent signals onto a stored default. Fields
// present in the request win; absent fields inherit the stored record.
func Merge(stored *models.Consent, req models.Consent) models.Consent {
	if stored == nil {
		return req
	}
	out := *stored
	if req.GDPRApplies != nil {
		out.GDPRApplies = req.GDPRApplies
	}
	if req.TCString != "" {
		out.TCString = req.TCString
	}
	if req.USPrivacy != "" {
		out.USPrivacy = req.USPrivacy
	}
	if req.COPPA {
		out.COPPA = true
	}
	return out
}
