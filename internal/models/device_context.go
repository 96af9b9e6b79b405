package models

// DeviceContext holds information derived from a mediation request's
// User-Agent string and IP address. It feeds the partner bid request's device
// object, the default banner size selection, and analytics labels.
type DeviceContext struct {
	DeviceType string // Device class (e.g. "mobile", "tablet", "desktop"). Derived from User-Agent.
	OS         string // Operating system name and version (e.g. "iOS 15.1.0"). Derived from User-Agent.
	IsBot      bool   // True if the User-Agent is identified as a known bot or crawler.
	Country    string // ISO 3166-1 alpha-2 country code derived from the request's IP address.
}
