// Package token signs and verifies the tracking tokens embedded in impression
// and click URLs. A token ties a tracking callback to the fill that produced
// it, so event handlers never trust client-supplied identifiers.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalid = errors.New("invalid token")
	ErrExpired = errors.New("token expired")
)

// Custom parameter validation limits to prevent token size issues
const (
	MaxCustomParamKeyLength   = 50
	MaxCustomParamValueLength = 100
	MaxCustomParamsCount      = 10
)

// Claims identifies the fill a tracking callback belongs to.
type Claims struct {
	RequestID   string
	PlacementID string
	NetworkID   int
	NetworkName string
	CreativeID  string
	UserID      string
	PublisherID int
	// PriceCPM and Currency are the winning bid, carried so impression
	// handlers can book revenue without a lookup.
	PriceCPM float64
	Currency string
	// CustomParams are publisher key-values forwarded for macro expansion.
	CustomParams map[string]string
}

// payload structure for encoding/decoding
type payload struct {
	ReqID        string            `json:"r"`
	PlacementID  string            `json:"pl"`
	NetworkID    int               `json:"n"`
	NetworkName  string            `json:"nn"`
	CrID         string            `json:"c"`
	UserID       string            `json:"u"`
	PubID        int               `json:"p"`
	PriceCPM     float64           `json:"bp"`
	Currency     string            `json:"cur"`
	TS           int64             `json:"t"`
	CustomParams map[string]string `json:"cp,omitempty"`
}

// validateCustomParams checks custom parameters against size limits to prevent token bloat
func validateCustomParams(params map[string]string) error {
	if len(params) > MaxCustomParamsCount {
		return fmt.Errorf("too many custom parameters: %d (max %d)", len(params), MaxCustomParamsCount)
	}

	for key, value := range params {
		if len(key) > MaxCustomParamKeyLength {
			return fmt.Errorf("custom param key too long: '%s' (%d chars, max %d)", key, len(key), MaxCustomParamKeyLength)
		}
		if len(value) > MaxCustomParamValueLength {
			return fmt.Errorf("custom param value too long for key '%s': '%s' (%d chars, max %d)", key, value, len(value), MaxCustomParamValueLength)
		}
		if key == "" {
			return fmt.Errorf("custom param key cannot be empty")
		}
	}
	return nil
}

// Generate creates a signed token for the given claims.
func Generate(c Claims, secret []byte) (string, error) {
	if c.CustomParams != nil {
		if err := validateCustomParams(c.CustomParams); err != nil {
			return "", fmt.Errorf("custom parameter validation failed: %w", err)
		}
	}

	pl := payload{
		ReqID:        c.RequestID,
		PlacementID:  c.PlacementID,
		NetworkID:    c.NetworkID,
		NetworkName:  c.NetworkName,
		CrID:         c.CreativeID,
		UserID:       c.UserID,
		PubID:        c.PublisherID,
		PriceCPM:     c.PriceCPM,
		Currency:     c.Currency,
		TS:           time.Now().Unix(),
		CustomParams: c.CustomParams,
	}
	data, err := json.Marshal(pl)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	sig := mac.Sum(nil)

	enc := base64.RawURLEncoding
	return enc.EncodeToString(data) + "." + enc.EncodeToString(sig), nil
}

// Verify checks the token integrity and expiry and returns its claims.
func Verify(tok string, secret []byte, ttl time.Duration) (Claims, error) {
	var out Claims
	parts := strings.Split(tok, ".")
	if len(parts) != 2 {
		return out, ErrInvalid
	}
	enc := base64.RawURLEncoding
	data, err := enc.DecodeString(parts[0])
	if err != nil {
		return out, ErrInvalid
	}
	sig, err := enc.DecodeString(parts[1])
	if err != nil {
		return out, ErrInvalid
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	if !hmac.Equal(mac.Sum(nil), sig) {
		return out, ErrInvalid
	}

	var pl payload
	if err := json.Unmarshal(data, &pl); err != nil {
		return out, ErrInvalid
	}
	if ttl > 0 && time.Since(time.Unix(pl.TS, 0)) > ttl {
		return out, ErrExpired
	}
	out.RequestID = pl.ReqID
	out.PlacementID = pl.PlacementID
	out.NetworkID = pl.NetworkID
	out.NetworkName = pl.NetworkName
	out.CreativeID = pl.CrID
	out.UserID = pl.UserID
	out.PublisherID = pl.PubID
	out.PriceCPM = pl.PriceCPM
	out.Currency = pl.Currency
	out.CustomParams = pl.CustomParams
	return out, nil
}
