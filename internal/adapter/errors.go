package adapter

import (
	"context"
	"errors"
	"fmt"
)

// Code is a mediation error code: the generic vocabulary the gateway speaks
// regardless of which partner produced the failure. Partner-specific error
// enumerations are translated into these codes at the adapter boundary and
// nothing partner-specific leaks past it.
type Code string

const (
	CodeNoFill            Code = "no_fill"
	CodeInvalidRequest    Code = "invalid_request"
	CodeInvalidBannerSize Code = "invalid_banner_size"
	CodeNotInitialized    Code = "not_initialized"
	CodeTimeout           Code = "timeout"
	CodeNetworkError      Code = "network_error"
	CodeThrottled         Code = "throttled"
	CodeConsentDenied     Code = "consent_denied"
	CodeInternal          Code = "internal_error"
)

// MediationError carries a mediation code plus the network it came from.
// It wraps the underlying partner error, if any, for logging.
type MediationError struct {
	Code    Code
	Network string
	Err     error
}

// E constructs a MediationError. err may be nil for pure code translations.
func E(code Code, network string, err error) *MediationError {
	return &MediationError{Code: code, Network: network, Err: err}
}

func (e *MediationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Network, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Network, e.Code)
}

func (e *MediationError) Unwrap() error { return e.Err }

// CodeOf extracts the mediation code from an error. Errors that are not
// MediationErrors come from our own plumbing and map to internal_error;
// context deadline errors map to timeout.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var me *MediationError
	if errors.As(err, &me) {
		return me.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	return CodeInternal
}

// IsNoFill reports whether an error is an ordinary no-fill, the one failure
// that is part of normal operation rather than a fault.
func IsNoFill(err error) bool {
	return CodeOf(err) == CodeNoFill
}
