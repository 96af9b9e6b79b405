// Package adapter defines the uniform interface the mediation engine drives
// partner ad networks through, and the registry that discovers adapter
// implementations by network kind.
package adapter

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/openmediate/gateway/internal/models"
)

// LoadRequest is everything an adapter needs to ask its partner for an ad.
// The size has already been resolved to a fixed catalog entry and the consent
// payload is passed explicitly on every call; adapters hold no per-request
// state between calls.
type LoadRequest struct {
	RequestID string
	Placement *models.Placement
	Network   *models.Network
	Format    models.AdFormat
	// Size is the resolved fixed banner size. Zero for non-banner formats,
	// which the partner sizes itself.
	Size    models.StandardAdSize
	User    models.User
	Device  models.DeviceContext
	Consent models.ResolvedConsent
	// FloorCPM is the placement's floor for this network; fills priced below
	// it are rejected as no-fill.
	FloorCPM float64
}

// Adapter drives one kind of partner network. Implementations translate the
// generic load call into partner-specific requests and partner failures into
// MediationErrors; they must be safe for concurrent use.
type Adapter interface {
	// Kind returns the network kind this adapter serves.
	Kind() models.NetworkKind
	// Load asks the partner for an ad. It honors ctx cancellation and
	// returns either a fill or a *MediationError.
	Load(ctx context.Context, req *LoadRequest) (*models.AdFill, error)
}

// Options carries the shared dependencies adapters are constructed with.
type Options struct {
	Logger *zap.Logger
	// HTTPClient is used by network-bound adapters. The caller owns its
	// transport configuration (timeouts, tracing instrumentation).
	HTTPClient *http.Client
	// DataStore gives local adapters access to mediation configuration.
	DataStore models.MediationDataStore
}

// Factory constructs an adapter instance for one configured network. The
// factory validates the network's credentials and returns not_initialized
// errors for unusable configurations; this is the adapter's init step.
type Factory func(n *models.Network, opts Options) (Adapter, error)
