package macros

import (
	"time"

	"go.uber.org/zap"

	"github.com/openmediate/gateway/internal/models"
	"github.com/openmediate/gateway/internal/token"
)

// Service provides macro expansion for tracking and click URLs
type Service struct {
	expander *MacroExpander
	logger   *zap.Logger
}

// NewService creates a new macro expansion service
func NewService(logger *zap.Logger) *Service {
	return &Service{
		expander: NewMacroExpander(logger),
		logger:   logger.Named("macro_service"),
	}
}

// NewServiceForTesting creates a new macro expansion service for testing with isolated metrics
func NewServiceForTesting(logger *zap.Logger) *Service {
	return &Service{
		expander: NewMacroExpanderForTesting(logger, false),
		logger:   logger.Named("macro_service"),
	}
}

// RegisterCustomMacro allows registration of additional macro expansion functions
func (s *Service) RegisterCustomMacro(name string, expansionFunc ExpansionFunc) error {
	return s.expander.RegisterMacro(name, expansionFunc)
}

// GetRegisteredMacros returns a list of all registered macro names
func (s *Service) GetRegisteredMacros() []string {
	return s.expander.GetRegisteredMacros()
}

// ValidateURL validates that a URL contains only supported macros
func (s *Service) ValidateURL(rawURL string) []string {
	return s.expander.ValidateURL(rawURL)
}

// TrackingContext contains all the context needed for tracking URL macro expansion
type TrackingContext struct {
	RequestID string
	Timestamp time.Time

	NetworkID   int
	NetworkName string
	CreativeID  string
	PublisherID int
	PlacementID string
	PriceCPM    float64

	// Custom parameters from the mediation request
	CustomParams map[string]string
}

// NewTrackingContextFromClaims builds a TrackingContext from verified token
// claims, the only trusted source of fill identifiers on tracking callbacks.
func NewTrackingContextFromClaims(c token.Claims) *TrackingContext {
	return &TrackingContext{
		RequestID:    c.RequestID,
		Timestamp:    time.Now(),
		NetworkID:    c.NetworkID,
		NetworkName:  c.NetworkName,
		CreativeID:   c.CreativeID,
		PublisherID:  c.PublisherID,
		PlacementID:  c.PlacementID,
		PriceCPM:     c.PriceCPM,
		CustomParams: c.CustomParams,
	}
}

// ExpandTrackingURL expands macros in a tracking or click URL
func (s *Service) ExpandTrackingURL(rawURL string, tc *TrackingContext) (string, error) {
	if rawURL == "" {
		return "", nil
	}

	ctx := &ExpansionContext{
		RequestID:    tc.RequestID,
		Timestamp:    tc.Timestamp,
		NetworkID:    tc.NetworkID,
		NetworkName:  tc.NetworkName,
		CreativeID:   tc.CreativeID,
		PublisherID:  tc.PublisherID,
		PlacementID:  tc.PlacementID,
		PriceCPM:     tc.PriceCPM,
		CustomParams: tc.CustomParams,
	}

	// The expander handles all macro types, including custom parameters
	return s.expander.ExpandURL(rawURL, ctx)
}

// GetDestinationURL determines the final destination URL for a click on a
// house creative. Partner fills carry their click handling inside their own
// markup; only house creatives route clicks through the gateway.
func (s *Service) GetDestinationURL(creative *models.HouseCreative, tc *TrackingContext) (string, error) {
	if creative == nil || creative.ClickURL == "" {
		return "", nil
	}

	expandedURL, err := s.ExpandTrackingURL(creative.ClickURL, tc)
	if err != nil {
		s.logger.Error("Failed to expand click URL macros, using original URL",
			zap.String("raw_url", creative.ClickURL),
			zap.Error(err))
		// Return the original URL instead of failing completely
		// This ensures clicks still work even if macro expansion fails
		return creative.ClickURL, nil
	}
	return expandedURL, nil
}
