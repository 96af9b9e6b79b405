// Package httpnet implements the generic HTTP partner network adapter: the
// partner exposes a bid endpoint and a numeric error-code vocabulary, and
// this adapter translates mediation load calls into partner bid requests and
// partner responses back into the mediation vocabulary.
package httpnet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/openmediate/gateway/internal/adapter"
	"github.com/openmediate/gateway/internal/models"
)

// bidRequest is the partner bid request wire format.
type bidRequest struct {
	RequestID string `json:"request_id"`
	AppID     string `json:"app_id"`
	Zone      string `json:"zone"`
	Format    string `json:"format"`
	Width     int    `json:"w,omitempty"`
	Height    int    `json:"h,omitempty"`
	FloorCPM  float64 `json:"floor_cpm,omitempty"`
	Device    struct {
		Type    string `json:"type"`
		OS      string `json:"os"`
		Country string `json:"country,omitempty"`
	} `json:"device"`
	User struct {
		ID string `json:"id"`
	} `json:"user"`
	Consent struct {
		GDPRApplies *bool  `json:"gdpr_applies,omitempty"`
		TCString    string `json:"tc_string,omitempty"`
		USPrivacy   string `json:"us_privacy,omitempty"`
		COPPA       bool   `json:"coppa,omitempty"`
	} `json:"consent"`
}

// bidResponse is the partner bid response wire format. Code 0 means the ad
// object is populated; any other code is a partner error enumeration.
type bidResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Ad      struct {
		CreativeID string  `json:"creative_id"`
		Markup     string  `json:"markup"`
		Width      int     `json:"w"`
		Height     int     `json:"h"`
		CPM        float64 `json:"cpm"`
		Currency   string  `json:"currency"`
	} `json:"ad"`
}

// HTTPAdapter drives one HTTP partner network.
type HTTPAdapter struct {
	network *models.Network
	client  *http.Client
	logger  *zap.Logger
}

// New validates the network configuration and constructs the adapter. This
// is the adapter's init step: misconfigured networks are rejected here, once,
// instead of failing every load.
func New(n *models.Network, opts adapter.Options) (adapter.Adapter, error) {
	if n.Endpoint == "" {
		return nil, adapter.E(adapter.CodeNotInitialized, n.Name, errors.New("missing endpoint"))
	}
	if n.AppID == "" || n.APIKey == "" {
		return nil, adapter.E(adapter.CodeNotInitialized, n.Name, errors.New("missing credentials"))
	}
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPAdapter{network: n, client: client, logger: logger}, nil
}

// Kind returns the network kind this adapter serves.
func (a *HTTPAdapter) Kind() models.NetworkKind { return models.NetworkKindHTTP }

// Load POSTs a bid request to the partner endpoint and normalizes the
// response. Context cancellation surfaces as a timeout mediation error;
// transport failures and non-200 statuses as network_error.
func (a *HTTPAdapter) Load(ctx context.Context, req *adapter.LoadRequest) (*models.AdFill, error) {
	body, err := json.Marshal(a.buildBidRequest(req))
	if err != nil {
		return nil, adapter.E(adapter.CodeInternal, a.network.Name, fmt.Errorf("marshal bid request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.network.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, adapter.E(adapter.CodeInternal, a.network.Name, fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", a.network.APIKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, adapter.E(adapter.CodeTimeout, a.network.Name, err)
		}
		return nil, adapter.E(adapter.CodeNetworkError, a.network.Name, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, adapter.E(adapter.CodeNetworkError, a.network.Name, fmt.Errorf("partner status %d", resp.StatusCode))
	}

	var bid bidResponse
	if err := json.NewDecoder(resp.Body).Decode(&bid); err != nil {
		return nil, adapter.E(adapter.CodeNetworkError, a.network.Name, fmt.Errorf("decode bid response: %w", err))
	}

	if bid.Code != partnerCodeOK {
		code := translateCode(bid.Code)
		if code == adapter.CodeInternal {
			a.logger.Warn("unknown partner error code",
				zap.String("network", a.network.Name),
				zap.Int("partner_code", bid.Code),
				zap.String("message", bid.Message))
		}
		return nil, adapter.E(code, a.network.Name, fmt.Errorf("partner code %d: %s", bid.Code, bid.Message))
	}

	if bid.Ad.Markup == "" {
		return nil, adapter.E(adapter.CodeNetworkError, a.network.Name, errors.New("fill response without markup"))
	}
	if req.FloorCPM > 0 && bid.Ad.CPM < req.FloorCPM {
		return nil, adapter.E(adapter.CodeNoFill, a.network.Name, fmt.Errorf("cpm %.2f below floor %.2f", bid.Ad.CPM, req.FloorCPM))
	}

	fill := &models.AdFill{
		NetworkID:   a.network.ID,
		NetworkName: a.network.Name,
		CreativeID:  bid.Ad.CreativeID,
		Markup:      bid.Ad.Markup,
		Width:       bid.Ad.Width,
		Height:      bid.Ad.Height,
		PriceCPM:    bid.Ad.CPM,
		Currency:    bid.Ad.Currency,
	}
	if fill.Currency == "" {
		fill.Currency = "USD"
	}
	// Partners echo the requested size; trust our resolution when they omit it.
	if fill.Width == 0 {
		fill.Width = req.Size.Width
		fill.Height = req.Size.Height
	}
	return fill, nil
}

func (a *HTTPAdapter) buildBidRequest(req *adapter.LoadRequest) bidRequest {
	var bid bidRequest
	bid.RequestID = req.RequestID
	bid.AppID = a.network.AppID
	bid.Zone = a.network.ZoneID
	bid.Format = string(req.Format)
	if req.Format == models.FormatBanner {
		bid.Width = req.Size.Width
		bid.Height = req.Size.Height
	}
	bid.FloorCPM = req.FloorCPM
	bid.Device.Type = req.Device.DeviceType
	bid.Device.OS = req.Device.OS
	bid.Device.Country = req.Consent.Country
	bid.User.ID = req.User.ID
	bid.Consent.GDPRApplies = req.Consent.Consent.GDPRApplies
	bid.Consent.TCString = req.Consent.Consent.TCString
	bid.Consent.USPrivacy = req.Consent.Consent.USPrivacy
	bid.Consent.COPPA = req.Consent.Consent.COPPA
	return bid
}
