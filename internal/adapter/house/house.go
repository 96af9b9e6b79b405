// Package house implements the house adapter: the terminal waterfall
// fallback that serves locally-configured creatives and never makes a
// network call.
package house

import (
	"context"
	"errors"
	"strconv"

	"github.com/openmediate/gateway/internal/adapter"
	"github.com/openmediate/gateway/internal/models"
)

// HouseAdapter serves house creatives from the mediation data store.
type HouseAdapter struct {
	network *models.Network
	store   models.MediationDataStore
}

// New constructs the house adapter. It needs only a data store.
func New(n *models.Network, opts adapter.Options) (adapter.Adapter, error) {
	if opts.DataStore == nil {
		return nil, adapter.E(adapter.CodeNotInitialized, n.Name, errors.New("missing data store"))
	}
	return &HouseAdapter{network: n, store: opts.DataStore}, nil
}

// Kind returns the network kind this adapter serves.
func (a *HouseAdapter) Kind() models.NetworkKind { return models.NetworkKindHouse }

// Load picks the first active house creative for the placement that matches
// the requested format and, for banners, the resolved fixed size. House
// fills carry no price.
func (a *HouseAdapter) Load(_ context.Context, req *adapter.LoadRequest) (*models.AdFill, error) {
	creatives := a.store.GetHouseCreatives(req.Placement.ID)
	for _, c := range creatives {
		if !c.Active || c.Format != req.Format {
			continue
		}
		if req.Format == models.FormatBanner && (c.Width != req.Size.Width || c.Height != req.Size.Height) {
			continue
		}
		return &models.AdFill{
			NetworkID:   a.network.ID,
			NetworkName: a.network.Name,
			CreativeID:  strconv.Itoa(c.ID),
			Markup:      c.Markup,
			Width:       c.Width,
			Height:      c.Height,
			Currency:    "USD",
		}, nil
	}
	return nil, adapter.E(adapter.CodeNoFill, a.network.Name, nil)
}
