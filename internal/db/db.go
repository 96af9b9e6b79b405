package db

import (
	"fmt"

	"github.com/openmediate/gateway/internal/models"
)

// DB holds the in-memory mediation configuration loaded from Postgres: which
// networks exist, which placements route to them, and the house creatives
// that back the terminal fallback.
type DB struct {
	Placements map[string]models.Placement
	Networks   map[int]models.Network
	Publishers map[int]models.Publisher

	waterfallIndex map[string][]models.Network
	houseIndex     map[string][]models.HouseCreative
}

// Init loads mediation configuration from Postgres, validates relationships
// and returns a DB with the waterfall resolved per placement.
func Init(pg *Postgres, dataStore models.MediationDataStore) (*DB, error) {
	pls, err := pg.LoadPlacements()
	if err != nil {
		return nil, fmt.Errorf("load placements: %w", err)
	}
	placements := make(map[string]models.Placement, len(pls))
	for _, p := range pls {
		placements[p.ID] = p
	}

	pubs, err := pg.LoadPublishers()
	if err != nil {
		return nil, fmt.Errorf("load publishers: %w", err)
	}
	publishers := make(map[int]models.Publisher, len(pubs))
	for _, p := range pubs {
		publishers[p.ID] = p
	}

	nets, err := pg.LoadNetworks()
	if err != nil {
		return nil, fmt.Errorf("load networks: %w", err)
	}
	networks := make(map[int]models.Network, len(nets))
	for _, n := range nets {
		networks[n.ID] = n
	}

	creatives, err := pg.LoadHouseCreatives()
	if err != nil {
		return nil, fmt.Errorf("load house creatives: %w", err)
	}

	d := &DB{Placements: placements, Networks: networks, Publishers: publishers}
	if err := d.buildIndexes(creatives, true); err != nil {
		return nil, err
	}
	return d, nil
}

// WaterfallFor returns the networks configured for a placement in waterfall
// order. Inactive networks are already excluded.
func (d *DB) WaterfallFor(placementID string) []models.Network {
	return d.waterfallIndex[placementID]
}

// HouseCreativesFor returns the house creatives configured for a placement.
func (d *DB) HouseCreativesFor(placementID string) []models.HouseCreative {
	return d.houseIndex[placementID]
}

// GetPlacement returns the placement definition for the given ID.
func (d *DB) GetPlacement(id string) (models.Placement, bool) {
	p, ok := d.Placements[id]
	return p, ok
}

// GetNetwork returns the network definition for the given ID.
func (d *DB) GetNetwork(id int) (models.Network, bool) {
	n, ok := d.Networks[id]
	return n, ok
}

// GetPublisher returns the publisher definition for the given ID.
func (d *DB) GetPublisher(id int) (models.Publisher, bool) {
	p, ok := d.Publishers[id]
	return p, ok
}

// BuildIndexes rebuilds the internal indexes, skipping referential checks.
// Used primarily for testing.
func (d *DB) BuildIndexes(creatives []models.HouseCreative) {
	_ = d.buildIndexes(creatives, false)
}

func (d *DB) buildIndexes(creatives []models.HouseCreative, strict bool) error {
	waterfall := make(map[string][]models.Network)
	house := make(map[string][]models.HouseCreative)

	for id, pl := range d.Placements {
		for _, entry := range pl.Networks {
			n, ok := d.Networks[entry.NetworkID]
			if !ok {
				if strict {
					return fmt.Errorf("placement %s references undefined network %d", id, entry.NetworkID)
				}
				continue
			}
			if !n.Active {
				continue
			}
			waterfall[id] = append(waterfall[id], n)
		}
	}

	for _, c := range creatives {
		if _, ok := d.Placements[c.PlacementID]; !ok {
			if strict {
				return fmt.Errorf("house creative %d references undefined placement %s", c.ID, c.PlacementID)
			}
			continue
		}
		house[c.PlacementID] = append(house[c.PlacementID], c)
	}

	d.waterfallIndex = waterfall
	d.houseIndex = house
	return nil
}
