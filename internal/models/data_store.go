package models

import (
	"errors"
	"sync/atomic"
)

// ErrNotFound is returned when an entity is not found in the data store
var ErrNotFound = errors.New("entity not found")

// MediationDataStore provides thread-safe access to mediation configuration
// without global variables. It encapsulates publishers, placements, networks
// and house creatives with atomic update capabilities: readers on the hot
// path never take a lock, and reloads swap a complete snapshot at once.
type MediationDataStore interface {
	// Read operations (hot path)
	GetPublisher(publisherID int) *Publisher
	GetPlacement(placementID string) *Placement
	GetNetwork(networkID int) *Network
	GetHouseCreatives(placementID string) []HouseCreative

	// Iteration methods
	GetAllPublishers() []Publisher
	GetAllPlacements() []Placement
	GetAllNetworks() []Network

	// Write operations (reload path)
	SetPublishers(publishers []Publisher) error
	SetPlacements(placements []Placement) error
	SetNetworks(networks []Network) error
	SetHouseCreatives(creatives []HouseCreative) error

	// Atomic bulk operations
	ReloadAll(publishers []Publisher, placements []Placement, networks []Network, creatives []HouseCreative) error

	// Maintenance operations
	// UpdateNetworksECPM updates multiple networks' observed eCPM values in a
	// single snapshot swap. Used by the auto-ranking refresh loop.
	UpdateNetworksECPM(updates map[int]float64) error
}

// dataSnapshot represents an immutable snapshot of all mediation data
type dataSnapshot struct {
	publishers     []Publisher
	publisherIndex map[int]*Publisher
	placements     []Placement
	placementIndex map[string]*Placement
	networks       []Network
	networkIndex   map[int]*Network
	houseCreatives map[string][]HouseCreative // Placement ID -> creatives
}

func emptySnapshot() *dataSnapshot {
	return &dataSnapshot{
		publisherIndex: make(map[int]*Publisher),
		placementIndex: make(map[string]*Placement),
		networkIndex:   make(map[int]*Network),
		houseCreatives: make(map[string][]HouseCreative),
	}
}

// clone produces a deep-enough copy of the snapshot for copy-on-write
// updates. Slices and index maps are rebuilt; entity values are copied.
func (s *dataSnapshot) clone() *dataSnapshot {
	next := emptySnapshot()
	next.setPublishers(append([]Publisher(nil), s.publishers...))
	next.setPlacements(append([]Placement(nil), s.placements...))
	next.setNetworks(append([]Network(nil), s.networks...))
	for pid, cs := range s.houseCreatives {
		next.houseCreatives[pid] = append([]HouseCreative(nil), cs...)
	}
	return next
}

func (s *dataSnapshot) setPublishers(publishers []Publisher) {
	s.publishers = publishers
	s.publisherIndex = make(map[int]*Publisher, len(publishers))
	for i := range publishers {
		s.publisherIndex[publishers[i].ID] = &publishers[i]
	}
}

func (s *dataSnapshot) setPlacements(placements []Placement) {
	s.placements = placements
	s.placementIndex = make(map[string]*Placement, len(placements))
	for i := range placements {
		s.placementIndex[placements[i].ID] = &placements[i]
	}
}

func (s *dataSnapshot) setNetworks(networks []Network) {
	s.networks = networks
	s.networkIndex = make(map[int]*Network, len(networks))
	for i := range networks {
		s.networkIndex[networks[i].ID] = &networks[i]
	}
}

func (s *dataSnapshot) setHouseCreatives(creatives []HouseCreative) {
	s.houseCreatives = make(map[string][]HouseCreative)
	for _, c := range creatives {
		s.houseCreatives[c.PlacementID] = append(s.houseCreatives[c.PlacementID], c)
	}
}

// InMemoryMediationDataStore implements MediationDataStore with atomic
// snapshot updates.
type InMemoryMediationDataStore struct {
	data atomic.Pointer[dataSnapshot]
}

// NewInMemoryMediationDataStore creates a new MediationDataStore instance.
func NewInMemoryMediationDataStore() *InMemoryMediationDataStore {
	store := &InMemoryMediationDataStore{}
	store.data.Store(emptySnapshot())
	return store
}

// GetPublisher returns the publisher with the given ID or nil.
func (s *InMemoryMediationDataStore) GetPublisher(publisherID int) *Publisher {
	return s.data.Load().publisherIndex[publisherID]
}

// GetPlacement returns the placement with the given ID or nil.
func (s *InMemoryMediationDataStore) GetPlacement(placementID string) *Placement {
	return s.data.Load().placementIndex[placementID]
}

// GetNetwork returns the network with the given ID or nil.
func (s *InMemoryMediationDataStore) GetNetwork(networkID int) *Network {
	return s.data.Load().networkIndex[networkID]
}

// GetHouseCreatives returns the house creatives configured for a placement.
func (s *InMemoryMediationDataStore) GetHouseCreatives(placementID string) []HouseCreative {
	return s.data.Load().houseCreatives[placementID]
}

// GetAllPublishers returns a copy of all publishers.
func (s *InMemoryMediationDataStore) GetAllPublishers() []Publisher {
	return append([]Publisher(nil), s.data.Load().publishers...)
}

// GetAllPlacements returns a copy of all placements.
func (s *InMemoryMediationDataStore) GetAllPlacements() []Placement {
	return append([]Placement(nil), s.data.Load().placements...)
}

// GetAllNetworks returns a copy of all networks.
func (s *InMemoryMediationDataStore) GetAllNetworks() []Network {
	return append([]Network(nil), s.data.Load().networks...)
}

// SetPublishers replaces all publishers in a new snapshot.
func (s *InMemoryMediationDataStore) SetPublishers(publishers []Publisher) error {
	next := s.data.Load().clone()
	next.setPublishers(append([]Publisher(nil), publishers...))
	s.data.Store(next)
	return nil
}

// SetPlacements replaces all placements in a new snapshot.
func (s *InMemoryMediationDataStore) SetPlacements(placements []Placement) error {
	next := s.data.Load().clone()
	next.setPlacements(append([]Placement(nil), placements...))
	s.data.Store(next)
	return nil
}

// SetNetworks replaces all networks in a new snapshot.
func (s *InMemoryMediationDataStore) SetNetworks(networks []Network) error {
	next := s.data.Load().clone()
	next.setNetworks(append([]Network(nil), networks...))
	s.data.Store(next)
	return nil
}

// SetHouseCreatives replaces all house creatives in a new snapshot.
func (s *InMemoryMediationDataStore) SetHouseCreatives(creatives []HouseCreative) error {
	next := s.data.Load().clone()
	next.setHouseCreatives(creatives)
	s.data.Store(next)
	return nil
}

// ReloadAll atomically replaces every entity with freshly-loaded data. A
// request observes either the complete old configuration or the complete new
// one, never a mix.
func (s *InMemoryMediationDataStore) ReloadAll(publishers []Publisher, placements []Placement, networks []Network, creatives []HouseCreative) error {
	next := emptySnapshot()
	next.setPublishers(append([]Publisher(nil), publishers...))
	next.setPlacements(append([]Placement(nil), placements...))
	next.setNetworks(append([]Network(nil), networks...))
	next.setHouseCreatives(creatives)
	s.data.Store(next)
	return nil
}

// UpdateNetworksECPM updates observed eCPM values for multiple networks in a
// single snapshot swap.
func (s *InMemoryMediationDataStore) UpdateNetworksECPM(updates map[int]float64) error {
	if len(updates) == 0 {
		return nil
	}
	next := s.data.Load().clone()
	for i := range next.networks {
		if ecpm, ok := updates[next.networks[i].ID]; ok {
			next.networks[i].ECPM = ecpm
		}
	}
	next.setNetworks(next.networks)
	s.data.Store(next)
	return nil
}
