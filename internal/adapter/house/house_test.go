package house

import (
	"context"
	"testing"

	"github.com/openmediate/gateway/internal/adapter"
	"github.com/openmediate/gateway/internal/models"
)

func setupStore(t *testing.T, creatives []models.HouseCreative) models.MediationDataStore {
	t.Helper()
	store := models.NewTestMediationDataStore()
	if err := store.SetHouseCreatives(creatives); err != nil {
		t.Fatalf("set house creatives: %v", err)
	}
	return store
}

func TestLoad_MatchesSizeAndFormat(t *testing.T) {
	store := setupStore(t, []models.HouseCreative{
		{ID: 1, PlacementID: "home", Markup: "<div>wrong size</div>", Width: 300, Height: 250, Format: models.FormatBanner, Active: true},
		{ID: 2, PlacementID: "home", Markup: "<div>house</div>", Width: 320, Height: 50, Format: models.FormatBanner, Active: true},
	})

	a, err := New(&models.Network{ID: 9, Name: "house"}, adapter.Options{DataStore: store})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	fill, err := a.Load(context.Background(), &adapter.LoadRequest{
		Placement: &models.Placement{ID: "home"},
		Format:    models.FormatBanner,
		Size:      models.StandardAdSize{Width: 320, Height: 50},
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fill.CreativeID != "2" {
		t.Errorf("expected creative 2, got %s", fill.CreativeID)
	}
	if fill.PriceCPM != 0 {
		t.Errorf("house fills must be free, got %f", fill.PriceCPM)
	}
}

func TestLoad_NoFill(t *testing.T) {
	store := setupStore(t, []models.HouseCreative{
		{ID: 1, PlacementID: "home", Markup: "<div>inactive</div>", Width: 320, Height: 50, Format: models.FormatBanner, Active: false},
	})

	a, err := New(&models.Network{ID: 9, Name: "house"}, adapter.Options{DataStore: store})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	_, err = a.Load(context.Background(), &adapter.LoadRequest{
		Placement: &models.Placement{ID: "home"},
		Format:    models.FormatBanner,
		Size:      models.StandardAdSize{Width: 320, Height: 50},
	})
	if !adapter.IsNoFill(err) {
		t.Errorf("expected no_fill, got %v", err)
	}
}

func TestNew_RequiresDataStore(t *testing.T) {
	if _, err := New(&models.Network{Name: "house"}, adapter.Options{}); err == nil {
		t.Fatal("expected error without data store")
	}
}
