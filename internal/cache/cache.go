// Package cache holds the denormalized per-customer state the ingestion
// handlers write and the score/description handlers read. The upstream backend
// remains the source of truth: entries here are best-effort copies that a
// process restart (memory backend) may silently discard, and readers must
// treat absence as "no data" rather than an error.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Category names one of the four data domains a customer submits.
type Category string

const (
	CategoryDemographics Category = "demographics"
	CategoryAssets       Category = "assets"
	CategoryAgtech       Category = "agtech_safe"
	CategoryPsychometric Category = "psychometric_info"
)

// Categories lists every known category.
var Categories = []Category{
	CategoryDemographics,
	CategoryAssets,
	CategoryAgtech,
	CategoryPsychometric,
}

// ParseCategory rejects unknown category names at the boundary so stores never
// carry loosely typed keys.
func ParseCategory(raw string) (Category, error) {
	switch Category(strings.TrimSpace(strings.ToLower(raw))) {
	case CategoryDemographics:
		return CategoryDemographics, nil
	case CategoryAssets:
		return CategoryAssets, nil
	case CategoryAgtech:
		return CategoryAgtech, nil
	case CategoryPsychometric:
		return CategoryPsychometric, nil
	default:
		return "", fmt.Errorf("cache: unknown category %q", raw)
	}
}

// Sector labels one of the seven agricultural activities derivable from an
// agtech submission.
type Sector string

const (
	SectorLivestock  Sector = "Livestock"
	SectorVegetables Sector = "Vegetables"
	SectorFishery    Sector = "Fishery"
	SectorSeedlings  Sector = "Seedlings"
	SectorSeedProd   Sector = "Seed Prod."
	SectorApiculture Sector = "Apiculture"
	SectorPoultry    Sector = "Poultry"
)

// CanonicalSectors fixes the output order for every derived sector list.
var CanonicalSectors = []Sector{
	SectorLivestock,
	SectorVegetables,
	SectorFishery,
	SectorSeedlings,
	SectorSeedProd,
	SectorApiculture,
	SectorPoultry,
}

// Record carries the last payload submitted per category for one customer.
type Record struct {
	Categories map[Category]json.RawMessage `json:"categories"`
	UpdatedAt  time.Time                    `json:"updatedAt"`
}

// CustomerStore maps a customer id to its per-category record. Writes merge:
// storing one category never clears siblings.
type CustomerStore interface {
	// SetRecord stores payload under category for customerId, preserving
	// other categories and stamping the update time.
	SetRecord(ctx context.Context, customerId string, category Category, payload json.RawMessage) error
	// GetRecord returns the full per-category record, reporting absence via
	// the bool rather than an error.
	GetRecord(ctx context.Context, customerId string) (Record, bool, error)
	// GetCategory returns one category's payload, reporting absence via the bool.
	GetCategory(ctx context.Context, customerId string, category Category) (json.RawMessage, bool, error)
	// Clear removes one customer's record, or every record when customerId is empty.
	Clear(ctx context.Context, customerId string) error
}

// SectorStore maps a customer id to its derived sector list. Writes replace
// wholesale: sectors absent from the newest submission are discarded.
type SectorStore interface {
	SetSectors(ctx context.Context, customerId string, sectors []Sector) error
	// GetSectors returns the stored list, or an empty list when the id is
	// unknown. Callers must treat "no sectors" and "never submitted" identically.
	GetSectors(ctx context.Context, customerId string) ([]Sector, error)
	// Clear removes one customer's sectors, or all sectors when customerId is empty.
	Clear(ctx context.Context, customerId string) error
}

// Stores bundles both stores behind one lifecycle so backends can share a
// connection.
type Stores struct {
	Customers CustomerStore
	Sectors   SectorStore

	closer func(ctx context.Context) error
}

// Close releases any backend resources shared by the stores.
func (s *Stores) Close(ctx context.Context) error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer(ctx)
}
