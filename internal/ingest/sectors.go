package ingest

import "github.com/farmbridge/agrigate/internal/cache"

// sectorFields maps agtech submission fields to sector labels, in canonical
// output order. Derivation ignores the submission's field order entirely.
var sectorFields = []struct {
	field  string
	sector cache.Sector
}{
	{"livestock", cache.SectorLivestock},
	{"vegetable_production", cache.SectorVegetables},
	{"fishery", cache.SectorFishery},
	{"fruit_veg_seedling", cache.SectorSeedlings},
	{"seed_production", cache.SectorSeedProd},
	{"apiculture", cache.SectorApiculture},
	{"poultry", cache.SectorPoultry},
}

// DeriveSectors lists the active sectors for an agtech submission: a sector is
// included iff its field is present and is a non-empty array. Absent fields,
// non-arrays, and empty arrays are excluded.
func DeriveSectors(payload map[string]any) []cache.Sector {
	sectors := make([]cache.Sector, 0, len(sectorFields))
	for _, f := range sectorFields {
		items, ok := payload[f.field].([]any)
		if ok && len(items) > 0 {
			sectors = append(sectors, f.sector)
		}
	}
	return sectors
}
