// Package describe assembles a bounded natural-language summary of a
// customer's cached agtech activity. Generation optionally delegates to an
// external chat-completion backend; without one the same facts render through
// a local template so both paths state the same things with different fluency.
package describe

import (
	"fmt"

	"github.com/farmbridge/agrigate/internal/cache"
)

// Count pairs a display label with a non-zero item count.
type Count struct {
	Label string
	Count int
}

// Facts carries everything a description may mention. Both the prompt builder
// and the local formatter consume only this struct, which keeps the two paths
// semantically equivalent.
type Facts struct {
	CustomerID string
	Sectors    []cache.Sector
	Latitude   *float64
	Longitude  *float64
	Counts     []Count
}

// countFields maps agtech payload fields to display labels, in canonical order.
var countFields = []struct {
	field string
	label string
}{
	{"livestock", "Livestock items"},
	{"vegetable_production", "Vegetable plots"},
	{"fishery", "Fishery records"},
	{"fruit_veg_seedling", "Seedlings"},
	{"seed_production", "Seed production items"},
	{"apiculture", "Apiculture records"},
	{"poultry", "Poultry records"},
}

// BuildFacts derives the description inputs from the stored sector list and
// the cached agtech payload. A nil payload yields facts with sectors only;
// callers with nothing cached still get a usable (if minimal) Facts value.
func BuildFacts(customerId string, sectors []cache.Sector, payload map[string]any) Facts {
	facts := Facts{
		CustomerID: customerId,
		Sectors:    sectors,
	}
	if payload == nil {
		return facts
	}

	if lat, ok := payload["latitude"].(float64); ok {
		if lng, ok := payload["longitude"].(float64); ok {
			facts.Latitude = &lat
			facts.Longitude = &lng
		}
	}

	for _, f := range countFields {
		items, ok := payload[f.field].([]any)
		if ok && len(items) > 0 {
			facts.Counts = append(facts.Counts, Count{Label: f.label, Count: len(items)})
		}
	}
	return facts
}

// HasLocation reports whether both coordinates were present in the payload.
func (f Facts) HasLocation() bool {
	return f.Latitude != nil && f.Longitude != nil
}

// SectorNames returns the sector labels as plain strings for templating.
func (f Facts) SectorNames() []string {
	names := make([]string, len(f.Sectors))
	for i, sector := range f.Sectors {
		names[i] = string(sector)
	}
	return names
}

// CountSummaries renders each count as "Label: N" for templating.
func (f Facts) CountSummaries() []string {
	summaries := make([]string, len(f.Counts))
	for i, count := range f.Counts {
		summaries[i] = fmt.Sprintf("%s: %d", count.Label, count.Count)
	}
	return summaries
}
