package ingest

import (
	"encoding/json"
	"testing"

	"github.com/farmbridge/agrigate/internal/cache"
	"github.com/stretchr/testify/require"
)

func decodePayload(t *testing.T, raw string) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	return payload
}

func TestDeriveSectorsCanonicalOrder(t *testing.T) {
	// Input field order must not leak into the output.
	payload := decodePayload(t, `{"poultry":[{"breed":"layer"}],"livestock":[{"type":"cattle"}]}`)
	sectors := DeriveSectors(payload)
	require.Equal(t, []cache.Sector{cache.SectorLivestock, cache.SectorPoultry}, sectors)
}

func TestDeriveSectorsExcludesEmptyArrays(t *testing.T) {
	payload := decodePayload(t, `{"livestock":[],"fishery":[{"pond":1}]}`)
	sectors := DeriveSectors(payload)
	require.Equal(t, []cache.Sector{cache.SectorFishery}, sectors)
}

func TestDeriveSectorsExcludesNonArrays(t *testing.T) {
	payload := decodePayload(t, `{"livestock":"yes","apiculture":{"hives":3},"poultry":[{}]}`)
	sectors := DeriveSectors(payload)
	require.Equal(t, []cache.Sector{cache.SectorPoultry}, sectors)
}

func TestDeriveSectorsAllSeven(t *testing.T) {
	payload := decodePayload(t, `{
		"livestock":[1],"vegetable_production":[1],"fishery":[1],
		"fruit_veg_seedling":[1],"seed_production":[1],"apiculture":[1],"poultry":[1]
	}`)
	sectors := DeriveSectors(payload)
	require.Equal(t, cache.CanonicalSectors, sectors)
}

func TestDeriveSectorsEmptyPayload(t *testing.T) {
	require.Empty(t, DeriveSectors(map[string]any{}))
}
