package cache

import (
	"context"
	"encoding/json"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

func newRedisStores(t *testing.T) *Stores {
	t.Helper()
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(server.Close)

	stores, err := NewRedisStores(RedisConfig{Address: server.Addr()})
	if err != nil {
		t.Fatalf("new redis stores: %v", err)
	}
	t.Cleanup(func() {
		_ = stores.Close(context.Background())
	})
	return stores
}

func TestRedisStoresRequireAddress(t *testing.T) {
	if _, err := NewRedisStores(RedisConfig{}); err == nil {
		t.Fatalf("expected error for missing address")
	}
}

func TestRedisCustomerStoreMergeOnWrite(t *testing.T) {
	stores := newRedisStores(t)
	ctx := context.Background()

	if err := stores.Customers.SetRecord(ctx, "CUST-1", CategoryDemographics, json.RawMessage(`{"age":40}`)); err != nil {
		t.Fatalf("set demographics: %v", err)
	}
	if err := stores.Customers.SetRecord(ctx, "CUST-1", CategoryAssets, json.RawMessage(`{"tractors":2}`)); err != nil {
		t.Fatalf("set assets: %v", err)
	}

	record, ok, err := stores.Customers.GetRecord(ctx, "CUST-1")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if !ok {
		t.Fatalf("expected record")
	}
	if string(record.Categories[CategoryDemographics]) != `{"age":40}` {
		t.Fatalf("demographics lost: %#v", record.Categories)
	}
	if string(record.Categories[CategoryAssets]) != `{"tractors":2}` {
		t.Fatalf("assets missing: %#v", record.Categories)
	}
}

func TestRedisCustomerStoreAbsent(t *testing.T) {
	stores := newRedisStores(t)

	_, ok, err := stores.Customers.GetRecord(context.Background(), "never-written")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatalf("expected absent record")
	}
}

func TestRedisSectorStoreReplaceAndClear(t *testing.T) {
	stores := newRedisStores(t)
	ctx := context.Background()

	if err := stores.Sectors.SetSectors(ctx, "CUST-2", []Sector{SectorLivestock, SectorVegetables}); err != nil {
		t.Fatalf("first set: %v", err)
	}
	if err := stores.Sectors.SetSectors(ctx, "CUST-2", []Sector{SectorPoultry}); err != nil {
		t.Fatalf("second set: %v", err)
	}

	sectors, err := stores.Sectors.GetSectors(ctx, "CUST-2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(sectors) != 1 || sectors[0] != SectorPoultry {
		t.Fatalf("expected replacement, got %v", sectors)
	}

	if err := stores.Sectors.Clear(ctx, "CUST-2"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	sectors, err = stores.Sectors.GetSectors(ctx, "CUST-2")
	if err != nil {
		t.Fatalf("get after clear: %v", err)
	}
	if len(sectors) != 0 {
		t.Fatalf("expected empty sectors, got %v", sectors)
	}
}

func TestRedisClearAllScansPrefix(t *testing.T) {
	stores := newRedisStores(t)
	ctx := context.Background()

	for _, id := range []string{"CUST-3", "CUST-4", "CUST-5"} {
		if err := stores.Customers.SetRecord(ctx, id, CategoryPsychometric, json.RawMessage(`{}`)); err != nil {
			t.Fatalf("set %s: %v", id, err)
		}
		if err := stores.Sectors.SetSectors(ctx, id, []Sector{SectorFishery}); err != nil {
			t.Fatalf("set sectors %s: %v", id, err)
		}
	}

	if err := stores.Customers.Clear(ctx, ""); err != nil {
		t.Fatalf("clear records: %v", err)
	}
	for _, id := range []string{"CUST-3", "CUST-4", "CUST-5"} {
		if _, ok, _ := stores.Customers.GetRecord(ctx, id); ok {
			t.Fatalf("expected %s record cleared", id)
		}
		// Sector keys live under a different prefix and must survive.
		sectors, err := stores.Sectors.GetSectors(ctx, id)
		if err != nil {
			t.Fatalf("get sectors %s: %v", id, err)
		}
		if len(sectors) != 1 {
			t.Fatalf("expected %s sectors untouched, got %v", id, sectors)
		}
	}
}

func TestParseCategory(t *testing.T) {
	for _, category := range Categories {
		parsed, err := ParseCategory(string(category))
		if err != nil {
			t.Fatalf("parse %s: %v", category, err)
		}
		if parsed != category {
			t.Fatalf("expected %s, got %s", category, parsed)
		}
	}
	if _, err := ParseCategory("portfolio"); err == nil {
		t.Fatalf("expected error for unknown category")
	}
}
