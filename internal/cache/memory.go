package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"
)

// NewMemoryStores builds process-local stores. Entries live for the lifetime
// of the process with no TTL, eviction, or persistence.
func NewMemoryStores() *Stores {
	return &Stores{
		Customers: &memoryCustomerStore{records: make(map[string]Record)},
		Sectors:   &memorySectorStore{sectors: make(map[string][]Sector)},
	}
}

type memoryCustomerStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func (s *memoryCustomerStore) SetRecord(_ context.Context, customerId string, category Category, payload json.RawMessage) error {
	id := strings.TrimSpace(customerId)
	if id == "" {
		return errors.New("cache: customer id required")
	}
	if _, err := ParseCategory(string(category)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		record = Record{Categories: make(map[Category]json.RawMessage, len(Categories))}
	} else {
		record = cloneRecord(record)
	}
	record.Categories[category] = clonePayload(payload)
	record.UpdatedAt = time.Now().UTC()
	s.records[id] = record
	return nil
}

func (s *memoryCustomerStore) GetRecord(_ context.Context, customerId string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[strings.TrimSpace(customerId)]
	if !ok {
		return Record{}, false, nil
	}
	return cloneRecord(record), true, nil
}

func (s *memoryCustomerStore) GetCategory(_ context.Context, customerId string, category Category) (json.RawMessage, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[strings.TrimSpace(customerId)]
	if !ok {
		return nil, false, nil
	}
	payload, ok := record.Categories[category]
	if !ok {
		return nil, false, nil
	}
	return clonePayload(payload), true, nil
}

func (s *memoryCustomerStore) Clear(_ context.Context, customerId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := strings.TrimSpace(customerId)
	if id == "" {
		s.records = make(map[string]Record)
		return nil
	}
	delete(s.records, id)
	return nil
}

type memorySectorStore struct {
	mu      sync.RWMutex
	sectors map[string][]Sector
}

func (s *memorySectorStore) SetSectors(_ context.Context, customerId string, sectors []Sector) error {
	id := strings.TrimSpace(customerId)
	if id == "" {
		return errors.New("cache: customer id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sectors[id] = cloneSectors(sectors)
	return nil
}

func (s *memorySectorStore) GetSectors(_ context.Context, customerId string) ([]Sector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sectors, ok := s.sectors[strings.TrimSpace(customerId)]
	if !ok {
		return []Sector{}, nil
	}
	return cloneSectors(sectors), nil
}

func (s *memorySectorStore) Clear(_ context.Context, customerId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := strings.TrimSpace(customerId)
	if id == "" {
		s.sectors = make(map[string][]Sector)
		return nil
	}
	delete(s.sectors, id)
	return nil
}

// cloneRecord copies a record so readers and writers never share category maps.
func cloneRecord(in Record) Record {
	out := Record{
		Categories: make(map[Category]json.RawMessage, len(in.Categories)),
		UpdatedAt:  in.UpdatedAt,
	}
	for category, payload := range in.Categories {
		out.Categories[category] = clonePayload(payload)
	}
	return out
}

func clonePayload(in json.RawMessage) json.RawMessage {
	if in == nil {
		return nil
	}
	out := make(json.RawMessage, len(in))
	copy(out, in)
	return out
}

func cloneSectors(in []Sector) []Sector {
	out := make([]Sector, len(in))
	copy(out, in)
	return out
}
