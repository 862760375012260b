package cache

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	valkey "github.com/valkey-io/valkey-go"
)

const (
	recordKeyPrefix = "agrigate:record:"
	sectorKeyPrefix = "agrigate:sectors:"
)

type RedisTLSConfig struct {
	Enabled bool
	CAFile  string
}

type RedisConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	TLS      RedisTLSConfig
}

// NewRedisStores connects both stores to a shared valkey client. Entries are
// written without expiry so the redis backend keeps the same no-TTL contract
// as the memory backend, but survives process restarts and can be shared
// across gateway instances.
func NewRedisStores(cfg RedisConfig) (*Stores, error) {
	if cfg.Address == "" {
		return nil, errors.New("cache: redis address required")
	}

	option := valkey.ClientOption{
		InitAddress:       []string{cfg.Address},
		Username:          cfg.Username,
		Password:          cfg.Password,
		SelectDB:          cfg.DB,
		AlwaysRESP2:       true,
		ForceSingleClient: true,
		DisableCache:      true,
	}

	if cfg.TLS.Enabled {
		tlsConfig := &tls.Config{}
		if cfg.TLS.CAFile != "" {
			caData, err := os.ReadFile(cfg.TLS.CAFile)
			if err != nil {
				return nil, fmt.Errorf("cache: read redis ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caData) {
				return nil, errors.New("cache: redis ca file contains no certificates")
			}
			tlsConfig.RootCAs = pool
		}
		option.TLSConfig = tlsConfig
	}

	client, err := valkey.NewClient(option)
	if err != nil {
		return nil, fmt.Errorf("cache: redis client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: redis ping: %w", err)
	}

	return &Stores{
		Customers: &redisCustomerStore{client: client},
		Sectors:   &redisSectorStore{client: client},
		closer: func(context.Context) error {
			client.Close()
			return nil
		},
	}, nil
}

type redisCustomerStore struct {
	client valkey.Client
}

func (s *redisCustomerStore) SetRecord(ctx context.Context, customerId string, category Category, payload json.RawMessage) error {
	id := strings.TrimSpace(customerId)
	if id == "" {
		return errors.New("cache: customer id required")
	}
	if _, err := ParseCategory(string(category)); err != nil {
		return err
	}

	// Read-modify-write keeps the merge contract. The gateway's writes for a
	// given customer are serialized by the upstream round-trip in practice;
	// last write wins is acceptable here as it is for the memory backend.
	record, ok, err := s.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		record = Record{Categories: make(map[Category]json.RawMessage, len(Categories))}
	}
	record.Categories[category] = payload
	record.UpdatedAt = time.Now().UTC()

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("cache: redis marshal record: %w", err)
	}
	cmd := s.client.B().Set().Key(recordKeyPrefix + id).Value(string(encoded)).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("cache: redis set record: %w", err)
	}
	return nil
}

func (s *redisCustomerStore) GetRecord(ctx context.Context, customerId string) (Record, bool, error) {
	resp := s.client.Do(ctx, s.client.B().Get().Key(recordKeyPrefix+strings.TrimSpace(customerId)).Build())
	if err := resp.Error(); err != nil {
		if errors.Is(err, valkey.Nil) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("cache: redis get record: %w", err)
	}
	payload, err := resp.AsBytes()
	if err != nil {
		return Record{}, false, fmt.Errorf("cache: redis record bytes: %w", err)
	}
	var record Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return Record{}, false, fmt.Errorf("cache: redis unmarshal record: %w", err)
	}
	if record.Categories == nil {
		record.Categories = make(map[Category]json.RawMessage)
	}
	return record, true, nil
}

func (s *redisCustomerStore) GetCategory(ctx context.Context, customerId string, category Category) (json.RawMessage, bool, error) {
	record, ok, err := s.GetRecord(ctx, customerId)
	if err != nil || !ok {
		return nil, false, err
	}
	payload, ok := record.Categories[category]
	if !ok {
		return nil, false, nil
	}
	return payload, true, nil
}

func (s *redisCustomerStore) Clear(ctx context.Context, customerId string) error {
	return redisClear(ctx, s.client, recordKeyPrefix, customerId)
}

type redisSectorStore struct {
	client valkey.Client
}

func (s *redisSectorStore) SetSectors(ctx context.Context, customerId string, sectors []Sector) error {
	id := strings.TrimSpace(customerId)
	if id == "" {
		return errors.New("cache: customer id required")
	}
	encoded, err := json.Marshal(sectors)
	if err != nil {
		return fmt.Errorf("cache: redis marshal sectors: %w", err)
	}
	cmd := s.client.B().Set().Key(sectorKeyPrefix + id).Value(string(encoded)).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("cache: redis set sectors: %w", err)
	}
	return nil
}

func (s *redisSectorStore) GetSectors(ctx context.Context, customerId string) ([]Sector, error) {
	resp := s.client.Do(ctx, s.client.B().Get().Key(sectorKeyPrefix+strings.TrimSpace(customerId)).Build())
	if err := resp.Error(); err != nil {
		if errors.Is(err, valkey.Nil) {
			return []Sector{}, nil
		}
		return nil, fmt.Errorf("cache: redis get sectors: %w", err)
	}
	payload, err := resp.AsBytes()
	if err != nil {
		return nil, fmt.Errorf("cache: redis sectors bytes: %w", err)
	}
	var sectors []Sector
	if err := json.Unmarshal(payload, &sectors); err != nil {
		return nil, fmt.Errorf("cache: redis unmarshal sectors: %w", err)
	}
	if sectors == nil {
		sectors = []Sector{}
	}
	return sectors, nil
}

func (s *redisSectorStore) Clear(ctx context.Context, customerId string) error {
	return redisClear(ctx, s.client, sectorKeyPrefix, customerId)
}

// redisClear deletes one key, or scans out every key under the prefix when the
// customer id is empty.
func redisClear(ctx context.Context, client valkey.Client, prefix, customerId string) error {
	id := strings.TrimSpace(customerId)
	if id != "" {
		cmd := client.B().Del().Key(prefix + id).Build()
		if err := client.Do(ctx, cmd).Error(); err != nil {
			return fmt.Errorf("cache: redis del: %w", err)
		}
		return nil
	}

	var cursor uint64
	for {
		resp := client.Do(ctx, client.B().Scan().Cursor(cursor).Match(prefix+"*").Count(200).Build())
		entry, err := resp.AsScanEntry()
		if err != nil {
			return fmt.Errorf("cache: redis scan: %w", err)
		}
		if len(entry.Elements) > 0 {
			cmd := client.B().Del().Key(entry.Elements...).Build()
			if err := client.Do(ctx, cmd).Error(); err != nil {
				return fmt.Errorf("cache: redis del: %w", err)
			}
		}
		cursor = entry.Cursor
		if cursor == 0 {
			return nil
		}
	}
}
