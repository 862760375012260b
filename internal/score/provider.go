// Package score answers credit-score lookups from cached sector state. Scoring
// itself sits behind a Provider so the synthesized stand-in can be swapped for
// a real upstream call without touching the handler contract.
package score

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/farmbridge/agrigate/internal/cache"
	"github.com/farmbridge/agrigate/internal/upstream"
)

// Entry is one named score in a lookup response.
type Entry struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// Provider produces the score entries for a customer. Implementations must
// never return an empty slice for a nil error.
type Provider interface {
	Scores(ctx context.Context, customerId string, sectors []cache.Sector) ([]Entry, error)
}

// RandomProvider synthesizes one score per sector within a fixed band. It is
// an explicit stand-in for a real scoring backend and carries no meaning
// beyond exercising the dashboard.
type RandomProvider struct {
	min  int
	max  int
	intN func(int) int
}

// NewRandomProvider validates the band and builds a provider.
func NewRandomProvider(min, max int) (*RandomProvider, error) {
	if min <= 0 || max <= min {
		return nil, fmt.Errorf("score: invalid band [%d, %d]", min, max)
	}
	return &RandomProvider{min: min, max: max, intN: rand.IntN}, nil
}

// Scores returns one entry per sector, or a single Overall entry when the
// customer has no cached sectors. Never zero entries.
func (p *RandomProvider) Scores(_ context.Context, _ string, sectors []cache.Sector) ([]Entry, error) {
	if len(sectors) == 0 {
		return []Entry{{Name: "Overall", Score: p.roll()}}, nil
	}
	entries := make([]Entry, len(sectors))
	for i, sector := range sectors {
		entries[i] = Entry{Name: string(sector), Score: p.roll()}
	}
	return entries, nil
}

func (p *RandomProvider) roll() int {
	return p.min + p.intN(p.max-p.min+1)
}

// Forwarder is the slice of the upstream client the provider needs.
type Forwarder interface {
	Forward(ctx context.Context, path string, body []byte) (upstream.Response, error)
}

// UpstreamProvider asks the scoring backend for real entries. The backend
// replies with either a bare entry array or a {"data": [...]} envelope.
type UpstreamProvider struct {
	forwarder Forwarder
	path      string
}

// NewUpstreamProvider builds a provider bound to the configured score path.
func NewUpstreamProvider(forwarder Forwarder, path string) (*UpstreamProvider, error) {
	if forwarder == nil {
		return nil, errors.New("score: forwarder required")
	}
	if path == "" {
		return nil, errors.New("score: score path required")
	}
	return &UpstreamProvider{forwarder: forwarder, path: path}, nil
}

// Scores requests entries from the upstream backend. Sectors are ignored: the
// backend owns its own view of the customer.
func (p *UpstreamProvider) Scores(ctx context.Context, customerId string, _ []cache.Sector) ([]Entry, error) {
	body, err := json.Marshal(map[string]string{"customerId": customerId})
	if err != nil {
		return nil, fmt.Errorf("score: marshal request: %w", err)
	}

	resp, err := p.forwarder.Forward(ctx, p.path, body)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("score: upstream status %d", resp.Status)
	}

	var entries []Entry
	if err := json.Unmarshal(resp.Body, &entries); err != nil {
		var envelope struct {
			Data []Entry `json:"data"`
		}
		if err := json.Unmarshal(resp.Body, &envelope); err != nil {
			return nil, fmt.Errorf("score: decode response: %w", err)
		}
		entries = envelope.Data
	}
	if len(entries) == 0 {
		return nil, errors.New("score: upstream returned no entries")
	}
	return entries, nil
}
