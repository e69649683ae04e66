package stores

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/oarkflow/permit"
)

// RistrettoConfig sizes a RistrettoDecisionStore. MaxCost is the number of
// decisions kept. Zero values fall back to defaults.
type RistrettoConfig struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
}

// RistrettoDecisionStore is a bounded in-process decision store. Ristretto
// may reject or evict entries under pressure; a dropped entry is a miss.
type RistrettoDecisionStore struct {
	cache *ristretto.Cache
}

func NewRistrettoDecisionStore(cfg RistrettoConfig) (*RistrettoDecisionStore, error) {
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = 1e6
	}
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = 1 << 17
	}
	if cfg.BufferItems <= 0 {
		cfg.BufferItems = 64
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		// each decision costs 1, so MaxCost is an entry count
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &RistrettoDecisionStore{cache: c}, nil
}

func (s *RistrettoDecisionStore) Get(_ context.Context, key permit.CacheKey) (permit.CacheEntry, bool, error) {
	v, ok := s.cache.Get(key.String())
	if !ok {
		return permit.CacheEntry{}, false, nil
	}
	e, ok := v.(permit.CacheEntry)
	return e, ok, nil
}

// Set writes through and waits for the write buffer to drain so the entry is
// visible to the next Get.
func (s *RistrettoDecisionStore) Set(_ context.Context, key permit.CacheKey, entry permit.CacheEntry, ttl time.Duration) error {
	s.cache.SetWithTTL(key.String(), entry, 1, ttl)
	s.cache.Wait()
	return nil
}

func (s *RistrettoDecisionStore) Clear(_ context.Context) error {
	s.cache.Clear()
	return nil
}

func (s *RistrettoDecisionStore) Close() {
	s.cache.Close()
}
