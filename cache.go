package permit

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/oarkflow/permit/logger"
)

type nowFunc func() time.Time

// CacheKey identifies one cached decision. Snapshot is the fingerprint of
// the subject and permission set the entry was computed from, so evaluators
// in different processes sharing one store only share entries when their
// rule sets are identical.
type CacheKey struct {
	Snapshot     string
	SubjectID    string
	Action       Action
	ResourceType ResourceType
	ResourceID   string
	Context      string // Context.Canonical()
}

func newCacheKey(snapshot, subjectID string, req CheckRequest) CacheKey {
	return CacheKey{
		Snapshot:     snapshot,
		SubjectID:    subjectID,
		Action:       req.Action,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Context:      req.Context.Canonical(),
	}
}

// String is the deterministic serialization of the key.
func (k CacheKey) String() string {
	var b strings.Builder
	b.WriteString(strconv.Quote(k.Snapshot))
	for _, part := range []string{k.SubjectID, string(k.Action), string(k.ResourceType), k.ResourceID} {
		b.WriteByte('|')
		b.WriteString(strconv.Quote(part))
	}
	b.WriteByte('|')
	b.WriteString(k.Context)
	return b.String()
}

// Hash returns a fixed-width digest of String, suitable for external stores.
func (k CacheKey) Hash() string {
	return strconv.FormatUint(xxhash.Sum64String(k.String()), 16)
}

// CacheEntry is a cached decision. Only the boolean is kept.
type CacheEntry struct {
	Granted  bool      `json:"granted"`
	StoredAt time.Time `json:"stored_at"`
}

// DecisionStore is the pluggable backing store of a ResultCache. Stores may
// drop entries at any time; ResultCache checks freshness itself.
type DecisionStore interface {
	Get(ctx context.Context, key CacheKey) (CacheEntry, bool, error)
	Set(ctx context.Context, key CacheKey, entry CacheEntry, ttl time.Duration) error
	Clear(ctx context.Context) error
}

// MemoryDecisionStore is a process-local DecisionStore. Stale entries are
// swept every sweepEvery writes, so its size tracks the number of distinct
// requests seen within one TTL. Use the ristretto store in stores/ when a
// hard size bound is needed.
type MemoryDecisionStore struct {
	mu         sync.RWMutex
	entries    map[CacheKey]memoryEntry
	writes     int
	sweepEvery int
}

type memoryEntry struct {
	CacheEntry
	expires time.Time // zero never expires
}

const defaultSweepEvery = 256

func NewMemoryDecisionStore() *MemoryDecisionStore {
	return &MemoryDecisionStore{entries: make(map[CacheKey]memoryEntry), sweepEvery: defaultSweepEvery}
}

func (s *MemoryDecisionStore) Get(_ context.Context, key CacheKey) (CacheEntry, bool, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	return e.CacheEntry, ok, nil
}

func (s *MemoryDecisionStore) Set(_ context.Context, key CacheKey, entry CacheEntry, ttl time.Duration) error {
	me := memoryEntry{CacheEntry: entry}
	if ttl > 0 {
		me.expires = entry.StoredAt.Add(ttl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = me
	s.writes++
	if s.sweepEvery > 0 && s.writes%s.sweepEvery == 0 {
		s.sweepLocked(entry.StoredAt)
	}
	return nil
}

// Sweep drops every entry whose TTL has run out at now and reports how many
// were removed.
func (s *MemoryDecisionStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(now)
}

func (s *MemoryDecisionStore) sweepLocked(now time.Time) int {
	n := 0
	for k, e := range s.entries {
		if !e.expires.IsZero() && !now.Before(e.expires) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

func (s *MemoryDecisionStore) Delete(key CacheKey) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

func (s *MemoryDecisionStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.entries)
	return nil
}

// Len reports the number of stored entries, stale ones included.
func (s *MemoryDecisionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// ResultCache memoizes decisions for a fixed TTL over a DecisionStore.
// Store failures are logged and treated as misses; they never change a
// decision.
type ResultCache struct {
	store  DecisionStore
	ttl    time.Duration
	now    nowFunc
	logger logger.Logger
}

func NewResultCache(store DecisionStore, ttl time.Duration) *ResultCache {
	if store == nil {
		store = NewMemoryDecisionStore()
	}
	if ttl <= 0 {
		ttl = DefaultDecisionTTL
	}
	return &ResultCache{store: store, ttl: ttl, now: time.Now, logger: logger.NewNullLogger()}
}

func (c *ResultCache) TTL() time.Duration { return c.ttl }

// Get returns the cached decision for key if it is younger than the TTL.
func (c *ResultCache) Get(ctx context.Context, key CacheKey) (bool, bool) {
	e, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Error("decision cache get failed", "key", key.Hash(), "error", err.Error())
		return false, false
	}
	if !ok {
		return false, false
	}
	if c.now().Sub(e.StoredAt) >= c.ttl {
		if m, isMem := c.store.(*MemoryDecisionStore); isMem {
			m.Delete(key)
		}
		return false, false
	}
	return e.Granted, true
}

// Put stores granted under key, replacing any previous entry.
func (c *ResultCache) Put(ctx context.Context, key CacheKey, granted bool) {
	entry := CacheEntry{Granted: granted, StoredAt: c.now()}
	if err := c.store.Set(ctx, key, entry, c.ttl); err != nil {
		c.logger.Error("decision cache set failed", "key", key.Hash(), "error", err.Error())
	}
}

// Clear drops every cached decision.
func (c *ResultCache) Clear(ctx context.Context) {
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Error("decision cache clear failed", "error", err.Error())
	}
}
