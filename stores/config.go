package stores

import (
	"fmt"
	"time"

	"github.com/oarkflow/permit"
	"github.com/oarkflow/permit/logger"
)

// DecisionStoreFromConfig builds the decision cache backend named by
// ec.CacheBackend. An empty backend selects the in-memory store.
func DecisionStoreFromConfig(ec permit.EngineConfig) (permit.DecisionStore, error) {
	switch ec.CacheBackend {
	case "", permit.CacheBackendMemory:
		return permit.NewMemoryDecisionStore(), nil
	case permit.CacheBackendRistretto:
		return NewRistrettoDecisionStore(RistrettoConfig{
			NumCounters: ec.RistrettoNumCounter,
			MaxCost:     ec.RistrettoMaxCost,
			BufferItems: ec.RistrettoBuffer,
		})
	case permit.CacheBackendRedis:
		return NewRedisDecisionStoreFromURL(ec.RedisURL, WithKeyPrefix(ec.RedisPrefix))
	default:
		return nil, fmt.Errorf("unknown cache backend %q", ec.CacheBackend)
	}
}

// AuthorityFromConfig returns the remote authority configured in ec, or nil.
func AuthorityFromConfig(ec permit.EngineConfig, l logger.Logger) *HTTPAuthority {
	if ec.RemoteURL == "" {
		return nil
	}
	if l == nil {
		l = logger.NewNullLogger()
	}
	return NewHTTPAuthority(ec.RemoteURL, time.Duration(ec.RemoteTimeout)*time.Millisecond, BreakerSettings{}, WithAuthorityLogger(l))
}

// EvaluatorOptions turns a whole config into evaluator options: TTL and
// failure policy from the engine section, plus the cache backend and remote
// authority it names.
func EvaluatorOptions(cfg *permit.Config, l logger.Logger) ([]permit.Option, error) {
	opts := cfg.Options()
	store, err := DecisionStoreFromConfig(cfg.Engine)
	if err != nil {
		return nil, err
	}
	opts = append(opts, permit.WithDecisionStore(store))
	if a := AuthorityFromConfig(cfg.Engine, l); a != nil {
		opts = append(opts, permit.WithRemoteChecker(a))
	}
	if l != nil {
		opts = append(opts, permit.WithLogger(l))
	}
	return opts, nil
}
