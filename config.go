package permit

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds evaluator settings and, for fixtures and local development,
// per-subject permission sets.
type Config struct {
	Version  uint16          `json:"version" yaml:"version"`
	Engine   EngineConfig    `json:"engine" yaml:"engine"`
	Subjects []SubjectConfig `json:"subjects" yaml:"subjects"`
}

type SubjectConfig struct {
	ID          string                `json:"id" yaml:"id"`
	Permissions []EffectivePermission `json:"permissions" yaml:"permissions"`
}

// Cache backends understood by EngineConfig.CacheBackend.
const (
	CacheBackendMemory    = "memory"
	CacheBackendRistretto = "ristretto"
	CacheBackendRedis     = "redis"
)

type EngineConfig struct {
	DecisionCacheTTL    int64  `json:"decision_cache_ttl_ms" yaml:"decision_cache_ttl_ms"`
	CacheBackend        string `json:"cache_backend,omitempty" yaml:"cache_backend,omitempty"`
	RistrettoNumCounter int64  `json:"ristretto_num_counter,omitempty" yaml:"ristretto_num_counter,omitempty"`
	RistrettoMaxCost    int64  `json:"ristretto_max_cost,omitempty" yaml:"ristretto_max_cost,omitempty"`
	RistrettoBuffer     int64  `json:"ristretto_buffer,omitempty" yaml:"ristretto_buffer,omitempty"`
	RedisURL            string `json:"redis_url,omitempty" yaml:"redis_url,omitempty"`
	RedisPrefix         string `json:"redis_prefix,omitempty" yaml:"redis_prefix,omitempty"`
	RemoteURL           string `json:"remote_url,omitempty" yaml:"remote_url,omitempty"`
	RemoteTimeout       int64  `json:"remote_timeout_ms,omitempty" yaml:"remote_timeout_ms,omitempty"`
	RemoteFailureDeny   bool   `json:"remote_failure_deny,omitempty" yaml:"remote_failure_deny,omitempty"`
}

// ConfigLoader loads configuration from various formats
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDSL parses the line-oriented grant format.
func (l *ConfigLoader) LoadDSL(data []byte) (*Config, error) {
	return NewDSLParser().Parse(data)
}

// ToYAML exports config to YAML
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ToJSON exports config to JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Subject returns the permission set configured for id.
func (c *Config) Subject(id string) ([]EffectivePermission, bool) {
	for _, s := range c.Subjects {
		if s.ID == id {
			return s.Permissions, true
		}
	}
	return nil, false
}

// Options converts the engine section into evaluator options. Cache backends
// and the remote authority live in the stores package.
func (c *Config) Options() []Option {
	var opts []Option
	if c.Engine.DecisionCacheTTL > 0 {
		opts = append(opts, WithDecisionTTL(time.Duration(c.Engine.DecisionCacheTTL)*time.Millisecond))
	}
	if c.Engine.RemoteFailureDeny {
		opts = append(opts, WithRemoteFailureDeny(true))
	}
	return opts
}

var validOperators = map[Operator]bool{
	OpEquals: true, OpNotEquals: true, OpContains: true, OpNotContains: true,
	OpIn: true, OpNotIn: true, OpGreaterThan: true, OpLessThan: true,
}

// Validate reports every structural problem in the config at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Engine.CacheBackend {
	case "", CacheBackendMemory, CacheBackendRistretto:
	case CacheBackendRedis:
		if c.Engine.RedisURL == "" {
			errs = append(errs, errors.New("engine: redis cache backend needs redis_url"))
		}
	default:
		errs = append(errs, fmt.Errorf("engine: unknown cache backend %q", c.Engine.CacheBackend))
	}
	if c.Engine.DecisionCacheTTL < 0 {
		errs = append(errs, errors.New("engine: decision_cache_ttl_ms must not be negative"))
	}
	seen := make(map[string]bool)
	for i, s := range c.Subjects {
		if s.ID == "" {
			errs = append(errs, fmt.Errorf("subject %d: missing id", i))
			continue
		}
		if seen[s.ID] {
			errs = append(errs, fmt.Errorf("subject %s: duplicate", s.ID))
		}
		seen[s.ID] = true
		ids := make(map[string]bool)
		for j, ep := range s.Permissions {
			where := fmt.Sprintf("subject %s permission %d", s.ID, j)
			if ep.ID != "" {
				if ids[ep.ID] {
					errs = append(errs, fmt.Errorf("%s: duplicate id %s", where, ep.ID))
				}
				ids[ep.ID] = true
			}
			if ep.Permission.Action == "" {
				errs = append(errs, fmt.Errorf("%s: missing action", where))
			}
			if ep.Permission.ResourceType == "" {
				errs = append(errs, fmt.Errorf("%s: missing resource type", where))
			}
			for _, cond := range ep.Conditions {
				if cond.Field == "" {
					errs = append(errs, fmt.Errorf("%s: condition without field", where))
				}
				if !validOperators[cond.Operator] {
					errs = append(errs, fmt.Errorf("%s: unknown operator %q", where, cond.Operator))
				}
			}
		}
	}
	return errors.Join(errs...)
}

// ConfigStats summarizes a config for the CLI.
type ConfigStats struct {
	Subjects    int
	Permissions int
	Grants      int
	Denies      int
	Constrained int
	Conditional int
	Expiring    int
	Inactive    int
}

func (c *Config) Stats() ConfigStats {
	var st ConfigStats
	st.Subjects = len(c.Subjects)
	for _, s := range c.Subjects {
		for _, ep := range s.Permissions {
			st.Permissions++
			if ep.IsGranted {
				st.Grants++
			} else {
				st.Denies++
			}
			if len(ep.ResourceConstraints) > 0 {
				st.Constrained++
			}
			if len(ep.Conditions) > 0 {
				st.Conditional++
			}
			if ep.ExpiresAt != nil {
				st.Expiring++
			}
			if !ep.Permission.IsActive {
				st.Inactive++
			}
		}
	}
	return st
}
