package stores

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/oarkflow/permit"
)

// RedisSource stores each subject's permission set as a Redis list of JSON
// bindings (key: perms:{subjectID}). List order is the evaluation order.
type RedisSource struct {
	client redis.Cmdable
	keyFmt string // format string, e.g. "perms:%s"
}

func NewRedisSource(client redis.Cmdable) *RedisSource {
	return &RedisSource{client: client, keyFmt: "perms:%s"}
}

func (r *RedisSource) key(subjectID string) string {
	return fmt.Sprintf(r.keyFmt, subjectID)
}

func (r *RedisSource) Grant(ctx context.Context, subjectID string, eps ...permit.EffectivePermission) error {
	if len(eps) == 0 {
		return nil
	}
	vals := make([]any, 0, len(eps))
	for _, ep := range eps {
		raw, err := json.Marshal(ep)
		if err != nil {
			return err
		}
		vals = append(vals, raw)
	}
	return r.client.RPush(ctx, r.key(subjectID), vals...).Err()
}

// Replace atomically swaps the subject's whole list.
func (r *RedisSource) Replace(ctx context.Context, subjectID string, eps []permit.EffectivePermission) error {
	vals := make([]any, 0, len(eps))
	for _, ep := range eps {
		raw, err := json.Marshal(ep)
		if err != nil {
			return err
		}
		vals = append(vals, raw)
	}
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, r.key(subjectID))
		if len(vals) > 0 {
			p.RPush(ctx, r.key(subjectID), vals...)
		}
		return nil
	})
	return err
}

func (r *RedisSource) GetEffectivePermissions(ctx context.Context, subjectID string) ([]permit.EffectivePermission, error) {
	res, err := r.client.LRange(ctx, r.key(subjectID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]permit.EffectivePermission, 0, len(res))
	for i, raw := range res {
		var ep permit.EffectivePermission
		if err := json.Unmarshal([]byte(raw), &ep); err != nil {
			return nil, fmt.Errorf("decode binding %d for %s: %w", i, subjectID, err)
		}
		out = append(out, ep)
	}
	return out, nil
}
