package stores

import (
	"fmt"
	"strings"
	"time"

	"github.com/oarkflow/date"

	"github.com/oarkflow/permit"
)

func parseFlexibleTime(s string) (time.Time, error) {
	return date.Parse(s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// timeOrNil renders an optional expiry for a nullable TEXT column.
func timeOrNil(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// scanTime accepts whatever the driver hands back for a timestamp column.
// NULL and blank mean no expiry; anything else that does not parse is an
// error, never a permanent grant.
func scanTime(raw any) (*time.Time, error) {
	var t time.Time
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case time.Time:
		t = v
	case string, []byte:
		text := strings.TrimSpace(fmt.Sprintf("%s", v))
		if text == "" {
			return nil, nil
		}
		parsed, err := parseFlexibleTime(text)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %q: %w", text, err)
		}
		t = parsed
	default:
		return nil, fmt.Errorf("unsupported timestamp type %T", raw)
	}
	return &t, nil
}

func cloneGrants(in []permit.EffectivePermission) []permit.EffectivePermission {
	if in == nil {
		return nil
	}
	out := make([]permit.EffectivePermission, len(in))
	copy(out, in)
	return out
}
