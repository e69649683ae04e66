package permit

import "time"

// MatchRules returns, in their original order, the bindings whose
// permission has the request's action and resource type, is active, and
// has not expired at now. An empty result is a normal outcome.
func MatchRules(req CheckRequest, perms []EffectivePermission, now time.Time) []EffectivePermission {
	var out []EffectivePermission
	for i := range perms {
		ep := &perms[i]
		if ep.Permission.Action != req.Action || ep.Permission.ResourceType != req.ResourceType {
			continue
		}
		if !ep.Permission.IsActive || ep.Expired(now) {
			continue
		}
		out = append(out, *ep)
	}
	return out
}

// applicable narrows matched bindings to those whose resource constraints
// and conditions hold for the request.
func applicable(req CheckRequest, matched []EffectivePermission) []EffectivePermission {
	out := make([]EffectivePermission, 0, len(matched))
	for _, ep := range matched {
		if !SatisfiesConstraints(ep, req.ResourceID, req.Context) {
			continue
		}
		if !SatisfiesConditions(ep.Conditions, req.Context) {
			continue
		}
		out = append(out, ep)
	}
	return out
}
