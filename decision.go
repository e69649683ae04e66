package permit

import (
	"sort"
	"time"
)

// Resolve picks the decision from the bindings that passed matching,
// constraints and conditions. Entries are ordered by priority, highest
// first, keeping their original order on ties; the first entry decides.
// matching is reported back unchanged as MatchingPermissions.
func Resolve(applicable, matching []EffectivePermission) *CheckResult {
	res := &CheckResult{MatchingPermissions: matching}
	if len(applicable) == 0 {
		res.Reason = ReasonNoMatch
		return res
	}
	sorted := make([]EffectivePermission, len(applicable))
	copy(sorted, applicable)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})
	if sorted[0].IsGranted {
		res.Granted = true
		res.Reason = ReasonGranted
	} else {
		res.Reason = ReasonDenied
	}
	return res
}

// Decide runs matching, constraint and condition filtering, and resolution
// for one request against perms at time now. It does not touch any cache.
func Decide(req CheckRequest, perms []EffectivePermission, now time.Time) *CheckResult {
	matching := MatchRules(req, perms, now)
	return Resolve(applicable(req, matching), matching)
}

// fromCached rebuilds a result for a cached decision. The reason follows the
// stored boolean and the matching list comes from a fresh match pass.
func fromCached(granted bool, req CheckRequest, perms []EffectivePermission, now time.Time) *CheckResult {
	matching := MatchRules(req, perms, now)
	res := &CheckResult{Granted: granted, MatchingPermissions: matching}
	switch {
	case granted:
		res.Reason = ReasonGranted
	case len(matching) == 0:
		res.Reason = ReasonNoMatch
	default:
		res.Reason = ReasonDenied
	}
	return res
}
