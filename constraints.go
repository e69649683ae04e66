package permit

// attribute lists and the context keys they are compared against. The
// snake_case alias is consulted when the camelCase key is absent.
var constraintAttributes = []struct {
	key   string
	alias string
	ids   func(ResourceConstraint) []string
}{
	{"departmentId", "department_id", func(rc ResourceConstraint) []string { return rc.DepartmentIDs }},
	{"projectId", "project_id", func(rc ResourceConstraint) []string { return rc.ProjectIDs }},
	{"organizationId", "organization_id", func(rc ResourceConstraint) []string { return rc.OrganizationIDs }},
}

// SatisfiesConstraints reports whether ep's resource constraints admit the
// resource identified by resourceID and ctx. A binding with no constraints
// applies to every instance; otherwise any one passing constraint is enough.
func SatisfiesConstraints(ep EffectivePermission, resourceID string, ctx Context) bool {
	if len(ep.ResourceConstraints) == 0 {
		return true
	}
	for _, rc := range ep.ResourceConstraints {
		if constraintPasses(rc, resourceID, ctx) {
			return true
		}
	}
	return false
}

// constraintPasses fails closed: a constraint that neither lists the
// resource id nor matches a context attribute only passes for checks that
// name no resource.
func constraintPasses(rc ResourceConstraint, resourceID string, ctx Context) bool {
	if len(rc.ResourceIDs) > 0 {
		if resourceID != "" && containsString(rc.ResourceIDs, resourceID) {
			return true
		}
	} else if attributeMatch(rc, ctx) {
		return true
	}
	return resourceID == ""
}

func attributeMatch(rc ResourceConstraint, ctx Context) bool {
	for _, attr := range constraintAttributes {
		ids := attr.ids(rc)
		if len(ids) == 0 {
			continue
		}
		v, ok := ctx.Get(attr.key)
		if !ok {
			v, ok = ctx.Get(attr.alias)
		}
		if !ok || v.IsNull() {
			continue
		}
		if v.Kind() == KindList {
			for _, it := range v.Strings() {
				if containsString(ids, it) {
					return true
				}
			}
			continue
		}
		if containsString(ids, v.String()) {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
