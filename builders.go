package permit

import "time"

// Builders provide a fluent API for creating effective permissions and configs.

// GrantBuilder builds an EffectivePermission
type GrantBuilder struct {
	ep EffectivePermission
}

// NewGrant starts an active, granting binding for action on rt.
func NewGrant(action Action, rt ResourceType) *GrantBuilder {
	return &GrantBuilder{ep: EffectivePermission{
		Permission: Permission{Action: action, ResourceType: rt, IsActive: true},
		IsGranted:  true,
	}}
}

// NewDeny starts an active, explicit deny for action on rt.
func NewDeny(action Action, rt ResourceType) *GrantBuilder {
	b := NewGrant(action, rt)
	b.ep.IsGranted = false
	return b
}

func (b *GrantBuilder) ID(id string) *GrantBuilder           { b.ep.ID = id; return b }
func (b *GrantBuilder) PermissionID(id string) *GrantBuilder { b.ep.Permission.ID = id; return b }
func (b *GrantBuilder) Priority(p int) *GrantBuilder         { b.ep.Priority = p; return b }
func (b *GrantBuilder) Source(s string) *GrantBuilder        { b.ep.Source = s; return b }
func (b *GrantBuilder) Inactive() *GrantBuilder              { b.ep.Permission.IsActive = false; return b }
func (b *GrantBuilder) ExpiresAt(t time.Time) *GrantBuilder  { b.ep.ExpiresAt = &t; return b }

// OnResources adds a constraint limited to the listed resource ids.
func (b *GrantBuilder) OnResources(ids ...string) *GrantBuilder {
	return b.Constraint(ResourceConstraint{ResourceType: b.ep.Permission.ResourceType, ResourceIDs: ids})
}

func (b *GrantBuilder) InDepartments(ids ...string) *GrantBuilder {
	return b.Constraint(ResourceConstraint{ResourceType: b.ep.Permission.ResourceType, DepartmentIDs: ids})
}

func (b *GrantBuilder) InProjects(ids ...string) *GrantBuilder {
	return b.Constraint(ResourceConstraint{ResourceType: b.ep.Permission.ResourceType, ProjectIDs: ids})
}

func (b *GrantBuilder) InOrganizations(ids ...string) *GrantBuilder {
	return b.Constraint(ResourceConstraint{ResourceType: b.ep.Permission.ResourceType, OrganizationIDs: ids})
}

func (b *GrantBuilder) Constraint(rc ResourceConstraint) *GrantBuilder {
	b.ep.ResourceConstraints = append(b.ep.ResourceConstraints, rc)
	return b
}

// When adds a condition; value is converted with ValueOf.
func (b *GrantBuilder) When(field string, op Operator, value any) *GrantBuilder {
	b.ep.Conditions = append(b.ep.Conditions, Condition{Field: field, Operator: op, Value: ValueOf(value)})
	return b
}

func (b *GrantBuilder) Build() EffectivePermission {
	ep := b.ep
	ep.ResourceConstraints = append([]ResourceConstraint(nil), b.ep.ResourceConstraints...)
	ep.Conditions = append([]Condition(nil), b.ep.Conditions...)
	return ep
}

// ConfigBuilder provides fluent API for building configurations
type ConfigBuilder struct {
	cfg *Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{
		cfg: &Config{
			Version: 1,
			Engine: EngineConfig{
				DecisionCacheTTL: DefaultDecisionTTL.Milliseconds(),
				CacheBackend:     CacheBackendMemory,
			},
		},
	}
}

func (b *ConfigBuilder) Version(v uint16) *ConfigBuilder {
	b.cfg.Version = v
	return b
}

// Grant appends eps to subjectID's set, creating the subject if needed.
func (b *ConfigBuilder) Grant(subjectID string, eps ...EffectivePermission) *ConfigBuilder {
	for i := range b.cfg.Subjects {
		if b.cfg.Subjects[i].ID == subjectID {
			b.cfg.Subjects[i].Permissions = append(b.cfg.Subjects[i].Permissions, eps...)
			return b
		}
	}
	b.cfg.Subjects = append(b.cfg.Subjects, SubjectConfig{ID: subjectID, Permissions: append([]EffectivePermission(nil), eps...)})
	return b
}

func (b *ConfigBuilder) EngineSettings(fn func(*EngineConfig)) *ConfigBuilder {
	fn(&b.cfg.Engine)
	return b
}

func (b *ConfigBuilder) Build() *Config {
	return b.cfg
}

func (b *ConfigBuilder) ToYAML() ([]byte, error) {
	return b.cfg.ToYAML()
}

func (b *ConfigBuilder) ToJSON() ([]byte, error) {
	return b.cfg.ToJSON()
}
