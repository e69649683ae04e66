package permit

import (
	"errors"
	"time"
)

// ============================================================================
// CORE TYPES
// ============================================================================

// Action is the verb half of a permission.
type Action string

const (
	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionManage  Action = "manage"
	ActionAssign  Action = "assign"
	ActionApprove Action = "approve"
	ActionExport  Action = "export"
	ActionImport  Action = "import"
)

// ResourceType is the noun half of a permission.
type ResourceType string

const (
	ResourceUser         ResourceType = "user"
	ResourceRole         ResourceType = "role"
	ResourcePermission   ResourceType = "permission"
	ResourceSystemConfig ResourceType = "system-config"
	ResourceOrganization ResourceType = "organization"
	ResourceDepartment   ResourceType = "department"
	ResourceProject      ResourceType = "project"
	ResourceDocument     ResourceType = "document"
	ResourceReport       ResourceType = "report"
	ResourceAuditLog     ResourceType = "audit-log"
)

// Decision reasons.
const (
	ReasonGranted       = "Permission granted"
	ReasonDenied        = "Permission denied"
	ReasonNoMatch       = "No matching permission"
	ReasonNotLoaded     = "No permissions loaded"
	ReasonRemoteFailure = "Remote check failed"
)

// DefaultDecisionTTL is how long a cached decision stays valid.
const DefaultDecisionTTL = 5 * time.Minute

var (
	// ErrUnauthenticated is returned when a check runs before a subject is established.
	ErrUnauthenticated = errors.New("permit: no subject established")
	// ErrRemoteCheck wraps failures of the remote authority.
	ErrRemoteCheck = errors.New("permit: remote check failed")
	// ErrRemoteUnavailable is returned by CheckBulkRemote when no RemoteChecker is configured.
	ErrRemoteUnavailable = errors.New("permit: no remote checker configured")
	// ErrSourceRequired is returned when an evaluator is built without a permission source.
	ErrSourceRequired = errors.New("permit: permission source required")
)

// Permission is a rule template: one action on one resource type.
type Permission struct {
	ID           string       `json:"id,omitempty" yaml:"id,omitempty"`
	Action       Action       `json:"action" yaml:"action"`
	ResourceType ResourceType `json:"resource_type" yaml:"resource_type"`
	Description  string       `json:"description,omitempty" yaml:"description,omitempty"`
	IsActive     bool         `json:"is_active" yaml:"is_active"`
}

// ResourceConstraint scopes a permission to specific resource instances,
// either by explicit id or by department/project/organization attribute.
type ResourceConstraint struct {
	ResourceType    ResourceType `json:"resource_type,omitempty" yaml:"resource_type,omitempty"`
	ResourceIDs     []string     `json:"resource_ids,omitempty" yaml:"resource_ids,omitempty"`
	DepartmentIDs   []string     `json:"department_ids,omitempty" yaml:"department_ids,omitempty"`
	ProjectIDs      []string     `json:"project_ids,omitempty" yaml:"project_ids,omitempty"`
	OrganizationIDs []string     `json:"organization_ids,omitempty" yaml:"organization_ids,omitempty"`
}

// Operator is a condition comparison operator.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
)

// Condition is a (field, operator, value) predicate evaluated against the
// request context.
type Condition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    Value    `json:"value" yaml:"value"`
}

// EffectivePermission binds a Permission to a subject as a grant or an
// explicit deny. It is treated as immutable once handed to an Evaluator.
type EffectivePermission struct {
	ID                  string               `json:"id,omitempty" yaml:"id,omitempty"`
	Permission          Permission           `json:"permission" yaml:"permission"`
	IsGranted           bool                 `json:"is_granted" yaml:"is_granted"`
	Priority            int                  `json:"priority" yaml:"priority"`
	ExpiresAt           *time.Time           `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	ResourceConstraints []ResourceConstraint `json:"resource_constraints,omitempty" yaml:"resource_constraints,omitempty"`
	Conditions          []Condition          `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Source              string               `json:"source,omitempty" yaml:"source,omitempty"`
}

// Expired reports whether the binding is past its expiry at now.
func (ep *EffectivePermission) Expired(now time.Time) bool {
	return ep.ExpiresAt != nil && !ep.ExpiresAt.After(now)
}

// CheckRequest asks whether the current subject may perform Action on a
// resource of ResourceType, optionally a specific ResourceID.
type CheckRequest struct {
	Action       Action       `json:"action" yaml:"action"`
	ResourceType ResourceType `json:"resource_type" yaml:"resource_type"`
	ResourceID   string       `json:"resource_id,omitempty" yaml:"resource_id,omitempty"`
	Context      Context      `json:"context,omitempty" yaml:"context,omitempty"`
}

// CheckResult is the outcome of a single check. MatchingPermissions lists
// every binding that matched action and resource type, whether or not it
// passed its constraints and conditions.
type CheckResult struct {
	Granted             bool                  `json:"granted"`
	Reason              string                `json:"reason"`
	MatchingPermissions []EffectivePermission `json:"matching_permissions,omitempty"`
}

// BulkCheckResult is returned by the remote authority.
type BulkCheckResult struct {
	SubjectID string        `json:"subject_id"`
	Results   []CheckResult `json:"results"`
	CheckedAt time.Time     `json:"checked_at"`
}
