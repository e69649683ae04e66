package stores

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/oarkflow/squealx"

	"github.com/oarkflow/permit"
)

// SQLSource reads and writes permission sets through squealx. Bindings are
// returned in insertion order so that equal-priority ties resolve the same
// way every time.
type SQLSource struct {
	db *squealx.DB
}

func NewSQLSource(db *squealx.DB) *SQLSource {
	return &SQLSource{db: db}
}

func permissionID(p permit.Permission) string {
	if p.ID != "" {
		return p.ID
	}
	return string(p.Action) + ":" + string(p.ResourceType)
}

// UpsertPermission creates or replaces a permission template.
func (s *SQLSource) UpsertPermission(ctx context.Context, p permit.Permission) error {
	q := `INSERT INTO permissions(id, action, resource_type, description, is_active) VALUES(:id, :action, :resource_type, :description, :is_active)
ON CONFLICT(id) DO UPDATE SET action=excluded.action, resource_type=excluded.resource_type, description=excluded.description, is_active=excluded.is_active`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":            permissionID(p),
		"action":        string(p.Action),
		"resource_type": string(p.ResourceType),
		"description":   p.Description,
		"is_active":     boolToInt(p.IsActive),
	})
	return err
}

// SetPermissionActive toggles a permission template for every subject bound to it.
func (s *SQLSource) SetPermissionActive(ctx context.Context, id string, active bool) error {
	q := `UPDATE permissions SET is_active=:is_active WHERE id=:id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id, "is_active": boolToInt(active)})
	return err
}

// Grant binds ep to subjectID, creating its permission template if needed.
// It returns the binding id.
func (s *SQLSource) Grant(ctx context.Context, subjectID string, ep permit.EffectivePermission) (string, error) {
	if err := s.UpsertPermission(ctx, ep.Permission); err != nil {
		return "", fmt.Errorf("upsert permission: %w", err)
	}
	id := ep.ID
	if id == "" {
		id = uuid.NewString()
	}
	constraints, err := json.Marshal(ep.ResourceConstraints)
	if err != nil {
		return "", err
	}
	conds := ep.Conditions
	if conds == nil {
		conds = []permit.Condition{}
	}
	conditions, err := json.Marshal(conds)
	if err != nil {
		return "", err
	}
	q := `INSERT INTO effective_permissions(id, seq, subject_id, permission_id, is_granted, priority, expires_at, constraints_json, conditions_json, source)
VALUES(:id, (SELECT COALESCE(MAX(seq), 0) + 1 FROM effective_permissions), :subject_id, :permission_id, :is_granted, :priority, :expires_at, :constraints_json, :conditions_json, :source)`
	_, err = s.db.NamedExecContext(ctx, q, map[string]any{
		"id":               id,
		"subject_id":       subjectID,
		"permission_id":    permissionID(ep.Permission),
		"is_granted":       boolToInt(ep.IsGranted),
		"priority":         ep.Priority,
		"expires_at":       timeOrNil(ep.ExpiresAt),
		"constraints_json": string(constraints),
		"conditions_json":  string(conditions),
		"source":           ep.Source,
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *SQLSource) Revoke(ctx context.Context, id string) error {
	q := `DELETE FROM effective_permissions WHERE id = :id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id})
	return err
}

func (s *SQLSource) RevokeSubject(ctx context.Context, subjectID string) error {
	q := `DELETE FROM effective_permissions WHERE subject_id = :subject_id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"subject_id": subjectID})
	return err
}

func (s *SQLSource) GetEffectivePermissions(ctx context.Context, subjectID string) ([]permit.EffectivePermission, error) {
	q := `SELECT ep.id, ep.is_granted, ep.priority, ep.expires_at, ep.constraints_json, ep.conditions_json, ep.source,
       p.id, p.action, p.resource_type, p.description, p.is_active
FROM effective_permissions ep JOIN permissions p ON p.id = ep.permission_id
WHERE ep.subject_id = :subject_id ORDER BY ep.seq`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"subject_id": subjectID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]permit.EffectivePermission, 0)
	for r.Next() {
		var (
			id, constraintsJSON, conditionsJSON, source string
			permID, action, resourceType, desc    string
			granted, priority, active             int64
			expiresRaw                            any
		)
		if err := r.Scan(&id, &granted, &priority, &expiresRaw, &constraintsJSON, &conditionsJSON, &source,
			&permID, &action, &resourceType, &desc, &active); err != nil {
			return nil, err
		}
		expiresAt, err := scanTime(expiresRaw)
		if err != nil {
			return nil, fmt.Errorf("binding %s expires_at: %w", id, err)
		}
		ep := permit.EffectivePermission{
			ID: id,
			Permission: permit.Permission{
				ID:           permID,
				Action:       permit.Action(action),
				ResourceType: permit.ResourceType(resourceType),
				Description:  desc,
				IsActive:     active != 0,
			},
			IsGranted: granted != 0,
			Priority:  int(priority),
			ExpiresAt: expiresAt,
			Source:    source,
		}
		if constraintsJSON != "" {
			if err := json.Unmarshal([]byte(constraintsJSON), &ep.ResourceConstraints); err != nil {
				return nil, fmt.Errorf("binding %s constraints: %w", id, err)
			}
		}
		if conditionsJSON != "" {
			if err := json.Unmarshal([]byte(conditionsJSON), &ep.Conditions); err != nil {
				return nil, fmt.Errorf("binding %s conditions: %w", id, err)
			}
			if len(ep.Conditions) == 0 {
				ep.Conditions = nil
			}
		}
		out = append(out, ep)
	}
	return out, r.Err()
}
