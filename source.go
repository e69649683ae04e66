package permit

import "context"

// PermissionSource supplies a subject's resolved permission set.
type PermissionSource interface {
	GetEffectivePermissions(ctx context.Context, subjectID string) ([]EffectivePermission, error)
}

// RemoteChecker evaluates requests on an external authority instead of the
// locally cached permission set.
type RemoteChecker interface {
	BulkCheck(ctx context.Context, subjectID string, reqs []CheckRequest) (*BulkCheckResult, error)
}

// PermissionSourceFunc adapts a function to PermissionSource.
type PermissionSourceFunc func(ctx context.Context, subjectID string) ([]EffectivePermission, error)

func (f PermissionSourceFunc) GetEffectivePermissions(ctx context.Context, subjectID string) ([]EffectivePermission, error) {
	return f(ctx, subjectID)
}
