package permit

import "context"

// Can reports whether the current subject may perform action. Without a
// subject it returns ErrUnauthenticated, so callers can tell an unknown
// subject from a deny.
func (e *Evaluator) Can(ctx context.Context, action Action, rt ResourceType, resourceID string, attrs Context) (bool, error) {
	res, err := e.Check(ctx, CheckRequest{Action: action, ResourceType: rt, ResourceID: resourceID, Context: attrs})
	if err != nil {
		return false, err
	}
	return res.Granted, nil
}

func (e *Evaluator) CanCreate(ctx context.Context, rt ResourceType, resourceID string, attrs Context) (bool, error) {
	return e.Can(ctx, ActionCreate, rt, resourceID, attrs)
}

func (e *Evaluator) CanRead(ctx context.Context, rt ResourceType, resourceID string, attrs Context) (bool, error) {
	return e.Can(ctx, ActionRead, rt, resourceID, attrs)
}

func (e *Evaluator) CanUpdate(ctx context.Context, rt ResourceType, resourceID string, attrs Context) (bool, error) {
	return e.Can(ctx, ActionUpdate, rt, resourceID, attrs)
}

func (e *Evaluator) CanDelete(ctx context.Context, rt ResourceType, resourceID string, attrs Context) (bool, error) {
	return e.Can(ctx, ActionDelete, rt, resourceID, attrs)
}

func (e *Evaluator) CanManage(ctx context.Context, rt ResourceType, resourceID string, attrs Context) (bool, error) {
	return e.Can(ctx, ActionManage, rt, resourceID, attrs)
}

func (e *Evaluator) CanAssign(ctx context.Context, rt ResourceType, resourceID string, attrs Context) (bool, error) {
	return e.Can(ctx, ActionAssign, rt, resourceID, attrs)
}

func (e *Evaluator) CanApprove(ctx context.Context, rt ResourceType, resourceID string, attrs Context) (bool, error) {
	return e.Can(ctx, ActionApprove, rt, resourceID, attrs)
}

func (e *Evaluator) CanExport(ctx context.Context, rt ResourceType, resourceID string, attrs Context) (bool, error) {
	return e.Can(ctx, ActionExport, rt, resourceID, attrs)
}

func (e *Evaluator) CanImport(ctx context.Context, rt ResourceType, resourceID string, attrs Context) (bool, error) {
	return e.Can(ctx, ActionImport, rt, resourceID, attrs)
}

// IsAdmin probes the admin set (by default manage on user, role and
// system-config). It is derived from the same permission set on every call.
func (e *Evaluator) IsAdmin(ctx context.Context) (bool, error) {
	return e.anyProbe(ctx, e.adminProbes)
}

// IsManager is true for admins and for subjects passing any manager probe.
func (e *Evaluator) IsManager(ctx context.Context) (bool, error) {
	admin, err := e.IsAdmin(ctx)
	if err != nil || admin {
		return admin, err
	}
	return e.anyProbe(ctx, e.managerProbes)
}

func (e *Evaluator) anyProbe(ctx context.Context, probes []Probe) (bool, error) {
	for _, p := range probes {
		ok, err := e.Can(ctx, p.Action, p.ResourceType, "", nil)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
