package stores

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oarkflow/permit"
)

// MemorySource keeps permission sets in memory for tests and local
// development. It also answers bulk checks by evaluating its own data, so
// it can stand in for a remote authority.
type MemorySource struct {
	mu     sync.RWMutex
	grants map[string][]permit.EffectivePermission
	now    func() time.Time
}

func NewMemorySource() *MemorySource {
	return &MemorySource{grants: make(map[string][]permit.EffectivePermission), now: time.Now}
}

// NewMemorySourceFromConfig seeds a source with the subjects in cfg.
func NewMemorySourceFromConfig(cfg *permit.Config) *MemorySource {
	s := NewMemorySource()
	for _, sub := range cfg.Subjects {
		s.grants[sub.ID] = cloneGrants(sub.Permissions)
	}
	return s
}

// Grant appends bindings to subjectID's set, keeping insertion order.
func (s *MemorySource) Grant(subjectID string, eps ...permit.EffectivePermission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[subjectID] = append(s.grants[subjectID], eps...)
}

// Replace swaps subjectID's whole set.
func (s *MemorySource) Replace(subjectID string, eps []permit.EffectivePermission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[subjectID] = cloneGrants(eps)
}

// Revoke removes the binding with the given id from subjectID's set.
func (s *MemorySource) Revoke(subjectID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.grants[subjectID]
	for i := range cur {
		if cur[i].ID == id {
			next := make([]permit.EffectivePermission, 0, len(cur)-1)
			next = append(next, cur[:i]...)
			s.grants[subjectID] = append(next, cur[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("permission %s not granted to %s", id, subjectID)
}

func (s *MemorySource) Subjects() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.grants))
	for id := range s.grants {
		out = append(out, id)
	}
	return out
}

func (s *MemorySource) GetEffectivePermissions(ctx context.Context, subjectID string) ([]permit.EffectivePermission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneGrants(s.grants[subjectID]), nil
}

// BulkCheck decides every request against the stored set, uncached.
func (s *MemorySource) BulkCheck(ctx context.Context, subjectID string, reqs []permit.CheckRequest) (*permit.BulkCheckResult, error) {
	perms, err := s.GetEffectivePermissions(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := &permit.BulkCheckResult{SubjectID: subjectID, Results: make([]permit.CheckResult, len(reqs)), CheckedAt: now}
	for i, req := range reqs {
		out.Results[i] = *permit.Decide(req, perms, now)
	}
	return out, nil
}
