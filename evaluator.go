package permit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/oarkflow/permit/logger"
)

// ============================================================================
// POLICY EVALUATOR
// ============================================================================

// snapshot is an immutable view of the current subject and its permission
// set. It is replaced wholesale, never mutated.
type snapshot struct {
	subjectID string
	perms     []EffectivePermission
	loaded    bool
	id        string
	loadedAt  time.Time
}

// snapshotID fingerprints a subject and its permission set. Identical sets
// get the same id in every process; any difference in the set changes it.
func snapshotID(subjectID string, perms []EffectivePermission) string {
	raw, err := json.Marshal(perms)
	if err != nil {
		return uuid.NewString()
	}
	h := xxhash.New()
	_, _ = h.WriteString(subjectID)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(raw)
	return strconv.FormatUint(h.Sum64(), 16)
}

// Probe is one (action, resource type) pair used by role classification.
type Probe struct {
	Action       Action
	ResourceType ResourceType
}

var (
	defaultAdminProbes = []Probe{
		{ActionManage, ResourceUser},
		{ActionManage, ResourceRole},
		{ActionManage, ResourceSystemConfig},
	}
	defaultManagerProbes = []Probe{
		{ActionAssign, ResourceRole},
		{ActionApprove, ResourceUser},
		{ActionManage, ResourceDepartment},
		{ActionManage, ResourceProject},
	}
)

// CacheStats counts decision cache outcomes since the evaluator was built.
type CacheStats struct {
	Hits   uint64
	Misses uint64
}

// Evaluator answers permission checks for one subject at a time.
//
// Checks read an immutable snapshot and never block on writers. SetSubject,
// Load and Refresh build a new snapshot, clear the decision cache and swap
// the snapshot in. Cache keys carry the snapshot fingerprint, so a check
// still running against the old set cannot serve or poison entries for a
// different one, whether in this process or another sharing the store.
type Evaluator struct {
	source PermissionSource
	remote RemoteChecker
	cache  *ResultCache
	store  DecisionStore
	ttl    time.Duration

	state   atomic.Pointer[snapshot]
	writeMu sync.Mutex

	hits   atomic.Uint64
	misses atomic.Uint64

	logger            logger.Logger
	traceIDFunc       logger.TraceIDFunc
	now               nowFunc
	remoteFailureDeny bool
	adminProbes       []Probe
	managerProbes     []Probe
}

// Option configures an Evaluator.
type Option func(*Evaluator) error

// NewEvaluator builds an evaluator over source. No subject is established
// until SetSubject or Load is called.
func NewEvaluator(source PermissionSource, opts ...Option) (*Evaluator, error) {
	if source == nil {
		return nil, ErrSourceRequired
	}
	e := &Evaluator{
		source:        source,
		ttl:           DefaultDecisionTTL,
		logger:        logger.NewNullLogger(),
		traceIDFunc:   uuid.NewString,
		now:           time.Now,
		adminProbes:   defaultAdminProbes,
		managerProbes: defaultManagerProbes,
	}
	if rc, ok := source.(RemoteChecker); ok {
		e.remote = rc
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.cache = NewResultCache(e.store, e.ttl)
	e.cache.now = e.now
	e.cache.logger = e.logger
	e.state.Store(&snapshot{})
	return e, nil
}

// WithRemoteChecker sets the authority used by CheckBulkRemote.
func WithRemoteChecker(rc RemoteChecker) Option {
	return func(e *Evaluator) error {
		e.remote = rc
		return nil
	}
}

// WithDecisionStore replaces the in-memory decision cache store.
func WithDecisionStore(s DecisionStore) Option {
	return func(e *Evaluator) error {
		e.store = s
		return nil
	}
}

// WithDecisionTTL overrides the decision cache lifetime.
func WithDecisionTTL(d time.Duration) Option {
	return func(e *Evaluator) error {
		if d <= 0 {
			return fmt.Errorf("decision ttl must be positive, got %s", d)
		}
		e.ttl = d
		return nil
	}
}

// WithRemoteFailureDeny makes CheckBulkRemote report a failed remote call as
// an all-deny result instead of an error.
func WithRemoteFailureDeny(deny bool) Option {
	return func(e *Evaluator) error {
		e.remoteFailureDeny = deny
		return nil
	}
}

func WithAdminProbes(p ...Probe) Option {
	return func(e *Evaluator) error {
		e.adminProbes = append([]Probe(nil), p...)
		return nil
	}
}

func WithManagerProbes(p ...Probe) Option {
	return func(e *Evaluator) error {
		e.managerProbes = append([]Probe(nil), p...)
		return nil
	}
}

// WithClock replaces the time source used for expiry and cache freshness.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) error {
		e.now = now
		return nil
	}
}

// Subject returns the established subject, or "".
func (e *Evaluator) Subject() string {
	return e.state.Load().subjectID
}

// Permissions returns a copy of the loaded permission set.
func (e *Evaluator) Permissions() []EffectivePermission {
	snap := e.state.Load()
	return append([]EffectivePermission(nil), snap.perms...)
}

// Loaded reports whether a permission set is installed for the subject.
func (e *Evaluator) Loaded() bool {
	return e.state.Load().loaded
}

// LoadedAt reports when the current snapshot was installed.
func (e *Evaluator) LoadedAt() time.Time {
	return e.state.Load().loadedAt
}

func (e *Evaluator) CacheStats() CacheStats {
	return CacheStats{Hits: e.hits.Load(), Misses: e.misses.Load()}
}

// install swaps in a new snapshot and clears the decision cache.
func (e *Evaluator) install(ctx context.Context, subjectID string, perms []EffectivePermission, loaded bool) {
	snap := &snapshot{
		subjectID: subjectID,
		perms:     append([]EffectivePermission(nil), perms...),
		loaded:    loaded,
		loadedAt:  e.now(),
	}
	if loaded {
		snap.id = snapshotID(subjectID, snap.perms)
	}
	e.cache.Clear(ctx)
	e.state.Store(snap)
}

// SetSubject establishes subjectID, clears the cache and loads its
// permission set from the source. If loading fails the subject stays
// established with no permissions loaded, and every check denies.
func (e *Evaluator) SetSubject(ctx context.Context, subjectID string) error {
	if subjectID == "" {
		e.ClearSubject(ctx)
		return nil
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	e.install(ctx, subjectID, nil, false)
	perms, err := e.source.GetEffectivePermissions(ctx, subjectID)
	if err != nil {
		e.logger.Error("load permissions failed", "subject", subjectID, "error", err.Error())
		return fmt.Errorf("load permissions for %s: %w", subjectID, err)
	}
	e.install(ctx, subjectID, perms, true)
	e.logger.Info("subject established", "subject", subjectID, "permissions", len(perms))
	return nil
}

// ClearSubject drops the subject and its permissions.
func (e *Evaluator) ClearSubject(ctx context.Context) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	prev := e.state.Load().subjectID
	e.install(ctx, "", nil, false)
	if prev != "" {
		e.logger.Info("subject cleared", "subject", prev)
	}
}

// Load installs an externally fetched permission set for subjectID,
// replacing whatever was loaded before.
func (e *Evaluator) Load(ctx context.Context, subjectID string, perms []EffectivePermission) error {
	if subjectID == "" {
		return ErrUnauthenticated
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	e.install(ctx, subjectID, perms, true)
	e.logger.Info("permissions loaded", "subject", subjectID, "permissions", len(perms))
	return nil
}

// Refresh reloads the current subject's permission set and clears the
// cache. Calling it repeatedly has the same effect as calling it once.
func (e *Evaluator) Refresh(ctx context.Context) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	subjectID := e.state.Load().subjectID
	if subjectID == "" {
		return ErrUnauthenticated
	}
	perms, err := e.source.GetEffectivePermissions(ctx, subjectID)
	if err != nil {
		e.logger.Error("refresh permissions failed", "subject", subjectID, "error", err.Error())
		return fmt.Errorf("refresh permissions for %s: %w", subjectID, err)
	}
	e.install(ctx, subjectID, perms, true)
	e.logger.Info("permissions refreshed", "subject", subjectID, "permissions", len(perms))
	return nil
}

// Check decides a single request for the current subject. The only error
// is ErrUnauthenticated; every policy outcome is a result.
func (e *Evaluator) Check(ctx context.Context, req CheckRequest) (*CheckResult, error) {
	snap := e.state.Load()
	if snap.subjectID == "" {
		return nil, ErrUnauthenticated
	}
	if !snap.loaded {
		return &CheckResult{Reason: ReasonNotLoaded}, nil
	}
	traceID := e.traceIDFunc()
	key := newCacheKey(snap.id, snap.subjectID, req)
	if granted, ok := e.cache.Get(ctx, key); ok {
		e.hits.Add(1)
		res := fromCached(granted, req, snap.perms, e.now())
		e.logDecision(traceID, snap.subjectID, req, res, true)
		return res, nil
	}
	e.misses.Add(1)
	res := Decide(req, snap.perms, e.now())
	e.cache.Put(ctx, key, res.Granted)
	e.logDecision(traceID, snap.subjectID, req, res, false)
	return res, nil
}

func (e *Evaluator) logDecision(traceID, subjectID string, req CheckRequest, res *CheckResult, cached bool) {
	e.logger.Debug("permission check",
		"trace_id", traceID,
		"subject", subjectID,
		"action", string(req.Action),
		"resource_type", string(req.ResourceType),
		"resource_id", req.ResourceID,
		"granted", res.Granted,
		"reason", res.Reason,
		"matching", len(res.MatchingPermissions),
		"cached", cached,
	)
}

// CheckMany runs Check for each request independently.
func (e *Evaluator) CheckMany(ctx context.Context, reqs []CheckRequest) ([]CheckResult, error) {
	out := make([]CheckResult, len(reqs))
	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := e.Check(ctx, req)
		if err != nil {
			return nil, err
		}
		out[i] = *res
	}
	return out, nil
}

// CheckBulkRemote asks the remote authority to decide reqs, bypassing the
// local permission set. Remote failures are returned wrapped in
// ErrRemoteCheck unless WithRemoteFailureDeny is set.
func (e *Evaluator) CheckBulkRemote(ctx context.Context, reqs []CheckRequest) (*BulkCheckResult, error) {
	subjectID := e.state.Load().subjectID
	if subjectID == "" {
		return nil, ErrUnauthenticated
	}
	if e.remote == nil {
		return nil, ErrRemoteUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	traceID := e.traceIDFunc()
	res, err := e.remote.BulkCheck(ctx, subjectID, reqs)
	if err == nil && res != nil && len(res.Results) != len(reqs) {
		err = fmt.Errorf("expected %d results, got %d", len(reqs), len(res.Results))
	}
	if err == nil && res == nil {
		err = fmt.Errorf("empty response")
	}
	if err != nil {
		e.logger.Error("remote bulk check failed", "trace_id", traceID, "subject", subjectID, "requests", len(reqs), "error", err.Error())
		if !e.remoteFailureDeny {
			return nil, fmt.Errorf("%w: %w", ErrRemoteCheck, err)
		}
		denied := &BulkCheckResult{SubjectID: subjectID, Results: make([]CheckResult, len(reqs)), CheckedAt: e.now()}
		for i := range denied.Results {
			denied.Results[i] = CheckResult{Reason: ReasonRemoteFailure}
		}
		return denied, nil
	}
	e.logger.Debug("remote bulk check", "trace_id", traceID, "subject", subjectID, "requests", len(reqs))
	return res, nil
}
