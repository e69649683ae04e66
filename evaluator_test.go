package permit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oarkflow/permit/logger"
)

// allowed unwraps a predicate result, failing the test on error.
func allowed(t *testing.T) func(bool, error) bool {
	return func(ok bool, err error) bool {
		t.Helper()
		if err != nil {
			t.Fatalf("predicate: %v", err)
		}
		return ok
	}
}

// mapSource serves fixed permission sets and counts loads.
type mapSource struct {
	mu    sync.Mutex
	sets  map[string][]EffectivePermission
	err   error
	loads int
}

func newMapSource() *mapSource {
	return &mapSource{sets: make(map[string][]EffectivePermission)}
}

func (s *mapSource) set(subject string, eps ...EffectivePermission) {
	s.mu.Lock()
	s.sets[subject] = eps
	s.mu.Unlock()
}

func (s *mapSource) GetEffectivePermissions(_ context.Context, subjectID string) ([]EffectivePermission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.err != nil {
		return nil, s.err
	}
	return append([]EffectivePermission(nil), s.sets[subjectID]...), nil
}

type fakeRemote struct {
	res   *BulkCheckResult
	err   error
	calls int
}

func (f *fakeRemote) BulkCheck(_ context.Context, subjectID string, reqs []CheckRequest) (*BulkCheckResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.res != nil {
		return f.res, nil
	}
	out := &BulkCheckResult{SubjectID: subjectID, Results: make([]CheckResult, len(reqs))}
	for i := range reqs {
		out.Results[i] = CheckResult{Granted: true, Reason: ReasonGranted}
	}
	return out, nil
}

func newTestEvaluator(t *testing.T, src PermissionSource, subject string, opts ...Option) *Evaluator {
	t.Helper()
	ev, err := NewEvaluator(src, opts...)
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}
	if subject != "" {
		if err := ev.SetSubject(context.Background(), subject); err != nil {
			t.Fatalf("set subject: %v", err)
		}
	}
	return ev
}

func readDoc(id string) CheckRequest {
	return CheckRequest{Action: ActionRead, ResourceType: ResourceDocument, ResourceID: id}
}

func TestNewEvaluatorValidation(t *testing.T) {
	if _, err := NewEvaluator(nil); !errors.Is(err, ErrSourceRequired) {
		t.Fatalf("expected ErrSourceRequired, got %v", err)
	}
	if _, err := NewEvaluator(newMapSource(), WithDecisionTTL(0)); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
}

func TestCheckWithoutSubject(t *testing.T) {
	ev := newTestEvaluator(t, newMapSource(), "")
	if _, err := ev.Check(context.Background(), readDoc("")); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if ok, err := ev.CanRead(context.Background(), ResourceDocument, "", nil); ok || !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("predicates must report a missing subject, got %v %v", ok, err)
	}
	if err := ev.Refresh(context.Background()); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("refresh without subject: %v", err)
	}
	if ok, err := ev.IsAdmin(context.Background()); ok || !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("IsAdmin without subject: %v %v", ok, err)
	}
	if ok, err := ev.IsManager(context.Background()); ok || !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("IsManager without subject: %v %v", ok, err)
	}
	ev.ClearSubject(context.Background())
	if _, err := ev.Can(context.Background(), ActionExport, ResourceReport, "", nil); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("cleared subject must report ErrUnauthenticated, got %v", err)
	}
}

func TestCheckBeforeLoadDenies(t *testing.T) {
	src := newMapSource()
	src.err = errors.New("backend down")
	ev := newTestEvaluator(t, src, "")
	if err := ev.SetSubject(context.Background(), "alice"); err == nil {
		t.Fatalf("expected load error")
	}
	if ev.Subject() != "alice" || ev.Loaded() {
		t.Fatalf("subject should be set but not loaded: %q %v", ev.Subject(), ev.Loaded())
	}
	res, err := ev.Check(context.Background(), readDoc("d1"))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.Granted || res.Reason != ReasonNotLoaded {
		t.Fatalf("expected not-loaded deny, got %+v", res)
	}

	src.err = nil
	src.set("alice", NewGrant(ActionRead, ResourceDocument).Build())
	if err := ev.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !allowed(t)(ev.CanRead(context.Background(), ResourceDocument, "d1", nil)) {
		t.Fatalf("expected grant after refresh")
	}
}

func TestGrantAndNoMatch(t *testing.T) {
	src := newMapSource()
	src.set("alice", NewGrant(ActionRead, ResourceDocument).ID("b1").Build())
	ev := newTestEvaluator(t, src, "alice")
	ctx := context.Background()

	res, _ := ev.Check(ctx, readDoc("d1"))
	if !res.Granted || res.Reason != ReasonGranted || len(res.MatchingPermissions) != 1 {
		t.Fatalf("expected grant with one match, got %+v", res)
	}
	res, _ = ev.Check(ctx, CheckRequest{Action: ActionDelete, ResourceType: ResourceDocument, ResourceID: "d1"})
	if res.Granted || res.Reason != ReasonNoMatch || len(res.MatchingPermissions) != 0 {
		t.Fatalf("expected no match, got %+v", res)
	}
}

func TestHigherPriorityDenyWins(t *testing.T) {
	src := newMapSource()
	src.set("alice",
		NewGrant(ActionRead, ResourceDocument).Priority(1).Build(),
		NewDeny(ActionRead, ResourceDocument).Priority(10).Build(),
	)
	ev := newTestEvaluator(t, src, "alice")
	res, _ := ev.Check(context.Background(), readDoc("d1"))
	if res.Granted || res.Reason != ReasonDenied {
		t.Fatalf("expected deny, got %+v", res)
	}
	if len(res.MatchingPermissions) != 2 {
		t.Fatalf("expected both bindings reported, got %d", len(res.MatchingPermissions))
	}
}

func TestEqualPriorityKeepsSourceOrder(t *testing.T) {
	grant := NewGrant(ActionRead, ResourceDocument).Priority(5).Build()
	deny := NewDeny(ActionRead, ResourceDocument).Priority(5).Build()

	src := newMapSource()
	src.set("a", deny, grant)
	src.set("b", grant, deny)
	ev := newTestEvaluator(t, src, "a")
	ctx := context.Background()
	if allowed(t)(ev.CanRead(ctx, ResourceDocument, "", nil)) {
		t.Fatalf("first listed deny should decide")
	}
	if err := ev.SetSubject(ctx, "b"); err != nil {
		t.Fatalf("set subject: %v", err)
	}
	if !allowed(t)(ev.CanRead(ctx, ResourceDocument, "", nil)) {
		t.Fatalf("first listed grant should decide")
	}
}

func TestExpiredAndInactiveBindingsIgnored(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := newMapSource()
	src.set("alice",
		NewDeny(ActionRead, ResourceDocument).Priority(100).ExpiresAt(now.Add(-time.Minute)).Build(),
		NewDeny(ActionRead, ResourceDocument).Priority(50).Inactive().Build(),
		NewGrant(ActionRead, ResourceDocument).ExpiresAt(now.Add(time.Hour)).Build(),
	)
	ev := newTestEvaluator(t, src, "alice", WithClock(func() time.Time { return now }))
	res, _ := ev.Check(context.Background(), readDoc("d1"))
	if !res.Granted {
		t.Fatalf("expected grant, got %+v", res)
	}
	if len(res.MatchingPermissions) != 1 {
		t.Fatalf("expired and inactive bindings must not be reported, got %d", len(res.MatchingPermissions))
	}
}

func TestExpiryBoundaryIsExclusive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := newMapSource()
	src.set("alice", NewGrant(ActionRead, ResourceDocument).ExpiresAt(now).Build())
	ev := newTestEvaluator(t, src, "alice", WithClock(func() time.Time { return now }))
	if allowed(t)(ev.CanRead(context.Background(), ResourceDocument, "d1", nil)) {
		t.Fatalf("a binding expiring exactly now is expired")
	}
}

func TestConstrainedGrant(t *testing.T) {
	src := newMapSource()
	src.set("alice",
		NewGrant(ActionUpdate, ResourceDocument).OnResources("d1", "d2").Build(),
		NewGrant(ActionRead, ResourceDocument).InDepartments("eng").Build(),
	)
	ev := newTestEvaluator(t, src, "alice")
	ctx := context.Background()

	if !allowed(t)(ev.CanUpdate(ctx, ResourceDocument, "d2", nil)) {
		t.Fatalf("listed resource should pass")
	}
	if allowed(t)(ev.CanUpdate(ctx, ResourceDocument, "d3", nil)) {
		t.Fatalf("unlisted resource should fail")
	}
	if !allowed(t)(ev.CanUpdate(ctx, ResourceDocument, "", nil)) {
		t.Fatalf("type-level check should pass a constrained binding")
	}
	if !allowed(t)(ev.CanRead(ctx, ResourceDocument, "d9", Context{"departmentId": String("eng")})) {
		t.Fatalf("department attribute should pass")
	}
	if !allowed(t)(ev.CanRead(ctx, ResourceDocument, "d9", Context{"department_id": String("eng")})) {
		t.Fatalf("snake_case alias should pass")
	}
	if allowed(t)(ev.CanRead(ctx, ResourceDocument, "d9", Context{"departmentId": String("ops")})) {
		t.Fatalf("other department should fail")
	}
	if allowed(t)(ev.CanRead(ctx, ResourceDocument, "d9", nil)) {
		t.Fatalf("missing attribute should fail closed")
	}

	res, _ := ev.Check(ctx, CheckRequest{Action: ActionUpdate, ResourceType: ResourceDocument, ResourceID: "d3"})
	if res.Reason != ReasonNoMatch || len(res.MatchingPermissions) != 1 {
		t.Fatalf("constraint miss keeps the binding in matching, got %+v", res)
	}
}

func TestConditionalGrant(t *testing.T) {
	src := newMapSource()
	src.set("alice",
		NewGrant(ActionApprove, ResourceReport).
			When("status", OpEquals, "pending").
			When("amount", OpLessThan, 1000).
			Build(),
	)
	ev := newTestEvaluator(t, src, "alice")
	ctx := context.Background()

	ok := Context{"status": String("pending"), "amount": Number(250)}
	if !allowed(t)(ev.CanApprove(ctx, ResourceReport, "r1", ok)) {
		t.Fatalf("all conditions hold")
	}
	if allowed(t)(ev.CanApprove(ctx, ResourceReport, "r1", ok.With("amount", 5000))) {
		t.Fatalf("amount condition fails")
	}
	if allowed(t)(ev.CanApprove(ctx, ResourceReport, "r1", Context{"status": String("pending")})) {
		t.Fatalf("missing numeric field must fail")
	}
}

func TestCacheHitAndRefresh(t *testing.T) {
	src := newMapSource()
	src.set("alice", NewGrant(ActionRead, ResourceDocument).Build())
	ev := newTestEvaluator(t, src, "alice")
	ctx := context.Background()

	first, _ := ev.Check(ctx, readDoc("d1"))
	second, _ := ev.Check(ctx, readDoc("d1"))
	if st := ev.CacheStats(); st.Hits != 1 || st.Misses != 1 {
		t.Fatalf("expected 1 hit 1 miss, got %+v", st)
	}
	if first.Granted != second.Granted || first.Reason != second.Reason {
		t.Fatalf("cached result differs: %+v vs %+v", first, second)
	}
	if len(second.MatchingPermissions) != 1 {
		t.Fatalf("cached result should carry a fresh matching list")
	}

	src.set("alice", NewDeny(ActionRead, ResourceDocument).Build())
	if !allowed(t)(ev.CanRead(ctx, ResourceDocument, "d1", nil)) {
		t.Fatalf("source changes are invisible until refresh")
	}
	if err := ev.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := ev.Refresh(ctx); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	res, _ := ev.Check(ctx, readDoc("d1"))
	if res.Granted || res.Reason != ReasonDenied {
		t.Fatalf("expected deny after refresh, got %+v", res)
	}
}

func TestCacheEntryExpires(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	src := newMapSource()
	src.set("alice", NewGrant(ActionRead, ResourceDocument).Build())
	ev := newTestEvaluator(t, src, "alice", WithClock(clock), WithDecisionTTL(time.Minute))
	ctx := context.Background()

	ev.Check(ctx, readDoc("d1"))
	ev.Check(ctx, readDoc("d1"))
	mu.Lock()
	now = now.Add(time.Minute)
	mu.Unlock()
	ev.Check(ctx, readDoc("d1"))
	if st := ev.CacheStats(); st.Hits != 1 || st.Misses != 2 {
		t.Fatalf("expected entry to expire at ttl, got %+v", st)
	}
}

func TestCacheKeyIncludesContext(t *testing.T) {
	src := newMapSource()
	src.set("alice", NewGrant(ActionRead, ResourceDocument).When("status", OpEquals, "draft").Build())
	ev := newTestEvaluator(t, src, "alice")
	ctx := context.Background()

	req := readDoc("d1")
	req.Context = Context{"status": String("draft")}
	if r, _ := ev.Check(ctx, req); !r.Granted {
		t.Fatalf("draft should be granted")
	}
	req.Context = Context{"status": String("final")}
	if r, _ := ev.Check(ctx, req); r.Granted {
		t.Fatalf("different context must not reuse the cached grant")
	}
	if st := ev.CacheStats(); st.Misses != 2 {
		t.Fatalf("expected two misses, got %+v", st)
	}
}

func TestSubjectSwitchClearsCache(t *testing.T) {
	src := newMapSource()
	src.set("alice", NewGrant(ActionRead, ResourceDocument).Build())
	ev := newTestEvaluator(t, src, "alice")
	ctx := context.Background()
	if !allowed(t)(ev.CanRead(ctx, ResourceDocument, "d1", nil)) {
		t.Fatalf("alice can read")
	}
	if err := ev.SetSubject(ctx, "bob"); err != nil {
		t.Fatalf("set subject: %v", err)
	}
	if allowed(t)(ev.CanRead(ctx, ResourceDocument, "d1", nil)) {
		t.Fatalf("bob must not see alice's decision")
	}
	ev.ClearSubject(ctx)
	if ev.Subject() != "" || ev.Loaded() {
		t.Fatalf("subject should be cleared")
	}
}

func TestLoadInstallsPermissions(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := newTestEvaluator(t, newMapSource(), "", WithClock(func() time.Time { return now }))
	ctx := context.Background()
	if err := ev.Load(ctx, "", nil); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	perms := []EffectivePermission{NewGrant(ActionExport, ResourceReport).Build()}
	if err := ev.Load(ctx, "carol", perms); err != nil {
		t.Fatalf("load: %v", err)
	}
	perms[0].IsGranted = false
	if !allowed(t)(ev.CanExport(ctx, ResourceReport, "", nil)) {
		t.Fatalf("loaded set must be copied")
	}
	if got := ev.Permissions(); len(got) != 1 {
		t.Fatalf("expected 1 permission, got %d", len(got))
	}
	if !ev.LoadedAt().Equal(now) {
		t.Fatalf("unexpected load time %v", ev.LoadedAt())
	}
}

func TestCheckManyIsPositional(t *testing.T) {
	src := newMapSource()
	src.set("alice", NewGrant(ActionRead, ResourceDocument).Build())
	ev := newTestEvaluator(t, src, "alice")
	reqs := []CheckRequest{
		readDoc("d1"),
		{Action: ActionDelete, ResourceType: ResourceDocument, ResourceID: "d1"},
		readDoc("d2"),
	}
	out, err := ev.CheckMany(context.Background(), reqs)
	if err != nil {
		t.Fatalf("check many: %v", err)
	}
	if len(out) != 3 || !out[0].Granted || out[1].Granted || !out[2].Granted {
		t.Fatalf("unexpected results: %+v", out)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ev.CheckMany(ctx, reqs); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestCheckBulkRemote(t *testing.T) {
	ctx := context.Background()
	reqs := []CheckRequest{readDoc("d1"), readDoc("d2")}

	ev := newTestEvaluator(t, newMapSource(), "")
	if _, err := ev.CheckBulkRemote(ctx, reqs); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	ev = newTestEvaluator(t, newMapSource(), "alice")
	if _, err := ev.CheckBulkRemote(ctx, reqs); !errors.Is(err, ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
	}

	remote := &fakeRemote{}
	ev = newTestEvaluator(t, newMapSource(), "alice", WithRemoteChecker(remote))
	res, err := ev.CheckBulkRemote(ctx, reqs)
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if res.SubjectID != "alice" || len(res.Results) != 2 || !res.Results[1].Granted {
		t.Fatalf("unexpected bulk result %+v", res)
	}
	if st := ev.CacheStats(); st.Hits+st.Misses != 0 {
		t.Fatalf("remote checks must bypass the cache, got %+v", st)
	}

	remote.err = errors.New("connection refused")
	if _, err := ev.CheckBulkRemote(ctx, reqs); !errors.Is(err, ErrRemoteCheck) {
		t.Fatalf("expected ErrRemoteCheck, got %v", err)
	}

	remote.err = nil
	remote.res = &BulkCheckResult{SubjectID: "alice", Results: []CheckResult{{Granted: true}}}
	if _, err := ev.CheckBulkRemote(ctx, reqs); !errors.Is(err, ErrRemoteCheck) {
		t.Fatalf("short result must be an error, got %v", err)
	}
}

func TestCheckBulkRemoteFailureDeny(t *testing.T) {
	remote := &fakeRemote{err: errors.New("timeout")}
	ev := newTestEvaluator(t, newMapSource(), "alice", WithRemoteChecker(remote), WithRemoteFailureDeny(true))
	res, err := ev.CheckBulkRemote(context.Background(), []CheckRequest{readDoc("d1"), readDoc("d2")})
	if err != nil {
		t.Fatalf("expected deny result, got %v", err)
	}
	for i, r := range res.Results {
		if r.Granted || r.Reason != ReasonRemoteFailure {
			t.Fatalf("result %d: expected remote failure deny, got %+v", i, r)
		}
	}
}

func TestRemoteDetectedOnSource(t *testing.T) {
	src := &remoteSource{mapSource: newMapSource()}
	ev := newTestEvaluator(t, src, "alice")
	if _, err := ev.CheckBulkRemote(context.Background(), []CheckRequest{readDoc("d1")}); err != nil {
		t.Fatalf("source implementing RemoteChecker should be used: %v", err)
	}
}

type remoteSource struct {
	*mapSource
	fakeRemote
}

func TestIsAdminAndIsManager(t *testing.T) {
	src := newMapSource()
	src.set("root",
		NewGrant(ActionManage, ResourceSystemConfig).Build(),
	)
	src.set("lead",
		NewGrant(ActionManage, ResourceProject).Build(),
	)
	src.set("dev",
		NewGrant(ActionRead, ResourceProject).Build(),
	)
	ctx := context.Background()
	ev := newTestEvaluator(t, src, "root")
	if !allowed(t)(ev.IsAdmin(ctx)) || !allowed(t)(ev.IsManager(ctx)) {
		t.Fatalf("admin is also a manager")
	}
	ev.SetSubject(ctx, "lead")
	if allowed(t)(ev.IsAdmin(ctx)) || !allowed(t)(ev.IsManager(ctx)) {
		t.Fatalf("lead is a manager only")
	}
	ev.SetSubject(ctx, "dev")
	if allowed(t)(ev.IsAdmin(ctx)) || allowed(t)(ev.IsManager(ctx)) {
		t.Fatalf("dev is neither")
	}

	ev = newTestEvaluator(t, src, "dev", WithManagerProbes(Probe{ActionRead, ResourceProject}))
	if !allowed(t)(ev.IsManager(ctx)) {
		t.Fatalf("custom manager probe should apply")
	}
}

func TestChecksDuringRefresh(t *testing.T) {
	src := newMapSource()
	src.set("alice", NewGrant(ActionRead, ResourceDocument).Build())
	ev := newTestEvaluator(t, src, "alice")
	ctx := context.Background()

	var wg sync.WaitGroup
	var bad atomic.Int32
	stop := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				res, err := ev.Check(ctx, readDoc("d1"))
				if err != nil || (res.Reason != ReasonGranted && res.Reason != ReasonDenied) {
					bad.Add(1)
				}
			}
		}()
	}
	for i := 0; i < 50; i++ {
		if i%2 == 0 {
			src.set("alice", NewDeny(ActionRead, ResourceDocument).Build())
		} else {
			src.set("alice", NewGrant(ActionRead, ResourceDocument).Build())
		}
		if err := ev.Refresh(ctx); err != nil {
			t.Fatalf("refresh: %v", err)
		}
	}
	close(stop)
	wg.Wait()
	if bad.Load() != 0 {
		t.Fatalf("%d checks saw an inconsistent result", bad.Load())
	}
	// last refresh installed a grant
	if !allowed(t)(ev.CanRead(ctx, ResourceDocument, "d1", nil)) {
		t.Fatalf("expected final state to grant")
	}
}

func TestDecisionsAreLoggedWithTraceID(t *testing.T) {
	var buf bytes.Buffer
	l := logger.NewSLogLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	src := newMapSource()
	src.set("alice", NewGrant(ActionRead, ResourceDocument).Build())
	ev := newTestEvaluator(t, src, "alice", WithLogger(l), WithTraceIDFunc(func() string { return "trace-1" }))
	buf.Reset()

	ev.Check(context.Background(), readDoc("d1"))
	line := strings.TrimSpace(buf.String())
	var rec map[string]any
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		t.Fatalf("decode %q: %v", line, err)
	}
	if rec["trace_id"] != "trace-1" || rec["subject"] != "alice" || rec["granted"] != true || rec["cached"] != false {
		t.Fatalf("unexpected log record %v", rec)
	}
}

func TestEmptyPermissionSet(t *testing.T) {
	ev := newTestEvaluator(t, newMapSource(), "nobody")
	res, err := ev.Check(context.Background(), readDoc("d1"))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.Granted || res.Reason != ReasonNoMatch {
		t.Fatalf("expected no match, got %+v", res)
	}
}

func TestOnlyExpiredRuleDeniesLikeNoMatch(t *testing.T) {
	src := newMapSource()
	src.set("alice", NewGrant(ActionRead, ResourceDocument).ExpiresAt(time.Now().Add(-time.Hour)).Build())
	ev := newTestEvaluator(t, src, "alice")
	res, _ := ev.Check(context.Background(), readDoc("d1"))
	if res.Granted || res.Reason != ReasonNoMatch || len(res.MatchingPermissions) != 0 {
		t.Fatalf("expected the same result as no rule, got %+v", res)
	}
}

func TestWorkedScenarios(t *testing.T) {
	ctx := context.Background()
	src := newMapSource()
	src.set("ids", NewGrant(ActionRead, ResourceDocument).OnResources("doc-1").Build())
	src.set("cond", NewGrant(ActionUpdate, ResourceProject).When("status", OpEquals, "draft").Build())
	src.set("prio",
		NewDeny(ActionRead, ResourceDocument).ID("A").Priority(10).Build(),
		NewGrant(ActionRead, ResourceDocument).ID("B").Priority(5).Build(),
	)
	ev := newTestEvaluator(t, src, "ids")

	if !allowed(t)(ev.CanRead(ctx, ResourceDocument, "doc-1", nil)) || allowed(t)(ev.CanRead(ctx, ResourceDocument, "doc-2", nil)) {
		t.Fatalf("resource id scenario failed")
	}

	ev.SetSubject(ctx, "cond")
	if !allowed(t)(ev.CanUpdate(ctx, ResourceProject, "p1", Context{"status": String("draft")})) {
		t.Fatalf("draft should be granted")
	}
	if allowed(t)(ev.CanUpdate(ctx, ResourceProject, "p1", Context{"status": String("published")})) {
		t.Fatalf("published should be denied")
	}

	ev.SetSubject(ctx, "prio")
	res, _ := ev.Check(ctx, readDoc("d1"))
	if res.Granted || res.Reason != ReasonDenied {
		t.Fatalf("rule A should win, got %+v", res)
	}
}
