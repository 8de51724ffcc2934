package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"erasure/internal/catalog"
	"erasure/internal/config"
	"erasure/internal/db"
	"erasure/internal/domain"
	"erasure/internal/engine"
	"erasure/internal/match"
	"erasure/internal/migrate"
	"erasure/internal/plan"
	"erasure/internal/tasks"
	"erasure/internal/vault"
)

const testCatalogYAML = `
brokers:
  - id: acme
    name: Acme People Search
    category: people-search
    removal_method: web_form
    difficulty: easy
    plan_file: brokers/acme.yml
    recheck_days: 14
  - id: paperco
    name: PaperCo
    category: people-search
    removal_method: mail_or_fax
    difficulty: hard
`

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Dir    string
	now    time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "plans", "brokers"), 0o755); err != nil {
		t.Fatal(err)
	}

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	v, err := vault.New(key)
	if err != nil {
		t.Fatal(err)
	}
	cat, err := catalog.FromYAML([]byte(testCatalogYAML))
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	env := &testEnv{
		Ctx: context.Background(),
		Dir: dir,
		now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	env.Engine = engine.New(conn, config.Default(dir), v, cat)
	env.Engine.Now = func() time.Time { return env.now }
	return env
}

func (env *testEnv) advance(d time.Duration) {
	env.now = env.now.Add(d)
}

func (env *testEnv) writePlan(t *testing.T, yaml string) {
	t.Helper()
	path := filepath.Join(env.Dir, "plans", "brokers", "acme.yml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (env *testEnv) newRunner(t *testing.T, reg *tasks.Registry) *engine.Runner {
	t.Helper()
	r := engine.NewRunner(env.Engine, reg, nil, nil)
	r.Sleep = func(context.Context, time.Duration) error { return nil }
	return r
}

const scrapePlanYAML = `
plan_id: broker_acme
version: 1.0.0
targets:
  - target_id: site
    kind: website
    base_url: https://acme.example
tasks:
  - id: discover
    name: Discover listings
    type: scrape.static
    input:
      url: https://acme.example/search
    output:
      save_as: discovery
  - id: extract
    name: Extract candidates
    type: scrape.static
    depends_on: [discover]
    input:
      candidates: "{{ discovery.results }}"
`

const submitPlanYAML = `
plan_id: broker_acme
version: 1.0.0
targets:
  - target_id: site
    kind: website
tasks:
  - id: submit
    name: Submit removal form
    type: form.submit
    input:
      form_url: https://acme.example/opt-out
`

func TestStartRunIdempotency(t *testing.T) {
	env := newTestEnv(t)
	env.writePlan(t, scrapePlanYAML)

	first, created, err := env.Engine.StartRun(env.Ctx, engine.StartRunOptions{
		PlanID:         "broker_acme",
		IdempotencyKey: "sched:s1:2025-03-01",
		ActorID:        "tester",
	})
	if err != nil || !created {
		t.Fatalf("first start: created=%v err=%v", created, err)
	}
	second, created, err := env.Engine.StartRun(env.Ctx, engine.StartRunOptions{
		PlanID:         "broker_acme",
		IdempotencyKey: "sched:s1:2025-03-01",
		ActorID:        "tester",
	})
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if created || second.RunID != first.RunID {
		t.Fatalf("idempotency key not honored: created=%v %s vs %s", created, second.RunID, first.RunID)
	}
}

func TestStartRunUnknownPlan(t *testing.T) {
	env := newTestEnv(t)
	if _, _, err := env.Engine.StartRun(env.Ctx, engine.StartRunOptions{PlanID: "broker_ghost"}); err == nil {
		t.Fatalf("expected plan-not-found error")
	}
}

func TestRunnerExecutesPlanToSuccess(t *testing.T) {
	env := newTestEnv(t)
	env.writePlan(t, scrapePlanYAML)

	var gotCandidates []any
	reg := tasks.NewRegistry()
	reg.Register(plan.TypeScrapeStatic, tasks.ExecutorFunc(func(_ context.Context, inv tasks.Invocation) (tasks.Result, error) {
		switch inv.TaskID {
		case "discover":
			return tasks.Result{Output: map[string]any{
				"results": []any{
					map[string]any{"name": "John Smith"},
					map[string]any{"name": "J Smith"},
				},
			}}, nil
		case "extract":
			gotCandidates, _ = inv.Input["candidates"].([]any)
			return tasks.Result{Output: map[string]any{"count": len(gotCandidates)}}, nil
		}
		t.Fatalf("unexpected task %s", inv.TaskID)
		return tasks.Result{}, nil
	}))
	runner := env.newRunner(t, reg)

	run, _, err := env.Engine.StartRun(env.Ctx, engine.StartRunOptions{PlanID: "broker_acme", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if err := runner.Poll(env.Ctx); err != nil {
		t.Fatalf("poll: %v", err)
	}

	final, err := env.Engine.Repo.GetRun(env.Ctx, run.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != domain.RunSucceeded {
		t.Fatalf("run status = %s (%v)", final.Status, final.ErrorMessage)
	}
	// Upstream output must reach the dependent task as a real list, not a
	// stringified one.
	if len(gotCandidates) != 2 {
		t.Fatalf("candidates = %v", gotCandidates)
	}
	taskRuns, _ := env.Engine.Repo.ListTaskRuns(env.Ctx, run.RunID)
	if len(taskRuns) != 2 {
		t.Fatalf("task runs = %d", len(taskRuns))
	}
	for _, tr := range taskRuns {
		if tr.Status != domain.TaskSucceeded {
			t.Fatalf("task %s status %s", tr.TaskID, tr.Status)
		}
	}
}

func TestApprovalGateBlocksThenApproveResumes(t *testing.T) {
	env := newTestEnv(t)
	env.writePlan(t, submitPlanYAML)

	executed := 0
	reg := tasks.NewRegistry()
	reg.Register(plan.TypeFormSubmit, tasks.ExecutorFunc(func(context.Context, tasks.Invocation) (tasks.Result, error) {
		executed++
		return tasks.Result{Output: map[string]any{"submitted": true}}, nil
	}))
	runner := env.newRunner(t, reg)

	run, _, err := env.Engine.StartRun(env.Ctx, engine.StartRunOptions{PlanID: "broker_acme", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if err := runner.Poll(env.Ctx); err != nil {
		t.Fatal(err)
	}

	blocked, _ := env.Engine.Repo.GetRun(env.Ctx, run.RunID)
	if blocked.Status != domain.RunBlockedForApproval {
		t.Fatalf("run status = %s, want blocked", blocked.Status)
	}
	if executed != 0 {
		t.Fatalf("side effect ran before approval")
	}
	a, err := env.Engine.Repo.GetApprovalForTask(env.Ctx, run.RunID, "submit")
	if err != nil || a.Status != domain.ApprovalPending {
		t.Fatalf("approval = %+v err=%v", a, err)
	}

	if _, err := env.Engine.ResolveApproval(env.Ctx, a.ApprovalID, true, "operator"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	requeued, _ := env.Engine.Repo.GetRun(env.Ctx, run.RunID)
	if requeued.Status != domain.RunQueued {
		t.Fatalf("run status after approval = %s", requeued.Status)
	}

	if err := runner.Poll(env.Ctx); err != nil {
		t.Fatal(err)
	}
	final, _ := env.Engine.Repo.GetRun(env.Ctx, run.RunID)
	if final.Status != domain.RunSucceeded || executed != 1 {
		t.Fatalf("status=%s executed=%d", final.Status, executed)
	}

	// Resolution is exactly-once.
	if _, err := env.Engine.ResolveApproval(env.Ctx, a.ApprovalID, false, "operator"); err == nil {
		t.Fatalf("double resolution accepted")
	}
}

func TestApprovalDenialFailsRun(t *testing.T) {
	env := newTestEnv(t)
	env.writePlan(t, submitPlanYAML)
	reg := tasks.NewRegistry()
	reg.Register(plan.TypeFormSubmit, tasks.ExecutorFunc(func(context.Context, tasks.Invocation) (tasks.Result, error) {
		t.Fatalf("denied task executed")
		return tasks.Result{}, nil
	}))
	runner := env.newRunner(t, reg)

	run, _, err := env.Engine.StartRun(env.Ctx, engine.StartRunOptions{PlanID: "broker_acme", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if err := runner.Poll(env.Ctx); err != nil {
		t.Fatal(err)
	}
	a, err := env.Engine.Repo.GetApprovalForTask(env.Ctx, run.RunID, "submit")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ResolveApproval(env.Ctx, a.ApprovalID, false, "operator"); err != nil {
		t.Fatalf("deny: %v", err)
	}
	final, _ := env.Engine.Repo.GetRun(env.Ctx, run.RunID)
	if final.Status != domain.RunFailed || final.ErrorCode == nil || *final.ErrorCode != domain.ErrCodeApprovalDenied {
		t.Fatalf("run = %+v", final)
	}
}

func TestRetryTransientThenFail(t *testing.T) {
	env := newTestEnv(t)
	env.writePlan(t, scrapePlanYAML)

	attempts := 0
	reg := tasks.NewRegistry()
	reg.Register(plan.TypeScrapeStatic, tasks.ExecutorFunc(func(_ context.Context, inv tasks.Invocation) (tasks.Result, error) {
		attempts++
		return tasks.Result{}, tasks.Transient("network", "connection reset")
	}))
	runner := env.newRunner(t, reg)
	var sleeps int
	runner.Sleep = func(context.Context, time.Duration) error {
		sleeps++
		return nil
	}

	run, _, err := env.Engine.StartRun(env.Ctx, engine.StartRunOptions{PlanID: "broker_acme", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if err := runner.Poll(env.Ctx); err != nil {
		t.Fatal(err)
	}

	if attempts != 3 || sleeps != 2 {
		t.Fatalf("attempts=%d sleeps=%d", attempts, sleeps)
	}
	final, _ := env.Engine.Repo.GetRun(env.Ctx, run.RunID)
	if final.Status != domain.RunFailed || *final.ErrorCode != domain.ErrCodeTaskFailed {
		t.Fatalf("run = %+v", final)
	}
	tr, _ := env.Engine.Repo.GetTaskRun(env.Ctx, run.RunID, "discover")
	if tr.Status != domain.TaskFailed || tr.Attempt != 3 || tr.ErrorCode == nil || *tr.ErrorCode != "network" {
		t.Fatalf("task run = %+v", tr)
	}
}

func TestPermanentErrorDoesNotRetry(t *testing.T) {
	env := newTestEnv(t)
	env.writePlan(t, scrapePlanYAML)

	attempts := 0
	reg := tasks.NewRegistry()
	reg.Register(plan.TypeScrapeStatic, tasks.ExecutorFunc(func(context.Context, tasks.Invocation) (tasks.Result, error) {
		attempts++
		return tasks.Result{}, tasks.Permanent("bad_request", "page gone")
	}))
	runner := env.newRunner(t, reg)

	run, _, _ := env.Engine.StartRun(env.Ctx, engine.StartRunOptions{PlanID: "broker_acme", ActorID: "tester"})
	if err := runner.Poll(env.Ctx); err != nil {
		t.Fatal(err)
	}
	if attempts != 1 {
		t.Fatalf("permanent error retried: attempts=%d", attempts)
	}
	final, _ := env.Engine.Repo.GetRun(env.Ctx, run.RunID)
	if final.Status != domain.RunFailed {
		t.Fatalf("run status = %s", final.Status)
	}
}

func TestPlanHashMismatchFailsRun(t *testing.T) {
	env := newTestEnv(t)
	env.writePlan(t, scrapePlanYAML)
	reg := tasks.NewRegistry()
	reg.Register(plan.TypeScrapeStatic, tasks.ExecutorFunc(func(context.Context, tasks.Invocation) (tasks.Result, error) {
		return tasks.Result{}, nil
	}))
	runner := env.newRunner(t, reg)

	run, _, err := env.Engine.StartRun(env.Ctx, engine.StartRunOptions{PlanID: "broker_acme", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	// Edit the plan between creation and execution.
	env.writePlan(t, scrapePlanYAML+"\ndescription: edited\n")

	if err := runner.Poll(env.Ctx); err != nil {
		t.Fatal(err)
	}
	final, _ := env.Engine.Repo.GetRun(env.Ctx, run.RunID)
	if final.Status != domain.RunFailed || *final.ErrorCode != domain.ErrCodePlanHashMismatch {
		t.Fatalf("run = %+v", final)
	}
}

func TestLongDelayParksAndResumes(t *testing.T) {
	env := newTestEnv(t)
	env.writePlan(t, `
plan_id: broker_acme
version: 1.0.0
targets:
  - target_id: site
    kind: website
tasks:
  - id: cooldown
    name: Wait before verification
    type: wait.delay
    input:
      delay_seconds: 3600
  - id: verify
    name: Verify removal
    type: scrape.static
    depends_on: [cooldown]
    input:
      url: https://acme.example/search
`)
	verified := 0
	reg := tasks.NewRegistry()
	reg.Register(plan.TypeWaitDelay, tasks.WaitDelay{})
	reg.Register(plan.TypeScrapeStatic, tasks.ExecutorFunc(func(context.Context, tasks.Invocation) (tasks.Result, error) {
		verified++
		return tasks.Result{Output: map[string]any{"still_listed": false}}, nil
	}))
	runner := env.newRunner(t, reg)

	run, _, err := env.Engine.StartRun(env.Ctx, engine.StartRunOptions{PlanID: "broker_acme", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if err := runner.Poll(env.Ctx); err != nil {
		t.Fatal(err)
	}

	parked, _ := env.Engine.Repo.GetRun(env.Ctx, run.RunID)
	if parked.WakeAt == nil {
		t.Fatalf("run not parked: %+v", parked)
	}
	if verified != 0 {
		t.Fatalf("dependent task ran before wake time")
	}

	// Before the wake time the run must not be picked up again.
	if err := runner.Poll(env.Ctx); err != nil {
		t.Fatal(err)
	}
	if verified != 0 {
		t.Fatalf("parked run executed early")
	}

	env.advance(2 * time.Hour)
	if err := runner.Poll(env.Ctx); err != nil {
		t.Fatal(err)
	}
	final, _ := env.Engine.Repo.GetRun(env.Ctx, run.RunID)
	if final.Status != domain.RunSucceeded || verified != 1 {
		t.Fatalf("status=%s verified=%d", final.Status, verified)
	}
	// The deferring task is not re-executed on resume.
	tr, _ := env.Engine.Repo.GetTaskRun(env.Ctx, run.RunID, "cooldown")
	if tr.Status != domain.TaskSucceeded {
		t.Fatalf("cooldown status = %s", tr.Status)
	}
}

func TestRunTimeoutMeasuredFromExecutionStart(t *testing.T) {
	env := newTestEnv(t)
	env.writePlan(t, `
plan_id: broker_acme
version: 1.0.0
targets:
  - target_id: site
    kind: website
tasks:
  - id: cooldown
    name: Wait before verification
    type: wait.delay
    input:
      delay_seconds: 3600
  - id: verify
    name: Verify removal
    type: scrape.static
    depends_on: [cooldown]
    input:
      url: https://acme.example/search
`)
	reg := tasks.NewRegistry()
	reg.Register(plan.TypeWaitDelay, tasks.WaitDelay{})
	reg.Register(plan.TypeScrapeStatic, tasks.ExecutorFunc(func(context.Context, tasks.Invocation) (tasks.Result, error) {
		return tasks.Result{}, nil
	}))
	runner := env.newRunner(t, reg)

	run, _, err := env.Engine.StartRun(env.Ctx, engine.StartRunOptions{PlanID: "broker_acme", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	if err := runner.Poll(env.Ctx); err != nil {
		t.Fatal(err)
	}
	parked, _ := env.Engine.Repo.GetRun(env.Ctx, run.RunID)
	if parked.StartedAt == nil || parked.WakeAt == nil {
		t.Fatalf("run not started and parked: %+v", parked)
	}

	env.advance(7 * time.Hour) // past the 6h default ceiling

	if err := runner.Poll(env.Ctx); err != nil {
		t.Fatal(err)
	}
	final, _ := env.Engine.Repo.GetRun(env.Ctx, run.RunID)
	if final.Status != domain.RunFailed || *final.ErrorCode != domain.ErrCodeRunTimeout {
		t.Fatalf("run = %+v", final)
	}
}

func TestQueuedBacklogDoesNotTimeOut(t *testing.T) {
	env := newTestEnv(t)
	env.writePlan(t, scrapePlanYAML)
	reg := tasks.NewRegistry()
	reg.Register(plan.TypeScrapeStatic, tasks.ExecutorFunc(func(context.Context, tasks.Invocation) (tasks.Result, error) {
		return tasks.Result{Output: map[string]any{"results": []any{}}}, nil
	}))
	runner := env.newRunner(t, reg)

	run, _, err := env.Engine.StartRun(env.Ctx, engine.StartRunOptions{PlanID: "broker_acme", ActorID: "tester"})
	if err != nil {
		t.Fatal(err)
	}
	// The run waits in the queue far longer than the execution ceiling.
	env.advance(7 * time.Hour)

	if err := runner.Poll(env.Ctx); err != nil {
		t.Fatal(err)
	}
	final, _ := env.Engine.Repo.GetRun(env.Ctx, run.RunID)
	if final.Status != domain.RunSucceeded {
		t.Fatalf("run = %+v", final)
	}
}

func TestListingLifecycle(t *testing.T) {
	env := newTestEnv(t)
	candidate := match.Candidate{
		Name:  "John Smith",
		City:  "Austin",
		State: "TX",
		URL:   "https://acme.example/people/john-smith",
	}
	listingID, err := env.Engine.RecordMatch(env.Ctx, "acme", "pf-1", candidate, 0.92, []string{"name", "location"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	l, err := env.Engine.Repo.GetListing(env.Ctx, listingID)
	if err != nil || l.Status != domain.ListingFound {
		t.Fatalf("listing = %+v err=%v", l, err)
	}

	// Re-discovering the same URL refreshes the row instead of duplicating.
	again, err := env.Engine.RecordMatch(env.Ctx, "acme", "pf-1", candidate, 0.95, []string{"name", "location"})
	if err != nil || again != listingID {
		t.Fatalf("dedupe: id=%s err=%v", again, err)
	}

	if err := env.Engine.TransitionListing(env.Ctx, listingID, domain.ListingRemovalSubmitted, "form sent"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	l, _ = env.Engine.Repo.GetListing(env.Ctx, listingID)
	if l.RemovalSentAt == nil || l.RecheckAfter == nil {
		t.Fatalf("submission timestamps missing: %+v", l)
	}
	// acme's catalog cadence is 14 days.
	wantRecheck := env.now.Add(14 * 24 * time.Hour).UTC().Format(time.RFC3339)
	if *l.RecheckAfter != wantRecheck {
		t.Fatalf("recheck_after = %s, want %s", *l.RecheckAfter, wantRecheck)
	}

	if err := env.Engine.TransitionListing(env.Ctx, listingID, domain.ListingPendingVerification, ""); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.TransitionListing(env.Ctx, listingID, domain.ListingRemoved, ""); err != nil {
		t.Fatal(err)
	}
	l, _ = env.Engine.Repo.GetListing(env.Ctx, listingID)
	if l.VerifiedAt == nil || l.RecheckAfter != nil {
		t.Fatalf("removed listing = %+v", l)
	}

	// A removed URL showing up in a later scan reappears with history intact.
	again, err = env.Engine.RecordMatch(env.Ctx, "acme", "pf-1", candidate, 0.9, []string{"name"})
	if err != nil || again != listingID {
		t.Fatalf("rediscovery: id=%s err=%v", again, err)
	}
	l, _ = env.Engine.Repo.GetListing(env.Ctx, listingID)
	if l.Status != domain.ListingReappeared {
		t.Fatalf("status = %s, want reappeared", l.Status)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, "listing.reappeared", "listing", listingID)
	if err != nil || len(evts) != 1 {
		t.Fatalf("reappeared events = %v err=%v", evts, err)
	}
}

func TestListingInvalidTransitions(t *testing.T) {
	env := newTestEnv(t)
	listingID, err := env.Engine.RecordMatch(env.Ctx, "acme", "pf-1", match.Candidate{
		Name: "John Smith",
		URL:  "https://acme.example/people/john-smith",
	}, 0.9, []string{"name"})
	if err != nil {
		t.Fatal(err)
	}

	// Verification cannot be pending before a removal was submitted.
	err = env.Engine.TransitionListing(env.Ctx, listingID, domain.ListingPendingVerification, "")
	if err == nil || !strings.Contains(err.Error(), "cannot move from") {
		t.Fatalf("err = %v", err)
	}

	if err := env.Engine.TransitionListing(env.Ctx, listingID, domain.ListingFailed, "broker refused"); err != nil {
		t.Fatal(err)
	}
	// failed is absorbing except for escalation to the human queue.
	err = env.Engine.TransitionListing(env.Ctx, listingID, domain.ListingRemovalSubmitted, "")
	if err == nil || !strings.Contains(err.Error(), "cannot move from") {
		t.Fatalf("failed listing resubmitted: %v", err)
	}
	if err := env.Engine.TransitionListing(env.Ctx, listingID, domain.ListingManualRequired, ""); err != nil {
		t.Fatalf("manual escalation: %v", err)
	}
}

func TestProfileLifecycle(t *testing.T) {
	env := newTestEnv(t)
	data := vault.ProfileData{
		FullName:    "John Smith",
		DateOfBirth: "1980-03-15",
		Addresses:   []vault.Address{{City: "Austin", State: "TX", Current: true}},
	}
	p, err := env.Engine.CreateProfile(env.Ctx, "personal", data, "tester")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	loaded, err := env.Engine.LoadProfile(env.Ctx, p.ProfileID)
	if err != nil || loaded.FullName != "John Smith" {
		t.Fatalf("load: %+v err=%v", loaded, err)
	}

	// Unchanged data reports changed=false but still rotates ciphertext.
	_, changed, err := env.Engine.UpdateProfile(env.Ctx, p.ProfileID, data, "tester")
	if err != nil || changed {
		t.Fatalf("no-op update: changed=%v err=%v", changed, err)
	}
	data.Addresses = append(data.Addresses, vault.Address{City: "Dallas", State: "TX"})
	updated, changed, err := env.Engine.UpdateProfile(env.Ctx, p.ProfileID, data, "tester")
	if err != nil || !changed {
		t.Fatalf("real update: changed=%v err=%v", changed, err)
	}
	if updated.DataHash == p.DataHash {
		t.Fatalf("hash unchanged after edit")
	}

	if err := env.Engine.DeleteProfile(env.Ctx, p.ProfileID, "tester"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.LoadProfile(env.Ctx, p.ProfileID); err == nil {
		t.Fatalf("profile still loadable after delete")
	}
}

func TestEventsCarryNoPlaintextPII(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateProfile(env.Ctx, "personal", vault.ProfileData{
		FullName:    "John Smith",
		DateOfBirth: "1980-03-15",
	}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, "profile.created", "", "")
	if err != nil || len(evts) != 1 {
		t.Fatalf("events=%v err=%v", evts, err)
	}
	payload := evts[0].Payload
	for _, leak := range []string{"John Smith", "1980-03-15"} {
		if strings.Contains(payload, leak) {
			t.Fatalf("event payload leaks PII: %s", payload)
		}
	}
}
