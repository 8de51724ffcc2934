package scheduler_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"erasure/internal/catalog"
	"erasure/internal/config"
	"erasure/internal/db"
	"erasure/internal/engine"
	"erasure/internal/migrate"
	"erasure/internal/scheduler"
)

const schedCatalogYAML = `
brokers:
  - id: acme
    name: Acme People Search
    category: people-search
    removal_method: web_form
    difficulty: easy
    plan_file: brokers/acme.yml
    recheck_days: 14
  - id: ghost
    name: Ghost Records
    category: background-check
    removal_method: web_form
    difficulty: medium
    plan_file: brokers/ghost.yml
  - id: paperco
    name: PaperCo
    category: people-search
    removal_method: mail_or_fax
    difficulty: hard
`

const acmePlanYAML = `
plan_id: broker_acme
version: 1.0.0
targets:
  - target_id: site
    kind: website
tasks:
  - id: discover
    name: Discover listings
    type: scrape.static
    input:
      url: https://acme.example/search
`

type testEnv struct {
	Engine engine.Engine
	Sched  *scheduler.Scheduler
	Ctx    context.Context
	now    time.Time
}

// newTestEnv seeds a catalog with three brokers: acme has a plan on disk,
// ghost references a plan file that does not exist, paperco has none.
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
	if err := os.WriteFile(filepath.Join(dir, "plans", "brokers", "acme.yml"), []byte(acmePlanYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cat, err := catalog.FromYAML([]byte(schedCatalogYAML))
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	env := &testEnv{
		Ctx: context.Background(),
		now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	env.Engine = engine.New(conn, config.Default(dir), nil, cat)
	env.Engine.Now = func() time.Time { return env.now }
	env.Sched = scheduler.New(env.Engine, nil)
	return env
}

func TestInitializeSkipsPlanlessBrokers(t *testing.T) {
	env := newTestEnv(t)
	seeded, err := env.Sched.InitializeForProfile(env.Ctx, "pf-1")
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if seeded != 2 {
		t.Fatalf("seeded = %d, want 2 (acme and ghost)", seeded)
	}
	scheds, err := env.Engine.Repo.ListSchedules(env.Ctx, "pf-1")
	if err != nil || len(scheds) != 2 {
		t.Fatalf("schedules = %v err=%v", scheds, err)
	}
	for _, sc := range scheds {
		if sc.BrokerID == "paperco" {
			t.Fatalf("planless broker got a schedule")
		}
	}

	// Re-initializing must not duplicate schedules.
	if _, err := env.Sched.InitializeForProfile(env.Ctx, "pf-1"); err != nil {
		t.Fatal(err)
	}
	scheds, _ = env.Engine.Repo.ListSchedules(env.Ctx, "pf-1")
	if len(scheds) != 2 {
		t.Fatalf("re-init duplicated schedules: %d", len(scheds))
	}
}

func TestPollStartsDueRunsAndAdvancesCadence(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Sched.InitializeForProfile(env.Ctx, "pf-1"); err != nil {
		t.Fatal(err)
	}

	started, err := env.Sched.Poll(env.Ctx)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if started != 1 {
		t.Fatalf("started = %d, want 1 (only acme has a loadable plan)", started)
	}

	scheds, _ := env.Engine.Repo.ListSchedules(env.Ctx, "pf-1")
	for _, sc := range scheds {
		if sc.BrokerID != "acme" {
			continue
		}
		if sc.LastRunID == nil {
			t.Fatalf("acme schedule has no run recorded")
		}
		run, err := env.Engine.Repo.GetRun(env.Ctx, *sc.LastRunID)
		if err != nil {
			t.Fatalf("scheduled run missing: %v", err)
		}
		if run.PlanID != "broker_acme" {
			t.Fatalf("run plan = %s", run.PlanID)
		}
		// recheck_days: 14 moves the next scan two weeks out.
		want := env.now.Add(14 * 24 * time.Hour).UTC().Format(time.RFC3339)
		if sc.NextRunAt != want {
			t.Fatalf("next_run_at = %s, want %s", sc.NextRunAt, want)
		}
	}

	// Nothing is due until the cadence elapses.
	started, err = env.Sched.Poll(env.Ctx)
	if err != nil || started != 0 {
		t.Fatalf("second poll started=%d err=%v", started, err)
	}
}

func TestPollOneRunPerBrokerPerCycle(t *testing.T) {
	env := newTestEnv(t)
	for _, pf := range []string{"pf-1", "pf-2"} {
		if _, err := env.Sched.InitializeForProfile(env.Ctx, pf); err != nil {
			t.Fatal(err)
		}
	}
	started, err := env.Sched.Poll(env.Ctx)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if started != 1 {
		t.Fatalf("started = %d, want 1 per broker per cycle", started)
	}
	// The deferred profile's schedule is still due and goes next cycle.
	started, err = env.Sched.Poll(env.Ctx)
	if err != nil || started != 1 {
		t.Fatalf("second cycle started=%d err=%v", started, err)
	}
}

func TestDeadLetterDisablesFailingBroker(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Sched.InitializeForProfile(env.Ctx, "pf-1"); err != nil {
		t.Fatal(err)
	}

	// ghost's plan file does not exist, so every scan attempt fails at
	// start. The default threshold disables it after three in a row.
	for i := 0; i < 3; i++ {
		if _, err := env.Sched.Poll(env.Ctx); err != nil {
			t.Fatalf("poll %d: %v", i, err)
		}
		env.now = env.now.Add(31 * 24 * time.Hour)
	}

	scheds, _ := env.Engine.Repo.ListSchedules(env.Ctx, "pf-1")
	for _, sc := range scheds {
		switch sc.BrokerID {
		case "ghost":
			if sc.Enabled {
				t.Fatalf("ghost schedule still enabled after repeated failures")
			}
		case "acme":
			if !sc.Enabled {
				t.Fatalf("healthy broker was disabled")
			}
		}
	}
}

func TestDeadLetterCounting(t *testing.T) {
	d := scheduler.NewDeadLetter(3)
	if d.RecordFailure("acme") || d.RecordFailure("acme") {
		t.Fatalf("threshold reached early")
	}
	if !d.RecordFailure("acme") {
		t.Fatalf("third failure should reach threshold")
	}
	// One success clears the slate.
	d.RecordSuccess("acme")
	if d.Failures("acme") != 0 {
		t.Fatalf("failures = %d after success", d.Failures("acme"))
	}
	if d.Failures("datamart") != 0 {
		t.Fatalf("unrelated broker has failures")
	}
}
