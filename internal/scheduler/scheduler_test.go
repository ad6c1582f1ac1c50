package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"

	"github.com/jkaninda/skillrouter/internal/catalog"
	"github.com/jkaninda/skillrouter/internal/router"
	"github.com/jkaninda/skillrouter/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestScheduler returns a scheduler whose clock is pinned to *clock.
func newTestScheduler(t *testing.T, clock *time.Time) (*Scheduler, *Metrics) {
	t.Helper()
	m := NewMetrics(prometheus.NewRegistry())
	s := New(m, discardLogger())
	s.now = func() time.Time { return *clock }
	return s, m
}

// --- Add ---

func TestAdd_Validation(t *testing.T) {
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s, _ := newTestScheduler(t, &clock)
	noop := func(context.Context) error { return nil }

	if err := s.Add(Job{Name: "a", Schedule: "*/5 * * * *", Run: noop}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(Job{Name: "a", Schedule: "@hourly", Run: noop}); err == nil {
		t.Error("duplicate job name should fail")
	}
	if err := s.Add(Job{Name: "b", Schedule: "not a cron", Run: noop}); err == nil {
		t.Error("invalid schedule should fail")
	}
	if err := s.Add(Job{Name: "", Schedule: "@hourly", Run: noop}); err == nil {
		t.Error("empty name should fail")
	}
	if err := s.Add(Job{Name: "c", Schedule: "@hourly"}); err == nil {
		t.Error("nil run should fail")
	}

	jobs := s.Jobs()
	want := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	if len(jobs) != 1 || !jobs["a"].Equal(want) {
		t.Errorf("Jobs = %v, want a at %v", jobs, want)
	}
}

func TestComputeNextRunFrom(t *testing.T) {
	from := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	got, err := ComputeNextRunFrom("@hourly", from)
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("next = %v, want %v", got, want)
	}
	if _, err := ComputeNextRunFrom("61 * * * *", from); err == nil {
		t.Error("expected error for invalid minute")
	}
}

// --- runDue ---

func TestRunDue_FiresOnlyDueJobs(t *testing.T) {
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s, m := newTestScheduler(t, &clock)

	var fast, slow atomic.Int32
	_ = s.Add(Job{Name: "fast", Schedule: "* * * * *", Run: func(context.Context) error { fast.Add(1); return nil }})
	_ = s.Add(Job{Name: "slow", Schedule: "@daily", Run: func(context.Context) error { slow.Add(1); return nil }})

	if n := s.runDue(context.Background(), clock.Add(30*time.Second)); n != 0 {
		t.Errorf("fired before due = %d, want 0", n)
	}

	clock = clock.Add(time.Minute)
	if n := s.runDue(context.Background(), clock); n != 1 {
		t.Errorf("fired = %d, want 1", n)
	}
	s.wg.Wait()

	if fast.Load() != 1 || slow.Load() != 0 {
		t.Errorf("fast = %d, slow = %d", fast.Load(), slow.Load())
	}
	if got := testutil.ToFloat64(m.JobsSucceeded.WithLabelValues("fast")); got != 1 {
		t.Errorf("succeeded = %v, want 1", got)
	}
	if next := s.Jobs()["fast"]; !next.Equal(clock.Add(time.Minute)) {
		t.Errorf("fast next = %v, want %v", next, clock.Add(time.Minute))
	}
}

func TestRunDue_FailureCounted(t *testing.T) {
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s, m := newTestScheduler(t, &clock)
	_ = s.Add(Job{Name: "broken", Schedule: "* * * * *", Run: func(context.Context) error {
		return errors.New("boom")
	}})

	s.runDue(context.Background(), clock.Add(time.Minute))
	s.wg.Wait()

	if got := testutil.ToFloat64(m.JobsFailed.WithLabelValues("broken")); got != 1 {
		t.Errorf("failed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.JobsFired.WithLabelValues("broken")); got != 1 {
		t.Errorf("fired = %v, want 1", got)
	}
}

func TestRunDue_SkipsOverlappingRun(t *testing.T) {
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s, m := newTestScheduler(t, &clock)

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	_ = s.Add(Job{Name: "long", Schedule: "* * * * *", Run: func(context.Context) error {
		started <- struct{}{}
		<-release
		return nil
	}})

	s.runDue(context.Background(), clock.Add(time.Minute))
	<-started

	if n := s.runDue(context.Background(), clock.Add(2*time.Minute)); n != 0 {
		t.Errorf("fired while running = %d, want 0", n)
	}
	close(release)
	s.wg.Wait()

	if got := testutil.ToFloat64(m.JobsMissed.WithLabelValues("long")); got != 1 {
		t.Errorf("missed = %v, want 1", got)
	}
}

func TestRunDue_PropagatesCorrelationID(t *testing.T) {
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s, _ := newTestScheduler(t, &clock)

	got := make(chan string, 1)
	_ = s.Add(Job{Name: "cid", Schedule: "* * * * *", Run: func(ctx context.Context) error {
		got <- router.CorrelationID(ctx)
		return nil
	}})
	s.runDue(context.Background(), clock.Add(time.Minute))
	s.wg.Wait()

	if id := <-got; len(id) != 16 {
		t.Errorf("correlation id = %q, want 16 hex chars", id)
	}
}

func TestNilMetrics(t *testing.T) {
	if NewMetrics(nil) != nil {
		t.Error("NewMetrics(nil) should return nil")
	}
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := New(nil, discardLogger())
	s.now = func() time.Time { return clock }
	_ = s.Add(Job{Name: "x", Schedule: "* * * * *", Run: func(context.Context) error { return errors.New("x") }})
	s.runDue(context.Background(), clock.Add(time.Minute))
	s.wg.Wait()
}

// --- Start ---

func TestStart_StopsCleanly(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := New(nil, discardLogger())
	_ = s.Add(Job{Name: "idle", Schedule: "@yearly", Run: func(context.Context) error { return nil }})

	stop := s.Start(context.Background())
	stop()
}

// --- HealthProbe ---

func TestHealthProbe_Transitions(t *testing.T) {
	var skills []router.Skill
	provider := router.CatalogFunc(func(context.Context) ([]router.Skill, error) {
		return skills, nil
	})

	var reports []catalog.HealthReport
	probe := NewHealthProbe(provider, nil, func(r catalog.HealthReport) { reports = append(reports, r) }, discardLogger())

	if probe.Last() != nil {
		t.Error("Last before first run should be nil")
	}

	if err := probe.Run(context.Background()); !errors.Is(err, catalog.ErrNoSkills) {
		t.Errorf("empty catalog err = %v, want ErrNoSkills", err)
	}

	skills = []router.Skill{{Name: "workflows-git", Description: "git"}}
	if err := probe.Run(context.Background()); err != nil {
		t.Errorf("healthy catalog err = %v", err)
	}
	if last := probe.Last(); last == nil || last.SkillsFound != 1 {
		t.Errorf("Last = %+v", last)
	}
	if len(reports) != 2 {
		t.Errorf("onResult calls = %d, want 2", len(reports))
	}
	if err := probe.Check(context.Background()); err != nil {
		t.Errorf("Check = %v", err)
	}
}

func TestHealthProbe_CheckProbesWhenEmpty(t *testing.T) {
	var calls int
	provider := router.CatalogFunc(func(context.Context) ([]router.Skill, error) {
		calls++
		return []router.Skill{{Name: "a"}}, nil
	})
	probe := NewHealthProbe(provider, nil, nil, discardLogger())

	if err := probe.Check(context.Background()); err != nil {
		t.Fatal(err)
	}
	_ = probe.Check(context.Background())
	if calls != 1 {
		t.Errorf("provider calls = %d, want 1", calls)
	}
}

// --- DecisionPurge ---

type fakePurger struct {
	storage.DecisionStore
	before time.Time
	n      int64
	err    error
}

func (f *fakePurger) PurgeDecisions(_ context.Context, before time.Time) (int64, error) {
	f.before = before
	return f.n, f.err
}

func TestDecisionPurge(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	t.Run("cutoff", func(t *testing.T) {
		store := &fakePurger{n: 3}
		p := NewDecisionPurge(store, 48*time.Hour, discardLogger())
		p.now = func() time.Time { return now }
		if err := p.Run(context.Background()); err != nil {
			t.Fatal(err)
		}
		if want := now.Add(-48 * time.Hour); !store.before.Equal(want) {
			t.Errorf("before = %v, want %v", store.before, want)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		store := &fakePurger{}
		p := NewDecisionPurge(store, 0, discardLogger())
		if err := p.Run(context.Background()); err != nil {
			t.Fatal(err)
		}
		if !store.before.IsZero() {
			t.Error("purge should not run with zero retention")
		}
	})

	t.Run("error", func(t *testing.T) {
		store := &fakePurger{err: errors.New("locked")}
		p := NewDecisionPurge(store, time.Hour, discardLogger())
		if err := p.Run(context.Background()); err == nil {
			t.Error("expected error")
		}
	})
}
