// Package scheduler runs skillrouter's periodic maintenance on cron
// schedules: catalog health probes and decision log retention.
//
// A job never overlaps itself. If a run is still in progress when the
// next firing comes due, that firing is skipped and counted as missed.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jkaninda/skillrouter/internal/config"
	"github.com/jkaninda/skillrouter/internal/router"
)

const defaultMaxConcurrent = 2

// Job is a named unit of periodic work.
type Job struct {
	Name     string
	Schedule string // 5-field cron expression or descriptor such as "@hourly".
	Run      func(ctx context.Context) error
}

type entry struct {
	job      Job
	schedule cron.Schedule
	next     time.Time
	running  atomic.Bool
}

// Scheduler fires registered jobs when their schedule comes due.
type Scheduler struct {
	mu      sync.Mutex
	entries []*entry
	metrics *Metrics
	logger  *slog.Logger
	sem     chan struct{}
	wg      sync.WaitGroup
	now     func() time.Time
}

// New creates a Scheduler. metrics may be nil.
func New(metrics *Metrics, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		metrics: metrics,
		logger:  logger,
		sem:     make(chan struct{}, defaultMaxConcurrent),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Add registers job. The schedule is validated immediately.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("scheduler job requires a name and a run function")
	}
	sched, err := config.ParseSchedule(job.Schedule)
	if err != nil {
		return fmt.Errorf("job %s: %w", job.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.job.Name == job.Name {
			return fmt.Errorf("job %s already registered", job.Name)
		}
	}
	s.entries = append(s.entries, &entry{
		job:      job,
		schedule: sched,
		next:     sched.Next(s.now()),
	})
	return nil
}

// Jobs returns the registered job names with their next run time.
func (s *Scheduler) Jobs() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.entries))
	for _, e := range s.entries {
		out[e.job.Name] = e.next
	}
	return out
}

// Start runs the scheduler loop in a goroutine. The returned function
// stops the loop and waits for in-flight jobs to finish.
func (s *Scheduler) Start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		s.logger.InfoContext(ctx, "scheduler started", slog.Any("jobs", s.names()))

		for {
			wait := s.untilNext()
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				s.logger.Info("scheduler stopped")
				return
			case <-timer.C:
				s.runDue(ctx, s.now())
			}
		}
	}()

	return func() {
		cancel()
		<-done
		s.wg.Wait()
	}
}

// untilNext returns the delay until the earliest scheduled run.
func (s *Scheduler) untilNext() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return time.Hour
	}
	earliest := s.entries[0].next
	for _, e := range s.entries[1:] {
		if e.next.Before(earliest) {
			earliest = e.next
		}
	}
	if d := earliest.Sub(s.now()); d > 0 {
		return d
	}
	return 0
}

// runDue fires every job whose next run is at or before now and returns
// how many were started.
func (s *Scheduler) runDue(ctx context.Context, now time.Time) int {
	start := time.Now()

	s.mu.Lock()
	var due []*entry
	for _, e := range s.entries {
		if e.next.After(now) {
			continue
		}
		e.next = e.schedule.Next(now)
		due = append(due, e)
	}
	s.mu.Unlock()

	fired := 0
	for _, e := range due {
		if !e.running.CompareAndSwap(false, true) {
			s.logger.WarnContext(ctx, "scheduled job still running, skipping",
				slog.String("job", e.job.Name),
			)
			if s.metrics != nil {
				s.metrics.JobsMissed.WithLabelValues(e.job.Name).Inc()
			}
			continue
		}
		fired++
		s.wg.Add(1)
		go func(e *entry) {
			defer s.wg.Done()
			defer e.running.Store(false)
			s.sem <- struct{}{}
			defer func() { <-s.sem }()
			s.fire(ctx, e)
		}(e)
	}

	if s.metrics != nil && len(due) > 0 {
		s.metrics.TickDuration.Observe(time.Since(start).Seconds())
	}
	return fired
}

// fire runs a single job and records the result.
func (s *Scheduler) fire(ctx context.Context, e *entry) {
	correlationID := router.NewCorrelationID()
	ctx = router.WithCorrelationID(ctx, correlationID)

	s.logger.DebugContext(ctx, "firing scheduled job",
		slog.String("job", e.job.Name),
		slog.String("correlation_id", correlationID),
	)
	if s.metrics != nil {
		s.metrics.JobsFired.WithLabelValues(e.job.Name).Inc()
	}

	started := time.Now()
	err := e.job.Run(ctx)
	elapsed := time.Since(started)

	if s.metrics != nil {
		s.metrics.JobDuration.WithLabelValues(e.job.Name).Observe(elapsed.Seconds())
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "scheduled job failed",
			slog.String("job", e.job.Name),
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		if s.metrics != nil {
			s.metrics.JobsFailed.WithLabelValues(e.job.Name).Inc()
		}
		return
	}
	if s.metrics != nil {
		s.metrics.JobsSucceeded.WithLabelValues(e.job.Name).Inc()
	}
}

func (s *Scheduler) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.job.Name
	}
	sort.Strings(names)
	return names
}

// ComputeNextRunFrom computes the next run time of expr after from.
func ComputeNextRunFrom(expr string, from time.Time) (time.Time, error) {
	sched, err := config.ParseSchedule(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}
