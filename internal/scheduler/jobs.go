package scheduler

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jkaninda/skillrouter/internal/catalog"
	"github.com/jkaninda/skillrouter/internal/router"
	"github.com/jkaninda/skillrouter/internal/storage"
)

// Job names registered by the serve command.
const (
	HealthProbeJob   = "catalog-health"
	DecisionPurgeJob = "decision-purge"
)

// HealthProbe periodically checks the catalog and logs transitions
// between healthy and degraded.
type HealthProbe struct {
	provider router.CatalogProvider
	roots    []string
	onResult func(report catalog.HealthReport)
	logger   *slog.Logger

	mu   sync.RWMutex
	last *catalog.HealthReport
}

// NewHealthProbe creates a probe. onResult, if set, receives every report.
func NewHealthProbe(provider router.CatalogProvider, roots []string, onResult func(report catalog.HealthReport), logger *slog.Logger) *HealthProbe {
	return &HealthProbe{
		provider: provider,
		roots:    roots,
		onResult: onResult,
		logger:   logger,
	}
}

// Run performs one probe. It returns catalog.ErrNoSkills when degraded so
// the scheduler counts the run as failed.
func (p *HealthProbe) Run(ctx context.Context) error {
	report := catalog.Health(ctx, p.provider, p.roots)

	p.mu.Lock()
	prev := p.last
	p.last = &report
	p.mu.Unlock()

	switch {
	case report.Status != catalog.StatusOK && (prev == nil || prev.Status == catalog.StatusOK):
		p.logger.WarnContext(ctx, "catalog health degraded",
			slog.Int("skills_found", report.SkillsFound),
			slog.String("errors", strings.Join(report.Errors, "; ")),
		)
	case report.Status == catalog.StatusOK && prev != nil && prev.Status != catalog.StatusOK:
		p.logger.InfoContext(ctx, "catalog health recovered",
			slog.Int("skills_found", report.SkillsFound),
		)
	}

	if p.onResult != nil {
		p.onResult(report)
	}
	return report.Err()
}

// Last returns the most recent report, or nil before the first run.
func (p *HealthProbe) Last() *catalog.HealthReport {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

// Check adapts the probe for readiness checks: it reports the last
// scheduled result and probes synchronously if none exists yet.
func (p *HealthProbe) Check(ctx context.Context) error {
	if last := p.Last(); last != nil {
		return last.Err()
	}
	return p.Run(ctx)
}

// DecisionPurge deletes decision log rows older than retention.
type DecisionPurge struct {
	store     storage.DecisionStore
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewDecisionPurge creates a purge job body.
func NewDecisionPurge(store storage.DecisionStore, retention time.Duration, logger *slog.Logger) *DecisionPurge {
	return &DecisionPurge{
		store:     store,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

// Run purges once. A non-positive retention keeps everything.
func (p *DecisionPurge) Run(ctx context.Context) error {
	if p.retention <= 0 {
		return nil
	}
	cutoff := p.now().Add(-p.retention)
	n, err := p.store.PurgeDecisions(ctx, cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		p.logger.InfoContext(ctx, "purged routing decisions",
			slog.Int64("deleted", n),
			slog.Time("before", cutoff),
		)
	}
	return nil
}
