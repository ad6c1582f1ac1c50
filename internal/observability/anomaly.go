package observability

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jkaninda/skillrouter/internal/config"
)

const (
	defaultAnomalyWindow     = 300 * time.Second
	defaultAnomalyMinSamples = 5
)

// AnomalyDetector watches routing outcomes per surface over a sliding
// window and warns when the share of requests that end without a
// recommendation passing the gate rises above the configured threshold.
// A climbing miss rate usually means the catalog lost skills or the
// keyword tables drifted from how users phrase requests.
type AnomalyDetector struct {
	mu     sync.Mutex
	misses map[string]*slidingWindow
	hits   map[string]*slidingWindow
	warned map[string]bool
	cfg    *config.AnomalyConfig
	logger *slog.Logger
	now    func() time.Time
}

type slidingWindow struct {
	entries []time.Time
	window  time.Duration
}

// NewAnomalyDetector creates an anomaly detector from config.
func NewAnomalyDetector(cfg *config.AnomalyConfig, logger *slog.Logger) *AnomalyDetector {
	return &AnomalyDetector{
		misses: make(map[string]*slidingWindow),
		hits:   make(map[string]*slidingWindow),
		warned: make(map[string]bool),
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (a *AnomalyDetector) windowDuration() time.Duration {
	if a.cfg.WindowSeconds <= 0 {
		return defaultAnomalyWindow
	}
	return time.Duration(a.cfg.WindowSeconds) * time.Second
}

func (a *AnomalyDetector) minSamples() int {
	if a.cfg.MinSamples <= 0 {
		return defaultAnomalyMinSamples
	}
	return a.cfg.MinSamples
}

// RecordOutcome records one routing request. passed reports whether the
// first recommendation cleared the gate.
func (a *AnomalyDetector) RecordOutcome(surface string, passed bool) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if passed {
		a.window(a.hits, surface).add(now)
	} else {
		a.window(a.misses, surface).add(now)
	}
	a.checkMissRate(surface, now)
}

// MissRate returns the current miss rate and sample count for surface.
func (a *AnomalyDetector) MissRate(surface string) (float64, int) {
	if a == nil {
		return 0, 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.missRate(surface, a.now())
}

// Must be called with a.mu held.
func (a *AnomalyDetector) missRate(surface string, now time.Time) (float64, int) {
	misses := a.window(a.misses, surface).count(now)
	total := misses + a.window(a.hits, surface).count(now)
	if total == 0 {
		return 0, 0
	}
	return float64(misses) / float64(total), total
}

// checkMissRate warns once when the rate crosses the threshold and logs
// recovery when it falls back. Must be called with a.mu held.
func (a *AnomalyDetector) checkMissRate(surface string, now time.Time) {
	threshold := a.cfg.MissRateThreshold
	if threshold <= 0 {
		return
	}

	rate, total := a.missRate(surface, now)
	if total < a.minSamples() {
		return
	}

	switch {
	case rate > threshold && !a.warned[surface]:
		a.warned[surface] = true
		if a.logger != nil {
			a.logger.Warn("anomaly detected: high routing miss rate",
				slog.String("surface", surface),
				slog.Float64("miss_rate", rate),
				slog.Float64("threshold", threshold),
				slog.Int("samples", total),
			)
		}
	case rate <= threshold && a.warned[surface]:
		a.warned[surface] = false
		if a.logger != nil {
			a.logger.Info("routing miss rate recovered",
				slog.String("surface", surface),
				slog.Float64("miss_rate", rate),
			)
		}
	}
}

func (a *AnomalyDetector) window(m map[string]*slidingWindow, key string) *slidingWindow {
	w, ok := m[key]
	if !ok {
		w = &slidingWindow{window: a.windowDuration()}
		m[key] = w
	}
	return w
}

func (w *slidingWindow) add(at time.Time) {
	w.entries = append(w.entries, at)
	w.prune(at)
}

func (w *slidingWindow) count(now time.Time) int {
	w.prune(now)
	return len(w.entries)
}

// prune drops entries older than the window. Entries are in time order.
func (w *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.entries) && w.entries[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		w.entries = w.entries[i:]
	}
}
