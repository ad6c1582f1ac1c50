package catalog

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"

	"github.com/jkaninda/skillrouter/internal/router"
)

const (
	defaultPollInterval = 30 * time.Second
	eventDebounce       = 150 * time.Millisecond
)

// Watcher caches an FSProvider snapshot and reloads it when skill files
// change. Changes are picked up from fsnotify events, with a periodic
// rescan as a fallback for filesystems that do not deliver events.
// Safe for concurrent use.
type Watcher struct {
	provider *FSProvider
	interval time.Duration
	logger   *slog.Logger
	onReload func(defs []Definition)

	mu           sync.RWMutex
	defs         []Definition
	result       *LoadResult
	fingerprints map[string]uint64 // path → content hash
	loaded       bool
}

// NewWatcher wraps provider. A non-positive interval uses 30s. onReload, if
// set, is called with the new snapshot after every change.
func NewWatcher(provider *FSProvider, interval time.Duration, onReload func(defs []Definition), logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Watcher{
		provider:     provider,
		interval:     interval,
		logger:       logger,
		onReload:     onReload,
		fingerprints: make(map[string]uint64),
	}
}

// Skills implements router.CatalogProvider. The first call loads the
// catalog synchronously if Run has not done so yet.
func (w *Watcher) Skills(ctx context.Context) ([]router.Skill, error) {
	w.mu.RLock()
	loaded := w.loaded
	w.mu.RUnlock()

	if !loaded {
		if _, err := w.Sync(ctx); err != nil {
			return nil, err
		}
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	return toSkills(w.defs), nil
}

// Definitions returns a copy of the current snapshot.
func (w *Watcher) Definitions() []Definition {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]Definition(nil), w.defs...)
}

// LastResult returns the load summary of the current snapshot.
func (w *Watcher) LastResult() *LoadResult {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.result
}

// Run performs an initial sync and then reloads on change until ctx is
// canceled.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.DebugContext(ctx, "catalog watcher started",
		slog.String("interval", w.interval.String()),
		slog.Int("roots", len(w.provider.Roots())),
	)

	if _, err := w.Sync(ctx); err != nil {
		w.logger.WarnContext(ctx, "catalog watcher: initial sync failed",
			slog.String("error", err.Error()),
		)
	}

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.WarnContext(ctx, "catalog watcher: fsnotify unavailable, polling only",
			slog.String("error", err.Error()),
		)
	} else {
		defer fsw.Close()
		w.addWatches(ctx, fsw)
		events, errs = fsw.Events, fsw.Errors
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("catalog watcher stopped")
			return nil

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = fsw.Add(ev.Name)
				}
			}
			if debounce == nil {
				debounce = time.After(eventDebounce)
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.WarnContext(ctx, "catalog watcher: fsnotify error",
				slog.String("error", err.Error()),
			)

		case <-debounce:
			debounce = nil
			w.syncAndLog(ctx)

		case <-ticker.C:
			w.syncAndLog(ctx)
		}
	}
}

func (w *Watcher) syncAndLog(ctx context.Context) {
	if _, err := w.Sync(ctx); err != nil && ctx.Err() == nil {
		w.logger.WarnContext(ctx, "catalog watcher: sync failed",
			slog.String("error", err.Error()),
		)
	}
}

// addWatches watches each root and its immediate subdirectories.
func (w *Watcher) addWatches(ctx context.Context, fsw *fsnotify.Watcher) {
	for _, root := range w.provider.Roots() {
		if err := fsw.Add(root); err != nil {
			w.logger.WarnContext(ctx, "catalog watcher: cannot watch root",
				slog.String("dir", root),
				slog.String("error", err.Error()),
			)
			continue
		}
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
				_ = fsw.Add(filepath.Join(root, e.Name()))
			}
		}
	}
}

// Sync rescans the roots and swaps in a new snapshot if any skill file was
// added, removed or modified. It reports whether the snapshot changed.
func (w *Watcher) Sync(ctx context.Context) (bool, error) {
	files, _, err := w.provider.files()
	if err != nil {
		return false, err
	}

	current := make(map[string]uint64, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		current[path] = fingerprint(data)
	}

	w.mu.RLock()
	unchanged := w.loaded && sameFingerprints(w.fingerprints, current)
	w.mu.RUnlock()
	if unchanged {
		return false, nil
	}

	defs, result, err := w.provider.Load(ctx)
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	w.logChanges(ctx, current)
	w.defs = defs
	w.result = result
	w.fingerprints = current
	w.loaded = true
	w.mu.Unlock()

	w.logger.InfoContext(ctx, "skill catalog reloaded",
		slog.Int("skills", len(defs)),
		slog.Int("errors", len(result.Errors)),
	)

	if w.onReload != nil {
		w.onReload(append([]Definition(nil), defs...))
	}
	return true, nil
}

// logChanges reports per-file differences. Caller holds w.mu.
func (w *Watcher) logChanges(ctx context.Context, current map[string]uint64) {
	if !w.loaded {
		return
	}
	for path, h := range current {
		prev, known := w.fingerprints[path]
		switch {
		case !known:
			w.logger.InfoContext(ctx, "skill file added", slog.String("path", path))
		case prev != h:
			w.logger.InfoContext(ctx, "skill file updated", slog.String("path", path))
		}
	}
	for path := range w.fingerprints {
		if _, ok := current[path]; !ok {
			w.logger.InfoContext(ctx, "skill file removed", slog.String("path", path))
		}
	}
}

func fingerprint(data []byte) uint64 {
	return xxhash.Sum64(data)
}

func sameFingerprints(a, b map[string]uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
