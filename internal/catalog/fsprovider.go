package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/jkaninda/skillrouter/internal/router"
)

// FSProvider reads skills from SKILL.md files under one or more roots.
// Every call rescans the disk; wrap it in a Watcher to cache.
type FSProvider struct {
	roots    []string
	patterns []string
	logger   *slog.Logger

	mu   sync.Mutex
	last *LoadResult
}

// NewFSProvider creates a provider over roots. Empty patterns default to
// DefaultPatterns. Patterns are doublestar globs relative to each root.
func NewFSProvider(roots, patterns []string, logger *slog.Logger) *FSProvider {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	return &FSProvider{
		roots:    roots,
		patterns: patterns,
		logger:   logger,
	}
}

// Roots returns the configured skill roots.
func (p *FSProvider) Roots() []string { return p.roots }

// LastResult returns the result of the most recent completed Load, or nil
// before the first one.
func (p *FSProvider) LastResult() *LoadResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Skills implements router.CatalogProvider.
func (p *FSProvider) Skills(ctx context.Context) ([]router.Skill, error) {
	defs, _, err := p.Load(ctx)
	if err != nil {
		return nil, err
	}
	return toSkills(defs), nil
}

// Load scans every root and parses each matching file. Files that fail to
// parse, and later files reusing an already loaded name, are reported in the
// result and skipped. An error is returned only for an invalid pattern or a
// canceled context.
func (p *FSProvider) Load(ctx context.Context) ([]Definition, *LoadResult, error) {
	correlationID := newCorrelationID()

	files, missing, err := p.files()
	if err != nil {
		return nil, nil, err
	}

	result := &LoadResult{}
	for _, root := range missing {
		p.logger.WarnContext(ctx, "skills root not found",
			slog.String("dir", root),
			slog.String("correlation_id", correlationID),
		)
		result.Errors = append(result.Errors, LoadError{File: root, Message: "directory does not exist"})
	}

	var defs []Definition
	firstSeen := make(map[string]string)

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		def, err := ParseFile(path)
		if err != nil {
			p.logger.WarnContext(ctx, "skill parse error",
				slog.String("file", path),
				slog.String("error", err.Error()),
				slog.String("correlation_id", correlationID),
			)
			result.Errors = append(result.Errors, LoadError{File: path, Message: err.Error()})
			continue
		}

		if prev, dup := firstSeen[def.Name]; dup {
			msg := fmt.Sprintf("duplicate skill name %q (first defined in %s)", def.Name, prev)
			p.logger.WarnContext(ctx, "skill skipped",
				slog.String("file", path),
				slog.String("skill", def.Name),
				slog.String("error", msg),
				slog.String("correlation_id", correlationID),
			)
			result.Errors = append(result.Errors, LoadError{File: path, Message: msg})
			continue
		}
		firstSeen[def.Name] = path

		p.logger.DebugContext(ctx, "skill definition loaded",
			slog.String("name", def.Name),
			slog.String("file", path),
			slog.String("correlation_id", correlationID),
		)
		defs = append(defs, *def)
		result.Loaded++
	}

	p.logger.DebugContext(ctx, "skill catalog scan complete",
		slog.Int("loaded", result.Loaded),
		slog.Int("errors", len(result.Errors)),
		slog.String("correlation_id", correlationID),
	)

	p.mu.Lock()
	p.last = result
	p.mu.Unlock()
	return defs, result, nil
}

// files returns the matching files in root order, sorted within each root
// and de-duplicated across patterns, plus the roots that do not exist.
func (p *FSProvider) files() (files, missing []string, err error) {
	seen := make(map[string]struct{})

	for _, root := range p.roots {
		if info, statErr := os.Stat(root); statErr != nil || !info.IsDir() {
			missing = append(missing, root)
			continue
		}

		var rootFiles []string
		for _, pattern := range p.patterns {
			if !doublestar.ValidatePattern(pattern) {
				return nil, nil, fmt.Errorf("invalid skill pattern %q", pattern)
			}
			matches, err := doublestar.FilepathGlob(filepath.Join(root, pattern), doublestar.WithFilesOnly())
			if err != nil {
				return nil, nil, fmt.Errorf("globbing %s in %s: %w", pattern, root, err)
			}
			for _, m := range matches {
				if _, dup := seen[m]; dup {
					continue
				}
				seen[m] = struct{}{}
				rootFiles = append(rootFiles, m)
			}
		}
		sort.Strings(rootFiles)
		files = append(files, rootFiles...)
	}
	return files, missing, nil
}

func toSkills(defs []Definition) []router.Skill {
	skills := make([]router.Skill, len(defs))
	for i := range defs {
		skills[i] = defs[i].Skill()
	}
	return skills
}
