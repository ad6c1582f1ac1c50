package catalog

import (
	"context"
	"log/slog"
)

// SkillStore persists skill definitions. storage.SkillRepository is the
// production implementation.
type SkillStore interface {
	// HasSkill reports whether a skill with name is already stored.
	HasSkill(ctx context.Context, name string) (bool, error)
	UpsertSkill(ctx context.Context, def Definition) error
}

// SeedResult summarizes a seeding operation.
type SeedResult struct {
	Seeded  int
	Skipped int
	Failed  int
}

// Seed copies definitions into store. Skills already present are skipped
// unless overwrite is set, so hand-edited rows survive a restart.
func Seed(ctx context.Context, store SkillStore, defs []Definition, overwrite bool, logger *slog.Logger) *SeedResult {
	correlationID := newCorrelationID()
	result := &SeedResult{}

	for i := range defs {
		def := &defs[i]

		if !overwrite {
			exists, err := store.HasSkill(ctx, def.Name)
			if err == nil && exists {
				logger.DebugContext(ctx, "skill already stored, skipping",
					slog.String("skill", def.Name),
					slog.String("correlation_id", correlationID),
				)
				result.Skipped++
				continue
			}
		}

		if err := store.UpsertSkill(ctx, *def); err != nil {
			logger.WarnContext(ctx, "failed to seed skill",
				slog.String("skill", def.Name),
				slog.String("error", err.Error()),
				slog.String("correlation_id", correlationID),
			)
			result.Failed++
			continue
		}

		logger.DebugContext(ctx, "skill seeded",
			slog.String("skill", def.Name),
			slog.String("source_file", def.SourceFile),
			slog.String("correlation_id", correlationID),
		)
		result.Seeded++
	}

	logger.InfoContext(ctx, "skill seeding complete",
		slog.Int("seeded", result.Seeded),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed),
		slog.String("correlation_id", correlationID),
	)
	return result
}
