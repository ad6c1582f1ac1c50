package postgres

import (
	"gorm.io/gorm"

	"github.com/jkaninda/skillrouter/internal/storage"
)

// DecisionScope returns a GORM scope applying every set field of f.
func DecisionScope(f storage.DecisionFilter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if f.Surface != "" {
			db = db.Where("surface = ?", f.Surface)
		}
		if f.TopSkill != "" {
			db = db.Where("top_skill = ?", f.TopSkill)
		}
		if f.PassingOnly {
			db = db.Where("passes_threshold = ?", true)
		}
		if !f.Since.IsZero() {
			db = db.Where("created_at >= ?", f.Since)
		}
		return db
	}
}
