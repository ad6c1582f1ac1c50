package postgres

import (
	"time"

	"github.com/google/uuid"
)

// DecisionModel maps to the "routing_decisions" table.
type DecisionModel struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	CorrelationID   string    `gorm:"index"`
	Surface         string    `gorm:"not null;index:idx_decisions_surface_created,priority:1"`
	Query           string    `gorm:"type:text;not null"`
	TopSkill        string    `gorm:"index"`
	Confidence      float64   `gorm:"not null;default:0"`
	Uncertainty     float64   `gorm:"not null;default:0"`
	PassesThreshold bool      `gorm:"not null;default:false"`
	Recommendations string    `gorm:"type:text;not null;default:'[]'"` // JSON array.
	CreatedAt       time.Time `gorm:"not null;index;index:idx_decisions_surface_created,priority:2"`
}

func (DecisionModel) TableName() string { return "routing_decisions" }

// SkillModel maps to the "skills" table. Skills are keyed by name, the
// same identity the router uses.
type SkillModel struct {
	Name         string  `gorm:"primaryKey"`
	Description  string  `gorm:"type:text;not null"`
	Weight       float64 `gorm:"not null;default:0"`
	AllowedTools string  `gorm:"type:text;not null;default:'[]'"` // JSON array.
	Version      string
	SourceFile   string
	Fingerprint  string // xxhash of the source file, hex.
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (SkillModel) TableName() string { return "skills" }

// allModels lists every model in migration order.
func allModels() []any {
	return []any{&DecisionModel{}, &SkillModel{}}
}
