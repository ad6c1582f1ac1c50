// Package storage defines the persistence interfaces for the routing
// decision log and the database-registered skill catalog.
// Two backends are provided: SQLite (default, zero-config) and PostgreSQL.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/skillrouter/internal/catalog"
	"github.com/jkaninda/skillrouter/internal/router"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store is the unified persistence interface. Both the SQLite and the
// PostgreSQL backends implement it over the same GORM models.
type Store interface {
	Decisions() DecisionStore
	Skills() SkillStore

	// Lifecycle.
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error

	// Driver returns the storage driver name ("sqlite" or "postgres").
	Driver() string
}

// Decision is one audited Route call. Decisions are written for review
// only and never feed back into scoring.
type Decision struct {
	ID              uuid.UUID               `json:"id"`
	CorrelationID   string                  `json:"correlation_id,omitempty"`
	Surface         string                  `json:"surface"`
	Query           string                  `json:"query"`
	TopSkill        string                  `json:"top_skill,omitempty"`
	Confidence      float64                 `json:"confidence"`
	Uncertainty     float64                 `json:"uncertainty"`
	PassesThreshold bool                    `json:"passes_threshold"`
	Recommendations []router.Recommendation `json:"recommendations"`
	CreatedAt       time.Time               `json:"created_at"`
}

// NewDecision builds a decision record from a routing result. The top
// fields mirror recs[0] when there is one.
func NewDecision(correlationID, surface, query string, recs []router.Recommendation) *Decision {
	d := &Decision{
		ID:              uuid.New(),
		CorrelationID:   correlationID,
		Surface:         surface,
		Query:           query,
		Recommendations: recs,
		CreatedAt:       time.Now().UTC(),
	}
	if d.Recommendations == nil {
		d.Recommendations = []router.Recommendation{}
	}
	if len(recs) > 0 {
		d.TopSkill = recs[0].Skill
		d.Confidence = recs[0].Confidence
		d.Uncertainty = recs[0].Uncertainty
		d.PassesThreshold = recs[0].PassesThreshold
	}
	return d
}

// DecisionFilter narrows ListDecisions. Zero values mean "any".
type DecisionFilter struct {
	Limit       int // Default 50, capped at 500.
	Surface     string
	TopSkill    string
	PassingOnly bool
	Since       time.Time
}

// Default and maximum page sizes for ListDecisions.
const (
	DefaultDecisionLimit = 50
	MaxDecisionLimit     = 500
)

// EffectiveLimit applies the default and cap to f.Limit.
func (f DecisionFilter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultDecisionLimit
	case f.Limit > MaxDecisionLimit:
		return MaxDecisionLimit
	default:
		return f.Limit
	}
}

// DecisionStore persists routing decisions.
type DecisionStore interface {
	RecordDecision(ctx context.Context, d *Decision) error
	GetDecision(ctx context.Context, id uuid.UUID) (*Decision, error)
	// ListDecisions returns matching decisions, newest first.
	ListDecisions(ctx context.Context, f DecisionFilter) ([]Decision, error)
	// PurgeDecisions deletes decisions created before cutoff.
	PurgeDecisions(ctx context.Context, before time.Time) (int64, error)
}

// SkillStore keeps skill definitions in the database. It is both the
// target of catalog.Seed and a router.CatalogProvider.
type SkillStore interface {
	catalog.SkillStore
	router.CatalogProvider

	ListDefinitions(ctx context.Context) ([]catalog.Definition, error)
	DeleteSkill(ctx context.Context, name string) error
}

// Storage driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DefaultDriver  = DriverSQLite
)
