package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jkaninda/skillrouter/internal/router"
	"github.com/jkaninda/skillrouter/internal/storage"
)

// DecisionRepository implements storage.DecisionStore with GORM.
type DecisionRepository struct {
	db *gorm.DB
}

// NewDecisionRepository creates a DecisionRepository.
func NewDecisionRepository(db *gorm.DB) *DecisionRepository {
	return &DecisionRepository{db: db}
}

func (r *DecisionRepository) RecordDecision(ctx context.Context, d *storage.Decision) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	model, err := toDecisionModel(d)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("recording decision %s: %w", d.ID, err)
	}
	return nil
}

func (r *DecisionRepository) GetDecision(ctx context.Context, id uuid.UUID) (*storage.Decision, error) {
	var model DecisionModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("decision %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting decision %s: %w", id, err)
	}
	return toDecisionDomain(&model), nil
}

func (r *DecisionRepository) ListDecisions(ctx context.Context, f storage.DecisionFilter) ([]storage.Decision, error) {
	var models []DecisionModel
	err := r.db.WithContext(ctx).
		Scopes(DecisionScope(f)).
		Order("created_at DESC").
		Limit(f.EffectiveLimit()).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("listing decisions: %w", err)
	}
	out := make([]storage.Decision, len(models))
	for i := range models {
		out[i] = *toDecisionDomain(&models[i])
	}
	return out, nil
}

func (r *DecisionRepository) PurgeDecisions(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", before.UTC()).
		Delete(&DecisionModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("purging decisions before %s: %w", before.Format(time.RFC3339), result.Error)
	}
	return result.RowsAffected, nil
}

func toDecisionModel(d *storage.Decision) (DecisionModel, error) {
	recs := d.Recommendations
	if recs == nil {
		recs = []router.Recommendation{}
	}
	data, err := json.Marshal(recs)
	if err != nil {
		return DecisionModel{}, fmt.Errorf("encoding recommendations: %w", err)
	}
	return DecisionModel{
		ID:              d.ID,
		CorrelationID:   d.CorrelationID,
		Surface:         d.Surface,
		Query:           d.Query,
		TopSkill:        d.TopSkill,
		Confidence:      d.Confidence,
		Uncertainty:     d.Uncertainty,
		PassesThreshold: d.PassesThreshold,
		Recommendations: string(data),
		CreatedAt:       d.CreatedAt,
	}, nil
}

func toDecisionDomain(m *DecisionModel) *storage.Decision {
	recs := []router.Recommendation{}
	if m.Recommendations != "" {
		_ = json.Unmarshal([]byte(m.Recommendations), &recs)
	}
	return &storage.Decision{
		ID:              m.ID,
		CorrelationID:   m.CorrelationID,
		Surface:         m.Surface,
		Query:           m.Query,
		TopSkill:        m.TopSkill,
		Confidence:      m.Confidence,
		Uncertainty:     m.Uncertainty,
		PassesThreshold: m.PassesThreshold,
		Recommendations: recs,
		CreatedAt:       m.CreatedAt,
	}
}

// Compile-time check.
var _ storage.DecisionStore = (*DecisionRepository)(nil)
