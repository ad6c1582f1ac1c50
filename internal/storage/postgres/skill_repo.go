package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jkaninda/skillrouter/internal/catalog"
	"github.com/jkaninda/skillrouter/internal/router"
	"github.com/jkaninda/skillrouter/internal/storage"
)

// SkillRepository implements storage.SkillStore with GORM.
type SkillRepository struct {
	db *gorm.DB
}

// NewSkillRepository creates a SkillRepository.
func NewSkillRepository(db *gorm.DB) *SkillRepository {
	return &SkillRepository{db: db}
}

func (r *SkillRepository) HasSkill(ctx context.Context, name string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&SkillModel{}).Where("name = ?", name).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("checking skill %s: %w", name, err)
	}
	return count > 0, nil
}

func (r *SkillRepository) UpsertSkill(ctx context.Context, def catalog.Definition) error {
	if def.Name == "" {
		return fmt.Errorf("upserting skill: name is required")
	}
	model := toSkillModel(def)
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"description", "weight", "allowed_tools",
				"version", "source_file", "fingerprint",
				"updated_at",
			}),
		}).
		Create(&model)
	if result.Error != nil {
		return fmt.Errorf("upserting skill %s: %w", def.Name, result.Error)
	}
	return nil
}

func (r *SkillRepository) DeleteSkill(ctx context.Context, name string) error {
	result := r.db.WithContext(ctx).Where("name = ?", name).Delete(&SkillModel{})
	if result.Error != nil {
		return fmt.Errorf("deleting skill %s: %w", name, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("skill %s: %w", name, storage.ErrNotFound)
	}
	return nil
}

func (r *SkillRepository) ListDefinitions(ctx context.Context) ([]catalog.Definition, error) {
	var models []SkillModel
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("listing skills: %w", err)
	}
	defs := make([]catalog.Definition, len(models))
	for i := range models {
		defs[i] = toSkillDomain(&models[i])
	}
	return defs, nil
}

// Skills implements router.CatalogProvider, ordered by name.
func (r *SkillRepository) Skills(ctx context.Context) ([]router.Skill, error) {
	defs, err := r.ListDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	skills := make([]router.Skill, len(defs))
	for i := range defs {
		skills[i] = defs[i].Skill()
	}
	return skills, nil
}

// GetDefinition returns one stored skill.
func (r *SkillRepository) GetDefinition(ctx context.Context, name string) (*catalog.Definition, error) {
	var model SkillModel
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("skill %s: %w", name, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting skill %s: %w", name, err)
	}
	def := toSkillDomain(&model)
	return &def, nil
}

func toSkillModel(d catalog.Definition) SkillModel {
	toolsJSON := "[]"
	if len(d.AllowedTools) > 0 {
		if data, err := json.Marshal([]string(d.AllowedTools)); err == nil {
			toolsJSON = string(data)
		}
	}
	var fp string
	if d.Fingerprint != 0 {
		fp = strconv.FormatUint(d.Fingerprint, 16)
	}
	return SkillModel{
		Name:         d.Name,
		Description:  d.Description,
		Weight:       d.Weight,
		AllowedTools: toolsJSON,
		Version:      d.Version,
		SourceFile:   d.SourceFile,
		Fingerprint:  fp,
	}
}

func toSkillDomain(m *SkillModel) catalog.Definition {
	var tools []string
	if m.AllowedTools != "" && m.AllowedTools != "[]" {
		_ = json.Unmarshal([]byte(m.AllowedTools), &tools)
	}
	fp, _ := strconv.ParseUint(m.Fingerprint, 16, 64)
	return catalog.Definition{
		Name:         m.Name,
		Description:  m.Description,
		Weight:       m.Weight,
		AllowedTools: catalog.ToolList(tools),
		Version:      m.Version,
		SourceFile:   m.SourceFile,
		Fingerprint:  fp,
	}
}

// Compile-time check.
var _ storage.SkillStore = (*SkillRepository)(nil)
