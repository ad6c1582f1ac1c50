package catalog

import (
	"context"
	"os"

	"github.com/jkaninda/skillrouter/internal/router"
)

// Health status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// HealthReport describes the catalog for diagnostics.
type HealthReport struct {
	Status      string          `json:"status"`
	SkillsFound int             `json:"skills_found"`
	SkillNames  []string        `json:"skill_names"`
	SkillsDirs  []string        `json:"skills_dirs"`
	DirsExist   map[string]bool `json:"skills_dirs_exist"`
	Errors      []string        `json:"errors,omitempty"`
}

// Err returns ErrNoSkills when the report is not ok.
func (r HealthReport) Err() error {
	if r.Status == StatusOK {
		return nil
	}
	return ErrNoSkills
}

// Health loads the catalog through provider and reports what it found.
// roots are only inspected for existence. An empty catalog or a provider
// failure yields status "error".
func Health(ctx context.Context, provider router.CatalogProvider, roots []string) HealthReport {
	report := HealthReport{
		Status:     StatusError,
		SkillNames: []string{},
		SkillsDirs: append([]string{}, roots...),
		DirsExist:  make(map[string]bool, len(roots)),
	}

	for _, root := range roots {
		info, err := os.Stat(root)
		report.DirsExist[root] = err == nil && info.IsDir()
	}

	skills, err := provider.Skills(ctx)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		return report
	}

	for _, s := range skills {
		report.SkillNames = append(report.SkillNames, s.Name)
	}
	report.SkillsFound = len(skills)
	if report.SkillsFound > 0 {
		report.Status = StatusOK
	}

	if l, ok := provider.(interface{ LastResult() *LoadResult }); ok {
		if res := l.LastResult(); res != nil {
			for _, e := range res.Errors {
				report.Errors = append(report.Errors, e.String())
			}
		}
	}
	return report
}
