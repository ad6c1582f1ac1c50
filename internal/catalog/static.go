package catalog

import (
	"context"

	"github.com/jkaninda/skillrouter/internal/router"
)

// StaticProvider serves a fixed skill list.
type StaticProvider struct {
	skills []router.Skill
}

// NewStaticProvider copies skills into a provider.
func NewStaticProvider(skills ...router.Skill) *StaticProvider {
	return &StaticProvider{skills: append([]router.Skill(nil), skills...)}
}

// Skills implements router.CatalogProvider. Callers get their own copy.
func (p *StaticProvider) Skills(context.Context) ([]router.Skill, error) {
	return append([]router.Skill(nil), p.skills...), nil
}

// CommandBridges are slash-command entries routed alongside file-based
// skills.
func CommandBridges() []router.Skill {
	return []router.Skill{
		{
			Name:        "command-spec-kit",
			Description: "Create specifications and plans using /spec_kit slash command for new features or complex changes.",
			Weight:      1.0,
		},
		{
			Name:        "command-memory-save",
			Description: "Save conversation context to memory using /memory:save.",
			Weight:      1.0,
		},
	}
}

// MultiProvider concatenates providers in order. A name served by an
// earlier provider hides the same name in later ones.
type MultiProvider struct {
	providers []router.CatalogProvider
}

// NewMultiProvider composes providers. Nil entries are ignored.
func NewMultiProvider(providers ...router.CatalogProvider) *MultiProvider {
	m := &MultiProvider{}
	for _, p := range providers {
		if p != nil {
			m.providers = append(m.providers, p)
		}
	}
	return m
}

// Skills implements router.CatalogProvider. The first provider error aborts.
func (m *MultiProvider) Skills(ctx context.Context) ([]router.Skill, error) {
	var out []router.Skill
	seen := make(map[string]struct{})

	for _, p := range m.providers {
		skills, err := p.Skills(ctx)
		if err != nil {
			return nil, err
		}
		for _, s := range skills {
			if _, dup := seen[s.Name]; dup {
				continue
			}
			seen[s.Name] = struct{}{}
			out = append(out, s)
		}
	}
	return out, nil
}

// LastResult merges the load summaries of providers that keep one.
func (m *MultiProvider) LastResult() *LoadResult {
	var merged *LoadResult
	for _, p := range m.providers {
		l, ok := p.(interface{ LastResult() *LoadResult })
		if !ok {
			continue
		}
		res := l.LastResult()
		if res == nil {
			continue
		}
		if merged == nil {
			merged = &LoadResult{}
		}
		merged.Loaded += res.Loaded
		merged.Errors = append(merged.Errors, res.Errors...)
	}
	return merged
}
