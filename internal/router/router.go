// Package router ranks a catalog of skills against a free-text request.
//
// Scoring is deterministic and table-driven: the request is tokenized,
// intent keywords are matched on the raw token stream, the remaining
// meaningful words are expanded with synonyms and matched against each
// skill's name and description. The fused score is mapped to a confidence
// value, an independent uncertainty value is derived from how much
// evidence fired, and a dual threshold decides whether a recommendation
// is actionable. Nothing is cached between calls.
package router

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
)

// maxReasonLabels caps the provenance labels listed in Recommendation.Reason.
const maxReasonLabels = 5

// Skill is a routable capability.
type Skill struct {
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description" yaml:"description"`
	Weight      float64 `json:"weight" yaml:"weight"` // <= 0 means 1.0
}

// CatalogProvider supplies the current skill catalog. Implementations may
// read from disk, a database or memory; the router calls Skills once per
// request and never mutates the result.
type CatalogProvider interface {
	Skills(ctx context.Context) ([]Skill, error)
}

// CatalogFunc adapts a function to CatalogProvider.
type CatalogFunc func(ctx context.Context) ([]Skill, error)

// Skills implements CatalogProvider.
func (f CatalogFunc) Skills(ctx context.Context) ([]Skill, error) { return f(ctx) }

// Recommendation is one ranked skill for a request.
type Recommendation struct {
	Skill           string  `json:"skill"`
	Confidence      float64 `json:"confidence"`
	Uncertainty     float64 `json:"uncertainty"`
	PassesThreshold bool    `json:"passes_threshold"`
	Reason          string  `json:"reason"`
}

// Candidate is a Recommendation together with the evidence behind it.
type Candidate struct {
	Recommendation
	Score       float64 `json:"score"`
	IntentBoost float64 `json:"intent_boost"`
	CorpusScore float64 `json:"corpus_score"`
	Matches     []Match `json:"matches"`
}

// Router scores requests against a catalog.
type Router struct {
	catalog    CatalogProvider
	tables     *Tables
	thresholds Thresholds
	logger     *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithTables replaces the built-in keyword tables.
func WithTables(t *Tables) Option {
	return func(r *Router) {
		if t != nil {
			r.tables = t
		}
	}
}

// WithThresholds replaces the default dual gate.
func WithThresholds(t Thresholds) Option {
	return func(r *Router) { r.thresholds = t }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Router over catalog.
func New(catalog CatalogProvider, opts ...Option) *Router {
	r := &Router{
		catalog:    catalog,
		tables:     DefaultTables(),
		thresholds: DefaultThresholds(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Thresholds returns the gate the router applies.
func (r *Router) Thresholds() Thresholds { return r.thresholds }

// Tables returns the keyword tables the router scores with.
func (r *Router) Tables() *Tables { return r.tables }

// Route ranks the catalog against text and returns recommendations sorted
// by descending confidence. Empty text yields an empty list. Filters in
// opts are applied after ranking.
func (r *Router) Route(ctx context.Context, text string, opts ...RouteOption) ([]Recommendation, error) {
	cands, err := r.Explain(ctx, text)
	if err != nil {
		return nil, err
	}
	recs := make([]Recommendation, len(cands))
	for i := range cands {
		recs[i] = cands[i].Recommendation
	}
	return Filter(recs, opts...), nil
}

// Explain is Route without filtering, returning the score breakdown of
// every candidate.
func (r *Router) Explain(ctx context.Context, text string) ([]Candidate, error) {
	if strings.TrimSpace(text) == "" {
		return []Candidate{}, nil
	}

	skills, err := r.catalog.Skills(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading skill catalog: %w", err)
	}

	cands := Rank(text, skills, r.tables, r.thresholds)

	r.logger.DebugContext(ctx, "request ranked",
		slog.Int("skills", len(skills)),
		slog.Int("candidates", len(cands)),
	)
	return cands, nil
}

// Rank scores every skill against text. Skills with a total score of zero
// are omitted; the rest are sorted by descending confidence, ties keeping
// catalog order. A skill name that repeats in the catalog is scored once.
func Rank(text string, skills []Skill, tables *Tables, gate Thresholds) []Candidate {
	tokens := tables.Normalize(text)
	if len(tokens.All) == 0 {
		return []Candidate{}
	}

	signals := tables.ExtractSignals(tokens.All)
	terms := tables.Expand(tokens.Filtered)

	cands := make([]Candidate, 0, len(skills))
	seen := make(map[string]struct{}, len(skills))

	for _, s := range skills {
		if _, dup := seen[s.Name]; dup || s.Name == "" {
			continue
		}
		seen[s.Name] = struct{}{}

		boost := signals.Boost[s.Name]
		corpusScore, corpusMatches := newSkillCorpus(s, tables).score(terms)

		total := boost + corpusScore
		if total <= 0 {
			continue
		}

		matches := make([]Match, 0, len(signals.Matches[s.Name])+len(corpusMatches))
		matches = append(matches, signals.Matches[s.Name]...)
		matches = append(matches, corpusMatches...)

		hasBoost := boost > 0
		conf := round2(Confidence(total, hasBoost, s.Weight))
		uncert := Uncertainty(len(matches), hasBoost, countAmbiguous(matches))

		cands = append(cands, Candidate{
			Recommendation: Recommendation{
				Skill:           s.Name,
				Confidence:      conf,
				Uncertainty:     uncert,
				PassesThreshold: gate.Passes(conf, uncert),
				Reason:          reason(matches),
			},
			Score:       total,
			IntentBoost: boost,
			CorpusScore: corpusScore,
			Matches:     matches,
		})
	}

	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].Confidence > cands[j].Confidence
	})
	return cands
}

func countAmbiguous(matches []Match) int {
	n := 0
	for _, m := range matches {
		if m.Ambiguous {
			n++
		}
	}
	return n
}

// reason lists up to maxReasonLabels distinct labels in first-seen order.
func reason(matches []Match) string {
	labels := make([]string, 0, maxReasonLabels)
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		if len(labels) == maxReasonLabels {
			break
		}
		if _, dup := seen[m.Label]; dup {
			continue
		}
		seen[m.Label] = struct{}{}
		labels = append(labels, m.Label)
	}
	return "Matched: " + strings.Join(labels, ", ")
}
