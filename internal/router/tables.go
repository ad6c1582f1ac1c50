package router

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed keywords.yaml
var defaultKeywords []byte

// Boost is a keyword's contribution to one skill's score.
type Boost struct {
	Skill  string  `yaml:"skill" json:"skill"`
	Amount float64 `yaml:"boost" json:"boost"`
}

// tablesFile is the on-disk shape of a keyword tables document.
type tablesFile struct {
	StopWords   []string            `yaml:"stop_words"`
	Synonyms    map[string][]string `yaml:"synonyms"`
	Intent      map[string]Boost    `yaml:"intent"`
	MultiIntent map[string][]Boost  `yaml:"multi_intent"`
}

// Tables holds the static keyword data the router scores with: stop words,
// synonyms, single-skill intent boosters and multi-skill boosters.
// A Tables value is read-only once built and safe for concurrent use.
type Tables struct {
	stopWords   map[string]struct{}
	synonyms    map[string][]string
	intent      map[string]Boost
	multiIntent map[string][]Boost
}

var (
	defaultOnce   sync.Once
	defaultTables *Tables
	defaultErr    error
)

// DefaultTables returns the built-in keyword tables. The embedded document
// is parsed on first use; a parse failure is a build defect and panics.
func DefaultTables() *Tables {
	defaultOnce.Do(func() {
		defaultTables, defaultErr = ParseTables(defaultKeywords)
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("router: embedded keyword tables: %v", defaultErr))
	}
	return defaultTables
}

// LoadTables reads a keyword tables YAML file.
func LoadTables(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading keyword tables %s: %w", path, err)
	}
	t, err := ParseTables(data)
	if err != nil {
		return nil, fmt.Errorf("keyword tables %s: %w", path, err)
	}
	return t, nil
}

// ParseTables builds Tables from a YAML document. Keys are lower-cased.
// Boosts must be positive and name a skill.
func ParseTables(data []byte) (*Tables, error) {
	var f tablesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	t := &Tables{
		stopWords:   make(map[string]struct{}, len(f.StopWords)),
		synonyms:    make(map[string][]string, len(f.Synonyms)),
		intent:      make(map[string]Boost, len(f.Intent)),
		multiIntent: make(map[string][]Boost, len(f.MultiIntent)),
	}

	for _, w := range f.StopWords {
		t.stopWords[lower(w)] = struct{}{}
	}
	for k, syns := range f.Synonyms {
		out := make([]string, 0, len(syns))
		for _, s := range syns {
			out = append(out, lower(s))
		}
		t.synonyms[lower(k)] = out
	}
	for k, b := range f.Intent {
		if err := validateBoost(k, b); err != nil {
			return nil, err
		}
		t.intent[lower(k)] = b
	}
	for k, boosts := range f.MultiIntent {
		if len(boosts) == 0 {
			return nil, fmt.Errorf("multi_intent %q: no targets", k)
		}
		for _, b := range boosts {
			if err := validateBoost(k, b); err != nil {
				return nil, err
			}
		}
		t.multiIntent[lower(k)] = append([]Boost(nil), boosts...)
	}

	return t, nil
}

func validateBoost(keyword string, b Boost) error {
	if b.Skill == "" {
		return fmt.Errorf("keyword %q: skill is required", keyword)
	}
	if b.Amount <= 0 {
		return fmt.Errorf("keyword %q: boost must be > 0 (got %v)", keyword, b.Amount)
	}
	return nil
}

// IsStopWord reports whether token carries no matching weight.
func (t *Tables) IsStopWord(token string) bool {
	_, ok := t.stopWords[token]
	return ok
}

// Synonyms returns the direct synonyms of token. The returned slice must
// not be modified.
func (t *Tables) Synonyms(token string) []string {
	return t.synonyms[token]
}

// Intent returns the single-skill booster for token, if any.
func (t *Tables) Intent(token string) (Boost, bool) {
	b, ok := t.intent[token]
	return b, ok
}

// MultiIntent returns the multi-skill boosters for token, if any. The
// returned slice must not be modified.
func (t *Tables) MultiIntent(token string) []Boost {
	return t.multiIntent[token]
}

// Stats reports table sizes for diagnostics.
func (t *Tables) Stats() map[string]int {
	return map[string]int{
		"stop_words":   len(t.stopWords),
		"synonyms":     len(t.synonyms),
		"intent":       len(t.intent),
		"multi_intent": len(t.multiIntent),
	}
}
