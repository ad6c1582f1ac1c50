package router

import (
	"context"
	"math"
	"reflect"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

// --- Confidence ---

func TestConfidence(t *testing.T) {
	tests := []struct {
		name     string
		score    float64
		boosted  bool
		weight   float64
		expected float64
	}{
		{"boosted threshold", 2.0, true, 1, 0.80},
		{"unboosted threshold", 4.0, false, 1, 0.85},
		{"boosted cap", 10, true, 1, 0.95},
		{"unboosted cap", 10, false, 1, 0.95},
		{"zero weight is neutral", 2.0, true, 0, 0.80},
		{"negative weight is neutral", 2.0, true, -3, 0.80},
		{"half weight", 10, true, 0.5, 0.475},
		{"weight capped at one", 10, true, 5, 1.0},
		{"nan weight is neutral", 2.0, true, math.NaN(), 0.80},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Confidence(tt.score, tt.boosted, tt.weight)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("Confidence(%v, %v, %v) = %v, want %v", tt.score, tt.boosted, tt.weight, got, tt.expected)
			}
		})
	}
}

// --- Uncertainty ---

func TestUncertainty(t *testing.T) {
	tests := []struct {
		matches   int
		boosted   bool
		ambiguous int
		expected  float64
	}{
		{0, true, 0, 0.70},
		{0, false, 0, 0.85},
		{1, true, 0, 0.40},
		{2, false, 0, 0.55},
		{3, true, 0, 0.25},
		{3, true, 1, 0.35},
		{4, false, 0, 0.40},
		{5, true, 0, 0.15},
		{8, true, 1, 0.25},
		{5, false, 5, 0.60},
		{0, false, 10, 1.0},
	}

	for _, tt := range tests {
		got := Uncertainty(tt.matches, tt.boosted, tt.ambiguous)
		if got != tt.expected {
			t.Errorf("Uncertainty(%d, %v, %d) = %v, want %v", tt.matches, tt.boosted, tt.ambiguous, got, tt.expected)
		}
	}
}

// --- Thresholds ---

func TestThresholds_Passes(t *testing.T) {
	gate := DefaultThresholds()

	tests := []struct {
		conf, uncert float64
		want         bool
	}{
		{0.80, 0.35, true},
		{0.95, 0.15, true},
		{0.79, 0.15, false},
		{0.95, 0.36, false},
		{0.50, 0.70, false},
	}
	for _, tt := range tests {
		if got := gate.Passes(tt.conf, tt.uncert); got != tt.want {
			t.Errorf("Passes(%v, %v) = %v, want %v", tt.conf, tt.uncert, got, tt.want)
		}
	}
}

// --- Properties ---

// vocabulary mixes booster keywords, synonyms, stop words and noise so that
// generated requests exercise every scoring channel.
var vocabulary = []string{
	"how", "why", "explain", "git", "commit", "changes", "branch", "merge",
	"context", "checkpoint", "memory", "save", "code", "fix", "test", "plan",
	"browser", "debug", "chrome", "markdown", "readme", "figma", "notion",
	"the", "a", "is", "of", "my", "please", "dashboards", "widget", "conf",
	"security", "scan", "outline", "!", "--", "42", "É", "x",
}

var propertyCatalog = []Skill{
	gitSkill,
	{Name: "system-spec-kit", Description: "Spec folders, memory checkpoints and context preservation"},
	{Name: "mcp-leann", Description: "Semantic code search and explanation over the codebase"},
	{Name: "mcp-narsil", Description: "Structural analysis, security scanning and call graphs"},
	{Name: "workflows-chrome-devtools", Description: "Browser debugging via Chrome DevTools"},
	{Name: "workflows-documentation", Description: "Markdown documentation, flowcharts and README files"},
	{Name: "alpha-widget", Description: "Renders dashboards and configuration widgets", Weight: 1.3},
}

func requestGen() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		words := rapid.SliceOfN(rapid.SampledFrom(vocabulary), 0, 12).Draw(t, "words")
		return strings.Join(words, " ")
	})
}

func TestRoute_Properties(t *testing.T) {
	r := New(staticCatalog(propertyCatalog...))
	gate := r.Thresholds()

	rapid.Check(t, func(t *rapid.T) {
		text := requestGen().Draw(t, "text")

		recs, err := r.Route(context.Background(), text)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		seen := make(map[string]bool)
		for i, rec := range recs {
			if rec.Confidence < 0 || rec.Confidence > 1 {
				t.Fatalf("confidence %v out of range", rec.Confidence)
			}
			if rec.Uncertainty < 0 || rec.Uncertainty > 1 {
				t.Fatalf("uncertainty %v out of range", rec.Uncertainty)
			}
			if rec.PassesThreshold != gate.Passes(rec.Confidence, rec.Uncertainty) {
				t.Fatalf("passes_threshold inconsistent for %+v", rec)
			}
			if seen[rec.Skill] {
				t.Fatalf("skill %q listed twice", rec.Skill)
			}
			seen[rec.Skill] = true
			if i > 0 && rec.Confidence > recs[i-1].Confidence {
				t.Fatalf("not sorted at %d: %v > %v", i, rec.Confidence, recs[i-1].Confidence)
			}
			if !strings.HasPrefix(rec.Reason, "Matched: ") {
				t.Fatalf("reason %q lacks prefix", rec.Reason)
			}
		}

		again, err := r.Route(context.Background(), text)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(recs, again) {
			t.Fatalf("routing is not idempotent:\n%v\n%v", recs, again)
		}
	})
}

func TestConfidence_Monotonic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.Float64Range(0, 20).Draw(t, "a")
		b := rapid.Float64Range(0, 20).Draw(t, "b")
		boosted := rapid.Bool().Draw(t, "boosted")
		if a > b {
			a, b = b, a
		}
		if Confidence(a, boosted, 1) > Confidence(b, boosted, 1) {
			t.Fatalf("Confidence not monotonic: f(%v) > f(%v)", a, b)
		}
		if Confidence(a, false, 1) > Confidence(a, true, 1) {
			t.Fatalf("boost lowered confidence at %v", a)
		}
	})
}

func TestUncertainty_Bounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 50).Draw(t, "matches")
		amb := rapid.IntRange(0, n).Draw(t, "ambiguous")
		boosted := rapid.Bool().Draw(t, "boosted")

		u := Uncertainty(n, boosted, amb)
		if u < 0 || u > 1 {
			t.Fatalf("Uncertainty(%d, %v, %d) = %v out of range", n, boosted, amb, u)
		}
		if more := Uncertainty(n+5, boosted, amb); more > u {
			t.Fatalf("more matches raised uncertainty: %v > %v", more, u)
		}
	})
}
