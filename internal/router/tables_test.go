package router

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

// --- Tables ---

func TestDefaultTables_Loaded(t *testing.T) {
	tb := DefaultTables()
	stats := tb.Stats()
	for _, key := range []string{"stop_words", "synonyms", "intent", "multi_intent"} {
		if stats[key] == 0 {
			t.Errorf("Stats()[%q] = 0, want > 0", key)
		}
	}
	if DefaultTables() != tb {
		t.Error("DefaultTables should return the same instance")
	}
}

func TestDefaultTables_KnownEntries(t *testing.T) {
	tb := DefaultTables()

	if !tb.IsStopWord("the") {
		t.Error(`"the" should be a stop word`)
	}
	if tb.IsStopWord("commit") {
		t.Error(`"commit" should not be a stop word`)
	}

	b, ok := tb.Intent("git")
	if !ok || b.Skill != "workflows-git" || b.Amount != 1.0 {
		t.Errorf("Intent(git) = %+v, %v", b, ok)
	}
	if _, ok := tb.Intent("changes"); ok {
		t.Error(`"changes" should only be a multi-skill booster`)
	}
	if got := len(tb.MultiIntent("code")); got != 3 {
		t.Errorf("len(MultiIntent(code)) = %d, want 3", got)
	}
}

func TestParseTables_LowercasesKeys(t *testing.T) {
	doc := `
stop_words: [The]
synonyms:
  Deploy: [Ship, Release]
intent:
  Deploy: {skill: ops, boost: 0.5}
`
	tb, err := ParseTables([]byte(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tb.IsStopWord("the") {
		t.Error(`"the" should be a stop word`)
	}
	if got := tb.Synonyms("deploy"); !reflect.DeepEqual(got, []string{"ship", "release"}) {
		t.Errorf("Synonyms(deploy) = %v", got)
	}
	if _, ok := tb.Intent("deploy"); !ok {
		t.Error("Intent(deploy) missing")
	}
}

func TestParseTables_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"invalid yaml", "intent: [", "parsing YAML"},
		{"missing skill", "intent:\n  git: {boost: 1}", "skill is required"},
		{"zero boost", "intent:\n  git: {skill: x, boost: 0}", "boost must be > 0"},
		{"negative multi boost", "multi_intent:\n  fix: [{skill: x, boost: -1}]", "boost must be > 0"},
		{"empty multi", "multi_intent:\n  fix: []", "no targets"},
		{"duplicate keyword", "intent:\n  git: {skill: a, boost: 1}\n  git: {skill: b, boost: 1}", "parsing YAML"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTables([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywords.yaml")
	if err := os.WriteFile(path, []byte("intent:\n  deploy: {skill: ops, boost: 0.7}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tb, err := LoadTables(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b, ok := tb.Intent("deploy"); !ok || b.Amount != 0.7 {
		t.Errorf("Intent(deploy) = %+v, %v", b, ok)
	}

	if _, err := LoadTables(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

// --- Normalize ---

func TestNormalize(t *testing.T) {
	tb := DefaultTables()

	tests := []struct {
		in           string
		wantAll      []string
		wantFiltered []string
	}{
		{"", nil, nil},
		{"Hello, World!", []string{"hello", "world"}, []string{"hello", "world"}},
		{"foo_bar 42 go", []string{"foo_bar", "42", "go"}, []string{"foo_bar"}},
		{"How do I commit?", []string{"how", "do", "i", "commit"}, []string{"commit"}},
		{"Café déjà-vu", []string{"café", "déjà", "vu"}, []string{"café", "déjà"}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := tb.Normalize(tt.in)
			if len(got.All) != len(tt.wantAll) || (len(tt.wantAll) > 0 && !reflect.DeepEqual(got.All, tt.wantAll)) {
				t.Errorf("All = %v, want %v", got.All, tt.wantAll)
			}
			if len(got.Filtered) != len(tt.wantFiltered) || (len(tt.wantFiltered) > 0 && !reflect.DeepEqual(got.Filtered, tt.wantFiltered)) {
				t.Errorf("Filtered = %v, want %v", got.Filtered, tt.wantFiltered)
			}
		})
	}
}

// --- Expand ---

func TestExpand_DirectSynonymsOnly(t *testing.T) {
	tb := DefaultTables()

	got := tb.Expand([]string{"git"})
	want := []string{"git", "commit", "branch", "version", "push", "merge", "worktree"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expand(git) = %v, want %v", got, want)
	}
	for _, term := range got {
		if term == "changes" {
			t.Error("synonyms of synonyms must not be followed")
		}
	}
}

func TestExpand_Deduplicates(t *testing.T) {
	tb := DefaultTables()

	got := tb.Expand([]string{"commit", "git", "commit"})
	seen := make(map[string]bool)
	for _, term := range got {
		if seen[term] {
			t.Errorf("duplicate term %q in %v", term, got)
		}
		seen[term] = true
	}
	if got[0] != "commit" || got[1] != "git" {
		t.Errorf("original tokens should lead: %v", got)
	}
}

func TestExpand_Empty(t *testing.T) {
	if got := DefaultTables().Expand(nil); len(got) != 0 {
		t.Errorf("Expand(nil) = %v, want empty", got)
	}
}

// --- ExtractSignals ---

func TestExtractSignals_BothTablesFire(t *testing.T) {
	tb := DefaultTables()

	sig := tb.ExtractSignals([]string{"context"})
	if !approx(sig.Boost["system-spec-kit"], 0.8) {
		t.Errorf("Boost[system-spec-kit] = %v, want 0.8", sig.Boost["system-spec-kit"])
	}
	if !approx(sig.Boost["mcp-narsil"], 0.2) {
		t.Errorf("Boost[mcp-narsil] = %v, want 0.2", sig.Boost["mcp-narsil"])
	}

	m := sig.Matches["system-spec-kit"]
	if len(m) != 2 {
		t.Fatalf("len(Matches) = %d, want 2", len(m))
	}
	if m[0].Kind != MatchIntent || m[0].Ambiguous {
		t.Errorf("first match = %+v, want unambiguous intent", m[0])
	}
	if m[1].Kind != MatchMulti || !m[1].Ambiguous {
		t.Errorf("second match = %+v, want ambiguous multi", m[1])
	}
}

func TestExtractSignals_UsesUnfilteredTokens(t *testing.T) {
	sig := DefaultTables().ExtractSignals([]string{"how", "why"})
	if !approx(sig.Boost["mcp-leann"], 2.7) {
		t.Errorf("Boost[mcp-leann] = %v, want 2.7", sig.Boost["mcp-leann"])
	}
}

func TestExtractSignals_NoMatch(t *testing.T) {
	sig := DefaultTables().ExtractSignals([]string{"zzz"})
	if !sig.Empty() {
		t.Errorf("expected empty signals, got %+v", sig.Boost)
	}
}
