package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jkaninda/skillrouter/internal/router"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const skillsRoot = "testdata/skills"

// --- ParseFile ---

func TestParseFile_Valid(t *testing.T) {
	def, err := ParseFile(filepath.Join(skillsRoot, "workflows-git", SkillFile))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if def.Name != "workflows-git" {
		t.Errorf("Name = %q, want %q", def.Name, "workflows-git")
	}
	if def.Description != "Version control operations including commit, branch, and merge" {
		t.Errorf("Description = %q", def.Description)
	}
	if def.Version != "1.2.0" {
		t.Errorf("Version = %q, want %q", def.Version, "1.2.0")
	}
	if len(def.AllowedTools) != 2 || def.AllowedTools[0] != "Bash" {
		t.Errorf("AllowedTools = %v, want [Bash Read]", def.AllowedTools)
	}
	if def.Fingerprint == 0 {
		t.Error("Fingerprint should be set")
	}
	if def.SourceFile == "" {
		t.Error("SourceFile should be set")
	}
}

func TestParseFile_ScalarToolsAndWeight(t *testing.T) {
	def, err := ParseFile(filepath.Join(skillsRoot, "mcp-leann", SkillFile))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(def.AllowedTools) != 1 || def.AllowedTools[0] != "Read" {
		t.Errorf("AllowedTools = %v, want [Read]", def.AllowedTools)
	}
	if def.Weight != 1.2 {
		t.Errorf("Weight = %v, want 1.2", def.Weight)
	}
	if s := def.Skill(); s.Name != "mcp-leann" || s.Weight != 1.2 {
		t.Errorf("Skill() = %+v", s)
	}
}

func TestParseDefinition_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"empty", "", "empty file"},
		{"no frontmatter", "# title\n", "missing YAML frontmatter"},
		{"unclosed", "---\nname: x\n", "unclosed YAML frontmatter"},
		{"bad yaml", "---\nname: [x\n---\n", "parsing YAML frontmatter"},
		{"no name", "---\ndescription: x\n---\n", "name is required"},
		{"negative weight", "---\nname: x\nweight: -1\n---\n", "weight must be >= 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseDefinition([]byte(tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseDefinition_MissingDescription(t *testing.T) {
	def, err := parseDefinition([]byte("---\nname: bare\n---\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.Description != "" {
		t.Errorf("Description = %q, want empty", def.Description)
	}
}

// --- FSProvider ---

func TestFSProvider_Load(t *testing.T) {
	p := NewFSProvider([]string{skillsRoot}, nil, discardLogger())

	defs, result, err := p.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Loaded != 2 {
		t.Errorf("Loaded = %d, want 2", result.Loaded)
	}
	if len(result.Errors) != 2 {
		t.Errorf("len(Errors) = %d, want 2 (broken + duplicate): %v", len(result.Errors), result.Errors)
	}

	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	want := []string{"mcp-leann", "workflows-git"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("names = %v, want %v", names, want)
	}

	for _, d := range defs {
		if d.Name == "workflows-git" && !strings.Contains(d.SourceFile, filepath.Join("workflows-git", SkillFile)) {
			t.Errorf("duplicate should not replace first definition: %s", d.SourceFile)
		}
	}

	var dupErr bool
	for _, e := range result.Errors {
		if strings.Contains(e.Message, "duplicate skill name") {
			dupErr = true
		}
	}
	if !dupErr {
		t.Error("expected a duplicate-name load error")
	}
}

func TestFSProvider_MissingRoot(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	p := NewFSProvider([]string{missing, skillsRoot}, nil, discardLogger())

	defs, result, err := p.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(defs) != 2 {
		t.Errorf("len(defs) = %d, want 2", len(defs))
	}
	if result.Errors[0].File != missing {
		t.Errorf("first error file = %q, want %q", result.Errors[0].File, missing)
	}
}

func TestFSProvider_InvalidPattern(t *testing.T) {
	p := NewFSProvider([]string{skillsRoot}, []string{"[unclosed"}, discardLogger())

	if _, err := p.Skills(context.Background()); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestFSProvider_RecursivePattern(t *testing.T) {
	p := NewFSProvider([]string{"testdata"}, []string{"**/" + SkillFile}, discardLogger())

	defs, _, err := p.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// skills/ contributes two, validate/ contributes the rest; only names
	// matter here.
	found := false
	for _, d := range defs {
		if d.Name == "mcp-leann" {
			found = true
		}
	}
	if !found {
		t.Error("recursive pattern should reach nested skills")
	}
}

func TestFSProvider_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewFSProvider([]string{skillsRoot}, nil, discardLogger())
	if _, _, err := p.Load(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

// --- StaticProvider / MultiProvider ---

func TestStaticProvider_ReturnsCopy(t *testing.T) {
	p := NewStaticProvider(router.Skill{Name: "a"})

	got, _ := p.Skills(context.Background())
	got[0].Name = "mutated"

	again, _ := p.Skills(context.Background())
	if again[0].Name != "a" {
		t.Errorf("provider state mutated through returned slice: %q", again[0].Name)
	}
}

func TestCommandBridges(t *testing.T) {
	bridges := CommandBridges()
	if len(bridges) != 2 {
		t.Fatalf("len = %d, want 2", len(bridges))
	}
	if bridges[0].Name != "command-spec-kit" || bridges[1].Name != "command-memory-save" {
		t.Errorf("bridges = %+v", bridges)
	}
}

func TestMultiProvider_FirstNameWins(t *testing.T) {
	m := NewMultiProvider(
		NewStaticProvider(router.Skill{Name: "a", Description: "first"}),
		nil,
		NewStaticProvider(router.Skill{Name: "a", Description: "second"}, router.Skill{Name: "b"}),
	)

	skills, err := m.Skills(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(skills) != 2 {
		t.Fatalf("len = %d, want 2", len(skills))
	}
	if skills[0].Description != "first" {
		t.Errorf("Description = %q, want %q", skills[0].Description, "first")
	}
}

func TestMultiProvider_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	m := NewMultiProvider(
		NewStaticProvider(router.Skill{Name: "a"}),
		router.CatalogFunc(func(context.Context) ([]router.Skill, error) { return nil, boom }),
	)
	if _, err := m.Skills(context.Background()); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestMultiProvider_RoutesBridges(t *testing.T) {
	m := NewMultiProvider(
		NewFSProvider([]string{skillsRoot}, nil, discardLogger()),
		NewStaticProvider(CommandBridges()...),
	)
	r := router.New(m)

	recs, err := r.Route(context.Background(), "save conversation context to memory")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) == 0 || recs[0].Skill != "command-memory-save" {
		t.Errorf("top = %+v, want command-memory-save", recs)
	}
}

// --- Health ---

func TestHealth_OK(t *testing.T) {
	p := NewFSProvider([]string{skillsRoot}, nil, discardLogger())

	report := Health(context.Background(), p, p.Roots())
	if report.Status != StatusOK {
		t.Errorf("Status = %q, want %q", report.Status, StatusOK)
	}
	if report.SkillsFound != 2 {
		t.Errorf("SkillsFound = %d, want 2", report.SkillsFound)
	}
	if !report.DirsExist[skillsRoot] {
		t.Error("DirsExist should report the root as present")
	}
	if report.Err() != nil {
		t.Errorf("Err() = %v, want nil", report.Err())
	}
}

func TestHealth_Empty(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	p := NewFSProvider([]string{missing}, nil, discardLogger())

	report := Health(context.Background(), p, p.Roots())
	if report.Status != StatusError {
		t.Errorf("Status = %q, want %q", report.Status, StatusError)
	}
	if report.DirsExist[missing] {
		t.Error("DirsExist should be false for a missing root")
	}
	if !errors.Is(report.Err(), ErrNoSkills) {
		t.Errorf("Err() = %v, want ErrNoSkills", report.Err())
	}
	if report.SkillNames == nil {
		t.Error("SkillNames should be an empty list, not nil")
	}
}

func TestHealth_ReportsLoadErrors(t *testing.T) {
	p := NewFSProvider([]string{skillsRoot}, nil, discardLogger())

	report := Health(context.Background(), p, p.Roots())
	if len(report.Errors) != 2 {
		t.Fatalf("Errors = %v, want broken file and duplicate", report.Errors)
	}
	joined := strings.Join(report.Errors, "\n")
	if !strings.Contains(joined, filepath.Join("broken", "SKILL.md")) {
		t.Errorf("Errors = %v, want the broken file", report.Errors)
	}
	if !strings.Contains(joined, "duplicate skill name") {
		t.Errorf("Errors = %v, want the duplicate", report.Errors)
	}
}

func TestHealth_MissingRootIsReported(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	p := NewMultiProvider(
		NewFSProvider([]string{missing}, nil, discardLogger()),
		NewStaticProvider(CommandBridges()...),
	)

	report := Health(context.Background(), p, []string{missing})
	if len(report.Errors) != 1 || !strings.Contains(report.Errors[0], "directory does not exist") {
		t.Errorf("Errors = %v, want the missing root", report.Errors)
	}
}

func TestFSProvider_LastResult(t *testing.T) {
	p := NewFSProvider([]string{skillsRoot}, nil, discardLogger())
	if p.LastResult() != nil {
		t.Fatal("LastResult should be nil before the first load")
	}
	if _, err := p.Skills(context.Background()); err != nil {
		t.Fatal(err)
	}
	res := p.LastResult()
	if res == nil || res.Loaded != 2 || len(res.Errors) != 2 {
		t.Errorf("LastResult = %+v", res)
	}
}

func TestHealth_ProviderError(t *testing.T) {
	p := router.CatalogFunc(func(context.Context) ([]router.Skill, error) {
		return nil, errors.New("db down")
	})

	report := Health(context.Background(), p, nil)
	if report.Status != StatusError {
		t.Errorf("Status = %q, want %q", report.Status, StatusError)
	}
	if len(report.Errors) != 1 || report.Errors[0] != "db down" {
		t.Errorf("Errors = %v", report.Errors)
	}
}

// --- Seed ---

type memStore struct {
	skills map[string]Definition
	fail   string
}

func (m *memStore) HasSkill(_ context.Context, name string) (bool, error) {
	_, ok := m.skills[name]
	return ok, nil
}

func (m *memStore) UpsertSkill(_ context.Context, def Definition) error {
	if def.Name == m.fail {
		return errors.New("write failed")
	}
	m.skills[def.Name] = def
	return nil
}

func TestSeed(t *testing.T) {
	store := &memStore{
		skills: map[string]Definition{"a": {Name: "a", Description: "kept"}},
		fail:   "c",
	}
	defs := []Definition{
		{Name: "a", Description: "new"},
		{Name: "b", Description: "added"},
		{Name: "c"},
	}

	res := Seed(context.Background(), store, defs, false, discardLogger())
	if res.Seeded != 1 || res.Skipped != 1 || res.Failed != 1 {
		t.Errorf("result = %+v, want 1 seeded, 1 skipped, 1 failed", res)
	}
	if store.skills["a"].Description != "kept" {
		t.Error("existing skill should not be overwritten")
	}

	res = Seed(context.Background(), store, defs[:1], true, discardLogger())
	if res.Seeded != 1 || store.skills["a"].Description != "new" {
		t.Errorf("overwrite: result = %+v, description = %q", res, store.skills["a"].Description)
	}
}
