package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ValidationResult is the outcome of ValidateSkillDir.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Message  string   `json:"message"`
	Warnings []string `json:"warnings"`
	Path     string   `json:"path"`
}

var (
	frontmatterRe  = regexp.MustCompile(`(?s)^---\n(.*?)\n---`)
	nameFieldRe    = regexp.MustCompile(`name:\s*(.+)`)
	hyphenCaseRe   = regexp.MustCompile(`^[a-z0-9-]+$`)
	descFieldRe    = regexp.MustCompile(`description:\s*(.+)`)
	descIndentedRe = regexp.MustCompile(`description:[ \t]*\n\s+`)
	descBlockRe    = regexp.MustCompile(`(?m)^description:\s*[|>]\s*$`)
	allowedToolsRe = regexp.MustCompile(`allowed-tools:[ \t]*(.*)`)
)

// ValidateSkillDir checks that dir holds a well-formed SKILL.md: frontmatter
// present and closed, a hyphen-case name, a single-line description without
// angle brackets, and allowed-tools in array form. A description that still
// contains TODO is valid but produces a warning.
func ValidateSkillDir(dir string) ValidationResult {
	res := ValidationResult{Warnings: []string{}, Path: dir}
	if abs, err := filepath.Abs(dir); err == nil {
		res.Path = abs
	}

	fail := func(format string, args ...any) ValidationResult {
		res.Valid = false
		res.Message = fmt.Sprintf(format, args...)
		return res
	}

	data, err := os.ReadFile(filepath.Join(dir, SkillFile))
	if err != nil {
		if os.IsNotExist(err) {
			return fail("%s not found", SkillFile)
		}
		return fail("failed to read %s: %v", SkillFile, err)
	}
	content := strings.ReplaceAll(string(data), "\r\n", "\n")

	if !strings.HasPrefix(content, "---") {
		return fail("no YAML frontmatter found (file should start with ---)")
	}
	m := frontmatterRe.FindStringSubmatch(content)
	if m == nil {
		return fail("invalid frontmatter format (missing closing ---)")
	}
	fm := m[1]

	if !strings.Contains(fm, "name:") {
		return fail("missing 'name' in frontmatter")
	}
	if !strings.Contains(fm, "description:") {
		return fail("missing 'description' in frontmatter")
	}

	if nm := nameFieldRe.FindStringSubmatch(fm); nm != nil {
		name := strings.TrimSpace(nm[1])
		switch {
		case !hyphenCaseRe.MatchString(name):
			return fail("name %q should be hyphen-case (lowercase letters, digits, and hyphens only)", name)
		case strings.HasPrefix(name, "-") || strings.HasSuffix(name, "-"):
			return fail("name %q cannot start or end with hyphen", name)
		case strings.Contains(name, "--"):
			return fail("name %q cannot contain consecutive hyphens", name)
		}
	}

	if descIndentedRe.MatchString(fm) || descBlockRe.MatchString(fm) {
		return fail("description uses YAML multiline block format (must be single line after colon)")
	}

	dm := descFieldRe.FindStringSubmatch(fm)
	if dm == nil {
		return fail("description appears to be empty or multiline (must be single line after colon)")
	}
	desc := strings.TrimSpace(dm[1])
	if strings.ContainsAny(desc, "<>") {
		return fail("description cannot contain angle brackets (< or >)")
	}
	if strings.Contains(strings.ToUpper(desc), "TODO") {
		res.Warnings = append(res.Warnings, "description contains TODO placeholder - please complete it")
	}

	if tm := allowedToolsRe.FindStringSubmatch(fm); tm != nil {
		tools := strings.TrimSpace(tm[1])
		if tools != "" && !strings.HasPrefix(tools, "[") && strings.Contains(tools, ",") {
			return fail("allowed-tools must use array format [Tool1, Tool2], found: %s", tools)
		}
	}

	res.Valid = true
	res.Message = "skill is valid"
	return res
}
