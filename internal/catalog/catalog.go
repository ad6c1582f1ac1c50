// Package catalog discovers routable skills from SKILL.md files with YAML
// frontmatter and serves them to the router through CatalogProvider
// implementations: filesystem scans, static fixtures, compositions of
// both, and a watcher that keeps a live snapshot.
package catalog

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jkaninda/skillrouter/internal/router"
)

// SkillFile is the file name a skill directory must contain.
const SkillFile = "SKILL.md"

// DefaultPatterns locate SKILL.md one level below each skills root.
var DefaultPatterns = []string{"*/" + SkillFile}

// ErrNoSkills is returned by health checks when the catalog is empty.
var ErrNoSkills = errors.New("no skills found")

// Definition is a skill parsed from a SKILL.md file.
type Definition struct {
	Name         string   `yaml:"name" json:"name"`
	Description  string   `yaml:"description" json:"description"`
	Weight       float64  `yaml:"weight" json:"weight,omitempty"`
	AllowedTools ToolList `yaml:"allowed-tools" json:"allowed_tools,omitempty"`
	Version      string   `yaml:"version" json:"version,omitempty"`
	SourceFile   string   `yaml:"-" json:"source_file,omitempty"`
	Fingerprint  uint64   `yaml:"-" json:"-"`
}

// Skill converts the definition into the router's view.
func (d Definition) Skill() router.Skill {
	return router.Skill{
		Name:        d.Name,
		Description: d.Description,
		Weight:      d.Weight,
	}
}

// ToolList accepts allowed-tools written either as a YAML sequence or as a
// single scalar.
type ToolList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *ToolList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var tools []string
		if err := node.Decode(&tools); err != nil {
			return err
		}
		*l = tools
	case yaml.ScalarNode:
		if v := strings.TrimSpace(node.Value); v != "" {
			*l = ToolList{v}
		}
	default:
		return fmt.Errorf("allowed-tools: unsupported YAML kind %d", node.Kind)
	}
	return nil
}

// LoadResult summarizes a catalog scan.
type LoadResult struct {
	Loaded int
	Errors []LoadError
}

// LoadError records a per-file parse or validation error.
type LoadError struct {
	File    string `json:"file"`
	Message string `json:"message"`
}

func (e LoadError) String() string {
	return e.File + ": " + e.Message
}

// ParseFile reads a SKILL.md file and decodes its YAML frontmatter.
func ParseFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	def, err := parseDefinition(data)
	if err != nil {
		return nil, err
	}
	def.SourceFile = path
	return def, nil
}

// frontmatter returns the lines between the opening and closing "---".
func frontmatter(data []byte) (string, error) {
	scanner := bufio.NewScanner(strings.NewReader(string(data)))

	if !scanner.Scan() {
		return "", fmt.Errorf("empty file")
	}
	if strings.TrimSpace(scanner.Text()) != "---" {
		return "", fmt.Errorf("missing YAML frontmatter (file must start with ---)")
	}

	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "---" {
			return strings.Join(lines, "\n"), nil
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading file: %w", err)
	}
	return "", fmt.Errorf("unclosed YAML frontmatter (missing closing ---)")
}

func parseDefinition(data []byte) (*Definition, error) {
	fm, err := frontmatter(data)
	if err != nil {
		return nil, err
	}

	def := &Definition{}
	if err := yaml.Unmarshal([]byte(fm), def); err != nil {
		return nil, fmt.Errorf("parsing YAML frontmatter: %w", err)
	}
	def.Name = strings.TrimSpace(def.Name)
	def.Description = strings.TrimSpace(def.Description)
	def.Fingerprint = fingerprint(data)

	if def.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if def.Weight < 0 {
		return nil, fmt.Errorf("weight must be >= 0 (got %v)", def.Weight)
	}
	return def, nil
}

// newCorrelationID generates an 8-byte random hex correlation ID.
func newCorrelationID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "00000000"
	}
	return hex.EncodeToString(b)
}
