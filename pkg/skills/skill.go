// Package skills discovers, parses and lints skill bundles. A skill is a
// directory holding a SKILL.md file whose YAML frontmatter names and
// describes it; the markdown body carries the instructions.
package skills

import (
	"regexp"

	"github.com/pkg/errors"
)

// Skill represents a discovered skill with its metadata
type Skill struct {
	Name        string // Unique name from frontmatter, prefixed with "<plugin>:" for plugin skills
	Description string
	Version     string
	Directory   string // Full path to the skill directory
	Path        string // Full path to the SKILL.md file
	Content     string // Body of SKILL.md, without frontmatter
}

// Metadata represents the YAML frontmatter in SKILL.md files
type Metadata struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Version     string `yaml:"version,omitempty"`
}

var kebabCase = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Validate checks the frontmatter fields an agent needs to load the skill.
func (s *Skill) Validate() error {
	if s.Name == "" {
		return errors.New("skill name is required in frontmatter")
	}
	if s.Description == "" {
		return errors.New("skill description is required in frontmatter")
	}
	return nil
}

// IsKebabCase reports whether name is lowercase words joined by single dashes.
func IsKebabCase(name string) bool {
	return kebabCase.MatchString(name)
}
