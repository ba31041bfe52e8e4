package skills

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
)

const skillFileName = "SKILL.md"

// skillFileVariants are the accepted spellings of the skill file, in lookup order
var skillFileVariants = []string{skillFileName, "skill.md", "Skill.md"}

// Discovery handles skill discovery from configured directories
type Discovery struct {
	skillDirs  []string
	pluginDirs []pluginDirConfig
}

// pluginDirConfig represents a plugin skills directory with its name prefix
type pluginDirConfig struct {
	dir    string
	prefix string
}

// Option is a function that configures a Discovery
type Option func(*Discovery) error

// WithSkillDirs sets custom skill directories
func WithSkillDirs(dirs ...string) Option {
	return func(d *Discovery) error {
		d.skillDirs = dirs
		return nil
	}
}

// WithPluginDirs scans marketplace plugin roots (plugins/<plugin>/skills)
// and namespaces their skills as "<plugin>:<skill>".
func WithPluginDirs(pluginsDirs ...string) Option {
	return func(d *Discovery) error {
		for _, dir := range pluginsDirs {
			d.addPluginDirs(dir)
		}
		return nil
	}
}

// WithDefaultDirs initializes with default skill directories
func WithDefaultDirs() Option {
	return func(d *Discovery) error {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return errors.Wrap(err, "failed to get user home directory")
		}
		d.skillDirs = []string{
			"./.claude/skills",                          // Repo-local (highest precedence)
			filepath.Join(homeDir, ".claude", "skills"), // User-global
		}
		return nil
	}
}

// addPluginDirs registers every <pluginsDir>/<plugin>/skills directory
func (d *Discovery) addPluginDirs(pluginsDir string) {
	entries, err := os.ReadDir(pluginsDir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		pluginPath := filepath.Join(pluginsDir, entry.Name())
		skillsDir := filepath.Join(pluginPath, "skills")
		if info, err := os.Stat(skillsDir); err != nil || !info.IsDir() {
			continue
		}

		d.pluginDirs = append(d.pluginDirs, pluginDirConfig{
			dir:    skillsDir,
			prefix: entry.Name() + ":",
		})
	}
}

// NewDiscovery creates a new skill discovery instance
func NewDiscovery(opts ...Option) (*Discovery, error) {
	d := &Discovery{}

	if len(opts) == 0 {
		if err := WithDefaultDirs()(d); err != nil {
			return nil, err
		}
	} else {
		for _, opt := range opts {
			if err := opt(d); err != nil {
				return nil, err
			}
		}
	}

	return d, nil
}

// DiscoverSkills finds all available skills from configured directories
func (d *Discovery) DiscoverSkills() (map[string]*Skill, error) {
	skills := make(map[string]*Skill)

	for _, dir := range d.skillDirs {
		d.discoverSkillsFromDir(dir, "", skills)
	}

	for _, pluginDir := range d.pluginDirs {
		d.discoverSkillsFromDir(pluginDir.dir, pluginDir.prefix, skills)
	}

	return skills, nil
}

// discoverSkillsFromDir discovers skills from a directory with optional name prefix
func (d *Discovery) discoverSkillsFromDir(dir, prefix string, skills map[string]*Skill) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		entryPath := filepath.Join(dir, entry.Name())

		// os.Stat follows symlinked skill directories
		info, err := os.Stat(entryPath)
		if err != nil || !info.IsDir() {
			continue
		}

		skillPath, ok := FindSkillFile(entryPath)
		if !ok {
			continue
		}

		skill, err := loadSkill(skillPath)
		if err != nil {
			continue
		}

		skillName := prefix + skill.Name
		if _, exists := skills[skillName]; !exists {
			skill.Name = skillName
			skill.Directory = entryPath
			skills[skillName] = skill
		}
	}
}

// FindSkillFile returns the skill file inside dir, accepting the usual
// capitalisations of SKILL.md.
func FindSkillFile(dir string) (string, bool) {
	for _, name := range skillFileVariants {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// loadSkill parses a skill file and rejects it when required fields are missing
func loadSkill(path string) (*Skill, error) {
	skill, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	if err := skill.Validate(); err != nil {
		return nil, err
	}
	return skill, nil
}

// ParseFile reads a SKILL.md file and extracts its frontmatter and body.
// Missing fields are left empty; see Skill.Validate.
func ParseFile(path string) (*Skill, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read skill file")
	}

	md := goldmark.New(
		goldmark.WithExtensions(meta.Meta),
	)

	var buf bytes.Buffer
	pctx := parser.NewContext()

	if err := md.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		return nil, errors.Wrap(err, "failed to parse markdown")
	}

	metaData, err := meta.TryGet(pctx)
	if err != nil {
		return nil, errors.Wrap(err, "invalid frontmatter")
	}
	if len(metaData) == 0 {
		return nil, errors.New("missing frontmatter")
	}

	return &Skill{
		Name:        stringField(metaData, "name"),
		Description: stringField(metaData, "description"),
		Version:     stringField(metaData, "version"),
		Directory:   filepath.Dir(path),
		Path:        path,
		Content:     extractBodyContent(string(content)),
	}, nil
}

// stringField renders scalar frontmatter values; "version: 1.0" decodes as a float
func stringField(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return fmt.Sprint(v)
}

// extractBodyContent removes YAML frontmatter and returns the body
func extractBodyContent(content string) string {
	if !strings.HasPrefix(content, "---") {
		return content
	}

	lines := strings.Split(content, "\n")
	frontmatterEnd := -1

	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			frontmatterEnd = i
			break
		}
	}

	if frontmatterEnd == -1 {
		return content
	}

	return strings.TrimLeft(strings.Join(lines[frontmatterEnd+1:], "\n"), "\n")
}
