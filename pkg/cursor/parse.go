package cursor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/claudine-dev/claudine/pkg/logger"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	frontmatterRe = regexp.MustCompile(`(?s)^---\n(.*?)\n---\n(.*)$`)
	headingRe     = regexp.MustCompile(`(?m)^#\s+(.+)$`)
	leadingHeadRe = regexp.MustCompile(`^#\s+(.+)`)
	nameLineRe    = regexp.MustCompile(`(?m)^name:\s*(.+)$`)
	descLineRe    = regexp.MustCompile(`(?m)^description:\s*(.+)$`)
	versionLineRe = regexp.MustCompile(`(?m)^version:\s*(.+)$`)
)

// SkillDoc is a parsed skill file ready to render.
type SkillDoc struct {
	Name        string
	Description string
	Version     string
	Body        string
	Path        string
}

// ReferenceDoc is a parsed reference or agent prompt of a skill.
type ReferenceDoc struct {
	Name        string // file stem
	SkillName   string
	PluginName  string
	Description string
	Body        string
	Path        string
}

// frontmatter holds scalar values keyed by field; version keeps its literal
// spelling so "1.0" is not rendered as "1".
type frontmatter map[string]string

func parseFrontmatter(src string) (frontmatter, error) {
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(src), &root); err != nil {
		return nil, err
	}

	fm := frontmatter{}
	if len(root.Content) == 0 {
		return fm, nil
	}
	mapping := root.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return fm, nil
	}

	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key, value := mapping.Content[i].Value, mapping.Content[i+1]
		if value.Kind == yaml.ScalarNode {
			if value.Tag == "!!null" {
				continue
			}
			fm[key] = value.Value
			continue
		}
		var decoded interface{}
		if err := value.Decode(&decoded); err == nil {
			fm[key] = fmt.Sprint(decoded)
		}
	}
	return fm, nil
}

// fallbackName is the skill name used when the frontmatter has none: the
// file stem for single-file skills under skills/, otherwise the directory.
func fallbackName(path string) string {
	parent := filepath.Base(filepath.Dir(path))
	if parent == "skills" {
		return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return parent
}

// ParseSkill reads a SKILL.md (or single-file skill) and extracts its
// frontmatter and body, falling back to headings and file names.
func ParseSkill(ctx context.Context, path string) (*SkillDoc, error) {
	log := logger.G(ctx)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	content := string(data)
	fallback := fallbackName(path)

	m := frontmatterRe.FindStringSubmatch(content)
	if m == nil {
		log.WithField("path", path).Warn("no frontmatter, using fallback name")
		name := titleCase(strings.ReplaceAll(fallback, "-", " "))
		if h := leadingHeadRe.FindStringSubmatch(content); h != nil {
			name = h[1]
		}
		return &SkillDoc{
			Name:        name,
			Description: "This skill provides guidance for " + strings.ToLower(name),
			Body:        strings.TrimSpace(content),
			Path:        path,
		}, nil
	}

	rawFrontmatter, body := m[1], m[2]
	fm, err := parseFrontmatter(rawFrontmatter)
	if err != nil {
		log.WithField("path", path).WithError(err).Warn("YAML error in frontmatter, trying manual parse")
		fm = frontmatter{}
		for key, re := range map[string]*regexp.Regexp{"name": nameLineRe, "description": descLineRe, "version": versionLineRe} {
			if mm := re.FindStringSubmatch(rawFrontmatter); mm != nil {
				fm[key] = strings.TrimSpace(mm[1])
			}
		}
	}

	doc := &SkillDoc{
		Name:        titleCase(strings.ReplaceAll(fallback, "-", " ")),
		Description: "Skill for " + fallback,
		Version:     fm["version"],
		Body:        strings.TrimSpace(body),
		Path:        path,
	}
	if name, ok := fm["name"]; ok {
		doc.Name = name
	}
	if desc, ok := fm["description"]; ok {
		doc.Description = strings.Join(strings.Fields(desc), " ")
	}
	return doc, nil
}

// ParseReference reads a reference or agent markdown file.
func ParseReference(path, skillName, pluginName string) (*ReferenceDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	content := string(data)

	ref := &ReferenceDoc{
		Name:       strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		SkillName:  skillName,
		PluginName: pluginName,
		Body:       content,
		Path:       path,
	}

	if m := frontmatterRe.FindStringSubmatch(content); m != nil {
		if fm, err := parseFrontmatter(m[1]); err == nil {
			ref.Description = fm["description"]
			ref.Body = m[2]
		}
	}
	ref.Body = strings.TrimSpace(ref.Body)

	if ref.Description == "" {
		readable := strings.NewReplacer("-", " ", "_", " ").Replace(ref.Name)
		ref.Description = fmt.Sprintf("Detailed reference for %s (%s skill)", readable, skillName)
	}
	return ref, nil
}
