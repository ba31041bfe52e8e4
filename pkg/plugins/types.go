// Package plugins manages where skills come from: marketplace plugins laid
// out as plugins/<plugin>/ inside the claudine repo, and third-party skill
// repositories vendored as git submodules under external/.
package plugins

// Manifest is the .claude-plugin/plugin.json file of a marketplace plugin.
type Manifest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`
	Author      struct {
		Name string `json:"name,omitempty"`
	} `json:"author,omitempty"`
}

// Plugin is a discovered marketplace plugin.
type Plugin struct {
	Name     string // directory name under plugins/
	Dir      string
	Manifest Manifest
	Skills   []SkillSource
}

// SkillSource locates one skill inside a plugin. A skill is either a
// directory with SKILL.md (Dir set) or a single markdown file under skills/.
type SkillSource struct {
	Plugin string
	Name   string // directory name, or file stem for single-file skills
	Dir    string // empty for single-file skills
	File   string // the SKILL.md or the single markdown file
}

// IsDirectory reports whether the skill is a bundle directory.
func (s SkillSource) IsDirectory() bool {
	return s.Dir != ""
}

// InstalledRepo is a skill repository vendored under external/.
type InstalledRepo struct {
	Name   string
	Path   string
	Skills []string // names of the .claude/skills links pointing into it
}
