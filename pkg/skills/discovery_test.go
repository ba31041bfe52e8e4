package skills

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skillDoc(name, description string) string {
	return "---\nname: " + name + "\ndescription: " + description + "\n---\n\n# " + name + "\n\nInstructions for " + name + ".\n"
}

func TestNewDiscovery(t *testing.T) {
	t.Run("defaults to repo and user skill dirs", func(t *testing.T) {
		d, err := NewDiscovery()
		require.NoError(t, err)
		require.Len(t, d.skillDirs, 2)
		assert.Equal(t, "./.claude/skills", d.skillDirs[0])
		assert.Empty(t, d.pluginDirs)
	})

	t.Run("explicit dirs replace defaults", func(t *testing.T) {
		d, err := NewDiscovery(WithSkillDirs("/a", "/b"))
		require.NoError(t, err)
		assert.Equal(t, []string{"/a", "/b"}, d.skillDirs)
	})

	t.Run("plugin roots without skills are skipped", func(t *testing.T) {
		plugins := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(plugins, "empty"), 0o755))
		require.NoError(t, os.MkdirAll(filepath.Join(plugins, "docs", "skills"), 0o755))

		d, err := NewDiscovery(WithPluginDirs(plugins, filepath.Join(plugins, "absent")))
		require.NoError(t, err)
		require.Len(t, d.pluginDirs, 1)
		assert.Equal(t, "docs:", d.pluginDirs[0].prefix)
	})
}

func TestDiscoverSkills(t *testing.T) {
	root := t.TempDir()
	repoSkills := filepath.Join(root, "repo")
	userSkills := filepath.Join(root, "user")
	plugins := filepath.Join(root, "plugins")

	writeSkill(t, filepath.Join(repoSkills, "terraform"), "SKILL.md", skillDoc("terraform", "Repo copy"))
	writeSkill(t, filepath.Join(userSkills, "terraform"), "SKILL.md", skillDoc("terraform", "User copy"))
	writeSkill(t, filepath.Join(userSkills, "review"), "Skill.md", skillDoc("review", "Code review checklist"))
	writeSkill(t, filepath.Join(userSkills, "broken"), "SKILL.md", "---\nname: broken\n---\nno description\n")
	writeSkill(t, filepath.Join(plugins, "docs", "skills", "writing"), "SKILL.md", skillDoc("writing", "Technical writing"))
	require.NoError(t, os.WriteFile(filepath.Join(userSkills, "notes.md"), []byte("not a skill"), 0o644))

	d, err := NewDiscovery(WithSkillDirs(repoSkills, userSkills), WithPluginDirs(plugins))
	require.NoError(t, err)

	skills, err := d.DiscoverSkills()
	require.NoError(t, err)
	require.Len(t, skills, 3)

	tf := skills["terraform"]
	require.NotNil(t, tf)
	assert.Equal(t, "Repo copy", tf.Description, "first directory wins")
	assert.Equal(t, filepath.Join(repoSkills, "terraform"), tf.Directory)
	assert.Contains(t, tf.Content, "Instructions for terraform.")
	assert.NotContains(t, tf.Content, "description:")

	review := skills["review"]
	require.NotNil(t, review)
	assert.Equal(t, filepath.Join(userSkills, "review", "Skill.md"), review.Path)

	writing := skills["docs:writing"]
	require.NotNil(t, writing)
	assert.Equal(t, "docs:writing", writing.Name)

	assert.NotContains(t, skills, "broken")
}

func TestDiscoverSkillsSymlinks(t *testing.T) {
	root := t.TempDir()
	skillsDir := filepath.Join(root, "skills")
	external := filepath.Join(root, "external", "ethskills", "gas")

	writeSkill(t, external, "SKILL.md", skillDoc("gas", "Gas optimisation"))
	require.NoError(t, os.MkdirAll(skillsDir, 0o755))
	require.NoError(t, os.Symlink(external, filepath.Join(skillsDir, "gas")))
	require.NoError(t, os.Symlink(filepath.Join(root, "missing"), filepath.Join(skillsDir, "dangling")))

	file := filepath.Join(root, "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	require.NoError(t, os.Symlink(file, filepath.Join(skillsDir, "file-link")))

	d, err := NewDiscovery(WithSkillDirs(skillsDir))
	require.NoError(t, err)

	skills, err := d.DiscoverSkills()
	require.NoError(t, err)
	require.Len(t, skills, 1)
	assert.Equal(t, filepath.Join(skillsDir, "gas"), skills["gas"].Directory)
}

func TestDiscoverSkillsMissingDir(t *testing.T) {
	d, err := NewDiscovery(WithSkillDirs(filepath.Join(t.TempDir(), "nope")))
	require.NoError(t, err)

	skills, err := d.DiscoverSkills()
	require.NoError(t, err)
	assert.Empty(t, skills)
}

func TestFindSkillFileIgnoresDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "SKILL.md"), 0o755))

	_, ok := FindSkillFile(dir)
	assert.False(t, ok)

	writeSkill(t, dir, "skill.md", skillDoc("lower", "lowercase file"))
	path, ok := FindSkillFile(dir)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "skill.md"), path)
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("scalar version", func(t *testing.T) {
		writeSkill(t, filepath.Join(dir, "versioned"), "SKILL.md", "---\nname: versioned\ndescription: Has a version\nversion: 1.2\n---\nBody\n")
		skill, err := ParseFile(filepath.Join(dir, "versioned", "SKILL.md"))
		require.NoError(t, err)
		assert.Equal(t, "1.2", skill.Version)
		assert.Equal(t, "Body\n", skill.Content)
	})

	t.Run("missing fields are left empty", func(t *testing.T) {
		writeSkill(t, filepath.Join(dir, "partial"), "SKILL.md", "---\nname: partial\n---\nBody\n")
		skill, err := ParseFile(filepath.Join(dir, "partial", "SKILL.md"))
		require.NoError(t, err)
		assert.Equal(t, "partial", skill.Name)
		assert.Empty(t, skill.Description)
		assert.Error(t, skill.Validate())
	})

	t.Run("no frontmatter", func(t *testing.T) {
		writeSkill(t, filepath.Join(dir, "plain"), "SKILL.md", "# Plain\n\nNothing here.\n")
		_, err := ParseFile(filepath.Join(dir, "plain", "SKILL.md"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing frontmatter")
	})

	t.Run("unreadable file", func(t *testing.T) {
		_, err := ParseFile(filepath.Join(dir, "absent", "SKILL.md"))
		assert.Error(t, err)
	})
}

func TestExtractBodyContent(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "frontmatter stripped",
			input:    "---\nname: a\n---\n\n# A\n",
			expected: "# A\n",
		},
		{
			name:     "no frontmatter",
			input:    "# A\nbody",
			expected: "# A\nbody",
		},
		{
			name:     "unterminated frontmatter kept",
			input:    "---\nname: a\n# A",
			expected: "---\nname: a\n# A",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractBodyContent(tt.input))
		})
	}
}

func TestIsKebabCase(t *testing.T) {
	assert.True(t, IsKebabCase("scaleway-dev"))
	assert.True(t, IsKebabCase("gas2"))
	assert.False(t, IsKebabCase("Scaleway"))
	assert.False(t, IsKebabCase("double--dash"))
	assert.False(t, IsKebabCase("-leading"))
	assert.False(t, IsKebabCase(""))
}
