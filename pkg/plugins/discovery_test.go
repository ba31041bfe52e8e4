package plugins

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func setupMarketplace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	plugins := filepath.Join(root, "plugins")

	writeFile(t, filepath.Join(plugins, "devops", ".claude-plugin", "plugin.json"), `{"name":"devops","version":"1.2.0"}`)
	writeFile(t, filepath.Join(plugins, "devops", "skills", "terraform", "SKILL.md"), "---\nname: terraform\ndescription: tf\n---\n")
	writeFile(t, filepath.Join(plugins, "devops", "skills", "quick-tips.md"), "# Quick tips\n")
	writeFile(t, filepath.Join(plugins, "devops", "skills", "notes.txt"), "ignored")
	require.NoError(t, os.MkdirAll(filepath.Join(plugins, "devops", "skills", "empty"), 0o755))

	writeFile(t, filepath.Join(plugins, "frontend", ".claude-plugin", "plugin.json"), `not json`)
	writeFile(t, filepath.Join(plugins, "frontend", "skills", "react", "skill.md"), "---\nname: react\ndescription: r\n---\n")

	writeFile(t, filepath.Join(plugins, "no-manifest", "skills", "x", "SKILL.md"), "---\nname: x\n---\n")
	writeFile(t, filepath.Join(plugins, ".hidden", ".claude-plugin", "plugin.json"), `{}`)
	return root
}

func TestDiscover(t *testing.T) {
	root := setupMarketplace(t)

	d, err := NewDiscovery(root)
	require.NoError(t, err)

	plugins, err := d.Discover()
	require.NoError(t, err)
	require.Len(t, plugins, 2)

	devops := plugins[0]
	assert.Equal(t, "devops", devops.Name)
	assert.Equal(t, "1.2.0", devops.Manifest.Version)
	require.Len(t, devops.Skills, 2)
	assert.Equal(t, "quick-tips", devops.Skills[0].Name)
	assert.False(t, devops.Skills[0].IsDirectory())
	assert.Equal(t, "terraform", devops.Skills[1].Name)
	assert.True(t, devops.Skills[1].IsDirectory())

	frontend := plugins[1]
	assert.Equal(t, "frontend", frontend.Manifest.Name)
	require.Len(t, frontend.Skills, 1)
	assert.Equal(t, "skill.md", filepath.Base(frontend.Skills[0].File))
}

func TestDiscoverWithFilter(t *testing.T) {
	root := setupMarketplace(t)

	tests := []struct {
		filter   string
		expected []string
	}{
		{"devops", []string{"devops"}},
		{"front*", []string{"frontend"}},
		{"devops, frontend", []string{"devops", "frontend"}},
		{"nothing-*", nil},
	}

	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			d, err := NewDiscovery(root, WithFilter(tt.filter))
			require.NoError(t, err)
			plugins, err := d.Discover()
			require.NoError(t, err)

			var names []string
			for _, p := range plugins {
				names = append(names, p.Name)
			}
			assert.Equal(t, tt.expected, names)
		})
	}
}

func TestDiscoverInvalidFilter(t *testing.T) {
	_, err := NewDiscovery(t.TempDir(), WithFilter("[unclosed"))
	assert.Error(t, err)
}

func TestDiscoverNoPluginsDir(t *testing.T) {
	d, err := NewDiscovery(t.TempDir())
	require.NoError(t, err)
	plugins, err := d.Discover()
	require.NoError(t, err)
	assert.Empty(t, plugins)
}
