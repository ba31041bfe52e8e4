package plugins

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/claudine-dev/claudine/pkg/skills"
	"github.com/gobwas/glob"
	"github.com/pkg/errors"
)

const (
	pluginsSubdir  = "plugins"
	skillsSubdir   = "skills"
	manifestDir    = ".claude-plugin"
	manifestFile   = "plugin.json"
	externalSubdir = "external"
)

// Discovery finds marketplace plugins below a repository root
type Discovery struct {
	root    string
	filters []glob.Glob
}

// DiscoveryOption configures a Discovery instance
type DiscoveryOption func(*Discovery) error

// WithFilter restricts discovery to plugins whose name matches one of the
// comma separated glob patterns (e.g. "devops-*,frontend").
func WithFilter(patterns string) DiscoveryOption {
	return func(d *Discovery) error {
		for _, p := range strings.Split(patterns, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			g, err := glob.Compile(p)
			if err != nil {
				return errors.Wrapf(err, "invalid plugin filter %q", p)
			}
			d.filters = append(d.filters, g)
		}
		return nil
	}
}

// NewDiscovery creates a plugin discovery rooted at root
func NewDiscovery(root string, opts ...DiscoveryOption) (*Discovery, error) {
	d := &Discovery{root: root}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// PluginsDir returns the directory holding the plugins
func (d *Discovery) PluginsDir() string {
	return filepath.Join(d.root, pluginsSubdir)
}

func (d *Discovery) matches(name string) bool {
	if len(d.filters) == 0 {
		return true
	}
	for _, g := range d.filters {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Discover returns every plugin that has a manifest, sorted by name
func (d *Discovery) Discover() ([]Plugin, error) {
	entries, err := os.ReadDir(d.PluginsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read plugins directory")
	}

	var plugins []Plugin
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") || !d.matches(entry.Name()) {
			continue
		}

		pluginDir := filepath.Join(d.PluginsDir(), entry.Name())
		manifestPath := filepath.Join(pluginDir, manifestDir, manifestFile)
		if _, err := os.Stat(manifestPath); err != nil {
			continue
		}

		plugin := Plugin{
			Name: entry.Name(),
			Dir:  pluginDir,
		}
		// A malformed manifest still marks the directory as a plugin
		if manifest, err := loadManifest(manifestPath); err == nil {
			plugin.Manifest = *manifest
		}
		if plugin.Manifest.Name == "" {
			plugin.Manifest.Name = entry.Name()
		}

		plugin.Skills, err = discoverSkills(entry.Name(), filepath.Join(pluginDir, skillsSubdir))
		if err != nil {
			return nil, err
		}
		plugins = append(plugins, plugin)
	}

	sort.Slice(plugins, func(i, j int) bool { return plugins[i].Name < plugins[j].Name })
	return plugins, nil
}

func loadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read plugin manifest")
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "failed to parse plugin manifest")
	}
	return &m, nil
}

// discoverSkills lists skill directories and single-file skills in skillsDir
func discoverSkills(plugin, skillsDir string) ([]SkillSource, error) {
	entries, err := os.ReadDir(skillsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to read %s", skillsDir)
	}

	var out []SkillSource
	for _, entry := range entries {
		path := filepath.Join(skillsDir, entry.Name())
		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		if info.IsDir() {
			file, ok := skills.FindSkillFile(path)
			if !ok {
				continue
			}
			out = append(out, SkillSource{Plugin: plugin, Name: entry.Name(), Dir: path, File: file})
			continue
		}

		if filepath.Ext(entry.Name()) == ".md" {
			out = append(out, SkillSource{
				Plugin: plugin,
				Name:   strings.TrimSuffix(entry.Name(), ".md"),
				File:   path,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
