// Package cursor translates marketplace skills into Cursor IDE rule files
// (.mdc). Each skill becomes one rule; its references and agent prompts get
// rules of their own.
package cursor

import (
	"context"
	"os"
	"path/filepath"

	"github.com/aymanbagabas/go-udiff"
	"github.com/claudine-dev/claudine/pkg/logger"
	"github.com/claudine-dev/claudine/pkg/plugins"
	"github.com/pkg/errors"
)

// Status is the outcome for one generated rule file.
type Status string

// Rule file statuses.
const (
	StatusWritten   Status = "written"
	StatusUnchanged Status = "unchanged"
	StatusPlanned   Status = "planned"
	StatusUpToDate  Status = "up-to-date"
	StatusOutdated  Status = "outdated"
)

// Options configures a translation run.
type Options struct {
	Root   string // marketplace root containing plugins/
	Output string // directory receiving .mdc files
	Filter string // comma separated plugin name globs
	DryRun bool
	Check  bool
	Diff   bool // attach unified diffs to outdated files in check mode
}

// FileResult describes one rule file.
type FileResult struct {
	Plugin string
	Name   string
	Path   string
	Status Status
	Diff   string
}

// Report lists every rule file of a run.
type Report struct {
	Plugins []string
	Files   []FileResult
}

// Outdated returns the files that differ from what would be generated.
func (r *Report) Outdated() []FileResult {
	var out []FileResult
	for _, f := range r.Files {
		if f.Status == StatusOutdated {
			out = append(out, f)
		}
	}
	return out
}

type translator struct {
	opts   Options
	report *Report
}

// Translate renders every skill of every matching plugin.
func Translate(ctx context.Context, opts Options) (*Report, error) {
	log := logger.G(ctx)

	discovery, err := plugins.NewDiscovery(opts.Root, plugins.WithFilter(opts.Filter))
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(discovery.PluginsDir()); err != nil {
		return nil, errors.Errorf("plugins/ directory not found at %s", discovery.PluginsDir())
	}

	found, err := discovery.Discover()
	if err != nil {
		return nil, err
	}

	if !opts.DryRun && !opts.Check {
		if err := os.MkdirAll(opts.Output, 0o755); err != nil {
			return nil, errors.Wrap(err, "failed to create output directory")
		}
	}

	t := &translator{opts: opts, report: &Report{}}
	for _, plugin := range found {
		t.report.Plugins = append(t.report.Plugins, plugin.Name)
		log.WithField("plugin", plugin.Name).WithField("skills", len(plugin.Skills)).Debug("translating plugin")

		for _, skill := range plugin.Skills {
			if err := t.translateSkill(ctx, plugin.Name, skill); err != nil {
				return t.report, errors.Wrapf(err, "failed to translate %s/%s", plugin.Name, skill.Name)
			}
		}
	}

	return t.report, nil
}

func (t *translator) translateSkill(ctx context.Context, plugin string, src plugins.SkillSource) error {
	doc, err := ParseSkill(ctx, src.File)
	if err != nil {
		return err
	}

	skillKebab := ToKebabCase(doc.Name)
	pluginKebab := ToKebabCase(plugin)
	prefix := pluginKebab + "-" + skillKebab

	var att Attachments
	if src.IsDirectory() {
		att.Examples = glob(src.Dir, "examples", "*.md")
		att.Agents = glob(src.Dir, "agents", "*.md")
		att.Scripts = glob(src.Dir, "scripts", "*.py")
	}

	content, err := RenderSkill(doc, att)
	if err != nil {
		return err
	}
	if err := t.emit(plugin, prefix+".mdc", content); err != nil {
		return err
	}

	if !src.IsDirectory() {
		return nil
	}

	for _, path := range glob(src.Dir, "references", "*.md") {
		ref, err := ParseReference(path, doc.Name, plugin)
		if err != nil {
			return err
		}
		if err := t.emit(plugin, prefix+"--"+ToKebabCase(ref.Name)+".mdc", RenderReference(ref, "reference")); err != nil {
			return err
		}
	}

	for _, path := range att.Agents {
		ref, err := ParseReference(path, doc.Name, plugin)
		if err != nil {
			return err
		}
		if err := t.emit(plugin, prefix+"--agent-"+ToKebabCase(ref.Name)+".mdc", RenderReference(ref, "agent")); err != nil {
			return err
		}
	}

	return nil
}

func (t *translator) emit(plugin, name, content string) error {
	path := filepath.Join(t.opts.Output, name)
	result := FileResult{Plugin: plugin, Name: name, Path: path}

	existing, err := os.ReadFile(path)
	exists := err == nil
	upToDate := exists && string(existing) == content

	switch {
	case t.opts.Check:
		result.Status = StatusUpToDate
		if !upToDate {
			result.Status = StatusOutdated
			if t.opts.Diff {
				result.Diff = udiff.Unified("a/"+name, "b/"+name, string(existing), content)
			}
		}
	case t.opts.DryRun:
		result.Status = StatusPlanned
	case upToDate:
		result.Status = StatusUnchanged
	default:
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return errors.Wrapf(err, "failed to write %s", path)
		}
		result.Status = StatusWritten
	}

	t.report.Files = append(t.report.Files, result)
	return nil
}

// glob lists dir/sub/pattern in lexical order
func glob(dir, sub, pattern string) []string {
	matches, err := filepath.Glob(filepath.Join(dir, sub, pattern))
	if err != nil {
		return nil
	}
	return matches
}
