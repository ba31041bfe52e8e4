// Package skillsync links the shared .claude folder of the claudine repo into
// a project so Claude and Codex pick up the same skills, hooks and root
// instruction files.
package skillsync

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/claudine-dev/claudine/pkg/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// GitignoreMarker heads the block of synced entries in .gitignore.
const GitignoreMarker = "# skill_sync symlinks"

var (
	// TargetFolders receive a symlink per top-level source item.
	TargetFolders = []string{".claude", ".codex"}
	// RootFiles are linked from the source's parent into the target root.
	RootFiles = []string{"CLAUDE.md", "AGENTS.md"}
)

// Kind classifies what happened to a path.
type Kind string

// Action kinds.
const (
	KindCreate    Kind = "create"
	KindLink      Kind = "link"
	KindUpdate    Kind = "update"
	KindReplace   Kind = "replace"
	KindSkip      Kind = "skip"
	KindGitignore Kind = "gitignore"
)

// Action is a single step taken, or planned in dry-run mode.
type Action struct {
	Kind   Kind
	Path   string
	Target string
	Reason string
}

func (a Action) String() string {
	var b strings.Builder
	b.WriteString("[" + string(a.Kind) + "] " + a.Path)
	if a.Target != "" {
		b.WriteString(" -> " + a.Target)
	}
	if a.Reason != "" {
		b.WriteString(" (" + a.Reason + ")")
	}
	return b.String()
}

// Options configures a sync run.
type Options struct {
	Source string // the .claude folder to link from
	Target string // the project directory to link into
	Force  bool
	DryRun bool
}

// Sync links every top-level item of the source folder into each target
// folder, links the root instruction files, and records the links in
// .gitignore. Per-item failures are collected and returned together.
func Sync(ctx context.Context, opts Options) ([]Action, error) {
	log := logger.G(ctx).WithField("source", opts.Source).WithField("target", opts.Target)

	source, err := filepath.Abs(opts.Source)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve source")
	}
	target, err := filepath.Abs(opts.Target)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve target")
	}

	info, err := os.Stat(source)
	if err != nil || !info.IsDir() {
		return nil, errors.Errorf("source folder does not exist: %s", source)
	}

	entries, err := os.ReadDir(source)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read source folder")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var actions []Action
	var merr *multierror.Error
	var ignored []string

	if len(names) == 0 {
		log.Warn("no items found in source folder")
		return actions, nil
	}

	for _, folder := range TargetFolders {
		targetFolder := filepath.Join(target, folder)
		if _, err := os.Lstat(targetFolder); os.IsNotExist(err) {
			if !opts.DryRun {
				if err := os.MkdirAll(targetFolder, 0o755); err != nil {
					return actions, errors.Wrapf(err, "failed to create %s", targetFolder)
				}
			}
			actions = append(actions, Action{Kind: KindCreate, Path: folder + "/"})
		}

		for _, name := range names {
			action, err := linkItem(filepath.Join(source, name), filepath.Join(targetFolder, name), opts)
			action.Path = folder + "/" + name
			actions = append(actions, action)
			if err != nil {
				merr = multierror.Append(merr, err)
				continue
			}
			ignored = append(ignored, folder+"/"+name)
		}
	}

	sourceRoot := filepath.Dir(source)
	for _, name := range RootFiles {
		sourceFile := filepath.Join(sourceRoot, name)
		if fi, err := os.Stat(sourceFile); err != nil || fi.IsDir() {
			actions = append(actions, Action{Kind: KindSkip, Path: name, Reason: "not found in source"})
			continue
		}
		action, err := linkItem(sourceFile, filepath.Join(target, name), opts)
		action.Path = name
		actions = append(actions, action)
		if err != nil {
			merr = multierror.Append(merr, err)
			continue
		}
		ignored = append(ignored, name)
	}

	added, err := UpdateGitignore(filepath.Join(target, ".gitignore"), ignored, opts.DryRun)
	if err != nil {
		merr = multierror.Append(merr, err)
	}
	if len(added) == 0 {
		actions = append(actions, Action{Kind: KindSkip, Path: ".gitignore", Reason: "already up to date"})
	}
	for _, entry := range added {
		actions = append(actions, Action{Kind: KindGitignore, Path: entry})
	}

	log.WithField("actions", len(actions)).Debug("skill sync finished")
	return actions, merr.ErrorOrNil()
}

// linkItem makes target a symlink to source, following the force rules:
// a symlink elsewhere is updated and a real file or directory is replaced.
func linkItem(source, target string, opts Options) (Action, error) {
	action := Action{Target: source}

	fi, err := os.Lstat(target)
	switch {
	case os.IsNotExist(err):
		action.Kind = KindLink
	case err != nil:
		return action, errors.Wrapf(err, "failed to inspect %s", target)
	case fi.Mode()&os.ModeSymlink != 0:
		if sameFile(source, target) {
			action.Kind = KindSkip
			action.Reason = "already linked"
			return action, nil
		}
		if !opts.Force {
			action.Kind = KindSkip
			action.Reason = "exists, use --force to overwrite"
			return action, nil
		}
		action.Kind = KindUpdate
	default:
		if !opts.Force {
			action.Kind = KindSkip
			action.Reason = "exists as real file/dir, use --force"
			return action, nil
		}
		action.Kind = KindReplace
	}

	if opts.DryRun {
		return action, nil
	}

	if action.Kind != KindLink {
		if err := os.RemoveAll(target); err != nil {
			return action, errors.Wrapf(err, "failed to remove %s", target)
		}
	}
	if err := os.Symlink(source, target); err != nil {
		return action, errors.Wrapf(err, "failed to link %s", target)
	}
	return action, nil
}

func sameFile(source, link string) bool {
	a, err := filepath.EvalSymlinks(source)
	if err != nil {
		return false
	}
	b, err := filepath.EvalSymlinks(link)
	if err != nil {
		return false
	}
	return a == b
}

// UpdateGitignore appends entries missing from the .gitignore at path. The
// marker comment is written the first time. It returns the entries added.
func UpdateGitignore(path string, entries []string, dryRun bool) ([]string, error) {
	existing := map[string]bool{}
	if f, err := os.Open(path); err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			existing[scanner.Text()] = true
		}
		f.Close()
		if err := scanner.Err(); err != nil {
			return nil, errors.Wrap(err, "failed to read .gitignore")
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to open .gitignore")
	}

	var added []string
	seen := map[string]bool{}
	for _, e := range entries {
		if existing[e] || seen[e] {
			continue
		}
		seen[e] = true
		added = append(added, e)
	}

	if len(added) == 0 || dryRun {
		return added, nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open .gitignore")
	}
	defer f.Close()

	var b strings.Builder
	if !existing[GitignoreMarker] {
		b.WriteString("\n" + GitignoreMarker + "\n")
	}
	for _, e := range added {
		b.WriteString(e + "\n")
	}
	if _, err := f.WriteString(b.String()); err != nil {
		return nil, errors.Wrap(err, "failed to write .gitignore")
	}

	return added, nil
}
