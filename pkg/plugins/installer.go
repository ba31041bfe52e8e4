package plugins

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/claudine-dev/claudine/pkg/logger"
	"github.com/claudine-dev/claudine/pkg/osutil"
	"github.com/claudine-dev/claudine/pkg/skills"
	"github.com/pkg/errors"
)

// EnvRepoRoot overrides the repository that receives new submodules.
const EnvRepoRoot = "CLAUDINE_REPO"

// RepoNameFromURL derives the directory name for a Git URL: the last path
// segment with any trailing slash and .git suffix removed. It understands
// both git@host:org/repo and https://host/org/repo forms.
func RepoNameFromURL(url string) (string, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return "", errors.New("git URL cannot be empty")
	}

	base := strings.TrimSuffix(strings.TrimRight(url, "/"), ".git")
	if base == "" {
		return "", errors.Errorf("cannot derive repository name from %q", url)
	}

	last := base
	if i := strings.LastIndex(base, "/"); i >= 0 {
		last = base[i+1:]
	}
	if i := strings.LastIndex(last, ":"); i >= 0 {
		last = last[i+1:]
	}
	if last == "" || strings.ContainsAny(last, `/\`) {
		return "", errors.Errorf("cannot derive repository name from %q", url)
	}
	return last, nil
}

// ResolveRepoRoot picks the target repository: the explicit flag, then
// $CLAUDINE_REPO, then the git toplevel of the working directory.
func ResolveRepoRoot(ctx context.Context, r osutil.Runner, flag string) (string, error) {
	if flag = strings.TrimSpace(flag); flag != "" {
		return filepath.Abs(flag)
	}
	if env := strings.TrimSpace(os.Getenv(EnvRepoRoot)); env != "" {
		return filepath.Abs(env)
	}

	res, err := r.Run(ctx, osutil.Cmd("git", "rev-parse", "--show-toplevel"))
	if err != nil {
		return "", errors.Wrap(err, "not inside a git repository; use --repo-root or set "+EnvRepoRoot)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// Installer vendors a skill repository as a git submodule and links its
// skills into the repository's skills directory.
type Installer struct {
	repoRoot    string
	externalDir string
	skillsDir   string
	force       bool
	runner      osutil.Runner
}

// InstallerOption configures an Installer instance
type InstallerOption func(*Installer)

// WithForce reuses an existing submodule path and overwrites existing links
func WithForce(force bool) InstallerOption {
	return func(i *Installer) {
		i.force = force
	}
}

// WithRunner sets the command runner used for git
func WithRunner(r osutil.Runner) InstallerOption {
	return func(i *Installer) {
		i.runner = r
	}
}

// WithExternalDir overrides <repo>/external
func WithExternalDir(dir string) InstallerOption {
	return func(i *Installer) {
		if dir != "" {
			i.externalDir = dir
		}
	}
}

// WithSkillsDir overrides <repo>/.claude/skills
func WithSkillsDir(dir string) InstallerOption {
	return func(i *Installer) {
		if dir != "" {
			i.skillsDir = dir
		}
	}
}

// NewInstaller creates an installer for the repository at repoRoot
func NewInstaller(repoRoot string, opts ...InstallerOption) *Installer {
	i := &Installer{
		repoRoot:    repoRoot,
		externalDir: filepath.Join(repoRoot, externalSubdir),
		skillsDir:   filepath.Join(repoRoot, ".claude", skillsSubdir),
		runner:      osutil.NewExecRunner(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Link is a symlink created in the skills directory
type Link struct {
	Name   string
	Path   string
	Target string // relative to the link's directory
}

// InstallResult contains information about an installed skill repository
type InstallResult struct {
	RepoName      string
	SubmodulePath string
	Added         bool // false when an existing submodule was reused
	Links         []Link
}

// Install adds url as external/<name> and links its topmost skill
// directories into the skills directory.
func (i *Installer) Install(ctx context.Context, url string) (*InstallResult, error) {
	log := logger.G(ctx)

	name, err := RepoNameFromURL(url)
	if err != nil {
		return nil, err
	}

	submodulePath := filepath.Join(i.externalDir, name)
	result := &InstallResult{RepoName: name, SubmodulePath: submodulePath}

	_, statErr := os.Lstat(submodulePath)
	exists := statErr == nil
	if exists && !i.force {
		return nil, errors.Errorf("submodule path already exists: %s (use --force to relink)", submodulePath)
	}

	if err := os.MkdirAll(i.externalDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create external directory")
	}

	relPath, err := filepath.Rel(i.repoRoot, submodulePath)
	if err != nil {
		return nil, errors.Wrap(err, "submodule path must be inside the repository")
	}
	relPath = filepath.ToSlash(relPath)

	if !exists {
		log.WithField("url", url).WithField("path", relPath).Info("adding submodule")
		if _, err := i.git(ctx, "submodule", "add", url, relPath); err != nil {
			return nil, errors.Wrap(err, "git submodule add failed")
		}
		result.Added = true
	} else {
		log.WithField("path", relPath).Info("submodule path exists, updating and relinking")
		i.ensureGitmodulesEntry(ctx, relPath, url)
		if _, err := i.git(ctx, "submodule", "update", "--init", "--", relPath); err != nil {
			log.WithError(err).Warn("git submodule update failed, continuing with existing tree")
		}
	}

	if err := os.MkdirAll(i.skillsDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create skills directory")
	}

	all, err := skills.FindSkillDirs(submodulePath)
	if err != nil {
		return nil, err
	}
	folders := skills.MinimalDirs(all)
	if len(folders) == 0 {
		log.Info("no directories with SKILL.md found, no symlinks created")
		return result, nil
	}

	resolvedSubmodule, err := filepath.EvalSymlinks(submodulePath)
	if err != nil {
		return nil, errors.Wrap(err, "cannot resolve submodule path")
	}
	resolvedSkills, err := filepath.EvalSymlinks(i.skillsDir)
	if err != nil {
		return nil, errors.Wrap(err, "cannot resolve skills directory")
	}

	cleanSubmodule := filepath.Clean(submodulePath)
	for _, folder := range folders {
		skillName := filepath.Base(folder)
		target := resolvedSubmodule
		if folder != cleanSubmodule {
			rel, err := filepath.Rel(cleanSubmodule, folder)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to relate %s to submodule", folder)
			}
			target = filepath.Join(resolvedSubmodule, rel)
		} else {
			skillName = name
		}

		link, err := i.link(skillName, target, resolvedSkills)
		if err != nil {
			return nil, err
		}
		log.WithField("link", link.Path).WithField("target", link.Target).Info("linked skill")
		result.Links = append(result.Links, *link)
	}

	return result, nil
}

func (i *Installer) link(skillName, target, resolvedSkills string) (*Link, error) {
	linkPath := filepath.Join(i.skillsDir, skillName)

	if fi, err := os.Lstat(linkPath); err == nil {
		if !i.force {
			return nil, errors.Errorf("skill target already exists: %s", linkPath)
		}
		switch {
		case fi.Mode()&os.ModeSymlink != 0:
			if err := os.Remove(linkPath); err != nil {
				return nil, errors.Wrapf(err, "failed to remove %s", linkPath)
			}
		case fi.IsDir():
			if err := os.RemoveAll(linkPath); err != nil {
				return nil, errors.Wrapf(err, "failed to remove %s", linkPath)
			}
		default:
			return nil, errors.Errorf("skill target exists and is a file (not a dir/symlink): %s", linkPath)
		}
	}

	rel, err := filepath.Rel(resolvedSkills, target)
	if err != nil {
		rel = target
	}
	if err := os.Symlink(rel, linkPath); err != nil {
		return nil, errors.Wrapf(err, "failed to link %s", linkPath)
	}
	return &Link{Name: skillName, Path: linkPath, Target: rel}, nil
}

// ensureGitmodulesEntry records path and url in .gitmodules when missing so
// "git submodule update" can find the remote. Failures are only logged.
func (i *Installer) ensureGitmodulesEntry(ctx context.Context, relPath, url string) {
	log := logger.G(ctx)
	key := "submodule." + relPath

	res, err := i.git(ctx, "config", "-f", ".gitmodules", "--get", key+".url")
	if err == nil && strings.TrimSpace(res.Stdout) != "" {
		return
	}

	steps := [][]string{
		{"config", "-f", ".gitmodules", key + ".path", relPath},
		{"config", "-f", ".gitmodules", key + ".url", url},
		{"submodule", "sync", "--"},
	}
	for _, args := range steps {
		if _, err := i.git(ctx, args...); err != nil {
			log.WithError(err).Debug("could not ensure .gitmodules entry")
			return
		}
	}
}

func (i *Installer) git(ctx context.Context, args ...string) (osutil.Result, error) {
	return i.runner.Run(ctx, osutil.Cmd("git", args...).InDir(i.repoRoot))
}

// Remover undoes an install: the skill links, the submodule and its git dir
type Remover struct {
	repoRoot    string
	externalDir string
	skillsDir   string
	runner      osutil.Runner
}

// NewRemover creates a remover sharing the installer's layout options
func NewRemover(repoRoot string, opts ...InstallerOption) *Remover {
	i := NewInstaller(repoRoot, opts...)
	return &Remover{
		repoRoot:    i.repoRoot,
		externalDir: i.externalDir,
		skillsDir:   i.skillsDir,
		runner:      i.runner,
	}
}

// Remove deletes the links into external/<name> and deinitialises the submodule
func (r *Remover) Remove(ctx context.Context, name string) ([]string, error) {
	submodulePath := filepath.Join(r.externalDir, name)
	if _, err := os.Lstat(submodulePath); os.IsNotExist(err) {
		return nil, errors.Errorf("skill repository '%s' not found", name)
	}

	removed, err := r.removeLinks(submodulePath)
	if err != nil {
		return removed, err
	}

	relPath, err := filepath.Rel(r.repoRoot, submodulePath)
	if err != nil {
		return removed, errors.Wrap(err, "submodule path must be inside the repository")
	}
	relPath = filepath.ToSlash(relPath)

	git := func(args ...string) error {
		_, err := r.runner.Run(ctx, osutil.Cmd("git", args...).InDir(r.repoRoot))
		return err
	}
	if err := git("submodule", "deinit", "-f", "--", relPath); err != nil {
		return removed, errors.Wrap(err, "git submodule deinit failed")
	}
	if err := git("rm", "-f", "--", relPath); err != nil {
		return removed, errors.Wrap(err, "git rm failed")
	}
	if err := os.RemoveAll(filepath.Join(r.repoRoot, ".git", "modules", relPath)); err != nil {
		return removed, errors.Wrap(err, "failed to remove submodule git dir")
	}
	return removed, nil
}

func (r *Remover) removeLinks(submodulePath string) ([]string, error) {
	links, err := linksInto(r.skillsDir, submodulePath)
	if err != nil {
		return nil, err
	}
	for _, l := range links {
		if err := os.Remove(filepath.Join(r.skillsDir, l)); err != nil {
			return nil, errors.Wrapf(err, "failed to remove link %s", l)
		}
	}
	return links, nil
}

// List returns the vendored skill repositories and the links into each
func (r *Remover) List() ([]InstalledRepo, error) {
	entries, err := os.ReadDir(r.externalDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read external directory")
	}

	var repos []InstalledRepo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(r.externalDir, entry.Name())
		links, err := linksInto(r.skillsDir, path)
		if err != nil {
			return nil, err
		}
		repos = append(repos, InstalledRepo{Name: entry.Name(), Path: path, Skills: links})
	}
	return repos, nil
}

// linksInto names the symlinks in skillsDir whose target lies inside dir
func linksInto(skillsDir, dir string) ([]string, error) {
	entries, err := os.ReadDir(skillsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read skills directory")
	}

	root, err := filepath.EvalSymlinks(dir)
	if err != nil {
		root = filepath.Clean(dir)
	}

	var names []string
	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink == 0 {
			continue
		}
		dest, err := os.Readlink(filepath.Join(skillsDir, entry.Name()))
		if err != nil {
			continue
		}
		if !filepath.IsAbs(dest) {
			resolvedSkills, err := filepath.EvalSymlinks(skillsDir)
			if err != nil {
				resolvedSkills = skillsDir
			}
			dest = filepath.Join(resolvedSkills, dest)
		}
		dest = filepath.Clean(dest)
		if dest == root || strings.HasPrefix(dest, root+string(os.PathSeparator)) {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}
