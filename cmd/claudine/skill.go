package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/claudine-dev/claudine/pkg/config"
	"github.com/claudine-dev/claudine/pkg/plugins"
	"github.com/claudine-dev/claudine/pkg/presenter"
	"github.com/claudine-dev/claudine/pkg/skills"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type SkillListConfig struct {
	Dirs []string
}

func NewSkillListConfig() *SkillListConfig {
	return &SkillListConfig{
		Dirs: nil,
	}
}

type SkillAddConfig struct {
	Force    bool
	RepoRoot string
}

func NewSkillAddConfig() *SkillAddConfig {
	return &SkillAddConfig{
		Force:    false,
		RepoRoot: "",
	}
}

type SkillRemoveConfig struct {
	RepoRoot string
}

func NewSkillRemoveConfig() *SkillRemoveConfig {
	return &SkillRemoveConfig{
		RepoRoot: "",
	}
}

var skillCmd = &cobra.Command{
	Use:   "skill",
	Short: "Manage claudine skills",
	Long:  `List, lint, add, and remove the skills of the claudine repository.`,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

var skillListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all available skills",
	Long: `List the skills of the current project, the user's ~/.claude/skills, the claudine
repository and its plugins, with their names, descriptions, and directories.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		config := getSkillListConfigFromFlags(cmd)
		listSkillsCmd(loadConfig(), config)
	},
}

var skillLintCmd = &cobra.Command{
	Use:   "lint [dirs...]",
	Short: "Check that every SKILL.md carries a name and description",
	Long: `Check every SKILL.md found under the given directories (default: the claudine
.claude/skills and plugins directories). Exits 1 when any skill is invalid.`,
	Run: func(_ *cobra.Command, args []string) {
		roots := args
		if len(roots) == 0 {
			cfg := loadConfig()
			roots = existingDirs(
				filepath.Join(cfg.SkillsSource(), "skills"),
				filepath.Join(cfg.Dir, "plugins"),
			)
		}
		lintSkillsCmd(roots)
	},
}

var skillAddCmd = &cobra.Command{
	Use:   "add <git-url>",
	Short: "Add a skill repository as a git submodule",
	Long: `Add a git repository of skills as a submodule under external/ and link every
skill it contains into .claude/skills with relative symlinks.

The target repository is --repo-root, else $CLAUDINE_REPO, else the git repository
of the current directory.

Examples:
  claudine skill add https://github.com/anthropics/skills.git
  claudine skill add git@github.com:org/skills.git --force`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		config := getSkillAddConfigFromFlags(cmd)
		addSkillCmd(cmd.Context(), args[0], config)
	},
}

var skillRemoveCmd = &cobra.Command{
	Use:   "remove <repo-name>",
	Short: "Remove a skill repository and its links",
	Long: `Remove the external/<repo-name> submodule and every .claude/skills link that
points into it. Without an argument, list the installed skill repositories.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		config := getSkillRemoveConfigFromFlags(cmd)
		if len(args) == 0 {
			listInstalledCmd(cmd.Context(), config)
			return
		}
		removeSkillCmd(cmd.Context(), args[0], config)
	},
}

func init() {
	listDefaults := NewSkillListConfig()
	skillListCmd.Flags().StringSlice("skills-dir", listDefaults.Dirs, "Skill directories to search instead of the defaults")

	addDefaults := NewSkillAddConfig()
	skillAddCmd.Flags().BoolP("force", "f", addDefaults.Force, "Reuse an existing submodule and replace colliding links")
	skillAddCmd.Flags().String("repo-root", addDefaults.RepoRoot, "Repository to add the submodule to")

	removeDefaults := NewSkillRemoveConfig()
	skillRemoveCmd.Flags().String("repo-root", removeDefaults.RepoRoot, "Repository to remove the submodule from")

	skillCmd.AddCommand(skillListCmd)
	skillCmd.AddCommand(skillLintCmd)
	skillCmd.AddCommand(skillAddCmd)
	skillCmd.AddCommand(skillRemoveCmd)
	rootCmd.AddCommand(skillCmd)
}

func getSkillListConfigFromFlags(cmd *cobra.Command) *SkillListConfig {
	config := NewSkillListConfig()
	if dirs, err := cmd.Flags().GetStringSlice("skills-dir"); err == nil {
		config.Dirs = dirs
	}
	return config
}

func getSkillAddConfigFromFlags(cmd *cobra.Command) *SkillAddConfig {
	config := NewSkillAddConfig()
	if force, err := cmd.Flags().GetBool("force"); err == nil {
		config.Force = force
	}
	if root, err := cmd.Flags().GetString("repo-root"); err == nil {
		config.RepoRoot = root
	}
	return config
}

func getSkillRemoveConfigFromFlags(cmd *cobra.Command) *SkillRemoveConfig {
	config := NewSkillRemoveConfig()
	if root, err := cmd.Flags().GetString("repo-root"); err == nil {
		config.RepoRoot = root
	}
	return config
}

// skillDiscoveryOptions searches the project, the user and the claudine
// repository, in that order of precedence
func skillDiscoveryOptions(cfg *config.Config, dirs []string) []skills.Option {
	if len(dirs) > 0 {
		return []skills.Option{skills.WithSkillDirs(dirs...)}
	}

	home, _ := os.UserHomeDir()
	return []skills.Option{
		skills.WithSkillDirs(
			"./.claude/skills",
			filepath.Join(home, ".claude", "skills"),
			filepath.Join(cfg.SkillsSource(), "skills"),
		),
		skills.WithPluginDirs(filepath.Join(cfg.Dir, "plugins")),
	}
}

func listSkillsCmd(cfg *config.Config, config *SkillListConfig) {
	discovery, err := skills.NewDiscovery(skillDiscoveryOptions(cfg, config.Dirs)...)
	if err != nil {
		presenter.Error(err, "Failed to initialize skill discovery")
		os.Exit(1)
	}

	found, err := discovery.DiscoverSkills()
	if err != nil {
		presenter.Error(err, "Failed to discover skills")
		os.Exit(1)
	}

	if len(found) == 0 {
		presenter.Info("No skills installed.")
		return
	}

	names := make([]string, 0, len(found))
	for name := range found {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		s := found[name]
		rows = append(rows, []string{name, truncate(s.Description, 60), s.Directory})
	}
	presenter.Table("", []string{"NAME", "DESCRIPTION", "DIRECTORY"}, rows)
}

func lintSkillsCmd(roots []string) {
	if len(roots) == 0 {
		presenter.Warning("No skill directories to lint")
		return
	}

	checked, err := skills.Lint(roots...)
	if err != nil {
		var merr *multierror.Error
		if errors.As(err, &merr) {
			for _, problem := range merr.Errors {
				presenter.Error(problem, "")
			}
		} else {
			presenter.Error(err, "Lint failed")
		}
		os.Exit(1)
	}
	presenter.Success(fmt.Sprintf("%d skill(s) checked, no problems found", checked))
}

func addSkillCmd(ctx context.Context, url string, config *SkillAddConfig) {
	root, err := plugins.ResolveRepoRoot(ctx, runner, config.RepoRoot)
	if err != nil {
		presenter.Error(err, "Failed to find the repository")
		os.Exit(1)
	}

	installer := plugins.NewInstaller(root, plugins.WithForce(config.Force), plugins.WithRunner(runner))
	result, err := installer.Install(ctx, url)
	if err != nil {
		presenter.Error(err, "Failed to add skill repository")
		os.Exit(1)
	}

	if result.Added {
		presenter.Success(fmt.Sprintf("Added submodule %s", result.SubmodulePath))
	} else {
		presenter.Info(fmt.Sprintf("Reusing existing submodule %s", result.SubmodulePath))
	}
	for _, link := range result.Links {
		presenter.Info(fmt.Sprintf("  %s -> %s", link.Path, link.Target))
	}
	presenter.Success(fmt.Sprintf("Linked %d skill(s) from %s", len(result.Links), result.RepoName))
}

func listInstalledCmd(ctx context.Context, config *SkillRemoveConfig) {
	root, err := plugins.ResolveRepoRoot(ctx, runner, config.RepoRoot)
	if err != nil {
		presenter.Error(err, "Failed to find the repository")
		os.Exit(1)
	}

	repos, err := plugins.NewRemover(root, plugins.WithRunner(runner)).List()
	if err != nil {
		presenter.Error(err, "Failed to list skill repositories")
		os.Exit(1)
	}
	if len(repos) == 0 {
		presenter.Info("No skill repositories installed.")
		return
	}

	rows := make([][]string, 0, len(repos))
	for _, repo := range repos {
		rows = append(rows, []string{repo.Name, strings.Join(repo.Skills, ", ")})
	}
	presenter.Table("", []string{"REPOSITORY", "SKILLS"}, rows)
}

func removeSkillCmd(ctx context.Context, name string, config *SkillRemoveConfig) {
	root, err := plugins.ResolveRepoRoot(ctx, runner, config.RepoRoot)
	if err != nil {
		presenter.Error(err, "Failed to find the repository")
		os.Exit(1)
	}

	removed, err := plugins.NewRemover(root, plugins.WithRunner(runner)).Remove(ctx, name)
	for _, link := range removed {
		presenter.Info("Removed link " + link)
	}
	if err != nil {
		presenter.Error(err, "Failed to remove skill repository")
		os.Exit(1)
	}
	presenter.Success(fmt.Sprintf("Removed skill repository '%s'", name))
}

func existingDirs(dirs ...string) []string {
	var out []string
	for _, dir := range dirs {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			out = append(out, dir)
		}
	}
	return out
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}
