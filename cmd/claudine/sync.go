package main

import (
	"fmt"
	"os"

	"github.com/claudine-dev/claudine/pkg/presenter"
	"github.com/claudine-dev/claudine/pkg/skillsync"
	"github.com/spf13/cobra"
)

type SyncConfig struct {
	Source string
	Target string
	Force  bool
	DryRun bool
}

func NewSyncConfig() *SyncConfig {
	return &SyncConfig{
		Source: "",
		Target: "",
		Force:  false,
		DryRun: false,
	}
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Link the claudine skills into a project",
	Long: `Symlink every item of the claudine .claude folder into the project's .claude
and .codex folders, link CLAUDE.md and AGENTS.md into the project root, and add the
links to the project's .gitignore.

Existing files are left alone unless --force is given.

Examples:
  claudine sync
  claudine sync --target ~/src/project --force
  claudine sync --dry-run`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		config := getSyncConfigFromFlags(cmd)

		opts, err := syncOptions(config, loadConfig().SkillsSource())
		if err != nil {
			presenter.Error(err, "Failed to resolve the target directory")
			os.Exit(1)
		}

		if config.DryRun {
			presenter.Info("Dry run, nothing will be changed")
		}

		actions, err := skillsync.Sync(ctx, opts)
		for _, a := range actions {
			presenter.Info(a.String())
		}
		if err != nil {
			presenter.Error(err, "Sync did not complete")
			os.Exit(1)
		}

		presenter.Success(fmt.Sprintf("Synced %s into %s", opts.Source, opts.Target))
	},
}

func init() {
	defaults := NewSyncConfig()
	syncCmd.Flags().StringP("source", "s", defaults.Source, "The .claude folder to link from (defaults to <dir>/.claude)")
	syncCmd.Flags().StringP("target", "t", defaults.Target, "The project to link into (defaults to the current directory)")
	syncCmd.Flags().BoolP("force", "f", defaults.Force, "Replace existing files and links")
	syncCmd.Flags().BoolP("dry-run", "n", defaults.DryRun, "Show what would be done without changing anything")

	rootCmd.AddCommand(syncCmd)
}

func getSyncConfigFromFlags(cmd *cobra.Command) *SyncConfig {
	config := NewSyncConfig()
	if source, err := cmd.Flags().GetString("source"); err == nil {
		config.Source = source
	}
	if target, err := cmd.Flags().GetString("target"); err == nil {
		config.Target = target
	}
	if force, err := cmd.Flags().GetBool("force"); err == nil {
		config.Force = force
	}
	if dryRun, err := cmd.Flags().GetBool("dry-run"); err == nil {
		config.DryRun = dryRun
	}
	return config
}

// syncOptions fills in the default source and the working directory
func syncOptions(config *SyncConfig, defaultSource string) (skillsync.Options, error) {
	opts := skillsync.Options{
		Source: config.Source,
		Target: config.Target,
		Force:  config.Force,
		DryRun: config.DryRun,
	}
	if opts.Source == "" {
		opts.Source = defaultSource
	}
	if opts.Target == "" {
		wd, err := os.Getwd()
		if err != nil {
			return opts, err
		}
		opts.Target = wd
	}
	return opts, nil
}
