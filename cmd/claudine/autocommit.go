package main

import (
	"os"
	"strings"
	"time"

	"github.com/claudine-dev/claudine/pkg/autosync"
	"github.com/claudine-dev/claudine/pkg/presenter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type AutocommitConfig struct {
	Path      string
	PushDelay time.Duration
}

func NewAutocommitConfig() *AutocommitConfig {
	return &AutocommitConfig{
		Path:      "",
		PushDelay: 2 * time.Second,
	}
}

var autocommitCmd = &cobra.Command{
	Use:   "autocommit",
	Short: "Pull, commit and push the claudine repository",
	Long: `Synchronise the claudine repository with its remote: stash local changes, pull with
rebase, restore the stash, commit everything as "auto-sync: <time>" and push.

Merge conflicts left by the stash are handed to the configured resolver agent
(autosync.resolver_command). When it cannot resolve them the local changes are
dropped in favour of the remote state and the command exits 1.

Meant to run from cron or a launchd agent.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		cfg := loadConfig()
		config := getAutocommitConfigFromFlags(cmd)

		dir := config.Path
		if dir == "" {
			dir = cfg.Dir
		}

		syncer := autosync.New(dir,
			autosync.WithRunner(runner),
			autosync.WithResolver(cfg.Autosync.ResolverCommand, cfg.Autosync.ResolverTimeout),
			autosync.WithPushRetry(cfg.Autosync.PushAttempts, config.PushDelay),
		)

		result, err := syncer.Run(ctx)
		if err != nil {
			if errors.Is(err, autosync.ErrUnresolvedConflicts) {
				presenter.Error(err, "Local changes were discarded")
			} else {
				presenter.Error(err, "Auto-sync failed")
			}
			os.Exit(1)
		}

		if len(result.Resolved) > 0 {
			presenter.Info("Resolved conflicts in: " + strings.Join(result.Resolved, ", "))
		}
		switch result.Outcome {
		case autosync.OutcomeCommitted:
			presenter.Success("Committed and pushed: " + result.Message)
		case autosync.OutcomeNothing:
			presenter.Info("Nothing to commit")
		default:
			presenter.Info("Already up to date")
		}
	},
}

func init() {
	defaults := NewAutocommitConfig()
	autocommitCmd.Flags().StringP("path", "p", defaults.Path, "Repository to sync (defaults to the claudine directory)")
	autocommitCmd.Flags().Duration("push-delay", defaults.PushDelay, "Delay between push attempts")

	rootCmd.AddCommand(autocommitCmd)
}

func getAutocommitConfigFromFlags(cmd *cobra.Command) *AutocommitConfig {
	config := NewAutocommitConfig()
	if path, err := cmd.Flags().GetString("path"); err == nil {
		config.Path = path
	}
	if delay, err := cmd.Flags().GetDuration("push-delay"); err == nil {
		config.PushDelay = delay
	}
	return config
}
