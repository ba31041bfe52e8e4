package main

import (
	"os"
	"strings"

	"github.com/claudine-dev/claudine/pkg/hooks"
	"github.com/claudine-dev/claudine/pkg/presenter"
	"github.com/spf13/cobra"
)

var hookCmd = &cobra.Command{
	Use:   "hook <name>",
	Short: "Run an agent hook",
	Long: `Run one of the skill-learning hooks. The hook reads its event as JSON on stdin
and writes its response as JSON on stdout.

Available hooks:
  skill-learning           PostToolUse: ask the agent to record learnings for the skill it used
  skill-learning-trigger   UserPromptSubmit: remind the agent once the user signs off
  skill-learning-cleanup   SessionEnd: drop pending reminders`,
	Args: cobra.ExactArgs(1),
	ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return hooks.DefaultRegistry(nil).Names(), cobra.ShellCompDirectiveNoFileComp
	},
	Run: func(cmd *cobra.Command, args []string) {
		store, err := hooks.DefaultMarkerStore()
		if err != nil {
			presenter.Error(err, "Failed to locate the pending skill marker")
			os.Exit(1)
		}

		registry := hooks.DefaultRegistry(store)
		if err := registry.Run(cmd.Context(), args[0], os.Stdin, os.Stdout); err != nil {
			presenter.Error(err, "Available hooks: "+strings.Join(registry.Names(), ", "))
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(hookCmd)
}
