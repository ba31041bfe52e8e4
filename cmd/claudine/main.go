package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/claudine-dev/claudine/pkg/config"
	"github.com/claudine-dev/claudine/pkg/logger"
	"github.com/claudine-dev/claudine/pkg/osutil"
	"github.com/claudine-dev/claudine/pkg/presenter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	config.Init(viper.GetViper())
}

var rootCmd = &cobra.Command{
	Use:   "claudine",
	Short: "Claudine keeps AI agent configuration in sync across projects",
	Long: `Claudine manages a repository of agent skills and the tooling around it:
linking skills into projects, translating plugins into Cursor rules, skill-learning
hooks, git auto-sync, pull request reviews, and the Scaleway deployment workflow.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		if err := logger.Setup(viper.GetString("log_level"), viper.GetString("log_format")); err != nil {
			presenter.Error(err, "Invalid logging configuration")
			os.Exit(1)
		}
		if quiet, err := cmd.Flags().GetBool("quiet"); err == nil && quiet {
			presenter.SetQuiet(true)
		}
	},
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

// loadConfig decodes the merged flag, env and file settings or exits
func loadConfig() *config.Config {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		presenter.Error(err, "Failed to load configuration")
		os.Exit(1)
	}
	return cfg
}

// runner is the process runner shared by every command; tests replace it
var runner osutil.Runner = osutil.NewExecRunner()

func main() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (panic, fatal, error, warn, info, debug, trace)")
	rootCmd.PersistentFlags().String("log-format", "fmt", "Log format (fmt or json)")
	rootCmd.PersistentFlags().String("dir", "", "Path of the claudine repository (defaults to ~/Documents/claudine)")
	rootCmd.PersistentFlags().String("github-repo", "", "GitHub repository owner/name, defaults to the origin remote")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Only print errors and machine readable output")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("dir", rootCmd.PersistentFlags().Lookup("dir"))
	viper.BindPFlag("github_repo", rootCmd.PersistentFlags().Lookup("github-repo"))

	rootCmd.AddCommand(versionCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
