package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/claudine-dev/claudine/pkg/cursor"
	"github.com/claudine-dev/claudine/pkg/logger"
	"github.com/claudine-dev/claudine/pkg/presenter"
	"github.com/spf13/cobra"
)

type CursorTranslateConfig struct {
	Marketplace string
	Output      string
	Filter      string
	DryRun      bool
	Check       bool
	Verbose     bool
	Watch       bool
	Debounce    time.Duration
}

func NewCursorTranslateConfig() *CursorTranslateConfig {
	return &CursorTranslateConfig{
		Marketplace: "",
		Output:      "",
		Filter:      "",
		DryRun:      false,
		Check:       false,
		Verbose:     false,
		Watch:       false,
		Debounce:    cursor.DefaultDebounce,
	}
}

var cursorCmd = &cobra.Command{
	Use:   "cursor",
	Short: "Cursor integration",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

var cursorTranslateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Translate plugin skills into Cursor .mdc rules",
	Long: `Translate every skill of the marketplace plugins/ directory into a Cursor rule.
References and agents of a skill become rules of their own.

Examples:
  claudine cursor translate
  claudine cursor translate --filter 'python-*,docs'
  claudine cursor translate --check --verbose
  claudine cursor translate --watch`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		config := getCursorTranslateConfigFromFlags(cmd)
		opts := cursorOptions(config, loadConfig().Dir)

		presenter.Info("Marketplace: " + opts.Root)
		presenter.Info("Output: " + opts.Output)
		if opts.Filter != "" {
			presenter.Info("Filter: " + opts.Filter)
		}
		if opts.DryRun {
			presenter.Info("DRY RUN - no files will be written")
		}
		if opts.Check {
			presenter.Info("CHECK MODE - verifying files are up-to-date")
		}

		if config.Watch {
			watchTranslate(ctx, opts, config.Debounce)
			return
		}

		if !runTranslate(ctx, opts) {
			os.Exit(1)
		}
	},
}

func init() {
	defaults := NewCursorTranslateConfig()
	cursorTranslateCmd.Flags().String("marketplace", defaults.Marketplace, "Marketplace root holding plugins/ (defaults to the claudine directory)")
	cursorTranslateCmd.Flags().StringP("output", "o", defaults.Output, "Directory receiving the rules (defaults to <marketplace>/.cursor/rules)")
	cursorTranslateCmd.Flags().String("filter", defaults.Filter, "Comma separated plugin name globs to translate")
	cursorTranslateCmd.Flags().BoolP("dry-run", "n", defaults.DryRun, "Preview without writing files")
	cursorTranslateCmd.Flags().Bool("check", defaults.Check, "Check that the rules are up to date, exit 1 if not")
	cursorTranslateCmd.Flags().BoolP("verbose", "v", defaults.Verbose, "Show diffs of outdated rules in check mode")
	cursorTranslateCmd.Flags().BoolP("watch", "w", defaults.Watch, "Translate again whenever a plugin changes")
	cursorTranslateCmd.Flags().Duration("debounce", defaults.Debounce, "Quiet period before translating again in watch mode")

	cursorCmd.AddCommand(cursorTranslateCmd)
	rootCmd.AddCommand(cursorCmd)
}

func getCursorTranslateConfigFromFlags(cmd *cobra.Command) *CursorTranslateConfig {
	config := NewCursorTranslateConfig()
	if marketplace, err := cmd.Flags().GetString("marketplace"); err == nil {
		config.Marketplace = marketplace
	}
	if output, err := cmd.Flags().GetString("output"); err == nil {
		config.Output = output
	}
	if filter, err := cmd.Flags().GetString("filter"); err == nil {
		config.Filter = filter
	}
	if dryRun, err := cmd.Flags().GetBool("dry-run"); err == nil {
		config.DryRun = dryRun
	}
	if check, err := cmd.Flags().GetBool("check"); err == nil {
		config.Check = check
	}
	if verbose, err := cmd.Flags().GetBool("verbose"); err == nil {
		config.Verbose = verbose
	}
	if watch, err := cmd.Flags().GetBool("watch"); err == nil {
		config.Watch = watch
	}
	if debounce, err := cmd.Flags().GetDuration("debounce"); err == nil {
		config.Debounce = debounce
	}
	return config
}

func cursorOptions(config *CursorTranslateConfig, defaultRoot string) cursor.Options {
	root := config.Marketplace
	if root == "" {
		root = defaultRoot
	}
	output := config.Output
	if output == "" {
		output = filepath.Join(root, ".cursor", "rules")
	}
	return cursor.Options{
		Root:   root,
		Output: output,
		Filter: config.Filter,
		DryRun: config.DryRun,
		Check:  config.Check,
		Diff:   config.Check && config.Verbose,
	}
}

// runTranslate prints the outcome of one translation and reports success
func runTranslate(ctx context.Context, opts cursor.Options) bool {
	report, err := cursor.Translate(ctx, opts)
	if err != nil {
		presenter.Error(err, "Translation failed")
		return false
	}

	if opts.Check {
		outdated := report.Outdated()
		if len(outdated) == 0 {
			presenter.Success(fmt.Sprintf("All %d .mdc files are up-to-date", len(report.Files)))
			return true
		}
		presenter.Warning(fmt.Sprintf("%d files need updating:", len(outdated)))
		for _, f := range outdated {
			presenter.Info("  - " + filepath.Base(f.Path))
			if f.Diff != "" {
				presenter.Info(f.Diff)
			}
		}
		presenter.Info("Run without --check to regenerate files")
		return false
	}

	for _, f := range report.Files {
		logger.G(ctx).WithField("file", f.Path).WithField("status", f.Status).Debug("rule translated")
	}
	presenter.Success(fmt.Sprintf("Generated %d .mdc files from %d plugin(s)", len(report.Files), len(report.Plugins)))
	if opts.DryRun {
		presenter.Info("Run without --dry-run to write files")
	}
	return true
}

func watchTranslate(ctx context.Context, opts cursor.Options, debounce time.Duration) {
	runTranslate(ctx, opts)

	pluginsDir := filepath.Join(opts.Root, "plugins")
	presenter.Info("Watching " + pluginsDir + " for changes, press Ctrl+C to stop")
	err := cursor.Watch(ctx, pluginsDir, debounce, func() {
		runTranslate(ctx, opts)
	})
	if err != nil && ctx.Err() == nil {
		presenter.Error(err, "Watch stopped")
		os.Exit(1)
	}
}
