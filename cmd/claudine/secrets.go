package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/claudine-dev/claudine/pkg/presenter"
	"github.com/claudine-dev/claudine/pkg/secrets"
	"github.com/spf13/cobra"
)

type SecretsCheckConfig struct {
	JSON     bool
	Required []string
}

func NewSecretsCheckConfig() *SecretsCheckConfig {
	return &SecretsCheckConfig{
		JSON:     false,
		Required: nil,
	}
}

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Inspect the GitHub secrets CI depends on",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

var secretsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Report required repository secrets that are missing",
	Long: `List the repository secrets and report every required name that is missing.
The required names come from secrets.required in the config file, or --require.

GH_TOKEN or GITHUB_TOKEN is used to call the GitHub API directly; otherwise the
authenticated gh CLI is used. Exits 1 when a secret is missing.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		cfg := loadConfig()
		config := getSecretsCheckConfigFromFlags(cmd)

		repo, err := resolveRepo(ctx, cfg)
		if err != nil {
			presenter.Error(err, "Failed to resolve repository")
			os.Exit(1)
		}

		lister, err := secretLister(ctx)
		if err != nil {
			presenter.Error(err, "Cannot list secrets")
			os.Exit(1)
		}

		required := config.Required
		if len(required) == 0 {
			required = cfg.Secrets.Required
		}

		report, err := secrets.Check(ctx, lister, repo, required)
		if err != nil {
			presenter.Error(err, "Failed to check secrets")
			os.Exit(1)
		}

		if config.JSON {
			data, _ := json.MarshalIndent(report, "", "  ")
			fmt.Println(string(data))
		} else {
			printSecretsReport(report)
		}

		if !report.OK() {
			os.Exit(1)
		}
	},
}

func init() {
	defaults := NewSecretsCheckConfig()
	secretsCheckCmd.Flags().Bool("json", defaults.JSON, "Print the report as JSON")
	secretsCheckCmd.Flags().StringSlice("require", defaults.Required, "Secret names to require instead of secrets.required")

	secretsCmd.AddCommand(secretsCheckCmd)
	rootCmd.AddCommand(secretsCmd)
}

func getSecretsCheckConfigFromFlags(cmd *cobra.Command) *SecretsCheckConfig {
	config := NewSecretsCheckConfig()
	if asJSON, err := cmd.Flags().GetBool("json"); err == nil {
		config.JSON = asJSON
	}
	if required, err := cmd.Flags().GetStringSlice("require"); err == nil {
		config.Required = required
	}
	return config
}

func printSecretsReport(report *secrets.Report) {
	presenter.Section("Secrets of " + report.Repo)
	for _, name := range report.Present {
		presenter.Check(true, name)
	}
	for _, name := range report.Missing {
		presenter.Check(false, name)
	}
	if report.OK() {
		presenter.Success("All required secrets are set")
		return
	}
	presenter.Warning(fmt.Sprintf("%d secret(s) missing, set them with: gh secret set <NAME> --repo %s", len(report.Missing), report.Repo))
}
