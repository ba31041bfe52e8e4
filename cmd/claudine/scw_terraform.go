package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/claudine-dev/claudine/pkg/presenter"
	"github.com/claudine-dev/claudine/pkg/scaleway"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type TFCheckConfig struct {
	Dir  string
	Env  string
	JSON bool
}

func NewTFCheckConfig() *TFCheckConfig {
	return &TFCheckConfig{
		Dir:  "terraform",
		Env:  "staging",
		JSON: false,
	}
}

type ProvisionConfig struct {
	Dir            string
	Env            string
	AutoApprove    bool
	PlanOnly       bool
	SkipValidation bool
}

func NewProvisionConfig() *ProvisionConfig {
	return &ProvisionConfig{
		Dir:            "terraform",
		Env:            "staging",
		AutoApprove:    false,
		PlanOnly:       false,
		SkipValidation: false,
	}
}

var scwTFCheckCmd = &cobra.Command{
	Use:   "tfcheck",
	Short: "Check the Terraform configuration against the compliance controls",
	Long: `Statically check the .tf files and the environment's tfvars for the controls the
server must satisfy: an encrypted volume, a deny-by-default security group, an SSH
key resource, an audit log bucket, and at least a year of log retention.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		config := getTFCheckConfigFromFlags(cmd)
		if err := scaleway.ValidateEnv(config.Env); err != nil {
			presenter.Error(err, "")
			os.Exit(1)
		}

		checks, err := scaleway.CheckTerraform(config.Dir, config.Env)
		if err != nil {
			presenter.Error(err, "Failed to read the Terraform configuration")
			os.Exit(1)
		}

		if config.JSON {
			data, _ := json.MarshalIndent(checks, "", "  ")
			fmt.Println(string(data))
		} else {
			printTFChecks(checks)
		}

		if !scaleway.AllPassed(checks) {
			os.Exit(1)
		}
	},
}

var scwProvisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Provision the infrastructure with Terraform",
	Long: `Check the Terraform configuration, then run terraform init, select or create the
environment's workspace, plan, and apply after confirmation.

Examples:
  claudine scw provision --env staging --plan-only
  claudine scw provision --env production --auto-approve`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		config := getProvisionConfigFromFlags(cmd)

		presenter.Section(fmt.Sprintf("Provisioning %s", config.Env))
		result, err := scaleway.NewProvisioner(runner).Provision(ctx, scaleway.ProvisionOptions{
			Dir:            config.Dir,
			Env:            config.Env,
			AutoApprove:    config.AutoApprove,
			PlanOnly:       config.PlanOnly,
			SkipValidation: config.SkipValidation,
			Confirm:        presenter.Confirm,
			Stdout:         os.Stdout,
			Stderr:         os.Stderr,
		})
		if result != nil && len(result.Checks) > 0 {
			printTFChecks(result.Checks)
		}
		if err != nil {
			if errors.Is(err, scaleway.ErrAborted) {
				presenter.Warning("Apply cancelled")
				return
			}
			presenter.Error(err, "Provisioning failed")
			os.Exit(1)
		}

		if !result.Applied {
			presenter.Success("Plan written to tfplan, run again without --plan-only to apply")
			return
		}

		rows := make([][]string, 0, len(result.Outputs))
		for _, o := range result.Outputs {
			rows = append(rows, []string{o.Name, o.Value})
		}
		presenter.Table("Outputs", []string{"NAME", "VALUE"}, rows)
		presenter.Success("Infrastructure provisioned")
	},
}

func init() {
	checkDefaults := NewTFCheckConfig()
	scwTFCheckCmd.Flags().String("dir", checkDefaults.Dir, "Terraform directory")
	scwTFCheckCmd.Flags().StringP("env", "e", checkDefaults.Env, "Environment (staging or production)")
	scwTFCheckCmd.Flags().Bool("json", checkDefaults.JSON, "Print the checks as JSON")

	provisionDefaults := NewProvisionConfig()
	scwProvisionCmd.Flags().String("dir", provisionDefaults.Dir, "Terraform directory")
	scwProvisionCmd.Flags().StringP("env", "e", provisionDefaults.Env, "Environment (staging or production)")
	scwProvisionCmd.Flags().Bool("auto-approve", provisionDefaults.AutoApprove, "Apply without asking for confirmation")
	scwProvisionCmd.Flags().Bool("plan-only", provisionDefaults.PlanOnly, "Stop after terraform plan")
	scwProvisionCmd.Flags().Bool("skip-validation", provisionDefaults.SkipValidation, "Skip the compliance checks of the configuration")

	scwCmd.AddCommand(scwTFCheckCmd)
	scwCmd.AddCommand(scwProvisionCmd)
}

func getTFCheckConfigFromFlags(cmd *cobra.Command) *TFCheckConfig {
	config := NewTFCheckConfig()
	if dir, err := cmd.Flags().GetString("dir"); err == nil {
		config.Dir = dir
	}
	if env, err := cmd.Flags().GetString("env"); err == nil {
		config.Env = env
	}
	if asJSON, err := cmd.Flags().GetBool("json"); err == nil {
		config.JSON = asJSON
	}
	return config
}

func getProvisionConfigFromFlags(cmd *cobra.Command) *ProvisionConfig {
	config := NewProvisionConfig()
	if dir, err := cmd.Flags().GetString("dir"); err == nil {
		config.Dir = dir
	}
	if env, err := cmd.Flags().GetString("env"); err == nil {
		config.Env = env
	}
	if autoApprove, err := cmd.Flags().GetBool("auto-approve"); err == nil {
		config.AutoApprove = autoApprove
	}
	if planOnly, err := cmd.Flags().GetBool("plan-only"); err == nil {
		config.PlanOnly = planOnly
	}
	if skip, err := cmd.Flags().GetBool("skip-validation"); err == nil {
		config.SkipValidation = skip
	}
	return config
}

func printTFChecks(checks []scaleway.TFCheck) {
	presenter.Section("Compliance validation")
	for _, c := range checks {
		presenter.Check(c.Passed, fmt.Sprintf("[%s] %s", c.Control, c.Requirement))
	}
}
