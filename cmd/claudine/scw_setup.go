package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/claudine-dev/claudine/pkg/config"
	"github.com/claudine-dev/claudine/pkg/osutil"
	"github.com/claudine-dev/claudine/pkg/presenter"
	"github.com/claudine-dev/claudine/pkg/scaleway"
	"github.com/claudine-dev/claudine/pkg/secrets"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type SetupConfig struct {
	Check     bool
	CloudInit string
}

func NewSetupConfig() *SetupConfig {
	return &SetupConfig{
		Check:     false,
		CloudInit: "",
	}
}

type DestroyConfig struct {
	Force           bool
	KeepCredentials bool
	PowerOffWait    time.Duration
}

func NewDestroyConfig() *DestroyConfig {
	return &DestroyConfig{
		Force:           false,
		KeepCredentials: false,
		PowerOffWait:    10 * time.Second,
	}
}

var scwSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Store the deployment secrets and create the server",
	Long: `One-time setup of a repository for deployments: store the Scaleway credentials
as GitHub secrets (prompting for the missing ones), generate the deploy SSH key
pair, and create the server through the Scaleway API unless SCW_SERVER_IP is
already set. The server IP is cached for the other scw commands.

Credentials are read from SCW_ACCESS_KEY, SCW_SECRET_KEY and SCW_PROJECT_ID
when set. Use --check to only report which secrets exist.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		cfg := loadConfig()
		config := getSetupConfigFromFlags(cmd)

		repo, err := resolveRepo(ctx, cfg)
		if err != nil {
			presenter.Error(err, "Failed to resolve repository")
			os.Exit(1)
		}

		if config.Check {
			lister, err := secretLister(ctx)
			if err != nil {
				presenter.Error(err, "Cannot list secrets")
				os.Exit(1)
			}
			report, err := secrets.Check(ctx, lister, repo, scaleway.SetupSecrets)
			if err != nil {
				presenter.Error(err, "Failed to check secrets")
				os.Exit(1)
			}
			printSecretsReport(report)
			if !report.OK() {
				os.Exit(1)
			}
			return
		}

		if err := osutil.ValidateGHCLI(ctx, runner); err != nil {
			presenter.Error(err, "")
			os.Exit(1)
		}

		cloudInit, err := readOptionalFile(config.CloudInit)
		if err != nil {
			presenter.Error(err, "Failed to read cloud-init file")
			os.Exit(1)
		}

		setup := scaleway.NewSetup(secrets.NewGHStore(runner), apiFactory(cfg))
		presenter.Section("Setting up " + repo)
		result, err := setup.Run(ctx, scaleway.SetupOptions{
			Repo:      repo,
			Creds:     configCredentials(cfg),
			Prompt:    promptCredential,
			CacheDir:  cfg.Scaleway.CacheDir,
			CloudInit: cloudInit,
		})
		if result != nil {
			for _, name := range result.Stored {
				presenter.Check(true, "Stored "+name)
			}
			if result.KeyGenerated {
				presenter.Info("Deploy key saved in " + cfg.Scaleway.CacheDir)
			}
		}
		if err != nil {
			presenter.Error(err, "Setup failed")
			os.Exit(1)
		}

		if result.ServerIP != "" {
			presenter.Success("Server created at " + result.ServerIP)
			presenter.Info("It takes a few minutes for cloud-init to harden the server; check with: claudine scw status")
			return
		}
		presenter.Success("Setup complete")
	},
}

var scwDestroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Delete every server, IP and volume of the project",
	Long: `Power off and delete every server of the Scaleway project, delete the IPs and
volumes left behind, remove SCW_SERVER_IP (and, without --keep-credentials, the
credential and key secrets) from the repository, and clear the local cache.

This cannot be undone. You are asked twice unless --force is given.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		cfg := loadConfig()
		config := getDestroyConfigFromFlags(cmd)

		creds := configCredentials(cfg)
		if err := creds.Fill(promptCredential); err != nil {
			presenter.Error(err, "Missing Scaleway credentials")
			os.Exit(1)
		}

		if !config.Force && !confirmDestroy(creds.ProjectID) {
			presenter.Warning("Destroy cancelled")
			return
		}

		var store secrets.Store
		repo, err := resolveRepo(ctx, cfg)
		if err == nil && osutil.ValidateGHCLI(ctx, runner) == nil {
			store = secrets.NewGHStore(runner)
		} else {
			presenter.Warning("GitHub secrets will be left untouched")
		}

		api, err := apiFactory(cfg)(creds)
		if err != nil {
			presenter.Error(err, "Invalid Scaleway configuration")
			os.Exit(1)
		}
		destroyer := scaleway.NewDestroyer(api, store)
		result, err := destroyer.Destroy(ctx, scaleway.DestroyOptions{
			Repo:            repo,
			ProjectID:       creds.ProjectID,
			CacheDir:        cfg.Scaleway.CacheDir,
			KeepCredentials: config.KeepCredentials,
			PowerOffWait:    config.PowerOffWait,
		})
		if result != nil {
			printDestroyResult(result)
		}
		if err != nil {
			presenter.Error(err, "Destroy did not complete")
			os.Exit(1)
		}
		presenter.Success("All resources destroyed")
	},
}

func init() {
	setupDefaults := NewSetupConfig()
	scwSetupCmd.Flags().Bool("check", setupDefaults.Check, "Only report which secrets exist")
	scwSetupCmd.Flags().String("cloud-init", setupDefaults.CloudInit, "cloud-init user data applied to the new server")

	destroyDefaults := NewDestroyConfig()
	scwDestroyCmd.Flags().BoolP("force", "f", destroyDefaults.Force, "Do not ask for confirmation")
	scwDestroyCmd.Flags().Bool("keep-credentials", destroyDefaults.KeepCredentials, "Keep the credential and key secrets in GitHub")
	scwDestroyCmd.Flags().Duration("poweroff-wait", destroyDefaults.PowerOffWait, "Delay between powering a server off and deleting it")

	scwCmd.AddCommand(scwSetupCmd)
	scwCmd.AddCommand(scwDestroyCmd)
}

func getSetupConfigFromFlags(cmd *cobra.Command) *SetupConfig {
	config := NewSetupConfig()
	if check, err := cmd.Flags().GetBool("check"); err == nil {
		config.Check = check
	}
	if cloudInit, err := cmd.Flags().GetString("cloud-init"); err == nil {
		config.CloudInit = cloudInit
	}
	return config
}

func getDestroyConfigFromFlags(cmd *cobra.Command) *DestroyConfig {
	config := NewDestroyConfig()
	if force, err := cmd.Flags().GetBool("force"); err == nil {
		config.Force = force
	}
	if keep, err := cmd.Flags().GetBool("keep-credentials"); err == nil {
		config.KeepCredentials = keep
	}
	if wait, err := cmd.Flags().GetDuration("poweroff-wait"); err == nil {
		config.PowerOffWait = wait
	}
	return config
}

func configCredentials(cfg *config.Config) scaleway.Credentials {
	return scaleway.Credentials{
		AccessKey: cfg.Scaleway.AccessKey,
		SecretKey: cfg.Scaleway.SecretKey,
		ProjectID: cfg.Scaleway.ProjectID,
	}
}

// promptCredential reads a value from the terminal, without echo for secrets
func promptCredential(label string, secret bool) (string, error) {
	fd := int(os.Stdin.Fd())
	if !secret || !term.IsTerminal(fd) {
		return presenter.Prompt("Scaleway " + label), nil
	}

	fmt.Fprintf(os.Stdout, "Scaleway %s: ", label)
	data, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stdout)
	if err != nil {
		return "", errors.Wrap(err, "failed to read "+label)
	}
	return strings.TrimSpace(string(data)), nil
}

func confirmDestroy(projectID string) bool {
	presenter.Warning(fmt.Sprintf("This deletes every server, IP and volume of project %s", projectID))
	if !presenter.Confirm("Are you sure?") {
		return false
	}
	answer := presenter.Prompt(fmt.Sprintf("Type %q to confirm", scaleway.DestroyConfirmation))
	return answer == scaleway.DestroyConfirmation
}

func printDestroyResult(result *scaleway.DestroyResult) {
	if result.Empty() && len(result.Secrets) == 0 {
		presenter.Info("Nothing to delete")
		return
	}
	for _, id := range result.Servers {
		presenter.Check(true, "Deleted server "+id)
	}
	for _, id := range result.IPs {
		presenter.Check(true, "Deleted IP "+id)
	}
	for _, id := range result.Volumes {
		presenter.Check(true, "Deleted volume "+id)
	}
	for _, name := range result.Secrets {
		presenter.Check(true, "Deleted secret "+name)
	}
}

func readOptionalFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
