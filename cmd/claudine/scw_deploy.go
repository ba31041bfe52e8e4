package main

import (
	"fmt"
	"os"
	"time"

	"github.com/claudine-dev/claudine/pkg/config"
	"github.com/claudine-dev/claudine/pkg/presenter"
	"github.com/claudine-dev/claudine/pkg/scaleway"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type DeployConfig struct {
	Dir           string
	Image         string
	Version       string
	Port          int
	SkipBuild     bool
	HealthTimeout time.Duration
}

func NewDeployConfig() *DeployConfig {
	return &DeployConfig{
		Dir:           ".",
		Image:         "",
		Version:       "",
		Port:          8000,
		SkipBuild:     false,
		HealthTimeout: 120 * time.Second,
	}
}

type RollbackConfig struct {
	Env           string
	Version       string
	Reason        string
	Image         string
	Dir           string
	Port          int
	Force         bool
	HealthTimeout time.Duration
}

func NewRollbackConfig() *RollbackConfig {
	return &RollbackConfig{
		Env:           "production",
		Version:       scaleway.PreviousVersion,
		Reason:        "",
		Image:         "",
		Dir:           ".",
		Port:          8000,
		Force:         false,
		HealthTimeout: 120 * time.Second,
	}
}

var scwDeployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Build the app image and start it on the server",
	Long: `Build and push the app image when the project has a Dockerfile, then pull it on the
server and start it with docker compose, and wait for the health endpoint.

The image is <registry>/<namespace>/<app>:<version>: the app name comes from
package.json, pyproject.toml or the directory name, the version from the git
short SHA or the current time. Every deploy is recorded in logs/deploy-audit.json.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		cfg := loadConfig()
		scw := getScwConfigFromFlags(cmd)
		config := getDeployConfigFromFlags(cmd)

		host := scwHost(scw, cfg)
		log := auditLog(ctx, cfg, deployAuditPath(), "deploy")
		deployer := scaleway.NewDeployer(runner, sshDialer(scw, cfg), log)

		presenter.Section("Deploying to " + host)
		result, err := deployer.Deploy(ctx, deployOptions(config, cfg, host))
		if result != nil {
			presenter.Info(fmt.Sprintf("App: %s  Version: %s", result.App, result.Version))
			presenter.Info("Image: " + result.Image)
		}
		if err != nil {
			if errors.Is(err, scaleway.ErrDeployUnhealthy) {
				presenter.Warning(err.Error())
				presenter.Info("Check the logs with: claudine scw logs")
			} else {
				presenter.Error(err, "Deployment failed")
			}
			os.Exit(1)
		}
		presenter.Success("Deployed and healthy at " + result.URL)
	},
}

var scwRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Roll the app back to an earlier version",
	Long: `Switch the server back to another image version, by default the one deployed
before the current one. A reason is required; the rollback is recorded in
logs/rollback-audit-<env>.json and, when scaleway.audit_bucket is set, in the
audit bucket.

Examples:
  claudine scw rollback --reason "checkout returns 500"
  claudine scw rollback --version a1b2c3d --env staging --reason "bad migration" --force`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		cfg := loadConfig()
		scw := getScwConfigFromFlags(cmd)
		config := getRollbackConfigFromFlags(cmd)

		if err := scaleway.ValidateEnv(config.Env); err != nil {
			presenter.Error(err, "")
			os.Exit(1)
		}

		host := scwHost(scw, cfg)
		remote, closeRemote := dialOrExit(ctx, sshDialer(scw, cfg), host)
		defer closeRemote()

		log := auditLog(ctx, cfg, rollbackAuditPath(config.Env), "rollback")
		rollbacker := scaleway.NewRollbacker(remote, log)

		result, err := rollbacker.Rollback(ctx, scaleway.RollbackOptions{
			Host:          host,
			Image:         rollbackImage(config, cfg),
			Version:       config.Version,
			Reason:        config.Reason,
			Env:           config.Env,
			Port:          config.Port,
			Force:         config.Force,
			HealthTimeout: config.HealthTimeout,
			Confirm:       confirmRollback,
		})
		if err != nil {
			closeRemote()
			if errors.Is(err, scaleway.ErrAborted) {
				presenter.Warning("Rollback cancelled")
				return
			}
			presenter.Error(err, "Rollback failed")
			os.Exit(1)
		}

		if result.NoOp {
			presenter.Info(fmt.Sprintf("Version %s is already running, nothing to do", result.To))
			return
		}
		presenter.Success(fmt.Sprintf("Rolled back %s from %s to %s", result.Env, result.From, result.To))
	},
}

func init() {
	deployDefaults := NewDeployConfig()
	scwDeployCmd.Flags().String("dir", deployDefaults.Dir, "Project directory")
	scwDeployCmd.Flags().String("image", deployDefaults.Image, "Full image reference instead of the computed one")
	scwDeployCmd.Flags().String("version", deployDefaults.Version, "Version tag instead of the git SHA")
	scwDeployCmd.Flags().IntP("port", "p", deployDefaults.Port, "Application port")
	scwDeployCmd.Flags().Bool("skip-build", deployDefaults.SkipBuild, "Deploy an image that is already pushed")
	scwDeployCmd.Flags().Duration("health-timeout", deployDefaults.HealthTimeout, "How long to wait for the app to become healthy")

	rollbackDefaults := NewRollbackConfig()
	scwRollbackCmd.Flags().StringP("env", "e", rollbackDefaults.Env, "Environment (staging or production)")
	scwRollbackCmd.Flags().String("version", rollbackDefaults.Version, "Version to roll back to, or 'previous'")
	scwRollbackCmd.Flags().StringP("reason", "r", rollbackDefaults.Reason, "Why the rollback is needed (required)")
	scwRollbackCmd.Flags().String("image", rollbackDefaults.Image, "Image repository without tag instead of the computed one")
	scwRollbackCmd.Flags().String("dir", rollbackDefaults.Dir, "Project directory, used to compute the image name")
	scwRollbackCmd.Flags().IntP("port", "p", rollbackDefaults.Port, "Application port")
	scwRollbackCmd.Flags().BoolP("force", "f", rollbackDefaults.Force, "Do not ask for confirmation")
	scwRollbackCmd.Flags().Duration("health-timeout", rollbackDefaults.HealthTimeout, "How long to wait for the app to become healthy")

	scwCmd.AddCommand(scwDeployCmd)
	scwCmd.AddCommand(scwRollbackCmd)
}

func getDeployConfigFromFlags(cmd *cobra.Command) *DeployConfig {
	config := NewDeployConfig()
	if dir, err := cmd.Flags().GetString("dir"); err == nil {
		config.Dir = dir
	}
	if image, err := cmd.Flags().GetString("image"); err == nil {
		config.Image = image
	}
	if version, err := cmd.Flags().GetString("version"); err == nil {
		config.Version = version
	}
	if port, err := cmd.Flags().GetInt("port"); err == nil {
		config.Port = port
	}
	if skip, err := cmd.Flags().GetBool("skip-build"); err == nil {
		config.SkipBuild = skip
	}
	if timeout, err := cmd.Flags().GetDuration("health-timeout"); err == nil {
		config.HealthTimeout = timeout
	}
	return config
}

func getRollbackConfigFromFlags(cmd *cobra.Command) *RollbackConfig {
	config := NewRollbackConfig()
	if env, err := cmd.Flags().GetString("env"); err == nil {
		config.Env = env
	}
	if version, err := cmd.Flags().GetString("version"); err == nil {
		config.Version = version
	}
	if reason, err := cmd.Flags().GetString("reason"); err == nil {
		config.Reason = reason
	}
	if image, err := cmd.Flags().GetString("image"); err == nil {
		config.Image = image
	}
	if dir, err := cmd.Flags().GetString("dir"); err == nil {
		config.Dir = dir
	}
	if port, err := cmd.Flags().GetInt("port"); err == nil {
		config.Port = port
	}
	if force, err := cmd.Flags().GetBool("force"); err == nil {
		config.Force = force
	}
	if timeout, err := cmd.Flags().GetDuration("health-timeout"); err == nil {
		config.HealthTimeout = timeout
	}
	return config
}

func deployOptions(config *DeployConfig, cfg *config.Config, host string) scaleway.DeployOptions {
	return scaleway.DeployOptions{
		Dir:           config.Dir,
		Host:          host,
		Image:         config.Image,
		Version:       config.Version,
		Port:          config.Port,
		SkipBuild:     config.SkipBuild,
		Registry:      cfg.Scaleway.RegistryEndpoint,
		Namespace:     cfg.Scaleway.RegistryNamespace,
		SecretKey:     cfg.Scaleway.SecretKey,
		HealthTimeout: config.HealthTimeout,
		Stdout:        os.Stdout,
		Stderr:        os.Stderr,
	}
}

// rollbackImage is the image repository a rollback pulls tags of
func rollbackImage(config *RollbackConfig, cfg *config.Config) string {
	if config.Image != "" {
		return imageRepository(config.Image)
	}
	app := scaleway.DetectAppName(config.Dir)
	return imageRepository(scaleway.ImageName(cfg.Scaleway.RegistryEndpoint, cfg.Scaleway.RegistryNamespace, app, "latest"))
}

func confirmRollback(plan scaleway.RollbackPlan) bool {
	presenter.Section("Rollback plan")
	presenter.Table("", nil, [][]string{
		{"Server", plan.Host},
		{"Environment", plan.Env},
		{"Current version", plan.From},
		{"Target version", plan.To},
		{"Reason", plan.Reason},
	})
	return presenter.Confirm("Proceed with the rollback?")
}
