package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/claudine-dev/claudine/pkg/audit"
	"github.com/claudine-dev/claudine/pkg/config"
	"github.com/claudine-dev/claudine/pkg/logger"
	"github.com/claudine-dev/claudine/pkg/osutil"
	"github.com/claudine-dev/claudine/pkg/presenter"
	"github.com/claudine-dev/claudine/pkg/scaleway"
	"github.com/spf13/cobra"
)

type ScwConfig struct {
	Host       string
	User       string
	Key        string
	SSHTimeout time.Duration
}

func NewScwConfig() *ScwConfig {
	return &ScwConfig{
		Host:       "",
		User:       "root",
		Key:        "",
		SSHTimeout: 30 * time.Second,
	}
}

var scwCmd = &cobra.Command{
	Use:   "scw",
	Short: "Provision, deploy to and audit the Scaleway server",
	Long: `Manage the single compliant Scaleway VPS an app is deployed to: Terraform
checks and runs, one-time setup of GitHub secrets, deploys, rollbacks, health
and compliance checks over SSH, and teardown.

The server address is --host, else the IP cached by setup in
~/.cache/scaleway-deploy/server_ip.`,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

func init() {
	defaults := NewScwConfig()
	scwCmd.PersistentFlags().String("host", defaults.Host, "Server address (defaults to the cached server IP)")
	scwCmd.PersistentFlags().String("ssh-user", defaults.User, "SSH user")
	scwCmd.PersistentFlags().String("ssh-key", defaults.Key, "SSH private key (defaults to the setup key, then ~/.ssh/id_ed25519 and ~/.ssh/id_rsa)")
	scwCmd.PersistentFlags().Duration("ssh-timeout", defaults.SSHTimeout, "SSH connection timeout")

	rootCmd.AddCommand(scwCmd)
}

func getScwConfigFromFlags(cmd *cobra.Command) *ScwConfig {
	config := NewScwConfig()
	if host, err := cmd.Flags().GetString("host"); err == nil {
		config.Host = host
	}
	if user, err := cmd.Flags().GetString("ssh-user"); err == nil {
		config.User = user
	}
	if key, err := cmd.Flags().GetString("ssh-key"); err == nil {
		config.Key = key
	}
	if timeout, err := cmd.Flags().GetDuration("ssh-timeout"); err == nil {
		config.SSHTimeout = timeout
	}
	return config
}

// scwHost resolves the target server or exits
func scwHost(config *ScwConfig, cfg *config.Config) string {
	host, err := scaleway.ResolveHost(config.Host, cfg.Scaleway.CacheDir)
	if err != nil {
		presenter.Error(err, "")
		os.Exit(1)
	}
	return host
}

// sshDialer opens SSH sessions with the configured or discovered key
func sshDialer(config *ScwConfig, cfg *config.Config) scaleway.Dialer {
	return func(ctx context.Context, host string) (osutil.Runner, error) {
		key := config.Key
		if key == "" {
			key, _ = scaleway.FindKey(scaleway.KeyCandidates(cfg.Scaleway.CacheDir))
		}
		return scaleway.DialSSH(ctx, scaleway.SSHConfig{
			Host:    host,
			User:    config.User,
			KeyPath: key,
			Timeout: config.SSHTimeout,
		})
	}
}

// dialOrExit connects to host and returns the runner with its closer
func dialOrExit(ctx context.Context, dial scaleway.Dialer, host string) (osutil.Runner, func()) {
	remote, err := dial(ctx, host)
	if err != nil {
		presenter.Error(err, "Cannot reach the server over SSH")
		os.Exit(1)
	}
	return remote, func() {
		if c, ok := remote.(io.Closer); ok {
			c.Close()
		}
	}
}

// auditLog opens the local audit file and mirrors it to the audit bucket
// when one is configured
func auditLog(ctx context.Context, cfg *config.Config, path, prefix string) *audit.Log {
	s := cfg.Scaleway
	if s.AuditBucket == "" {
		return audit.NewLog(path)
	}

	uploader, err := audit.NewS3Uploader(s.S3Endpoint, s.Region, s.AccessKey, s.SecretKey, s.AuditBucket)
	if err != nil {
		logger.G(ctx).WithError(err).Warn("audit entries will only be written locally")
		return audit.NewLog(path)
	}
	return audit.NewLog(path, audit.WithUploader(uploader, prefix))
}

// apiFactory builds Scaleway API clients for the configured zone and endpoint
func apiFactory(cfg *config.Config) scaleway.APIFactory {
	return func(creds scaleway.Credentials) (*scaleway.APIClient, error) {
		return scaleway.NewAPIClient(creds,
			scaleway.WithAPIURL(cfg.Scaleway.APIURL),
			scaleway.WithZone(cfg.Scaleway.Zone),
		)
	}
}

// rollbackAuditPath is the per-environment rollback audit file
func rollbackAuditPath(env string) string {
	return filepath.Join("logs", "rollback-audit-"+env+".json")
}

// deployAuditPath is the deploy audit file
func deployAuditPath() string {
	return filepath.Join("logs", "deploy-audit.json")
}

// imageRepository is the image without its tag
func imageRepository(image string) string {
	slash := strings.LastIndex(image, "/")
	if colon := strings.LastIndex(image, ":"); colon > slash {
		return image[:colon]
	}
	return image
}
