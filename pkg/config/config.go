// Package config loads claudine settings from defaults, an optional
// config.yaml ($HOME/.claudine or the working directory) and CLAUDINE_*
// environment variables, in increasing order of precedence.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the typed view of all claudine settings.
type Config struct {
	LogLevel   string           `mapstructure:"log_level"`
	LogFormat  string           `mapstructure:"log_format"`
	Dir        string           `mapstructure:"dir"`
	GitHubRepo string           `mapstructure:"github_repo"`
	Commitlint CommitlintConfig `mapstructure:"commitlint"`
	Secrets    SecretsConfig    `mapstructure:"secrets"`
	Autosync   AutosyncConfig   `mapstructure:"autosync"`
	Scaleway   ScalewayConfig   `mapstructure:"scaleway"`
}

// CommitlintConfig is the allowed commit type/scope table.
type CommitlintConfig struct {
	Types           []string `mapstructure:"types"`
	Scopes          []string `mapstructure:"scopes"`
	MaxHeaderLength int      `mapstructure:"max_header_length"`
}

// SecretsConfig lists the GitHub secrets CI expects.
type SecretsConfig struct {
	Required []string `mapstructure:"required"`
}

// AutosyncConfig configures the auto-commit job.
type AutosyncConfig struct {
	ResolverCommand []string      `mapstructure:"resolver_command"`
	ResolverTimeout time.Duration `mapstructure:"resolver_timeout"`
	PushAttempts    int           `mapstructure:"push_attempts"`
}

// ScalewayConfig holds provider endpoints and credentials.
type ScalewayConfig struct {
	Zone              string `mapstructure:"zone"`
	Region            string `mapstructure:"region"`
	APIURL            string `mapstructure:"api_url"`
	RegistryEndpoint  string `mapstructure:"registry_endpoint"`
	RegistryNamespace string `mapstructure:"registry_namespace"`
	S3Endpoint        string `mapstructure:"s3_endpoint"`
	AuditBucket       string `mapstructure:"audit_bucket"`
	CacheDir          string `mapstructure:"cache_dir"`
	AccessKey         string `mapstructure:"access_key"`
	SecretKey         string `mapstructure:"secret_key"`
	ProjectID         string `mapstructure:"project_id"`
}

// DefaultCommitTypes is the conventional-commit type table.
var DefaultCommitTypes = []string{
	"feat", "fix", "docs", "style", "refactor", "perf", "test", "build", "ci", "chore", "revert",
}

// DefaultRequiredSecrets are the secret names the CI workflows read.
var DefaultRequiredSecrets = []string{
	"DB_PASSWORD",
	"JWT_SECRET",
	"S3_ACCESS_KEY",
	"S3_SECRET_KEY",
	"S3_BUCKET",
	"S3_ENDPOINT",
	"SCW_ACCESS_KEY",
	"SCW_SECRET_KEY",
	"SCW_PROJECT_ID",
	"SCW_SSH_PRIVATE_KEY",
	"SCW_SSH_PUBLIC_KEY",
}

// Init wires environment variables, defaults and the config file into v.
func Init(v *viper.Viper) {
	v.SetEnvPrefix("CLAUDINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Scaleway credentials keep their provider-native names.
	_ = v.BindEnv("scaleway.access_key", "SCW_ACCESS_KEY")
	_ = v.BindEnv("scaleway.secret_key", "SCW_SECRET_KEY")
	_ = v.BindEnv("scaleway.project_id", "SCW_PROJECT_ID")
	_ = v.BindEnv("scaleway.s3_endpoint", "SCW_S3_ENDPOINT")
	_ = v.BindEnv("scaleway.registry_endpoint", "SCW_REGISTRY_ENDPOINT")
	_ = v.BindEnv("scaleway.registry_namespace", "SCW_REGISTRY_NAMESPACE")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME/.claudine")
	v.AddConfigPath(".")

	// A missing config file is fine
	_ = v.ReadInConfig()
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "fmt")
	v.SetDefault("dir", filepath.Join(home, "Documents", "claudine"))
	v.SetDefault("github_repo", "")

	v.SetDefault("commitlint.types", DefaultCommitTypes)
	v.SetDefault("commitlint.scopes", []string{})
	v.SetDefault("commitlint.max_header_length", 100)

	v.SetDefault("secrets.required", DefaultRequiredSecrets)

	v.SetDefault("autosync.resolver_command", []string{"claude", "-p", "--dangerously-skip-permissions", "--model", "haiku"})
	v.SetDefault("autosync.resolver_timeout", "120s")
	v.SetDefault("autosync.push_attempts", 3)

	v.SetDefault("scaleway.zone", "fr-par-1")
	v.SetDefault("scaleway.region", "fr-par")
	v.SetDefault("scaleway.api_url", "https://api.scaleway.com")
	v.SetDefault("scaleway.registry_endpoint", "rg.fr-par.scw.cloud")
	v.SetDefault("scaleway.registry_namespace", "")
	v.SetDefault("scaleway.s3_endpoint", "s3.fr-par.scw.cloud")
	v.SetDefault("scaleway.audit_bucket", "")
	v.SetDefault("scaleway.cache_dir", filepath.Join(home, ".cache", "scaleway-deploy"))
	v.SetDefault("scaleway.access_key", "")
	v.SetDefault("scaleway.secret_key", "")
	v.SetDefault("scaleway.project_id", "")
}

// Load decodes the settings held by v into a Config.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create config decoder")
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, errors.Wrap(err, "failed to decode configuration")
	}

	cfg.Dir = expandHome(cfg.Dir)
	cfg.Scaleway.CacheDir = expandHome(cfg.Scaleway.CacheDir)

	return &cfg, nil
}

// SkillsSource is the .claude folder inside the claudine repo.
func (c *Config) SkillsSource() string {
	return filepath.Join(c.Dir, ".claude")
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
