package scaleway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alessio/shellescape"
	"github.com/claudine-dev/claudine/pkg/audit"
	"github.com/claudine-dev/claudine/pkg/logger"
	"github.com/claudine-dev/claudine/pkg/osutil"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Remote layout of the deployed application
const (
	AppDir      = "/opt/app"
	HistoryFile = AppDir + "/deploy-history.json"
)

// Deploy statuses recorded in the audit log
const (
	DeploySuccess   = "success"
	DeployUnhealthy = "deployed_unhealthy"
	DeployFailed    = "failed"
)

// ErrDeployUnhealthy is returned when containers started but never became healthy
var ErrDeployUnhealthy = errors.New("app deployed but health check timed out")

var dockerfileCandidates = []string{"Dockerfile", "dockerfile", "Dockerfile.prod", "docker/Dockerfile"}

// FindDockerfile returns the first Dockerfile candidate present in dir
func FindDockerfile(dir string) (string, bool) {
	for _, name := range dockerfileCandidates {
		if info, err := os.Stat(filepath.Join(dir, name)); err == nil && !info.IsDir() {
			return name, true
		}
	}
	return "", false
}

// DetectAppName reads the name from package.json or pyproject.toml, falling
// back to the directory name
func DetectAppName(dir string) string {
	if data, err := os.ReadFile(filepath.Join(dir, "package.json")); err == nil {
		var pkg struct {
			Name string `json:"name"`
		}
		if json.Unmarshal(data, &pkg) == nil && pkg.Name != "" {
			return pkg.Name
		}
	}

	if data, err := os.ReadFile(filepath.Join(dir, "pyproject.toml")); err == nil {
		var pyproject struct {
			Project struct {
				Name string `toml:"name"`
			} `toml:"project"`
			Tool struct {
				Poetry struct {
					Name string `toml:"name"`
				} `toml:"poetry"`
			} `toml:"tool"`
		}
		if toml.Unmarshal(data, &pyproject) == nil {
			if pyproject.Project.Name != "" {
				return pyproject.Project.Name
			}
			if pyproject.Tool.Poetry.Name != "" {
				return pyproject.Tool.Poetry.Name
			}
		}
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return filepath.Base(dir)
	}
	return filepath.Base(abs)
}

// DetectVersion returns the short git SHA of dir, or a timestamp outside git
func DetectVersion(ctx context.Context, r osutil.Runner, dir string, now time.Time) string {
	res, err := r.Run(ctx, osutil.Cmd("git", "rev-parse", "--short", "HEAD").InDir(dir))
	if err == nil {
		if v := strings.TrimSpace(res.Stdout); v != "" {
			return v
		}
	}
	return now.Format("20060102-150405")
}

// ImageName composes <registry>/<namespace>/<app>:<version>. The namespace
// defaults to the app name.
func ImageName(registry, namespace, app, version string) string {
	if namespace == "" {
		namespace = app
	}
	return fmt.Sprintf("%s/%s/%s:%s", strings.TrimSuffix(registry, "/"), namespace, app, version)
}

// EnvFile renders the remote .env consumed by docker compose
func EnvFile(app, version string, port int) string {
	return fmt.Sprintf("APP_NAME=%s\nAPP_VERSION=%s\nAPP_ENV=production\nAPP_PORT=%d\n", app, version, port)
}

type composeFile struct {
	Services map[string]composeService `yaml:"services"`
}

type composeService struct {
	Image         string         `yaml:"image"`
	ContainerName string         `yaml:"container_name"`
	Restart       string         `yaml:"restart"`
	Ports         []string       `yaml:"ports"`
	Environment   []string       `yaml:"environment"`
	SecurityOpt   []string       `yaml:"security_opt"`
	Deploy        composeDeploy  `yaml:"deploy"`
	Logging       composeLogging `yaml:"logging"`
}

type composeDeploy struct {
	Resources struct {
		Limits struct {
			CPUs   string `yaml:"cpus"`
			Memory string `yaml:"memory"`
		} `yaml:"limits"`
	} `yaml:"resources"`
}

type composeLogging struct {
	Driver  string            `yaml:"driver"`
	Options map[string]string `yaml:"options"`
}

// ComposeFile renders the default hardened compose file for a single app
// container. The image is read from APP_VERSION so rollbacks only touch .env.
func ComposeFile(image, app string, port int) (string, error) {
	repo := image
	if i := strings.LastIndex(image, ":"); i > strings.LastIndex(image, "/") {
		repo = image[:i]
	}

	svc := composeService{
		Image:         repo + ":${APP_VERSION}",
		ContainerName: app,
		Restart:       "unless-stopped",
		Ports:         []string{fmt.Sprintf("%d:%d", port, port)},
		Environment:   []string{"APP_ENV=production"},
		SecurityOpt:   []string{"no-new-privileges:true"},
		Logging: composeLogging{
			Driver:  "json-file",
			Options: map[string]string{"max-size": "100m", "max-file": "5"},
		},
	}
	svc.Deploy.Resources.Limits.CPUs = "2"
	svc.Deploy.Resources.Limits.Memory = "2G"

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(composeFile{Services: map[string]composeService{"app": svc}}); err != nil {
		return "", errors.Wrap(err, "failed to render compose file")
	}
	if err := enc.Close(); err != nil {
		return "", errors.Wrap(err, "failed to render compose file")
	}
	return buf.String(), nil
}

// HistoryEntry is one record of /opt/app/deploy-history.json
type HistoryEntry struct {
	Version   string `json:"version"`
	Image     string `json:"image"`
	Timestamp string `json:"timestamp"`
}

// ReadHistory loads the remote deploy history; a missing or unreadable file is empty
func ReadHistory(ctx context.Context, r osutil.Runner) []HistoryEntry {
	res, err := r.Run(ctx, osutil.Cmd("cat", HistoryFile))
	if err != nil {
		return nil
	}
	var history []HistoryEntry
	if err := json.Unmarshal([]byte(res.Stdout), &history); err != nil {
		return nil
	}
	return history
}

func appendHistory(ctx context.Context, r osutil.Runner, entry HistoryEntry) error {
	history := append(ReadHistory(ctx, r), entry)
	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode deploy history")
	}
	return writeRemote(ctx, r, HistoryFile, string(data)+"\n")
}

func writeRemote(ctx context.Context, r osutil.Runner, path, content string) error {
	_, err := r.Run(ctx, osutil.Cmd("cat > "+shellescape.Quote(path)).WithStdin(strings.NewReader(content)))
	return errors.Wrapf(err, "failed to write %s", path)
}

// DeployOptions describes one deployment
type DeployOptions struct {
	Dir       string
	Host      string
	Image     string
	Version   string
	Port      int
	SkipBuild bool

	Registry  string
	Namespace string
	// SecretKey logs docker in to the registry when set
	SecretKey string

	HealthTimeout  time.Duration
	HealthInterval time.Duration

	Stdout io.Writer
	Stderr io.Writer
}

// DeployResult summarizes a deployment
type DeployResult struct {
	App     string
	Version string
	Image   string
	Built   bool
	Status  string
	URL     string
}

// Dialer opens the remote runner used for a deployment
type Dialer func(ctx context.Context, host string) (osutil.Runner, error)

// Deployer builds images locally and rolls them out on the server
type Deployer struct {
	local osutil.Runner
	dial  Dialer
	log   *audit.Log
	now   func() time.Time
}

// NewDeployer creates a Deployer. log may be nil to skip auditing.
func NewDeployer(local osutil.Runner, dial Dialer, log *audit.Log) *Deployer {
	return &Deployer{local: local, dial: dial, log: log, now: time.Now}
}

// Deploy builds, pushes and starts the application. The audit log is
// written whatever the outcome.
func (d *Deployer) Deploy(ctx context.Context, opts DeployOptions) (result *DeployResult, err error) {
	if opts.Host == "" {
		return nil, errors.New("server not found, run setup first or pass --host")
	}
	if opts.Port == 0 {
		opts.Port = 8000
	}
	if opts.HealthTimeout == 0 {
		opts.HealthTimeout = 120 * time.Second
	}
	if opts.HealthInterval == 0 {
		opts.HealthInterval = 5 * time.Second
	}

	result = &DeployResult{App: DetectAppName(opts.Dir), Status: DeployFailed}
	result.Version = opts.Version
	if result.Version == "" {
		result.Version = DetectVersion(ctx, d.local, opts.Dir, d.now())
	}
	result.Image = opts.Image
	if result.Image == "" {
		result.Image = ImageName(opts.Registry, opts.Namespace, result.App, result.Version)
	}

	defer func() {
		d.record(ctx, opts.Host, result)
	}()

	log := logger.G(ctx).WithField("app", result.App).WithField("version", result.Version)

	if dockerfile, ok := FindDockerfile(opts.Dir); ok && !opts.SkipBuild {
		log.WithField("image", result.Image).Info("building image")
		if err := d.build(ctx, opts, dockerfile, result.Image); err != nil {
			return result, err
		}
		result.Built = true
	}

	remote, err := d.dial(ctx, opts.Host)
	if err != nil {
		return result, err
	}
	if c, ok := remote.(io.Closer); ok {
		defer c.Close()
	}

	if err := d.rollout(ctx, remote, opts, result); err != nil {
		return result, err
	}

	result.URL = fmt.Sprintf("http://%s:%d", opts.Host, opts.Port)
	if !WaitRemoteHealthy(ctx, remote, opts.Port, opts.HealthTimeout, opts.HealthInterval) {
		result.Status = DeployUnhealthy
		return result, ErrDeployUnhealthy
	}
	result.Status = DeploySuccess
	return result, nil
}

func (d *Deployer) build(ctx context.Context, opts DeployOptions, dockerfile, image string) error {
	if opts.SecretKey != "" {
		login := osutil.Cmd("docker", "login", opts.Registry, "-u", "nologin", "--password-stdin").
			WithStdin(strings.NewReader(opts.SecretKey))
		if _, err := d.local.Run(ctx, login); err != nil {
			logger.G(ctx).WithError(err).Warn("docker login failed")
		}
	}

	build := osutil.Cmd("docker", "build", "-t", image, "-f", dockerfile, ".").InDir(opts.Dir)
	build.Stdout, build.Stderr = opts.Stdout, opts.Stderr
	if _, err := d.local.Run(ctx, build); err != nil {
		return errors.Wrap(err, "build failed")
	}

	push := osutil.Cmd("docker", "push", image)
	push.Stdout, push.Stderr = opts.Stdout, opts.Stderr
	if _, err := d.local.Run(ctx, push); err != nil {
		return errors.Wrap(err, "push failed")
	}
	return nil
}

func (d *Deployer) rollout(ctx context.Context, remote osutil.Runner, opts DeployOptions, result *DeployResult) error {
	if _, err := remote.Run(ctx, osutil.Cmd("mkdir", "-p", AppDir)); err != nil {
		return errors.Wrap(err, "failed to create app directory")
	}
	if err := writeRemote(ctx, remote, AppDir+"/.env", EnvFile(result.App, result.Version, opts.Port)); err != nil {
		return err
	}

	if _, err := remote.Run(ctx, osutil.Cmd("test", "-f", AppDir+"/docker-compose.yml")); err != nil {
		compose, err := ComposeFile(result.Image, result.App, opts.Port)
		if err != nil {
			return err
		}
		if err := writeRemote(ctx, remote, AppDir+"/docker-compose.yml", compose); err != nil {
			return err
		}
	}

	if _, err := remote.Run(ctx, osutil.Cmd("docker", "pull", result.Image)); err != nil {
		return errors.Wrap(err, "deployment failed")
	}
	if _, err := remote.Run(ctx, osutil.Cmd("docker", "compose", "up", "-d", "--remove-orphans").InDir(AppDir)); err != nil {
		return errors.Wrap(err, "deployment failed")
	}

	entry := HistoryEntry{Version: result.Version, Image: result.Image, Timestamp: d.now().UTC().Format(time.RFC3339)}
	if err := appendHistory(ctx, remote, entry); err != nil {
		logger.G(ctx).WithError(err).Warn("failed to record deploy history")
	}
	return nil
}

func (d *Deployer) record(ctx context.Context, host string, result *DeployResult) {
	if d.log == nil {
		return
	}
	entry := audit.NewEntry("deploy", host, result.Status)
	entry.Image = result.Image
	entry.Version = result.Version
	if err := d.log.Append(ctx, entry); err != nil {
		logger.G(ctx).WithError(err).Warn("failed to write deploy audit log")
	}
}

// HealthProbeCommand checks the app from the server itself
func HealthProbeCommand(port int) string {
	return fmt.Sprintf("curl -sf http://localhost:%d/health || curl -sf http://localhost:%d/ || exit 1", port, port)
}

// WaitRemoteHealthy polls the app over the remote runner until it answers or
// timeout elapses
func WaitRemoteHealthy(ctx context.Context, r osutil.Runner, port int, timeout, interval time.Duration) bool {
	return pollRemote(ctx, r, HealthProbeCommand(port), timeout, interval)
}

func pollRemote(ctx context.Context, r osutil.Runner, script string, timeout, interval time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if _, err := r.Run(ctx, osutil.Cmd(script)); err == nil {
			return true
		}
		if !time.Now().Add(interval).Before(deadline) {
			return false
		}
		if sleepCtx(ctx, interval) != nil {
			return false
		}
	}
}
