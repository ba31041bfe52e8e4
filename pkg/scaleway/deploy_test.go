package scaleway

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/claudine-dev/claudine/pkg/audit"
	"github.com/claudine-dev/claudine/pkg/osutil"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDetectAppName(t *testing.T) {
	t.Run("package.json", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "package.json", `{"name": "web-shop", "version": "1.0.0"}`)
		writeFile(t, dir, "pyproject.toml", "name = \"ignored\"\n")
		assert.Equal(t, "web-shop", DetectAppName(dir))
	})

	t.Run("pyproject.toml", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "pyproject.toml", "[project]\nname = 'api-server'\nversion = \"0.1\"\n")
		assert.Equal(t, "api-server", DetectAppName(dir))
	})

	t.Run("poetry project", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "pyproject.toml", "[tool.poetry]\nname = \"worker\"\n\n[tool.poetry.dependencies]\npython = \"^3.12\"\n")
		assert.Equal(t, "worker", DetectAppName(dir))
	})

	t.Run("directory name", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "billing")
		writeFile(t, dir, "package.json", `{"private": true}`)
		assert.Equal(t, "billing", DetectAppName(dir))
	})
}

func TestDetectVersion(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	r := osutil.NewFakeRunner().On("git rev-parse --short HEAD", osutil.Result{Stdout: "abc1234\n"})
	assert.Equal(t, "abc1234", DetectVersion(context.Background(), r, ".", now))

	r = osutil.NewFakeRunner().On("git rev-parse", osutil.Result{ExitCode: 128})
	assert.Equal(t, "20260304-050607", DetectVersion(context.Background(), r, ".", now))
}

func TestImageName(t *testing.T) {
	assert.Equal(t, "rg.fr-par.scw.cloud/shop/shop:abc", ImageName("rg.fr-par.scw.cloud", "", "shop", "abc"))
	assert.Equal(t, "rg.fr-par.scw.cloud/team/shop:abc", ImageName("rg.fr-par.scw.cloud/", "team", "shop", "abc"))
}

func TestFindDockerfile(t *testing.T) {
	dir := t.TempDir()
	_, ok := FindDockerfile(dir)
	assert.False(t, ok)

	writeFile(t, dir, "docker/Dockerfile", "FROM scratch\n")
	name, ok := FindDockerfile(dir)
	assert.True(t, ok)
	assert.Equal(t, "docker/Dockerfile", name)

	writeFile(t, dir, "Dockerfile.prod", "FROM scratch\n")
	name, _ = FindDockerfile(dir)
	assert.Equal(t, "Dockerfile.prod", name)
}

func TestComposeFile(t *testing.T) {
	out, err := ComposeFile("rg.fr-par.scw.cloud/shop/shop:abc", "shop", 8080)
	require.NoError(t, err)

	var doc map[string]map[string]map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	app := doc["services"]["app"]
	assert.Equal(t, "rg.fr-par.scw.cloud/shop/shop:${APP_VERSION}", app["image"])
	assert.Equal(t, "shop", app["container_name"])
	assert.Equal(t, []any{"8080:8080"}, app["ports"])
	assert.Equal(t, []any{"no-new-privileges:true"}, app["security_opt"])
	assert.Contains(t, out, "memory: 2G")
	assert.Contains(t, out, "max-size: 100m")
}

func TestComposeFile_RegistryWithPort(t *testing.T) {
	out, err := ComposeFile("localhost:5000/shop", "shop", 80)
	require.NoError(t, err)
	assert.Contains(t, out, "image: localhost:5000/shop:${APP_VERSION}")
}

func TestEnvFile(t *testing.T) {
	assert.Equal(t, "APP_NAME=shop\nAPP_VERSION=v2\nAPP_ENV=production\nAPP_PORT=8000\n", EnvFile("shop", "v2", 8000))
}

func dialer(r osutil.Runner) Dialer {
	return func(context.Context, string) (osutil.Runner, error) { return r, nil }
}

func stdinOf(t *testing.T, calls []osutil.Command, line string) string {
	t.Helper()
	for _, c := range calls {
		if c.String() == line && c.Stdin != nil {
			data, err := io.ReadAll(c.Stdin)
			require.NoError(t, err)
			return string(data)
		}
	}
	t.Fatalf("no call %q with stdin", line)
	return ""
}

func readAudit(t *testing.T, path string) []audit.Entry {
	t.Helper()
	entries, err := audit.NewLog(path).Entries()
	require.NoError(t, err)
	return entries
}

func TestDeploy_BuildAndRollout(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{"name": "shop"}`)
	writeFile(t, dir, "Dockerfile", "FROM scratch\n")
	auditPath := filepath.Join(dir, "logs", "deploy-audit.json")

	local := osutil.NewFakeRunner().On("git rev-parse", osutil.Result{Stdout: "abc1234\n"})
	remote := osutil.NewFakeRunner().
		On("test -f", osutil.Result{ExitCode: 1}).
		On("cat "+HistoryFile, osutil.Result{Stdout: `[{"version":"old","image":"x:old","timestamp":"t"}]`})

	d := NewDeployer(local, dialer(remote), audit.NewLog(auditPath))
	d.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	res, err := d.Deploy(context.Background(), DeployOptions{
		Dir:       dir,
		Host:      "51.15.1.2",
		Registry:  "rg.fr-par.scw.cloud",
		SecretKey: "scw-secret",
	})
	require.NoError(t, err)
	assert.Equal(t, DeploySuccess, res.Status)
	assert.True(t, res.Built)
	assert.Equal(t, "rg.fr-par.scw.cloud/shop/shop:abc1234", res.Image)
	assert.Equal(t, "http://51.15.1.2:8000", res.URL)

	assert.Equal(t, []string{
		"git rev-parse --short HEAD",
		"docker login rg.fr-par.scw.cloud -u nologin --password-stdin",
		"docker build -t rg.fr-par.scw.cloud/shop/shop:abc1234 -f Dockerfile .",
		"docker push rg.fr-par.scw.cloud/shop/shop:abc1234",
	}, local.Lines())
	assert.Equal(t, "scw-secret", stdinOf(t, local.Calls(), "docker login rg.fr-par.scw.cloud -u nologin --password-stdin"))

	assert.Equal(t, "APP_NAME=shop\nAPP_VERSION=abc1234\nAPP_ENV=production\nAPP_PORT=8000\n",
		stdinOf(t, remote.Calls(), "cat > /opt/app/.env"))
	assert.Contains(t, stdinOf(t, remote.Calls(), "cat > /opt/app/docker-compose.yml"), "no-new-privileges:true")
	assert.True(t, remote.Ran("docker pull rg.fr-par.scw.cloud/shop/shop:abc1234"))
	assert.True(t, remote.Ran("docker compose up -d --remove-orphans"))
	assert.True(t, remote.Ran("curl -sf http://localhost:8000/health"))

	var history []HistoryEntry
	require.NoError(t, json.Unmarshal([]byte(stdinOf(t, remote.Calls(), "cat > "+HistoryFile)), &history))
	require.Len(t, history, 2)
	assert.Equal(t, "abc1234", history[1].Version)
	assert.Equal(t, "2026-01-02T03:04:05Z", history[1].Timestamp)

	entries := readAudit(t, auditPath)
	require.Len(t, entries, 1)
	assert.Equal(t, "deploy", entries[0].Action)
	assert.Equal(t, DeploySuccess, entries[0].Status)
	assert.Equal(t, "abc1234", entries[0].Version)
}

func TestDeploy_KeepsExistingCompose(t *testing.T) {
	remote := osutil.NewFakeRunner()
	d := NewDeployer(osutil.NewFakeRunner(), dialer(remote), nil)

	res, err := d.Deploy(context.Background(), DeployOptions{
		Dir:       t.TempDir(),
		Host:      "h",
		Image:     "registry/app:v1",
		Version:   "v1",
		SkipBuild: true,
	})
	require.NoError(t, err)
	assert.False(t, res.Built)
	assert.False(t, remote.Ran("cat > /opt/app/docker-compose.yml"))
}

func TestDeploy_Unhealthy(t *testing.T) {
	dir := t.TempDir()
	auditPath := filepath.Join(dir, "audit.json")
	remote := osutil.NewFakeRunner().On("curl -sf", osutil.Result{ExitCode: 7})

	d := NewDeployer(osutil.NewFakeRunner(), dialer(remote), audit.NewLog(auditPath))
	res, err := d.Deploy(context.Background(), DeployOptions{
		Dir:            dir,
		Host:           "h",
		Version:        "v1",
		HealthTimeout:  20 * time.Millisecond,
		HealthInterval: 5 * time.Millisecond,
	})
	assert.ErrorIs(t, err, ErrDeployUnhealthy)
	assert.Equal(t, DeployUnhealthy, res.Status)
	assert.Equal(t, DeployUnhealthy, readAudit(t, auditPath)[0].Status)
}

func TestDeploy_PullFailureIsAudited(t *testing.T) {
	dir := t.TempDir()
	auditPath := filepath.Join(dir, "audit.json")
	remote := osutil.NewFakeRunner().On("docker pull", osutil.Result{ExitCode: 1, Stderr: "manifest unknown"})

	d := NewDeployer(osutil.NewFakeRunner(), dialer(remote), audit.NewLog(auditPath))
	res, err := d.Deploy(context.Background(), DeployOptions{Dir: dir, Host: "h", Version: "v1"})
	assert.ErrorContains(t, err, "deployment failed")
	assert.Equal(t, DeployFailed, res.Status)
	assert.False(t, remote.Ran("docker compose up"))
	assert.Equal(t, DeployFailed, readAudit(t, auditPath)[0].Status)
}

func TestDeploy_BuildFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Dockerfile", "FROM scratch\n")
	local := osutil.NewFakeRunner().On("docker build", osutil.Result{ExitCode: 1})
	dialed := false
	dial := func(context.Context, string) (osutil.Runner, error) {
		dialed = true
		return osutil.NewFakeRunner(), nil
	}

	_, err := NewDeployer(local, dial, nil).Deploy(context.Background(), DeployOptions{Dir: dir, Host: "h", Version: "v1"})
	assert.ErrorContains(t, err, "build failed")
	assert.False(t, local.Ran("docker login"))
	assert.False(t, local.Ran("docker push"))
	assert.False(t, dialed)
}

func TestDeploy_DialFailure(t *testing.T) {
	dial := func(context.Context, string) (osutil.Runner, error) {
		return nil, errors.New("connection refused")
	}
	_, err := NewDeployer(osutil.NewFakeRunner(), dial, nil).Deploy(context.Background(), DeployOptions{Dir: t.TempDir(), Host: "h", Version: "v1"})
	assert.ErrorContains(t, err, "connection refused")
}

func TestDeploy_RequiresHost(t *testing.T) {
	_, err := NewDeployer(osutil.NewFakeRunner(), nil, nil).Deploy(context.Background(), DeployOptions{})
	assert.ErrorContains(t, err, "server not found")
}

func TestReadHistory(t *testing.T) {
	r := osutil.NewFakeRunner().On("cat "+HistoryFile, osutil.Result{Stdout: "garbage"})
	assert.Nil(t, ReadHistory(context.Background(), r))

	r = osutil.NewFakeRunner().On("cat "+HistoryFile, osutil.Result{ExitCode: 1})
	assert.Nil(t, ReadHistory(context.Background(), r))
}

func TestWaitRemoteHealthy(t *testing.T) {
	r := osutil.NewFakeRunner()
	assert.True(t, WaitRemoteHealthy(context.Background(), r, 3000, time.Second, time.Millisecond))
	assert.True(t, strings.Contains(r.Lines()[0], "curl -sf http://localhost:3000/"))
}
