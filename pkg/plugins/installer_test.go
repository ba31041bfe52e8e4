package plugins

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/claudine-dev/claudine/pkg/osutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepoNameFromURL(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"git@github.com:austintgriffith/ethskills.git", "ethskills"},
		{"https://github.com/org/repo.git", "repo"},
		{"https://github.com/org/repo/", "repo"},
		{"git@host:onlyrepo", "onlyrepo"},
		{"https://example.com/a/b/c", "c"},
		{"  https://github.com/org/spaced.git  ", "spaced"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			name, err := RepoNameFromURL(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, name)
		})
	}

	for _, bad := range []string{"", "   ", ".git"} {
		_, err := RepoNameFromURL(bad)
		assert.Error(t, err, "url %q", bad)
	}
}

func TestResolveRepoRoot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	root, err := ResolveRepoRoot(ctx, osutil.NewFakeRunner(), dir)
	require.NoError(t, err)
	assert.Equal(t, dir, root)

	t.Setenv(EnvRepoRoot, dir)
	root, err = ResolveRepoRoot(ctx, osutil.NewFakeRunner(), "")
	require.NoError(t, err)
	assert.Equal(t, dir, root)

	t.Setenv(EnvRepoRoot, "")
	runner := osutil.NewFakeRunner().On("git rev-parse --show-toplevel", osutil.Result{Stdout: "/work/claudine\n"})
	root, err = ResolveRepoRoot(ctx, runner, "")
	require.NoError(t, err)
	assert.Equal(t, "/work/claudine", root)

	failing := osutil.NewFakeRunner().On("git rev-parse", osutil.Result{ExitCode: 128})
	_, err = ResolveRepoRoot(ctx, failing, "")
	assert.Error(t, err)
}

// fakeSubmodule makes "git submodule add" populate the checkout with skills
func fakeSubmodule(t *testing.T, repoRoot string) *osutil.FakeRunner {
	return osutil.NewFakeRunner().Do("git submodule add", func(c osutil.Command) {
		path := filepath.Join(repoRoot, c.Args[len(c.Args)-1])
		writeFile(t, filepath.Join(path, "skills", "gas", "SKILL.md"), "---\nname: gas\ndescription: g\n---\n")
		writeFile(t, filepath.Join(path, "skills", "gas", "nested", "SKILL.md"), "---\nname: nested\ndescription: n\n---\n")
		writeFile(t, filepath.Join(path, "skills", "wallets", "SKILL.md"), "---\nname: wallets\ndescription: w\n---\n")
	})
}

func TestInstall(t *testing.T) {
	repoRoot := t.TempDir()
	runner := fakeSubmodule(t, repoRoot)

	installer := NewInstaller(repoRoot, WithRunner(runner))
	result, err := installer.Install(context.Background(), "git@github.com:austintgriffith/ethskills.git")
	require.NoError(t, err)

	assert.True(t, result.Added)
	assert.Equal(t, "ethskills", result.RepoName)
	assert.Equal(t, []string{"git submodule add git@github.com:austintgriffith/ethskills.git external/ethskills"}, runner.Lines())
	require.Len(t, result.Links, 2)

	link, err := os.Readlink(filepath.Join(repoRoot, ".claude", "skills", "gas"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("..", "..", "external", "ethskills", "skills", "gas"), link)
	assert.FileExists(t, filepath.Join(repoRoot, ".claude", "skills", "wallets", "SKILL.md"))

	_, err = os.Lstat(filepath.Join(repoRoot, ".claude", "skills", "nested"))
	assert.True(t, os.IsNotExist(err), "nested skills are reachable through their parent link")
}

func TestInstallRootSkillUsesRepoName(t *testing.T) {
	repoRoot := t.TempDir()
	runner := osutil.NewFakeRunner().Do("git submodule add", func(c osutil.Command) {
		writeFile(t, filepath.Join(repoRoot, "external", "solo", "SKILL.md"), "---\nname: solo\ndescription: s\n---\n")
	})

	result, err := NewInstaller(repoRoot, WithRunner(runner)).Install(context.Background(), "https://github.com/org/solo.git")
	require.NoError(t, err)
	require.Len(t, result.Links, 1)
	assert.Equal(t, "solo", result.Links[0].Name)
	assert.Equal(t, filepath.Join("..", "..", "external", "solo"), result.Links[0].Target)
}

func TestInstallExistingPath(t *testing.T) {
	repoRoot := t.TempDir()
	writeFile(t, filepath.Join(repoRoot, "external", "ethskills", "skills", "gas", "SKILL.md"), "---\nname: gas\ndescription: g\n---\n")

	t.Run("fails without force", func(t *testing.T) {
		_, err := NewInstaller(repoRoot, WithRunner(osutil.NewFakeRunner())).
			Install(context.Background(), "https://github.com/a/ethskills")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already exists")
	})

	t.Run("force syncs gitmodules and relinks", func(t *testing.T) {
		skillsDir := filepath.Join(repoRoot, ".claude", "skills")
		require.NoError(t, os.MkdirAll(filepath.Join(skillsDir, "gas"), 0o755))

		runner := osutil.NewFakeRunner().
			On("git config -f .gitmodules --get", osutil.Result{ExitCode: 1}).
			On("git submodule update", osutil.Result{ExitCode: 1, Stderr: "offline"})

		result, err := NewInstaller(repoRoot, WithRunner(runner), WithForce(true)).
			Install(context.Background(), "https://github.com/a/ethskills")
		require.NoError(t, err)
		assert.False(t, result.Added)

		assert.True(t, runner.Ran("git config -f .gitmodules submodule.external/ethskills.path external/ethskills"))
		assert.True(t, runner.Ran("git config -f .gitmodules submodule.external/ethskills.url https://github.com/a/ethskills"))
		assert.True(t, runner.Ran("git submodule sync --"))
		assert.True(t, runner.Ran("git submodule update --init -- external/ethskills"))

		fi, err := os.Lstat(filepath.Join(skillsDir, "gas"))
		require.NoError(t, err)
		assert.NotZero(t, fi.Mode()&os.ModeSymlink)
	})

	t.Run("force still refuses plain files", func(t *testing.T) {
		skillsDir := filepath.Join(repoRoot, ".claude", "skills")
		require.NoError(t, os.Remove(filepath.Join(skillsDir, "gas")))
		writeFile(t, filepath.Join(skillsDir, "gas"), "file")

		_, err := NewInstaller(repoRoot, WithRunner(osutil.NewFakeRunner()), WithForce(true)).
			Install(context.Background(), "https://github.com/a/ethskills")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "is a file")
	})
}

func TestInstallGitFailure(t *testing.T) {
	repoRoot := t.TempDir()
	runner := osutil.NewFakeRunner().On("git submodule add", osutil.Result{ExitCode: 128, Stderr: "repository not found"})

	_, err := NewInstaller(repoRoot, WithRunner(runner)).Install(context.Background(), "https://github.com/a/missing.git")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repository not found")
}

func TestRemoverListAndRemove(t *testing.T) {
	repoRoot := t.TempDir()
	runner := fakeSubmodule(t, repoRoot)
	ctx := context.Background()

	_, err := NewInstaller(repoRoot, WithRunner(runner)).Install(ctx, "https://github.com/a/ethskills.git")
	require.NoError(t, err)

	remover := NewRemover(repoRoot, WithRunner(runner))
	repos, err := remover.List()
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "ethskills", repos[0].Name)
	assert.ElementsMatch(t, []string{"gas", "wallets"}, repos[0].Skills)

	removed, err := remover.Remove(ctx, "ethskills")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"gas", "wallets"}, removed)
	assert.True(t, runner.Ran("git submodule deinit -f -- external/ethskills"))
	assert.True(t, runner.Ran("git rm -f -- external/ethskills"))

	_, err = os.Lstat(filepath.Join(repoRoot, ".claude", "skills", "gas"))
	assert.True(t, os.IsNotExist(err))

	_, err = remover.Remove(ctx, "unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
