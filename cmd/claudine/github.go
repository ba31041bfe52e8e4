package main

import (
	"context"
	"os"

	"github.com/claudine-dev/claudine/pkg/config"
	"github.com/claudine-dev/claudine/pkg/logger"
	"github.com/claudine-dev/claudine/pkg/osutil"
	"github.com/claudine-dev/claudine/pkg/secrets"
	"github.com/pkg/errors"
)

// resolveRepo returns the configured owner/name or the one of the origin remote
func resolveRepo(ctx context.Context, cfg *config.Config) (string, error) {
	if cfg.GitHubRepo != "" {
		return cfg.GitHubRepo, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", errors.Wrap(err, "failed to get working directory")
	}
	repo, err := secrets.OriginRepo(ctx, runner, wd)
	if err != nil {
		return "", errors.Wrap(err, "could not detect the GitHub repository, pass --github-repo")
	}
	return repo, nil
}

// githubToken reads GH_TOKEN or GITHUB_TOKEN
func githubToken() string {
	for _, name := range []string{"GH_TOKEN", "GITHUB_TOKEN"} {
		if token := os.Getenv(name); token != "" {
			return token
		}
	}
	return ""
}

// secretLister talks to the REST API when a token is in the environment,
// through the gh CLI otherwise
func secretLister(ctx context.Context) (secrets.Lister, error) {
	if token := githubToken(); token != "" {
		logger.G(ctx).Debug("listing secrets through the GitHub API")
		return secrets.NewAPILister(ctx, token), nil
	}
	if err := osutil.ValidateGHCLI(ctx, runner); err != nil {
		return nil, err
	}
	return secrets.NewGHStore(runner), nil
}
