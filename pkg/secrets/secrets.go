// Package secrets checks and manages the GitHub Actions secrets the CI
// workflows rely on.
package secrets

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/claudine-dev/claudine/pkg/logger"
	"github.com/claudine-dev/claudine/pkg/osutil"
	"github.com/google/go-github/v57/github"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// Store lists and writes repository secrets
type Store interface {
	List(ctx context.Context, repo string) ([]string, error)
	Set(ctx context.Context, repo, name, value string) error
	Delete(ctx context.Context, repo, name string) error
}

// GHStore manages secrets through the gh CLI
type GHStore struct {
	runner osutil.Runner
}

// NewGHStore creates a Store backed by gh
func NewGHStore(r osutil.Runner) *GHStore {
	return &GHStore{runner: r}
}

func repoArgs(repo string) []string {
	if repo == "" {
		return nil
	}
	return []string{"--repo", repo}
}

// List returns the secret names of repo
func (s *GHStore) List(ctx context.Context, repo string) ([]string, error) {
	args := append([]string{"secret", "list", "--json", "name"}, repoArgs(repo)...)
	res, err := s.runner.Run(ctx, osutil.Cmd("gh", args...))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list secrets")
	}

	var items []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(res.Stdout), &items); err != nil {
		return nil, errors.Wrap(err, "unexpected gh secret list output")
	}

	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.Name
	}
	return names, nil
}

// Set stores a secret, passing the value on stdin so it never shows up in
// the process list
func (s *GHStore) Set(ctx context.Context, repo, name, value string) error {
	args := append([]string{"secret", "set", name}, repoArgs(repo)...)
	cmd := osutil.Cmd("gh", args...).WithStdin(strings.NewReader(value))
	if _, err := s.runner.Run(ctx, cmd); err != nil {
		return errors.Wrapf(err, "failed to set secret %s", name)
	}
	logger.G(ctx).WithField("secret", name).Info("stored GitHub secret")
	return nil
}

// Delete removes a secret
func (s *GHStore) Delete(ctx context.Context, repo, name string) error {
	args := append([]string{"secret", "delete", name}, repoArgs(repo)...)
	if _, err := s.runner.Run(ctx, osutil.Cmd("gh", args...)); err != nil {
		return errors.Wrapf(err, "failed to delete secret %s", name)
	}
	return nil
}

// APILister lists secrets through the GitHub REST API
type APILister struct {
	client *github.Client
}

// NewAPILister creates a lister authenticated with token
func NewAPILister(ctx context.Context, token string) *APILister {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &APILister{client: github.NewClient(oauth2.NewClient(ctx, ts))}
}

// WithBaseURL points the lister at another API host
func (l *APILister) WithBaseURL(u string) (*APILister, error) {
	base, err := url.Parse(strings.TrimRight(u, "/") + "/")
	if err != nil {
		return nil, errors.Wrap(err, "invalid GitHub API URL")
	}
	l.client.BaseURL = base
	return l, nil
}

// List returns the secret names of repo, following pagination
func (l *APILister) List(ctx context.Context, repo string) ([]string, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" {
		return nil, errors.Errorf("repository must be owner/name, got %q", repo)
	}

	var names []string
	opts := &github.ListOptions{PerPage: 100}
	for {
		page, resp, err := l.client.Actions.ListRepoSecrets(ctx, owner, name, opts)
		if err != nil {
			return nil, errors.Wrap(err, "failed to list secrets")
		}
		for _, secret := range page.Secrets {
			names = append(names, secret.Name)
		}
		if resp.NextPage == 0 {
			logger.G(ctx).WithField("count", len(names)).Debug("listed repository secrets")
			return names, nil
		}
		opts.Page = resp.NextPage
	}
}

// Report is the outcome of a secrets check
type Report struct {
	Repo    string   `json:"repo"`
	Present []string `json:"present"`
	Missing []string `json:"missing"`
}

// OK reports whether every required secret exists
func (r *Report) OK() bool {
	return len(r.Missing) == 0
}

// Lister is the read side of Store
type Lister interface {
	List(ctx context.Context, repo string) ([]string, error)
}

// Check compares the secrets of repo against required
func Check(ctx context.Context, l Lister, repo string, required []string) (*Report, error) {
	names, err := l.List(ctx, repo)
	if err != nil {
		return nil, err
	}

	have := make(map[string]bool, len(names))
	for _, n := range names {
		have[n] = true
	}

	report := &Report{Repo: repo, Present: []string{}, Missing: []string{}}
	for _, name := range required {
		if have[name] {
			report.Present = append(report.Present, name)
		} else {
			report.Missing = append(report.Missing, name)
		}
	}
	sort.Strings(report.Present)
	sort.Strings(report.Missing)
	return report, nil
}

var remoteRe = regexp.MustCompile(`github\.com[:/]([^/]+)/([^/]+?)(?:\.git)?/?$`)

// RepoFromRemote extracts owner/repo from a GitHub remote URL
func RepoFromRemote(url string) (string, error) {
	m := remoteRe.FindStringSubmatch(strings.TrimSpace(url))
	if m == nil {
		return "", errors.Errorf("not a GitHub remote: %s", url)
	}
	return m[1] + "/" + m[2], nil
}

// OriginRepo resolves owner/repo from the origin remote of the repo in dir
func OriginRepo(ctx context.Context, r osutil.Runner, dir string) (string, error) {
	res, err := r.Run(ctx, osutil.Cmd("git", "remote", "get-url", "origin").InDir(dir))
	if err != nil {
		return "", errors.Wrap(err, "failed to read origin remote")
	}
	return RepoFromRemote(res.Stdout)
}
