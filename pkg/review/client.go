package review

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/claudine-dev/claudine/pkg/logger"
	"github.com/claudine-dev/claudine/pkg/osutil"
	"github.com/pkg/errors"
)

// WorktreeDir is where PR worktrees are checked out, relative to the repo root
const WorktreeDir = ".reviews"

const resolveThreadMutation = `mutation($threadId: ID!) {
  resolveReviewThread(input: {threadId: $threadId}) {
    thread { id isResolved }
  }
}`

// Repo identifies a GitHub repository
type Repo struct {
	Owner string
	Name  string
}

func (r Repo) String() string {
	return r.Owner + "/" + r.Name
}

// ParseRepo parses "owner/repo"
func ParseRepo(s string) (Repo, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return Repo{}, errors.Errorf("invalid repository %q, expected owner/repo", s)
	}
	return Repo{Owner: owner, Name: name}, nil
}

// ParseNumber parses a PR or issue number
func ParseNumber(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(s, "#"))
	if err != nil || n <= 0 {
		return 0, errors.Errorf("invalid number %q", s)
	}
	return n, nil
}

// Client talks to GitHub through the gh CLI
type Client struct {
	runner osutil.Runner
	dir    string
}

// NewClient creates a Client whose git and gh commands run in dir
func NewClient(runner osutil.Runner, dir string) *Client {
	return &Client{runner: runner, dir: dir}
}

func (c *Client) api(ctx context.Context, args ...string) (json.RawMessage, error) {
	cmd := osutil.Cmd("gh", append([]string{"api"}, args...)...).InDir(c.dir)
	logger.G(ctx).WithField("cmd", cmd.String()).Debug("calling GitHub API")

	res, err := c.runner.Run(ctx, cmd)
	if err != nil {
		return nil, errors.Wrap(err, "gh api failed")
	}
	return json.RawMessage(strings.TrimSpace(res.Stdout)), nil
}

func pullPath(repo Repo, number int) string {
	return fmt.Sprintf("repos/%s/%s/pulls/%d", repo.Owner, repo.Name, number)
}

// list fetches every page of an array endpoint. gh prints one array per
// page back to back, so the pages are merged into a single array.
func (c *Client) list(ctx context.Context, path string) (json.RawMessage, error) {
	out, err := c.api(ctx, "--paginate", path)
	if err != nil {
		return nil, err
	}
	return mergePages(out)
}

func mergePages(data []byte) (json.RawMessage, error) {
	items := []json.RawMessage{}
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var page []json.RawMessage
		err := dec.Decode(&page)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "invalid paginated response from gh api")
		}
		items = append(items, page...)
	}
	merged, err := json.Marshal(items)
	if err != nil {
		return nil, errors.Wrap(err, "failed to merge pages")
	}
	return merged, nil
}

// Files lists the files changed by the PR
func (c *Client) Files(ctx context.Context, repo Repo, number int) (json.RawMessage, error) {
	return c.list(ctx, pullPath(repo, number)+"/files")
}

// Comments lists the inline review comments of the PR
func (c *Client) Comments(ctx context.Context, repo Repo, number int) (json.RawMessage, error) {
	return c.list(ctx, pullPath(repo, number)+"/comments")
}

// Reviews lists the submitted reviews of the PR
func (c *Client) Reviews(ctx context.Context, repo Repo, number int) (json.RawMessage, error) {
	return c.list(ctx, pullPath(repo, number)+"/reviews")
}

// Issue fetches an issue
func (c *Client) Issue(ctx context.Context, repo Repo, number int) (json.RawMessage, error) {
	return c.api(ctx, fmt.Sprintf("repos/%s/%s/issues/%d", repo.Owner, repo.Name, number))
}

// Head returns the SHA of the PR head commit
func (c *Client) Head(ctx context.Context, repo Repo, number int) (string, error) {
	out, err := c.api(ctx, pullPath(repo, number), "--jq", ".head.sha")
	if err != nil {
		return "", err
	}
	sha := strings.TrimSpace(string(out))
	if sha == "" {
		return "", errors.Errorf("no head commit found for %s#%d", repo, number)
	}
	return sha, nil
}

// Post submits the batch as a single review
func (c *Client) Post(ctx context.Context, b *Batch) (json.RawMessage, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(b.request())
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal review")
	}

	cmd := osutil.Cmd("gh", "api", "--method", "POST", pullPath(b.RepoRef(), b.PRNumber)+"/reviews", "--input", "-").
		InDir(c.dir).
		WithStdin(bytes.NewReader(body))
	res, err := c.runner.Run(ctx, cmd)
	if err != nil {
		return nil, errors.Wrap(err, "failed to post review")
	}

	logger.G(ctx).WithField("pr", b.PRNumber).WithField("comments", len(b.Comments)).Info("posted review")
	return json.RawMessage(strings.TrimSpace(res.Stdout)), nil
}

// Reply answers an existing review comment
func (c *Client) Reply(ctx context.Context, repo Repo, number int, commentID int64, body string) (json.RawMessage, error) {
	if strings.TrimSpace(body) == "" {
		return nil, errors.New("reply body is required")
	}
	return c.api(ctx, "--method", "POST",
		fmt.Sprintf("%s/comments/%d/replies", pullPath(repo, number), commentID),
		"-f", "body="+body)
}

// Resolve marks a review thread as resolved
func (c *Client) Resolve(ctx context.Context, threadID string) (json.RawMessage, error) {
	if threadID == "" {
		return nil, errors.New("thread id is required")
	}
	return c.api(ctx, "graphql", "-f", "query="+resolveThreadMutation, "-f", "threadId="+threadID)
}

// WorktreePath is where the PR is checked out for review
func (c *Client) WorktreePath(number int) string {
	return filepath.Join(c.dir, WorktreeDir, fmt.Sprintf("pr-%d", number))
}

// Checkout creates a detached worktree for the PR and checks the PR out in it
func (c *Client) Checkout(ctx context.Context, repo Repo, number int) (string, error) {
	path := c.WorktreePath(number)
	if _, err := os.Stat(path); err == nil {
		return "", errors.Errorf("worktree %s already exists, run cleanup first", path)
	}

	if _, err := c.runner.Run(ctx, osutil.Cmd("git", "worktree", "add", "--detach", path).InDir(c.dir)); err != nil {
		return "", errors.Wrap(err, "failed to create worktree")
	}

	args := []string{"pr", "checkout", strconv.Itoa(number), "--branch", fmt.Sprintf("review/pr-%d", number), "--force"}
	if repo.Owner != "" {
		args = append(args, "--repo", repo.String())
	}
	if _, err := c.runner.Run(ctx, osutil.Cmd("gh", args...).InDir(path)); err != nil {
		if _, cleanupErr := c.runner.Run(ctx, osutil.Cmd("git", "worktree", "remove", "--force", path).InDir(c.dir)); cleanupErr != nil {
			logger.G(ctx).WithError(cleanupErr).Warn("failed to remove worktree after checkout failure")
		}
		return "", errors.Wrapf(err, "failed to check out PR #%d", number)
	}

	logger.G(ctx).WithField("path", path).Info("checked out PR worktree")
	return path, nil
}

// Cleanup removes the PR worktree and its review branch
func (c *Client) Cleanup(ctx context.Context, number int) error {
	path := c.WorktreePath(number)
	if _, err := c.runner.Run(ctx, osutil.Cmd("git", "worktree", "remove", "--force", path).InDir(c.dir)); err != nil {
		return errors.Wrapf(err, "failed to remove worktree %s", path)
	}
	if _, err := c.runner.Run(ctx, osutil.Cmd("git", "branch", "-D", fmt.Sprintf("review/pr-%d", number)).InDir(c.dir)); err != nil {
		logger.G(ctx).WithError(err).Debug("review branch not deleted")
	}
	_, _ = c.runner.Run(ctx, osutil.Cmd("git", "worktree", "prune").InDir(c.dir))
	return nil
}

// BatchPath is the default location of the batch file for a PR
func (c *Client) BatchPath(number int) string {
	return filepath.Join(c.dir, WorktreeDir, fmt.Sprintf("pr-%d-review.json", number))
}

// InitReview writes an empty batch pinned to the current PR head
func (c *Client) InitReview(ctx context.Context, repo Repo, number int, path string) (*Batch, error) {
	sha, err := c.Head(ctx, repo, number)
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = c.BatchPath(number)
	}

	b := NewBatch(repo, number, sha)
	if err := b.Save(path); err != nil {
		return nil, err
	}
	logger.G(ctx).WithField("path", path).WithField("commit", sha).Info("initialized review batch")
	return b, nil
}
