// Package autosync keeps the claudine checkout in step with its remote:
// local edits (often made through symlinked skill folders) are stashed,
// rebased onto upstream, restored and pushed as an auto-sync commit.
package autosync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/claudine-dev/claudine/pkg/logger"
	"github.com/claudine-dev/claudine/pkg/osutil"
	"github.com/pkg/errors"
)

// StashMessage labels the stash entry created before pulling
const StashMessage = "auto-sync-stash"

// DefaultResolverCommand invokes Claude non-interactively; the prompt is appended
var DefaultResolverCommand = []string{"claude", "-p", "--dangerously-skip-permissions", "--model", "haiku"}

// ErrUnresolvedConflicts is returned when the resolver left conflicts behind
var ErrUnresolvedConflicts = errors.New("could not resolve conflicts, dropped stash and kept remote state")

// Outcome describes what a sync run ended up doing
type Outcome string

// Sync outcomes
const (
	OutcomeClean     Outcome = "clean"
	OutcomeNothing   Outcome = "nothing-staged"
	OutcomeCommitted Outcome = "committed"
)

// Result is the summary of a sync run
type Result struct {
	Outcome  Outcome
	Message  string // commit message when Outcome is committed
	Stashed  bool
	Resolved []string // files the resolver fixed
}

// Syncer runs the stash, rebase, resolve, commit and push workflow
type Syncer struct {
	dir             string
	runner          osutil.Runner
	resolver        []string
	resolverTimeout time.Duration
	pushAttempts    uint
	pushDelay       time.Duration
	now             func() time.Time
}

// Option configures a Syncer
type Option func(*Syncer)

// WithRunner sets the command runner
func WithRunner(r osutil.Runner) Option {
	return func(s *Syncer) { s.runner = r }
}

// WithResolver sets the conflict resolver command and its timeout
func WithResolver(command []string, timeout time.Duration) Option {
	return func(s *Syncer) {
		if len(command) > 0 {
			s.resolver = command
		}
		if timeout > 0 {
			s.resolverTimeout = timeout
		}
	}
}

// WithPushRetry sets how often and how far apart pushes are attempted
func WithPushRetry(attempts int, delay time.Duration) Option {
	return func(s *Syncer) {
		if attempts > 0 {
			s.pushAttempts = uint(attempts)
		}
		s.pushDelay = delay
	}
}

// WithClock overrides the time source used for commit messages
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) { s.now = now }
}

// New creates a Syncer for the repository at dir
func New(dir string, opts ...Option) *Syncer {
	s := &Syncer{
		dir:             dir,
		runner:          osutil.NewExecRunner(),
		resolver:        DefaultResolverCommand,
		resolverTimeout: 120 * time.Second,
		pushAttempts:    3,
		pushDelay:       2 * time.Second,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Syncer) git(ctx context.Context, args ...string) (osutil.Result, error) {
	cmd := osutil.Cmd("git", args...).InDir(s.dir)
	res, err := s.runner.Run(ctx, cmd)
	log := logger.G(ctx).WithField("cmd", cmd.String())
	if out := strings.TrimSpace(res.Stdout); out != "" {
		log = log.WithField("stdout", out)
	}
	if out := strings.TrimSpace(res.Stderr); out != "" {
		log = log.WithField("stderr", out)
	}
	log.Debug("ran git")
	return res, err
}

// HasChanges refreshes the index and reports whether the tree is dirty
func (s *Syncer) HasChanges(ctx context.Context) (bool, error) {
	_, _ = s.git(ctx, "update-index", "--refresh")
	res, err := s.git(ctx, "status", "--porcelain")
	if err != nil {
		return false, errors.Wrap(err, "git status failed")
	}
	return strings.TrimSpace(res.Stdout) != "", nil
}

// ConflictFiles lists paths with unresolved merge conflicts
func (s *Syncer) ConflictFiles(ctx context.Context) []string {
	res, err := s.git(ctx, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		logger.G(ctx).WithError(err).Warn("failed to list conflicted files")
		return nil
	}
	var files []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files
}

func (s *Syncer) stash(ctx context.Context) (bool, error) {
	res, err := s.git(ctx, "stash", "push", "-m", StashMessage, "--include-untracked")
	if err != nil {
		return false, errors.Wrap(err, "git stash failed")
	}
	stashed := !strings.Contains(res.Stdout, "No local changes to save")
	if stashed {
		logger.G(ctx).Info("stashed local changes")
	}
	return stashed, nil
}

func (s *Syncer) pullRebase(ctx context.Context) bool {
	res, err := s.git(ctx, "pull", "--rebase", "--autostash")
	if err != nil {
		logger.G(ctx).WithError(err).Warn("git pull --rebase failed")
		lower := strings.ToLower(res.Stderr)
		if strings.Contains(lower, "rebase") || strings.Contains(lower, "conflict") {
			logger.G(ctx).Info("aborting failed rebase")
			_, _ = s.git(ctx, "rebase", "--abort")
		}
		return false
	}
	logger.G(ctx).Info("pulled and rebased")
	return true
}

// popStash returns false when the pop failed, conflicted or not
func (s *Syncer) popStash(ctx context.Context) bool {
	res, err := s.git(ctx, "stash", "pop")
	if err == nil {
		logger.G(ctx).Info("popped stash")
		return true
	}
	if strings.Contains(strings.ToLower(res.Combined()), "conflict") {
		logger.G(ctx).Warn("stash pop produced conflicts")
	} else {
		logger.G(ctx).WithError(err).Error("git stash pop failed")
	}
	return false
}

// ResolvePrompt is the instruction handed to the resolver
func ResolvePrompt(files []string) string {
	lines := make([]string, len(files))
	for i, f := range files {
		lines[i] = "  - " + f
	}
	return "You are resolving merge conflicts in the claudine repo, an auto-synced " +
		"dotfiles/config repository. The following files have conflicts:\n" +
		strings.Join(lines, "\n") + "\n\n" +
		"For each conflicted file:\n" +
		"1. Read the file to understand both sides of the conflict\n" +
		"2. Resolve the conflict by keeping the most complete/recent version, " +
		"or merging both sides when they touch different parts\n" +
		"3. Remove all conflict markers (<<<<<<, ======, >>>>>>)\n" +
		"4. Stage the resolved file with git add\n\n" +
		"This is an automated sync, so prefer keeping all content from both sides " +
		"when possible. If in doubt, prefer the incoming (remote) changes."
}

func (s *Syncer) resolveConflicts(ctx context.Context, files []string) bool {
	logger.G(ctx).WithField("files", strings.Join(files, ", ")).Info("invoking conflict resolver")

	rctx, cancel := context.WithTimeout(ctx, s.resolverTimeout)
	defer cancel()

	args := append(append([]string(nil), s.resolver[1:]...), ResolvePrompt(files))
	// CLAUDECODE is cleared so the resolver may run from inside a Claude session
	cmd := osutil.Cmd(s.resolver[0], args...).InDir(s.dir).WithEnv("CLAUDECODE=")
	res, err := s.runner.Run(rctx, cmd)
	if err != nil {
		logger.G(ctx).WithError(err).Error("conflict resolver failed")
		return false
	}

	out := strings.TrimSpace(res.Stdout)
	if len(out) > 500 {
		out = out[:500]
	}
	logger.G(ctx).WithField("output", out).Info("conflict resolver finished")

	if remaining := s.ConflictFiles(ctx); len(remaining) > 0 {
		logger.G(ctx).WithField("files", strings.Join(remaining, ", ")).Error("conflicts remain after resolution")
		return false
	}
	return true
}

// Run performs one sync. ErrUnresolvedConflicts and commit or push failures
// are returned as errors; the caller maps them to a non-zero exit.
func (s *Syncer) Run(ctx context.Context) (*Result, error) {
	result := &Result{}

	dirty, err := s.HasChanges(ctx)
	if err != nil {
		return nil, err
	}
	if dirty {
		if result.Stashed, err = s.stash(ctx); err != nil {
			logger.G(ctx).WithError(err).Error("continuing without stash")
		}
	}

	if !s.pullRebase(ctx) && result.Stashed {
		// Rebase failed: put the local changes back right away and skip the
		// second pop below.
		logger.G(ctx).Warn("rebase failed, recovering stash")
		_, _ = s.git(ctx, "stash", "pop")
		result.Stashed = false
	}

	if result.Stashed && !s.popStash(ctx) {
		if files := s.ConflictFiles(ctx); len(files) > 0 {
			if !s.resolveConflicts(ctx, files) {
				_, _ = s.git(ctx, "checkout", "--", ".")
				_, _ = s.git(ctx, "clean", "-fd")
				_, _ = s.git(ctx, "stash", "drop")
				return result, ErrUnresolvedConflicts
			}
			result.Resolved = files
		}
	}

	dirty, err = s.HasChanges(ctx)
	if err != nil {
		return result, err
	}
	if !dirty {
		logger.G(ctx).Info("no changes to commit after sync")
		result.Outcome = OutcomeClean
		return result, nil
	}

	return result, s.commitAndPush(ctx, result)
}

// CommitMessage formats the auto-sync commit subject for t
func CommitMessage(t time.Time) string {
	return fmt.Sprintf("auto-sync: %s", t.UTC().Format("2006-01-02 15:04:05 UTC"))
}

func (s *Syncer) commitAndPush(ctx context.Context, result *Result) error {
	if _, err := s.git(ctx, "add", "-A"); err != nil {
		return errors.Wrap(err, "git add failed")
	}

	if _, err := s.git(ctx, "diff", "--cached", "--quiet"); err == nil {
		logger.G(ctx).Info("nothing staged after git add")
		result.Outcome = OutcomeNothing
		return nil
	}

	message := CommitMessage(s.now())
	// hooks are skipped for automated sync commits
	if _, err := s.git(ctx, "commit", "-m", message, "--no-verify"); err != nil {
		return errors.Wrap(err, "git commit failed")
	}
	result.Outcome = OutcomeCommitted
	result.Message = message
	logger.G(ctx).WithField("message", message).Info("committed")

	err := retry.Do(
		func() error {
			_, err := s.git(ctx, "push")
			return err
		},
		retry.Attempts(s.pushAttempts),
		retry.Delay(s.pushDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			logger.G(ctx).WithError(err).WithField("attempt", n+1).Warn("retrying git push")
		}),
	)
	if err != nil {
		return errors.Wrap(err, "git push failed")
	}
	logger.G(ctx).Info("pushed to origin")
	return nil
}
