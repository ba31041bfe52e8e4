package scaleway

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/claudine-dev/claudine/pkg/audit"
	"github.com/claudine-dev/claudine/pkg/logger"
	"github.com/claudine-dev/claudine/pkg/osutil"
	"github.com/pkg/errors"
)

// Rollback statuses
const (
	RollbackStarted      = "started"
	RollbackSuccess      = "success"
	RollbackFailed       = "failed"
	RollbackApplyFailed  = "rollback_failed"
	RollbackHealthFailed = "health_check_failed"
)

// PreviousVersion is the version alias resolved from the deploy history
const PreviousVersion = "previous"

// UnknownVersion is reported when the running version cannot be read
const UnknownVersion = "unknown"

// imageTagPattern is the docker tag grammar
var imageTagPattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]{0,127}$`)

// RollbackOptions describes a rollback
type RollbackOptions struct {
	Host    string
	Image   string // without tag
	Version string // target version or "previous"
	Reason  string
	Env     string
	Port    int
	Force   bool

	HealthTimeout  time.Duration
	HealthInterval time.Duration

	// Confirm is asked with the plan unless Force is set
	Confirm func(plan RollbackPlan) bool
}

// RollbackPlan is what a rollback is about to do
type RollbackPlan struct {
	Host   string
	From   string
	To     string
	Env    string
	Reason string
}

// RollbackResult is the outcome of a rollback
type RollbackResult struct {
	RollbackPlan
	Status string
	// NoOp is set when the target version is already running
	NoOp bool
}

// CurrentVersion reads the running image tag, falling back to APP_VERSION in
// the remote .env
func CurrentVersion(ctx context.Context, r osutil.Runner) string {
	res, err := r.Run(ctx, osutil.Cmd("docker compose ps --format json 2>/dev/null | head -1").InDir(AppDir))
	if err == nil && strings.TrimSpace(res.Stdout) != "" {
		if v := imageTag(res.Stdout); v != "" {
			return v
		}
		return UnknownVersion
	}

	res, err = r.Run(ctx, osutil.Cmd("cat "+AppDir+"/.env 2>/dev/null | grep APP_VERSION | cut -d= -f2"))
	if err == nil {
		if v := strings.TrimSpace(res.Stdout); v != "" {
			return v
		}
	}
	return UnknownVersion
}

// imageTag extracts the tag of the first container in compose ps JSON,
// which is either one object per line or an array
func imageTag(out string) string {
	type container struct {
		Image string `json:"Image"`
	}
	out = strings.TrimSpace(out)

	var image string
	var one container
	if err := json.Unmarshal([]byte(out), &one); err == nil {
		image = one.Image
	} else {
		var many []container
		if err := json.Unmarshal([]byte(out), &many); err != nil || len(many) == 0 {
			return ""
		}
		image = many[0].Image
	}

	if i := strings.LastIndex(image, ":"); i >= 0 && i > strings.LastIndex(image, "/") {
		return image[i+1:]
	}
	return ""
}

// ResolvePrevious returns the version deployed before the latest one
func ResolvePrevious(ctx context.Context, r osutil.Runner) (string, error) {
	history := ReadHistory(ctx, r)
	if len(history) < 2 || history[len(history)-2].Version == "" {
		return "", errors.New("could not determine previous version, please specify it explicitly")
	}
	return history[len(history)-2].Version, nil
}

// Rollbacker rolls the remote deployment back to an earlier image
type Rollbacker struct {
	remote osutil.Runner
	log    *audit.Log
}

// NewRollbacker creates a Rollbacker. log may be nil to skip auditing.
func NewRollbacker(remote osutil.Runner, log *audit.Log) *Rollbacker {
	return &Rollbacker{remote: remote, log: log}
}

// Rollback switches the deployment to opts.Version. Start and completion
// are both recorded once the rollback has been confirmed.
func (rb *Rollbacker) Rollback(ctx context.Context, opts RollbackOptions) (*RollbackResult, error) {
	if err := ValidateEnv(opts.Env); err != nil {
		return nil, err
	}
	if strings.TrimSpace(opts.Reason) == "" {
		return nil, errors.New("a rollback reason is required for the audit trail")
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

	result := &RollbackResult{RollbackPlan: RollbackPlan{
		Host:   opts.Host,
		From:   CurrentVersion(ctx, rb.remote),
		To:     opts.Version,
		Env:    opts.Env,
		Reason: opts.Reason,
	}}

	if opts.Version == PreviousVersion {
		prev, err := ResolvePrevious(ctx, rb.remote)
		if err != nil {
			return result, err
		}
		result.To = prev
	}
	if !imageTagPattern.MatchString(result.To) {
		return result, errors.Errorf("invalid image tag %q", result.To)
	}

	if result.From == result.To {
		result.NoOp = true
		result.Status = RollbackSuccess
		return result, nil
	}

	if !opts.Force && (opts.Confirm == nil || !opts.Confirm(result.RollbackPlan)) {
		return result, ErrAborted
	}

	result.Status = RollbackStarted
	if err := rb.record(ctx, "rollback_started", result, map[string]any{"environment": opts.Env}); err != nil {
		return result, errors.Wrap(err, "refusing to roll back without an audit record")
	}
	defer func() {
		err := rb.record(ctx, "rollback_completed", result, map[string]any{
			"environment":  opts.Env,
			"final_status": result.Status,
		})
		if err != nil {
			logger.G(ctx).WithError(err).Warn("failed to write rollback audit log")
		}
	}()

	if err := rb.apply(ctx, opts.Image, result.To); err != nil {
		result.Status = RollbackApplyFailed
		return result, err
	}

	logger.G(ctx).WithField("timeout", opts.HealthTimeout).Info("verifying health")
	if !pollRemote(ctx, rb.remote, fmt.Sprintf("curl -sf http://localhost:%d/health || exit 1", opts.Port), opts.HealthTimeout, opts.HealthInterval) {
		result.Status = RollbackHealthFailed
		return result, errors.New("health check failed after rollback")
	}

	result.Status = RollbackSuccess
	return result, nil
}

func (rb *Rollbacker) apply(ctx context.Context, image, version string) error {
	full := image + ":" + version
	logger.G(ctx).WithField("image", full).Info("pulling image")
	if _, err := rb.remote.Run(ctx, osutil.Cmd("docker", "pull", full)); err != nil {
		return errors.Wrapf(err, "failed to pull image %s", full)
	}

	sed := "sed -i 's/APP_VERSION=.*/APP_VERSION=" + version + "/' " + AppDir + "/.env"
	if _, err := rb.remote.Run(ctx, osutil.Cmd(sed)); err != nil {
		logger.G(ctx).WithError(err).Warn("failed to update APP_VERSION")
	}

	if _, err := rb.remote.Run(ctx, osutil.Cmd("docker", "compose", "up", "-d", "--remove-orphans").InDir(AppDir)); err != nil {
		return errors.Wrap(err, "failed to restart services")
	}
	return nil
}

func (rb *Rollbacker) record(ctx context.Context, action string, result *RollbackResult, details map[string]any) error {
	if rb.log == nil {
		return nil
	}
	entry := audit.NewEntry(action, result.Host, result.Status)
	entry.FromVersion = result.From
	entry.ToVersion = result.To
	entry.Reason = result.Reason
	entry.Details = details
	return rb.log.Append(ctx, entry)
}
