package scaleway

import (
	"context"
	"io"
	"strconv"

	"github.com/claudine-dev/claudine/pkg/osutil"
	"github.com/pkg/errors"
)

// LogsOptions selects application logs
type LogsOptions struct {
	Service string
	Tail    int
	Since   string
	Follow  bool
}

// LogsCommand builds the docker compose logs invocation. --tail is ignored
// when following.
func LogsCommand(opts LogsOptions) osutil.Command {
	args := []string{"compose", "logs"}
	if opts.Service != "" {
		args = append(args, opts.Service)
	}
	if opts.Tail > 0 && !opts.Follow {
		args = append(args, "--tail="+strconv.Itoa(opts.Tail))
	}
	if opts.Since != "" {
		args = append(args, "--since="+opts.Since)
	}
	if opts.Follow {
		args = append(args, "-f")
	}
	return osutil.Cmd("docker", args...).InDir(AppDir)
}

// StreamLogs copies the remote logs to stdout and stderr until the command
// ends or ctx is cancelled
func StreamLogs(ctx context.Context, r osutil.Runner, opts LogsOptions, stdout, stderr io.Writer) error {
	cmd := LogsCommand(opts)
	cmd.Stdout, cmd.Stderr = stdout, stderr
	if _, err := r.Run(ctx, cmd); err != nil {
		if ctx.Err() != nil && opts.Follow {
			return nil
		}
		return errors.Wrap(err, "error getting logs")
	}
	return nil
}
