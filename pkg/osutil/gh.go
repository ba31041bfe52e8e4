package osutil

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// ValidateGHCLI checks that the GitHub CLI is installed and authenticated.
func ValidateGHCLI(ctx context.Context, r Runner) error {
	if _, err := r.Run(ctx, Cmd("gh", "--version")); err != nil {
		if _, ok := ExitCode(err); !ok {
			return errors.New("GitHub CLI (gh) is not installed. Please install it from https://cli.github.com/")
		}
	}

	if _, err := r.Run(ctx, Cmd("gh", "auth", "status")); err != nil {
		return errors.New("GitHub CLI is not authenticated. Please run 'gh auth login' first")
	}

	return nil
}

// GHToken returns the token the GitHub CLI is logged in with.
func GHToken(ctx context.Context, r Runner) (string, error) {
	res, err := r.Run(ctx, Cmd("gh", "auth", "token"))
	if err != nil {
		return "", errors.Wrap(err, "failed to read gh auth token")
	}
	token := strings.TrimSpace(res.Stdout)
	if token == "" {
		return "", errors.New("gh returned an empty auth token")
	}
	return token, nil
}
