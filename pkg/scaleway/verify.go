package scaleway

import (
	"context"
	"io"
	"time"

	"github.com/claudine-dev/claudine/pkg/logger"
)

// VerifyOptions configures post-deploy verification
type VerifyOptions struct {
	Health         HealthOptions
	SkipCompliance bool
}

// VerifyResult is the outcome of post-deploy verification
type VerifyResult struct {
	Healthy bool
	Health  HealthResult
	Checks  []QuickCheck
	// ComplianceErr is set when the server could not be reached over SSH;
	// it only produces a warning
	ComplianceErr error
}

// Passed is true when the app is healthy and every quick check passed
func (r VerifyResult) Passed() bool {
	if !r.Healthy {
		return false
	}
	for _, c := range r.Checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

// Verify waits for the app to become healthy and then runs the quick
// compliance controls over SSH
func Verify(ctx context.Context, health *HealthChecker, dial Dialer, opts VerifyOptions) VerifyResult {
	hopts := opts.Health
	hopts.Continuous = true
	if hopts.Interval == 0 {
		hopts.Interval = 5 * time.Second
	}

	var result VerifyResult
	res, err := health.Check(ctx, hopts)
	result.Health = res
	result.Healthy = err == nil && res.Healthy()

	if opts.SkipCompliance {
		return result
	}

	remote, err := dial(ctx, hopts.Host)
	if err != nil {
		logger.G(ctx).WithError(err).Warn("could not run compliance checks")
		result.ComplianceErr = err
		return result
	}
	if c, ok := remote.(io.Closer); ok {
		defer c.Close()
	}
	result.Checks = QuickCompliance(ctx, remote)
	return result
}
