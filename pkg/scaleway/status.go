package scaleway

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/claudine-dev/claudine/pkg/logger"
	"github.com/claudine-dev/claudine/pkg/osutil"
)

// StatusReport is the result of `scw status`
type StatusReport struct {
	ServerReachable bool     `json:"server_reachable"`
	SSHAccess       bool     `json:"ssh_access"`
	DockerRunning   bool     `json:"docker_running"`
	AppHealthy      bool     `json:"app_healthy"`
	Containers      []string `json:"containers"`
}

// OK reports whether every check passed
func (r StatusReport) OK() bool {
	return r.ServerReachable && r.SSHAccess && r.DockerRunning && r.AppHealthy
}

// StatusChecker checks a deployed server end to end
type StatusChecker struct {
	local  osutil.Runner
	dial   Dialer
	health *HealthChecker
}

// NewStatusChecker creates a StatusChecker
func NewStatusChecker(local osutil.Runner, dial Dialer, health *HealthChecker) *StatusChecker {
	return &StatusChecker{local: local, dial: dial, health: health}
}

// Check pings the server, opens an SSH session, lists containers and
// probes the health endpoint on port
func (s *StatusChecker) Check(ctx context.Context, ip string, port int) StatusReport {
	report := StatusReport{Containers: []string{}}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	_, err := s.local.Run(pingCtx, osutil.Cmd("ping", "-c", "1", "-W", "2", ip))
	cancel()
	report.ServerReachable = err == nil
	if !report.ServerReachable {
		return report
	}

	if remote, err := s.dial(ctx, ip); err != nil {
		logger.G(ctx).WithError(err).Debug("SSH access failed")
	} else {
		report.SSHAccess = true
		res, err := remote.Run(ctx, osutil.Cmd("docker ps --format '{{.Names}}: {{.Status}}'"))
		report.DockerRunning = err == nil
		if err == nil {
			for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
				if line != "" {
					report.Containers = append(report.Containers, line)
				}
			}
		}
		if c, ok := remote.(io.Closer); ok {
			c.Close()
		}
	}

	opts := DefaultHealthOptions(ip)
	opts.Port = port
	report.AppHealthy = Probe(ctx, s.health.client, opts.URL(), opts.Timeout, opts.ExpectedStatus).Healthy()
	return report
}
