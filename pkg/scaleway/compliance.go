package scaleway

import (
	"context"
	"strconv"
	"strings"

	"github.com/claudine-dev/claudine/pkg/osutil"
	"github.com/pkg/errors"
)

// Compliance statuses
const (
	StatusPass    = "pass"
	StatusWarning = "warning"
	StatusFail    = "fail"
	StatusError   = "error"
)

// ComplianceCheck is the outcome of one remote control check
type ComplianceCheck struct {
	Control string `json:"control"`
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type checkFunc func(ctx context.Context, r osutil.Runner) ComplianceCheck

type namedCheck struct {
	name string
	fn   checkFunc
}

var complianceChecks = []namedCheck{
	{"ssh", checkSSH},
	{"firewall", checkFirewall},
	{"fail2ban", checkFail2ban},
	{"auditd", checkAuditd},
	{"encryption", checkEncryptedVolume},
	{"container", checkContainerSecurity},
	{"logs", checkLogRetention},
	{"network", checkNetworkIsolation},
	{"upgrades", checkUnattendedUpgrades},
}

// CheckNames lists the available compliance checks in run order
func CheckNames() []string {
	names := make([]string, len(complianceChecks))
	for i, c := range complianceChecks {
		names[i] = c.name
	}
	return names
}

// RunCompliance runs the selected checks, or all of them when only is empty
func RunCompliance(ctx context.Context, r osutil.Runner, only []string) ([]ComplianceCheck, error) {
	selected := make(map[string]bool, len(only))
	for _, name := range only {
		known := false
		for _, c := range complianceChecks {
			if c.name == name {
				known = true
			}
		}
		if !known {
			return nil, errors.Errorf("unknown check %q, expected one of %s", name, strings.Join(CheckNames(), ", "))
		}
		selected[name] = true
	}

	var results []ComplianceCheck
	for _, c := range complianceChecks {
		if len(selected) > 0 && !selected[c.name] {
			continue
		}
		results = append(results, c.fn(ctx, r))
	}
	return results, nil
}

// CompliancePassed is false when any check failed or errored
func CompliancePassed(results []ComplianceCheck) bool {
	for _, r := range results {
		if r.Status == StatusFail || r.Status == StatusError {
			return false
		}
	}
	return true
}

func remote(ctx context.Context, r osutil.Runner, script string) (string, int) {
	res, err := r.Run(ctx, osutil.Cmd(script))
	if err != nil {
		if code, ok := osutil.ExitCode(err); ok {
			return res.Stdout, code
		}
		return res.Stdout, -1
	}
	return res.Stdout, 0
}

func countOutput(out string) int {
	n, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0
	}
	return n
}

// isActive reads `systemctl is-active` output; "inactive" must not count
func isActive(out string) bool {
	return strings.TrimSpace(out) == "active"
}

func checkSSH(ctx context.Context, r osutil.Runner) ComplianceCheck {
	c := ComplianceCheck{Control: "SOC2 CC6.1", Name: "SSH Key-Only Authentication"}
	out, code := remote(ctx, r, "sshd -T 2>/dev/null | grep -E '^passwordauthentication'")
	switch {
	case code != 0:
		c.Status, c.Message = StatusError, "Could not check SSH configuration"
	case strings.Contains(strings.ToLower(out), "passwordauthentication no"):
		c.Status, c.Message = StatusPass, "Password authentication disabled"
	default:
		c.Status, c.Message = StatusFail, "Password authentication is enabled"
		c.Details = "Set 'PasswordAuthentication no' in /etc/ssh/sshd_config"
	}
	return c
}

func checkFirewall(ctx context.Context, r osutil.Runner) ComplianceCheck {
	c := ComplianceCheck{Control: "SOC2 CC6.6", Name: "UFW Firewall"}
	out, code := remote(ctx, r, "ufw status verbose 2>/dev/null")
	switch {
	case code != 0:
		c.Status, c.Message = StatusError, "Could not check UFW status"
	case !strings.Contains(out, "Status: active"):
		c.Status, c.Message = StatusFail, "UFW firewall is not active"
		c.Details = "Run 'ufw enable' to activate firewall"
	case strings.Contains(out, "Default: deny (incoming)"):
		c.Status, c.Message = StatusPass, "Firewall active with deny-by-default"
	default:
		c.Status, c.Message = StatusWarning, "Firewall active but not deny-by-default"
		c.Details = "Run 'ufw default deny incoming'"
	}
	return c
}

func checkFail2ban(ctx context.Context, r osutil.Runner) ComplianceCheck {
	c := ComplianceCheck{Control: "SOC2 CC6.7", Name: "Fail2ban Brute-Force Protection"}
	out, _ := remote(ctx, r, "systemctl is-active fail2ban 2>/dev/null")
	if !isActive(out) {
		c.Status, c.Message = StatusFail, "Fail2ban is not active"
		c.Details = "Run 'systemctl enable --now fail2ban'"
		return c
	}

	jail, _ := remote(ctx, r, "fail2ban-client status sshd 2>/dev/null")
	if strings.Contains(jail, "Status for the jail: sshd") {
		c.Status, c.Message = StatusPass, "Fail2ban active with SSH jail enabled"
	} else {
		c.Status, c.Message = StatusWarning, "Fail2ban active but SSH jail not configured"
		c.Details = "Enable sshd jail in /etc/fail2ban/jail.local"
	}
	return c
}

func checkAuditd(ctx context.Context, r osutil.Runner) ComplianceCheck {
	c := ComplianceCheck{Control: "SOC2 CC7.1", Name: "Auditd Logging"}
	out, _ := remote(ctx, r, "systemctl is-active auditd 2>/dev/null")
	if !isActive(out) {
		c.Status, c.Message = StatusFail, "Auditd is not active"
		c.Details = "Run 'systemctl enable --now auditd'"
		return c
	}

	rules, _ := remote(ctx, r, "auditctl -l 2>/dev/null | wc -l")
	n := countOutput(rules)
	if n > 10 {
		c.Status, c.Message = StatusPass, "Auditd active with "+strconv.Itoa(n)+" rules"
	} else {
		c.Status, c.Message = StatusWarning, "Auditd active but only "+strconv.Itoa(n)+" rules configured"
		c.Details = "Apply compliance rules from cloud-init.yaml"
	}
	return c
}

func checkEncryptedVolume(ctx context.Context, r osutil.Runner) ComplianceCheck {
	c := ComplianceCheck{Control: "ISO A.8.2", Name: "Encrypted Data Volume"}
	out, _ := remote(ctx, r, "lsblk -o NAME,SIZE,TYPE,MOUNTPOINT 2>/dev/null")
	if strings.Contains(out, "/data") {
		c.Status, c.Message = StatusPass, "Encrypted volume mounted at /data"
		return c
	}

	devices, _ := remote(ctx, r, "ls /dev/sd* 2>/dev/null | wc -l")
	if countOutput(devices) > 1 {
		c.Status, c.Message = StatusWarning, "Additional block device found but not mounted"
		c.Details = "Mount encrypted volume to /data"
	} else {
		c.Status, c.Message = StatusFail, "No encrypted data volume attached"
		c.Details = "Attach encrypted block volume via Terraform"
	}
	return c
}

func checkContainerSecurity(ctx context.Context, r osutil.Runner) ComplianceCheck {
	c := ComplianceCheck{Control: "ISO A.9.4", Name: "Container No-New-Privileges"}
	out, code := remote(ctx, r, "docker inspect $(docker ps -q) 2>/dev/null | grep -i 'nonewprivileges' | head -5")
	if code != 0 || strings.TrimSpace(out) == "" {
		count, _ := remote(ctx, r, "docker ps -q 2>/dev/null | wc -l")
		if countOutput(count) == 0 {
			c.Status, c.Message = StatusWarning, "No containers running to verify"
		} else {
			c.Status, c.Message = StatusError, "Could not inspect container security options"
		}
		return c
	}

	if strings.Contains(strings.ToLower(out), "true") {
		c.Status, c.Message = StatusPass, "Containers running with no-new-privileges"
	} else {
		c.Status, c.Message = StatusFail, "Containers not using no-new-privileges"
		c.Details = "Add 'security_opt: no-new-privileges:true' to docker-compose.yml"
	}
	return c
}

func checkLogRetention(ctx context.Context, r osutil.Runner) ComplianceCheck {
	c := ComplianceCheck{Control: "ISO A.12.4", Name: "Log Retention"}
	out, code := remote(ctx, r, "cat /etc/logrotate.d/deploy-logs 2>/dev/null")
	switch {
	case code != 0 || !strings.Contains(out, "rotate"):
		c.Status, c.Message = StatusFail, "Deploy log rotation not configured"
		c.Details = "Apply logrotate config from cloud-init.yaml"
	case strings.Contains(out, "rotate 30") || strings.Contains(out, "rotate 365"):
		c.Status, c.Message = StatusPass, "Log rotation configured for retention"
	default:
		c.Status, c.Message = StatusWarning, "Log rotation configured but retention period unclear"
	}
	return c
}

func checkNetworkIsolation(ctx context.Context, r osutil.Runner) ComplianceCheck {
	c := ComplianceCheck{Control: "ISO A.13.1", Name: "Internal Network Isolation"}
	out, _ := remote(ctx, r, "docker network ls --format '{{.Name}}' 2>/dev/null | grep -E 'backend|internal'")
	fields := strings.Fields(out)
	if len(fields) == 0 {
		c.Status, c.Message = StatusWarning, "No internal/backend network found"
		c.Details = "Configure internal network in docker-compose.yml"
		return c
	}

	inspect, _ := remote(ctx, r, "docker network inspect "+fields[0]+" 2>/dev/null | grep -i internal")
	if strings.Contains(strings.ToLower(inspect), "true") {
		c.Status, c.Message = StatusPass, "Internal network configured for backend services"
	} else {
		c.Status, c.Message = StatusWarning, "Backend network exists but not marked as internal"
		c.Details = "Add 'internal: true' to backend network in docker-compose.yml"
	}
	return c
}

func checkUnattendedUpgrades(ctx context.Context, r osutil.Runner) ComplianceCheck {
	c := ComplianceCheck{Control: "ISO A.12.6", Name: "Automatic Security Updates"}
	out, _ := remote(ctx, r, "systemctl is-enabled unattended-upgrades 2>/dev/null")
	if strings.TrimSpace(out) == "enabled" {
		c.Status, c.Message = StatusPass, "Unattended-upgrades enabled"
	} else {
		c.Status, c.Message = StatusFail, "Unattended-upgrades not enabled"
		c.Details = "Run 'systemctl enable --now unattended-upgrades'"
	}
	return c
}

// QuickCheck is a pass/fail control used after deploys
type QuickCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
}

// QuickCompliance runs the short post-deploy control set
func QuickCompliance(ctx context.Context, r osutil.Runner) []QuickCheck {
	_, ufw := remote(ctx, r, "ufw status | grep -q 'Status: active'")
	fail2ban, _ := remote(ctx, r, "systemctl is-active fail2ban")
	auditd, _ := remote(ctx, r, "systemctl is-active auditd")
	_, sshd := remote(ctx, r, "sshd -T 2>/dev/null | grep -q 'passwordauthentication no'")

	return []QuickCheck{
		{Name: "ufw_active", Passed: ufw == 0},
		{Name: "fail2ban_active", Passed: isActive(fail2ban)},
		{Name: "auditd_active", Passed: isActive(auditd)},
		{Name: "ssh_hardened", Passed: sshd == 0},
	}
}
