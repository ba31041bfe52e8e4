package scaleway

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// MinLogRetentionDays is the shortest acceptable log retention
const MinLogRetentionDays = 365

// TFCheck is one static compliance requirement
type TFCheck struct {
	Control     string `json:"control"`
	Requirement string `json:"requirement"`
	Passed      bool   `json:"passed"`
}

var (
	spaceRe        = regexp.MustCompile(`[ \t]+`)
	logRetentionRe = regexp.MustCompile(`(?m)^\s*log_retention_days\s*=\s*(\d+)`)
)

func normalize(s string) string {
	return spaceRe.ReplaceAllString(s, " ")
}

// CheckTerraformConfig inspects the .tf files of dir
func CheckTerraformConfig(dir string) ([]TFCheck, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.tf"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list terraform files")
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no .tf files found in %s", dir)
	}
	sort.Strings(files)

	var b strings.Builder
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", f)
		}
		b.Write(data)
		b.WriteByte('\n')
	}
	content := normalize(b.String())

	return []TFCheck{
		{"ISO A.8.2", "Encrypted volume resource defined", strings.Contains(content, "scaleway_instance_volume")},
		{"SOC2 CC6.6", "Security group with deny-by-default",
			strings.Contains(content, "scaleway_instance_security_group") &&
				strings.Contains(content, `inbound_default_policy = "drop"`)},
		{"SOC2 CC6.1", "SSH key resource defined", strings.Contains(content, "scaleway_iam_ssh_key")},
		{"ISO A.12.4", "Audit logs bucket defined",
			strings.Contains(content, "audit_logs") || strings.Contains(content, "audit-logs")},
	}, nil
}

// VarsFile returns the tfvars file used for env: <env>.tfvars, falling back
// to terraform.tfvars. ok is false when neither exists.
func VarsFile(dir, env string) (string, bool) {
	for _, name := range []string{env + ".tfvars", "terraform.tfvars"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

// CheckTerraformVars inspects the variables file for env. Without one the
// module defaults apply, and those are compliant.
func CheckTerraformVars(dir, env string) ([]TFCheck, error) {
	encrypted, firewall, retention := true, true, true

	if path, ok := VarsFile(dir, env); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", path)
		}
		content := normalize(string(data))

		if strings.Contains(content, "encrypted_volume") {
			encrypted = strings.Contains(content, "encrypted_volume = true")
		}
		if strings.Contains(content, "enable_firewall = false") {
			firewall = false
		}
		if m := logRetentionRe.FindStringSubmatch(content); m != nil {
			days, _ := strconv.Atoi(m[1])
			retention = days >= MinLogRetentionDays
		} else if strings.Contains(content, "log_retention_days") {
			retention = false
		}
	}

	return []TFCheck{
		{"ISO A.8.2", "Encrypted volume enabled in vars", encrypted},
		{"SOC2 CC6.6", "Firewall enabled in vars", firewall},
		{"ISO A.12.4", "Log retention >= 365 days", retention},
	}, nil
}

// CheckTerraform runs the config and variable checks together
func CheckTerraform(dir, env string) ([]TFCheck, error) {
	config, err := CheckTerraformConfig(dir)
	if err != nil {
		return nil, err
	}
	vars, err := CheckTerraformVars(dir, env)
	if err != nil {
		return nil, err
	}
	return append(config, vars...), nil
}

// AllPassed reports whether every check passed
func AllPassed(checks []TFCheck) bool {
	for _, c := range checks {
		if !c.Passed {
			return false
		}
	}
	return true
}
