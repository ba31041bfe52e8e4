package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/claudine-dev/claudine/pkg/presenter"
	"github.com/claudine-dev/claudine/pkg/scaleway"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type ComplianceConfig struct {
	Env    string
	Checks []string
	JSON   bool
}

func NewComplianceConfig() *ComplianceConfig {
	return &ComplianceConfig{
		Env:    "staging",
		Checks: nil,
		JSON:   false,
	}
}

type HealthConfig struct {
	Port           int
	Path           string
	Timeout        time.Duration
	Retries        int
	Interval       time.Duration
	ExpectedStatus int
	Wait           time.Duration
	Continuous     bool
	MaxWait        time.Duration
	JSON           bool
}

func NewHealthConfig() *HealthConfig {
	d := scaleway.DefaultHealthOptions("")
	return &HealthConfig{
		Port:           d.Port,
		Path:           d.Path,
		Timeout:        d.Timeout,
		Retries:        d.Retries,
		Interval:       d.Interval,
		ExpectedStatus: d.ExpectedStatus,
		Wait:           0,
		Continuous:     false,
		MaxWait:        d.MaxWait,
		JSON:           false,
	}
}

type StatusConfig struct {
	Port int
	JSON bool
}

func NewStatusConfig() *StatusConfig {
	return &StatusConfig{
		Port: 8000,
		JSON: false,
	}
}

type VerifyConfig struct {
	Port           int
	Path           string
	MaxWait        time.Duration
	SkipCompliance bool
}

func NewVerifyConfig() *VerifyConfig {
	return &VerifyConfig{
		Port:           8000,
		Path:           "/health",
		MaxWait:        300 * time.Second,
		SkipCompliance: false,
	}
}

var scwComplianceCmd = &cobra.Command{
	Use:   "compliance",
	Short: "Check the server against the security controls",
	Long: fmt.Sprintf(`Run the compliance checks on the server over SSH. Every check reports pass,
warning, fail or error; the command exits 1 on any fail or error.

Checks: %s

Examples:
  claudine scw compliance --env production
  claudine scw compliance --check ssh,firewall --json`, strings.Join(scaleway.CheckNames(), ", ")),
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		cfg := loadConfig()
		scw := getScwConfigFromFlags(cmd)
		config := getComplianceConfigFromFlags(cmd)

		if err := scaleway.ValidateEnv(config.Env); err != nil {
			presenter.Error(err, "")
			os.Exit(1)
		}

		host := scwHost(scw, cfg)
		remote, closeRemote := dialOrExit(ctx, sshDialer(scw, cfg), host)
		defer closeRemote()

		results, err := scaleway.RunCompliance(ctx, remote, config.Checks)
		if err != nil {
			presenter.Error(err, "")
			os.Exit(1)
		}

		if config.JSON {
			data, _ := json.MarshalIndent(map[string]any{
				"environment": config.Env,
				"host":        host,
				"checks":      results,
				"passed":      scaleway.CompliancePassed(results),
			}, "", "  ")
			fmt.Println(string(data))
		} else {
			printCompliance(config.Env, host, results)
		}

		if !scaleway.CompliancePassed(results) {
			os.Exit(1)
		}
	},
}

var scwHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the application's health endpoint",
	Long: `Request the health endpoint until it answers with the expected status, retrying
--retries times. With --continuous keep polling until it is healthy or --max-wait
elapses. Exits 1 when the app is not healthy.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		scw := getScwConfigFromFlags(cmd)
		config := getHealthConfigFromFlags(cmd)

		opts := config.options(scwHost(scw, loadConfig()))
		result, err := scaleway.NewHealthChecker(nil).Check(ctx, opts)

		if config.JSON {
			data, _ := json.MarshalIndent(result, "", "  ")
			fmt.Println(string(data))
		} else {
			printHealth(result)
		}

		if err != nil || !result.Healthy() {
			os.Exit(1)
		}
	},
}

var scwStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the server, SSH, docker and the app are up",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		cfg := loadConfig()
		scw := getScwConfigFromFlags(cmd)
		config := getStatusConfigFromFlags(cmd)

		host := scwHost(scw, cfg)
		checker := scaleway.NewStatusChecker(runner, sshDialer(scw, cfg), scaleway.NewHealthChecker(nil))
		report := checker.Check(ctx, host, config.Port)

		if config.JSON {
			data, _ := json.MarshalIndent(report, "", "  ")
			fmt.Println(string(data))
		} else {
			presenter.Section("Server " + host)
			presenter.Check(report.ServerReachable, "Server reachable")
			presenter.Check(report.SSHAccess, "SSH access")
			presenter.Check(report.DockerRunning, "Docker containers running")
			for _, c := range report.Containers {
				presenter.Info("    " + c)
			}
			presenter.Check(report.AppHealthy, "Application healthy")
		}

		if !report.OK() {
			os.Exit(1)
		}
	},
}

var scwLogsCmd = &cobra.Command{
	Use:   "logs [service]",
	Short: "Show the application's container logs",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()
		scw := getScwConfigFromFlags(cmd)
		opts := getLogsOptionsFromFlags(cmd)
		if len(args) == 1 {
			opts.Service = args[0]
		}

		remote, closeRemote := dialOrExit(ctx, sshDialer(scw, cfg), scwHost(scw, cfg))
		defer closeRemote()

		if err := scaleway.StreamLogs(ctx, remote, opts, os.Stdout, os.Stderr); err != nil && ctx.Err() == nil {
			presenter.Error(err, "Failed to read logs")
			closeRemote()
			os.Exit(1)
		}
	},
}

var scwVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a fresh deployment",
	Long: `Post-deploy verification: wait for the app to become healthy, then run the quick
compliance checks (firewall, fail2ban, auditd, SSH hardening). Failed compliance
checks are reported as warnings; an unhealthy app exits 1.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		cfg := loadConfig()
		scw := getScwConfigFromFlags(cmd)
		config := getVerifyConfigFromFlags(cmd)

		host := scwHost(scw, cfg)
		health := scaleway.DefaultHealthOptions(host)
		health.Port = config.Port
		health.Path = config.Path
		health.MaxWait = config.MaxWait

		result := scaleway.Verify(ctx, scaleway.NewHealthChecker(nil), sshDialer(scw, cfg), scaleway.VerifyOptions{
			Health:         health,
			SkipCompliance: config.SkipCompliance,
		})

		printHealth(result.Health)
		if result.ComplianceErr != nil {
			presenter.Warning("Compliance checks skipped: " + result.ComplianceErr.Error())
		}
		if len(result.Checks) > 0 {
			presenter.Section("Quick compliance")
			for _, c := range result.Checks {
				presenter.Check(c.Passed, c.Name)
			}
		}

		if !result.Healthy {
			os.Exit(1)
		}
		if !result.Passed() {
			presenter.Warning("Deployment is healthy but some compliance checks failed")
			return
		}
		presenter.Success("Deployment verified")
	},
}

func init() {
	complianceDefaults := NewComplianceConfig()
	scwComplianceCmd.Flags().StringP("env", "e", complianceDefaults.Env, "Environment (staging or production)")
	scwComplianceCmd.Flags().StringSlice("check", complianceDefaults.Checks, "Only run these checks")
	scwComplianceCmd.Flags().Bool("json", complianceDefaults.JSON, "Print the results as JSON")

	healthDefaults := NewHealthConfig()
	scwHealthCmd.Flags().IntP("port", "p", healthDefaults.Port, "Application port")
	scwHealthCmd.Flags().String("path", healthDefaults.Path, "Health endpoint path")
	scwHealthCmd.Flags().Duration("timeout", healthDefaults.Timeout, "Timeout of each request")
	scwHealthCmd.Flags().Int("retries", healthDefaults.Retries, "Attempts before giving up")
	scwHealthCmd.Flags().Duration("interval", healthDefaults.Interval, "Delay between attempts")
	scwHealthCmd.Flags().Int("expected-status", healthDefaults.ExpectedStatus, "Expected HTTP status code")
	scwHealthCmd.Flags().Duration("wait", healthDefaults.Wait, "Delay before the first request")
	scwHealthCmd.Flags().Bool("continuous", healthDefaults.Continuous, "Poll until healthy or --max-wait elapses")
	scwHealthCmd.Flags().Duration("max-wait", healthDefaults.MaxWait, "Longest time to poll in continuous mode")
	scwHealthCmd.Flags().Bool("json", healthDefaults.JSON, "Print the result as JSON")

	statusDefaults := NewStatusConfig()
	scwStatusCmd.Flags().IntP("port", "p", statusDefaults.Port, "Application port")
	scwStatusCmd.Flags().Bool("json", statusDefaults.JSON, "Print the report as JSON")

	scwLogsCmd.Flags().IntP("tail", "n", 100, "Number of lines to show")
	scwLogsCmd.Flags().String("since", "", "Show logs since a timestamp or duration (e.g. 10m)")
	scwLogsCmd.Flags().BoolP("follow", "f", false, "Follow the log output")

	verifyDefaults := NewVerifyConfig()
	scwVerifyCmd.Flags().IntP("port", "p", verifyDefaults.Port, "Application port")
	scwVerifyCmd.Flags().String("path", verifyDefaults.Path, "Health endpoint path")
	scwVerifyCmd.Flags().Duration("max-wait", verifyDefaults.MaxWait, "Longest time to wait for the app")
	scwVerifyCmd.Flags().Bool("skip-compliance", verifyDefaults.SkipCompliance, "Only check health")

	scwCmd.AddCommand(scwComplianceCmd, scwHealthCmd, scwStatusCmd, scwLogsCmd, scwVerifyCmd)
}

func getComplianceConfigFromFlags(cmd *cobra.Command) *ComplianceConfig {
	config := NewComplianceConfig()
	if env, err := cmd.Flags().GetString("env"); err == nil {
		config.Env = env
	}
	if checks, err := cmd.Flags().GetStringSlice("check"); err == nil {
		config.Checks = checks
	}
	if asJSON, err := cmd.Flags().GetBool("json"); err == nil {
		config.JSON = asJSON
	}
	return config
}

func getHealthConfigFromFlags(cmd *cobra.Command) *HealthConfig {
	config := NewHealthConfig()
	if port, err := cmd.Flags().GetInt("port"); err == nil {
		config.Port = port
	}
	if path, err := cmd.Flags().GetString("path"); err == nil {
		config.Path = path
	}
	if timeout, err := cmd.Flags().GetDuration("timeout"); err == nil {
		config.Timeout = timeout
	}
	if retries, err := cmd.Flags().GetInt("retries"); err == nil {
		config.Retries = retries
	}
	if interval, err := cmd.Flags().GetDuration("interval"); err == nil {
		config.Interval = interval
	}
	if status, err := cmd.Flags().GetInt("expected-status"); err == nil {
		config.ExpectedStatus = status
	}
	if wait, err := cmd.Flags().GetDuration("wait"); err == nil {
		config.Wait = wait
	}
	if continuous, err := cmd.Flags().GetBool("continuous"); err == nil {
		config.Continuous = continuous
	}
	if maxWait, err := cmd.Flags().GetDuration("max-wait"); err == nil {
		config.MaxWait = maxWait
	}
	if asJSON, err := cmd.Flags().GetBool("json"); err == nil {
		config.JSON = asJSON
	}
	return config
}

func (c *HealthConfig) options(host string) scaleway.HealthOptions {
	return scaleway.HealthOptions{
		Host:           host,
		Port:           c.Port,
		Path:           c.Path,
		Timeout:        c.Timeout,
		Retries:        c.Retries,
		Interval:       c.Interval,
		ExpectedStatus: c.ExpectedStatus,
		InitialWait:    c.Wait,
		Continuous:     c.Continuous,
		MaxWait:        c.MaxWait,
	}
}

func getStatusConfigFromFlags(cmd *cobra.Command) *StatusConfig {
	config := NewStatusConfig()
	if port, err := cmd.Flags().GetInt("port"); err == nil {
		config.Port = port
	}
	if asJSON, err := cmd.Flags().GetBool("json"); err == nil {
		config.JSON = asJSON
	}
	return config
}

func getLogsOptionsFromFlags(cmd *cobra.Command) scaleway.LogsOptions {
	var opts scaleway.LogsOptions
	if tail, err := cmd.Flags().GetInt("tail"); err == nil {
		opts.Tail = tail
	}
	if since, err := cmd.Flags().GetString("since"); err == nil {
		opts.Since = since
	}
	if follow, err := cmd.Flags().GetBool("follow"); err == nil {
		opts.Follow = follow
	}
	return opts
}

func getVerifyConfigFromFlags(cmd *cobra.Command) *VerifyConfig {
	config := NewVerifyConfig()
	if port, err := cmd.Flags().GetInt("port"); err == nil {
		config.Port = port
	}
	if path, err := cmd.Flags().GetString("path"); err == nil {
		config.Path = path
	}
	if maxWait, err := cmd.Flags().GetDuration("max-wait"); err == nil {
		config.MaxWait = maxWait
	}
	if skip, err := cmd.Flags().GetBool("skip-compliance"); err == nil {
		config.SkipCompliance = skip
	}
	return config
}

func printCompliance(env, host string, results []scaleway.ComplianceCheck) {
	presenter.Section(fmt.Sprintf("Compliance of %s (%s)", host, env))
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{r.Control, r.Name, strings.ToUpper(r.Status), r.Message})
	}
	presenter.Table("", []string{"CONTROL", "CHECK", "STATUS", "MESSAGE"}, rows)

	counts := map[string]int{}
	for _, r := range results {
		counts[r.Status]++
	}
	summary := fmt.Sprintf("%d passed, %d warnings, %d failed, %d errors",
		counts[scaleway.StatusPass], counts[scaleway.StatusWarning], counts[scaleway.StatusFail], counts[scaleway.StatusError])
	if scaleway.CompliancePassed(results) {
		presenter.Success(summary)
	} else {
		presenter.Warning(summary)
	}
}

func printHealth(result scaleway.HealthResult) {
	label := fmt.Sprintf("%s: %s", result.URL, result.Message)
	if result.ResponseMS > 0 {
		label += fmt.Sprintf(" (%dms)", result.ResponseMS)
	}
	if result.Healthy() {
		presenter.Success(label)
		return
	}
	presenter.Error(errors.Errorf("%s after %d attempt(s)", result.Status, result.Attempts), label)
}
