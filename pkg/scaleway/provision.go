package scaleway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/claudine-dev/claudine/pkg/logger"
	"github.com/claudine-dev/claudine/pkg/osutil"
	"github.com/pkg/errors"
)

// ErrComplianceFailed is returned when static checks block provisioning
var ErrComplianceFailed = errors.New("compliance validation failed, fix the issues above before provisioning")

// ErrAborted is returned when the user declines a confirmation
var ErrAborted = errors.New("aborted")

// ProvisionOptions controls a terraform run
type ProvisionOptions struct {
	Dir            string
	Env            string
	AutoApprove    bool
	PlanOnly       bool
	SkipValidation bool

	// Confirm is asked before apply unless AutoApprove is set
	Confirm func(question string) bool
	Stdout  io.Writer
	Stderr  io.Writer
}

// Output is one terraform output value
type Output struct {
	Name  string
	Value string
}

// ProvisionResult summarizes a provisioning run
type ProvisionResult struct {
	Checks  []TFCheck
	Applied bool
	Outputs []Output
}

// Provisioner drives the terraform binary
type Provisioner struct {
	runner osutil.Runner
}

// NewProvisioner creates a Provisioner
func NewProvisioner(r osutil.Runner) *Provisioner {
	return &Provisioner{runner: r}
}

func (p *Provisioner) terraform(ctx context.Context, opts ProvisionOptions, args ...string) (osutil.Result, error) {
	cmd := osutil.Cmd("terraform", args...).InDir(opts.Dir)
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr
	logger.G(ctx).WithField("cmd", cmd.String()).Debug("running terraform")
	res, err := p.runner.Run(ctx, cmd)
	return res, errors.Wrapf(err, "%s failed", cmd.String())
}

// Provision validates, plans and applies the configuration in opts.Dir
func (p *Provisioner) Provision(ctx context.Context, opts ProvisionOptions) (*ProvisionResult, error) {
	if err := ValidateEnv(opts.Env); err != nil {
		return nil, err
	}
	result := &ProvisionResult{}

	if !opts.SkipValidation {
		checks, err := CheckTerraform(opts.Dir, opts.Env)
		if err != nil {
			return nil, err
		}
		result.Checks = checks
		if !AllPassed(checks) {
			return result, ErrComplianceFailed
		}
	} else {
		logger.G(ctx).Warn("compliance validation skipped")
	}

	if _, err := p.terraform(ctx, opts, "init"); err != nil {
		return result, err
	}

	if _, err := p.terraform(ctx, opts, "workspace", "select", opts.Env); err != nil {
		logger.G(ctx).WithField("workspace", opts.Env).Info("creating terraform workspace")
		if _, err := p.terraform(ctx, opts, "workspace", "new", opts.Env); err != nil {
			return result, err
		}
	}

	plan := []string{"plan", "-out=tfplan"}
	if path, ok := VarsFile(opts.Dir, opts.Env); ok && filepath.Base(path) == opts.Env+".tfvars" {
		// terraform runs inside Dir, so the path is relative to it
		plan = append(plan, "-var-file", filepath.Base(path))
	}
	if _, err := p.terraform(ctx, opts, plan...); err != nil {
		return result, err
	}

	if opts.PlanOnly {
		return result, nil
	}

	if !opts.AutoApprove && (opts.Confirm == nil || !opts.Confirm("Do you want to apply these changes?")) {
		return result, ErrAborted
	}

	if _, err := p.terraform(ctx, opts, "apply", "tfplan"); err != nil {
		return result, err
	}
	result.Applied = true

	quiet := opts
	quiet.Stdout, quiet.Stderr = nil, nil
	res, err := p.terraform(ctx, quiet, "output", "-json")
	if err != nil {
		return result, err
	}
	outputs, err := ParseOutputs([]byte(res.Stdout))
	if err != nil {
		return result, err
	}
	result.Outputs = outputs
	return result, nil
}

// ParseOutputs decodes `terraform output -json`, sorted by name
func ParseOutputs(data []byte) ([]Output, error) {
	var raw map[string]struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "failed to parse terraform outputs")
	}

	outputs := make([]Output, 0, len(raw))
	for name, v := range raw {
		var s string
		if err := json.Unmarshal(v.Value, &s); err == nil {
			outputs = append(outputs, Output{Name: name, Value: s})
			continue
		}
		var val interface{}
		if err := json.Unmarshal(v.Value, &val); err != nil {
			return nil, errors.Wrapf(err, "invalid value for output %s", name)
		}
		switch val.(type) {
		case map[string]interface{}, []interface{}:
			pretty, _ := json.MarshalIndent(val, "", "  ")
			outputs = append(outputs, Output{Name: name, Value: string(pretty)})
		default:
			outputs = append(outputs, Output{Name: name, Value: fmt.Sprint(val)})
		}
	}
	sort.Slice(outputs, func(i, j int) bool { return outputs[i].Name < outputs[j].Name })
	return outputs, nil
}
