package scaleway

import (
	"context"
	"testing"

	"github.com/claudine-dev/claudine/pkg/osutil"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const outputsJSON = `{
  "instance_public_ip": {"sensitive": false, "type": "string", "value": "51.15.10.20"},
  "registry_endpoint": {"sensitive": false, "type": "string", "value": "rg.fr-par.scw.cloud/app"},
  "volume_size": {"sensitive": false, "type": "number", "value": 20},
  "tags": {"sensitive": false, "type": ["list", "string"], "value": ["a", "b"]}
}`

func compliantDir(t *testing.T) string {
	dir := t.TempDir()
	writeFile(t, dir, "main.tf", compliantTF)
	return dir
}

func TestProvision_Apply(t *testing.T) {
	dir := compliantDir(t)
	writeFile(t, dir, "production.tfvars", "log_retention_days = 365\n")
	r := osutil.NewFakeRunner().
		On("terraform output -json", osutil.Result{Stdout: outputsJSON})

	res, err := NewProvisioner(r).Provision(context.Background(), ProvisionOptions{
		Dir:         dir,
		Env:         "production",
		AutoApprove: true,
	})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.True(t, AllPassed(res.Checks))

	assert.Equal(t, []string{
		"terraform init",
		"terraform workspace select production",
		"terraform plan -out=tfplan -var-file production.tfvars",
		"terraform apply tfplan",
		"terraform output -json",
	}, r.Lines())
	for _, c := range r.Calls() {
		assert.Equal(t, dir, c.Dir)
	}

	require.Len(t, res.Outputs, 4)
	assert.Equal(t, Output{Name: "instance_public_ip", Value: "51.15.10.20"}, res.Outputs[0])
	assert.Equal(t, "tags", res.Outputs[2].Name)
	assert.Equal(t, "[\n  \"a\",\n  \"b\"\n]", res.Outputs[2].Value)
	assert.Equal(t, Output{Name: "volume_size", Value: "20"}, res.Outputs[3])
}

func TestProvision_CreatesWorkspace(t *testing.T) {
	r := osutil.NewFakeRunner().
		On("terraform workspace select", osutil.Result{ExitCode: 1, Stderr: "workspace doesn't exist"})

	res, err := NewProvisioner(r).Provision(context.Background(), ProvisionOptions{
		Dir:      compliantDir(t),
		Env:      "staging",
		PlanOnly: true,
	})
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.True(t, r.Ran("terraform workspace new staging"))
	assert.True(t, r.Ran("terraform plan -out=tfplan"))
	assert.False(t, r.Ran("terraform plan -out=tfplan -var-file"))
	assert.False(t, r.Ran("terraform apply"))
}

func TestProvision_ComplianceBlocks(t *testing.T) {
	dir := compliantDir(t)
	writeFile(t, dir, "staging.tfvars", "enable_firewall = false\n")
	r := osutil.NewFakeRunner()

	res, err := NewProvisioner(r).Provision(context.Background(), ProvisionOptions{Dir: dir, Env: "staging"})
	assert.ErrorIs(t, err, ErrComplianceFailed)
	assert.False(t, AllPassed(res.Checks))
	assert.Empty(t, r.Lines())
}

func TestProvision_SkipValidation(t *testing.T) {
	dir := t.TempDir()
	r := osutil.NewFakeRunner()

	_, err := NewProvisioner(r).Provision(context.Background(), ProvisionOptions{
		Dir:            dir,
		Env:            "staging",
		SkipValidation: true,
		PlanOnly:       true,
	})
	require.NoError(t, err)
	assert.True(t, r.Ran("terraform init"))
}

func TestProvision_ConfirmDeclined(t *testing.T) {
	r := osutil.NewFakeRunner()
	var asked string

	_, err := NewProvisioner(r).Provision(context.Background(), ProvisionOptions{
		Dir: compliantDir(t),
		Env: "staging",
		Confirm: func(q string) bool {
			asked = q
			return false
		},
	})
	assert.ErrorIs(t, err, ErrAborted)
	assert.NotEmpty(t, asked)
	assert.False(t, r.Ran("terraform apply"))
}

func TestProvision_InitFailure(t *testing.T) {
	r := osutil.NewFakeRunner().Fail("terraform init", errors.New("terraform not found"))

	_, err := NewProvisioner(r).Provision(context.Background(), ProvisionOptions{
		Dir:            t.TempDir(),
		Env:            "staging",
		SkipValidation: true,
	})
	assert.ErrorContains(t, err, "terraform init failed")
	assert.False(t, r.Ran("terraform plan"))
}

func TestProvision_InvalidEnv(t *testing.T) {
	_, err := NewProvisioner(osutil.NewFakeRunner()).Provision(context.Background(), ProvisionOptions{Env: "qa"})
	assert.ErrorContains(t, err, "invalid environment")
}

func TestParseOutputs_Invalid(t *testing.T) {
	_, err := ParseOutputs([]byte("not json"))
	assert.Error(t, err)

	outputs, err := ParseOutputs([]byte("{}"))
	require.NoError(t, err)
	assert.Empty(t, outputs)
}
