package scaleway

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/claudine-dev/claudine/pkg/logger"
	"github.com/claudine-dev/claudine/pkg/secrets"
	"github.com/pkg/errors"
)

// GitHub secrets written by setup
const (
	SecretAccessKey  = "SCW_ACCESS_KEY"
	SecretSecretKey  = "SCW_SECRET_KEY"
	SecretProjectID  = "SCW_PROJECT_ID"
	SecretPrivateKey = "SCW_SSH_PRIVATE_KEY"
	SecretPublicKey  = "SCW_SSH_PUBLIC_KEY"
	SecretServerIP   = "SCW_SERVER_IP"
)

// SetupSecrets are the secrets a completed setup leaves behind
var SetupSecrets = []string{
	SecretAccessKey, SecretSecretKey, SecretProjectID,
	SecretPrivateKey, SecretPublicKey, SecretServerIP,
}

// Credentials are the Scaleway API credentials
type Credentials struct {
	AccessKey string
	SecretKey string
	ProjectID string
}

// Complete reports whether every credential is set
func (c Credentials) Complete() bool {
	return c.AccessKey != "" && c.SecretKey != "" && c.ProjectID != ""
}

// Prompter asks the user for a missing value
type Prompter func(label string, secret bool) (string, error)

type credentialField struct {
	secret string
	label  string
	hidden bool
	value  *string
}

func (c *Credentials) fields() []credentialField {
	return []credentialField{
		{SecretAccessKey, "Access Key", false, &c.AccessKey},
		{SecretSecretKey, "Secret Key", true, &c.SecretKey},
		{SecretProjectID, "Project ID", false, &c.ProjectID},
	}
}

func ask(prompt Prompter, f credentialField) error {
	if *f.value != "" {
		return nil
	}
	if prompt == nil {
		return errors.Errorf("%s is required", f.label)
	}
	v, err := prompt(f.label, f.hidden)
	if err != nil {
		return err
	}
	if v == "" {
		return errors.Errorf("%s is required", f.label)
	}
	*f.value = v
	return nil
}

// Fill prompts for every empty credential
func (c *Credentials) Fill(prompt Prompter) error {
	for _, f := range c.fields() {
		if err := ask(prompt, f); err != nil {
			return err
		}
	}
	return nil
}

// SetupOptions configures a setup run
type SetupOptions struct {
	Repo      string
	Creds     Credentials
	Prompt    Prompter
	CacheDir  string
	CloudInit string
}

// SetupResult reports what setup did
type SetupResult struct {
	Stored       []string
	KeyGenerated bool
	ServerIP     string
}

// APIFactory builds an API client for a set of credentials
type APIFactory func(creds Credentials) (*APIClient, error)

// Setup stores credentials in GitHub and provisions the server once
type Setup struct {
	store  secrets.Store
	newAPI APIFactory
	now    func() time.Time
}

// NewSetup creates a Setup
func NewSetup(store secrets.Store, newAPI APIFactory) *Setup {
	return &Setup{store: store, newAPI: newAPI, now: time.Now}
}

// Status checks which setup secrets already exist
func (s *Setup) Status(ctx context.Context, repo string) (*secrets.Report, error) {
	return secrets.Check(ctx, s.store, repo, SetupSecrets)
}

// Run stores missing credentials, generates the deploy key pair and
// provisions the server unless SCW_SERVER_IP is already recorded
func (s *Setup) Run(ctx context.Context, opts SetupOptions) (*SetupResult, error) {
	report, err := s.Status(ctx, opts.Repo)
	if err != nil {
		return nil, err
	}
	missing := make(map[string]bool, len(report.Missing))
	for _, name := range report.Missing {
		missing[name] = true
	}

	result := &SetupResult{}
	store := func(name, value string) error {
		if err := s.store.Set(ctx, opts.Repo, name, value); err != nil {
			return err
		}
		result.Stored = append(result.Stored, name)
		return nil
	}

	creds := opts.Creds
	for _, f := range creds.fields() {
		if !missing[f.secret] {
			continue
		}
		if err := ask(opts.Prompt, f); err != nil {
			return result, err
		}
		if err := store(f.secret, *f.value); err != nil {
			return result, err
		}
	}

	var publicKey string
	if missing[SecretPrivateKey] || missing[SecretPublicKey] {
		if publicKey, err = s.generateKey(ctx, opts, store); err != nil {
			return result, err
		}
		result.KeyGenerated = true
	}

	if !missing[SecretServerIP] {
		return result, nil
	}

	// Secrets cannot be read back, so provisioning needs the credentials again
	if err := creds.Fill(opts.Prompt); err != nil {
		return result, err
	}
	if publicKey == "" {
		if data, err := os.ReadFile(filepath.Join(opts.CacheDir, "id_ed25519.pub")); err == nil {
			publicKey = strings.TrimSpace(string(data))
		} else {
			if publicKey, err = s.generateKey(ctx, opts, store); err != nil {
				return result, err
			}
			result.KeyGenerated = true
		}
	}

	ip, err := s.Provision(ctx, creds, publicKey, opts.CloudInit)
	if err != nil {
		return result, err
	}
	if err := store(SecretServerIP, ip); err != nil {
		return result, err
	}
	if err := WriteServerIP(opts.CacheDir, ip); err != nil {
		return result, err
	}
	result.ServerIP = ip
	return result, nil
}

func (s *Setup) generateKey(ctx context.Context, opts SetupOptions, store func(string, string) error) (string, error) {
	logger.G(ctx).Info("generating SSH keys")
	pair, err := GenerateKeyPair("")
	if err != nil {
		return "", err
	}
	if err := store(SecretPrivateKey, pair.PrivateKey); err != nil {
		return "", err
	}
	if err := store(SecretPublicKey, pair.PublicKey); err != nil {
		return "", err
	}
	if opts.CacheDir != "" {
		if _, err := pair.Save(opts.CacheDir); err != nil {
			return "", err
		}
	}
	return pair.PublicKey, nil
}

// Provision creates the SSH key, IP and server (with the IP attached)
// through the API, then powers the server on and returns its public address
func (s *Setup) Provision(ctx context.Context, creds Credentials, publicKey, cloudInit string) (string, error) {
	api, err := s.newAPI(creds)
	if err != nil {
		return "", err
	}
	log := logger.G(ctx).WithField("zone", api.Zone())

	keyName := fmt.Sprintf("claude-deploy-%d", s.now().Unix())
	if err := api.CreateSSHKey(ctx, keyName, publicKey, creds.ProjectID); err != nil {
		log.WithError(err).Warn("failed to register SSH key")
	}

	ip, err := api.CreateIP(ctx, creds.ProjectID)
	if err != nil {
		return "", err
	}

	spec := DefaultServerSpec(creds.ProjectID)
	spec.PublicIP = ip.ID
	server, err := api.CreateServer(ctx, spec)
	if err != nil {
		return "", err
	}
	log = log.WithField("server", server.ID)

	if cloudInit != "" {
		if err := api.SetCloudInit(ctx, server.ID, cloudInit); err != nil {
			return "", errors.Wrap(err, "failed to set cloud-init user data")
		}
	}
	if err := api.ServerAction(ctx, server.ID, "poweron"); err != nil {
		return "", errors.Wrap(err, "failed to power on server")
	}

	log.WithField("ip", ip.Address).Info("server created")
	return ip.Address, nil
}
