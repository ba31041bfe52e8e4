// Package scaleway provisions, deploys to and audits a single compliant
// Scaleway VPS: static Terraform checks, terraform runs, remote compliance
// checks over SSH, container deploys and rollbacks, and the one-time setup
// that stores credentials as GitHub secrets.
package scaleway

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ServerIPFile is the cache file holding the provisioned server address
const ServerIPFile = "server_ip"

// Environments accepted by provision, compliance and rollback
var Environments = []string{"staging", "production"}

// ValidateEnv rejects environments other than staging and production
func ValidateEnv(env string) error {
	for _, e := range Environments {
		if e == env {
			return nil
		}
	}
	return errors.Errorf("invalid environment %q, expected one of %s", env, strings.Join(Environments, ", "))
}

// ReadServerIP returns the cached server address
func ReadServerIP(cacheDir string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(cacheDir, ServerIPFile))
	if err != nil {
		return "", false
	}
	ip := strings.TrimSpace(string(data))
	return ip, ip != ""
}

// WriteServerIP caches the server address
func WriteServerIP(cacheDir, ip string) error {
	if err := os.MkdirAll(cacheDir, 0o700); err != nil {
		return errors.Wrap(err, "failed to create cache directory")
	}
	return errors.Wrap(os.WriteFile(filepath.Join(cacheDir, ServerIPFile), []byte(ip+"\n"), 0o600), "failed to cache server IP")
}

// ResolveHost picks the explicit host or falls back to the cached IP
func ResolveHost(host, cacheDir string) (string, error) {
	if host != "" {
		return host, nil
	}
	if ip, ok := ReadServerIP(cacheDir); ok {
		return ip, nil
	}
	return "", errors.New("server IP not found, run setup first or pass --host")
}
