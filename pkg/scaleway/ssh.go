package scaleway

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alessio/shellescape"
	"github.com/claudine-dev/claudine/pkg/logger"
	"github.com/claudine-dev/claudine/pkg/osutil"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
)

const sessionDrainTimeout = 5 * time.Second

// SSHConfig describes how to reach a server
type SSHConfig struct {
	Host    string
	Port    int
	User    string
	KeyPath string
	Timeout time.Duration
}

// KeyCandidates lists private keys to try, in order, when none is given
func KeyCandidates(cacheDir string) []string {
	home, _ := os.UserHomeDir()
	return []string{
		filepath.Join(cacheDir, "id_ed25519"),
		filepath.Join(home, ".ssh", "id_ed25519"),
		filepath.Join(home, ".ssh", "id_rsa"),
	}
}

// FindKey returns the first existing key among candidates
func FindKey(candidates []string) (string, bool) {
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, true
		}
	}
	return "", false
}

// SSHRunner runs commands on a remote host. It implements osutil.Runner
// on top of the remote shell, see RemoteLine.
type SSHRunner struct {
	client *ssh.Client
	host   string
}

// DialSSH connects to the host with public key authentication
func DialSSH(ctx context.Context, cfg SSHConfig) (*SSHRunner, error) {
	if cfg.KeyPath == "" {
		return nil, errors.New("no SSH private key found")
	}
	keyData, err := os.ReadFile(cfg.KeyPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read SSH key %s", cfg.KeyPath)
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse SSH key %s", cfg.KeyPath)
	}

	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	clientConfig := &ssh.ClientConfig{
		User: cfg.User,
		Auth: []ssh.AuthMethod{ssh.PublicKeys(signer)},
		// Servers are provisioned on demand, their host keys are never known ahead of time
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         cfg.Timeout,
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	dialer := net.Dialer{Timeout: cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", addr)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "SSH handshake with %s failed", addr)
	}

	logger.G(ctx).WithField("host", cfg.Host).WithField("user", cfg.User).Debug("SSH connection established")
	return &SSHRunner{client: ssh.NewClient(c, chans, reqs), host: cfg.Host}, nil
}

// Host returns the remote host name
func (r *SSHRunner) Host() string {
	return r.host
}

// Close closes the connection
func (r *SSHRunner) Close() error {
	return r.client.Close()
}

// RemoteLine renders c as a shell command line, honouring Dir and Env.
// A command without arguments is a shell script and is passed verbatim;
// otherwise the name and every argument are quoted.
func RemoteLine(c osutil.Command) string {
	var b strings.Builder
	if c.Dir != "" {
		b.WriteString("cd " + shellescape.Quote(c.Dir) + " && ")
	}
	for _, e := range c.Env {
		if k, v, ok := strings.Cut(e, "="); ok {
			e = k + "=" + shellescape.Quote(v)
		}
		b.WriteString(e + " ")
	}
	if len(c.Args) == 0 {
		b.WriteString(c.Name)
	} else {
		b.WriteString(shellescape.QuoteCommand(append([]string{c.Name}, c.Args...)))
	}
	return b.String()
}

// Run executes the command in a new session
func (r *SSHRunner) Run(ctx context.Context, c osutil.Command) (osutil.Result, error) {
	sess, err := r.client.NewSession()
	if err != nil {
		return osutil.Result{ExitCode: -1}, errors.Wrap(err, "failed to open SSH session")
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	if c.Stdout != nil {
		sess.Stdout = c.Stdout
	}
	sess.Stderr = &stderr
	if c.Stderr != nil {
		sess.Stderr = c.Stderr
	}
	sess.Stdin = c.Stdin

	line := RemoteLine(c)
	done := make(chan error, 1)
	go func() { done <- sess.Run(line) }()

	select {
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGTERM)
		_ = sess.Close()
		interrupted := errors.Wrapf(ctx.Err(), "%s was interrupted", line)
		// The buffers are written until the session goroutine returns
		select {
		case <-done:
		case <-time.After(sessionDrainTimeout):
			return osutil.Result{ExitCode: -1}, interrupted
		}
		return osutil.Result{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: -1}, interrupted
	case err = <-done:
	}

	result := osutil.Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return result, nil
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitStatus()
		return result, &osutil.ExitError{Command: line, Code: result.ExitCode, Stderr: result.Stderr}
	}
	result.ExitCode = -1
	return result, errors.Wrapf(err, "failed to run %s on %s", line, r.host)
}

// KeyPair is an OpenSSH formatted key pair
type KeyPair struct {
	PrivateKey string
	PublicKey  string
}

// GenerateKeyPair creates an ed25519 key pair in OpenSSH format
func GenerateKeyPair(comment string) (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate ed25519 key")
	}

	block, err := ssh.MarshalPrivateKey(priv, comment)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal private key")
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, errors.Wrap(err, "failed to convert public key")
	}
	authorized := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub)))
	if comment != "" {
		authorized += " " + comment
	}

	return &KeyPair{
		PrivateKey: string(pem.EncodeToMemory(block)),
		PublicKey:  authorized,
	}, nil
}

// Save writes the pair as id_ed25519 and id_ed25519.pub under dir
func (k *KeyPair) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", errors.Wrap(err, "failed to create key directory")
	}
	path := filepath.Join(dir, "id_ed25519")
	if err := os.WriteFile(path, []byte(k.PrivateKey), 0o600); err != nil {
		return "", errors.Wrap(err, "failed to write private key")
	}
	if err := os.WriteFile(path+".pub", []byte(k.PublicKey+"\n"), 0o644); err != nil {
		return "", errors.Wrap(err, "failed to write public key")
	}
	return path, nil
}
