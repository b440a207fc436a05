package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/ljbeal/MCP-remotemanager/config"
)

// Runner executes one shell command line on a host
type Runner interface {
	Run(ctx context.Context, command string, stdin io.Reader) (string, error)
}

// CommandError is a command that ran and exited non-zero.
// It is never retried as a connection failure.
type CommandError struct {
	ExitCode int
	Output   string
}

func (e *CommandError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("command exited with status %d", e.ExitCode)
	}
	return fmt.Sprintf("command exited with status %d: %s", e.ExitCode, out)
}

// LocalRunner runs commands through sh on this machine
type LocalRunner struct {
	Dir string
}

func (r LocalRunner) Run(ctx context.Context, command string, stdin io.Reader) (string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = r.Dir
	cmd.WaitDelay = time.Second
	if stdin != nil {
		cmd.Stdin = stdin
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if err == nil {
		return out.String(), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return out.String(), ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return out.String(), &CommandError{ExitCode: exitErr.ExitCode(), Output: out.String()}
	}
	return out.String(), err
}

// SSHRunner runs commands over a fresh SSH connection per call
type SSHRunner struct {
	Host                        string
	Port                        string
	User                        string
	KeyPath                     string
	Passphrase                  []byte
	KnownHostsPath              string
	InsecureSkipHostKeyChecking bool
}

func (r SSHRunner) Run(ctx context.Context, command string, stdin io.Reader) (string, error) {
	client, err := r.dial(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	// closing the client unblocks session.Run when ctx ends first
	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	session, err := client.NewSession()
	if err != nil {
		return "", err
	}
	defer session.Close()

	var out bytes.Buffer
	session.Stdout = &out
	session.Stderr = &out
	if stdin != nil {
		session.Stdin = stdin
	}

	err = session.Run(command)
	if err == nil {
		return out.String(), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return out.String(), ctxErr
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return out.String(), &CommandError{ExitCode: exitErr.ExitStatus(), Output: out.String()}
	}
	return out.String(), err
}

func (r SSHRunner) dial(ctx context.Context) (*ssh.Client, error) {
	address, err := r.address()
	if err != nil {
		return nil, err
	}

	cfg, err := r.clientConfig()
	if err != nil {
		return nil, err
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, address, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetDeadline(time.Time{})

	return ssh.NewClient(clientConn, chans, reqs), nil
}

func (r SSHRunner) address() (string, error) {
	host := strings.TrimSpace(r.Host)
	if host == "" {
		return "", fmt.Errorf("ssh host is required")
	}

	if r.Port != "" {
		return net.JoinHostPort(host, r.Port), nil
	}

	if _, _, err := net.SplitHostPort(host); err == nil {
		return host, nil
	}

	return net.JoinHostPort(host, "22"), nil
}

func (r SSHRunner) clientConfig() (*ssh.ClientConfig, error) {
	if r.User == "" {
		return nil, fmt.Errorf("ssh user is required")
	}

	signer, err := r.signer()
	if err != nil {
		return nil, err
	}

	var hostKeyCallback ssh.HostKeyCallback
	if r.InsecureSkipHostKeyChecking {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	} else {
		callback, err := r.knownHostsCallback()
		if err != nil {
			return nil, err
		}
		hostKeyCallback = callback
	}

	return &ssh.ClientConfig{
		User:            r.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
	}, nil
}

func (r SSHRunner) signer() (ssh.Signer, error) {
	path := r.KeyPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("ssh key path not set and home dir unavailable")
		}
		path = filepath.Join(home, ".ssh", "id_ed25519")
	}

	privateKey, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if len(r.Passphrase) > 0 {
		return ssh.ParsePrivateKeyWithPassphrase(privateKey, r.Passphrase)
	}

	return ssh.ParsePrivateKey(privateKey)
}

func (r SSHRunner) knownHostsCallback() (ssh.HostKeyCallback, error) {
	path := strings.TrimSpace(r.KnownHostsPath)
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("known hosts path not set and home dir unavailable")
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}

	return knownhosts.New(path)
}

// Connection is a handle on one host. Every Cmd opens a transient session.
type Connection struct {
	Host   string
	runner Runner
	log    zerolog.Logger
}

// Cmd runs command on the host. Each attempt gets its own timeout; attempts that fail
// to connect or time out are retried up to maxAttempts, a non-zero exit is returned
// immediately. Exhausted attempts are reported as a ConnectivityError.
func (c *Connection) Cmd(ctx context.Context, command string, stdin []byte, timeout time.Duration, maxAttempts int) (string, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		var in io.Reader
		if stdin != nil {
			in = bytes.NewReader(stdin)
		}
		out, err := c.runner.Run(attemptCtx, command, in)
		cancel()
		if err == nil {
			return out, nil
		}

		var cmdErr *CommandError
		if errors.As(err, &cmdErr) {
			return out, err
		}

		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("timed out after %s", timeout)
		}
		lastErr = err
		c.log.Debug().
			Str("host", c.Host).
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Err(err).
			Msg("command attempt failed")
	}

	return "", &ConnectivityError{
		Host: c.Host,
		Err:  fmt.Errorf("%s: %w", c.Host, lastErr),
	}
}

// Connector opens connections to hosts named by callers
type Connector struct {
	cfg config.SSHConfig
	log zerolog.Logger
}

func NewConnector(cfg config.SSHConfig, logger zerolog.Logger) *Connector {
	return &Connector{cfg: cfg, log: logger}
}

// Open returns a connection for hostname, which may be "host", "user@host" or "user@host:port".
// Hosts listed as local run through sh on this machine.
func (c *Connector) Open(hostname string) (*Connection, error) {
	hostname = strings.TrimSpace(hostname)
	if hostname == "" {
		return nil, fmt.Errorf("hostname is required")
	}

	user, host := splitUserHost(hostname)
	if c.isLocal(host) {
		home, _ := os.UserHomeDir()
		return &Connection{Host: hostname, runner: LocalRunner{Dir: home}, log: c.log}, nil
	}

	if user == "" {
		user = c.cfg.User
	}
	if user == "" {
		user = os.Getenv("USER")
	}

	runner := SSHRunner{
		Host:                        host,
		User:                        user,
		KeyPath:                     c.cfg.KeyPath,
		KnownHostsPath:              c.cfg.KnownHostsPath,
		InsecureSkipHostKeyChecking: c.cfg.InsecureSkipHostKeyChecking,
	}
	if _, _, err := net.SplitHostPort(host); err != nil {
		runner.Port = c.cfg.Port
	}
	return &Connection{Host: hostname, runner: runner, log: c.log}, nil
}

func (c *Connector) isLocal(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	for _, local := range c.cfg.LocalHosts {
		if strings.EqualFold(local, host) {
			return true
		}
	}
	return false
}

func splitUserHost(hostname string) (string, string) {
	if i := strings.LastIndex(hostname, "@"); i >= 0 {
		return hostname[:i], hostname[i+1:]
	}
	return "", hostname
}

func shellEscape(value string) string {
	if value == "" {
		return "''"
	}

	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}
