package remote

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Transport runs commands and moves files on the remote host. Implementations
// must be safe for concurrent use by independent commands; callers that need
// ordering (the console session) serialize on top.
type Transport interface {
	// Run executes a command with optional stdin, bounded by timeout.
	Run(ctx context.Context, cmd string, stdin []byte, timeout time.Duration) (stdout, stderr []byte, exitCode int, err error)
	// CopyIn writes data to a file on the remote host.
	CopyIn(ctx context.Context, data []byte, remotePath string) error
	// CopyOut reads a file from the remote host.
	CopyOut(ctx context.Context, remotePath string) ([]byte, error)
	Close() error
}

// SSHOptions configures the SSH transport.
type SSHOptions struct {
	Host       string // host or host:port
	User       string
	KeyPath    string
	KnownHosts string // empty accepts any host key
	Timeout    time.Duration
}

// SSHTransport implements Transport over a single reused SSH connection.
type SSHTransport struct {
	opts   SSHOptions
	config *ssh.ClientConfig

	mu     sync.Mutex
	client *ssh.Client
}

// NewSSHTransport builds a transport; the connection is opened lazily on
// first use and reused until it drops.
func NewSSHTransport(opts SSHOptions) (*SSHTransport, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}

	keyData, err := os.ReadFile(opts.KeyPath)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: "failed to read SSH key", Err: err, Context: opts.KeyPath}
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: "failed to parse SSH key", Err: err, Context: opts.KeyPath}
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey() //nolint:gosec // opt-in via empty KnownHosts
	if opts.KnownHosts != "" {
		cb, err := knownhosts.New(opts.KnownHosts)
		if err != nil {
			return nil, &Error{Kind: KindTransport, Message: "failed to load known_hosts", Err: err, Context: opts.KnownHosts}
		}
		hostKeyCallback = cb
	}

	return &SSHTransport{
		opts: opts,
		config: &ssh.ClientConfig{
			User:            opts.User,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: hostKeyCallback,
			Timeout:         opts.Timeout,
		},
	}, nil
}

func (t *SSHTransport) conn() (*ssh.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		return t.client, nil
	}

	addr := t.opts.Host
	if !hasPort(addr) {
		addr += ":22"
	}
	client, err := ssh.Dial("tcp", addr, t.config)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: "SSH connection failed", Err: err, Context: addr}
	}
	t.client = client
	return client, nil
}

func hasPort(addr string) bool {
	for i := len(addr) - 1; i >= 0; i-- {
		switch addr[i] {
		case ':':
			return true
		case ']': // IPv6 without port
			return false
		}
	}
	return false
}

// dropConn discards the cached connection after a failure so the next call
// reconnects.
func (t *SSHTransport) dropConn() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		_ = t.client.Close()
		t.client = nil
	}
}

// Run implements Transport.
func (t *SSHTransport) Run(ctx context.Context, cmd string, stdin []byte, timeout time.Duration) ([]byte, []byte, int, error) {
	client, err := t.conn()
	if err != nil {
		return nil, nil, -1, err
	}

	session, err := client.NewSession()
	if err != nil {
		t.dropConn()
		return nil, nil, -1, &Error{Kind: KindTransport, Message: "failed to open SSH session", Err: err, Context: cmd}
	}
	defer func() { _ = session.Close() }()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if stdin != nil {
		session.Stdin = bytes.NewReader(stdin)
	}

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	var timer <-chan time.Time
	if timeout > 0 {
		tm := time.NewTimer(timeout)
		defer tm.Stop()
		timer = tm.C
	}

	select {
	case err = <-done:
	case <-timer:
		_ = session.Close()
		return stdout.Bytes(), stderr.Bytes(), -1, &Error{Kind: KindTimeout, Message: fmt.Sprintf("command exceeded %s", timeout), Context: cmd}
	case <-ctx.Done():
		_ = session.Close()
		return stdout.Bytes(), stderr.Bytes(), -1, &Error{Kind: KindTransport, Message: "command canceled", Err: ctx.Err(), Context: cmd}
	}

	if err != nil {
		if exitErr, ok := err.(*ssh.ExitError); ok {
			return stdout.Bytes(), stderr.Bytes(), exitErr.ExitStatus(), nil
		}
		t.dropConn()
		return stdout.Bytes(), stderr.Bytes(), -1, &Error{Kind: KindTransport, Message: "SSH command failed", Err: err, Context: cmd}
	}
	return stdout.Bytes(), stderr.Bytes(), 0, nil
}

// CopyIn implements Transport by streaming the payload through stdin, which
// avoids an SFTP subsystem requirement on the host.
func (t *SSHTransport) CopyIn(ctx context.Context, data []byte, remotePath string) error {
	cmd := fmt.Sprintf("cat > %s", shellQuote(remotePath))
	_, stderr, exit, err := t.Run(ctx, cmd, data, t.opts.Timeout)
	if err != nil {
		return err
	}
	if exit != 0 {
		return &Error{Kind: KindTransport, Message: fmt.Sprintf("copy-in exited %d: %s", exit, stderr), Context: remotePath}
	}
	return nil
}

// CopyOut implements Transport.
func (t *SSHTransport) CopyOut(ctx context.Context, remotePath string) ([]byte, error) {
	cmd := fmt.Sprintf("cat %s", shellQuote(remotePath))
	stdout, stderr, exit, err := t.Run(ctx, cmd, nil, t.opts.Timeout)
	if err != nil {
		return nil, err
	}
	if exit != 0 {
		return nil, &Error{Kind: KindTransport, Message: fmt.Sprintf("copy-out exited %d: %s", exit, stderr), Context: remotePath}
	}
	return stdout, nil
}

// Close implements Transport.
func (t *SSHTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		err := t.client.Close()
		t.client = nil
		return err
	}
	return nil
}

// shellQuote single-quotes a path for POSIX shells.
func shellQuote(s string) string {
	return "'" + replaceAll(s, "'", `'\''`) + "'"
}

func replaceAll(s, old, new string) string {
	return string(bytes.ReplaceAll([]byte(s), []byte(old), []byte(new)))
}
