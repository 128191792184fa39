package adapter

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DefaultSSHTimeout bounds the TCP dial plus SSH handshake.
const DefaultSSHTimeout = 30 * time.Second

// SSHAuth carries the credentials for an SSH connection. Exactly one of
// Password or KeyPath should be set; KeyPath may be paired with a Passphrase
// for encrypted keys.
type SSHAuth struct {
	Password   string
	KeyPath    string
	Passphrase string
}

// SSHConfig configures an SSH console connection.
type SSHConfig struct {
	Host     string
	Port     int
	Username string
	Auth     SSHAuth
	Cols     uint16
	Rows     uint16
	// DialTimeout bounds the connect plus handshake. Zero means
	// DefaultSSHTimeout.
	DialTimeout time.Duration
	// KnownHostsPath enables host-key verification against an OpenSSH
	// known_hosts file. Empty disables verification, which is the default
	// for lab devices with throwaway host keys.
	KnownHostsPath string
}

// SSH drives an interactive shell channel over an SSH transport.
type SSH struct {
	lifecycle

	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
	addr    string

	writeMu sync.Mutex

	closeOnce sync.Once
	endOnce   sync.Once
	sink      Sink
}

// OpenSSH dials host:port, authenticates, opens a PTY-backed shell channel
// with the requested geometry, and begins streaming output to sink. Failures
// are classified: AuthError for rejected credentials, ConnectionError with a
// reason for everything before authentication.
func OpenSSH(cfg SSHConfig, sink Sink) (*SSH, error) {
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = DefaultSSHTimeout
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	auth, err := buildAuthMethods(cfg.Auth)
	if err != nil {
		return nil, err
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsPath != "" {
		cb, err := knownhosts.New(cfg.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts %s: %w", cfg.KnownHostsPath, err)
		}
		hostKeyCallback = cb
	}

	clientConfig := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, connError(addr, err)
	}
	conn.SetDeadline(time.Now().Add(timeout))

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		conn.Close()
		if isAuthFailure(err) {
			return nil, &AuthError{User: cfg.Username, Addr: addr, Cause: err}
		}
		return nil, connError(addr, err)
	}
	conn.SetDeadline(time.Time{})
	client := ssh.NewClient(sshConn, chans, reqs)

	s := &SSH{client: client, addr: addr, sink: sink}
	if err := s.startShell(cfg); err != nil {
		client.Close()
		return nil, err
	}
	s.state.Store(int32(StateOpen))

	go s.readLoop()
	return s, nil
}

func (s *SSH) startShell(cfg SSHConfig) error {
	session, err := s.client.NewSession()
	if err != nil {
		return fmt.Errorf("open session channel: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	cols, rows := cfg.Cols, cfg.Rows
	if cols == 0 {
		cols = 80
	}
	if rows == 0 {
		rows = 24
	}
	if err := session.RequestPty("xterm-256color", int(rows), int(cols), modes); err != nil {
		session.Close()
		return fmt.Errorf("request pty: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return fmt.Errorf("stdout pipe: %w", err)
	}

	if err := session.Shell(); err != nil {
		session.Close()
		return fmt.Errorf("start shell: %w", err)
	}

	s.session = session
	s.stdout = stdout
	s.stdin = stdin
	return nil
}

func (s *SSH) Kind() Kind { return KindSSH }

func (s *SSH) readLoop() {
	buf := make([]byte, readBufferSize)
	for {
		n, err := s.stdout.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			s.sink.Data(data)
		}
		if err != nil {
			if err == io.EOF || s.State() != StateOpen {
				s.end(nil)
			} else {
				s.end(fmt.Errorf("read: %w", err))
			}
			return
		}
	}
}

func (s *SSH) end(err error) {
	s.endOnce.Do(func() {
		s.finish(err != nil)
		s.session.Close()
		s.client.Close()
		s.sink.Closed(err)
	})
}

func (s *SSH) Write(p []byte) error {
	if s.State() != StateOpen {
		return ErrNotConnected
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.stdin.Write(p); err != nil {
		return fmt.Errorf("write to %s: %w", s.addr, err)
	}
	return nil
}

// Resize sends a window-change request on the shell channel.
func (s *SSH) Resize(cols, rows uint16) error {
	if s.State() != StateOpen {
		return ErrNotConnected
	}
	if err := s.session.WindowChange(int(rows), int(cols)); err != nil {
		return fmt.Errorf("window change: %w", err)
	}
	return nil
}

// Close tears down the channel and transport. Idempotent.
func (s *SSH) Close() error {
	s.closeOnce.Do(func() {
		s.finish(false)
		s.session.Close()
		s.client.Close()
	})
	return nil
}

// buildAuthMethods converts SSHAuth into x/crypto auth methods. A key path
// takes precedence over a password; "~/" prefixes are expanded.
func buildAuthMethods(a SSHAuth) ([]ssh.AuthMethod, error) {
	if a.KeyPath != "" {
		path := expandHome(a.KeyPath)
		keyData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read private key %s: %w", path, err)
		}
		var signer ssh.Signer
		if a.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(a.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyData)
		}
		if err != nil {
			return nil, fmt.Errorf("parse private key %s: %w", path, err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	return []ssh.AuthMethod{ssh.Password(a.Password)}, nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// isAuthFailure reports whether a handshake error means the server rejected
// the credentials rather than the connection failing. x/crypto/ssh exposes no
// typed error for this, so the message is inspected.
func isAuthFailure(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "no supported methods remain") ||
		strings.Contains(msg, "permission denied")
}
