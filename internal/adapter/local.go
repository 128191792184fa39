package adapter

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
)

// LocalConfig configures a local shell session.
type LocalConfig struct {
	// Shell is the command to run. Empty means $SHELL, falling back to
	// /bin/bash.
	Shell string
	Cols  uint16
	Rows  uint16
}

// Local runs a shell process attached to a pseudo-terminal.
type Local struct {
	lifecycle

	mu   sync.Mutex
	ptmx *os.File
	cmd  *exec.Cmd

	closeOnce sync.Once
	endOnce   sync.Once
	sink      Sink
}

// OpenLocal spawns a shell attached to a new PTY with the requested geometry
// and begins streaming its output to sink.
func OpenLocal(cfg LocalConfig, sink Sink) (*Local, error) {
	shell := cfg.Shell
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/bash"
	}
	cols, rows := cfg.Cols, cfg.Rows
	if cols == 0 {
		cols = 80
	}
	if rows == 0 {
		rows = 24
	}

	cmd := exec.Command(shell)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color", "COLORTERM=truecolor")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("spawn shell %q: %w", shell, err)
	}

	l := &Local{ptmx: ptmx, cmd: cmd, sink: sink}
	l.state.Store(int32(StateOpen))

	go l.readLoop()
	return l, nil
}

func (l *Local) Kind() Kind { return KindLocal }

func (l *Local) readLoop() {
	buf := make([]byte, readBufferSize)
	for {
		n, err := l.ptmx.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			l.sink.Data(data)
		}
		if err != nil {
			// A closed PTY surfaces as EIO on Linux once the child
			// exits; both that and EOF mean the shell is gone.
			l.end()
			return
		}
	}
}

// end performs the exactly-once stream termination. The shell exiting on its
// own is a clean close, not a failure.
func (l *Local) end() {
	l.endOnce.Do(func() {
		l.finish(false)
		l.release()
		l.sink.Closed(nil)
	})
}

func (l *Local) Write(p []byte) error {
	if l.State() != StateOpen {
		return ErrNotConnected
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.ptmx.Write(p); err != nil {
		return fmt.Errorf("write to pty: %w", err)
	}
	return nil
}

func (l *Local) Resize(cols, rows uint16) error {
	if l.State() != StateOpen {
		return ErrNotConnected
	}
	if err := pty.Setsize(l.ptmx, &pty.Winsize{Cols: cols, Rows: rows}); err != nil {
		return fmt.Errorf("resize pty: %w", err)
	}
	return nil
}

// Close terminates the shell process and releases the PTY. Safe to call more
// than once; later calls are no-ops.
func (l *Local) Close() error {
	l.closeOnce.Do(func() {
		l.finish(false)
		l.release()
	})
	return nil
}

// release closes the PTY and reaps the child. Guarded by mu so a concurrent
// Write observes either a live or a closed descriptor, never a freed one.
func (l *Local) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ptmx != nil {
		l.ptmx.Close()
	}
	if l.cmd != nil && l.cmd.Process != nil {
		l.cmd.Process.Kill()
		go func(cmd *exec.Cmd) {
			if err := cmd.Wait(); err != nil {
				log.Printf("[pty] shell exited: %v", err)
			}
		}(l.cmd)
		l.cmd = nil
	}
}
