// Package sessionlog appends device output to user-named log files.
//
// A session can have several log files active at once. The manager consumes
// the registry's event stream, strips color escapes from output chunks, and
// appends them to every file registered for that session. Files get a
// timestamped header when logging starts and a footer when it stops or the
// session ends.
package sessionlog

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/packetmux/packetmux/internal/session"
)

const timeLayout = "2006-01-02 15:04:05"

type logFile struct {
	path      string
	f         *os.File
	startedAt time.Time
}

// FileInfo describes one active log file for display.
type FileInfo struct {
	Path      string `json:"path"`
	StartedAt string `json:"startedAt"`
}

// Manager tracks active log files per session.
type Manager struct {
	dir string

	mu    sync.Mutex
	files map[string][]*logFile // session id -> active files
}

// NewManager creates a manager that resolves relative filenames under dir.
func NewManager(dir string) *Manager {
	return &Manager{dir: dir, files: make(map[string][]*logFile)}
}

// Run consumes registry events until the channel closes: output is appended
// to the session's log files, and a session ending closes its files. Run is
// meant to be a goroutine fed by Registry.Subscribe.
func (m *Manager) Run(events <-chan session.Event) {
	for ev := range events {
		switch ev.Type {
		case session.EventOutput:
			m.write(ev.SessionID, ev.Data)
		case session.EventStatus:
			// Warnings are advisory; only a terminal status closes the files.
			if ev.Status == session.StatusDisconnected || ev.Status == session.StatusError {
				m.CloseSession(ev.SessionID)
			}
		}
	}
}

// Start begins logging a session's output to filename. Relative names are
// created under the manager's directory. Logging twice to the same file for
// the same session is an error the caller can show the user.
func (m *Manager) Start(sessionID, filename string) error {
	path, err := m.resolve(filename)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, lf := range m.files[sessionID] {
		if lf.path == path {
			return fmt.Errorf("already logging to %q", filename)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file %q: %w", path, err)
	}

	now := time.Now()
	fmt.Fprintf(f, "\n=== packetmux logging started: %s ===\n", now.Format(timeLayout))

	m.files[sessionID] = append(m.files[sessionID], &logFile{path: path, f: f, startedAt: now})
	log.Printf("[sessionlog] session %s logging to %s", sessionID, path)
	return nil
}

// Stop ends logging to one file for a session.
func (m *Manager) Stop(sessionID, filename string) error {
	path, err := m.resolve(filename)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	files := m.files[sessionID]
	for i, lf := range files {
		if lf.path != path {
			continue
		}
		closeWithFooter(lf, "")
		m.files[sessionID] = append(files[:i], files[i+1:]...)
		if len(m.files[sessionID]) == 0 {
			delete(m.files, sessionID)
		}
		log.Printf("[sessionlog] session %s stopped logging to %s", sessionID, path)
		return nil
	}
	return fmt.Errorf("not logging to %q", filename)
}

// List returns the active log files for a session.
func (m *Manager) List(sessionID string) []FileInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]FileInfo, 0, len(m.files[sessionID]))
	for _, lf := range m.files[sessionID] {
		out = append(out, FileInfo{Path: lf.path, StartedAt: lf.startedAt.Format(timeLayout)})
	}
	return out
}

// CloseSession closes every log file for a session. Called when the session
// ends; safe to call for sessions with no active logs.
func (m *Manager) CloseSession(sessionID string) {
	m.mu.Lock()
	files := m.files[sessionID]
	delete(m.files, sessionID)
	m.mu.Unlock()

	for _, lf := range files {
		closeWithFooter(lf, " (session closed)")
	}
	if len(files) > 0 {
		log.Printf("[sessionlog] closed %d log file(s) for session %s", len(files), sessionID)
	}
}

// CloseAll closes every active log file. Used at shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.files
	m.files = make(map[string][]*logFile)
	m.mu.Unlock()

	for _, files := range all {
		for _, lf := range files {
			closeWithFooter(lf, " (shutdown)")
		}
	}
}

func (m *Manager) write(sessionID, data string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	files := m.files[sessionID]
	if len(files) == 0 {
		return
	}
	clean := StripANSI(data)
	for _, lf := range files {
		if _, err := lf.f.WriteString(clean); err != nil {
			log.Printf("[sessionlog] write to %s failed: %v", lf.path, err)
		}
	}
}

func closeWithFooter(lf *logFile, note string) {
	fmt.Fprintf(lf.f, "\n=== packetmux logging ended%s: %s ===\n", note, time.Now().Format(timeLayout))
	lf.f.Close()
}

func (m *Manager) resolve(filename string) (string, error) {
	if filename == "" {
		return "", fmt.Errorf("log filename is required")
	}
	if filepath.IsAbs(filename) {
		return filename, nil
	}
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return "", fmt.Errorf("create log directory: %w", err)
	}
	return filepath.Join(m.dir, filename), nil
}

// StripANSI removes ANSI escape sequences (CSI, OSC, and the rest) so log
// files hold plain text.
func StripANSI(text string) string {
	return ansi.Strip(text)
}
