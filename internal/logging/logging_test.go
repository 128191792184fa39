package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/packetmux/packetmux/internal/config"
)

func TestReadTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packetmux.log")
	lines := []string{"one", "two", "three", "four", "five"}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	orig := config.Cfg.LogPath
	config.Cfg.LogPath = path
	defer func() { config.Cfg.LogPath = orig }()

	got, err := ReadTail(2)
	if err != nil {
		t.Fatalf("ReadTail: %v", err)
	}
	if got != "four\nfive" {
		t.Errorf("ReadTail(2) = %q", got)
	}

	got, err = ReadTail(100)
	if err != nil {
		t.Fatalf("ReadTail: %v", err)
	}
	if got != strings.Join(lines, "\n") {
		t.Errorf("ReadTail(100) = %q", got)
	}
}

func TestReadTailMissingFile(t *testing.T) {
	orig := config.Cfg.LogPath
	config.Cfg.LogPath = filepath.Join(t.TempDir(), "never-created.log")
	defer func() { config.Cfg.LogPath = orig }()

	got, err := ReadTail(10)
	if err != nil {
		t.Fatalf("ReadTail on missing file: %v", err)
	}
	if got != "" {
		t.Errorf("ReadTail = %q, want empty", got)
	}
}
