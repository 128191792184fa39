package config

import (
	"log"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	// DataPath holds the profile database and the application log.
	// Empty resolves to <user config dir>/packetmux.
	DataPath string `envconfig:"DATA_PATH" default:""`
	Listen   string `envconfig:"LISTEN" default:"127.0.0.1:7332"`
	LogPath  string `envconfig:"LOG_PATH" default:""`

	// KnownHosts enables SSH host-key verification against the given
	// known_hosts file. Empty disables verification (lab devices with
	// throwaway host keys).
	KnownHosts string `envconfig:"KNOWN_HOSTS" default:""`

	TelnetTimeout string `envconfig:"TELNET_TIMEOUT" default:"10s"`
	SSHTimeout    string `envconfig:"SSH_TIMEOUT" default:"30s"`

	// SessionLogDir is where relative session-log filenames are created.
	// Empty resolves to <home>/packetmux-logs.
	SessionLogDir string `envconfig:"SESSION_LOG_DIR" default:""`

	// EventBuffer is the per-subscriber event channel depth.
	EventBuffer int `envconfig:"EVENT_BUFFER" default:"1024"`
}

var Cfg Settings

func Load() {
	if err := envconfig.Process("PACKETMUX", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if Cfg.DataPath == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			base = "."
		}
		Cfg.DataPath = filepath.Join(base, "packetmux")
	}
	if Cfg.LogPath == "" {
		Cfg.LogPath = filepath.Join(Cfg.DataPath, "packetmux.log")
	}
	if Cfg.SessionLogDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		Cfg.SessionLogDir = filepath.Join(home, "packetmux-logs")
	}
}
