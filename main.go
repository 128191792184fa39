// Command packetmux serves a multi-protocol console session manager with
// keystroke broadcast, intended as the backend for a terminal-grid renderer
// driving many network-device consoles at once.
//
// GNS3 integration: in Preferences -> Console applications, set
//
//	packetmux --name "{name}" --host {host} --port {port}
//
// and each console launch synthesizes one Telnet connection at startup.
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/packetmux/packetmux/internal/broadcast"
	"github.com/packetmux/packetmux/internal/config"
	"github.com/packetmux/packetmux/internal/gateway"
	"github.com/packetmux/packetmux/internal/highlight"
	"github.com/packetmux/packetmux/internal/logging"
	"github.com/packetmux/packetmux/internal/profile"
	"github.com/packetmux/packetmux/internal/session"
	"github.com/packetmux/packetmux/internal/sessionlog"
)

func main() {
	var (
		flagName    = pflag.StringP("name", "T", "", "display name for the auto-connected session")
		flagHost    = pflag.String("host", "", "telnet host to connect to at startup")
		flagPort    = pflag.IntP("port", "p", 0, "telnet port to connect to at startup")
		flagExecute = pflag.StringP("execute", "e", "", `xfce4-terminal compatible: -e "telnet host port"`)
		flagListen  = pflag.String("listen", "", "listen address (overrides PACKETMUX_LISTEN)")
	)
	pflag.Parse()

	config.Load()
	logging.Init()
	defer logging.Close()

	reg := session.NewRegistry(session.Config{
		Highlight:      highlight.Highlight,
		KnownHostsPath: config.Cfg.KnownHosts,
		TelnetTimeout:  parseDuration(config.Cfg.TelnetTimeout, 10*time.Second),
		SSHTimeout:     parseDuration(config.Cfg.SSHTimeout, 30*time.Second),
	})
	defer reg.CloseAll()

	router := broadcast.NewRouter(reg)

	store, err := profile.Open(filepath.Join(config.Cfg.DataPath, "profiles.db"))
	if err != nil {
		log.Printf("WARNING: profile store unavailable: %v", err)
		store = nil
	} else {
		defer store.Close()
	}

	logs := sessionlog.NewManager(config.Cfg.SessionLogDir)
	defer logs.CloseAll()
	logEvents, logUnsub := reg.Subscribe(config.Cfg.EventBuffer)
	defer logUnsub()
	go logs.Run(logEvents)

	// Console-launch integration: connect before serving so the first
	// renderer to attach sees the session.
	if host, port, name, ok := connectionArgs(*flagHost, *flagPort, *flagName, *flagExecute); ok {
		log.Printf("Console launch: %s -> %s:%d", name, host, port)
		if _, err := reg.ConnectTelnet(host, port, name); err != nil {
			log.Printf("WARNING: console-launch connect failed: %v", err)
		}
	}

	srv := &http.Server{
		Addr:    listenAddr(*flagListen),
		Handler: gateway.New(reg, router, store, logs).Routes(),
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("packetmux listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Printf("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}

func listenAddr(override string) string {
	if override != "" {
		return override
	}
	return config.Cfg.Listen
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// connectionArgs resolves the console-launch flags to one Telnet target.
// Direct --host/--port wins; otherwise -e "telnet host port" (or "host
// port") is parsed for xfce4-terminal compatibility.
func connectionArgs(host string, port int, name, execute string) (string, int, string, bool) {
	if host != "" && port > 0 {
		return host, port, defaultName(name, host, port), true
	}
	if execute == "" {
		return "", 0, "", false
	}
	parts := strings.Fields(execute)
	if len(parts) >= 3 && strings.EqualFold(parts[0], "telnet") {
		parts = parts[1:]
	}
	if len(parts) >= 2 {
		if p, err := strconv.Atoi(parts[1]); err == nil && p > 0 && p <= 65535 {
			return parts[0], p, defaultName(name, parts[0], p), true
		}
	}
	return "", 0, "", false
}

func defaultName(name, host string, port int) string {
	if name != "" {
		return name
	}
	return host + ":" + strconv.Itoa(port)
}
