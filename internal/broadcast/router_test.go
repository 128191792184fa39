package broadcast

import (
	"bytes"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/packetmux/packetmux/internal/adapter"
	"github.com/packetmux/packetmux/internal/session"
)

// fakeConsole is a TCP listener standing in for one device console. It
// records everything the session under test writes to it.
type fakeConsole struct {
	listener net.Listener
	host     string
	port     int

	mu    sync.Mutex
	buf   bytes.Buffer
	conns []net.Conn
}

func startConsole(t *testing.T) *fakeConsole {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().(*net.TCPAddr)
	f := &fakeConsole{listener: listener, host: "127.0.0.1", port: addr.Port}
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			f.mu.Lock()
			f.conns = append(f.conns, conn)
			f.mu.Unlock()
			go func() {
				buf := make([]byte, 1024)
				for {
					n, err := conn.Read(buf)
					if n > 0 {
						f.mu.Lock()
						f.buf.Write(buf[:n])
						f.mu.Unlock()
					}
					if err != nil {
						return
					}
				}
			}()
		}
	}()
	t.Cleanup(func() { listener.Close() })
	return f
}

func (f *fakeConsole) received() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buf.String()
}

func (f *fakeConsole) waitFor(t *testing.T, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(f.received(), want) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("console received %q, want substring %q", f.received(), want)
}

func (f *fakeConsole) dropClients() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conns {
		c.Close()
	}
	f.conns = nil
}

// connect opens a named telnet session against its own fake console.
func connect(t *testing.T, reg *session.Registry, name string) (string, *fakeConsole) {
	t.Helper()
	console := startConsole(t)
	id, err := reg.ConnectTelnet(console.host, console.port, name)
	if err != nil {
		t.Fatalf("connect %s: %v", name, err)
	}
	return id, console
}

func newTestRegistry(t *testing.T) *session.Registry {
	t.Helper()
	reg := session.NewRegistry(session.Config{})
	t.Cleanup(reg.CloseAll)
	return reg
}

func waitForWrites(t *testing.T, consoles map[string]*fakeConsole, want string, names ...string) {
	t.Helper()
	for _, name := range names {
		consoles[name].waitFor(t, want)
	}
}

// quiet asserts, after a settle delay, that none of the named consoles saw
// the payload.
func quiet(t *testing.T, consoles map[string]*fakeConsole, payload string, names ...string) {
	t.Helper()
	time.Sleep(50 * time.Millisecond)
	for _, name := range names {
		if strings.Contains(consoles[name].received(), payload) {
			t.Errorf("console %s received %q but was not a target", name, payload)
		}
	}
}

func buildLab(t *testing.T, reg *session.Registry) (ids map[string]string, consoles map[string]*fakeConsole) {
	t.Helper()
	ids = make(map[string]string)
	consoles = make(map[string]*fakeConsole)
	for _, name := range []string{"R-1", "R-22", "R-CID1", "SW-1"} {
		id, console := connect(t, reg, name)
		ids[name] = id
		consoles[name] = console
	}
	return ids, consoles
}

func TestBroadcastAll(t *testing.T) {
	reg := newTestRegistry(t)
	_, consoles := buildLab(t, reg)
	r := NewRouter(reg)

	if failures := r.Broadcast("conf t\r"); failures != nil {
		t.Fatalf("broadcast failures: %v", failures)
	}
	waitForWrites(t, consoles, "conf t\r", "R-1", "R-22", "R-CID1", "SW-1")
}

func TestBroadcastSkipsDisabledSessions(t *testing.T) {
	reg := newTestRegistry(t)
	ids, consoles := buildLab(t, reg)
	r := NewRouter(reg)

	if err := reg.SetBroadcastEnabled(ids["SW-1"], false); err != nil {
		t.Fatalf("disable broadcast: %v", err)
	}

	r.Broadcast("payload-1")
	waitForWrites(t, consoles, "payload-1", "R-1", "R-22", "R-CID1")
	quiet(t, consoles, "payload-1", "SW-1")

	if err := reg.SetBroadcastEnabled(ids["SW-1"], true); err != nil {
		t.Fatalf("re-enable broadcast: %v", err)
	}
	r.Broadcast("payload-2")
	waitForWrites(t, consoles, "payload-2", "SW-1")
}

func TestBroadcastExplicitGroup(t *testing.T) {
	reg := newTestRegistry(t)
	ids, consoles := buildLab(t, reg)
	r := NewRouter(reg)

	routers := reg.CreateGroup("Routers", "#00ffff")
	for _, name := range []string{"R-1", "R-22", "R-CID1"} {
		if err := reg.SetGroup(ids[name], routers.ID); err != nil {
			t.Fatalf("group %s: %v", name, err)
		}
	}
	r.SetModeExplicitGroup(routers.ID)

	r.Broadcast("sh ver\r")
	waitForWrites(t, consoles, "sh ver\r", "R-1", "R-22", "R-CID1")
	quiet(t, consoles, "sh ver\r", "SW-1")
}

func TestBroadcastActiveGroupFollowsView(t *testing.T) {
	reg := newTestRegistry(t)
	ids, consoles := buildLab(t, reg)
	r := NewRouter(reg)

	routers := reg.CreateGroup("Routers", "")
	switches := reg.CreateGroup("Switches", "")
	reg.SetGroup(ids["R-1"], routers.ID)
	reg.SetGroup(ids["SW-1"], switches.ID)

	// Without a viewed group, active-group mode must not engage.
	r.SetModeActiveGroup()
	if mode, _ := r.Mode(); mode != TargetAll {
		t.Fatalf("mode = %v without a viewed group, want TargetAll", mode)
	}

	r.SetViewedGroup(switches.ID)
	r.SetModeActiveGroup()
	if mode, _ := r.Mode(); mode != TargetActiveGroup {
		t.Fatalf("mode = %v, want TargetActiveGroup", mode)
	}

	r.Broadcast("sw-only")
	waitForWrites(t, consoles, "sw-only", "SW-1")
	quiet(t, consoles, "sw-only", "R-1", "R-22", "R-CID1")

	// The target follows the view without re-issuing a mode command.
	r.SetViewedGroup(routers.ID)
	r.Broadcast("r-only")
	waitForWrites(t, consoles, "r-only", "R-1")
	quiet(t, consoles, "r-only", "SW-1")
}

func TestExecMoveThenGroupScenario(t *testing.T) {
	reg := newTestRegistry(t)
	_, consoles := buildLab(t, reg)
	r := NewRouter(reg)

	reg.CreateGroup("Routers", "")

	if !r.Exec(":m R-* Routers") {
		t.Fatal(":m not consumed")
	}
	if !r.Exec(":g Routers") {
		t.Fatal(":g not consumed")
	}

	r.Broadcast("term len 0\r")
	waitForWrites(t, consoles, "term len 0\r", "R-1", "R-22", "R-CID1")
	quiet(t, consoles, "term len 0\r", "SW-1")

	// :a restores full fan-out.
	if !r.Exec(":a") {
		t.Fatal(":a not consumed")
	}
	r.Broadcast("everyone")
	waitForWrites(t, consoles, "everyone", "SW-1")
}

func TestExecMoveWithoutFragmentUngroups(t *testing.T) {
	reg := newTestRegistry(t)
	ids, _ := buildLab(t, reg)
	r := NewRouter(reg)

	routers := reg.CreateGroup("Routers", "")
	reg.SetGroup(ids["R-1"], routers.ID)

	if !r.Exec(":m R-1") {
		t.Fatal(":m not consumed")
	}
	s, err := reg.Get(ids["R-1"])
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s.Group != "" {
		t.Errorf("group = %q after move without fragment, want ungrouped", s.Group)
	}
}

func TestExecMoveUnresolvedFragmentIsNoOp(t *testing.T) {
	reg := newTestRegistry(t)
	ids, _ := buildLab(t, reg)
	r := NewRouter(reg)

	routers := reg.CreateGroup("Routers", "")
	reg.SetGroup(ids["R-1"], routers.ID)

	r.Exec(":m R-* nosuchgroup")
	s, _ := reg.Get(ids["R-1"])
	if s.Group != routers.ID {
		t.Errorf("group changed by a move to an unresolvable group")
	}
}

func TestExecGroupUnresolvedKeepsMode(t *testing.T) {
	reg := newTestRegistry(t)
	buildLab(t, reg)
	r := NewRouter(reg)

	r.Exec(":g nosuchgroup")
	if mode, _ := r.Mode(); mode != TargetAll {
		t.Errorf("mode = %v after unresolved :g, want unchanged TargetAll", mode)
	}
}

func TestExecSwitch(t *testing.T) {
	reg := newTestRegistry(t)
	buildLab(t, reg)
	r := NewRouter(reg)

	routers := reg.CreateGroup("Routers", "")

	// Substring resolution.
	r.Exec(":s rout")
	if got := r.ViewedGroup(); got != routers.ID {
		t.Errorf("viewed group = %q, want %q", got, routers.ID)
	}

	r.Exec(":s all")
	if got := r.ViewedGroup(); got != "" {
		t.Errorf("viewed group = %q after :s all, want cleared", got)
	}

	// Unresolvable name leaves the view unchanged.
	r.Exec(":s rout")
	r.Exec(":s nosuch")
	if got := r.ViewedGroup(); got != routers.ID {
		t.Errorf("viewed group = %q after unresolved :s, want unchanged", got)
	}
}

func TestExecPassesThroughPlainInput(t *testing.T) {
	reg := newTestRegistry(t)
	buildLab(t, reg)
	r := NewRouter(reg)

	if r.Exec("show ip int brief") {
		t.Error("plain input must not be consumed as a command")
	}
	if !r.Exec(":bogus") {
		t.Error("unknown colon-command must be consumed")
	}
	if mode, _ := r.Mode(); mode != TargetAll {
		t.Errorf("mode changed by unknown command")
	}
}

func TestBroadcastMixedTransportGroup(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}

	reg := newTestRegistry(t)
	r := NewRouter(reg)

	localID, err := reg.SpawnLocal(adapter.LocalConfig{Shell: "/bin/sh"}, "L1")
	if err != nil {
		t.Fatalf("SpawnLocal: %v", err)
	}
	telnetID, t1 := connect(t, reg, "T1")
	_, s2 := connect(t, reg, "S2")

	lab := reg.CreateGroup("Lab", "")
	if err := reg.SetGroup(localID, lab.ID); err != nil {
		t.Fatalf("group L1: %v", err)
	}
	if err := reg.SetGroup(telnetID, lab.ID); err != nil {
		t.Fatalf("group T1: %v", err)
	}
	r.SetModeExplicitGroup(lab.ID)

	if failures := r.Broadcast("\r"); len(failures) != 0 {
		t.Fatalf("broadcast failures: %v", failures)
	}
	t1.waitFor(t, "\r")
	quiet(t, map[string]*fakeConsole{"S2": s2}, "\r", "S2")
}

func TestBroadcastCollectsPerSessionFailures(t *testing.T) {
	reg := newTestRegistry(t)
	ids, consoles := buildLab(t, reg)
	r := NewRouter(reg)

	// Kill one console server-side and wait for the session to notice.
	consoles["R-22"].dropClients()
	deadline := time.Now().Add(2 * time.Second)
	for {
		s, err := reg.Get(ids["R-22"])
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if s.State == "closed" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session never noticed the drop, state=%s", s.State)
		}
		time.Sleep(5 * time.Millisecond)
	}

	failures := r.Broadcast("whole-batch")
	if len(failures) != 1 {
		t.Fatalf("failures = %v, want exactly the dropped session", failures)
	}
	if failures[0].SessionID != ids["R-22"] || failures[0].Name != "R-22" {
		t.Errorf("failure = %+v, want session R-22", failures[0])
	}
	// The rest of the batch still went out.
	waitForWrites(t, consoles, "whole-batch", "R-1", "R-CID1", "SW-1")
}
