package adapter

import (
	"bytes"
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

// collectSink records output chunks and the end-of-stream notification.
type collectSink struct {
	mu     sync.Mutex
	data   bytes.Buffer
	closed int
	err    error
	done   chan struct{}
}

func newCollectSink() *collectSink {
	return &collectSink{done: make(chan struct{})}
}

func (c *collectSink) Data(p []byte) {
	c.mu.Lock()
	c.data.Write(p)
	c.mu.Unlock()
}

func (c *collectSink) Closed(err error) {
	c.mu.Lock()
	c.closed++
	c.err = err
	c.mu.Unlock()
	close(c.done)
}

func (c *collectSink) output() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data.String()
}

func (c *collectSink) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *collectSink) waitOutput(t *testing.T, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if bytes.Contains([]byte(c.output()), []byte(want)) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("output %q never contained %q", c.output(), want)
}

// startTelnetServer accepts one connection and gives the test direct control
// over both directions.
func startTelnetServer(t *testing.T) (host string, port int, conns <-chan net.Conn, cleanup func()) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ch := make(chan net.Conn, 1)
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			ch <- conn
		}
	}()
	addr := listener.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port, ch, func() { listener.Close() }
}

func TestTelnetOpenAndForward(t *testing.T) {
	host, port, conns, cleanup := startTelnetServer(t)
	defer cleanup()

	sink := newCollectSink()
	tn, err := OpenTelnet(TelnetConfig{Host: host, Port: port}, sink)
	if err != nil {
		t.Fatalf("OpenTelnet: %v", err)
	}
	defer tn.Close()

	if tn.State() != StateOpen {
		t.Fatalf("expected state open, got %s", tn.State())
	}

	server := <-conns
	defer server.Close()

	server.Write([]byte("R-1> "))
	sink.waitOutput(t, "R-1> ")

	if err := tn.Write([]byte("show ip route\r")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	want := "show ip route\r"
	var got []byte
	buf := make([]byte, 64)
	server.SetReadDeadline(time.Now().Add(2 * time.Second))
	for len(got) < len(want) {
		n, err := server.Read(buf)
		if err != nil {
			t.Fatalf("server read after %q: %v", got, err)
		}
		got = append(got, buf[:n]...)
	}
	if string(got) != want {
		t.Errorf("server received %q", got)
	}
}

func TestTelnetRefusesOptions(t *testing.T) {
	host, port, conns, cleanup := startTelnetServer(t)
	defer cleanup()

	sink := newCollectSink()
	tn, err := OpenTelnet(TelnetConfig{Host: host, Port: port}, sink)
	if err != nil {
		t.Fatalf("OpenTelnet: %v", err)
	}
	defer tn.Close()

	server := <-conns
	defer server.Close()

	// DO ECHO (1) and WILL SGA (3) interleaved with data. Negotiation must
	// be refused and stripped without stalling the data.
	server.Write([]byte{telnetIAC, telnetDO, 1, 'o', 'k', telnetIAC, telnetWILL, 3})
	sink.waitOutput(t, "ok")

	want := []byte{telnetIAC, telnetWONT, 1, telnetIAC, telnetDONT, 3}
	got := make([]byte, 0, len(want))
	buf := make([]byte, 16)
	server.SetReadDeadline(time.Now().Add(2 * time.Second))
	for len(got) < len(want) {
		n, err := server.Read(buf)
		if err != nil {
			t.Fatalf("server read after %v: %v", got, err)
		}
		got = append(got, buf[:n]...)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("negotiation replies = %v, want %v", got, want)
	}
}

func TestTelnetCloseIdempotent(t *testing.T) {
	host, port, conns, cleanup := startTelnetServer(t)
	defer cleanup()

	sink := newCollectSink()
	tn, err := OpenTelnet(TelnetConfig{Host: host, Port: port}, sink)
	if err != nil {
		t.Fatalf("OpenTelnet: %v", err)
	}
	server := <-conns
	defer server.Close()

	if err := tn.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := tn.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if tn.State() != StateClosed {
		t.Errorf("state = %s, want closed", tn.State())
	}

	<-sink.done
	if got := sink.closeCount(); got != 1 {
		t.Errorf("Closed delivered %d times, want exactly once", got)
	}

	if err := tn.Write([]byte("x")); err != ErrNotConnected {
		t.Errorf("Write after close = %v, want ErrNotConnected", err)
	}
	if err := tn.Resize(80, 24); err != ErrNotConnected {
		t.Errorf("Resize after close = %v, want ErrNotConnected", err)
	}
}

func TestTelnetRemoteClose(t *testing.T) {
	host, port, conns, cleanup := startTelnetServer(t)
	defer cleanup()

	sink := newCollectSink()
	tn, err := OpenTelnet(TelnetConfig{Host: host, Port: port}, sink)
	if err != nil {
		t.Fatalf("OpenTelnet: %v", err)
	}
	defer tn.Close()

	server := <-conns
	server.Write([]byte("bye"))
	server.Close()

	<-sink.done
	sink.mu.Lock()
	closedErr := sink.err
	sink.mu.Unlock()
	if closedErr != nil {
		t.Errorf("clean remote close reported error: %v", closedErr)
	}
}

func TestTelnetConnectionRefused(t *testing.T) {
	// Grab a free port and release it so the dial finds it closed.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	_, err = OpenTelnet(TelnetConfig{Host: "127.0.0.1", Port: port}, newCollectSink())
	if err == nil {
		t.Fatal("expected connection error")
	}
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("error type %T, want *ConnectionError", err)
	}
	if connErr.Reason != ReasonRefused {
		t.Errorf("reason = %v, want refused", connErr.Reason)
	}
}

func TestTelnetDecoderSplitSequences(t *testing.T) {
	var d telnetDecoder

	// IAC DO 31 split across reads.
	data, replies := d.decode([]byte{'a', telnetIAC})
	if string(data) != "a" || len(replies) != 0 {
		t.Fatalf("first chunk: data=%q replies=%v", data, replies)
	}
	data, replies = d.decode([]byte{telnetDO})
	if len(data) != 0 || len(replies) != 0 {
		t.Fatalf("second chunk: data=%q replies=%v", data, replies)
	}
	data, replies = d.decode([]byte{31, 'b'})
	if string(data) != "b" {
		t.Errorf("third chunk data = %q, want %q", data, "b")
	}
	if !bytes.Equal(replies, []byte{telnetIAC, telnetWONT, 31}) {
		t.Errorf("third chunk replies = %v", replies)
	}
}

func TestTelnetDecoderLiteralIAC(t *testing.T) {
	var d telnetDecoder
	data, _ := d.decode([]byte{'x', telnetIAC, telnetIAC, 'y'})
	if !bytes.Equal(data, []byte{'x', telnetIAC, 'y'}) {
		t.Errorf("data = %v", data)
	}
}

func TestTelnetDecoderSubnegotiation(t *testing.T) {
	var d telnetDecoder
	// IAC SB 24 ... IAC SE wrapped around "hi", split across chunks.
	data, _ := d.decode([]byte{telnetIAC, telnetSB, 24, 1, 2})
	if len(data) != 0 {
		t.Fatalf("subnegotiation leaked data %v", data)
	}
	data, _ = d.decode([]byte{telnetIAC, telnetSE, 'h', 'i'})
	if string(data) != "hi" {
		t.Errorf("data = %q, want %q", data, "hi")
	}
}

func TestEscapeIAC(t *testing.T) {
	got := escapeIAC([]byte{1, telnetIAC, 2})
	want := []byte{1, telnetIAC, telnetIAC, 2}
	if !bytes.Equal(got, want) {
		t.Errorf("escapeIAC = %v, want %v", got, want)
	}
	plain := []byte("no iac here")
	if !bytes.Equal(escapeIAC(plain), plain) {
		t.Error("escapeIAC altered bytes without IAC")
	}
}
