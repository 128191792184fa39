package adapter

import (
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"sync"
	"time"
)

// Telnet protocol bytes (RFC 854/855).
const (
	telnetSE   = 240
	telnetSB   = 250
	telnetWILL = 251
	telnetWONT = 252
	telnetDO   = 253
	telnetDONT = 254
	telnetIAC  = 255
)

// DefaultTelnetTimeout bounds the TCP dial for Telnet consoles.
const DefaultTelnetTimeout = 10 * time.Second

// TelnetConfig configures a Telnet console connection.
type TelnetConfig struct {
	Host string
	Port int
	// DialTimeout bounds the connection attempt. Zero means
	// DefaultTelnetTimeout.
	DialTimeout time.Duration
}

// Telnet forwards bytes to and from a device console reached over a raw TCP
// connection. Option negotiation is answered inline and never blocks data
// flow: every DO is refused with WONT, every WILL with DONT, and
// subnegotiations are swallowed. GNS3 and EVE-NG consoles need nothing more.
type Telnet struct {
	lifecycle

	conn net.Conn
	addr string

	writeMu sync.Mutex

	closeOnce sync.Once
	endOnce   sync.Once
	sink      Sink

	neg telnetDecoder
}

// OpenTelnet connects to a device console at host:port and begins streaming
// the decoded byte stream to sink. The dial is bounded in time; on failure a
// ConnectionError with a classified reason is returned.
func OpenTelnet(cfg TelnetConfig, sink Sink) (*Telnet, error) {
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = DefaultTelnetTimeout
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, connError(addr, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}

	t := &Telnet{conn: conn, addr: addr, sink: sink}
	t.state.Store(int32(StateOpen))

	go t.readLoop()
	return t, nil
}

func (t *Telnet) Kind() Kind { return KindTelnet }

func (t *Telnet) readLoop() {
	buf := make([]byte, readBufferSize)
	for {
		n, err := t.conn.Read(buf)
		if n > 0 {
			data, replies := t.neg.decode(buf[:n])
			if len(replies) > 0 {
				t.sendRaw(replies)
			}
			if len(data) > 0 {
				t.sink.Data(data)
			}
		}
		if err != nil {
			if err == io.EOF || t.State() != StateOpen {
				t.end(nil)
			} else {
				t.end(fmt.Errorf("read: %w", err))
			}
			return
		}
	}
}

func (t *Telnet) end(err error) {
	t.endOnce.Do(func() {
		t.finish(err != nil)
		t.conn.Close()
		t.sink.Closed(err)
	})
}

// sendRaw writes negotiation replies without IAC escaping. Failures here are
// logged only; the session lives or dies by the read side.
func (t *Telnet) sendRaw(p []byte) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.conn.Write(p); err != nil {
		log.Printf("[telnet] %s: negotiation reply failed: %v", t.addr, err)
	}
}

// Write forwards keystrokes to the device. Literal 0xFF bytes are doubled so
// the far end does not read them as IAC.
func (t *Telnet) Write(p []byte) error {
	if t.State() != StateOpen {
		return ErrNotConnected
	}
	out := p
	for i := range p {
		if p[i] == telnetIAC {
			out = escapeIAC(p)
			break
		}
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.conn.Write(out); err != nil {
		return fmt.Errorf("write to %s: %w", t.addr, err)
	}
	return nil
}

// Resize is a no-op: Telnet consoles have no window-size signal we honor.
func (t *Telnet) Resize(cols, rows uint16) error {
	if t.State() != StateOpen {
		return ErrNotConnected
	}
	return nil
}

// Close shuts the TCP connection. Idempotent.
func (t *Telnet) Close() error {
	t.closeOnce.Do(func() {
		t.finish(false)
		t.conn.Close()
	})
	return nil
}

func escapeIAC(p []byte) []byte {
	out := make([]byte, 0, len(p)+4)
	for _, b := range p {
		out = append(out, b)
		if b == telnetIAC {
			out = append(out, telnetIAC)
		}
	}
	return out
}

// telnetDecoder strips in-band IAC sequences from the inbound stream and
// produces the refusals to send back. It is a state machine so sequences
// split across reads are handled; the zero value is ready to use.
type telnetDecoder struct {
	state telnetState
	cmd   byte
}

type telnetState int

const (
	telnetData telnetState = iota
	telnetSawIAC
	telnetSawCmd
	telnetInSub
	telnetInSubIAC
)

// decode consumes one read's worth of raw bytes. It returns the application
// data with protocol bytes removed, plus any negotiation replies owed to the
// peer (WONT for DO, DONT for WILL).
func (d *telnetDecoder) decode(raw []byte) (data, replies []byte) {
	data = make([]byte, 0, len(raw))
	for _, b := range raw {
		switch d.state {
		case telnetData:
			if b == telnetIAC {
				d.state = telnetSawIAC
			} else {
				data = append(data, b)
			}
		case telnetSawIAC:
			switch b {
			case telnetIAC:
				// Escaped literal 0xFF.
				data = append(data, telnetIAC)
				d.state = telnetData
			case telnetSB:
				d.state = telnetInSub
			case telnetWILL, telnetWONT, telnetDO, telnetDONT:
				d.cmd = b
				d.state = telnetSawCmd
			default:
				// Two-byte command (NOP, GA, ...): ignore.
				d.state = telnetData
			}
		case telnetSawCmd:
			switch d.cmd {
			case telnetDO:
				replies = append(replies, telnetIAC, telnetWONT, b)
			case telnetWILL:
				replies = append(replies, telnetIAC, telnetDONT, b)
			}
			// WONT/DONT from the peer need no answer.
			d.state = telnetData
		case telnetInSub:
			if b == telnetIAC {
				d.state = telnetInSubIAC
			}
		case telnetInSubIAC:
			if b == telnetSE {
				d.state = telnetData
			} else {
				d.state = telnetInSub
			}
		}
	}
	return data, replies
}
