// Package adapter provides the transport-specific half of a console session.
//
// Three variants are implemented: a local shell on a pseudo-terminal
// (creack/pty), a raw Telnet connection with in-band IAC negotiation, and an
// interactive SSH shell channel (golang.org/x/crypto/ssh). All variants expose
// the same surface: write, resize, idempotent close, and an output sink that
// receives the byte stream and exactly one end-of-stream notification.
package adapter

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// Kind identifies the transport behind a session.
type Kind string

const (
	KindLocal  Kind = "local"
	KindTelnet Kind = "telnet"
	KindSSH    Kind = "ssh"
)

// State is the lifecycle state of an adapter. There is no transition out of
// StateClosed or StateFailed.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrNotConnected is returned by Write and Resize when the adapter is not in
// StateOpen. Callers get it immediately rather than blocking on a dead peer.
var ErrNotConnected = errors.New("session not connected")

// Sink receives an adapter's output stream. Data is called from the adapter's
// reader goroutine in read order. Closed is called exactly once when the
// stream ends: err is nil for a clean peer close and non-nil otherwise.
// Implementations must not block for long; a slow consumer holds up only the
// session it is attached to.
type Sink interface {
	Data(p []byte)
	Closed(err error)
}

// Adapter is one live console transport. Implementations are safe for
// concurrent use.
type Adapter interface {
	// Write forwards raw bytes to the underlying resource. Fails fast with
	// ErrNotConnected outside StateOpen.
	Write(p []byte) error
	// Resize propagates new terminal geometry. A no-op for transports with
	// no resize signal (Telnet).
	Resize(cols, rows uint16) error
	// Close releases the OS process or socket. Idempotent: closing an
	// already-closed adapter is not an error.
	Close() error
	// State reports the current lifecycle state.
	State() State
	// Kind reports the transport variant.
	Kind() Kind
}

// lifecycle tracks adapter state transitions with the single-exit invariant:
// once closed or failed, the state never changes again.
type lifecycle struct {
	state atomic.Int32
}

func (l *lifecycle) State() State { return State(l.state.Load()) }

func (l *lifecycle) setOpen() bool {
	return l.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))
}

// finish moves to Closed or Failed and reports whether this call performed
// the transition. Exactly one caller wins.
func (l *lifecycle) finish(failed bool) bool {
	to := StateClosed
	if failed {
		to = StateFailed
	}
	if l.state.CompareAndSwap(int32(StateOpen), int32(to)) {
		return true
	}
	return l.state.CompareAndSwap(int32(StateConnecting), int32(to))
}

// readBufferSize is the chunk size for all adapter reader loops.
const readBufferSize = 8192
