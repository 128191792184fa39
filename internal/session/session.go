// Package session owns the set of live console sessions.
//
// The Registry is the single source of truth mapping session id to adapter
// and metadata. It is the only place adapters are created and destroyed, it
// serializes each session's writes through a per-session queue so one hung
// peer never delays another, and it fans output and status events out to
// subscribers with bounded buffering.
package session

import (
	"errors"

	"github.com/packetmux/packetmux/internal/adapter"
)

// ErrNotFound is returned for operations addressing an unknown session id.
var ErrNotFound = errors.New("session not found")

// ErrGroupNotFound is returned when a group id or name does not resolve.
var ErrGroupNotFound = errors.New("group not found")

// Session is an immutable snapshot of one session's metadata. Snapshots are
// safe to hold across concurrent registry mutation.
type Session struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Kind      adapter.Kind `json:"kind"`
	Host      string       `json:"host,omitempty"`
	Port      int          `json:"port,omitempty"`
	Username  string       `json:"username,omitempty"`
	Group     string       `json:"group,omitempty"`
	Broadcast bool         `json:"broadcast"`
	State     string       `json:"state"`
	// Failure holds the last connection error for sessions that exist but
	// never opened, so the UI can offer a retry without losing the tab.
	Failure string `json:"failure,omitempty"`
}

// Group is a named collection of sessions. The color tag is carried for the
// UI; routing never consults it.
type Group struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Status values carried by status events.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	// StatusWarning reports a non-fatal per-session problem, such as a
	// failed write. The session stays usable.
	StatusWarning Status = "warning"
	// StatusError is terminal: the session failed to open or its stream
	// ended with an error.
	StatusError Status = "error"
)

// EventType discriminates registry events.
type EventType string

const (
	EventOutput EventType = "output"
	EventStatus EventType = "status"
)

// Event is one notification pushed to subscribers, tagged by session id.
// Output events carry Data; status events carry Status and Message.
type Event struct {
	Type      EventType    `json:"type"`
	SessionID string       `json:"sessionId"`
	Kind      adapter.Kind `json:"kind"`
	Data      string       `json:"data,omitempty"`
	Status    Status       `json:"status,omitempty"`
	Message   string       `json:"message,omitempty"`
}
