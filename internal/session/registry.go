package session

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/packetmux/packetmux/internal/adapter"
)

// writeQueueSize bounds the per-session write queue. Broadcast enqueues and
// returns; a full queue means the peer has stalled and the write fails for
// that session only.
const writeQueueSize = 256

// Config carries the registry's tunables.
type Config struct {
	// Highlight, when set, is applied to Telnet and SSH output before it is
	// published to subscribers. Local shell output is never highlighted.
	Highlight func(string) string
	// KnownHostsPath enables SSH host-key verification when non-empty.
	KnownHostsPath string
	// TelnetTimeout and SSHTimeout bound connection attempts. Zero values
	// fall back to the adapter defaults.
	TelnetTimeout time.Duration
	SSHTimeout    time.Duration
}

// entry is the registry's internal record for one session. The entry mutex
// guards metadata only; the adapter and write queue have their own
// synchronization so metadata reads never wait on transport I/O.
type entry struct {
	id string

	mu        sync.Mutex
	name      string
	kind      adapter.Kind
	host      string
	port      int
	username  string
	group     string
	broadcast bool
	failure   string

	ad     adapter.Adapter // nil when the connection attempt failed
	writeQ chan []byte
	done   chan struct{}
}

func (e *entry) snapshot() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	state := adapter.StateFailed.String()
	if e.ad != nil {
		state = e.ad.State().String()
	}
	return Session{
		ID:        e.id,
		Name:      e.name,
		Kind:      e.kind,
		Host:      e.host,
		Port:      e.port,
		Username:  e.username,
		Group:     e.group,
		Broadcast: e.broadcast,
		State:     state,
		Failure:   e.failure,
	}
}

// Registry tracks all sessions and groups. All methods are safe for
// concurrent use; List returns snapshots so iteration never observes a
// half-mutated entry.
type Registry struct {
	cfg Config

	mu       sync.RWMutex
	sessions map[string]*entry
	groups   map[string]Group

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
	dropped uint64
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:      cfg,
		sessions: make(map[string]*entry),
		groups:   make(map[string]Group),
		subs:     make(map[int]chan Event),
	}
}

// SpawnLocal starts a local shell session. The returned id is valid even
// when the spawn fails; the session then exists in a failed state.
func (r *Registry) SpawnLocal(cfg adapter.LocalConfig, name string) (string, error) {
	e := r.newEntry(adapter.KindLocal, name)
	if e.name == "" {
		e.name = "shell"
	}
	ad, err := adapter.OpenLocal(cfg, r.sinkFor(e))
	return r.install(e, ad, err)
}

// ConnectTelnet opens a Telnet console session.
func (r *Registry) ConnectTelnet(host string, port int, name string) (string, error) {
	e := r.newEntry(adapter.KindTelnet, name)
	e.host, e.port = host, port
	if e.name == "" {
		e.name = fmt.Sprintf("%s:%d", host, port)
	}
	ad, err := adapter.OpenTelnet(adapter.TelnetConfig{
		Host:        host,
		Port:        port,
		DialTimeout: r.cfg.TelnetTimeout,
	}, r.sinkFor(e))
	return r.install(e, ad, err)
}

// ConnectSSH opens an SSH console session.
func (r *Registry) ConnectSSH(cfg adapter.SSHConfig, name string) (string, error) {
	e := r.newEntry(adapter.KindSSH, name)
	e.host, e.port, e.username = cfg.Host, cfg.Port, cfg.Username
	if e.name == "" {
		e.name = fmt.Sprintf("%s@%s", cfg.Username, cfg.Host)
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = r.cfg.SSHTimeout
	}
	if cfg.KnownHostsPath == "" {
		cfg.KnownHostsPath = r.cfg.KnownHostsPath
	}
	ad, err := adapter.OpenSSH(cfg, r.sinkFor(e))
	return r.install(e, ad, err)
}

func (r *Registry) newEntry(kind adapter.Kind, name string) *entry {
	return &entry{
		id:        uuid.New().String(),
		name:      name,
		kind:      kind,
		broadcast: true,
		done:      make(chan struct{}),
	}
}

// install registers the entry and, on a successful open, starts its writer
// goroutine. A failed open still registers the entry so the caller keeps the
// session id and can surface the failure.
func (r *Registry) install(e *entry, ad adapter.Adapter, err error) (string, error) {
	if err != nil {
		e.mu.Lock()
		e.failure = err.Error()
		e.mu.Unlock()
	} else {
		e.mu.Lock()
		e.ad = ad
		e.writeQ = make(chan []byte, writeQueueSize)
		e.mu.Unlock()
		go r.writeLoop(e, ad)
	}

	r.mu.Lock()
	r.sessions[e.id] = e
	total := len(r.sessions)
	r.mu.Unlock()

	if err != nil {
		log.Printf("[registry] session %s (%s) failed to open: %v", e.id, e.kind, err)
		r.publish(Event{Type: EventStatus, SessionID: e.id, Kind: e.kind,
			Status: StatusError, Message: err.Error()})
		return e.id, err
	}

	log.Printf("[registry] session %s (%s) opened, total=%d", e.id, e.kind, total)
	r.publish(Event{Type: EventStatus, SessionID: e.id, Kind: e.kind,
		Status: StatusConnected, Message: connectMessage(e)})
	return e.id, nil
}

func connectMessage(e *entry) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.kind {
	case adapter.KindTelnet:
		return fmt.Sprintf("Connected to %s:%d", e.host, e.port)
	case adapter.KindSSH:
		return fmt.Sprintf("Connected to %s@%s:%d", e.username, e.host, e.port)
	default:
		return "Shell started"
	}
}

// writeLoop drains a session's write queue into its adapter. Contention is
// confined to this one session: a slow or hung peer backs up its own queue
// and nothing else.
func (r *Registry) writeLoop(e *entry, ad adapter.Adapter) {
	for {
		select {
		case p := <-e.writeQ:
			if err := ad.Write(p); err != nil {
				if err == adapter.ErrNotConnected {
					return
				}
				log.Printf("[registry] session %s write failed: %v", e.id, err)
				r.publish(Event{Type: EventStatus, SessionID: e.id, Kind: e.kind,
					Status: StatusWarning, Message: fmt.Sprintf("write failed: %v", err)})
			}
		case <-e.done:
			return
		}
	}
}

// sinkFor binds an adapter's output stream to the registry's event fan-out.
func (r *Registry) sinkFor(e *entry) adapter.Sink {
	return &registrySink{r: r, e: e}
}

type registrySink struct {
	r *Registry
	e *entry
}

func (s *registrySink) Data(p []byte) {
	text := string(p)
	// Device consoles get syntax highlighting; a local shell is rendered
	// as-is.
	if s.e.kind != adapter.KindLocal && s.r.cfg.Highlight != nil {
		text = s.r.cfg.Highlight(text)
	}
	s.r.publish(Event{Type: EventOutput, SessionID: s.e.id, Kind: s.e.kind, Data: text})
}

func (s *registrySink) Closed(err error) {
	close(s.e.done)
	if err != nil {
		log.Printf("[registry] session %s ended with error: %v", s.e.id, err)
		s.r.publish(Event{Type: EventStatus, SessionID: s.e.id, Kind: s.e.kind,
			Status: StatusError, Message: err.Error()})
		return
	}
	s.r.publish(Event{Type: EventStatus, SessionID: s.e.id, Kind: s.e.kind,
		Status: StatusDisconnected, Message: "Connection closed"})
}

// Remove closes the session's adapter and deletes it. Removing an unknown or
// already-removed id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	remaining := len(r.sessions)
	r.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	ad := e.ad
	e.mu.Unlock()
	if ad != nil {
		ad.Close()
	}
	log.Printf("[registry] session %s removed, remaining=%d", id, remaining)
}

// List returns a snapshot of every session, ordered by name for stable
// display.
func (r *Registry) List() []Session {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]Session, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns a snapshot of one session.
func (r *Registry) Get(id string) (Session, error) {
	e, err := r.entry(id)
	if err != nil {
		return Session{}, err
	}
	return e.snapshot(), nil
}

func (r *Registry) entry(id string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// WriteTo queues bytes for delivery to one session. The write is issued when
// this returns; delivery happens on the session's writer goroutine. A full
// queue fails immediately rather than blocking the caller.
func (r *Registry) WriteTo(id string, p []byte) error {
	e, err := r.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	ad, q := e.ad, e.writeQ
	e.mu.Unlock()
	if ad == nil || ad.State() != adapter.StateOpen {
		return adapter.ErrNotConnected
	}
	select {
	case q <- p:
		return nil
	case <-e.done:
		return adapter.ErrNotConnected
	default:
		return fmt.Errorf("session %s: write queue full", id)
	}
}

// Resize propagates new terminal geometry to one session.
func (r *Registry) Resize(id string, cols, rows uint16) error {
	e, err := r.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	ad := e.ad
	e.mu.Unlock()
	if ad == nil {
		return adapter.ErrNotConnected
	}
	return ad.Resize(cols, rows)
}

// Rename changes a session's display name.
func (r *Registry) Rename(id, name string) error {
	e, err := r.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.name = name
	e.mu.Unlock()
	return nil
}

// SetBroadcastEnabled flips a session's participation in broadcasts.
func (r *Registry) SetBroadcastEnabled(id string, enabled bool) error {
	e, err := r.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.broadcast = enabled
	e.mu.Unlock()
	return nil
}

// SetGroup assigns a session to a group, or clears its group when groupID is
// empty. The group must exist.
func (r *Registry) SetGroup(id, groupID string) error {
	if groupID != "" {
		r.mu.RLock()
		_, ok := r.groups[groupID]
		r.mu.RUnlock()
		if !ok {
			return ErrGroupNotFound
		}
	}
	e, err := r.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.group = groupID
	e.mu.Unlock()
	return nil
}

// Subscribe registers an event consumer. Events are delivered on a buffered
// channel; when the consumer falls behind, events are dropped for that
// consumer only. The returned cancel function releases the subscription.
func (r *Registry) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 1024
	}
	ch := make(chan Event, buffer)

	r.subMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	r.subMu.Unlock()

	return ch, func() {
		r.subMu.Lock()
		delete(r.subs, id)
		r.subMu.Unlock()
	}
}

// DroppedEvents reports how many events were discarded because a subscriber
// buffer was full.
func (r *Registry) DroppedEvents() uint64 {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	return r.dropped
}

func (r *Registry) publish(ev Event) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default:
			r.dropped++
		}
	}
}

// CloseAll tears down every session. Used at shutdown.
func (r *Registry) CloseAll() {
	for _, s := range r.List() {
		r.Remove(s.ID)
	}
}

// --- groups ---

// CreateGroup adds a new group and returns it.
func (r *Registry) CreateGroup(name, color string) Group {
	g := Group{ID: uuid.New().String(), Name: name, Color: color}
	r.mu.Lock()
	r.groups[g.ID] = g
	r.mu.Unlock()
	return g
}

// RenameGroup changes a group's display name.
func (r *Registry) RenameGroup(id, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[id]
	if !ok {
		return ErrGroupNotFound
	}
	g.Name = name
	r.groups[id] = g
	return nil
}

// RemoveGroup deletes a group. Members are orphaned, never deleted: their
// group id is cleared.
func (r *Registry) RemoveGroup(id string) error {
	r.mu.Lock()
	_, ok := r.groups[id]
	if !ok {
		r.mu.Unlock()
		return ErrGroupNotFound
	}
	delete(r.groups, id)
	members := make([]*entry, 0)
	for _, e := range r.sessions {
		members = append(members, e)
	}
	r.mu.Unlock()

	for _, e := range members {
		e.mu.Lock()
		if e.group == id {
			e.group = ""
		}
		e.mu.Unlock()
	}
	return nil
}

// Groups returns all groups ordered by name.
func (r *Registry) Groups() []Group {
	r.mu.RLock()
	out := make([]Group, 0, len(r.groups))
	for _, g := range r.groups {
		out = append(out, g)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FindGroup resolves a group by exact case-insensitive name match.
func (r *Registry) FindGroup(name string) (Group, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, g := range r.groups {
		if strings.EqualFold(g.Name, name) {
			return g, true
		}
	}
	return Group{}, false
}

// FindGroupBySubstring resolves the first group whose name contains the
// fragment, case-insensitively, in name order for determinism.
func (r *Registry) FindGroupBySubstring(fragment string) (Group, bool) {
	needle := strings.ToLower(fragment)
	for _, g := range r.Groups() {
		if strings.Contains(strings.ToLower(g.Name), needle) {
			return g, true
		}
	}
	return Group{}, false
}
