// Package broadcast routes keystrokes to subsets of live sessions.
//
// The Router owns the broadcast target mode (all sessions, the viewed group,
// or a named group), parses the colon-command language that drives it, and
// fans each keystroke out to every matching session. Delivery is attempted
// per session; one closed or hung session never aborts the rest of the batch.
package broadcast

import (
	"log"
	"strings"
	"sync"

	"github.com/packetmux/packetmux/internal/session"
)

// Mode is the broadcast target mode. Exactly one is active at a time.
type Mode int

const (
	// TargetAll fans keystrokes to every broadcast-enabled session.
	TargetAll Mode = iota
	// TargetActiveGroup restricts fan-out to the currently viewed group.
	TargetActiveGroup
	// TargetExplicitGroup restricts fan-out to a named group, independent
	// of what is being viewed.
	TargetExplicitGroup
)

func (m Mode) String() string {
	switch m {
	case TargetActiveGroup:
		return "active-group"
	case TargetExplicitGroup:
		return "explicit-group"
	default:
		return "all"
	}
}

// SessionError records one session's delivery failure during a broadcast.
type SessionError struct {
	SessionID string
	Name      string
	Err       error
}

// Router resolves the current target mode against the registry and delivers
// keystrokes. Safe for concurrent use.
type Router struct {
	reg *session.Registry

	mu            sync.Mutex
	mode          Mode
	explicitGroup string // group id for TargetExplicitGroup
	viewedGroup   string // group id being viewed; "" means all
}

// NewRouter creates a router in TargetAll mode.
func NewRouter(reg *session.Registry) *Router {
	return &Router{reg: reg}
}

// Mode returns the active target mode and, for TargetExplicitGroup, the
// chosen group id.
func (r *Router) Mode() (Mode, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode, r.explicitGroup
}

// ViewedGroup returns the group id the renderer is filtered to, or "" when
// viewing all sessions.
func (r *Router) ViewedGroup() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewedGroup
}

// SetViewedGroup records which group the renderer is displaying. It does not
// change the broadcast target mode.
func (r *Router) SetViewedGroup(groupID string) {
	r.mu.Lock()
	r.viewedGroup = groupID
	r.mu.Unlock()
}

// SetModeAll switches targeting to every enabled session.
func (r *Router) SetModeAll() {
	r.mu.Lock()
	r.mode = TargetAll
	r.explicitGroup = ""
	r.mu.Unlock()
}

// SetModeActiveGroup targets whatever group is being viewed. A no-op when no
// group is viewed.
func (r *Router) SetModeActiveGroup() {
	r.mu.Lock()
	if r.viewedGroup != "" {
		r.mode = TargetActiveGroup
	}
	r.mu.Unlock()
}

// SetModeExplicitGroup targets the given group regardless of the view.
func (r *Router) SetModeExplicitGroup(groupID string) {
	r.mu.Lock()
	r.mode = TargetExplicitGroup
	r.explicitGroup = groupID
	r.mu.Unlock()
}

// Targets returns the sessions the current mode would deliver to: the
// broadcast-enabled subset of the registry, filtered by group per the mode.
func (r *Router) Targets() []session.Session {
	r.mu.Lock()
	mode, explicit, viewed := r.mode, r.explicitGroup, r.viewedGroup
	r.mu.Unlock()

	var out []session.Session
	for _, s := range r.reg.List() {
		if !s.Broadcast {
			continue
		}
		switch mode {
		case TargetActiveGroup:
			if s.Group != viewed {
				continue
			}
		case TargetExplicitGroup:
			if s.Group != explicit {
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

// Broadcast issues one write of keystroke to every session matching the
// active target mode. Each delivery is attempted independently; failures are
// collected per session and returned, never aborting the batch. Every write
// has been issued by the time Broadcast returns.
func (r *Router) Broadcast(keystroke string) []SessionError {
	var failures []SessionError
	for _, s := range r.Targets() {
		if err := r.reg.WriteTo(s.ID, []byte(keystroke)); err != nil {
			failures = append(failures, SessionError{SessionID: s.ID, Name: s.Name, Err: err})
		}
	}
	return failures
}

// Exec handles one line of input: colon-commands are parsed and applied and
// reported as consumed; anything else is the caller's to broadcast as
// keystrokes. Unrecognized or unresolvable commands are consumed with no
// side effect.
func (r *Router) Exec(line string) bool {
	cmd, ok := ParseCommand(line)
	if !ok {
		return false
	}
	r.Apply(cmd)
	return true
}

// Apply performs a parsed command's state change.
func (r *Router) Apply(cmd Command) {
	switch cmd.Kind {
	case CmdAll:
		r.SetModeAll()
		log.Printf("[router] broadcast target: all sessions")

	case CmdLocal:
		r.SetModeActiveGroup()

	case CmdGroup:
		g, found := r.reg.FindGroup(cmd.Arg)
		if !found {
			// Unresolved name leaves the mode unchanged.
			return
		}
		r.SetModeExplicitGroup(g.ID)
		log.Printf("[router] broadcast target: group %q", g.Name)

	case CmdMove:
		r.applyMove(cmd)

	case CmdSwitch:
		if strings.EqualFold(cmd.Arg, "all") {
			r.SetViewedGroup("")
			return
		}
		if g, found := r.reg.FindGroupBySubstring(cmd.Arg); found {
			r.SetViewedGroup(g.ID)
		}

	case CmdHelp, CmdUnknown:
		// Consumed, no session mutation.
	}
}

// applyMove resolves the glob pattern against session display names and
// moves every match into the group named by the fragment, or ungroups the
// matches when no fragment was given.
func (r *Router) applyMove(cmd Command) {
	targetGroup := ""
	if cmd.Fragment != "" {
		g, found := r.reg.FindGroupBySubstring(cmd.Fragment)
		if !found {
			return
		}
		targetGroup = g.ID
	}

	moved := 0
	for _, s := range r.reg.List() {
		if !MatchGlob(cmd.Arg, s.Name) {
			continue
		}
		if err := r.reg.SetGroup(s.ID, targetGroup); err != nil {
			log.Printf("[router] move %q: %v", s.Name, err)
			continue
		}
		moved++
	}
	if moved > 0 {
		log.Printf("[router] moved %d session(s) matching %q", moved, cmd.Arg)
	}
}
