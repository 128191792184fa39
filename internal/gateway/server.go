// Package gateway exposes the session core to the external renderer.
//
// Requests are plain HTTP endpoints (session, group, and profile CRUD,
// write/resize, broadcast, colon-commands); output and status events are
// pushed over a WebSocket, tagged by session id. The gateway owns no session
// state: it translates between the wire and the registry/router.
package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/packetmux/packetmux/internal/broadcast"
	"github.com/packetmux/packetmux/internal/profile"
	"github.com/packetmux/packetmux/internal/session"
	"github.com/packetmux/packetmux/internal/sessionlog"
)

// Server wires the HTTP surface to the core components.
type Server struct {
	reg      *session.Registry
	router   *broadcast.Router
	profiles *profile.Store
	logs     *sessionlog.Manager
}

// New creates a gateway server over the given components. profiles and logs
// may be nil; their endpoints then answer 503.
func New(reg *session.Registry, router *broadcast.Router, profiles *profile.Store, logs *sessionlog.Manager) *Server {
	return &Server{reg: reg, router: router, profiles: profiles, logs: logs}
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/sessions", s.listSessions)
		r.Post("/sessions/local", s.spawnLocal)
		r.Post("/sessions/telnet", s.connectTelnet)
		r.Post("/sessions/ssh", s.connectSSH)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Patch("/", s.updateSession)
			r.Delete("/", s.removeSession)
			r.Post("/write", s.writeSession)
			r.Post("/resize", s.resizeSession)
			r.Get("/logs", s.listSessionLogs)
			r.Post("/logs", s.startSessionLog)
			r.Delete("/logs", s.stopSessionLog)
		})

		r.Get("/server/logs", s.serverLogs)

		r.Post("/broadcast", s.broadcastInput)
		r.Post("/command", s.execCommand)
		r.Get("/target", s.getTarget)

		r.Get("/groups", s.listGroups)
		r.Post("/groups", s.createGroup)
		r.Patch("/groups/{id}", s.renameGroup)
		r.Delete("/groups/{id}", s.removeGroup)

		r.Get("/profiles", s.listProfiles)
		r.Post("/profiles", s.createProfile)
		r.Put("/profiles/{id}", s.updateProfile)
		r.Delete("/profiles/{id}", s.deleteProfile)
		r.Post("/profiles/{id}/connect", s.connectProfile)
	})

	r.Get("/ws", s.eventsWS)

	return r
}
