package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/packetmux/packetmux/internal/adapter"
	"github.com/packetmux/packetmux/internal/profile"
)

func (s *Server) listProfiles(w http.ResponseWriter, r *http.Request) {
	if s.profiles == nil {
		writeError(w, http.StatusServiceUnavailable, "profile store not available")
		return
	}
	profiles, err := s.profiles.List()
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"profiles": profiles})
}

func (s *Server) createProfile(w http.ResponseWriter, r *http.Request) {
	if s.profiles == nil {
		writeError(w, http.StatusServiceUnavailable, "profile store not available")
		return
	}
	var p profile.Profile
	if !decodeBody(w, r, &p) {
		return
	}
	created, err := s.profiles.Create(p)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	if s.profiles == nil {
		writeError(w, http.StatusServiceUnavailable, "profile store not available")
		return
	}
	var p profile.Profile
	if !decodeBody(w, r, &p) {
		return
	}
	p.ID = chi.URLParam(r, "id")
	updated, err := s.profiles.Update(p)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteProfile(w http.ResponseWriter, r *http.Request) {
	if s.profiles == nil {
		writeError(w, http.StatusServiceUnavailable, "profile store not available")
		return
	}
	if err := s.profiles.Delete(chi.URLParam(r, "id")); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// connectProfile opens a session from a saved profile. Credentials are never
// persisted, so the request body supplies the password or key passphrase.
func (s *Server) connectProfile(w http.ResponseWriter, r *http.Request) {
	if s.profiles == nil {
		writeError(w, http.StatusServiceUnavailable, "profile store not available")
		return
	}
	p, err := s.profiles.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeOpError(w, err)
		return
	}

	var body struct {
		Password   string `json:"password"`
		Passphrase string `json:"passphrase"`
		Cols       uint16 `json:"cols"`
		Rows       uint16 `json:"rows"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	switch p.Kind {
	case "telnet":
		id, err := s.reg.ConnectTelnet(p.Host, p.Port, p.Name)
		respondCreate(w, id, err)
	case "ssh":
		auth := adapter.SSHAuth{Password: body.Password}
		if p.AuthMethod == "publickey" {
			auth = adapter.SSHAuth{KeyPath: p.KeyPath, Passphrase: body.Passphrase}
		}
		id, err := s.reg.ConnectSSH(adapter.SSHConfig{
			Host:     p.Host,
			Port:     p.Port,
			Username: p.Username,
			Auth:     auth,
			Cols:     body.Cols,
			Rows:     body.Rows,
		}, p.Name)
		respondCreate(w, id, err)
	default:
		writeError(w, http.StatusBadRequest, "profile has unknown connection kind")
	}
}

// --- session logs ---

func (s *Server) listSessionLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeError(w, http.StatusServiceUnavailable, "session logging not available")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs": s.logs.List(chi.URLParam(r, "id")),
	})
}

func (s *Server) startSessionLog(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeError(w, http.StatusServiceUnavailable, "session logging not available")
		return
	}
	var body struct {
		Filename string `json:"filename"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if _, err := s.reg.Get(chi.URLParam(r, "id")); err != nil {
		writeOpError(w, err)
		return
	}
	if err := s.logs.Start(chi.URLParam(r, "id"), body.Filename); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logging"})
}

func (s *Server) stopSessionLog(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeError(w, http.StatusServiceUnavailable, "session logging not available")
		return
	}
	var body struct {
		Filename string `json:"filename"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.logs.Stop(chi.URLParam(r, "id"), body.Filename); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}
