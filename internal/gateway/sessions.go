package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/packetmux/packetmux/internal/adapter"
	"github.com/packetmux/packetmux/internal/broadcast"
)

type sshAuthBody struct {
	Password   string `json:"password,omitempty"`
	KeyPath    string `json:"keyPath,omitempty"`
	Passphrase string `json:"passphrase,omitempty"`
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": s.reg.List()})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.reg.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) spawnLocal(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name  string `json:"name"`
		Shell string `json:"shell"`
		Cols  uint16 `json:"cols"`
		Rows  uint16 `json:"rows"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	id, err := s.reg.SpawnLocal(adapter.LocalConfig{
		Shell: body.Shell, Cols: body.Cols, Rows: body.Rows,
	}, body.Name)
	respondCreate(w, id, err)
}

func (s *Server) connectTelnet(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
		Host string `json:"host"`
		Port int    `json:"port"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Host == "" || body.Port <= 0 || body.Port > 65535 {
		writeError(w, http.StatusBadRequest, "host and port are required")
		return
	}
	id, err := s.reg.ConnectTelnet(body.Host, body.Port, body.Name)
	respondCreate(w, id, err)
}

func (s *Server) connectSSH(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string      `json:"name"`
		Host     string      `json:"host"`
		Port     int         `json:"port"`
		Username string      `json:"username"`
		Auth     sshAuthBody `json:"auth"`
		Cols     uint16      `json:"cols"`
		Rows     uint16      `json:"rows"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Host == "" || body.Username == "" {
		writeError(w, http.StatusBadRequest, "host and username are required")
		return
	}
	if body.Port == 0 {
		body.Port = 22
	}
	id, err := s.reg.ConnectSSH(adapter.SSHConfig{
		Host:     body.Host,
		Port:     body.Port,
		Username: body.Username,
		Auth: adapter.SSHAuth{
			Password:   body.Auth.Password,
			KeyPath:    body.Auth.KeyPath,
			Passphrase: body.Auth.Passphrase,
		},
		Cols: body.Cols,
		Rows: body.Rows,
	}, body.Name)
	respondCreate(w, id, err)
}

// respondCreate reports a connect result. A failed connect still carries the
// session id: the tab exists in a failed state and the user may retry.
func respondCreate(w http.ResponseWriter, id string, err error) {
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"id":    id,
			"error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) removeSession(w http.ResponseWriter, r *http.Request) {
	s.reg.Remove(chi.URLParam(r, "id"))
	if s.logs != nil {
		s.logs.CloseSession(chi.URLParam(r, "id"))
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) updateSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		Name      *string `json:"name"`
		Broadcast *bool   `json:"broadcast"`
		Group     *string `json:"group"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Name != nil {
		if err := s.reg.Rename(id, *body.Name); err != nil {
			writeOpError(w, err)
			return
		}
	}
	if body.Broadcast != nil {
		if err := s.reg.SetBroadcastEnabled(id, *body.Broadcast); err != nil {
			writeOpError(w, err)
			return
		}
	}
	if body.Group != nil {
		if err := s.reg.SetGroup(id, *body.Group); err != nil {
			writeOpError(w, err)
			return
		}
	}
	sess, err := s.reg.Get(id)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) writeSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Data string `json:"data"`
		Key  string `json:"key"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	data := []byte(body.Data)
	if body.Key != "" {
		b, ok := broadcast.TranslateKey(body.Key)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown key name")
			return
		}
		data = b
	}
	if err := s.reg.WriteTo(chi.URLParam(r, "id"), data); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "written"})
}

func (s *Server) resizeSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Cols uint16 `json:"cols"`
		Rows uint16 `json:"rows"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Cols == 0 || body.Rows == 0 {
		writeError(w, http.StatusBadRequest, "cols and rows are required")
		return
	}
	if err := s.reg.Resize(chi.URLParam(r, "id"), body.Cols, body.Rows); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resized"})
}

// --- broadcast & commands ---

func (s *Server) broadcastInput(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Data string `json:"data"`
		Key  string `json:"key"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	data := body.Data
	if body.Key != "" {
		b, ok := broadcast.TranslateKey(body.Key)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown key name")
			return
		}
		data = string(b)
	}
	failures := s.router.Broadcast(data)
	resp := map[string]interface{}{"delivered": true}
	if len(failures) > 0 {
		errs := make([]map[string]string, 0, len(failures))
		for _, f := range failures {
			errs = append(errs, map[string]string{
				"sessionId": f.SessionID,
				"name":      f.Name,
				"error":     f.Err.Error(),
			})
		}
		resp["failures"] = errs
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) execCommand(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Line string `json:"line"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	consumed := s.router.Exec(body.Line)
	writeJSON(w, http.StatusOK, map[string]bool{"consumed": consumed})
}

func (s *Server) getTarget(w http.ResponseWriter, r *http.Request) {
	mode, group := s.router.Mode()
	writeJSON(w, http.StatusOK, map[string]string{
		"mode":        mode.String(),
		"group":       group,
		"viewedGroup": s.router.ViewedGroup(),
	})
}
