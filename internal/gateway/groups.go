package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) listGroups(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"groups": s.reg.Groups()})
}

func (s *Server) createGroup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Name == "" {
		writeError(w, http.StatusBadRequest, "group name is required")
		return
	}
	writeJSON(w, http.StatusCreated, s.reg.CreateGroup(body.Name, body.Color))
}

func (s *Server) renameGroup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.reg.RenameGroup(chi.URLParam(r, "id"), body.Name); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "renamed"})
}

func (s *Server) removeGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.reg.RemoveGroup(chi.URLParam(r, "id")); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}
