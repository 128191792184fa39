package gateway

import (
	"net/http"
	"strconv"

	"github.com/packetmux/packetmux/internal/logging"
)

// serverLogs returns the tail of the application log for the UI's
// diagnostics view.
func (s *Server) serverLogs(w http.ResponseWriter, r *http.Request) {
	lines := 200
	if q := r.URL.Query().Get("lines"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			lines = n
		}
	}

	content, err := logging.ReadTail(lines)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"logs": content})
}
