package backend

import (
	"encoding/json"
	"net/http"
	"time"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAlive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	if err := s.store.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleSuccess is the default landing page after a completed flow, used
// when no OAUTH_SUCCESS_URL is configured.
func (s *Server) handleSuccess(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Email authentication completed successfully!",
	})
}

// handleConnected is a diagnostic sink: it logs whatever query parameters
// arrive and confirms receipt, so end-to-end flow tests have a target.
func (s *Server) handleConnected(w http.ResponseWriter, r *http.Request) {
	params := map[string]string{}
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	s.log.WithContext(r.Context()).WithField("params", params).Info("connected callback received")

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "success",
		"message":         "OAuth flow completed successfully",
		"received_params": params,
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}

// helpers
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
