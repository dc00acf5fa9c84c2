package flow

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// GetAbsoluteURL resolves path against the request's external base,
// honouring reverse-proxy forwarding headers.
func GetAbsoluteURL(r *http.Request, path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		if r.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return scheme + "://" + host + path
}

// newState binds a flow attempt to its user: "<nonce>.<userID>". The state
// parameter is echoed back by every hop, so the userID survives the round
// trip without any server-side session record.
func newState(userID string) string {
	return uuid.NewString() + "." + userID
}

// parseState recovers the userID embedded by newState.
func parseState(state string) (string, bool) {
	nonce, userID, ok := strings.Cut(state, ".")
	if !ok || nonce == "" || userID == "" {
		return "", false
	}
	return userID, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
