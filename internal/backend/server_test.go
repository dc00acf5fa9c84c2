package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/maniack/authrelay/internal/flow"
	"github.com/maniack/authrelay/internal/logging"
	"github.com/maniack/authrelay/internal/tokenstore"
)

func newTestServer(t *testing.T, fc flow.Config) *Server {
	t.Helper()
	logging.Init(false, false)
	s, err := NewServer(Config{
		Store:      tokenstore.NewMemoryStore(),
		Logger:     logging.L(),
		Monitoring: MonitoringConfig{},
		Flow:       fc,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return s
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, flow.Config{})
	r := s.Router

	// /health answers regardless of flow or store configuration
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("health code = %d", w.Code)
	}
	var resp map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["status"] != "ok" {
		t.Fatalf("health body = %s", w.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, flow.Config{})
	r := s.Router
	// alive
	req := httptest.NewRequest(http.MethodGet, "/healthz/alive", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("alive code = %d", w.Code)
	}
	// ready
	req2 := httptest.NewRequest(http.MethodGet, "/healthz/ready", nil)
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req2)
	if w2.Code != http.StatusOK {
		t.Fatalf("ready code = %d", w2.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, flow.Config{})
	// prime the http counter so the family shows up in the scrape
	warm := httptest.NewRecorder()
	s.Router.ServeHTTP(warm, httptest.NewRequest(http.MethodGet, "/health", nil))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics code = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "authrelay_http_request_total") {
		t.Fatalf("metrics output missing http counter")
	}
}

func TestConnectedSink(t *testing.T) {
	s := newTestServer(t, flow.Config{})
	req := httptest.NewRequest(http.MethodGet, "/email/connected?userId=u1&extra=x", nil)
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("connected code = %d", w.Code)
	}
	var resp struct {
		Status   string            `json:"status"`
		Received map[string]string `json:"received_params"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "success" || resp.Received["userId"] != "u1" || resp.Received["extra"] != "x" {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestSuccessPage(t *testing.T) {
	s := newTestServer(t, flow.Config{})
	req := httptest.NewRequest(http.MethodGet, "/auth/success?userId=u1", nil)
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("success code = %d", w.Code)
	}
	var resp map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["status"] != "success" {
		t.Fatalf("success body = %s", w.Body.String())
	}
}

// TestFullFlow drives all three hops through the router against a fake
// aggregator and checks the token lands in the store.
func TestFullFlow(t *testing.T) {
	agg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v1/auth/token/") {
			t.Errorf("unexpected aggregator path: %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"accessToken":"tok-e2e","accountId":5}`)
	}))
	defer agg.Close()

	fc := flow.Config{
		ClientID:              "client-1",
		ClientSecret:          "secret-1",
		BaseURL:               "https://relay.example.test",
		TokenURL:              agg.URL + "/v1/auth/token",
		AggregatorCallbackURL: "https://aggregator.example.test/v1/auth/callback",
	}
	s := newTestServer(t, fc)
	r := s.Router

	// Hop 0: init issues the authorize redirect
	req := httptest.NewRequest(http.MethodGet, "/auth/init?userId=e2e-user", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusFound {
		t.Fatalf("init code = %d, body=%s", w.Code, w.Body.String())
	}
	authorize, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse authorize url: %v", err)
	}
	state := authorize.Query().Get("state")
	if state == "" {
		t.Fatal("authorize url carries no state")
	}

	// Hop 1: provider calls back, relay forwards to the aggregator
	req2 := httptest.NewRequest(http.MethodGet, "/auth/relay?code=provider-code&state="+url.QueryEscape(state), nil)
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req2)
	if w2.Code != http.StatusFound {
		t.Fatalf("relay code = %d", w2.Code)
	}
	if !strings.HasPrefix(w2.Header().Get("Location"), fc.AggregatorCallbackURL+"?") {
		t.Fatalf("relay target = %s", w2.Header().Get("Location"))
	}

	// Hop 2: aggregator calls back, token exchanged and persisted
	req3 := httptest.NewRequest(http.MethodGet, "/auth/callback?code=agg-code&state="+url.QueryEscape(state), nil)
	w3 := httptest.NewRecorder()
	r.ServeHTTP(w3, req3)
	if w3.Code != http.StatusFound {
		t.Fatalf("callback code = %d, body=%s", w3.Code, w3.Body.String())
	}
	loc, _ := url.Parse(w3.Header().Get("Location"))
	if loc.Query().Get("userId") != "e2e-user" {
		t.Fatalf("success redirect userId = %q", loc.Query().Get("userId"))
	}
	if loc.Path != "/auth/success" {
		t.Fatalf("success redirect path = %q", loc.Path)
	}

	tok, err := s.store.Get(context.Background(), "e2e-user")
	if err != nil {
		t.Fatalf("token not stored: %v", err)
	}
	if string(tok) != `{"accessToken":"tok-e2e","accountId":5}` {
		t.Fatalf("stored token = %s", tok)
	}
}

func TestCallbackErrorThroughRouter(t *testing.T) {
	s := newTestServer(t, flow.Config{ClientID: "c", ClientSecret: "s"})
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?state=n.u1", nil)
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400", w.Code)
	}
	var resp map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["error"] != flow.CodeMissingParameter {
		t.Fatalf("error = %q", resp["error"])
	}
}
