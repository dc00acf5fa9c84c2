package flow

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/maniack/authrelay/internal/monitoring"
	"github.com/maniack/authrelay/internal/tokenstore"
	"github.com/sirupsen/logrus"
)

// Handler bundles the three-endpoint relay flow: init builds the
// aggregator-facing authorize redirect, relay forwards the provider
// callback, callback exchanges the code and persists the token.
type Handler struct {
	log      *logrus.Logger
	cfg      Config
	store    tokenstore.Store
	notifier *Notifier
	client   *http.Client
}

// NewHandler constructs Handler.
func NewHandler(log *logrus.Logger, cfg Config, store tokenstore.Store) *Handler {
	cfg = cfg.withDefaults()
	return &Handler{
		log:      log,
		cfg:      cfg,
		store:    store,
		notifier: NewNotifier(cfg.WebhookURL, log),
		client:   &http.Client{Timeout: cfg.ExchangeTimeout},
	}
}

// HandleInit starts a flow: GET /auth/init?userId=...
func (h *Handler) HandleInit(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		h.fail(w, r, "init", ErrInvalidInput("userId query parameter is required"))
		return
	}
	if !h.cfg.credentialsSet() {
		h.fail(w, r, "init", ErrServerMisconfigured("client credentials are not configured"))
		return
	}

	state := newState(userID)
	returnURL := h.baseURL(r) + "/auth/callback"

	q := url.Values{}
	q.Set("clientId", h.cfg.ClientID)
	q.Set("serviceType", h.cfg.ServiceType)
	q.Set("scopes", strings.Join(h.cfg.Scopes, " "))
	q.Set("responseType", "code")
	q.Set("returnUrl", returnURL)
	q.Set("state", state)
	authorizeURL := h.cfg.AuthorizeURL + "?" + q.Encode()

	monitoring.FlowStarted.Inc()
	h.log.WithContext(r.Context()).WithFields(logrus.Fields{
		"flow":    "init",
		"user_id": userID,
	}).Info("starting oauth flow")
	http.Redirect(w, r, authorizeURL, http.StatusFound)
}

// HandleRelay forwards the identity provider's callback to the aggregator:
// GET /auth/relay?code=...&state=...
//
// No token exchange happens here. The hop only re-targets the browser,
// carrying the provider's query string across unchanged.
func (h *Handler) HandleRelay(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("code") == "" {
		h.fail(w, r, "relay", ErrMissingParameter("code query parameter is required"))
		return
	}
	if q.Get("state") == "" {
		h.fail(w, r, "relay", ErrMissingParameter("state query parameter is required"))
		return
	}

	forwardURL := h.cfg.AggregatorCallbackURL + "?" + r.URL.RawQuery
	monitoring.FlowRelayed.Inc()
	h.log.WithContext(r.Context()).WithField("flow", "relay").Debug("forwarding provider callback to aggregator")
	http.Redirect(w, r, forwardURL, http.StatusFound)
}

// HandleCallback completes a flow: GET /auth/callback?code=...&state=...
// Exchanges the code, persists the token, notifies the webhook and
// redirects to the success destination. The store write always completes
// before the redirect response is written.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := q.Get("code")
	state := q.Get("state")
	if code == "" {
		h.fail(w, r, "callback", ErrMissingParameter("code query parameter is required"))
		return
	}
	if state == "" {
		h.fail(w, r, "callback", ErrMissingParameter("state query parameter is required"))
		return
	}
	userID, ok := parseState(state)
	if !ok {
		h.fail(w, r, "callback", ErrInvalidInput("state carries no user id"))
		return
	}
	if !h.cfg.credentialsSet() {
		h.fail(w, r, "callback", ErrServerMisconfigured("client credentials are not configured"))
		return
	}

	log := h.log.WithContext(r.Context()).WithFields(logrus.Fields{
		"flow":    "callback",
		"user_id": userID,
	})

	token, err := h.exchange(r.Context(), code)
	if err != nil {
		log.WithError(err).Error("token exchange failed")
		h.fail(w, r, "callback", ErrExchangeFailed("token exchange with aggregator failed"))
		return
	}

	if err := h.store.Put(r.Context(), userID, token); err != nil {
		log.WithError(err).Error("failed to persist token")
		h.fail(w, r, "callback", ErrStoreUnavailable("token could not be persisted"))
		return
	}
	monitoring.TokensStored.Inc()
	monitoring.FlowCompleted.Inc()

	// Best effort; a slow or dead webhook never delays the redirect.
	h.notifier.Notify(userID)

	log.Info("oauth flow complete")
	http.Redirect(w, r, h.successURL(r, userID), http.StatusFound)
}

// baseURL returns the configured external base URL, or infers one from the
// inbound request when BASE_URL is unset.
func (h *Handler) baseURL(r *http.Request) string {
	if h.cfg.BaseURL != "" {
		return strings.TrimSuffix(h.cfg.BaseURL, "/")
	}
	return GetAbsoluteURL(r, "")
}

// successURL appends userId to the configured success destination so the
// landing page can tell which user completed the flow.
func (h *Handler) successURL(r *http.Request, userID string) string {
	target := h.cfg.SuccessURL
	if target == "" {
		target = h.baseURL(r) + "/auth/success"
	}
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set("userId", userID)
	u.RawQuery = q.Encode()
	return u.String()
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, stage string, ferr *FlowError) {
	monitoring.IncFlowFailed(stage, ferr.Code)
	h.log.WithContext(r.Context()).WithFields(logrus.Fields{
		"flow":   stage,
		"status": ferr.Status,
	}).WithError(errors.New(ferr.Description)).Warn(ferr.Code)
	writeJSON(w, ferr.Status, map[string]string{"error": ferr.Code, "detail": ferr.Description})
}
