package flow

import "time"

// Aurinko endpoints used when the config leaves them empty.
// Tests point them at a local httptest server instead.
const (
	defaultAuthorizeURL = "https://api.aurinko.io/v1/auth/authorize"
	defaultCallbackURL  = "https://api.aurinko.io/v1/auth/callback"
	defaultTokenURL     = "https://api.aurinko.io/v1/auth/token"

	defaultServiceType     = "Google"
	defaultExchangeTimeout = 15 * time.Second
)

// DefaultScopes are the mail scopes requested when none are configured.
var DefaultScopes = []string{"Mail.Read", "Mail.Send"}

// Config holds the relay's aggregator credentials and flow endpoints.
// It is loaded once at startup and passed down immutable.
type Config struct {
	// Aggregator client credentials (CLIENT_ID / CLIENT_SECRET).
	ClientID     string
	ClientSecret string

	// Upstream identity provider selector and requested scopes.
	ServiceType string
	Scopes      []string

	// Aggregator endpoints. Empty fields fall back to the Aurinko API.
	AuthorizeURL          string
	AggregatorCallbackURL string
	TokenURL              string

	// External base URL for the relay/callback redirect targets. When empty
	// the base is inferred per request from forwarding headers and Host.
	BaseURL string

	// Final redirect after a completed flow. Empty means the built-in
	// /auth/success page.
	SuccessURL string

	// Optional webhook notified after each persisted token.
	WebhookURL string

	ExchangeTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ServiceType == "" {
		c.ServiceType = defaultServiceType
	}
	if len(c.Scopes) == 0 {
		c.Scopes = DefaultScopes
	}
	if c.AuthorizeURL == "" {
		c.AuthorizeURL = defaultAuthorizeURL
	}
	if c.AggregatorCallbackURL == "" {
		c.AggregatorCallbackURL = defaultCallbackURL
	}
	if c.TokenURL == "" {
		c.TokenURL = defaultTokenURL
	}
	if c.ExchangeTimeout <= 0 {
		c.ExchangeTimeout = defaultExchangeTimeout
	}
	return c
}

func (c Config) credentialsSet() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}
