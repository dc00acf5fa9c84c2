package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maniack/authrelay/internal/monitoring"
)

// Aggregator token responses are small JSON documents.
const maxTokenBody = 1 << 20

// exchange swaps an authorization code for the aggregator's token payload.
// The code travels in the URL path and the client credentials as HTTP basic
// auth, per the aggregator's token endpoint contract. The raw JSON body is
// returned for persistence as-is.
func (h *Handler) exchange(ctx context.Context, code string) ([]byte, error) {
	start := time.Now()
	endpoint := strings.TrimSuffix(h.cfg.TokenURL, "/") + "/" + url.PathEscape(code)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build exchange request: %w", err)
	}
	req.SetBasicAuth(h.cfg.ClientID, h.cfg.ClientSecret)
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("exchange request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenBody))
	if err != nil {
		return nil, fmt.Errorf("read exchange response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("aggregator returned status %d", resp.StatusCode)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("aggregator returned malformed token payload")
	}

	monitoring.ExchangeDuration.Observe(time.Since(start).Seconds())
	return body, nil
}
