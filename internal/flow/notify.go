package flow

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/maniack/authrelay/internal/monitoring"
	"github.com/sirupsen/logrus"
)

const notifyTimeout = 10 * time.Second

// Notifier signals flow completion to an external webhook. Delivery is
// fire-and-forget with its own deadline; failures are logged and counted,
// never propagated into the flow outcome.
type Notifier struct {
	url    string
	log    *logrus.Logger
	client *http.Client
}

// NewNotifier constructs Notifier. An empty URL makes Notify a no-op.
func NewNotifier(url string, log *logrus.Logger) *Notifier {
	return &Notifier{
		url:    url,
		log:    log,
		client: &http.Client{Timeout: notifyTimeout},
	}
}

// Notify POSTs {"userId": ...} to the webhook from a detached goroutine.
func (n *Notifier) Notify(userID string) {
	if n.url == "" {
		monitoring.IncWebhook("skipped")
		return
	}
	go n.deliver(userID)
}

func (n *Notifier) deliver(userID string) {
	log := n.log.WithFields(logrus.Fields{"webhook": n.url, "user_id": userID})

	payload, err := json.Marshal(map[string]string{"userId": userID})
	if err != nil {
		monitoring.IncWebhook("error")
		log.WithError(err).Error("failed to encode webhook payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		monitoring.IncWebhook("error")
		log.WithError(err).Error("failed to build webhook request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		monitoring.IncWebhook("error")
		log.WithError(err).Error("webhook notification failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		monitoring.IncWebhook("error")
		log.WithField("status", resp.StatusCode).Error("webhook notification rejected")
		return
	}

	monitoring.IncWebhook("ok")
	log.Info("webhook notification sent")
}
