package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP module (simplified)
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "authrelay",
			Subsystem: "http",
			Name:      "request_total",
			Help:      "Total number of HTTP requests by method and path",
		},
		[]string{"method", "path", "code"},
	)

	// OAuth flow counters, labelled by the hop that produced them
	FlowStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "authrelay",
		Subsystem: "flow",
		Name:      "started_total",
		Help:      "Number of OAuth flows started via /auth/init",
	})
	FlowRelayed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "authrelay",
		Subsystem: "flow",
		Name:      "relayed_total",
		Help:      "Number of provider callbacks forwarded to the aggregator",
	})
	FlowCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "authrelay",
		Subsystem: "flow",
		Name:      "completed_total",
		Help:      "Number of flows that finished with a persisted token",
	})
	FlowFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authrelay",
		Subsystem: "flow",
		Name:      "failed_total",
		Help:      "Number of aborted flows by stage and error code",
	}, []string{"stage", "code"})

	// Token exchange round trip to the aggregator
	ExchangeDuration = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace: "authrelay",
		Subsystem: "exchange",
		Name:      "duration_seconds",
		Help:      "Duration of the code-for-token exchange call",
	})

	// Persisted tokens
	TokensStored = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "authrelay",
		Subsystem: "store",
		Name:      "tokens_stored_total",
		Help:      "Number of token records written to the store",
	})

	// Webhook notifications by outcome (ok, error, skipped)
	WebhookNotify = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authrelay",
		Subsystem: "webhook",
		Name:      "notify_total",
		Help:      "Number of webhook notification attempts by outcome",
	}, []string{"outcome"})
)

// Init initializes metrics and registers collectors (idempotent).
var initOnce = new(struct{ done bool })

func Init() {
	if initOnce.done {
		return
	}
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(FlowStarted)
	prometheus.MustRegister(FlowRelayed)
	prometheus.MustRegister(FlowCompleted)
	prometheus.MustRegister(FlowFailed)
	prometheus.MustRegister(ExchangeDuration)
	prometheus.MustRegister(TokensStored)
	prometheus.MustRegister(WebhookNotify)
	initOnce.done = true
}

// Handler returns a Prometheus metrics HTTP handler.
func Handler() http.Handler { return promhttp.Handler() }

// IncHTTP increments HTTP request counters.
func IncHTTP(method, path, code string) {
	httpRequestsTotal.WithLabelValues(method, path, code).Inc()
}

// IncFlowFailed increments the aborted-flow counter for a stage.
func IncFlowFailed(stage, code string) {
	FlowFailed.WithLabelValues(stage, code).Inc()
}

// IncWebhook increments the webhook notification counter.
func IncWebhook(outcome string) {
	WebhookNotify.WithLabelValues(outcome).Inc()
}
