package backend

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	chmw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/maniack/authrelay/internal/flow"
	"github.com/maniack/authrelay/internal/logging"
	"github.com/maniack/authrelay/internal/monitoring"
	"github.com/maniack/authrelay/internal/tokenstore"
)

type MonitoringConfig struct {
	MetricsEndpoint string
	HealthzEndpoint string
}

type Config struct {
	Store           tokenstore.Store
	Logger          *logrus.Logger
	Version         string
	CORSAllowOrigin []string
	Monitoring      MonitoringConfig

	Flow flow.Config
}

type Server struct {
	Router chi.Router
	store  tokenstore.Store
	log    *logrus.Logger
	cfg    Config
	flow   *flow.Handler
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		logging.Init(false, false)
		cfg.Logger = logging.L()
	}
	if cfg.Store == nil {
		cfg.Store = tokenstore.NewMemoryStore()
	}
	if cfg.Monitoring.MetricsEndpoint == "" {
		cfg.Monitoring.MetricsEndpoint = "/metrics"
	}
	if cfg.Monitoring.HealthzEndpoint == "" {
		cfg.Monitoring.HealthzEndpoint = "/healthz"
	}

	monitoring.Init()

	s := &Server{store: cfg.Store, log: cfg.Logger, cfg: cfg}
	s.flow = flow.NewHandler(cfg.Logger, cfg.Flow, cfg.Store)
	r := chi.NewRouter()
	s.Router = r

	// Middlewares
	r.Use(chmw.RequestID)
	r.Use(chmw.RealIP)
	r.Use(chmw.Recoverer)
	r.Use(RequestLogger(cfg.Logger, "/health", cfg.Monitoring.HealthzEndpoint+"/alive", cfg.Monitoring.HealthzEndpoint+"/ready"))
	r.Use(SecurityHeaders())

	co := cors.Options{
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}
	if len(cfg.CORSAllowOrigin) == 0 {
		co.AllowOriginFunc = func(r *http.Request, origin string) bool {
			if origin == "" {
				return false
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			return u.Host == r.Host
		}
	} else {
		co.AllowedOrigins = cfg.CORSAllowOrigin
	}
	r.Use(cors.Handler(co))

	// OAuth relay flow
	r.Route("/auth", func(r chi.Router) {
		r.Get("/init", s.flow.HandleInit)
		r.Get("/relay", s.flow.HandleRelay)
		r.Get("/callback", s.flow.HandleCallback)
		r.Get("/success", s.handleSuccess)
	})

	// Diagnostic sink for completed flows
	r.Get("/email/connected", s.handleConnected)

	// Liveness probe: static OK, independent of store or aggregator health
	r.Get("/health", s.handleHealth)

	// Healthz
	r.Route(cfg.Monitoring.HealthzEndpoint, func(r chi.Router) {
		r.Get("/alive", s.handleAlive)
		r.Get("/ready", s.handleReady)
	})
	// Metrics
	r.Handle(cfg.Monitoring.MetricsEndpoint, monitoring.Handler())

	return s, nil
}
