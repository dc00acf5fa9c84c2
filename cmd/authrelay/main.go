package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/maniack/authrelay/internal/backend"
	"github.com/maniack/authrelay/internal/flow"
	"github.com/maniack/authrelay/internal/logging"
	"github.com/maniack/authrelay/internal/tokenstore"
	"github.com/urfave/cli/v3"
)

var (
	Version   string = "v0.0.0-dev"
	BuildTime string = ""
)

func init() {
	if BuildTime == "" || len(BuildTime) == 0 {
		BuildTime = time.Now().Format(time.RFC3339)
	}
}

func main() {
	// Local development convenience; missing .env is not an error.
	_ = godotenv.Load()

	buildTime, err := time.Parse(time.RFC3339, BuildTime)
	if err != nil {
		buildTime = time.Now()
	}

	cmd := &cli.Command{
		Name:        "authrelay",
		Usage:       "runs the OAuth relay server",
		Description: "authrelay — OAuth relay for email authentication via Aurinko",
		Version:     fmt.Sprintf("%s @ %s", Version, buildTime.Format(time.RFC3339)),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Usage: "Bind host", Value: "0.0.0.0", Sources: cli.EnvVars("HOST")},
			&cli.StringFlag{Name: "port", Usage: "Bind port", Value: "8000", Sources: cli.EnvVars("PORT")},
			&cli.StringFlag{Name: "base-url", Usage: "External base URL for redirect targets; inferred from forwarding headers when empty", Sources: cli.EnvVars("BASE_URL")},
			&cli.StringSliceFlag{Name: "cors-origin", Usage: "CORS allowed origin", Value: []string{"*"}, Sources: cli.EnvVars("CORS_ORIGIN")},
			&cli.BoolFlag{Name: "debug", Usage: "Enable debug logging", Sources: cli.EnvVars("DEBUG")},
			&cli.StringFlag{Name: "log-format", Usage: "Log format (text or json)", Value: "text", Sources: cli.EnvVars("LOG_FORMAT")},
			&cli.StringFlag{Name: "metrics-endpoint", Usage: "", Value: "/metrics", Sources: cli.EnvVars("METRICS_ENDPOINT")},
			&cli.StringFlag{Name: "healthz-endpoint", Usage: "", Value: "/healthz", Sources: cli.EnvVars("HEALTHZ_ENDPOINT")},
			&cli.StringFlag{Category: "aggregator", Name: "client-id", Usage: "Aggregator OAuth client ID", Sources: cli.EnvVars("CLIENT_ID", "AURINKO_CLIENT_ID")},
			&cli.StringFlag{Category: "aggregator", Name: "client-secret", Usage: "Aggregator OAuth client secret", Sources: cli.EnvVars("CLIENT_SECRET", "AURINKO_CLIENT_SECRET")},
			&cli.StringFlag{Category: "aggregator", Name: "service-type", Usage: "Upstream identity provider", Value: "Google", Sources: cli.EnvVars("SERVICE_TYPE")},
			&cli.StringSliceFlag{Category: "aggregator", Name: "scopes", Usage: "Requested mail scopes", Value: flow.DefaultScopes, Sources: cli.EnvVars("SCOPES")},
			&cli.StringFlag{Category: "flow", Name: "oauth-success-url", Usage: "Redirect URL after a completed flow", Sources: cli.EnvVars("OAUTH_SUCCESS_URL")},
			&cli.StringFlag{Category: "flow", Name: "webhook-url", Usage: "Webhook notified after each persisted token", Sources: cli.EnvVars("WEBHOOK_URL")},
			&cli.StringFlag{Category: "storage", Name: "store-url", Usage: "Redis DSN for token persistence, e.g. redis://localhost:6379/0", Sources: cli.EnvVars("STORE_URL", "REDIS_URL")},
			&cli.StringFlag{Category: "storage", Name: "store-prefix", Usage: "Redis key prefix", Value: "authrelay:", Sources: cli.EnvVars("STORE_PREFIX")},
		},
		Commands: []*cli.Command{
			{
				Name:  "healthz",
				Usage: "health checks",
				Commands: []*cli.Command{
					{
						Name:  "alive",
						Usage: "shows application liveness",
						Action: func(ctx context.Context, c *cli.Command) error {
							livenessEndpoint := "http://localhost:" + c.String("port") + c.String("healthz-endpoint") + "/alive"
							clnt := &http.Client{}
							_, err := clnt.Get(livenessEndpoint)
							if err != nil {
								fmt.Println("FAIL")
								return err
							}
							fmt.Println("ALIVE")
							return nil
						},
					},
					{
						Name:  "ready",
						Usage: "shows application readiness",
						Action: func(ctx context.Context, c *cli.Command) error {
							readinessEndpoint := "http://localhost:" + c.String("port") + c.String("healthz-endpoint") + "/ready"
							clnt := &http.Client{}
							_, err := clnt.Get(readinessEndpoint)
							if err != nil {
								fmt.Println("FAIL")
								return err
							}
							fmt.Println("READY")
							return nil
						},
					},
				},
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			logging.Init(c.Bool("debug"), c.String("log-format") == "json")
			log := logging.L()

			var store tokenstore.Store
			if c.String("store-url") != "" {
				var err error
				store, err = tokenstore.NewRedisStore(c.String("store-url"), c.String("store-prefix"))
				if err != nil {
					log.Fatalf("open token store: %v", err)
				}
			} else {
				log.Warn("STORE_URL not set, tokens are held in memory only")
				store = tokenstore.NewMemoryStore()
			}
			defer store.Close()

			cfg := backend.Config{
				Store:           store,
				Logger:          log,
				Version:         c.Version,
				CORSAllowOrigin: c.StringSlice("cors-origin"),
				Monitoring: backend.MonitoringConfig{
					MetricsEndpoint: c.String("metrics-endpoint"),
					HealthzEndpoint: c.String("healthz-endpoint"),
				},
				Flow: flow.Config{
					ClientID:     c.String("client-id"),
					ClientSecret: c.String("client-secret"),
					ServiceType:  c.String("service-type"),
					Scopes:       c.StringSlice("scopes"),
					BaseURL:      c.String("base-url"),
					SuccessURL:   c.String("oauth-success-url"),
					WebhookURL:   c.String("webhook-url"),
				},
			}

			srv, err := backend.NewServer(cfg)
			if err != nil {
				log.Fatalf("init server: %v", err)
			}

			addr := bindAddr(c.String("host"), c.String("port"))
			web := &http.Server{
				Addr:              addr,
				Handler:           srv.Router,
				ReadTimeout:       15 * time.Second,
				ReadHeaderTimeout: 10 * time.Second,
				WriteTimeout:      60 * time.Second,
				IdleTimeout:       120 * time.Second,
			}
			log.Infof("authrelay listening on %s", addr)
			if err := web.ListenAndServe(); err != nil {
				log.Fatalf("http server: %v", err)
			}
			return nil
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		// If initialization failed and didn't fatal, print error
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

// bindAddr composes host:port, bracketing bare IPv6 hosts.
func bindAddr(host, port string) string {
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	return host + ":" + port
}
