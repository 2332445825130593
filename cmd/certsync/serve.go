package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	api "github.com/mind-engage/certsync/internal/api/http"
	auth "github.com/mind-engage/certsync/internal/auth/middleware"
	"github.com/mind-engage/certsync/internal/certreq"
	"github.com/mind-engage/certsync/internal/config"
	"github.com/mind-engage/certsync/internal/monitoring"
	"github.com/mind-engage/certsync/internal/rbac"
)

const devSecret = "certsync-dev-secret"

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the monitoring scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				secret := cfg.Auth.HMACSecret
				if secret == "" {
					log.Warn("auth.hmac_secret not set; using development secret")
					secret = devSecret
				}
				authSvc := auth.NewAuthService(secret, cfg.Auth.TokenTTL)

				if cfg.Monitoring.Enabled {
					mon, err := monitoring.NewMonitor(cfg.Monitoring.Schedule, a.metrics, a.alerts, log)
					if err != nil {
						return err
					}
					mon.Start()
					defer func() { <-mon.Stop().Done() }()
				}
				config.Watch(v, log, func(c config.Config) {
					for _, r := range c.Monitoring.Rules {
						if err := a.alerts.AddRule(r); err != nil {
							log.Error("reload alert rule", zap.String("rule", r.ID), zap.Error(err))
						}
					}
				})

				srv := &http.Server{
					Addr:              cfg.Server.Addr,
					Handler:           newRouter(a, authSvc, localUsers(cfg.Auth)),
					ReadHeaderTimeout: 10 * time.Second,
				}
				go func() {
					<-ctx.Done()
					sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
					defer cancel()
					_ = srv.Shutdown(sctx)
				}()
				log.Info("listening",
					zap.String("addr", cfg.Server.Addr),
					zap.String("mode", string(cfg.Server.Mode)),
					zap.String("db", cfg.Database.Driver),
					zap.String("store", cfg.Store.Kind))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func localUsers(c config.AuthConfig) auth.Users {
	if !c.LocalLogin || c.AdminPassHash == "" {
		return nil
	}
	return auth.Users{c.AdminUser: {PassHash: c.AdminPassHash, Role: "admin"}}
}

// newRouter mounts every route. Protected routes go JWT → role in context → RBAC.
func newRouter(a *app, authSvc *auth.AuthService, users auth.Users) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, api.RequestLogger(a.log), middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.cfg.Server.CORSOrigins(),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if users != nil {
		r.Post("/auth/login", auth.LoginHandler(authSvc, users))
	}

	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))

		// sync routes are not time-boxed; batches run to completion
		pr.With(rbac.Require(rbac.PermSyncRun)).
			Post("/certificate-requests/{id}/sync", api.SyncRequestHandler(a.sync))
		pr.With(rbac.Require(rbac.PermSyncBatch)).
			Post("/sync/batch", api.SyncBatchHandler(a.sync))
		pr.With(rbac.Require(rbac.PermSyncBatch)).
			Post("/batches/{id}/sync", api.SyncGroupHandler(a.sync, certreq.GroupBatch))
		pr.With(rbac.Require(rbac.PermSyncBatch)).
			Post("/rosters/{id}/sync", api.SyncGroupHandler(a.sync, certreq.GroupRoster))

		pr.Group(func(mr chi.Router) {
			mr.Use(middleware.Timeout(30 * time.Second))
			mr.With(rbac.RequireAny(rbac.PermLMSProbe, rbac.PermMonitoringManage)).
				Get("/lms/ping", api.LMSPingHandler(a.lms))
			mr.With(rbac.Require(rbac.PermMonitoringView)).
				Get("/monitoring/health", api.HealthHandler(a.health))
			mr.With(rbac.Require(rbac.PermMonitoringView)).
				Get("/monitoring/metrics", api.MetricsHandler(a.metrics))
			mr.With(rbac.Require(rbac.PermMonitoringView)).
				Get("/monitoring/alerts", api.AlertsHandler(a.alerts))
			mr.With(rbac.Require(rbac.PermMonitoringView)).
				Get("/monitoring/audit", api.AuditHandler(a.audit, time.Now))
			mr.With(rbac.Require(rbac.PermMonitoringManage)).
				Post("/monitoring/alerts/{id}/ack", api.AckAlertHandler(a.alerts))
			mr.With(rbac.Require(rbac.PermMonitoringManage)).
				Post("/monitoring/rules", api.AddRuleHandler(a.alerts))
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", api.ReadyHandler(a.db))
	return r
}
