package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"ncm-portal/internal/audit"
	"ncm-portal/internal/auth"
	"ncm-portal/internal/directory"
	"ncm-portal/internal/gateway"
	invpostgres "ncm-portal/internal/inventory/infrastructure/postgres"
	"ncm-portal/internal/nodeapi"
	"ncm-portal/internal/observability/metrics"
	"ncm-portal/internal/reconcile"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	cfg, err := LoadConfig()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	db, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}
	if err := invpostgres.EnsureSchema(context.Background(), db); err != nil {
		logger.Fatalf("db schema error: %v", err)
	}

	metrics.Init()

	deviceRepo := invpostgres.NewDeviceRepository(db)
	auditRepo := audit.NewRepository(db)

	var dir auth.DirectoryBinder
	if cfg.LDAP.URL != "" {
		client, err := directory.NewClient(
			cfg.LDAP.URL,
			cfg.LDAP.BindUser,
			cfg.LDAP.BindPassword,
			cfg.LDAP.BaseDN,
			time.Duration(cfg.LDAP.Timeout),
		)
		if err != nil {
			logger.Fatalf("directory client error: %v", err)
		}
		dir = client
	}

	devBypass := cfg.DevBypassActive()
	if devBypass {
		logger.Printf("WARNING: development login bypass is ENABLED; the fixed test credentials are accepted")
	}
	authenticator, err := auth.NewAuthenticator(dir, cfg.LDAP.AllowedGroups, devBypass, logger)
	if err != nil {
		logger.Fatalf("authenticator error: %v", err)
	}

	sessionStore := auth.NewMemoryStore(time.Duration(cfg.Auth.SessionTTL), time.Duration(cfg.Auth.SessionIdle))
	auth.StartJanitor(context.Background(), sessionStore, 5*time.Minute)
	sessions := auth.NewManager(sessionStore, cfg.HTTP.Secure)

	apiClient, err := nodeapi.NewClient(cfg.API.BaseURL, time.Duration(cfg.API.Timeout))
	if err != nil {
		logger.Fatalf("collector api client error: %v", err)
	}

	reconciler, err := reconcile.NewReconciler(deviceRepo, apiClient, logger)
	if err != nil {
		logger.Fatalf("reconciler error: %v", err)
	}

	handler, err := gateway.NewHandler(authenticator, sessions, reconciler, deviceRepo, auditRepo, logger, cfg.HTTP.StaticDir)
	if err != nil {
		logger.Fatalf("gateway handler error: %v", err)
	}

	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: loggingMiddleware(gateway.NewRouter(handler), logger),
	}
	logger.Printf("http listening on %s", cfg.HTTP.Addr)
	logger.Fatal(server.ListenAndServe())
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		metrics.ObserveHTTPRequest(r.Method, resp.status)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
