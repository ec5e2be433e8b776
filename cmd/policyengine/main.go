package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/kubilitics/policy-engine/internal/actions"
	"github.com/kubilitics/policy-engine/internal/api/middleware"
	"github.com/kubilitics/policy-engine/internal/api/rest"
	"github.com/kubilitics/policy-engine/internal/authz"
	"github.com/kubilitics/policy-engine/internal/config"
	"github.com/kubilitics/policy-engine/internal/evaluator"
	"github.com/kubilitics/policy-engine/internal/orchestrator"
	"github.com/kubilitics/policy-engine/internal/orgconfig"
	"github.com/kubilitics/policy-engine/internal/platform"
	"github.com/kubilitics/policy-engine/internal/pkg/tracing"
	"github.com/kubilitics/policy-engine/internal/queue"
	"github.com/kubilitics/policy-engine/internal/store"
	"github.com/kubilitics/policy-engine/internal/webhook"
	"github.com/kubilitics/policy-engine/migrations"
)

const dailyScanCron = "0 0 * * *"

func main() {
	log.Println("policy-engine starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	shutdownTracing, err := tracing.Init(cfg.TracingServiceName, cfg.TracingEndpoint, cfg.TracingSamplingRate)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}
	defer shutdownTracing()

	st, err := store.Open(cfg.ConnectionString)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer st.Close()

	if err := runMigrations(ctx, st); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	platformClient, err := platform.New(platform.Config{
		AppID:          cfg.GitHubAppID,
		PrivateKeyPEM:  cfg.GitHubAppPrivateKey,
		InstallationID: cfg.GitHubAppInstallationID,
		Organization:   cfg.GitHubAppOrganization,
		BaseURL:        cfg.GitHubAppBaseURL,
	}, nil)
	if err != nil {
		log.Fatalf("failed to initialize platform client: %v", err)
	}

	cfgLoader := orgconfig.NewLoader(platformClient, cfg.GitHubAppOrganization)
	registry := evaluator.NewRegistry()
	authorizer := authz.New(platformClient, cfgLoader, cfg.TestModeEnabled, logger)

	jobQueue := queue.New(st, logger, cfg.QueueWorkerCount)

	orch := orchestrator.New(platformClient, cfgLoader, registry, st, jobQueue, cfg.GitHubAppOrganization, logger)
	actionExecutor := actions.New(platformClient, st, cfgLoader, logger)
	prProcessor := webhook.NewProcessor(platformClient, cfgLoader, registry, actionExecutor, logger)
	webhookHandler := webhook.NewHandler(cfg.GitHubAppWebhookSecret, st, jobQueue, logger)

	jobQueue.RegisterHandler("daily-scan", func(jobCtx context.Context, _ string) error {
		return orch.PerformScan(jobCtx)
	})
	jobQueue.RegisterHandler("process-actions-for-scan", func(jobCtx context.Context, argsJSON string) error {
		var args struct {
			ScanID int64 `json:"scan_id"`
		}
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return fmt.Errorf("process-actions-for-scan: decode args: %w", err)
		}
		return actionExecutor.ProcessScan(jobCtx, args.ScanID)
	})
	jobQueue.RegisterHandler("handle-pr", prProcessor.HandlePullRequestEvent)

	if err := jobQueue.Recurring("daily-scan", dailyScanCron, "daily-scan", nil); err != nil {
		log.Fatalf("failed to register recurring scan: %v", err)
	}

	router := buildRouter(cfg, st, webhookHandler, authorizer, orch, logger)

	srv, listener, actualPort := bindServer(cfg, router)
	defer listener.Close()

	go jobQueue.Start(ctx)

	go func() {
		log.Printf("listening on http://localhost:%d", actualPort)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down")
	cancel()

	shutdownTimeout := 10 * time.Second
	if cfg.ShutdownTimeoutSec > 0 {
		shutdownTimeout = time.Duration(cfg.ShutdownTimeoutSec) * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced to shutdown: %v", err)
	}
	log.Println("exited gracefully")
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func runMigrations(ctx context.Context, st *store.Store) error {
	entries, err := migrations.FS.ReadDir(".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	for _, entry := range entries {
		sqlBytes, err := migrations.FS.ReadFile(entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if err := st.RunMigration(ctx, entry.Name(), string(sqlBytes)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		log.Printf("applied migration %s", entry.Name())
	}
	return nil
}

func buildRouter(cfg *config.Config, st *store.Store, webhookHandler *webhook.Handler, authorizer *authz.Authorizer, orch *orchestrator.Orchestrator, logger *slog.Logger) http.Handler {
	router := mux.NewRouter()

	router.Handle("/api/webhooks/github", webhookHandler).Methods(http.MethodPost)

	healthz := rest.NewHealthzHandler(st)
	router.HandleFunc("/healthz", healthz.Live).Methods(http.MethodGet)
	router.HandleFunc("/healthz/live", healthz.Live).Methods(http.MethodGet)
	router.HandleFunc("/healthz/ready", healthz.Ready).Methods(http.MethodGet)

	router.Handle("/metrics", middleware.MetricsAuth(authorizer, cfg.MetricsAuthEnabled)(promhttp.Handler())).Methods(http.MethodGet)

	// Queue dashboard equivalent (spec §6 "/hangfire (or equivalent)"), gated by C9.
	queueDashboard := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		depth, err := st.QueueDepth(r.Context())
		if err != nil {
			respondErrorJSON(w, http.StatusInternalServerError, "failed to read queue depth")
			return
		}
		respondOKJSON(w, map[string]int{"queue_depth": depth})
	})
	router.Handle("/hangfire", middleware.Auth(authorizer, cfg.ReadAPIAuthEnabled)(queueDashboard)).Methods(http.MethodGet)

	if cfg.DevRoutesEnabled {
		router.HandleFunc("/verify-scan", func(w http.ResponseWriter, r *http.Request) {
			if err := orch.PerformScan(r.Context()); err != nil {
				respondErrorJSON(w, http.StatusInternalServerError, err.Error())
				return
			}
			respondOKJSON(w, map[string]string{"status": "scan completed"})
		}).Methods(http.MethodGet)

		router.HandleFunc("/log-job", func(w http.ResponseWriter, r *http.Request) {
			depth, err := st.QueueDepth(r.Context())
			if err != nil {
				respondErrorJSON(w, http.StatusInternalServerError, err.Error())
				return
			}
			respondOKJSON(w, map[string]int{"queue_depth": depth})
		}).Methods(http.MethodGet)
	}

	scanHandler := rest.NewScanHandler(st)
	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	apiRouter.HandleFunc("/scans", scanHandler.ListScans).Methods(http.MethodGet)
	apiRouter.HandleFunc("/scans/{id}", scanHandler.GetScan).Methods(http.MethodGet)
	apiRouter.HandleFunc("/repositories/{id}/violations", scanHandler.ListRepositoryViolations).Methods(http.MethodGet)
	apiRouter.Use(func(next http.Handler) http.Handler {
		return middleware.Auth(authorizer, cfg.ReadAPIAuthEnabled)(next)
	})

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "not found"})
	})

	router.Use(middleware.Tracing)
	router.Use(middleware.SecureHeaders)
	router.Use(middleware.RequestID)
	router.Use(middleware.StructuredLog)
	router.Use(middleware.RateLimit())
	router.Use(middleware.MaxBodySize(middleware.DefaultStandardMaxBodyBytes, middleware.DefaultWebhookMaxBodyBytes))
	router.Use(middleware.CORSValidation(cfg, logger))
	router.Use(recoveryMiddleware)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Content-Type", "X-User-Login", "X-Hub-Signature-256", "X-GitHub-Event", "X-GitHub-Delivery"},
		AllowCredentials: true,
	})
	return corsHandler.Handler(router)
}

func bindServer(cfg *config.Config, handler http.Handler) (*http.Server, net.Listener, int) {
	readTimeout := 15 * time.Second
	writeTimeout := 15 * time.Second
	if cfg.RequestTimeoutSec > 0 {
		readTimeout = time.Duration(cfg.RequestTimeoutSec) * time.Second
		writeTimeout = time.Duration(cfg.RequestTimeoutSec) * time.Second
	}

	maxPort := cfg.Port + 99
	if maxPort > 65535 {
		maxPort = 65535
	}
	var listener net.Listener
	var actualPort int
	for port := cfg.Port; port <= maxPort; port++ {
		l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			var errno *syscall.Errno
			if errors.As(err, &errno) && *errno == syscall.EADDRINUSE {
				continue
			}
			log.Fatalf("failed to listen: %v", err)
		}
		listener = l
		actualPort = port
		break
	}
	if listener == nil {
		log.Fatalf("no port available in range %d..%d", cfg.Port, maxPort)
	}

	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return srv, listener, actualPort
}

func respondOKJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body)
}

func respondErrorJSON(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("panic recovered: %v", err)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
