package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/yourorg/librarian/internal/events"
	"github.com/yourorg/librarian/internal/featureflags"
	"github.com/yourorg/librarian/internal/handler"
	"github.com/yourorg/librarian/internal/infrastructure/logger"
	"github.com/yourorg/librarian/internal/infrastructure/redis"
	"github.com/yourorg/librarian/internal/observability/metrics"
	"github.com/yourorg/librarian/internal/observability/tracing"
	"github.com/yourorg/librarian/internal/repository"
	"github.com/yourorg/librarian/internal/security"
	"github.com/yourorg/librarian/internal/security/audit"
	"github.com/yourorg/librarian/internal/security/auth"
	"github.com/yourorg/librarian/internal/security/middleware"
	"github.com/yourorg/librarian/internal/security/ratelimit"
	"github.com/yourorg/librarian/internal/service"
	"github.com/yourorg/librarian/internal/worker"
	"github.com/yourorg/librarian/pkg/config"
	"github.com/yourorg/librarian/pkg/database"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.New(cfg.LogLevel)
	log.Info("starting librarian server", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Initialize tracing (no-op without an OTLP endpoint)
	shutdownTracing, err := tracing.Init(ctx, log, "librarian", cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Connect to PostgreSQL
	pool, err := database.NewConnectionPool(ctx, &database.Config{
		Host:     cfg.DatabaseHost,
		Port:     cfg.DatabasePort,
		User:     cfg.DatabaseUser,
		Password: cfg.DatabasePassword,
		Database: cfg.DatabaseName,
		SSLMode:  cfg.DatabaseSSLMode,
	}, log)
	if err != nil {
		log.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()
	db := pool.GetDB()

	// 5. Connect to Redis. Optional: without it logout revocation is disabled.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Error("failed to connect to Redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer redisClient.Close()
	} else {
		log.Warn("REDIS_URL not set, token revocation disabled")
	}

	// 6. Initialize repositories
	bookRepo := repository.NewPostgresBookRepository(db, log)
	borrowerRepo := repository.NewPostgresBorrowerRepository(db, log)
	loanRepo := repository.NewPostgresLoanRepository(db, log)
	userRepo := repository.NewPostgresUserRepository(db, log)
	reportRepo := repository.NewPostgresReportRepository(db, log)
	txRunner := repository.NewTxRunner(db, log)

	// 7. Initialize security components
	tokenManager := auth.NewTokenManager(cfg.JWTSecret, "librarian")
	revocationStore := auth.NewRevocationStore(redisClient, log)
	authz := security.NewAuthorizationService(log)
	rateLimiter := ratelimit.NewLimiter(cfg.RateLimitPerMinute, time.Minute)
	auditLogger := audit.NewLogger(log)

	// 8. Initialize services
	hub := events.NewHub(log)
	borrowingService := service.NewBorrowingService(bookRepo, borrowerRepo, loanRepo, txRunner, hub, auditLogger, log)
	catalogService := service.NewCatalogService(bookRepo, loanRepo, auditLogger, log)
	borrowerService := service.NewBorrowerService(borrowerRepo, loanRepo, auditLogger, log)
	reportService := service.NewReportService(reportRepo, loanRepo, log)
	authService := service.NewAuthService(userRepo, tokenManager, revocationStore, log)

	// 9. Initialize handlers
	authHandler := handler.NewAuthHandler(authService, log)
	booksHandler := handler.NewBooksHandler(catalogService, log)
	borrowersHandler := handler.NewBorrowersHandler(borrowerService, log)
	borrowingHandler := handler.NewBorrowingHandler(borrowingService, log)
	reportsHandler := handler.NewReportsHandler(reportService, log)
	activityHandler := handler.NewActivityHandler(hub, log, cfg.CORSAllowedOrigins)
	healthHandler := handler.NewHealthHandler(db, redisClient, log)

	perm := func(p security.Permission, h http.HandlerFunc) http.Handler {
		return middleware.RequirePermission(authz, auditLogger, p)(h)
	}

	// 10. Setup HTTP routes
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/auth/logout", authHandler.Logout)
	mux.HandleFunc("GET /api/auth/profile", authHandler.Profile)
	mux.HandleFunc("POST /api/auth/change-password", authHandler.ChangePassword)
	mux.Handle("POST /api/auth/register", perm(security.PermManageUsers, authHandler.Register))

	mux.HandleFunc("GET /api/books", booksHandler.List)
	mux.HandleFunc("GET /api/books/search", booksHandler.Search)
	mux.HandleFunc("GET /api/books/{id}", booksHandler.Get)
	mux.Handle("POST /api/books", perm(security.PermManageBooks, booksHandler.Create))
	mux.Handle("PUT /api/books/{id}", perm(security.PermManageBooks, booksHandler.Update))
	mux.Handle("DELETE /api/books/{id}", perm(security.PermDeleteRecords, booksHandler.Delete))

	mux.HandleFunc("GET /api/borrowers", borrowersHandler.List)
	mux.HandleFunc("GET /api/borrowers/search", borrowersHandler.Search)
	mux.HandleFunc("GET /api/borrowers/{id}", borrowersHandler.Get)
	mux.HandleFunc("GET /api/borrowers/{id}/history", borrowersHandler.History)
	mux.HandleFunc("GET /api/borrowers/{id}/current", borrowersHandler.Current)
	mux.HandleFunc("GET /api/borrowers/{id}/overdue", borrowersHandler.Overdue)
	mux.HandleFunc("GET /api/borrowers/{id}/stats", borrowersHandler.Stats)
	mux.Handle("POST /api/borrowers", perm(security.PermManageBorrowers, borrowersHandler.Create))
	mux.Handle("PUT /api/borrowers/{id}", perm(security.PermManageBorrowers, borrowersHandler.Update))
	mux.Handle("DELETE /api/borrowers/{id}", perm(security.PermDeleteRecords, borrowersHandler.Delete))

	mux.HandleFunc("GET /api/borrowing", borrowingHandler.List)
	mux.HandleFunc("GET /api/borrowing/overdue", borrowingHandler.Overdue)
	mux.HandleFunc("GET /api/borrowing/statistics", borrowingHandler.Statistics)
	mux.HandleFunc("GET /api/borrowing/borrower/{borrowerId}", borrowingHandler.ByBorrower)
	mux.HandleFunc("GET /api/borrowing/book/{bookId}", borrowingHandler.ByBook)
	mux.HandleFunc("GET /api/borrowing/{id}", borrowingHandler.Get)
	mux.Handle("POST /api/borrowing/checkout", perm(security.PermCheckoutBook, borrowingHandler.Checkout))
	mux.Handle("PUT /api/borrowing/return/{id}", perm(security.PermReturnBook, borrowingHandler.Return))
	mux.Handle("PUT /api/borrowing/{id}/status", perm(security.PermReturnBook, borrowingHandler.UpdateStatus))
	mux.Handle("PUT /api/borrowing/{id}/extend", perm(security.PermCheckoutBook, borrowingHandler.Extend))
	mux.Handle("POST /api/borrowing/process-overdue", perm(security.PermRunSweep, borrowingHandler.ProcessOverdue))

	mux.Handle("GET /api/reports/overview", perm(security.PermViewReports, reportsHandler.Overview))
	mux.Handle("GET /api/reports/overdue-books", perm(security.PermViewReports, reportsHandler.OverdueBooks))
	mux.Handle("GET /api/reports/analytics", perm(security.PermViewReports, reportsHandler.Analytics))
	mux.Handle("GET /api/reports/inventory", perm(security.PermViewReports, reportsHandler.Inventory))
	mux.Handle("GET /api/reports/export/overdue-csv", perm(security.PermViewReports, reportsHandler.ExportOverdueCSV))

	mux.Handle("GET /ws/activity", activityHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", healthHandler.Health)
	mux.HandleFunc("GET /readyz", healthHandler.Ready)

	// CORS middleware honoring configured origins
	handlerWithCORS := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if originAllowed(cfg.CORSAllowedOrigins, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else if len(cfg.CORSAllowedOrigins) > 0 {
			w.Header().Set("Access-Control-Allow-Origin", cfg.CORSAllowedOrigins[0])
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		mux.ServeHTTP(w, r)
	})

	// Chain middleware: request ID -> metrics -> tracing -> JWT -> rate limit -> audit -> content type -> CORS
	rootHandler := withRequestID(
		metrics.HTTPMetricsMiddleware(
			otelhttp.NewHandler(
				middleware.JWTMiddleware(tokenManager, revocationStore, log)(
					middleware.RateLimitMiddleware(rateLimiter, log)(
						middleware.AuditMiddleware(auditLogger)(
							middleware.ValidateJSONContentType(log)(handlerWithCORS),
						),
					),
				),
				"librarian.http",
			),
		),
		log,
	)

	// 11. Start the overdue sweeper when the flag is on
	if featureflags.Enabled("overdue_worker") {
		overdueWorker := worker.NewOverdueWorker(
			borrowingService,
			loanRepo,
			log,
			time.Duration(cfg.SweepIntervalMinutes)*time.Minute,
		)
		go overdueWorker.Start(ctx)
	} else {
		log.Info("overdue worker disabled, set FLAG_OVERDUE_WORKER=true to enable")
	}

	// 12. Start HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      rootHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.String("auth", "jwt"),
		slog.Int("rate_limit", cfg.RateLimitPerMinute),
		slog.String("rate_limit_window", "1m"),
	)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Info("shutdown signal received")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	cancel() // Stop the overdue worker
	rateLimiter.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", slog.String("error", err.Error()))
	}
	log.Info("server stopped")
}

// withRequestID attaches a request ID to the context and response headers for traceability
func withRequestID(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := generateRequestID()
		w.Header().Set("X-Request-ID", reqID)

		ctx := audit.WithRequestID(r.Context(), reqID)
		start := time.Now()

		next.ServeHTTP(w, r.WithContext(ctx))

		log.Info("request completed",
			slog.String("request_id", reqID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("duration_ms", time.Since(start)),
		)
	})
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

func generateRequestID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}
	return fmt.Sprintf("req-%d", time.Now().UnixNano())
}
