package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/Dan9191/budget-service/internal/auth"
	"github.com/Dan9191/budget-service/internal/bootstrap"
	"github.com/Dan9191/budget-service/internal/config"
	"github.com/Dan9191/budget-service/internal/handler"
	"github.com/Dan9191/budget-service/internal/middleware"
	"github.com/Dan9191/budget-service/internal/models"
	"github.com/Dan9191/budget-service/internal/observability"
	"github.com/Dan9191/budget-service/internal/scheduler"
	"github.com/Dan9191/budget-service/internal/service"
	"github.com/Dan9191/budget-service/internal/utils/email"
)

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	// Initialize logger
	logger := bootstrap.NewLogger(os.Getenv("LOG_LEVEL"))

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()

	// Initialize storage
	store, closer, err := bootstrap.OpenStore(ctx, cfg, logger, bootstrap.StoreOptions{
		OnBreakerStateChange: func(name string, _, to gobreaker.State) {
			metrics.BreakerStateChanged(name, to)
		},
	})
	if err != nil {
		logger.Fatalf("Failed to open store: %v", err)
	}
	defer closer.Close()

	publisher, publisherCloser := bootstrap.NewPublisher(cfg, logger)
	defer publisherCloser.Close()

	// Initialize layers
	opts := []service.Option{service.WithPublisher(publisher), service.WithObserver(metrics)}
	var mailer *email.Sender
	if cfg.MailEnabled() {
		mailer = email.NewSender(cfg, logger)
		opts = append(opts, service.WithNotifier(mailer))
	}
	ledger := service.NewLedgerService(store, logger, bootstrap.LedgerConfig(cfg), opts...)

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	authSvc := service.NewAuthService(models.User{Username: cfg.AuthUsername, PasswordHash: cfg.AuthPasswordHash}, tokens, logger)
	h := handler.NewHandler(ledger, authSvc, tokens, logger, handler.Options{
		Currency:     cfg.Currency,
		CookieSecure: cfg.CookieSecure,
	})

	// Scheduled jobs
	var summarySender scheduler.SummarySender
	if mailer != nil {
		summarySender = mailer
	}
	jobs := scheduler.New(ledger, summarySender, logger)
	if err := jobs.Register(cfg.ReconcileSchedule, cfg.SummarySchedule); err != nil {
		logger.Fatalf("Failed to schedule jobs: %v", err)
	}
	jobs.Start()

	// Setup router
	r := mux.NewRouter()
	r.Use(metrics.Middleware)
	var protect mux.MiddlewareFunc
	if cfg.AuthRequired {
		protect = middleware.AuthMiddleware(tokens, logger)
	}
	h.RegisterRoutes(r, protect)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	var root http.Handler = r
	if cfg.CORSEnabled {
		root = middleware.CORS(cfg.BaseURL)(root)
	}
	root = middleware.Logging(logger)(root)
	root = middleware.Recovery(logger)(root)

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      root,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"store":         cfg.StoreDriver,
			"atomic_writes": cfg.AtomicWrites,
			"auth_required": cfg.AuthRequired,
		}).Infof("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
	if err := jobs.Stop(shutdownCtx); err != nil {
		logger.Errorf("Scheduler shutdown failed: %v", err)
	}
}
