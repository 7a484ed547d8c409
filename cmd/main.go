// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/eventhub-app/eventhub/internal/auth"
	"github.com/eventhub-app/eventhub/internal/broadcast"
	"github.com/eventhub-app/eventhub/internal/config"
	"github.com/eventhub-app/eventhub/internal/database"
	"github.com/eventhub-app/eventhub/internal/handler"
	"github.com/eventhub-app/eventhub/internal/notify"
	"github.com/eventhub-app/eventhub/internal/otc"
	"github.com/eventhub-app/eventhub/internal/repository"
	"github.com/eventhub-app/eventhub/internal/service"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger); err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// ── 1. Connect to PostgreSQL ──────────────────────────────────────────
	pool, err := database.NewPool(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to postgres")

	// ── 2. Wire up layers ────────────────────────────────────────────────
	eventRepo := repository.NewEventRepository(pool)
	userRepo := repository.NewUserRepository(pool)

	authenticator := auth.NewAuthenticator(cfg.JWTSecret, cfg.JWTTTL, nil)

	codeStore := otc.NewStore(cfg.ResetCodeTTL, cfg.ResetTicketTTL, nil)
	codeStore.StartReaper(ctx, time.Minute)

	hub := broadcast.NewHub(logger)

	sender, err := notify.NewSMTPSender(cfg)
	if err != nil {
		return fmt.Errorf("smtp: %w", err)
	}
	dispatcher := notify.NewDispatcher(sender, logger)

	eventSvc := service.NewEventService(eventRepo, hub, dispatcher, logger)
	authSvc := service.NewAuthService(userRepo, codeStore, authenticator, dispatcher, logger)

	eventHandler := handler.NewEventHandler(eventSvc)
	authHandler := handler.NewAuthHandler(authSvc)

	// ── 3. Build the router ───────────────────────────────────────────────
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer)    // recover from panics, return 500
	r.Use(chimiddleware.RequestID)    // attach request IDs
	r.Use(chimiddleware.RealIP)       // trust X-Forwarded-For
	r.Use(handler.Logger(logger))     // structured access log
	r.Use(handler.CORS(cfg.CORSOrigin))

	// Health
	r.Get("/health", handler.HealthCheck)

	// API routes
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.Signup)
		r.Post("/login", authHandler.Login)
		r.Post("/send-code", authHandler.SendCode)
		r.Post("/verify-code", authHandler.VerifyCode)
		r.Post("/reset-password", authHandler.ResetPassword)
	})
	r.Route("/api/events", func(r chi.Router) {
		r.Get("/", eventHandler.ListEvents)
		r.Get("/stream", hub.ServeHTTP)
		r.Group(func(r chi.Router) {
			r.Use(authenticator.RequireAuth(logger))
			r.Post("/create", eventHandler.CreateEvent)
			r.Post("/enroll", eventHandler.Enroll)
			r.Get("/created", eventHandler.ListCreated)
		})
		r.Get("/{id}", eventHandler.GetEvent)
		r.Get("/{id}/attendees", eventHandler.ListAttendees)
	})

	// ── 4. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout: 15 * time.Second,
		// No write timeout: /api/events/stream holds its connection open.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	// Run in background goroutine so we can listen for shutdown signal.
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Block until SIGINT, SIGTERM, or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-quit:
	}

	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	// Let in-flight notifications finish before exiting.
	dispatcher.Wait()
	logger.Info("server stopped")
	return nil
}
