// Package main initializes and starts the learnpath plan store server,
// setting up configuration, logging, the database, repositories, services,
// handlers, and optional TLS.
package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/atinyakov/learnpath/internal/config"
	"github.com/atinyakov/learnpath/internal/db"
	"github.com/atinyakov/learnpath/internal/logger"
	"github.com/atinyakov/learnpath/internal/middleware"
	"github.com/atinyakov/learnpath/internal/repository"
	"github.com/atinyakov/learnpath/internal/server/handler/http"
	"github.com/atinyakov/learnpath/internal/service"
	"github.com/atinyakov/learnpath/internal/templates"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line and environment configuration.
	options, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	zapLogger := log.Log

	if options.JWTSecret == "" {
		zapLogger.Fatal("JWT secret is required (-secret or JWT_SECRET)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, dialect, err := db.Open(options.DatabaseDriver, options.DatabaseDSN)
	if err != nil {
		zapLogger.Fatal("cannot init database", zap.Error(err))
	}
	defer conn.Close()

	// Revoke share links long past their expiry.
	db.StartExpiredShareCleaner(ctx, conn, dialect,
		options.CleanerInterval.Duration,
		options.ShareRetention.Duration,
		zapLogger,
	)

	repo := repository.NewPlanRepository(conn, dialect)
	added, err := repo.SeedTemplates(ctx, templates.Default().All())
	if err != nil {
		zapLogger.Fatal("cannot seed templates", zap.Error(err))
	}
	zapLogger.Info("templates seeded", zap.Int("added", added))

	planService := service.NewPlanService(repo, options.QuotaPolicy(), options.ShareTTL.Duration)
	if options.PaymentSecret == "" {
		zapLogger.Warn("payment secret is not set; upgrades are disabled")
	}
	upgradeService := service.NewUpgradeService(repo, options.PaymentSecret, options.JWTSecret, options.TokenTTL.Duration)

	planHandler := &http.PlanHandler{PlanService: planService, Logger: zapLogger}
	publicHandler := &http.PublicHandler{PublicService: planService, Logger: zapLogger}
	upgradeHandler := &http.UpgradeHandler{UpgradeService: upgradeService, Logger: zapLogger}
	limiter := middleware.NewRateLimiter(options.PublicRatePerMinute)

	router := http.NewRouter(planHandler, publicHandler, upgradeHandler, options.JWTSecret, limiter, zapLogger)

	server := &nethttp.Server{
		Addr:              options.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("shutdown failed", zap.Error(err))
		}
	}()

	if options.TLSCert != "" && options.TLSKey != "" {
		zapLogger.Info("starting HTTPS server", zap.String("addr", options.Port))
		err = server.ListenAndServeTLS(options.TLSCert, options.TLSKey)
	} else {
		zapLogger.Info("starting HTTP server", zap.String("addr", options.Port))
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		zapLogger.Fatal("server failed", zap.Error(err))
	}
	zapLogger.Info("server stopped")
}
