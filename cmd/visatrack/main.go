package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/visatrack/visatrack/internal/api"
	"github.com/visatrack/visatrack/internal/config"
	"github.com/visatrack/visatrack/internal/crypto"
	"github.com/visatrack/visatrack/internal/csrf"
	"github.com/visatrack/visatrack/internal/database"
	"github.com/visatrack/visatrack/internal/notify"
	"go.uber.org/zap"
)

func main() {
	// Parse command line flags
	flags, configFile, showVersion := config.ParseFlags()

	// Handle version flag
	if showVersion {
		fmt.Println("VisaTrack v0.0.1")
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(configFile, flags)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger, err := initLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting VisaTrack",
		zap.String("version", "0.0.1"),
		zap.String("database", cfg.Database.Type),
	)

	// The field cipher protects PII at rest; refusing to start without a key
	// beats silently storing plaintext
	cipher, err := crypto.NewFieldCipher(cfg.Crypto.EncryptionKey)
	if err != nil {
		logger.Fatal("Failed to initialize field encryption", zap.Error(err))
	}

	// Initialize database
	db, err := database.New(cfg, cipher)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// CSRF token store with background sweeper
	csrfStore := csrf.NewStore(cfg.CSRF.TokenTTL, cfg.CSRF.SweepInterval)
	defer csrfStore.Stop()

	// Outbound status notifications
	notifier := notify.NewEmailNotifier(
		cfg.Notify.SMTPHost,
		cfg.Notify.SMTPPort,
		cfg.Notify.From,
		cfg.Notify.User,
		cfg.Notify.Password,
		logger,
	)

	// Initialize router
	router := api.NewRouter(cfg, db, csrfStore, notifier, logger)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Starting HTTP server", zap.String("address", srv.Addr))

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapConfig zap.Config

	if cfg.Logging.Format == "json" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	// Set log level
	switch cfg.Logging.Level {
	case "debug":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapConfig.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return zapConfig.Build()
}
