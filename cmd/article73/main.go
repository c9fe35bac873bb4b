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

	"github.com/akmatori/article73/internal/alerts/adapters"
	"github.com/akmatori/article73/internal/authorities"
	"github.com/akmatori/article73/internal/config"
	"github.com/akmatori/article73/internal/database"
	"github.com/akmatori/article73/internal/handlers"
	"github.com/akmatori/article73/internal/jobs"
	"github.com/akmatori/article73/internal/lifecycle"
	"github.com/akmatori/article73/internal/middleware"
	"github.com/akmatori/article73/internal/notify"
	"github.com/akmatori/article73/internal/ratelimit"
	"github.com/akmatori/article73/internal/services"
	slackutil "github.com/akmatori/article73/internal/slack"
	"github.com/joho/godotenv"
	"gorm.io/gorm/logger"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it (this is fine if using environment variables): %v", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting Article 73 serious incident tracker...")

	// Initialize JWT authentication middleware
	if cfg.AdminPassword == "" {
		log.Fatalf("ADMIN_PASSWORD is not set")
	}

	// Hash the admin password
	passwordHash, err := middleware.HashPassword(cfg.AdminPassword)
	if err != nil {
		log.Fatalf("Failed to hash admin password: %v", err)
	}

	authenticator := middleware.NewAuthenticator(middleware.AuthConfig{
		AdminUsername:     cfg.AdminUsername,
		AdminPasswordHash: passwordHash,
		Secret:            cfg.JWTSecret,
		TokenTTL:          time.Duration(cfg.JWTExpiryHours) * time.Hour,
		SkipPaths:         middleware.DefaultSkipPaths,
	})
	log.Printf("JWT authentication enabled for user: %s", cfg.AdminUsername)

	// Initialize database
	if err := database.Connect(cfg.DatabaseURL, logger.Warn); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Printf("Database connection established")

	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Authority directory
	directory := authorities.Default()
	if cfg.AuthoritiesFile != "" {
		directory, err = authorities.Load(cfg.AuthoritiesFile)
		if err != nil {
			log.Fatalf("Failed to load authority directory: %v", err)
		}
		log.Printf("Authority directory loaded from %s", cfg.AuthoritiesFile)
	}

	// Services
	incidentService := services.NewIncidentService(
		database.NewIncidentStore(database.GetDB()),
		lifecycle.New(lifecycle.SystemClock, lifecycle.NewUUID),
	)
	suggestionService := services.NewSuggestionService(services.SuggestionConfig{
		APIKey:  cfg.LLMAPIKey,
		BaseURL: cfg.LLMBaseURL,
		Model:   cfg.LLMModel,
	})
	if cfg.LLMAPIKey == "" {
		log.Printf("LLM suggestions are DISABLED (fallback suggestions only)")
	}

	// Timeline alert delivery: websocket stream plus Slack when configured
	timelineHub := handlers.NewTimelineHub()
	notifiers := notify.Multi{timelineHub}
	if slackNotifier := slackutil.NewNotifier(cfg.SlackBotToken, cfg.SlackAlertsChannel); slackNotifier != nil {
		notifiers = append(notifiers, slackNotifier)
		log.Printf("Slack timeline alerts are ENABLED (channel %s)", cfg.SlackAlertsChannel)
	}

	stopMonitor := make(chan struct{})
	monitor := jobs.NewDeadlineMonitor(database.GetDB(), notifiers)
	if err := monitor.Start(cfg.DeadlineCheckSchedule, stopMonitor); err != nil {
		log.Fatalf("Failed to start deadline monitor: %v", err)
	}

	// Grafana webhook intake
	alertHandler := handlers.NewAlertHandler(
		adapters.NewGrafanaAdapter(),
		incidentService,
		cfg.GrafanaWebhookSecret,
		ratelimit.NewPerMinute(cfg.WebhookRatePerMinute),
	)
	if cfg.GrafanaWebhookSecret == "" {
		log.Printf("Warning: GRAFANA_WEBHOOK_SECRET is not set, webhook accepts unauthenticated requests")
	}

	httpHandler := handlers.NewHTTPHandler(alertHandler, func(ctx context.Context) error {
		return database.Ping(ctx, database.GetDB())
	})
	apiHandler := handlers.NewAPIHandler(incidentService, suggestionService, directory)
	authHandler := handlers.NewAuthHandler(authenticator, ratelimit.NewPerMinute(cfg.LoginRatePerMinute))

	// Set up HTTP server routes
	mux := http.NewServeMux()
	httpHandler.SetupRoutes(mux)
	apiHandler.SetupRoutes(mux)
	authHandler.SetupRoutes(mux)
	timelineHub.SetupRoutes(mux)

	// CORS first, then JWT authentication
	corsMiddleware := middleware.NewCORSMiddleware(cfg.CORSAllowedOrigins...)
	handler := middleware.RequestIDMiddleware(
		middleware.LoggingMiddleware(
			corsMiddleware.Wrap(authenticator.Wrap(mux)),
		),
	)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting HTTP server on port %d", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	log.Printf("Grafana webhook endpoint: http://localhost:%d/webhook/grafana", cfg.HTTPPort)
	log.Printf("Health check endpoint: http://localhost:%d/health", cfg.HTTPPort)
	log.Printf("API base URL: http://localhost:%d/api", cfg.HTTPPort)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("Received shutdown signal, cleaning up...")

	close(stopMonitor)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Println("Shutting down HTTP server...")
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}

	if err := database.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}
	log.Println("Shutdown complete")
}
