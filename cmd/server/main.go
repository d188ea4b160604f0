package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"reconagent/internal/agent"
	"reconagent/internal/config"
	"reconagent/internal/database"
	"reconagent/internal/handlers"
	"reconagent/internal/jobs"
	"reconagent/internal/llm"
	"reconagent/internal/logging"
	"reconagent/internal/middleware"
	"reconagent/internal/sandbox"
	"reconagent/internal/session"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting ReconAgent Server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️ No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	// Load configuration
	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, Model: %s, MaxIterations: %d)",
		cfg.Port, cfg.OpenRouterModel, cfg.MaxIterations)

	if cfg.OpenRouterAPIKey == "" {
		log.Println("⚠️ OPENROUTER_API_KEY not set - reconciliation runs will fail until configured")
	}

	// Initialize SQLite database for state snapshots
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Initialize(); err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}

	// Core services
	sessionStore := session.NewStore(cfg.SessionTTL)

	llmClient := llm.NewClient(llm.Config{
		APIKey:         cfg.OpenRouterAPIKey,
		Model:          cfg.OpenRouterModel,
		BaseURL:        cfg.OpenRouterBaseURL,
		RequestTimeout: cfg.LLMRequestTimeout,
		RequestsPerMin: cfg.LLMRequestsPerMin,
	}, nil)

	executor := sandbox.NewExecutor(sandbox.Config{
		Timeout:     cfg.SandboxTimeout,
		MemoryLimit: cfg.SandboxMemoryLimit,
	})

	policy, err := agent.LoadPolicy(cfg.EvaluationPolicyFile)
	if err != nil {
		log.Fatalf("❌ Failed to load evaluation policy: %v", err)
	}

	agent.InitMetrics()

	// Background jobs
	jobScheduler := jobs.NewScheduler()
	jobScheduler.Register("session-cleanup",
		jobs.NewSessionCleanupJob(db, cfg.SessionRetention, time.Hour))
	jobScheduler.Start()

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "ReconAgent v1.0",
		ReadTimeout:  120 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    int(cfg.MaxFileSizeBytes) * 2, // two files per upload
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())

	// Prometheus metrics middleware
	prometheus := fiberprometheus.New("reconagent")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	// Load rate limiting configuration
	rateLimitConfig := middleware.LoadRateLimitConfig()
	log.Printf("🛡️ [RATE-LIMIT] Loaded config: Global=%d/min, Upload=%d/min, Reconcile=%d/min",
		rateLimitConfig.GlobalAPIMax,
		rateLimitConfig.UploadMax,
		rateLimitConfig.ReconcileMax,
	)

	// CORS configuration with environment-based origins
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:5173,http://localhost:3000"
		log.Println("⚠️ ALLOWED_ORIGINS not set, using development defaults")
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: allowedOrigins != "*",
	}))

	// Global API rate limiter
	app.Use("/api", middleware.GlobalAPIRateLimiter(rateLimitConfig))

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(sessionStore)
	sessionHandler := handlers.NewSessionHandler(sessionStore, db, cfg.MaxFileSizeBytes)
	reconcileHandler := handlers.NewReconcileHandler(sessionStore, db, llmClient,
		executor, policy, cfg.MaxIterations)
	exportHandler := handlers.NewExportHandler(sessionStore)

	// Routes
	app.Get("/health", healthHandler.Handle)

	api := app.Group("/api")
	api.Post("/sessions", sessionHandler.Create)
	api.Post("/sessions/:id/upload",
		middleware.UploadRateLimiter(rateLimitConfig), sessionHandler.Upload)
	api.Get("/sessions/:id/preview", sessionHandler.Preview)
	api.Get("/sessions/:id/preview/:dataset", sessionHandler.Preview)
	api.Delete("/sessions/:id", sessionHandler.Delete)

	api.Post("/sessions/:id/reconcile",
		middleware.ReconcileRateLimiter(rateLimitConfig), reconcileHandler.Start)
	api.Get("/sessions/:id/status", reconcileHandler.Status)
	api.Get("/sessions/:id/results", reconcileHandler.Results)
	api.Post("/sessions/:id/feedback", reconcileHandler.Feedback)

	api.Get("/sessions/:id/export/data", exportHandler.Data)
	api.Get("/sessions/:id/export/code", exportHandler.Code)
	api.Get("/sessions/:id/export/n8n", exportHandler.N8N)
	api.Get("/sessions/:id/export/n8n/download", exportHandler.N8NDownload)

	// Start server
	log.Printf("✅ Server ready on port %s", cfg.Port)
	log.Printf("📡 Health check: http://localhost:%s/health", cfg.Port)
	log.Println("🕐 Background jobs: session snapshot cleanup (hourly)")

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		jobScheduler.Stop()

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
