package main

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/AzkaWisata/autochat-backend/database"
	"github.com/AzkaWisata/autochat-backend/internal/jobs"
	"github.com/AzkaWisata/autochat-backend/internal/models"
	"github.com/AzkaWisata/autochat-backend/internal/routes"
	"github.com/AzkaWisata/autochat-backend/internal/services"
	"github.com/AzkaWisata/autochat-backend/internal/storage"
)

func main() {
	// Load .env file for local development
	if os.Getenv("INSTANCE_CONNECTION_NAME") == "" {
		err := godotenv.Load(".env")
		if err != nil {
			err = godotenv.Load("environments/.env.development")
			if err != nil {
				log.Println("⚠️  No .env file found - checking environment variables")
			}
		}
	}

	// Initialize storage
	var store storage.Store

	if os.Getenv("USE_MEMORY_STORE") == "true" {
		log.Println("⚠️  Using in-memory storage (not for production!)")
		store = storage.NewMemoryStore()
	} else {
		log.Println("📦 Connecting to PostgreSQL database...")
		database.Connect()

		log.Println("🔄 Running database migrations...")
		err := database.DB.AutoMigrate(
			&models.Contact{},
			&models.Conversation{},
			&models.Message{},
			&models.Rule{},
			&models.ContactRuleLimit{},
			&models.CustomerPhase{},
			&models.PhaseTransition{},
			&models.Workflow{},
			&models.WorkflowSession{},
			&models.ExecutionLog{},
		)
		if err != nil {
			log.Fatal("Failed to migrate database:", err)
		}
		log.Println("✅ Database migrations completed!")

		store = storage.NewDatabaseStore(database.DB)
		log.Println("✅ Using PostgreSQL database storage")
	}

	// Message gateway: Twilio in production, console fallback for local runs
	var gateway services.MessageGateway
	twilioGateway, err := services.NewTwilioGateway()
	if err != nil {
		if os.Getenv("ENVIRONMENT") == "development" {
			log.Printf("⚠️  Twilio not configured (%v) - responses will be logged only", err)
			gateway = services.NewConsoleGateway()
		} else {
			log.Fatal("Failed to initialize Twilio gateway:", err)
		}
	} else {
		gateway = twilioGateway
		log.Println("✅ Twilio gateway initialized")
	}

	// Matching lexicon: built-in Indonesian defaults, overridable per market
	lexicon := services.DefaultLexicon()
	if path := os.Getenv("LEXICON_FILE"); path != "" {
		lexicon, err = services.LoadLexiconFile(path)
		if err != nil {
			log.Fatal("Failed to load lexicon file:", err)
		}
		log.Printf("✅ Lexicon loaded from %s", path)
	}

	messages := services.NewSystemMessages(os.Getenv("SYSTEM_MESSAGE_LANG"))

	phaseService, err := services.NewPhaseService(store, lexicon)
	if err != nil {
		log.Fatal("Failed to initialize phase service:", err)
	}

	// Text generation is optional; llm_agent rules and ai_agent steps fail
	// cleanly when no backend is configured
	var generator services.TextGenerator

	matcher := services.NewRuleMatcher(store)
	limiter := services.NewRateLimiter(store)
	workflowEngine := services.NewWorkflowEngine(store, gateway, generator, messages)
	templates := services.NewStaticTemplateStore(services.DefaultTemplates())
	classifier := services.NewKeywordIntentClassifier()
	extractor := services.NewLexiconEntityExtractor(lexicon)

	automation := services.NewAutomationService(
		store,
		matcher,
		limiter,
		phaseService,
		workflowEngine,
		gateway,
		generator,
		templates,
		classifier,
		extractor,
		messages,
	)
	if os.Getenv("AUTOMATION_DISABLED") == "true" {
		automation.SetEnabled(false)
	}

	// Start maintenance jobs
	sessionTimeout := 30 * time.Minute
	if raw := os.Getenv("SESSION_TIMEOUT_MINUTES"); raw != "" {
		if minutes, err := strconv.Atoi(raw); err == nil && minutes > 0 {
			sessionTimeout = time.Duration(minutes) * time.Minute
		}
	}
	maintenanceJob := jobs.NewMaintenanceJob(store, workflowEngine, sessionTimeout)
	maintenanceJob.Start()

	log.Println("✅ All services initialized and maintenance jobs started")

	// Create fiber app
	app := fiber.New(fiber.Config{
		AppName: "AutoChat Backend v1.0.0",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	routes.SetupRoutes(app, store, automation)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("\n🛑 Gracefully shutting down...")
		log.Println("⏹️  Stopping maintenance jobs...")
		maintenanceJob.Stop()
		log.Println("⏹️  Shutting down server...")
		_ = app.Shutdown()
	}()

	log.Println("========================================")
	log.Printf("🚀 AutoChat Backend starting on port %s", port)
	log.Printf("📊 Storage: %s", getStorageType())
	log.Printf("🌍 Environment: %s", getEnvironment())
	log.Printf("🤖 Automation: enabled=%v", automation.IsEnabled())
	log.Println("========================================")

	log.Fatal(app.Listen(":" + port))
}

func getEnvironment() string {
	if os.Getenv("INSTANCE_CONNECTION_NAME") != "" {
		return "Production (Cloud Run)"
	}
	return "Development (Local)"
}

func getStorageType() string {
	if os.Getenv("USE_MEMORY_STORE") == "true" {
		return "In-Memory (Testing)"
	}
	return "PostgreSQL Database"
}
