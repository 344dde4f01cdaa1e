package main

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/joho/godotenv"

	"bechedin/internal/config"
	"bechedin/internal/database"
	"bechedin/internal/escrow"
	"bechedin/internal/handlers"
	"bechedin/internal/listings"
	"bechedin/internal/routes"
	"bechedin/internal/services"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	// Connect to database and migrate
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		log.Fatal("Failed to migrate database: ", err)
	}

	// Wire the registry, adapters and engine
	registry := listings.NewRegistry(db)
	gateway := services.NewSSLCommerzService(cfg)
	courier := services.NewCourierService(cfg)
	notifier := services.NewNotifier(cfg)

	engine := escrow.NewEngine(db, registry, cfg.FeePercent, cfg.InspectionWindow).
		WithNotifier(notifier)

	// Background inspection-expiry sweep
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go engine.RunSweeper(sweepCtx, cfg.SweepInterval)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName: "Bechedin Marketplace API v1.0",
	})

	// Middleware
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.FrontendURL,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	// Health check routes
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Welcome to Bechedin Marketplace API",
			"status":  "running",
			"version": "1.0",
		})
	})
	app.Get("/api/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "bechedin",
		})
	})

	// Setup application routes
	routes.SetupListingRoutes(app, handlers.NewListingHandler(registry), cfg.JWTSecret)
	routes.SetupEscrowRoutes(app, handlers.NewEscrowHandler(engine, courier), cfg.JWTSecret)
	routes.SetupPaymentRoutes(app, handlers.NewPaymentHandler(engine, gateway, cfg), cfg.JWTSecret)

	log.Printf("Bechedin server starting on http://localhost:%s", cfg.Port)
	log.Fatal(app.Listen(":" + cfg.Port))
}
