package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bracket-vote-system/handlers"
	"bracket-vote-system/models"
	"bracket-vote-system/services"
	"bracket-vote-system/utils"
	"bracket-vote-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024, // 10MB, covers image uploads
	})

	// Load allowed origins from environment variable
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-Vote-Source",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitCrypto(); err != nil {
		log.Fatal("failed to initialize PII crypto:", err)
	}
	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	// TranslateError turns unique-constraint violations into
	// gorm.ErrDuplicatedKey, which the vote ledger relies on to report
	// "already voted" under races.
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Campaign{},
		&models.Competitor{},
		&models.Round{},
		&models.Matchup{},
		&models.Vote{},
		&models.VoteSource{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	if err := utils.EnsureUploadDir(); err != nil {
		log.Fatal("failed to ensure upload dir:", err)
	}

	campaignService := services.NewCampaignService(db)
	bracketService := services.NewBracketService(db)
	sourceService := services.NewSourceService(db)
	voteService := services.NewVoteService(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sourceService.StartSourceWindowScheduler()

	demoInterval := 30 * time.Minute
	if raw := os.Getenv("DEMO_RESET_INTERVAL"); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil {
			demoInterval = parsed
		} else {
			log.Printf("⚠️  Invalid DEMO_RESET_INTERVAL %q, using default %s", raw, demoInterval)
		}
	}
	demoWorker := workers.NewDemoResetWorker(db, bracketService, demoInterval)
	go demoWorker.Run(ctx)

	handlers.SetupCampaignRoutes(app, campaignService, bracketService)
	handlers.SetupVotingRoutes(app, voteService, sourceService)

	app.Static("/uploads", "./uploads")

	port := os.Getenv("PORT")
	if port == "" {
		port = "5300"
	}
	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", port)
	log.Println("✅ Vote source window scheduler running (every 1m)")
	log.Printf("✅ Demo campaign reset worker running (every %s)", demoInterval)
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
