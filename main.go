package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Ananth-NQI/linkup-backend/database"
	"github.com/Ananth-NQI/linkup-backend/internal/config"
	"github.com/Ananth-NQI/linkup-backend/internal/conversation"
	"github.com/Ananth-NQI/linkup-backend/internal/handlers"
	"github.com/Ananth-NQI/linkup-backend/internal/integrations/paramstore"
	"github.com/Ananth-NQI/linkup-backend/internal/intent"
	"github.com/Ananth-NQI/linkup-backend/internal/logging"
	"github.com/Ananth-NQI/linkup-backend/internal/middleware"
	"github.com/Ananth-NQI/linkup-backend/internal/onboarding"
	"github.com/Ananth-NQI/linkup-backend/internal/routes"
	"github.com/Ananth-NQI/linkup-backend/internal/services"
	"github.com/Ananth-NQI/linkup-backend/internal/storage"
)

const version = "1.0.0"

func main() {
	// Load .env file for local development
	if os.Getenv("INSTANCE_CONNECTION_NAME") == "" {
		if err := godotenv.Load(".env"); err != nil {
			_ = godotenv.Load("environments/.env.development")
		}
	}

	cfg := config.FromEnv()
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	if cfg.ParamPrefix != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return err
		}
		params, err := paramstore.New(ssm.NewFromConfig(awsCfg))
		if err != nil {
			return err
		}
		if err := cfg.LoadSecrets(ctx, params); err != nil {
			return err
		}
		logger.Info("secrets loaded from parameter store", zap.String("prefix", cfg.ParamPrefix))
	}
	if err := cfg.Validate(); err != nil {
		if !cfg.IsDevelopment() {
			return err
		}
		logger.Warn("incomplete configuration", zap.Error(err))
	}

	// Initialize storage
	var (
		store   storage.Store
		dbStore *storage.DatabaseStore
	)
	if cfg.UseMemoryStore {
		logger.Warn("using in-memory storage (not for production!)")
		store = storage.NewMemoryStore()
	} else {
		db, err := database.Connect(cfg, logger)
		if err != nil {
			return err
		}
		dbStore = storage.NewDatabaseStore(db)
		if err := dbStore.AutoMigrate(); err != nil {
			return err
		}
		logger.Info("database migrations completed")
		store = dbStore
	}

	sender, err := services.NewTwilioSender(services.TwilioOptions{
		AccountSID:          cfg.TwilioAccountSID,
		AuthToken:           cfg.TwilioAuthToken,
		FromNumber:          cfg.TwilioFromNumber,
		MessagingServiceSID: cfg.TwilioMessagingServiceSID,
	}, logger)
	if err != nil {
		return err
	}
	scheduler, err := services.NewQStashScheduler(cfg.QStashURL, cfg.QStashToken, cfg.SchedulerTimeout, logger)
	if err != nil {
		return err
	}

	stepURL := cfg.PublicBaseURL + "/internal/onboarding/step"
	delivery := services.NewDelivery(store, sender, cfg.PublicBaseURL+"/webhook/sms/status", logger)
	states := conversation.NewStateWriter(store, logger)
	orchestrator := onboarding.NewOrchestrator(store, scheduler, delivery, stepURL, logger)

	table := conversation.NewEngines(store, states, logger).Table()
	table.Onboarding = onboarding.NewEngine(orchestrator, states, logger)
	inbound := conversation.NewInboundService(store,
		conversation.NewRouter(store, intent.New(nil), logger),
		conversation.NewDispatcher(store, table, logger),
		delivery, logger)

	storageType := "PostgreSQL Database"
	var ping func() error
	if dbStore != nil {
		ping = func() error { return dbStore.Ping(ctx) }
	} else {
		storageType = "In-Memory (Testing)"
	}

	app := fiber.New(fiber.Config{
		AppName:      "LinkUp Backend v" + version,
		ErrorHandler: handlers.ErrorHandler(logger),
	})
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	routes.SetupRoutes(app, routes.Handlers{
		Health: handlers.NewHealthHandler(version, cfg.Environment, storageType,
			cfg.TwilioAccountSID != "", ping),
		SMS:        handlers.NewSMSHandler(inbound, services.NewDeliveryStatusService(store, logger), logger),
		Onboarding: handlers.NewOnboardingHandler(orchestrator, logger),
	}, routes.Options{
		Twilio: middleware.SignatureVerifier{
			AuthToken:   cfg.TwilioAuthToken,
			OverrideURL: cfg.WebhookURLOverride,
		},
		Scheduler: middleware.SchedulerVerifier{
			CurrentSigningKey: cfg.QStashCurrentSigningKey,
			NextSigningKey:    cfg.QStashNextSigningKey,
			ExpectedURL:       stepURL,
			Leeway:            time.Minute,
		},
		DisableWebhookValidation: cfg.DisableWebhookValidation && cfg.IsDevelopment(),
	}, logger)

	// Handle graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("gracefully shutting down")
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	logger.Info("LinkUp backend starting",
		zap.String("port", cfg.Port),
		zap.String("storage", storageType),
		zap.String("environment", cfg.Environment),
		zap.Bool("twilio_configured", cfg.TwilioAccountSID != ""))
	return app.Listen(":" + cfg.Port)
}
