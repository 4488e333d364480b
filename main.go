package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"duel-arena/combat"
	"duel-arena/config"
	"duel-arena/handlers"
	"duel-arena/middleware"
	"duel-arena/models"
	"duel-arena/services"
	"duel-arena/utils"
	"duel-arena/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := initLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	economy := services.Economy{
		MinBet:             cfg.MinBet,
		PayoutPercent:      cfg.PayoutPercent,
		StakeExposureCheck: cfg.StakeExposureCheck,
	}

	hub := services.NewHub(32)
	notificationService := services.NewNotificationService(db, hub, logger)
	profileService := services.NewProfileService(db, cfg.StartingCoins, logger)
	settlementService := services.NewSettlementService(db, economy, logger)
	duelService := services.NewDuelService(db, profileService, notificationService, economy, logger)
	battleService := services.NewBattleService(db, profileService, settlementService, notificationService, combat.DefaultSource(), logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	housekeeping := services.NewHousekeeping(duelService, battleService, notificationService, services.HousekeepingConfig{
		Interval:              cfg.HousekeepingInterval,
		OpenDuelTTL:           cfg.OpenDuelTTL,
		NotificationRetention: cfg.NotificationRetention,
	}, logger)
	sched, err := housekeeping.Start(ctx)
	if err != nil {
		logger.Fatal("failed to start housekeeping", zap.Error(err))
	}

	if cfg.SyncServiceURL != "" {
		syncWorker := workers.NewProfileSyncWorker(profileService, cfg.SyncServiceURL, "/api/v1/public/profiles", cfg.GameServiceToken, cfg.SyncInterval, logger)
		go syncWorker.Run(ctx)
	} else {
		logger.Info("SYNC_SERVICE_URL not set, profile mirror disabled")
	}

	if cfg.R2.Enabled() {
		store, err := utils.NewR2Store(ctx, utils.R2Options{
			AccountID:       cfg.R2.AccountID,
			AccessKeyID:     cfg.R2.AccessKeyID,
			AccessKeySecret: cfg.R2.AccessKeySecret,
			Bucket:          cfg.R2.Bucket,
			CDNBaseURL:      cfg.R2.CDNBaseURL,
		})
		if err != nil {
			logger.Fatal("failed to initialize R2 client", zap.Error(err))
		}
		archiver := workers.NewBattleArchiveWorker(battleService, store, cfg.R2.ArchiveInterval, logger)
		go archiver.Run(ctx)
	} else {
		logger.Info("R2 not configured, battle archive disabled")
	}

	var tokenValidator middleware.TokenValidator
	if cfg.AuthServiceURL != "" {
		tokenValidator = services.NewAuthServiceClient(cfg.AuthServiceURL, cfg.AuthServiceToken, logger)
	}

	app := fiber.New(fiber.Config{
		AppName:               "duel-arena",
		DisableStartupMessage: true,
	})

	// Only gateway requests are allowed, no exceptions.
	app.Use(middleware.GatewayAuthMiddleware(cfg.GameServiceToken, logger))

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, Cache-Control, X-Device-ID",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	handlers.SetupNotificationRoutes(app, notificationService, tokenValidator, cfg.SSEPollInterval, logger)
	handlers.SetupDuelRoutes(app, duelService, battleService, logger)
	handlers.SetupBattleRoutes(app, battleService, logger)
	handlers.SetupProfileRoutes(app, profileService, logger)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	logger.Info("server running",
		zap.String("port", cfg.Port),
		zap.Strings("allowed_origins", cfg.AllowedOrigins),
		zap.Int64("min_bet", cfg.MinBet),
		zap.Int64("payout_percent", cfg.PayoutPercent),
	)

	<-ctx.Done()
	logger.Info("shutting down server")

	if err := sched.Shutdown(); err != nil {
		logger.Warn("scheduler shutdown", zap.Error(err))
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
}

func initLogger(level, format string) (*zap.Logger, error) {
	var lvl zapcore.Level
	switch level {
	case "debug":
		lvl = zapcore.DebugLevel
	case "warn":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	default:
		lvl = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zapCfg.Level = zap.NewAtomicLevelAt(lvl)

	return zapCfg.Build()
}
