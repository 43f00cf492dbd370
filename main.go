package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/etag"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"storefront_backend/internals/configs"
	database "storefront_backend/internals/databases"
	notif "storefront_backend/internals/features/notifications/service"
	orderService "storefront_backend/internals/features/orders/service"
	paymentController "storefront_backend/internals/features/payments/controller"
	"storefront_backend/internals/features/payments/model"
	"storefront_backend/internals/features/payments/scheduler"
	paymentService "storefront_backend/internals/features/payments/service"
	deliveryController "storefront_backend/internals/features/settings/delivery/controller"
	helper "storefront_backend/internals/helpers"
	middlewares "storefront_backend/internals/middlewares"
	authMiddleware "storefront_backend/internals/middlewares/auth"
	reqLogger "storefront_backend/internals/middlewares/logger"
	routes "storefront_backend/internals/route"
)

func main() {
	cfg, err := configs.LoadEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := configs.NewLogger(cfg.LogLevel, cfg.IsDevelopment())
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	helper.ExposeErrorDetails = cfg.IsDevelopment()
	for _, w := range cfg.Warnings() {
		logger.Warn("degraded configuration", zap.String("detail", w))
	}

	app := fiber.New(fiber.Config{
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
		DisableStartupMessage: true,
		ProxyHeader:           fiber.HeaderXForwardedFor,
		BodyLimit:             1 << 20,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return helper.JsonFromError(c, err)
		},
	})

	app.Use(reqLogger.RequestLogger(logger.Named("http"), cfg.HTTPTimeout))
	middlewares.SetupMiddlewares(app, cfg.Origins(), logger)
	app.Use(compress.New(compress.Config{Level: compress.LevelDefault}))
	app.Use(etag.New())

	// webhook journal (optional)
	var journal paymentService.EventJournal = paymentService.NoopJournal{}
	var cleanup *cron.Cron
	db, err := database.Connect(cfg, logger)
	switch {
	case errors.Is(err, database.ErrNoDatabase):
		logger.Warn("running without webhook journal")
	case err != nil:
		logger.Fatal("database", zap.Error(err))
	default:
		gj := paymentService.NewGormJournal(db)
		if err := gj.Migrate(); err != nil {
			logger.Fatal("journal migrate", zap.Error(err))
		}
		journal = gj
		retention := time.Duration(cfg.JournalRetentionDays) * 24 * time.Hour
		cleanup, err = scheduler.StartJournalCleanup(gj, retention, cfg.JournalCleanupCron, logger.Named("journal-cleanup"))
		if err != nil {
			logger.Fatal("journal cleanup", zap.Error(err))
		}
	}

	// gateway
	var gateway paymentService.Gateway
	var midtrans *paymentService.MidtransGateway
	if cfg.MidtransServerKey != "" {
		midtrans = paymentService.NewMidtransGateway(cfg.MidtransServerKey, cfg.MidtransUseProd, logger)
	}
	switch model.GatewayProvider(cfg.PaymentProvider) {
	case model.GatewayProviderMidtrans:
		if midtrans == nil {
			midtrans = paymentService.NewMidtransGateway("", cfg.MidtransUseProd, logger)
		}
		gateway = midtrans
	default:
		gateway = paymentService.NewYooKassaGateway(cfg.YooKassaAPIURL, cfg.YooKassaShopID, cfg.YooKassaSecretKey, cfg.HTTPTimeout, logger)
	}

	store := orderService.NewStrapiStore(cfg.StoreURL, orderService.DefaultStrategies(cfg.StoreAPIToken), cfg.HTTPTimeout, logger)

	notifier := notif.Fanout{
		notif.NewTelegramNotifier(cfg.TelegramAPIURL, cfg.TelegramBotToken, cfg.TelegramChatID, cfg.HTTPTimeout, logger),
		notif.NewMailNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.AdminEmail, logger),
	}

	var publisher notif.Publisher = notif.NoopPublisher{}
	if cfg.KafkaBrokers != "" {
		publisher = notif.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	}

	reconciler := paymentService.NewReconciler(paymentService.ReconcilerDeps{
		Store:     store,
		Gateway:   gateway,
		Notifier:  notifier,
		Publisher: publisher,
		Journal:   journal,
		PublicURL: cfg.PublicAppURL,
		Logger:    logger,
	})

	var midtransParser paymentController.NotificationParser
	if midtrans != nil {
		midtransParser = midtrans
	}

	routes.SetupRoutes(app, routes.Handlers{
		DB:  db,
		Env: cfg.AppEnv,
		Payments: paymentController.NewPaymentController(
			reconciler,
			paymentService.NewWebhookVerifier(cfg.WebhookSecret),
			midtransParser,
			logger,
		),
		Delivery: deliveryController.NewDeliveryController(store, cfg.DeliverySettingsTTL, time.Now, logger),
		RequireCustomer: authMiddleware.RequireCustomer(authMiddleware.Options{
			JWTSecret: cfg.StoreJWTSecret,
			Resolver:  store,
			Rejected:  orderService.ErrInvalidCredential,
			Logger:    logger.Named("auth"),
		}),
	}, logger)

	app.Server().ReadTimeout = 15 * time.Second
	app.Server().WriteTimeout = 30 * time.Second
	app.Server().IdleTimeout = 90 * time.Second

	go func() {
		logger.Info("listening", zap.String("port", cfg.Port), zap.String("provider", string(gateway.Provider())))
		if err := app.Listen("0.0.0.0:" + cfg.Port); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = app.ShutdownWithContext(ctx)

	if cleanup != nil {
		<-cleanup.Stop().Done()
	}
	reconciler.Wait()
	if err := publisher.Close(); err != nil {
		logger.Warn("publisher close", zap.Error(err))
	}
	database.Close(db)
	logger.Info("stopped")
}
