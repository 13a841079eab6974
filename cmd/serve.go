package cmd

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cloverpay/payment-core/app/controller"
	"github.com/cloverpay/payment-core/app/events"
	"github.com/cloverpay/payment-core/app/fraud"
	"github.com/cloverpay/payment-core/app/provider"
	"github.com/cloverpay/payment-core/app/repository"
	"github.com/cloverpay/payment-core/app/service"
	"github.com/cloverpay/payment-core/app/token"
	"github.com/cloverpay/payment-core/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  "Start the HTTP (Echo) server exposing the payment orchestration API.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, orchestrator, cleanup := mustCreateOrchestrator()
	defer cleanup()

	paymentController := controller.NewPaymentController(orchestrator)
	e := setupHTTPServer(paymentController)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}

	logrus.Info("Server stopped")
}

func setupHTTPServer(paymentController *controller.PaymentController) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())

	e.GET("/health", paymentController.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	intents := e.Group("/payment-intents")
	intents.POST("", paymentController.CreateIntent)
	intents.GET("/:id", paymentController.GetIntent)
	intents.POST("/:id/confirm", paymentController.ConfirmPayment)

	payments := e.Group("/payments")
	payments.GET("", paymentController.ListPayments)
	payments.GET("/:id", paymentController.GetPayment)
	payments.POST("/:id/refunds", paymentController.CreateRefund)
	payments.GET("/:id/refunds", paymentController.ListRefunds)

	e.POST("/webhooks/:provider", paymentController.HandleWebhook)

	return e
}

func mustCreateOrchestrator() (*config.Config, *service.Orchestrator, func()) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	if err := repository.InitSchema(context.Background(), db); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to initialize schema")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	publisher := events.NewKafkaPublisher(cfg.Kafka.Brokers)

	intentRepo := repository.NewPaymentIntentRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	refundRepo := repository.NewRefundRepository(db)
	fraudCheckRepo := repository.NewFraudCheckRepository(db)
	eventRepo := repository.NewPaymentEventRepository(db)
	cardTokenRepo := repository.NewCardTokenRepository(db)

	registry := provider.NewRegistry(
		provider.NewIyzicoAdapter(provider.IyzicoConfig{
			APIKey:      cfg.Iyzico.APIKey,
			SecretKey:   cfg.Iyzico.SecretKey,
			BaseURL:     cfg.Iyzico.BaseURL,
			HTTPTimeout: cfg.Iyzico.HTTPTimeout,
		}),
		provider.NewStripeAdapter(provider.StripeConfig{
			SecretKey:                 cfg.Stripe.SecretKey,
			WebhookSecret:             cfg.Stripe.WebhookSecret,
			SignatureToleranceSeconds: cfg.Stripe.SignatureToleranceSeconds,
			HTTPTimeout:               cfg.Stripe.HTTPTimeout,
		}),
		provider.NewTestAdapter(),
	)

	fraudEngine := fraud.NewEngine(
		fraud.NewRedisCounterStore(redisClient, 0),
		fraudEngineConfig(cfg.Fraud),
	)
	tokenService := token.NewService(cardTokenRepo)

	orchestrator := service.NewOrchestrator(
		intentRepo,
		paymentRepo,
		refundRepo,
		fraudCheckRepo,
		eventRepo,
		registry,
		fraudEngine,
		tokenService,
		publisher,
		cfg.Payments,
	)

	cleanup := func() {
		if err := publisher.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close event publisher")
		}
		if err := redisClient.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close redis client")
		}
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return cfg, orchestrator, cleanup
}

func fraudEngineConfig(cfg config.FraudConfig) fraud.Config {
	engineCfg := fraud.DefaultConfig()
	if cfg.BlockThreshold > 0 {
		engineCfg.BlockThreshold = cfg.BlockThreshold
	}
	if cfg.ReviewThreshold > 0 {
		engineCfg.ReviewThreshold = cfg.ReviewThreshold
	}
	if cfg.MaxAmountCents > 0 {
		engineCfg.MaxAmountCents = cfg.MaxAmountCents
	}
	if cfg.FirstPaymentAmountCents > 0 {
		engineCfg.FirstPaymentAmountCents = cfg.FirstPaymentAmountCents
	}
	if cfg.HourlyTxnLimit > 0 {
		engineCfg.HourlyTxnLimit = cfg.HourlyTxnLimit
	}
	if cfg.DailyAmountLimitCents > 0 {
		engineCfg.DailyAmountLimitCents = cfg.DailyAmountLimitCents
	}
	if len(cfg.AllowedCountries) > 0 {
		engineCfg.AllowedCountries = cfg.AllowedCountries
	}
	if cfg.UnusualHourEnd > 0 {
		engineCfg.UnusualHourStart = cfg.UnusualHourStart
		engineCfg.UnusualHourEnd = cfg.UnusualHourEnd
	}
	if cfg.WeightHighAmount > 0 {
		engineCfg.WeightHighAmount = cfg.WeightHighAmount
	}
	if cfg.WeightHighVelocity > 0 {
		engineCfg.WeightHighVelocity = cfg.WeightHighVelocity
	}
	if cfg.WeightDailyLimitExceeded > 0 {
		engineCfg.WeightDailyLimitExceeded = cfg.WeightDailyLimitExceeded
	}
	if cfg.WeightRestrictedCountry > 0 {
		engineCfg.WeightRestrictedCountry = cfg.WeightRestrictedCountry
	}
	if cfg.WeightUnusualTime > 0 {
		engineCfg.WeightUnusualTime = cfg.WeightUnusualTime
	}
	if cfg.WeightFirstTimeHighAmount > 0 {
		engineCfg.WeightFirstTimeHighAmount = cfg.WeightFirstTimeHighAmount
	}
	return engineCfg
}
