package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"dizimo/internal/bootstrap"
	"dizimo/internal/config"
	"dizimo/internal/handler/http/router"
	kafka_handler "dizimo/internal/handler/kafka"
	kafka_infra "dizimo/internal/infrastructure/kafka"
	"dizimo/internal/outbox"
	"dizimo/internal/rollover"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	appLogger, err := bootstrap.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	if err := cfg.Validate(); err != nil {
		appLogger.Fatal("Invalid configuration", zap.Error(err))
	}
	appLogger.Info("Dizimo service starting...")

	appLogger.Info("Waiting for database to be available...")
	db, err := bootstrap.OpenDatabase(cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Could not connect to database. Exiting.", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			appLogger.Error("Error closing database connection", zap.Error(err))
		} else {
			appLogger.Info("Database connection closed.")
		}
	}()

	appLogger.Info("Running database migrations...")
	if err := bootstrap.Migrate(cfg, appLogger); err != nil {
		appLogger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	ctxMain, cancelMain := context.WithCancel(context.Background())
	defer cancelMain()

	app, err := bootstrap.NewApp(ctxMain, cfg, db, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize services", zap.Error(err))
	}
	appLogger.Info("Services initialized.")

	handler := router.NewRouter(
		router.Options{
			JWTSecret:      cfg.Auth.JWTSecret,
			PixAppID:       cfg.Pix.AppID,
			AllowedOrigins: cfg.GetCORSAllowedOrigins(),
		},
		router.Services{
			Payments:      app.Payments,
			Rollover:      app.Rollover,
			ChargeEvents:  app.ChargeEvents,
			Community:     app.Community,
			Reports:       app.Payments,
			Warnings:      app.Warnings,
			Notifications: app.Notifications,
		},
		appLogger.With(zap.String("component", "HTTPHandler")),
	)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	appLogger.Info("HTTP server configured.")

	var (
		outboxProcessor *outbox.Processor
		chargeConsumer  *kafka_infra.Consumer
		consumerDone    chan struct{}
		kafkaProducer   kafka_infra.Producer
	)
	if cfg.Kafka.Enabled {
		kafkaBrokers := cfg.GetKafkaBrokers()
		requiredTopics := []string{
			cfg.Kafka.PaymentEventsTopic,
			cfg.Kafka.NotificationsTopic,
			cfg.Kafka.ChargeEventsTopic,
		}

		topicsCtx, cancelTopics := context.WithTimeout(ctxMain, 10*time.Second)
		err = kafka_infra.EnsureTopics(topicsCtx, kafkaBrokers, requiredTopics, appLogger)
		cancelTopics()
		if err != nil {
			appLogger.Fatal("Failed to ensure Kafka topics", zap.Error(err))
		}

		kafkaProducer = kafka_infra.NewProducer(kafkaBrokers, appLogger.With(zap.String("component", "KafkaProducer")))
		appLogger.Info("Kafka producer created successfully.")

		outboxProcessor = outbox.NewProcessor(
			app.Tx,
			app.Outbox,
			kafkaProducer,
			cfg.Outbox.PollInterval,
			cfg.Outbox.PollTimeout,
			cfg.Outbox.BatchSize,
			cfg.Outbox.MaxAttempts,
			appLogger.With(zap.String("component", "OutboxProcessor")),
		)

		chargeConsumer = kafka_infra.NewConsumer(
			kafkaBrokers,
			cfg.Kafka.ChargeEventsTopic,
			cfg.Kafka.ConsumerGroup,
			kafka_handler.ChargeEventMessageHandler(app.ChargeEvents, appLogger.With(zap.String("component", "ChargeEventHandler"))),
			appLogger.With(zap.String("component", "ChargeEventsConsumer")),
		)
		appLogger.Info("Charge Events Kafka Consumer initialized.")
	} else {
		appLogger.Warn("Kafka disabled: outbox messages stay pending and charge events are only received by webhook")
	}

	var rolloverTrigger *rollover.Trigger
	if cfg.Rollover.ScheduleEnabled {
		rolloverTrigger = rollover.NewTrigger(app.Rollover, cfg.Rollover.CheckInterval,
			appLogger.With(zap.String("component", "RolloverTrigger")))
	}

	go func() {
		appLogger.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	app.Worker.Start(ctxMain)

	if rolloverTrigger != nil {
		rolloverTrigger.Start(ctxMain)
	}

	if outboxProcessor != nil {
		outboxProcessor.Start(ctxMain)
	}

	if chargeConsumer != nil {
		consumerDone = make(chan struct{})
		go func() {
			defer close(consumerDone)
			appLogger.Info("Starting Charge Events Kafka Consumer...")
			if err := chargeConsumer.Consume(ctxMain); err != nil &&
				!errors.Is(err, context.Canceled) && !errors.Is(err, kafka.ErrGroupClosed) {
				appLogger.Error("Charge Events Kafka Consumer failed", zap.Error(err))
			}
			appLogger.Info("Charge Events Kafka Consumer stopped.")
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	appLogger.Info("Shutting down application...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server graceful shutdown failed", zap.Error(err))
	} else {
		appLogger.Info("HTTP server gracefully shut down.")
	}

	if rolloverTrigger != nil {
		rolloverTrigger.Stop()
	}
	app.Worker.Stop()
	if outboxProcessor != nil {
		outboxProcessor.Stop()
	}

	cancelMain()

	if chargeConsumer != nil {
		if err := chargeConsumer.Close(); err != nil {
			appLogger.Error("Error closing Charge Events Kafka Consumer", zap.Error(err))
		}
		select {
		case <-consumerDone:
		case <-shutdownCtx.Done():
			appLogger.Warn("Charge Events Kafka Consumer did not stop before the shutdown deadline.")
		}
	}

	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			appLogger.Error("Error closing Kafka producer", zap.Error(err))
		} else {
			appLogger.Info("Kafka producer closed.")
		}
	}

	appLogger.Info("Application gracefully shut down.")
}
