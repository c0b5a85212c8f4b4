// Package bootstrap builds the object graph shared by the service and the
// operator CLI.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"dizimo/internal/app/community"
	"dizimo/internal/app/notifications"
	"dizimo/internal/app/payments"
	"dizimo/internal/app/warnings"
	"dizimo/internal/config"
	"dizimo/internal/infrastructure/database"
	"dizimo/internal/infrastructure/objectstore"
	"dizimo/internal/infrastructure/pix"
	"dizimo/internal/reconciliation"
	communities_postgres "dizimo/internal/repository/communities_repo/postgres"
	inbox_postgres "dizimo/internal/repository/inbox_repo/postgres"
	logins_postgres "dizimo/internal/repository/logins_repo/postgres"
	outbox_postgres "dizimo/internal/repository/outbox_repo/postgres"
	payments_postgres "dizimo/internal/repository/payments_repo/postgres"
	reconciliation_postgres "dizimo/internal/repository/reconciliation_repo/postgres"
	users_postgres "dizimo/internal/repository/users_repo/postgres"
	warnings_postgres "dizimo/internal/repository/warnings_repo/postgres"
	web_push_postgres "dizimo/internal/repository/web_push_repo/postgres"
)

// NewLogger returns the production JSON logger at the given level.
func NewLogger(level string) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"

	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
		}
		zapConfig.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zapConfig.Build()
}

func OpenDatabase(cfg *config.Config, logger *zap.Logger) (*sql.DB, error) {
	dbConfig := database.DBConfig{
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		DBName:   cfg.DB.Name,
		SSLMode:  cfg.DB.SSLMode,
	}
	return database.ConnectWithRetry(dbConfig, cfg.DB.MaxRetries, cfg.DB.RetryDelay, logger)
}

func Migrate(cfg *config.Config, logger *zap.Logger) error {
	return database.Migrate(cfg.MigrationsPath, cfg.GetDBMigrationConnectionString(), logger)
}

// App holds the services and background components of one process.
type App struct {
	DB     *sql.DB
	Tx     *database.TxRunner
	Outbox *outbox_postgres.OutboxRepository

	Payments      *payments.Service
	Rollover      *payments.Rollover
	ChargeEvents  *payments.ChargeEvents
	Community     *community.Service
	Warnings      *warnings.Service
	Notifications *notifications.Service
	Worker        *reconciliation.Worker
}

func NewApp(ctx context.Context, cfg *config.Config, db *sql.DB, logger *zap.Logger) (*App, error) {
	tx := database.NewTxRunner(db, logger.With(zap.String("component", "TxRunner")))

	paymentRepository := payments_postgres.NewPaymentRepository()
	communityRepository := communities_postgres.NewCommunityRepository()
	userRepository := users_postgres.NewUserRepository()
	loginRepository := logins_postgres.NewLoginRepository()
	warningRepository := warnings_postgres.NewWarningRepository()
	subscriptionRepository := web_push_postgres.NewSubscriptionRepository()
	outboxRepository := outbox_postgres.NewOutboxRepository()
	inboxRepository := inbox_postgres.NewInboxRepository()
	jobRepository := reconciliation_postgres.NewJobRepository()

	var images objectstore.ImageStore = objectstore.PassthroughStore{}
	if cfg.Storage.S3Bucket != "" {
		store, err := objectstore.NewS3Store(ctx, cfg.Storage.S3Bucket, cfg.Storage.S3Region,
			logger.With(zap.String("component", "S3Store")))
		if err != nil {
			return nil, err
		}
		images = store
	} else {
		logger.Info("S3_BUCKET not set, images are stored inline")
	}

	gateway := pix.NewClient(cfg.Pix.ChargeURL, cfg.Pix.AppID, cfg.Pix.Timeout,
		logger.With(zap.String("component", "PixClient")),
		pix.WithExpiresIn(cfg.Pix.ExpiresIn))

	paymentService := payments.NewService(
		db,
		tx,
		paymentRepository,
		userRepository,
		communityRepository,
		jobRepository,
		outboxRepository,
		gateway,
		payments.Config{
			ReconcileDelay:     cfg.Reconcile.Delay,
			PaymentEventsTopic: cfg.Kafka.PaymentEventsTopic,
		},
		logger.With(zap.String("component", "PaymentService")),
	)

	app := &App{
		DB:       db,
		Tx:       tx,
		Outbox:   outboxRepository,
		Payments: paymentService,
		Rollover: payments.NewRollover(
			db,
			tx,
			paymentRepository,
			userRepository,
			communityRepository,
			cfg.Rollover.PageSize,
			logger.With(zap.String("component", "MonthlyRollover")),
		),
		ChargeEvents: payments.NewChargeEvents(
			tx,
			inboxRepository,
			paymentService,
			logger.With(zap.String("component", "ChargeEvents")),
		),
		Community: community.NewService(
			db,
			tx,
			communityRepository,
			userRepository,
			loginRepository,
			images,
			community.AuthConfig{
				JWTSecret:  cfg.Auth.JWTSecret,
				JWTTTL:     cfg.Auth.JWTTTL,
				CPFHashKey: cfg.Auth.CPFHashKey,
				BcryptCost: cfg.Auth.BcryptCost,
			},
			logger.With(zap.String("component", "CommunityService")),
		),
		Warnings: warnings.NewService(
			db,
			tx,
			warningRepository,
			communityRepository,
			userRepository,
			outboxRepository,
			images,
			cfg.Kafka.NotificationsTopic,
			logger.With(zap.String("component", "WarningService")),
		),
		Notifications: notifications.NewService(
			db,
			tx,
			subscriptionRepository,
			outboxRepository,
			cfg.Kafka.NotificationsTopic,
			logger.With(zap.String("component", "NotificationService")),
		),
		Worker: reconciliation.NewWorker(
			tx,
			jobRepository,
			paymentService,
			reconciliation.Config{
				PollInterval: cfg.Reconcile.PollInterval,
				BatchSize:    cfg.Reconcile.BatchSize,
				MaxAttempts:  cfg.Reconcile.MaxAttempts,
				RetryBackoff: cfg.Reconcile.RetryBackoff,
				Lease:        cfg.Reconcile.Lease,
			},
			logger.With(zap.String("component", "ReconciliationWorker")),
		),
	}
	return app, nil
}
