package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type DBConfig struct {
	Host       string        `mapstructure:"DB_HOST"`
	Port       int           `mapstructure:"DB_PORT"`
	User       string        `mapstructure:"DB_USER"`
	Password   string        `mapstructure:"DB_PASSWORD"`
	Name       string        `mapstructure:"DB_NAME"`
	SSLMode    string        `mapstructure:"DB_SSLMODE"`
	MaxRetries int           `mapstructure:"DB_MAX_RETRIES"`
	RetryDelay time.Duration `mapstructure:"DB_RETRY_DELAY"`
}

type PixConfig struct {
	ChargeURL string        `mapstructure:"PIX_CHARGE_URL"`
	AppID     string        `mapstructure:"PIX_APP_ID"`
	Timeout   time.Duration `mapstructure:"PIX_TIMEOUT"`
	ExpiresIn time.Duration `mapstructure:"PIX_CHARGE_EXPIRES_IN"`
}

type ReconcileConfig struct {
	Delay        time.Duration `mapstructure:"RECONCILE_DELAY"`
	PollInterval time.Duration `mapstructure:"RECONCILE_POLL_INTERVAL"`
	BatchSize    int           `mapstructure:"RECONCILE_BATCH_SIZE"`
	MaxAttempts  int           `mapstructure:"RECONCILE_MAX_ATTEMPTS"`
	RetryBackoff time.Duration `mapstructure:"RECONCILE_RETRY_BACKOFF"`
	Lease        time.Duration `mapstructure:"RECONCILE_LEASE"`
}

type RolloverConfig struct {
	PageSize        int           `mapstructure:"ROLLOVER_PAGE_SIZE"`
	ScheduleEnabled bool          `mapstructure:"ROLLOVER_SCHEDULE_ENABLED"`
	CheckInterval   time.Duration `mapstructure:"ROLLOVER_CHECK_INTERVAL"`
}

type KafkaConfig struct {
	Enabled            bool   `mapstructure:"KAFKA_ENABLED"`
	BrokerURL          string `mapstructure:"KAFKA_BROKER_URL"`
	PaymentEventsTopic string `mapstructure:"KAFKA_PAYMENT_EVENTS_TOPIC"`
	NotificationsTopic string `mapstructure:"KAFKA_NOTIFICATIONS_TOPIC"`
	ChargeEventsTopic  string `mapstructure:"KAFKA_CHARGE_EVENTS_TOPIC"`
	ConsumerGroup      string `mapstructure:"KAFKA_CONSUMER_GROUP"`
}

type OutboxConfig struct {
	PollInterval time.Duration `mapstructure:"OUTBOX_POLL_INTERVAL"`
	PollTimeout  time.Duration `mapstructure:"OUTBOX_POLL_TIMEOUT"`
	BatchSize    int           `mapstructure:"OUTBOX_BATCH_SIZE"`
	MaxAttempts  int           `mapstructure:"OUTBOX_MAX_ATTEMPTS"`
}

type AuthConfig struct {
	JWTSecret  string        `mapstructure:"JWT_SECRET"`
	JWTTTL     time.Duration `mapstructure:"JWT_TTL"`
	CPFHashKey string        `mapstructure:"CPF_HASH_KEY"`
	BcryptCost int           `mapstructure:"BCRYPT_COST"`
}

type StorageConfig struct {
	S3Bucket string `mapstructure:"S3_BUCKET"`
	S3Region string `mapstructure:"S3_REGION"`
}

type Config struct {
	HTTPPort           int    `mapstructure:"HTTP_PORT"`
	LogLevel           string `mapstructure:"LOG_LEVEL"`
	MigrationsPath     string `mapstructure:"MIGRATIONS_PATH"`
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	DB        DBConfig        `mapstructure:",squash"`
	Pix       PixConfig       `mapstructure:",squash"`
	Reconcile ReconcileConfig `mapstructure:",squash"`
	Rollover  RolloverConfig  `mapstructure:",squash"`
	Kafka     KafkaConfig     `mapstructure:",squash"`
	Outbox    OutboxConfig    `mapstructure:",squash"`
	Auth      AuthConfig      `mapstructure:",squash"`
	Storage   StorageConfig   `mapstructure:",squash"`
}

var defaults = map[string]any{
	"HTTP_PORT":            8080,
	"LOG_LEVEL":            "info",
	"MIGRATIONS_PATH":      "file://migrations",
	"CORS_ALLOWED_ORIGINS": "http://localhost:5173",

	"DB_HOST":        "localhost",
	"DB_PORT":        5432,
	"DB_USER":        "user",
	"DB_PASSWORD":    "password",
	"DB_NAME":        "dizimo_db",
	"DB_SSLMODE":     "disable",
	"DB_MAX_RETRIES": 10,
	"DB_RETRY_DELAY": 5 * time.Second,

	"PIX_CHARGE_URL":        "",
	"PIX_APP_ID":            "",
	"PIX_TIMEOUT":           15 * time.Second,
	"PIX_CHARGE_EXPIRES_IN": 30 * time.Minute,

	"RECONCILE_DELAY":         30 * time.Minute,
	"RECONCILE_POLL_INTERVAL": 30 * time.Second,
	"RECONCILE_BATCH_SIZE":    20,
	"RECONCILE_MAX_ATTEMPTS":  10,
	"RECONCILE_RETRY_BACKOFF": 5 * time.Minute,
	"RECONCILE_LEASE":         2 * time.Minute,

	"ROLLOVER_PAGE_SIZE":        100,
	"ROLLOVER_SCHEDULE_ENABLED": false,
	"ROLLOVER_CHECK_INTERVAL":   time.Minute,

	"KAFKA_ENABLED":              true,
	"KAFKA_BROKER_URL":           "localhost:9092",
	"KAFKA_PAYMENT_EVENTS_TOPIC": "dizimo_payment_events",
	"KAFKA_NOTIFICATIONS_TOPIC":  "dizimo_notifications",
	"KAFKA_CHARGE_EVENTS_TOPIC":  "pix_charge_events",
	"KAFKA_CONSUMER_GROUP":       "dizimo-service-group",

	"OUTBOX_POLL_INTERVAL": time.Second,
	"OUTBOX_POLL_TIMEOUT":  500 * time.Millisecond,
	"OUTBOX_BATCH_SIZE":    10,
	"OUTBOX_MAX_ATTEMPTS":  5,

	"JWT_SECRET":   "",
	"JWT_TTL":      24 * time.Hour,
	"CPF_HASH_KEY": "",
	"BCRYPT_COST":  12,

	"S3_BUCKET": "",
	"S3_REGION": "sa-east-1",
}

// LoadConfig reads defaults, an optional config file (DIZIMO_CONFIG) and the
// environment, in increasing order of precedence.
func LoadConfig() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if path := v.GetString("DIZIMO_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings the HTTP service cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.CPFHashKey == "" {
		errs = append(errs, errors.New("CPF_HASH_KEY is required"))
	}
	if c.Pix.ChargeURL == "" {
		errs = append(errs, errors.New("PIX_CHARGE_URL is required"))
	}
	if c.Reconcile.Delay <= 0 {
		errs = append(errs, errors.New("RECONCILE_DELAY must be positive"))
	}
	if c.Rollover.PageSize <= 0 {
		errs = append(errs, errors.New("ROLLOVER_PAGE_SIZE must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode)
}

func (c *Config) GetDBMigrationConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name, c.DB.SSLMode)
}

func (c *Config) GetKafkaBrokers() []string {
	return strings.Split(c.Kafka.BrokerURL, ",")
}

func (c *Config) GetCORSAllowedOrigins() []string {
	return strings.Split(c.CORSAllowedOrigins, ",")
}
