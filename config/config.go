package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	HTTP     ServerConfig
	MySQL    MySQLConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Log      LogConfig
	Iyzico   IyzicoConfig
	Stripe   StripeConfig
	Fraud    FraudConfig
	Payments PaymentsConfig
	Jobs     JobsConfig
}

type AppConfig struct {
	ServiceName string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers []string
}

type LogConfig struct {
	Level string
}

type IyzicoConfig struct {
	APIKey      string
	SecretKey   string
	BaseURL     string
	HTTPTimeout time.Duration
}

type StripeConfig struct {
	SecretKey                 string
	WebhookSecret             string
	SignatureToleranceSeconds int64
	HTTPTimeout               time.Duration
}

type FraudConfig struct {
	BlockThreshold  int
	ReviewThreshold int

	MaxAmountCents          int64
	FirstPaymentAmountCents int64
	HourlyTxnLimit          int64
	DailyAmountLimitCents   int64
	AllowedCountries        []string
	UnusualHourStart        int
	UnusualHourEnd          int

	WeightHighAmount          int
	WeightHighVelocity        int
	WeightDailyLimitExceeded  int
	WeightRestrictedCountry   int
	WeightUnusualTime         int
	WeightFirstTimeHighAmount int
}

type PaymentsConfig struct {
	ProviderTimeout   time.Duration
	ReconcileStaleAge time.Duration
	JobBatchSize      int32
}

type JobsConfig struct {
	ReconcileInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "payment-core"),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: getListEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Iyzico: IyzicoConfig{
			APIKey:      getEnv("IYZICO_API_KEY", ""),
			SecretKey:   getEnv("IYZICO_SECRET_KEY", ""),
			BaseURL:     getEnv("IYZICO_BASE_URL", "https://api.iyzipay.com"),
			HTTPTimeout: getSecondsEnv("IYZICO_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Stripe: StripeConfig{
			SecretKey:                 getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret:             getEnv("STRIPE_WEBHOOK_SECRET", ""),
			SignatureToleranceSeconds: int64(getIntEnv("STRIPE_SIGNATURE_TOLERANCE_SECONDS", 300)),
			HTTPTimeout:               getSecondsEnv("STRIPE_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Fraud: FraudConfig{
			BlockThreshold:          getIntEnv("FRAUD_BLOCK_THRESHOLD", 70),
			ReviewThreshold:         getIntEnv("FRAUD_REVIEW_THRESHOLD", 40),
			MaxAmountCents:          int64(getIntEnv("FRAUD_MAX_AMOUNT_CENTS", 100000)),
			FirstPaymentAmountCents: int64(getIntEnv("FRAUD_FIRST_PAYMENT_AMOUNT_CENTS", 25000)),
			HourlyTxnLimit:          int64(getIntEnv("FRAUD_HOURLY_TXN_LIMIT", 10)),
			DailyAmountLimitCents:   int64(getIntEnv("FRAUD_DAILY_AMOUNT_LIMIT_CENTS", 500000)),
			AllowedCountries:        getListEnv("FRAUD_ALLOWED_COUNTRIES", []string{"TR", "US", "GB", "DE", "FR", "NL"}),
			UnusualHourStart:        getIntEnv("FRAUD_UNUSUAL_HOUR_START", 2),
			UnusualHourEnd:          getIntEnv("FRAUD_UNUSUAL_HOUR_END", 5),

			WeightHighAmount:          getIntEnv("FRAUD_WEIGHT_HIGH_AMOUNT", 30),
			WeightHighVelocity:        getIntEnv("FRAUD_WEIGHT_HIGH_VELOCITY", 40),
			WeightDailyLimitExceeded:  getIntEnv("FRAUD_WEIGHT_DAILY_LIMIT_EXCEEDED", 50),
			WeightRestrictedCountry:   getIntEnv("FRAUD_WEIGHT_RESTRICTED_COUNTRY", 60),
			WeightUnusualTime:         getIntEnv("FRAUD_WEIGHT_UNUSUAL_TIME", 10),
			WeightFirstTimeHighAmount: getIntEnv("FRAUD_WEIGHT_FIRST_TIME_HIGH_AMOUNT", 20),
		},
		Payments: PaymentsConfig{
			ProviderTimeout:   getSecondsEnv("PAYMENTS_PROVIDER_TIMEOUT_SECONDS", 30*time.Second),
			ReconcileStaleAge: getMinutesEnv("PAYMENTS_RECONCILE_STALE_AGE_MINUTES", 15*time.Minute),
			JobBatchSize:      int32(getIntEnv("PAYMENTS_JOB_BATCH_SIZE", 100)),
		},
		Jobs: JobsConfig{
			ReconcileInterval: getMinutesEnv("PAYMENTS_RECONCILE_INTERVAL_MINUTES", 2*time.Minute),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
