package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	Kafka        KafkaConfig
	Outbox       OutboxConfig
	Gateway      GatewayConfig
	Reservation  ReservationConfig
	Sweeper      SweeperConfig
	Refund       RefundConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Eventing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"STOREFRONT_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`

	CORSAllowedOrigins []string `envconfig:"STOREFRONT_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STOREFRONT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the sqlite driver was selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STOREFRONT_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	Transport         string        `envconfig:"STOREFRONT_EVENTING_TRANSPORT" default:"pubsub"`
	OrdersTopic       string        `envconfig:"STOREFRONT_EVENTING_ORDERS_TOPIC" default:"sf-order-events"`
	NotificationTopic string        `envconfig:"STOREFRONT_EVENTING_NOTIFICATION_TOPIC" default:"sf-notification-events"`
	CallbackGuardTTL  time.Duration `envconfig:"STOREFRONT_EVENTING_CALLBACK_GUARD_TTL" default:"24h"`
}

// UsesKafka reports whether events should be relayed through Kafka instead of Pub/Sub.
func (e EventingConfig) UsesKafka() bool {
	return strings.EqualFold(strings.TrimSpace(e.Transport), TransportKafka)
}

func (e EventingConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(e.Transport)) {
	case TransportPubSub, TransportKafka:
		return nil
	default:
		return fmt.Errorf("%s must be one of %s, %s", EnvEventingTransport, TransportPubSub, TransportKafka)
	}
}

type GCPConfig struct {
	ProjectID string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
}

type KafkaConfig struct {
	Brokers  []string `envconfig:"STOREFRONT_KAFKA_BROKERS" default:"localhost:9092"`
	ClientID string   `envconfig:"STOREFRONT_KAFKA_CLIENT_ID" default:"storefront"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type GatewayConfig struct {
	TmnCode            string        `envconfig:"STOREFRONT_GATEWAY_TMN_CODE"`
	HashSecret         string        `envconfig:"STOREFRONT_GATEWAY_HASH_SECRET" required:"true"`
	PayURL             string        `envconfig:"STOREFRONT_GATEWAY_PAY_URL" default:"https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"`
	RefundURL          string        `envconfig:"STOREFRONT_GATEWAY_REFUND_URL" default:"https://sandbox.vnpayment.vn/merchant_webapi/api/transaction"`
	ReturnURL          string        `envconfig:"STOREFRONT_GATEWAY_RETURN_URL" default:"http://localhost:8080/api/v1/payments/gateway/return"`
	SuccessRedirectURL string        `envconfig:"STOREFRONT_GATEWAY_SUCCESS_REDIRECT_URL" default:"http://localhost:3000/payment/success"`
	FailRedirectURL    string        `envconfig:"STOREFRONT_GATEWAY_FAIL_REDIRECT_URL" default:"http://localhost:3000/payment/fail"`
	PaymentTTL         time.Duration `envconfig:"STOREFRONT_GATEWAY_PAYMENT_TTL" default:"15m"`
	RequestTimeout     time.Duration `envconfig:"STOREFRONT_GATEWAY_REQUEST_TIMEOUT" default:"20s"`
	RefundPendingCodes []string      `envconfig:"STOREFRONT_GATEWAY_REFUND_PENDING_CODES" default:"94"`
}

type ReservationConfig struct {
	HoldWindow time.Duration `envconfig:"STOREFRONT_RESERVATION_HOLD_WINDOW" default:"10m"`
	Cooldown   time.Duration `envconfig:"STOREFRONT_RESERVATION_COOLDOWN" default:"5s"`
}

type SweeperConfig struct {
	Interval               time.Duration `envconfig:"STOREFRONT_SWEEPER_INTERVAL" default:"1m"`
	GatewayPendingDeadline time.Duration `envconfig:"STOREFRONT_SWEEPER_GATEWAY_PENDING_DEADLINE" default:"15m"`
	RetryWindow            time.Duration `envconfig:"STOREFRONT_SWEEPER_RETRY_WINDOW" default:"30m"`
	BatchSize              int           `envconfig:"STOREFRONT_SWEEPER_BATCH_SIZE" default:"100"`
	OutboxRetention        time.Duration `envconfig:"STOREFRONT_SWEEPER_OUTBOX_RETENTION" default:"168h"`
	NotificationRetention  time.Duration `envconfig:"STOREFRONT_SWEEPER_NOTIFICATION_RETENTION" default:"720h"`
}

type RefundConfig struct {
	PollInterval  time.Duration `envconfig:"STOREFRONT_REFUND_POLL_INTERVAL" default:"30s"`
	BatchSize     int           `envconfig:"STOREFRONT_REFUND_BATCH_SIZE" default:"20"`
	StaleAfter    time.Duration `envconfig:"STOREFRONT_REFUND_STALE_AFTER" default:"15m"`
	MerchantActor string        `envconfig:"STOREFRONT_REFUND_MERCHANT_ACTOR" default:"refund-worker"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
