package config

// EnvPrefix is handed to envconfig; every field carries an explicit name.
const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	TransportPubSub = "pubsub"
	TransportKafka  = "kafka"
)

const (
	EnvAppEnv   = "STOREFRONT_APP_ENV"
	EnvPort     = "STOREFRONT_APP_PORT"
	EnvLogLevel = "STOREFRONT_LOG_LEVEL"

	EnvDBDSN    = "STOREFRONT_DB_DSN"
	EnvDBDriver = "STOREFRONT_DB_DRIVER"
	EnvDBHost   = "STOREFRONT_DB_HOST"
	EnvDBUser   = "STOREFRONT_DB_USER"
	EnvDBName   = "STOREFRONT_DB_NAME"

	EnvRedisURL = "STOREFRONT_REDIS_URL"

	EnvJWTSecret = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer = "STOREFRONT_JWT_ISSUER"

	EnvEventingTransport = "STOREFRONT_EVENTING_TRANSPORT"
	EnvKafkaBrokers      = "STOREFRONT_KAFKA_BROKERS"

	EnvGatewayHashSecret = "STOREFRONT_GATEWAY_HASH_SECRET"
	EnvGatewayTmnCode    = "STOREFRONT_GATEWAY_TMN_CODE"

	EnvSweeperGatewayDeadline = "STOREFRONT_SWEEPER_GATEWAY_PENDING_DEADLINE"
	EnvReservationHoldWindow  = "STOREFRONT_RESERVATION_HOLD_WINDOW"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
