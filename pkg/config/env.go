package config

const EnvPrefix = "INVSYNC"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	SignatureEncodingBase64 = "base64"
	SignatureEncodingHex    = "hex"
)

const (
	AutomationDriverNone   = "none"
	AutomationDriverHTTP   = "http"
	AutomationDriverPubSub = "pubsub"
	AutomationDriverKafka  = "kafka"
)

const (
	EnvAppEnv   = "INVSYNC_APP_ENV"
	EnvPort     = "INVSYNC_APP_PORT"
	EnvLogLevel = "INVSYNC_LOG_LEVEL"

	EnvDBDSN    = "INVSYNC_DB_DSN"
	EnvDBDriver = "INVSYNC_DB_DRIVER"
	EnvDBHost   = "INVSYNC_DB_HOST"
	EnvDBUser   = "INVSYNC_DB_USER"
	EnvDBName   = "INVSYNC_DB_NAME"

	EnvRedisURL = "INVSYNC_REDIS_URL"

	EnvAuthSecret = "INVSYNC_AUTH_SECRET"

	EnvChannelAPIBaseURL        = "INVSYNC_CHANNEL_API_BASE_URL"
	EnvChannelWebhookSecret     = "INVSYNC_CHANNEL_WEBHOOK_SECRET"
	EnvChannelSignatureEncoding = "INVSYNC_CHANNEL_SIGNATURE_ENCODING"

	EnvReservationTTL = "INVSYNC_RESERVATION_TTL"

	EnvAutomationDriver       = "INVSYNC_AUTOMATION_DRIVER"
	EnvAutomationBaseURL      = "INVSYNC_AUTOMATION_BASE_URL"
	EnvAutomationTopic        = "INVSYNC_AUTOMATION_TOPIC"
	EnvAutomationKafkaBrokers = "INVSYNC_AUTOMATION_KAFKA_BROKERS"
)

var dbPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
