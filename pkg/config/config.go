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
	Auth         AuthConfig
	Channel      ChannelConfig
	Webhook      WebhookConfig
	Reservation  ReservationConfig
	Alerts       AlertsConfig
	Dispatch     DispatchConfig
	Automation   AutomationConfig
	GCP          GCPConfig
	Cache        CacheConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Channel.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Automation.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"INVSYNC_APP_ENV" required:"true"`
	Port         string   `envconfig:"INVSYNC_APP_PORT" default:"8080"`
	LogLevel     string   `envconfig:"INVSYNC_LOG_LEVEL" default:"info"`
	LogFormat    string   `envconfig:"INVSYNC_LOG_FORMAT" default:"json"`
	LogWarnStack bool     `envconfig:"INVSYNC_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"INVSYNC_APP_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"INVSYNC_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"INVSYNC_DB_DSN"`
	Driver string `envconfig:"INVSYNC_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"INVSYNC_DB_HOST"`
	Port     int    `envconfig:"INVSYNC_DB_PORT" default:"5432"`
	User     string `envconfig:"INVSYNC_DB_USER"`
	Password string `envconfig:"INVSYNC_DB_PASSWORD"`
	Name     string `envconfig:"INVSYNC_DB_NAME"`
	SSLMode  string `envconfig:"INVSYNC_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"INVSYNC_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"INVSYNC_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"INVSYNC_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"INVSYNC_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"INVSYNC_REDIS_URL"`
	Address      string        `envconfig:"INVSYNC_REDIS_ADDR"`
	Password     string        `envconfig:"INVSYNC_REDIS_PASSWORD"`
	DB           int           `envconfig:"INVSYNC_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"INVSYNC_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"INVSYNC_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"INVSYNC_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"INVSYNC_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"INVSYNC_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// AuthConfig holds the HS256 secret used to sign and verify service tokens
// presented by the storefront and automation callers.
type AuthConfig struct {
	Secret          string `envconfig:"INVSYNC_AUTH_SECRET" required:"true"`
	Issuer          string `envconfig:"INVSYNC_AUTH_ISSUER" default:"inventory-sync"`
	TokenTTLMinutes int    `envconfig:"INVSYNC_AUTH_TOKEN_TTL_MINUTES" default:"60"`
}

func (a AuthConfig) TokenTTL() time.Duration {
	if a.TokenTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(a.TokenTTLMinutes) * time.Minute
}

type ChannelConfig struct {
	APIBaseURL        string        `envconfig:"INVSYNC_CHANNEL_API_BASE_URL"`
	AccessToken       string        `envconfig:"INVSYNC_CHANNEL_ACCESS_TOKEN"`
	WebhookSecret     string        `envconfig:"INVSYNC_CHANNEL_WEBHOOK_SECRET" required:"true"`
	SignatureEncoding string        `envconfig:"INVSYNC_CHANNEL_SIGNATURE_ENCODING" default:"base64"`
	DefaultLocationID string        `envconfig:"INVSYNC_CHANNEL_DEFAULT_LOCATION_ID"`
	RequestTimeout    time.Duration `envconfig:"INVSYNC_CHANNEL_REQUEST_TIMEOUT" default:"10s"`
}

// PushEnabled reports whether outbound quantity pushes have somewhere to go.
func (c ChannelConfig) PushEnabled() bool {
	return strings.TrimSpace(c.APIBaseURL) != ""
}

func (c ChannelConfig) validate() error {
	switch strings.ToLower(c.SignatureEncoding) {
	case SignatureEncodingBase64, SignatureEncodingHex:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q", EnvChannelSignatureEncoding, SignatureEncodingBase64, SignatureEncodingHex)
	}
}

type WebhookConfig struct {
	DedupeTTL time.Duration `envconfig:"INVSYNC_WEBHOOK_DEDUPE_TTL" default:"72h"`
}

type ReservationConfig struct {
	TTL           time.Duration `envconfig:"INVSYNC_RESERVATION_TTL" default:"15m"`
	SweepInterval time.Duration `envconfig:"INVSYNC_RESERVATION_SWEEP_INTERVAL" default:"1m"`
}

type AlertsConfig struct {
	LowStockThreshold int `envconfig:"INVSYNC_ALERTS_LOW_STOCK_THRESHOLD" default:"10"`
	RestockThreshold  int `envconfig:"INVSYNC_ALERTS_RESTOCK_THRESHOLD" default:"2"`
	WatchThreshold    int `envconfig:"INVSYNC_ALERTS_WATCH_THRESHOLD" default:"5"`
}

type DispatchConfig struct {
	Workers     int           `envconfig:"INVSYNC_DISPATCH_WORKERS" default:"4"`
	QueueSize   int           `envconfig:"INVSYNC_DISPATCH_QUEUE_SIZE" default:"256"`
	MaxAttempts int           `envconfig:"INVSYNC_DISPATCH_MAX_ATTEMPTS" default:"5"`
	BaseBackoff time.Duration `envconfig:"INVSYNC_DISPATCH_BASE_BACKOFF" default:"200ms"`
	MaxBackoff  time.Duration `envconfig:"INVSYNC_DISPATCH_MAX_BACKOFF" default:"10s"`
	TaskTimeout time.Duration `envconfig:"INVSYNC_DISPATCH_TASK_TIMEOUT" default:"15s"`
}

type AutomationConfig struct {
	Driver       string        `envconfig:"INVSYNC_AUTOMATION_DRIVER" default:"none"`
	BaseURL      string        `envconfig:"INVSYNC_AUTOMATION_BASE_URL"`
	Topic        string        `envconfig:"INVSYNC_AUTOMATION_TOPIC" default:"inventory-automation"`
	KafkaBrokers []string      `envconfig:"INVSYNC_AUTOMATION_KAFKA_BROKERS"`
	Timeout      time.Duration `envconfig:"INVSYNC_AUTOMATION_TIMEOUT" default:"10s"`
}

func (a AutomationConfig) validate() error {
	switch strings.ToLower(a.Driver) {
	case AutomationDriverNone:
		return nil
	case AutomationDriverHTTP:
		if strings.TrimSpace(a.BaseURL) == "" {
			return fmt.Errorf("%s is required for the http automation driver", EnvAutomationBaseURL)
		}
	case AutomationDriverPubSub:
		if strings.TrimSpace(a.Topic) == "" {
			return fmt.Errorf("%s is required for the pubsub automation driver", EnvAutomationTopic)
		}
	case AutomationDriverKafka:
		if len(a.KafkaBrokers) == 0 || strings.TrimSpace(a.Topic) == "" {
			return fmt.Errorf("%s and %s are required for the kafka automation driver", EnvAutomationKafkaBrokers, EnvAutomationTopic)
		}
	default:
		return fmt.Errorf("unknown %s %q", EnvAutomationDriver, a.Driver)
	}
	return nil
}

type GCPConfig struct {
	ProjectID              string `envconfig:"INVSYNC_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"INVSYNC_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"INVSYNC_GOOGLE_APPLICATION_CREDENTIALS"`
}

type CacheConfig struct {
	ItemTTL       time.Duration `envconfig:"INVSYNC_CACHE_ITEM_TTL" default:"30s"`
	RevalidateURL string        `envconfig:"INVSYNC_CACHE_REVALIDATE_URL"`
}

type CronConfig struct {
	LockTTL                time.Duration `envconfig:"INVSYNC_CRON_LOCK_TTL" default:"2m"`
	DeadLetterRetentionDay int           `envconfig:"INVSYNC_CRON_DEAD_LETTER_RETENTION_DAYS" default:"30"`
	MetricsAddr            string        `envconfig:"INVSYNC_CRON_METRICS_ADDR" default:":9091"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"INVSYNC_AUTO_MIGRATE" default:"false"`
}

// IsSQLite reports whether the local file-backed driver is selected.
func (db *DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

func (db *DBConfig) ensureDSN() error {
	switch strings.ToLower(strings.TrimSpace(db.Driver)) {
	case "", DBDriverPostgres:
	case DBDriverSQLite:
		if db.DSN == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvDBDSN, EnvDBDriver, DBDriverSQLite)
		}
		return nil
	default:
		return fmt.Errorf("unknown %s %q", EnvDBDriver, db.Driver)
	}

	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dbPartEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
