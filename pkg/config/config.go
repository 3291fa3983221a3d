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
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Stripe       StripeConfig
	Tournament   TournamentConfig
	Payouts      PayoutsConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"NEXUS_APP_ENV" required:"true"`
	Port         string `envconfig:"NEXUS_APP_PORT" default:"8083"`
	LogLevel     string `envconfig:"NEXUS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"NEXUS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"NEXUS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"NEXUS_DB_DSN"`
	Driver string `envconfig:"NEXUS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"NEXUS_DB_HOST"`
	LegacyPort     int    `envconfig:"NEXUS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"NEXUS_DB_USER"`
	LegacyPassword string `envconfig:"NEXUS_DB_PASSWORD"`
	LegacyName     string `envconfig:"NEXUS_DB_NAME"`
	LegacySSLMode  string `envconfig:"NEXUS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"NEXUS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"NEXUS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"NEXUS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"NEXUS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"NEXUS_REDIS_URL"`
	Address      string        `envconfig:"NEXUS_REDIS_ADDR"`
	Password     string        `envconfig:"NEXUS_REDIS_PASSWORD"`
	DB           int           `envconfig:"NEXUS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"NEXUS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"NEXUS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"NEXUS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"NEXUS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"NEXUS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies access tokens minted by the user service.
type JWTConfig struct {
	Secret            string `envconfig:"NEXUS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"NEXUS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"NEXUS_JWT_EXPIRATION_MINUTES" default:"60"`
}

// RateLimitConfig mirrors the public API throttle (100 requests / 15 minutes per client).
type RateLimitConfig struct {
	Window    time.Duration `envconfig:"NEXUS_RATE_LIMIT_WINDOW" default:"15m"`
	IPLimit   int           `envconfig:"NEXUS_RATE_LIMIT_IP_LIMIT" default:"100"`
	UserLimit int           `envconfig:"NEXUS_RATE_LIMIT_USER_LIMIT" default:"100"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"NEXUS_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"NEXUS_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"NEXUS_EVENTING_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"NEXUS_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"NEXUS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"NEXUS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	WalletTopic   string `envconfig:"NEXUS_PUBSUB_WALLET_TOPIC" default:"nexus-wallet-events"`
	PayoutTopic   string `envconfig:"NEXUS_PUBSUB_PAYOUT_TOPIC" default:"nexus-payout-events"`
	BillingTopic  string `envconfig:"NEXUS_PUBSUB_BILLING_TOPIC" default:"nexus-billing-events"`
	PublishPrefix string `envconfig:"NEXUS_PUBSUB_PUBLISH_PREFIX"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"NEXUS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"NEXUS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"NEXUS_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"NEXUS_OUTBOX_RETENTION_DAYS" default:"30"`
}

type StripeConfig struct {
	APIKey             string `envconfig:"NEXUS_STRIPE_API_KEY"`
	Secret             string `envconfig:"NEXUS_STRIPE_WEBHOOK_SECRET"`
	Env                string `envconfig:"NEXUS_STRIPE_ENV" default:"test"`
	BasicPriceID       string `envconfig:"NEXUS_STRIPE_BASIC_PRICE_ID"`
	ProPriceID         string `envconfig:"NEXUS_STRIPE_PRO_PRICE_ID"`
	PremiumPriceID     string `envconfig:"NEXUS_STRIPE_PREMIUM_PRICE_ID"`
	FrontendURL        string `envconfig:"NEXUS_FRONTEND_URL" default:"http://localhost:3000"`
	ConnectAccountType string `envconfig:"NEXUS_STRIPE_CONNECT_ACCOUNT_TYPE" default:"express"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type TournamentConfig struct {
	BaseURL string        `envconfig:"NEXUS_TOURNAMENT_SERVICE_URL"`
	Timeout time.Duration `envconfig:"NEXUS_TOURNAMENT_SERVICE_TIMEOUT" default:"5s"`
}

type PayoutsConfig struct {
	ProviderTimeout  time.Duration `envconfig:"NEXUS_PAYOUT_PROVIDER_TIMEOUT" default:"15s"`
	DefaultArrival   time.Duration `envconfig:"NEXUS_PAYOUT_DEFAULT_ARRIVAL" default:"168h"`
	ReconcileAfter   time.Duration `envconfig:"NEXUS_PAYOUT_RECONCILE_AFTER" default:"24h"`
	ReconcileBatch   int           `envconfig:"NEXUS_PAYOUT_RECONCILE_BATCH" default:"100"`
	LedgerAuditBatch int           `envconfig:"NEXUS_LEDGER_AUDIT_BATCH" default:"500"`
}

type CronConfig struct {
	Interval   time.Duration `envconfig:"NEXUS_CRON_INTERVAL" default:"1h"`
	LockTTL    time.Duration `envconfig:"NEXUS_CRON_LOCK_TTL" default:"55m"`
	JobTimeout time.Duration `envconfig:"NEXUS_CRON_JOB_TIMEOUT" default:"10m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
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
