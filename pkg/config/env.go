package config

const (
	EnvPrefix = "NEXUS"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "NEXUS_APP_ENV"
	EnvPort     = "NEXUS_APP_PORT"
	EnvDBDSN    = "NEXUS_DB_DSN"
	EnvDBHost   = "NEXUS_DB_HOST"
	EnvDBUser   = "NEXUS_DB_USER"
	EnvDBName   = "NEXUS_DB_NAME"
	EnvDBPass   = "NEXUS_DB_PASSWORD"
	EnvDBPort   = "NEXUS_DB_PORT"
	EnvRedisURL = "NEXUS_REDIS_URL"

	EnvJWTSecret = "NEXUS_JWT_SECRET"
	EnvJWTIssuer = "NEXUS_JWT_ISSUER"

	EnvStripeAPIKey     = "NEXUS_STRIPE_API_KEY"
	EnvStripeSecret     = "NEXUS_STRIPE_WEBHOOK_SECRET"
	EnvStripeBasicPrice = "NEXUS_STRIPE_BASIC_PRICE_ID"
	EnvPubSubWallet     = "NEXUS_PUBSUB_WALLET_TOPIC"
	EnvTournamentURL    = "NEXUS_TOURNAMENT_SERVICE_URL"
	EnvCORSOrigins      = "NEXUS_CORS_ALLOWED_ORIGINS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
