package config

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	CartStorageMemory = "memory"
	CartStorageFile   = "file"
	CartStorageRedis  = "redis"
	CartStorageSQL    = "sql"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

// Environment variable names, shared by tests and tooling.
const (
	EnvAppEnv       = "CASADEELE_APP_ENV"
	EnvPort         = "CASADEELE_APP_PORT"
	EnvLogLevel     = "CASADEELE_LOG_LEVEL"
	EnvDBDSN        = "CASADEELE_DB_DSN"
	EnvDBDriver     = "CASADEELE_DB_DRIVER"
	EnvDBHost       = "CASADEELE_DB_HOST"
	EnvDBUser       = "CASADEELE_DB_USER"
	EnvDBName       = "CASADEELE_DB_NAME"
	EnvRedisURL     = "CASADEELE_REDIS_URL"
	EnvRedisAddr    = "CASADEELE_REDIS_ADDR"
	EnvSessionKey   = "CASADEELE_SESSION_SECRET"
	EnvSessionIss   = "CASADEELE_SESSION_ISSUER"
	EnvSessionTTL   = "CASADEELE_SESSION_TTL"
	EnvAPIBaseURL   = "CASADEELE_API_BASE_URL"
	EnvAPITimeout   = "CASADEELE_API_TIMEOUT"
	EnvCartStorage  = "CASADEELE_CART_STORAGE"
	EnvCartSlotKey  = "CASADEELE_CART_SLOT_KEY"
	EnvCartFileDir  = "CASADEELE_CART_FILE_DIR"
	EnvCurrency     = "CASADEELE_CHECKOUT_CURRENCY"
	EnvPayWindow    = "CASADEELE_CHECKOUT_PAYMENT_WINDOW"
	EnvUseSQLite    = "CASADEELE_USE_SQLITE"
	EnvAutoMigrate  = "CASADEELE_AUTO_MIGRATE"
	EnvCORSOrigins  = "CASADEELE_CORS_ALLOWED_ORIGINS"
	EnvMetricsNS    = "CASADEELE_METRICS_NAMESPACE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
