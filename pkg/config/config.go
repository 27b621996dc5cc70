package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Session      SessionConfig
	API          APIConfig
	Cart         CartConfig
	Checkout     CheckoutConfig
	FeatureFlags FeatureFlagsConfig
	CORS         CORSConfig
	Metrics      MetricsConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field rules envconfig cannot express and reports every violation at once.
func (c *Config) Validate() error {
	var errs error

	switch c.Cart.Storage {
	case CartStorageMemory, CartStorageFile:
	case CartStorageRedis:
		if !c.Redis.Enabled() {
			errs = multierr.Append(errs, fmt.Errorf("%s=redis requires %s or %s", EnvCartStorage, EnvRedisURL, EnvRedisAddr))
		}
	case CartStorageSQL:
		if err := c.DB.ensureDSN(c.FeatureFlags.UseSQLite); err != nil {
			errs = multierr.Append(errs, err)
		}
	default:
		errs = multierr.Append(errs, fmt.Errorf("%s must be one of memory, file, redis, sql (got %q)", EnvCartStorage, c.Cart.Storage))
	}

	if c.Cart.Storage == CartStorageFile && strings.TrimSpace(c.Cart.FileDir) == "" {
		errs = multierr.Append(errs, fmt.Errorf("%s is required for file storage", EnvCartFileDir))
	}
	if strings.TrimSpace(c.Cart.SlotKey) == "" {
		errs = multierr.Append(errs, fmt.Errorf("%s must not be empty", EnvCartSlotKey))
	}
	if _, err := url.ParseRequestURI(c.API.BaseURL); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("%s is not a valid url: %w", EnvAPIBaseURL, err))
	}
	if c.API.Timeout <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("%s must be positive", EnvAPITimeout))
	}
	if c.Checkout.PaymentWindow <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("%s must be positive", EnvPayWindow))
	}
	if len(strings.TrimSpace(c.Checkout.Currency)) != 3 {
		errs = multierr.Append(errs, fmt.Errorf("%s must be an ISO 4217 code", EnvCurrency))
	}
	if c.Session.TTL <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("%s must be positive", EnvSessionTTL))
	}

	return errs
}

// RequireDB resolves the database DSN for tools that always need a database,
// whatever cart storage is configured.
func (c *Config) RequireDB() error {
	return c.DB.ensureDSN(c.FeatureFlags.UseSQLite)
}

type AppConfig struct {
	Env          string        `envconfig:"CASADEELE_APP_ENV" required:"true"`
	Port         string        `envconfig:"CASADEELE_APP_PORT" default:"8080"`
	LogLevel     string        `envconfig:"CASADEELE_LOG_LEVEL" default:"info"`
	LogWarnStack bool          `envconfig:"CASADEELE_LOG_WARN_STACK" default:"false"`
	ShutdownWait time.Duration `envconfig:"CASADEELE_SHUTDOWN_TIMEOUT" default:"15s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"CASADEELE_DB_DSN"`
	Driver string `envconfig:"CASADEELE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CASADEELE_DB_HOST"`
	LegacyPort     int    `envconfig:"CASADEELE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CASADEELE_DB_USER"`
	LegacyPassword string `envconfig:"CASADEELE_DB_PASSWORD"`
	LegacyName     string `envconfig:"CASADEELE_DB_NAME"`
	LegacySSLMode  string `envconfig:"CASADEELE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CASADEELE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CASADEELE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CASADEELE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CASADEELE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// RedisConfig is optional; it backs the redis cart slot, idempotency records and session revocation.
type RedisConfig struct {
	URL          string        `envconfig:"CASADEELE_REDIS_URL"`
	Address      string        `envconfig:"CASADEELE_REDIS_ADDR"`
	Password     string        `envconfig:"CASADEELE_REDIS_PASSWORD"`
	DB           int           `envconfig:"CASADEELE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CASADEELE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CASADEELE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CASADEELE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CASADEELE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CASADEELE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

// SessionConfig signs the storefront session tokens handed to browsers.
type SessionConfig struct {
	Secret string        `envconfig:"CASADEELE_SESSION_SECRET" required:"true"`
	Issuer string        `envconfig:"CASADEELE_SESSION_ISSUER" default:"casadeele-storefront"`
	TTL    time.Duration `envconfig:"CASADEELE_SESSION_TTL" default:"720h"`
}

// APIConfig points at the CasaDeEle REST backend.
type APIConfig struct {
	BaseURL            string        `envconfig:"CASADEELE_API_BASE_URL" required:"true"`
	Timeout            time.Duration `envconfig:"CASADEELE_API_TIMEOUT" default:"15s"`
	BreakerMaxFailures uint32        `envconfig:"CASADEELE_API_BREAKER_MAX_FAILURES" default:"5"`
	BreakerOpenTimeout time.Duration `envconfig:"CASADEELE_API_BREAKER_OPEN_TIMEOUT" default:"30s"`
}

type CartConfig struct {
	Storage          string        `envconfig:"CASADEELE_CART_STORAGE" default:"memory"`
	SlotKey          string        `envconfig:"CASADEELE_CART_SLOT_KEY" default:"cartItems"`
	FileDir          string        `envconfig:"CASADEELE_CART_FILE_DIR" default:"var/carts"`
	TTL              time.Duration `envconfig:"CASADEELE_CART_TTL" default:"720h"`
	PlaceholderImage string        `envconfig:"CASADEELE_CART_PLACEHOLDER_IMAGE" default:"/images/placeholder.png"`
	IdleEviction     time.Duration `envconfig:"CASADEELE_CART_IDLE_EVICTION" default:"30m"`
	JanitorInterval  time.Duration `envconfig:"CASADEELE_CART_JANITOR_INTERVAL" default:"5m"`
}

type CheckoutConfig struct {
	Currency         string        `envconfig:"CASADEELE_CHECKOUT_CURRENCY" default:"INR"`
	MerchantName     string        `envconfig:"CASADEELE_CHECKOUT_MERCHANT_NAME" default:"CasaDeEle"`
	Description      string        `envconfig:"CASADEELE_CHECKOUT_DESCRIPTION" default:"Course Purchase"`
	Image            string        `envconfig:"CASADEELE_CHECKOUT_IMAGE" default:"/logo.png"`
	ThemeColor       string        `envconfig:"CASADEELE_CHECKOUT_THEME_COLOR" default:"#F37254"`
	PaymentWindow    time.Duration `envconfig:"CASADEELE_CHECKOUT_PAYMENT_WINDOW" default:"30m"`
	ConfirmationPath string        `envconfig:"CASADEELE_CHECKOUT_CONFIRMATION_PATH" default:"/order-confirmation"`
	OpenWait         time.Duration `envconfig:"CASADEELE_CHECKOUT_OPEN_WAIT" default:"20s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CASADEELE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CASADEELE_AUTO_MIGRATE" default:"false"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"CASADEELE_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

// RateLimitConfig throttles session issuance and coupon guessing. It only
// applies when redis is configured.
type RateLimitConfig struct {
	Window             time.Duration `envconfig:"CASADEELE_RATE_LIMIT_WINDOW" default:"1m"`
	SessionIPLimit     int           `envconfig:"CASADEELE_RATE_LIMIT_SESSION_IP" default:"30"`
	CouponIPLimit      int           `envconfig:"CASADEELE_RATE_LIMIT_COUPON_IP" default:"60"`
	CouponSessionLimit int           `envconfig:"CASADEELE_RATE_LIMIT_COUPON_SESSION" default:"10"`
}

type MetricsConfig struct {
	Namespace string `envconfig:"CASADEELE_METRICS_NAMESPACE" default:"casadeele"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DBDriverSQLite
	}
	if db.DSN != "" {
		return nil
	}
	if db.Driver == DBDriverSQLite {
		db.DSN = "file:storefront.db?cache=shared"
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
