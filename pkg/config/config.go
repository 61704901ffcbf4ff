package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Password     PasswordConfig
	Stripe       StripeConfig
	Mint         MintConfig
	Pricing      PricingConfig
	Trades       TradesConfig
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
	if err := cfg.Mint.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FCARD_APP_ENV" required:"true"`
	Port         string `envconfig:"FCARD_APP_PORT" required:"true"`
	BaseURL      string `envconfig:"FCARD_APP_BASE_URL" default:"http://localhost:3000"`
	LogLevel     string `envconfig:"FCARD_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FCARD_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"FCARD_DB_DSN"`
	Driver string `envconfig:"FCARD_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"FCARD_DB_HOST"`
	Port     int    `envconfig:"FCARD_DB_PORT" default:"5432"`
	User     string `envconfig:"FCARD_DB_USER"`
	Password string `envconfig:"FCARD_DB_PASSWORD"`
	Name     string `envconfig:"FCARD_DB_NAME"`
	SSLMode  string `envconfig:"FCARD_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FCARD_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FCARD_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FCARD_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FCARD_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.Host == "" || d.User == "" || d.Name == "" {
		return fmt.Errorf("either FCARD_DB_DSN or FCARD_DB_HOST/USER/NAME must be set")
	}
	d.DSN = fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User),
		url.QueryEscape(d.Password),
		d.Host,
		d.Port,
		d.Name,
		d.SSLMode,
	)
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"FCARD_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FCARD_REDIS_ADDR"`
	Password     string        `envconfig:"FCARD_REDIS_PASSWORD"`
	DB           int           `envconfig:"FCARD_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FCARD_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FCARD_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FCARD_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FCARD_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FCARD_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"FCARD_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"FCARD_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"FCARD_JWT_EXPIRATION_MINUTES" default:"60"`
}

// Expiration returns the access token lifetime.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"FCARD_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"FCARD_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"FCARD_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"FCARD_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"FCARD_ARGON_KEY_LEN" default:"32"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"FCARD_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"FCARD_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"FCARD_STRIPE_ENV" default:"test"`
}

// Environment reports the configured Stripe environment.
func (s StripeConfig) Environment() string {
	return s.Env
}

const (
	MintModeLedger  = "ledger"
	MintModeSandbox = "sandbox"
)

type MintConfig struct {
	// Mode selects how mints are authorized. "ledger" requires a configured
	// signing key; "sandbox" generates an ephemeral key at boot and is the
	// explicit dev/test mode. Misconfiguration fails startup.
	Mode string `envconfig:"FCARD_MINT_MODE" default:"ledger"`

	// SignerKeyHex is the hex-encoded secp256k1 private key the voucher
	// signer uses. The supply ledger trusts the matching public key.
	SignerKeyHex string `envconfig:"FCARD_MINT_SIGNER_KEY_HEX"`

	// VoucherTTL bounds how long an issued voucher stays redeemable.
	VoucherTTL time.Duration `envconfig:"FCARD_MINT_VOUCHER_TTL" default:"10m"`

	// FinalizeClaimTTL bounds the redis claim that serializes concurrent
	// finalize attempts on one order.
	FinalizeClaimTTL time.Duration `envconfig:"FCARD_MINT_FINALIZE_CLAIM_TTL" default:"2m"`
}

func (m MintConfig) validate() error {
	switch m.Mode {
	case MintModeLedger, MintModeSandbox:
	default:
		return fmt.Errorf("FCARD_MINT_MODE must be %q or %q, got %q", MintModeLedger, MintModeSandbox, m.Mode)
	}
	if m.Mode == MintModeLedger && m.SignerKeyHex == "" {
		return fmt.Errorf("FCARD_MINT_SIGNER_KEY_HEX is required when FCARD_MINT_MODE=ledger")
	}
	return nil
}

type PricingConfig struct {
	PlatformFeeBps  int   `envconfig:"FCARD_PRICING_PLATFORM_FEE_BPS" default:"1000"`
	NetworkFeeCents int64 `envconfig:"FCARD_PRICING_NETWORK_FEE_CENTS" default:"25"`
}

type TradesConfig struct {
	FeedCapacity int `envconfig:"FCARD_TRADES_FEED_CAPACITY" default:"50"`
}

type CronConfig struct {
	Interval       time.Duration `envconfig:"FCARD_CRON_INTERVAL" default:"5m"`
	LockTTL        time.Duration `envconfig:"FCARD_CRON_LOCK_TTL" default:"4m"`
	CheckoutWindow time.Duration `envconfig:"FCARD_CRON_CHECKOUT_WINDOW" default:"24h"`
	PaidMintWindow time.Duration `envconfig:"FCARD_CRON_PAID_MINT_WINDOW" default:"48h"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"FCARD_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"FCARD_AUTO_MIGRATE" default:"false"`
}
