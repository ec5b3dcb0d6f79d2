package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"

	"github.com/josh-kwaku/credit-ledger/internal/repository"
)

type Config struct {
	DatabaseURL  string `env:"DATABASE_URL,required,notEmpty"`
	JWTSecret    string `env:"JWT_SECRET,required,notEmpty"`
	ServiceToken string `env:"SERVICE_TOKEN,required,notEmpty"`
	Port         int    `env:"PORT" envDefault:"8080"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv       string `env:"APP_ENV" envDefault:"production"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`

	LockTimeoutMS int `env:"LOCK_TIMEOUT_MS" envDefault:"5000"`
	MaxTxRetries  int `env:"MAX_TX_RETRIES" envDefault:"3"`

	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
	MigrationsDir  string        `env:"MIGRATIONS_DIR" envDefault:"migrations"`
	AutoMigrate    bool          `env:"AUTO_MIGRATE" envDefault:"false"`

	SignupPromoCredits int64  `env:"SIGNUP_PROMO_CREDITS" envDefault:"100"`
	PricingFile        string `env:"PRICING_FILE"`

	AlertWebhookURL string `env:"ALERT_WEBHOOK_URL"`

	SchedulerEnabled  bool          `env:"SCHEDULER_ENABLED" envDefault:"true"`
	SchedulerTick     time.Duration `env:"SCHEDULER_TICK" envDefault:"1m"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"1h"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if cfg.SignupPromoCredits < 0 {
		return nil, fmt.Errorf("config.Load: SIGNUP_PROMO_CREDITS must not be negative")
	}
	if cfg.IdempotencyTTL <= 0 {
		return nil, fmt.Errorf("config.Load: IDEMPOTENCY_TTL must be positive")
	}
	return &cfg, nil
}

// CLIConfig is the subset ledgerctl needs. It does not require the HTTP
// secrets.
type CLIConfig struct {
	DatabaseURL     string `env:"DATABASE_URL,required,notEmpty"`
	JWTSecret       string `env:"JWT_SECRET"`
	LogLevel        string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv          string `env:"APP_ENV" envDefault:"production"`
	LockTimeoutMS   int    `env:"LOCK_TIMEOUT_MS" envDefault:"5000"`
	MaxTxRetries    int    `env:"MAX_TX_RETRIES" envDefault:"3"`
	MigrationsDir   string `env:"MIGRATIONS_DIR" envDefault:"migrations"`
	AlertWebhookURL string `env:"ALERT_WEBHOOK_URL"`
}

func LoadCLI() (*CLIConfig, error) {
	cfg, err := env.ParseAs[CLIConfig]()
	if err != nil {
		return nil, fmt.Errorf("config.LoadCLI: %w", err)
	}
	return &cfg, nil
}

func (c *CLIConfig) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutMS) * time.Millisecond
}

func (c *Config) Pool() repository.PoolConfig {
	return repository.PoolConfig{
		MaxOpenConns:    c.DBMaxOpenConns,
		MaxIdleConns:    c.DBMaxIdleConns,
		ConnMaxLifetime: time.Duration(c.DBConnMaxLifetimeS) * time.Second,
		ConnMaxIdleTime: time.Duration(c.DBConnMaxIdleTimeS) * time.Second,
	}
}

func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutMS) * time.Millisecond
}
