package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment variable the module reads.
const EnvPrefix = "LEDGERSYNC"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	Store        StoreConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LEDGERSYNC_APP_ENV" default:"dev"`
	Port         string `envconfig:"LEDGERSYNC_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"LEDGERSYNC_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LEDGERSYNC_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// StoreConfig configures the outbound line-item store transport and the
// inbound token the bundled server accepts. The token is opaque; the engine
// forwards it without interpreting it.
type StoreConfig struct {
	BaseURL        string        `envconfig:"LEDGERSYNC_STORE_BASE_URL"`
	Token          string        `envconfig:"LEDGERSYNC_STORE_TOKEN"`
	RequestTimeout time.Duration `envconfig:"LEDGERSYNC_STORE_REQUEST_TIMEOUT" default:"30s"`
}

type DBConfig struct {
	DSN    string `envconfig:"LEDGERSYNC_DB_DSN"`
	Driver string `envconfig:"LEDGERSYNC_DB_DRIVER" default:"postgres"`

	MaxOpenConns    int           `envconfig:"LEDGERSYNC_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LEDGERSYNC_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LEDGERSYNC_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LEDGERSYNC_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LEDGERSYNC_REDIS_URL"`
	PoolSize     int           `envconfig:"LEDGERSYNC_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LEDGERSYNC_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LEDGERSYNC_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LEDGERSYNC_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LEDGERSYNC_REDIS_WRITE_TIMEOUT" default:"5s"`

	IdempotencyTTL time.Duration `envconfig:"LEDGERSYNC_REDIS_IDEMPOTENCY_TTL" default:"24h"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"LEDGERSYNC_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"LEDGERSYNC_AUTO_MIGRATE" default:"false"`
}
