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
	Circulation  CirculationConfig
	Mailer       MailerConfig
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
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SHELF_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"SHELF_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SHELF_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SHELF_SERVICE_KIND" default:"cron-worker"`
}

type DBConfig struct {
	DSN    string `envconfig:"SHELF_DB_DSN"`
	Driver string `envconfig:"SHELF_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SHELF_DB_HOST"`
	LegacyPort     int    `envconfig:"SHELF_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SHELF_DB_USER"`
	LegacyPassword string `envconfig:"SHELF_DB_PASSWORD"`
	LegacyName     string `envconfig:"SHELF_DB_NAME"`
	LegacySSLMode  string `envconfig:"SHELF_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SHELF_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SHELF_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SHELF_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SHELF_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SHELF_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SHELF_REDIS_ADDR"`
	Password     string        `envconfig:"SHELF_REDIS_PASSWORD"`
	DB           int           `envconfig:"SHELF_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SHELF_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SHELF_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SHELF_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SHELF_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SHELF_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// CirculationConfig holds the lending and reservation policy knobs.
type CirculationConfig struct {
	ReservationExpiryDays int           `envconfig:"SHELF_RESERVATION_EXPIRY_DAYS" default:"30"`
	SweepInterval         time.Duration `envconfig:"SHELF_SWEEP_INTERVAL" default:"1h"`
}

// ReservationExpiry returns the fixed offset applied to new reservations.
func (c CirculationConfig) ReservationExpiry() time.Duration {
	days := c.ReservationExpiryDays
	if days <= 0 {
		days = 30
	}
	return time.Duration(days) * 24 * time.Hour
}

type MailerConfig struct {
	FromAddress string `envconfig:"SHELF_MAILER_FROM" default:"circulation@openshelf.local"`
	Transport   string `envconfig:"SHELF_MAILER_TRANSPORT" default:"log"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SHELF_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SHELF_AUTO_MIGRATE" default:"false"`
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
