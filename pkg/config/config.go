package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Kame         KameConfig
	Receivables  ReceivablesConfig
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
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"VITRO_APP_ENV" required:"true"`
	Port         string `envconfig:"VITRO_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"VITRO_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"VITRO_LOG_FORMAT" default:"json" validate:"oneof=json console"`
	LogWarnStack bool   `envconfig:"VITRO_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"VITRO_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN        string `envconfig:"VITRO_DB_DSN"`
	Driver     string `envconfig:"VITRO_DB_DRIVER" default:"sqlite" validate:"oneof=sqlite postgres"`
	SQLitePath string `envconfig:"VITRO_DB_SQLITE_PATH" default:"data/vitroscience.db"`

	LegacyHost     string `envconfig:"VITRO_DB_HOST"`
	LegacyPort     int    `envconfig:"VITRO_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"VITRO_DB_USER"`
	LegacyPassword string `envconfig:"VITRO_DB_PASSWORD"`
	LegacyName     string `envconfig:"VITRO_DB_NAME"`
	LegacySSLMode  string `envconfig:"VITRO_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"VITRO_DB_MAX_OPEN_CONNS" default:"4"`
	MaxIdleConns    int           `envconfig:"VITRO_DB_MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime time.Duration `envconfig:"VITRO_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"VITRO_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"VITRO_DB_SLOW_QUERY" default:"2s"`
}

// IsSQLite reports whether the embedded store is in use.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DBDriverSQLite)
}

// RedisConfig is optional; without a URL or address the workers fall back
// to in-process locking and token caching.
type RedisConfig struct {
	URL          string        `envconfig:"VITRO_REDIS_URL"`
	Address      string        `envconfig:"VITRO_REDIS_ADDR"`
	Password     string        `envconfig:"VITRO_REDIS_PASSWORD"`
	DB           int           `envconfig:"VITRO_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"VITRO_REDIS_POOL_SIZE" default:"4"`
	MinIdleConns int           `envconfig:"VITRO_REDIS_MIN_IDLE_CONNS" default:"1"`
	DialTimeout  time.Duration `envconfig:"VITRO_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VITRO_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"VITRO_REDIS_WRITE_TIMEOUT" default:"5s"`
}

func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type KameConfig struct {
	TokenURL      string        `envconfig:"VITRO_KAME_TOKEN_URL" required:"true" validate:"url"`
	BaseURL       string        `envconfig:"VITRO_KAME_BASE_URL" default:"https://api.kameone.cl/api" validate:"url"`
	ClientID      string        `envconfig:"VITRO_KAME_CLIENT_ID" required:"true"`
	ClientSecret  string        `envconfig:"VITRO_KAME_CLIENT_SECRET" required:"true"`
	Audience      string        `envconfig:"VITRO_KAME_AUDIENCE" default:"https://api.kameone.cl/api"`
	PerPage       int           `envconfig:"VITRO_KAME_PER_PAGE" default:"200" validate:"min=1,max=1000"`
	RateLimitWait time.Duration `envconfig:"VITRO_KAME_RATE_LIMIT_WAIT" default:"15s"`
	PageDelay     time.Duration `envconfig:"VITRO_KAME_PAGE_DELAY" default:"300ms"`
	Timeout       time.Duration `envconfig:"VITRO_KAME_TIMEOUT" default:"30s"`
	MaxRetries    int           `envconfig:"VITRO_KAME_MAX_RETRIES" default:"5" validate:"min=0"`
}

type ReceivablesConfig struct {
	WindowStart  string `envconfig:"VITRO_RECEIVABLES_WINDOW_START" default:"2023-01-01" validate:"datetime=2006-01-02"`
	ReopenPolicy string `envconfig:"VITRO_RECEIVABLES_REOPEN_POLICY" default:"quarantine" validate:"oneof=quarantine readmit"`
	Timezone     string `envconfig:"VITRO_RECEIVABLES_TIMEZONE" default:"America/Santiago"`
}

// WindowStartDate parses the first due date requested from the ERP.
func (r ReceivablesConfig) WindowStartDate() (time.Time, error) {
	start, err := time.Parse(time.DateOnly, r.WindowStart)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", EnvReceivablesWindowStart, err)
	}
	return start, nil
}

// Location resolves the business timezone used for snapshot dates.
func (r ReceivablesConfig) Location() (*time.Location, error) {
	if strings.TrimSpace(r.Timezone) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", EnvReceivablesTimezone, err)
	}
	return loc, nil
}

type CronConfig struct {
	Interval    time.Duration `envconfig:"VITRO_CRON_INTERVAL" default:"1h"`
	LockTTL     time.Duration `envconfig:"VITRO_CRON_LOCK_TTL" default:"2h"`
	MetricsAddr string        `envconfig:"VITRO_CRON_METRICS_ADDR" default:":9102"`
	// RunRetentionDays bounds how long failed and skipped run records are kept.
	RunRetentionDays int           `envconfig:"VITRO_CRON_RUN_RETENTION_DAYS" default:"180" validate:"min=1"`
	RetentionEvery   time.Duration `envconfig:"VITRO_CRON_RETENTION_EVERY" default:"24h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"VITRO_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	if db.IsSQLite() {
		if strings.TrimSpace(db.SQLitePath) == "" {
			return fmt.Errorf("either %s or %s is required", EnvDBDSN, EnvDBSQLitePath)
		}
		db.DSN = SQLiteDSN(db.SQLitePath)
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

// SQLiteDSN builds the file DSN with the pragmas the writer relies on.
func SQLiteDSN(path string) string {
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)
}
