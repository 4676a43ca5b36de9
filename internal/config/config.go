package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application level configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Borrow   BorrowConfig   `mapstructure:"borrow"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Swagger  SwaggerConfig  `mapstructure:"swagger"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	BodyLimit       string        `mapstructure:"body_limit"`
}

// DatabaseConfig holds database connection and pool settings.
type DatabaseConfig struct {
	// Driver is "mysql" or "postgres".
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// Reset drops all tables on startup.
	Reset bool `mapstructure:"reset"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig holds token and registration settings.
type AuthConfig struct {
	JWTSecret              string        `mapstructure:"jwt_secret"`
	SessionTTL             time.Duration `mapstructure:"session_ttl"`
	AllowAdminRegistration bool          `mapstructure:"allow_admin_registration"`
}

// BorrowConfig holds borrow workflow settings.
type BorrowConfig struct {
	LoanPeriod time.Duration `mapstructure:"loan_period"`
	LockTTL    time.Duration `mapstructure:"lock_ttl"`
	LockWait   time.Duration `mapstructure:"lock_wait"`
	// LockBackend is "redis" for multi-instance deployments or "memory"
	// for a single process.
	LockBackend string `mapstructure:"lock_backend"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SwaggerConfig holds API docs settings.
type SwaggerConfig struct {
	Host string `mapstructure:"host"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.request_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.body_limit", "1M")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.dsn", "user:password@tcp(localhost:3306)/library?charset=utf8mb4&parseTime=True&loc=UTC")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.reset", false)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.jwt_secret", "change-me")
	v.SetDefault("auth.session_ttl", 24*time.Hour)
	v.SetDefault("auth.allow_admin_registration", false)

	v.SetDefault("borrow.loan_period", 14*24*time.Hour)
	v.SetDefault("borrow.lock_ttl", 10*time.Second)
	v.SetDefault("borrow.lock_wait", 3*time.Second)
	v.SetDefault("borrow.lock_backend", "redis")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("swagger.host", "")
}

// Load builds Config from defaults, an optional config.yaml and the environment.
// Environment variables use the upper-cased key with dots replaced by underscores,
// e.g. DATABASE_DSN or AUTH_JWT_SECRET.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/librarian")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret must not be empty")
	}
	if c.Auth.SessionTTL <= 0 {
		return errors.New("auth.session_ttl must be positive")
	}
	if c.Borrow.LoanPeriod <= 0 {
		return errors.New("borrow.loan_period must be positive")
	}
	switch c.Borrow.LockBackend {
	case "redis", "memory":
	default:
		return fmt.Errorf("unsupported lock backend %q", c.Borrow.LockBackend)
	}
	return nil
}
