package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Env              string `yaml:"env"`
	Port             string `yaml:"port"`
	LogLevel         string `yaml:"log_level"`
	DBDriver         string `yaml:"db_driver"`
	DBDSN            string `yaml:"db_dsn"`
	DBConnectTimeout string `yaml:"db_connect_timeout"`
	Secret           string `yaml:"secret"`
	SessionBackend   string `yaml:"session_backend"`
	SessionTTL       string `yaml:"session_ttl"`
	CookieSecure     bool   `yaml:"cookie_secure"`
	BcryptCost       int    `yaml:"bcrypt_cost"`
	Redis            Redis  `yaml:"redis"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func Default() *Config {
	return &Config{
		Env:              "dev",
		Port:             "8080",
		LogLevel:         "info",
		DBDriver:         "sqlite3",
		DBDSN:            "moviewatch.db",
		DBConnectTimeout: "5s",
		SessionBackend:   "sql",
		SessionTTL:       "24h",
		BcryptCost:       bcrypt.DefaultCost,
		Redis:            Redis{Addr: "localhost:6379"},
	}
}

// Load reads a yaml file on top of the defaults.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}

	return config, nil
}

// LoadDotEnv loads a .env file into the process environment when present.
// Variables that are already set win.
func LoadDotEnv(filenames ...string) error {
	err := godotenv.Load(filenames...)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// ApplyEnv overrides file values with environment variables.
func (c *Config) ApplyEnv() {
	envStr("APP_ENV", &c.Env)
	envStr("PORT", &c.Port)
	envStr("LOG_LEVEL", &c.LogLevel)
	envStr("DB_DRIVER", &c.DBDriver)
	envStr("DB_DSN", &c.DBDSN)
	envStr("DB_CONNECT_TIMEOUT", &c.DBConnectTimeout)
	envStr("SESSION_SECRET", &c.Secret)
	envStr("SESSION_BACKEND", &c.SessionBackend)
	envStr("SESSION_TTL", &c.SessionTTL)
	envStr("REDIS_ADDR", &c.Redis.Addr)
	envStr("REDIS_PASSWORD", &c.Redis.Password)
	envInt("REDIS_DB", &c.Redis.DB)
	envInt("BCRYPT_COST", &c.BcryptCost)
	if v := os.Getenv("COOKIE_SECURE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.CookieSecure = b
		}
	}
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported db_driver %q", c.DBDriver)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("db_dsn is required")
	}
	switch c.SessionBackend {
	case "sql", "redis", "memory":
	default:
		return fmt.Errorf("unsupported session_backend %q", c.SessionBackend)
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if _, err := c.SessionTTLDuration(); err != nil {
		return err
	}
	if _, err := c.ConnectTimeout(); err != nil {
		return err
	}
	return nil
}

func (c *Config) SessionTTLDuration() (time.Duration, error) {
	return positiveDuration("session_ttl", c.SessionTTL)
}

func (c *Config) ConnectTimeout() (time.Duration, error) {
	return positiveDuration("db_connect_timeout", c.DBConnectTimeout)
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "prod") || strings.EqualFold(c.Env, "production")
}

func positiveDuration(name, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", name)
	}
	return d, nil
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
