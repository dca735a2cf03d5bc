// Package config loads the focusflow server configuration.
//
// Sources are layered with koanf, later ones overriding earlier ones:
//  1. Built-in defaults
//  2. Optional YAML file (CONFIG_PATH, then the default paths)
//  3. FOCUSFLOW_ environment variables
//
// Environment variables map onto config paths by splitting the section
// from the field at the first underscore after the prefix:
//
//	FOCUSFLOW_REDIS_URL            -> redis.url
//	FOCUSFLOW_SERVER_READ_TIMEOUT  -> server.read_timeout
//	FOCUSFLOW_AUTH_JWT_SECRET      -> auth.jwt_secret
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the full server configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Redis   RedisConfig   `koanf:"redis"`
	Ledger  LedgerConfig  `koanf:"ledger"`
	Auth    AuthConfig    `koanf:"auth"`
	Service ServiceConfig `koanf:"service"`
	GeoIP   GeoIPConfig   `koanf:"geoip"`
	Logging LoggingConfig `koanf:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`

	// RequestsPerMinute is the per-IP ceiling in front of the whole API.
	// Zero disables it.
	RequestsPerMinute int `koanf:"requests_per_minute" validate:"min=0"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RedisConfig selects the ephemeral store. With Backend "memory" state is
// kept in process and is not shared between instances.
type RedisConfig struct {
	Backend      string        `koanf:"backend" validate:"oneof=redis memory"`
	URL          string        `koanf:"url"`
	Addr         string        `koanf:"addr"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db" validate:"min=0"`
	PoolSize     int           `koanf:"pool_size" validate:"min=0"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// LedgerConfig selects the durable session ledger.
type LedgerConfig struct {
	Driver string `koanf:"driver" validate:"oneof=sqlite mysql"`
	Path   string `koanf:"path" validate:"required_if=Driver sqlite"`
	DSN    string `koanf:"dsn" validate:"required_if=Driver mysql"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	// JWTSecret is the HS256 key shared with the identity provider.
	JWTSecret string `koanf:"jwt_secret" validate:"required,min=32"`
	Issuer    string `koanf:"issuer"`
}

// ServiceConfig tunes the ephemeral state service.
type ServiceConfig struct {
	Namespace         string        `koanf:"namespace" validate:"required"`
	RetryAttempts     int           `koanf:"retry_attempts" validate:"min=1,max=10"`
	RetryBaseDelay    time.Duration `koanf:"retry_base_delay" validate:"gt=0"`
	DistractionLimit  int           `koanf:"distraction_limit" validate:"min=1"`
	DistractionWindow time.Duration `koanf:"distraction_window" validate:"gt=0"`
	Timezone          string        `koanf:"timezone" validate:"required,timezone"`
	BreakerThreshold  uint32        `koanf:"breaker_threshold" validate:"min=1"`
	BreakerTimeout    time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
}

// Location returns the time zone used for calendar days.
func (c ServiceConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// GeoIPConfig points at an optional MaxMind GeoLite2-City database.
type GeoIPConfig struct {
	DatabasePath string `koanf:"database_path"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := getValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		msgs := make([]string, len(verrs))
		for i, fe := range verrs {
			msgs[i] = fmt.Sprintf("%s failed %q", strings.ToLower(fe.Namespace()), fe.Tag())
		}
		return errors.New(strings.Join(msgs, "; "))
	}

	if c.Redis.Backend == "redis" && c.Redis.URL == "" && c.Redis.Addr == "" {
		return errors.New("redis backend requires redis.url or redis.addr")
	}
	return nil
}
