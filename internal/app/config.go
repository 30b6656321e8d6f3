package app

import (
	"os"
	"strings"
	"time"
	_ "time/tzdata" // report time zones must resolve in scratch images

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (POS_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (POS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Lock        LockConfig
	Sweeper     SweeperConfig
	Events      EventsConfig
	Reports     ReportsConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// LockConfig bounds how long a request waits for an order row lock.
type LockConfig struct {
	Timeout          time.Duration `default:"5s"  usage:"Order lock wait timeout"`
	StatementTimeout time.Duration `default:"10s" usage:"Statement timeout inside order transactions"`
	AcquireAttempts  int           `default:"3"   usage:"Attempts to take a lock after a serialization failure"`
}

// SweeperConfig controls cancellation of abandoned OPEN orders.
type SweeperConfig struct {
	Interval  time.Duration `default:"0"   usage:"Sweep interval, 0 disables the sweeper"`
	IdleAfter time.Duration `default:"12h" usage:"Cancel OPEN orders untouched for this long" flag:"sweeper-idle-after"`
	Batch     int           `default:"50"  usage:"Orders cancelled per sweep"`
}

// EventsConfig configures the kitchen feed.
type EventsConfig struct {
	AMQPURL  string `usage:"RabbitMQ URL, empty disables publishing" flag:"amqp-url"`
	Exchange string `default:"pos.orders" usage:"Topic exchange for order events"`
}

// ReportsConfig configures reporting.
type ReportsConfig struct {
	Timezone string `default:"UTC" usage:"IANA time zone for daily and hourly buckets"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins []string `default:"*" usage:"Allowed CORS origins"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "POS",
		Files:     []string{"config.yaml", "/etc/pos/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults(os.Getenv)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps the platform variables DATABASE_URL and PORT
// onto the POS_ configuration when it does not set them.
func (c *Config) applyPlatformDefaults(getenv func(string) string) {
	if c.DatabaseURL == "" {
		c.DatabaseURL = getenv("DATABASE_URL")
	}
	if port := getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	switch {
	case strings.TrimSpace(c.DatabaseURL) == "":
		return errors.New("database URL is required: set POS_DATABASE_URL or DATABASE_URL")
	case c.Lock.Timeout <= 0:
		return errors.New("lock timeout must be positive")
	case c.Lock.AcquireAttempts < 1:
		return errors.New("lock acquire attempts must be at least 1")
	case c.Sweeper.Interval < 0:
		return errors.New("sweeper interval must not be negative")
	case c.Sweeper.Interval > 0 && c.Sweeper.IdleAfter <= 0:
		return errors.New("sweeper idle-after must be positive")
	}
	if _, err := c.location(); err != nil {
		return err
	}
	return nil
}

// location resolves Reports.Timezone.
func (c *Config) location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Reports.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "reports timezone %q", c.Reports.Timezone)
	}
	return loc, nil
}
