package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes environment overrides, e.g. POOLSERVER_POOL_SIZE
const EnvPrefix = "POOLSERVER"

// Config holds all application configuration.
type Config struct {
	Host           string
	Port           int
	PoolSize       int
	QueueSize      int
	LongQueryDelay time.Duration
	Env            string
	LogLevel       string
}

// Defaults returns the configuration used when nothing overrides it
func Defaults() *Config {
	return &Config{
		Host:           "127.0.0.1",
		Port:           7878,
		PoolSize:       5,
		QueueSize:      0,
		LongQueryDelay: 10 * time.Second,
		Env:            "development",
		LogLevel:       "info",
	}
}

// flag name -> manager key
var keys = map[string]string{
	"host":             "host",
	"port":             "port",
	"pool-size":        "pool.size",
	"queue-size":       "queue.size",
	"long-query-delay": "long.query.delay",
	"env":              "env",
	"log-level":        "log.level",
}

// Load builds the configuration from defaults, an optional JSON file (-config),
// POOLSERVER_* environment variables and command line flags, in increasing
// order of precedence.
func Load(args []string) (*Config, error) {
	return load(args, nil)
}

func load(args []string, environ []string) (*Config, error) {
	cfg := Defaults()

	fs := flag.NewFlagSet("pool-server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var file string
	fs.StringVar(&file, "config", "", "JSON configuration file")
	fs.StringVar(&cfg.Host, "host", cfg.Host, "listen host")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "listen port")
	fs.IntVar(&cfg.PoolSize, "pool-size", cfg.PoolSize, "number of worker goroutines (>= 1)")
	fs.IntVar(&cfg.QueueSize, "queue-size", cfg.QueueSize, "accepted connections buffered ahead of the workers")
	fs.DurationVar(&cfg.LongQueryDelay, "long-query-delay", cfg.LongQueryDelay, "latency of GET /long-query")
	fs.StringVar(&cfg.Env, "env", cfg.Env, "environment (development/production)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	m := NewManager()
	if file != "" {
		if err := m.LoadFromJSON(file); err != nil {
			return nil, err
		}
	}
	if environ == nil {
		m.LoadFromEnv(EnvPrefix)
	} else {
		m.loadFromEnviron(EnvPrefix, environ)
	}

	if err := cfg.apply(m, explicit); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// apply copies manager values onto fields whose flag was not given explicitly
func (c *Config) apply(m *Manager, explicit map[string]bool) error {
	use := func(flagName string) (string, bool) {
		if explicit[flagName] {
			return "", false
		}
		key := keys[flagName]
		_, ok := m.Get(key)
		return key, ok
	}

	var err error
	if key, ok := use("host"); ok {
		c.Host = m.GetString(key, c.Host)
	}
	if key, ok := use("port"); ok {
		if c.Port, err = m.GetInt(key, c.Port); err != nil {
			return err
		}
	}
	if key, ok := use("pool-size"); ok {
		if c.PoolSize, err = m.GetInt(key, c.PoolSize); err != nil {
			return err
		}
	}
	if key, ok := use("queue-size"); ok {
		if c.QueueSize, err = m.GetInt(key, c.QueueSize); err != nil {
			return err
		}
	}
	if key, ok := use("long-query-delay"); ok {
		if c.LongQueryDelay, err = m.GetDuration(key, c.LongQueryDelay); err != nil {
			return err
		}
	}
	if key, ok := use("env"); ok {
		c.Env = m.GetString(key, c.Env)
	}
	if key, ok := use("log-level"); ok {
		c.LogLevel = m.GetString(key, c.LogLevel)
	}
	return nil
}

// Validate rejects values the server cannot start with
func (c *Config) Validate() error {
	var errs []error
	if c.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("pool size %d: must be at least 1", c.PoolSize))
	}
	if c.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("queue size %d: must not be negative", c.QueueSize))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d: out of range", c.Port))
	}
	if c.LongQueryDelay < 0 {
		errs = append(errs, fmt.Errorf("long query delay %s: must not be negative", c.LongQueryDelay))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Production reports whether the server runs in the production environment
func (c *Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

// Level parses LogLevel
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	return l, nil
}
