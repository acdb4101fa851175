// Package config loads dashboard settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rcourtman/crauti-dashboard/internal/logging"
	"github.com/rs/zerolog/log"
)

// Environment variables read by Load.
const (
	EnvFileVar            = "CRAUTI_DASHBOARD_ENV_FILE"
	EnvGatewayAdminURL    = "GATEWAY_ADMIN_URL"
	EnvPollInterval       = "POLL_INTERVAL"
	EnvRequestTimeout     = "REQUEST_TIMEOUT"
	EnvInsecureSkipVerify = "INSECURE_SKIP_VERIFY"
	EnvDNSCacheTTL        = "DNS_CACHE_TTL"
	EnvDurationWireUnit   = "DURATION_WIRE_UNIT"
	EnvLogLevel           = "LOG_LEVEL"
	EnvLogFormat          = "LOG_FORMAT"
	EnvListenAddress      = "LISTEN_ADDRESS"
	EnvMetricsAddress     = "METRICS_ADDRESS"
)

// Defaults
const (
	DefaultGatewayAdminURL = "http://localhost:8181/api"
	DefaultPollInterval    = 5 * time.Second
	DefaultRequestTimeout  = 10 * time.Second
	DefaultDNSCacheTTL     = 5 * time.Minute
	DefaultWireUnit        = time.Nanosecond
	DefaultListenAddress   = "127.0.0.1:8190"
	DefaultMetricsAddress  = ""
	defaultEnvFile         = ".env"
)

var wireUnits = map[string]time.Duration{
	"ns": time.Nanosecond,
	"us": time.Microsecond,
	"µs": time.Microsecond,
	"ms": time.Millisecond,
	"s":  time.Second,
}

// Config holds the dashboard runtime settings.
type Config struct {
	GatewayAdminURL    string
	PollInterval       time.Duration
	RequestTimeout     time.Duration
	InsecureSkipVerify bool
	DNSCacheTTL        time.Duration
	DurationWireUnit   time.Duration
	LogLevel           string
	LogFormat          string
	ListenAddress      string
	// MetricsAddress serves /metrics on a separate listener when set.
	// Empty means metrics share the API listener.
	MetricsAddress string

	// EnvFile is the .env file that was read, if any.
	EnvFile string
	// EnvOverrides records settings taken from the process environment
	// rather than the .env file.
	EnvOverrides map[string]bool
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		GatewayAdminURL:  DefaultGatewayAdminURL,
		PollInterval:     DefaultPollInterval,
		RequestTimeout:   DefaultRequestTimeout,
		DNSCacheTTL:      DefaultDNSCacheTTL,
		DurationWireUnit: DefaultWireUnit,
		LogLevel:         "info",
		LogFormat:        "auto",
		ListenAddress:    DefaultListenAddress,
		MetricsAddress:   DefaultMetricsAddress,
		EnvOverrides:     make(map[string]bool),
	}
}

// Load builds the config from getenv and the optional .env file. Values in
// the process environment take precedence over the file. A nil getenv reads
// the process environment.
func Load(getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := Default()

	envFile := strings.TrimSpace(getenv(EnvFileVar))
	explicit := envFile != ""
	if !explicit {
		envFile = defaultEnvFile
	}

	fileVals, err := readEnvFile(envFile)
	switch {
	case err == nil:
		cfg.EnvFile = envFile
		log.Info().Str("file", envFile).Msg("Loaded .env file")
	case errors.Is(err, os.ErrNotExist) && !explicit:
		fileVals = map[string]string{}
	default:
		return nil, fmt.Errorf("read env file %s: %w", envFile, err)
	}

	lookup := func(key string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			cfg.EnvOverrides[key] = true
			return v
		}
		return strings.TrimSpace(fileVals[key])
	}

	if err := cfg.apply(lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readEnvFile(path string) (map[string]string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return godotenv.Read(path)
}

func (c *Config) apply(lookup func(string) string) error {
	if v := lookup(EnvGatewayAdminURL); v != "" {
		c.GatewayAdminURL = v
	}

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{EnvPollInterval, &c.PollInterval},
		{EnvRequestTimeout, &c.RequestTimeout},
		{EnvDNSCacheTTL, &c.DNSCacheTTL},
	}
	for _, d := range durations {
		v := lookup(d.key)
		if v == "" {
			continue
		}
		parsed, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.target = parsed
	}

	if v := lookup(EnvInsecureSkipVerify); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvInsecureSkipVerify, err)
		}
		c.InsecureSkipVerify = b
	}

	if v := lookup(EnvDurationWireUnit); v != "" {
		unit, err := ParseWireUnit(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDurationWireUnit, err)
		}
		c.DurationWireUnit = unit
	}

	if v := lookup(EnvLogLevel); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := lookup(EnvLogFormat); v != "" {
		c.LogFormat = strings.ToLower(v)
	}
	if v := lookup(EnvListenAddress); v != "" {
		c.ListenAddress = v
	}
	if v := lookup(EnvMetricsAddress); v != "" {
		c.MetricsAddress = v
	}
	return nil
}

// parseDuration accepts Go duration strings and bare seconds.
func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return d, nil
}

// ParseWireUnit maps a unit name (ns, us, ms, s) to its duration.
func ParseWireUnit(v string) (time.Duration, error) {
	unit, ok := wireUnits[strings.ToLower(strings.TrimSpace(v))]
	if !ok {
		return 0, fmt.Errorf("unknown duration unit %q (want ns, us, ms or s)", v)
	}
	return unit, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	u, err := url.Parse(c.GatewayAdminURL)
	if err != nil {
		return fmt.Errorf("invalid gateway admin URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("gateway admin URL must start with http:// or https://")
	}
	if u.Host == "" {
		return fmt.Errorf("gateway admin URL is missing a host")
	}

	if c.PollInterval < time.Second {
		return fmt.Errorf("poll interval must be at least 1 second")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.DNSCacheTTL <= 0 {
		return fmt.Errorf("DNS cache TTL must be positive")
	}
	if c.DurationWireUnit <= 0 {
		return fmt.Errorf("duration wire unit must be positive")
	}

	switch c.LogFormat {
	case "json", "console", "auto":
	default:
		return fmt.Errorf("invalid log format %q", c.LogFormat)
	}

	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("listen address is required")
	}
	return nil
}

// LoggingConfig returns the logger settings for component.
func (c *Config) LoggingConfig(component string) logging.Config {
	return logging.Config{
		Format:    c.LogFormat,
		Level:     c.LogLevel,
		Component: component,
	}
}
