package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/imdario/mergo"
	"github.com/joho/godotenv"

	"github.com/skorper/harmony/internal/waiter"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HARMONY_LOAD_"

// Config holds application configuration.
type Config struct {
	BaseURL        string        `toml:"base_url"`
	Users          int           `toml:"users"`
	SpawnRate      float64       `toml:"spawn_rate"`
	Duration       time.Duration `toml:"duration"`
	Iterations     int           `toml:"iterations"`
	WaitMin        time.Duration `toml:"wait_min"`
	WaitMax        time.Duration `toml:"wait_max"`
	RequestTimeout time.Duration `toml:"request_timeout"`
	Insecure       bool          `toml:"insecure"`
	Tags           []string      `toml:"tags"`
	ExcludeTags    []string      `toml:"exclude_tags"`
	ScenariosFile  string        `toml:"scenarios_file"`
	ShapefilePath  string        `toml:"shapefile"`
	DBPath         string        `toml:"db"`
	LogLevel       string        `toml:"log_level"`
	Poll           PollConfig    `toml:"poll"`
}

// PollConfig configures the async job waiter.
type PollConfig struct {
	Interval    time.Duration `toml:"interval"`
	Timeout     time.Duration `toml:"timeout"`
	MaxFailures int           `toml:"max_failures"`
}

// Waiter converts the poll settings for the waiter package.
func (p PollConfig) Waiter() waiter.Config {
	return waiter.Config{
		PollInterval: p.Interval,
		Timeout:      p.Timeout,
		MaxFailures:  p.MaxFailures,
	}
}

// DefaultConfigPath returns the default config file using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "harmony-load", "config.toml")
}

// DefaultDBPath returns the default results database using XDG_CACHE_HOME.
func DefaultDBPath() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, _ := os.UserHomeDir()
		cacheDir = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheDir, "harmony-load", "results.db")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		BaseURL:        "https://harmony.uat.earthdata.nasa.gov",
		Users:          1,
		SpawnRate:      1,
		WaitMin:        time.Second,
		WaitMax:        5 * time.Second,
		RequestTimeout: 5 * time.Minute,
		DBPath:         DefaultDBPath(),
		LogLevel:       "info",
		Poll: PollConfig{
			Interval:    waiter.DefaultPollInterval,
			Timeout:     waiter.DefaultTimeout,
			MaxFailures: waiter.DefaultMaxFailures,
		},
	}
}

// Load builds the configuration from defaults, the TOML file at path, a
// .env file in the working directory and the environment, in increasing
// precedence. A missing file at the default path is not an error. Keys the
// file sets replace the defaults even when zero; empty or zero environment
// values leave the lower layers in place.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	overlay, err := envOverlay()
	if err != nil {
		return nil, err
	}
	if err := mergo.Merge(cfg, overlay, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merge environment: %w", err)
	}

	return cfg, nil
}

// envOverlay reads every HARMONY_LOAD_* variable into an otherwise zero Config.
func envOverlay() (*Config, error) {
	o := &Config{
		BaseURL:       env("BASE_URL"),
		ScenariosFile: env("SCENARIOS_FILE"),
		ShapefilePath: env("SHAPEFILE"),
		DBPath:        env("DB"),
		LogLevel:      env("LOG_LEVEL"),
		Tags:          splitList(env("TAGS")),
		ExcludeTags:   splitList(env("EXCLUDE_TAGS")),
	}
	err := errors.Join(
		envParse("USERS", &o.Users, strconv.Atoi),
		envParse("SPAWN_RATE", &o.SpawnRate, parseFloat),
		envParse("DURATION", &o.Duration, time.ParseDuration),
		envParse("ITERATIONS", &o.Iterations, strconv.Atoi),
		envParse("WAIT_MIN", &o.WaitMin, time.ParseDuration),
		envParse("WAIT_MAX", &o.WaitMax, time.ParseDuration),
		envParse("REQUEST_TIMEOUT", &o.RequestTimeout, time.ParseDuration),
		envParse("INSECURE", &o.Insecure, strconv.ParseBool),
		envParse("POLL_INTERVAL", &o.Poll.Interval, time.ParseDuration),
		envParse("POLL_TIMEOUT", &o.Poll.Timeout, time.ParseDuration),
		envParse("POLL_MAX_FAILURES", &o.Poll.MaxFailures, strconv.Atoi),
	)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func envParse[T any](name string, dst *T, parse func(string) (T, error)) error {
	v := env(name)
	if v == "" {
		return nil
	}
	x, err := parse(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	*dst = x
	return nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

func env(name string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + name))
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks that the configuration can drive a run.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base_url %q must be an absolute http(s) URL", c.BaseURL)
	}
	if c.Users < 1 {
		return fmt.Errorf("users must be at least 1, got %d", c.Users)
	}
	if c.SpawnRate <= 0 {
		return fmt.Errorf("spawn_rate must be positive, got %v", c.SpawnRate)
	}
	if c.Duration < 0 || c.Iterations < 0 {
		return fmt.Errorf("duration and iterations must not be negative")
	}
	if c.WaitMin < 0 || c.WaitMax < c.WaitMin {
		return fmt.Errorf("wait range [%s, %s] is invalid", c.WaitMin, c.WaitMax)
	}
	if c.Poll.Interval < waiter.MinPollInterval {
		return fmt.Errorf("poll.interval must be at least %s, got %s", waiter.MinPollInterval, c.Poll.Interval)
	}
	if c.Poll.Timeout <= 0 {
		return fmt.Errorf("poll.timeout must be positive, got %s", c.Poll.Timeout)
	}
	if c.Poll.MaxFailures < 1 {
		return fmt.Errorf("poll.max_failures must be at least 1, got %d", c.Poll.MaxFailures)
	}
	return nil
}
