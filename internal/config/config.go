package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/ghg-dashboard-service/internal/models"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	TestingMode bool

	ServerPort string

	AirQualityAPIURL     string
	AirQualityAPITimeout time.Duration
	PastDays             int
	ForecastDays         int

	RequestTimeout time.Duration

	ForecastHours   int
	RefreshInterval time.Duration

	CacheTTL      time.Duration
	StaleCacheTTL time.Duration
	CacheBackend  string // "in_memory" or "memcached"

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	CircuitBreakerFailures  int
	CircuitBreakerSuccesses int
	CircuitBreakerTimeout   time.Duration

	CoalesceEnabled bool
	CoalesceTimeout time.Duration

	ShutdownTimeout time.Duration

	OverloadWindow         time.Duration
	OverloadThresholdPct   int
	IdleThresholdReqPerMin int
	IdleWindow             time.Duration
	MinimumLifespan        time.Duration
	DegradedWindow         time.Duration
	DegradedErrorPct       int

	Regions []models.Region
}

type fileConfig struct {
	TestingMode *bool `yaml:"testing_mode"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	AirQualityAPI struct {
		URL          string `yaml:"url"`
		Timeout      string `yaml:"timeout"`
		PastDays     int    `yaml:"past_days"`
		ForecastDays int    `yaml:"forecast_days"`
	} `yaml:"air_quality_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Dashboard struct {
		ForecastHours   int    `yaml:"forecast_hours"`
		RefreshInterval string `yaml:"refresh_interval"`
	} `yaml:"dashboard"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		StaleTTL  string `yaml:"stale_ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Reliability struct {
		RetryMaxAttempts        int    `yaml:"retry_max_attempts"`
		RetryBaseDelay          string `yaml:"retry_base_delay"`
		RetryMaxDelay           string `yaml:"retry_max_delay"`
		RateLimitRPS            int    `yaml:"rate_limit_rps"`
		RateLimitBurst          int    `yaml:"rate_limit_burst"`
		CircuitBreakerFailures  int    `yaml:"circuit_breaker_failures"`
		CircuitBreakerSuccesses int    `yaml:"circuit_breaker_successes"`
		CircuitBreakerTimeout   string `yaml:"circuit_breaker_timeout"`
		CoalesceEnabled         *bool  `yaml:"coalesce_enabled"`
		CoalesceTimeout         string `yaml:"coalesce_timeout"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		OverloadWindow         string `yaml:"overload_window"`
		OverloadThresholdPct   int    `yaml:"overload_threshold_pct"`
		IdleThresholdReqPerMin int    `yaml:"idle_threshold_req_per_min"`
		IdleWindow             string `yaml:"idle_window"`
		MinimumLifespan        string `yaml:"minimum_lifespan"`
		DegradedWindow         string `yaml:"degraded_window"`
		DegradedErrorPct       int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`

	Regions []models.Region `yaml:"regions"`
}

// defaultRegions are the six tracked Jakarta measurement points.
var defaultRegions = []models.Region{
	{Name: "Jakarta Pusat", Latitude: -6.1862, Longitude: 106.8347},
	{Name: "Jakarta Barat", Latitude: -6.1683, Longitude: 106.7589},
	{Name: "Jakarta Timur", Latitude: -6.2250, Longitude: 106.9000},
	{Name: "Jakarta Selatan", Latitude: -6.2667, Longitude: 106.8000},
	{Name: "Jakarta Utara", Latitude: -6.1189, Longitude: 106.9156},
	{Name: "Pulau Seribu", Latitude: -5.7980, Longitude: 106.5070},
}

const (
	maxForecastHours = 48
	maxPastDays      = 7
)

// Load reads configuration from config/{ENV_NAME}.yaml (default dev), with a
// .env file preloaded into the environment if present. The Open-Meteo air
// quality API needs no key. Call from project root.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}
	if fc.TestingMode != nil {
		cfg.TestingMode = *fc.TestingMode
	}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.AirQualityAPIURL = strings.TrimSpace(os.Getenv("AIR_QUALITY_API_URL"))
	if cfg.AirQualityAPIURL == "" {
		cfg.AirQualityAPIURL = fc.AirQualityAPI.URL
	}
	if cfg.AirQualityAPIURL == "" {
		cfg.AirQualityAPIURL = "https://air-quality-api.open-meteo.com/v1/air-quality"
	}
	cfg.AirQualityAPITimeout = parseDurationOrZero(fc.AirQualityAPI.Timeout, 10*time.Second)
	cfg.PastDays = fc.AirQualityAPI.PastDays
	if cfg.PastDays <= 0 || cfg.PastDays > maxPastDays {
		cfg.PastDays = maxPastDays
	}
	cfg.ForecastDays = fc.AirQualityAPI.ForecastDays
	if cfg.ForecastDays <= 0 {
		cfg.ForecastDays = 2
	}

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 15*time.Second)

	cfg.ForecastHours = fc.Dashboard.ForecastHours
	if cfg.ForecastHours <= 0 {
		cfg.ForecastHours = 6
	}
	if cfg.ForecastHours > maxForecastHours {
		cfg.ForecastHours = maxForecastHours
	}
	cfg.RefreshInterval = parseDuration(fc.Dashboard.RefreshInterval, 10*time.Minute)

	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 5*time.Minute)
	cfg.StaleCacheTTL = parseDuration(fc.Cache.StaleTTL, 2*time.Hour)
	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}

	cfg.CircuitBreakerFailures = fc.Reliability.CircuitBreakerFailures
	if cfg.CircuitBreakerFailures <= 0 {
		cfg.CircuitBreakerFailures = 5
	}
	cfg.CircuitBreakerSuccesses = fc.Reliability.CircuitBreakerSuccesses
	if cfg.CircuitBreakerSuccesses <= 0 {
		cfg.CircuitBreakerSuccesses = 2
	}
	cfg.CircuitBreakerTimeout = parseDuration(fc.Reliability.CircuitBreakerTimeout, 30*time.Second)

	cfg.CoalesceEnabled = true
	if fc.Reliability.CoalesceEnabled != nil {
		cfg.CoalesceEnabled = *fc.Reliability.CoalesceEnabled
	}
	cfg.CoalesceTimeout = parseDuration(fc.Reliability.CoalesceTimeout, 15*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = fc.Lifecycle.OverloadThresholdPct
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}
	cfg.IdleThresholdReqPerMin = fc.Lifecycle.IdleThresholdReqPerMin
	if cfg.IdleThresholdReqPerMin <= 0 {
		cfg.IdleThresholdReqPerMin = 5
	}
	cfg.IdleWindow = parseDuration(fc.Lifecycle.IdleWindow, 5*time.Minute)
	cfg.MinimumLifespan = parseDuration(fc.Lifecycle.MinimumLifespan, 5*time.Minute)
	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 5
	}

	cfg.Regions = fc.Regions
	if len(cfg.Regions) == 0 {
		cfg.Regions = defaultRegions
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	if cfg.AirQualityAPITimeout <= 0 {
		return fmt.Errorf("air_quality_api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.AirQualityAPITimeout {
		cfg.RequestTimeout = cfg.AirQualityAPITimeout + time.Second
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
		// valid
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	seen := make(map[string]struct{}, len(cfg.Regions))
	for _, r := range cfg.Regions {
		name := strings.ToLower(strings.TrimSpace(r.Name))
		if name == "" {
			return fmt.Errorf("regions: name must not be empty")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("regions: duplicate name %q", r.Name)
		}
		seen[name] = struct{}{}
		if r.Latitude < -90 || r.Latitude > 90 || r.Longitude < -180 || r.Longitude > 180 {
			return fmt.Errorf("regions: %q has out-of-range coordinates", r.Name)
		}
	}
	return nil
}
