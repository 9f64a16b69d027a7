package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalEnvYAML = `
server:
  port: "8080"
air_quality_api:
  url: "https://api.example.com/v1/air-quality"
  timeout: "10s"
request:
  timeout: "15s"
cache:
  ttl: "5m"
reliability:
  retry_max_attempts: 3
  retry_base_delay: "100ms"
  retry_max_delay: "2s"
  rate_limit_rps: 5
  rate_limit_burst: 10
shutdown:
  timeout: "10s"
`

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "dev.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

func TestLoad_ConfigFileNotFound(t *testing.T) {
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	dir := t.TempDir()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer func() { _ = os.Chdir(origWd) }()

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for missing config file, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("Load() error = %v, want message about config file not found", err)
	}
}

func TestLoad_PopulatesFromFile(t *testing.T) {
	origWd, _ := os.Getwd()
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer func() { _ = os.Chdir(origWd) }()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AirQualityAPIURL != "https://api.example.com/v1/air-quality" {
		t.Errorf("AirQualityAPIURL = %q", cfg.AirQualityAPIURL)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want 8080", cfg.ServerPort)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	cfg, err := parse([]byte("not: valid: yaml: [[["))
	if err == nil {
		t.Fatal("parse() expected error for invalid YAML, got nil")
	}
	if cfg != nil {
		t.Fatalf("parse() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "parse") {
		t.Errorf("parse() error = %v, want message about parse", err)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := parse([]byte(""))
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want 8080", cfg.ServerPort)
	}
	if cfg.AirQualityAPIURL != "https://air-quality-api.open-meteo.com/v1/air-quality" {
		t.Errorf("AirQualityAPIURL = %q, want Open-Meteo default", cfg.AirQualityAPIURL)
	}
	if cfg.PastDays != 7 {
		t.Errorf("PastDays = %d, want 7", cfg.PastDays)
	}
	if cfg.ForecastDays != 2 {
		t.Errorf("ForecastDays = %d, want 2", cfg.ForecastDays)
	}
	if cfg.ForecastHours != 6 {
		t.Errorf("ForecastHours = %d, want 6", cfg.ForecastHours)
	}
	if cfg.RefreshInterval != 10*time.Minute {
		t.Errorf("RefreshInterval = %v, want 10m", cfg.RefreshInterval)
	}
	if cfg.CacheBackend != "in_memory" {
		t.Errorf("CacheBackend = %q, want in_memory", cfg.CacheBackend)
	}
	if cfg.StaleCacheTTL != 2*time.Hour {
		t.Errorf("StaleCacheTTL = %v, want 2h", cfg.StaleCacheTTL)
	}
	if !cfg.CoalesceEnabled {
		t.Error("CoalesceEnabled = false, want true by default")
	}
	if len(cfg.Regions) != 6 {
		t.Fatalf("Regions = %d, want the 6 Jakarta defaults", len(cfg.Regions))
	}
	if cfg.Regions[0].Name != "Jakarta Pusat" {
		t.Errorf("Regions[0] = %q, want Jakarta Pusat", cfg.Regions[0].Name)
	}
	if cfg.Regions[5].Name != "Pulau Seribu" {
		t.Errorf("Regions[5] = %q, want Pulau Seribu", cfg.Regions[5].Name)
	}
}

func TestParse_ForecastHoursCapped(t *testing.T) {
	cfg, err := parse([]byte("dashboard:\n  forecast_hours: 96\n"))
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}
	if cfg.ForecastHours != 48 {
		t.Errorf("ForecastHours = %d, want cap 48", cfg.ForecastHours)
	}
}

func TestParse_PastDaysCapped(t *testing.T) {
	cfg, err := parse([]byte("air_quality_api:\n  past_days: 30\n"))
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}
	if cfg.PastDays != 7 {
		t.Errorf("PastDays = %d, want cap 7", cfg.PastDays)
	}
}

func TestParse_InvalidDurationFallsBackToDefault(t *testing.T) {
	cfg, err := parse([]byte("cache:\n  ttl: \"invalid\"\n"))
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("CacheTTL = %v, want default 5m", cfg.CacheTTL)
	}
}

func TestParse_ZeroAPITimeoutRejected(t *testing.T) {
	cfg, err := parse([]byte("air_quality_api:\n  timeout: \"0s\"\n"))
	if err == nil {
		t.Fatal("parse() expected error when API timeout is zero, got nil")
	}
	if cfg != nil {
		t.Fatalf("parse() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "timeout") {
		t.Errorf("parse() error = %v, want message about timeout", err)
	}
}

func TestParse_RequestTimeoutAutoAdjusted(t *testing.T) {
	cfg, err := parse([]byte("air_quality_api:\n  timeout: \"10s\"\nrequest:\n  timeout: \"5s\"\n"))
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}
	if cfg.RequestTimeout <= cfg.AirQualityAPITimeout {
		t.Errorf("RequestTimeout = %v, want greater than API timeout %v", cfg.RequestTimeout, cfg.AirQualityAPITimeout)
	}
}

func TestParse_InvalidCacheBackend(t *testing.T) {
	saved := os.Getenv("CACHE_BACKEND")
	os.Unsetenv("CACHE_BACKEND")
	defer func() {
		if saved != "" {
			os.Setenv("CACHE_BACKEND", saved)
		}
	}()

	_, err := parse([]byte("cache:\n  backend: \"redis\"\n"))
	if err == nil {
		t.Fatal("parse() expected error for unknown cache backend, got nil")
	}
	if !strings.Contains(err.Error(), "cache.backend") {
		t.Errorf("parse() error = %v, want message about cache.backend", err)
	}
}

func TestParse_CacheBackendEnvOverride(t *testing.T) {
	saved := os.Getenv("CACHE_BACKEND")
	os.Setenv("CACHE_BACKEND", "memcached")
	defer func() {
		os.Unsetenv("CACHE_BACKEND")
		if saved != "" {
			os.Setenv("CACHE_BACKEND", saved)
		}
	}()

	cfg, err := parse([]byte("cache:\n  backend: \"in_memory\"\n"))
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}
	if cfg.CacheBackend != "memcached" {
		t.Errorf("CacheBackend = %q, want env override memcached", cfg.CacheBackend)
	}
}

func TestParse_CustomRegions(t *testing.T) {
	yamlRegions := `
regions:
  - name: "Jakarta Pusat"
    latitude: -6.1862
    longitude: 106.8347
  - name: "Jakarta Utara"
    latitude: -6.1189
    longitude: 106.9156
`
	cfg, err := parse([]byte(yamlRegions))
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}
	if len(cfg.Regions) != 2 {
		t.Fatalf("Regions = %d, want 2", len(cfg.Regions))
	}
	if cfg.Regions[1].Latitude != -6.1189 {
		t.Errorf("Regions[1].Latitude = %v", cfg.Regions[1].Latitude)
	}
}

func TestParse_RegionValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			"empty name",
			"regions:\n  - name: \"\"\n    latitude: 0\n    longitude: 0\n",
			"empty",
		},
		{
			"duplicate name",
			"regions:\n  - name: \"Jakarta Pusat\"\n    latitude: -6.18\n    longitude: 106.83\n  - name: \"jakarta pusat\"\n    latitude: -6.18\n    longitude: 106.83\n",
			"duplicate",
		},
		{
			"bad latitude",
			"regions:\n  - name: \"Nowhere\"\n    latitude: 123.0\n    longitude: 0\n",
			"coordinates",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parse([]byte(tc.yaml))
			if err == nil {
				t.Fatal("parse() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("parse() error = %v, want message containing %q", err, tc.want)
			}
		})
	}
}

func TestParse_TestingModeTrue(t *testing.T) {
	cfg, err := parse([]byte("testing_mode: true\n"))
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}
	if !cfg.TestingMode {
		t.Error("TestingMode = false, want true")
	}
}

func TestParse_LifecycleConfig(t *testing.T) {
	lifecycleYAML := `
lifecycle:
  overload_window: "30s"
  overload_threshold_pct: 90
  idle_threshold_req_per_min: 3
  idle_window: "2m"
  minimum_lifespan: "1m"
  degraded_window: "60s"
  degraded_error_pct: 10
`
	cfg, err := parse([]byte(lifecycleYAML))
	if err != nil {
		t.Fatalf("parse() error = %v", err)
	}
	if cfg.OverloadWindow != 30*time.Second {
		t.Errorf("OverloadWindow = %v, want 30s", cfg.OverloadWindow)
	}
	if cfg.OverloadThresholdPct != 90 {
		t.Errorf("OverloadThresholdPct = %d, want 90", cfg.OverloadThresholdPct)
	}
	if cfg.IdleThresholdReqPerMin != 3 {
		t.Errorf("IdleThresholdReqPerMin = %d, want 3", cfg.IdleThresholdReqPerMin)
	}
	if cfg.MinimumLifespan != time.Minute {
		t.Errorf("MinimumLifespan = %v, want 1m", cfg.MinimumLifespan)
	}
	if cfg.DegradedErrorPct != 10 {
		t.Errorf("DegradedErrorPct = %d, want 10", cfg.DegradedErrorPct)
	}
}
