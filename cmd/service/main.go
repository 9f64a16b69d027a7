package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/ghg-dashboard-service/internal/cache"
	"github.com/kjstillabower/ghg-dashboard-service/internal/circuitbreaker"
	"github.com/kjstillabower/ghg-dashboard-service/internal/client"
	"github.com/kjstillabower/ghg-dashboard-service/internal/config"
	"github.com/kjstillabower/ghg-dashboard-service/internal/health"
	httphandler "github.com/kjstillabower/ghg-dashboard-service/internal/http"
	"github.com/kjstillabower/ghg-dashboard-service/internal/lifecycle"
	"github.com/kjstillabower/ghg-dashboard-service/internal/observability"
	"github.com/kjstillabower/ghg-dashboard-service/internal/refresh"
	"github.com/kjstillabower/ghg-dashboard-service/internal/service"
)

const inFlightCheckInterval = 100 * time.Millisecond

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	airClient, err := client.NewOpenMeteoClientWithRetry(
		cfg.AirQualityAPIURL,
		cfg.AirQualityAPITimeout,
		cfg.PastDays,
		cfg.ForecastDays,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	if err != nil {
		logger.Fatal("air quality client", zap.Error(err))
	}

	cb := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.CircuitBreakerFailures,
		SuccessThreshold: cfg.CircuitBreakerSuccesses,
		Timeout:          cfg.CircuitBreakerTimeout,
		Component:        "air_quality_api",
		OnStateChange: func(from, to circuitbreaker.State) {
			observability.RecordCircuitBreakerTransition("air_quality_api", from.String(), to.String())
			observability.CircuitBreakerStateGauge.WithLabelValues("air_quality_api").Set(float64(to))
		},
	})
	airClient.SetCircuitBreaker(cb)
	observability.CircuitBreakerStateGauge.WithLabelValues("air_quality_api").Set(0)
	logger.Info("circuit breaker enabled",
		zap.Int("failure_threshold", cfg.CircuitBreakerFailures),
		zap.Duration("timeout", cfg.CircuitBreakerTimeout))

	var cacheSvc cache.Cache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns, cfg.StaleCacheTTL)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		cacheSvc = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		cacheSvc = cache.NewInMemoryCache()
		logger.Info("cache backend: in_memory")
	}

	dashboardService := service.NewDashboardService(
		airClient,
		cacheSvc,
		cfg.Regions,
		cfg.CacheTTL,
		cfg.StaleCacheTTL,
		cfg.ForecastHours,
		cfg.CoalesceEnabled,
		cfg.CoalesceTimeout,
	)

	tracker := health.NewTracker()
	healthCfg := &health.Config{
		OverloadWindow:         cfg.OverloadWindow,
		OverloadThresholdPct:   cfg.OverloadThresholdPct,
		RateLimitRPS:           cfg.RateLimitRPS,
		DegradedWindow:         cfg.DegradedWindow,
		DegradedErrorPct:       cfg.DegradedErrorPct,
		IdleWindow:             cfg.IdleWindow,
		IdleThresholdReqPerMin: cfg.IdleThresholdReqPerMin,
		MinimumLifespan:        cfg.MinimumLifespan,
		StartTime:              time.Now(),
		UpstreamPing:           airClient.Ping,
	}
	if memcacheCloser != nil {
		healthCfg.CachePing = memcacheCloser.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	manager := refresh.NewManager(dashboardService, logger)
	refreshCtx, stopRefresh := context.WithCancel(context.Background())
	go manager.RunPeriodic(refreshCtx, cfg.RefreshInterval)

	handler := httphandler.NewHandler(dashboardService, manager, healthCfg, tracker, logger, limiter)
	observability.RegisterTrafficGauges(tracker, cfg.OverloadWindow)

	router := httphandler.NewRouter(handler, logger, limiter, tracker, cfg.RequestTimeout)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", ":"+cfg.ServerPort),
			zap.Int("regions", len(cfg.Regions)),
			zap.Duration("refresh_interval", cfg.RefreshInterval))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	stopRefresh()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, inFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed",
			zap.Error(err),
			zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
