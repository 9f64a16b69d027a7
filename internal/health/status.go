package health

import (
	"context"
	"time"

	"github.com/kjstillabower/ghg-dashboard-service/internal/lifecycle"
)

// Config holds the thresholds for status computation.
type Config struct {
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int

	DegradedWindow   time.Duration
	DegradedErrorPct int

	IdleWindow             time.Duration
	IdleThresholdReqPerMin int
	MinimumLifespan        time.Duration

	StartTime time.Time

	// UpstreamPing, when set, is called to check upstream reachability.
	UpstreamPing func(ctx context.Context) error
	// CachePing, when set, is called to check cache reachability. Used when
	// the backend is memcached.
	CachePing func() error
}

// Result holds the computed status and metadata for logging.
type Result struct {
	Status     string
	StatusCode int // HTTP status code to return
	Reason     string
}

// Compute determines the current health status in priority order:
// shutting-down > upstream unreachable > overloaded > idle > degraded > healthy.
// Each condition is evaluated only if the previous ones are not met.
func Compute(ctx context.Context, tracker *Tracker, cfg *Config) Result {
	if lifecycle.IsShuttingDown() {
		return Result{"shutting-down", 503, "signal"}
	}
	if cfg == nil {
		return Result{"healthy", 200, ""}
	}
	if cfg.UpstreamPing != nil {
		if err := cfg.UpstreamPing(ctx); err != nil {
			return Result{"degraded", 503, "upstream_unreachable"}
		}
	}
	if cfg.RateLimitRPS > 0 && cfg.OverloadWindow > 0 {
		threshold := float64(cfg.RateLimitRPS) * cfg.OverloadWindow.Seconds() * float64(cfg.OverloadThresholdPct) / 100
		if float64(tracker.RequestCount(cfg.OverloadWindow)) > threshold {
			return Result{"overloaded", 503, "overload_threshold"}
		}
	}
	if cfg.IdleWindow > 0 && cfg.MinimumLifespan > 0 && time.Since(cfg.StartTime) >= cfg.MinimumLifespan {
		if tracker.RequestCount(cfg.IdleWindow) < cfg.IdleThresholdReqPerMin {
			return Result{"idle", 200, "low_traffic"}
		}
	}
	if cfg.DegradedWindow > 0 && cfg.DegradedErrorPct > 0 {
		errors, total := tracker.ErrorRate(cfg.DegradedWindow)
		if total > 0 {
			pct := float64(errors) * 100 / float64(total)
			if pct >= float64(cfg.DegradedErrorPct) {
				return Result{"degraded", 503, "error_rate_breach"}
			}
		}
	}
	return Result{"healthy", 200, ""}
}
