package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/ghg-dashboard-service/internal/cache"
	"github.com/kjstillabower/ghg-dashboard-service/internal/classify"
	"github.com/kjstillabower/ghg-dashboard-service/internal/client"
	"github.com/kjstillabower/ghg-dashboard-service/internal/models"
	"github.com/kjstillabower/ghg-dashboard-service/internal/observability"
	"github.com/kjstillabower/ghg-dashboard-service/internal/window"
)

// ErrUnknownRegion is returned for a region name outside the configured set.
var ErrUnknownRegion = errors.New("unknown region")

// DashboardService retrieves gas series per region using a cache-aside
// pattern with upstream fallback, and assembles dashboard payloads from
// them: window selection, classification, KPI.
type DashboardService struct {
	client        client.AirQualityClient
	cache         cache.Cache
	regions       map[string]models.Region
	regionOrder   []string
	ttl           time.Duration
	staleCacheTTL time.Duration // maximum age for stale fallback (0 = disabled)
	forecastHours int
	coalescer     *fetchCoalescer // nil when coalescing disabled
}

// NewDashboardService creates a DashboardService. ttl is the fresh-cache
// duration for a fetched series, staleCacheTTL the maximum age served after
// an upstream failure, forecastHours the dashboard's forecast horizon.
func NewDashboardService(c client.AirQualityClient, cch cache.Cache, regions []models.Region, ttl, staleCacheTTL time.Duration, forecastHours int, coalesceEnabled bool, coalesceTimeout time.Duration) *DashboardService {
	var coalescer *fetchCoalescer
	if coalesceEnabled && coalesceTimeout > 0 {
		coalescer = newFetchCoalescer(coalesceTimeout)
	}
	byName := make(map[string]models.Region, len(regions))
	order := make([]string, 0, len(regions))
	for _, r := range regions {
		key := normalizeRegion(r.Name)
		byName[key] = r
		order = append(order, key)
	}
	return &DashboardService{
		client:        c,
		cache:         cch,
		regions:       byName,
		regionOrder:   order,
		ttl:           ttl,
		staleCacheTTL: staleCacheTTL,
		forecastHours: forecastHours,
		coalescer:     coalescer,
	}
}

// Regions returns the configured regions in declaration order.
func (s *DashboardService) Regions() []models.Region {
	out := make([]models.Region, 0, len(s.regionOrder))
	for _, key := range s.regionOrder {
		out = append(out, s.regions[key])
	}
	return out
}

// Lookup resolves a (case-insensitive) region name.
func (s *DashboardService) Lookup(name string) (models.Region, bool) {
	r, ok := s.regions[normalizeRegion(name)]
	return r, ok
}

// loggerFromContext extracts a request-scoped zap.Logger if present.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return nil
}

// GetSnapshot retrieves the series snapshot for the region, cache first,
// upstream on miss. On upstream failure a snapshot within the stale TTL is
// returned with stale=true; otherwise the fetch error propagates.
func (s *DashboardService) GetSnapshot(ctx context.Context, regionName string) (models.Snapshot, bool, error) {
	key := normalizeRegion(regionName)
	region, ok := s.regions[key]
	if !ok {
		return models.Snapshot{}, false, fmt.Errorf("%w: %q", ErrUnknownRegion, regionName)
	}
	logger := loggerFromContext(ctx)

	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		if logger != nil {
			logger.Warn("cache get failed", zap.String("region", key), zap.Error(err))
		}
	} else if ok {
		observability.CacheHitsTotal.WithLabelValues("series").Inc()
		if logger != nil {
			logger.Debug("cache hit", zap.String("region", key))
		}
		return cached, false, nil
	}

	if logger != nil {
		logger.Debug("cache miss, fetching upstream", zap.String("region", key))
	}

	var snap models.Snapshot
	var upstreamErr error
	if s.coalescer != nil {
		coalesceStart := time.Now()
		snap, upstreamErr = s.coalescer.GetOrDo(ctx, key, func() (models.Snapshot, error) {
			return s.fetch(ctx, region)
		})
		// A wait longer than the scheduling noise floor means we piggybacked
		// on another caller's fetch (approximate).
		if upstreamErr == nil && time.Since(coalesceStart) > 10*time.Millisecond {
			observability.CoalescedFetchesTotal.WithLabelValues(key).Inc()
		}
	} else {
		snap, upstreamErr = s.fetch(ctx, region)
	}
	if upstreamErr != nil {
		if s.staleCacheTTL > 0 {
			stale, ok, staleErr := s.cache.GetStale(ctx, key, s.staleCacheTTL)
			if staleErr == nil && ok {
				observability.StaleCacheServesTotal.WithLabelValues(key).Inc()
				if logger != nil {
					logger.Info("serving stale series",
						zap.String("region", key),
						zap.Duration("age", time.Since(stale.FetchedAt)))
				}
				return stale, true, nil
			}
		}
		return models.Snapshot{}, false, fmt.Errorf("fetch series for %s: %w", key, upstreamErr)
	}

	if setErr := s.cache.Set(ctx, key, snap, s.ttl); setErr != nil {
		observability.CacheErrorsTotal.WithLabelValues("set").Inc()
		if logger != nil {
			logger.Warn("cache set failed", zap.String("region", key), zap.Error(setErr))
		}
	}
	return snap, false, nil
}

func (s *DashboardService) fetch(ctx context.Context, region models.Region) (models.Snapshot, error) {
	series, err := s.client.FetchSeries(ctx, region)
	if err != nil {
		return models.Snapshot{}, err
	}
	return models.Snapshot{Series: series, FetchedAt: time.Now()}, nil
}

// BuildDashboard assembles the full presenter payload for the region at the
// given reference time: the three windows, the latest classified reading,
// and the KPI over today's samples.
func (s *DashboardService) BuildDashboard(ctx context.Context, regionName string, now time.Time) (models.Dashboard, error) {
	snap, stale, err := s.GetSnapshot(ctx, regionName)
	if err != nil {
		return models.Dashboard{}, err
	}
	return s.assemble(normalizeRegion(regionName), snap, stale, now)
}

// Assemble builds a dashboard from an already-held snapshot, without
// touching cache or upstream. Used by the refresh controller, which owns
// its snapshot.
func (s *DashboardService) Assemble(regionName string, snap models.Snapshot, stale bool, now time.Time) (models.Dashboard, error) {
	return s.assemble(normalizeRegion(regionName), snap, stale, now)
}

func (s *DashboardService) assemble(key string, snap models.Snapshot, stale bool, now time.Time) (models.Dashboard, error) {
	series := snap.Series
	if series == nil {
		series = models.Series{}
	}
	w, err := window.Select(series, now, s.forecastHours)
	if err != nil {
		return models.Dashboard{}, fmt.Errorf("select windows: %w", err)
	}
	// Current reading is the newest sample at or before now; today's window
	// also covers upcoming hours of the same date, so it cannot serve here.
	reading, err := classify.Reading(w.Last7Days)
	if err != nil {
		return models.Dashboard{}, err
	}
	kpi, err := classify.Summarize(w.Today)
	if err != nil {
		return models.Dashboard{}, err
	}
	if reading != nil {
		observability.RecordReading(key, string(models.GasCO2), reading.Sample.CO2PPM, reading.CO2Status.Severity())
		observability.RecordReading(key, string(models.GasCH4), reading.Sample.CH4PPB, reading.CH4Status.Severity())
	}
	return models.Dashboard{
		Region:    key,
		FetchedAt: snap.FetchedAt,
		Stale:     stale,
		Reading:   reading,
		KPI:       kpi,
		Today:     w.Today,
		Forecast:  w.Forecast,
		Last7Days: w.Last7Days,
	}, nil
}

// History returns the samples within the inclusive [from, to] date range for
// the region, the dashboard's period view.
func (s *DashboardService) History(ctx context.Context, regionName string, from, to time.Time) (models.Series, error) {
	snap, _, err := s.GetSnapshot(ctx, regionName)
	if err != nil {
		return nil, err
	}
	series := snap.Series
	if series == nil {
		series = models.Series{}
	}
	return window.Range(series, from, to)
}

// normalizeRegion normalizes region names so cache keys and lookups are
// consistent regardless of input casing.
func normalizeRegion(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
