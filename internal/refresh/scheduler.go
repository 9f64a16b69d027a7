package refresh

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/ghg-dashboard-service/internal/models"
	"github.com/kjstillabower/ghg-dashboard-service/internal/service"
)

// Manager holds one controller per configured region and runs the periodic
// refresh loop over all of them.
type Manager struct {
	svc         *service.DashboardService
	logger      *zap.Logger
	controllers map[string]*Controller
	order       []string
}

// NewManager builds a controller for every region the service knows about.
func NewManager(svc *service.DashboardService, logger *zap.Logger) *Manager {
	m := &Manager{
		svc:         svc,
		logger:      logger,
		controllers: make(map[string]*Controller),
	}
	for _, region := range svc.Regions() {
		c := NewController(region, svc, logger)
		m.controllers[c.regionKey()] = c
		m.order = append(m.order, c.regionKey())
	}
	return m
}

// Controller returns the controller for a region name, or false if the
// region is not configured. Matching is case-insensitive.
func (m *Manager) Controller(name string) (*Controller, bool) {
	c, ok := m.controllers[normalizeKey(name)]
	return c, ok
}

// Regions returns the configured regions in declaration order.
func (m *Manager) Regions() []models.Region {
	return m.svc.Regions()
}

// RefreshAll refreshes every region concurrently and waits for all of them.
// Superseded completions are not treated as failures. Returns the first
// real error encountered, if any.
func (m *Manager) RefreshAll(ctx context.Context) error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, key := range m.order {
		c := m.controllers[key]
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Refresh(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return firstErr
}

// RunPeriodic refreshes all regions immediately, then again every interval
// until the context is cancelled. Run it in its own goroutine.
func (m *Manager) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		m.logger.Warn("periodic refresh disabled", zap.Duration("interval", interval))
		return
	}
	m.logger.Info("starting periodic refresh",
		zap.Duration("interval", interval),
		zap.Int("regions", len(m.order)))

	m.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("periodic refresh stopped")
			return
		case <-ticker.C:
			m.runOnce(ctx)
		}
	}
}

func (m *Manager) runOnce(ctx context.Context) {
	start := time.Now()
	if err := m.RefreshAll(ctx); err != nil {
		m.logger.Warn("refresh pass completed with errors",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return
	}
	m.logger.Debug("refresh pass complete", zap.Duration("elapsed", time.Since(start)))
}

func normalizeKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
