// Package refresh drives the dashboard refresh cycle. Each region gets a
// controller owning a small state machine (Idle, Fetching, Rendered,
// Errored); every refresh carries a monotonic request ID and completions
// from superseded requests are discarded, so the rendered dashboard always
// reflects the most recently requested refresh.
package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/ghg-dashboard-service/internal/client"
	"github.com/kjstillabower/ghg-dashboard-service/internal/models"
	"github.com/kjstillabower/ghg-dashboard-service/internal/observability"
	"github.com/kjstillabower/ghg-dashboard-service/internal/service"
)

// State is the controller state.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateRendered
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateRendered:
		return "rendered"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// ErrSuperseded is returned by Refresh when its result was discarded because
// a newer refresh was issued while it was in flight.
var ErrSuperseded = errors.New("refresh superseded")

// Controller owns the rendered dashboard for one region. The dashboard is
// explicit, mutex-guarded state; there is no package-level singleton.
type Controller struct {
	region models.Region
	key    string
	svc    *service.DashboardService
	logger *zap.Logger
	now    func() time.Time

	mu         sync.Mutex
	state      State
	lastIssued uint64
	current    *models.Dashboard // last rendered; survives later errors
	lastErr    error
}

// NewController creates a controller for the region in state Idle.
func NewController(region models.Region, svc *service.DashboardService, logger *zap.Logger) *Controller {
	c := &Controller{
		region: region,
		key:    normalizeKey(region.Name),
		svc:    svc,
		logger: logger,
		now:    time.Now,
		state:  StateIdle,
	}
	c.setStateGauge(StateIdle)
	return c
}

// Refresh performs one refresh cycle: issue a request ID, fetch, and render
// the result unless a newer refresh was issued meanwhile. Safe for
// concurrent use; the newest caller wins.
func (c *Controller) Refresh(ctx context.Context) error {
	id := c.begin()

	snap, stale, err := c.svc.GetSnapshot(ctx, c.region.Name)
	if err != nil {
		return c.completeError(id, err)
	}
	return c.completeSuccess(id, snap, stale)
}

// begin issues the next request ID and moves the controller to Fetching.
func (c *Controller) begin() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastIssued++
	c.transitionLocked(StateFetching)
	return c.lastIssued
}

func (c *Controller) completeSuccess(id uint64, snap models.Snapshot, stale bool) error {
	dash, err := c.svc.Assemble(c.region.Name, snap, stale, c.now())
	if err != nil {
		return c.completeError(id, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if id != c.lastIssued {
		c.discardLocked(id)
		return ErrSuperseded
	}
	c.current = &dash
	c.lastErr = nil
	c.transitionLocked(StateRendered)
	observability.RefreshCyclesTotal.WithLabelValues(dash.Region, "success").Inc()
	if c.logger != nil {
		c.logger.Debug("dashboard rendered",
			zap.String("region", dash.Region),
			zap.Uint64("request_id", id),
			zap.Bool("stale", stale),
			zap.Int("samples", len(dash.Last7Days)))
	}
	return nil
}

func (c *Controller) completeError(id uint64, cause error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id != c.lastIssued {
		c.discardLocked(id)
		return ErrSuperseded
	}
	c.lastErr = cause
	c.transitionLocked(StateErrored)
	observability.RefreshCyclesTotal.WithLabelValues(c.regionKey(), "error").Inc()
	if c.logger != nil {
		c.logger.Warn("refresh failed",
			zap.String("region", c.regionKey()),
			zap.Uint64("request_id", id),
			zap.String("error_category", string(client.CategorizeError(cause))),
			zap.Error(cause))
	}
	return cause
}

func (c *Controller) discardLocked(id uint64) {
	observability.RefreshCyclesTotal.WithLabelValues(c.regionKey(), "discarded").Inc()
	observability.StaleResultsDiscardedTotal.WithLabelValues(c.regionKey()).Inc()
	if c.logger != nil {
		c.logger.Debug("discarding superseded refresh result",
			zap.String("region", c.regionKey()),
			zap.Uint64("request_id", id),
			zap.Uint64("latest_id", c.lastIssued))
	}
}

func (c *Controller) transitionLocked(to State) {
	c.state = to
	c.setStateGauge(to)
}

func (c *Controller) setStateGauge(s State) {
	observability.RefreshStateGauge.WithLabelValues(c.regionKey()).Set(float64(s))
}

func (c *Controller) regionKey() string {
	return c.key
}

// Snapshot returns the current state, the last rendered dashboard (nil if
// none yet), and the last error (nil unless Errored). The dashboard is a
// copy; callers cannot mutate controller state through it.
func (c *Controller) Snapshot() (State, *models.Dashboard, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var dash *models.Dashboard
	if c.current != nil {
		cp := *c.current
		dash = &cp
	}
	var err error
	if c.state == StateErrored {
		err = c.lastErr
	}
	return c.state, dash, err
}
