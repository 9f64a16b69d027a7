package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/ghg-dashboard-service/internal/classify"
	"github.com/kjstillabower/ghg-dashboard-service/internal/client"
	"github.com/kjstillabower/ghg-dashboard-service/internal/health"
	"github.com/kjstillabower/ghg-dashboard-service/internal/models"
	"github.com/kjstillabower/ghg-dashboard-service/internal/refresh"
	"github.com/kjstillabower/ghg-dashboard-service/internal/service"
	"github.com/kjstillabower/ghg-dashboard-service/internal/validation"
)

const (
	regionNameMinLen = 2
	regionNameMaxLen = 100

	historyRetention = 7 * 24 * time.Hour
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	svc         *service.DashboardService
	manager     *refresh.Manager
	healthCfg   *health.Config
	tracker     *health.Tracker
	logger      *zap.Logger
	rateLimiter *rate.Limiter

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(
	svc *service.DashboardService,
	manager *refresh.Manager,
	healthCfg *health.Config,
	tracker *health.Tracker,
	logger *zap.Logger,
	rateLimiter *rate.Limiter,
) *Handler {
	return &Handler{
		svc:         svc,
		manager:     manager,
		healthCfg:   healthCfg,
		tracker:     tracker,
		logger:      logger,
		rateLimiter: rateLimiter,
	}
}

// ListRegions handles GET /regions.
func (h *Handler) ListRegions(w http.ResponseWriter, r *http.Request) {
	h.tracker.RecordSuccess()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"regions": h.svc.Regions(),
	})
}

// GetDashboard handles GET /dashboard/{region}. Serves the last rendered
// dashboard for the region; when nothing has been rendered yet (service
// just started), it is built on demand.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	region, ok := h.regionParam(w, r)
	if !ok {
		return
	}

	if ctrl, found := h.manager.Controller(region); found {
		state, dash, lastErr := ctrl.Snapshot()
		if dash != nil {
			h.tracker.RecordSuccess()
			writeJSON(w, http.StatusOK, dashboardResponse{Dashboard: *dash, State: state.String()})
			return
		}
		if state == refresh.StateErrored && lastErr != nil {
			h.tracker.RecordError()
			writeServiceError(w, r, lastErr)
			return
		}
	}

	dash, err := h.svc.BuildDashboard(r.Context(), region, time.Now())
	if err != nil {
		h.tracker.RecordError()
		writeServiceError(w, r, err)
		return
	}
	h.tracker.RecordSuccess()
	writeJSON(w, http.StatusOK, dashboardResponse{Dashboard: dash, State: refresh.StateRendered.String()})
}

// dashboardResponse is a rendered dashboard plus the controller state.
type dashboardResponse struct {
	models.Dashboard
	State string `json:"state"`
}

// GetWindow handles GET /dashboard/{region}/today and /forecast. The window
// name comes from the matched route.
func (h *Handler) GetWindow(w http.ResponseWriter, r *http.Request) {
	region, ok := h.regionParam(w, r)
	if !ok {
		return
	}
	windowName := mux.Vars(r)["window"]

	dash, err := h.renderedOrBuilt(r, region)
	if err != nil {
		h.tracker.RecordError()
		writeServiceError(w, r, err)
		return
	}

	var samples models.Series
	switch windowName {
	case "today":
		samples = dash.Today
	case "forecast":
		samples = dash.Forecast
	default:
		h.tracker.RecordError()
		writeError(w, r, http.StatusNotFound, "UNKNOWN_WINDOW", "unknown window: "+windowName)
		return
	}

	kpi, _ := classify.Summarize(samples)
	h.tracker.RecordSuccess()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"region":  dash.Region,
		"window":  windowName,
		"kpi":     kpi,
		"samples": samples,
	})
}

// GetHistory handles GET /dashboard/{region}/history?from=&to= with ISO
// dates. Defaults cover the full retained week.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	region, ok := h.regionParam(w, r)
	if !ok {
		return
	}

	from, to, err := validation.ValidateDateRange(
		r.URL.Query().Get("from"),
		r.URL.Query().Get("to"),
		time.Now(),
		historyRetention,
	)
	if err != nil {
		h.tracker.RecordError()
		writeError(w, r, http.StatusBadRequest, "INVALID_RANGE", err.Error())
		return
	}

	samples, err := h.svc.History(r.Context(), region, from, to)
	if err != nil {
		h.tracker.RecordError()
		writeServiceError(w, r, err)
		return
	}
	kpi, _ := classify.Summarize(samples)
	h.tracker.RecordSuccess()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"region":  region,
		"from":    from.Format("2006-01-02"),
		"to":      to.Format("2006-01-02"),
		"kpi":     kpi,
		"samples": samples,
	})
}

// PostRefresh handles POST /dashboard/{region}/refresh. The refresh runs in
// the background; the caller polls GET /dashboard/{region} for the result.
func (h *Handler) PostRefresh(w http.ResponseWriter, r *http.Request) {
	region, ok := h.regionParam(w, r)
	if !ok {
		return
	}
	ctrl, found := h.manager.Controller(region)
	if !found {
		h.tracker.RecordError()
		writeError(w, r, http.StatusNotFound, "UNKNOWN_REGION", "unknown region: "+region)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := ctrl.Refresh(ctx); err != nil && !errors.Is(err, refresh.ErrSuperseded) {
			h.logger.Warn("manual refresh failed", zap.String("region", region), zap.Error(err))
		}
	}()

	h.tracker.RecordSuccess()
	state, _, _ := ctrl.Snapshot()
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"region": region,
		"state":  state.String(),
	})
}

// regionParam extracts and validates the region path variable. Writes the
// error response itself and returns ok=false on failure.
func (h *Handler) regionParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	region, err := validation.ValidateRegionName(mux.Vars(r)["region"], regionNameMinLen, regionNameMaxLen)
	if err != nil {
		h.tracker.RecordError()
		writeError(w, r, http.StatusBadRequest, "INVALID_REGION", err.Error())
		return "", false
	}
	return region, true
}

// renderedOrBuilt returns the controller's rendered dashboard when one
// exists, otherwise builds one on demand.
func (h *Handler) renderedOrBuilt(r *http.Request, region string) (models.Dashboard, error) {
	if ctrl, found := h.manager.Controller(region); found {
		if _, dash, _ := ctrl.Snapshot(); dash != nil {
			return *dash, nil
		}
	}
	return h.svc.BuildDashboard(r.Context(), region, time.Now())
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := health.Compute(r.Context(), h.tracker, h.healthCfg)

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.Status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.Status),
			zap.String("reason", result.Reason))
	}
	h.healthStatusPrev = result.Status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if result.Reason == "upstream_unreachable" || result.Reason == "error_rate_breach" {
		checks["airQualityApi"] = "unhealthy"
	} else {
		checks["airQualityApi"] = "healthy"
	}
	if h.healthCfg != nil && h.healthCfg.CachePing != nil {
		if h.healthCfg.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	resp := map[string]interface{}{
		"status":    result.Status,
		"service":   "ghg-dashboard-service",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.StatusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code,
// message, and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeServiceError maps service-layer errors to HTTP responses. Unknown
// regions get 404, everything else 503.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownRegion):
		writeError(w, r, http.StatusNotFound, "UNKNOWN_REGION", "region not tracked")
	case errors.Is(err, client.ErrRateLimited):
		writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_RATE_LIMITED", "air quality API rate limited")
	default:
		writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "unable to fetch air quality data")
	}
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		logger.Debug("upstream error", zap.Error(err))
	}
}
