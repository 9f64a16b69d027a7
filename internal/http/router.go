package http

import (
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/ghg-dashboard-service/internal/health"
	"github.com/kjstillabower/ghg-dashboard-service/internal/observability"
)

// NewRouter wires all routes and middleware. The dashboard subtree gets the
// rate limiter and the request timeout; health and metrics stay outside both
// so they keep answering under load.
func NewRouter(h *Handler, logger *zap.Logger, limiter *rate.Limiter, tracker *health.Tracker, requestTimeout time.Duration) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())
	router.HandleFunc("/regions", h.ListRegions).Methods("GET")

	dashboard := router.PathPrefix("/dashboard").Subrouter()
	dashboard.Use(RateLimitMiddleware(limiter, tracker))
	dashboard.Use(TimeoutMiddleware(requestTimeout))
	dashboard.HandleFunc("/{region}", h.GetDashboard).Methods("GET")
	dashboard.HandleFunc("/{region}/history", h.GetHistory).Methods("GET")
	dashboard.HandleFunc("/{region}/export.csv", h.ExportCSV).Methods("GET")
	dashboard.HandleFunc("/{region}/refresh", h.PostRefresh).Methods("POST")
	dashboard.HandleFunc("/{region}/{window:today|forecast}", h.GetWindow).Methods("GET")

	return router
}
