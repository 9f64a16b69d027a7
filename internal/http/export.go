package http

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/kjstillabower/ghg-dashboard-service/internal/classify"
	"github.com/kjstillabower/ghg-dashboard-service/internal/models"
	"github.com/kjstillabower/ghg-dashboard-service/internal/observability"
)

const csvTimeLayout = "2006-01-02 15:04"

// ExportCSV handles GET /dashboard/{region}/export.csv?window=. The window
// defaults to last7days. Each row carries the per-gas classification next
// to the raw value.
func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	region, ok := h.regionParam(w, r)
	if !ok {
		return
	}
	windowName := r.URL.Query().Get("window")
	if windowName == "" {
		windowName = "history"
	}

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
	case "history":
		samples = dash.Last7Days
	default:
		h.tracker.RecordError()
		writeError(w, r, http.StatusBadRequest, "UNKNOWN_WINDOW", "unknown window: "+windowName)
		return
	}

	filename := fmt.Sprintf("%s-%s-%s.csv", dash.Region, windowName, time.Now().Format("20060102"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"time", "co2_ppm", "co2_status", "ch4_ppb", "ch4_status"})
	for _, s := range samples {
		co2Status, _ := classify.Classify(models.GasCO2, s.CO2PPM)
		ch4Status, _ := classify.Classify(models.GasCH4, s.CH4PPB)
		_ = cw.Write([]string{
			s.Time.Format(csvTimeLayout),
			strconv.FormatFloat(s.CO2PPM, 'f', 2, 64),
			string(co2Status),
			strconv.FormatFloat(s.CH4PPB, 'f', 2, 64),
			string(ch4Status),
		})
	}
	cw.Flush()

	observability.ExportsTotal.WithLabelValues(windowName).Inc()
	h.tracker.RecordSuccess()
}
