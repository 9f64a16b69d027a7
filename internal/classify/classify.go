package classify

import (
	"errors"
	"fmt"

	"github.com/kjstillabower/ghg-dashboard-service/internal/models"
)

// ErrUnknownGas is returned for a gas outside the closed {co2, ch4} space.
// The identifier space is fixed; hitting this at runtime is a programming error.
var ErrUnknownGas = errors.New("unknown gas")

// threshold holds the (low, high) breakpoints for one gas.
// [0, low) = Normal, [low, high] = Caution, (high, inf) = High.
type threshold struct {
	low  float64
	high float64
}

// Breakpoints: CO2 in ppm, CH4 in ppb. Process-wide and immutable.
var thresholds = map[models.GasKind]threshold{
	models.GasCO2: {low: 450, high: 500},
	models.GasCH4: {low: 1950, high: 2000},
}

// Classify maps a gas value to its status band. Boundary values (exactly low
// or exactly high) belong to Caution, never to an adjacent band. Negative
// values classify as Normal by the same rule; they are not special-cased.
func Classify(gas models.GasKind, value float64) (models.Classification, error) {
	t, ok := thresholds[gas]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownGas, gas)
	}
	switch {
	case value < t.low:
		return models.StatusNormal, nil
	case value <= t.high:
		return models.StatusCaution, nil
	default:
		return models.StatusHigh, nil
	}
}

// Overall returns the worse of two classifications.
func Overall(a, b models.Classification) models.Classification {
	if b.Severity() > a.Severity() {
		return b
	}
	return a
}

// Reading classifies the latest sample of a series. Returns nil when the
// series is empty.
func Reading(s models.Series) (*models.Reading, error) {
	latest, ok := s.Latest()
	if !ok {
		return nil, nil
	}
	co2, err := Classify(models.GasCO2, latest.CO2PPM)
	if err != nil {
		return nil, err
	}
	ch4, err := Classify(models.GasCH4, latest.CH4PPB)
	if err != nil {
		return nil, err
	}
	return &models.Reading{Sample: latest, CO2Status: co2, CH4Status: ch4}, nil
}

// Summarize computes the KPI for a window: mean concentration per gas,
// classified, plus the worst-of overall badge. An empty window is not an
// error; it yields KPI{Valid: false}.
func Summarize(s models.Series) (models.KPI, error) {
	if len(s) == 0 {
		return models.KPI{}, nil
	}
	var co2Sum, ch4Sum float64
	for _, smp := range s {
		co2Sum += smp.CO2PPM
		ch4Sum += smp.CH4PPB
	}
	n := float64(len(s))
	kpi := models.KPI{
		Valid:  true,
		CO2Avg: co2Sum / n,
		CH4Avg: ch4Sum / n,
	}
	var err error
	if kpi.CO2Status, err = Classify(models.GasCO2, kpi.CO2Avg); err != nil {
		return models.KPI{}, err
	}
	if kpi.CH4Status, err = Classify(models.GasCH4, kpi.CH4Avg); err != nil {
		return models.KPI{}, err
	}
	kpi.Overall = Overall(kpi.CO2Status, kpi.CH4Status)
	return kpi, nil
}
