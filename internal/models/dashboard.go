package models

import "time"

// Region is a fixed measurement point within Jakarta.
type Region struct {
	Name      string  `json:"name" yaml:"name"`
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// Reading is the latest sample with its per-gas classification.
type Reading struct {
	Sample    Sample         `json:"sample"`
	CO2Status Classification `json:"co2Status"`
	CH4Status Classification `json:"ch4Status"`
}

// KPI summarizes a window: mean concentration per gas, classified, plus the
// worst-of overall badge. Valid is false when the window was empty.
type KPI struct {
	Valid     bool           `json:"valid"`
	CO2Avg    float64        `json:"co2Avg,omitempty"`
	CH4Avg    float64        `json:"ch4Avg,omitempty"`
	CO2Status Classification `json:"co2Status,omitempty"`
	CH4Status Classification `json:"ch4Status,omitempty"`
	Overall   Classification `json:"overall,omitempty"`
}

// Dashboard is the full presenter payload for one region.
type Dashboard struct {
	Region    string    `json:"region"`
	FetchedAt time.Time `json:"fetchedAt"`
	Stale     bool      `json:"stale,omitempty"` // served from stale cache after upstream failure
	Reading   *Reading  `json:"reading,omitempty"`
	KPI       KPI       `json:"kpi"`
	Today     Series    `json:"today"`
	Forecast  Series    `json:"forecast"`
	Last7Days Series    `json:"last7Days"`
}
