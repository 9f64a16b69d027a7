package models

import "time"

// Sample is one hourly greenhouse-gas observation. Immutable once fetched.
type Sample struct {
	Time   time.Time `json:"time"`
	CO2PPM float64   `json:"co2Ppm"`
	CH4PPB float64   `json:"ch4Ppb"`
}

// Series is an ordered sequence of samples, ascending by time with no
// duplicate timestamps. Rebuilt wholesale on every refresh; never merged.
type Series []Sample

// Latest returns the last sample of the series and whether one exists.
func (s Series) Latest() (Sample, bool) {
	if len(s) == 0 {
		return Sample{}, false
	}
	return s[len(s)-1], true
}

// IsSorted reports whether timestamps are strictly ascending.
func (s Series) IsSorted() bool {
	for i := 1; i < len(s); i++ {
		if !s[i-1].Time.Before(s[i].Time) {
			return false
		}
	}
	return true
}

// Snapshot is a fetched series together with its fetch time. The unit of
// caching and of refresh-controller state.
type Snapshot struct {
	Series    Series    `json:"series"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// GasKind identifies one of the two tracked gases.
type GasKind string

const (
	GasCO2 GasKind = "co2"
	GasCH4 GasKind = "ch4"
)

// Classification is the qualitative status of a gas value against its
// threshold band. Derived only; never stored apart from its sample.
type Classification string

const (
	StatusNormal  Classification = "normal"
	StatusCaution Classification = "caution"
	StatusHigh    Classification = "high"
)

// Severity orders classifications for worst-of comparison.
func (c Classification) Severity() int {
	switch c {
	case StatusCaution:
		return 2
	case StatusHigh:
		return 3
	default:
		return 1
	}
}
