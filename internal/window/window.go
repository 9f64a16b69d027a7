// Package window slices an ordered sample series into the views the
// dashboard renders: today, the forecast horizon, and the trailing week.
// All boundaries are evaluated in Jakarta local time, the zone samples are
// normalized to at ingestion.
package window

import (
	"errors"
	"fmt"
	"time"

	"github.com/kjstillabower/ghg-dashboard-service/internal/models"
)

// ErrInvalidSeries is returned for a nil or unsorted input series. A
// well-formed fetcher never produces one; treat as a programming error.
var ErrInvalidSeries = errors.New("invalid series")

// Location is the fixed zone for date-boundary decisions. Falls back to a
// fixed UTC+7 zone if the tzdata lookup fails.
var Location = mustLoadJakarta()

func mustLoadJakarta() *time.Location {
	loc, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		return time.FixedZone("WIB", 7*60*60)
	}
	return loc
}

// Windows holds the three sub-views derived from one series.
type Windows struct {
	Today     models.Series
	Forecast  models.Series
	Last7Days models.Series
}

// Select derives the three dashboard views from a full ordered series.
//   - Today: samples whose date component equals now's date.
//   - Forecast: samples in (now, now+forecastHours], ascending. If upstream
//     provides fewer forecast samples than requested, whatever exists is
//     returned; this never fails.
//   - Last7Days: samples in [now-7d, now], inclusive at both ends.
//
// An empty series yields three empty views. A nil or unsorted series yields
// ErrInvalidSeries. Pure and deterministic: identical inputs produce
// equal-by-value outputs.
func Select(s models.Series, now time.Time, forecastHours int) (Windows, error) {
	if err := checkSeries(s); err != nil {
		return Windows{}, err
	}
	if forecastHours < 0 {
		forecastHours = 0
	}

	now = now.In(Location)
	nowY, nowM, nowD := now.Date()
	forecastEnd := now.Add(time.Duration(forecastHours) * time.Hour)
	historyStart := now.AddDate(0, 0, -7)

	var w Windows
	for _, smp := range s {
		ts := smp.Time.In(Location)
		if y, m, d := ts.Date(); y == nowY && m == nowM && d == nowD {
			w.Today = append(w.Today, smp)
		}
		if ts.After(now) && !ts.After(forecastEnd) {
			w.Forecast = append(w.Forecast, smp)
		}
		if !ts.Before(historyStart) && !ts.After(now) {
			w.Last7Days = append(w.Last7Days, smp)
		}
	}
	return w, nil
}

// Range returns the samples whose date component falls within [from, to],
// inclusive at both ends. from and to are interpreted as dates in the
// Jakarta zone; time-of-day components are ignored.
func Range(s models.Series, from, to time.Time) (models.Series, error) {
	if err := checkSeries(s); err != nil {
		return nil, err
	}

	start := startOfDay(from)
	end := startOfDay(to).AddDate(0, 0, 1)

	var out models.Series
	for _, smp := range s {
		ts := smp.Time.In(Location)
		if !ts.Before(start) && ts.Before(end) {
			out = append(out, smp)
		}
	}
	return out, nil
}

func checkSeries(s models.Series) error {
	if s == nil {
		return fmt.Errorf("%w: nil", ErrInvalidSeries)
	}
	if !s.IsSorted() {
		return fmt.Errorf("%w: timestamps not strictly ascending", ErrInvalidSeries)
	}
	return nil
}

func startOfDay(t time.Time) time.Time {
	t = t.In(Location)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, Location)
}
