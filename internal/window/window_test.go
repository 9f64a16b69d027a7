package window

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/kjstillabower/ghg-dashboard-service/internal/models"
)

// hourlySeries builds a synthetic series with one sample per hour starting at
// start, in Jakarta local time.
func hourlySeries(start time.Time, hours int) models.Series {
	s := make(models.Series, 0, hours)
	for i := 0; i < hours; i++ {
		s = append(s, models.Sample{
			Time:   start.Add(time.Duration(i) * time.Hour),
			CO2PPM: 430 + float64(i%10),
			CH4PPB: 1900 + float64(i%10),
		})
	}
	return s
}

func TestSelect_Empty(t *testing.T) {
	w, err := Select(models.Series{}, time.Now(), 6)
	if err != nil {
		t.Fatalf("Select(empty) error: %v", err)
	}
	if len(w.Today) != 0 || len(w.Forecast) != 0 || len(w.Last7Days) != 0 {
		t.Errorf("Select(empty) = %+v, want three empty views", w)
	}
}

func TestSelect_NilSeries(t *testing.T) {
	_, err := Select(nil, time.Now(), 6)
	if !errors.Is(err, ErrInvalidSeries) {
		t.Fatalf("Select(nil) error = %v, want ErrInvalidSeries", err)
	}
}

func TestSelect_UnsortedSeries(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, Location)
	s := models.Series{
		{Time: base.Add(time.Hour)},
		{Time: base},
	}
	_, err := Select(s, base, 6)
	if !errors.Is(err, ErrInvalidSeries) {
		t.Fatalf("Select(unsorted) error = %v, want ErrInvalidSeries", err)
	}
}

func TestSelect_DuplicateTimestampsRejected(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, Location)
	s := models.Series{
		{Time: base},
		{Time: base},
	}
	if _, err := Select(s, base, 6); !errors.Is(err, ErrInvalidSeries) {
		t.Fatalf("Select(duplicates) error = %v, want ErrInvalidSeries", err)
	}
}

// TestSelect_NowOnSampleBoundary verifies a sample exactly at now lands in
// today and last7Days but not in the forecast, whose window is strictly
// greater than now.
func TestSelect_NowOnSampleBoundary(t *testing.T) {
	now := time.Date(2025, 3, 8, 12, 0, 0, 0, Location)
	s := models.Series{{Time: now, CO2PPM: 440, CH4PPB: 1900}}

	w, err := Select(s, now, 6)
	if err != nil {
		t.Fatalf("Select() error: %v", err)
	}
	if len(w.Today) != 1 {
		t.Errorf("today = %d samples, want 1", len(w.Today))
	}
	if len(w.Last7Days) != 1 {
		t.Errorf("last7Days = %d samples, want 1", len(w.Last7Days))
	}
	if len(w.Forecast) != 0 {
		t.Errorf("forecast = %d samples, want 0", len(w.Forecast))
	}
}

// TestSelect_TenDaySeries is the end-to-end windowing property: ten days of
// hourly samples, now at day 8 midnight, six-hour horizon.
func TestSelect_TenDaySeries(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, Location) // day 1 00:00
	s := hourlySeries(start, 10*24)
	now := start.AddDate(0, 0, 7) // day 8 00:00

	w, err := Select(s, now, 6)
	if err != nil {
		t.Fatalf("Select() error: %v", err)
	}

	if len(w.Forecast) != 6 {
		t.Fatalf("forecast = %d samples, want 6", len(w.Forecast))
	}
	for i, smp := range w.Forecast {
		want := now.Add(time.Duration(i+1) * time.Hour)
		if !smp.Time.Equal(want) {
			t.Errorf("forecast[%d].Time = %v, want %v", i, smp.Time, want)
		}
	}

	// Day 1 00:00 through day 8 00:00 inclusive: 7*24 + 1 samples.
	if len(w.Last7Days) != 7*24+1 {
		t.Errorf("last7Days = %d samples, want %d", len(w.Last7Days), 7*24+1)
	}
	if !w.Last7Days[0].Time.Equal(start) {
		t.Errorf("last7Days starts %v, want %v", w.Last7Days[0].Time, start)
	}
	if !w.Last7Days[len(w.Last7Days)-1].Time.Equal(now) {
		t.Errorf("last7Days ends %v, want %v", w.Last7Days[len(w.Last7Days)-1].Time, now)
	}

	if len(w.Today) != 24 {
		t.Errorf("today = %d samples, want 24", len(w.Today))
	}
	for _, smp := range w.Today {
		if y, m, d := smp.Time.In(Location).Date(); d != 8 || m != time.March || y != 2025 {
			t.Errorf("today contains sample dated %v", smp.Time)
		}
	}
}

// TestSelect_TruncatedForecast verifies that fewer upstream samples than the
// horizon requests is not an error.
func TestSelect_TruncatedForecast(t *testing.T) {
	start := time.Date(2025, 3, 8, 0, 0, 0, 0, Location)
	s := hourlySeries(start, 3) // 00:00, 01:00, 02:00
	w, err := Select(s, start, 12)
	if err != nil {
		t.Fatalf("Select() error: %v", err)
	}
	if len(w.Forecast) != 2 {
		t.Errorf("forecast = %d samples, want 2", len(w.Forecast))
	}
}

func TestSelect_Idempotent(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, Location)
	s := hourlySeries(start, 48)
	now := start.Add(30 * time.Hour)

	w1, err := Select(s, now, 6)
	if err != nil {
		t.Fatalf("Select() error: %v", err)
	}
	w2, err := Select(s, now, 6)
	if err != nil {
		t.Fatalf("Select() error: %v", err)
	}
	if !reflect.DeepEqual(w1, w2) {
		t.Error("Select() is not idempotent: repeated calls differ")
	}
}

// TestSelect_NormalizesZone verifies windowing decisions use Jakarta local
// dates even when sample timestamps carry another zone.
func TestSelect_NormalizesZone(t *testing.T) {
	// 2025-03-07 18:00 UTC is 2025-03-08 01:00 in Jakarta (UTC+7).
	utcSample := time.Date(2025, 3, 7, 18, 0, 0, 0, time.UTC)
	s := models.Series{{Time: utcSample, CO2PPM: 440, CH4PPB: 1900}}
	now := time.Date(2025, 3, 8, 12, 0, 0, 0, Location)

	w, err := Select(s, now, 6)
	if err != nil {
		t.Fatalf("Select() error: %v", err)
	}
	if len(w.Today) != 1 {
		t.Errorf("today = %d samples, want 1 (sample is day 8 in Jakarta)", len(w.Today))
	}
}

func TestRange(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, Location)
	s := hourlySeries(start, 5*24)

	from := time.Date(2025, 3, 2, 0, 0, 0, 0, Location)
	to := time.Date(2025, 3, 3, 0, 0, 0, 0, Location)
	got, err := Range(s, from, to)
	if err != nil {
		t.Fatalf("Range() error: %v", err)
	}
	// Two full days inclusive.
	if len(got) != 48 {
		t.Fatalf("Range() = %d samples, want 48", len(got))
	}
	if !got[0].Time.Equal(from) {
		t.Errorf("Range() starts %v, want %v", got[0].Time, from)
	}
	last := time.Date(2025, 3, 3, 23, 0, 0, 0, Location)
	if !got[len(got)-1].Time.Equal(last) {
		t.Errorf("Range() ends %v, want %v", got[len(got)-1].Time, last)
	}
}

func TestRange_IgnoresTimeOfDay(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, Location)
	s := hourlySeries(start, 2*24)

	from := time.Date(2025, 3, 1, 17, 45, 0, 0, Location)
	to := time.Date(2025, 3, 1, 18, 0, 0, 0, Location)
	got, err := Range(s, from, to)
	if err != nil {
		t.Fatalf("Range() error: %v", err)
	}
	if len(got) != 24 {
		t.Errorf("Range() = %d samples, want the full day (24)", len(got))
	}
}

func TestRange_NilSeries(t *testing.T) {
	_, err := Range(nil, time.Now(), time.Now())
	if !errors.Is(err, ErrInvalidSeries) {
		t.Fatalf("Range(nil) error = %v, want ErrInvalidSeries", err)
	}
}
