package validation

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kjstillabower/ghg-dashboard-service/internal/window"
)

func TestValidateRegionName_EmptyAndWhitespace(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"spaces", "   "},
		{"tab", "\t"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateRegionName(tc.input, 1, 100)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrRegionEmpty) {
				t.Errorf("error = %v, want ErrRegionEmpty", err)
			}
		})
	}
}

func TestValidateRegionName_LengthBounds(t *testing.T) {
	_, err := ValidateRegionName("x", 2, 100)
	if !errors.Is(err, ErrRegionTooShort) {
		t.Errorf("error = %v, want ErrRegionTooShort", err)
	}

	_, err = ValidateRegionName(strings.Repeat("a", 101), 1, 100)
	if !errors.Is(err, ErrRegionTooLong) {
		t.Errorf("error = %v, want ErrRegionTooLong", err)
	}

	got, err := ValidateRegionName(strings.Repeat("a", 100), 1, 100)
	if err != nil {
		t.Fatalf("max boundary: err = %v", err)
	}
	if len([]rune(got)) != 100 {
		t.Errorf("max boundary: rune count = %d, want 100", len([]rune(got)))
	}
}

func TestValidateRegionName_InvalidChars(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"slash", "jak/arta"},
		{"backslash", "jak\\arta"},
		{"question", "jak?arta"},
		{"hash", "jak#arta"},
		{"control", "jak\x00arta"},
		{"percent", "jak%arta"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateRegionName(tc.input, 1, 100)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrRegionInvalidChars) {
				t.Errorf("error = %v, want ErrRegionInvalidChars", err)
			}
		})
	}
}

func TestValidateRegionName_Valid(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantNorm string
	}{
		{"simple", "Jakarta Pusat", "Jakarta Pusat"},
		{"hyphen", "Pulau-Seribu", "Pulau-Seribu"},
		{"trimmed", "  Jakarta Utara  ", "Jakarta Utara"},
		{"digits", "Zone12", "Zone12"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateRegionName(tc.input, 1, 100)
			if err != nil {
				t.Fatalf("ValidateRegionName() err = %v", err)
			}
			if got != tc.wantNorm {
				t.Errorf("normalized = %q, want %q", got, tc.wantNorm)
			}
		})
	}
}

func TestValidateDateRange_Defaults(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, window.Location)
	from, to, err := ValidateDateRange("", "", now, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("ValidateDateRange() err = %v", err)
	}
	wantFrom := time.Date(2026, 3, 8, 0, 0, 0, 0, window.Location)
	if !from.Equal(wantFrom) {
		t.Errorf("from = %v, want %v", from, wantFrom)
	}
	if to.Year() != 2026 || to.Month() != 3 || to.Day() != 15 {
		t.Errorf("to = %v, want today", to)
	}
}

func TestValidateDateRange_Explicit(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, window.Location)
	from, to, err := ValidateDateRange("2026-03-10", "2026-03-12", now, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("ValidateDateRange() err = %v", err)
	}
	if from.Day() != 10 || to.Day() != 12 {
		t.Errorf("range = %v..%v, want days 10..12", from, to)
	}
	if from.Location() != window.Location {
		t.Errorf("from zone = %v, want Jakarta", from.Location())
	}
}

func TestValidateDateRange_Malformed(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, window.Location)
	tests := []struct {
		name     string
		from, to string
	}{
		{"bad from", "15-03-2026", ""},
		{"bad to", "", "2026/03/15"},
		{"garbage", "yesterday", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ValidateDateRange(tc.from, tc.to, now, 7*24*time.Hour)
			if !errors.Is(err, ErrDateMalformed) {
				t.Errorf("error = %v, want ErrDateMalformed", err)
			}
		})
	}
}

func TestValidateDateRange_Inverted(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, window.Location)
	_, _, err := ValidateDateRange("2026-03-12", "2026-03-10", now, 7*24*time.Hour)
	if !errors.Is(err, ErrDateRangeInverted) {
		t.Errorf("error = %v, want ErrDateRangeInverted", err)
	}
}

func TestValidateDateRange_TooWide(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, window.Location)
	_, _, err := ValidateDateRange("2026-03-01", "2026-03-10", now, 7*24*time.Hour)
	if !errors.Is(err, ErrDateRangeTooWide) {
		t.Errorf("error = %v, want ErrDateRangeTooWide", err)
	}
}
