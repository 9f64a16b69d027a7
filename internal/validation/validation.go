package validation

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/kjstillabower/ghg-dashboard-service/internal/window"
)

// ErrRegionEmpty is returned when the region name is empty or whitespace-only after trim.
var ErrRegionEmpty = errors.New("region is required")

// ErrRegionTooShort is returned when the region name length is below the minimum.
var ErrRegionTooShort = errors.New("region name too short")

// ErrRegionTooLong is returned when the region name length exceeds the maximum.
var ErrRegionTooLong = errors.New("region name too long")

// ErrRegionInvalidChars is returned when the region name contains disallowed characters.
var ErrRegionInvalidChars = errors.New("region name contains invalid characters")

// ErrDateMalformed is returned when a from/to parameter is not a YYYY-MM-DD date.
var ErrDateMalformed = errors.New("date must be YYYY-MM-DD")

// ErrDateRangeInverted is returned when from is after to.
var ErrDateRangeInverted = errors.New("from must not be after to")

// ErrDateRangeTooWide is returned when the requested range exceeds the retained history.
var ErrDateRangeTooWide = errors.New("date range exceeds retained history")

const dateLayout = "2006-01-02"

// ValidateRegionName trims the input, enforces length bounds (minLen, maxLen
// in runes), and restricts to allowed characters: letters (Unicode), digits,
// space, comma, hyphen. Returns the trimmed string or an error suitable for
// 400 INVALID_REGION responses. Normalization (e.g. lowercase) is left to
// the service layer.
func ValidateRegionName(input string, minLen, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrRegionEmpty
	}
	if minLen > 0 && n < minLen {
		return "", ErrRegionTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrRegionTooLong
	}
	for _, c := range r {
		if !isAllowedRegionRune(c) {
			return "", ErrRegionInvalidChars
		}
	}
	return s, nil
}

// isAllowedRegionRune returns true for letters (Unicode), digits, space, comma, hyphen.
func isAllowedRegionRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-':
		return true
	}
	return false
}

// ValidateDateRange parses from/to as calendar dates in the Jakarta zone and
// checks them against the retained history window ending at now. Empty from
// defaults to maxHistory days back; empty to defaults to today. The returned
// times bound the range as dates: from at midnight, to at the last instant
// handled by the caller's inclusive date matching.
func ValidateDateRange(fromStr, toStr string, now time.Time, maxHistory time.Duration) (time.Time, time.Time, error) {
	today := now.In(window.Location)
	y, m, d := today.Add(-maxHistory).Date()
	earliest := time.Date(y, m, d, 0, 0, 0, 0, window.Location)

	from := earliest
	if s := strings.TrimSpace(fromStr); s != "" {
		parsed, err := time.ParseInLocation(dateLayout, s, window.Location)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: from=%q", ErrDateMalformed, s)
		}
		from = parsed
	}

	to := today
	if s := strings.TrimSpace(toStr); s != "" {
		parsed, err := time.ParseInLocation(dateLayout, s, window.Location)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: to=%q", ErrDateMalformed, s)
		}
		to = parsed
	}

	if from.After(to) {
		return time.Time{}, time.Time{}, ErrDateRangeInverted
	}
	if from.Before(earliest) {
		return time.Time{}, time.Time{}, ErrDateRangeTooWide
	}
	return from, to, nil
}
