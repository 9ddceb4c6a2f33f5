// Package timeutil provides parsing and formatting for run durations.
// Submitted times arrive as clock-style strings ("HH:MM:SS", sometimes
// "MM:SS" or with fractional seconds) and must map onto a single ordered
// numeric key so runs can be compared and ranked.
// No external dependencies - uses only standard library.
package timeutil

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrEmptyDuration is returned for an empty or whitespace-only input.
	ErrEmptyDuration = errors.New("timeutil: empty duration")

	// ErrInvalidDuration is returned when the input is not a clock-style duration.
	ErrInvalidDuration = errors.New("timeutil: invalid duration")

	// ErrNegativeDuration is returned when any component is negative.
	ErrNegativeDuration = errors.New("timeutil: negative duration")
)

// ParseClock parses a clock-style duration into total milliseconds.
//
// Accepted forms:
//
//	"HH:MM:SS"        canonical
//	"HH:MM:SS.fff"    fractional seconds
//	"MM:SS"           hours omitted
//
// The returned value is an ordered key: a faster run always yields a
// strictly smaller number (down to millisecond precision).
func ParseClock(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrEmptyDuration
	}

	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}

	// Hours are optional; the seconds field may carry a fraction.
	var hoursStr, minutesStr, secondsStr string
	if len(parts) == 2 {
		hoursStr, minutesStr, secondsStr = "0", parts[0], parts[1]
	} else {
		hoursStr, minutesStr, secondsStr = parts[0], parts[1], parts[2]
	}

	hours, err := strconv.Atoi(strings.TrimSpace(hoursStr))
	if err != nil {
		return 0, fmt.Errorf("%w: bad hours in %q", ErrInvalidDuration, s)
	}

	minutes, err := strconv.Atoi(strings.TrimSpace(minutesStr))
	if err != nil {
		return 0, fmt.Errorf("%w: bad minutes in %q", ErrInvalidDuration, s)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(secondsStr), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad seconds in %q", ErrInvalidDuration, s)
	}

	if hours < 0 || minutes < 0 || seconds < 0 {
		return 0, fmt.Errorf("%w: %q", ErrNegativeDuration, s)
	}
	if minutes > 59 || seconds >= 60 {
		return 0, fmt.Errorf("%w: component out of range in %q", ErrInvalidDuration, s)
	}

	millis := int64(hours)*3600_000 +
		int64(minutes)*60_000 +
		int64(math.Round(seconds*1000))

	return millis, nil
}

// FormatClock renders total milliseconds as a canonical "HH:MM:SS" string.
// Sub-second precision is dropped; storage keeps the millisecond key.
func FormatClock(millis int64) string {
	if millis < 0 {
		millis = 0
	}

	totalSeconds := millis / 1000
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

// Canonicalize parses a duration string and re-formats it canonically.
// This is the normalization step applied to submitted times before storage.
func Canonicalize(s string) (string, error) {
	millis, err := ParseClock(s)
	if err != nil {
		return "", err
	}
	return FormatClock(millis), nil
}

// IsValidClock reports whether a string parses as a clock-style duration.
func IsValidClock(s string) bool {
	_, err := ParseClock(s)
	return err == nil
}
