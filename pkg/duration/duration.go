// Package duration parses and formats durations with calendar-style units
// on top of Go's native ones: d (24h), w (7d), mo (30d) and y (365d).
// Full words and common abbreviations are accepted, so "30 days", "2 weeks"
// and "1mo12h" all parse.
package duration

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Calendar units. Months and years are fixed approximations.
const (
	Day   = 24 * time.Hour
	Week  = 7 * Day
	Month = 30 * Day
	Year  = 365 * Day
)

var units = map[string]time.Duration{
	"ns": time.Nanosecond, "nano": time.Nanosecond, "nanos": time.Nanosecond,
	"nanosecond": time.Nanosecond, "nanoseconds": time.Nanosecond,

	"us": time.Microsecond, "µs": time.Microsecond,
	"micro": time.Microsecond, "micros": time.Microsecond,
	"microsecond": time.Microsecond, "microseconds": time.Microsecond,

	"ms": time.Millisecond, "milli": time.Millisecond, "millis": time.Millisecond,
	"millisecond": time.Millisecond, "milliseconds": time.Millisecond,

	"s": time.Second, "sec": time.Second, "secs": time.Second,
	"second": time.Second, "seconds": time.Second,

	"m": time.Minute, "min": time.Minute, "mins": time.Minute,
	"minute": time.Minute, "minutes": time.Minute,

	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour,
	"hour": time.Hour, "hours": time.Hour,

	"d": Day, "day": Day, "days": Day,

	"w": Week, "wk": Week, "wks": Week,
	"week": Week, "weeks": Week,

	"mo": Month, "mos": Month,
	"month": Month, "months": Month,

	"y": Year, "yr": Year, "yrs": Year,
	"year": Year, "years": Year,
}

// token matches one value-unit pair at the start of the input.
var token = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)\s*([a-zµ]+)`)

// Parse converts a duration string into a time.Duration. The input is a
// sequence of value-unit pairs with optional whitespace; "0" alone is valid.
func Parse(s string) (time.Duration, error) {
	input := strings.ToLower(strings.TrimSpace(s))
	if input == "" {
		return 0, fmt.Errorf("duration: empty string")
	}

	negative := strings.HasPrefix(input, "-")
	input = strings.TrimSpace(strings.TrimPrefix(input, "-"))

	if input == "0" {
		return 0, nil
	}

	var total time.Duration
	rest := input
	for rest != "" {
		m := token.FindStringSubmatch(rest)
		if m == nil {
			return 0, fmt.Errorf("duration: invalid format %q", s)
		}

		value, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, fmt.Errorf("duration: invalid number %q", m[1])
		}
		unit, ok := units[m[2]]
		if !ok {
			return 0, fmt.Errorf("duration: unknown unit %q", m[2])
		}

		total += time.Duration(value * float64(unit))
		rest = strings.TrimSpace(rest[len(m[0]):])
	}

	if negative {
		total = -total
	}
	return total, nil
}

// MustParse is Parse for literals; it panics on error.
func MustParse(s string) time.Duration {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Format renders a duration with calendar units for the whole-day part and
// Go's native formatting for the remainder. Zero components are omitted.
func Format(d time.Duration) string {
	if d == 0 {
		return "0s"
	}

	neg := ""
	if d < 0 {
		neg, d = "-", -d
	}

	var b strings.Builder
	steps := []struct {
		unit string
		size time.Duration
	}{
		{"y", Year},
		{"mo", Month},
		{"w", Week},
		{"d", Day},
	}
	for _, step := range steps {
		if n := d / step.size; n > 0 {
			fmt.Fprintf(&b, "%d%s", n, step.unit)
			d -= n * step.size
		}
	}
	if d > 0 {
		b.WriteString(d.String())
	}

	return neg + b.String()
}
