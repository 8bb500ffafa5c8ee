package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/voxsub/voxsub/pkg/duration"
)

// Duration is a config-friendly time.Duration. Retention windows read more
// naturally as "30d" or "2w" than as "720h", so decoding goes through the
// extended parser; plain Go durations still work.
type Duration time.Duration

// ParseDuration parses a duration string with day and week units.
func ParseDuration(s string) (Duration, error) {
	d, err := duration.Parse(s)
	return Duration(d), err
}

// UnmarshalText lets Viper and YAML decode duration strings.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// UnmarshalJSON accepts either a duration string or raw nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return d.UnmarshalText([]byte(s))
	}

	var ns int64
	if err := json.Unmarshal(data, &ns); err != nil {
		return err
	}
	*d = Duration(ns)
	return nil
}

// MarshalJSON renders the human-readable form.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// MarshalText renders the human-readable form.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String renders whole weeks and days with calendar units and the remainder
// in Go's native format.
func (d Duration) String() string {
	rest := time.Duration(d)
	if rest == 0 {
		return "0s"
	}

	neg := ""
	if rest < 0 {
		neg, rest = "-", -rest
	}

	var out string
	if weeks := rest / (7 * 24 * time.Hour); weeks > 0 {
		out += fmt.Sprintf("%dw", weeks)
		rest -= weeks * 7 * 24 * time.Hour
	}
	if days := rest / (24 * time.Hour); days > 0 {
		out += fmt.Sprintf("%dd", days)
		rest -= days * 24 * time.Hour
	}
	if rest > 0 {
		out += rest.String()
	}
	return neg + out
}
