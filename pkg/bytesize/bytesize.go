// Package bytesize parses and formats human-readable byte sizes. Units are
// binary (1024-based) regardless of spelling, so "5MB" and "5MiB" are the
// same size. A bare number is taken as bytes.
package bytesize

import (
	"fmt"
	"strconv"
	"strings"
)

// Size is a byte count.
type Size int64

// Binary unit steps.
const (
	B  Size = 1
	KB Size = 1 << (10 * (iota))
	MB
	GB
	TB
	PB
)

var units = map[string]Size{
	"":      B,
	"b":     B,
	"byte":  B,
	"bytes": B,
	"k":     KB,
	"kb":    KB,
	"kib":   KB,
	"m":     MB,
	"mb":    MB,
	"mib":   MB,
	"g":     GB,
	"gb":    GB,
	"gib":   GB,
	"t":     TB,
	"tb":    TB,
	"tib":   TB,
	"p":     PB,
	"pb":    PB,
	"pib":   PB,
}

// Parse converts a string like "5MB", "1.5 GB" or "1024" into a Size.
func Parse(s string) (Size, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("bytesize: empty string")
	}

	// Split into a leading number and a trailing unit word.
	split := len(trimmed)
	for i, r := range trimmed {
		if (r < '0' || r > '9') && r != '.' {
			split = i
			break
		}
	}
	numStr := trimmed[:split]
	unitStr := strings.ToLower(strings.TrimSpace(trimmed[split:]))

	if numStr == "" {
		return 0, fmt.Errorf("bytesize: invalid format %q", s)
	}
	value, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return 0, fmt.Errorf("bytesize: invalid number %q", numStr)
	}

	mult, ok := units[unitStr]
	if !ok {
		return 0, fmt.Errorf("bytesize: unknown unit %q", unitStr)
	}

	return Size(value * float64(mult)), nil
}

// Format renders a Size using the largest unit with a value of at least 1.
// Fractions print with up to two decimals; whole values print bare.
func Format(s Size) string {
	neg := ""
	if s < 0 {
		neg, s = "-", -s
	}

	steps := []struct {
		unit string
		size Size
	}{
		{"PB", PB},
		{"TB", TB},
		{"GB", GB},
		{"MB", MB},
		{"KB", KB},
	}
	for _, step := range steps {
		if s < step.size {
			continue
		}
		value := float64(s) / float64(step.size)
		if value == float64(int64(value)) {
			return fmt.Sprintf("%s%d%s", neg, int64(value), step.unit)
		}
		text := strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", value), "0"), ".")
		return neg + text + step.unit
	}
	return fmt.Sprintf("%s%dB", neg, s)
}

// Bytes returns the size as int64.
func (s Size) Bytes() int64 { return int64(s) }

func (s Size) String() string { return Format(s) }
