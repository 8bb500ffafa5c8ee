package util

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// timecodeRe matches hh:mm:ss with optional fractional seconds.
var timecodeRe = regexp.MustCompile(`^(\d{1,2}):([0-5]\d):([0-5]\d)(?:\.(\d{1,3}))?$`)

// ParseTimecode parses an hh:mm:ss[.mmm] timecode into a duration.
func ParseTimecode(s string) (time.Duration, error) {
	m := timecodeRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid timecode %q, expected hh:mm:ss", s)
	}

	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])

	d := time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second

	if m[4] != "" {
		// Pad to milliseconds: "5" means 500ms.
		frac := m[4]
		for len(frac) < 3 {
			frac += "0"
		}
		ms, _ := strconv.Atoi(frac)
		d += time.Duration(ms) * time.Millisecond
	}

	return d, nil
}

// FormatTimecode renders a duration as hh:mm:ss.
func FormatTimecode(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// TimeRange is a validated [start, end) slice of the source media.
type TimeRange struct {
	Start time.Duration
	End   time.Duration
}

// Duration returns the length of the range.
func (r TimeRange) Duration() time.Duration {
	return r.End - r.Start
}

// ParseTimeRange validates a start/end timecode pair. Both must be present,
// well formed, and start must precede end.
func ParseTimeRange(start, end string) (*TimeRange, error) {
	if start == "" && end == "" {
		return nil, nil
	}
	if start == "" || end == "" {
		return nil, fmt.Errorf("time range requires both start and end")
	}

	s, err := ParseTimecode(start)
	if err != nil {
		return nil, fmt.Errorf("parsing start time: %w", err)
	}
	e, err := ParseTimecode(end)
	if err != nil {
		return nil, fmt.Errorf("parsing end time: %w", err)
	}
	if s >= e {
		return nil, fmt.Errorf("start time %s must be before end time %s", start, end)
	}

	return &TimeRange{Start: s, End: e}, nil
}

// ValidateWithin checks the range fits inside the probed media duration.
func (r *TimeRange) ValidateWithin(mediaDuration time.Duration) error {
	if r == nil {
		return nil
	}
	if r.End > mediaDuration {
		return fmt.Errorf("end time %s exceeds media duration %s",
			FormatTimecode(r.End), FormatTimecode(mediaDuration))
	}
	return nil
}
