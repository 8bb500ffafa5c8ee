package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// WriteOptions controls SRT emission.
type WriteOptions struct {
	// RTL wraps each cue's text in directional controls for right-to-left
	// scripts. Timing lines are never wrapped.
	RTL bool
}

// WriteSRT emits cues as SubRip text. Indices are renumbered on the way out.
func WriteSRT(w io.Writer, cues []Cue, opts WriteOptions) error {
	bw := bufio.NewWriter(w)
	for i, cue := range cues {
		text := cue.Text
		if opts.RTL {
			text = ShapeRTL(text)
		}
		if _, err := fmt.Fprintf(bw, "%d\n%s --> %s\n%s\n\n",
			i+1,
			formatTimestamp(cue.Start),
			formatTimestamp(cue.End),
			text,
		); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// formatTimestamp renders a duration as hh:mm:ss,mmm.
func formatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// ParseSRT reads SubRip text into cues. Blank-line separated blocks of
// index, timing line and one or more text lines. Malformed blocks abort the
// parse.
func ParseSRT(r io.Reader) ([]Cue, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var cues []Cue
	var block []string
	flush := func() error {
		if len(block) == 0 {
			return nil
		}
		cue, err := parseBlock(block)
		if err != nil {
			return err
		}
		cues = append(cues, cue)
		block = block[:0]
		return nil
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		block = append(block, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return cues, nil
}

func parseBlock(lines []string) (Cue, error) {
	if len(lines) < 2 {
		return Cue{}, fmt.Errorf("subtitle block too short: %q", strings.Join(lines, "|"))
	}
	index, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(lines[0], "\uFEFF")))
	if err != nil {
		return Cue{}, fmt.Errorf("invalid cue index %q: %w", lines[0], err)
	}

	start, end, err := parseTimingLine(lines[1])
	if err != nil {
		return Cue{}, fmt.Errorf("cue %d: %w", index, err)
	}

	text := ""
	if len(lines) > 2 {
		text = strings.Join(lines[2:], "\n")
	}
	return Cue{Index: index, Start: start, End: end, Text: text}, nil
}

func parseTimingLine(line string) (start, end time.Duration, err error) {
	left, right, found := strings.Cut(line, "-->")
	if !found {
		return 0, 0, fmt.Errorf("missing --> in timing line %q", line)
	}
	start, err = parseTimestamp(strings.TrimSpace(left))
	if err != nil {
		return 0, 0, err
	}
	end, err = parseTimestamp(strings.TrimSpace(right))
	if err != nil {
		return 0, 0, err
	}
	if end <= start {
		return 0, 0, fmt.Errorf("timing line %q: end before start", line)
	}
	return start, end, nil
}

// parseTimestamp parses hh:mm:ss,mmm (a period also accepted as the
// millisecond separator).
func parseTimestamp(s string) (time.Duration, error) {
	s = strings.ReplaceAll(s, ".", ",")
	clock, msPart, found := strings.Cut(s, ",")
	if !found {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}
	parts := strings.Split(clock, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	sec, err3 := strconv.Atoi(parts[2])
	ms, err4 := strconv.Atoi(msPart)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}
	if m > 59 || sec > 59 || ms > 999 || h < 0 || m < 0 || sec < 0 || ms < 0 {
		return 0, fmt.Errorf("timestamp %q out of range", s)
	}
	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(sec)*time.Second +
		time.Duration(ms)*time.Millisecond, nil
}
