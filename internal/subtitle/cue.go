// Package subtitle holds the timed-text cue model, the SRT codec and the
// right-to-left text shaping applied at emission time.
package subtitle

import (
	"fmt"
	"strings"
	"time"
)

// Cue is one timed text unit. Start and End are offsets from the beginning
// of the media.
type Cue struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

// Duration returns the display time of the cue.
func (c Cue) Duration() time.Duration {
	return c.End - c.Start
}

// Validate rejects cues with inverted or negative timing.
func (c Cue) Validate() error {
	if c.Start < 0 {
		return fmt.Errorf("cue %d: negative start", c.Index)
	}
	if c.End <= c.Start {
		return fmt.Errorf("cue %d: end %v not after start %v", c.Index, c.End, c.Start)
	}
	if strings.TrimSpace(c.Text) == "" {
		return fmt.Errorf("cue %d: empty text", c.Index)
	}
	return nil
}

// Renumber rewrites cue indices to a contiguous 1-based sequence.
func Renumber(cues []Cue) {
	for i := range cues {
		cues[i].Index = i + 1
	}
}
