package subtitle

import (
	"bufio"
	"fmt"
	"os"
)

// StreamWriter emits SRT cues incrementally. The translate stage hands over
// batches as they complete so the subtitle file grows while later batches
// are still in flight. Reset rewinds the file for a fallback replay.
type StreamWriter struct {
	path string
	opts WriteOptions
	file *os.File
	bw   *bufio.Writer
	next int
}

// NewStreamWriter opens (and truncates) the output file.
func NewStreamWriter(path string, opts WriteOptions) (*StreamWriter, error) {
	w := &StreamWriter{path: path, opts: opts}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *StreamWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640)
	if err != nil {
		return fmt.Errorf("opening subtitle output: %w", err)
	}
	w.file = f
	w.bw = bufio.NewWriter(f)
	w.next = 1
	return nil
}

// Emit writes cues in the order given, renumbering from the running index.
func (w *StreamWriter) Emit(cues []Cue) error {
	if w.bw == nil {
		return fmt.Errorf("subtitle writer is closed")
	}
	for _, cue := range cues {
		text := cue.Text
		if w.opts.RTL {
			text = ShapeRTL(text)
		}
		if _, err := fmt.Fprintf(w.bw, "%d\n%s --> %s\n%s\n\n",
			w.next,
			formatTimestamp(cue.Start),
			formatTimestamp(cue.End),
			text,
		); err != nil {
			return err
		}
		w.next++
	}
	return w.bw.Flush()
}

// Reset discards everything written so far and starts over.
func (w *StreamWriter) Reset() error {
	if w.file != nil {
		w.file.Close()
		w.file = nil
		w.bw = nil
	}
	return w.open()
}

// Count returns how many cues have been written.
func (w *StreamWriter) Count() int {
	return w.next - 1
}

// Close flushes and closes the output file.
func (w *StreamWriter) Close() error {
	if w.file == nil {
		return nil
	}
	if err := w.bw.Flush(); err != nil {
		w.file.Close()
		return err
	}
	err := w.file.Close()
	w.file = nil
	w.bw = nil
	return err
}
