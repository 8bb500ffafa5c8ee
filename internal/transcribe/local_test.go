package transcribe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDetectedLanguage(t *testing.T) {
	tests := []struct {
		line string
		code string
		ok   bool
	}{
		{"whisper_full_with_state: auto-detected language: en (p = 0.976396)", "en", true},
		{"whisper_full_with_state: auto-detected language: he (p = 0.81)", "he", true},
		{"some unrelated log line", "", false},
		{"auto-detected language:", "", false},
	}

	for _, tt := range tests {
		code, ok := parseDetectedLanguage(tt.line)
		assert.Equal(t, tt.ok, ok, tt.line)
		assert.Equal(t, tt.code, code, tt.line)
	}
}

func TestParseWhisperProgress(t *testing.T) {
	tests := []struct {
		line string
		pct  float64
		ok   bool
	}{
		{"whisper_print_progress_callback: progress =  35%", 35, true},
		{"whisper_print_progress_callback: progress = 100%", 100, true},
		{"whisper_print_progress_callback: progress = 105%", 0, false},
		{"no progress here", 0, false},
	}

	for _, tt := range tests {
		pct, ok := parseWhisperProgress(tt.line)
		assert.Equal(t, tt.ok, ok, tt.line)
		if tt.ok {
			assert.InDelta(t, tt.pct, pct, 0.01)
		}
	}
}
