package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	const day = 24 * time.Hour

	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		// Standard Go formats pass through unchanged.
		{"45s", 45 * time.Second, false},
		{"30m", 30 * time.Minute, false},
		{"1h30m", 90 * time.Minute, false},
		{"720h", 720 * time.Hour, false},
		{"0s", 0, false},

		// Retention windows are naturally written in days and weeks.
		{"1d", day, false},
		{"30d", 30 * day, false},
		{"1d12h", 36 * time.Hour, false},
		{"1w", 7 * day, false},
		{"2w", 14 * day, false},
		{"1w2d", 9 * day, false},
		{"1w2d3h4m5s", 9*day + 3*time.Hour + 4*time.Minute + 5*time.Second, false},

		{"soon", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDuration(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Duration())
		})
	}
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("30d")))
	assert.Equal(t, 30*24*time.Hour, d.Duration())
}

func TestDuration_JSONRoundTrip(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"2w"`), &d))
	assert.Equal(t, 14*24*time.Hour, d.Duration())

	// Raw integers are accepted as nanoseconds.
	require.NoError(t, json.Unmarshal([]byte(`2592000000000000`), &d))
	assert.Equal(t, 30*24*time.Hour, d.Duration())

	out, err := json.Marshal(Duration(30 * 24 * time.Hour))
	require.NoError(t, err)
	assert.Contains(t, string(out), "d")
}

func TestDuration_String(t *testing.T) {
	const day = 24 * time.Hour

	tests := []struct {
		name     string
		duration Duration
		want     string
	}{
		{"zero", Duration(0), "0s"},
		{"hours only", Duration(12 * time.Hour), "12h0m0s"},
		{"days", Duration(3 * day), "3d"},
		{"weeks", Duration(14 * day), "2w"},
		{"weeks and days", Duration(9 * day), "1w2d"},
		{"mixed", Duration(day + 12*time.Hour), "1d12h0m0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.duration.String())
		})
	}
}
