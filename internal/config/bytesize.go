package config

import (
	"encoding/json"

	"github.com/voxsub/voxsub/pkg/bytesize"
)

// ByteSize is a config-friendly byte count. It decodes "5MB", "1.5 GB" or a
// raw number of bytes from YAML, env vars and JSON.
type ByteSize int64

// ParseByteSize parses a human-readable byte size string.
func ParseByteSize(s string) (ByteSize, error) {
	size, err := bytesize.Parse(s)
	return ByteSize(size), err
}

// UnmarshalText lets Viper and YAML decode size strings.
func (b *ByteSize) UnmarshalText(text []byte) error {
	parsed, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// UnmarshalJSON accepts either a size string or a raw byte count.
func (b *ByteSize) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return b.UnmarshalText([]byte(s))
	}

	var raw int64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*b = ByteSize(raw)
	return nil
}

// MarshalJSON renders the human-readable form.
func (b ByteSize) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// MarshalText renders the human-readable form.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// Bytes returns the size in bytes.
func (b ByteSize) Bytes() int64 {
	return int64(b)
}

func (b ByteSize) String() string {
	return bytesize.Format(bytesize.Size(b))
}
