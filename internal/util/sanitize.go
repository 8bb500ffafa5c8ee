package util

import (
	"path/filepath"
	"strings"
)

// maxFilenameLength bounds sanitized names so derived paths stay portable.
const maxFilenameLength = 180

// SanitizeFilename reduces an arbitrary user-supplied name to a portable
// filename. It keeps ASCII alphanumerics, underscore, hyphen, and dot; every
// other rune (path separators, control characters, spaces, non-ASCII) becomes
// an underscore. Leading dots are stripped so the result can never be a
// dotfile or a traversal component. The function is idempotent:
// SanitizeFilename(SanitizeFilename(s)) == SanitizeFilename(s).
func SanitizeFilename(name string) string {
	// Drop any directory components first; only the base name survives.
	// Both separator styles count so Windows upload names are handled too.
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_' || r == '-' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	out := b.String()
	// Collapse dot runs so ".." can never appear as a path component.
	for strings.Contains(out, "..") {
		out = strings.ReplaceAll(out, "..", ".")
	}
	out = strings.TrimLeft(out, ".")

	if len(out) > maxFilenameLength {
		ext := filepath.Ext(out)
		if len(ext) > 10 {
			ext = ""
		}
		out = out[:maxFilenameLength-len(ext)] + ext
	}

	if out == "" {
		out = "unnamed"
	}
	return out
}
