package subtitle

import "strings"

// Unicode directional controls.
const (
	rle = '\u202B' // RIGHT-TO-LEFT EMBEDDING
	pdf = '\u202C' // POP DIRECTIONAL FORMATTING
	lri = '\u2066' // LEFT-TO-RIGHT ISOLATE
	pdi = '\u2069' // POP DIRECTIONAL ISOLATE
)

// mirrored maps punctuation whose glyphs flip in right-to-left context.
var mirrored = map[rune]rune{
	'(': ')',
	')': '(',
	'[': ']',
	']': '[',
	'{': '}',
	'}': '{',
	'<': '>',
	'>': '<',
}

// ShapeRTL prepares cue text for right-to-left rendering: each line is
// wrapped in an RTL embedding, digit groups get a strong-LTR isolate so
// numbers keep their conventional order, and mirrored punctuation is
// reversed.
func ShapeRTL(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines[i] = string(rle) + shapeLine(line) + string(pdf)
	}
	return strings.Join(lines, "\n")
}

func shapeLine(line string) string {
	var out strings.Builder
	out.Grow(len(line) + 8)

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if isDigit(r) {
			j := i
			for j < len(runes) && isDigitGroupRune(runes, j) {
				j++
			}
			// Trailing separators belong to the surrounding text, not
			// the number.
			for j > i && !isDigit(runes[j-1]) {
				j--
			}
			out.WriteRune(lri)
			out.WriteString(string(runes[i:j]))
			out.WriteRune(pdi)
			i = j - 1
			continue
		}
		if m, ok := mirrored[r]; ok {
			out.WriteRune(m)
			continue
		}
		out.WriteRune(r)
	}
	return out.String()
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// isDigitGroupRune extends a digit run across common numeric separators
// (12.5, 1,000, 10:30, 3/4) as long as another digit follows.
func isDigitGroupRune(runes []rune, i int) bool {
	r := runes[i]
	if isDigit(r) {
		return true
	}
	switch r {
	case '.', ',', ':', '/':
		return i+1 < len(runes) && isDigit(runes[i+1])
	}
	return false
}
