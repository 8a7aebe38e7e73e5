package gcode

import "strings"

const commentMarker = ';'

// Normalize trims raw and strips comments. It returns false if nothing is
// left for the parser.
func Normalize(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || s[0] == commentMarker {
		return "", false
	}
	if i := strings.IndexByte(s, commentMarker); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s, s != ""
}
