package gcode

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// tokens is a cursor over the whitespace-delimited words of a line.
type tokens struct{ s string }

func (t *tokens) next() (string, bool) {
	t.s = strings.TrimLeftFunc(t.s, unicode.IsSpace)
	if t.s == "" {
		return "", false
	}
	i := strings.IndexFunc(t.s, unicode.IsSpace)
	if i < 0 {
		tok := t.s
		t.s = ""
		return tok, true
	}
	tok := t.s[:i]
	t.s = t.s[i:]
	return tok, true
}

// ParseParams reads the parameter tail of a command. A bare letter has the
// value 0. F is converted from per-minute to per-second.
func ParseParams(tail string) (Params, error) {
	var p Params
	t := tokens{s: tail}
	for {
		tok, ok := t.next()
		if !ok {
			return p, nil
		}
		letter := tok[0]
		if !isParamLetter(letter) {
			return Params{}, fail(ErrInvalidParameter, "unknown parameter %q", tok)
		}
		var val float64
		if len(tok) > 1 {
			var err error
			if !isDecimal(tok[1:]) {
				return Params{}, fail(ErrInvalidParameter, "bad value %q", tok)
			}
			val, err = strconv.ParseFloat(tok[1:], 64)
			if err != nil || math.IsNaN(val) || math.IsInf(val, 0) {
				return Params{}, fail(ErrInvalidParameter, "bad value %q", tok)
			}
		}
		if letter == ParamF {
			val /= feedDivisor
		}
		p.set(letter, val)
	}
}

// isDecimal reports whether s is a plain decimal number: optional sign,
// digits with at most one point, optional exponent. Hex floats, underscores
// and named values like Inf are not accepted.
func isDecimal(s string) bool {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	var digits, point bool
mantissa:
	for ; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			digits = true
		case c == '.' && !point:
			point = true
		default:
			break mantissa
		}
	}
	if !digits {
		return false
	}
	if i == len(s) {
		return true
	}
	if s[i] != 'e' && s[i] != 'E' {
		return false
	}
	i++
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	if i == len(s) {
		return false
	}
	for ; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
