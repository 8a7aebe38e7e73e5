package gcode

import (
	"strconv"
	"strings"
)

// Parameter letters accepted after a command token.
const (
	ParamX = 'X'
	ParamY = 'Y'
	ParamZ = 'Z'
	ParamE = 'E'
	ParamF = 'F'
	ParamS = 'S'
)

const (
	axisLetters   = "XYZ"
	motionLetters = "XYZE"
	allLetters    = "XYZEFS"
)

// feedDivisor converts a per-minute feed rate to per-second.
const feedDivisor = 60

func isParamLetter(c byte) bool {
	return strings.IndexByte(allLetters, c) >= 0
}

func formatFloat(f float64, prec int) string {
	s := strconv.FormatFloat(f, 'f', prec, 64)
	if strings.ContainsRune(s, '.') {
		s = strings.TrimRight(s, "0")
	}
	s = strings.TrimRight(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}

func word(letter byte, val float64) string {
	return string(letter) + formatFloat(val, 3)
}
