package gcode

import (
	"strconv"
	"strings"
)

// Family discriminates the two command namespaces of the dialect.
type Family byte

const (
	FamilyMotion  Family = 'G'
	FamilyMachine Family = 'M'
)

// Valid reports whether f is a known family marker.
func (f Family) Valid() bool { return f == FamilyMotion || f == FamilyMachine }

// Code identifies a command within its family, e.g. G1 or M104.
type Code struct {
	Family Family
	Number uint16
}

// G returns the motion-family code n.
func G(n uint16) Code { return Code{Family: FamilyMotion, Number: n} }

// M returns the machine-family code n.
func M(n uint16) Code { return Code{Family: FamilyMachine, Number: n} }

func (c Code) String() string {
	if c.Family == 0 {
		return "?"
	}
	return string(c.Family) + strconv.FormatUint(uint64(c.Number), 10)
}

// Kind is the validation family a Code belongs to.
func (c Code) Kind() Kind { return kinds[c] }

// Params holds the optional numeric parameters of a command. A parameter is
// only meaningful when its Has flag is set.
//
// F is stored per second.
type Params struct {
	X, Y, Z, E, F, S float64

	HasX, HasY, HasZ, HasE, HasF, HasS bool
}

// Has reports whether the parameter letter is present.
func (p Params) Has(letter byte) bool {
	switch letter {
	case ParamX:
		return p.HasX
	case ParamY:
		return p.HasY
	case ParamZ:
		return p.HasZ
	case ParamE:
		return p.HasE
	case ParamF:
		return p.HasF
	case ParamS:
		return p.HasS
	}
	return false
}

// Value returns the stored value for the parameter letter.
func (p Params) Value(letter byte) float64 {
	switch letter {
	case ParamX:
		return p.X
	case ParamY:
		return p.Y
	case ParamZ:
		return p.Z
	case ParamE:
		return p.E
	case ParamF:
		return p.F
	case ParamS:
		return p.S
	}
	return 0
}

func (p *Params) set(letter byte, val float64) bool {
	switch letter {
	case ParamX:
		p.X, p.HasX = val, true
	case ParamY:
		p.Y, p.HasY = val, true
	case ParamZ:
		p.Z, p.HasZ = val, true
	case ParamE:
		p.E, p.HasE = val, true
	case ParamF:
		p.F, p.HasF = val, true
	case ParamS:
		p.S, p.HasS = val, true
	default:
		return false
	}
	return true
}

// first returns the first letter of set that is present.
func (p Params) first(set string) (byte, bool) {
	for i := 0; i < len(set); i++ {
		if p.Has(set[i]) {
			return set[i], true
		}
	}
	return 0, false
}

// MotionCommand is a parsed and validated command ready for the motion
// consumer.
type MotionCommand struct {
	Code
	Params
}

// String renders the command as dialect text. F is converted back to
// per-minute units.
func (cmd MotionCommand) String() string {
	parts := []string{cmd.Code.String()}
	for i := 0; i < len(allLetters); i++ {
		l := allLetters[i]
		if !cmd.Has(l) {
			continue
		}
		if cmd.Kind() == KindHoming {
			parts = append(parts, string(l))
			continue
		}
		val := cmd.Value(l)
		if l == ParamF {
			val *= feedDivisor
		}
		parts = append(parts, word(l, val))
	}
	return strings.Join(parts, " ")
}
