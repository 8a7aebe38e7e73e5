package gcode

import (
	"errors"
	"strconv"
	"strings"
	"unicode"
)

// ModalState holds the mode flags that persist between commands.
type ModalState struct {
	AbsolutePositioning bool
	AbsoluteExtrusion   bool
}

// DefaultModalState is the state of a fresh parser: absolute positioning and
// absolute extrusion.
func DefaultModalState() ModalState {
	return ModalState{AbsolutePositioning: true, AbsoluteExtrusion: true}
}

// Parser turns normalized lines into validated commands. It is not safe for
// concurrent use; each pipeline owns exactly one.
type Parser struct {
	modal ModalState
}

// NewParser returns a parser with default modal state.
func NewParser() *Parser {
	return &Parser{modal: DefaultModalState()}
}

// Reset restores the default modal state.
func (p *Parser) Reset() { p.modal = DefaultModalState() }

// Modal returns a copy of the current modal state.
func (p *Parser) Modal() ModalState { return p.modal }

func splitCommand(line string) (head, tail string) {
	line = strings.TrimSpace(line)
	i := strings.IndexFunc(line, unicode.IsSpace)
	if i < 0 {
		return line, ""
	}
	return line[:i], line[i:]
}

// Identify returns the code a normalized line names, without validating its
// parameters.
func Identify(line string) (Code, bool) {
	head, _ := splitCommand(line)
	if head == "" || !Family(head[0]).Valid() {
		return Code{}, false
	}
	n, err := strconv.ParseUint(head[1:], 10, 16)
	if err != nil {
		return Code{}, false
	}
	return Code{Family: Family(head[0]), Number: uint16(n)}, true
}

// IsEmergency reports whether line is an emergency stop.
func IsEmergency(line string) bool {
	c, ok := Identify(line)
	return ok && c.Kind() == KindEmergency
}

// Parse validates a normalized line. Errors are always *ParseError.
func (p *Parser) Parse(line string) (MotionCommand, error) {
	var cmd MotionCommand
	var err error

	head, tail := splitCommand(line)
	if head == "" || !Family(head[0]).Valid() {
		err = fail(ErrUnknownFamily, "unknown command type %q", head)
		return cmd, annotate(err, line, Code{})
	}
	n, convErr := strconv.ParseUint(head[1:], 10, 16)
	if convErr != nil {
		err = fail(ErrUnsupported, "invalid command code %q", head)
		return cmd, annotate(err, line, Code{})
	}
	cmd.Code = Code{Family: Family(head[0]), Number: uint16(n)}

	switch cmd.Kind() {
	case KindLinear:
		cmd.Params, err = parseLinear(tail)
	case KindArc:
		cmd.Params, err = parseArc(tail)
	case KindSetPosition:
		cmd.Params, err = parseSetPosition(tail)
	case KindHoming:
		cmd.Params, err = parseHoming(tail)
	case KindLeveling, KindMotors, KindStorage:
		cmd.Params, err = ParseParams(tail)
	case KindPositioning:
		cmd.Params, err = p.parsePositioning(cmd.Code, tail)
	case KindTemperature:
		cmd.Params, err = parseTemperature(tail)
	case KindFan:
		cmd.Params, err = parseFan(cmd.Code, tail)
	case KindExtrusion:
		cmd.Params, err = p.parseExtrusion(cmd.Code, tail)
	case KindReporting, KindEmergency:
		cmd.Params, err = parseBare(tail)
	default:
		err = fail(ErrUnsupported, "no handler for %s", cmd.Code)
	}
	if err != nil {
		return MotionCommand{}, annotate(err, line, cmd.Code)
	}
	return cmd, nil
}

func annotate(err error, line string, code Code) error {
	var pe *ParseError
	if errors.As(err, &pe) {
		pe.Line = line
		pe.Code = code
		return pe
	}
	return &ParseError{Line: line, Code: code, Kind: ErrInvalidParameter, Reason: err.Error()}
}

func requireAny(p Params, set string) error {
	if _, ok := p.first(set); ok {
		return nil
	}
	return fail(ErrMissingRequired, "requires one of %s", strings.Join(strings.Split(set, ""), ", "))
}

func need(p Params, letter byte) error {
	if p.Has(letter) {
		return nil
	}
	return fail(ErrMissingRequired, "requires %c", letter)
}

func forbid(p Params, set string) error {
	if l, ok := p.first(set); ok {
		return fail(ErrForbiddenPresent, "%c not allowed", l)
	}
	return nil
}

func parseLinear(tail string) (Params, error) {
	p, err := ParseParams(tail)
	if err != nil {
		return p, err
	}
	return p, requireAny(p, motionLetters)
}

func parseArc(tail string) (Params, error) {
	p, err := ParseParams(tail)
	if err != nil {
		return p, err
	}
	if err = need(p, ParamF); err != nil {
		return p, err
	}
	return p, requireAny(p, axisLetters)
}

func parseSetPosition(tail string) (Params, error) {
	p, err := ParseParams(tail)
	if err != nil {
		return p, err
	}
	return p, requireAny(p, motionLetters)
}

// parseHoming accepts bare axis letters (or an explicit zero). With no axes
// every axis is homed. Values are never carried.
func parseHoming(tail string) (Params, error) {
	p, err := ParseParams(tail)
	if err != nil {
		return p, err
	}
	if err = forbid(p, "EFS"); err != nil {
		return p, err
	}
	for i := 0; i < len(axisLetters); i++ {
		l := axisLetters[i]
		if p.Has(l) && p.Value(l) != 0 {
			return p, fail(ErrForbiddenPresent, "%c takes no value", l)
		}
	}
	if _, ok := p.first(axisLetters); !ok {
		p.HasX, p.HasY, p.HasZ = true, true, true
	}
	p.X, p.Y, p.Z = 0, 0, 0
	return p, nil
}

func parseBare(tail string) (Params, error) {
	p, err := ParseParams(tail)
	if err != nil {
		return p, err
	}
	return p, forbid(p, allLetters)
}

func (p *Parser) parsePositioning(code Code, tail string) (Params, error) {
	params, err := parseBare(tail)
	if err != nil {
		return params, err
	}
	switch code.Number {
	case 90:
		p.modal.AbsolutePositioning = true
	case 91:
		p.modal.AbsolutePositioning = false
	}
	return params, nil
}

func (p *Parser) parseExtrusion(code Code, tail string) (Params, error) {
	params, err := parseBare(tail)
	if err != nil {
		return params, err
	}
	switch code.Number {
	case 82:
		p.modal.AbsoluteExtrusion = true
	case 83:
		p.modal.AbsoluteExtrusion = false
	}
	return params, nil
}

func parseTemperature(tail string) (Params, error) {
	p, err := ParseParams(tail)
	if err != nil {
		return p, err
	}
	if err = need(p, ParamS); err != nil {
		return p, err
	}
	return p, forbid(p, "XYZEF")
}

func parseFan(code Code, tail string) (Params, error) {
	p, err := ParseParams(tail)
	if err != nil {
		return p, err
	}
	if code.Number == 107 {
		err = forbid(p, "S")
	} else {
		err = need(p, ParamS)
	}
	if err != nil {
		return p, err
	}
	return p, forbid(p, "XYZEF")
}
