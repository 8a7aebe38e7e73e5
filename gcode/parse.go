package gcode

import (
	"fmt"
	"io"
	"strings"
)

// ParseAll parses every line of data with a fresh parser. It stops at the
// first invalid line.
func ParseAll(data string) ([]MotionCommand, error) {
	r := NewReader(strings.NewReader(data))
	p := NewParser()
	var res []MotionCommand
	for {
		line, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		cmd, err := p.Parse(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", r.Line(), err)
		}
		res = append(res, cmd)
	}
	return res, nil
}

// MustParse is like ParseAll but panics on error.
func MustParse(data string) []MotionCommand {
	res, err := ParseAll(data)
	if err != nil {
		panic(err)
	}
	return res
}
