package gcode

import (
	"bufio"
	"io"
)

// Reader yields normalized lines from a text stream, skipping blank and
// comment-only lines.
type Reader struct {
	br   *bufio.Reader
	line int
}

func NewReader(r io.Reader) *Reader {
	if br, ok := r.(*bufio.Reader); ok {
		return &Reader{br: br}
	}

	return &Reader{br: bufio.NewReader(r)}
}

// Line returns the 1-based source line number of the last line read.
func (r *Reader) Line() int { return r.line }

// Read returns the next non-empty normalized line, or io.EOF.
func (r *Reader) Read() (string, error) {
	for {
		s, err := r.br.ReadString('\n')
		if err == io.EOF && s != "" {
			err = nil
		}
		if err != nil {
			return "", err
		}
		r.line++

		s, ok := Normalize(s)
		if !ok {
			continue
		}
		return s, nil
	}
}
