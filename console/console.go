// Package console implements the interactive control link: text verbs for
// file jobs and diagnostics, with G/M lines forwarded to the pipeline.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"unicode"

	"github.com/mastercactapus/gcpipe/gcode"
)

// Pipeline is the producer side of the command pipeline.
type Pipeline interface {
	SendLine(ctx context.Context, raw string) (bool, error)
	SendFile(ctx context.Context, name string) error
	ClearLines() int
	Ready() bool
	Raise(reason error)
}

// Files is the file source the console lists and previews.
type Files interface {
	Open(name string) (io.ReadCloser, error)
	List() ([]string, error)
}

var errNotReady = errors.New("system test: pipeline not ready")

type Console struct {
	p     Pipeline
	files Files
}

func New(p Pipeline, files Files) *Console {
	return &Console{p: p, files: files}
}

func splitVerb(line string) (verb, arg string) {
	i := strings.IndexFunc(line, unicode.IsSpace)
	if i == -1 {
		return line, ""
	}
	return line[:i], strings.TrimSpace(line[i:])
}

// isCommand reports whether verb looks like a G or M code, e.g. "G1".
func isCommand(verb string) bool {
	if len(verb) < 2 || (verb[0] != 'G' && verb[0] != 'M') {
		return false
	}
	return verb[1] >= '0' && verb[1] <= '9'
}

// Handle runs one input line and returns the reply lines. Blank and
// comment-only lines get no reply.
func (c *Console) Handle(ctx context.Context, raw string) []string {
	line, ok := gcode.Normalize(raw)
	if !ok {
		return nil
	}
	verb, arg := splitVerb(line)

	switch verb {
	case "READ_SD":
		if arg == "" {
			return []string{"ERROR: Empty filename"}
		}
		if err := c.p.SendFile(ctx, arg); err != nil {
			return []string{"ERROR: Failed to send to file queue"}
		}
		return []string{"OK: READ_SD command sent"}
	case "TEST_SD":
		if arg == "" {
			return []string{"ERROR: Empty filename"}
		}
		return c.testFile(arg)
	case "TEST_SYSTEM":
		if !c.p.Ready() {
			c.p.Raise(errNotReady)
		}
		return []string{"OK: TEST_SYSTEM command sent"}
	case "CLEAR_GCODE":
		n := c.p.ClearLines()
		log.Printf("cleared %d queued lines", n)
		return []string{"OK: Line queue cleared"}
	case "LIST_SD":
		return c.list()
	case "TEST_PARSE":
		if arg == "" {
			return []string{"ERROR: Empty command"}
		}
		cmd, err := gcode.NewParser().Parse(arg)
		if err != nil {
			return []string{"ERROR: " + err.Error()}
		}
		return []string{"OK: Command parsed " + cmd.Code.String()}
	}

	if !isCommand(verb) {
		return []string{"ERROR: Unknown command"}
	}
	if _, err := c.p.SendLine(ctx, line); err != nil {
		return []string{"ERROR: Failed to send to line queue"}
	}
	return []string{"OK: Command queued"}
}

func (c *Console) testFile(name string) []string {
	f, err := c.files.Open(name)
	if err != nil {
		log.Printf("ERROR: open '%s': %v", name, err)
		return []string{"ERROR: Failed to open file"}
	}
	defer f.Close()

	var res []string
	r := gcode.NewReader(f)
	for {
		line, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("ERROR: read '%s': %v", name, err)
			return append(res, "ERROR: Failed to open file")
		}
		log.Printf("%s:%d: %s", name, r.Line(), line)
		res = append(res, "Line: "+line)
	}
	return append(res, "OK: TEST_SD command sent")
}

func (c *Console) list() []string {
	names, err := c.files.List()
	if err != nil {
		log.Println("ERROR: list files:", err)
		return []string{"ERROR: Failed to list files"}
	}
	if len(names) == 0 {
		return []string{"No files found", "OK: File list completed"}
	}
	res := make([]string, 0, len(names)+1)
	for _, n := range names {
		res = append(res, "File: "+n)
	}
	return append(res, "OK: File list completed")
}

// Serve reads lines from r and writes replies to w until r is exhausted or
// ctx is done. A blocked read is only interrupted by closing r.
func (c *Console) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	s := bufio.NewScanner(r)
	for s.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		for _, reply := range c.Handle(ctx, s.Text()) {
			_, err := fmt.Fprintln(w, reply)
			if err != nil {
				return err
			}
		}
	}
	return s.Err()
}

type syncWriter struct {
	mx sync.Mutex
	w  io.Writer
}

// NewSyncWriter serializes writes to w, so console replies and pipeline
// error echoes can share one link.
func NewSyncWriter(w io.Writer) io.Writer {
	return &syncWriter{w: w}
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.w.Write(p)
}
