// Package motion contains a text motion consumer that writes validated
// commands back out as G-code lines.
package motion

import (
	"context"
	"io"
	"log"
	"sync"

	"github.com/mastercactapus/gcpipe/gcode"
)

// Source is the consumer side of the pipeline.
type Source interface {
	Motion() <-chan gcode.MotionCommand
	Emergency() <-chan gcode.MotionCommand
}

// Writer drains a Source into w, one command per line. Emergency commands
// are always written before any pending motion command.
type Writer struct {
	mx sync.Mutex
	w  io.Writer

	written int
	stopped bool
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Written returns the number of commands written so far.
func (mw *Writer) Written() int {
	mw.mx.Lock()
	defer mw.mx.Unlock()
	return mw.written
}

// Stopped reports whether an emergency stop has been written.
func (mw *Writer) Stopped() bool {
	mw.mx.Lock()
	defer mw.mx.Unlock()
	return mw.stopped
}

func (mw *Writer) write(cmd gcode.MotionCommand) error {
	mw.mx.Lock()
	defer mw.mx.Unlock()
	_, err := io.WriteString(mw.w, cmd.String()+"\n")
	if err != nil {
		return err
	}
	mw.written++
	if cmd.Kind() == gcode.KindEmergency {
		mw.stopped = true
	}
	return nil
}

// Run writes commands until ctx is done or a write fails.
func (mw *Writer) Run(ctx context.Context, src Source) error {
	for {
		select {
		case cmd := <-src.Emergency():
			log.Println("emergency stop:", cmd)
			if err := mw.write(cmd); err != nil {
				return err
			}
			continue
		default:
		}

		var cmd gcode.MotionCommand
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd = <-src.Emergency():
			log.Println("emergency stop:", cmd)
		case cmd = <-src.Motion():
		}
		if err := mw.write(cmd); err != nil {
			return err
		}
	}
}
