package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/google/uuid"
	"github.com/mastercactapus/gcpipe/gcode"
)

var errNoFiles = errors.New("no file source configured")

func (p *Pipeline) parseLoop(ctx context.Context) {
	for {
		line, err := p.lines.Recv(ctx)
		if err != nil {
			return
		}
		p.handleLine(ctx, line)
	}
}

func (p *Pipeline) handleLine(ctx context.Context, line string) {
	if p.opts.Debug {
		log.Printf("DEBUG: line: %q", line)
	}

	cmd, err := p.parser.Parse(line)
	if err != nil {
		p.fail("parse", err)
		return
	}

	if cmd.Kind() == gcode.KindEmergency {
		p.stop(cmd)
		return
	}

	err = p.motion.Send(ctx, cmd)
	if err != nil && ctx.Err() == nil {
		p.fail("send motion", fmt.Errorf("%s: %w", cmd.Code, err))
	}
}

// queue hands a normalized line to the parser stage. Emergency stops never
// enter the lines channel: they are validated here and go straight to the
// emergency channel, so neither a blocked parser nor a fault flush can hold
// them back.
func (p *Pipeline) queue(ctx context.Context, line string) error {
	if !gcode.IsEmergency(line) {
		return p.lines.Send(ctx, line)
	}

	cmd, err := gcode.NewParser().Parse(line)
	if err != nil {
		p.fail("parse", err)
		return nil
	}
	p.stop(cmd)
	return nil
}

func (p *Pipeline) stop(cmd gcode.MotionCommand) {
	if !p.emergency.TrySend(cmd) {
		log.Println("WARN: emergency stop already pending, dropped", cmd)
	}
}

func (p *Pipeline) fileLoop(ctx context.Context) {
	for {
		name, err := p.files.Recv(ctx)
		if err != nil {
			return
		}
		p.runFile(ctx, name)
	}
}

// runFile streams one file into the lines channel. Lines already queued are
// dropped first so the job does not interleave with earlier input, and the
// job stops as soon as a fault is handled while it runs.
func (p *Pipeline) runFile(ctx context.Context, name string) {
	job := uuid.New()
	where := fmt.Sprintf("file %s [%s]", name, job)

	if p.opts.Files == nil {
		p.fail(where, errNoFiles)
		return
	}
	if n := p.lines.Flush(); n > 0 {
		log.Printf("%s: dropped %d queued lines", where, n)
	}

	f, err := p.opts.Files.Open(name)
	if err != nil {
		p.fail(where, fmt.Errorf("open %s: %w", name, err))
		return
	}
	defer f.Close()

	log.Printf("%s: started", where)
	epoch := p.flag.Consumed()
	r := gcode.NewReader(f)
	var sent int
	for {
		line, err := r.Read()
		if err == io.EOF {
			log.Printf("%s: done, %d lines", where, sent)
			return
		}
		if err != nil {
			p.fail(where, fmt.Errorf("read %s: %w", name, err))
			return
		}
		if p.flag.Consumed() != epoch {
			log.Printf("%s: abandoned after fault at line %d", where, r.Line())
			return
		}

		err = p.queue(ctx, line)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			p.fail(where, fmt.Errorf("line %d: %w", r.Line(), err))
			return
		}
		sent++
	}
}
