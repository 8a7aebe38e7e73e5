// Package pipeline wires the intake channels, the parser stage, the file
// stage and the fault watcher together.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mastercactapus/gcpipe/fault"
	"github.com/mastercactapus/gcpipe/gcode"
	"github.com/mastercactapus/gcpipe/relay"
)

// ErrNotReady is returned by Start when the pipeline is not in ChannelsReady.
var ErrNotReady = errors.New("pipeline not ready")

// Indicator is notified about lifecycle changes and handled faults.
type Indicator interface {
	StateChanged(State)
	Faulted(fault.Event)
}

// FileSource opens named G-code files for the file stage.
type FileSource interface {
	Open(name string) (io.ReadCloser, error)
}

type Options struct {
	LineCapacity   int
	FileCapacity   int
	MotionCapacity int

	LineTimeout   time.Duration
	FileTimeout   time.Duration
	MotionTimeout time.Duration

	FaultLimit  int
	FaultWindow time.Duration

	Files     FileSource
	Indicator Indicator

	// Echo receives "ERROR: ..." lines for every per-command failure.
	Echo io.Writer

	Debug bool
}

func DefaultOptions() Options {
	return Options{
		LineCapacity:   10,
		FileCapacity:   5,
		MotionCapacity: 10,

		LineTimeout:   5 * time.Second,
		FileTimeout:   100 * time.Millisecond,
		MotionTimeout: 5 * time.Second,

		FaultLimit:  5,
		FaultWindow: 30 * time.Second,
	}
}

type Pipeline struct {
	opts Options

	lines     *relay.Chan[string]
	files     *relay.Chan[string]
	motion    *relay.Chan[gcode.MotionCommand]
	emergency *relay.Chan[gcode.MotionCommand]

	flag    *fault.Flag
	watcher *fault.Watcher
	parser  *gcode.Parser

	state atomic.Int32
	wg    sync.WaitGroup

	echoMx sync.Mutex
}

// Stats is a point-in-time view of queue depths and fault counters.
type Stats struct {
	State     State  `json:"state"`
	Lines     int    `json:"lines"`
	Files     int    `json:"files"`
	Motion    int    `json:"motion"`
	Raised    uint64 `json:"faults_raised"`
	Consumed  uint64 `json:"faults_handled"`
	Emergency bool   `json:"emergency_pending"`
}

// New allocates the channels and the fault flag. Any invalid capacity or
// timeout is returned as an error and the pipeline must not be used.
func New(opts Options) (*Pipeline, error) {
	p := &Pipeline{
		opts:   opts,
		flag:   fault.NewFlag(),
		parser: gcode.NewParser(),
	}

	var err error
	p.lines, err = relay.New[string]("lines", opts.LineCapacity, opts.LineTimeout)
	if err != nil {
		return nil, fmt.Errorf("allocate channels: %w", err)
	}
	p.files, err = relay.New[string]("files", opts.FileCapacity, opts.FileTimeout)
	if err != nil {
		return nil, fmt.Errorf("allocate channels: %w", err)
	}
	p.motion, err = relay.New[gcode.MotionCommand]("motion", opts.MotionCapacity, opts.MotionTimeout)
	if err != nil {
		return nil, fmt.Errorf("allocate channels: %w", err)
	}
	p.emergency, err = relay.New[gcode.MotionCommand]("emergency", 1, opts.MotionTimeout)
	if err != nil {
		return nil, fmt.Errorf("allocate channels: %w", err)
	}

	p.watcher = fault.NewWatcher(p.flag, watchListener{p}, p.lines, p.files)
	p.watcher.Limit = opts.FaultLimit
	p.watcher.Window = opts.FaultWindow

	p.setState(ChannelsReady)
	return p, nil
}

func (p *Pipeline) State() State { return State(p.state.Load()) }

// Ready reports whether the stages are running and accepting input.
func (p *Pipeline) Ready() bool {
	s := p.State()
	return s == Running || s == FaultHalted
}

func (p *Pipeline) setState(s State) {
	if State(p.state.Swap(int32(s))) == s {
		return
	}
	if p.opts.Indicator != nil {
		p.opts.Indicator.StateChanged(s)
	}
}

// Start launches the parser stage, the file stage and the fault watcher.
// They run until ctx is done.
func (p *Pipeline) Start(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(ChannelsReady), int32(Running)) {
		return fmt.Errorf("start from %s: %w", p.State(), ErrNotReady)
	}
	if p.opts.Indicator != nil {
		p.opts.Indicator.StateChanged(Running)
	}

	p.wg.Add(3)
	go func() {
		defer p.wg.Done()
		p.parseLoop(ctx)
	}()
	go func() {
		defer p.wg.Done()
		p.fileLoop(ctx)
	}()
	go func() {
		defer p.wg.Done()
		p.watcher.Run(ctx)
	}()
	return nil
}

// Wait blocks until every stage started by Start has returned.
func (p *Pipeline) Wait() { p.wg.Wait() }

// SendLine normalizes raw and queues it for parsing. It returns false when
// nothing was left to queue. An emergency stop is delivered to Emergency
// right away instead.
func (p *Pipeline) SendLine(ctx context.Context, raw string) (bool, error) {
	line, ok := gcode.Normalize(raw)
	if !ok {
		return false, nil
	}
	err := p.queue(ctx, line)
	if errors.Is(err, relay.ErrSendTimeout) {
		p.fail("queue line", err)
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SendFile queues a file name for the file stage.
func (p *Pipeline) SendFile(ctx context.Context, name string) error {
	err := p.files.Send(ctx, name)
	if errors.Is(err, relay.ErrSendTimeout) {
		p.fail("queue file", err)
	}
	return err
}

// ClearLines drops every queued raw line.
func (p *Pipeline) ClearLines() int { return p.lines.Flush() }

// Raise sets the fault flag on behalf of an outside collaborator.
func (p *Pipeline) Raise(reason error) { p.flag.Raise(reason) }

func (p *Pipeline) Motion() <-chan gcode.MotionCommand    { return p.motion.C() }
func (p *Pipeline) Emergency() <-chan gcode.MotionCommand { return p.emergency.C() }

func (p *Pipeline) Stats() Stats {
	return Stats{
		State:     p.State(),
		Lines:     p.lines.Len(),
		Files:     p.files.Len(),
		Motion:    p.motion.Len(),
		Raised:    p.flag.Raised(),
		Consumed:  p.flag.Consumed(),
		Emergency: p.emergency.Len() > 0,
	}
}

// fail logs err, echoes it and raises the fault flag.
func (p *Pipeline) fail(where string, err error) {
	log.Printf("ERROR: %s: %v", where, err)
	if p.opts.Echo != nil {
		p.echoMx.Lock()
		fmt.Fprintf(p.opts.Echo, "ERROR: %v\n", err)
		p.echoMx.Unlock()
	}
	p.flag.Raise(err)
}

type watchListener struct{ p *Pipeline }

func (l watchListener) Halted(fault.Event) { l.p.setState(FaultHalted) }

func (l watchListener) Resumed(e fault.Event) {
	l.p.setState(Running)
	if l.p.opts.Indicator != nil {
		l.p.opts.Indicator.Faulted(e)
	}
}
