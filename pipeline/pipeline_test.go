package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mastercactapus/gcpipe/fault"
	"github.com/mastercactapus/gcpipe/gcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memFiles map[string]string

func (m memFiles) Open(name string) (io.ReadCloser, error) {
	s, ok := m[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(strings.NewReader(s)), nil
}

type indicator struct {
	mx     sync.Mutex
	states []State
	faults chan fault.Event
}

func newIndicator() *indicator { return &indicator{faults: make(chan fault.Event, 10)} }

func (i *indicator) StateChanged(s State) {
	i.mx.Lock()
	i.states = append(i.states, s)
	i.mx.Unlock()
}
func (i *indicator) Faulted(e fault.Event) { i.faults <- e }

func (i *indicator) Seen() []State {
	i.mx.Lock()
	defer i.mx.Unlock()
	return append([]State(nil), i.states...)
}

func (i *indicator) waitFault(t *testing.T) fault.Event {
	t.Helper()
	select {
	case e := <-i.faults:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no fault reported")
	}
	return fault.Event{}
}

func recvMotion(t *testing.T, p *Pipeline) gcode.MotionCommand {
	t.Helper()
	select {
	case cmd := <-p.Motion():
		return cmd
	case <-time.After(2 * time.Second):
		t.Fatal("no motion command")
	}
	return gcode.MotionCommand{}
}

func start(t *testing.T, opts Options) (*Pipeline, *indicator) {
	t.Helper()
	ind := newIndicator()
	opts.Indicator = ind
	p, err := New(opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Start(ctx))
	t.Cleanup(func() {
		cancel()
		p.Wait()
	})
	return p, ind
}

func TestNew_InvalidCapacity(t *testing.T) {
	opts := DefaultOptions()
	opts.MotionCapacity = 0
	_, err := New(opts)
	assert.Error(t, err)
}

func TestPipeline_Lifecycle(t *testing.T) {
	var p Pipeline
	assert.Equal(t, Uninitialized, p.State())

	ind := newIndicator()
	opts := DefaultOptions()
	opts.Indicator = ind
	pp, err := New(opts)
	require.NoError(t, err)
	assert.Equal(t, ChannelsReady, pp.State())
	assert.False(t, pp.Ready())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, pp.Start(ctx))
	assert.True(t, pp.Ready())
	assert.ErrorIs(t, pp.Start(ctx), ErrNotReady)

	cancel()
	pp.Wait()
	assert.Equal(t, []State{ChannelsReady, Running}, ind.Seen())
}

func TestPipeline_ParsesToMotion(t *testing.T) {
	p, _ := start(t, DefaultOptions())
	ctx := context.Background()

	ok, err := p.SendLine(ctx, "  G1 X10 Y20 F600 ; move\r\n")
	require.NoError(t, err)
	assert.True(t, ok)

	cmd := recvMotion(t, p)
	assert.Equal(t, gcode.G(1), cmd.Code)
	assert.Equal(t, 10.0, cmd.X)
	assert.Equal(t, 20.0, cmd.Y)
	assert.Equal(t, 10.0, cmd.F)
	assert.False(t, cmd.HasZ)
}

func TestPipeline_ModalStatePersists(t *testing.T) {
	p, _ := start(t, DefaultOptions())
	ctx := context.Background()

	for _, l := range []string{"G91", "M83"} {
		_, err := p.SendLine(ctx, l)
		require.NoError(t, err)
		recvMotion(t, p)
	}
	m := p.parser.Modal()
	assert.False(t, m.AbsolutePositioning)
	assert.False(t, m.AbsoluteExtrusion)
}

func TestPipeline_EmptyLineIgnored(t *testing.T) {
	p, _ := start(t, DefaultOptions())

	for _, l := range []string{"", "   ", "; only a comment", "\t;"} {
		ok, err := p.SendLine(context.Background(), l)
		assert.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, uint64(0), p.flag.Raised())
	assert.Equal(t, 0, p.lines.Len())
}

func TestPipeline_ParseErrorRaisesFault(t *testing.T) {
	var echo bytes.Buffer
	opts := DefaultOptions()
	opts.Echo = &echo
	p, ind := start(t, opts)

	_, err := p.SendLine(context.Background(), "M107 S1")
	require.NoError(t, err)

	e := ind.waitFault(t)
	assert.Contains(t, e.Reason, "M107")
	assert.Contains(t, echo.String(), "ERROR: ")
	assert.Equal(t, 0, p.motion.Len())
	assert.Equal(t, Running, p.State())
	assert.Contains(t, ind.Seen(), FaultHalted)
}

func TestPipeline_MotionTimeout(t *testing.T) {
	opts := DefaultOptions()
	opts.MotionCapacity = 1
	opts.MotionTimeout = 20 * time.Millisecond
	p, ind := start(t, opts)
	ctx := context.Background()

	_, err := p.SendLine(ctx, "G28")
	require.NoError(t, err)
	_, err = p.SendLine(ctx, "G1 X5")
	require.NoError(t, err)

	e := ind.waitFault(t)
	assert.Contains(t, e.Reason, "send timed out")
	assert.Contains(t, e.Reason, "G1")

	// the queued command is left for the consumer
	assert.Equal(t, gcode.G(28), recvMotion(t, p).Code)
}

func TestPipeline_EmergencyBypassesBlockedParser(t *testing.T) {
	opts := DefaultOptions()
	opts.MotionCapacity = 1
	opts.MotionTimeout = 3 * time.Second
	p, _ := start(t, opts)
	ctx := context.Background()

	for _, l := range []string{"G28", "G1 X1", "G1 X2"} {
		_, err := p.SendLine(ctx, l)
		require.NoError(t, err)
	}
	// G28 fills motion, the parser waits on G1 X1, G1 X2 stays queued
	require.Eventually(t, func() bool {
		return p.motion.Len() == 1 && p.lines.Len() == 1
	}, time.Second, 5*time.Millisecond)

	sent := time.Now()
	ok, err := p.SendLine(ctx, "M112")
	require.NoError(t, err)
	assert.True(t, ok)

	select {
	case cmd := <-p.Emergency():
		assert.Equal(t, gcode.M(112), cmd.Code)
		assert.Less(t, time.Since(sent), opts.MotionTimeout/2)
	case <-time.After(time.Second):
		t.Fatal("emergency stop held behind the parser")
	}
	assert.Equal(t, 1, p.lines.Len())
	assert.Equal(t, uint64(0), p.flag.Raised())
}

func TestPipeline_EmergencySurvivesFlush(t *testing.T) {
	opts := DefaultOptions()
	opts.MotionCapacity = 1
	opts.MotionTimeout = 50 * time.Millisecond
	p, ind := start(t, opts)
	ctx := context.Background()

	for _, l := range []string{"G28", "G1 X1", "G1 X2", "G1 X3", "M112"} {
		_, err := p.SendLine(ctx, l)
		require.NoError(t, err)
	}
	ind.waitFault(t)

	select {
	case cmd := <-p.Emergency():
		assert.Equal(t, gcode.M(112), cmd.Code)
	case <-time.After(time.Second):
		t.Fatal("emergency stop lost")
	}
}

func TestPipeline_InvalidEmergency(t *testing.T) {
	p, ind := start(t, DefaultOptions())

	ok, err := p.SendLine(context.Background(), "M112 X1")
	require.NoError(t, err)
	assert.True(t, ok)

	e := ind.waitFault(t)
	assert.Contains(t, e.Reason, "M112")
	assert.Equal(t, 0, p.emergency.Len())
}

func TestPipeline_WatcherFlushesIntake(t *testing.T) {
	ind := newIndicator()
	opts := DefaultOptions()
	opts.Indicator = ind
	p, err := New(opts)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, p.lines.Send(ctx, "G1 X1"))
	require.NoError(t, p.lines.Send(ctx, "G1 X2"))
	require.NoError(t, p.files.Send(ctx, "part.gcode"))
	require.NoError(t, p.motion.Send(ctx, gcode.MotionCommand{Code: gcode.G(28)}))

	go p.watcher.Run(ctx)
	p.Raise(errors.New("test fault"))

	e := ind.waitFault(t)
	assert.Equal(t, map[string]int{"lines": 2, "files": 1}, e.Flushed)
	assert.Equal(t, 0, p.lines.Len())
	assert.Equal(t, 0, p.files.Len())
	assert.Equal(t, 1, p.motion.Len())
}

func TestPipeline_File(t *testing.T) {
	opts := DefaultOptions()
	opts.Files = memFiles{"part.gcode": "; header\nG28\n\nG1 X10 F600 ; first\n"}
	p, _ := start(t, opts)

	require.NoError(t, p.SendFile(context.Background(), "part.gcode"))
	assert.Equal(t, gcode.G(28), recvMotion(t, p).Code)
	cmd := recvMotion(t, p)
	assert.Equal(t, gcode.G(1), cmd.Code)
	assert.Equal(t, 10.0, cmd.F)
}

func TestPipeline_FileMissing(t *testing.T) {
	opts := DefaultOptions()
	opts.Files = memFiles{}
	p, ind := start(t, opts)

	require.NoError(t, p.SendFile(context.Background(), "nope.gcode"))
	e := ind.waitFault(t)
	assert.Contains(t, e.Reason, "nope.gcode")
}

func TestRunFile_FlushesQueuedLines(t *testing.T) {
	opts := DefaultOptions()
	opts.Files = memFiles{"part.gcode": "G28\nG1 X1\n"}
	p, err := New(opts)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, p.lines.Send(ctx, "G1 X99"))
	p.runFile(ctx, "part.gcode")

	var got []string
	for p.lines.Len() > 0 {
		l, err := p.lines.Recv(ctx)
		require.NoError(t, err)
		got = append(got, l)
	}
	assert.Equal(t, []string{"G28", "G1 X1"}, got)
}

func TestRunFile_EmergencySkipsLines(t *testing.T) {
	opts := DefaultOptions()
	opts.Files = memFiles{"part.gcode": "G28\nM112 ; stop\nG1 X1\n"}
	p, err := New(opts)
	require.NoError(t, err)
	ctx := context.Background()

	p.runFile(ctx, "part.gcode")

	assert.Equal(t, 1, p.emergency.Len())
	var got []string
	for p.lines.Len() > 0 {
		l, err := p.lines.Recv(ctx)
		require.NoError(t, err)
		got = append(got, l)
	}
	assert.Equal(t, []string{"G28", "G1 X1"}, got)
}

// chunks returns one chunk per Read and calls hook before the second.
type chunks struct {
	parts []string
	n     int
	hook  func()
}

func (c *chunks) Read(b []byte) (int, error) {
	if c.n >= len(c.parts) {
		return 0, io.EOF
	}
	if c.n == 1 && c.hook != nil {
		c.hook()
	}
	n := copy(b, c.parts[c.n])
	c.n++
	return n, nil
}
func (c *chunks) Close() error { return nil }

type chunkFiles struct{ r *chunks }

func (f chunkFiles) Open(string) (io.ReadCloser, error) { return f.r, nil }

func TestRunFile_AbandonedOnFault(t *testing.T) {
	src := &chunks{parts: []string{"G28\n", "G1 X1\n", "G1 X2\n"}}
	opts := DefaultOptions()
	opts.Files = chunkFiles{src}
	p, err := New(opts)
	require.NoError(t, err)
	ctx := context.Background()

	src.hook = func() {
		p.Raise(errors.New("elsewhere"))
		_, err := p.flag.Take(ctx)
		require.NoError(t, err)
	}
	p.runFile(ctx, "part.gcode")

	assert.Equal(t, 1, p.lines.Len())
	l, err := p.lines.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "G28", l)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "fault-halted", FaultHalted.String())
	assert.Equal(t, "invalid", State(42).String())
}
