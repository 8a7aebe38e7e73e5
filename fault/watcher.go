package fault

import (
	"context"
	"log"
	"time"
)

// A Flusher is a queue the watcher empties on a fault.
type Flusher interface {
	Name() string
	Flush() int
}

// Event describes one handled fault.
type Event struct {
	Seq     int            `json:"seq"`
	Reason  string         `json:"reason"`
	Flushed map[string]int `json:"flushed"`
	Time    time.Time      `json:"time"`

	// Storm is set when more than Limit faults were handled within Window.
	Storm bool `json:"storm,omitempty"`
}

// Listener is told when the watcher starts and finishes handling a fault.
type Listener interface {
	Halted(Event)
	Resumed(Event)
}

// Watcher consumes the flag and flushes its targets, one fault at a time.
type Watcher struct {
	flag     *Flag
	targets  []Flusher
	listener Listener

	// Limit and Window bound how many faults may be handled in a row before
	// they are reported as a storm. A zero Limit disables the check.
	Limit  int
	Window time.Duration

	seq    int
	recent []time.Time
	now    func() time.Time
}

func NewWatcher(flag *Flag, l Listener, targets ...Flusher) *Watcher {
	return &Watcher{
		flag:     flag,
		targets:  targets,
		listener: l,
		now:      time.Now,
	}
}

// Run handles faults until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		reason, err := w.flag.Take(ctx)
		if err != nil {
			return err
		}
		w.handle(reason)
	}
}

func (w *Watcher) handle(reason error) Event {
	w.seq++
	e := Event{
		Seq:     w.seq,
		Reason:  reason.Error(),
		Flushed: make(map[string]int, len(w.targets)),
		Time:    w.now(),
	}
	e.Storm = w.storm(e.Time)

	log.Printf("ERROR: fault #%d: %s", e.Seq, e.Reason)
	if w.listener != nil {
		w.listener.Halted(e)
	}
	for _, t := range w.targets {
		e.Flushed[t.Name()] = t.Flush()
	}
	if e.Storm {
		log.Printf("ERROR: %d faults within %s, intake keeps failing", len(w.recent), w.Window)
	}
	if w.listener != nil {
		w.listener.Resumed(e)
	}
	return e
}

func (w *Watcher) storm(t time.Time) bool {
	if w.Limit <= 0 {
		return false
	}
	w.recent = append(w.recent, t)
	keep := w.recent[:0]
	for _, r := range w.recent {
		if t.Sub(r) <= w.Window {
			keep = append(keep, r)
		}
	}
	w.recent = keep
	return len(w.recent) > w.Limit
}
