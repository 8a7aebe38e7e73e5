// Package status publishes pipeline state and fault events to SSE clients.
package status

import (
	"encoding/json"
	"io/ioutil"
	"log"
	"sync"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/mastercactapus/gcpipe/fault"
	"github.com/mastercactapus/gcpipe/pipeline"
)

// Channel is the SSE channel events are sent on. Clients subscribe by
// requesting this path.
const Channel = "/events/status"

// Snapshot is the last known status.
type Snapshot struct {
	State     pipeline.State `json:"state"`
	Faults    int            `json:"faults"`
	Storms    int            `json:"storms"`
	LastFault *fault.Event   `json:"last_fault,omitempty"`
}

type message struct {
	Type  string          `json:"type"`
	State *pipeline.State `json:"state,omitempty"`
	Fault *fault.Event    `json:"fault,omitempty"`
}

// Broadcaster is a pipeline.Indicator backed by an SSE server.
type Broadcaster struct {
	*sse.Server

	mx   sync.Mutex
	snap Snapshot
}

var _ pipeline.Indicator = &Broadcaster{}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		Server: sse.NewServer(&sse.Options{
			Logger: log.New(ioutil.Discard, "", 0),
		}),
	}
}

func (b *Broadcaster) Snapshot() Snapshot {
	b.mx.Lock()
	defer b.mx.Unlock()
	s := b.snap
	if s.LastFault != nil {
		e := *s.LastFault
		s.LastFault = &e
	}
	return s
}

func (b *Broadcaster) StateChanged(s pipeline.State) {
	b.mx.Lock()
	b.snap.State = s
	b.mx.Unlock()

	b.send(message{Type: "state", State: &s})
}

func (b *Broadcaster) Faulted(e fault.Event) {
	b.mx.Lock()
	b.snap.Faults++
	if e.Storm {
		b.snap.Storms++
	}
	b.snap.LastFault = &e
	b.mx.Unlock()

	b.send(message{Type: "fault", Fault: &e})
}

func (b *Broadcaster) send(m message) {
	data, err := json.Marshal(m)
	if err != nil {
		log.Printf("ERROR: marshal json: %+v", err)
		return
	}
	b.SendMessage(Channel, sse.SimpleMessage(string(data)))
}
