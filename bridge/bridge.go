// Package bridge writes G-code to a serial port exposed by a
// serial-port-json-server (SPJS) over its websocket API.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type DataFrame struct {
	Port string `json:"P"`
	Data string `json:"D"`
}

type CmdStatus struct {
	Cmd        string
	QueueCount int `json:"QCnt"`
	Type       []string
	Data       []string `json:"D"`
	ID         string   `json:"Id"`
}

type ErrorMessage struct {
	Error string
}

type SerialPortList struct {
	SerialPorts []SerialPort
}

type SerialPort struct {
	Name     string
	Friendly string
	IsOpen   bool
	Baud     int
}

const retryDelay = 3 * time.Second

type message struct {
	done    chan struct{}
	payload []byte
}

// Bridge is an io.Writer for one port on an SPJS server. It reconnects on
// its own; writes block until the message has been handed to the socket.
type Bridge struct {
	url  string
	port string

	outgoing chan message
	incoming chan interface{}

	closeOnce sync.Once
	closed    chan struct{}
}

var _ io.WriteCloser = &Bridge{}

func New(url, port string) *Bridge {
	b := &Bridge{
		url:      url,
		port:     port,
		outgoing: make(chan message, 100),
		incoming: make(chan interface{}, 100),
		closed:   make(chan struct{}),
	}
	go b.loop()
	return b
}

func parseMessage(data []byte, msg map[string]json.RawMessage) (val interface{}, err error) {
	check := func(fieldName string, v interface{}) bool {
		if msg[fieldName] == nil {
			return false
		}
		val = v
		err = json.Unmarshal(data, val)
		return true
	}
	if check("Error", &ErrorMessage{}) {
		return
	}
	if check("SerialPorts", &SerialPortList{}) {
		return
	}
	if check("Cmd", &CmdStatus{}) {
		return
	}
	if check("D", &DataFrame{}) {
		return
	}

	return nil, errors.New("unknown message: " + string(data))
}

func (b *Bridge) readLoop(ws *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			log.Println("ERROR: bridge read:", err)
			return
		}
		if !bytes.HasPrefix(data, []byte("{")) {
			// echo of our own command
			continue
		}
		var msg map[string]json.RawMessage
		err = json.Unmarshal(data, &msg)
		if err != nil {
			log.Println("ERROR: bridge read:", err)
			continue
		}
		val, err := parseMessage(data, msg)
		if err != nil {
			log.Println("ERROR: bridge parse:", err)
			continue
		}
		if e, ok := val.(*ErrorMessage); ok {
			log.Println("ERROR: bridge:", e.Error)
		}
		select {
		case b.incoming <- val:
		default:
		}
	}
}

func (b *Bridge) loop() {
	var nextUp message

reconnect:
	for {
		select {
		case <-b.closed:
			return
		default:
		}

		log.Println("Connecting to", b.url)
		ws, _, err := websocket.DefaultDialer.Dial(b.url, nil)
		if err != nil {
			log.Println("ERROR: bridge connect:", err)
			select {
			case <-b.closed:
				return
			case <-time.After(retryDelay):
			}
			continue
		}
		log.Println("Connected.")
		ch := make(chan struct{})
		go b.readLoop(ws, ch)
		err = ws.WriteMessage(websocket.TextMessage, []byte("list"))
		if err != nil {
			log.Println("ERROR: bridge send:", err)
			ws.Close()
			continue
		}

		for {
			if nextUp.done != nil {
				err = ws.WriteMessage(websocket.TextMessage, nextUp.payload)
				if err != nil {
					log.Println("ERROR: bridge send:", err)
					ws.Close()
					continue reconnect
				}
				close(nextUp.done)
				nextUp.done = nil
			}

			select {
			case <-b.closed:
				ws.Close()
				return
			case <-ch:
				ws.Close()
				continue reconnect
			case nextUp = <-b.outgoing:
			}
		}
	}
}

// Forward copies data the bridged port reports to w and logs port state and
// command errors. Messages decoded while nobody forwards are dropped once
// the buffer is full. It returns when ctx is done or the bridge is closed.
func (b *Bridge) Forward(ctx context.Context, w io.Writer) error {
	for {
		var val interface{}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.closed:
			return nil
		case val = <-b.incoming:
		}

		switch m := val.(type) {
		case *DataFrame:
			if m.Port != b.port || m.Data == "" {
				continue
			}
			_, err := io.WriteString(w, m.Data)
			if err != nil {
				return fmt.Errorf("forward %s: %w", b.port, err)
			}
		case *SerialPortList:
			open := false
			for _, sp := range m.SerialPorts {
				if sp.Name == b.port {
					open = sp.IsOpen
				}
			}
			if !open {
				log.Printf("WARN: bridge: %s is not open on %s", b.port, b.url)
			}
		case *CmdStatus:
			if strings.Contains(m.Cmd, "Error") {
				log.Printf("ERROR: bridge: %s %v", m.Cmd, m.Data)
			}
		}
	}
}

// WriteString sends one raw SPJS command.
func (b *Bridge) WriteString(data string) error {
	ch := make(chan struct{})
	select {
	case b.outgoing <- message{done: ch, payload: []byte(data)}:
	case <-b.closed:
		return io.ErrClosedPipe
	}
	select {
	case <-ch:
		return nil
	case <-b.closed:
		return io.ErrClosedPipe
	}
}

// Write sends each line of p to the bridged port.
func (b *Bridge) Write(p []byte) (int, error) {
	for _, line := range strings.SplitAfter(string(p), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !strings.HasSuffix(line, "\n") {
			line += "\n"
		}
		err := b.WriteString("send " + b.port + " " + line)
		if err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (b *Bridge) Close() error {
	b.closeOnce.Do(func() { close(b.closed) })
	return nil
}
