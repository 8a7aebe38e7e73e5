package main

import (
	"encoding/json"
	"errors"
	"io"
	"io/ioutil"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/mastercactapus/gcpipe/console"
	"github.com/mastercactapus/gcpipe/pipeline"
	"github.com/mastercactapus/gcpipe/status"
	"github.com/mastercactapus/gcpipe/storage"
)

type api struct {
	http.Handler
	p      *pipeline.Pipeline
	con    *console.Console
	files  *storage.Dir
	events *status.Broadcaster

	upgrader websocket.Upgrader
}

type apiState struct {
	Pipeline pipeline.Stats  `json:"pipeline"`
	Status   status.Snapshot `json:"status"`
}

func newAPI(p *pipeline.Pipeline, con *console.Console, files *storage.Dir, events *status.Broadcaster) *api {
	r := mux.NewRouter()

	a := &api{
		Handler: r,
		p:       p,
		con:     con,
		files:   files,
		events:  events,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	fs := http.FileServer(http.Dir(files.Root()))
	r.PathPrefix("/data/").Handler(http.StripPrefix("/data", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case "GET", "HEAD":
			fs.ServeHTTP(w, req)
		case "PUT":
			a.putFile(w, req)
		case "DELETE":
			a.deleteFile(w, req)
		default:
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		}
	})))

	r.HandleFunc("/api/run", a.run).Methods("POST")
	r.HandleFunc("/api/print/{name:.+}", a.print).Methods("POST")
	r.HandleFunc("/api/clear", a.clear).Methods("POST")
	r.HandleFunc("/api/state", a.state).Methods("GET")
	r.HandleFunc("/ws", a.console)
	r.PathPrefix("/events/").Handler(events)

	return a
}

func (a *api) run(w http.ResponseWriter, req *http.Request) {
	data, err := ioutil.ReadAll(req.Body)
	if err != nil {
		return
	}

	for _, str := range strings.Split(string(data), "\n") {
		_, err = a.p.SendLine(req.Context(), str)
		if err != nil {
			log.Printf("ERROR: run: %+v", err)
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
}

func (a *api) print(w http.ResponseWriter, req *http.Request) {
	name := mux.Vars(req)["name"]
	err := a.p.SendFile(req.Context(), name)
	if err != nil {
		log.Printf("ERROR: print '%s': %+v", name, err)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
}

func (a *api) clear(w http.ResponseWriter, req *http.Request) {
	n := a.p.ClearLines()
	writeJSON(w, map[string]int{"cleared": n})
}

func (a *api) state(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, apiState{
		Pipeline: a.p.Stats(),
		Status:   a.events.Snapshot(),
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		log.Println("ERROR: encode:", err)
	}
}

// console runs the text console over a websocket. Each text message may
// hold several lines; every reply line is sent as its own message.
func (a *api) console(w http.ResponseWriter, req *http.Request) {
	ws, err := a.upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Println("ERROR: upgrade:", err)
		return
	}
	defer ws.Close()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		for _, line := range strings.Split(string(data), "\n") {
			for _, reply := range a.con.Handle(req.Context(), line) {
				err = ws.WriteMessage(websocket.TextMessage, []byte(reply))
				if err != nil {
					log.Println("ERROR: send:", err)
					return
				}
			}
		}
	}
}

func fileError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrInvalidName):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, os.ErrNotExist):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (a *api) putFile(w http.ResponseWriter, req *http.Request) {
	f, err := a.files.Create(req.URL.Path)
	if err != nil {
		log.Printf("ERROR: create '%s': %+v", req.URL.Path, err)
		fileError(w, err)
		return
	}
	defer f.Close()
	_, err = io.Copy(f, req.Body)
	if err != nil {
		log.Printf("ERROR: write '%s': %+v", req.URL.Path, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (a *api) deleteFile(w http.ResponseWriter, req *http.Request) {
	err := a.files.Remove(req.URL.Path)
	if err != nil {
		log.Printf("ERROR: delete '%s': %+v", req.URL.Path, err)
		fileError(w, err)
		return
	}
}
