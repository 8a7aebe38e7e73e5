package main

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/gcpipe/console"
	"github.com/mastercactapus/gcpipe/pipeline"
	"github.com/mastercactapus/gcpipe/status"
	"github.com/mastercactapus/gcpipe/storage"
)

type apiTest struct {
	*testing.T
	srv  *httptest.Server
	p    *pipeline.Pipeline
	root string
}

func newAPITest(t *testing.T) *apiTest {
	root := t.TempDir()
	files := storage.NewDir(root)
	events := status.NewBroadcaster()
	t.Cleanup(events.Shutdown)

	opts := pipeline.DefaultOptions()
	opts.Files = files
	opts.Indicator = events
	p, err := pipeline.New(opts)
	require.NoError(t, err)

	srv := httptest.NewServer(newAPI(p, console.New(p, files), files, events))
	t.Cleanup(srv.Close)
	return &apiTest{T: t, srv: srv, p: p, root: root}
}

func (at *apiTest) do(method, path, body string) *http.Response {
	at.Helper()
	req, err := http.NewRequest(method, at.srv.URL+path, strings.NewReader(body))
	require.NoError(at, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(at, err)
	at.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAPI_Run(t *testing.T) {
	at := newAPITest(t)

	resp := at.do("POST", "/api/run", "G28\n\n; comment\nG1 X10 F600\n")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, at.p.Stats().Lines)

	resp = at.do("POST", "/api/clear", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var res map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, 2, res["cleared"])
	assert.Equal(t, 0, at.p.Stats().Lines)
}

func TestAPI_PrintAndState(t *testing.T) {
	at := newAPITest(t)

	resp := at.do("POST", "/api/print/jobs/part.gcode", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = at.do("GET", "/api/state", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var st struct {
		Pipeline struct {
			State string `json:"state"`
			Files int    `json:"files"`
		} `json:"pipeline"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "channels-ready", st.Pipeline.State)
	assert.Equal(t, 1, st.Pipeline.Files)
}

func TestAPI_Data(t *testing.T) {
	at := newAPITest(t)

	resp := at.do("PUT", "/data/jobs/part.gcode", "G28\n")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := os.ReadFile(filepath.Join(at.root, "jobs", "part.gcode"))
	require.NoError(t, err)
	assert.Equal(t, "G28\n", string(data))

	resp = at.do("GET", "/data/jobs/part.gcode", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := ioutil.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "G28\n", string(body))

	resp = at.do("DELETE", "/data/jobs/part.gcode", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_, err = os.Stat(filepath.Join(at.root, "jobs", "part.gcode"))
	assert.True(t, os.IsNotExist(err))

	resp = at.do("DELETE", "/data/jobs/part.gcode", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_Console(t *testing.T) {
	at := newAPITest(t)
	require.NoError(t, os.WriteFile(filepath.Join(at.root, "part.gcode"), []byte("G28\n"), 0644))

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(at.srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("LIST_SD\nG28")))
	for _, want := range []string{"File: part.gcode", "OK: File list completed", "OK: Command queued"} {
		_, data, err := ws.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, want, string(data))
	}
}
