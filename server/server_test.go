package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/somaflow/somaflow/compute"
	"github.com/somaflow/somaflow/config"
	"github.com/somaflow/somaflow/database/inmem"
	"github.com/somaflow/somaflow/engine"
	"github.com/somaflow/somaflow/logger"
	"github.com/somaflow/somaflow/server"
	"github.com/somaflow/somaflow/transfer"
	"github.com/somaflow/somaflow/wf"
)

// stubBackend reports every submitted task with a fixed state.
type stubBackend struct {
	mtx   sync.Mutex
	state compute.State
	seen  map[string]bool
}

func (s *stubBackend) Submit(ctx context.Context, task *compute.Task) (string, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.seen[task.ID] = true
	return task.ID, nil
}

func (s *stubBackend) Status(ctx context.Context, backendID string) (compute.State, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if !s.seen[backendID] {
		return compute.StateUnknown, nil
	}
	return s.state, nil
}

func (s *stubBackend) Cancel(ctx context.Context, backendID string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.state = compute.StateCanceled
	return nil
}

func testServer(t *testing.T, state compute.State) (*httptest.Server, *engine.Engine) {
	t.Helper()
	conf := config.DefaultConfig()
	conf.Database = "inmem"
	conf.Scheduler.TickRate = config.Duration(time.Millisecond * 10)
	conf.Monitor.PollRate = config.Duration(time.Millisecond * 10)
	conf.Monitor.PollLimit = 10000
	conf.DefaultResource = "test"
	conf.Resources = map[string]config.Resource{
		"test": {Backend: "noop", WorkDir: t.TempDir()},
	}

	store := inmem.NewInMem()
	log := logger.NewDiscard()
	eng := engine.New(conf, store,
		map[string]compute.Backend{"test": &stubBackend{state: state, seen: map[string]bool{}}},
		transfer.NewService(log), store, log)

	srv := server.DefaultServer(eng, conf, log)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, eng
}

func submitBody(t *testing.T, w *wf.Workflow) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(w)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func simpleWorkflow() *wf.Workflow {
	w := wf.NewWorkflow("simple")
	w.AddJob(&wf.Job{ID: "j1", Command: []string{"echo", "hi"}})
	return w
}

func TestSubmitStatusDelete(t *testing.T) {
	ts, eng := testServer(t, compute.StateComplete)
	ctx := context.Background()

	resp, err := http.Post(ts.URL+"/v1/workflows", "application/json",
		submitBody(t, simpleWorkflow()))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sub server.SubmitResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sub))
	resp.Body.Close()
	require.NotEmpty(t, sub.ID)

	require.NoError(t, eng.Wait(ctx, []string{sub.ID}, time.Second*5))

	resp, err = http.Get(ts.URL + "/v1/workflows/" + sub.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status engine.WorkflowStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	require.Equal(t, engine.WorkflowDone, status.State)
	require.Len(t, status.Nodes, 1)

	// The definition and event log are served too.
	resp, err = http.Get(ts.URL + "/v1/workflows/" + sub.ID + "/definition")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/v1/workflows/" + sub.ID + "/events")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/workflows/"+sub.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/v1/workflows/" + sub.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestSubmitRejectsBadWorkflow(t *testing.T) {
	ts, _ := testServer(t, compute.StateComplete)

	// Malformed JSON.
	resp, err := http.Post(ts.URL+"/v1/workflows", "application/json",
		bytes.NewBufferString("{nope"))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Dependency cycle.
	w := wf.NewWorkflow("cyclic")
	w.AddJob(&wf.Job{ID: "a", Command: []string{"x"}, Depends: []string{"b"}})
	w.AddJob(&wf.Job{ID: "b", Command: []string{"x"}, Depends: []string{"a"}})
	resp, err = http.Post(ts.URL+"/v1/workflows", "application/json", submitBody(t, w))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestControlOps(t *testing.T) {
	ts, eng := testServer(t, compute.StateRunning)
	ctx := context.Background()

	resp, err := http.Post(ts.URL+"/v1/workflows", "application/json",
		submitBody(t, simpleWorkflow()))
	require.NoError(t, err)
	var sub server.SubmitResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sub))
	resp.Body.Close()

	// Deleting a workflow with work in flight conflicts.
	deadline := time.Now().Add(time.Second * 5)
	for {
		s, err := eng.Status(ctx, sub.ID)
		require.NoError(t, err)
		if s.State == engine.WorkflowActive && s.Counts["RUNNING"] > 0 {
			break
		}
		require.True(t, time.Now().Before(deadline), "j1 never ran")
		time.Sleep(time.Millisecond * 10)
	}
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/workflows/"+sub.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Post(ts.URL+"/v1/workflows/"+sub.ID+"/kill", "", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	require.NoError(t, eng.Wait(ctx, []string{sub.ID}, time.Second*5))

	s, err := eng.Status(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, engine.WorkflowKilled, s.State)
}

func TestNotFound(t *testing.T) {
	ts, _ := testServer(t, compute.StateComplete)

	resp, err := http.Get(ts.URL + "/v1/workflows/nope")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Post(ts.URL+"/v1/workflows/nope/stop", "", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthAndMetrics(t *testing.T) {
	ts, _ := testServer(t, compute.StateComplete)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
