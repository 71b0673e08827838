package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	cfgpkg "github.com/jononovo/5ducksperday-sub010/internal/config"
	"github.com/jononovo/5ducksperday-sub010/internal/runtime"
	pebblestore "github.com/jononovo/5ducksperday-sub010/internal/storage/pebble"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.Queue.PollIntervalMs = 10
	rt, err := runtime.Open(runtime.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever, Config: cfg})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return New(rt)
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t)
	w := do(t, s, http.MethodGet, "/v1/healthz", "")
	if w.Code != 200 {
		t.Fatalf("status: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"storage"`) {
		t.Fatalf("body: %s", w.Body.String())
	}
}

func TestSubmitHandlerBlocking(t *testing.T) {
	s := newTestServer(t)
	body := `{"batchId":"b1","timeoutMs":10000,"contacts":[
		{"contactId":1,"firstName":"Ada","lastName":"Lovelace","companyDomain":"acme.test"},
		{"contactId":2,"firstName":"Grace","lastName":"Hopper","companyDomain":"acme.test"}
	]}`
	w := do(t, s, http.MethodPost, "/v1/batches/submit", body)
	if w.Code != 200 {
		t.Fatalf("status: %d body: %s", w.Code, w.Body.String())
	}
	var res struct {
		BatchID        string `json:"batchId"`
		TotalProcessed int    `json:"totalProcessed"`
		SuccessCount   int    `json:"successCount"`
		TimedOut       bool   `json:"timedOut"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.BatchID != "b1" || res.TotalProcessed != 2 || res.SuccessCount != 2 || res.TimedOut {
		t.Fatalf("result = %+v", res)
	}
}

func TestEnqueueStatusWaitFlow(t *testing.T) {
	s := newTestServer(t)
	body := `{"batchId":"b1","contacts":[{"contactId":1,"firstName":"Ada","lastName":"Lovelace","companyDomain":"acme.test"}]}`
	w := do(t, s, http.MethodPost, "/v1/batches/enqueue", body)
	if w.Code != http.StatusAccepted {
		t.Fatalf("enqueue status: %d body: %s", w.Code, w.Body.String())
	}
	var ack struct {
		BatchID  string `json:"batchId"`
		Inserted int    `json:"inserted"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.BatchID != "b1" || ack.Inserted != 1 {
		t.Fatalf("ack = %+v", ack)
	}

	w = do(t, s, http.MethodGet, "/v1/batches/wait?batch=b1&timeoutMs=10000", "")
	if w.Code != 200 {
		t.Fatalf("wait status: %d", w.Code)
	}
	var res struct {
		SuccessCount int  `json:"successCount"`
		TimedOut     bool `json:"timedOut"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode wait: %v", err)
	}
	if res.SuccessCount != 1 || res.TimedOut {
		t.Fatalf("wait result = %+v", res)
	}

	w = do(t, s, http.MethodGet, "/v1/batches/status?batch=b1", "")
	if w.Code != 200 {
		t.Fatalf("status: %d", w.Code)
	}
	var st struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.Status != "completed" {
		t.Fatalf("batch status = %q", st.Status)
	}

	w = do(t, s, http.MethodGet, "/v1/batches/recent?limit=5", "")
	if w.Code != 200 || !strings.Contains(w.Body.String(), `"b1"`) {
		t.Fatalf("recent: %d %s", w.Code, w.Body.String())
	}
}

func TestEventsHandler(t *testing.T) {
	s := newTestServer(t)
	body := `{"batchId":"b1","timeoutMs":10000,"contacts":[{"contactId":1,"firstName":"Ada","lastName":"Lovelace","companyDomain":"acme.test"}]}`
	if w := do(t, s, http.MethodPost, "/v1/batches/submit", body); w.Code != 200 {
		t.Fatalf("submit: %d %s", w.Code, w.Body.String())
	}

	w := do(t, s, http.MethodGet, "/v1/batches/events?batch=b1", "")
	if w.Code != 200 {
		t.Fatalf("events: %d %s", w.Code, w.Body.String())
	}
	var res struct {
		Events []struct {
			BatchID string `json:"batchId"`
			To      string `json:"to"`
		} `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// One contact: pending->processing then processing->succeeded, newest first.
	if len(res.Events) != 2 || res.Events[0].To != "succeeded" || res.Events[1].To != "processing" {
		t.Fatalf("events = %+v", res.Events)
	}
	for _, e := range res.Events {
		if e.BatchID != "b1" {
			t.Fatalf("batch id = %q", e.BatchID)
		}
	}
}

func TestEventsHandlerDisabled(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.Queue.JournalEnabled = false
	rt, err := runtime.Open(runtime.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever, Config: cfg})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	s := New(rt)
	if w := do(t, s, http.MethodGet, "/v1/batches/events", ""); w.Code != http.StatusNotFound {
		t.Fatalf("events: %d", w.Code)
	}
}

func TestStatusHandlerUnknownBatch(t *testing.T) {
	s := newTestServer(t)
	if w := do(t, s, http.MethodGet, "/v1/batches/status?batch=nope", ""); w.Code != http.StatusNotFound {
		t.Fatalf("status: %d", w.Code)
	}
}

func TestCancelHandler(t *testing.T) {
	s := newTestServer(t)
	if w := do(t, s, http.MethodPost, "/v1/batches/cancel", `{"batchId":"nope"}`); w.Code != http.StatusNotFound {
		t.Fatalf("cancel unknown: %d", w.Code)
	}
	do(t, s, http.MethodPost, "/v1/batches/enqueue",
		`{"batchId":"b1","contacts":[{"contactId":1,"firstName":"Ada","lastName":"Lovelace","companyDomain":"acme.test"}]}`)
	if w := do(t, s, http.MethodPost, "/v1/batches/cancel", `{"batchId":"b1"}`); w.Code != http.StatusNoContent {
		t.Fatalf("cancel: %d", w.Code)
	}
}

func TestEnqueueRejectsEmpty(t *testing.T) {
	s := newTestServer(t)
	if w := do(t, s, http.MethodPost, "/v1/batches/enqueue", `{"contacts":[]}`); w.Code != http.StatusBadRequest {
		t.Fatalf("status: %d", w.Code)
	}
}

func TestEnqueueRejectsBadInput(t *testing.T) {
	s := newTestServer(t)
	// Batch ids become key segments, so slashes are rejected at the API edge.
	body := `{"batchId":"a/b","contacts":[{"contactId":1,"firstName":"Ada","lastName":"Lovelace","companyDomain":"acme.test"}]}`
	if w := do(t, s, http.MethodPost, "/v1/batches/enqueue", body); w.Code != http.StatusBadRequest {
		t.Fatalf("slash batch id status: %d", w.Code)
	}
	body = `{"batchId":"b1","contacts":[{"contactId":-1,"firstName":"Ada","lastName":"Lovelace","companyDomain":"acme.test"}]}`
	if w := do(t, s, http.MethodPost, "/v1/batches/submit", body); w.Code != http.StatusBadRequest {
		t.Fatalf("negative contact id status: %d", w.Code)
	}
}

func TestDepthHandler(t *testing.T) {
	s := newTestServer(t)
	w := do(t, s, http.MethodGet, "/v1/queues/depth", "")
	if w.Code != 200 || !strings.Contains(w.Body.String(), `"pending"`) {
		t.Fatalf("depth: %d %s", w.Code, w.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t)
	if w := do(t, s, http.MethodGet, "/v1/batches/submit", ""); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status: %d", w.Code)
	}
}
