package client

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func contactsFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contacts.json")
	data := `[{"contactId":1,"firstName":"Ada","lastName":"Lovelace","companyDomain":"acme.test"}]`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write contacts: %v", err)
	}
	return path
}

func TestBatchSubmitCommand(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{"batchId": "b1", "successCount": 1})
	}))
	defer srv.Close()

	root := NewRoot(func() string { return srv.URL })
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"batch", "submit", "--file", contactsFile(t), "--batch", "b1", "--priority", "5", "--timeout-ms", "1000"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if gotPath != "/v1/batches/submit" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotBody["batchId"] != "b1" || gotBody["priority"] != float64(5) || gotBody["timeoutMs"] != float64(1000) {
		t.Fatalf("body = %v", gotBody)
	}
	contacts, ok := gotBody["contacts"].([]any)
	if !ok || len(contacts) != 1 {
		t.Fatalf("contacts = %v", gotBody["contacts"])
	}
	if !bytes.Contains(out.Bytes(), []byte(`"successCount": 1`)) {
		t.Fatalf("output = %s", out.String())
	}
}

func TestBatchStatusCommand(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(map[string]any{"batchId": "b1", "status": "processing"})
	}))
	defer srv.Close()

	root := NewRoot(func() string { return srv.URL })
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"batch", "status", "--batch", "b1", "--queue", "post_search"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if gotQuery != "batch=b1&queue=post_search" {
		t.Fatalf("query = %q", gotQuery)
	}
}

func TestBatchCancelCommandErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	root := NewRoot(func() string { return srv.URL })
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"batch", "cancel", "--batch", "nope"})
	if err := root.Execute(); err == nil {
		t.Fatal("cancel of unknown batch must surface the error status")
	}
}

func TestSubmitRejectsNonArrayFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.json")
	if err := os.WriteFile(path, []byte(`{"contactId":1}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	root := NewRoot(func() string { return "http://127.0.0.1:1" })
	root.SetArgs([]string{"batch", "enqueue", "--file", path})
	if err := root.Execute(); err == nil {
		t.Fatal("non-array contacts file must fail before any request")
	}
}
