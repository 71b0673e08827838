package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/jononovo/5ducksperday-sub010/internal/journal"
	"github.com/jononovo/5ducksperday-sub010/internal/pipeline"
	"github.com/jononovo/5ducksperday-sub010/internal/provider"
	"github.com/jononovo/5ducksperday-sub010/internal/runtime"
)

// DefaultQueue is used when a request names no queue.
const DefaultQueue = "email_enrichment"

type Server struct {
	rt  *runtime.Runtime
	srv *http.Server
	lis net.Listener
}

func New(rt *runtime.Runtime) *Server {
	mux := http.NewServeMux()
	s := &Server{rt: rt, srv: &http.Server{Handler: cors(mux)}}
	mux.HandleFunc("/v1/healthz", s.handleHealth)
	mux.HandleFunc("/v1/batches/submit", s.handleSubmit)
	mux.HandleFunc("/v1/batches/enqueue", s.handleEnqueue)
	mux.HandleFunc("/v1/batches/status", s.handleStatus)
	mux.HandleFunc("/v1/batches/wait", s.handleWait)
	mux.HandleFunc("/v1/batches/cancel", s.handleCancel)
	mux.HandleFunc("/v1/batches/recent", s.handleRecent)
	mux.HandleFunc("/v1/batches/events", s.handleEvents)
	mux.HandleFunc("/v1/queues/depth", s.handleDepth)
	return s
}

// Handler exposes the routed handler; used by tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.CheckHealth(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "not_serving"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "storage": s.rt.StorageStats()})
}

type submitReq struct {
	Queue     string                     `json:"queue"`
	BatchID   string                     `json:"batchId"`
	Priority  int32                      `json:"priority"`
	TimeoutMs int64                      `json:"timeoutMs"`
	Filter    string                     `json:"filter"`
	Contacts  []provider.ContactIdentity `json:"contacts"`
}

// waitResp wraps a result with flags for the non-happy terminal paths, so a
// partial result on timeout stays distinguishable from a finished one.
type waitResp struct {
	*pipeline.BatchEnrichmentResult
	TimedOut  bool `json:"timedOut,omitempty"`
	Cancelled bool `json:"cancelled,omitempty"`
}

func (s *Server) pipelineFor(w http.ResponseWriter, queue string) *pipeline.Pipeline {
	if queue == "" {
		queue = DefaultQueue
	}
	p, err := s.rt.OpenPipeline(queue)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return nil
	}
	return p
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req submitReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	p := s.pipelineFor(w, req.Queue)
	if p == nil {
		return
	}
	res, err := p.SubmitBatch(r.Context(), req.Contacts, pipeline.SubmitOptions{
		BatchID:  req.BatchID,
		Priority: req.Priority,
		Timeout:  time.Duration(req.TimeoutMs) * time.Millisecond,
		Filter:   req.Filter,
	})
	writeResult(w, res, err)
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req submitReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	p := s.pipelineFor(w, req.Queue)
	if p == nil {
		return
	}
	batchID, summary, err := p.EnqueueAsync(r.Context(), req.Contacts, pipeline.SubmitOptions{
		BatchID:  req.BatchID,
		Priority: req.Priority,
		Filter:   req.Filter,
	})
	if errors.Is(err, pipeline.ErrNoContacts) || errors.Is(err, pipeline.ErrInvalidBatchID) || errors.Is(err, pipeline.ErrInvalidContactID) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"batchId":  batchID,
		"inserted": summary.Inserted,
		"updated":  summary.Updated,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.pipelineFor(w, r.URL.Query().Get("queue"))
	if p == nil {
		return
	}
	st, err := p.GetBatchStatus(r.URL.Query().Get("batch"))
	if errors.Is(err, pipeline.ErrBatchNotFound) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(st)
}

func (s *Server) handleWait(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.pipelineFor(w, r.URL.Query().Get("queue"))
	if p == nil {
		return
	}
	timeoutMs, _ := strconv.ParseInt(r.URL.Query().Get("timeoutMs"), 10, 64)
	if timeoutMs <= 0 {
		timeoutMs = 30_000
	}
	res, err := p.WaitForBatch(r.Context(), r.URL.Query().Get("batch"), time.Duration(timeoutMs)*time.Millisecond)
	writeResult(w, res, err)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Queue   string `json:"queue"`
		BatchID string `json:"batchId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	p := s.pipelineFor(w, req.Queue)
	if p == nil {
		return
	}
	err := p.CancelBatch(r.Context(), req.BatchID)
	if errors.Is(err, pipeline.ErrBatchNotFound) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.pipelineFor(w, r.URL.Query().Get("queue"))
	if p == nil {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	recent, err := p.RecentBatches(limit)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"batches": recent})
}

// handleEvents serves the transition journal: all recent item transitions
// for a queue, or those of one batch when ?batch= is given.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	queue := r.URL.Query().Get("queue")
	if queue == "" {
		queue = DefaultQueue
	}
	j, err := s.rt.OpenJournal(queue)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if j == nil {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "journal disabled"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	var entries []journal.Entry
	if batch := r.URL.Query().Get("batch"); batch != "" {
		entries, err = j.ForBatch(batch, limit)
	} else {
		entries, err = j.Recent(limit)
	}
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"events": entries})
}

func (s *Server) handleDepth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.pipelineFor(w, r.URL.Query().Get("queue"))
	if p == nil {
		return
	}
	pending, processing := p.Depth()
	_ = json.NewEncoder(w).Encode(map[string]int{"pending": pending, "processing": processing})
}

func writeResult(w http.ResponseWriter, res *pipeline.BatchEnrichmentResult, err error) {
	switch {
	case err == nil:
		_ = json.NewEncoder(w).Encode(waitResp{BatchEnrichmentResult: res})
	case errors.Is(err, pipeline.ErrTimeout):
		_ = json.NewEncoder(w).Encode(waitResp{BatchEnrichmentResult: res, TimedOut: true})
	case errors.Is(err, pipeline.ErrCancelled):
		_ = json.NewEncoder(w).Encode(waitResp{BatchEnrichmentResult: res, Cancelled: true})
	case errors.Is(err, pipeline.ErrBatchNotFound):
		w.WriteHeader(http.StatusNotFound)
	case errors.Is(err, pipeline.ErrInvalidBatchID), errors.Is(err, pipeline.ErrInvalidContactID):
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
	default:
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
	}
}
