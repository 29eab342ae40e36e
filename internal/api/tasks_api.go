package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tutu-network/shapeq/internal/domain"
	"github.com/tutu-network/shapeq/internal/infra/scheduler"
)

// ─── Scheduler control API (/api/*) ─────────────────────────────────────────

// statsProvider is implemented by both schedulers.
type statsProvider interface {
	Stats() scheduler.Stats
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (domain.Scheduler, bool) {
	mode := chi.URLParam(r, "mode")
	sch, ok := s.schedulers[mode]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("%v: %q", domain.ErrUnknownScheduler, mode))
		return nil, false
	}
	return sch, true
}

// --- /health ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
		return
	}
	statuses := s.checker.RunOnce(r.Context())
	status, code := "ok", http.StatusOK
	if !s.checker.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": statuses,
	})
}

// --- /api/catalog ---

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"kinds": s.catalog.Entries(),
	})
}

// --- /api/{mode}/tasks (submit) ---

type submitRequest struct {
	Kind string `json:"kind"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sch, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	kind, err := s.catalog.ParseKind(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := sch.Submit(kind)
	switch {
	case errors.Is(err, domain.ErrUnknownKind):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, domain.ErrSchedulerClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// --- /api/{mode}/state ---

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	sch, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sch.Snapshot())
}

// --- /api/{mode}/stats ---

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	sch, ok := s.lookup(w, r)
	if !ok {
		return
	}
	st, ok := sch.(statsProvider)
	if !ok {
		writeError(w, http.StatusNotFound, "stats not available")
		return
	}
	writeJSON(w, http.StatusOK, st.Stats())
}

// --- /api/{mode}/history ---

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sch, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if s.journal == nil {
		writeError(w, http.StatusNotFound, domain.ErrJournalDisabled.Error())
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	rows, err := s.journal.History(r.Context(), sch.Name(), limit)
	if err != nil {
		s.logger.Error("history query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"scheduler": sch.Name(),
		"events":    rows,
	})
}

// --- /api/{mode}/events (SSE) ---

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sch, ok := s.lookup(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Subscribe before reading the snapshot so no transition falls between.
	events, unsubscribe := sch.Subscribe(0)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeSSE(w, "init", sch.Snapshot())
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				writeSSE(w, "closed", map[string]string{"scheduler": sch.Name()})
				flusher.Flush()
				return
			}
			writeSSE(w, string(ev.Type), ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, v interface{}) {
	data, _ := json.Marshal(v)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
