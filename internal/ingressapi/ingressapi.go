// Package ingressapi serves the local HTTP endpoint that accepts
// mega.nz URLs pushed from a browser bookmarklet or PWA share target:
// the core contract of health/urls/parse/bookmarklet, plus a set of
// companion endpoints for a web UI collaborator to hydrate state,
// stream events, and manage a running session.
package ingressapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nshenoy/megadl/internal/events"
	"github.com/nshenoy/megadl/internal/logging"
	"github.com/nshenoy/megadl/internal/session"
	"github.com/nshenoy/megadl/internal/urlextract"
)

// Enqueuer accepts newly-discovered URLs into the running download
// pipeline. internal/orchestrator.Queue wraps the actual resolution;
// the server only needs a narrow seam so it doesn't import the
// download stack directly.
type Enqueuer interface {
	Enqueue(urls []string) (added []string)
}

// SessionStore exposes the subset of session state the API surfaces
// to a web UI collaborator.
type SessionStore interface {
	Current() *session.State
	Pause() error
	Delete(path string) error
	Retry(path string) error
}

// Server implements the ingress API.
type Server struct {
	Enqueuer Enqueuer
	Sessions SessionStore
	Bus      *events.EventBus
	Logger   *logging.Logger
}

// NewServer builds a Server; bus may be nil (the /api/events endpoint
// then returns 503).
func NewServer(enq Enqueuer, store SessionStore, bus *events.EventBus, logger *logging.Logger) *Server {
	return &Server{Enqueuer: enq, Sessions: store, Bus: bus, Logger: logger}
}

// Router builds the chi router for the ingress API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(permissiveCORS)

	r.Get("/api/health", s.handleHealth)
	r.Post("/api/urls", s.handleURLs)
	r.Post("/api/parse", s.handleParse)
	r.Get("/bookmarklet", s.handleBookmarklet)

	r.Get("/api/state", s.handleState)
	r.Get("/api/events", s.handleEvents)
	r.Post("/api/pause", s.handlePause)
	r.Post("/api/delete", s.handleDelete)
	r.Post("/api/retry", s.handleRetry)

	return r
}

// permissiveCORS allows any origin, method, and header: the ingress
// intentionally accepts cross-site push from arbitrary webpages via a
// user-initiated bookmarklet, so there's no origin allowlist to
// enforce (spec.md §4.H).
func permissiveCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "*")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type urlsRequest struct {
	Text string `json:"text"`
}

type urlsResponse struct {
	Added []string `json:"added"`
	Count int      `json:"count"`
}

func (s *Server) handleURLs(w http.ResponseWriter, r *http.Request) {
	var req urlsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	found := urlextract.Extract(req.Text)
	added := s.Enqueuer.Enqueue(found)
	writeJSON(w, http.StatusOK, urlsResponse{Added: added, Count: len(added)})
}

type parseRequest struct {
	Page     string `json:"page"`
	Fallback string `json:"fallback"`
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	text := req.Page
	if text == "" {
		text = req.Fallback
	}

	found := urlextract.Extract(text)
	added := s.Enqueuer.Enqueue(found)
	writeJSON(w, http.StatusOK, urlsResponse{Added: added, Count: len(added)})
}

func (s *Server) handleBookmarklet(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(bookmarkletPage))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if s.Sessions == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no active session"})
		return
	}
	st := s.Sessions.Current()
	if st == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no active session"})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleEvents streams the event bus as Server-Sent Events: one JSON
// object per "data:" line, flushed as each event is published.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.Bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "event bus not available"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ch := s.Bus.SubscribeAll()
	defer s.Bus.UnsubscribeAll(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			if _, err := w.Write([]byte("data: ")); err != nil {
				return
			}
			if _, err := w.Write(payload); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if s.Sessions == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no active session"})
		return
	}
	if err := s.Sessions.Pause(); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

type pathRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.Sessions.Delete(req.Path); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.Sessions.Retry(req.Path); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "retrying"})
}

const bookmarkletPage = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>megadl bookmarklet</title></head>
<body>
<p>Drag this link to your bookmarks bar, then click it on any page containing mega.nz links:</p>
<a href="javascript:(function(){fetch('/api/parse',{method:'POST',headers:{'Content-Type':'application/json'},body:JSON.stringify({page:document.documentElement.outerHTML,fallback:location.href})}).then(function(r){return r.json()}).then(function(j){alert('megadl: added '+j.count+' link(s)')})})();">Send to megadl</a>
</body>
</html>
`

// ListenAndServe starts the ingress API on addr and blocks until the
// server stops or an unrecoverable error occurs.
func ListenAndServe(addr string, s *Server) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}
