// Package httpapi exposes the poll coordinator's state over HTTP: health,
// the latest snapshot, and a live websocket feed.
package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/easun/isolar-poller/models"
)

// SnapshotSource is the minimal surface the status endpoints need.
type SnapshotSource interface {
	LastSnapshot() (*models.Snapshot, error)
}

// Server wires the gorilla/mux router and rs/cors middleware the way the
// teacher's main.go wires its own HTTP surface.
type Server struct {
	router *mux.Router
	source SnapshotSource
	hub    *Hub
}

// NewServer builds the router: /healthz, /snapshot, /status and /ws.
func NewServer(source SnapshotSource, hub *Hub) *Server {
	s := &Server{router: mux.NewRouter(), source: source, hub: hub}
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.HandleFunc("/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", hub.handleWebsocket)
	return s
}

// Handler returns the fully wrapped handler (recovery, logging, CORS).
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	})
	return recoverMiddleware(loggingMiddleware(c.Handler(s.router)))
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.source.LastSnapshot()
	if snap == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "no snapshot yet")
		return
	}
	writeJSON(w, http.StatusOK, snap)
	_ = err
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.source.LastSnapshot()
	status := struct {
		HasSnapshot bool      `json:"has_snapshot"`
		LastError   string    `json:"last_error,omitempty"`
		CheckedAt   time.Time `json:"checked_at"`
	}{
		HasSnapshot: snap != nil,
		CheckedAt:   time.Now(),
	}
	if err != nil {
		status.LastError = err.Error()
	}
	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("⚠️ encode response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// recoverMiddleware catches panics from handlers and responds 500, mirroring
// the teacher's own recoverMiddleware.
func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("❌ panic handling %s %s: %v", r.Method, r.URL.Path, rec)
				writeJSONError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware logs method, path, status and duration per request.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		log.Printf("ℹ️ %s %s -> %d (%s)", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}
