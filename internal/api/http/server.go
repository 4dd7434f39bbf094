// Package http serves the monitor's HTTP API: health, Prometheus metrics,
// the session snapshot and incident report submission.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oshokin/breathe-tracking/internal/domain/incident"
	"github.com/oshokin/breathe-tracking/internal/logger"
	"github.com/oshokin/breathe-tracking/internal/session"
)

// maxBodyBytes bounds report submissions.
const maxBodyBytes = 64 << 10

// Reporter submits incident reports.
type Reporter interface {
	ReportIncident(ctx context.Context, draft incident.Draft) (*incident.Incident, error)
	DisconnectionDraft(ctx context.Context) (incident.Draft, error)
}

// Session exposes the latest published values.
type Session interface {
	Snapshot() map[string]session.Value
	Latest(name string) (session.Value, bool)
}

// Deps are the handlers' collaborators.
// Without Session or Reporter the matching /api/v1 routes are not served.
type Deps struct {
	Reporter Reporter
	Session  Session
	// Gatherer backs /metrics; nil means the default registry.
	Gatherer prometheus.Gatherer
}

// Server exposes the HTTP endpoints of the monitor.
type Server struct {
	httpServer *http.Server
	deps       Deps
}

// NewServer creates the server and its routes.
func NewServer(addr string, deps Deps) *Server {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{deps: deps}

	router := mux.NewRouter()
	router.Use(logRequests)

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()

	if deps.Session != nil {
		api.HandleFunc("/session", s.handleSnapshot).Methods(http.MethodGet)
		api.HandleFunc("/session/{channel}", s.handleChannel).Methods(http.MethodGet)
	}

	if deps.Reporter != nil {
		api.HandleFunc("/incidents/draft", s.handleDraft).Methods(http.MethodGet)
		api.HandleFunc("/incidents", s.handleReport).Methods(http.MethodPost)
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start listens until Shutdown. It returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	logger.Infof(context.Background(), "HTTP server listening on %s", s.httpServer.Addr)

	return s.httpServer.ListenAndServe()
}

// Shutdown drains connections within the ctx deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Session.Snapshot())
}

func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["channel"]

	v, ok := s.deps.Session.Latest(name)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("no value published on "+name))

		return
	}

	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := s.deps.Reporter.DisconnectionDraft(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)

		return
	}

	writeJSON(w, http.StatusOK, toDraftBody(draft))
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var body draftBody

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)

		return
	}

	created, err := s.deps.Reporter.ReportIncident(r.Context(), body.draft())

	switch {
	case errors.Is(err, incident.ErrIncompleteReport):
		writeError(w, http.StatusBadRequest, err)
	case created == nil && err != nil:
		logger.ErrorKV(r.Context(), "Report submission failed", "error", err)
		writeError(w, http.StatusBadGateway, err)
	default:
		// The incident exists even when watching it failed; the watch error is reported alongside.
		resp := incidentBody{
			ID:        created.ID,
			SensorID:  created.SensorID,
			Title:     created.Title,
			Message:   created.Message,
			Location:  created.Location,
			Status:    string(created.Status),
			CreatedAt: created.CreatedAt,
		}

		if err != nil {
			resp.WatchError = err.Error()
		}

		writeJSON(w, http.StatusCreated, resp)
	}
}

type draftBody struct {
	SensorID string `json:"sensor_id,omitempty"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Location string `json:"location,omitempty"`
}

func toDraftBody(d incident.Draft) draftBody {
	return draftBody{SensorID: d.SensorID, Title: d.Title, Message: d.Message, Location: d.Location}
}

func (b draftBody) draft() incident.Draft {
	return incident.Draft{SensorID: b.SensorID, Title: b.Title, Message: b.Message, Location: b.Location}
}

type incidentBody struct {
	ID         string    `json:"id"`
	SensorID   string    `json:"sensor_id"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	Location   string    `json:"location"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	WatchError string    `json:"watch_error,omitempty"`
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()

		next.ServeHTTP(w, r)

		logger.DebugKV(r.Context(), "HTTP request served",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(started))
	})
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck,gosec // best-effort response
}
