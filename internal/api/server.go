// Package api provides the clusterplug HTTP server: controller status,
// tunable reads and writes, manual power transitions, the event journal,
// health and Prometheus metrics.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"

	"github.com/clusterplug/clusterplug/internal/app/hotplug"
	"github.com/clusterplug/clusterplug/internal/domain"
	"github.com/clusterplug/clusterplug/internal/health"
	"github.com/clusterplug/clusterplug/internal/infra/sqlite"
)

// Controller is the slice of the hotplug controller the API drives.
type Controller interface {
	Status() hotplug.Status
	Tunables() *hotplug.Tunables
	OnSuspend()
	OnResume()
}

// Journal reads events and persists operator tunable writes.
// Implemented by sqlite.DB.
type Journal interface {
	ListEvents(f sqlite.EventFilter) ([]domain.Event, error)
	GetEvent(id string) (domain.Event, error)
	SetTunable(name, value string) error
	DeleteTunable(name string) error
}

// NodeInfo lists the facts the daemon recorded about this node.
// Implemented by sqlite.DB.
type NodeInfo interface {
	ListNodeInfo() (map[string]string, error)
}

// HealthReporter is implemented by health.Checker.
type HealthReporter interface {
	Statuses() []health.Status
	IsHealthy() bool
}

// TempReader is implemented by resource.ThermalMonitor.
type TempReader interface {
	CPUTemp() float64
}

// Server is the clusterplug HTTP API server.
type Server struct {
	ctrl           Controller
	journal        Journal
	node           NodeInfo
	health         HealthReporter
	thermal        TempReader
	version        string
	metricsEnabled bool
}

// NewServer creates a new API server.
func NewServer(ctrl Controller) *Server {
	return &Server{ctrl: ctrl, version: "dev"}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetJournal enables the event endpoints and tunable persistence.
func (s *Server) SetJournal(j Journal) { s.journal = j }

// SetNodeInfo adds the recorded node facts to /api/version.
func (s *Server) SetNodeInfo(n NodeInfo) { s.node = n }

// SetHealth reports health checker results on /health.
func (s *Server) SetHealth(h HealthReporter) { s.health = h }

// SetThermal adds the CPU temperature to /api/status.
func (s *Server) SetThermal(t TempReader) { s.thermal = t }

// SetVersion sets the version reported on /api/version.
func (s *Server) SetVersion(v string) { s.version = v }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(requestLog)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/version", s.handleVersion)

		r.Get("/tunables", s.handleListTunables)
		r.Get("/tunables/{name}", s.handleGetTunable)
		r.Put("/tunables/{name}", s.handleSetTunable)
		r.Delete("/tunables/{name}", s.handleForgetTunable)

		r.Post("/power/suspend", func(w http.ResponseWriter, r *http.Request) {
			s.ctrl.OnSuspend()
			writeJSON(w, http.StatusOK, map[string]bool{"suspended": true})
		})
		r.Post("/power/resume", func(w http.ResponseWriter, r *http.Request) {
			s.ctrl.OnResume()
			writeJSON(w, http.StatusOK, map[string]bool{"suspended": false})
		})

		r.Get("/events", s.handleListEvents)
		r.Get("/events/{id}", s.handleGetEvent)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Health & Status ────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.health.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"checks": s.health.Statuses(),
	})
}

// statusResponse is the controller status plus host readings.
type statusResponse struct {
	hotplug.Status
	Version string   `json:"version"`
	CPUTemp *float64 `json:"cpu_temp_c,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Status: s.ctrl.Status(), Version: s.version}
	if s.thermal != nil {
		t := s.thermal.CPUTemp()
		resp.CPUTemp = &t
	}
	writeJSON(w, http.StatusOK, resp)
}

type versionResponse struct {
	Version string            `json:"version"`
	Node    map[string]string `json:"node,omitempty"`
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	resp := versionResponse{Version: s.version}
	if s.node != nil {
		info, err := s.node.ListNodeInfo()
		if err != nil {
			klog.ErrorS(err, "Reading node info failed")
		}
		resp.Node = info
	}
	writeJSON(w, http.StatusOK, resp)
}

// ─── Tunables ───────────────────────────────────────────────────────────────

type tunableValue struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Persisted bool   `json:"persisted,omitempty"`
}

func (s *Server) handleListTunables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Tunables().All())
}

func (s *Server) handleGetTunable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	v, err := s.ctrl.Tunables().Get(name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tunableValue{Name: name, Value: v})
}

func (s *Server) handleSetTunable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req struct {
		Value *string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Value == nil {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}

	t := s.ctrl.Tunables()
	if err := t.Set(name, *req.Value); err != nil {
		writeDomainError(w, err)
		return
	}
	// Read back the normalized form ("on" becomes "true").
	v, _ := t.Get(name)
	resp := tunableValue{Name: name, Value: v}
	if s.journal != nil {
		if err := s.journal.SetTunable(name, v); err != nil {
			klog.ErrorS(err, "Persisting tunable failed", "name", name)
		} else {
			resp.Persisted = true
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleForgetTunable drops a persisted override. The running value is
// kept until restart, when the config file value applies again.
func (s *Server) handleForgetTunable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, err := s.ctrl.Tunables().Get(name); err != nil {
		writeDomainError(w, err)
		return
	}
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "tunable persistence is disabled")
		return
	}
	if err := s.journal.DeleteTunable(name); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Events ─────────────────────────────────────────────────────────────────

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "event journal is disabled")
		return
	}

	q := r.URL.Query()
	f := sqlite.EventFilter{Kind: domain.EventKind(q.Get("kind"))}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		f.Limit = n
	}
	if v := q.Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		f.Since = ts
	}

	events, err := s.journal.ListEvents(f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "event journal is disabled")
		return
	}
	e, err := s.journal.GetEvent(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    "error",
		},
	})
}

// writeDomainError maps sentinel errors to status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnknownTunable), errors.Is(err, domain.ErrEventNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidTunable):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// requestLog logs each request at V(4).
func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		klog.V(4).InfoS("HTTP request", "method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "duration", time.Since(start),
			"requestID", middleware.GetReqID(r.Context()))
	})
}
