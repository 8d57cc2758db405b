package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/doridoridoriand/connwatch/internal/state"
)

const shutdownTimeout = 5 * time.Second

// Server exposes /metrics, /status and /healthz.
type Server struct {
	gatherer    prometheus.Gatherer
	source      state.Source
	corsOrigins []string
	logger      *zap.Logger
}

// NewServer constructs a server. An empty corsOrigins allows every origin.
func NewServer(gatherer prometheus.Gatherer, source state.Source, corsOrigins []string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{gatherer: gatherer, source: source, corsOrigins: corsOrigins, logger: logger}
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if len(s.corsOrigins) == 0 {
		r.Use(cors.AllowAll().Handler)
	} else {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Get("/status", s.handleStatus)
	return r
}

type targetView struct {
	Name             string   `json:"name"`
	Address          string   `json:"address"`
	Group            string   `json:"group,omitempty"`
	Condition        string   `json:"condition"`
	Link             string   `json:"link"`
	AggregateDelayMs *float64 `json:"aggregateDelayMs"`
	Failures         int      `json:"failures"`
	Samples          int      `json:"samples"`
	WindowSize       int      `json:"windowSize"`
	LastStatus       string   `json:"lastStatus,omitempty"`
	LastDelayMs      *float64 `json:"lastDelayMs"`
	ObservedAt       *string  `json:"observedAt"`
}

type statusView struct {
	Seq     uint64       `json:"seq"`
	At      string       `json:"at"`
	Overall string       `json:"overallStatus"`
	Targets []targetView `json:"targets"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.source.Latest()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no probe has completed yet"})
		return
	}
	writeJSON(w, http.StatusOK, newStatusView(snap))
}

func newStatusView(snap state.Snapshot) statusView {
	view := statusView{
		Seq:     snap.Seq,
		At:      snap.At.UTC().Format(time.RFC3339Nano),
		Overall: string(snap.Overall),
		Targets: make([]targetView, 0, len(snap.Targets)),
	}
	for _, t := range snap.Targets {
		c := t.Classification
		tv := targetView{
			Name:       t.Name,
			Address:    t.Address,
			Group:      t.Group,
			Condition:  string(c.Condition),
			Link:       string(c.Link),
			Failures:   c.FailureCount,
			Samples:    c.Samples,
			WindowSize: t.WindowSize,
			LastStatus: string(t.LastStatus),
		}
		if ms, ok := c.AggregateDelayMillis(); ok {
			tv.AggregateDelayMs = &ms
		}
		if t.HasLastDelay {
			ms := float64(t.LastDelay) / float64(time.Millisecond)
			tv.LastDelayMs = &ms
		}
		if t.Probed() {
			at := t.LastObservedAt.UTC().Format(time.RFC3339Nano)
			tv.ObservedAt = &at
		}
		view.Targets = append(view.Targets, tv)
	}
	return view
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Serve starts an HTTP server and blocks until context cancellation.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	logger.Info("metrics listener started", zap.String("addr", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return context.Canceled
		}
		return err
	}
}
