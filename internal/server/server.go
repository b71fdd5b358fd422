// Package server exposes the engine to a host over HTTP.
//
// Routes:
//
//	GET    /healthz
//	GET    /api/v1/status
//	POST   /api/v1/render                      render a pipeline into an embed point
//	GET    /api/v1/instances/{doc}/{embed}     current HTML of a live instance
//	DELETE /api/v1/instances/{doc}/{embed}     dispose a live instance
//	POST   /api/v1/events                      publish a host event
//	GET    /api/v1/events/ws                   stream host events over a websocket
//	GET    /metrics                            Prometheus metrics, when enabled
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/frostime/sy-query-view/pkg/buildinfo"
	"github.com/frostime/sy-query-view/pkg/errors"
	"github.com/frostime/sy-query-view/pkg/events"
	"github.com/frostime/sy-query-view/pkg/queryview"
)

// maxBody limits request bodies.
const maxBody = 1 << 20

// Config wires a [Server].
type Config struct {
	Manager *queryview.Manager
	Bus     *events.Bus

	// Bridge, when set, carries published events to every process
	// subscribed to the channel instead of the local bus alone.
	Bridge *events.RedisBridge

	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler

	// AllowedOrigins lists the browser origins, besides the server's own
	// host, that may open the event stream. "*" admits any origin.
	AllowedOrigins []string

	Logger *log.Logger
}

// Server is the host API.
type Server struct {
	manager *queryview.Manager
	bus     *events.Bus
	bridge  *events.RedisBridge
	metrics http.Handler
	origins []string
	logger  *log.Logger
	started time.Time
}

// New creates a server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	bus := cfg.Bus
	if bus == nil {
		bus = events.NewBus(logger)
	}
	return &Server{
		manager: cfg.Manager,
		bus:     bus,
		bridge:  cfg.Bridge,
		metrics: cfg.Metrics,
		origins: cfg.AllowedOrigins,
		logger:  logger,
		started: time.Now(),
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/render", s.handleRender)
		r.Route("/instances/{doc}/{embed}", func(r chi.Router) {
			r.Get("/", s.handleInstance)
			r.Delete("/", s.handleDispose)
		})
		r.Post("/events", s.handleEvent)
		r.Get("/events/ws", s.handleEventStream)
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).Round(time.Microsecond))
	})
}

// =============================================================================
// Handlers
// =============================================================================

type statusResponse struct {
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	Documents int    `json:"documents"`
	Instances int    `json:"instances"`
	Listeners int    `json:"listeners"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := s.manager.Stats()
	writeJSON(w, http.StatusOK, statusResponse{
		Version:   buildinfo.Version,
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Documents: st.Documents,
		Instances: st.Instances,
		Listeners: s.bus.Subscribers(),
	})
}

// RenderRequest is the body of POST /api/v1/render.
type RenderRequest struct {
	DocID    string              `json:"doc_id"`
	EmbedID  string              `json:"embed_id"`
	Pipeline *queryview.Pipeline `json:"pipeline"`
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req RenderRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		writeError(w, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode render request"))
		return
	}
	if req.Pipeline == nil {
		writeError(w, errors.New(errors.ErrCodeInvalidInput, "render request has no pipeline"))
		return
	}
	if err := req.Pipeline.Validate(); err != nil {
		writeError(w, err)
		return
	}

	inst, err := s.manager.Render(r.Context(), req.DocID, req.EmbedID, nil, req.Pipeline.Script())
	if inst == nil {
		writeError(w, err)
		return
	}
	if err != nil {
		// The error is shown inline; the host still gets the surface.
		s.logger.Warn("pipeline failed", "doc", req.DocID, "embed", req.EmbedID, "err", err)
	}
	writeHTML(w, inst)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) *queryview.Instance {
	doc, embed := chi.URLParam(r, "doc"), chi.URLParam(r, "embed")
	inst := s.manager.Get(doc, embed)
	if inst == nil {
		writeError(w, errors.New(errors.ErrCodeNotFound, "no instance %s/%s", doc, embed))
	}
	return inst
}

func (s *Server) handleInstance(w http.ResponseWriter, r *http.Request) {
	if inst := s.lookup(w, r); inst != nil {
		writeHTML(w, inst)
	}
}

func (s *Server) handleDispose(w http.ResponseWriter, r *http.Request) {
	inst := s.lookup(w, r)
	if inst == nil {
		return
	}
	if err := inst.Dispose(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type publishResponse struct {
	Kind     events.Kind `json:"kind"`
	Handlers int         `json:"handlers"`
	Bridged  bool        `json:"bridged,omitempty"`
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var e events.Event
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&e); err != nil {
		writeError(w, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode event"))
		return
	}
	resp, err := s.publish(r.Context(), e)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// publish hands e to the bridge when one is configured, otherwise to the
// local bus.
func (s *Server) publish(ctx context.Context, e events.Event) (publishResponse, error) {
	if err := e.Validate(); err != nil {
		return publishResponse{}, err
	}
	if s.bridge != nil {
		if err := s.bridge.Publish(ctx, e); err != nil {
			return publishResponse{}, err
		}
		return publishResponse{Kind: e.Kind, Bridged: true}, nil
	}
	n, err := s.bus.Publish(ctx, e)
	return publishResponse{Kind: e.Kind, Handlers: n}, err
}

// =============================================================================
// Responses
// =============================================================================

type errorResponse struct {
	Error string      `json:"error"`
	Code  errors.Code `json:"code,omitempty"`
}

func statusFor(err error) int {
	switch errors.GetCode(err) {
	case errors.ErrCodeInvalidInput, errors.ErrCodeViewNotFound, errors.ErrCodeShapeMismatch:
		return http.StatusBadRequest
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeUnsupported:
		return http.StatusNotImplemented
	case errors.ErrCodeNetwork:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: errors.UserMessage(err), Code: errors.GetCode(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeHTML(w http.ResponseWriter, inst *queryview.Instance) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Queryview-Instance", inst.ID())
	inst.WriteHTML(w)
}
