// Package server exposes the live robot status over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/HerbHall/amrwatch/internal/event"
	"github.com/HerbHall/amrwatch/internal/status"
	"github.com/HerbHall/amrwatch/internal/store"
	"github.com/HerbHall/amrwatch/internal/tracker"
	"github.com/HerbHall/amrwatch/internal/version"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// streamBuffer is the number of updates queued per WebSocket client before
// updates are dropped for that client.
const streamBuffer = 64

// EventLister reads mirrored transitions.
type EventLister interface {
	ListEvents(ctx context.Context, robot string) ([]store.StoredEvent, error)
}

// StateSource reports the tracked state of every robot.
type StateSource interface {
	Snapshot() []tracker.TargetState
}

// Server is the AMRWatch status API.
type Server struct {
	httpServer *http.Server
	board      *status.Board
	bus        *event.Bus
	events     EventLister
	states     StateSource
	logger     *zap.Logger
	mux        *http.ServeMux
}

// Option customizes a Server.
type Option func(*Server)

// WithEvents enables the transition history endpoint.
func WithEvents(events EventLister) Option {
	return func(s *Server) { s.events = events }
}

// WithStates enables the tracked state endpoint.
func WithStates(states StateSource) Option {
	return func(s *Server) { s.states = states }
}

// WithMetrics mounts the Prometheus handler for gatherer at /metrics.
func WithMetrics(gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
}

// New creates a new Server instance.
func New(addr string, board *status.Board, bus *event.Bus, logger *zap.Logger, opts ...Option) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		board:  board,
		bus:    bus,
		logger: logger,
		mux:    mux,
	}

	s.registerRoutes()
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/v1/status/{robot}", s.handleRobot)
	s.mux.HandleFunc("GET /api/v1/states", s.handleStates)
	s.mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/v1/stream", s.handleStream)
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-AMRWatch-Version", version.Short())
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":  "ok",
		"service": "amrwatch",
		"version": version.Current(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.board.Snapshot())
}

func (s *Server) handleRobot(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("robot")
	for _, row := range s.board.Snapshot().Rows {
		if row.Name == name {
			writeJSON(w, row)
			return
		}
	}
	unknownRobot(w, r, name)
}

// robotState is a robot's tracked state and when it was entered.
type robotState struct {
	Name    string     `json:"name"`
	Address string     `json:"ip"`
	State   string     `json:"state"`
	Since   *time.Time `json:"since,omitempty"`
}

func (s *Server) handleStates(w http.ResponseWriter, r *http.Request) {
	if s.states == nil {
		writeProblem(w, r, http.StatusNotFound, ProblemStatesDisabled, "state tracking is not attached")
		return
	}
	snap := s.states.Snapshot()
	out := make([]robotState, 0, len(snap))
	for _, ts := range snap {
		rs := robotState{Name: ts.Target.Name, Address: ts.Target.Address, State: ts.State.String()}
		if !ts.ChangedAt.IsZero() {
			since := ts.ChangedAt
			rs.Since = &since
		}
		out = append(out, rs)
	}
	writeJSON(w, out)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		historyDisabled(w, r)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			badQuery(w, r, "limit must be a positive integer")
			return
		}
		limit = n
	}

	events, err := s.events.ListEvents(r.Context(), r.URL.Query().Get("robot"))
	if err != nil {
		s.logger.Error("list events", zap.Error(err))
		historyUnavailable(w, r)
		return
	}
	// Keep the most recent entries; the store lists oldest first.
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	if events == nil {
		events = []store.StoredEvent{}
	}
	writeJSON(w, events)
}

// handleStream sends the current rows, then every status update, as JSON
// messages until the client disconnects. Slow clients miss updates rather
// than stalling the monitor loop.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket accept", zap.Error(err))
		return
	}
	defer c.CloseNow()

	ctx := c.CloseRead(r.Context())

	updates := make(chan event.StatusUpdate, streamBuffer)
	unsub := s.bus.Subscribe(event.TopicStatus, func(_ context.Context, e event.Event) {
		u, ok := e.Payload.(event.StatusUpdate)
		if !ok {
			return
		}
		select {
		case updates <- u:
		default:
		}
	})
	defer unsub()

	for _, row := range s.board.Snapshot().Rows {
		if err := s.write(ctx, c, event.StatusUpdate{
			Name:      row.Name,
			Address:   row.Address,
			Status:    row.Status,
			LatencyMs: row.LatencyMs,
			CheckedAt: row.CheckedAt,
		}); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			c.Close(websocket.StatusNormalClosure, "")
			return
		case u := <-updates:
			if err := s.write(ctx, c, u); err != nil {
				s.logger.Debug("websocket write", zap.Error(err))
				return
			}
		}
	}
}

func (s *Server) write(ctx context.Context, c *websocket.Conn, u event.StatusUpdate) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(ctx, c, u)
}
