package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ghalamif/AegisNet/internal/adapters/fanout"
	"github.com/ghalamif/AegisNet/internal/domain"
	"github.com/ghalamif/AegisNet/internal/ports"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
	pingPeriod          = 30 * time.Second
)

type StateSource interface {
	State() domain.TuningState
	LastAggregates() (domain.Aggregates, bool)
	Cycles() uint64
}

type WindowSource interface {
	Snapshot(ctx context.Context) (domain.Snapshot, error)
}

type HistorySource interface {
	Recent(ctx context.Context, kind domain.EventType, limit int) ([]domain.Event, error)
}

type Subscriber interface {
	Subscribe(ctx context.Context, buffer int) (*fanout.Observer, error)
	Unsubscribe(o *fanout.Observer)
}

type Config struct {
	WriteTimeout   time.Duration
	ObserverBuffer int
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// Server exposes the live websocket feed and the read-only HTTP API.
type Server struct {
	cfg     Config
	hub     Subscriber
	state   StateSource
	window  WindowSource
	history HistorySource
	obs     ports.Observability

	router   *mux.Router
	upgrader websocket.Upgrader

	closing   chan struct{}
	closeOnce sync.Once
	conns     sync.WaitGroup
}

// NewServer wires the routes. history may be nil when history is disabled.
func NewServer(cfg Config, hub Subscriber, state StateSource, window WindowSource, history HistorySource, obs ports.Observability) *Server {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if obs == nil {
		obs = ports.NopObservability{}
	}
	s := &Server{
		cfg:     cfg,
		hub:     hub,
		state:   state,
		window:  window,
		history: history,
		obs:     obs,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		closing: make(chan struct{}),
	}

	metrics := promhttp.Handler()
	if cfg.Gatherer != nil {
		metrics = promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})
	}

	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	r.HandleFunc("/api/state", s.handleState).Methods(http.MethodGet)
	r.HandleFunc("/api/window", s.handleWindow).Methods(http.MethodGet)
	r.HandleFunc("/api/history", s.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics).Methods(http.MethodGet)
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Serve runs until ctx is cancelled, then shuts the HTTP server down and
// closes open websocket sessions.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	s.obs.LogInfo("transport_listening", ports.Field{Key: "addr", Value: ln.Addr().String()})

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.conns.Wait()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close ends every websocket session.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	o, err := s.hub.Subscribe(r.Context(), s.cfg.ObserverBuffer)
	if err != nil {
		respondError(w, "telemetry unavailable", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.hub.Unsubscribe(o)
		s.obs.LogWarn("ws_upgrade_failed", ports.Field{Key: "error", Value: err.Error()})
		return
	}
	s.conns.Add(1)
	defer s.conns.Done()
	defer s.hub.Unsubscribe(o)
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	s.obs.LogInfo("ws_connected", ports.Field{Key: "remote", Value: remote})

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-o.C:
			if !ok {
				s.closeConn(conn)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				s.obs.LogDebug("ws_write_failed", ports.Field{Key: "remote", Value: remote}, ports.Field{Key: "error", Value: err.Error()})
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				return
			}
		case <-gone:
			s.obs.LogInfo("ws_disconnected", ports.Field{Key: "remote", Value: remote})
			return
		case <-s.closing:
			s.closeConn(conn)
			return
		}
	}
}

func (s *Server) closeConn(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.WriteTimeout))
}

type stateView struct {
	CaptureDurationSeconds float64            `json:"capture_duration_seconds"`
	CycleIntervalSeconds   float64            `json:"cycle_interval_seconds"`
	PreviousAttack         bool               `json:"previous_attack_detected"`
	Cycles                 uint64             `json:"cycles"`
	Aggregates             *domain.Aggregates `json:"aggregates"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	st := s.state.State()
	view := stateView{
		CaptureDurationSeconds: st.CaptureDuration.Seconds(),
		CycleIntervalSeconds:   st.CycleInterval.Seconds(),
		PreviousAttack:         st.PreviousAttackDetected,
		Cycles:                 s.state.Cycles(),
	}
	if agg, ok := s.state.LastAggregates(); ok {
		view.Aggregates = &agg
	}
	respondJSON(w, view, http.StatusOK)
}

type windowView struct {
	Capacity   int                `json:"capacity"`
	Samples    []domain.Sample    `json:"samples"`
	Aggregates *domain.Aggregates `json:"aggregates"`
}

func (s *Server) handleWindow(w http.ResponseWriter, r *http.Request) {
	snap, err := s.window.Snapshot(r.Context())
	if err != nil {
		respondError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	view := windowView{Capacity: snap.Capacity(), Samples: snap.Samples()}
	if agg, ok := snap.Aggregates(); ok {
		view.Aggregates = &agg
	}
	respondJSON(w, view, http.StatusOK)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondError(w, "history disabled", http.StatusNotFound)
		return
	}
	q := r.URL.Query()

	kind := domain.EventType(q.Get("type"))
	switch kind {
	case "", domain.EventMetrics, domain.EventAttackDetection, domain.EventTuning, domain.EventError:
	default:
		respondError(w, "unknown event type "+string(kind), http.StatusBadRequest)
		return
	}

	limit := defaultHistoryLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		if n > maxHistoryLimit {
			n = maxHistoryLimit
		}
		limit = n
	}

	events, err := s.history.Recent(r.Context(), kind, limit)
	if err != nil {
		s.obs.LogError("history_query_failed", err)
		respondError(w, "history query failed", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	respondJSON(w, events, http.StatusOK)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, map[string]string{"error": message}, status)
}
