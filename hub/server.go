package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/TheGonzalezDesigns/corpus-vision/component"
	"github.com/TheGonzalezDesigns/corpus-vision/errors"
	"github.com/TheGonzalezDesigns/corpus-vision/metric"
)

// Server fans hub messages out to WebSocket dashboard clients.
type Server struct {
	name string
	port int
	path string
	hub  *Hub

	server   *http.Server
	upgrader websocket.Upgrader

	clients   map[*websocket.Conn]*clientInfo
	clientsMu sync.RWMutex

	sub *Subscriber

	// Lifecycle management
	shutdown    chan struct{}
	running     bool
	mu          sync.RWMutex
	lifecycleMu sync.Mutex
	wg          *sync.WaitGroup

	logger *slog.Logger

	messagesSent int64
	sendErrors   int64

	metrics *serverMetrics
}

// clientInfo holds per-connection state.
type clientInfo struct {
	conn        *websocket.Conn
	connectedAt time.Time
	closed      atomic.Bool
	closeOnce   sync.Once
	// gorilla/websocket panics on concurrent writes to one connection
	writeMutex sync.Mutex
}

type serverMetrics struct {
	messagesSent     prometheus.Counter
	clientsConnected prometheus.Gauge
	connectionTotal  prometheus.Counter
	errorsTotal      *prometheus.CounterVec
}

// newServerMetrics returns nil when no registry is provided; callers treat
// nil metrics as disabled.
func newServerMetrics(registry *metric.MetricsRegistry) *serverMetrics {
	if registry == nil {
		return nil
	}

	m := &serverMetrics{
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corpusvision",
			Subsystem: "hub",
			Name:      "messages_sent_total",
			Help:      "Total messages sent to WebSocket clients",
		}),
		clientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "corpusvision",
			Subsystem: "hub",
			Name:      "clients_connected",
			Help:      "Number of currently connected clients",
		}),
		connectionTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corpusvision",
			Subsystem: "hub",
			Name:      "client_connections_total",
			Help:      "Total client connections (including disconnected)",
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "corpusvision",
			Subsystem: "hub",
			Name:      "errors_total",
			Help:      "WebSocket server errors",
		}, []string{"error_type"}),
	}

	registry.PrometheusRegistry().MustRegister(
		m.messagesSent,
		m.clientsConnected,
		m.connectionTotal,
		m.errorsTotal,
	)
	return m
}

// ServerConfig holds construction parameters for the hub server.
type ServerConfig struct {
	Port            int
	Path            string
	Hub             *Hub
	Logger          *slog.Logger
	MetricsRegistry *metric.MetricsRegistry
}

// NewServer creates a WebSocket server bound to the given hub.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Server{
		name: fmt.Sprintf("hub-server-%d", cfg.Port),
		port: cfg.Port,
		path: cfg.Path,
		hub:  cfg.Hub,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(_ *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*websocket.Conn]*clientInfo),
		logger:  cfg.Logger,
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}
}

// Name implements component.LifecycleComponent.
func (s *Server) Name() string {
	return s.name
}

// Initialize validates the server configuration.
func (s *Server) Initialize() error {
	if s.port < 1 || s.port > 65535 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Server", "Initialize",
			fmt.Sprintf("invalid port %d", s.port))
	}
	if s.path == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Server", "Initialize",
			"WebSocket path cannot be empty")
	}
	if s.hub == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Server", "Initialize",
			"hub cannot be nil")
	}
	return nil
}

// Start subscribes to the hub and begins serving WebSocket clients.
func (s *Server) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "Server", "Start", "context already cancelled")
	}

	s.shutdown = make(chan struct{})
	s.sub = s.hub.Subscribe()

	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleWebSocket)
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: mux,
	}

	s.wg = &sync.WaitGroup{}
	s.wg.Add(3)
	go s.runServer()
	go s.forwardMessages(ctx)
	go s.maintainClients(ctx)

	s.running = true
	return nil
}

// Stop closes the server, all client connections, and the hub subscription.
func (s *Server) Stop(timeout time.Duration) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.shutdown)
	wg := s.wg
	server := s.server
	sub := s.sub
	s.mu.Unlock()

	// Unblock the forwarder before waiting on goroutines
	s.hub.Unsubscribe(sub)

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("hub server shutdown error", "error", err)
		}
	}

	// Close client connections first: handleClient goroutines sit in
	// blocking reads that only a Close unblocks, and http.Server.Shutdown
	// does not touch hijacked connections.
	s.closeAllClients()

	if wg != nil {
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(timeout):
			return errors.WrapTransient(errors.ErrStopTimeout, "Server", "Stop",
				"wait for server goroutines")
		}
	}

	s.mu.Lock()
	s.server = nil
	s.shutdown = nil
	s.wg = nil
	s.sub = nil
	s.mu.Unlock()
	return nil
}

func (s *Server) runServer() {
	defer s.wg.Done()

	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		s.logger.Error("hub server failed", "error", err)
		if s.metrics != nil {
			s.metrics.errorsTotal.WithLabelValues("listen").Inc()
		}
	}
}

// forwardMessages drains the hub subscription into connected clients.
func (s *Server) forwardMessages(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case msg, ok := <-s.sub.C():
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			s.broadcastToClients(data)
		}
	}
}

func (s *Server) handleWebSocket(wr http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(wr, r, nil)
	if err != nil {
		if s.metrics != nil {
			s.metrics.errorsTotal.WithLabelValues("upgrade").Inc()
		}
		return
	}

	info := &clientInfo{conn: conn, connectedAt: time.Now()}

	s.clientsMu.Lock()
	s.clients[conn] = info
	count := len(s.clients)
	s.clientsMu.Unlock()

	if s.metrics != nil {
		s.metrics.connectionTotal.Inc()
		s.metrics.clientsConnected.Set(float64(count))
	}

	s.wg.Add(1)
	go s.handleClient(conn, info)
}

// handleClient keeps the connection open and discards anything the client
// sends; the hub protocol is one-way.
func (s *Server) handleClient(conn *websocket.Conn, info *clientInfo) {
	defer s.wg.Done()
	defer s.removeClient(conn, info)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		select {
		case <-s.shutdown:
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn, info *clientInfo) {
	info.closeOnce.Do(func() {
		info.closed.Store(true)

		s.clientsMu.Lock()
		delete(s.clients, conn)
		count := len(s.clients)
		s.clientsMu.Unlock()

		if s.metrics != nil {
			s.metrics.clientsConnected.Set(float64(count))
		}
		_ = conn.Close()
	})
}

func (s *Server) closeAllClients() {
	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close()
	}
	s.clients = make(map[*websocket.Conn]*clientInfo)
	s.clientsMu.Unlock()
}

// broadcastToClients writes data to every connected client. A failed write
// removes that client only.
func (s *Server) broadcastToClients(data []byte) {
	s.clientsMu.RLock()
	snapshot := make([]*clientInfo, 0, len(s.clients))
	for _, info := range s.clients {
		if !info.closed.Load() {
			snapshot = append(snapshot, info)
		}
	}
	s.clientsMu.RUnlock()

	for _, info := range snapshot {
		if err := s.sendToClient(info, data); err != nil {
			s.removeClient(info.conn, info)
			atomic.AddInt64(&s.sendErrors, 1)
			if s.metrics != nil {
				s.metrics.errorsTotal.WithLabelValues("client_send").Inc()
			}
			continue
		}
		atomic.AddInt64(&s.messagesSent, 1)
		if s.metrics != nil {
			s.metrics.messagesSent.Inc()
		}
	}
}

func (s *Server) sendToClient(info *clientInfo, data []byte) error {
	info.writeMutex.Lock()
	defer info.writeMutex.Unlock()

	_ = info.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return info.conn.WriteMessage(websocket.TextMessage, data)
}

// maintainClients pings clients periodically and removes dead connections.
func (s *Server) maintainClients(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(25 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.pingClients()
		}
	}
}

func (s *Server) pingClients() {
	s.clientsMu.RLock()
	snapshot := make([]*clientInfo, 0, len(s.clients))
	for _, info := range s.clients {
		if !info.closed.Load() {
			snapshot = append(snapshot, info)
		}
	}
	s.clientsMu.RUnlock()

	for _, info := range snapshot {
		info.writeMutex.Lock()
		err := info.conn.WriteMessage(websocket.PingMessage, nil)
		info.writeMutex.Unlock()
		if err != nil {
			s.removeClient(info.conn, info)
		}
	}
}

var _ component.LifecycleComponent = (*Server)(nil)
