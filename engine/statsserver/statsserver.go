package statsserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-lightcull/engine/config"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/diag"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/logging"
	"github.com/Carmen-Shannon/oxy-lightcull/engine/pass"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/semaphore"
)

// Message types sent to clients.
const (
	TypeHello      = "hello"
	TypeFrame      = "frame"
	TypeDiagnostic = "diagnostic"
	TypeApplied    = "applied"
	TypeError      = "error"
)

// ErrNoController is returned to clients that request a switch before a
// renderer is attached.
var ErrNoController = errors.New("no renderer attached")

// Message is one server-to-client JSON message.
type Message struct {
	Type       string           `json:"type"`
	Frame      *pass.FrameStats `json:"frame,omitempty"`
	Diagnostic *diag.Diagnostic `json:"diagnostic,omitempty"`
	Config     *config.Config   `json:"config,omitempty"`
	Pipelines  []string         `json:"pipelines,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// Request is a client-to-server configuration switch. Unset fields keep
// their current value.
type Request struct {
	Pipeline              string       `json:"pipeline,omitempty"`
	Grid                  *config.Grid `json:"grid,omitempty"`
	MaxLightsPerPartition *int         `json:"maxLightsPerPartition,omitempty"`
	Cap                   string       `json:"cap,omitempty"`
}

// Controller is the part of a renderer context the server drives.
type Controller interface {
	Config() config.Config
	Apply(cfg config.Config) error
}

// Server streams frame statistics and diagnostics to WebSocket clients and
// forwards their configuration switches to the renderer. It is a diag.Sink.
type Server interface {
	diag.Sink

	// Handler returns the WebSocket endpoint.
	Handler() http.Handler

	// SetController attaches the renderer that receives switch requests.
	SetController(ctrl Controller)

	// PublishFrame queues frame statistics for broadcast. Never blocks; when
	// the queue is full the message is dropped and counted.
	PublishFrame(stats pass.FrameStats)

	// Run broadcasts queued messages until ctx is cancelled.
	Run(ctx context.Context)

	// ListenAndServe serves Handler at addr under /ws and runs the
	// broadcaster until ctx is cancelled.
	//
	// Parameters:
	//   - ctx: stops the server
	//   - addr: the listen address, e.g. ":8080"
	//
	// Returns:
	//   - error: a listen error, nil after a clean shutdown
	ListenAndServe(ctx context.Context, addr string) error

	// Serve is ListenAndServe on an existing listener. Cancelling ctx shuts
	// the HTTP server down and closes every connected client.
	//
	// Parameters:
	//   - ctx: stops the server
	//   - l: the listener, closed on return
	//
	// Returns:
	//   - error: a serve error, nil after a clean shutdown
	Serve(ctx context.Context, l net.Listener) error

	// Close disconnects every client with a going-away close frame and
	// refuses new ones.
	Close()

	// Clients returns the number of connected clients.
	Clients() int

	// Dropped returns the number of messages discarded because the queue was full.
	Dropped() uint64
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(payload []byte, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *client) writeJSON(msg Message, timeout time.Duration) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.write(payload, timeout)
}

type server struct {
	log      logging.Logger
	upgrader websocket.Upgrader

	ctrlMu *sync.RWMutex
	ctrl   Controller

	clientsMu *sync.RWMutex
	clients   map[*client]struct{}
	closed    bool

	queue   chan Message
	dropped atomic.Uint64
	writers *semaphore.Weighted

	maxWriters    int64
	queueSize     int
	frameInterval uint64
	writeTimeout  time.Duration
}

var _ Server = &server{}

// NewServer creates a stats server.
//
// Parameters:
//   - options: functional options (logger, writers, queue size, frame interval)
//
// Returns:
//   - Server: the server, not yet serving
func NewServer(options ...ServerBuilderOption) Server {
	s := &server{
		log:           logging.NewNopLogger(),
		ctrlMu:        &sync.RWMutex{},
		clientsMu:     &sync.RWMutex{},
		clients:       make(map[*client]struct{}),
		maxWriters:    4,
		queueSize:     256,
		frameInterval: 1,
		writeTimeout:  time.Second,
	}
	for _, opt := range options {
		opt(s)
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	s.queue = make(chan Message, max(s.queueSize, 1))
	s.writers = semaphore.NewWeighted(max(s.maxWriters, 1))
	return s
}

func (s *server) Handler() http.Handler {
	return http.HandlerFunc(s.serveWS)
}

func (s *server) SetController(ctrl Controller) {
	s.ctrlMu.Lock()
	s.ctrl = ctrl
	s.ctrlMu.Unlock()
}

func (s *server) controller() Controller {
	s.ctrlMu.RLock()
	defer s.ctrlMu.RUnlock()
	return s.ctrl
}

func (s *server) enqueue(msg Message) {
	select {
	case s.queue <- msg:
	default:
		s.dropped.Add(1)
	}
}

func (s *server) PublishFrame(stats pass.FrameStats) {
	if s.frameInterval > 1 && stats.Frame%s.frameInterval != 0 {
		return
	}
	s.enqueue(Message{Type: TypeFrame, Frame: &stats})
}

func (s *server) Report(d diag.Diagnostic) {
	s.enqueue(Message{Type: TypeDiagnostic, Diagnostic: &d})
}

func (s *server) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.queue:
			s.broadcast(ctx, msg)
		}
	}
}

// broadcast writes msg to every client, at most maxWriters at a time. Clients
// whose write fails are disconnected.
func (s *server) broadcast(ctx context.Context, msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		s.log.Errorf("[StatsServer] encode %s message: %v", msg.Type, err)
		return
	}

	s.clientsMu.RLock()
	clients := slices.Collect(maps.Keys(s.clients))
	s.clientsMu.RUnlock()

	var wg sync.WaitGroup
	for _, c := range clients {
		if err := s.writers.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(c *client) {
			defer wg.Done()
			defer s.writers.Release(1)
			if err := c.write(payload, s.writeTimeout); err != nil {
				s.log.Debugf("[StatsServer] dropping client %s: %v", c.conn.RemoteAddr(), err)
				s.remove(c)
			}
		}(c)
	}
	wg.Wait()
}

func (s *server) remove(c *client) {
	s.clientsMu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	s.clientsMu.Unlock()
	if ok {
		c.conn.Close()
	}
}

func (s *server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("[StatsServer] upgrade: %v", err)
		return
	}
	c := &client{conn: conn}

	s.clientsMu.Lock()
	if s.closed {
		s.clientsMu.Unlock()
		closeConn(conn)
		return
	}
	s.clients[c] = struct{}{}
	s.clientsMu.Unlock()
	defer s.remove(c)
	s.log.Debugf("[StatsServer] client %s connected", conn.RemoteAddr())

	hello := Message{Type: TypeHello, Pipelines: config.PipelineNames()}
	if ctrl := s.controller(); ctrl != nil {
		cfg := ctrl.Config()
		hello.Config = &cfg
	}
	if err := c.writeJSON(hello, s.writeTimeout); err != nil {
		return
	}

	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debugf("[StatsServer] client %s read: %v", conn.RemoteAddr(), err)
			}
			return
		}

		reply := Message{Type: TypeApplied}
		cfg, err := s.apply(req)
		if err != nil {
			reply = Message{Type: TypeError, Error: err.Error()}
		} else {
			reply.Config = &cfg
		}
		if err := c.writeJSON(reply, s.writeTimeout); err != nil {
			return
		}
	}
}

// apply builds the requested configuration from the current one and queues it.
func (s *server) apply(req Request) (config.Config, error) {
	ctrl := s.controller()
	if ctrl == nil {
		return config.Config{}, ErrNoController
	}

	cfg := ctrl.Config()
	if req.Pipeline != "" {
		var err error
		if cfg, err = cfg.Switch(req.Pipeline); err != nil {
			return config.Config{}, err
		}
	}
	if req.Grid != nil {
		cfg.Grid = *req.Grid
	}
	if req.MaxLightsPerPartition != nil {
		cfg.MaxLightsPerPartition = *req.MaxLightsPerPartition
	}
	if req.Cap != "" {
		cp, err := config.ParseCapPolicy(req.Cap)
		if err != nil {
			return config.Config{}, err
		}
		cfg.CapPolicy = cp
	}
	cfg = cfg.Normalize()

	if err := ctrl.Apply(cfg); err != nil {
		return config.Config{}, err
	}
	s.log.Infof("[StatsServer] switch requested: %s, grid %s", cfg.Name(), cfg.Grid)
	return cfg, nil
}

func (s *server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("stats server: %w", err)
	}
	return s.Serve(ctx, l)
}

func (s *server) Serve(ctx context.Context, l net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", s.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	// Shutdown does not track hijacked websocket connections.
	srv.RegisterOnShutdown(s.Close)

	go s.Run(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Infof("[StatsServer] listening on %s/ws", l.Addr())
	if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("stats server: %w", err)
	}
	return nil
}

func (s *server) Close() {
	s.clientsMu.Lock()
	s.closed = true
	clients := slices.Collect(maps.Keys(s.clients))
	clear(s.clients)
	s.clientsMu.Unlock()

	for _, c := range clients {
		closeConn(c.conn)
	}
	if len(clients) > 0 {
		s.log.Debugf("[StatsServer] closed %d clients", len(clients))
	}
}

// closeConn sends a going-away close frame and closes conn.
func closeConn(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	conn.Close()
}

func (s *server) Clients() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *server) Dropped() uint64 {
	return s.dropped.Load()
}
