// Package render pushes overlay commands and simulation status to globe pages
// connected over websocket.
package render

import (
	"context"
	_ "embed"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/signalsfoundry/impact-simulator/core"
	"github.com/signalsfoundry/impact-simulator/internal/logging"
	"github.com/signalsfoundry/impact-simulator/internal/sim/controller"
	"github.com/signalsfoundry/impact-simulator/internal/sim/overlay"
	"github.com/signalsfoundry/impact-simulator/model"
)

const (
	DefaultPingInterval  = 20 * time.Second
	DefaultWriteTimeout  = 5 * time.Second
	DefaultQueueSize     = 64
	DefaultPreviewRadius = 1.0

	maxAckSize = 4096
)

//go:embed web/globe.html
var globePage []byte

// Hub fans renderer commands out to every connected page. It implements
// overlay.Sink and controller.Presenter. Pages that connect late receive the
// live overlays and the latest status first.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool

	live   map[overlay.Kind]OverlayCommand
	status map[string]Message
	hello  Hello

	upgrader     websocket.Upgrader
	pingInterval time.Duration
	writeTimeout time.Duration
	queueSize    int
	log          logging.Logger
}

type client struct {
	id        string
	conn      *safeConn
	send      chan Message
	done      chan struct{}
	closeOnce sync.Once
}

// Option customises a Hub.
type Option func(*Hub)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

// WithGlobeRadius sets the radius announced to pages.
func WithGlobeRadius(r float64) Option {
	return func(h *Hub) {
		if r > 0 {
			h.hello.GlobeRadius = r
		}
	}
}

// WithPreviewRadius sets the radius of the preview cylinder.
func WithPreviewRadius(r float64) Option {
	return func(h *Hub) {
		if r > 0 {
			h.hello.PreviewRadius = r
		}
	}
}

// WithPingInterval sets how often idle connections are pinged.
func WithPingInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

// WithQueueSize sets the per-page outbound buffer. A page that falls this far
// behind is disconnected.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// WithCheckOrigin overrides the websocket origin check.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(h *Hub) {
		h.upgrader.CheckOrigin = fn
	}
}

// NewHub builds a hub with no connected pages.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		clients: make(map[*client]struct{}),
		live:    make(map[overlay.Kind]OverlayCommand),
		status:  make(map[string]Message),
		hello: Hello{
			GlobeRadius:   core.DefaultGlobeRadius,
			PreviewRadius: DefaultPreviewRadius,
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		pingInterval: DefaultPingInterval,
		writeTimeout: DefaultWriteTimeout,
		queueSize:    DefaultQueueSize,
		log:          logging.Noop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Send implements overlay.Sink. Removing an overlay the hub does not know is
// forwarded anyway; pages ignore unknown handles.
func (h *Hub) Send(cmd overlay.Command) {
	wire := overlayCommand(cmd, h.hello.PreviewRadius)

	h.mu.Lock()
	defer h.mu.Unlock()
	switch cmd.Op {
	case overlay.OpCreate:
		h.live[cmd.Kind] = wire
	case overlay.OpRemove:
		if cur, ok := h.live[cmd.Kind]; ok && cur.Handle == wire.Handle {
			delete(h.live, cmd.Kind)
		}
	}
	h.broadcastLocked(Message{Type: TypeOverlay, Payload: wire})
}

// ShowResult implements controller.Presenter.
func (h *Hub) ShowResult(res model.ImpactResult) {
	h.publishStatus(Message{Type: TypeResult, Payload: res})
}

// ShowParameters implements controller.Presenter.
func (h *Hub) ShowParameters(p model.ImpactParameters) {
	h.publishStatus(Message{Type: TypeParameters, Payload: p})
}

// ShowMode implements controller.Presenter. Re-arming retires the last
// result so later pages do not see it next to an armed globe.
func (h *Hub) ShowMode(m controller.Mode) {
	msg := modeMessage(m)

	h.mu.Lock()
	defer h.mu.Unlock()
	if m == controller.Armed {
		delete(h.status, TypeResult)
	}
	h.status[TypeMode] = msg
	h.broadcastLocked(msg)
}

// ShowCatalog implements controller.Presenter.
func (h *Hub) ShowCatalog(list []model.Impactor) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.status, TypeCatalogUnavailable)
	msg := catalogMessage(list)
	h.status[TypeCatalog] = msg
	h.broadcastLocked(msg)
}

// ShowCatalogUnavailable implements controller.Presenter.
func (h *Hub) ShowCatalogUnavailable(err error) {
	detail := "catalog unavailable"
	if err != nil {
		detail = err.Error()
	}
	msg := Message{Type: TypeCatalogUnavailable, Payload: CatalogUnavailable{Error: detail}}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.status[TypeCatalogUnavailable] = msg
	h.broadcastLocked(msg)
}

func (h *Hub) publishStatus(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status[msg.Type] = msg
	h.broadcastLocked(msg)
}

func (h *Hub) broadcastLocked(msg Message) {
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.log.Warn(context.Background(), "renderer page too slow, disconnecting",
				logging.String("client_id", c.id),
			)
			delete(h.clients, c)
			go c.shutdown(websocket.ClosePolicyViolation, "too slow")
		}
	}
}

// Clients reports the number of connected pages.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Page serves the embedded globe page.
func (h *Hub) Page() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(globePage)
	})
}

// ServeHTTP upgrades the request to a websocket and streams messages to the
// page until it disconnects or the hub closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, "renderer hub closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "websocket upgrade failed", logging.Err(err))
		return
	}
	c, ok := h.register(conn)
	if !ok {
		return
	}
	log := h.log.With(logging.String("client_id", c.id))
	log.Info(r.Context(), "renderer connected", logging.String("remote_addr", r.RemoteAddr))

	go h.writeLoop(c, log)
	h.readLoop(r.Context(), c, log)

	h.unregister(c)
	c.shutdown(websocket.CloseNormalClosure, "")
	log.Info(r.Context(), "renderer disconnected")
}

// register queues the replay for a new page under the hub lock so no
// broadcast can slip in between replay and live traffic.
func (h *Hub) register(conn *websocket.Conn) (*client, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	replay := make([]Message, 0, 8)
	replay = append(replay, Message{Type: TypeHello, Payload: h.hello})
	for _, t := range []string{TypeParameters, TypeMode, TypeResult, TypeCatalog, TypeCatalogUnavailable} {
		if msg, ok := h.status[t]; ok {
			replay = append(replay, msg)
		}
	}
	for _, k := range []overlay.Kind{overlay.Preview, overlay.Impact} {
		if cmd, ok := h.live[k]; ok {
			replay = append(replay, Message{Type: TypeOverlay, Payload: cmd})
		}
	}

	c := &client{
		id:   uuid.NewString(),
		conn: newSafeConn(conn),
		send: make(chan Message, h.queueSize+len(replay)),
		done: make(chan struct{}),
	}
	if h.closed {
		c.shutdown(websocket.CloseGoingAway, "shutting down")
		return nil, false
	}
	for _, msg := range replay {
		c.send <- msg
	}
	h.clients[c] = struct{}{}
	return c, true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

func (h *Hub) writeLoop(c *client, log logging.Logger) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.conn.WriteJSON(msg, h.writeTimeout); err != nil {
				log.Debug(context.Background(), "renderer write failed", logging.Err(err))
				c.shutdown(websocket.CloseGoingAway, "")
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(h.writeTimeout); err != nil {
				c.shutdown(websocket.CloseGoingAway, "")
				return
			}
		}
	}
}

// readLoop consumes page acknowledgements until the connection fails.
func (h *Hub) readLoop(ctx context.Context, c *client, log logging.Logger) {
	conn := c.conn.conn
	conn.SetReadLimit(maxAckSize)
	_ = conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
		var ack Ack
		if err := json.Unmarshal(data, &ack); err != nil {
			log.Debug(ctx, "ignoring malformed renderer message", logging.Err(err))
			continue
		}
		log.Debug(ctx, "renderer ack",
			logging.String("type", ack.Type),
			logging.String("handle", ack.Handle),
			logging.String("detail", ack.Detail),
		)
	}
}

func (c *client) shutdown(code int, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.CloseWith(code, reason, time.Second)
	})
}

// Close disconnects every page and refuses new connections.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.shutdown(websocket.CloseGoingAway, "shutting down")
	}
}
