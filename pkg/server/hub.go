package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vango-dev/campusdesk/pkg/middleware"
	"github.com/vango-dev/campusdesk/pkg/store"
	"github.com/vango-dev/campusdesk/pkg/toast"
)

// StateEvent names live-feed frames carrying the root state.
const StateEvent = "state"

// StateFrame is the live-feed frame for store changes.
type StateFrame struct {
	Event string      `json:"event"`
	State store.State `json:"state"`
}

// ToastFrame is the live-feed frame for toast list changes.
type ToastFrame struct {
	Event  string        `json:"event"`
	Toasts []toast.Toast `json:"toasts"`
}

// InboundFrame is a message from a live-feed client.
type InboundFrame struct {
	// Op is "dismiss"; other ops are ignored.
	Op string `json:"op"`
	ID string `json:"id,omitempty"`
}

type client struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// hub fans frames out to live-feed clients.
type hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup
	logger  *slog.Logger
}

func newHub(logger *slog.Logger) *hub {
	return &hub{
		clients: make(map[*client]struct{}),
		logger:  logger,
	}
}

// join registers c after queueing the frames built by initial. Holding the
// hub lock across both means no broadcast can slip between the snapshot
// and the registration.
func (h *hub) join(c *client, initial func() [][]byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	for _, msg := range initial() {
		c.send <- msg
	}
	h.clients[c] = struct{}{}
	h.wg.Add(1)
	middleware.RecordWebSocketConnect()
	return true
}

func (h *hub) leave(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		middleware.RecordWebSocketDisconnect()
		h.wg.Done()
	}
}

// broadcast queues msg for every client. Clients that cannot keep up are
// disconnected.
func (h *hub) broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case <-c.done:
			continue
		default:
		}
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("dropping slow live-feed client", "remote", c.conn.RemoteAddr().String())
			middleware.RecordWebSocketError("slow_client")
			c.close()
		}
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// shutdown disconnects every client and waits for their goroutines.
func (h *hub) shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		c.close()
	}
	h.mu.Unlock()

	waited := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func encodeFrame(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// Slice state is JSON encodable by construction; a failure here is
		// a programming error in a reducer.
		panic("server: encode frame: " + err.Error())
	}
	return data
}

// writeLoop sends queued frames and pings until the client is closed.
func (s *Server) writeLoop(c *client) {
	ticker := time.NewTicker(s.config.pingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(s.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.logger.Debug("live-feed write error", "error", err)
				middleware.RecordWebSocketError("write")
				c.close()
				return
			}

		case <-ticker.C:
			deadline := time.Now().Add(s.config.WriteWait)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				middleware.RecordWebSocketError("ping")
				c.close()
				return
			}

		case <-c.done:
			deadline := time.Now().Add(s.config.WriteWait)
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"), deadline)
			return
		}
	}
}

// readLoop handles inbound frames until the connection fails.
func (s *Server) readLoop(c *client) {
	defer c.close()

	c.conn.SetReadLimit(s.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(s.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(s.config.PongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.logger.Error("live-feed read error", "error", err)
				middleware.RecordWebSocketError("read")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(s.config.PongWait))

		var in InboundFrame
		if err := json.Unmarshal(msg, &in); err != nil {
			s.logger.Warn("invalid live-feed frame", "error", err)
			continue
		}
		switch in.Op {
		case "dismiss":
			s.notifier.Remove(in.ID)
		default:
			s.logger.Debug("unknown live-feed op", "op", in.Op)
		}
	}
}
