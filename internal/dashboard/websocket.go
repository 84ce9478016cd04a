package dashboard

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/sergeknystautas/githistory/internal/api/contracts"
	"github.com/sergeknystautas/githistory/internal/logging"
	"github.com/sergeknystautas/githistory/internal/querycache"
)

const (
	clientSendBuffer = 32
	wsWriteWait      = 10 * time.Second
	wsPingInterval   = 30 * time.Second
)

// Hub fans cache events out to websocket subscribers. Broadcasting never
// blocks: a subscriber whose buffer is full misses the event.
type Hub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
	logger  *log.Logger
}

type wsClient struct {
	workspace string // empty = all workspaces
	send      chan []byte
}

// NewHub creates an empty hub.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Hub{
		clients: make(map[*wsClient]struct{}),
		logger:  logger.WithPrefix("ws"),
	}
}

// Notify publishes a query cache event. It matches the querycache
// notifier signature.
func (h *Hub) Notify(ev querycache.Event) {
	h.broadcast(toContractEvent(ev))
}

// Hint tells subscribers the workspace's repository changed on disk. The
// cache is left alone; clients decide whether to refresh.
func (h *Hub) Hint(workspaceID string) {
	h.broadcast(contracts.Event{Type: contracts.EventRepoChanged, WorkspaceID: workspaceID})
}

func (h *Hub) broadcast(ev contracts.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal event", "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.workspace != "" && c.workspace != ev.WorkspaceID {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("subscriber too slow, event dropped", "type", ev.Type, "workspace", ev.WorkspaceID)
		}
	}
}

func (h *Hub) subscribe(workspace string) *wsClient {
	c := &wsClient{workspace: workspace, send: make(chan []byte, clientSendBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(c.send)
		return c
	}
	h.clients[c] = struct{}{}
	return c
}

func (h *Hub) unsubscribe(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Close disconnects every subscriber. Later subscriptions are closed
// immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// Non-browser clients send no Origin.
			return origin == "" || s.isAllowedOrigin(origin)
		},
	}
}

// handleEventsWebSocket streams cache events. ?workspace=<id> limits the
// feed to one workspace.
func (s *Server) handleEventsWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "event feed disabled", http.StatusNotFound)
		return
	}

	workspace := r.URL.Query().Get(paramWorkspace)
	if workspace != "" {
		if _, err := s.cache.Workspace(workspace); err != nil {
			s.writeError(w, err)
			return
		}
	}

	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	client := s.hub.subscribe(workspace)
	defer s.hub.unsubscribe(client)

	// Reads only detect the peer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case data, ok := <-client.send:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(wsWriteWait))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("write failed", "err", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}
