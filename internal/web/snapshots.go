package web

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cjeanneret/SharedCam/internal/debug"
)

const wsWriteTimeout = 5 * time.Second

// snapshotConn serializes writes; gorilla connections allow one writer.
type snapshotConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *snapshotConn) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.ws.WriteMessage(messageType, data)
}

func (c *snapshotConn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.ws.WriteJSON(v)
}

// SnapshotHub streams JPEG stills to websocket clients. A client sends
// the text "capture" to request a still, which then goes to every client
// as a binary message; "status" answers with the status JSON.
type SnapshotHub struct {
	h        *Handlers
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[*snapshotConn]struct{}
}

func NewSnapshotHub(h *Handlers) *SnapshotHub {
	return &SnapshotHub{
		h: h,
		upgrader: websocket.Upgrader{
			CheckOrigin: sameOrigin,
		},
		conns: make(map[*snapshotConn]struct{}),
	}
}

// sameOrigin accepts non-browser clients and pages served by this host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// Clients returns the number of connected clients.
func (s *SnapshotHub) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// ServeHTTP handles GET /ws/snapshots.
func (s *SnapshotHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		debug.Verbose("ws: upgrade from %s: %v", r.RemoteAddr, err)
		return
	}
	debug.Live("ws: client %s connected", r.RemoteAddr)

	conn := &snapshotConn{ws: ws}
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.remove(conn)
		debug.Live("ws: client %s gone", r.RemoteAddr)
	}()

	for {
		kind, msg, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				debug.Error(err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		switch strings.TrimSpace(string(msg)) {
		case "capture":
			data, err := s.h.still(r.Context())
			if err != nil {
				if werr := conn.writeJSON(map[string]string{"error": err.Error()}); werr != nil {
					return
				}
				continue
			}
			s.Broadcast(data)
		case "status":
			if err := conn.writeJSON(s.h.CurrentStatus()); err != nil {
				return
			}
		default:
			if err := conn.writeJSON(map[string]string{"error": "unknown command"}); err != nil {
				return
			}
		}
	}
}

func (s *SnapshotHub) remove(c *snapshotConn) {
	s.mu.Lock()
	_, ok := s.conns[c]
	delete(s.conns, c)
	s.mu.Unlock()
	if ok {
		c.ws.Close()
	}
}

// Broadcast sends a JPEG still to every client. Clients that fail the
// write are dropped.
func (s *SnapshotHub) Broadcast(jpeg []byte) {
	s.mu.RLock()
	conns := make([]*snapshotConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	for _, c := range conns {
		if err := c.write(websocket.BinaryMessage, jpeg); err != nil {
			debug.Verbose("ws: write: %v", err)
			s.remove(c)
		}
	}
}

// CloseAll sends a close frame to every client and drops it.
func (s *SnapshotHub) CloseAll() {
	s.mu.RLock()
	conns := make([]*snapshotConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, c := range conns {
		_ = c.write(websocket.CloseMessage, msg)
		s.remove(c)
	}
}
