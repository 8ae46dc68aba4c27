package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/frankieli/instant_games/pkg/logger"
)

type CloseReason string

const (
	ReasonWriteError     CloseReason = "write_error"
	ReasonPingError      CloseReason = "ping_error"
	ReasonReadError      CloseReason = "read_error"
	ReasonSendChanClosed CloseReason = "send_channel_closed"
	ReasonShutdown       CloseReason = "server_shutdown"
	ReasonBufferFull     CloseReason = "buffer_full"
	ReasonTimeout        CloseReason = "timeout"
)

// Connection represents one WebSocket session. A user may hold several at
// once (multiple tabs or devices); each is tracked separately.
type Connection struct {
	UserID    int64
	ConnID    uint64
	Conn      *websocket.Conn
	Send      chan []byte
	manager   *Manager
	closeOnce sync.Once
}

// Manager manages all WebSocket connections
type Manager struct {
	clients    map[int64]map[uint64]*Connection // userID -> connID -> conn
	register   chan *Connection
	unregister chan *Connection
	nextConnID uint64
	mu         sync.RWMutex
}

// NewManager creates a new connection manager
func NewManager() *Manager {
	return &Manager{
		clients:    make(map[int64]map[uint64]*Connection),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
	}
}

// Register registers a new connection for the user. Existing connections of
// the same user stay open; balance events fan out to all of them.
func (m *Manager) Register(conn *websocket.Conn, userID int64) *Connection {
	m.mu.Lock()
	m.nextConnID++
	connID := m.nextConnID
	m.mu.Unlock()

	c := &Connection{
		UserID:  userID,
		ConnID:  connID,
		Conn:    conn,
		Send:    make(chan []byte, 256),
		manager: m,
	}
	m.register <- c
	return c
}

// Run starts the manager loop
func (m *Manager) Run() {
	for {
		select {
		case client := <-m.register:
			m.mu.Lock()
			conns, ok := m.clients[client.UserID]
			if !ok {
				conns = make(map[uint64]*Connection)
				m.clients[client.UserID] = conns
			}
			conns[client.ConnID] = client
			m.mu.Unlock()

		case client := <-m.unregister:
			m.mu.Lock()
			if conns, ok := m.clients[client.UserID]; ok {
				delete(conns, client.ConnID)
				if len(conns) == 0 {
					delete(m.clients, client.UserID)
				}
			}
			m.mu.Unlock()
		}
	}
}

// Broadcast sends a message to every connected session
func (m *Manager) Broadcast(message []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, conns := range m.clients {
		for _, client := range conns {
			select {
			case client.Send <- message:
			default:
				// Buffer full, drop client. We hold RLock so the
				// unregister channel handles map cleanup.
				client.CloseWithReason(ReasonBufferFull, nil)
			}
		}
	}
}

// SendToUser fans a message out to all of the user's sessions
func (m *Manager) SendToUser(userID int64, message []byte) {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.clients[userID]))
	for _, client := range m.clients[userID] {
		conns = append(conns, client)
	}
	m.mu.RUnlock()

	for _, client := range conns {
		select {
		case client.Send <- message:
			continue
		default:
			// Buffer full, wait briefly before giving up
		}

		select {
		case client.Send <- message:
		case <-time.After(5 * time.Second):
			// Client is too slow. Close it to avoid blocking the server;
			// the client recovers missed events through the seq check on
			// reconnect.
			client.CloseWithReason(ReasonTimeout, nil)
		}
	}
}

// Sessions reports the number of open sessions for the user
func (m *Manager) Sessions(userID int64) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients[userID])
}

// Shutdown closes all connections
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, conns := range m.clients {
		for _, client := range conns {
			client.CloseWithReason(ReasonShutdown, nil)
		}
	}
}

// CloseWithReason closes the connection with a reason
func (c *Connection) CloseWithReason(r CloseReason, err error) {
	c.closeOnce.Do(func() {
		logger.Warn(context.Background()).
			Int64("user_id", c.UserID).
			Uint64("conn_id", c.ConnID).
			Str("reason", string(r)).
			Err(err).
			Msg("ws connection closed")
		c.Conn.Close()
	})
}

// WritePump pumps messages from the send buffer to the websocket connection
func (c *Connection) WritePump() {
	ticker := time.NewTicker(54 * time.Second) // Ping period
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.CloseWithReason(ReasonWriteError, err)
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				c.CloseWithReason(ReasonWriteError, err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.CloseWithReason(ReasonPingError, err)
				return
			}
		}
	}
}

// ReadPump pumps messages from the websocket connection to the handler
func (c *Connection) ReadPump(handleMessage func(int64, []byte)) {
	var readErr error
	defer func() {
		c.manager.unregister <- c
		c.CloseWithReason(ReasonReadError, readErr)
	}()

	c.Conn.SetReadLimit(4096)                                // Max message size
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second)) // Pong wait
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				readErr = err
			}
			break
		}

		handleMessage(c.UserID, message)
	}
}
