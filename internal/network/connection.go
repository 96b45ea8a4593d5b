// Package network carries room traffic over websockets: players exchange
// encoded root messages with their room, and spectators receive a copy of
// everything the room sends.
package network

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxMessage = 64 * 1024
)

// ErrSendBufferFull is returned when a connection cannot keep up with its
// room. The connection is closed.
var ErrSendBufferFull = errors.New("network: send buffer full")

// Role separates players from read-only spectators.
type Role int

const (
	RolePlayer Role = iota
	RoleSpectator
)

func (r Role) String() string {
	if r == RoleSpectator {
		return "spectator"
	}
	return "player"
}

var nextConnID atomic.Uint64

type frame struct {
	kind int
	data []byte
}

// Connection wraps one websocket attached to a room.
type Connection struct {
	id       uint64
	code     string
	role     Role
	clientID int32 // 0 for spectators

	ws     *websocket.Conn
	send   chan frame
	logger zerolog.Logger

	mu           sync.Mutex
	connectedAt  time.Time
	lastActivity time.Time
	closed       bool
	closeCh      chan struct{}
}

// NewConnection wraps an upgraded websocket.
func NewConnection(ws *websocket.Conn, code string, role Role, clientID int32, bufferSize int) *Connection {
	if bufferSize < 1 {
		bufferSize = 1
	}
	now := time.Now()
	return &Connection{
		id:           nextConnID.Add(1),
		code:         code,
		role:         role,
		clientID:     clientID,
		ws:           ws,
		send:         make(chan frame, bufferSize),
		connectedAt:  now,
		lastActivity: now,
		closeCh:      make(chan struct{}),
		logger: log.With().
			Str("component", "connection").
			Str("code", code).
			Str("role", role.String()).
			Int32("client_id", clientID).
			Logger(),
	}
}

func (c *Connection) ID() uint64             { return c.id }
func (c *Connection) Code() string           { return c.code }
func (c *Connection) Role() Role             { return c.role }
func (c *Connection) ClientID() int32        { return c.clientID }
func (c *Connection) ConnectedAt() time.Time { return c.connectedAt }

// Send queues a binary frame. A connection whose buffer is full is closed
// rather than allowed to stall the room.
func (c *Connection) Send(data []byte) error {
	return c.enqueue(frame{kind: websocket.BinaryMessage, data: data})
}

// SendText queues a text frame.
func (c *Connection) SendText(data []byte) error {
	return c.enqueue(frame{kind: websocket.TextMessage, data: data})
}

func (c *Connection) enqueue(f frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	select {
	case c.send <- f:
		return nil
	default:
		c.logger.Warn().Msg("send buffer full, dropping connection")
		c.closeLocked()
		return ErrSendBufferFull
	}
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// LastActivity returns the time of the last read.
func (c *Connection) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// Close stops the pumps and closes the socket.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Connection) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.closeCh)
}

// IsClosed returns whether the connection has been closed.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// writePump drains the send buffer to the socket and keeps it alive with
// pings. It owns every write on ws.
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.closeCh:
			return
		case f := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(f.kind, f.data); err != nil {
				c.logger.Debug().Err(err).Msg("write failed")
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

// readPump delivers every binary frame to fn until the socket fails.
func (c *Connection) readPump(fn func(data []byte)) {
	defer c.Close()

	c.ws.SetReadLimit(maxMessage)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.touch()
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug().Err(err).Msg("connection lost")
			}
			return
		}
		c.touch()
		if kind != websocket.BinaryMessage || fn == nil {
			continue
		}
		fn(data)
	}
}

// ConnectionRegistry tracks the live connections of every room.
type ConnectionRegistry struct {
	mu    sync.RWMutex
	rooms map[string]map[uint64]*Connection
}

// NewConnectionRegistry creates a new ConnectionRegistry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		rooms: make(map[string]map[uint64]*Connection),
	}
}

// Register adds a connection to its room.
func (r *ConnectionRegistry) Register(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.rooms[conn.code]
	if !ok {
		conns = make(map[uint64]*Connection)
		r.rooms[conn.code] = conns
	}
	conns[conn.id] = conn
	log.Debug().Str("code", conn.code).Uint64("conn", conn.id).Msg("connection registered")
}

// Unregister removes a connection from its room.
func (r *ConnectionRegistry) Unregister(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.rooms[conn.code]
	if !ok {
		return
	}
	delete(conns, conn.id)
	if len(conns) == 0 {
		delete(r.rooms, conn.code)
	}
	log.Debug().Str("code", conn.code).Uint64("conn", conn.id).Msg("connection unregistered")
}

// Room returns a snapshot of the connections attached to a room.
func (r *ConnectionRegistry) Room(code string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.rooms[code]
	out := make([]*Connection, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}

// Count returns the number of live connections.
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, conns := range r.rooms {
		n += len(conns)
	}
	return n
}

// CloseRoom closes every connection attached to a room.
func (r *ConnectionRegistry) CloseRoom(code string) {
	for _, c := range r.Room(code) {
		c.Close()
	}
}

// CloseAll closes every connection.
func (r *ConnectionRegistry) CloseAll() {
	r.mu.RLock()
	codes := make([]string, 0, len(r.rooms))
	for code := range r.rooms {
		codes = append(codes, code)
	}
	r.mu.RUnlock()

	for _, code := range codes {
		r.CloseRoom(code)
	}
	log.Info().Msg("all connections closed")
}

// CleanStale closes connections that have been silent for longer than
// timeout.
func (r *ConnectionRegistry) CleanStale(timeout time.Duration) int {
	r.mu.RLock()
	var stale []*Connection
	cutoff := time.Now().Add(-timeout)
	for _, conns := range r.rooms {
		for _, c := range conns {
			if c.LastActivity().Before(cutoff) {
				stale = append(stale, c)
			}
		}
	}
	r.mu.RUnlock()

	for _, c := range stale {
		c.logger.Warn().Time("last_activity", c.LastActivity()).Msg("cleaned stale connection")
		c.Close()
	}
	return len(stale)
}
