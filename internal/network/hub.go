package network

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/skeld-project/skeld/internal/protocol"
	"github.com/skeld-project/skeld/internal/room"
	"github.com/skeld-project/skeld/internal/util"
)

// RoomHandler is the server side of a player connection.
type RoomHandler interface {
	// Join admits a new client to the room and returns its client id.
	Join(code string) (int32, error)
	// Leave removes a client from the room.
	Leave(code string, clientID int32)
	// Inbound hands a received packet to the room. data is the raw frame,
	// messages its decoded root messages.
	Inbound(code string, clientID int32, data []byte, messages []protocol.RootMessage) error
}

// Welcome is the first frame a connection receives, as JSON text.
type Welcome struct {
	Type     string `json:"type"`
	Code     string `json:"code"`
	Role     string `json:"role"`
	ClientID int32  `json:"client_id,omitempty"`
}

// Hub owns every websocket attached to a room. It relays client packets to
// the other clients, hands them to the room, and delivers the room's
// flushed batches.
type Hub struct {
	registry   *ConnectionRegistry
	handler    RoomHandler
	upgrader   websocket.Upgrader
	bufferSize int
	logger     zerolog.Logger
}

// NewHub creates a hub. origins lists the accepted Origin headers; an
// empty list accepts any origin.
func NewHub(handler RoomHandler, origins []string, bufferSize int) *Hub {
	h := &Hub{
		registry:   NewConnectionRegistry(),
		handler:    handler,
		bufferSize: bufferSize,
		logger:     util.ComponentLogger("hub"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4 * 1024,
		WriteBufferSize: 16 * 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(origins) == 0 {
				return true
			}
			return slices.Contains(origins, r.Header.Get("Origin"))
		},
	}
	return h
}

// Registry exposes the live connections.
func (h *Hub) Registry() *ConnectionRegistry { return h.registry }

// ServePlayer upgrades the request and attaches it to a room as a player.
// It blocks until the connection closes.
func (h *Hub) ServePlayer(w http.ResponseWriter, r *http.Request, code string) error {
	clientID, err := h.handler.Join(code)
	if err != nil {
		return fmt.Errorf("failed to join room %s: %w", code, err)
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.handler.Leave(code, clientID)
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	conn := NewConnection(ws, code, RolePlayer, clientID, h.bufferSize)
	h.attach(conn)
	defer h.detach(conn)

	conn.readPump(func(data []byte) {
		h.receive(conn, data)
	})
	return nil
}

// ServeSpectator upgrades the request and attaches it to a room as a
// read-only spectator. It blocks until the connection closes.
func (h *Hub) ServeSpectator(w http.ResponseWriter, r *http.Request, code string) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	conn := NewConnection(ws, code, RoleSpectator, 0, h.bufferSize)
	h.attach(conn)
	defer h.detach(conn)

	conn.readPump(nil)
	return nil
}

func (h *Hub) attach(conn *Connection) {
	h.registry.Register(conn)
	go conn.writePump()

	welcome, _ := json.Marshal(Welcome{
		Type:     "welcome",
		Code:     conn.code,
		Role:     conn.role.String(),
		ClientID: conn.clientID,
	})
	_ = conn.SendText(welcome)
	conn.logger.Info().Msg("connection attached")
}

func (h *Hub) detach(conn *Connection) {
	conn.Close()
	h.registry.Unregister(conn)
	if conn.role == RolePlayer {
		h.handler.Leave(conn.code, conn.clientID)
	}
	conn.logger.Info().Msg("connection detached")
}

// receive relays a player's packet and hands it to the room. Packets that
// do not decode are dropped.
func (h *Hub) receive(from *Connection, data []byte) {
	messages, err := protocol.DecodeRoot(data)
	if err != nil {
		from.logger.Debug().Err(err).Msg("dropping undecodable packet")
		return
	}
	h.relay(from, messages)
	if err := h.handler.Inbound(from.code, from.clientID, data, messages); err != nil {
		from.logger.Warn().Err(err).Msg("room rejected packet")
	}
}

// relay forwards client traffic the way the room expects its transport to:
// targeted game data goes to its recipient, everything else to every other
// player. Spectators see all of it.
func (h *Hub) relay(from *Connection, messages []protocol.RootMessage) {
	var broadcast []protocol.RootMessage
	targeted := make(map[int32][]protocol.RootMessage)
	for _, m := range messages {
		switch msg := m.(type) {
		case *protocol.GameDataPayload:
			broadcast = append(broadcast, msg)
		case *protocol.GameDataToPayload:
			targeted[msg.Recipient] = append(targeted[msg.Recipient], msg)
		}
	}
	if len(broadcast) == 0 && len(targeted) == 0 {
		return
	}

	var all []byte
	if len(broadcast) > 0 {
		all = protocol.EncodeRoot(broadcast...)
	}
	for _, c := range h.registry.Room(from.code) {
		if c.id == from.id {
			continue
		}
		if all != nil && (c.role == RoleSpectator || c.clientID != from.clientID) {
			_ = c.Send(all)
		}
		if c.role == RoleSpectator {
			for _, msgs := range targeted {
				_ = c.Send(protocol.EncodeRoot(msgs...))
			}
		} else if msgs, ok := targeted[c.clientID]; ok {
			_ = c.Send(protocol.EncodeRoot(msgs...))
		}
	}
}

// Disconnect closes a player's connection after grace, giving the room
// time to flush a kick notice first.
func (h *Hub) Disconnect(code string, clientID int32, grace time.Duration) {
	for _, c := range h.registry.Room(code) {
		if c.role == RolePlayer && c.clientID == clientID {
			time.AfterFunc(grace, c.Close)
		}
	}
}

// CloseRoom drops every connection attached to a room.
func (h *Hub) CloseRoom(code string) {
	h.registry.CloseRoom(code)
}

// Close drops every connection.
func (h *Hub) Close() {
	h.registry.CloseAll()
}

// Broadcaster returns the room Broadcaster delivering to a room's
// connections.
func (h *Hub) Broadcaster(code string) room.Broadcaster {
	return &hubBroadcaster{hub: h, code: code}
}

type hubBroadcaster struct {
	hub  *Hub
	code string
}

func (b *hubBroadcaster) Broadcast(_ context.Context, messages []protocol.GameDataMessage, _ bool, recipient int32, payloads []protocol.RootMessage) error {
	code, err := protocol.CodeToInt(b.code)
	if err != nil {
		return fmt.Errorf("failed to encode room code %s: %w", b.code, err)
	}
	data := protocol.EncodeBatch(code, recipient, messages, payloads)

	for _, c := range b.hub.registry.Room(b.code) {
		if recipient != room.Everyone && c.role == RolePlayer && c.clientID != recipient {
			continue
		}
		if err := c.Send(data); err != nil {
			c.logger.Debug().Err(err).Msg("dropped batch")
		}
	}
	return nil
}
