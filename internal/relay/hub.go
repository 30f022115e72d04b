// Package relay is the server side of the whiteboard: it multiplexes
// websocket connections into per-board rooms, authorizes room entry, and
// fans out operations and presence events to the other room members. It
// relays, it never merges; conflict resolution happens in each receiving
// peer's store.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/shubhanshu2103/collaborative-whiteboard/internal/wire"
)

type inbound struct {
	c   *Client
	msg wire.Message
}

type bridged struct {
	roomID  string
	payload []byte
}

// Hub owns all room membership and presence state. A single run-loop
// goroutine is the only writer, so joins and leaves are safe while a
// broadcast is in flight; a join racing a broadcast may or may not see it.
type Hub struct {
	log    *slog.Logger
	access AccessChecker
	bridge *Bridge

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	fromBridge chan bridged
	queries    chan func()
	stopped    chan struct{}

	clients  map[*Client]bool
	rooms    map[string]map[*Client]bool
	presence *Presence

	upgrader websocket.Upgrader
}

// NewHub creates a hub. access may be nil (every join admitted) and bridge
// may be nil (single relay instance).
func NewHub(log *slog.Logger, access AccessChecker, bridge *Bridge) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:        log,
		access:     access,
		bridge:     bridge,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound, 64),
		fromBridge: make(chan bridged, 64),
		queries:    make(chan func()),
		stopped:    make(chan struct{}),
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		presence:   NewPresence(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Run drives the hub until ctx is cancelled. All membership state lives on
// this goroutine. On return the stopped channel is closed so pump
// goroutines blocked on hub channels can bail out.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			h.log.Info("connected", "conn", c.id)
		case c := <-h.unregister:
			h.drop(c)
		case in := <-h.inbound:
			h.handle(ctx, in.c, in.msg)
		case d := <-h.fromBridge:
			h.broadcastRaw(d.roomID, d.payload, nil)
		case fn := <-h.queries:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// ServeWS upgrades an HTTP request and hands the connection to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", "err", err)
		return
	}
	c := &Client{
		id:   ulid.Make().String(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	select {
	case h.register <- c:
	case <-h.stopped:
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// DeliverRemote injects a payload received from another relay instance via
// the bridge.
func (h *Hub) DeliverRemote(roomID string, payload []byte) {
	h.fromBridge <- bridged{roomID: roomID, payload: payload}
}

// drop removes a connection from its room and the presence registry.
// Idempotent: a slow client evicted during broadcast is already gone when
// its read pump unregisters.
func (h *Hub) drop(c *Client) {
	if !h.clients[c] {
		return
	}
	delete(h.clients, c)
	h.leaveRoom(c)
	h.presence.Remove(c.userID, c)
	c.finish()
	h.log.Info("disconnected", "conn", c.id)
}

func (h *Hub) leaveRoom(c *Client) {
	if c.room == "" {
		return
	}
	if members, ok := h.rooms[c.room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, c.room)
		}
	}
	c.room = ""
}

func (h *Hub) handle(ctx context.Context, c *Client, msg wire.Message) {
	switch msg.Event {
	case wire.EventRegisterUser:
		if msg.UserID == "" {
			return
		}
		c.userID = msg.UserID
		h.presence.Set(msg.UserID, c)
		h.log.Info("registered", "conn", c.id, "user", msg.UserID)

	case wire.EventJoinRoom:
		// Authorization already ran on the reader goroutine. One room per
		// connection: joining another leaves the first.
		h.leaveRoom(c)
		members, ok := h.rooms[msg.RoomID]
		if !ok {
			members = make(map[*Client]bool)
			h.rooms[msg.RoomID] = members
		}
		members[c] = true
		c.room = msg.RoomID
		h.log.Info("joined room", "conn", c.id, "room", msg.RoomID, "user", msg.UserID)

	case wire.EventOperation:
		if msg.RoomID == "" || !wire.ValidOperation(msg.Operation) {
			h.log.Warn("malformed operation dropped", "conn", c.id, "room", msg.RoomID)
			return
		}
		h.broadcast(ctx, msg.RoomID, msg, c)

	case wire.EventSyncCanvas:
		if msg.RoomID == "" || len(msg.State) == 0 {
			return
		}
		h.broadcast(ctx, msg.RoomID, msg, c)

	case wire.EventCursorMove:
		if msg.RoomID == "" {
			return
		}
		msg.ConnID = c.id
		h.broadcast(ctx, msg.RoomID, msg, c)

	case wire.EventDrawLine:
		if msg.RoomID == "" || len(msg.Data) == 0 {
			return
		}
		h.broadcast(ctx, msg.RoomID, msg, c)

	case wire.EventClear:
		if msg.RoomID == "" {
			return
		}
		// Unlike the rest, clear goes to the whole room, sender included.
		h.broadcast(ctx, msg.RoomID, msg, nil)

	case wire.EventSendMessage:
		if msg.RoomID == "" || len(msg.Message) == 0 {
			return
		}
		msg.Event = wire.EventReceiveMessage
		h.broadcast(ctx, msg.RoomID, msg, c)

	case wire.EventShareBoard:
		if msg.TargetUserID == "" || msg.BoardID == "" {
			return
		}
		target, ok := h.presence.Get(msg.TargetUserID)
		if !ok {
			return
		}
		target.enqueue(wire.Message{
			Event:    wire.EventBoardShared,
			BoardID:  msg.BoardID,
			SharedBy: c.userID,
		})

	default:
		h.log.Warn("unknown event dropped", "conn", c.id, "event", string(msg.Event))
	}
}

// broadcast fans a message out to the room, minus except when non-nil, and
// mirrors it to other relay instances through the bridge.
func (h *Hub) broadcast(ctx context.Context, roomID string, msg wire.Message, except *Client) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.log.Warn("marshal broadcast", "room", roomID, "err", err)
		return
	}
	h.broadcastRaw(roomID, payload, except)
	if h.bridge != nil {
		h.bridge.Publish(ctx, roomID, payload)
	}
}

func (h *Hub) broadcastRaw(roomID string, payload []byte, except *Client) {
	for c := range h.rooms[roomID] {
		if c == except {
			continue
		}
		select {
		case c.send <- payload:
		default:
			// Slow consumer: evict rather than stall the room.
			h.log.Warn("send buffer full, dropping client", "conn", c.id, "room", roomID)
			h.drop(c)
		}
	}
}

// RoomSize reports the current number of connections in a room. Answered
// by the run loop, so it observes a consistent membership snapshot.
func (h *Hub) RoomSize(roomID string) int {
	res := make(chan int, 1)
	h.queries <- func() { res <- len(h.rooms[roomID]) }
	return <-res
}

// UserOnline reports whether a registered user currently has a connection.
func (h *Hub) UserOnline(userID string) bool {
	res := make(chan bool, 1)
	h.queries <- func() {
		_, ok := h.presence.Get(userID)
		res <- ok
	}
	return <-res
}
