package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shubhanshu2103/collaborative-whiteboard/internal/wire"
)

const (
	sendBuffer     = 256
	authzTimeout   = 5 * time.Second
	writeDeadline  = 10 * time.Second
	maxMessageSize = 1 << 20
)

// Client is one websocket connection multiplexed by the hub. The reader
// goroutine parses and pre-authorizes messages; all room and presence
// state is touched only by the hub's run loop.
//
// send stays open for the connection's whole life. Teardown is signalled
// through done, so a reader goroutine still inside an access check can
// never hit a closed channel.
type Client struct {
	id        string
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// owned by the hub run loop
	userID string
	room   string
}

// finish signals the write pump to shut down. Safe to call from any
// goroutine, any number of times.
func (c *Client) finish() {
	c.closeOnce.Do(func() { close(c.done) })
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

func (c *Client) readPump() {
	defer func() {
		// When the run loop has already exited, nobody drains
		// unregister; release the write pump directly instead.
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stopped:
			c.finish()
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg wire.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.hub.log.Warn("malformed payload", "conn", c.id, "err", err)
			continue
		}
		switch msg.Event {
		case wire.EventJoinRoom:
			c.handleJoin(msg)
		case "":
			c.hub.log.Warn("message without event", "conn", c.id)
		default:
			select {
			case c.hub.inbound <- inbound{c: c, msg: msg}:
			case <-c.hub.stopped:
				return
			}
		}
	}
}

// handleJoin runs the access-control check on the reader goroutine so the
// hub loop never blocks on the board service. Only an authorized (or
// anonymous) join is forwarded to the loop.
func (c *Client) handleJoin(msg wire.Message) {
	if msg.RoomID == "" {
		return
	}
	if msg.UserID != "" && c.hub.access != nil {
		ctx, cancel := context.WithTimeout(context.Background(), authzTimeout)
		allowed, err := c.hub.access.Allowed(ctx, msg.RoomID, msg.UserID)
		cancel()
		if err != nil {
			c.hub.log.Warn("room access check failed", "conn", c.id, "room", msg.RoomID, "err", err)
			c.enqueue(wire.Message{Event: wire.EventRoomError, RoomID: msg.RoomID, Error: "authorization check failed"})
			return
		}
		if !allowed {
			c.hub.log.Info("room join denied", "conn", c.id, "room", msg.RoomID, "user", msg.UserID)
			c.enqueue(wire.Message{Event: wire.EventRoomError, RoomID: msg.RoomID, Error: "unauthorized: you do not have permission to view this board"})
			return
		}
	}
	select {
	case c.hub.inbound <- inbound{c: c, msg: msg}:
	case <-c.hub.stopped:
	}
}

// enqueue marshals and queues one message for this connection, dropping it
// if the client cannot keep up or has already been torn down.
func (c *Client) enqueue(msg wire.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.hub.log.Warn("marshal outbound", "conn", c.id, "err", err)
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	default:
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.done:
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
