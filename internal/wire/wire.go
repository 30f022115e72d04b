// Package wire defines the JSON message envelope exchanged between peers
// and the session relay. Each message carries an event discriminant plus
// the fields that event uses; both sides ignore fields they do not know.
package wire

import (
	"encoding/json"

	"github.com/shubhanshu2103/collaborative-whiteboard/internal/crdt"
)

type Event string

const (
	EventRegisterUser   Event = "register-user"
	EventJoinRoom       Event = "join-room"
	EventRoomError      Event = "room-error"
	EventOperation      Event = "crdt-operation"
	EventSyncCanvas     Event = "sync-canvas"
	EventCursorMove     Event = "cursor-move"
	EventDrawLine       Event = "draw-line"
	EventClear          Event = "clear"
	EventSendMessage    Event = "send-message"
	EventReceiveMessage Event = "receive-message"
	EventShareBoard     Event = "share-board"
	EventBoardShared    Event = "board-shared"
)

// Message is the envelope for every event.
type Message struct {
	Event  Event  `json:"event"`
	RoomID string `json:"roomId,omitempty"`
	UserID string `json:"userId,omitempty"`

	// crdt-operation
	Operation *crdt.Operation `json:"operation,omitempty"`

	// sync-canvas: a full serialized store snapshot
	State json.RawMessage `json:"state,omitempty"`

	// room-error
	Error string `json:"error,omitempty"`

	// cursor-move; ConnID identifies the sending connection so receivers
	// can keep one cursor per peer
	Username string  `json:"username,omitempty"`
	X        float64 `json:"x,omitempty"`
	Y        float64 `json:"y,omitempty"`
	ConnID   string  `json:"connId,omitempty"`

	// draw-line and chat payloads, opaque to the relay
	Data    json.RawMessage `json:"data,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`

	// share-board / board-shared
	TargetUserID string `json:"targetUserId,omitempty"`
	BoardID      string `json:"boardId,omitempty"`
	SharedBy     string `json:"sharedBy,omitempty"`
}

// ValidOperation checks the minimum a relay needs before fanning an
// operation out: the discriminant, the origin identity, and a target id.
// Anything deeper is the receiving store's concern, not the relay's.
func ValidOperation(op *crdt.Operation) bool {
	if op == nil || op.PeerID == "" {
		return false
	}
	switch op.Type {
	case crdt.OpAdd:
		return op.Object != nil && op.Object.ID != ""
	case crdt.OpUpdate, crdt.OpDelete:
		return op.ID != ""
	}
	return false
}
