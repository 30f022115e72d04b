package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"
	"github.com/google/uuid"

	"github.com/shubhanshu2103/collaborative-whiteboard/internal/crdt"
	"github.com/shubhanshu2103/collaborative-whiteboard/internal/scene"
	"github.com/shubhanshu2103/collaborative-whiteboard/internal/wire"
)

const mdnsService = "_collabboard._tcp"

// errUnauthorized ends the reconnect loop: retrying a denied join would
// only produce the same answer.
var errUnauthorized = errors.New("room join denied")

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// agent is a headless board peer. It mirrors one room through a local
// replica and scene, relays local mutations to the relay, and keeps a
// snapshot of the canvas on disk across restarts.
type agent struct {
	log      *slog.Logger
	relayURL string
	room     string
	userID   string
	peerID   string

	store     *crdt.Store
	history   *crdt.History
	projector *scene.Projector
	cache     *cache

	mu   sync.Mutex
	conn *websocket.Conn
}

func (a *agent) send(msg wire.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return
	}
	if err := a.conn.WriteJSON(msg); err != nil {
		a.log.Warn("relay write failed", "err", err)
	}
}

func (a *agent) closeConn() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		a.conn.Close()
	}
}

// connect dials the relay and announces identity, room, and any cached
// canvas state.
func (a *agent) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.relayURL, nil)
	if err != nil {
		a.log.Warn("relay dial failed", "url", a.relayURL, "err", err)
		return err
	}
	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()

	if a.userID != "" {
		a.send(wire.Message{Event: wire.EventRegisterUser, UserID: a.userID})
	}
	a.send(wire.Message{Event: wire.EventJoinRoom, RoomID: a.room, UserID: a.userID})

	if objects := a.store.All(); len(objects) > 0 {
		state, err := crdt.EncodeState(objects)
		if err != nil {
			a.log.Warn("state encode failed", "err", err)
		} else {
			a.send(wire.Message{Event: wire.EventSyncCanvas, RoomID: a.room, State: state})
		}
	}
	a.log.Info("joined room", "room", a.room, "peer", a.peerID)
	return nil
}

func (a *agent) readLoop() error {
	for {
		a.mu.Lock()
		conn := a.conn
		a.mu.Unlock()
		var msg wire.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		if err := a.handle(msg); err != nil {
			return err
		}
	}
}

func (a *agent) handle(msg wire.Message) error {
	switch msg.Event {
	case wire.EventOperation:
		if !wire.ValidOperation(msg.Operation) {
			a.log.Warn("rejecting malformed operation")
			return nil
		}
		a.store.ApplyRemote(*msg.Operation)
	case wire.EventSyncCanvas:
		state, err := crdt.DecodeState(msg.State)
		if err != nil {
			a.log.Warn("rejecting malformed canvas state", "err", err)
			return nil
		}
		a.mergeState(state)
	case wire.EventClear:
		a.clearCanvas()
	case wire.EventReceiveMessage:
		a.log.Info("chat message", "room", msg.RoomID, "body", string(msg.Message))
	case wire.EventBoardShared:
		a.log.Info("board shared with us", "board", msg.BoardID, "by", msg.SharedBy)
	case wire.EventRoomError:
		a.log.Error("relay refused room", "room", msg.RoomID, "reason", msg.Error)
		return errUnauthorized
	case wire.EventCursorMove, wire.EventDrawLine:
		// Transient UI traffic, nothing for a headless peer to do.
	default:
		a.log.Warn("unhandled event", "event", msg.Event)
	}
	return nil
}

// mergeState folds a full snapshot into the replica one object at a
// time. Each entry goes through the normal merge gate, so a snapshot
// can never roll back newer local edits.
func (a *agent) mergeState(state map[string]crdt.Object) {
	for _, obj := range state {
		o := obj.Clone()
		a.store.ApplyRemote(crdt.Operation{
			Type:      crdt.OpAdd,
			Object:    &o,
			Timestamp: obj.Timestamp,
			PeerID:    obj.PeerID,
		})
	}
}

// clearCanvas tombstones every live object at its current timestamp.
func (a *agent) clearCanvas() {
	for id, obj := range a.store.All() {
		if obj.IsDeleted {
			continue
		}
		a.store.ApplyRemote(crdt.Operation{
			Type:      crdt.OpDelete,
			ID:        id,
			Timestamp: obj.Timestamp,
			PeerID:    obj.PeerID,
		})
	}
}

// discoverRelay browses mDNS for an advertised relay instance.
func discoverRelay(ctx context.Context, log *slog.Logger) (string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", fmt.Errorf("mdns resolver: %w", err)
	}
	browseCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(browseCtx, mdnsService, "local.", entries); err != nil {
		return "", fmt.Errorf("mdns browse: %w", err)
	}
	for entry := range entries {
		if len(entry.AddrIPv4) == 0 {
			continue
		}
		url := fmt.Sprintf("ws://%s:%d/ws", entry.AddrIPv4[0], entry.Port)
		log.Info("discovered relay", "instance", entry.Instance, "url", url)
		return url, nil
	}
	return "", errors.New("no relay found on the local network")
}

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	relayURL := os.Getenv("RELAY_URL")
	if relayURL == "" {
		var err error
		relayURL, err = discoverRelay(ctx, log)
		if err != nil {
			log.Error("relay discovery failed", "err", err)
			os.Exit(1)
		}
	}

	c, err := openCache(envOrDefault("BOARD_CACHE_PATH", "agent.db"))
	if err != nil {
		log.Error("cache unavailable", "err", err)
		os.Exit(1)
	}
	defer c.Close()

	a := &agent{
		log:      log,
		relayURL: relayURL,
		room:     envOrDefault("BOARD_ROOM", "lobby"),
		userID:   os.Getenv("BOARD_USER"),
		peerID:   uuid.NewString(),
		cache:    c,
	}
	a.store = crdt.NewStore(a.peerID, func(op crdt.Operation) {
		o := op
		a.send(wire.Message{Event: wire.EventOperation, RoomID: a.room, Operation: &o})
	})
	a.history = crdt.NewHistory(a.store)
	a.projector = scene.NewProjector(a.store, a.history)
	defer a.projector.Dispose()

	a.store.Subscribe(func(objects map[string]crdt.Object, _ crdt.Operation, _, _ bool) {
		if err := a.cache.Save(a.room, objects); err != nil {
			a.log.Warn("snapshot save failed", "err", err)
		}
	})

	if snapshot, err := c.Load(a.room); err != nil {
		log.Warn("cached snapshot unreadable", "err", err)
	} else if snapshot != nil {
		a.store.Restore(snapshot)
		a.projector.RenderAll()
		log.Info("restored cached canvas", "room", a.room, "objects", len(snapshot))
	}

	go func() {
		<-ctx.Done()
		a.closeConn()
	}()

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0
	for ctx.Err() == nil {
		if err := backoff.Retry(func() error { return a.connect(ctx) }, backoff.WithContext(bo, ctx)); err != nil {
			break
		}
		bo.Reset()
		err := a.readLoop()
		a.closeConn()
		if errors.Is(err, errUnauthorized) {
			os.Exit(1)
		}
		if ctx.Err() == nil {
			log.Warn("relay connection lost, reconnecting", "err", err)
		}
	}
	log.Info("agent stopped")
}
