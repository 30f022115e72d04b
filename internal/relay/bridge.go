package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

const bridgePrefix = "board:"

// Bridge mirrors room traffic across relay instances through redis
// pub/sub: every room maps to one channel, and each instance tags its
// publications so it can ignore its own.
type Bridge struct {
	rdb        *redis.Client
	instanceID string
	log        *slog.Logger
}

type bridgeFrame struct {
	Instance string          `json:"instance"`
	Payload  json.RawMessage `json:"payload"`
}

func NewBridge(rdb *redis.Client, instanceID string, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{rdb: rdb, instanceID: instanceID, log: log}
}

// Publish mirrors one already-marshaled room message to the other
// instances. Failures are logged and dropped: cross-instance fan-out is
// best effort, the local room already got the message.
func (b *Bridge) Publish(ctx context.Context, roomID string, payload []byte) {
	frame, err := json.Marshal(bridgeFrame{Instance: b.instanceID, Payload: payload})
	if err != nil {
		b.log.Warn("bridge marshal", "room", roomID, "err", err)
		return
	}
	if err := b.rdb.Publish(ctx, bridgePrefix+roomID, frame).Err(); err != nil {
		b.log.Warn("bridge publish", "room", roomID, "err", err)
	}
}

// Run subscribes to every room channel and delivers foreign payloads until
// ctx is cancelled.
func (b *Bridge) Run(ctx context.Context, deliver func(roomID string, payload []byte)) {
	pubsub := b.rdb.PSubscribe(ctx, bridgePrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var frame bridgeFrame
			if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
				b.log.Warn("bridge decode", "channel", msg.Channel, "err", err)
				continue
			}
			if frame.Instance == b.instanceID {
				continue
			}
			deliver(strings.TrimPrefix(msg.Channel, bridgePrefix), frame.Payload)
		case <-ctx.Done():
			return
		}
	}
}
