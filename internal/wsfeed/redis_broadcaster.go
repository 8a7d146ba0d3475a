package wsfeed

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// RedisBroadcaster fans a publish out through Redis pub/sub so multiple
// instances of this service can share one WebSocket feed. Redis here is
// never the source of truth for any balance, order, or pool state — it only
// carries ephemeral fan-out traffic, the ambient-stack role SPEC_FULL.md
// assigns it now that all core state lives in memory.
type RedisBroadcaster struct {
	rdb  *redis.Client
	log  zerolog.Logger
	hub  *Hub
	ctx  context.Context
	stop context.CancelFunc
}

type redisEnvelope struct {
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

// NewRedisBroadcaster wraps hub, publishing every local Publish call onto a
// shared Redis channel and relaying messages published by other instances
// back into hub's local client set.
func NewRedisBroadcaster(rdb *redis.Client, hub *Hub, log zerolog.Logger) *RedisBroadcaster {
	ctx, cancel := context.WithCancel(context.Background())
	rb := &RedisBroadcaster{
		rdb:  rdb,
		log:  log.With().Str("component", "wsfeed_redis").Logger(),
		hub:  hub,
		ctx:  ctx,
		stop: cancel,
	}
	go rb.subscribeLoop()
	return rb
}

const pubsubChannel = "dex:wsfeed"

func (rb *RedisBroadcaster) Publish(channel string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		rb.log.Error().Err(err).Msg("wsfeed: failed to marshal payload")
		return
	}
	env := redisEnvelope{Channel: channel, Payload: data}
	raw, err := json.Marshal(env)
	if err != nil {
		rb.log.Error().Err(err).Msg("wsfeed: failed to marshal envelope")
		return
	}
	if err := rb.rdb.Publish(rb.ctx, pubsubChannel, raw).Err(); err != nil {
		rb.log.Error().Err(err).Msg("wsfeed: redis publish failed")
	}
}

func (rb *RedisBroadcaster) subscribeLoop() {
	sub := rb.rdb.Subscribe(rb.ctx, pubsubChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-rb.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env redisEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				continue
			}
			var payload interface{}
			if err := json.Unmarshal(env.Payload, &payload); err != nil {
				continue
			}
			rb.hub.Publish(env.Channel, payload)
		}
	}
}

// Close stops the subscribe loop.
func (rb *RedisBroadcaster) Close() {
	rb.stop()
}
