package relay

import (
	"context"
	"encoding/json"
	"time"

	"chatroom-server/internal/chatroom"
	"chatroom-server/internal/metrics"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const publishTimeout = 2 * time.Second

// envelope is the wire format on the shared channel.
type envelope struct {
	Origin string         `json:"origin"`
	Event  chatroom.Event `json:"event"`
}

// RedisRelay mirrors room events between server instances over Redis pub/sub.
// Events are delivered to the local hub straight away and forwarded to the
// other instances in the background; events that arrive from Redis go to the
// local hub only.
type RedisRelay struct {
	client     *redis.Client
	channel    string
	instanceID string
	local      chatroom.Publisher
	outbox     chan []byte
}

func New(ctx context.Context, redisURL, channel string, local chatroom.Publisher, queue int) (*RedisRelay, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return newRelay(client, channel, local, queue), nil
}

func newRelay(client *redis.Client, channel string, local chatroom.Publisher, queue int) *RedisRelay {
	if queue <= 0 {
		queue = 512
	}
	return &RedisRelay{
		client:     client,
		channel:    channel,
		instanceID: uuid.NewString(),
		local:      local,
		outbox:     make(chan []byte, queue),
	}
}

func (r *RedisRelay) InstanceID() string {
	return r.instanceID
}

// Publish implements chatroom.Publisher.
func (r *RedisRelay) Publish(roomID uint, ev chatroom.Event) {
	ev.RoomID = roomID
	r.local.Publish(roomID, ev)

	payload, err := json.Marshal(envelope{Origin: r.instanceID, Event: ev})
	if err != nil {
		log.Error().Err(err).Str("event", string(ev.Type)).Msg("encoding relay envelope")
		return
	}

	select {
	case r.outbox <- payload:
	default:
		if ev.Type.RevokesMembership() {
			go r.enqueueLate(ev, payload)
			return
		}
		metrics.RecordEventDropped("relay_queue_full")
		log.Warn().Str("event", string(ev.Type)).Uint("room_id", roomID).Msg("relay queue full, event not forwarded")
	}
}

// enqueueLate waits briefly for outbox space so other instances still drop
// the subscriptions a revocation ends.
func (r *RedisRelay) enqueueLate(ev chatroom.Event, payload []byte) {
	select {
	case r.outbox <- payload:
	case <-time.After(publishTimeout):
		metrics.RecordEventDropped("relay_queue_full")
		log.Error().Str("event", string(ev.Type)).Uint("room_id", ev.RoomID).Msg("relay queue full, revocation not forwarded")
	}
}

// Run forwards queued events to Redis and applies events from other instances
// until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	incoming := sub.Channel()

	log.Info().Str("channel", r.channel).Str("instance_id", r.instanceID).Msg("redis relay started")
	for {
		select {
		case payload := <-r.outbox:
			r.forward(ctx, payload)
		case msg, ok := <-incoming:
			if !ok {
				return
			}
			r.receive([]byte(msg.Payload))
		case <-ctx.Done():
			log.Info().Msg("redis relay stopped")
			return
		}
	}
}

func (r *RedisRelay) forward(ctx context.Context, payload []byte) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	start := time.Now()
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		metrics.RecordEventDropped("relay_publish_failed")
		log.Error().Err(err).Msg("publishing to redis")
		return
	}
	metrics.RelayLatency.Observe(time.Since(start).Seconds())
}

// receive hands an event from another instance to the local hub.
func (r *RedisRelay) receive(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		log.Warn().Err(err).Msg("malformed relay envelope")
		return
	}
	if env.Origin == r.instanceID {
		return
	}
	if env.Event.RoomID == 0 || env.Event.Type == "" {
		log.Warn().Str("origin", env.Origin).Msg("relay envelope without room or type")
		return
	}
	r.local.Publish(env.Event.RoomID, env.Event)
}

func (r *RedisRelay) Close() error {
	return r.client.Close()
}
