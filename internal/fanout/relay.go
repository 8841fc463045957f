package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"messaging-service/internal/observability"
)

type relayEnvelope struct {
	Origin  string          `json:"origin"`
	UserIDs []string        `json:"user_ids"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

// RedisRelay shares pushes between instances over a Redis pub/sub channel.
// Each instance delivers relayed frames to its own sockets only.
type RedisRelay struct {
	client  *redis.Client
	channel string
	origin  string
	pusher  Pusher
	logger  *slog.Logger
}

// NewRedisClient parses url and checks the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewRedisRelay builds a relay with a fresh origin id.
func NewRedisRelay(client *redis.Client, channel string, pusher Pusher, logger *slog.Logger) *RedisRelay {
	return &RedisRelay{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		pusher:  pusher,
		logger:  logger,
	}
}

// Publish sends one envelope for all userIDs.
func (r *RedisRelay) Publish(ctx context.Context, userIDs []string, event string, frame []byte) error {
	data, err := json.Marshal(relayEnvelope{
		Origin:  r.origin,
		UserIDs: userIDs,
		Event:   event,
		Data:    frame,
	})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, data).Err()
}

// Run subscribes until ctx is cancelled, reconnecting with exponential
// backoff from 1s up to 30s.
func (r *RedisRelay) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		err := r.subscribe(ctx, func() { backoff = time.Second })
		if ctx.Err() != nil {
			return
		}
		r.logger.Warn("redis relay subscriber stopped", "channel", r.channel, "error", err, "retry_in", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

func (r *RedisRelay) subscribe(ctx context.Context, onMessage func()) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	r.logger.Info("redis relay subscribed", "channel", r.channel, "origin", r.origin)

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			return err
		}
		onMessage()
		r.handle(msg.Payload)
	}
}

// handle delivers a relayed envelope locally. Envelopes from this instance
// were already delivered by the Dispatcher.
func (r *RedisRelay) handle(payload string) {
	var env relayEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.logger.Warn("malformed relay envelope", "error", err)
		return
	}
	if env.Origin == r.origin {
		return
	}
	observability.IncRelay("received")

	delivered := 0
	for _, userID := range NewRecipients(env.UserIDs...).Members() {
		if r.pusher.PushFrame(userID, env.Data) > 0 {
			delivered++
		}
	}
	observability.AddFanout(env.Event, "relayed", delivered)
}
