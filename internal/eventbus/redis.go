package eventbus

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/isqad/livelook-uplink/internal/roster"
	"github.com/isqad/livelook-uplink/internal/uplink"
)

type Eventbus struct {
	rdb *redis.Client
}

// RedisPubSub is factory for building Eventbus based on redis pubsub
func RedisPubSub(rdb *redis.Client) *Eventbus {
	return &Eventbus{rdb: rdb}
}

func (e *Eventbus) PublishDecision(ctx context.Context, decision uplink.Decision) error {
	msg, err := json.Marshal(decision)
	if err != nil {
		return err
	}
	return e.rdb.Publish(ctx, UplinkMessages.buildChannel(decision.SessionID), msg).Err()
}

func (e *Eventbus) PublishRoster(ctx context.Context, update roster.Update) error {
	msg, err := encodeUpdate(update)
	if err != nil {
		return err
	}
	return e.rdb.Publish(ctx, RosterMessages.buildChannel(update.SessionID), msg).Err()
}

func (e *Eventbus) SubscribeRoster(ctx context.Context, sessionID string) (*Subscription, error) {
	pubsub := e.rdb.Subscribe(ctx, RosterMessages.buildChannel(sessionID))
	// Wait until subscription is created
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	sub := newSubscription(sessionID, pubsub.Close)

	go func() {
		defer sub.finish()

		for msg := range pubsub.Channel() {
			sub.deliver([]byte(msg.Payload))
		}
		log.Debug().Str("service", "eventbus").Str("session", sessionID).Msg("redis roster subscription closed")
	}()

	return sub, nil
}

func (e *Eventbus) Close() error {
	return e.rdb.Close()
}
