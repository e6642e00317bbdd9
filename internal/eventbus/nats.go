package eventbus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/isqad/livelook-uplink/internal/roster"
	"github.com/isqad/livelook-uplink/internal/uplink"
)

type NATS struct {
	nc *nats.Conn

	lock sync.Mutex
	subs map[*Subscription]struct{}
}

func NewNATS(natsAddr string) (*NATS, error) {
	n := &NATS{subs: make(map[*Subscription]struct{})}

	nc, err := nats.Connect(natsAddr,
		nats.NoEcho(),
		nats.Name("livelook-uplink"),
		nats.ClosedHandler(n.connectionClosed),
	)
	if err != nil {
		return nil, err
	}
	n.nc = nc

	return n, nil
}

// connectionClosed ends every roster subscription once the connection is gone for good.
func (n *NATS) connectionClosed(_ *nats.Conn) {
	n.lock.Lock()
	subs := make([]*Subscription, 0, len(n.subs))
	for sub := range n.subs {
		subs = append(subs, sub)
	}
	n.subs = make(map[*Subscription]struct{})
	n.lock.Unlock()

	for _, sub := range subs {
		log.Warn().Str("service", "eventbus").Str("session", sub.sessionID).Msg("nats connection closed")
		sub.finish()
	}
}

func (n *NATS) track(sub *Subscription) {
	n.lock.Lock()
	defer n.lock.Unlock()

	n.subs[sub] = struct{}{}
}

func (n *NATS) untrack(sub *Subscription) {
	n.lock.Lock()
	defer n.lock.Unlock()

	delete(n.subs, sub)
}

func (n *NATS) PublishDecision(_ context.Context, decision uplink.Decision) error {
	msg, err := json.Marshal(decision)
	if err != nil {
		return err
	}
	return n.nc.Publish(UplinkMessages.buildSubject(decision.SessionID), msg)
}

func (n *NATS) PublishRoster(_ context.Context, update roster.Update) error {
	msg, err := encodeUpdate(update)
	if err != nil {
		return err
	}
	return n.nc.Publish(RosterMessages.buildSubject(update.SessionID), msg)
}

func (n *NATS) SubscribeRoster(_ context.Context, sessionID string) (*Subscription, error) {
	var (
		natsSub *nats.Subscription
		sub     *Subscription
	)

	sub = newSubscription(sessionID, func() error {
		n.untrack(sub)
		if natsSub == nil || !natsSub.IsValid() {
			return nil
		}
		return natsSub.Unsubscribe()
	})

	natsSub, err := n.nc.Subscribe(RosterMessages.buildSubject(sessionID), func(msg *nats.Msg) {
		sub.deliver(msg.Data)
	})
	if err != nil {
		return nil, err
	}
	n.track(sub)
	// closed while subscribing, the handler may have run already
	if n.nc.IsClosed() {
		n.connectionClosed(n.nc)
	}

	log.Debug().Str("service", "eventbus").Str("subject", natsSub.Subject).Msg("nats roster subscription created")

	return sub, nil
}

func (n *NATS) Close() error {
	log.Info().Str("service", "eventbus").Msg("drain nats connection")

	return n.nc.Drain()
}
