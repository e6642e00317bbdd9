package api

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/isqad/melody"
	"github.com/rs/zerolog/log"

	"github.com/isqad/livelook-uplink/internal/uplink"
)

const maxObserverMessageSize = 1024

var ErrFeedClosed = errors.New("decision feed is closed")

// Feed keeps the latest committed decision and streams every new one to the
// websocket observers. A full observer buffer drops the message for that
// observer only.
type Feed struct {
	lock    sync.RWMutex
	latest  *uplink.Decision
	payload []byte
	closed  bool

	websocket *melody.Melody
}

func NewFeed() *Feed {
	f := &Feed{websocket: melody.New()}
	f.websocket.Config.MaxMessageSize = maxObserverMessageSize

	f.websocket.HandleConnect(f.handleConnect)
	f.websocket.HandleError(func(s *melody.Session, err error) {
		log.Warn().Err(err).Str("service", "feed").Msg("observer error")
	})

	return f
}

// PublishDecision implements rtc.DecisionSink.
func (f *Feed) PublishDecision(_ context.Context, d uplink.Decision) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return err
	}

	f.lock.Lock()
	defer f.lock.Unlock()

	f.latest = &d
	f.payload = payload

	// the hub stops with Close, broadcasting after that would block
	if f.closed {
		return ErrFeedClosed
	}
	return f.websocket.Broadcast(payload)
}

// Latest returns the last published decision.
func (f *Feed) Latest() (uplink.Decision, bool) {
	f.lock.RLock()
	defer f.lock.RUnlock()

	if f.latest == nil {
		return uplink.Decision{}, false
	}
	return *f.latest, true
}

func (f *Feed) Close() error {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true

	return f.websocket.Close()
}

// a new observer starts from the current decision
func (f *Feed) handleConnect(s *melody.Session) {
	f.lock.RLock()
	defer f.lock.RUnlock()

	if f.payload == nil {
		return
	}
	if err := s.Write(f.payload); err != nil {
		log.Error().Err(err).Str("service", "feed").Msg("can't write the latest decision")
	}
}
