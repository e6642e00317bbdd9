package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/isqad/livelook-uplink/internal/roster"
	"github.com/isqad/livelook-uplink/internal/telemetry"
	"github.com/isqad/livelook-uplink/internal/uplink"
)

type Channel string

const (
	RosterMessages Channel = "roster"
	UplinkMessages Channel = "uplink"
)

var (
	ErrNoSession       = errors.New("roster update without session id")
	errSessionMismatch = errors.New("roster update for another session")
)

// buildChannel names a redis pub/sub channel
func (c Channel) buildChannel(sessionID string) string {
	return string(c) + ":" + sessionID
}

// buildSubject names a NATS subject
func (c Channel) buildSubject(sessionID string) string {
	return string(c) + "." + sessionID
}

type Publisher interface {
	PublishDecision(ctx context.Context, decision uplink.Decision) error
}

// RosterPublisher announces publisher changes of a session. Meeting
// signalling does this in production; operators use it to drive a session by hand.
type RosterPublisher interface {
	PublishRoster(ctx context.Context, update roster.Update) error
}

type Subscriber interface {
	SubscribeRoster(ctx context.Context, sessionID string) (*Subscription, error)
}

// Subscription delivers decoded roster updates of one session.
// Updates is closed after Close or when the transport goes away.
type Subscription struct {
	sessionID string
	updates   chan roster.Update
	done      chan struct{}

	lock      sync.Mutex
	closed    bool
	closeOnce sync.Once
	onClose   func() error
}

func newSubscription(sessionID string, onClose func() error) *Subscription {
	return &Subscription{
		sessionID: sessionID,
		updates:   make(chan roster.Update),
		done:      make(chan struct{}),
		onClose:   onClose,
	}
}

func (s *Subscription) Updates() <-chan roster.Update {
	return s.updates
}

func (s *Subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.onClose != nil {
			err = s.onClose()
		}
		s.finish()
	})
	return err
}

func (s *Subscription) finish() {
	s.lock.Lock()
	defer s.lock.Unlock()

	if !s.closed {
		s.closed = true
		close(s.updates)
	}
}

// deliver decodes payload and blocks until the consumer takes it or the subscription closes.
func (s *Subscription) deliver(payload []byte) {
	u, err := decodeUpdate(payload, s.sessionID)
	if err != nil {
		log.Error().Err(err).Str("service", "eventbus").Str("session", s.sessionID).Msg("drop roster update")
		telemetry.RosterUpdateDropped(dropReason(err))
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return
	}

	select {
	case s.updates <- u:
	case <-s.done:
	}
}

func encodeUpdate(u roster.Update) ([]byte, error) {
	if u.SessionID == "" {
		return nil, ErrNoSession
	}
	return json.Marshal(u)
}

func decodeUpdate(payload []byte, sessionID string) (roster.Update, error) {
	u := roster.Update{}
	if err := json.Unmarshal(payload, &u); err != nil {
		return u, err
	}
	if u.SessionID != "" && u.SessionID != sessionID {
		return u, errSessionMismatch
	}
	u.SessionID = sessionID

	return u, nil
}

func dropReason(err error) string {
	if errors.Is(err, errSessionMismatch) {
		return "session_mismatch"
	}
	return "decode"
}
