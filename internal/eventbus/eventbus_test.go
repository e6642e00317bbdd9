package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isqad/livelook-uplink/internal/roster"
)

const mockSessionID = "0c4038d6-da68-11ec-9d64-0242ac120002"

func TestChannelNames(t *testing.T) {
	assert.Equal(t, "roster:"+mockSessionID, RosterMessages.buildChannel(mockSessionID))
	assert.Equal(t, "uplink.s1", UplinkMessages.buildSubject("s1"))
}

func TestDecodeUpdate(t *testing.T) {
	t.Run("single attendee", func(t *testing.T) {
		u, err := decodeUpdate([]byte(`{"attendee_id":"a","publishing":true}`), mockSessionID)
		require.NoError(t, err)

		assert.Equal(t, roster.Update{SessionID: mockSessionID, AttendeeID: "a", Publishing: true}, u)
	})

	t.Run("snapshot", func(t *testing.T) {
		u, err := decodeUpdate([]byte(`{"session_id":"`+mockSessionID+`","publishers":["a","b"]}`), mockSessionID)
		require.NoError(t, err)

		assert.Equal(t, []string{"a", "b"}, u.Publishers)
	})

	t.Run("other session", func(t *testing.T) {
		_, err := decodeUpdate([]byte(`{"session_id":"other","attendee_id":"a"}`), mockSessionID)
		assert.Equal(t, errSessionMismatch, err)
		assert.Equal(t, "session_mismatch", dropReason(err))
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := decodeUpdate([]byte(`{not json`), mockSessionID)
		assert.Error(t, err)
		assert.Equal(t, "decode", dropReason(err))
	})
}

func TestEncodeUpdate(t *testing.T) {
	_, err := encodeUpdate(roster.Update{AttendeeID: "a"})
	assert.ErrorIs(t, err, ErrNoSession)

	for _, update := range []roster.Update{
		{SessionID: mockSessionID, AttendeeID: "a", Publishing: true},
		{SessionID: mockSessionID, Publishers: []string{"a", "b"}},
		// an empty snapshot clears the roster and must survive the wire
		{SessionID: mockSessionID, Publishers: []string{}},
	} {
		payload, err := encodeUpdate(update)
		require.NoError(t, err)

		decoded, err := decodeUpdate(payload, mockSessionID)
		require.NoError(t, err)
		assert.Equal(t, update, decoded)
	}
}

func TestSubscription(t *testing.T) {
	t.Run("delivers decoded updates and skips bad ones", func(t *testing.T) {
		sub := newSubscription(mockSessionID, nil)

		go func() {
			sub.deliver([]byte(`garbage`))
			sub.deliver([]byte(`{"attendee_id":"a","publishing":true}`))
		}()

		select {
		case u := <-sub.Updates():
			assert.Equal(t, "a", u.AttendeeID)
		case <-time.After(time.Second):
			t.Fatal("no update delivered")
		}

		assert.Nil(t, sub.Close())
		_, ok := <-sub.Updates()
		assert.False(t, ok)
	})

	t.Run("close releases a blocked deliver", func(t *testing.T) {
		closed := false
		sub := newSubscription(mockSessionID, func() error {
			closed = true
			return nil
		})

		delivered := make(chan struct{})
		go func() {
			sub.deliver([]byte(`{"attendee_id":"a"}`))
			close(delivered)
		}()

		// give deliver a chance to block on the unbuffered channel
		time.Sleep(10 * time.Millisecond)
		assert.Nil(t, sub.Close())
		assert.Nil(t, sub.Close())
		assert.True(t, closed)

		select {
		case <-delivered:
		case <-time.After(time.Second):
			t.Fatal("deliver still blocked after Close")
		}

		// late deliveries are dropped
		sub.deliver([]byte(`{"attendee_id":"b"}`))
	})
}
