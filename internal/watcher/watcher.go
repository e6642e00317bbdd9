package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/isqad/livelook-uplink/internal/uplink"
)

const (
	handshakeTimeout = 45 * time.Second
	closeGracePeriod = time.Second
)

// Watcher follows the decision stream of a running uplink over websocket.
type Watcher struct {
	url    string
	dialer *websocket.Dialer
}

func New(url string) *Watcher {
	return &Watcher{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

// Watch calls onDecision for every decision until ctx is done or the server
// goes away. A closed context is not an error.
func (w *Watcher) Watch(ctx context.Context, onDecision func(uplink.Decision)) error {
	conn, resp, err := w.dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	defer conn.Close()

	done := make(chan error, 1)

	go func() {
		for {
			d, err := readDecision(conn)
			if err != nil {
				done <- err
				return
			}
			onDecision(d)
		}
	}()

	select {
	case err := <-done:
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Debug().Str("service", "watcher").Msg("interrupt")

		// Cleanly close the connection by sending a close message and then
		// waiting (with timeout) for the server to close the connection.
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			return err
		}

		select {
		case <-done:
		case <-time.After(closeGracePeriod):
		}
		return nil
	}
}

var errEmptyMessage = errors.New("empty decision message")

func readDecision(conn *websocket.Conn) (uplink.Decision, error) {
	_, message, err := conn.ReadMessage()
	if err != nil {
		return uplink.Decision{}, err
	}
	if len(message) == 0 {
		return uplink.Decision{}, errEmptyMessage
	}

	var d uplink.Decision
	if err := json.Unmarshal(message, &d); err != nil {
		return uplink.Decision{}, err
	}

	return d, nil
}
