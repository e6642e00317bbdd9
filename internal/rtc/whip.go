package rtc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog/log"
)

const sdpContentType = "application/sdp"

var ErrPublishRejected = errors.New("whip endpoint rejected the offer")

// PublishWHIP posts a fully gathered, bandwidth capped offer of t to url and
// applies the answer. It returns the session resource location, if any.
func PublishWHIP(ctx context.Context, client *http.Client, url string, t *PCTransport) (string, error) {
	offer, err := t.GatheredOffer(ctx)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(offer.SDP))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", sdpContentType)

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s", ErrPublishRejected, resp.Status)
	}

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: string(body)}
	if err := t.SetRemoteDescription(answer); err != nil {
		return "", err
	}

	location := resp.Header.Get("Location")
	log.Info().Str("service", "transport").Str("location", location).Msg("published over whip")

	return location, nil
}
