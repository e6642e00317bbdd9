package rtc

import (
	"strings"
	"testing"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isqad/livelook-uplink/internal/encode"
)

var offerLines = []string{
	"v=0",
	"o=- 4596489990601351948 2 IN IP4 127.0.0.1",
	"s=-",
	"t=0 0",
	"m=audio 9 UDP/TLS/RTP/SAVPF 111",
	"c=IN IP4 0.0.0.0",
	"b=AS:64",
	"a=mid:0",
	"a=rtpmap:111 opus/48000/2",
	"m=video 9 UDP/TLS/RTP/SAVPF 96",
	"c=IN IP4 0.0.0.0",
	"b=AS:2500",
	"b=X-YZ:7",
	"a=mid:1",
	"a=rtpmap:96 VP8/90000",
}

func testOffer() webrtc.SessionDescription {
	return webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  strings.Join(offerLines, "\r\n") + "\r\n",
	}
}

func bandwidthOf(t *testing.T, desc webrtc.SessionDescription, media string) []sdp.Bandwidth {
	t.Helper()

	parsed, err := desc.Unmarshal()
	require.NoError(t, err)

	for _, m := range parsed.MediaDescriptions {
		if m.MediaName.Media == media {
			return m.Bandwidth
		}
	}

	t.Fatalf("no %s media", media)
	return nil
}

func TestRestrictBandwidth(t *testing.T) {
	t.Run("caps video only", func(t *testing.T) {
		out, err := RestrictBandwidth(testOffer(), 641)
		require.NoError(t, err)

		assert.Equal(t, webrtc.SDPTypeOffer, out.Type)
		assert.Equal(t, []sdp.Bandwidth{
			{Experimental: true, Type: "YZ", Bandwidth: 7},
			{Type: "AS", Bandwidth: 641},
			{Type: "TIAS", Bandwidth: 641000},
		}, bandwidthOf(t, out, "video"))
		assert.Equal(t, []sdp.Bandwidth{{Type: "AS", Bandwidth: 64}}, bandwidthOf(t, out, "audio"))
	})

	t.Run("applying twice does not stack", func(t *testing.T) {
		once, err := RestrictBandwidth(testOffer(), 238)
		require.NoError(t, err)
		twice, err := RestrictBandwidth(once, 238)
		require.NoError(t, err)

		assert.Equal(t, once.SDP, twice.SDP)
	})

	t.Run("zero removes the cap", func(t *testing.T) {
		out, err := RestrictBandwidth(testOffer(), 0)
		require.NoError(t, err)

		assert.Equal(t, []sdp.Bandwidth{{Experimental: true, Type: "YZ", Bandwidth: 7}}, bandwidthOf(t, out, "video"))
	})

	t.Run("malformed sdp", func(t *testing.T) {
		in := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "not sdp"}

		out, err := RestrictBandwidth(in, 100)
		assert.Error(t, err)
		assert.Equal(t, in, out)
	})
}

func TestNewCaptureConstraints(t *testing.T) {
	c := NewCaptureConstraints(encode.New(320, 192, 15, 641, false), 1.5)

	assert.Equal(t, CaptureConstraints{
		Width:         320,
		Height:        192,
		FrameRate:     15,
		EncodeWidth:   213,
		EncodeHeight:  128,
		MaxBitrateBps: 641000,
	}, c)

	c = NewCaptureConstraints(encode.New(640, 384, 15, 1400, false), 0)
	assert.Equal(t, uint32(640), c.EncodeWidth)
	assert.Equal(t, uint32(384), c.EncodeHeight)
}
