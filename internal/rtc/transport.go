package rtc

import (
	"context"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog/log"

	"github.com/isqad/livelook-uplink/internal/uplink"
)

const (
	dtlsRetransmissionInterval = 100 * time.Millisecond
	iceDisconnectedTimeout     = 10 * time.Second
	iceFailedTimeout           = 25 * time.Second // pion's default
	iceKeepaliveInterval       = 2 * time.Second  // pion's default

	cameraTrackID = "camera"
	rtcpBufSize   = 1500
)

// PCTransport is the publishing peer connection of the local attendee. It
// caps offered video at the latest committed bandwidth and reports the
// capture constraints of every decision.
type PCTransport struct {
	pc     *webrtc.PeerConnection
	track  *webrtc.TrackLocalStaticRTP
	sender *webrtc.RTPSender

	allocator *StreamAllocator

	lock              sync.Mutex
	pendingCandidates []webrtc.ICECandidateInit
	maxBandwidthKbps  int
	constraints       CaptureConstraints
	onConstraints     func(CaptureConstraints)
}

type TransportParams struct {
	Configuration webrtc.Configuration
	StreamID      string
	Allocator     *StreamAllocator
}

func NewPCTransport(params TransportParams) (*PCTransport, error) {
	if params.Allocator == nil {
		params.Allocator = NewStreamAllocator()
	}

	pc, err := newPeerConnection(params)
	if err != nil {
		return nil, err
	}

	track, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, cameraTrackID, params.StreamID)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}

	transceiver, err := pc.AddTransceiverFromTrack(track, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendonly,
	})
	if err != nil {
		_ = pc.Close()
		return nil, err
	}

	t := &PCTransport{
		pc:                pc,
		track:             track,
		sender:            transceiver.Sender(),
		allocator:         params.Allocator,
		pendingCandidates: make([]webrtc.ICECandidateInit, 0),
	}

	t.pc.OnICEGatheringStateChange(func(state webrtc.ICEGathererState) {
		if state == webrtc.ICEGathererStateComplete {
			log.Debug().Str("service", "transport").Msg("ice gathering complete")
		}
	})
	t.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Info().Str("service", "transport").Str("state", state.String()).Msg("connection state changed")
	})

	go t.readRTCP()

	return t, nil
}

func newPeerConnection(params TransportParams) (*webrtc.PeerConnection, error) {
	se := webrtc.SettingEngine{}
	se.SetDTLSRetransmissionInterval(dtlsRetransmissionInterval)
	se.SetICETimeouts(iceDisconnectedTimeout, iceFailedTimeout, iceKeepaliveInterval)

	api, err := createPublisherAPI(params.Allocator, se)
	if err != nil {
		return nil, err
	}

	return api.NewPeerConnection(params.Configuration)
}

// readRTCP drives the interceptors and feeds receiver reports of the camera
// stream to the allocator. It stops with the peer connection.
func (t *PCTransport) readRTCP() {
	buf := make([]byte, rtcpBufSize)
	for {
		n, _, err := t.sender.Read(buf)
		if err != nil {
			return
		}

		packets, err := rtcp.Unmarshal(buf[:n])
		if err != nil {
			log.Debug().Err(err).Str("service", "transport").Msg("can't parse rtcp")
			continue
		}

		ssrc := t.ssrc()
		for _, packet := range packets {
			if rr, ok := packet.(*rtcp.ReceiverReport); ok {
				t.allocator.HandleReceiverReport(rr, ssrc, videoClockRate)
			}
		}
	}
}

func (t *PCTransport) ssrc() uint32 {
	encodings := t.sender.GetParameters().Encodings
	if len(encodings) == 0 {
		return 0
	}
	return uint32(encodings[0].SSRC)
}

// CreateOffer sets a new local offer and returns it with video capped at the
// current bandwidth.
func (t *PCTransport) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}

	return RestrictBandwidth(offer, t.MaxBandwidthKbps())
}

// GatheredOffer is CreateOffer for peers without trickle ICE.
func (t *PCTransport) GatheredOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	gatherComplete := webrtc.GatheringCompletePromise(t.pc)

	if _, err := t.CreateOffer(); err != nil {
		return webrtc.SessionDescription{}, err
	}

	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return webrtc.SessionDescription{}, ctx.Err()
	}

	return RestrictBandwidth(*t.pc.LocalDescription(), t.MaxBandwidthKbps())
}

// AddICECandidate holds candidates that arrive before the answer.
func (t *PCTransport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.pc.RemoteDescription() != nil {
		return t.pc.AddICECandidate(candidate)
	}

	t.pendingCandidates = append(t.pendingCandidates, candidate)

	return nil
}

func (t *PCTransport) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	if err := t.pc.SetRemoteDescription(sdp); err != nil {
		return err
	}

	for _, candidate := range t.pendingCandidates {
		if err := t.pc.AddICECandidate(candidate); err != nil {
			log.Warn().Err(err).Str("service", "transport").Msg("can't add pending candidate")
		}
	}

	t.pendingCandidates = make([]webrtc.ICECandidateInit, 0)

	return nil
}

func (t *PCTransport) OnICECandidate(f func(*webrtc.ICECandidate)) {
	t.pc.OnICECandidate(f)
}

// OnConstraints is called for every committed decision.
func (t *PCTransport) OnConstraints(f func(CaptureConstraints)) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.onConstraints = f
}

// WriteRTP sends an encoded camera packet.
func (t *PCTransport) WriteRTP(packet *rtp.Packet) error {
	return t.track.WriteRTP(packet)
}

// PublishDecision implements DecisionSink. The new cap applies from the next offer.
func (t *PCTransport) PublishDecision(_ context.Context, d uplink.Decision) error {
	constraints := NewCaptureConstraints(d.Parameters, d.ScaleResolutionDownBy)

	t.lock.Lock()
	t.maxBandwidthKbps = d.MaxBandwidthKbps
	t.constraints = constraints
	onConstraints := t.onConstraints
	t.lock.Unlock()

	if onConstraints != nil {
		onConstraints(constraints)
	}

	return nil
}

func (t *PCTransport) MaxBandwidthKbps() int {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.maxBandwidthKbps
}

func (t *PCTransport) Constraints() CaptureConstraints {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.constraints
}

func (t *PCTransport) Metrics() <-chan uplink.ConnectionMetrics {
	return t.allocator.Metrics()
}

func (t *PCTransport) Close() error {
	return t.pc.Close()
}
