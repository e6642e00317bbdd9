package uplink

import (
	"github.com/isqad/livelook-uplink/internal/encode"
)

const (
	DefaultIdealMaxBandwidthKbps = 1400

	captureFrameRate = 15

	// total uplink pool shared by everyone once the room is large
	largeRoomPoolKbps = 5000
)

// NScalePolicy scales capture size, bitrate and downscale factor with the
// number of video publishers in the session. Attendees with bandwidth
// priority always get the full ideal bitrate and no downscale.
type NScalePolicy struct {
	selfAttendeeID string

	numParticipants    int
	optimalParameters  encode.EncodeParameters
	parametersInEffect encode.EncodeParameters

	idealMaxBandwidthKbps int
	hasBandwidthPriority  bool
}

func NewNScalePolicy(selfAttendeeID string) *NScalePolicy {
	return &NScalePolicy{
		selfAttendeeID:        selfAttendeeID,
		optimalParameters:     encode.New(0, 0, 0, 0, false),
		parametersInEffect:    encode.New(0, 0, 0, 0, false),
		idealMaxBandwidthKbps: DefaultIdealMaxBandwidthKbps,
	}
}

func (p *NScalePolicy) SelfAttendeeID() string {
	return p.selfAttendeeID
}

func (p *NScalePolicy) NumParticipants() int {
	return p.numParticipants
}

// UpdateConnectionMetric is a no-op: the N-scale policy only looks at the roster.
func (p *NScalePolicy) UpdateConnectionMetric(ConnectionMetrics) {}

func (p *NScalePolicy) UpdateIndex(index VideoStreamIndex) {
	others := index.NumberOfVideoPublishingParticipantsExcludingSelf(p.selfAttendeeID)
	if others < 0 {
		others = 0
	}
	// +1 for self: we are deciding for a track we intend to send
	p.numParticipants = others + 1

	p.optimalParameters = encode.New(
		p.captureWidth(),
		p.captureHeight(),
		captureFrameRate,
		toKbps(p.MaxBandwidthKbps()),
		false,
	)
}

func (p *NScalePolicy) WantsResubscribe() bool {
	return !p.parametersInEffect.Equal(p.optimalParameters)
}

func (p *NScalePolicy) ChooseCaptureAndEncodeParameters() encode.EncodeParameters {
	p.parametersInEffect = p.optimalParameters.Clone()
	return p.parametersInEffect.Clone()
}

func (p *NScalePolicy) captureWidth() uint32 {
	if p.numParticipants > 4 {
		return 320
	}
	return 640
}

func (p *NScalePolicy) captureHeight() uint32 {
	if p.numParticipants > 4 {
		return 192
	}
	return 384
}

func (p *NScalePolicy) MaxBandwidthKbps() int {
	if p.hasBandwidthPriority {
		return p.idealMaxBandwidthKbps
	}

	n := float64(p.numParticipants)
	ideal := float64(p.idealMaxBandwidthKbps)

	var rate float64
	switch {
	case p.numParticipants <= 2:
		rate = ideal
	case p.numParticipants <= 4:
		rate = ideal * 2 / 3
	case p.numParticipants <= 16:
		rate = ((544.0/11 + 14880/(11*n)) / 600) * ideal
	default:
		rate = largeRoomPoolKbps / n
	}
	// truncate once, toward zero
	return int(rate)
}

func (p *NScalePolicy) ScaleResolutionDownBy() float64 {
	if p.hasBandwidthPriority {
		return 1
	}

	switch {
	case p.numParticipants <= 4:
		return 1
	case p.numParticipants <= 8:
		return 1.5
	case p.numParticipants <= 16:
		return 2
	default:
		return 4
	}
}

func (p *NScalePolicy) SetIdealMaxBandwidthKbps(kbps int) {
	p.idealMaxBandwidthKbps = kbps
}

func (p *NScalePolicy) SetHasBandwidthPriority(priority bool) {
	p.hasBandwidthPriority = priority
}

func toKbps(v int) uint32 {
	if v < 0 {
		return 0
	}
	return uint32(v)
}
