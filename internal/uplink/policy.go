package uplink

import (
	"errors"
	"time"

	"github.com/isqad/livelook-uplink/internal/encode"
)

const (
	NScalePolicyName  = "nscale"
	NoVideoPolicyName = "none"
)

var (
	ErrUnknownPolicy = errors.New("unknown uplink policy")
)

// Policy decides capture and encode parameters for the local outbound video.
// Implementations are not safe for concurrent use.
type Policy interface {
	UpdateConnectionMetric(metrics ConnectionMetrics)
	UpdateIndex(index VideoStreamIndex)
	WantsResubscribe() bool
	ChooseCaptureAndEncodeParameters() encode.EncodeParameters
	MaxBandwidthKbps() int
	ScaleResolutionDownBy() float64
	SetIdealMaxBandwidthKbps(kbps int)
	SetHasBandwidthPriority(priority bool)
}

// ParticipantCounter is a policy that reports the participant count of its last UpdateIndex.
type ParticipantCounter interface {
	NumParticipants() int
}

// VideoStreamIndex answers how many attendees publish video.
type VideoStreamIndex interface {
	NumberOfVideoPublishingParticipantsExcludingSelf(selfAttendeeID string) int
}

// PublisherCount is an index whose value already excludes the local attendee.
type PublisherCount int

func (c PublisherCount) NumberOfVideoPublishingParticipantsExcludingSelf(string) int {
	return int(c)
}

// ConnectionMetrics is a sample of uplink transport statistics.
type ConnectionMetrics struct {
	UplinkBandwidthKbps int           // estimated available send bitrate
	FractionLost        float64       // 0.0..1.0
	RTT                 time.Duration // round-trip time
	JitterMs            float64
	Timestamp           time.Time
}

// New builds the policy registered under name. An empty name selects the N-scale policy.
func New(name, selfAttendeeID string) (Policy, error) {
	switch name {
	case "", NScalePolicyName:
		return NewNScalePolicy(selfAttendeeID), nil
	case NoVideoPolicyName:
		return NewNoVideoPolicy(), nil
	default:
		return nil, ErrUnknownPolicy
	}
}
