package uplink

import "github.com/isqad/livelook-uplink/internal/encode"

// NoVideoPolicy is used when the local attendee does not send video.
// It never asks for a resubscribe and always reports empty parameters.
type NoVideoPolicy struct{}

func NewNoVideoPolicy() *NoVideoPolicy {
	return &NoVideoPolicy{}
}

func (NoVideoPolicy) UpdateConnectionMetric(ConnectionMetrics) {}

func (NoVideoPolicy) UpdateIndex(VideoStreamIndex) {}

func (NoVideoPolicy) WantsResubscribe() bool { return false }

func (NoVideoPolicy) ChooseCaptureAndEncodeParameters() encode.EncodeParameters {
	return encode.New(0, 0, 0, 0, false)
}

func (NoVideoPolicy) MaxBandwidthKbps() int { return 0 }

func (NoVideoPolicy) ScaleResolutionDownBy() float64 { return 1 }

func (NoVideoPolicy) SetIdealMaxBandwidthKbps(int) {}

func (NoVideoPolicy) SetHasBandwidthPriority(bool) {}
