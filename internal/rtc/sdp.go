package rtc

import (
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v3"

	"github.com/isqad/livelook-uplink/internal/encode"
)

const (
	bandwidthAS   = "AS"
	bandwidthTIAS = "TIAS"
	videoMedia    = "video"
)

// RestrictBandwidth caps every video m-section of desc at kbps using b=AS and
// b=TIAS lines. A kbps of zero or less removes existing caps.
func RestrictBandwidth(desc webrtc.SessionDescription, kbps int) (webrtc.SessionDescription, error) {
	parsed, err := desc.Unmarshal()
	if err != nil {
		return desc, err
	}

	for _, m := range parsed.MediaDescriptions {
		if m.MediaName.Media != videoMedia {
			continue
		}

		bandwidth := m.Bandwidth[:0]
		for _, b := range m.Bandwidth {
			if b.Type == bandwidthAS || b.Type == bandwidthTIAS {
				continue
			}
			bandwidth = append(bandwidth, b)
		}

		if kbps > 0 {
			bandwidth = append(bandwidth,
				sdp.Bandwidth{Type: bandwidthAS, Bandwidth: uint64(kbps)},
				sdp.Bandwidth{Type: bandwidthTIAS, Bandwidth: uint64(kbps) * 1000},
			)
		}
		m.Bandwidth = bandwidth
	}

	raw, err := parsed.Marshal()
	if err != nil {
		return desc, err
	}

	return webrtc.SessionDescription{Type: desc.Type, SDP: string(raw)}, nil
}

// CaptureConstraints is what the media engine applies to the camera and the encoder.
type CaptureConstraints struct {
	Width         uint32 `json:"width"`
	Height        uint32 `json:"height"`
	FrameRate     uint32 `json:"frame_rate"`
	EncodeWidth   uint32 `json:"encode_width"`
	EncodeHeight  uint32 `json:"encode_height"`
	MaxBitrateBps uint64 `json:"max_bitrate_bps"`
}

// NewCaptureConstraints applies scaleDownBy on top of the capture size, so the
// encoder can shrink further without reopening the capture device.
func NewCaptureConstraints(params encode.EncodeParameters, scaleDownBy float64) CaptureConstraints {
	if scaleDownBy < 1 {
		scaleDownBy = 1
	}

	return CaptureConstraints{
		Width:         params.CaptureWidth,
		Height:        params.CaptureHeight,
		FrameRate:     params.CaptureFrameRate,
		EncodeWidth:   uint32(float64(params.CaptureWidth) / scaleDownBy),
		EncodeHeight:  uint32(float64(params.CaptureHeight) / scaleDownBy),
		MaxBitrateBps: uint64(params.MaxBitrateKbps) * 1000,
	}
}
