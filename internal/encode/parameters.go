package encode

import "fmt"

// EncodeParameters is the capture and encode instruction for an outbound video track.
// Values are treated as immutable once constructed.
type EncodeParameters struct {
	CaptureWidth     uint32 `json:"capture_width"`
	CaptureHeight    uint32 `json:"capture_height"`
	CaptureFrameRate uint32 `json:"capture_frame_rate"`
	MaxBitrateKbps   uint32 `json:"max_bitrate_kbps"`
	IsSimulcast      bool   `json:"is_simulcast"`
}

func New(width, height, frameRate, maxBitrateKbps uint32, simulcast bool) EncodeParameters {
	return EncodeParameters{
		CaptureWidth:     width,
		CaptureHeight:    height,
		CaptureFrameRate: frameRate,
		MaxBitrateKbps:   maxBitrateKbps,
		IsSimulcast:      simulcast,
	}
}

// Equal reports whether all fields of p and other match.
func (p EncodeParameters) Equal(other EncodeParameters) bool {
	return p.CaptureWidth == other.CaptureWidth &&
		p.CaptureHeight == other.CaptureHeight &&
		p.CaptureFrameRate == other.CaptureFrameRate &&
		p.MaxBitrateKbps == other.MaxBitrateKbps &&
		p.IsSimulcast == other.IsSimulcast
}

func (p EncodeParameters) Clone() EncodeParameters {
	return New(p.CaptureWidth, p.CaptureHeight, p.CaptureFrameRate, p.MaxBitrateKbps, p.IsSimulcast)
}

func (p EncodeParameters) String() string {
	s := fmt.Sprintf("%dx%d@%dfps %dkbps", p.CaptureWidth, p.CaptureHeight, p.CaptureFrameRate, p.MaxBitrateKbps)
	if p.IsSimulcast {
		s += " simulcast"
	}
	return s
}
