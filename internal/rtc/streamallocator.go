package rtc

import (
	"sync"
	"time"

	"github.com/pion/interceptor/pkg/cc"
	"github.com/pion/rtcp"
	"github.com/rs/zerolog/log"

	"github.com/isqad/livelook-uplink/internal/telemetry"
	"github.com/isqad/livelook-uplink/internal/uplink"
)

const metricsBufferSize = 16

// StreamAllocator turns send side bandwidth estimates and RTCP receiver
// reports of the outbound video into connection metric samples.
type StreamAllocator struct {
	bwe cc.BandwidthEstimator

	lock          sync.Mutex
	targetBitrate int // bps
	metrics       chan uplink.ConnectionMetrics
	now           func() time.Time
}

func NewStreamAllocator() *StreamAllocator {
	s := &StreamAllocator{
		metrics: make(chan uplink.ConnectionMetrics, metricsBufferSize),
		now:     time.Now,
	}

	return s
}

func (s *StreamAllocator) SetBandwidthEstimator(bwe cc.BandwidthEstimator) {
	if bwe != nil {
		bwe.OnTargetBitrateChange(s.onTargetBitrateChange)
	}
	s.bwe = bwe
}

// Metrics is consumed by Uplink.Run. Samples are dropped while the consumer lags.
func (s *StreamAllocator) Metrics() <-chan uplink.ConnectionMetrics {
	return s.metrics
}

// called when target bitrate changes (send side bandwidth estimation)
func (s *StreamAllocator) onTargetBitrateChange(bitrate int) {
	log.Debug().Str("service", "streamallocator").Msgf("bitrate changed: %d", bitrate)

	s.lock.Lock()
	s.targetBitrate = bitrate
	s.lock.Unlock()

	telemetry.BandwidthEstimated(bitrate / 1000)

	s.push(uplink.ConnectionMetrics{
		UplinkBandwidthKbps: bitrate / 1000,
		Timestamp:           s.now(),
	})
}

// HandleReceiverReport feeds the report block of the local video ssrc.
func (s *StreamAllocator) HandleReceiverReport(rr *rtcp.ReceiverReport, ssrc, clockRate uint32) {
	now := s.now()

	m, ok := MetricsFromReceiverReport(rr, ssrc, clockRate, now)
	if !ok {
		return
	}

	s.lock.Lock()
	m.UplinkBandwidthKbps = s.targetBitrate / 1000
	s.lock.Unlock()

	s.push(m)
}

func (s *StreamAllocator) push(m uplink.ConnectionMetrics) {
	select {
	case s.metrics <- m:
	default:
		log.Warn().Str("service", "streamallocator").Msg("metrics consumer is slow, sample dropped")
	}
}

// MetricsFromReceiverReport reads loss, jitter and round-trip time for ssrc.
// RTT is zero when the remote has not seen a sender report yet.
func MetricsFromReceiverReport(rr *rtcp.ReceiverReport, ssrc, clockRate uint32, now time.Time) (uplink.ConnectionMetrics, bool) {
	for _, report := range rr.Reports {
		if report.SSRC != ssrc {
			continue
		}

		m := uplink.ConnectionMetrics{
			FractionLost: float64(report.FractionLost) / 256,
			RTT:          roundTripTime(report.LastSenderReport, report.Delay, now),
			Timestamp:    now,
		}
		if clockRate > 0 {
			m.JitterMs = float64(report.Jitter) / float64(clockRate) * 1000
		}

		return m, true
	}

	return uplink.ConnectionMetrics{}, false
}

// ntpEpochOffset is seconds between 1900-01-01 and the unix epoch
const ntpEpochOffset = 2208988800

// roundTripTime follows RFC 3550 6.4.1: A - LSR - DLSR in 1/65536 s units.
func roundTripTime(lastSenderReport, delay uint32, now time.Time) time.Duration {
	if lastSenderReport == 0 {
		return 0
	}

	rtt := int64(ntpMiddle32(now)) - int64(lastSenderReport) - int64(delay)
	if rtt < 0 {
		// arrival wrapped past the 16 bit seconds field
		rtt += 1 << 32
	}
	if rtt < 0 || rtt >= 1<<31 {
		return 0
	}

	return time.Duration(rtt) * time.Second / 65536
}

func ntpMiddle32(t time.Time) uint32 {
	secs := uint64(t.Unix() + ntpEpochOffset)
	frac := uint64(t.Nanosecond()) << 32 / 1e9

	return uint32(secs<<16) | uint32(frac>>16)
}
