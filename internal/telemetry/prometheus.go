package telemetry

import "github.com/prometheus/client_golang/prometheus"

const livelookNamespace string = "livelook"

var (
	promUplinkMaxBitrate   *prometheus.GaugeVec
	promUplinkParticipants *prometheus.GaugeVec
	promUplinkScaleDown    *prometheus.GaugeVec
	promUplinkResubscribe  *prometheus.CounterVec
	promUplinkEstimate     prometheus.Gauge

	ServiceOperationCounter *prometheus.CounterVec
)

func init() {
	promUplinkMaxBitrate = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: livelookNamespace,
		Subsystem: "uplink",
		Name:      "max_bitrate_kbps",
		Help:      "Committed max send bitrate of the local video.",
	}, []string{"session_id"})

	promUplinkParticipants = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: livelookNamespace,
		Subsystem: "uplink",
		Name:      "participants",
		Help:      "Video publishers counted by the uplink policy, self included.",
	}, []string{"session_id"})

	promUplinkScaleDown = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: livelookNamespace,
		Subsystem: "uplink",
		Name:      "scale_resolution_down_by",
		Help:      "Committed resolution downscale factor.",
	}, []string{"session_id"})

	promUplinkResubscribe = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: livelookNamespace,
		Subsystem: "uplink",
		Name:      "resubscribe_total",
		Help:      "Number of committed uplink parameter changes.",
	}, []string{"session_id"})

	promUplinkEstimate = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: livelookNamespace,
		Subsystem: "uplink",
		Name:      "estimated_bandwidth_kbps",
		Help:      "Latest send side bandwidth estimate.",
	})

	ServiceOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   livelookNamespace,
			Subsystem:   "node",
			Name:        "service_operation",
			ConstLabels: prometheus.Labels{"node_id": "1"},
		},
		[]string{"type", "status", "error_type"},
	)

	prometheus.MustRegister(promUplinkMaxBitrate)
	prometheus.MustRegister(promUplinkParticipants)
	prometheus.MustRegister(promUplinkScaleDown)
	prometheus.MustRegister(promUplinkResubscribe)
	prometheus.MustRegister(promUplinkEstimate)
	prometheus.MustRegister(ServiceOperationCounter)
}

func UplinkCommitted(sessionID string, maxBitrateKbps int, participants int, scaleDown float64) {
	promUplinkMaxBitrate.WithLabelValues(sessionID).Set(float64(maxBitrateKbps))
	promUplinkParticipants.WithLabelValues(sessionID).Set(float64(participants))
	promUplinkScaleDown.WithLabelValues(sessionID).Set(scaleDown)
	promUplinkResubscribe.WithLabelValues(sessionID).Inc()
}

func BandwidthEstimated(kbps int) {
	promUplinkEstimate.Set(float64(kbps))
}

func RosterUpdateDropped(reason string) {
	ServiceOperationCounter.WithLabelValues("roster_update", "error", reason).Inc()
}

func DecisionPublished(err error) {
	if err != nil {
		ServiceOperationCounter.WithLabelValues("publish_decision", "error", "publish_failed").Inc()
		return
	}
	ServiceOperationCounter.WithLabelValues("publish_decision", "success", "").Inc()
}
