package uplink

import (
	"time"

	"github.com/isqad/livelook-uplink/internal/encode"
)

// Decision is a committed set of parameters handed to the signaling layer.
// Revision increases by one with every commit of a session.
type Decision struct {
	SessionID             string                  `json:"session_id"`
	AttendeeID            string                  `json:"attendee_id"`
	Revision              uint64                  `json:"revision"`
	Parameters            encode.EncodeParameters `json:"parameters"`
	MaxBandwidthKbps      int                     `json:"max_bandwidth_kbps"`
	ScaleResolutionDownBy float64                 `json:"scale_resolution_down_by"`
	NumParticipants       int                     `json:"num_participants"`
	At                    time.Time               `json:"at"`
}
