package rtc

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/isqad/livelook-uplink/internal/roster"
	"github.com/isqad/livelook-uplink/internal/telemetry"
	"github.com/isqad/livelook-uplink/internal/uplink"
)

// DecisionSink receives every committed uplink decision.
type DecisionSink interface {
	PublishDecision(ctx context.Context, decision uplink.Decision) error
}

type UplinkParams struct {
	SessionID      string
	SelfAttendeeID string
	Policy         uplink.Policy
	Sinks          []DecisionSink
}

// Uplink drives the bandwidth policy of one outbound video track.
// The policy is only touched from the goroutine running Run.
type Uplink struct {
	UplinkParams

	index      *roster.Index
	seenRoster bool
	revision   uint64
	commands chan func()
	logger   zerolog.Logger
	now      func() time.Time
}

func NewUplink(params UplinkParams) *Uplink {
	return &Uplink{
		UplinkParams: params,
		index:        roster.NewIndex(),
		commands:     make(chan func(), 8),
		logger: log.With().
			Str("service", "uplink").
			Str("session", params.SessionID).
			Str("attendee", params.SelfAttendeeID).
			Logger(),
		now: time.Now,
	}
}

// Run applies roster updates and metric samples until ctx is done or updates is closed.
func (u *Uplink) Run(ctx context.Context, updates <-chan roster.Update, metrics <-chan uplink.ConnectionMetrics) error {
	u.logger.Debug().Msg("start")
	defer u.logger.Debug().Msg("stop")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			if err := u.index.Apply(upd); err != nil {
				u.logger.Error().Err(err).Interface("update", upd).Msg("invalid roster update")
				telemetry.RosterUpdateDropped("invalid")
				continue
			}
			u.seenRoster = true
			u.evaluate(ctx)
		case m, ok := <-metrics:
			if !ok {
				metrics = nil
				continue
			}
			u.Policy.UpdateConnectionMetric(m)
		case cmd := <-u.commands:
			cmd()
			// settings before the first roster only shape the first decision
			if u.seenRoster {
				u.evaluate(ctx)
			}
		}
	}
}

// SetIdealMaxBandwidthKbps changes the policy ceiling and re-evaluates the current roster.
func (u *Uplink) SetIdealMaxBandwidthKbps(ctx context.Context, kbps int) error {
	return u.enqueue(ctx, func() {
		u.Policy.SetIdealMaxBandwidthKbps(kbps)
	})
}

// SetHasBandwidthPriority toggles the priority override and re-evaluates the current roster.
func (u *Uplink) SetHasBandwidthPriority(ctx context.Context, priority bool) error {
	return u.enqueue(ctx, func() {
		u.Policy.SetHasBandwidthPriority(priority)
	})
}

func (u *Uplink) enqueue(ctx context.Context, cmd func()) error {
	select {
	case u.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (u *Uplink) evaluate(ctx context.Context) {
	u.Policy.UpdateIndex(u.index)
	if !u.Policy.WantsResubscribe() {
		return
	}

	params := u.Policy.ChooseCaptureAndEncodeParameters()
	u.revision++

	participants := u.index.NumberOfVideoPublishingParticipantsExcludingSelf(u.SelfAttendeeID) + 1
	if counter, ok := u.Policy.(uplink.ParticipantCounter); ok {
		participants = counter.NumParticipants()
	}

	decision := uplink.Decision{
		SessionID:             u.SessionID,
		AttendeeID:            u.SelfAttendeeID,
		Revision:              u.revision,
		Parameters:            params,
		MaxBandwidthKbps:      u.Policy.MaxBandwidthKbps(),
		ScaleResolutionDownBy: u.Policy.ScaleResolutionDownBy(),
		NumParticipants:       participants,
		At:                    u.now(),
	}

	u.logger.Info().
		Uint64("revision", decision.Revision).
		Stringer("parameters", params).
		Float64("scale", decision.ScaleResolutionDownBy).
		Int("participants", decision.NumParticipants).
		Msg("resubscribe")

	telemetry.UplinkCommitted(u.SessionID, decision.MaxBandwidthKbps, decision.NumParticipants, decision.ScaleResolutionDownBy)

	for _, sink := range u.Sinks {
		err := sink.PublishDecision(ctx, decision)
		telemetry.DecisionPublished(err)
		if err != nil {
			u.logger.Error().Err(err).Uint64("revision", decision.Revision).Msg("can't publish decision")
		}
	}
}
