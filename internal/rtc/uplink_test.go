package rtc

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isqad/livelook-uplink/internal/roster"
	"github.com/isqad/livelook-uplink/internal/uplink"
)

const (
	testSession = "session-1"
	testSelf    = "self"
)

type chanSink struct {
	decisions chan uplink.Decision
	err       error
}

func newChanSink(err error) *chanSink {
	return &chanSink{decisions: make(chan uplink.Decision, 16), err: err}
}

func (s *chanSink) PublishDecision(_ context.Context, d uplink.Decision) error {
	s.decisions <- d
	return s.err
}

func (s *chanSink) next(t *testing.T) uplink.Decision {
	t.Helper()

	select {
	case d := <-s.decisions:
		return d
	case <-time.After(time.Second):
		t.Fatal("no decision published")
	}
	return uplink.Decision{}
}

func (s *chanSink) none(t *testing.T) {
	t.Helper()

	select {
	case d := <-s.decisions:
		t.Fatalf("unexpected decision: %+v", d)
	default:
	}
}

type recordingPolicy struct {
	uplink.Policy
	metrics []uplink.ConnectionMetrics
}

func (p *recordingPolicy) UpdateConnectionMetric(m uplink.ConnectionMetrics) {
	p.metrics = append(p.metrics, m)
}

// fixedCountPolicy reports its own participant count regardless of the roster.
type fixedCountPolicy struct {
	*uplink.NScalePolicy
	n int
}

func (p *fixedCountPolicy) NumParticipants() int {
	return p.n
}

func attendees(n int) []string {
	ids := make([]string, 0, n+1)
	ids = append(ids, testSelf)
	for i := 0; i < n; i++ {
		ids = append(ids, fmt.Sprintf("attendee-%d", i))
	}
	return ids
}

func startUplink(t *testing.T, policy uplink.Policy, sinks ...DecisionSink) (*Uplink, chan roster.Update, chan uplink.ConnectionMetrics, <-chan error) {
	t.Helper()

	u := NewUplink(UplinkParams{
		SessionID:      testSession,
		SelfAttendeeID: testSelf,
		Policy:         policy,
		Sinks:          sinks,
	})
	u.now = func() time.Time { return time.Unix(123, 0) }

	updates := make(chan roster.Update)
	metrics := make(chan uplink.ConnectionMetrics)
	done := make(chan error, 1)

	go func() {
		done <- u.Run(context.Background(), updates, metrics)
	}()

	return u, updates, metrics, done
}

func TestUplink_PublishesOnlyChangedParameters(t *testing.T) {
	sink := newChanSink(nil)
	_, updates, _, done := startUplink(t, uplink.NewNScalePolicy(testSelf), sink)

	updates <- roster.Update{Publishers: attendees(1)}
	d := sink.next(t)
	assert.Equal(t, uint64(1), d.Revision)
	assert.Equal(t, testSession, d.SessionID)
	assert.Equal(t, testSelf, d.AttendeeID)
	assert.Equal(t, 2, d.NumParticipants)
	assert.Equal(t, 1400, d.MaxBandwidthKbps)
	assert.Equal(t, uint32(640), d.Parameters.CaptureWidth)
	assert.Equal(t, time.Unix(123, 0), d.At)

	updates <- roster.Update{AttendeeID: "b", Publishing: true}
	d = sink.next(t)
	assert.Equal(t, uint64(2), d.Revision)
	assert.Equal(t, 3, d.NumParticipants)
	assert.Equal(t, uint32(933), d.Parameters.MaxBitrateKbps)

	// 3 -> 4 -> 3 participants stays in the same band
	updates <- roster.Update{AttendeeID: "c", Publishing: true}
	updates <- roster.Update{AttendeeID: "c", Publishing: false}
	// invalid updates are skipped
	updates <- roster.Update{}

	updates <- roster.Update{Publishers: attendees(20)}
	d = sink.next(t)
	assert.Equal(t, uint64(3), d.Revision)
	assert.Equal(t, 21, d.NumParticipants)
	assert.Equal(t, 238, d.MaxBandwidthKbps)
	assert.Equal(t, 4.0, d.ScaleResolutionDownBy)
	assert.Equal(t, uint32(320), d.Parameters.CaptureWidth)

	close(updates)
	require.NoError(t, <-done)
	sink.none(t)
}

func TestUplink_SettersReevaluate(t *testing.T) {
	sink := newChanSink(nil)
	u, updates, _, done := startUplink(t, uplink.NewNScalePolicy(testSelf), sink)

	updates <- roster.Update{Publishers: attendees(20)}
	assert.Equal(t, 238, sink.next(t).MaxBandwidthKbps)

	require.NoError(t, u.SetHasBandwidthPriority(context.Background(), true))
	d := sink.next(t)
	assert.Equal(t, uint64(2), d.Revision)
	assert.Equal(t, 1400, d.MaxBandwidthKbps)
	assert.Equal(t, 1.0, d.ScaleResolutionDownBy)

	require.NoError(t, u.SetIdealMaxBandwidthKbps(context.Background(), 2000))
	d = sink.next(t)
	assert.Equal(t, uint64(3), d.Revision)
	assert.Equal(t, uint32(2000), d.Parameters.MaxBitrateKbps)

	// same value again changes nothing
	require.NoError(t, u.SetIdealMaxBandwidthKbps(context.Background(), 2000))

	close(updates)
	require.NoError(t, <-done)
	sink.none(t)
}

func TestUplink_SettersWaitForRoster(t *testing.T) {
	sink := newChanSink(nil)
	u, updates, _, done := startUplink(t, uplink.NewNScalePolicy(testSelf), sink)

	require.NoError(t, u.SetHasBandwidthPriority(context.Background(), true))
	require.NoError(t, u.SetIdealMaxBandwidthKbps(context.Background(), 2000))

	// commands run in order, so both setters ran once this one has
	applied := make(chan struct{})
	require.NoError(t, u.enqueue(context.Background(), func() { close(applied) }))
	select {
	case <-applied:
	case <-time.After(time.Second):
		t.Fatal("setters not applied")
	}
	sink.none(t)

	updates <- roster.Update{Publishers: attendees(20)}
	d := sink.next(t)
	assert.Equal(t, uint64(1), d.Revision)
	assert.Equal(t, 21, d.NumParticipants)
	assert.Equal(t, 2000, d.MaxBandwidthKbps)
	assert.Equal(t, 1.0, d.ScaleResolutionDownBy)

	close(updates)
	require.NoError(t, <-done)
	sink.none(t)
}

func TestUplink_ParticipantsComeFromPolicy(t *testing.T) {
	sink := newChanSink(nil)
	policy := &fixedCountPolicy{NScalePolicy: uplink.NewNScalePolicy(testSelf), n: 7}
	_, updates, _, done := startUplink(t, policy, sink)

	updates <- roster.Update{Publishers: attendees(2)}
	assert.Equal(t, 7, sink.next(t).NumParticipants)

	close(updates)
	require.NoError(t, <-done)
}

func TestUplink_ForwardsMetrics(t *testing.T) {
	policy := &recordingPolicy{Policy: uplink.NewNScalePolicy(testSelf)}
	sink := newChanSink(nil)
	_, updates, metrics, done := startUplink(t, policy, sink)

	metrics <- uplink.ConnectionMetrics{UplinkBandwidthKbps: 300}
	close(metrics)

	updates <- roster.Update{Publishers: attendees(0)}
	assert.Equal(t, uint64(1), sink.next(t).Revision)

	close(updates)
	require.NoError(t, <-done)

	assert.Equal(t, []uplink.ConnectionMetrics{{UplinkBandwidthKbps: 300}}, policy.metrics)
}

func TestUplink_SinkErrorsDoNotStopTheLoop(t *testing.T) {
	failing := newChanSink(errors.New("redis is down"))
	ok := newChanSink(nil)
	_, updates, _, done := startUplink(t, uplink.NewNScalePolicy(testSelf), failing, ok)

	updates <- roster.Update{Publishers: attendees(0)}
	assert.Equal(t, uint64(1), failing.next(t).Revision)
	assert.Equal(t, uint64(1), ok.next(t).Revision)

	updates <- roster.Update{Publishers: attendees(5)}
	assert.Equal(t, uint64(2), failing.next(t).Revision)
	assert.Equal(t, uint64(2), ok.next(t).Revision)

	close(updates)
	require.NoError(t, <-done)
}

func TestUplink_NoVideoPolicyNeverPublishes(t *testing.T) {
	sink := newChanSink(nil)
	_, updates, _, done := startUplink(t, uplink.NewNoVideoPolicy(), sink)

	updates <- roster.Update{Publishers: attendees(3)}
	updates <- roster.Update{Publishers: attendees(30)}

	close(updates)
	require.NoError(t, <-done)
	sink.none(t)
}

func TestUplink_StopsOnContextCancel(t *testing.T) {
	u := NewUplink(UplinkParams{Policy: uplink.NewNScalePolicy(testSelf)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := u.Run(ctx, make(chan roster.Update), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
