package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/isqad/livelook-uplink/internal/api"
	"github.com/isqad/livelook-uplink/internal/config"
	"github.com/isqad/livelook-uplink/internal/eventbus"
	"github.com/isqad/livelook-uplink/internal/rtc"
	"github.com/isqad/livelook-uplink/internal/uplink"
)

const whipTimeout = 30 * time.Second

type bus interface {
	eventbus.Publisher
	eventbus.RosterPublisher
	eventbus.Subscriber
	Close() error
}

func serve(c *cli.Context) error {
	conf, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	api.InitLogger(conf.Env)

	policy, err := uplink.New(conf.Uplink.Policy, conf.Uplink.SelfAttendeeID)
	if err != nil {
		return err
	}
	policy.SetIdealMaxBandwidthKbps(conf.Uplink.IdealMaxBandwidthKbps)
	policy.SetHasBandwidthPriority(conf.Uplink.BandwidthPriority)

	eb, err := newBus(conf.Roster)
	if err != nil {
		return err
	}
	defer eb.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	subscription, err := eb.SubscribeRoster(ctx, conf.Uplink.SessionID)
	if err != nil {
		return err
	}
	defer subscription.Close()

	feed := api.NewFeed()
	sinks := []rtc.DecisionSink{eb, feed}

	var metrics <-chan uplink.ConnectionMetrics
	if conf.Publish.URL != "" {
		transport, err := newTransport(ctx, conf)
		if err != nil {
			return err
		}
		defer transport.Close()

		sinks = append(sinks, transport)
		metrics = transport.Metrics()
	}

	up := rtc.NewUplink(rtc.UplinkParams{
		SessionID:      conf.Uplink.SessionID,
		SelfAttendeeID: conf.Uplink.SelfAttendeeID,
		Policy:         policy,
		Sinks:          sinks,
	})

	app := api.New(api.AppOptions{
		Env:      conf.Env,
		Address:  conf.HTTP.Address,
		Feed:     feed,
		Settings: up,
	})

	log.Info().
		Str("service", "uplink").
		Str("session", conf.Uplink.SessionID).
		Str("attendee", conf.Uplink.SelfAttendeeID).
		Str("policy", conf.Uplink.Policy).
		Str("roster", conf.Roster.Driver).
		Msg("started")

	return runTogether(ctx,
		app.Start,
		func(ctx context.Context) error {
			return up.Run(ctx, subscription.Updates(), metrics)
		},
	)
}

// runTogether runs every task until the first one returns, then cancels the
// rest and waits for them. It returns the first error other than cancellation.
func runTogether(ctx context.Context, tasks ...func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, len(tasks))
	for _, task := range tasks {
		task := task
		go func() {
			errs <- task(ctx)
		}()
	}

	var first error
	for range tasks {
		err := <-errs
		cancel()

		if errors.Is(err, context.Canceled) {
			continue
		}
		if first == nil && err != nil {
			log.Error().Err(err).Str("service", "uplink").Msg("stopping")
			first = err
		}
	}
	return first
}

func newBus(conf config.RosterConfig) (bus, error) {
	switch conf.Driver {
	case config.NATSDriver:
		return eventbus.NewNATS(conf.NATSURL)
	default:
		rdb := redis.NewClient(&redis.Options{
			Addr: conf.RedisAddr,
			DB:   conf.RedisDB,
		})
		return eventbus.RedisPubSub(rdb), nil
	}
}

// newTransport publishes the camera over WHIP once the first decision caps it.
func newTransport(ctx context.Context, conf *config.Config) (*rtc.PCTransport, error) {
	transport, err := rtc.NewPCTransport(rtc.TransportParams{
		Configuration: webrtc.Configuration{
			ICEServers: []webrtc.ICEServer{{URLs: conf.Publish.ICEServers}},
		},
		StreamID: conf.Uplink.SelfAttendeeID,
	})
	if err != nil {
		return nil, err
	}

	var once sync.Once
	transport.OnConstraints(func(constraints rtc.CaptureConstraints) {
		log.Info().
			Str("service", "transport").
			Uint32("width", constraints.EncodeWidth).
			Uint32("height", constraints.EncodeHeight).
			Uint32("fps", constraints.FrameRate).
			Uint64("max_bitrate_bps", constraints.MaxBitrateBps).
			Msg("capture constraints")

		once.Do(func() {
			go func() {
				publishCtx, cancel := context.WithTimeout(ctx, whipTimeout)
				defer cancel()

				client := &http.Client{Timeout: whipTimeout}
				if _, err := rtc.PublishWHIP(publishCtx, client, conf.Publish.URL, transport); err != nil {
					log.Error().Err(err).Str("service", "transport").Msg("can't publish the camera")
				}
			}()
		})
	})

	return transport, nil
}
