package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/isqad/livelook-uplink/internal/api"
	"github.com/isqad/livelook-uplink/internal/config"
	"github.com/isqad/livelook-uplink/internal/roster"
	"github.com/isqad/livelook-uplink/internal/uplink"
	"github.com/isqad/livelook-uplink/internal/watcher"
)

var errNothingToAnnounce = errors.New("either --attendee or --publishers is required")

func announce(c *cli.Context) error {
	var overrides []config.Override
	if session := c.String("session"); session != "" {
		overrides = append(overrides, config.Set("uplink.session_id", session))
	}

	conf, err := config.Load(c.String("config"), overrides...)
	if err != nil {
		return err
	}
	api.InitLogger(conf.Env)

	update, err := rosterUpdate(conf.Uplink.SessionID, c.String("attendee"), c.Bool("publishing"), c.StringSlice("publishers"), c.IsSet("publishers"))
	if err != nil {
		return err
	}

	eb, err := newBus(conf.Roster)
	if err != nil {
		return err
	}
	defer eb.Close()

	if err := eb.PublishRoster(c.Context, update); err != nil {
		return err
	}

	log.Info().Str("service", "roster").Str("session", update.SessionID).Msg("roster update published")

	return nil
}

// rosterUpdate prefers a full snapshot when one is given.
func rosterUpdate(sessionID, attendeeID string, publishing bool, publishers []string, snapshot bool) (roster.Update, error) {
	if snapshot {
		if publishers == nil {
			publishers = []string{}
		}
		return roster.Update{SessionID: sessionID, Publishers: publishers}, nil
	}
	if attendeeID == "" {
		return roster.Update{}, errNothingToAnnounce
	}

	return roster.Update{SessionID: sessionID, AttendeeID: attendeeID, Publishing: publishing}, nil
}

func watch(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return watcher.New(c.String("url")).Watch(ctx, func(d uplink.Decision) {
		fmt.Fprintf(c.App.Writer, "#%d %s participants=%d max=%dkbps scale=%g\n",
			d.Revision, d.Parameters, d.NumParticipants, d.MaxBandwidthKbps, d.ScaleResolutionDownBy)
	})
}
