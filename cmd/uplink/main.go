package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/isqad/livelook-uplink/internal/uplink"
)

func main() {
	app := &cli.App{
		Name:  "livelook-uplink",
		Usage: "Uplink video bandwidth policy for a meeting attendee",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "follow the meeting roster and publish uplink decisions",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Usage:   "path to a yaml config, LIVELOOK_* env variables override it",
						EnvVars: []string{"LIVELOOK_CONFIG"},
					},
				},
				Action: serve,
			},
			{
				Name:  "simulate",
				Usage: "print the uplink parameters for the given numbers of remote publishers",
				Flags: []cli.Flag{
					&cli.IntSliceFlag{
						Name:  "publishers",
						Usage: "remote video publishers, example: 0,3,5,20",
						Value: cli.NewIntSlice(0, 1, 2, 3, 4, 7, 8, 15, 16, 20),
					},
					&cli.IntFlag{
						Name:  "ideal-kbps",
						Usage: "ideal max bandwidth",
						Value: uplink.DefaultIdealMaxBandwidthKbps,
					},
					&cli.BoolFlag{
						Name:  "priority",
						Usage: "simulate an attendee with bandwidth priority",
					},
				},
				Action: simulate,
			},
			{
				Name:  "announce",
				Usage: "publish a roster update, either one attendee or a full snapshot",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Usage:   "path to a yaml config with the roster driver",
						EnvVars: []string{"LIVELOOK_CONFIG"},
					},
					&cli.StringFlag{
						Name:  "session",
						Usage: "session id, overrides uplink.session_id",
					},
					&cli.StringFlag{
						Name:  "attendee",
						Usage: "attendee that started or stopped publishing video",
					},
					&cli.BoolFlag{
						Name:  "publishing",
						Usage: "whether --attendee publishes video now",
					},
					&cli.StringSliceFlag{
						Name:  "publishers",
						Usage: "every attendee publishing video, replaces the roster",
					},
				},
				Action: announce,
			},
			{
				Name:  "watch",
				Usage: "print decisions of a running uplink",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "url",
						Usage: "websocket url of the uplink api",
						Value: "ws://localhost:8080/uplink/ws",
					},
				},
				Action: watch,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("")
	}
}
