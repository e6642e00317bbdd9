package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/isqad/livelook-uplink/internal/uplink"
)

const simulatedSelf = "self"

func simulate(c *cli.Context) error {
	return writeSimulation(c.App.Writer, c.IntSlice("publishers"), c.Int("ideal-kbps"), c.Bool("priority"))
}

func writeSimulation(out io.Writer, publishers []int, idealKbps int, priority bool) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PUBLISHERS\tPARTICIPANTS\tCAPTURE\tMAX KBPS\tSCALE DOWN")

	for _, n := range publishers {
		policy := uplink.NewNScalePolicy(simulatedSelf)
		policy.SetIdealMaxBandwidthKbps(idealKbps)
		policy.SetHasBandwidthPriority(priority)
		policy.UpdateIndex(uplink.PublisherCount(n))

		params := policy.ChooseCaptureAndEncodeParameters()
		fmt.Fprintf(w, "%d\t%d\t%dx%d@%dfps\t%d\t%g\n",
			n,
			policy.NumParticipants(),
			params.CaptureWidth, params.CaptureHeight, params.CaptureFrameRate,
			policy.MaxBandwidthKbps(),
			policy.ScaleResolutionDownBy(),
		)
	}

	return w.Flush()
}
