package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"execution-sim-go/sim"
)

func newProfilesCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List fill profiles and the derived worst case",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer a.close()
			writeProfiles(cmd.OutOrStdout(), append(a.profiles.All(), a.profiles.WorstCase()))
			return nil
		},
	}
}

func writeProfiles(out io.Writer, ps []sim.Profile) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tLATENCY(ms)\tPARTICIPATION\tMID(tight/wide)\tSLIP($/pct)\tADVERSE(bps)\tWINDOW\tMAX_TICKS\tTICK\tLEGS")
	for _, p := range ps {
		fmt.Fprintf(tw, "%s\t%.0f±%.0f\t%.2f\t%.2f/%.2f\t%.2f/%.2f\t%.1f\t%s\t%d\t%.2f\t%s\n",
			p.Name, p.LatencyMeanMs, p.LatencyStdMs, p.MaxParticipation,
			p.MidFillProbTight, p.MidFillProbWide, p.PerContractSlippage, p.PctOfSpreadSlippage,
			p.AdverseSelectionBps, p.FillWindow, p.MaxAdverseTicks, p.TickSize, p.LegPolicy)
	}
	_ = tw.Flush()
}
