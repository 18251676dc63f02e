package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/SamSkjord/uvc-radar-overlay/internal/monitor"
	"github.com/SamSkjord/uvc-radar-overlay/internal/replay"
)

func newPlotCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "plot <session-dir | tracks.jsonl>",
		Short: "Render a captured session's track trajectories to PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := replay.Open(args[0])
			if err != nil {
				return err
			}
			dir := out
			if dir == "" {
				dir = defaultPlotDir(args[0])
			}
			files, err := monitor.PlotSession(recs, dir)
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "Directory for the PNG files (defaults to <session>/plots)")
	return cmd
}

// defaultPlotDir puts plots beside the session's tracks file.
func defaultPlotDir(path string) string {
	if filepath.Ext(path) == ".jsonl" {
		return filepath.Join(filepath.Dir(path), "plots")
	}
	return filepath.Join(path, "plots")
}
