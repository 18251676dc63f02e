package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/SamSkjord/uvc-radar-overlay/internal/catalog"
)

func newCatalogCmd() *cobra.Command {
	var signals bool
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the CAN message layouts the decoder knows",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := loadCatalog(flagDBC)
			if err != nil {
				return err
			}
			return printCatalog(cmd.OutOrStdout(), cat, signals)
		},
	}
	cmd.Flags().BoolVarP(&signals, "signals", "s", false, "Also list every signal of each layout")
	return cmd
}

func printCatalog(w io.Writer, cat *catalog.Catalog, signals bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tKIND\tLEN\tSIGNALS")
	for _, l := range cat.Layouts() {
		names := make([]string, len(l.Signals))
		for i, s := range l.Signals {
			names[i] = s.Name
		}
		fmt.Fprintf(tw, "0x%03X\t%s\t%s\t%d\t%s\n", l.ID, l.Name, l.Kind, l.Length, strings.Join(names, ","))
		if !signals {
			continue
		}
		for _, s := range l.Signals {
			sign := "unsigned"
			if s.Signed {
				sign = "signed"
			}
			fmt.Fprintf(tw, "\t  %s\tstart=%d size=%d %s\tx%g\t[%g, %g] %s\n",
				s.Name, s.Start, s.Size, sign, s.Factor, s.Min, s.Max, s.Unit)
		}
	}
	return tw.Flush()
}
