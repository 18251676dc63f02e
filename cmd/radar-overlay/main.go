// Command radar-overlay drives a Toyota ADAS radar from a CAN adapter and
// renders its tracks as an overlay: in the terminal, over a websocket and on
// the debug pages.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/SamSkjord/uvc-radar-overlay/internal/catalog"
	"github.com/SamSkjord/uvc-radar-overlay/internal/config"
	"github.com/SamSkjord/uvc-radar-overlay/internal/monitoring"
	"github.com/SamSkjord/uvc-radar-overlay/internal/version"
)

// logf sends command output through the shared logger so --quiet and the
// terminal view's log file apply to it.
func logf(format string, v ...interface{}) { monitoring.Logf(format, v...) }

var (
	flagConfig string
	flagDBC    string
	flagQuiet  bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "radar-overlay",
		Short: "Toyota radar overlay for a camera feed",
		Long: `radar-overlay decodes the track messages of a Toyota Denso ADAS radar,
keeps the radar alive with the messages it expects from the car, and turns the
live tracks into overlay markers and overtake warnings.

Live runs need the radar on one CAN channel and, for the keep-alive, the car
side on a second channel. Captures can be replayed without hardware.`,
		Version:      version.String(),
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagQuiet {
				monitoring.SetLogger(nil)
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Path to overlay tuning JSON (defaults are used when empty)")
	pf.StringVar(&flagDBC, "dbc", "", "DBC file to use instead of the built-in Toyota signal catalog")
	pf.BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress log output")

	root.AddCommand(
		newRunCmd(),
		newCaptureCmd(),
		newReplayCmd(),
		newPlotCmd(),
		newCatalogCmd(),
	)
	return root
}

// loadSettings resolves the tuning config. An empty path yields the
// defaults.
func loadSettings(path string) (config.Settings, error) {
	if path == "" {
		return config.DefaultOverlayConfig().Settings(), nil
	}
	cfg, err := config.LoadOverlayConfig(path)
	if err != nil {
		return config.Settings{}, err
	}
	logf("loaded overlay config from %s", path)
	return cfg.Settings(), nil
}

// loadCatalog returns the built-in catalog, or the one parsed from a DBC
// file when path is set.
func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Toyota(), nil
	}
	cat, err := catalog.LoadDBC(path)
	if err != nil {
		return nil, err
	}
	logf("loaded %d layouts from %s", cat.Len(), path)
	return cat, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
