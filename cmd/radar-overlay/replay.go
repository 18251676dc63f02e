package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/SamSkjord/uvc-radar-overlay/internal/canbus"
	"github.com/SamSkjord/uvc-radar-overlay/internal/decode"
	"github.com/SamSkjord/uvc-radar-overlay/internal/replay"
	"github.com/SamSkjord/uvc-radar-overlay/internal/session"
	"github.com/SamSkjord/uvc-radar-overlay/internal/timeutil"
)

type replayFlags struct {
	loop bool
	rate float64
}

func newReplayCmd() *cobra.Command {
	var (
		present presentFlags
		rf      replayFlags
	)
	cmd := &cobra.Command{
		Use:   "replay <session-dir | tracks.jsonl | frames.pcap>",
		Short: "Replay a captured session through the overlay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runReplay(ctx, args[0], present, rf)
		},
	}
	present.register(cmd)
	cmd.Flags().BoolVar(&rf.loop, "loop", false, "Restart from the first record after the last")
	cmd.Flags().Float64Var(&rf.rate, "rate", 1, "Playback speed multiplier")
	return cmd
}

func isPcap(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pcap")
}

func runReplay(ctx context.Context, path string, present presentFlags, rf replayFlags) error {
	if err := present.validate(); err != nil {
		return err
	}
	settings, err := loadSettings(flagConfig)
	if err != nil {
		return err
	}
	cat, err := loadCatalog(flagDBC)
	if err != nil {
		return err
	}
	clock := timeutil.RealClock{}

	var ov *overlay
	opts := session.Options{
		Catalog:      cat,
		TrackTimeout: settings.TrackTimeout,
		Clock:        clock,
		OnEvent: func(ev decode.Event) {
			if v, ok := ev.(decode.VehicleState); ok && ov != nil {
				ov.pipe.SetEgoSpeed(v.SpeedKPH)
			}
		},
	}

	title := "radar-overlay replay " + filepath.Base(path)
	var (
		sess     *session.Session
		producer func(context.Context) error
	)
	if isPcap(path) {
		// Raw frame captures go through the decoder exactly as a live bus
		// does.
		src := canbus.NewPcapSource(canbus.BusRadar, path, rf.rate, clock)
		if sess, err = session.Open(opts, src); err != nil {
			src.Close()
			return fmt.Errorf("open session: %w", err)
		}
		producer = sess.Run
	} else {
		recs, err := replay.Open(path)
		if err != nil {
			return err
		}
		logf("loaded %d records from %s", len(recs), path)
		if sess, err = session.Open(opts); err != nil {
			return fmt.Errorf("open session: %w", err)
		}
		producer = playRecords(sess, recs, rf, !present.headless)
	}
	defer sess.Close()

	ov, err = newOverlay(title, settings, sess)
	if err != nil {
		return err
	}
	if present.record != "" {
		if ov.rec, err = newRecorder(present.record, busFlags{radar: path}, settings, captureFlags{}); err != nil {
			return err
		}
	}
	return ov.run(ctx, present, producer)
}

// playRecords returns a producer that feeds recs into sess. With hold set
// it keeps running after the last record so the view stays open.
func playRecords(sess *session.Session, recs []replay.Record, rf replayFlags, hold bool) func(context.Context) error {
	player := &replay.Player{
		Records: recs,
		Loop:    rf.loop,
		Rate:    rf.rate,
		Bus:     canbus.BusRadar,
		OnLoop: func(pass int) {
			sess.Registry().Reset()
			logf("replay pass %d", pass)
		},
	}
	return func(ctx context.Context) error {
		stats, err := player.Run(ctx, timeutil.RealClock{}, func(ev decode.Event) {
			if err := sess.Ingest(ev); err != nil {
				logf("replay: %v", err)
			}
		})
		logf("replay finished: %d passes, %d records, %d events", stats.Passes, stats.Records, stats.Events)
		if err != nil {
			return err
		}
		if hold {
			<-ctx.Done()
		}
		return nil
	}
}
