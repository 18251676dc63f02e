package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/SamSkjord/uvc-radar-overlay/internal/canbus"
	"github.com/SamSkjord/uvc-radar-overlay/internal/capture"
	"github.com/SamSkjord/uvc-radar-overlay/internal/session"
	"github.com/SamSkjord/uvc-radar-overlay/internal/timeutil"
	"github.com/SamSkjord/uvc-radar-overlay/internal/tracks"
)

type captureFlags struct {
	output    string
	name      string
	overwrite bool
	rawFrames bool
	duration  time.Duration
}

// progressEvery is how often capture logs its progress.
const progressEvery = 5 * time.Second

func newCaptureCmd() *cobra.Command {
	var (
		buses       busFlags
		cf          captureFlags
		noKeepAlive bool
	)
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Record radar tracks to a session directory for replay",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if cf.duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cf.duration)
				defer cancel()
			}
			return runCapture(ctx, buses, cf, !noKeepAlive)
		},
	}
	buses.register(cmd)
	f := cmd.Flags()
	f.StringVarP(&cf.output, "output", "o", "captures", "Directory the session directory is created in")
	f.StringVar(&cf.name, "session", "", "Session name (defaults to the UTC start time)")
	f.BoolVar(&cf.overwrite, "overwrite", false, "Replace an existing session directory")
	f.BoolVar(&cf.rawFrames, "raw-frames", false, "Also write every CAN frame to a pcap file")
	f.DurationVarP(&cf.duration, "duration", "d", 0, "Stop after this long (0 runs until interrupted)")
	cmd.Flags().BoolVar(&noKeepAlive, "no-keepalive", false, "Do not send the keep-alive messages")
	return cmd
}

func closeAll(buses []canbus.Bus) {
	for _, b := range buses {
		if err := b.Close(); err != nil {
			logf("close %s: %v", b.Name(), err)
		}
	}
}

// frameRecorder returns a session frame hook writing raw frames to rec.
func frameRecorder(rec *capture.Recorder) func(canbus.Frame) {
	return func(f canbus.Frame) {
		if err := rec.RecordFrame(f); err != nil {
			logf("record frame: %v", err)
		}
	}
}

func runCapture(ctx context.Context, bf busFlags, cf captureFlags, keepAlive bool) error {
	settings, err := loadSettings(flagConfig)
	if err != nil {
		return err
	}
	cat, err := loadCatalog(flagDBC)
	if err != nil {
		return err
	}
	clock := timeutil.RealClock{}

	buses, err := bf.open(ctx, clock)
	if err != nil {
		return err
	}
	rec, err := newRecorder(cf.output, bf, settings, cf)
	if err != nil {
		closeAll(buses)
		return err
	}

	opts := session.Options{
		Catalog:      cat,
		TrackTimeout: settings.TrackTimeout,
		Clock:        clock,
		OnFrame:      frameRecorder(rec),
	}
	if keepAlive && bf.hasCar() {
		opts.KeepAliveHz = settings.KeepAliveRateHz
	}
	sess, err := session.Open(opts, buses...)
	if err != nil {
		closeAll(buses)
		rec.Close()
		return fmt.Errorf("open session: %w", err)
	}
	logf("capturing to %s (session %s)", rec.Dir(), rec.SessionID())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- sess.Run(ctx)
		cancel()
	}()

	recordLoop(ctx, clock, settings.RefreshHz, sess.Registry(), rec)
	if err := <-done; err != nil {
		logf("session: %v", err)
	}
	if err := rec.Close(); err != nil {
		return fmt.Errorf("finalise capture: %w", err)
	}
	logf("capture complete: %d records in %s", rec.Records(), rec.Dir())
	return nil
}

// recordLoop samples the registry at hz and records every snapshot until
// ctx is done.
func recordLoop(ctx context.Context, clock timeutil.Clock, hz float64, reg *tracks.Registry, rec *capture.Recorder) {
	ticker := clock.NewTicker(time.Duration(float64(time.Second) / hz))
	defer ticker.Stop()
	lastProgress := clock.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			if err := rec.Record(reg.Sample(now)); err != nil {
				logf("record: %v", err)
			}
			if now.Sub(lastProgress) >= progressEvery {
				lastProgress = now
				logf("%d records, %d live tracks", rec.Records(), reg.Len())
			}
		}
	}
}
