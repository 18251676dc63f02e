package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/SamSkjord/uvc-radar-overlay/internal/capture"
	"github.com/SamSkjord/uvc-radar-overlay/internal/config"
	"github.com/SamSkjord/uvc-radar-overlay/internal/decode"
	"github.com/SamSkjord/uvc-radar-overlay/internal/session"
	"github.com/SamSkjord/uvc-radar-overlay/internal/timeutil"
)

func newRunCmd() *cobra.Command {
	var (
		buses       busFlags
		present     presentFlags
		noKeepAlive bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the live overlay",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runLive(ctx, buses, present, !noKeepAlive)
		},
	}
	buses.register(cmd)
	present.register(cmd)
	cmd.Flags().BoolVar(&noKeepAlive, "no-keepalive", false, "Do not send the keep-alive messages (radar already driven by the car)")
	return cmd
}

func runLive(ctx context.Context, bf busFlags, present presentFlags, keepAlive bool) error {
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

	buses, err := bf.open(ctx, clock)
	if err != nil {
		return err
	}

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
	switch {
	case !keepAlive:
		logf("keep-alive disabled")
	case !bf.hasCar():
		logf("no car channel: keep-alive disabled")
	default:
		opts.KeepAliveHz = settings.KeepAliveRateHz
	}

	var rec *capture.Recorder
	if present.record != "" {
		rec, err = newRecorder(present.record, bf, settings, captureFlags{})
		if err != nil {
			closeAll(buses)
			return err
		}
		opts.OnFrame = frameRecorder(rec)
	}

	sess, err := session.Open(opts, buses...)
	if err != nil {
		closeAll(buses)
		return fmt.Errorf("open session: %w", err)
	}
	ov, err = newOverlay("radar-overlay live", settings, sess)
	if err != nil {
		sess.Close()
		return err
	}
	ov.rec = rec
	attachSerialRoutes(ov.mux, buses)

	return ov.run(ctx, present, sess.Run)
}

func newRecorder(dir string, bf busFlags, settings config.Settings, cf captureFlags) (*capture.Recorder, error) {
	return capture.NewRecorder(capture.Options{
		OutputDir:    dir,
		SessionName:  cf.name,
		Overwrite:    cf.overwrite,
		RawFrames:    cf.rawFrames,
		RadarChannel: bf.radar,
		CarChannel:   bf.car,
		Duration:     cf.duration,
		Settings:     &settings,
		TrackTimeout: settings.TrackTimeout,
	})
}
