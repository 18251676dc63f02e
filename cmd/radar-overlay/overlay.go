package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/SamSkjord/uvc-radar-overlay/internal/capture"
	"github.com/SamSkjord/uvc-radar-overlay/internal/config"
	"github.com/SamSkjord/uvc-radar-overlay/internal/monitor"
	"github.com/SamSkjord/uvc-radar-overlay/internal/overtake"
	"github.com/SamSkjord/uvc-radar-overlay/internal/pipeline"
	"github.com/SamSkjord/uvc-radar-overlay/internal/session"
	"github.com/SamSkjord/uvc-radar-overlay/internal/timeutil"
	"github.com/SamSkjord/uvc-radar-overlay/internal/tui"
	"github.com/SamSkjord/uvc-radar-overlay/internal/units"
)

// presentFlags control the outputs of run and replay.
type presentFlags struct {
	listen     string
	headless   bool
	logFile    string
	record     string
	speedUnits string
}

func (p *presentFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&p.listen, "listen", ":8080", "HTTP listen address for debug pages and the frame stream; empty disables")
	f.BoolVar(&p.headless, "headless", false, "Run without the terminal view and log overtake warnings instead")
	f.StringVar(&p.logFile, "log-file", "radar-overlay.log", "Where logs go while the terminal view is active")
	f.StringVar(&p.record, "record", "", "Also record tracks into a capture session under this directory")
	f.StringVar(&p.speedUnits, "speed-units", units.KPH, "Units for speeds in the terminal view: "+units.GetValidUnitsString())
}

func (p presentFlags) validate() error {
	if !units.IsValid(p.speedUnits) {
		return fmt.Errorf("invalid speed units %q: expected one of %s", p.speedUnits, units.GetValidUnitsString())
	}
	return nil
}

// overlay is the presentation side shared by live runs and replays.
type overlay struct {
	title    string
	settings config.Settings
	sess     *session.Session
	pipe     *pipeline.Pipeline
	server   *monitor.Server
	mux      *http.ServeMux
	rec      *capture.Recorder
	clock    timeutil.Clock
}

func newOverlay(title string, settings config.Settings, sess *session.Session) (*overlay, error) {
	pipe, err := pipeline.New(settings, sess.Registry())
	if err != nil {
		return nil, err
	}
	o := &overlay{
		title:    title,
		settings: settings,
		sess:     sess,
		pipe:     pipe,
		mux:      http.NewServeMux(),
		clock:    timeutil.RealClock{},
	}
	o.server = monitor.NewServer(sess.Registry(), pipe, sess)
	o.server.AttachAdminRoutes(o.mux)
	return o, nil
}

// sink fans one render frame out to every consumer. It runs on the cadence
// goroutine.
func (o *overlay) sink(program *tea.Program, warnings *warningLog) func(pipeline.RenderFrame) {
	return func(frame pipeline.RenderFrame) {
		o.server.Hub().Broadcast(frame)
		if program != nil {
			program.Send(tui.FrameMsg(frame))
		}
		if warnings != nil {
			warnings.observe(frame)
		}
		if o.rec != nil {
			if err := o.rec.Record(o.sess.Registry().Sample(frame.Timestamp)); err != nil {
				logf("record: %v", err)
			}
		}
	}
}

// run drives the cadence loop, the HTTP server and the terminal view until
// ctx is done or the view quits. producer feeds the session (bus reading or
// replay) and is started alongside.
func (o *overlay) run(ctx context.Context, flags presentFlags, producer func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var program *tea.Program
	var warnings *warningLog
	if flags.headless {
		warnings = &warningLog{}
	} else {
		if flags.logFile != "" {
			f, err := tea.LogToFile(flags.logFile, "")
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			defer f.Close()
		}
		program = tea.NewProgram(tui.New(o.title, flags.speedUnits, o.sess.Health), tea.WithAltScreen(), tea.WithContext(ctx))
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		if err := producer(ctx); err != nil {
			logf("input stopped: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := o.pipe.RunCadence(ctx, o.clock, o.settings.RefreshHz, o.sink(program, warnings)); err != nil {
			logf("cadence: %v", err)
			cancel()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		o.server.Hub().Run(ctx)
	}()

	if flags.listen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveHTTP(ctx, flags.listen, o.mux)
		}()
	}

	if program != nil {
		if _, err := program.Run(); err != nil && ctx.Err() == nil {
			logf("terminal view: %v", err)
		}
		cancel()
	} else {
		<-ctx.Done()
	}

	wg.Wait()
	if o.rec != nil {
		if err := o.rec.Close(); err != nil {
			return fmt.Errorf("finalise capture: %w", err)
		}
		logf("capture written to %s (%d records)", o.rec.Dir(), o.rec.Records())
	}
	logf("graceful shutdown complete")
	return nil
}

// serveHTTP serves mux on addr until ctx is done.
func serveHTTP(ctx context.Context, addr string, mux *http.ServeMux) {
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logf("HTTP server: %v", err)
		}
	}()
	logf("debug pages on http://%s/debug/, frames on %s", addr, monitor.FramePath)

	<-ctx.Done()
	logf("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			logf("HTTP server force close error: %v", err)
		}
	}
}

// warningLog logs overtake arrows appearing and clearing when there is no
// terminal view.
type warningLog struct {
	visible [2]bool
}

func (w *warningLog) observe(frame pipeline.RenderFrame) {
	for side, ind := range frame.Indicators {
		if ind.Visible == w.visible[side] {
			continue
		}
		w.visible[side] = ind.Visible
		if ind.Visible {
			logf("overtake warning %s: track %d, %.1fs to overtake (%s)",
				overtake.Side(side), ind.TrackID, ind.TTO, ind.State)
		} else {
			logf("overtake warning %s cleared", overtake.Side(side))
		}
	}
}
