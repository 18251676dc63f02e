package canbus

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
)

// CommandRunner runs an external command. Tests replace it.
type CommandRunner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// LinkSetup controls how SetupLink invokes ip(8).
type LinkSetup struct {
	UseSudo bool
	// Prefix tokens are inserted before "ip", e.g. ["nsenter", "-t", "1", "-n"].
	Prefix []string
	Run    CommandRunner
}

func (l LinkSetup) command(args ...string) (string, []string) {
	var full []string
	if l.UseSudo {
		full = append(full, "sudo")
	}
	full = append(full, l.Prefix...)
	full = append(full, "ip", "link", "set")
	full = append(full, args...)
	return full[0], full[1:]
}

// SetupLink configures the bitrate of a SocketCAN interface and brings it
// up. The bitrate step is allowed to fail because the link may already be up
// with the right settings.
func SetupLink(ctx context.Context, channel string, bitrate int, l LinkSetup) error {
	run := l.Run
	if run == nil {
		run = execRunner
	}

	name, args := l.command(channel, "type", "can", "bitrate", strconv.Itoa(bitrate))
	if err := run(ctx, name, args...); err != nil {
		logf("set %s bitrate %d: %v (ignored)", channel, bitrate, err)
	}

	name, args = l.command(channel, "up")
	if err := run(ctx, name, args...); err != nil {
		return fmt.Errorf("bring up %s: %w", channel, err)
	}
	logf("%s up at %d bit/s", channel, bitrate)
	return nil
}
