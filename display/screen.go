package display

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Screen toggles the display power state of the X server.
type Screen interface {
	SetScreen(ctx context.Context, on bool) error
}

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// XScreen switches DPMS through xset.
type XScreen struct {
	display string
	timeout time.Duration
	run     commandRunner
}

// NewXScreen targets the given X display, e.g. ":0".
func NewXScreen(display string) *XScreen {
	return &XScreen{display: display, timeout: 5 * time.Second, run: runCommand}
}

// SetScreen runs "xset -display D -dpms" to wake the screen or
// "xset -display D dpms force off" to blank it.
func (s *XScreen) SetScreen(ctx context.Context, on bool) error {
	args := []string{"-display", s.display}
	if on {
		args = append(args, "-dpms")
	} else {
		args = append(args, "dpms", "force", "off")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	out, err := s.run(ctx, "xset", args...)
	if err != nil {
		return fmt.Errorf("xset %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// NoopScreen is used with mock pins where no X server is available.
type NoopScreen struct{}

// SetScreen implements Screen.
func (NoopScreen) SetScreen(context.Context, bool) error { return nil }
