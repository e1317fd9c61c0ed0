package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/timzifer/infodisplay/config"
	"github.com/timzifer/infodisplay/display"
	"github.com/timzifer/infodisplay/internal/logging"
)

type screenFlags struct {
	timeout      time.Duration
	xDisplay     string
	pirPin       string
	backlightPin string
	logLevel     string
	mock         bool
}

// screenCommand runs only the motion driven screen switch, without polling
// the box.
func screenCommand() *cobra.Command {
	flags := screenFlags{
		timeout:      display.DefaultTimeout,
		xDisplay:     ":0",
		pirPin:       "GPIO4",
		backlightPin: "GPIO18",
		logLevel:     "debug",
	}
	cmd := &cobra.Command{
		Use:   "screen",
		Short: "Switch the screen off after a period without motion",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScreen(cmd, flags)
		},
	}
	cmd.Flags().DurationVarP(&flags.timeout, "timeout", "t", flags.timeout, "Screen off timeout after the last movement")
	cmd.Flags().StringVarP(&flags.xDisplay, "display", "d", flags.xDisplay, "X display identifier")
	cmd.Flags().StringVar(&flags.pirPin, "pir-pin", flags.pirPin, "GPIO pin of the motion sensor")
	cmd.Flags().StringVar(&flags.backlightPin, "backlight-pin", flags.backlightPin, "GPIO pin of the backlight")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", flags.logLevel, "Log level")
	cmd.Flags().BoolVar(&flags.mock, "mock", false, "Use in-memory pins and leave the X display alone")
	return cmd
}

func runScreen(cmd *cobra.Command, flags screenFlags) error {
	logger, cleanup, err := logging.Setup(config.LoggingConfig{Level: flags.logLevel, Format: "text"})
	if err != nil {
		return err
	}
	defer cleanup()

	var (
		motion    display.MotionSensor
		backlight display.Backlight
		screen    display.Screen
	)
	if flags.mock {
		pins := display.NewMockPins()
		motion, backlight = pins, pins
	} else {
		pins, err := display.OpenGPIO(flags.pirPin, flags.backlightPin)
		if err != nil {
			return err
		}
		motion, backlight = pins, pins
		screen = display.NewXScreen(flags.xDisplay)
	}

	ctrl, err := display.New(motion, backlight, screen,
		display.WithLogger(logger.With().Str("component", "display").Logger()),
		display.WithTimeout(flags.timeout),
	)
	if err != nil {
		return err
	}
	logger.Info().
		Dur("timeout", flags.timeout).
		Str("display", flags.xDisplay).
		Str("pir_pin", flags.pirPin).
		Str("backlight_pin", flags.backlightPin).
		Msg("screen manager started")
	return ctrl.Run(cmd.Context())
}
