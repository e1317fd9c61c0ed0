// Command infodisplay runs the house status panel.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cfgPath = "config.yaml"

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "infodisplay",
		Short:         "House status panel for an eedomus automation box",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runPanel,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", cfgPath, "Path to configuration file")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the panel (default)",
		Args:  cobra.NoArgs,
		RunE:  runPanel,
	})
	root.AddCommand(&cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and exit",
		Args:  cobra.NoArgs,
		RunE:  checkConfig,
	})
	root.AddCommand(&cobra.Command{
		Use:   "healthcheck",
		Short: "Read the box once and fail when it cannot be reached",
		Args:  cobra.NoArgs,
		RunE:  healthcheck,
	})
	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Read the box once and print the status as JSON",
		Args:  cobra.NoArgs,
		RunE:  printStatus,
	})
	root.AddCommand(&cobra.Command{
		Use:   "set-mode MODE",
		Short: "Write a house mode (away, present, cleaning) to the box",
		Args:  cobra.ExactArgs(1),
		RunE:  setMode,
	})
	root.AddCommand(screenCommand())
	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "infodisplay: %v\n", err)
		cancel()
		os.Exit(1)
	}
}
