package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/timzifer/infodisplay/box"
	"github.com/timzifer/infodisplay/config"
	"github.com/timzifer/infodisplay/internal/service"
)

func checkConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := service.Validate(cfg, zerolog.Nop()); err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration %s\n", cfg.Source)
	fmt.Fprintf(out, "  Driver:          %s\n", cfg.ProviderDriver())
	if cfg.ProviderDriver() == config.DriverEedomus {
		fmt.Fprintf(out, "  Box URL:         %s\n", cfg.Box.URL)
	}
	fmt.Fprintf(out, "  Refresh:         every %s, %d x %s after a mode change\n", cfg.NormalInterval(), cfg.FastRefreshCycles(), cfg.FastInterval())
	fmt.Fprintf(out, "  Display control: %s\n", enabled(cfg.Display.Enabled))
	fmt.Fprintf(out, "  Panel:           %s\n", listenLabel(cfg.Panel.Enabled, cfg.PanelListen()))
	fmt.Fprintf(out, "  MQTT:            %s\n", listenLabel(cfg.MQTT.Enabled, cfg.MQTT.Broker))
	fmt.Fprintln(out, "Configuration check completed successfully.")
	return nil
}

func enabled(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}

func listenLabel(on bool, addr string) string {
	if !on {
		return "disabled"
	}
	return addr
}

// readOnce performs a single status read outside of the communicator.
func readOnce(ctx context.Context) (box.Status, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return box.Status{}, err
	}
	provider, err := service.NewProvider(cfg, zerolog.Nop())
	if err != nil {
		return box.Status{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.BoxTimeout())
	defer cancel()
	status, err := provider.ReadStatus(ctx)
	if err != nil {
		return box.Status{}, fmt.Errorf("read box status: %w", err)
	}
	status.Valid = true
	return status, nil
}

func healthcheck(cmd *cobra.Command, _ []string) error {
	if _, err := readOnce(cmd.Context()); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "ok")
	return nil
}

func printStatus(cmd *cobra.Command, _ []string) error {
	status, err := readOnce(cmd.Context())
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(status)
}

func setMode(cmd *cobra.Command, args []string) error {
	mode, ok := box.ParseHouseMode(args[0])
	if !ok {
		return fmt.Errorf("%w: %q", box.ErrInvalidMode, args[0])
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	provider, err := service.NewProvider(cfg, zerolog.Nop())
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.BoxTimeout())
	defer cancel()
	if err := provider.WriteMode(ctx, mode); err != nil {
		return fmt.Errorf("write house mode: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "house mode set to %s\n", mode)
	return nil
}
