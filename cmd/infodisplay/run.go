package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/timzifer/infodisplay/config"
	"github.com/timzifer/infodisplay/internal/logging"
	"github.com/timzifer/infodisplay/internal/reload"
	"github.com/timzifer/infodisplay/internal/service"
	"github.com/timzifer/infodisplay/telemetry"
)

const reloadInterval = time.Second

func runPanel(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	collector, metrics, err := service.NewTelemetry(cfg.Telemetry, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry disabled: %v\n", err)
	}

	if cfg.HotReload {
		err := runWithHotReload(ctx, cfgPath, cfg, collector, metrics)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	logger, cleanup, err := logging.Setup(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer cleanup()
	log.Logger = logger

	srv, err := service.New(cfg, logger, service.WithTelemetry(collector, metrics))
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}
	defer srv.Close()

	logger.Info().Str("config", cfg.Source).Str("driver", cfg.ProviderDriver()).Msg("infodisplay started")
	return srv.Run(ctx)
}

// runWithHotReload restarts the service whenever one of its configuration
// files changes and the new configuration validates.
func runWithHotReload(ctx context.Context, path string, initial *config.Config, collector telemetry.Collector, metrics http.Handler) error {
	if collector == nil {
		collector = telemetry.Noop()
	}
	watcher := reload.NewWatcher(initial)
	cfg := initial

	for {
		logger, cleanup, err := logging.Setup(cfg.Logging)
		if err != nil {
			return err
		}
		log.Logger = logger

		srv, err := service.New(cfg, logger, service.WithTelemetry(collector, metrics))
		if err != nil {
			cleanup()
			return err
		}

		runCtx, cancelRun := context.WithCancel(ctx)
		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Run(runCtx)
		}()
		changes := make(chan []string, 1)
		go watcher.Poll(runCtx, reloadInterval, func(changed []string) {
			select {
			case changes <- changed:
			default:
			}
		})
		logger.Info().Strs("watching", watcher.Files()).Msg("infodisplay started with hot reload")

		var changed []string
	loop:
		for {
			select {
			case <-ctx.Done():
				cancelRun()
				err := <-errCh
				srv.Close()
				cleanup()
				if err != nil {
					return err
				}
				return ctx.Err()
			case err := <-errCh:
				cancelRun()
				srv.Close()
				cleanup()
				if err == nil {
					err = errors.New("service stopped unexpectedly")
				}
				return err
			case files := <-changes:
				newCfg, err := config.Load(path)
				if err != nil {
					logger.Error().Err(err).Msg("failed to reload configuration")
					watcher.Update(cfg)
					continue
				}
				if err := service.Validate(newCfg, logger); err != nil {
					logger.Error().Err(err).Msg("reloaded configuration invalid")
					watcher.Update(cfg)
					continue
				}
				cancelRun()
				if err := <-errCh; err != nil {
					logger.Error().Err(err).Msg("service stopped during reload")
				}
				srv.Close()
				cleanup()
				watcher.Update(newCfg)
				changed = files
				cfg = newCfg
				break loop
			}
		}

		for _, file := range changed {
			collector.IncHotReload(file)
		}
	}
}
