package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/timeslice/internal/config"
)

var metricsAddr string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the tracking agent in the foreground until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c := GetConfig()
		w, err := buildAgent(ctx, c, logger, true)
		if err != nil {
			return err
		}
		defer w.close()

		if metricsAddr != "" {
			srv := &http.Server{Addr: metricsAddr, Handler: w.metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
			go func() {
				logger.Info().Str("addr", metricsAddr).Msg("serving metrics")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error().Err(err).Msg("metrics server failed")
				}
			}()
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(sctx)
			}()
		}

		path, err := config.OverridesPath()
		if err != nil {
			return err
		}
		go func() {
			err := config.WatchOverrides(ctx, baseCfg, path, func(next config.Config, err error) {
				if err != nil {
					logger.Warn().Err(err).Str("path", path).Msg("ignoring invalid runtime overrides")
					return
				}
				w.agent.ReloadConfig(next)
			})
			if err != nil {
				logger.Warn().Err(err).Msg("runtime overrides will not be watched")
			}
		}()

		if err := w.agent.Start(ctx); err != nil {
			return fmt.Errorf("starting agent: %w", err)
		}
		<-ctx.Done()
		w.agent.Stop()
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. 127.0.0.1:9464)")
	rootCmd.AddCommand(runCmd)
}
