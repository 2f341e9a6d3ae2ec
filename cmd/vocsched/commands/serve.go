package commands

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	appLog "vocsched/internal/log"
	"vocsched/internal/metrics"
	"vocsched/internal/pipeline"
	"vocsched/internal/web"
)

func serveCmd() *cobra.Command {
	var (
		listen  string
		noWrite bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Rebuild the schedule on a cron schedule and serve it over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				cfg.Listen = listen
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			m := metrics.New()
			runner, err := pipeline.New(cfg, pipeline.WithMetrics(m))
			if err != nil {
				return err
			}

			var (
				srv *web.Server
				mu  sync.Mutex
			)
			refresh := func(ctx context.Context) error {
				mu.Lock()
				defer mu.Unlock()
				a, err := runner.Run(ctx)
				if err != nil {
					srv.Fail(err)
					return err
				}
				if !noWrite {
					if err := pipeline.WriteFiles(cfg.OutputPrefix, a); err != nil {
						appLog.Error("failed to write schedule files", err, "prefix", cfg.OutputPrefix)
					}
				}
				srv.Publish(a)
				return nil
			}
			srv = web.NewServer(cfg, m, refresh)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// a failed first run leaves the server up and answering 503
			_ = refresh(ctx)

			c := cron.New(cron.WithLocation(loc))
			if _, err := c.AddFunc(cfg.RefreshCron, func() {
				if err := refresh(ctx); err != nil {
					appLog.Warn("scheduled refresh failed", "err", err)
				}
			}); err != nil {
				return err
			}
			c.Start()
			defer func() { <-c.Stop().Done() }()
			appLog.Info("refresh scheduled", "cron", cfg.RefreshCron, "timezone", loc.String())

			return web.ListenAndServe(ctx, cfg.Listen, srv.Handler())
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (overrides config)")
	cmd.Flags().BoolVar(&noWrite, "no-write", false, "serve from memory only, do not write output files")
	return cmd
}
