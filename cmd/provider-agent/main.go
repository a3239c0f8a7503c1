package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ruteri/data-exchange-registry/cmd/flags"
	"github.com/ruteri/data-exchange-registry/common"
	"github.com/ruteri/data-exchange-registry/metrics"
	"github.com/ruteri/data-exchange-registry/provider"
	"github.com/urfave/cli/v2"
)

var agentFlags = []cli.Flag{
	&cli.DurationFlag{
		Name:  "poll-interval",
		Value: 30 * time.Second,
		Usage: "how often to scan the registry for due requests",
	},
	&cli.IntFlag{
		Name:  "workers",
		Value: 4,
		Usage: "maximum concurrent resource fetches",
	},
	&cli.Uint64Flag{
		Name:  "max-retries",
		Value: 3,
		Usage: "retries per fetch or submission for transient failures",
	},
	&cli.DurationFlag{
		Name:  "fetch-timeout",
		Value: 15 * time.Second,
		Usage: "timeout for fetching a resource",
	},
	&cli.StringFlag{
		Name:  "metrics-addr",
		Value: "127.0.0.1:8091",
		Usage: "address to listen on for Prometheus metrics, empty to disable",
	},
	flags.LogServiceFlagFn("provider-agent"),
}

func main() {
	allFlags := append(agentFlags, flags.LogFlags...)
	allFlags = append(allFlags, flags.ClientFlags...)

	app := &cli.App{
		Name:  "provider-agent",
		Usage: "Fetch requested data and provide it to the registry",
		Flags: allFlags,
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			client, err := flags.RegistryClientFromFlags(cCtx)
			if err != nil {
				logger.Error("Failed to create registry client", "err", err)
				return err
			}
			if client.Identity() == "" {
				return errors.New("a signing --key or --caller is required to provide data")
			}

			metricsAddr := cCtx.String("metrics-addr")
			metricsSrv, err := metrics.New(common.PackageName, metricsAddr)
			if err != nil {
				return err
			}
			if metricsAddr != "" {
				go func() {
					logger.With("metricsAddress", metricsAddr).Info("Starting metrics server")
					if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("Metrics server failed", "err", err)
					}
				}()
			}

			agent := provider.NewAgent(client, provider.NewHTTPFetcher(cCtx.Duration("fetch-timeout")), provider.Config{
				PollInterval: cCtx.Duration("poll-interval"),
				Workers:      cCtx.Int("workers"),
				MaxRetries:   cCtx.Uint64("max-retries"),
				Metrics:      metrics.NewProviderMetrics(metricsSrv.Namespace(), metricsSrv.Registerer()),
				Log:          logger.With("identity", client.Identity().String()),
			})

			ctx, stop := signal.NotifyContext(cCtx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			err = agent.Run(ctx)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if metricsAddr != "" {
				if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
					logger.Error("Graceful metrics server shutdown failed", "err", err)
				}
			}
			return err
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
