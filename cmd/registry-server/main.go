package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ruteri/data-exchange-registry/api"
	"github.com/ruteri/data-exchange-registry/api/handlers"
	"github.com/ruteri/data-exchange-registry/api/servers"
	"github.com/ruteri/data-exchange-registry/cmd/flags"
	"github.com/ruteri/data-exchange-registry/common"
	"github.com/ruteri/data-exchange-registry/cryptoutils"
	"github.com/ruteri/data-exchange-registry/host"
	"github.com/ruteri/data-exchange-registry/interfaces"
	"github.com/ruteri/data-exchange-registry/metrics"
	"github.com/ruteri/data-exchange-registry/storage"
	"github.com/urfave/cli/v2"
)

var serverFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:8080",
		Usage: "address to listen on for API",
	},
	&cli.StringSliceFlag{
		Name:    "state-uri",
		EnvVars: []string{"REGISTRY_STATE_URIS"},
		Usage:   "storage backend for the registry state (file://, s3://, ipfs://, vault://, memory://), repeat for redundancy",
	},
	&cli.StringFlag{
		Name:    "bootstrap-owner",
		EnvVars: []string{"REGISTRY_BOOTSTRAP_OWNER"},
		Usage:   "initialize a fresh registry with this owner at startup",
	},
	&cli.StringFlag{
		Name:  "auth-mode",
		Value: string(handlers.AuthModeSignature),
		Usage: "caller authentication: 'signature' (signed requests) or 'header' (trusted X-Registry-Caller header)",
	},
	&cli.DurationFlag{
		Name:  "max-clock-skew",
		Value: cryptoutils.DefaultMaxClockSkew,
		Usage: "maximum age of a signed request",
	},
	&cli.StringSliceFlag{
		Name:  "unseal-admin",
		Usage: "identity allowed to submit a state key share at startup, repeat for each admin; enables sealed start",
	},
	&cli.IntFlag{
		Name:  "unseal-threshold",
		Value: 2,
		Usage: "number of admin shares reconstructing the state key",
	},
	&cli.StringFlag{
		Name:  "unseal-addr",
		Value: "127.0.0.1:8081",
		Usage: "address serving the unseal API while the server is sealed",
	},
	&cli.DurationFlag{
		Name:  "unseal-timeout",
		Value: time.Hour,
		Usage: "how long to wait for admins to unseal the state key",
	},
	flags.LogServiceFlagFn("registry-server"),
}

func main() {
	allFlags := append(serverFlags, flags.CommonFlags...)
	allFlags = append(allFlags, flags.StateKeyFlags...)

	app := &cli.App{
		Name:  "registry-server",
		Usage: "Serve the data exchange registry API",
		Flags: allFlags,
		Action: func(cCtx *cli.Context) error {
			listenAddr := cCtx.String("listen-addr")
			logger := flags.SetupLogger(cCtx)

			authMode, err := handlers.ParseAuthMode(cCtx.String("auth-mode"))
			if err != nil {
				return err
			}

			metricsSrv, err := metrics.New(common.PackageName, cCtx.String(flags.MetricsAddrFlag.Name))
			if err != nil {
				logger.Error("Failed to create metrics server", "err", err)
				return err
			}

			backend, err := openStateBackend(cCtx, logger)
			if err != nil {
				logger.Error("Failed to open state backend", "err", err)
				return err
			}

			stateKey, err := resolveStateKey(cCtx, backend, authMode, logger)
			if err != nil {
				logger.Error("Failed to obtain state key", "err", err)
				return err
			}
			switch {
			case backend == nil:
			case stateKey == nil:
				logger.Warn("No state key configured, registry state is stored unencrypted")
			default:
				backend = storage.NewEncryptedBackend(backend, *stateKey, logger)
			}

			var bootstrapOwner interfaces.Identity
			if owner := cCtx.String("bootstrap-owner"); owner != "" {
				bootstrapOwner = cryptoutils.NormalizeIdentity(owner)
			}

			registryHost, err := host.New(cCtx.Context, host.Config{
				Backend:        backend,
				Clock:          clock.New(),
				BootstrapOwner: bootstrapOwner,
				Metrics:        metrics.NewRegistryMetrics(metricsSrv.Namespace(), metricsSrv.Registerer()),
				Log:            logger,
			})
			if err != nil {
				logger.Error("Failed to start registry host", "err", err)
				return err
			}

			auth := handlers.NewAuthenticator(authMode, cCtx.Duration("max-clock-skew"), clock.New(), logger)
			handler := handlers.NewHandler(registryHost, auth, logger)

			cfg := flags.ConfigureServer(cCtx, logger, listenAddr)
			cfg.Metrics = metricsSrv

			server, err := servers.New(cfg, handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			logger.Info("Starting server",
				slog.String("auth_mode", string(authMode)),
				slog.Bool("initialized", registryHost.Initialized()))
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// openStateBackend builds the (possibly replicated) backend from
// --state-uri. It returns nil when no URI is configured.
func openStateBackend(cCtx *cli.Context, logger *slog.Logger) (interfaces.StateBackend, error) {
	uris := cCtx.StringSlice("state-uri")
	if len(uris) == 0 {
		return nil, nil
	}

	locations := make([]interfaces.StorageBackendLocation, 0, len(uris))
	for _, uri := range uris {
		loc, err := interfaces.NewStorageBackendLocation(uri)
		if err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}

	return storage.NewStorageBackendFactory(logger).CreateMultiBackend(locations)
}

// resolveStateKey returns the key from the state key flags or, with
// --unseal-admin, waits for admins to submit enough shares over the unseal
// API. A reconstructed key is accepted only if it decrypts the stored state.
func resolveStateKey(cCtx *cli.Context, backend interfaces.StateBackend, authMode handlers.AuthMode, logger *slog.Logger) (*cryptoutils.StateKey, error) {
	key, err := flags.StateKeyFromFlags(cCtx)
	if err != nil {
		return nil, fmt.Errorf("invalid state key: %w", err)
	}

	admins := cCtx.StringSlice("unseal-admin")
	if len(admins) == 0 {
		return key, nil
	}
	if key != nil {
		return nil, errors.New("--unseal-admin cannot be combined with a state key flag")
	}
	if backend == nil {
		return nil, errors.New("--unseal-admin requires --state-uri")
	}

	ids := make([]interfaces.Identity, 0, len(admins))
	for _, admin := range admins {
		ids = append(ids, interfaces.Identity(admin))
	}

	verify := func(ctx context.Context, candidate cryptoutils.StateKey) error {
		_, err := storage.NewEncryptedBackend(backend, candidate, logger).Load(ctx)
		switch {
		case err == nil, errors.Is(err, interfaces.ErrStateNotFound):
			return nil
		case errors.Is(err, cryptoutils.ErrStateDecryption):
			return err
		default:
			return fmt.Errorf("%w: %w", interfaces.ErrBackendUnavailable, err)
		}
	}

	auth := handlers.NewAuthenticator(authMode, cCtx.Duration("max-clock-skew"), clock.New(), logger)
	unsealHandler, err := handlers.NewUnsealHandler(ids, cCtx.Int("unseal-threshold"), verify, auth, logger)
	if err != nil {
		return nil, err
	}

	unsealSrv, err := servers.New(&api.HTTPServerConfig{
		ListenAddr:               cCtx.String("unseal-addr"),
		Log:                      logger.With("component", "unseal"),
		GracefulShutdownDuration: 5 * time.Second,
		ReadTimeout:              30 * time.Second,
		WriteTimeout:             30 * time.Second,
	}, unsealHandler)
	if err != nil {
		return nil, err
	}
	unsealSrv.RunInBackground()
	defer unsealSrv.Shutdown()

	logger.Info("Waiting for admins to unseal the state key",
		slog.String("unseal_addr", cCtx.String("unseal-addr")),
		slog.Int("threshold", cCtx.Int("unseal-threshold")),
		slog.Int("admins", len(ids)))

	ctx, cancel := context.WithTimeout(cCtx.Context, cCtx.Duration("unseal-timeout"))
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	unsealed, err := unsealHandler.WaitForKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("state key was not unsealed: %w", err)
	}
	logger.Info("State key unsealed")
	return &unsealed, nil
}
