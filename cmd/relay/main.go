package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Relay/internal/adapters/http"
	"github.com/dkeye/Relay/internal/adapters/ipc"
	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/config"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/logging"
	"github.com/dkeye/Relay/internal/mailbox"
	"github.com/dkeye/Relay/internal/tracing"
)

const shutdownTimeout = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var configPath string
	cmd := &cobra.Command{
		Use:           "relay",
		Short:         "Multi-room chat relay",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath, cmd.Flags(), map[string]string{
				"addr":      "addr",
				"log.level": "log-level",
			})
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (default config/config.$CONFIG_ENV.yaml)")
	cmd.Flags().String("addr", ":7070", "listen address")
	cmd.Flags().String("log-level", "info", "log level")

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "relay: %s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if _, err := logging.Setup(cfg.Log); err != nil {
		return err
	}

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	sys := mailbox.NewLocal(cfg.Mailbox.QueueCapacity)
	key := mailbox.DeriveKey(cfg.Mailbox.KeyPath, cfg.Mailbox.Token())
	global, err := sys.Create(ctx, key)
	if err != nil {
		return fmt.Errorf("create global channel: %w", err)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var policy app.Policy = app.KeepPolicy{}
	if cfg.Router.EvictStale {
		policy = app.EvictStalePolicy{}
	}
	relay := app.NewRouter(sys, global, core.NewRegistry(cfg.Registry.MaxRooms, cfg.Registry.MaxMembers),
		app.WithPolicy(policy),
		app.WithMetrics(app.NewMetrics(promReg)),
		app.WithTracer(tracing.GetTracer("github.com/dkeye/Relay/internal/app")),
	)

	g, gctx := errgroup.WithContext(ctx)

	ctl := ipc.NewController(sys,
		ipc.WithRateLimit(cfg.Mailbox.RateLimit, cfg.Mailbox.RateInterval),
		ipc.WithWriteTimeout(cfg.Mailbox.WriteTimeout),
	)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router.SetupRouter(gctx, cfg, ctl, relay, promReg),
		ReadHeaderTimeout: shutdownTimeout,
	}

	g.Go(func() error { return relay.Run(gctx) })
	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Uint32("key", uint32(key)).Stringer("global", global).Msg("Relay started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		if err := sys.Destroy(sctx, global); err != nil {
			log.Warn().Err(err).Msg("destroy global channel")
		}
		return sys.Close()
	})

	err = g.Wait()
	log.Info().Msg("Relay exited")
	return err
}
