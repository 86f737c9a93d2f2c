package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/Relay/internal/adapters/ipc"
	"github.com/dkeye/Relay/internal/client"
	"github.com/dkeye/Relay/internal/config"
	"github.com/dkeye/Relay/internal/logging"
	"github.com/dkeye/Relay/internal/mailbox"
)

const (
	dialTimeout  = 5 * time.Second
	closeTimeout = 2 * time.Second
)

var errUsage = errors.New("usage: chat <username>")

func main() {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	var configPath string
	cmd := &cobra.Command{
		Use:   "chat <username>",
		Short: "Chat client for the relay",
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errUsage
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath, cmd.Flags(), map[string]string{
				"client.server_url": "server",
				"client.log_level":  "log-level",
			})
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, args[0])
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (default config/config.$CONFIG_ENV.yaml)")
	cmd.Flags().String("server", "ws://localhost:7070/api/ws/mailbox", "relay mailbox endpoint")
	cmd.Flags().String("log-level", "warn", "log level")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "chat: %s\n", err)
		os.Exit(1)
	}
}

func run(parent context.Context, cfg *config.Config, user string) error {
	logCfg := cfg.Log
	logCfg.Level = cfg.Client.LogLevel
	if _, err := logging.Setup(logCfg); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dctx, dcancel := context.WithTimeout(ctx, dialTimeout)
	sys, err := ipc.Dial(dctx, cfg.Client.ServerURL)
	dcancel()
	if err != nil {
		return fmt.Errorf("%w: %w", client.ErrServerUnavailable, err)
	}
	defer sys.Close()

	key := mailbox.DeriveKey(cfg.Mailbox.KeyPath, cfg.Mailbox.Token())
	sess, err := client.NewSession(ctx, sys, key, user, client.WithReceiveBackoff(cfg.Client.ReceiveBackoff))
	if err != nil {
		return err
	}

	ui := client.NewConsole(os.Stdout)
	recvErr := make(chan error, 1)
	go func() {
		err := sess.Receive(ctx, ui)
		if err != nil {
			ui.Error("connection lost: " + err.Error())
			cancel()
		}
		recvErr <- err
	}()

	if err := client.NewShell(sess, ui).Run(ctx, os.Stdin); err != nil {
		log.Warn().Err(err).Str("module", "chat").Msg("input")
	}

	cctx, ccancel := context.WithTimeout(context.Background(), closeTimeout)
	defer ccancel()
	if err := sess.Close(cctx); err != nil {
		log.Warn().Err(err).Str("module", "chat").Msg("close session")
	}
	ui.Info(client.Goodbye)

	cancel()
	return <-recvErr
}
