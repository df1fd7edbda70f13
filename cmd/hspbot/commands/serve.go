package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hspbot/hspbot/errors"
	"github.com/hspbot/hspbot/logger"
	"github.com/hspbot/hspbot/server"
)

// ServeCmd runs the bot: HTTP API, websocket feed, and job recovery
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the HTTP API and websocket event feed",
	Long: `Start the bot process: recovers persisted jobs, re-arms their timers,
and serves the HTTP API plus the websocket event feed until interrupted.`,
	RunE: runServe,
}

var serveListenAddr string

func init() {
	ServeCmd.Flags().StringVar(&serveListenAddr, "listen", "", "Listen address (overrides config server.listen_addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	if serveListenAddr != "" {
		a.cfg.Server.ListenAddr = serveListenAddr
	}

	// Re-arm persisted jobs before accepting traffic
	if err := a.scheduler.Recover(); err != nil {
		return errors.Wrap(err, "job recovery failed")
	}

	srv := server.NewServer(a.cfg, a.auth, a.scheduler, a.api, a.events, logger.Logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		a.scheduler.Shutdown()
		return err
	case sig := <-sigCh:
		logger.Logger.Infow("Shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Logger.Warnw("Server shutdown incomplete", "error", err)
	}
	a.scheduler.Shutdown()
	return nil
}
