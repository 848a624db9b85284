// Package serve provides the "vexcel serve" command that runs the HTTP API.
package serve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Todor-5rov/Vexcel/internal/app"
	"github.com/Todor-5rov/Vexcel/internal/config"
)

// NewCommand returns the serve command.
func NewCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API for the browser UI",
		Long: `Run the VExcel HTTP API: uploads, the chat assistant, table previews and saves,
voice transcription, and a websocket stream of sync events.

The server stops gracefully on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, logger, err := app.Setup(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			a, err := app.Open(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			config.Watch(func(_ *config.Config, err error) {
				if err != nil {
					logger.Warn("config reload failed", "error", err)
					return
				}
				logger.Info("config reloaded")
			})

			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           a.Server().Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			return Run(ctx, srv, cfg.Server.ShutdownTimeout, func(format string, args ...any) {
				logger.Info(fmt.Sprintf(format, args...))
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

// Run serves srv until ctx is done, then shuts it down within timeout.
// Request contexts keep ctx's values but not its cancellation, so requests in
// flight at shutdown finish their sync instead of failing halfway.
func Run(ctx context.Context, srv *http.Server, timeout time.Duration, logf func(string, ...any)) error {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if srv.BaseContext == nil {
		base := context.WithoutCancel(ctx)
		srv.BaseContext = func(net.Listener) context.Context { return base }
	}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logf("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
