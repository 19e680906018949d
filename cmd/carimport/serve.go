package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/carimport/internal/core"
	"github.com/JonMunkholm/carimport/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the upload server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			cfg.Server.Port = port
		}
		migrate, _ := cmd.Flags().GetBool("migrate")

		st, err := initStore(ctx, migrate)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		slog.Info("tables registered", "count", core.TableCount(), "tables", core.Keys())

		limiter := core.NewImportLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime)
		server := web.NewServer(st, limiter, cfg)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(server.Start)
		g.Go(func() error {
			<-gctx.Done()
			slog.Info("shutting down...")

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
			defer cancel()

			// Running batches hold a transaction; let them commit before the
			// listener closes their connections.
			if status := limiter.Status(); status.Active > 0 {
				slog.Info("waiting for imports to complete", "active", status.Active)
				if err := limiter.WaitForDrain(shutdownCtx); err != nil {
					slog.Warn("imports did not complete in time", "error", err)
				}
			}

			return server.Shutdown(shutdownCtx)
		})

		if err := g.Wait(); err != nil {
			return eris.Wrap(err, "server")
		}
		slog.Info("server stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "server port (default from SERVER_PORT)")
	serveCmd.Flags().Bool("migrate", false, "create missing tables on startup")
	rootCmd.AddCommand(serveCmd)
}
