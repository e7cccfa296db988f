package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/datallboy/modfetch/internal/api"
	"github.com/datallboy/modfetch/internal/app"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the download queue and its HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(true)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.Build(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					log.Error("Shutdown error: %v", err)
				}
			}()

			srv := api.NewHTTPServer(":"+cfg.Port, a)

			a.Queue.StartProcessing(ctx)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.Info("API listening on %s", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				log.Info("Shutting down...")
				a.Queue.StopProcessing()

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})

			return g.Wait()
		},
	}
}
