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

	"github.com/conorfennell/knolstudy/internal/config"
	"github.com/conorfennell/knolstudy/internal/due"
	"github.com/conorfennell/knolstudy/internal/session"
	"github.com/conorfennell/knolstudy/internal/web"
)

const shutdownTimeout = 10 * time.Second

// newServeCmd creates the "knolstudy serve" subcommand.
func newServeCmd(a *app) *cobra.Command {
	d := config.Default()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the study HTTP API",
		Long:  "Serve the study API and end idle sessions in the background until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().String("listen", d.HTTP.Listen, "Address to listen on")
	cmd.Flags().Duration("idle-timeout", d.Session.IdleTimeout, "End sessions idle for this long")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	cfg := a.cfg
	manager := session.NewManager(db, due.NewSelector(db), session.Options{
		IdleTimeout:    cfg.Session.IdleTimeout,
		Retention:      cfg.Session.Retention,
		ReviewAttempts: cfg.Session.ReviewAttempts,
		Logger:         a.logger,
	})
	srv := &http.Server{
		Addr:         cfg.HTTP.Listen,
		Handler:      web.NewServer(db, manager, cfg.Sources.ReposDir, a.logger),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("Starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return manager.Run(gctx, cfg.Session.SweepInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
