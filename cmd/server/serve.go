package main

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
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quickcap-auth-backend/pkg/config"
	"quickcap-auth-backend/pkg/database"
	"quickcap-auth-backend/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, _ []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, log)
	},
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	store, err := database.NewDatabase(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	if cfg.AutoMigrate && cfg.DBDriver != config.DriverLocal {
		url, err := database.MigrationURL(cfg)
		if err != nil {
			return err
		}
		if err := database.RunMigrations(url); err != nil {
			return err
		}
		log.Info("database migrations applied")
	}

	app := server.New(server.Deps{Config: cfg, Store: store, Logger: log})
	defer app.Close()

	srv := newHTTPServer(cfg, app)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		return shutdown(srv, shutdownTimeout)
	})
	return g.Wait()
}

const shutdownTimeout = 10 * time.Second

// newHTTPServer 请求 context 不挂在信号 context 上，Shutdown 期间在途请求可以完成
func newHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// shutdown 停止接收新连接，最多等待 timeout 让在途请求完成
func shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
