package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/obsidianstack/reqscope/server/internal/config"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath, staticDir string

	cmd := &cobra.Command{
		Use:   "reqscope",
		Short: "HTTP request dispatcher with a live request log",
		Long: `reqscope dispatches HTTP requests through a route table, records every
request in a bounded in-memory log and streams each record to WebSocket
subscribers on /ws/logs.`,
		Example: `  # Start with defaults on :8080
  reqscope

  # Start with a config file and serve ./public under /static/
  reqscope --config config/server.yaml --static-dir ./public`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if staticDir != "" {
				cfg.Server.StaticDir = staticDir
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return run(ctx, cfg, configPath, cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file (built-in defaults when empty)")
	cmd.Flags().StringVar(&staticDir, "static-dir", "", "serve files from this directory under /static/")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func newLogger(w io.Writer, cfg config.LoggingConfig, level *slog.LevelVar) *slog.Logger {
	level.Set(cfg.SlogLevel())
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// run serves until ctx is cancelled or a listener fails.
func run(ctx context.Context, cfg *config.Config, configPath string, logOut io.Writer) error {
	level := new(slog.LevelVar)
	slog.SetDefault(newLogger(logOut, cfg.Server.Logging, level))

	slog.Info("reqscope starting",
		"config", configPath,
		"http_port", cfg.Server.HTTPPort,
		"grpc_port", cfg.Server.GRPCPort,
		"workers", cfg.Server.Workers,
		"auth_mode", cfg.Server.Auth.Mode,
	)

	a, err := newApp(cfg.Server, level)
	if err != nil {
		return err
	}
	defer a.close()

	httpLis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.HTTPPort))
	if err != nil {
		return fmt.Errorf("listen http: %w", err)
	}
	var grpcLis net.Listener
	if a.probe != nil {
		grpcLis, err = net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
		if err != nil {
			httpLis.Close() //nolint:errcheck
			return fmt.Errorf("listen grpc: %w", err)
		}
	}

	httpSrv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("HTTP server listening", "addr", httpLis.Addr().String())
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if grpcLis != nil {
		g.Go(func() error {
			slog.Info("gRPC health probe listening", "addr", grpcLis.Addr().String())
			return a.probe.Serve(grpcLis)
		})
	}

	if configPath != "" {
		g.Go(func() error {
			return config.Watch(gctx, configPath, a.reload)
		})
	}

	if a.archive != nil {
		g.Go(func() error {
			a.archive.Run(gctx, cfg.Server.Storage.PruneInterval)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("reqscope shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(sctx); err != nil {
			slog.Warn("HTTP shutdown", "err", err)
		}
		if a.probe != nil {
			a.probe.Stop()
		}
		return nil
	})

	a.Start()
	return g.Wait()
}
