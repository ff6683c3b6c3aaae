package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/rewind"
	"github.com/aretw0/rewind/internal/config"
	"github.com/aretw0/rewind/internal/logging"
	"github.com/aretw0/rewind/internal/script"
	httpAdapter "github.com/aretw0/rewind/pkg/adapters/http"
	"github.com/aretw0/rewind/pkg/adapters/memory"
	redisAdapter "github.com/aretw0/rewind/pkg/adapters/redis"
	"github.com/aretw0/rewind/pkg/observability"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP editing server",
	Long: `Serves an in-memory graph over HTTP. Edits are recorded as undo units and
can be undone and redone through the API. With REWIND_REDIS_ADDR set, every
mutation first checks the document out in Redis.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("addr"); cmd.Flags().Changed("addr") {
			cfg.HTTPAddr = addr
		}
		if addr, _ := cmd.Flags().GetString("redis-addr"); cmd.Flags().Changed("redis-addr") {
			cfg.RedisAddr = addr
		}
		seed, _ := cmd.Flags().GetString("seed")

		logger := logging.New(cfg.Level())
		handler, cleanup, err := buildServer(cmd.Context(), cfg, seed, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("starting rewind server", "addr", srv.Addr, "document", cfg.Document)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			logger.Info("shutting down", "signal", sig.String())

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("graceful shutdown did not complete", "timeout", shutdownTimeout, "error", err)
				if err := srv.Close(); err != nil {
					return fmt.Errorf("close server: %w", err)
				}
			}
			logger.Info("rewind server stopped")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "Address to listen on")
	serveCmd.Flags().String("redis-addr", "", "Redis address for document checkout")
	serveCmd.Flags().String("seed", "", "Scenario script used to populate the graph before serving")
}

// buildServer wires graph, editor, metrics and the optional Redis checkout.
// The returned cleanup closes the editor and releases the checkout.
func buildServer(ctx context.Context, cfg config.Config, seed string, logger *slog.Logger) (http.Handler, func(), error) {
	graphOpts := []memory.Option{memory.WithContainer(cfg.Document), memory.WithLogger(logger)}
	var checkout *redisAdapter.Checkout
	if cfg.RedisAddr != "" {
		owner := uuid.NewString()
		checkout = redisAdapter.New(cfg.RedisAddr, owner, redisAdapter.WithTTL(cfg.CheckoutTTL))
		graphOpts = append(graphOpts, memory.WithCheckout(checkout, cfg.Document))
		logger.Info("document checkout enabled", "redis", cfg.RedisAddr, "owner", owner)
	}
	graph := memory.NewGraph(graphOpts...)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics, err := observability.NewMetrics(reg)
	if err != nil {
		return nil, nil, fmt.Errorf("register metrics: %w", err)
	}

	editor, err := rewind.New(graph,
		rewind.WithLogger(logger),
		rewind.WithHistoryDepth(cfg.HistoryDepth),
		rewind.WithLifecycleHooks(metrics.Hooks()),
		rewind.WithLifecycleHooks(observability.LogHooks(logger)),
	)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		editor.Close()
		if checkout != nil {
			if err := checkout.Release(context.Background(), cfg.Document); err != nil {
				logger.Warn("checkout release failed", "document", cfg.Document, "error", err)
			}
		}
	}

	if seed != "" {
		s, err := script.Load(seed)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		if _, err := script.NewRunner(graph, editor, script.WithLogger(logger)).Run(ctx, s); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("seed %s: %w", seed, err)
		}
		editor.ClearHistory()
		logger.Info("graph seeded", "script", s.Name, "components", graph.Len())
	}

	return httpAdapter.NewHandler(editor, graph,
		httpAdapter.WithMetrics(reg),
		httpAdapter.WithLogger(logger),
	), cleanup, nil
}
