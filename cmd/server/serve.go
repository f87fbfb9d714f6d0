package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/nrjais/basestore/internal/config"
	"github.com/nrjais/basestore/internal/core"
	"github.com/nrjais/basestore/internal/db"
	"github.com/nrjais/basestore/internal/grpcapi"
	"github.com/nrjais/basestore/internal/metrics"
	"github.com/nrjais/basestore/internal/migrations"
	"github.com/nrjais/basestore/internal/schemacache"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gRPC server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	slog.Info("Starting basestore server...")
	if ctx == nil {
		ctx = context.Background()
	}

	database, err := setupDatabase(ctx, cfg)
	if err != nil {
		return fmt.Errorf("database setup failed: %w", err)
	}
	defer database.Close()

	var wg sync.WaitGroup
	bgTaskCtx, bgTaskCancel := context.WithCancel(ctx)
	defer bgTaskCancel()

	cache := schemacache.NewManager(database, cfg)
	cache.Start(bgTaskCtx, &wg)

	svc := core.NewService(database, cache, cfg)
	grpcServer, err := startGRPCServer(&wg, svc, cfg)
	if err != nil {
		cache.Stop()
		wg.Wait()
		return err
	}
	metricsServer := metrics.StartServer(cfg.MetricsPort, &wg)

	waitForShutdownSignal(ctx)
	slog.Info("Shutting down server...")

	timeout := time.Duration(cfg.ShutdownTimeoutSecs) * time.Second
	stopGRPCServer(grpcServer, timeout)
	stopMetricsServer(metricsServer, timeout)

	slog.Info("Signalling background tasks to stop...")
	cache.Stop()
	bgTaskCancel()
	wg.Wait()

	slog.Info("Server stopped gracefully.")
	return nil
}

func setupDatabase(ctx context.Context, cfg *config.Config) (db.Database, error) {
	switch cfg.Storage {
	case "memory":
		slog.Warn("Using in-memory storage, data is lost on restart")
		return db.NewMemoryDatabase(), nil
	case "postgres":
		if err := migrations.RunMigrations(cfg.PostgresURL); err != nil {
			return nil, fmt.Errorf("database migration failed: %w", err)
		}
		pool, err := db.ConnectPostgres(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
		}
		return db.NewPostgresDatabase(pool), nil
	}
	return nil, fmt.Errorf("unsupported storage '%s'", cfg.Storage)
}

func startGRPCServer(wg *sync.WaitGroup, svc *core.Service, cfg *config.Config) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", cfg.GRPCPort)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.GRPCPort, err)
	}

	s := grpcapi.NewGRPCServer(svc)
	slog.Info("gRPC server listening", "addr", cfg.GRPCPort)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.Serve(lis); err != nil {
			if !errors.Is(err, grpc.ErrServerStopped) {
				slog.Error("Failed to serve gRPC", "error", err)
			}
		}
		slog.Info("gRPC server stopped")
	}()
	return s, nil
}

// stopGRPCServer drains in-flight calls, forcing a stop after timeout.
func stopGRPCServer(s *grpc.Server, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		slog.Warn("gRPC graceful stop timed out, forcing stop", "timeout", timeout)
		s.Stop()
	}
}

func stopMetricsServer(srv *http.Server, timeout time.Duration) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("Metrics server shutdown failed", "error", err)
	}
}

func waitForShutdownSignal(ctx context.Context) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)
	select {
	case <-quit:
	case <-ctx.Done():
	}
}
