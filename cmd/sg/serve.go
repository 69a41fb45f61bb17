package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alfredjeanlab/stagegate/internal/config"
	"github.com/alfredjeanlab/stagegate/internal/events"
	"github.com/alfredjeanlab/stagegate/internal/gates"
	"github.com/alfredjeanlab/stagegate/internal/hooks"
	"github.com/alfredjeanlab/stagegate/internal/seed"
	"github.com/alfredjeanlab/stagegate/internal/server"
	"github.com/alfredjeanlab/stagegate/internal/store"
	"github.com/alfredjeanlab/stagegate/internal/store/memory"
	"github.com/alfredjeanlab/stagegate/internal/store/postgres"
	gatesync "github.com/alfredjeanlab/stagegate/internal/sync"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the stagegate gRPC and HTTP servers",
	GroupID: "system",
	// Override PersistentPreRunE so we don't create a client connection.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if m, _ := cmd.Flags().GetBool("memory"); m {
			cfg.Memory = true
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

		st, err := openStore(cfg, logger)
		if err != nil {
			return err
		}

		seedDefaults, _ := cmd.Flags().GetBool("seed-defaults")
		if err := seedStore(cmd.Context(), st, cfg.SeedFile, seedDefaults, logger); err != nil {
			st.Close()
			return err
		}

		// Create event publisher.
		var bus events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL, events.LogConnectionEvents(logger)...)
			if err != nil {
				st.Close()
				return err
			}
			bus = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			bus = &events.NoopPublisher{}
			logger.Info("events disabled (SG_NATS_URL not set)")
		}

		stream := server.NewEventStream()
		ev := gates.NewEvaluator(st, gates.NewChecker(logger), events.Fanout{bus, stream}, logger)
		gateServer := server.NewGateServer(st, ev, bus, stream)
		grpcServer := server.NewGRPCServer(gateServer, cfg.AuthToken)

		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			bus.Close()
			st.Close()
			return err
		}
		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: gateServer.NewHTTPHandler(cfg.AuthToken),
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		var scheduler *gatesync.Scheduler
		if cfg.SyncEnabled() {
			dest, err := gatesync.NewS3Destination(context.Background(),
				cfg.SyncS3Bucket, cfg.SyncS3Key, cfg.SyncS3Region, cfg.SyncS3Endpoint)
			if err != nil {
				logger.Error("failed to create S3 sync destination", "err", err)
			} else {
				scheduler = gatesync.NewScheduler(st, []gatesync.Destination{dest}, cfg.SyncInterval, logger)
				scheduler.Start()
				logger.Info("sync scheduler started", "destination", dest.Name(), "interval", cfg.SyncInterval)
			}
		}

		// Project change events re-evaluate the current stage and create tasks.
		var hooksCancel context.CancelFunc
		if cfg.NATSURL != "" {
			sub, err := events.NewNATSSubscriber(cfg.NATSURL, events.LogConnectionEvents(logger)...)
			if err != nil {
				logger.Error("failed to create hooks subscriber", "err", err)
			} else {
				handler := hooks.NewHandler(st, ev, logger)
				var hooksCtx context.Context
				hooksCtx, hooksCancel = context.WithCancel(context.Background())
				go func() {
					if err := handler.StartSubscriber(hooksCtx, sub); err != nil {
						logger.Error("hooks subscriber error", "err", err)
					}
					sub.Close()
				}()
				logger.Info("hooks subscriber started", "topic", events.TopicProjectAll)
			}
		}

		logger.Info("stagegate server started",
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
			"memory", cfg.Memory,
		)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		if hooksCancel != nil {
			hooksCancel()
		}
		if scheduler != nil {
			scheduler.Stop()
			logger.Info("sync scheduler stopped")
		}

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := bus.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().Bool("memory", false, "use the in-memory store (nothing is persisted)")
	serveCmd.Flags().Bool("seed-defaults", false, "apply the built-in gate definitions at startup")
}

func openStore(cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.Memory {
		logger.Warn("using in-memory store; data is lost on shutdown")
		return memory.New(), nil
	}
	st, err := postgres.New(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening postgres store: %w", err)
	}
	return st, nil
}

// seedStore applies the seed file when one is configured, otherwise the
// built-in definitions when useDefaults is set.
func seedStore(ctx context.Context, st store.Store, path string, useDefaults bool, logger *slog.Logger) error {
	var (
		f   *seed.File
		err error
	)
	switch {
	case path != "":
		f, err = seed.LoadFile(path)
	case useDefaults:
		f, err = seed.Default()
	default:
		return nil
	}
	if err != nil {
		return err
	}
	sum, err := seed.Apply(ctx, st, f)
	if err != nil {
		return err
	}
	logger.Info("gate definitions applied",
		"source", seedSource(path),
		"stages_created", sum.StagesCreated,
		"gates_created", sum.GatesCreated,
		"gates_updated", sum.GatesUpdated,
		"requirements_created", sum.RequirementsCreated,
		"requirements_updated", sum.RequirementsUpdated,
	)
	return nil
}

func seedSource(path string) string {
	if path == "" {
		return "defaults"
	}
	return path
}
