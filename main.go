package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/aaronzipp/avalon-moderator/internal/config"
	"github.com/aaronzipp/avalon-moderator/internal/decision"
	"github.com/aaronzipp/avalon-moderator/internal/game"
	"github.com/aaronzipp/avalon-moderator/internal/handlers"
	"github.com/aaronzipp/avalon-moderator/internal/logging"
	"github.com/aaronzipp/avalon-moderator/internal/store"
	"github.com/aaronzipp/avalon-moderator/internal/telemetry"
)

const serviceName = "avalon-moderator"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Debug)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("flush traces", zap.Error(err))
		}
	}()

	catalog, err := game.LoadCatalog()
	if err != nil {
		return err
	}

	hctx := &handlers.Context{
		Store:   store.NewMatchStore(),
		Config:  cfg,
		Logger:  logger,
		Catalog: catalog,
	}

	if cfg.HasModelCredentials() {
		d, err := decision.NewOpenAI(decision.OpenAIConfig{
			APIKey:          cfg.OpenAIAPIKey,
			BaseURL:         cfg.OpenAIBaseURL,
			AzureEndpoint:   cfg.AzureEndpoint,
			AzureAPIVersion: cfg.AzureAPIVersion,
			Model:           cfg.Model,
			Logger:          logger,
		})
		if err != nil {
			return err
		}
		hctx.Decider = d
	} else {
		logger.Warn("no model credentials configured; matches cannot be started")
	}

	if cfg.ArchivePath != "" {
		archive, err := store.OpenArchive(cfg.ArchivePath)
		if err != nil {
			return err
		}
		defer archive.Close()
		hctx.Archive = archive
	}

	go pruneRooms(ctx, hctx.Store, logger)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           hctx.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	hctx.Store.StopAll()
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// pruneRooms drops finished rooms once late observers had their chance
func pruneRooms(ctx context.Context, s *store.MatchStore, logger *zap.Logger) {
	ticker := time.NewTicker(game.FinishedRoomTTL / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.PruneFinished(game.FinishedRoomTTL); n > 0 {
				logger.Info("pruned finished rooms", zap.Int("rooms", n))
			}
		}
	}
}
