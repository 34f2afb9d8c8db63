package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/niodex/relayer/params"
	"github.com/niodex/relayer/pkg/api"
	"github.com/niodex/relayer/pkg/book"
	"github.com/niodex/relayer/pkg/shadow"
	"github.com/niodex/relayer/pkg/storage"
	"github.com/niodex/relayer/pkg/util"
	"github.com/niodex/relayer/pkg/watch"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = "data/relayer.log"
	}
	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("relayer starting")

	// ---- Persistence ----
	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal("open store: " + err.Error())
	}
	defer store.Close()

	clock := util.RealClock{}

	// ---- Order validity tracking ----
	tracker := shadow.NewTracker()
	watcher := watch.NewExpiryWatcher(logger, clock, cfg.Watch.ExpiryPollInterval)
	reconciler := watch.NewReconciler(logger, store, tracker, watcher, clock, cfg.Watch)

	reconciler.Start()
	defer reconciler.Stop()
	watcher.Start()
	defer watcher.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Replay the persisted live set through the watcher; orders that went
	// stale while the relayer was down are dropped right away.
	if err := reconciler.ReSubmitPersisted(ctx); err != nil {
		logger.Fatal("re-submit persisted orders: " + err.Error())
	}

	// ---- Views + API ----
	views := book.NewBuilder(store, tracker, cfg.Chain.DefaultERC20Precision)
	server := api.NewServer(logger, store, views, watcher, clock, cfg.API)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Fatal("api server failed: " + err.Error())
	}
}
