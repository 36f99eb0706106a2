package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/punchamoorthee/galleryops/internal/api"
	"github.com/punchamoorthee/galleryops/internal/catalog"
	"github.com/punchamoorthee/galleryops/internal/config"
	"github.com/punchamoorthee/galleryops/internal/ledger"
	"github.com/punchamoorthee/galleryops/internal/locks"
	"github.com/punchamoorthee/galleryops/internal/service"
	"github.com/punchamoorthee/galleryops/internal/store"
	"go.uber.org/zap"
)

const simConfirmLatency = 2 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	var logger *zap.Logger
	if cfg.Env == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx := context.Background()

	var ledgerClient ledger.Client
	if cfg.LedgerRPCURL != "" {
		evm, err := ledger.NewEVMClient(ctx, cfg.LedgerRPCURL, cfg.ContractAddress, cfg.SignerKey)
		if err != nil {
			logger.Fatal("ledger client init failed", zap.Error(err))
		}
		defer evm.Close()
		ledgerClient = evm
		logger.Info("connected to ledger", zap.String("rpc_url", cfg.LedgerRPCURL))
	} else {
		ledgerClient = ledger.NewSim(simConfirmLatency)
		logger.Warn("LEDGER_RPC_URL not set, using in-process simulated ledger")
	}

	var records store.RecordStore
	if cfg.DBSource != "" {
		pg, err := store.NewPostgresStore(cfg.DBSource)
		if err != nil {
			logger.Fatal("unable to connect to database", zap.Error(err))
		}
		defer pg.Close()
		records = pg
	} else {
		records = store.NewMemoryStore()
		logger.Warn("DB_SOURCE not set, transaction history is in-memory only")
	}

	// Initialize Layers
	cat := catalog.New(ledgerClient, logger)
	if err := cat.Rebuild(ctx); err != nil {
		logger.Fatal("initial catalog build failed", zap.Error(err))
	}
	orch := service.New(ledgerClient, cat, locks.NewManager(), records, logger, cfg.ConfirmTimeout)
	handler := api.NewHandler(cat, orch, logger)

	go cat.Run(ctx, cfg.RefreshInterval)
	go orch.PruneHistory(ctx, time.Hour, cfg.HistoryRetention)

	r := api.NewRouter(handler)

	logger.Info("server starting", zap.String("port", cfg.Port))
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
