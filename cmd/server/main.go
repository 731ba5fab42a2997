package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/openshelf/lending-hub/internal/api/http"
	"github.com/openshelf/lending-hub/internal/application/auth"
	"github.com/openshelf/lending-hub/internal/application/lending"
	"github.com/openshelf/lending-hub/internal/application/messaging"
	"github.com/openshelf/lending-hub/internal/application/overdue"
	"github.com/openshelf/lending-hub/internal/config"
	"github.com/openshelf/lending-hub/internal/infrastructure/realtime"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// overdue marking runs only with an explicit policy
	var policy *overdue.Policy
	if cfg.OverdueEnabled() {
		policy, err = overdue.ParsePolicy(cfg.OverduePolicy)
		if err != nil {
			log.Fatalf("overdue policy error: %v", err)
		}
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("store error: %v", err)
	}
	defer backend.close()

	var store lending.Store = backend.store
	if cfg.StoreCompensating {
		store = lending.NewCompensatingStore(backend.store, logger)
	}

	// real-time delivery
	registry := realtime.NewRegistry(cfg.LivenessWindow, logger)
	hub := realtime.NewHub(registry, realtime.HubConfig{
		ChannelBuffer: cfg.ChannelBuffer,
		OfflineBuffer: cfg.OfflineBuffer,
		OfflineGrace:  cfg.OfflineGrace,
	}, logger)

	// services
	lendingSvc := lending.NewService(store, hub, logger)
	messagingSvc := messaging.NewService(backend.messages, store.Loans(), hub, logger)
	authSvc := auth.NewService(cfg.JWTSecret, cfg.JWTIssuer, logger)

	// API server
	apiServer := httpapi.NewServer(lendingSvc, messagingSvc, authSvc, hub, logger)

	httpServer := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     apiServer.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// background loops
	go registry.Run(ctx)
	if policy != nil {
		sweeper := overdue.NewSweeper(store.Loans(), lendingSvc, policy, cfg.OverdueInterval, logger)
		go sweeper.Run(ctx)
	}

	// start server
	go func() {
		logger.Info().
			Str("addr", cfg.ServerAddr).
			Str("store", cfg.StoreDriver).
			Bool("compensating", cfg.StoreCompensating).
			Str("overdue_policy", cfg.OverduePolicy).
			Bool("overdue_sweeper", policy != nil).
			Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	stop()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}
