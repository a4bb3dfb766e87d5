package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	appcfg "github.com/park285/chessduel/internal/config"
	"github.com/park285/chessduel/internal/obslog"
	"github.com/park285/chessduel/internal/relay"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv("logs/chess-relay.log"); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.Named("main")

	var store relay.Store = relay.NewMemoryStore()
	var closeStore func() error
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rs, err := relay.OpenRedisStore(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			logger.Fatal("redis_store_open_failed", zap.Error(err))
		}
		store = rs
		closeStore = rs.Close
	}

	srv := relay.NewServer(relay.WithStore(store))
	httpSrv := &http.Server{
		Addr:              cfg.RelayAddr,
		Handler:           relay.NewRouter(srv),
		ReadHeaderTimeout: 5 * time.Second,
	}
	status := relay.NewStatusServer(store, srv.ActiveMatches)

	go func() {
		logger.Info("relay_listening", zap.String("addr", cfg.RelayAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("relay_listen_failed", zap.Error(err))
		}
	}()
	if cfg.RelayStatusAddr != "" {
		go func() {
			logger.Info("relay_status_listening", zap.String("addr", cfg.RelayStatusAddr))
			if err := status.ListenAndServe(cfg.RelayStatusAddr); err != nil {
				logger.Error("relay_status_failed", zap.Error(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("relay_shutting_down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Close()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Warn("relay_http_shutdown_failed", zap.Error(err))
	}
	if err := status.Shutdown(ctx); err != nil {
		logger.Warn("relay_status_shutdown_failed", zap.Error(err))
	}
	if closeStore != nil {
		_ = closeStore()
	}
}
