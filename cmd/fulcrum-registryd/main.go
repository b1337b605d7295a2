// Command fulcrum-registryd runs the registry daemon: it owns the
// authoritative serverId -> metadata map, answers registration requests
// over the bus, detects crashed servers by heartbeat staleness, and
// serves the HTTP status/metrics surface.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/haroldsh/fulcrum/internal/bus"
	"github.com/haroldsh/fulcrum/internal/config"
	"github.com/haroldsh/fulcrum/internal/kv"
	"github.com/haroldsh/fulcrum/internal/metrics"
	"github.com/haroldsh/fulcrum/internal/obs"
	"github.com/haroldsh/fulcrum/internal/registry"
)

func main() {
	listenAddr := flag.String("addr", "", "HTTP listen address (overrides LISTEN_ADDR)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := obs.New("registry", cfg.Log)
	metrics.Init("fulcrum-registryd", cfg.ServerFamily)

	addr := cfg.ListenAddr
	if *listenAddr != "" {
		addr = *listenAddr
	}

	redisStore := kv.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	msgBus := bus.New(redisStore.Client(), logger)
	defer msgBus.Close()

	reg := registry.New(msgBus, logger)
	statusServer := registry.NewStatusServer(reg)

	httpServer := &http.Server{Addr: addr, Handler: statusServer.Handler()}
	go func() {
		logger.With(nil).Infof("registryd: listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.With(nil).WithError(err).Fatal("registryd: http server failed")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	instanceID := uuid.NewString()
	if err := reg.BroadcastReregistration(ctx, instanceID); err != nil {
		logger.With(nil).WithError(err).Warn("registryd: failed to broadcast reregistration on startup")
	}

	crashTicker := time.NewTicker(cfg.TempHeartbeatThreshold / 3)
	defer crashTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-crashTicker.C:
				if crashed := reg.CheckCrashed(cfg.TempHeartbeatThreshold); len(crashed) > 0 {
					logger.With(nil).Warnf("registryd: marked %d server(s) offline", len(crashed))
				}
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.With(nil).Info("registryd: shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.With(nil).WithError(err).Error("registryd: http shutdown error")
	}
}
