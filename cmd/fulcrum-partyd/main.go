// Command fulcrum-partyd runs the party daemon: it owns the party
// coordinator (invites, joins, leaves, kicks, disbands) and the
// reservation service built on top of it, plus the periodic maintenance
// sweep that expires invites and disbands idle/abandoned parties.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haroldsh/fulcrum/internal/bus"
	"github.com/haroldsh/fulcrum/internal/config"
	"github.com/haroldsh/fulcrum/internal/kv"
	"github.com/haroldsh/fulcrum/internal/metrics"
	"github.com/haroldsh/fulcrum/internal/obs"
	"github.com/haroldsh/fulcrum/internal/party"
	"github.com/haroldsh/fulcrum/internal/reservation"
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := obs.New("party", cfg.Log)
	metrics.Init("fulcrum-partyd", cfg.ServerFamily)

	redisStore := kv.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	msgBus := bus.New(redisStore.Client(), logger)
	defer msgBus.Close()

	partyCfg := party.DefaultConfig()
	partyCfg.InviteTTL = cfg.InviteTTL
	partyCfg.IdleGrace = cfg.SoloIdleGrace

	coordinator := party.New(redisStore, msgBus, logger, partyCfg)
	if err := coordinator.RegisterRPC(); err != nil {
		logger.With(nil).WithError(err).Fatal("partyd: failed to subscribe party operation requests")
	}

	catalog := reservation.NewCatalog()
	reservations := reservation.New(redisStore, msgBus, logger, catalog, party.ReservationCapability{Coordinator: coordinator}, cfg.ReservationTTL)
	if err := reservations.RegisterRPC(); err != nil {
		logger.With(nil).WithError(err).Fatal("partyd: failed to subscribe reservation requests")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	maintenanceTicker := time.NewTicker(30 * time.Second)
	defer maintenanceTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-maintenanceTicker.C:
				if err := coordinator.RunMaintenance(ctx); err != nil {
					logger.With(nil).WithError(err).Warn("partyd: maintenance sweep failed")
				}
			}
		}
	}()

	logger.With(nil).Info("partyd: ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.With(nil).Info("partyd: shutting down")
	cancel()
}
