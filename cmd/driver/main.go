package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"rutas_admin/internal/adapters/apiclient"
	"rutas_admin/internal/adapters/localcache"
	"rutas_admin/internal/adapters/observability"
	"rutas_admin/internal/app"
	"rutas_admin/internal/shared"
)

func main() {
	cfg, err := shared.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	if cfg.DriverUserID == "" {
		log.Fatal().Msg("DRIVER_USER_ID is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := apiclient.New(cfg.APIBaseURL, cfg.APIRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize API client")
	}
	local, err := localcache.Open(cfg.LocalCacheDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open local cache")
	}
	defer local.Close()

	s := app.NewSyncService(client, local)
	syncOnce(ctx, s, cfg.DriverUserID)

	every := cfg.SyncInterval()
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("driver sync stopped")
			return
		case <-t.C:
			syncOnce(ctx, s, cfg.DriverUserID)
		}
	}
}

func syncOnce(ctx context.Context, s *app.SyncService, userID string) {
	ra, err := s.RoutesAlerts(ctx)
	if err != nil {
		log.Error().Err(err).Msg("routes sync failed")
	} else {
		log.Info().
			Str("version", ra.Version).
			Int("rutas", len(ra.Routes)).
			Int("alertas", len(ra.Alerts)).
			Bool("cached", ra.FromCache).
			Bool("stale", ra.Stale).
			Msg("routes synced")
	}

	h, err := s.Hotels(ctx, userID)
	if err != nil {
		log.Error().Err(err).Msg("hotel sync failed")
		return
	}
	log.Info().
		Str("version", h.Version).
		Int("hoteles", len(h.Hotels)).
		Bool("cached", h.FromCache).
		Bool("stale", h.Stale).
		Msg("hotels synced")
}
