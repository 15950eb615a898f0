package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"rutas_admin/internal/domain"
)

const localRoutesAlertsKey = "rutasAlertas"

func localHotelsKey(userID string) string { return "hoteles:" + userID }

type cachedRoutesAlerts struct {
	Version string                      `json:"version"`
	Data    domain.RoutesAlertsResponse `json:"data"`
}

type RoutesAlertsResult struct {
	domain.RoutesAlertsResponse
	Version   string
	FromCache bool
	// Stale is set when the remote could not be reached and the cache was served.
	Stale bool
}

type HotelsResult struct {
	domain.HotelsResponse
	FromCache bool
	Stale     bool
}

// SyncService keeps the driver's local copy in step with the server, fetching
// only when the remote version differs from the stored one.
type SyncService struct {
	remote domain.RemoteAPI
	local  domain.LocalStore
}

func NewSyncService(remote domain.RemoteAPI, local domain.LocalStore) *SyncService {
	return &SyncService{remote: remote, local: local}
}

func (s *SyncService) RoutesAlerts(ctx context.Context) (RoutesAlertsResult, error) {
	var cached cachedRoutesAlerts
	have, err := s.local.Load(ctx, localRoutesAlertsKey, &cached)
	if err != nil {
		log.Warn().Err(err).Msg("local cache read failed")
		have = false
	}

	ver, err := s.remote.DataVersion(ctx)
	if err != nil {
		if have {
			log.Warn().Err(err).Msg("version check failed, serving cached routes")
			return RoutesAlertsResult{RoutesAlertsResponse: cached.Data, Version: cached.Version, FromCache: true, Stale: true}, nil
		}
		return RoutesAlertsResult{}, fmt.Errorf("check version: %w", err)
	}
	if have && cached.Version == ver {
		return RoutesAlertsResult{RoutesAlertsResponse: cached.Data, Version: ver, FromCache: true}, nil
	}

	data, err := s.remote.RoutesAlerts(ctx)
	if err != nil {
		if have {
			log.Warn().Err(err).Msg("fetch failed, serving cached routes")
			return RoutesAlertsResult{RoutesAlertsResponse: cached.Data, Version: cached.Version, FromCache: true, Stale: true}, nil
		}
		return RoutesAlertsResult{}, fmt.Errorf("fetch routes and alerts: %w", err)
	}
	if err := s.local.Save(ctx, localRoutesAlertsKey, cachedRoutesAlerts{Version: ver, Data: data}); err != nil {
		log.Warn().Err(err).Msg("local cache write failed")
	}
	return RoutesAlertsResult{RoutesAlertsResponse: data, Version: ver}, nil
}

func (s *SyncService) Hotels(ctx context.Context, userID string) (HotelsResult, error) {
	if userID == "" {
		return HotelsResult{}, fmt.Errorf("userId is required: %w", domain.ErrInvalidInput)
	}
	key := localHotelsKey(userID)

	var cached domain.HotelsResponse
	have, err := s.local.Load(ctx, key, &cached)
	if err != nil {
		log.Warn().Err(err).Msg("local cache read failed")
		have = false
	}
	etag := ""
	if have {
		etag = cached.Version
	}

	fresh, err := s.remote.Hotels(ctx, userID, etag)
	switch {
	case errors.Is(err, domain.ErrNotModified) && have:
		return HotelsResult{HotelsResponse: cached, FromCache: true}, nil
	case err != nil && have:
		log.Warn().Err(err).Str("user", userID).Msg("hotel fetch failed, serving cached list")
		return HotelsResult{HotelsResponse: cached, FromCache: true, Stale: true}, nil
	case err != nil:
		return HotelsResult{}, fmt.Errorf("fetch hotels: %w", err)
	}

	if err := s.local.Save(ctx, key, fresh); err != nil {
		log.Warn().Err(err).Msg("local cache write failed")
	}
	return HotelsResult{HotelsResponse: fresh}, nil
}
