package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"rutas_admin/internal/domain"
)

type QueryService struct {
	cache    domain.Cache
	cacheTTL time.Duration

	routes     collection[domain.Route]
	alerts     collection[domain.Alert]
	hotels     collection[domain.Hotel]
	arrows     collection[domain.Arrow]
	userHotels collection[domain.UserHotels]
	config     collection[domain.AppConfig]

	newVersion func() string
}

func NewQueryService(s domain.DocumentStore, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{
		cache:      c,
		cacheTTL:   ttl,
		routes:     newCollection[domain.Route](s, domain.CollRoutes),
		alerts:     newCollection[domain.Alert](s, domain.CollAlerts),
		hotels:     newCollection[domain.Hotel](s, domain.CollHotels),
		arrows:     newCollection[domain.Arrow](s, domain.CollArrows),
		userHotels: newCollection[domain.UserHotels](s, domain.CollUserHotels),
		config:     newCollection[domain.AppConfig](s, domain.CollConfig),
		newVersion: uuid.NewString,
	}
}

// Hotels returns the driver's hotel list. The list is stamped with a version
// the first time it is read after a change, so the result always carries one.
func (s *QueryService) Hotels(ctx context.Context, userID string) (domain.HotelsResponse, error) {
	if userID == "" {
		return domain.HotelsResponse{}, fmt.Errorf("userId is required: %w", domain.ErrInvalidInput)
	}

	list, err := s.stampedList(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		// nothing is stored for ids without a list
		return domain.HotelsResponse{Version: domain.EmptyListVersion, Hotels: []domain.Hotel{}}, nil
	}
	if err != nil {
		return domain.HotelsResponse{}, err
	}

	key := fmt.Sprintf("hoteles:%s:%s", userID, list.Version)
	var out domain.HotelsResponse
	if ok, _ := s.cache.Get(ctx, key, &out); ok {
		return out, nil
	}

	all, err := s.hotels.list(ctx)
	if err != nil {
		return domain.HotelsResponse{}, err
	}
	byID := make(map[string]domain.Hotel, len(all))
	for _, h := range all {
		byID[h.ID] = h
	}
	out = domain.HotelsResponse{Version: list.Version, Hotels: make([]domain.Hotel, 0, len(list.HotelIDs))}
	for _, id := range list.HotelIDs {
		// references are not enforced; dangling ids are dropped
		if h, ok := byID[id]; ok {
			out.Hotels = append(out.Hotels, h)
		}
	}

	_ = s.cache.Set(ctx, key, out, int(s.cacheTTL.Seconds()))
	return out, nil
}

// stampedList reads the list until it carries a version. The stamp only touches
// the version field of a still-unstamped list, and the ids returned always come
// from the same read as the version.
func (s *QueryService) stampedList(ctx context.Context, userID string) (domain.UserHotels, error) {
	for range 3 {
		list, err := s.userHotels.get(ctx, userID)
		if err != nil {
			return domain.UserHotels{}, err
		}
		if list.Version != "" {
			return list, nil
		}
		if _, err := s.userHotels.setIfEmpty(ctx, userID, "version", s.newVersion()); err != nil {
			return domain.UserHotels{}, err
		}
	}
	return domain.UserHotels{}, fmt.Errorf("stamp hotel list %s: list keeps changing", userID)
}

// RoutesAlerts is a full read of both collections, cached per data version.
func (s *QueryService) RoutesAlerts(ctx context.Context) (domain.RoutesAlertsResponse, error) {
	ver, err := s.DataVersion(ctx)
	if err != nil {
		return domain.RoutesAlertsResponse{}, err
	}
	key := "rutasAlertas:" + ver
	var out domain.RoutesAlertsResponse
	if ok, _ := s.cache.Get(ctx, key, &out); ok {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rs, err := s.routes.list(gctx)
		out.Routes = rs
		return err
	})
	g.Go(func() error {
		as, err := s.alerts.list(gctx)
		out.Alerts = as
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.RoutesAlertsResponse{}, err
	}

	_ = s.cache.Set(ctx, key, out, int(s.cacheTTL.Seconds()))
	return out, nil
}

// DataVersion reads config/app, stamping a version if none exists yet.
func (s *QueryService) DataVersion(ctx context.Context) (string, error) {
	cfg, err := s.config.get(ctx, domain.ConfigDocID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}
	if cfg.DataVersion != "" {
		return cfg.DataVersion, nil
	}
	cfg.DataVersion = s.newVersion()
	if _, err := s.config.put(ctx, domain.ConfigDocID, cfg); err != nil {
		return "", err
	}
	return cfg.DataVersion, nil
}

func (s *QueryService) Arrows(ctx context.Context) ([]domain.Arrow, error) {
	return s.arrows.list(ctx)
}
