package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"rutas_admin/internal/domain"
)

// AdminService owns every write to the map collections. Writes to routes,
// alerts and arrows bump the global data version; writes to hotels clear the
// version of each driver list that references them.
type AdminService struct {
	cache domain.Cache
	pub   domain.ChangePublisher

	routes     collection[domain.Route]
	alerts     collection[domain.Alert]
	hotels     collection[domain.Hotel]
	arrows     collection[domain.Arrow]
	userHotels collection[domain.UserHotels]
	config     collection[domain.AppConfig]

	newID      func() string
	newVersion func() string
	now        func() time.Time
}

// NewAdminService accepts a nil publisher when no listener needs change events.
func NewAdminService(s domain.DocumentStore, c domain.Cache, pub domain.ChangePublisher) *AdminService {
	return &AdminService{
		cache:      c,
		pub:        pub,
		routes:     newCollection[domain.Route](s, domain.CollRoutes),
		alerts:     newCollection[domain.Alert](s, domain.CollAlerts),
		hotels:     newCollection[domain.Hotel](s, domain.CollHotels),
		arrows:     newCollection[domain.Arrow](s, domain.CollArrows),
		userHotels: newCollection[domain.UserHotels](s, domain.CollUserHotels),
		config:     newCollection[domain.AppConfig](s, domain.CollConfig),
		newID:      uuid.NewString,
		newVersion: uuid.NewString,
		now:        time.Now,
	}
}

// ---- routes ----

func (s *AdminService) ListRoutes(ctx context.Context) ([]domain.Route, error) {
	return s.routes.list(ctx)
}

func (s *AdminService) GetRoute(ctx context.Context, id string) (domain.Route, error) {
	return s.routes.get(ctx, id)
}

func (s *AdminService) SaveRoute(ctx context.Context, r domain.Route) (domain.Route, error) {
	if r.ID == "" {
		r.ID = s.newID()
	}
	if err := save(ctx, s, s.routes, r.ID, r); err != nil {
		return domain.Route{}, err
	}
	return r, s.BumpDataVersion(ctx)
}

func (s *AdminService) DeleteRoute(ctx context.Context, id string) error {
	if err := remove(ctx, s, s.routes, id); err != nil {
		return err
	}
	return s.BumpDataVersion(ctx)
}

// ---- alerts ----

func (s *AdminService) ListAlerts(ctx context.Context) ([]domain.Alert, error) {
	return s.alerts.list(ctx)
}

func (s *AdminService) GetAlert(ctx context.Context, id string) (domain.Alert, error) {
	return s.alerts.get(ctx, id)
}

func (s *AdminService) SaveAlert(ctx context.Context, a domain.Alert) (domain.Alert, error) {
	if a.ID == "" {
		a.ID = s.newID()
	}
	if err := save(ctx, s, s.alerts, a.ID, a); err != nil {
		return domain.Alert{}, err
	}
	return a, s.BumpDataVersion(ctx)
}

func (s *AdminService) DeleteAlert(ctx context.Context, id string) error {
	if err := remove(ctx, s, s.alerts, id); err != nil {
		return err
	}
	return s.BumpDataVersion(ctx)
}

// ---- arrows ----

func (s *AdminService) ListArrows(ctx context.Context) ([]domain.Arrow, error) {
	return s.arrows.list(ctx)
}

func (s *AdminService) GetArrow(ctx context.Context, id string) (domain.Arrow, error) {
	return s.arrows.get(ctx, id)
}

func (s *AdminService) SaveArrow(ctx context.Context, a domain.Arrow) (domain.Arrow, error) {
	if a.ID == "" {
		a.ID = s.newID()
	}
	if err := save(ctx, s, s.arrows, a.ID, a); err != nil {
		return domain.Arrow{}, err
	}
	return a, s.BumpDataVersion(ctx)
}

func (s *AdminService) DeleteArrow(ctx context.Context, id string) error {
	if err := remove(ctx, s, s.arrows, id); err != nil {
		return err
	}
	return s.BumpDataVersion(ctx)
}

// ---- hotels ----

func (s *AdminService) ListHotels(ctx context.Context) ([]domain.Hotel, error) {
	return s.hotels.list(ctx)
}

func (s *AdminService) GetHotel(ctx context.Context, id string) (domain.Hotel, error) {
	return s.hotels.get(ctx, id)
}

func (s *AdminService) SaveHotel(ctx context.Context, h domain.Hotel) (domain.Hotel, error) {
	if h.ID == "" {
		h.ID = s.newID()
	}
	if err := save(ctx, s, s.hotels, h.ID, h); err != nil {
		return domain.Hotel{}, err
	}
	return h, s.invalidateListsWith(ctx, h.ID)
}

func (s *AdminService) DeleteHotel(ctx context.Context, id string) error {
	if err := remove(ctx, s, s.hotels, id); err != nil {
		return err
	}
	return s.invalidateListsWith(ctx, id)
}

// ---- per-user hotel lists ----

func (s *AdminService) GetUserHotels(ctx context.Context, userID string) (domain.UserHotels, error) {
	l, err := s.userHotels.get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.UserHotels{UserID: userID, HotelIDs: []string{}}, nil
	}
	return l, err
}

func (s *AdminService) SetUserHotels(ctx context.Context, userID string, hotelIDs []string) (domain.UserHotels, error) {
	if userID == "" {
		return domain.UserHotels{}, fmt.Errorf("userId is required: %w", domain.ErrInvalidInput)
	}
	l, err := s.GetUserHotels(ctx, userID)
	if err != nil {
		return domain.UserHotels{}, err
	}
	old := l.Version
	l.UserID = userID
	l.SetHotels(hotelIDs)
	if err := save(ctx, s, s.userHotels, userID, l); err != nil {
		return domain.UserHotels{}, err
	}
	if old != "" {
		s.invalidate(ctx, fmt.Sprintf("hoteles:%s:%s", userID, old))
	}
	return l, nil
}

func (s *AdminService) DeleteUserHotels(ctx context.Context, userID string) error {
	err := remove(ctx, s, s.userHotels, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

// BumpDataVersion stamps config/app with a fresh version so clients refetch
// routes and alerts.
func (s *AdminService) BumpDataVersion(ctx context.Context) error {
	cfg, err := s.config.get(ctx, domain.ConfigDocID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	old := cfg.DataVersion
	cfg.DataVersion = s.newVersion()
	b, err := s.config.put(ctx, domain.ConfigDocID, cfg)
	if err != nil {
		return err
	}
	if old != "" {
		s.invalidate(ctx, "rutasAlertas:"+old)
	}
	s.publish(ctx, domain.CollConfig, domain.ConfigDocID, domain.OpUpsert, b)
	return nil
}

// invalidateListsWith clears the version of every list that references hotelID.
func (s *AdminService) invalidateListsWith(ctx context.Context, hotelID string) error {
	lists, err := s.userHotels.list(ctx)
	if err != nil {
		return err
	}
	for _, l := range lists {
		if !l.Contains(hotelID) || l.Version == "" {
			continue
		}
		old := l.Version
		l.Version = ""
		if _, err := s.userHotels.put(ctx, l.UserID, l); err != nil {
			return err
		}
		s.invalidate(ctx, fmt.Sprintf("hoteles:%s:%s", l.UserID, old))
	}
	return nil
}

func (s *AdminService) invalidate(ctx context.Context, key string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, key)
}

func (s *AdminService) publish(ctx context.Context, coll, id, op string, data []byte) {
	if s.pub == nil {
		return
	}
	ev := domain.ChangeEvent{Collection: coll, ID: id, Op: op, Data: data, At: s.now().UTC()}
	if err := s.pub.Publish(ctx, ev); err != nil {
		// listeners miss one event; the next snapshot heals them
		log.Warn().Err(err).Str("collection", coll).Str("id", id).Msg("publish change failed")
	}
}

func save[T any](ctx context.Context, s *AdminService, c collection[T], id string, v T) error {
	if err := validateStruct(v); err != nil {
		return err
	}
	b, err := c.put(ctx, id, v)
	if err != nil {
		return err
	}
	s.publish(ctx, c.name, id, domain.OpUpsert, b)
	return nil
}

func remove[T any](ctx context.Context, s *AdminService, c collection[T], id string) error {
	if err := c.delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, c.name, id, domain.OpDelete, nil)
	return nil
}
