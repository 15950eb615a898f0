package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"rutas_admin/internal/app"
	"rutas_admin/internal/domain"
	"rutas_admin/internal/storage/memory"
)

func newServices() (*memory.Store, *fakeCache, *app.QueryService, *app.AdminService) {
	store := memory.New()
	cache := &fakeCache{}
	return store, cache, app.NewQueryService(store, cache, 10*time.Minute), app.NewAdminService(store, cache, nil)
}

func line(lat, lng float64) []domain.Coord {
	return []domain.Coord{{Lat: lat, Lng: lng}, {Lat: lat + 0.01, Lng: lng + 0.01}}
}

func TestHotels_VersionOnFirstCall(t *testing.T) {
	store, _, q, _ := newServices()
	ctx := context.Background()

	out, err := q.Hotels(ctx, "nobody")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if out.Version == "" {
		t.Fatal("expected a version for a user without a list")
	}
	if out.Hotels == nil || len(out.Hotels) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", out.Hotels)
	}

	again, _ := q.Hotels(ctx, "nobody")
	if again.Version != out.Version {
		t.Fatalf("version changed without a write: %s -> %s", out.Version, again.Version)
	}

	// reads for unknown ids must not create documents
	docs, _ := store.List(ctx, domain.CollUserHotels)
	if len(docs) != 0 {
		t.Fatalf("expected no stored lists, got %d", len(docs))
	}
}

// editOnGet runs edit once, right after the first read of a hotel list.
type editOnGet struct {
	domain.DocumentStore
	edit func()
	done bool
}

func (s *editOnGet) Get(ctx context.Context, coll, id string) (domain.Document, error) {
	d, err := s.DocumentStore.Get(ctx, coll, id)
	if coll == domain.CollUserHotels && !s.done {
		s.done = true
		s.edit()
	}
	return d, err
}

func TestHotels_StampKeepsConcurrentListEdit(t *testing.T) {
	store := memory.New()
	cache := &fakeCache{}
	admin := app.NewAdminService(store, cache, nil)
	ctx := context.Background()

	_, _ = admin.SaveHotel(ctx, domain.Hotel{ID: "h1", Name: "Uno"})
	_, _ = admin.SaveHotel(ctx, domain.Hotel{ID: "h2", Name: "Dos"})
	if _, err := admin.SetUserHotels(ctx, "u1", []string{"h1"}); err != nil {
		t.Fatalf("set list: %v", err)
	}

	racing := &editOnGet{DocumentStore: store, edit: func() {
		if _, err := admin.SetUserHotels(ctx, "u1", []string{"h2"}); err != nil {
			t.Errorf("edit: %v", err)
		}
	}}
	q := app.NewQueryService(racing, cache, time.Minute)

	out, err := q.Hotels(ctx, "u1")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(out.Hotels) != 1 || out.Hotels[0].ID != "h2" {
		t.Fatalf("response must match the stamped list: %+v", out.Hotels)
	}

	stored, err := admin.GetUserHotels(ctx, "u1")
	if err != nil {
		t.Fatalf("get list: %v", err)
	}
	if len(stored.HotelIDs) != 1 || stored.HotelIDs[0] != "h2" {
		t.Fatalf("admin edit lost: %v", stored.HotelIDs)
	}
	if stored.Version != out.Version {
		t.Fatalf("stored version %q, served %q", stored.Version, out.Version)
	}
}

func TestHotels_RequiresUserID(t *testing.T) {
	_, _, q, _ := newServices()
	if _, err := q.Hotels(context.Background(), ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestHotels_CacheThenInvalidatedByHotelEdit(t *testing.T) {
	_, cache, q, admin := newServices()
	ctx := context.Background()

	h, err := admin.SaveHotel(ctx, domain.Hotel{ID: "h1", Name: "Parador", Position: domain.Coord{Lat: 19.4, Lng: -99.1}})
	if err != nil {
		t.Fatalf("save hotel: %v", err)
	}
	if _, err := admin.SetUserHotels(ctx, "u1", []string{h.ID, "gone"}); err != nil {
		t.Fatalf("set list: %v", err)
	}

	first, err := q.Hotels(ctx, "u1")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(first.Hotels) != 1 || first.Hotels[0].Name != "Parador" {
		t.Fatalf("dangling id should be skipped: %+v", first.Hotels)
	}
	if !cache.has("hoteles:u1:" + first.Version) {
		t.Fatal("expected cached list")
	}

	// hit
	second, _ := q.Hotels(ctx, "u1")
	if second.Version != first.Version {
		t.Fatalf("unexpected version change")
	}

	h.Name = "Parador Norte"
	if _, err := admin.SaveHotel(ctx, h); err != nil {
		t.Fatalf("update hotel: %v", err)
	}
	if cache.has("hoteles:u1:" + first.Version) {
		t.Fatal("old cache key should be gone")
	}
	third, _ := q.Hotels(ctx, "u1")
	if third.Version == first.Version {
		t.Fatal("expected a new version after hotel edit")
	}
	if third.Hotels[0].Name != "Parador Norte" {
		t.Fatalf("stale hotel: %+v", third.Hotels[0])
	}
}

func TestHotels_OtherListsKeepVersion(t *testing.T) {
	_, _, q, admin := newServices()
	ctx := context.Background()

	_, _ = admin.SaveHotel(ctx, domain.Hotel{ID: "a", Name: "A"})
	_, _ = admin.SaveHotel(ctx, domain.Hotel{ID: "b", Name: "B"})
	_, _ = admin.SetUserHotels(ctx, "u1", []string{"a"})
	_, _ = admin.SetUserHotels(ctx, "u2", []string{"b"})

	v1, _ := q.Hotels(ctx, "u1")
	v2, _ := q.Hotels(ctx, "u2")

	if _, err := admin.SaveHotel(ctx, domain.Hotel{ID: "a", Name: "A2"}); err != nil {
		t.Fatalf("err: %v", err)
	}
	n1, _ := q.Hotels(ctx, "u1")
	n2, _ := q.Hotels(ctx, "u2")
	if n1.Version == v1.Version {
		t.Fatal("u1 references the hotel and should get a new version")
	}
	if n2.Version != v2.Version {
		t.Fatal("u2 does not reference the hotel and should keep its version")
	}
}

func TestRoutesAlerts_CachedPerDataVersion(t *testing.T) {
	_, cache, q, admin := newServices()
	ctx := context.Background()

	if _, err := admin.SaveRoute(ctx, domain.Route{ID: "r1", Type: domain.RouteSafe, Points: line(19, -99)}); err != nil {
		t.Fatalf("save route: %v", err)
	}
	if _, err := admin.SaveAlert(ctx, domain.Alert{ID: "a1", Type: "checkpoint", Title: "Reten", Position: domain.Coord{Lat: 19, Lng: -99}}); err != nil {
		t.Fatalf("save alert: %v", err)
	}

	ver, _ := q.DataVersion(ctx)
	out, err := q.RoutesAlerts(ctx)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(out.Routes) != 1 || len(out.Alerts) != 1 {
		t.Fatalf("unexpected payload: %+v", out)
	}
	if !cache.has("rutasAlertas:" + ver) {
		t.Fatal("expected payload cached under the data version")
	}

	if _, err := admin.SaveRoute(ctx, domain.Route{ID: "r2", Type: domain.RouteDanger, Points: line(20, -98)}); err != nil {
		t.Fatalf("save route: %v", err)
	}
	next, _ := q.DataVersion(ctx)
	if next == ver {
		t.Fatal("route write should bump the data version")
	}
	out, _ = q.RoutesAlerts(ctx)
	if len(out.Routes) != 2 {
		t.Fatalf("expected 2 routes after bump, got %d", len(out.Routes))
	}
}

func TestDataVersion_StampedOnce(t *testing.T) {
	_, _, q, _ := newServices()
	ctx := context.Background()
	a, err := q.DataVersion(ctx)
	if err != nil || a == "" {
		t.Fatalf("version=%q err=%v", a, err)
	}
	b, _ := q.DataVersion(ctx)
	if a != b {
		t.Fatalf("version should be stable: %s vs %s", a, b)
	}
}
