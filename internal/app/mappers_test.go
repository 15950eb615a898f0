package app

import (
	"errors"
	"testing"

	"rutas_admin/internal/domain"
)

func TestMapRoute_AliasesAndPairs(t *testing.T) {
	r, err := mapRoute(map[string]any{
		"_id":         "r-9",
		"tipo":        "Peligrosa",
		"coordenadas": []any{[]any{19.43, -99.13}, map[string]any{"latitude": "19,5", "lon": -99.2}},
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if r.ID != "r-9" || r.Type != domain.RouteDanger {
		t.Fatalf("unexpected route: %+v", r)
	}
	if r.Points[0] != (domain.Coord{Lat: 19.43, Lng: -99.13}) || r.Points[1] != (domain.Coord{Lat: 19.5, Lng: -99.2}) {
		t.Fatalf("unexpected points: %+v", r.Points)
	}
}

func TestMapRoute_GeoJSONOrder(t *testing.T) {
	r, err := mapRoute(map[string]any{
		"type": "green",
		"geometry": map[string]any{
			"type":        "LineString",
			"coordinates": []any{[]any{-99.1, 19.4}, []any{-99.2, 19.5}},
		},
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if r.Type != domain.RouteSafe || r.Points[0].Lat != 19.4 || r.Points[0].Lng != -99.1 {
		t.Fatalf("GeoJSON pairs are lng,lat: %+v", r)
	}
}

func TestMapHotel_PositionAndType(t *testing.T) {
	h, err := mapHotel(map[string]any{
		"id":       7,
		"nombre":   "Hotel Carretera 57",
		"tipo":     "Carretera",
		"location": map[string]any{"lat": 21.1, "lng": -101.6},
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if h.ID != "7" || h.Name != "Hotel Carretera 57" || !h.Roadside() {
		t.Fatalf("unexpected hotel: %+v", h)
	}
	if h.Position.Lat != 21.1 {
		t.Fatalf("unexpected position: %+v", h.Position)
	}

	plain, _ := mapHotel(map[string]any{"name": "City", "lat": 1.0, "lng": 2.0})
	if plain.Type != nil {
		t.Fatalf("non-roadside hotel should have no type: %+v", plain)
	}
}

func TestMapAlert_GeoJSONPoint(t *testing.T) {
	a, err := mapAlert(map[string]any{
		"category": "checkpoint",
		"titulo":   "Reten",
		"geometry": map[string]any{"type": "Point", "coordinates": []any{-99.0, 19.0}},
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if a.Position != (domain.Coord{Lat: 19, Lng: -99}) || a.Title != "Reten" || a.Type != "checkpoint" {
		t.Fatalf("unexpected alert: %+v", a)
	}
}

func TestMappers_MissingGeometry(t *testing.T) {
	if _, err := mapArrow(map[string]any{"id": "x"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := mapAlert(map[string]any{"title": "x"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := mapRoute(map[string]any{"points": []any{"bad"}}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestMappers_PlainCoordinatesAreLatLng(t *testing.T) {
	a, err := mapAlert(map[string]any{"title": "x", "type": "t", "coordinates": []any{40.4, -3.7}})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if a.Position != (domain.Coord{Lat: 40.4, Lng: -3.7}) {
		t.Fatalf("plain pair must stay lat,lng: %+v", a.Position)
	}

	h, err := mapHotel(map[string]any{"name": "x", "coordinates": []any{19.43, -99.13}})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if h.Position != (domain.Coord{Lat: 19.43, Lng: -99.13}) {
		t.Fatalf("plain pair must stay lat,lng: %+v", h.Position)
	}

	r, err := mapRoute(map[string]any{"tipo": "segura", "coordinates": []any{[]any{19.4, -99.1}, []any{19.5, -99.2}}})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if r.Points[0] != (domain.Coord{Lat: 19.4, Lng: -99.1}) {
		t.Fatalf("plain list must stay lat,lng: %+v", r.Points)
	}
}

func TestMapAlert_NestedGeometryObject(t *testing.T) {
	a, err := mapAlert(map[string]any{
		"title":    "x",
		"location": map[string]any{"type": "Point", "coordinates": []any{-99.13, 19.43}},
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if a.Position != (domain.Coord{Lat: 19.43, Lng: -99.13}) {
		t.Fatalf("GeoJSON point is lng,lat: %+v", a.Position)
	}
}
