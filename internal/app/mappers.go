package app

import (
	"fmt"
	"strconv"
	"strings"

	"rutas_admin/internal/domain"
)

/********** alias registries (single source of truth) **********/

var idAliases = []string{"id", "_id", "uid", "properties.id"}

var routeAliases = map[string][]string{
	"type":   {"type", "tipo", "classification", "clasificacion"},
	"points": {"coordinates", "coordenadas", "points", "puntos", "path", "geometry.coordinates"},
}

var alertAliases = map[string][]string{
	"type":        {"type", "tipo", "category"},
	"title":       {"title", "titulo", "name", "nombre"},
	"description": {"description", "descripcion", "desc", "details"},
}

var hotelAliases = map[string][]string{
	"name": {"name", "nombre", "title"},
	"type": {"type", "tipo", "kind"},
}

var arrowAliases = map[string][]string{
	"points": {"coordinates", "coordenadas", "points", "puntos", "path", "geometry.coordinates"},
}

var latPaths = []string{"lat", "latitude", "latitud", "position.lat", "location.lat", "coordinate.lat"}
var lngPaths = []string{"lng", "lon", "long", "longitude", "longitud", "position.lng", "position.lon", "location.lng", "location.lon", "coordinate.lng"}

// route type spellings found in exported datasets
var routeTypeAliases = map[string]string{
	"safe": domain.RouteSafe, "segura": domain.RouteSafe, "green": domain.RouteSafe,
	"caution": domain.RouteCaution, "precaucion": domain.RouteCaution, "precaución": domain.RouteCaution, "yellow": domain.RouteCaution,
	"danger": domain.RouteDanger, "peligrosa": domain.RouteDanger, "peligro": domain.RouteDanger, "red": domain.RouteDanger,
}

var roadsideAliases = map[string]bool{"roadside": true, "carretera": true, "road": true}

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// lookupStr returns the string (or number rendered as string) at path, or "".
func lookupStr(m map[string]any, path string) string {
	switch v := lookupAny(m, path).(type) {
	case string:
		return strings.TrimSpace(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func firstNonEmpty(m map[string]any, paths []string) string {
	for _, p := range paths {
		if s := lookupStr(m, p); s != "" {
			return s
		}
	}
	return ""
}

func ptrStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// toFloat accepts float64/int/int64 and strings like "8,5".
func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(t, ",", "."))
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}

func getFloatFlexible(m map[string]any, paths ...string) (float64, bool) {
	for _, p := range paths {
		if f, ok := toFloat(lookupAny(m, p)); ok {
			return f, true
		}
	}
	return 0, false
}

/********** coordinates **********/

// coordFrom reads a single position. Pairs are [lat, lng] unless lngFirst,
// which is the GeoJSON order.
func coordFrom(v any, lngFirst bool) (domain.Coord, bool) {
	switch t := v.(type) {
	case map[string]any:
		lat, okLat := getFloatFlexible(t, latPaths...)
		lng, okLng := getFloatFlexible(t, lngPaths...)
		if okLat && okLng {
			return domain.Coord{Lat: lat, Lng: lng}, true
		}
		// a bare "coordinates" pair keeps the caller's order; only a
		// GeoJSON geometry object switches to [lng, lat]
		if c, ok := t["coordinates"]; ok {
			return coordFrom(c, lngFirst || isGeometry(t))
		}
	case []any:
		if len(t) < 2 {
			return domain.Coord{}, false
		}
		a, okA := toFloat(t[0])
		b, okB := toFloat(t[1])
		if !okA || !okB {
			return domain.Coord{}, false
		}
		if lngFirst {
			return domain.Coord{Lat: b, Lng: a}, true
		}
		return domain.Coord{Lat: a, Lng: b}, true
	}
	return domain.Coord{}, false
}

var geometryTypes = map[string]bool{
	"Point": true, "MultiPoint": true, "LineString": true, "MultiLineString": true,
	"Polygon": true, "MultiPolygon": true,
}

// isGeometry reports whether m is a GeoJSON geometry object. A record's own
// "type" field (alert category, route class) does not count.
func isGeometry(m map[string]any) bool {
	t, _ := m["type"].(string)
	return geometryTypes[t]
}

func pointsFrom(m map[string]any, paths []string) ([]domain.Coord, error) {
	for _, p := range paths {
		raw, ok := lookupAny(m, p).([]any)
		if !ok {
			continue
		}
		lngFirst := strings.HasPrefix(p, "geometry.") || isGeometry(m)
		out := make([]domain.Coord, 0, len(raw))
		for i, it := range raw {
			c, ok := coordFrom(it, lngFirst)
			if !ok {
				return nil, fmt.Errorf("%s[%d]: unreadable coordinate: %w", p, i, domain.ErrInvalidInput)
			}
			out = append(out, c)
		}
		return out, nil
	}
	return nil, fmt.Errorf("no coordinate list: %w", domain.ErrInvalidInput)
}

func positionFrom(m map[string]any) (domain.Coord, error) {
	if c, ok := coordFrom(m, false); ok {
		return c, nil
	}
	for _, p := range []string{"position", "location", "coordinate", "coordenada", "geometry"} {
		if v := lookupAny(m, p); v != nil {
			if c, ok := coordFrom(v, p == "geometry"); ok {
				return c, nil
			}
		}
	}
	return domain.Coord{}, fmt.Errorf("no position: %w", domain.ErrInvalidInput)
}

/********** mappers **********/

func mapRoute(m map[string]any) (domain.Route, error) {
	pts, err := pointsFrom(m, routeAliases["points"])
	if err != nil {
		return domain.Route{}, err
	}
	typ := strings.ToLower(firstNonEmpty(m, routeAliases["type"]))
	if norm, ok := routeTypeAliases[typ]; ok {
		typ = norm
	}
	return domain.Route{ID: firstNonEmpty(m, idAliases), Type: typ, Points: pts}, nil
}

func mapAlert(m map[string]any) (domain.Alert, error) {
	pos, err := positionFrom(m)
	if err != nil {
		return domain.Alert{}, err
	}
	return domain.Alert{
		ID:          firstNonEmpty(m, idAliases),
		Type:        firstNonEmpty(m, alertAliases["type"]),
		Position:    pos,
		Title:       firstNonEmpty(m, alertAliases["title"]),
		Description: firstNonEmpty(m, alertAliases["description"]),
	}, nil
}

func mapHotel(m map[string]any) (domain.Hotel, error) {
	pos, err := positionFrom(m)
	if err != nil {
		return domain.Hotel{}, err
	}
	h := domain.Hotel{
		ID:       firstNonEmpty(m, idAliases),
		Name:     firstNonEmpty(m, hotelAliases["name"]),
		Position: pos,
	}
	if t := strings.ToLower(firstNonEmpty(m, hotelAliases["type"])); roadsideAliases[t] {
		h.Type = ptrStr(domain.HotelTypeRoadside)
	}
	return h, nil
}

func mapArrow(m map[string]any) (domain.Arrow, error) {
	pts, err := pointsFrom(m, arrowAliases["points"])
	if err != nil {
		return domain.Arrow{}, err
	}
	return domain.Arrow{ID: firstNonEmpty(m, idAliases), Points: pts}, nil
}
