package domain

// Coord is a single map position.
type Coord struct {
	Lat float64 `json:"lat" yaml:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" yaml:"lng" validate:"gte=-180,lte=180"`
}

// Route safety classifications.
const (
	RouteSafe    = "safe"
	RouteCaution = "caution"
	RouteDanger  = "danger"
)

var routeColors = map[string]string{
	RouteSafe:    "#2e7d32",
	RouteCaution: "#f9a825",
	RouteDanger:  "#c62828",
}

type Route struct {
	ID     string  `json:"id"`
	Type   string  `json:"type" validate:"required,oneof=safe caution danger"`
	Points []Coord `json:"coordinates" validate:"required,min=2,dive"`
}

// Color is the stroke color the map uses for the route's classification.
func (r Route) Color() string {
	if c, ok := routeColors[r.Type]; ok {
		return c
	}
	return "#757575"
}

type Alert struct {
	ID          string `json:"id"`
	Type        string `json:"type" validate:"required,max=64"`
	Position    Coord  `json:"position"`
	Title       string `json:"title" validate:"required,max=120"`
	Description string `json:"description" validate:"max=2000"`
}

const HotelTypeRoadside = "roadside"

type Hotel struct {
	ID       string  `json:"id"`
	Name     string  `json:"name" validate:"required,max=200"`
	Position Coord   `json:"position"`
	Type     *string `json:"type,omitempty" validate:"omitempty,oneof=roadside"`
}

func (h Hotel) Roadside() bool { return h.Type != nil && *h.Type == HotelTypeRoadside }

// Arrow is the path a directional arrow is drawn along.
type Arrow struct {
	ID     string  `json:"id"`
	Points []Coord `json:"coordinates" validate:"required,min=2,dive"`
}

// AppConfig is the single document under config/app.
type AppConfig struct {
	DataVersion string `json:"dataVersion"`
}

// Public endpoint payloads.

type HotelsResponse struct {
	Version string  `json:"version"`
	Hotels  []Hotel `json:"hoteles"`
}

type RoutesAlertsResponse struct {
	Routes []Route `json:"rutas"`
	Alerts []Alert `json:"alertas"`
}

type VersionResponse struct {
	DataVersion string `json:"dataVersion"`
}
