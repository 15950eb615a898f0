package app

import (
	"context"
	"fmt"
	"io"
	"sync"

	"gopkg.in/yaml.v3"

	"rutas_admin/internal/domain"
)

// Kinds accepted by the importer; each is also the file base name.
var ImportKinds = []string{domain.CollRoutes, domain.CollAlerts, domain.CollHotels, domain.CollArrows}

// ImportService writes raw dataset records into the collections. Per-record
// writes skip the version bump; Finish bumps once for the whole run.
type ImportService struct {
	admin *AdminService

	mu       sync.Mutex
	dataDirt bool
	hotelIDs []string
}

func NewImportService(admin *AdminService) *ImportService {
	return &ImportService{admin: admin}
}

// LoadRecords reads a YAML or JSON list of records, or a GeoJSON
// FeatureCollection whose features are flattened to properties + geometry.
func LoadRecords(r io.Reader) ([]map[string]any, error) {
	var raw any
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode dataset: %w", err)
	}

	switch t := raw.(type) {
	case []any:
		return toRecords(t)
	case map[string]any:
		if features, ok := t["features"].([]any); ok {
			out := make([]map[string]any, 0, len(features))
			for i, f := range features {
				fm, ok := f.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("feature %d is not an object", i)
				}
				rec := map[string]any{}
				if props, ok := fm["properties"].(map[string]any); ok {
					for k, v := range props {
						rec[k] = v
					}
				}
				if id, ok := fm["id"]; ok {
					rec["id"] = id
				}
				rec["geometry"] = fm["geometry"]
				out = append(out, rec)
			}
			return out, nil
		}
		return nil, fmt.Errorf("dataset object has no features list")
	}
	return nil, fmt.Errorf("dataset must be a list or a FeatureCollection")
}

func toRecords(in []any) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(in))
	for i, it := range in {
		m, ok := it.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("record %d is not an object", i)
		}
		out = append(out, m)
	}
	return out, nil
}

// ImportRecord maps and stores one record, returning its document id.
func (s *ImportService) ImportRecord(ctx context.Context, kind string, rec map[string]any) (string, error) {
	a := s.admin
	switch kind {
	case domain.CollRoutes:
		r, err := mapRoute(rec)
		if err != nil {
			return "", err
		}
		if r.ID == "" {
			r.ID = a.newID()
		}
		s.markData()
		return r.ID, save(ctx, a, a.routes, r.ID, r)

	case domain.CollAlerts:
		al, err := mapAlert(rec)
		if err != nil {
			return "", err
		}
		if al.ID == "" {
			al.ID = a.newID()
		}
		s.markData()
		return al.ID, save(ctx, a, a.alerts, al.ID, al)

	case domain.CollArrows:
		ar, err := mapArrow(rec)
		if err != nil {
			return "", err
		}
		if ar.ID == "" {
			ar.ID = a.newID()
		}
		s.markData()
		return ar.ID, save(ctx, a, a.arrows, ar.ID, ar)

	case domain.CollHotels:
		h, err := mapHotel(rec)
		if err != nil {
			return "", err
		}
		if h.ID == "" {
			h.ID = a.newID()
		}
		if err := save(ctx, a, a.hotels, h.ID, h); err != nil {
			return "", err
		}
		s.mu.Lock()
		s.hotelIDs = append(s.hotelIDs, h.ID)
		s.mu.Unlock()
		return h.ID, nil
	}
	return "", fmt.Errorf("unknown import kind %q: %w", kind, domain.ErrInvalidInput)
}

// Finish publishes the run: one data-version bump if map data changed, and
// list invalidation for every imported hotel.
func (s *ImportService) Finish(ctx context.Context) error {
	s.mu.Lock()
	dirty, hotels := s.dataDirt, s.hotelIDs
	s.dataDirt, s.hotelIDs = false, nil
	s.mu.Unlock()

	if dirty {
		if err := s.admin.BumpDataVersion(ctx); err != nil {
			return err
		}
	}
	for _, id := range hotels {
		if err := s.admin.invalidateListsWith(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *ImportService) markData() {
	s.mu.Lock()
	s.dataDirt = true
	s.mu.Unlock()
}
