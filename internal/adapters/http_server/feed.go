package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"rutas_admin/internal/adapters/realtime"
	"rutas_admin/internal/domain"
)

var (
	defaultFeed = []string{domain.CollRoutes, domain.CollAlerts, domain.CollArrows, domain.CollConfig}
	driverFeed  = map[string]bool{
		domain.CollRoutes: true, domain.CollAlerts: true, domain.CollArrows: true,
		domain.CollHotels: true, domain.CollConfig: true,
	}
)

// feedCollections picks the requested collections the role may watch.
func feedCollections(role, requested string) []string {
	if strings.TrimSpace(requested) == "" {
		return defaultFeed
	}
	var out []string
	seen := map[string]bool{}
	for _, c := range strings.Split(requested, ",") {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		if driverFeed[c] || (role == domain.RoleAdmin && c == domain.CollUsers) {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func (h *Handlers) feed(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFrom(r.Context())
	colls := feedCollections(sess.Role, r.URL.Query().Get("collections"))
	realtime.ServeWS(h.Hub, w, r, colls, func(ctx context.Context, coll string) (any, error) {
		return h.snapshot(ctx, sess, coll)
	})
}

func (h *Handlers) snapshot(ctx context.Context, sess domain.Session, coll string) (any, error) {
	switch coll {
	case domain.CollRoutes:
		return h.Admin.ListRoutes(ctx)
	case domain.CollAlerts:
		return h.Admin.ListAlerts(ctx)
	case domain.CollArrows:
		return h.Admin.ListArrows(ctx)
	case domain.CollConfig:
		v, err := h.Q.DataVersion(ctx)
		return domain.VersionResponse{DataVersion: v}, err
	case domain.CollHotels:
		if sess.Role == domain.RoleAdmin {
			return h.Admin.ListHotels(ctx)
		}
		return h.Q.Hotels(ctx, sess.UserID)
	case domain.CollUsers:
		return h.Users.List(ctx)
	}
	return nil, fmt.Errorf("no snapshot for %q", coll)
}
