package httpserver

import (
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
)

type Server struct{ mux *chi.Mux }

// Options are the transport settings of the router.
type Options struct {
	CORSOrigins []string
	// TrustProxy lets X-Forwarded-For / X-Real-IP replace the peer address.
	// Only enable it behind a proxy that overwrites those headers.
	TrustProxy bool
}

func New(opts Options) *Server {
	m := chi.NewRouter()

	// all middlewares go here (before any routes are added)
	if opts.TrustProxy {
		m.Use(chimw.RealIP)
	}
	m.Use(chimw.RequestID)
	m.Use(chimw.Recoverer)
	m.Use(Metrics)
	m.Use(Logger(log.Logger))
	if len(opts.CORSOrigins) > 0 {
		m.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "If-None-Match", "X-Device-Id"},
			ExposedHeaders:   []string{"ETag"},
			// a wildcard never carries cookies
			AllowCredentials: !slices.Contains(opts.CORSOrigins, "*"),
			MaxAge:           300,
		}))
	}

	return &Server{mux: m}
}

func (s *Server) Mux() http.Handler { return s.mux }

// Mount attaches any extra handler (e.g., /metrics) to the router.
func (s *Server) Mount(path string, h http.Handler) {
	s.mux.Handle(path, h)
}

// MountHandlers registers every route. The feed is kept out of the timeout
// group because a websocket outlives any request deadline.
func (s *Server) MountHandlers(h *Handlers) {
	m := s.mux
	m.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	api := chi.Chain(h.requireSession(false), h.authorize)

	m.Group(func(r chi.Router) {
		r.Use(Timeout(15 * time.Second))

		r.Get("/hoteles", h.hoteles)
		r.Get("/rutasAlertas", h.rutasAlertas)
		r.Get("/version", h.version)

		r.Get("/", func(w http.ResponseWriter, r *http.Request) { http.Redirect(w, r, "/app/", http.StatusFound) })
		r.Get("/login", h.loginPage)
		r.With(h.loginLimiter()).Post("/auth/login", h.login)
		r.Post("/auth/logout", h.logout)

		r.With(h.requireSession(true), h.authorize).Get("/app/*", h.app())

		r.With(api...).Get("/api/me", h.me)
		r.With(api...).Post("/api/me/password", h.changePassword)
		r.With(api...).Get("/api/flechas", h.flechas)

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.requireSession(false), h.authorize)
			h.mountAdmin(r)
		})
	})

	m.With(api...).Get("/api/feed", h.feed)
}
