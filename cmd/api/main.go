package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"rutas_admin/internal/adapters/authz"
	server "rutas_admin/internal/adapters/http_server"
	"rutas_admin/internal/adapters/observability"
	"rutas_admin/internal/adapters/realtime"
	redisad "rutas_admin/internal/adapters/redis"
	"rutas_admin/internal/app"
	"rutas_admin/internal/domain"
	"rutas_admin/internal/shared"
	"rutas_admin/internal/storage/memory"
	mysqlrepo "rutas_admin/internal/storage/mysql"
)

func main() {
	cfg, err := shared.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	store := openStore(cfg)

	rc := redisad.NewClient(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err := rc.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("redis ping failed")
	}
	cache := redisad.NewCache(rc)
	sessions := redisad.NewSessionStore(rc)
	changes := redisad.NewPubSub(rc)

	// services
	q := app.NewQueryService(store, cache, cfg.CacheTTL())
	admin := app.NewAdminService(store, cache, changes)
	users := app.NewUserService(store, sessions, changes)
	auth := app.NewAuthService(users, sessions, cfg.SessionTTL())

	if cfg.AdminUsername != "" && cfg.AdminPassword != "" {
		created, err := users.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword)
		if err != nil {
			log.Fatal().Err(err).Msg("seed admin failed")
		}
		if created {
			log.Info().Str("user", cfg.AdminUsername).Msg("admin user created")
		}
	}

	enf, err := authz.New()
	if err != nil {
		log.Fatal().Err(err).Msg("authz init failed")
	}

	// real-time feed
	hub := realtime.NewHub()
	sup := realtime.NewSupervisor(hub, realtime.NewForwarder(changes, hub))
	supDone := sup.ServeBackground(ctx)

	// http
	srv := server.New(server.Options{CORSOrigins: cfg.CORSOrigins, TrustProxy: cfg.TrustProxy})
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{
		Q:              q,
		Admin:          admin,
		Users:          users,
		Auth:           auth,
		Authz:          enf,
		Hub:            hub,
		CookieSecure:   cfg.CookieSecure,
		LoginPerMinute: cfg.LoginRatePerMin,
	})

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.StoreDriver).Msg("API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := <-supDone; err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("realtime supervisor stopped")
	}
	_ = rc.Close()
}

func openStore(cfg shared.Config) domain.DocumentStore {
	if cfg.StoreDriver == "memory" {
		log.Warn().Msg("using in-memory document store; data is lost on exit")
		return memory.New()
	}
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")
	return mysqlrepo.New(db)
}
