package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"rutas_admin/internal/adapters/observability"
	redisad "rutas_admin/internal/adapters/redis"
	"rutas_admin/internal/app"
	"rutas_admin/internal/domain"
	"rutas_admin/internal/shared"
	mysqlrepo "rutas_admin/internal/storage/mysql"
)

var extensions = []string{".yaml", ".yml", ".json", ".geojson"}

func main() {
	cfg, err := shared.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	// initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("dir", cfg.ImportDir).
		Int("workers", cfg.ImportWorkers).
		Msg("importer starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	// without redis the import still lands; caches expire on their own
	var (
		cache domain.Cache
		pub   domain.ChangePublisher
	)
	rc := redisad.NewClient(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err := rc.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis unavailable; skipping cache invalidation and change events")
	} else {
		cache = redisad.NewCache(rc)
		pub = redisad.NewPubSub(rc)
	}

	imp := app.NewImportService(app.NewAdminService(mysqlrepo.New(db), cache, pub))
	sem := semaphore.NewWeighted(int64(cfg.ImportWorkers))
	var (
		wg       sync.WaitGroup
		ok, fail atomic.Int64
	)

kinds:
	for _, kind := range app.ImportKinds {
		path := findFile(cfg.ImportDir, kind)
		if path == "" {
			log.Info().Str("kind", kind).Msg("no file, skipped")
			continue
		}
		f, err := os.Open(path)
		if err != nil {
			log.Fatal().Err(err).Str("file", path).Msg("open failed")
		}
		recs, err := app.LoadRecords(f)
		f.Close()
		if err != nil {
			log.Fatal().Err(err).Str("file", path).Msg("parse failed")
		}
		log.Info().Str("kind", kind).Str("file", path).Int("records", len(recs)).Msg("loaded")

		for i, rec := range recs {
			// acquire before launching the goroutine; release inside it
			if err := sem.Acquire(ctx, 1); err != nil {
				log.Error().Err(err).Msg("import interrupted")
				break kinds
			}
			wg.Add(1)
			go func(kind string, i int, rec map[string]any) {
				defer wg.Done()
				defer sem.Release(1)

				id, err := imp.ImportRecord(ctx, kind, rec)
				if err != nil {
					fail.Add(1)
					log.Warn().Str("kind", kind).Int("record", i).Err(err).Msg("import failed")
					return
				}
				ok.Add(1)
				log.Debug().Str("kind", kind).Str("id", id).Msg("import ok")
			}(kind, i, rec)
		}
	}

	wg.Wait()
	if err := imp.Finish(context.WithoutCancel(ctx)); err != nil {
		log.Fatal().Err(err).Msg("publishing import failed")
	}
	_ = rc.Close()
	log.Info().Int64("imported", ok.Load()).Int64("failed", fail.Load()).Msg("import completed")
	if fail.Load() > 0 {
		os.Exit(1)
	}
}

func findFile(dir, kind string) string {
	for _, ext := range extensions {
		p := filepath.Join(dir, kind+ext)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
