package shared

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog/log"
)

// ConfigPathEnv overrides the YAML file location.
const ConfigPathEnv = "CONFIG_PATH"

var defaultConfigPaths = []string{"config.yaml", "config.yml"}

// Config keys mirror the environment variable names in lower case, so
// HTTP_ADDR sets http_addr both from the env and from YAML.
type Config struct {
	AppEnv   string `koanf:"app_env"`
	LogLevel string `koanf:"log_level"`
	HTTPAddr string `koanf:"http_addr"`

	MetricsAddr string `koanf:"metrics_addr"`

	StoreDriver string `koanf:"store_driver"` // mysql|memory
	MySQLDSN    string `koanf:"mysql_dsn"`
	RedisAddr   string `koanf:"redis_addr"`
	RedisDB     int    `koanf:"redis_db"`
	RedisPass   string `koanf:"redis_password"`

	CacheTTLSeconds   int      `koanf:"cache_ttl_seconds"`
	SessionTTLSeconds int      `koanf:"session_ttl_seconds"`
	CookieSecure      bool     `koanf:"cookie_secure"`
	CORSOrigins       []string `koanf:"cors_origins"`
	LoginRatePerMin   int      `koanf:"login_rate_per_minute"`
	TrustProxy        bool     `koanf:"trust_proxy"`
	AdminUsername     string   `koanf:"admin_username"`
	AdminPassword     string   `koanf:"admin_password"`

	ImportDir     string `koanf:"import_dir"`
	ImportWorkers int    `koanf:"import_workers"`

	APIBaseURL          string `koanf:"api_base_url"`
	APIRPS              int    `koanf:"api_rps"`
	DriverUserID        string `koanf:"driver_user_id"`
	LocalCacheDir       string `koanf:"local_cache_dir"`
	SyncIntervalSeconds int    `koanf:"sync_interval_seconds"`
}

func (c Config) CacheTTL() time.Duration   { return time.Duration(c.CacheTTLSeconds) * time.Second }
func (c Config) SessionTTL() time.Duration { return time.Duration(c.SessionTTLSeconds) * time.Second }
func (c Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalSeconds) * time.Second
}

func defaults() Config {
	return Config{
		AppEnv:              "prod",
		LogLevel:            "info",
		HTTPAddr:            ":8080",
		StoreDriver:         "mysql",
		MySQLDSN:            "root:root@tcp(localhost:3306)/rutas?parseTime=true&charset=utf8mb4,utf8&loc=UTC",
		RedisAddr:           "localhost:6379",
		CacheTTLSeconds:     900,
		SessionTTLSeconds:   12 * 3600,
		CookieSecure:        true,
		LoginRatePerMin:     10,
		ImportDir:           "./data",
		ImportWorkers:       8,
		APIBaseURL:          "http://localhost:8080",
		APIRPS:              5,
		LocalCacheDir:       "./.rutas-cache",
		SyncIntervalSeconds: 0,
	}
}

// Load layers defaults, an optional YAML file and the environment.
func Load() (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}
	if p := findConfigFile(); p != "" {
		if err := k.Load(file.Provider(p), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", p, err)
		}
	}
	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	// env values arrive as "a,b"; YAML lists are already slices
	if s, ok := k.Get("cors_origins").(string); ok {
		if err := k.Set("cors_origins", splitList(s)); err != nil {
			return Config{}, err
		}
	}

	var c Config
	if err := k.Unmarshal("", &c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.StoreDriver != "mysql" && c.StoreDriver != "memory" {
		return Config{}, fmt.Errorf("STORE_DRIVER must be mysql or memory, got %q", c.StoreDriver)
	}
	if c.ImportWorkers <= 0 {
		c.ImportWorkers = 1
	}
	if c.AdminUsername != "" && c.AdminPassword == "" {
		log.Warn().Msg("ADMIN_USERNAME set without ADMIN_PASSWORD; admin will not be seeded")
	}
	return c, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnv); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range defaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
