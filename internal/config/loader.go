package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/meetgrid/internal/logging"
	"github.com/example/meetgrid/internal/ratelimit"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"
)

// Config captures file and environment driven settings for the meetgrid
// processes.
type Config struct {
	HTTPAddr          string        `yaml:"http_addr"`
	RelayAddr         string        `yaml:"relay_addr"`
	PublicURL         string        `yaml:"public_url"`
	Store             string        `yaml:"store"`
	SQLitePath        string        `yaml:"sqlite_path"`
	MongoURI          string        `yaml:"mongo_uri"`
	MongoDatabase     string        `yaml:"mongo_database"`
	RedisURL          string        `yaml:"redis_url"`
	FingerprintSecret string        `yaml:"fingerprint_secret"`
	GuestRateWindow   time.Duration `yaml:"guest_rate_window"`
	GuestRateMax      int           `yaml:"guest_rate_max"`
	RateWindow        time.Duration `yaml:"rate_window"`
	RateMax           int           `yaml:"rate_max"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
	LogLevel          string        `yaml:"log_level"`
	LogFormat         string        `yaml:"log_format"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		HTTPAddr:        ":8080",
		RelayAddr:       ":3001",
		PublicURL:       "http://localhost:3000",
		Store:           StoreSQLite,
		SQLitePath:      "meetgrid.db",
		MongoDatabase:   "meetgrid",
		GuestRateWindow: time.Minute,
		GuestRateMax:    3,
		RateWindow:      time.Minute,
		RateMax:         10,
		AllowedOrigins:  []string{"*"},
		LogLevel:        "info",
		LogFormat:       logging.FormatJSON,
	}
}

// Load reads the file named by MEETGRID_CONFIG, if any, then the MEETGRID_*
// environment.
func Load() (Config, error) {
	return LoadFrom(os.Getenv("MEETGRID_CONFIG"), os.LookupEnv)
}

// LoadFrom reads an optional YAML file at path and overlays variables
// resolved by lookup. Missing and invalid keys are reported together.
func LoadFrom(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	env := envReader{lookup: lookup}
	env.str("MEETGRID_HTTP_ADDR", &cfg.HTTPAddr)
	env.str("MEETGRID_RELAY_ADDR", &cfg.RelayAddr)
	env.str("MEETGRID_PUBLIC_URL", &cfg.PublicURL)
	env.str("MEETGRID_STORE", &cfg.Store)
	env.str("MEETGRID_SQLITE_PATH", &cfg.SQLitePath)
	env.str("MEETGRID_MONGO_URI", &cfg.MongoURI)
	env.str("MEETGRID_MONGO_DATABASE", &cfg.MongoDatabase)
	env.str("MEETGRID_REDIS_URL", &cfg.RedisURL)
	env.str("MEETGRID_FINGERPRINT_SECRET", &cfg.FingerprintSecret)
	env.duration("MEETGRID_GUEST_RATE_WINDOW", &cfg.GuestRateWindow)
	env.integer("MEETGRID_GUEST_RATE_MAX", &cfg.GuestRateMax)
	env.duration("MEETGRID_RATE_WINDOW", &cfg.RateWindow)
	env.integer("MEETGRID_RATE_MAX", &cfg.RateMax)
	env.list("MEETGRID_ALLOWED_ORIGINS", &cfg.AllowedOrigins)
	env.str("MEETGRID_LOG_LEVEL", &cfg.LogLevel)
	env.str("MEETGRID_LOG_FORMAT", &cfg.LogFormat)

	missing, invalid := cfg.validate()
	invalid = append(env.invalid, invalid...)

	var problems []string
	if len(missing) > 0 {
		problems = append(problems, "missing required settings: "+strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		problems = append(problems, "invalid settings: "+strings.Join(invalid, ", "))
	}
	if len(problems) > 0 {
		return Config{}, fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return cfg, nil
}

func (c Config) validate() (missing, invalid []string) {
	switch c.Store {
	case StoreMemory:
	case StoreSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			missing = append(missing, "MEETGRID_SQLITE_PATH")
		}
	case StoreMongo:
		if strings.TrimSpace(c.MongoURI) == "" {
			missing = append(missing, "MEETGRID_MONGO_URI")
		}
		if strings.TrimSpace(c.MongoDatabase) == "" {
			missing = append(missing, "MEETGRID_MONGO_DATABASE")
		}
	default:
		invalid = append(invalid, "MEETGRID_STORE")
	}

	if u, err := url.Parse(c.PublicURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		invalid = append(invalid, "MEETGRID_PUBLIC_URL")
	}
	if c.GuestRateWindow <= 0 {
		invalid = append(invalid, "MEETGRID_GUEST_RATE_WINDOW")
	}
	if c.GuestRateMax <= 0 {
		invalid = append(invalid, "MEETGRID_GUEST_RATE_MAX")
	}
	if c.RateWindow <= 0 {
		invalid = append(invalid, "MEETGRID_RATE_WINDOW")
	}
	if c.RateMax <= 0 {
		invalid = append(invalid, "MEETGRID_RATE_MAX")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		invalid = append(invalid, "MEETGRID_LOG_LEVEL")
	}
	if c.LogFormat != logging.FormatJSON && c.LogFormat != logging.FormatText {
		invalid = append(invalid, "MEETGRID_LOG_FORMAT")
	}
	return missing, invalid
}

// RateRules converts the configured quotas into limiter rules.
func (c Config) RateRules() map[ratelimit.Class]ratelimit.Rule {
	return map[ratelimit.Class]ratelimit.Rule{
		ratelimit.ClassGuestRequest: {Window: c.GuestRateWindow, Max: c.GuestRateMax},
		ratelimit.ClassDefault:      {Window: c.RateWindow, Max: c.RateMax},
	}
}

type envReader struct {
	lookup  func(string) (string, bool)
	invalid []string
}

func (e *envReader) value(key string) (string, bool) {
	if e.lookup == nil {
		return "", false
	}
	v, ok := e.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.value(key); ok {
		*dst = v
	}
}

func (e *envReader) integer(key string, dst *int) {
	v, ok := e.value(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.invalid = append(e.invalid, key)
		return
	}
	*dst = n
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.value(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.invalid = append(e.invalid, key)
		return
	}
	*dst = d
}

func (e *envReader) list(key string, dst *[]string) {
	v, ok := e.value(key)
	if !ok {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}
