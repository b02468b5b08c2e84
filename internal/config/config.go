// Package config loads map, upstream and cache settings.
//
// Precedence is env > file > defaults. Environment variables use the TOUR_
// prefix with the section as the first segment: TOUR_MAP_CLUSTER_RADIUS sets
// map.cluster_radius, TOUR_UPSTREAM_RESOURCE_URL sets upstream.resource_url.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for configuration environment variables.
const EnvPrefix = "TOUR_"

// Config is the full application configuration.
type Config struct {
	Map      MapConfig      `koanf:"map"`
	Upstream UpstreamConfig `koanf:"upstream"`
	Cache    CacheConfig    `koanf:"cache"`
}

// MapConfig drives the map surface controller and its layer managers.
type MapConfig struct {
	DayStyle       string  `koanf:"day_style"`
	NightStyle     string  `koanf:"night_style"`
	PlanDayStyle   string  `koanf:"plan_day_style"`
	PlanNightStyle string  `koanf:"plan_night_style"`
	AccessToken    string  `koanf:"access_token"` // Mapbox public token handed to browsers
	CenterLon      float64 `koanf:"center_lon"`
	CenterLat      float64 `koanf:"center_lat"`
	Zoom           float64 `koanf:"zoom"`
	ClusterRadius  int     `koanf:"cluster_radius"`
	ClusterMaxZoom int     `koanf:"cluster_max_zoom"`
	FitPadding     int     `koanf:"fit_padding"`

	ReadyPollInterval time.Duration `koanf:"ready_poll_interval"`
	ReadyMaxRetries   int           `koanf:"ready_max_retries"`

	// KeepSelection keeps a committed selection and its popup across style switches.
	KeepSelection bool `koanf:"keep_selection"`
}

// UpstreamConfig points at the resource query and routing services.
type UpstreamConfig struct {
	ResourceURL string        `koanf:"resource_url"`
	RouteURL    string        `koanf:"route_url"`
	Language    string        `koanf:"language"`
	Timeout     time.Duration `koanf:"timeout"`

	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`
}

// CacheConfig configures the point query cache. An empty RedisAddr selects
// the in-process cache.
type CacheConfig struct {
	RedisAddr string        `koanf:"redis_addr"`
	RedisDB   int           `koanf:"redis_db"`
	TTL       time.Duration `koanf:"ttl"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Map: MapConfig{
			DayStyle:          "mapbox://styles/mapbox/streets-v11",
			NightStyle:        "mapbox://styles/mapbox/dark-v10",
			PlanDayStyle:      "mapbox://styles/mapbox/navigation-day-v1",
			PlanNightStyle:    "mapbox://styles/mapbox/navigation-night-v1",
			CenterLon:         -2.616667,
			CenterLat:         42.983333,
			Zoom:              7,
			ClusterRadius:     60,
			ClusterMaxZoom:    12,
			FitPadding:        100,
			ReadyPollInterval: 200 * time.Millisecond,
			ReadyMaxRetries:   150,
			KeepSelection:     true,
		},
		Upstream: UpstreamConfig{
			Language:        "es",
			Timeout:         10 * time.Second,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Cache: CacheConfig{
			TTL: 10 * time.Minute,
		},
	}
}

// Load layers defaults, the optional YAML file at path, and TOUR_ env vars.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// envKey maps TOUR_MAP_CLUSTER_RADIUS to map.cluster_radius.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, rest, ok := strings.Cut(s, "_")
	if !ok {
		return s
	}
	return section + "." + rest
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Map.DayStyle == "" || c.Map.NightStyle == "" {
		errs = append(errs, errors.New("map.day_style and map.night_style are required"))
	}
	if c.Map.ClusterRadius <= 0 {
		errs = append(errs, fmt.Errorf("map.cluster_radius must be positive, got %d", c.Map.ClusterRadius))
	}
	if c.Map.ClusterMaxZoom < 0 || c.Map.ClusterMaxZoom > 22 {
		errs = append(errs, fmt.Errorf("map.cluster_max_zoom must be within 0-22, got %d", c.Map.ClusterMaxZoom))
	}
	if c.Map.ReadyPollInterval <= 0 {
		errs = append(errs, errors.New("map.ready_poll_interval must be positive"))
	}
	if c.Map.ReadyMaxRetries <= 0 {
		errs = append(errs, errors.New("map.ready_max_retries must be positive"))
	}
	if c.Map.CenterLon < -180 || c.Map.CenterLon > 180 || c.Map.CenterLat < -90 || c.Map.CenterLat > 90 {
		errs = append(errs, errors.New("map center is out of range"))
	}
	return errors.Join(errs...)
}
