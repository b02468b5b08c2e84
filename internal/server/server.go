package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-tour/internal/api"
	"github.com/joeblew999/plat-tour/internal/config"
	"github.com/joeblew999/plat-tour/internal/db"
	"github.com/joeblew999/plat-tour/internal/humastar"
	"github.com/joeblew999/plat-tour/internal/logging"
	"github.com/joeblew999/plat-tour/internal/mapview"
	"github.com/joeblew999/plat-tour/internal/popup"
	"github.com/joeblew999/plat-tour/internal/service"
)

// Version is reported by /health and /api/v1/info.
const Version = "1.0.0"

// Config holds the server configuration.
type Config struct {
	Host       string
	Port       string
	DataDir    string
	WebDir     string // Path to web/ directory for static files and pages
	ConfigFile string // Optional YAML file layered over the defaults
}

// Server is the tourism map HTTP server.
type Server struct {
	config   Config
	app      *config.Config
	mux      *http.ServeMux
	humaAPI  huma.API
	db       *sql.DB
	catalog  *service.CatalogPointSource
	redis    *redis.Client
	services *api.Services
	info     api.InfoConfig
	log      zerolog.Logger
}

// New creates a new server. Upstream and cache failures degrade to the
// local catalog and the in-process cache; only a bad configuration fails.
func New(cfg Config) (*Server, error) {
	app, err := config.Load(cfg.ConfigFile)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()

	humaConfig := huma.DefaultConfig("plat-tour API", Version)
	humaConfig.Info.Description = "Tourism resource map: clustered resource layers, itinerary routes and server-driven map sessions."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, humastar.LinkTransformer(api.Links))

	s := &Server{
		config:  cfg,
		app:     app,
		mux:     mux,
		humaAPI: humago.New(mux, humaConfig),
		log:     logging.Component("server"),
	}
	s.info = api.InfoConfig{Version: Version, DataDir: cfg.DataDir}

	bus := service.NewEventBus()
	upstream := service.UpstreamOptions{
		Timeout:         app.Upstream.Timeout,
		BreakerFailures: app.Upstream.BreakerFailures,
		BreakerTimeout:  app.Upstream.BreakerTimeout,
	}
	breakers := map[string]func() string{}

	points := s.pointSource(upstream, breakers)
	if points != nil {
		points = s.cached(points)
	}

	var routes service.RouteSource
	if app.Upstream.RouteURL != "" {
		rs := service.NewRemoteRouteSource(app.Upstream.RouteURL, upstream)
		breakers["routes"] = rs.BreakerState
		routes = rs
	}

	s.info.Breakers = func() map[string]string {
		out := make(map[string]string, len(breakers))
		for name, state := range breakers {
			out[name] = state()
		}
		return out
	}

	prefs := service.NewFilePreferenceStore(cfg.DataDir, bus)

	deps := mapview.Deps{Routes: routes, Prefs: prefs, Popups: s.popups()}

	s.services = &api.Services{
		Points:   points,
		Prefs:    prefs,
		Sessions: mapview.NewRegistry(deps, bus),
		Bus:      bus,
		Map:      app.Map,
	}

	s.routes()
	return s, nil
}

// pointSource picks the remote resource service when configured, else the
// DuckDB catalog under the data directory.
func (s *Server) pointSource(opts service.UpstreamOptions, breakers map[string]func() string) service.PointSource {
	if url := s.app.Upstream.ResourceURL; url != "" {
		ps := service.NewRemotePointSource(url, s.app.Upstream.Language, opts)
		breakers["resources"] = ps.BreakerState
		s.info.Points = "remote"
		s.log.Info().Str("url", url).Msg("querying remote resource service")
		return ps
	}

	conn, err := db.Get(db.Config{DataDir: s.config.DataDir, DBName: "catalog"})
	if err != nil {
		s.log.Error().Err(err).Msg("resource catalog not available")
		return nil
	}
	s.db = conn
	catalog := service.NewCatalogPointSource(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := catalog.Init(ctx); err != nil {
		s.log.Error().Err(err).Msg("resource catalog schema not created")
		return nil
	}
	s.catalog = catalog
	s.info.Points = "catalog"
	return catalog
}

func (s *Server) cached(next service.PointSource) service.PointSource {
	cfg := s.app.Cache
	if cfg.TTL <= 0 {
		s.info.Cache = "none"
		return next
	}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := client.Ping(ctx).Err()
		if err == nil {
			s.redis = client
			s.info.Cache = "redis"
			return service.NewCachedPointSource(next, service.NewRedisCache(client), cfg.TTL)
		}
		s.log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, using in-process cache")
		_ = client.Close()
	}
	s.info.Cache = "memory"
	return service.NewCachedPointSource(next, service.NewMemoryCache(), cfg.TTL)
}

// popups prefers web/templates/fragments over the embedded popup template.
func (s *Server) popups() *popup.Builder {
	if s.config.WebDir != "" {
		dir := filepath.Join(s.config.WebDir, "templates", "fragments")
		if _, err := os.Stat(filepath.Join(dir, "popup.html")); err == nil {
			b, err := popup.NewBuilderFromDir(dir)
			if err == nil {
				s.log.Info().Str("dir", dir).Msg("loaded popup templates")
				return b
			}
			s.log.Warn().Err(err).Msg("popup templates not loaded, using embedded")
		}
	}
	b, err := popup.NewBuilder()
	if err != nil {
		s.log.Error().Err(err).Msg("embedded popup template not loaded")
		return nil
	}
	return b
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Catalog returns the DuckDB catalog, or nil when a remote resource
// service is configured.
func (s *Server) Catalog() *service.CatalogPointSource {
	return s.catalog
}

// Close ends every map session and closes server resources.
func (s *Server) Close() error {
	s.services.Sessions.CloseAll()
	var errs []error
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	if s.db != nil {
		errs = append(errs, db.Close())
	}
	return errors.Join(errs...)
}

func (s *Server) routes() {
	// Register Huma REST API routes (OpenAPI-documented JSON and SSE endpoints)
	api.RegisterRoutes(s.humaAPI, s.services)
	api.NewInfoHandler(s.info).RegisterRoutes(s.humaAPI)

	s.mux.Handle("/metrics", promhttp.Handler())

	if s.config.WebDir != "" {
		staticDir := filepath.Join(s.config.WebDir, "static")
		s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
		imagesDir := filepath.Join(s.config.WebDir, "images")
		s.mux.Handle("/images/", http.StripPrefix("/images/", http.FileServer(http.Dir(imagesDir))))

		s.mux.HandleFunc("/explore", s.page("explore.html"))
		s.mux.HandleFunc("/plan", s.page("plan.html"))
	}
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "plat-tour",
		"status":  "running",
	})
}

func (s *Server) page(name string) http.HandlerFunc {
	path := filepath.Join(s.config.WebDir, "templates", name)
	return func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, path)
	}
}
