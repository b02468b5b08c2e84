package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

// InfoConfig describes how the server was wired.
type InfoConfig struct {
	Version string
	DataDir string
	Points  string // "remote", "catalog"
	Cache   string // "redis", "memory", "none"
	// Breakers reports circuit breaker states by upstream name.
	Breakers func() map[string]string
}

type InfoHandler struct {
	cfg InfoConfig
}

func NewInfoHandler(cfg InfoConfig) *InfoHandler {
	return &InfoHandler{cfg: cfg}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name     string            `json:"name" doc:"Service name"`
	Version  string            `json:"version" doc:"Service version"`
	DataDir  string            `json:"data_dir" doc:"Data directory path"`
	Points   string            `json:"points" doc:"Resource query backend" enum:"remote,catalog"`
	Cache    string            `json:"cache" doc:"Query cache backend" enum:"redis,memory,none"`
	Breakers map[string]string `json:"breakers" doc:"Circuit breaker state per upstream"`
	Features []string          `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	breakers := map[string]string{}
	if h.cfg.Breakers != nil {
		breakers = h.cfg.Breakers()
	}
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:     "plat-tour",
		Version:  h.cfg.Version,
		DataDir:  h.cfg.DataDir,
		Points:   h.cfg.Points,
		Cache:    h.cfg.Cache,
		Breakers: breakers,
		Features: []string{"clustering", "routing", "map-sessions", "duckdb"},
	}}, nil
}
