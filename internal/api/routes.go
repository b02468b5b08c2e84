// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-tour/internal/config"
	"github.com/joeblew999/plat-tour/internal/geoutil"
	"github.com/joeblew999/plat-tour/internal/humastar"
	"github.com/joeblew999/plat-tour/internal/mapview"
	"github.com/joeblew999/plat-tour/internal/markers"
	"github.com/joeblew999/plat-tour/internal/service"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Points   service.PointSource
	Prefs    service.PreferenceStore
	Sessions *mapview.Registry
	Bus      *service.EventBus
	Map      config.MapConfig
}

// RegisterRoutes registers the REST and map session routes.
func RegisterRoutes(api huma.API, svc *Services) {
	huma.AutoRegister(api, NewAPIHandler(svc))
	NewMapHandler(svc).RegisterRoutes(api)
}

// Types

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// PointsInput selects a category and the optional upstream filters.
type PointsInput struct {
	Category     string `query:"category" required:"true" doc:"Resource category" example:"museum"`
	Province     string `query:"provincia" doc:"Province filter"`
	Municipality string `query:"municipio" doc:"Municipality filter"`
	Subtype      string `query:"subtipo" doc:"Subtype filter"`
	Q            string `query:"q" doc:"Name search"`
}

func (in PointsInput) filters() service.Filters {
	f := service.Filters{}
	for k, v := range map[string]string{
		"provincia": in.Province,
		"municipio": in.Municipality,
		"subtipo":   in.Subtype,
		"q":         in.Q,
	} {
		if v = strings.TrimSpace(v); v != "" {
			f[k] = v
		}
	}
	return f
}

type PagedPointsInput struct {
	PointsInput
	Offset int `query:"offset" minimum:"0" default:"0" doc:"Page offset"`
	Limit  int `query:"limit" minimum:"1" maximum:"500" default:"50" doc:"Page size"`
}

type PointsOutput struct {
	Body humastar.PageBody[service.PointRecord]
}

type GeoJSONOutput struct {
	ContentType string `header:"Content-Type"`
	Body        *geojson.FeatureCollection
}

type DistanceInput struct {
	Lat1 float64 `query:"lat1" minimum:"-90" maximum:"90" doc:"Latitude of the first point"`
	Lon1 float64 `query:"lon1" minimum:"-180" maximum:"180" doc:"Longitude of the first point"`
	Lat2 float64 `query:"lat2" minimum:"-90" maximum:"90" doc:"Latitude of the second point"`
	Lon2 float64 `query:"lon2" minimum:"-180" maximum:"180" doc:"Longitude of the second point"`
}

type DistanceBody struct {
	Distance string `json:"distance" doc:"Great-circle distance in km, two decimals, or 0 for identical points" example:"12.34"`
}

type IconInput struct {
	Category string `path:"category" doc:"Category key or upstream label" example:"museum"`
}

type IconBody struct {
	Icon     string `json:"icon" doc:"Marker icon URL"`
	Image    string `json:"image" doc:"Fallback popup image URL"`
	Fallback string `json:"fallback" doc:"Icon used for unknown categories"`
}

type PreferenceKeyInput struct {
	Key string `path:"key" minLength:"1" doc:"Preference key" example:"visitor-1"`
}

type PreferencesOutput struct {
	Body service.ViewPreferences
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterPoints registers resource query routes.
func (h *APIHandler) RegisterPoints(api huma.API) {
	huma.Get(api, "/api/v1/points", h.GetPoints, huma.OperationTags("points"))
	huma.Get(api, "/api/v1/points/geojson", h.GetPointsGeoJSON, huma.OperationTags("points"))
}

// RegisterUtilities registers the distance and icon helpers.
func (h *APIHandler) RegisterUtilities(api huma.API) {
	huma.Get(api, "/api/v1/distance", h.GetDistance, huma.OperationTags("utilities"))
	huma.Get(api, "/api/v1/icons/{category}", h.GetIcon, huma.OperationTags("utilities"))
}

// RegisterPreferences registers view preference routes.
func (h *APIHandler) RegisterPreferences(api huma.API) {
	huma.Get(api, "/api/v1/preferences/{key}", h.GetPreferences, huma.OperationTags("preferences"))
	huma.Put(api, "/api/v1/preferences/{key}", h.PutPreferences, huma.OperationTags("preferences"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0"}}, nil
}

func (h *APIHandler) fetch(ctx context.Context, in PointsInput) ([]service.PointRecord, error) {
	if h.svc == nil || h.svc.Points == nil {
		return nil, huma.Error503ServiceUnavailable("resource query service not available")
	}
	cat, err := service.ParseCategory(in.Category)
	if err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	records, err := h.svc.Points.FetchPoints(ctx, cat, in.filters())
	if err != nil {
		return nil, upstreamError(err)
	}
	return records, nil
}

func (h *APIHandler) GetPoints(ctx context.Context, input *PagedPointsInput) (*PointsOutput, error) {
	records, err := h.fetch(ctx, input.PointsInput)
	if err != nil {
		return nil, err
	}
	return &PointsOutput{Body: humastar.Page(records, input.Offset, input.Limit)}, nil
}

func (h *APIHandler) GetPointsGeoJSON(ctx context.Context, input *PointsInput) (*GeoJSONOutput, error) {
	records, err := h.fetch(ctx, *input)
	if err != nil {
		return nil, err
	}
	return &GeoJSONOutput{ContentType: "application/geo+json", Body: service.ToFeatureCollection(records)}, nil
}

func (h *APIHandler) GetDistance(ctx context.Context, input *DistanceInput) (*struct{ Body DistanceBody }, error) {
	d := geoutil.Distance(input.Lat1, input.Lon1, input.Lat2, input.Lon2)
	return &struct{ Body DistanceBody }{Body: DistanceBody{Distance: d}}, nil
}

func (h *APIHandler) GetIcon(ctx context.Context, input *IconInput) (*struct{ Body IconBody }, error) {
	key := input.Category
	if cat, err := service.ParseCategory(key); err == nil {
		key = string(cat)
	}
	return &struct{ Body IconBody }{Body: IconBody{
		Icon:     markers.Icon(key),
		Image:    markers.Image(key),
		Fallback: markers.DefaultIcon,
	}}, nil
}

func (h *APIHandler) GetPreferences(ctx context.Context, input *PreferenceKeyInput) (*PreferencesOutput, error) {
	if h.svc == nil || h.svc.Prefs == nil {
		return &PreferencesOutput{Body: service.DefaultPreferences()}, nil
	}
	p, err := h.svc.Prefs.Load(input.Key)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load preferences", err)
	}
	return &PreferencesOutput{Body: p}, nil
}

func (h *APIHandler) PutPreferences(ctx context.Context, input *struct {
	PreferenceKeyInput
	Body service.ViewPreferences
}) (*PreferencesOutput, error) {
	if h.svc == nil || h.svc.Prefs == nil {
		return nil, huma.Error503ServiceUnavailable("preference store not available")
	}
	if err := h.svc.Prefs.Save(input.Key, input.Body); err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	return &PreferencesOutput{Body: input.Body}, nil
}

// upstreamError maps collaborator failures onto HTTP errors.
func upstreamError(err error) error {
	switch {
	case errors.Is(err, service.ErrNoRoute):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, service.ErrUpstream):
		return huma.Error502BadGateway("upstream unavailable", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return huma.Error504GatewayTimeout("upstream timed out", err)
	}
	return huma.Error500InternalServerError("query failed", err)
}
