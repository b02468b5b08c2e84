package mapview

import (
	"context"
	"errors"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-tour/internal/engine"
	"github.com/joeblew999/plat-tour/internal/metrics"
	"github.com/joeblew999/plat-tour/internal/service"
)

// RouteLayers owns the itinerary stop markers and the routed path between
// them. Route requests are sequenced: only the response to the latest
// request is drawn.
type RouteLayers struct {
	eng    engine.Engine
	routes service.RouteSource
	post   func(func()) bool
	log    zerolog.Logger

	stops   []service.Stop
	profile service.Profile
	route   *service.Route

	seq      uint64
	resolved uint64
}

// NewRouteLayers creates the manager. post schedules work back onto the
// controller goroutine.
func NewRouteLayers(eng engine.Engine, routes service.RouteSource, profile service.Profile, post func(func()) bool, log zerolog.Logger) *RouteLayers {
	return &RouteLayers{eng: eng, routes: routes, profile: profile, post: post, log: log}
}

// Stops returns the current stop sequence.
func (r *RouteLayers) Stops() []service.Stop { return r.stops }

// Profile returns the current travel profile.
func (r *RouteLayers) Profile() service.Profile { return r.profile }

// Route returns the last route drawn, if any.
func (r *RouteLayers) Route() *service.Route { return r.route }

// Requests is the number of route requests issued.
func (r *RouteLayers) Requests() uint64 { return r.seq }

// Resolved is the number of route responses processed, stale ones included.
func (r *RouteLayers) Resolved() uint64 { return r.resolved }

// SetStops deduplicates stops by coordinate and redraws the stop markers.
func (r *RouteLayers) SetStops(stops []service.Stop) {
	r.stops = service.DedupeStops(service.SortStops(stops))
	r.drawStops()
}

// SetProfile changes the travel profile for the next Recompute.
func (r *RouteLayers) SetProfile(p service.Profile) {
	r.profile = p
}

// Points returns the stop coordinates in order.
func (r *RouteLayers) Points() []orb.Point {
	pts := make([]orb.Point, len(r.stops))
	for i, s := range r.stops {
		pts[i] = s.Record.Point()
	}
	return pts
}

// Recompute requests a route for the current stops and profile. Fewer than
// two stops clears the route without a request.
func (r *RouteLayers) Recompute(ctx context.Context) {
	r.seq++
	if len(r.stops) < 2 {
		metrics.RouteRequests.WithLabelValues("skipped").Inc()
		r.clearRoute()
		return
	}

	seq := r.seq
	ids := service.StopIDs(r.stops)
	profile := r.profile
	go func() {
		route, err := r.routes.FetchRoute(ctx, ids, profile)
		r.post(func() { r.apply(seq, route, err) })
	}()
}

func (r *RouteLayers) apply(seq uint64, route service.Route, err error) {
	r.resolved++
	if seq != r.seq {
		metrics.RouteRequests.WithLabelValues("superseded").Inc()
		r.log.Debug().Uint64("seq", seq).Uint64("latest", r.seq).Msg("discarding superseded route response")
		return
	}
	if err != nil {
		metrics.RouteRequests.WithLabelValues("error").Inc()
		if !errors.Is(err, context.Canceled) {
			r.log.Warn().Err(err).Str("profile", string(r.profile)).Msg("route request failed")
		}
		r.clearRoute()
		return
	}
	metrics.RouteRequests.WithLabelValues("ok").Inc()
	r.route = &route
	r.drawRoute()
}

// Redraw re-adds the stop markers and the last route after a style load.
func (r *RouteLayers) Redraw() {
	r.drawStops()
	r.drawRoute()
}

// Teardown removes every route and stop layer and source. State is kept
// for Redraw.
func (r *RouteLayers) Teardown() {
	r.teardownRoute()
	r.teardownStops()
}

func (r *RouteLayers) clearRoute() {
	r.route = nil
	r.teardownRoute()
}

func (r *RouteLayers) drawRoute() {
	r.teardownRoute()
	if r.route == nil || !r.eng.IsStyleLoaded() {
		return
	}
	metrics.LayerRebuilds.WithLabelValues("route").Inc()

	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(r.route.Coordinates))
	if err := r.eng.AddSource(SourceRoute, engine.Source{Type: "geojson", Data: fc}); err != nil {
		r.log.Warn().Err(err).Msg("route source not added")
		return
	}
	layers := []engine.Layer{
		{
			ID:     LayerRoute,
			Type:   "line",
			Source: SourceRoute,
			Layout: map[string]any{"line-join": "round", "line-cap": "round"},
			Paint:  map[string]any{"line-color": "#000", "line-width": 10},
		},
		{
			ID:     LayerOutline,
			Type:   "line",
			Source: SourceRoute,
			Paint:  map[string]any{"line-color": "#03a1fc", "line-width": 7},
		},
	}
	for _, l := range layers {
		if err := r.eng.AddLayer(l); err != nil {
			r.log.Warn().Err(err).Str("layer", l.ID).Msg("route layer not added")
		}
	}
}

func (r *RouteLayers) teardownRoute() {
	for _, id := range []string{LayerRoute, LayerOutline} {
		if r.eng.HasLayer(id) {
			_ = r.eng.RemoveLayer(id)
		}
	}
	if r.eng.HasSource(SourceRoute) {
		_ = r.eng.RemoveSource(SourceRoute)
	}
}

func (r *RouteLayers) drawStops() {
	r.teardownStops()
	if len(r.stops) == 0 || !r.eng.IsStyleLoaded() {
		return
	}
	metrics.LayerRebuilds.WithLabelValues("stops").Inc()

	fc := geojson.NewFeatureCollection()
	for _, s := range r.stops {
		f := service.RecordFeature(s.Record)
		f.Properties["indice"] = s.Index
		f.Properties["etiqueta"] = strconv.Itoa(s.Index + 1)
		fc.Append(f)
	}
	if err := r.eng.AddSource(SourceStops, engine.Source{Type: "geojson", Data: fc}); err != nil {
		r.log.Warn().Err(err).Msg("stops source not added")
		return
	}
	layers := []engine.Layer{
		{
			ID:     LayerStopPoints,
			Type:   "circle",
			Source: SourceStops,
			Paint: map[string]any{
				"circle-color":        "#03a1fc",
				"circle-radius":       12,
				"circle-stroke-color": "#fff",
				"circle-stroke-width": 2,
			},
		},
		{
			ID:     LayerStopLabels,
			Type:   "symbol",
			Source: SourceStops,
			Layout: map[string]any{
				"text-field":         engine.Get("etiqueta"),
				"text-size":          12,
				"text-allow-overlap": true,
			},
			Paint: map[string]any{"text-color": "#fff"},
		},
	}
	for _, l := range layers {
		if err := r.eng.AddLayer(l); err != nil {
			r.log.Warn().Err(err).Str("layer", l.ID).Msg("stop layer not added")
		}
	}
}

func (r *RouteLayers) teardownStops() {
	for _, id := range []string{LayerStopPoints, LayerStopLabels} {
		if r.eng.HasLayer(id) {
			_ = r.eng.RemoveLayer(id)
		}
	}
	if r.eng.HasSource(SourceStops) {
		_ = r.eng.RemoveSource(SourceStops)
	}
}
