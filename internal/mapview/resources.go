package mapview

import (
	"errors"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-tour/internal/engine"
	"github.com/joeblew999/plat-tour/internal/markers"
	"github.com/joeblew999/plat-tour/internal/metrics"
	"github.com/joeblew999/plat-tour/internal/service"
)

// ResourceLayers owns the clustered resource source, its three layers, the
// marker image and the listeners bound to them.
type ResourceLayers struct {
	eng engine.Engine
	sel *Selection
	log zerolog.Logger

	clusterRadius  int
	clusterMaxZoom int

	data      *geojson.FeatureCollection
	byID      map[int64]*geojson.Feature
	listeners []engine.Listener
}

// NewResourceLayers creates the manager. Nothing is added until Rebuild.
func NewResourceLayers(eng engine.Engine, sel *Selection, opts Options, log zerolog.Logger) *ResourceLayers {
	return &ResourceLayers{
		eng:            eng,
		sel:            sel,
		log:            log,
		clusterRadius:  opts.ClusterRadius,
		clusterMaxZoom: opts.ClusterMaxZoom,
		byID:           make(map[int64]*geojson.Feature),
	}
}

// SetData replaces the geometry collection used by the next Rebuild.
func (r *ResourceLayers) SetData(fc *geojson.FeatureCollection) {
	r.data = fc
	r.byID = make(map[int64]*geojson.Feature)
	if fc == nil {
		return
	}
	for _, f := range fc.Features {
		if id, ok := service.FeatureID(f); ok {
			r.byID[id] = f
		}
	}
}

// Len is the number of features in the current collection.
func (r *ResourceLayers) Len() int {
	if r.data == nil {
		return 0
	}
	return len(r.data.Features)
}

// Feature returns the authoritative feature for an id.
func (r *ResourceLayers) Feature(id int64) *geojson.Feature {
	return r.byID[id]
}

// Points returns every feature coordinate.
func (r *ResourceLayers) Points() []orb.Point {
	if r.data == nil {
		return nil
	}
	pts := make([]orb.Point, 0, len(r.data.Features))
	for _, f := range r.data.Features {
		if p, ok := f.Geometry.(orb.Point); ok {
			pts = append(pts, p)
		}
	}
	return pts
}

// Rebuild tears down the previous instance, then adds the source, layers,
// marker image and listeners for the current data. With no features only
// the teardown happens.
func (r *ResourceLayers) Rebuild(category service.Category, style service.StyleMode) error {
	r.Teardown()
	if r.Len() == 0 {
		return nil
	}
	metrics.LayerRebuilds.WithLabelValues("resources").Inc()

	err := r.eng.AddSource(SourceResources, engine.Source{
		Type:           "geojson",
		Data:           r.data,
		Cluster:        true,
		ClusterMaxZoom: r.clusterMaxZoom,
		ClusterRadius:  r.clusterRadius,
		GenerateID:     true,
	})
	if err != nil {
		return err
	}

	textColor := "#000"
	if style == service.Night {
		textColor = "#FFF"
	}
	layers := []engine.Layer{
		{
			ID:     LayerClusters,
			Type:   "circle",
			Source: SourceResources,
			Filter: engine.Has("point_count"),
			Paint: map[string]any{
				"circle-color":  engine.Step(engine.Get("point_count"), "#51bbd6", 100, "#f1f075", 750, "#f28cb1"),
				"circle-radius": engine.Step(engine.Get("point_count"), 20, 100, 30, 750, 40),
			},
		},
		{
			ID:     LayerClusterCount,
			Type:   "symbol",
			Source: SourceResources,
			Filter: engine.Has("point_count"),
			Layout: map[string]any{
				"text-field": "{point_count_abbreviated}",
				"text-font":  []string{"DIN Offc Pro Medium", "Arial Unicode MS Bold"},
				"text-size":  12,
			},
		},
		{
			ID:     LayerUnclustered,
			Type:   "symbol",
			Source: SourceResources,
			Filter: engine.NotHas("point_count"),
			Layout: map[string]any{
				"text-field":           engine.Get(service.PropName),
				"text-variable-anchor": []string{"top", "bottom", "left", "right"},
				"text-radial-offset":   1.5,
				"text-justify":         "auto",
				"icon-image":           ImageMarker,
				"icon-size":            r.sel.IconSize(),
				"icon-allow-overlap":   true,
			},
			Paint: map[string]any{"text-color": textColor},
		},
	}

	r.eng.LoadImage(ImageMarker, markers.Icon(string(category)), markers.DefaultIcon)
	for _, l := range layers {
		if err := r.eng.AddLayer(l); err != nil {
			return err
		}
	}
	r.bind()
	r.sel.Reapply()
	return nil
}

func (r *ResourceLayers) bind() {
	r.listeners = append(r.listeners,
		r.eng.On(engine.Click, "", r.onMapClick),
		r.eng.On(engine.Click, LayerClusters, r.onClusterClick),
		r.eng.On(engine.Click, LayerUnclustered, r.onMarkerClick),
		r.eng.On(engine.MouseEnter, LayerClusters, func(engine.Event) { r.eng.SetCursor(engine.CursorPointer) }),
		r.eng.On(engine.MouseLeave, LayerClusters, func(engine.Event) { r.eng.SetCursor("") }),
		r.eng.On(engine.MouseEnter, LayerUnclustered, r.onMarkerEnter),
		r.eng.On(engine.MouseLeave, LayerUnclustered, r.onMarkerLeave),
	)
}

// Teardown removes listeners, layers, image and source, in that order,
// skipping whatever is already absent.
func (r *ResourceLayers) Teardown() {
	for _, l := range r.listeners {
		r.eng.Off(l)
	}
	r.listeners = nil

	for _, id := range []string{LayerClusters, LayerClusterCount, LayerUnclustered} {
		if r.eng.HasLayer(id) {
			r.ignore(r.eng.RemoveLayer(id))
		}
	}
	if r.eng.HasImage(ImageMarker) {
		r.ignore(r.eng.RemoveImage(ImageMarker))
	}
	if r.eng.HasSource(SourceResources) {
		r.ignore(r.eng.RemoveSource(SourceResources))
	}
}

func (r *ResourceLayers) ignore(err error) {
	if err != nil && !errors.Is(err, engine.ErrNotFound) {
		r.log.Warn().Err(err).Msg("resource layer teardown")
	}
}

func (r *ResourceLayers) onMapClick(ev engine.Event) {
	if len(ev.Hits[LayerUnclustered]) == 0 && len(ev.Hits[LayerStopPoints]) == 0 {
		r.sel.ClickEmpty()
	}
}

func (r *ResourceLayers) onClusterClick(ev engine.Event) {
	if len(ev.Features) == 0 {
		return
	}
	f := ev.Features[0]
	center, ok := f.Geometry.(orb.Point)
	if !ok {
		return
	}
	id, ok := clusterID(f)
	if !ok {
		return
	}
	r.eng.ClusterExpansionZoom(SourceResources, id, func(zoom float64, err error) {
		if err != nil {
			r.log.Debug().Err(err).Int("cluster_id", id).Msg("cluster expansion lookup failed")
			return
		}
		r.eng.EaseTo(engine.CameraOptions{Center: center, Zoom: zoom})
	})
}

func (r *ResourceLayers) onMarkerClick(ev engine.Event) {
	if f := r.resolve(ev); f != nil {
		r.sel.Commit(f)
	}
}

func (r *ResourceLayers) onMarkerEnter(ev engine.Event) {
	r.eng.SetCursor(engine.CursorPointer)
	if f := r.resolve(ev); f != nil {
		r.sel.HoverEnter(f)
	}
}

func (r *ResourceLayers) onMarkerLeave(engine.Event) {
	r.eng.SetCursor("")
	r.sel.HoverLeave()
}

// resolve maps the first feature under the pointer onto the authoritative
// feature from the current collection.
func (r *ResourceLayers) resolve(ev engine.Event) *geojson.Feature {
	if len(ev.Features) == 0 {
		return nil
	}
	id, ok := service.FeatureID(ev.Features[0])
	if !ok {
		return nil
	}
	return r.byID[id]
}

func clusterID(f *geojson.Feature) (int, bool) {
	switch v := f.Properties["cluster_id"].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}
