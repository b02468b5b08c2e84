package mapview

import (
	"context"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-tour/internal/engine"
	"github.com/joeblew999/plat-tour/internal/markers"
	"github.com/joeblew999/plat-tour/internal/popup"
	"github.com/joeblew999/plat-tour/internal/service"
)

var resourceLayerIDs = []string{LayerClusters, LayerClusterCount, LayerUnclustered}

func TestController_Mount(t *testing.T) {
	m := newTestMap(t, nil)
	m.sync()

	var types []string
	for _, c := range m.mem.Controls() {
		types = append(types, c.Type)
	}
	assert.Equal(t, []string{"navigation", "fullscreen", "geolocate"}, types)
	assert.Equal(t, "mapbox://styles/mapbox/streets-v11", m.mem.Style())

	s := m.snapshot()
	assert.False(t, s.Ready)
	assert.Equal(t, service.Day, s.Style)
	assert.Equal(t, Idle, s.Selection)
}

func TestController_Gate(t *testing.T) {
	t.Run("data before style", func(t *testing.T) {
		m := newTestMap(t, nil)
		m.ctrl.SetData(testRecords(), false)
		m.sync()
		assert.False(t, m.snapshot().Ready)
		assert.False(t, m.mem.HasSource(SourceResources))

		m.styleLoad()
		s := m.snapshot()
		require.True(t, s.Ready)
		assert.Equal(t, 7, s.Features)
		for _, id := range resourceLayerIDs {
			assert.Contains(t, s.Layers, id)
		}
		assert.NotContains(t, s.Layers, StyleLayerPOI)

		img, ok := m.mem.Image(ImageMarker)
		require.True(t, ok)
		assert.Equal(t, markers.Icon(string(service.Museum)), img.URL)
		assert.Equal(t, markers.DefaultIcon, img.Fallback)

		fog, ok := m.mem.Fog()
		require.True(t, ok)
		assert.Equal(t, "#00bfff", fog.Color)
		assert.Equal(t, 0.15, fog.StarIntensity)
	})

	t.Run("style before data", func(t *testing.T) {
		m := newTestMap(t, nil)
		m.styleLoad()
		assert.False(t, m.snapshot().Ready)

		m.ctrl.SetData(testRecords(), false)
		m.sync()
		assert.True(t, m.snapshot().Ready)
		assert.True(t, m.mem.HasLayer(LayerUnclustered))
	})

	t.Run("stops only", func(t *testing.T) {
		m := newTestMap(t, nil)
		m.styleLoad()
		m.ctrl.SetStops(stops(outlierWest))
		m.sync()

		s := m.snapshot()
		assert.True(t, s.Ready)
		assert.Contains(t, s.Layers, LayerStopPoints)
		assert.Contains(t, s.Layers, LayerStopLabels)
		assert.NotContains(t, s.Layers, LayerClusters)
	})

	t.Run("loading records are ignored", func(t *testing.T) {
		m := newTestMap(t, nil)
		m.ctrl.SetData(testRecords(), true)
		m.styleLoad()

		s := m.snapshot()
		assert.True(t, s.Loading)
		assert.False(t, s.Ready)
		assert.Zero(t, s.Features)
	})
}

func TestController_GatePollGivesUp(t *testing.T) {
	m := newTestMap(t, nil)
	m.ctrl.SetData(testRecords(), false)

	require.Eventually(t, func() bool { return m.snapshot().GateRetries == 3 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	s := m.snapshot()
	assert.Equal(t, 3, s.GateRetries)
	assert.False(t, s.Ready)

	// A late style load still opens the gate.
	m.styleLoad()
	assert.True(t, m.snapshot().Ready)
}

func TestController_EmptyResult(t *testing.T) {
	t.Run("initial", func(t *testing.T) {
		m := newTestMap(t, nil, func(o *Options, _ *Deps) { o.Center = orb.Point{0, 0} })
		m.ctrl.SetData(nil, false)
		m.styleLoad()

		s := m.snapshot()
		assert.True(t, s.Ready)
		assert.Equal(t, service.DefaultCenter, s.Camera.Center)
		for _, id := range resourceLayerIDs {
			assert.NotContains(t, s.Layers, id)
		}
	})

	t.Run("after results", func(t *testing.T) {
		m := newTestMap(t, nil)
		m.ready()
		m.click(outlierWest)
		require.Equal(t, Committed, m.snapshot().Selection)

		m.ctrl.SetData([]service.PointRecord{{ID: 1, Name: "Sin coordenadas"}}, false)
		m.sync()

		s := m.snapshot()
		assert.Zero(t, s.Features)
		assert.Equal(t, service.DefaultCenter, s.Camera.Center)
		assert.Equal(t, Idle, s.Selection)
		assert.False(t, s.PopupOpen)
		for _, id := range resourceLayerIDs {
			assert.NotContains(t, s.Layers, id)
		}
		assert.False(t, m.mem.HasSource(SourceResources))
		assert.False(t, m.mem.HasImage(ImageMarker))
	})
}

func TestController_SupersededQuery(t *testing.T) {
	m := newTestMap(t, nil)
	m.ready()

	older := m.ctrl.BeginQuery()
	newer := m.ctrl.BeginQuery()
	m.sync()
	assert.True(t, m.snapshot().Loading)

	m.ctrl.FailQuery(older)
	m.sync()
	assert.True(t, m.snapshot().Loading, "a stale failure must not clear the newer query's flag")

	m.ctrl.FinishQuery(newer, service.Museum, testRecords()[:2])
	m.ctrl.FinishQuery(older, service.Museum, testRecords())
	m.sync()

	s := m.snapshot()
	assert.False(t, s.Loading)
	assert.Equal(t, 2, s.Features)
}

func TestController_FitsToResults(t *testing.T) {
	m := newTestMap(t, nil)
	m.ready()

	cam := m.snapshot().Camera
	bounds := orb.MultiPoint{clusterCenter, outlierWest, outlierEast}.Bound()
	assert.True(t, bounds.Contains(cam.Center))
	assert.Greater(t, cam.Zoom, 7.0)
	assert.Less(t, cam.Zoom, 10.0)
}

func TestController_MarkerClickCommits(t *testing.T) {
	m := newTestMap(t, nil)
	m.ready()
	zoom := m.snapshot().Camera.Zoom
	assert.Equal(t, iconSizeFor(0), m.iconSize())

	m.click(outlierWest)

	s := m.snapshot()
	assert.Equal(t, Committed, s.Selection)
	assert.Equal(t, int64(10), s.SelectedID)
	assert.True(t, s.PopupOpen)
	assert.Equal(t, outlierWest, s.Camera.Center)
	assert.Equal(t, zoom, s.Camera.Zoom)
	assert.Equal(t, iconSizeFor(int64(10)), m.iconSize())

	p, ok := m.mem.Popup()
	require.True(t, ok)
	assert.Equal(t, outlierWest, p.LngLat)
	assert.Equal(t, popup.Options, p.Options)
	assert.Contains(t, p.HTML, "/resource/museum/M10")

	// Clicking another marker replaces the popup.
	m.click(outlierEast)
	s = m.snapshot()
	assert.Equal(t, int64(11), s.SelectedID)
	p, _ = m.mem.Popup()
	assert.Equal(t, outlierEast, p.LngLat)
	assert.Equal(t, iconSizeFor(int64(11)), m.iconSize())
}

func TestController_ClickEmptyClears(t *testing.T) {
	m := newTestMap(t, nil)
	m.ready()
	m.click(outlierWest)
	require.Equal(t, Committed, m.snapshot().Selection)

	m.click(orb.Point{-2.5, 42.7})

	s := m.snapshot()
	assert.Equal(t, Idle, s.Selection)
	assert.False(t, s.PopupOpen)
	assert.Equal(t, iconSizeFor(0), m.iconSize())
}

func TestController_ClusterClickExpands(t *testing.T) {
	m := newTestMap(t, nil)
	m.ready()

	clusters := m.mem.RenderedFeatures(LayerClusters)
	require.Len(t, clusters, 1)
	assert.Equal(t, 5, clusters[0].Properties["point_count"])
	center := clusters[0].Geometry.(orb.Point)
	id := clusters[0].Properties["cluster_id"].(int)

	var want float64
	m.mem.ClusterExpansionZoom(SourceResources, id, func(z float64, err error) {
		require.NoError(t, err)
		want = z
	})
	require.Greater(t, want, m.snapshot().Camera.Zoom)

	m.click(center)

	s := m.snapshot()
	assert.Equal(t, center, s.Camera.Center)
	assert.Equal(t, want, s.Camera.Zoom)
	assert.Equal(t, Idle, s.Selection)
	assert.False(t, s.PopupOpen)
}

func TestController_Hover(t *testing.T) {
	t.Run("preview", func(t *testing.T) {
		m := newTestMap(t, nil)
		m.ready()

		m.hover(outlierWest)
		s := m.snapshot()
		assert.Equal(t, HoverPreview, s.Selection)
		assert.True(t, s.PopupOpen)
		assert.Equal(t, engine.CursorPointer, m.mem.Cursor())
		assert.Equal(t, iconSizeFor(0), m.iconSize())

		m.leave()
		s = m.snapshot()
		assert.Equal(t, Idle, s.Selection)
		assert.False(t, s.PopupOpen)
		assert.Empty(t, m.mem.Cursor())
	})

	t.Run("committed wins", func(t *testing.T) {
		m := newTestMap(t, nil)
		m.ready()
		m.click(outlierWest)

		m.hover(outlierEast)
		s := m.snapshot()
		assert.Equal(t, Committed, s.Selection)
		assert.Equal(t, int64(10), s.SelectedID)
		p, ok := m.mem.Popup()
		require.True(t, ok)
		assert.Equal(t, outlierWest, p.LngLat)

		m.leave()
		s = m.snapshot()
		assert.Equal(t, Committed, s.Selection)
		assert.True(t, s.PopupOpen)
	})
}

func TestController_StyleToggle(t *testing.T) {
	t.Run("keeps committed selection", func(t *testing.T) {
		m := newTestMap(t, nil, func(o *Options, _ *Deps) { o.KeepSelection = true })
		m.ready()
		m.click(outlierWest)
		cam := m.snapshot().Camera

		m.ctrl.ToggleStyle()
		m.sync()

		s := m.snapshot()
		assert.Equal(t, service.Night, s.Style)
		assert.Equal(t, "mapbox://styles/mapbox/dark-v10", s.StyleURL)
		assert.False(t, s.Ready)
		assert.Equal(t, Committed, s.Selection)
		assert.True(t, s.PopupOpen)
		assert.NotContains(t, s.Layers, LayerUnclustered)

		m.styleLoad()
		s = m.snapshot()
		require.True(t, s.Ready)
		assert.Equal(t, Committed, s.Selection)
		assert.Equal(t, int64(10), s.SelectedID)
		assert.Equal(t, cam, s.Camera)
		assert.Equal(t, iconSizeFor(int64(10)), m.iconSize())

		l, ok := m.mem.Layer(LayerUnclustered)
		require.True(t, ok)
		assert.Equal(t, "#FFF", l.Paint["text-color"])
		fog, _ := m.mem.Fog()
		assert.Equal(t, "#1a1717", fog.Color)
		assert.Equal(t, 0.75, fog.StarIntensity)
	})

	t.Run("clears selection when not kept", func(t *testing.T) {
		m := newTestMap(t, nil)
		m.ready()
		m.click(outlierWest)

		m.ctrl.ToggleStyle()
		m.styleLoad()

		s := m.snapshot()
		assert.True(t, s.Ready)
		assert.Equal(t, Idle, s.Selection)
		assert.False(t, s.PopupOpen)
		assert.Equal(t, iconSizeFor(0), m.iconSize())
	})

	t.Run("drops hover preview", func(t *testing.T) {
		m := newTestMap(t, nil, func(o *Options, _ *Deps) { o.KeepSelection = true })
		m.ready()
		m.hover(outlierWest)

		m.ctrl.ToggleStyle()
		m.styleLoad()

		s := m.snapshot()
		assert.Equal(t, Idle, s.Selection)
		assert.False(t, s.PopupOpen)
	})
}

func TestController_Reload(t *testing.T) {
	m := newTestMap(t, nil)
	m.ready()
	url := m.snapshot().StyleURL

	m.ctrl.Reload()
	m.sync()
	s := m.snapshot()
	assert.False(t, s.Ready)
	assert.Equal(t, url, s.StyleURL)
	assert.Equal(t, service.Day, s.Style)

	m.styleLoad()
	assert.True(t, m.snapshot().Ready)
	assert.True(t, m.mem.HasLayer(LayerClusters))
}

func TestController_Geolocate(t *testing.T) {
	m := newTestMap(t, nil)
	m.ready()
	m.click(outlierWest)

	user := orb.Point{-2.67, 42.85}
	m.ctrl.HandleEvent(engine.Event{Type: engine.Geolocate, Coords: &user})
	m.sync()

	s := m.snapshot()
	require.NotNil(t, s.UserLocation)
	assert.Equal(t, user, *s.UserLocation)
	p, _ := m.mem.Popup()
	assert.Contains(t, p.HTML, " km")

	m.ctrl.HandleEvent(engine.Event{Type: engine.GeolocateError, Error: "denied"})
	m.sync()
	assert.Nil(t, m.snapshot().UserLocation)
	p, _ = m.mem.Popup()
	assert.NotContains(t, p.HTML, " km")

	bad := orb.Point{500, 0}
	m.ctrl.HandleEvent(engine.Event{Type: engine.Geolocate, Coords: &bad})
	m.sync()
	assert.Nil(t, m.snapshot().UserLocation)
}

func TestController_PopupAction(t *testing.T) {
	type nav struct {
		cat  service.Category
		code string
	}
	got := make(chan nav, 4)
	m := newTestMap(t, nil, func(_ *Options, d *Deps) {
		d.Notifier = NotifierFuncs{OnNavigate: func(c service.Category, code string) { got <- nav{c, code} }}
	})

	m.ctrl.HandleEvent(engine.Event{Type: engine.PopupAction, Category: "Museos y centros de interpretación", Code: "M10"})
	m.ctrl.HandleEvent(engine.Event{Type: engine.PopupAction, Category: "planetarium", Code: "X"})
	m.ctrl.HandleEvent(engine.Event{Type: engine.PopupAction, Category: "cave"})
	m.sync()

	require.Len(t, got, 1)
	assert.Equal(t, nav{service.Museum, "M10"}, <-got)
}

func TestController_SavesPreferences(t *testing.T) {
	prefs := &memoryPrefs{}
	m := newTestMap(t, nil, func(o *Options, d *Deps) {
		o.PreferenceKey = "visitor-1"
		d.Prefs = prefs
	})
	m.ready()

	cam := engine.Camera{Center: orb.Point{-2.5, 43.1}, Zoom: 9}
	m.ctrl.HandleEvent(engine.Event{Type: engine.MoveEnd, Camera: &cam})
	m.sync()

	p, ok := prefs.get("visitor-1")
	require.True(t, ok)
	assert.Equal(t, service.ViewPreferences{Style: service.Day, Center: cam.Center, Zoom: 9}, p)

	m.ctrl.ToggleStyle()
	m.sync()
	p, _ = prefs.get("visitor-1")
	assert.Equal(t, service.Night, p.Style)
}

func TestController_Closed(t *testing.T) {
	m := newTestMap(t, nil)
	m.sync()
	m.ctrl.Close()

	<-m.ctrl.Done()
	_, err := m.ctrl.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
