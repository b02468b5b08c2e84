package mapview

import (
	"errors"
	"testing"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-tour/internal/engine"
)

func drain(e *RemoteEngine) []Command {
	var out []Command
	for {
		select {
		case c := <-e.Commands():
			out = append(out, c)
		default:
			return out
		}
	}
}

func ops(cmds []Command) []string {
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = c.Op
	}
	return out
}

func waitCommand(t *testing.T, e *RemoteEngine, op string) Command {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case c := <-e.Commands():
			if c.Op == op {
				return c
			}
		case <-timeout:
			t.Fatalf("no %s command", op)
			return Command{}
		}
	}
}

func TestRemoteEngine_ForwardsSuccessfulMutations(t *testing.T) {
	e := NewRemoteEngine(engine.Camera{Zoom: 7}, 0)

	e.SetStyle("mapbox://styles/mapbox/streets-v11")
	err := e.AddSource("resources", engine.Source{Data: geojson.NewFeatureCollection()})
	require.ErrorIs(t, err, engine.ErrStyleNotLoaded)

	e.Dispatch(engine.Event{Type: engine.StyleLoad})
	require.NoError(t, e.AddSource("resources", engine.Source{Data: geojson.NewFeatureCollection()}))
	require.NoError(t, e.AddLayer(engine.Layer{ID: "clusters", Type: "circle", Source: "resources"}))
	require.ErrorIs(t, e.AddLayer(engine.Layer{ID: "clusters", Source: "resources"}), engine.ErrDuplicateID)
	require.NoError(t, e.SetLayoutProperty("clusters", "visibility", "none"))
	require.NoError(t, e.RemoveLayer("clusters"))
	require.NoError(t, e.RemoveSource("resources"))

	cmds := drain(e)
	assert.Equal(t, []string{"setStyle", "addSource", "addLayer", "setLayoutProperty", "removeLayer", "removeSource"}, ops(cmds))
	for i, c := range cmds {
		assert.Equal(t, uint64(i+1), c.Seq)
	}
	assert.Equal(t, "mapbox://styles/mapbox/streets-v11", cmds[0].Args.(map[string]any)["url"])
}

func TestRemoteEngine_SkipsNoOps(t *testing.T) {
	e := NewRemoteEngine(engine.Camera{}, 0)

	e.RemovePopup()
	e.SetPopupHTML("<p>x</p>")
	e.SetCursor("")
	assert.Empty(t, drain(e))

	e.ShowPopup(engine.Popup{HTML: "<p>a</p>"})
	e.SetPopupHTML("<p>b</p>")
	e.SetCursor(engine.CursorPointer)
	e.SetCursor(engine.CursorPointer)
	e.RemovePopup()
	assert.Equal(t, []string{"showPopup", "setPopupHTML", "setCursor", "removePopup"}, ops(drain(e)))
}

func TestRemoteEngine_DropsOldestWhenFull(t *testing.T) {
	e := NewRemoteEngine(engine.Camera{}, 2)
	e.AddControl(engine.Control{Type: "navigation"})
	e.AddControl(engine.Control{Type: "fullscreen"})
	e.AddControl(engine.Control{Type: "geolocate"})

	cmds := drain(e)
	require.Len(t, cmds, 2)
	assert.Equal(t, uint64(2), cmds[0].Seq)
	assert.Equal(t, uint64(3), cmds[1].Seq)
}

func TestRemoteEngine_ClusterExpansion(t *testing.T) {
	e := NewRemoteEngine(engine.Camera{}, 0)

	var (
		zoom float64
		err  error
	)
	e.ClusterExpansionZoom("resources", 161, func(z float64, e error) { zoom, err = z, e })
	cmd := waitCommand(t, e, "clusterExpansionZoom")
	args := cmd.Args.(map[string]any)
	assert.Equal(t, 161, args["clusterId"])
	req := args["requestId"].(int)

	e.Dispatch(engine.Event{Type: engine.ClusterExpansion, RequestID: req + 1, Zoom: 3})
	assert.Zero(t, zoom)

	e.Dispatch(engine.Event{Type: engine.ClusterExpansion, RequestID: req, Zoom: 11})
	require.NoError(t, err)
	assert.Equal(t, 11.0, zoom)

	e.ClusterExpansionZoom("resources", 161, func(z float64, e error) { err = e })
	cmd = waitCommand(t, e, "clusterExpansionZoom")
	e.Dispatch(engine.Event{Type: engine.ClusterExpansion, RequestID: cmd.Args.(map[string]any)["requestId"].(int), Error: "no such cluster"})
	assert.EqualError(t, err, "no such cluster")

	err = nil
	e.ClusterExpansionZoom("resources", 161, func(z float64, e error) { err = e })
	e.SetStyle("mapbox://styles/mapbox/dark-v10")
	assert.True(t, errors.Is(err, engine.ErrNotFound))
}

func TestRemoteEngine_DrivesController(t *testing.T) {
	reg := NewRegistry(Deps{}, nil)
	t.Cleanup(reg.CloseAll)

	s, err := reg.Create(Options{Category: "museum"})
	require.NoError(t, err)

	waitCommand(t, s.Engine, "setStyle")
	s.Controller.SetData(testRecords(), false)
	s.Controller.HandleEvent(engine.Event{Type: engine.StyleLoad})

	cmd := waitCommand(t, s.Engine, "addSource")
	assert.Equal(t, SourceResources, cmd.Args.(map[string]any)["id"])
	waitCommand(t, s.Engine, "fitBounds")

	s.Controller.HandleEvent(engine.Event{Type: engine.PopupAction, Category: "museum", Code: "M10"})
	cmd = waitCommand(t, s.Engine, "navigate")
	assert.Equal(t, "/resource/museum/M10", cmd.Args.(map[string]any)["url"])
}
