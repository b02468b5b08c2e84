// Package mapview drives one map surface per session: the readiness gate,
// the clustered resource layers, the selection popup and the itinerary
// route, all on a single goroutine per map.
package mapview

import (
	"context"
	"errors"
	"html"
	"sync"
	"sync/atomic"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-tour/internal/engine"
	"github.com/joeblew999/plat-tour/internal/geoutil"
	"github.com/joeblew999/plat-tour/internal/logging"
	"github.com/joeblew999/plat-tour/internal/popup"
	"github.com/joeblew999/plat-tour/internal/service"
)

// ErrClosed is returned by calls made after the controller stopped.
var ErrClosed = errors.New("map controller closed")

// Deps are the controller's collaborators. Routes, Prefs and Notifier may
// be nil.
type Deps struct {
	Routes   service.RouteSource
	Prefs    service.PreferenceStore
	Notifier Notifier
	Popups   *popup.Builder
	Log      *zerolog.Logger
}

// Controller owns one map surface. Exported methods are safe to call from
// any goroutine; they post work to the goroutine running Run.
type Controller struct {
	eng      engine.Engine
	opts     Options
	prefs    service.PreferenceStore
	notifier Notifier
	log      zerolog.Logger

	cmds      chan func()
	done      chan struct{}
	closeOnce sync.Once
	querySeq  atomic.Uint64

	// Owned by the Run goroutine.
	ctx        context.Context
	style      service.StyleMode
	category   service.Category
	loading    bool
	hasData    bool
	ready      bool
	keepCamera bool
	gate       gate
	base       []engine.Listener

	selection *Selection
	resources *ResourceLayers
	route     *RouteLayers
}

// New creates a controller for eng. Call Run to mount the map.
func New(eng engine.Engine, opts Options, deps Deps) (*Controller, error) {
	opts = opts.withDefaults()
	if deps.Popups == nil {
		b, err := popup.NewBuilder()
		if err != nil {
			return nil, err
		}
		deps.Popups = b
	}
	if deps.Notifier == nil {
		deps.Notifier = NopNotifier{}
	}
	log := logging.Component("mapview")
	if deps.Log != nil {
		log = *deps.Log
	}

	c := &Controller{
		eng:      eng,
		opts:     opts,
		prefs:    deps.Prefs,
		notifier: deps.Notifier,
		log:      log,
		cmds:     make(chan func(), 64),
		done:     make(chan struct{}),
		ctx:      context.Background(),
		style:    opts.Style,
		category: opts.Category,
		gate:     gate{interval: opts.PollInterval, maxRetries: opts.MaxRetries},
	}
	c.selection = NewSelection(eng, deps.Popups, log)
	c.resources = NewResourceLayers(eng, c.selection, opts, log)
	c.route = NewRouteLayers(eng, deps.Routes, opts.Profile, c.post, log)
	if deps.Routes == nil {
		c.route.routes = noRoutes{}
	}
	return c, nil
}

type noRoutes struct{}

func (noRoutes) FetchRoute(context.Context, []int64, service.Profile) (service.Route, error) {
	return service.Route{}, service.ErrNoRoute
}

// Run mounts the map and processes work until ctx ends or Close is called.
func (c *Controller) Run(ctx context.Context) error {
	c.ctx = ctx
	c.mount()
	defer c.gate.stop()

	for {
		select {
		case <-ctx.Done():
			c.Close()
			return ctx.Err()
		case <-c.done:
			return nil
		case fn := <-c.cmds:
			fn()
		}
	}
}

// Close stops the controller. Pending work is dropped.
func (c *Controller) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed when the controller stops.
func (c *Controller) Done() <-chan struct{} { return c.done }

func (c *Controller) post(fn func()) bool {
	select {
	case c.cmds <- fn:
		return true
	case <-c.done:
		return false
	}
}

// call runs fn on the controller goroutine and waits for it.
func (c *Controller) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !c.post(func() { fn(); close(finished) }) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

// Sync returns once every call made before it has been processed.
func (c *Controller) Sync(ctx context.Context) error {
	return c.call(ctx, func() {})
}

// SetData hands the latest query result to the map. While loading is set
// the records are ignored and only the flag is recorded.
func (c *Controller) SetData(records []service.PointRecord, loading bool) {
	c.post(func() { c.setData(records, loading) })
}

// BeginQuery marks a resource query in flight and returns its sequence
// number. Only the most recently begun query may change the data.
func (c *Controller) BeginQuery() uint64 {
	seq := c.querySeq.Add(1)
	c.post(func() { c.loading = true })
	return seq
}

// FinishQuery applies the result of query seq. Results of a query that
// has since been superseded are dropped.
func (c *Controller) FinishQuery(seq uint64, cat service.Category, records []service.PointRecord) {
	c.post(func() {
		if seq != c.querySeq.Load() {
			c.log.Debug().Uint64("seq", seq).Msg("dropping superseded query result")
			return
		}
		c.category = cat
		c.setData(records, false)
	})
}

// FailQuery clears the loading flag if seq is still the latest query.
func (c *Controller) FailQuery(seq uint64) {
	c.post(func() {
		if seq == c.querySeq.Load() {
			c.loading = false
		}
	})
}

// SetStops replaces the itinerary.
func (c *Controller) SetStops(stops []service.Stop) {
	c.post(func() { c.setStops(stops) })
}

// MoveStop moves one itinerary stop and recomputes the route.
func (c *Controller) MoveStop(from, to int) {
	c.post(func() {
		c.route.SetStops(service.Reorder(c.route.Stops(), from, to))
		c.route.Recompute(c.ctx)
	})
}

// SetProfile changes the travel profile and recomputes the route.
func (c *Controller) SetProfile(p service.Profile) {
	c.post(func() {
		c.route.SetProfile(p)
		c.notifier.ProfileChanged(p)
		c.route.Recompute(c.ctx)
	})
}

// ToggleStyle switches between the day and night styles.
func (c *Controller) ToggleStyle() {
	c.post(func() {
		c.switchStyle(c.style.Toggle())
		c.savePreferences()
	})
}

// Reload re-requests the current style and rebuilds every layer, keeping
// the camera and a committed selection.
func (c *Controller) Reload() {
	c.post(func() { c.switchStyle(c.style) })
}

// HandleEvent feeds a map event into the engine's listeners.
func (c *Controller) HandleEvent(ev engine.Event) {
	c.post(func() { c.eng.Dispatch(ev) })
}

func (c *Controller) mount() {
	c.eng.AddControl(engine.Control{Type: "navigation"})
	c.eng.AddControl(engine.Control{Type: "fullscreen"})
	c.eng.AddControl(engine.Control{Type: "geolocate", Options: map[string]any{
		"positionOptions":    map[string]any{"enableHighAccuracy": true},
		"showUserHeading":    true,
		"showAccuracyCircle": true,
	}})

	c.base = []engine.Listener{
		c.eng.On(engine.StyleLoad, "", c.onStyleLoad),
		c.eng.On(engine.Geolocate, "", c.onGeolocate),
		c.eng.On(engine.GeolocateError, "", c.onGeolocateError),
		c.eng.On(engine.MoveEnd, "", func(engine.Event) { c.savePreferences() }),
		c.eng.On(engine.PopupAction, "", c.onPopupAction),
		c.eng.On(engine.Click, LayerStopPoints, c.onStopClick),
	}

	c.eng.SetStyle(c.opts.styleURL(c.style))
	c.armGate()
}

// onStopClick names the clicked itinerary stop in the popup slot.
func (c *Controller) onStopClick(ev engine.Event) {
	if len(ev.Features) == 0 {
		return
	}
	f := ev.Features[0]
	pt, ok := f.Geometry.(orb.Point)
	if !ok {
		return
	}
	name, _ := f.Properties[service.PropName].(string)
	c.selection.Clear()
	c.eng.ShowPopup(engine.Popup{
		LngLat:  pt,
		HTML:    html.EscapeString(name),
		Options: stopPopupOptions,
	})
}

var stopPopupOptions = engine.PopupOptions{CloseOnClick: true, CloseButton: true, Offset: 15}

func (c *Controller) onStyleLoad(engine.Event) {
	if c.eng.HasLayer(StyleLayerPOI) {
		_ = c.eng.RemoveLayer(StyleLayerPOI)
	}
	c.eng.SetFog(fogFor(c.style))
	c.checkGate(c.gate.gen)
}

func fogFor(style service.StyleMode) engine.Fog {
	f := engine.Fog{
		Range:         [2]float64{0.8, 15},
		Color:         "#00bfff",
		HorizonBlend:  0.5,
		HighColor:     "#245bde",
		SpaceColor:    "#000000",
		StarIntensity: 0.15,
	}
	if style == service.Night {
		f.Color = "#1a1717"
		f.StarIntensity = 0.75
	}
	return f
}

func (c *Controller) onGeolocate(ev engine.Event) {
	if ev.Coords == nil || !geoutil.ValidLonLat(*ev.Coords) {
		c.onGeolocateError(ev)
		return
	}
	p := *ev.Coords
	c.selection.SetUserLocation(&p)
}

func (c *Controller) onGeolocateError(ev engine.Event) {
	c.log.Warn().Str("error", ev.Error).Msg("geolocation unavailable")
	c.selection.SetUserLocation(nil)
}

func (c *Controller) onPopupAction(ev engine.Event) {
	cat, err := service.ParseCategory(ev.Category)
	if err != nil || ev.Code == "" {
		c.log.Debug().Str("category", ev.Category).Str("code", ev.Code).Msg("ignoring popup action")
		return
	}
	c.notifier.NavigateToDetail(cat, ev.Code)
}

func (c *Controller) hasInput() bool {
	return c.hasData || len(c.route.Stops()) > 0
}

func (c *Controller) setData(records []service.PointRecord, loading bool) {
	c.loading = loading
	if loading {
		return
	}
	c.hasData = true
	c.selection.Clear()
	c.resources.SetData(service.ToFeatureCollection(records))

	if c.ready {
		c.renderResources()
		return
	}
	if c.resources.Len() == 0 {
		c.showEmpty()
	}
	c.checkGate(c.gate.gen)
}

func (c *Controller) setStops(stops []service.Stop) {
	c.route.SetStops(stops)
	if c.ready {
		c.fitTo(c.route.Points())
	} else {
		c.checkGate(c.gate.gen)
	}
	c.route.Recompute(c.ctx)
}

// setup builds every app layer for the loaded style.
func (c *Controller) setup() {
	c.ready = true
	if c.hasData {
		c.renderResources()
	}
	if len(c.route.Stops()) > 0 {
		c.route.Redraw()
		if !c.keepCamera {
			c.fitTo(c.route.Points())
		}
	}
	c.keepCamera = false
}

func (c *Controller) renderResources() {
	if c.resources.Len() == 0 {
		c.showEmpty()
		return
	}
	c.selection.Rebind(c.resources.Feature)
	if err := c.resources.Rebuild(c.category, c.style); err != nil {
		c.log.Warn().Err(err).Msg("resource layers not built")
		return
	}
	if !c.keepCamera {
		c.fitTo(c.resources.Points())
	}
}

// showEmpty clears every app layer and recenters on the default region.
func (c *Controller) showEmpty() {
	c.selection.Clear()
	c.resources.Teardown()
	c.route.Teardown()
	c.eng.FlyTo(engine.CameraOptions{Center: c.opts.DefaultCenter, Zoom: c.eng.Camera().Zoom, Essential: true})
}

func (c *Controller) fitTo(points []orb.Point) {
	if b, ok := geoutil.Bounds(points); ok {
		c.eng.FitBounds(b, c.opts.FitPadding)
	}
}

// switchStyle tears down app state and requests style m. A committed
// selection and its popup survive when configured; the camera is kept.
func (c *Controller) switchStyle(m service.StyleMode) {
	if state, _ := c.selection.State(); state != Committed || !c.opts.KeepSelection {
		c.selection.Clear()
	}
	c.keepCamera = true
	c.ready = false
	c.resources.Teardown()
	c.route.Teardown()

	c.style = m
	c.eng.SetStyle(c.opts.styleURL(m))
	c.armGate()
}

func (c *Controller) savePreferences() {
	if c.prefs == nil || c.opts.PreferenceKey == "" {
		return
	}
	cam := c.eng.Camera()
	err := c.prefs.Save(c.opts.PreferenceKey, service.ViewPreferences{Style: c.style, Center: cam.Center, Zoom: cam.Zoom})
	if err != nil {
		c.log.Warn().Err(err).Msg("view preferences not saved")
	}
}

// Snapshot is a read-only view of controller state.
type Snapshot struct {
	Style          service.StyleMode `json:"style"`
	StyleURL       string            `json:"styleUrl"`
	Ready          bool              `json:"ready"`
	Loading        bool              `json:"loading"`
	Category       service.Category  `json:"category,omitempty"`
	Features       int               `json:"features"`
	Selection      SelectionState    `json:"selection"`
	SelectedID     int64             `json:"selectedId,omitempty"`
	PopupOpen      bool              `json:"popupOpen"`
	Layers         []string          `json:"layers"`
	Camera         engine.Camera     `json:"camera"`
	Profile        service.Profile   `json:"profile"`
	Stops          []int64           `json:"stops"`
	HasRoute       bool              `json:"hasRoute"`
	RouteRequests  uint64            `json:"routeRequests"`
	RoutesResolved uint64            `json:"routesResolved"`
	GateRetries    int               `json:"gateRetries"`
	UserLocation   *orb.Point        `json:"userLocation,omitempty"`
}

// Snapshot returns the current state.
func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := c.call(ctx, func() {
		state, _ := c.selection.State()
		id, _ := c.selection.SelectedID()
		_, open := c.eng.Popup()
		s = Snapshot{
			Style:          c.style,
			StyleURL:       c.eng.Style(),
			Ready:          c.ready,
			Loading:        c.loading,
			Category:       c.category,
			Features:       c.resources.Len(),
			Selection:      state,
			SelectedID:     id,
			PopupOpen:      open,
			Layers:         c.eng.LayerIDs(),
			Camera:         c.eng.Camera(),
			Profile:        c.route.Profile(),
			Stops:          service.StopIDs(c.route.Stops()),
			HasRoute:       c.route.Route() != nil,
			RouteRequests:  c.route.Requests(),
			RoutesResolved: c.route.Resolved(),
			GateRetries:    c.gate.retries,
			UserLocation:   c.selection.UserLocation(),
		}
	})
	return s, err
}

// Feature returns the authoritative feature for a resource id.
func (c *Controller) Feature(ctx context.Context, id int64) (*geojson.Feature, error) {
	var f *geojson.Feature
	err := c.call(ctx, func() { f = c.resources.Feature(id) })
	return f, err
}
