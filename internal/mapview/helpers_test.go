package mapview

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-tour/internal/engine"
	"github.com/joeblew999/plat-tour/internal/service"
)

// Five museums within a few hundred meters of each other, plus two
// outliers far enough apart to stay unclustered at the fitted zoom.
var (
	clusterCenter = orb.Point{-2.0, 43.0}
	outlierWest   = orb.Point{-3.0, 42.5}
	outlierEast   = orb.Point{-1.5, 43.3}
)

func testRecords() []service.PointRecord {
	var out []service.PointRecord
	for i := range 5 {
		out = append(out, record(int64(i+1), orb.Point{clusterCenter[0] + float64(i)*0.005, clusterCenter[1]}))
	}
	out = append(out, record(10, outlierWest), record(11, outlierEast))
	return out
}

func record(id int64, p orb.Point) service.PointRecord {
	return service.PointRecord{
		ID:        id,
		Category:  service.Museum,
		Code:      fmt.Sprintf("M%d", id),
		Name:      "Museo",
		Province:  "Araba",
		Longitude: service.Float(p[0]),
		Latitude:  service.Float(p[1]),
	}
}

func stops(points ...orb.Point) []service.Stop {
	out := make([]service.Stop, len(points))
	for i, p := range points {
		out[i] = service.Stop{Index: i, Record: record(int64(100+i), p)}
	}
	return out
}

type testMap struct {
	t    *testing.T
	ctrl *Controller
	mem  *engine.Memory
}

func newTestMap(t *testing.T, routes service.RouteSource, configure ...func(*Options, *Deps)) *testMap {
	t.Helper()
	opts := Options{
		Center:       service.DefaultCenter,
		Zoom:         7,
		Category:     service.Museum,
		PollInterval: 5 * time.Millisecond,
		MaxRetries:   3,
	}
	deps := Deps{Routes: routes}
	for _, fn := range configure {
		fn(&opts, &deps)
	}

	mem := engine.NewMemory(engine.Camera{Center: opts.Center, Zoom: opts.Zoom, Pitch: opts.Pitch})
	ctrl, err := New(mem, opts, deps)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ctrl.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &testMap{t: t, ctrl: ctrl, mem: mem}
}

func (m *testMap) sync() {
	m.t.Helper()
	require.NoError(m.t, m.ctrl.Sync(context.Background()))
}

func (m *testMap) snapshot() Snapshot {
	m.t.Helper()
	s, err := m.ctrl.Snapshot(context.Background())
	require.NoError(m.t, err)
	return s
}

func (m *testMap) styleLoad() {
	m.ctrl.HandleEvent(engine.Event{Type: engine.StyleLoad})
	m.sync()
}

// ready loads the style and the standard records.
func (m *testMap) ready() {
	m.t.Helper()
	m.ctrl.SetData(testRecords(), false)
	m.styleLoad()
	require.Eventually(m.t, func() bool { return m.snapshot().Ready }, time.Second, 5*time.Millisecond)
}

func (m *testMap) click(p orb.Point) {
	m.ctrl.HandleEvent(engine.Event{Type: engine.Click, LngLat: p, Hits: m.mem.QueryRenderedFeatures(p)})
	m.sync()
}

func (m *testMap) hover(p orb.Point) {
	hits := m.mem.QueryRenderedFeatures(p, LayerUnclustered)
	m.ctrl.HandleEvent(engine.Event{Type: engine.MouseEnter, Layer: LayerUnclustered, LngLat: p, Features: hits[LayerUnclustered]})
	m.sync()
}

func (m *testMap) leave() {
	m.ctrl.HandleEvent(engine.Event{Type: engine.MouseLeave, Layer: LayerUnclustered})
	m.sync()
}

func (m *testMap) iconSize() any {
	v, _ := m.mem.LayoutProperty(LayerUnclustered, "icon-size")
	return v
}

func (m *testMap) route() *service.Route {
	var r *service.Route
	require.NoError(m.t, m.ctrl.call(context.Background(), func() { r = m.ctrl.route.Route() }))
	return r
}

func iconSizeFor(id any) engine.Expr {
	return engine.Match(engine.Get(service.PropID), id, IconSizeSelected, IconSizeDefault)
}

// routeCall is one pending FetchRoute on a blockingRoutes.
type routeCall struct {
	Stops   []int64
	Profile service.Profile
	reply   chan routeReply
}

type routeReply struct {
	route service.Route
	err   error
}

func (c routeCall) respond(r service.Route, err error) {
	c.reply <- routeReply{route: r, err: err}
}

// blockingRoutes holds every request until the test answers it.
type blockingRoutes struct {
	calls chan routeCall

	mu    sync.Mutex
	count int
}

func newBlockingRoutes() *blockingRoutes {
	return &blockingRoutes{calls: make(chan routeCall, 16)}
}

func (b *blockingRoutes) FetchRoute(ctx context.Context, stops []int64, p service.Profile) (service.Route, error) {
	b.mu.Lock()
	b.count++
	b.mu.Unlock()

	call := routeCall{Stops: stops, Profile: p, reply: make(chan routeReply, 1)}
	b.calls <- call
	select {
	case r := <-call.reply:
		return r.route, r.err
	case <-ctx.Done():
		return service.Route{}, ctx.Err()
	}
}

func (b *blockingRoutes) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *blockingRoutes) next(t *testing.T) routeCall {
	t.Helper()
	select {
	case c := <-b.calls:
		return c
	case <-time.After(time.Second):
		t.Fatal("no route request")
		return routeCall{}
	}
}

func lineRoute(distance float64, pts ...orb.Point) service.Route {
	return service.Route{Coordinates: orb.LineString(pts), Distance: distance}
}

// memoryPrefs is a PreferenceStore for tests.
type memoryPrefs struct {
	mu    sync.Mutex
	saved map[string]service.ViewPreferences
}

func (p *memoryPrefs) Load(key string) (service.ViewPreferences, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.saved[key]; ok {
		return v, nil
	}
	return service.DefaultPreferences(), nil
}

func (p *memoryPrefs) Save(key string, v service.ViewPreferences) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saved == nil {
		p.saved = make(map[string]service.ViewPreferences)
	}
	p.saved[key] = v
	return nil
}

func (p *memoryPrefs) get(key string) (service.ViewPreferences, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.saved[key]
	return v, ok
}
