package engine

import (
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// DefaultStyleLayers are the style layers a loaded style contributes when
// the load event does not list them.
var DefaultStyleLayers = []string{"background", "water", "road", "building", "poi-label", "place-label"}

// Viewport is the surface size used by FitBounds and hit testing.
type Viewport struct {
	Width, Height int
}

// hitTolerance is the pixel distance within which a feature is under the pointer.
const hitTolerance = 12

type memorySource struct {
	Source
	index *clusterIndex
}

type memoryListener struct {
	Listener
	h Handler
}

// Image is a registered image.
type Image struct {
	URL      string
	Fallback string
}

// Memory is an in-process Engine. It is safe for concurrent use, but
// handlers run on the goroutine that calls Dispatch.
type Memory struct {
	mu sync.Mutex

	style       string
	loaded      bool
	loadedCh    chan struct{}
	styleLayers []string

	sources  map[string]*memorySource
	layers   []Layer
	images   map[string]Image
	controls []Control
	cursor   string
	fog      *Fog

	listeners []memoryListener
	nextID    uint64

	camera   Camera
	viewport Viewport
	popup    *Popup
}

var _ Engine = (*Memory)(nil)

// NewMemory creates a mirror with the given initial camera. No style is set.
func NewMemory(camera Camera) *Memory {
	return &Memory{
		loadedCh: make(chan struct{}),
		sources:  make(map[string]*memorySource),
		images:   make(map[string]Image),
		camera:   camera,
		viewport: Viewport{Width: 1024, Height: 768},
	}
}

// SetViewport changes the surface size.
func (m *Memory) SetViewport(v Viewport) {
	m.mu.Lock()
	m.viewport = v
	m.mu.Unlock()
}

// SetStyle starts loading a new style. App sources, layers and images are
// dropped; listeners, controls and the popup survive.
func (m *Memory) SetStyle(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.style = url
	m.loaded = false
	m.loadedCh = make(chan struct{})
	m.styleLayers = nil
	m.sources = make(map[string]*memorySource)
	m.layers = nil
	m.images = make(map[string]Image)
	m.fog = nil
}

func (m *Memory) Style() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.style
}

func (m *Memory) IsStyleLoaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

func (m *Memory) StyleLoaded() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadedCh
}

// CompleteStyleLoad finishes loading the current style and dispatches
// style.load. With no layers given, DefaultStyleLayers are used.
func (m *Memory) CompleteStyleLoad(layers ...string) {
	m.Dispatch(Event{Type: StyleLoad, Layers: layers})
}

func (m *Memory) markLoaded(layers []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded {
		return
	}
	if len(layers) == 0 {
		layers = DefaultStyleLayers
	}
	m.styleLayers = slices.Clone(layers)
	m.loaded = true
	close(m.loadedCh)
}

func (m *Memory) AddSource(id string, src Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded {
		return fmt.Errorf("add source %q: %w", id, ErrStyleNotLoaded)
	}
	if _, ok := m.sources[id]; ok {
		return fmt.Errorf("add source %q: %w", id, ErrDuplicateID)
	}
	if src.Type == "" {
		src.Type = "geojson"
	}
	if src.GenerateID && src.Data != nil {
		fc := geojson.NewFeatureCollection()
		for i, f := range src.Data.Features {
			cp := *f
			cp.ID = i
			fc.Append(&cp)
		}
		src.Data = fc
	}
	ms := &memorySource{Source: src}
	if src.Cluster {
		radius, mz := src.ClusterRadius, src.ClusterMaxZoom
		if radius == 0 {
			radius = 50
		}
		if mz == 0 {
			mz = 14
		}
		ms.index = newClusterIndex(src.Data, radius, mz)
	}
	m.sources[id] = ms
	return nil
}

func (m *Memory) RemoveSource(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[id]; !ok {
		return fmt.Errorf("remove source %q: %w", id, ErrNotFound)
	}
	for _, l := range m.layers {
		if l.Source == id {
			return fmt.Errorf("remove source %q used by layer %q: %w", id, l.ID, ErrInUse)
		}
	}
	delete(m.sources, id)
	return nil
}

func (m *Memory) HasSource(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sources[id]
	return ok
}

func (m *Memory) AddLayer(l Layer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded {
		return fmt.Errorf("add layer %q: %w", l.ID, ErrStyleNotLoaded)
	}
	if m.hasLayer(l.ID) {
		return fmt.Errorf("add layer %q: %w", l.ID, ErrDuplicateID)
	}
	if _, ok := m.sources[l.Source]; !ok {
		return fmt.Errorf("add layer %q: source %q: %w", l.ID, l.Source, ErrNotFound)
	}
	l.Layout = cloneProps(l.Layout)
	l.Paint = cloneProps(l.Paint)
	m.layers = append(m.layers, l)
	return nil
}

func (m *Memory) RemoveLayer(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.layerIndex(id); i >= 0 {
		m.layers = slices.Delete(m.layers, i, i+1)
		return nil
	}
	if i := slices.Index(m.styleLayers, id); i >= 0 {
		m.styleLayers = slices.Delete(m.styleLayers, i, i+1)
		return nil
	}
	return fmt.Errorf("remove layer %q: %w", id, ErrNotFound)
}

func (m *Memory) HasLayer(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasLayer(id)
}

func (m *Memory) hasLayer(id string) bool {
	return m.layerIndex(id) >= 0 || slices.Contains(m.styleLayers, id)
}

func (m *Memory) layerIndex(id string) int {
	return slices.IndexFunc(m.layers, func(l Layer) bool { return l.ID == id })
}

// LayerIDs lists style layers followed by app layers, bottom to top.
func (m *Memory) LayerIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := slices.Clone(m.styleLayers)
	for _, l := range m.layers {
		ids = append(ids, l.ID)
	}
	return ids
}

// Layer returns an app layer definition.
func (m *Memory) Layer(id string) (Layer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.layerIndex(id); i >= 0 {
		return m.layers[i], true
	}
	return Layer{}, false
}

func (m *Memory) SetLayoutProperty(layer, name string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.layerIndex(layer)
	if i < 0 {
		return fmt.Errorf("set layout property on %q: %w", layer, ErrNotFound)
	}
	if m.layers[i].Layout == nil {
		m.layers[i].Layout = make(map[string]any)
	}
	m.layers[i].Layout[name] = value
	return nil
}

func (m *Memory) LayoutProperty(layer, name string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.layerIndex(layer)
	if i < 0 {
		return nil, false
	}
	v, ok := m.layers[i].Layout[name]
	return v, ok
}

func (m *Memory) LoadImage(id, url, fallback string) {
	m.mu.Lock()
	m.images[id] = Image{URL: url, Fallback: fallback}
	m.mu.Unlock()
}

func (m *Memory) HasImage(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.images[id]
	return ok
}

// Image returns a registered image.
func (m *Memory) Image(id string) (Image, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.images[id]
	return img, ok
}

func (m *Memory) RemoveImage(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.images[id]; !ok {
		return fmt.Errorf("remove image %q: %w", id, ErrNotFound)
	}
	delete(m.images, id)
	return nil
}

func (m *Memory) AddControl(c Control) {
	m.mu.Lock()
	m.controls = append(m.controls, c)
	m.mu.Unlock()
}

// Controls lists the added controls in order.
func (m *Memory) Controls() []Control {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.controls)
}

func (m *Memory) SetCursor(cursor string) {
	m.mu.Lock()
	m.cursor = cursor
	m.mu.Unlock()
}

// Cursor returns the canvas cursor.
func (m *Memory) Cursor() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

func (m *Memory) SetFog(f Fog) {
	m.mu.Lock()
	m.fog = &f
	m.mu.Unlock()
}

// Fog returns the fog set since the last style change.
func (m *Memory) Fog() (Fog, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fog == nil {
		return Fog{}, false
	}
	return *m.fog, true
}

func (m *Memory) On(typ EventType, layer string, h Handler) Listener {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	l := Listener{id: m.nextID, Type: typ, Layer: layer}
	m.listeners = append(m.listeners, memoryListener{Listener: l, h: h})
	return l
}

func (m *Memory) Off(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = slices.DeleteFunc(m.listeners, func(ml memoryListener) bool { return ml.id == l.id })
}

// ListenerCount reports how many handlers are registered.
func (m *Memory) ListenerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

// Dispatch applies the event to the mirrored state, then calls matching
// handlers in registration order.
func (m *Memory) Dispatch(ev Event) {
	switch ev.Type {
	case StyleLoad:
		m.markLoaded(ev.Layers)
	case MoveEnd:
		if ev.Camera != nil {
			m.mu.Lock()
			m.camera = *ev.Camera
			m.mu.Unlock()
		}
	case Click:
		m.mu.Lock()
		if m.popup != nil && m.popup.Options.CloseOnClick {
			m.popup = nil
		}
		m.mu.Unlock()
	}

	m.mu.Lock()
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()

	for _, l := range listeners {
		if l.Type != ev.Type {
			continue
		}
		if l.Layer == "" {
			l.h(ev)
			continue
		}
		if ev.Type == Click {
			hits := ev.Hits[l.Layer]
			if len(hits) == 0 {
				continue
			}
			scoped := ev
			scoped.Layer = l.Layer
			scoped.Features = hits
			l.h(scoped)
			continue
		}
		if ev.Layer == l.Layer {
			l.h(ev)
		}
	}
}

func (m *Memory) ClusterExpansionZoom(source string, clusterID int, cb func(zoom float64, err error)) {
	m.mu.Lock()
	src, ok := m.sources[source]
	var (
		zoom  float64
		found bool
	)
	if ok && src.index != nil {
		zoom, found = src.index.expansionZoom(clusterID)
	}
	m.mu.Unlock()

	switch {
	case !ok || src.index == nil:
		cb(0, fmt.Errorf("cluster source %q: %w", source, ErrNotFound))
	case !found:
		cb(0, fmt.Errorf("cluster %d: %w", clusterID, ErrNotFound))
	default:
		cb(zoom, nil)
	}
}

func (m *Memory) EaseTo(c CameraOptions) { m.moveTo(c) }
func (m *Memory) FlyTo(c CameraOptions)  { m.moveTo(c) }

func (m *Memory) moveTo(c CameraOptions) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.camera.Center = c.Center
	m.camera.Zoom = clampZoom(c.Zoom)
}

// FitBounds centers on b at the highest zoom that keeps b inside the
// viewport minus padding on every side.
func (m *Memory) FitBounds(b orb.Bound, padding int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.camera.Center = b.Center()

	min0, max0 := worldPixel(orb.Point{b.Min[0], b.Max[1]}, 0), worldPixel(orb.Point{b.Max[0], b.Min[1]}, 0)
	dx, dy := max0[0]-min0[0], max0[1]-min0[1]
	w := float64(m.viewport.Width - 2*padding)
	h := float64(m.viewport.Height - 2*padding)
	if w <= 0 || h <= 0 {
		m.camera.Zoom = 0
		return
	}
	zoom := float64(maxZoom)
	if dx > 0 {
		zoom = math.Min(zoom, math.Log2(w/dx))
	}
	if dy > 0 {
		zoom = math.Min(zoom, math.Log2(h/dy))
	}
	m.camera.Zoom = clampZoom(zoom)
}

func (m *Memory) Camera() Camera {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.camera
}

func (m *Memory) ShowPopup(p Popup) {
	m.mu.Lock()
	m.popup = &p
	m.mu.Unlock()
}

func (m *Memory) SetPopupHTML(html string) {
	m.mu.Lock()
	if m.popup != nil {
		m.popup.HTML = html
	}
	m.mu.Unlock()
}

func (m *Memory) RemovePopup() {
	m.mu.Lock()
	m.popup = nil
	m.mu.Unlock()
}

func (m *Memory) Popup() (Popup, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.popup == nil {
		return Popup{}, false
	}
	return *m.popup, true
}

// RenderedFeatures returns the features an app layer draws at the current
// zoom, after clustering and the layer filter.
func (m *Memory) RenderedFeatures(layer string) []*geojson.Feature {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.renderedFeatures(layer)
}

func (m *Memory) renderedFeatures(layer string) []*geojson.Feature {
	i := m.layerIndex(layer)
	if i < 0 {
		return nil
	}
	l := m.layers[i]
	src := m.sources[l.Source]
	if src == nil || src.Data == nil {
		return nil
	}

	candidates := src.Data.Features
	if src.index != nil {
		candidates = src.index.features(int(math.Floor(m.camera.Zoom)))
	}
	var out []*geojson.Feature
	for _, f := range candidates {
		if Matches(l.Filter, f) {
			out = append(out, f)
		}
	}
	return out
}

// QueryRenderedFeatures returns, per layer, the point features within hit
// tolerance of p. With no layers given every app layer is queried.
func (m *Memory) QueryRenderedFeatures(p orb.Point, layers ...string) map[string][]*geojson.Feature {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(layers) == 0 {
		for _, l := range m.layers {
			layers = append(layers, l.ID)
		}
	}
	target := worldPixel(p, m.camera.Zoom)
	hits := make(map[string][]*geojson.Feature)
	for _, id := range layers {
		for _, f := range m.renderedFeatures(id) {
			pt, ok := f.Geometry.(orb.Point)
			if !ok {
				continue
			}
			px := worldPixel(pt, m.camera.Zoom)
			if math.Hypot(px[0]-target[0], px[1]-target[1]) <= hitTolerance {
				hits[id] = append(hits[id], f)
			}
		}
	}
	return hits
}

// Click dispatches a click at p with the features under it.
func (m *Memory) Click(p orb.Point) {
	m.Dispatch(Event{Type: Click, LngLat: p, Hits: m.QueryRenderedFeatures(p)})
}

// Hover dispatches mouseenter on layer at p with the features under it.
func (m *Memory) Hover(layer string, p orb.Point) {
	hits := m.QueryRenderedFeatures(p, layer)
	m.Dispatch(Event{Type: MouseEnter, Layer: layer, LngLat: p, Features: hits[layer]})
}

// Leave dispatches mouseleave on layer.
func (m *Memory) Leave(layer string) {
	m.Dispatch(Event{Type: MouseLeave, Layer: layer})
}

func clampZoom(z float64) float64 {
	return math.Max(0, math.Min(z, maxZoom))
}

func cloneProps(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
