// Package engine defines how the map core drives a vector-tile map surface.
//
// The surface itself runs in the browser. Engine is the command set the core
// issues against it; Memory is an in-process mirror of the surface state that
// also answers the queries the core needs (style readiness, layer presence,
// cluster expansion). Events travel the other way through Dispatch.
package engine

import (
	"errors"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var (
	// ErrDuplicateID is returned when adding a source or layer whose id exists.
	ErrDuplicateID = errors.New("duplicate id")
	// ErrNotFound is returned when removing or updating an absent id.
	ErrNotFound = errors.New("not found")
	// ErrStyleNotLoaded is returned when a source or layer is added before the
	// style finished loading. The addition is dropped.
	ErrStyleNotLoaded = errors.New("style is not done loading")
	// ErrInUse is returned when removing a source that layers still reference.
	ErrInUse = errors.New("source in use")
)

// Engine is the command surface of one map instance.
type Engine interface {
	SetStyle(url string)
	Style() string
	IsStyleLoaded() bool
	// StyleLoaded is closed once the style requested by the last SetStyle
	// has loaded.
	StyleLoaded() <-chan struct{}

	AddSource(id string, src Source) error
	RemoveSource(id string) error
	HasSource(id string) bool

	AddLayer(l Layer) error
	RemoveLayer(id string) error
	HasLayer(id string) bool
	LayerIDs() []string
	SetLayoutProperty(layer, name string, value any) error
	LayoutProperty(layer, name string) (any, bool)

	// LoadImage registers url under id without waiting for it. fallback is
	// used when url fails to load.
	LoadImage(id, url, fallback string)
	HasImage(id string) bool
	RemoveImage(id string) error

	AddControl(c Control)
	SetCursor(cursor string)
	SetFog(f Fog)

	On(typ EventType, layer string, h Handler) Listener
	Off(l Listener)
	Dispatch(ev Event)

	// ClusterExpansionZoom reports the zoom at which a cluster splits.
	ClusterExpansionZoom(source string, clusterID int, cb func(zoom float64, err error))

	EaseTo(c CameraOptions)
	FlyTo(c CameraOptions)
	FitBounds(b orb.Bound, padding int)
	Camera() Camera

	ShowPopup(p Popup)
	SetPopupHTML(html string)
	RemovePopup()
	Popup() (Popup, bool)
}

// Source is a GeoJSON source definition.
type Source struct {
	Type           string                     `json:"type"`
	Data           *geojson.FeatureCollection `json:"data"`
	Cluster        bool                       `json:"cluster,omitempty"`
	ClusterMaxZoom int                        `json:"clusterMaxZoom,omitempty"`
	ClusterRadius  int                        `json:"clusterRadius,omitempty"`
	GenerateID     bool                       `json:"generateId,omitempty"`
}

// Layer is a style layer definition.
type Layer struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Source string         `json:"source"`
	Filter Expr           `json:"filter,omitempty"`
	Layout map[string]any `json:"layout,omitempty"`
	Paint  map[string]any `json:"paint,omitempty"`
}

// Control is a map UI control.
type Control struct {
	Type    string         `json:"type"`
	Options map[string]any `json:"options,omitempty"`
}

// Fog is the atmosphere configuration applied after a style loads.
type Fog struct {
	Range         [2]float64 `json:"range"`
	Color         string     `json:"color"`
	HorizonBlend  float64    `json:"horizon-blend"`
	HighColor     string     `json:"high-color"`
	SpaceColor    string     `json:"space-color"`
	StarIntensity float64    `json:"star-intensity"`
}

// Camera is the current view.
type Camera struct {
	Center orb.Point `json:"center"`
	Zoom   float64   `json:"zoom"`
	Pitch  float64   `json:"pitch,omitempty"`
}

// CameraOptions is a camera transition target.
type CameraOptions struct {
	Center    orb.Point `json:"center"`
	Zoom      float64   `json:"zoom"`
	Essential bool      `json:"essential,omitempty"`
}

// PopupOptions mirrors the popup constructor options.
type PopupOptions struct {
	CloseOnClick bool   `json:"closeOnClick"`
	CloseButton  bool   `json:"closeButton"`
	CloseOnMove  bool   `json:"closeOnMove"`
	Offset       int    `json:"offset,omitempty"`
	Anchor       string `json:"anchor,omitempty"`
	ClassName    string `json:"className,omitempty"`
}

// Popup is the single popup slot.
type Popup struct {
	LngLat  orb.Point    `json:"lngLat"`
	HTML    string       `json:"html"`
	Options PopupOptions `json:"options"`
}

// EventType names a map event.
type EventType string

const (
	Click            EventType = "click"
	MouseEnter       EventType = "mouseenter"
	MouseLeave       EventType = "mouseleave"
	StyleLoad        EventType = "style.load"
	MoveEnd          EventType = "moveend"
	Geolocate        EventType = "geolocate"
	GeolocateError   EventType = "geolocate.error"
	ClusterExpansion EventType = "cluster.expansion"
	PopupAction      EventType = "popup.action"
)

// Event is a map event. Which fields are set depends on Type.
type Event struct {
	Type   EventType `json:"type"`
	Layer  string    `json:"layer,omitempty"`
	LngLat orb.Point `json:"lngLat"`

	// Features holds the features under the pointer for Layer. Hits holds
	// them per layer for clicks; layer-scoped click handlers only fire when
	// their layer has hits.
	Features []*geojson.Feature            `json:"features,omitempty"`
	Hits     map[string][]*geojson.Feature `json:"hits,omitempty"`

	Camera *Camera    `json:"camera,omitempty"` // moveend
	Coords *orb.Point `json:"coords,omitempty"` // geolocate
	Layers []string   `json:"layers,omitempty"` // style.load: style layer ids

	RequestID int     `json:"requestId,omitempty"` // cluster.expansion
	Zoom      float64 `json:"zoom,omitempty"`

	Category string `json:"category,omitempty"` // popup.action
	Code     string `json:"code,omitempty"`

	Error string `json:"error,omitempty"`
}

// Handler receives dispatched events.
type Handler func(Event)

// Listener identifies a registered handler for Off.
type Listener struct {
	id    uint64
	Type  EventType
	Layer string
}

// CursorPointer is the cursor shown over interactive layers.
const CursorPointer = "pointer"
