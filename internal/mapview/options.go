package mapview

import (
	"time"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-tour/internal/config"
	"github.com/joeblew999/plat-tour/internal/service"
)

// App-owned source, layer and image ids.
const (
	SourceResources   = "resources"
	LayerClusters     = "clusters"
	LayerClusterCount = "cluster-count"
	LayerUnclustered  = "unclustered-points"
	ImageMarker       = "marker"

	SourceRoute  = "route"
	LayerRoute   = "route"
	LayerOutline = "outline"

	SourceStops     = "stops"
	LayerStopPoints = "stop-points"
	LayerStopLabels = "stop-labels"

	// StyleLayerPOI is the style's own point-of-interest label layer,
	// removed on every style load so it does not compete with markers.
	StyleLayerPOI = "poi-label"
)

const (
	IconSizeSelected = 0.045
	IconSizeDefault  = 0.035
)

// PlanPitch tilts the itinerary map.
const PlanPitch = 45

// Options configure one map surface. They are read once on mount; only
// Style changes afterwards, through ToggleStyle.
type Options struct {
	Style      service.StyleMode
	DayStyle   string
	NightStyle string

	Center orb.Point
	Zoom   float64
	Pitch  float64
	// DefaultCenter is where an empty result set sends the camera.
	DefaultCenter orb.Point

	Category       service.Category
	Profile        service.Profile
	ClusterRadius  int
	ClusterMaxZoom int
	FitPadding     int

	PollInterval time.Duration
	MaxRetries   int

	KeepSelection bool

	// PreferenceKey is where style and camera changes are persisted.
	// Empty disables persistence.
	PreferenceKey string
}

// OptionsFromConfig builds options for the explore map, or for the
// itinerary map when plan is set.
func OptionsFromConfig(cfg config.MapConfig, plan bool) Options {
	o := Options{
		Style:          service.Day,
		DayStyle:       cfg.DayStyle,
		NightStyle:     cfg.NightStyle,
		Center:         orb.Point{cfg.CenterLon, cfg.CenterLat},
		Zoom:           cfg.Zoom,
		DefaultCenter:  orb.Point{cfg.CenterLon, cfg.CenterLat},
		Profile:        service.Driving,
		ClusterRadius:  cfg.ClusterRadius,
		ClusterMaxZoom: cfg.ClusterMaxZoom,
		FitPadding:     cfg.FitPadding,
		PollInterval:   cfg.ReadyPollInterval,
		MaxRetries:     cfg.ReadyMaxRetries,
		KeepSelection:  cfg.KeepSelection,
	}
	if plan {
		o.DayStyle = cfg.PlanDayStyle
		o.NightStyle = cfg.PlanNightStyle
		o.Pitch = PlanPitch
	}
	return o
}

// WithPreferences applies persisted view state.
func (o Options) WithPreferences(p service.ViewPreferences) Options {
	if p.Style == service.Day || p.Style == service.Night {
		o.Style = p.Style
	}
	if p.Zoom > 0 {
		o.Center = p.Center
		o.Zoom = p.Zoom
	}
	return o
}

func (o Options) withDefaults() Options {
	if o.Style == "" {
		o.Style = service.Day
	}
	if o.DayStyle == "" {
		o.DayStyle = "mapbox://styles/mapbox/streets-v11"
	}
	if o.NightStyle == "" {
		o.NightStyle = "mapbox://styles/mapbox/dark-v10"
	}
	if o.DefaultCenter == (orb.Point{}) {
		o.DefaultCenter = service.DefaultCenter
	}
	if o.Profile == "" {
		o.Profile = service.Driving
	}
	if o.ClusterRadius <= 0 {
		o.ClusterRadius = 60
	}
	if o.ClusterMaxZoom <= 0 {
		o.ClusterMaxZoom = 12
	}
	if o.FitPadding <= 0 {
		o.FitPadding = 100
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 200 * time.Millisecond
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 150
	}
	return o
}

func (o Options) styleURL(m service.StyleMode) string {
	if m == service.Night {
		return o.NightStyle
	}
	return o.DayStyle
}
