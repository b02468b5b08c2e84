package mapview

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-tour/internal/engine"
	"github.com/joeblew999/plat-tour/internal/popup"
	"github.com/joeblew999/plat-tour/internal/service"
)

// SelectionState is the popup/selection state.
type SelectionState string

const (
	Idle         SelectionState = "idle"
	HoverPreview SelectionState = "hover-preview"
	Committed    SelectionState = "committed"
)

// Selection owns the single popup slot and the enlarged-icon affordance.
// It is confined to the controller goroutine.
type Selection struct {
	eng    engine.Engine
	popups *popup.Builder
	log    zerolog.Logger

	state   SelectionState
	feature *geojson.Feature
	user    *orb.Point
}

// NewSelection creates an idle selection.
func NewSelection(eng engine.Engine, popups *popup.Builder, log zerolog.Logger) *Selection {
	return &Selection{eng: eng, popups: popups, log: log, state: Idle}
}

// State returns the current state and selected feature, if any.
func (s *Selection) State() (SelectionState, *geojson.Feature) {
	return s.state, s.feature
}

// SelectedID returns the id of the selected feature.
func (s *Selection) SelectedID() (int64, bool) {
	return service.FeatureID(s.feature)
}

// IconSize is the icon-size layout expression for the current selection.
// Only a committed selection enlarges its icon.
func (s *Selection) IconSize() engine.Expr {
	var id any = 0
	if s.state == Committed {
		if fid, ok := s.SelectedID(); ok {
			id = fid
		}
	}
	return engine.Match(engine.Get(service.PropID), id, IconSizeSelected, IconSizeDefault)
}

// ClickEmpty handles a map click that hit no marker.
func (s *Selection) ClickEmpty() {
	s.state = Idle
	s.feature = nil
	s.eng.RemovePopup()
	s.applyIconSize()
}

// Commit handles a marker click. The previous popup is removed before the
// new one opens and the camera flies to f keeping the current zoom.
func (s *Selection) Commit(f *geojson.Feature) {
	pt, ok := f.Geometry.(orb.Point)
	if !ok {
		return
	}
	s.state = Committed
	s.feature = f
	s.applyIconSize()
	s.eng.RemovePopup()
	s.eng.FlyTo(engine.CameraOptions{Center: pt, Zoom: s.eng.Camera().Zoom, Essential: true})
	s.show()
}

// HoverEnter previews f unless a selection is committed.
func (s *Selection) HoverEnter(f *geojson.Feature) {
	if s.state == Committed || f == nil {
		return
	}
	if _, ok := f.Geometry.(orb.Point); !ok {
		return
	}
	s.state = HoverPreview
	s.feature = f
	s.eng.RemovePopup()
	s.show()
}

// HoverLeave ends a hover preview. A committed selection is unaffected.
func (s *Selection) HoverLeave() {
	if s.state != HoverPreview {
		return
	}
	s.state = Idle
	s.feature = nil
	s.eng.RemovePopup()
}

// Clear drops any selection and closes the popup.
func (s *Selection) Clear() {
	s.state = Idle
	s.feature = nil
	s.eng.RemovePopup()
}

// Rebind swaps the selected feature for its replacement after a rebuild,
// or clears the selection when the feature is gone.
func (s *Selection) Rebind(lookup func(int64) *geojson.Feature) {
	id, ok := s.SelectedID()
	if !ok {
		return
	}
	if f := lookup(id); f != nil {
		s.feature = f
		return
	}
	s.Clear()
}

// Reapply restores the enlarged icon after the marker layer is rebuilt.
func (s *Selection) Reapply() {
	if s.state == Committed {
		s.applyIconSize()
	}
}

// SetUserLocation records the last geolocation fix, nil when unavailable,
// and refreshes the open popup's distance line.
func (s *Selection) SetUserLocation(p *orb.Point) {
	s.user = p
	if s.feature == nil {
		return
	}
	if _, open := s.eng.Popup(); open {
		s.eng.SetPopupHTML(s.popups.HTML(s.feature, s.user))
	}
}

// UserLocation returns the last geolocation fix.
func (s *Selection) UserLocation() *orb.Point {
	return s.user
}

func (s *Selection) show() {
	pt := s.feature.Geometry.(orb.Point)
	s.eng.ShowPopup(engine.Popup{
		LngLat:  pt,
		HTML:    s.popups.HTML(s.feature, s.user),
		Options: popup.Options,
	})
}

func (s *Selection) applyIconSize() {
	if !s.eng.HasLayer(LayerUnclustered) {
		return
	}
	if err := s.eng.SetLayoutProperty(LayerUnclustered, "icon-size", s.IconSize()); err != nil {
		s.log.Debug().Err(err).Msg("icon size not applied")
	}
}
