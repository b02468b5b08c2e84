// Package popup builds the marker popup shown for a selected resource.
package popup

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/url"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-tour/internal/engine"
	"github.com/joeblew999/plat-tour/internal/geoutil"
	"github.com/joeblew999/plat-tour/internal/markers"
	"github.com/joeblew999/plat-tour/internal/service"
	"github.com/joeblew999/plat-tour/internal/templates"
)

//go:embed fragments/*.html
var fragments embed.FS

// Options are the popup constructor options used for resource popups.
var Options = engine.PopupOptions{
	CloseOnClick: true,
	CloseButton:  false,
	CloseOnMove:  false,
	Offset:       30,
	Anchor:       "left",
	ClassName:    "map-popup",
}

// Content is everything the popup displays for one feature.
type Content struct {
	Category     string
	Code         string
	Name         string
	Subtype      string
	Province     string
	Municipality string
	Image        string
	ImageAlt     string
	Fallback     string
	Distance     string
	DetailURL    string
}

// Build reads the display fields from f. user is the last geolocation fix
// and may be nil, which omits the distance.
func Build(f *geojson.Feature, user *orb.Point) Content {
	if f == nil {
		return Content{}
	}
	c := Content{
		Category:     str(f, service.PropCategory),
		Code:         str(f, service.PropCode),
		Name:         str(f, service.PropName),
		Subtype:      str(f, service.PropSubtype),
		Province:     str(f, service.PropProvince),
		Municipality: str(f, service.PropMunicipality),
	}
	c.Fallback = markers.Image(c.Category)
	c.Image = c.Fallback
	if imgs := images(f); len(imgs) > 0 && imgs[0].Source != "" {
		c.Image = imgs[0].Source
		c.ImageAlt = imgs[0].Title
	}
	c.DetailURL = "/resource/" + url.PathEscape(c.Category) + "/" + url.PathEscape(c.Code)

	if p, ok := f.Geometry.(orb.Point); ok && user != nil {
		c.Distance = geoutil.Distance(p.Lat(), p.Lon(), user.Lat(), user.Lon()) + " km"
	}
	return c
}

func str(f *geojson.Feature, key string) string {
	switch v := f.Properties[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// images accepts the typed slice set by service.RecordFeature as well as the
// generic and stringified forms decoded from browser events.
func images(f *geojson.Feature) []service.Image {
	switch v := f.Properties[service.PropImages].(type) {
	case []service.Image:
		return v
	case string:
		var out []service.Image
		if json.Unmarshal([]byte(v), &out) == nil {
			return out
		}
	case []any:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		var out []service.Image
		if json.Unmarshal(raw, &out) == nil {
			return out
		}
	}
	return nil
}

// Builder renders popup HTML.
type Builder struct {
	r *templates.Renderer
}

// NewBuilder parses the embedded popup template.
func NewBuilder() (*Builder, error) {
	r, err := templates.New(fragments, "fragments/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse popup template: %w", err)
	}
	return &Builder{r: r}, nil
}

// NewBuilderFromDir parses a "popup" template from the *.html files of dir,
// replacing the embedded one.
func NewBuilderFromDir(dir string) (*Builder, error) {
	r, err := templates.NewFromDir(dir)
	if err != nil {
		return nil, fmt.Errorf("parse popup templates in %s: %w", dir, err)
	}
	return &Builder{r: r}, nil
}

// HTML renders the popup for f. Rendering never fails on missing fields;
// an execution error yields the bare name.
func (b *Builder) HTML(f *geojson.Feature, user *orb.Point) string {
	c := Build(f, user)
	html, err := b.r.Render("popup", c)
	if err != nil {
		return "<h6>" + template.HTMLEscapeString(c.Name) + "</h6>"
	}
	return html
}
