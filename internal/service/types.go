// Package service contains the data model and the external collaborators the
// map core reads from: resource queries, routing, view preferences.
package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"
)

// Category is the fixed enumeration of resource collections.
type Category string

const (
	Accommodation Category = "accommodation"
	Cave          Category = "cave"
	Cultural      Category = "cultural"
	EventCategory Category = "event"
	Fair          Category = "fair"
	Museum        Category = "museum"
	Natural       Category = "natural"
	Restaurant    Category = "restaurant"
	Locality      Category = "locality"
)

// Categories lists every category in display order.
var Categories = []Category{Accommodation, Cave, Cultural, EventCategory, Fair, Museum, Natural, Restaurant, Locality}

// categoryLabels maps the upstream Spanish collection labels onto categories.
var categoryLabels = map[string]Category{
	"alojamientos":                       Accommodation,
	"cuevas y restos arqueológicos":      Cave,
	"edificios religiosos y castillos":   Cultural,
	"eventos":                            EventCategory,
	"parques temáticos":                  Fair,
	"museos y centros de interpretación": Museum,
	"espacios naturales":                 Natural,
	"restaurantes":                       Restaurant,
	"localidades":                        Locality,
}

// ParseCategory accepts an English key or an upstream label, case-insensitively.
func ParseCategory(s string) (Category, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for _, c := range Categories {
		if string(c) == key {
			return c, nil
		}
	}
	if c, ok := categoryLabels[key]; ok {
		return c, nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Profile is the travel mode used for routing.
type Profile string

const (
	Driving Profile = "driving"
	Cycling Profile = "cycling"
	Walking Profile = "walking"
)

// ParseProfile validates a travel profile.
func ParseProfile(s string) (Profile, error) {
	switch p := Profile(strings.ToLower(s)); p {
	case Driving, Cycling, Walking:
		return p, nil
	}
	return "", fmt.Errorf("unknown travel profile %q", s)
}

// StyleMode is the day/night map style preference.
type StyleMode string

const (
	Day   StyleMode = "light"
	Night StyleMode = "dark"
)

// Toggle returns the other style mode.
func (m StyleMode) Toggle() StyleMode {
	if m == Night {
		return Day
	}
	return Night
}

// OptionalFloat is a coordinate that the upstream may send as a number, a
// numeric string, an empty string or null.
type OptionalFloat struct {
	Value float64
	Valid bool
}

// Float returns a valid OptionalFloat.
func Float(v float64) OptionalFloat { return OptionalFloat{Value: v, Valid: true} }

func (f *OptionalFloat) UnmarshalJSON(data []byte) error {
	*f = OptionalFloat{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil // unparseable coordinates exclude the record from the map
		}
		*f = Float(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

func (f OptionalFloat) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// Image is a resource thumbnail.
type Image struct {
	Source string `json:"fuente" doc:"Image URL"`
	Title  string `json:"titulo,omitempty" doc:"Image title"`
}

// PointRecord is one discoverable resource as returned by the query service.
// Records are immutable for a render cycle and replaced wholesale per query.
type PointRecord struct {
	ID           int64         `json:"id" doc:"Resource identifier"`
	Category     Category      `json:"coleccion" doc:"Resource category"`
	Code         string        `json:"codigo,omitempty" doc:"Code used in the detail page link"`
	Name         string        `json:"nombre" doc:"Display name"`
	Subtype      string        `json:"nombre_subtipo_recurso,omitempty" doc:"Subtype label"`
	Province     string        `json:"nombre_provincia,omitempty" doc:"Province name"`
	Municipality string        `json:"nombre_municipio,omitempty" doc:"Municipality name"`
	Longitude    OptionalFloat `json:"longitud" doc:"Longitude (WGS84)"`
	Latitude     OptionalFloat `json:"latitud" doc:"Latitude (WGS84)"`
	Images       []Image       `json:"imagenes,omitempty" doc:"Images"`
}

// Placeable reports whether the record has both coordinates.
func (r PointRecord) Placeable() bool {
	return r.Longitude.Valid && r.Latitude.Valid
}

// Point returns the record position as lon/lat.
func (r PointRecord) Point() orb.Point {
	return orb.Point{r.Longitude.Value, r.Latitude.Value}
}

// Filters are the query-string filters forwarded to the resource query service.
type Filters map[string]string

// Stop is one itinerary step. Index is the only field reordering touches.
type Stop struct {
	Index  int         `json:"indice" doc:"Zero-based position in the itinerary"`
	Notes  string      `json:"indicaciones,omitempty" doc:"Step directions"`
	Record PointRecord `json:"recurso" doc:"Resource visited at this step"`
}

// Route is a computed path for the current stop sequence and profile.
type Route struct {
	Coordinates orb.LineString
	Distance    float64 // meters, when the router reports it
	Duration    float64 // seconds, when the router reports it
}

// ViewPreferences is the persisted per-user map state.
type ViewPreferences struct {
	Style  StyleMode `json:"style" enum:"light,dark" default:"light" doc:"Map style mode"`
	Center orb.Point `json:"center" doc:"Last camera center as [lon, lat]"`
	Zoom   float64   `json:"zoom" minimum:"0" maximum:"22" doc:"Last camera zoom"`
}

// Schema describes OptionalFloat as a nullable number in the OpenAPI document.
func (OptionalFloat) Schema(r huma.Registry) *huma.Schema {
	return &huma.Schema{Type: huma.TypeNumber, Nullable: true}
}
