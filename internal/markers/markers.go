// Package markers resolves category keys to marker icon and placeholder image assets.
package markers

import "strings"

const (
	// DefaultIcon is used for any category key not in the icon table.
	DefaultIcon = "/images/map/default-marker.png"
	// DefaultImage is used for any category key not in the image table.
	DefaultImage = "/images/default/default-image.jpg"
)

// icons accepts both the English category keys and the Spanish collection
// labels the upstream catalog uses.
var icons = map[string]string{
	"alojamientos":                       "/images/map/accommodations-marker.png",
	"cuevas y restos arqueológicos":      "/images/map/caves-marker.png",
	"edificios religiosos y castillos":   "/images/map/culturals-marker.png",
	"eventos":                            "/images/map/events-marker.png",
	"parques temáticos":                  "/images/map/fairs-marker.png",
	"museos y centros de interpretación": "/images/map/museums-marker.png",
	"espacios naturales":                 "/images/map/naturals-marker.png",
	"restaurantes":                       "/images/map/restaurants-marker.png",
	"accommodation":                      "/images/map/accommodations-marker.png",
	"cave":                               "/images/map/caves-marker.png",
	"cultural":                           "/images/map/culturals-marker.png",
	"event":                              "/images/map/events-marker.png",
	"fair":                               "/images/map/fairs-marker.png",
	"museum":                             "/images/map/museums-marker.png",
	"natural":                            "/images/map/naturals-marker.png",
	"restaurant":                         "/images/map/restaurants-marker.png",
}

var images = map[string]string{
	"accommodation": "/images/default/default-accommodation.jpg",
	"cave":          "/images/default/default-cave.jpg",
	"cultural":      "/images/default/default-cultural.jpg",
	"event":         "/images/default/default-event.jpg",
	"fair":          "/images/default/default-fair.jpg",
	"museum":        "/images/default/default-museum.jpg",
	"natural":       "/images/default/default-natural.jpg",
	"restaurant":    "/images/default/default-restaurant.jpg",
}

// Icon returns the marker icon path for a category key. Matching is exact
// after lower-casing; anything else gets DefaultIcon.
func Icon(key string) string {
	if p, ok := icons[strings.ToLower(key)]; ok {
		return p
	}
	return DefaultIcon
}

// Image returns the placeholder thumbnail for a category key.
func Image(key string) string {
	if p, ok := images[strings.ToLower(key)]; ok {
		return p
	}
	return DefaultImage
}
