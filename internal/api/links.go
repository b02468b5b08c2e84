package api

// Links maps operation paths to their RFC 8288 Link header values.
// Enables restish hypermedia navigation via `restish links <url>`.
var Links = map[string][]string{
	"/health": {
		`</api/v1/info>; rel="info"`,
		`</api/v1/points>; rel="points"`,
		`</api/v1/map/sessions>; rel="sessions"`,
		`</openapi.json>; rel="service-desc"`,
		`</docs>; rel="service-doc"`,
	},
	"/api/v1/info": {
		`</health>; rel="up"`,
	},
	"/api/v1/points": {
		`</api/v1/points/geojson>; rel="alternate"; type="application/geo+json"`,
		`</health>; rel="up"`,
	},
	"/api/v1/points/geojson": {
		`</api/v1/points>; rel="alternate"; type="application/json"`,
	},
	"/api/v1/icons/{category}": {
		`</api/v1/points>; rel="related"`,
	},
	"/api/v1/map/sessions": {
		`</api/v1/map/events>; rel="monitor"`,
		`</health>; rel="up"`,
	},
	"/api/v1/map/sessions/{id}": {
		`</api/v1/map/sessions>; rel="collection"`,
	},
}
