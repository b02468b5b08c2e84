package service

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Feature property names. They match the upstream record fields so a
// feature carries everything the popup shows.
const (
	PropID           = "id"
	PropCategory     = "coleccion"
	PropCode         = "codigo"
	PropName         = "nombre"
	PropSubtype      = "nombre_subtipo_recurso"
	PropProvince     = "nombre_provincia"
	PropMunicipality = "nombre_municipio"
	PropImages       = "imagenes"
)

// ToFeatureCollection projects placeable records onto point features.
// Records missing either coordinate are skipped.
func ToFeatureCollection(records []PointRecord) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range records {
		if !r.Placeable() {
			continue
		}
		fc.Append(RecordFeature(r))
	}
	return fc
}

// RecordFeature builds the point feature for one record.
func RecordFeature(r PointRecord) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{r.Longitude.Value, r.Latitude.Value})
	f.Properties[PropID] = r.ID
	f.Properties[PropCategory] = string(r.Category)
	f.Properties[PropCode] = r.Code
	f.Properties[PropName] = r.Name
	f.Properties[PropSubtype] = r.Subtype
	f.Properties[PropProvince] = r.Province
	f.Properties[PropMunicipality] = r.Municipality
	images := r.Images
	if images == nil {
		images = []Image{}
	}
	f.Properties[PropImages] = images
	return f
}

// FeatureID reads the numeric id property, which arrives as int64 from
// RecordFeature and as float64 from decoded JSON.
func FeatureID(f *geojson.Feature) (int64, bool) {
	if f == nil {
		return 0, false
	}
	switch v := f.Properties[PropID].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}
