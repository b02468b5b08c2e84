package geoutil

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistance_IdenticalIsBareZero(t *testing.T) {
	coords := [][2]float64{{0, 0}, {43.263, -2.935}, {-33.86, 151.2}, {89.9, 179.9}}
	for _, c := range coords {
		assert.Equal(t, "0", Distance(c[0], c[1], c[0], c[1]))
	}
}

func TestDistance_Symmetric(t *testing.T) {
	pairs := []struct{ lat1, lon1, lat2, lon2 float64 }{
		{43.263, -2.935, 42.846, -2.672},
		{43.318, -1.981, 40.416, -3.703},
		{0, 0, 0.001, 0.001},
		{-33.86, 151.2, 51.5, -0.12},
	}
	for _, p := range pairs {
		assert.Equal(t, Distance(p.lat1, p.lon1, p.lat2, p.lon2), Distance(p.lat2, p.lon2, p.lat1, p.lon1))
	}
}

func TestDistance_KnownValues(t *testing.T) {
	cases := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   string
	}{
		{"vitoria to bilbao", 42.983333, -2.616667, 43.263, -2.935, "40.43"},
		{"madrid to bilbao", 40.416, -3.703, 43.263, -2.935, "322.88"},
		{"short hop", 0, 0, 0.001, 0.001, "0.16"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Distance(tc.lat1, tc.lon1, tc.lat2, tc.lon2))
		})
	}
}

func TestDistance_Format(t *testing.T) {
	// Bilbao to Vitoria-Gasteiz is roughly 50km.
	d := DistanceKm(orb.Point{-2.935, 43.263}, orb.Point{-2.672, 42.846})
	assert.InDelta(t, 51, d, 3)

	s := Distance(43.263, -2.935, 42.846, -2.672)
	require.Len(t, s[len(s)-3:], 3)
	assert.Equal(t, byte('.'), s[len(s)-3])
}

func TestBounds(t *testing.T) {
	_, ok := Bounds(nil)
	assert.False(t, ok)

	b, ok := Bounds([]orb.Point{{-2.9, 43.2}})
	require.True(t, ok)
	assert.Equal(t, orb.Point{-2.9, 43.2}, b.Min)
	assert.Equal(t, orb.Point{-2.9, 43.2}, b.Max)

	b, ok = Bounds([]orb.Point{{-2.9, 43.2}, {-1.9, 43.3}, {-2.6, 42.8}})
	require.True(t, ok)
	assert.Equal(t, orb.Point{-2.9, 42.8}, b.Min)
	assert.Equal(t, orb.Point{-1.9, 43.3}, b.Max)
}

func TestValidLonLat(t *testing.T) {
	assert.True(t, ValidLonLat(orb.Point{-2.6, 42.9}))
	assert.False(t, ValidLonLat(orb.Point{-200, 42.9}))
	assert.False(t, ValidLonLat(orb.Point{0, 91}))
}
