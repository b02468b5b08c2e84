package markers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIcon(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"museum", "/images/map/museums-marker.png"},
		{"MUSEUM", "/images/map/museums-marker.png"},
		{"Alojamientos", "/images/map/accommodations-marker.png"},
		{"Espacios Naturales", "/images/map/naturals-marker.png"},
		{"locality", DefaultIcon},
		{"", DefaultIcon},
		{"museums", DefaultIcon},
		{" museum", DefaultIcon},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, Icon(tt.key))
		})
	}
}

func TestImage(t *testing.T) {
	assert.Equal(t, "/images/default/default-cave.jpg", Image("Cave"))
	assert.Equal(t, DefaultImage, Image("locality"))
}
