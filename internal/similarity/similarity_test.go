package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore_Identical(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1.0, Score("Câble HDMI 2m", "cable hdmi 2m"))
	assert.Equal(t, 1.0, Score("USB-C  Hub", "usb c hub"))
}

func TestScore_Empty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, Score("", "Câble HDMI"))
	assert.Equal(t, 0.0, Score("Câble HDMI", ""))
	assert.Equal(t, 0.0, Score("  ", "  "))
}

func TestScore_Close(t *testing.T) {
	t.Parallel()

	s := Score("Câble HDMI 2m", "Câble HDMI")
	assert.Greater(t, s, 0.7)
	assert.Less(t, s, 1.0)
}

func TestScore_Distant(t *testing.T) {
	t.Parallel()

	s := Score("Câble HDMI 2m", "Souris sans fil")
	assert.Less(t, s, 0.5)
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Câble HDMI, 2m (noir)", "cable hdmi 2m noir"},
		{"  USB--C ", "usb c"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in))
	}
}
