package track

import (
	"fmt"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// DefaultLightenStep is the per-point lightening used for path highlights.
const DefaultLightenStep = 0.15

// Lighten moves hex toward white by amount (0..1) of the remaining HSL
// lightness. Hue and saturation are kept.
func Lighten(hex string, amount float64) (string, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return "", fmt.Errorf("parse colour %q: %w", hex, err)
	}
	h, s, l := c.Hsl()
	l += (1 - l) * math.Max(0, math.Min(amount, 1))
	return colorful.Hsl(h, s, l).Clamped().Hex(), nil
}

// Lightness returns the HSL lightness of hex.
func Lightness(hex string) (float64, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return 0, fmt.Errorf("parse colour %q: %w", hex, err)
	}
	_, _, l := c.Hsl()
	return l, nil
}

// Gradient returns a recoloured copy of path in which point k is lightened
// by k*step. Point 0 keeps its base colour; unparseable colours are left
// untouched.
func Gradient(path []Observation, step float64) []Observation {
	out := make([]Observation, len(path))
	copy(out, path)
	if step <= 0 {
		return out
	}
	for i := 1; i < len(out); i++ {
		c, err := Lighten(out[i].Color, step*float64(i))
		if err != nil {
			continue
		}
		out[i].Color = c
	}
	return out
}
