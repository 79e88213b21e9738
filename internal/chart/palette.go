// Package chart turns normalized rows and boxplot series into renderable
// chart specs, tooltips and PNG/SVG images.
package chart

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/wcharczuk/go-chart/v2/drawing"
)

// BasePalette is used, in order, for the first twelve series.
var BasePalette = []string{
	"#1B5A7D", "#4CAF50", "#FFC107", "#FF6B6B", "#4ECDC4", "#45B7D1",
	"#FF9F43", "#EC3B83", "#8884d8", "#82ca9d", "#ffc658", "#ff7300",
}

// goldenAngle spreads generated hues so neighbours stay distinct.
const goldenAngle = 137.508

// ColorAt returns the color for series index i. Indexes beyond the base
// palette get an HSL color derived only from i.
func ColorAt(i int) string {
	if i < 0 {
		i = -i
	}
	if i < len(BasePalette) {
		return BasePalette[i]
	}
	h := math.Mod(float64(i)*goldenAngle, 360)
	s := 65 + (i%3)*10
	l := 45 + (i%5)*5
	return fmt.Sprintf("hsl(%s, %d%%, %d%%)", strconv.FormatFloat(h, 'f', -1, 64), s, l)
}

// Palette returns n colors.
func Palette(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = ColorAt(i)
	}
	return out
}

// ParseColor converts a "#rrggbb" or "hsl(h, s%, l%)" string into a drawing
// color. Unparseable input yields opaque black.
func ParseColor(c string) drawing.Color {
	c = strings.TrimSpace(c)
	if strings.HasPrefix(c, "hsl(") && strings.HasSuffix(c, ")") {
		parts := strings.Split(strings.TrimSuffix(strings.TrimPrefix(c, "hsl("), ")"), ",")
		if len(parts) == 3 {
			h, e1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
			s, e2 := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(parts[1]), "%"), 64)
			l, e3 := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(parts[2]), "%"), 64)
			if e1 == nil && e2 == nil && e3 == nil {
				r, g, b := hslToRGB(h, s/100, l/100)
				return drawing.Color{R: r, G: g, B: b, A: 255}
			}
		}
		return drawing.ColorBlack
	}
	hex := strings.TrimPrefix(c, "#")
	if len(hex) != 6 {
		return drawing.ColorBlack
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return drawing.ColorBlack
	}
	return drawing.Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
}

func hslToRGB(h, s, l float64) (uint8, uint8, uint8) {
	h = math.Mod(h, 360) / 360
	if s == 0 {
		v := uint8(math.Round(l * 255))
		return v, v, v
	}
	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	conv := func(t float64) uint8 {
		if t < 0 {
			t++
		}
		if t > 1 {
			t--
		}
		var v float64
		switch {
		case t < 1.0/6:
			v = p + (q-p)*6*t
		case t < 0.5:
			v = q
		case t < 2.0/3:
			v = p + (q-p)*(2.0/3-t)*6
		default:
			v = p
		}
		return uint8(math.Round(v * 255))
	}
	return conv(h + 1.0/3), conv(h), conv(h - 1.0/3)
}
