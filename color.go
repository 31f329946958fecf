package pdfstamp

import (
	"math"
	"strconv"
	"strings"
)

// Color is an RGB color with channels in [0, 1].
type Color struct {
	R, G, B float64
}

// Black is the color used whenever a color spec is absent or malformed.
var Black = Color{}

// RGB255 returns the channels scaled to 0-255 for drawing APIs that take
// integer components.
func (c Color) RGB255() (r, g, b int) {
	return to255(c.R), to255(c.G), to255(c.B)
}

func to255(v float64) int {
	return int(math.Round(clamp01(v) * 255))
}

// ParseColor resolves a color spec. Accepted forms are a 3-tuple of channel
// values in [0, 1] (clamped) and a hex string "#rgb" or "#rrggbb" where a
// short tail is zero-padded. Anything else yields Black.
func ParseColor(spec any) Color {
	switch v := spec.(type) {
	case nil:
		return Black
	case Color:
		return Color{clamp01(v.R), clamp01(v.G), clamp01(v.B)}
	case string:
		return parseHex(v)
	case [3]float64:
		return Color{clamp01(v[0]), clamp01(v[1]), clamp01(v[2])}
	case []float64:
		if len(v) != 3 {
			return Black
		}
		return Color{clamp01(v[0]), clamp01(v[1]), clamp01(v[2])}
	case []any:
		if len(v) != 3 {
			return Black
		}
		var ch [3]float64
		for i, x := range v {
			f, ok := toFloat(x)
			if !ok {
				return Black
			}
			ch[i] = clamp01(f)
		}
		return Color{ch[0], ch[1], ch[2]}
	}
	return Black
}

// ValidColorSpec reports whether spec has one of the shapes ParseColor
// understands. A well-shaped spec may still resolve to Black.
func ValidColorSpec(spec any) bool {
	switch v := spec.(type) {
	case nil, string, Color, [3]float64:
		return true
	case []float64:
		return len(v) == 3
	case []any:
		if len(v) != 3 {
			return false
		}
		for _, x := range v {
			if _, ok := toFloat(x); !ok {
				return false
			}
		}
		return true
	}
	return false
}

func parseHex(s string) Color {
	if !strings.HasPrefix(s, "#") {
		return Black
	}
	hex := s[1:]
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) < 6 {
		hex += strings.Repeat("0", 6-len(hex))
	}
	hex = hex[:6]

	var ch [3]float64
	for i := range ch {
		n, err := strconv.ParseUint(hex[i*2:i*2+2], 16, 8)
		if err != nil {
			return Black
		}
		ch[i] = float64(n) / 255
	}
	return Color{ch[0], ch[1], ch[2]}
}

func toFloat(x any) (float64, bool) {
	switch n := x.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint32:
		return float64(n), true
	}
	return 0, false
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
