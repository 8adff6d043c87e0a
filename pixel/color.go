package pixel

import (
	"fmt"
	"image/color"
	"strconv"
)

// ParseHex parses "#rgb", "#rgba", "#rrggbb" or "#rrggbbaa" (the leading '#'
// is optional). Transparent parses as the zero color. ok is false for
// anything else.
func ParseHex(c Color) (color.NRGBA, bool) {
	if c.IsTransparent() {
		return color.NRGBA{}, true
	}
	s := string(c)
	if s[0] == '#' {
		s = s[1:]
	}

	var r, g, b, a uint64
	a = 255
	var err error
	switch len(s) {
	case 3, 4:
		vals := make([]uint64, len(s))
		for i := range s {
			if vals[i], err = strconv.ParseUint(s[i:i+1], 16, 8); err != nil {
				return color.NRGBA{}, false
			}
			vals[i] *= 17
		}
		r, g, b = vals[0], vals[1], vals[2]
		if len(s) == 4 {
			a = vals[3]
		}
	case 6, 8:
		v, err := strconv.ParseUint(s, 16, 32)
		if err != nil {
			return color.NRGBA{}, false
		}
		if len(s) == 8 {
			r, g, b, a = v>>24&0xff, v>>16&0xff, v>>8&0xff, v&0xff
		} else {
			r, g, b = v>>16&0xff, v>>8&0xff, v&0xff
		}
	default:
		return color.NRGBA{}, false
	}
	return color.NRGBA{R: uint8(r), G: uint8(g), B: uint8(b), A: uint8(a)}, true
}

// FromNRGBA formats c as "#rrggbb", appending the alpha byte when c is not
// fully opaque. A zero alpha yields Transparent.
func FromNRGBA(c color.NRGBA) Color {
	switch c.A {
	case 0:
		return Transparent
	case 255:
		return Color(fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B))
	default:
		return Color(fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A))
	}
}

// AdjustBrightness adds amount to each RGB channel of c, clamped to [0, 255].
// Positive amounts lighten, negative darken. Transparent and unparseable
// colors are returned unchanged; alpha is preserved.
func AdjustBrightness(c Color, amount int) Color {
	if c.IsTransparent() {
		return c
	}
	n, ok := ParseHex(c)
	if !ok {
		return c
	}
	n.R = clampByte(int(n.R) + amount)
	n.G = clampByte(int(n.G) + amount)
	n.B = clampByte(int(n.B) + amount)
	return FromNRGBA(n)
}

func clampByte(v int) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v)
}
