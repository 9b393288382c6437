// Package palette holds the ARGB color type shared by the overlay pipeline
// and the swatch extraction used to derive a color from an application icon.
package palette

import (
	"fmt"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Color is a packed 0xAARRGGBB value.
type Color uint32

// ParseHex parses #RRGGBB or #AARRGGBB. RRGGBB colors are made fully opaque.
func ParseHex(s string) (Color, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s), "#")
	switch len(raw) {
	case 6:
		c, err := colorful.Hex("#" + raw)
		if err != nil {
			return 0, fmt.Errorf("parse color %q: %w", s, err)
		}
		return FromColorful(c), nil
	case 8:
		var alpha uint32
		if _, err := fmt.Sscanf(raw[:2], "%02x", &alpha); err != nil {
			return 0, fmt.Errorf("parse color alpha %q: %w", s, err)
		}
		c, err := colorful.Hex("#" + raw[2:])
		if err != nil {
			return 0, fmt.Errorf("parse color %q: %w", s, err)
		}
		return Color(alpha<<24 | uint32(FromColorful(c))&0x00ffffff), nil
	default:
		return 0, fmt.Errorf("parse color %q: expected #RRGGBB or #AARRGGBB", s)
	}
}

// MustParseHex is ParseHex for constants; it panics on malformed input.
func MustParseHex(s string) Color {
	c, err := ParseHex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// FromColorful packs an opaque colorful.Color.
func FromColorful(c colorful.Color) Color {
	r, g, b := c.Clamped().RGB255()
	return Color(0xff000000 | uint32(r)<<16 | uint32(g)<<8 | uint32(b))
}

// Colorful unpacks the RGB channels, discarding alpha.
func (c Color) Colorful() colorful.Color {
	return colorful.Color{
		R: float64((c>>16)&0xff) / 255,
		G: float64((c>>8)&0xff) / 255,
		B: float64(c&0xff) / 255,
	}
}

// Alpha returns the alpha channel.
func (c Color) Alpha() uint8 {
	return uint8(c >> 24)
}

// String renders the color as #AARRGGBB.
func (c Color) String() string {
	return fmt.Sprintf("#%08X", uint32(c))
}

// MarshalText implements encoding.TextMarshaler so colors travel as hex in JSON.
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Color) UnmarshalText(text []byte) error {
	parsed, err := ParseHex(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
