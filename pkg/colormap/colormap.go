// Package colormap provides categorical palettes for condition series.
package colormap

import (
	"fmt"
	"image/color"
	"sort"
)

// Palette assigns distinct colors to series by index.
type Palette struct {
	name   string
	colors []color.RGBA
}

// Name returns the palette name.
func (p Palette) Name() string {
	return p.name
}

// Len returns the number of distinct colors.
func (p Palette) Len() int {
	return len(p.colors)
}

// AtIndex returns color at index i (wraps around).
func (p Palette) AtIndex(i int) color.RGBA {
	if i < 0 {
		i = -i
	}
	return p.colors[i%len(p.colors)]
}

// Hex returns color i as "#rrggbb".
func (p Palette) Hex(i int) string {
	c := p.AtIndex(i)
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Deep is the seaborn default palette.
var Deep = Palette{
	name: "deep",
	colors: []color.RGBA{
		{76, 114, 176, 255},
		{221, 132, 82, 255},
		{85, 168, 104, 255},
		{196, 78, 82, 255},
		{129, 114, 179, 255},
		{147, 120, 96, 255},
		{218, 139, 195, 255},
		{140, 140, 140, 255},
		{204, 185, 116, 255},
		{100, 181, 205, 255},
	},
}

// Tab10 is the matplotlib category10 palette.
var Tab10 = Palette{
	name: "tab10",
	colors: []color.RGBA{
		{31, 119, 180, 255},  // Blue
		{255, 127, 14, 255},  // Orange
		{44, 160, 44, 255},   // Green
		{214, 39, 40, 255},   // Red
		{148, 103, 189, 255}, // Purple
		{140, 86, 75, 255},   // Brown
		{227, 119, 194, 255}, // Pink
		{127, 127, 127, 255}, // Gray
		{188, 189, 34, 255},  // Olive
		{23, 190, 207, 255},  // Cyan
	},
}

// Colorblind is the seaborn colorblind-safe palette.
var Colorblind = Palette{
	name: "colorblind",
	colors: []color.RGBA{
		{1, 115, 178, 255},
		{222, 143, 5, 255},
		{2, 158, 115, 255},
		{213, 94, 0, 255},
		{204, 120, 188, 255},
		{202, 145, 97, 255},
		{251, 175, 228, 255},
		{148, 148, 148, 255},
		{236, 225, 51, 255},
		{86, 180, 233, 255},
	},
}

var palettes = map[string]Palette{
	Deep.name:       Deep,
	Tab10.name:      Tab10,
	Colorblind.name: Colorblind,
}

// ByName looks up a palette.
func ByName(name string) (Palette, bool) {
	p, ok := palettes[name]
	return p, ok
}

// Names lists the available palettes.
func Names() []string {
	out := make([]string, 0, len(palettes))
	for n := range palettes {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
