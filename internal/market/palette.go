package market

import (
	"image/color"
	"sync/atomic"
)

var (
	Red      = color.RGBA{255, 0, 0, 255}
	Blue     = color.RGBA{0, 0, 255, 255}
	Green    = color.RGBA{0, 255, 0, 255}
	Magenta  = color.RGBA{255, 0, 255, 255}
	Orange   = color.RGBA{255, 200, 0, 255}
	Cyan     = color.RGBA{0, 255, 255, 255}
	Pink     = color.RGBA{255, 175, 175, 255}
	Yellow   = color.RGBA{255, 255, 0, 255}
	Gray     = color.RGBA{128, 128, 128, 255}
	DarkGray = color.RGBA{64, 64, 64, 255}
	White    = color.RGBA{255, 255, 255, 255}
)

// SeriesColors is the rotation used for company series, by index.
var SeriesColors = []color.RGBA{Red, Blue, Green, Magenta, Orange, Cyan, Pink, Yellow, Gray, DarkGray}

// Palette maps series names to colors. Assignments are recomputed wholesale and
// swapped in one step, so readers see either the old or the new map.
type Palette struct {
	colors atomic.Pointer[map[string]color.RGBA]
}

// Assign recomputes the mapping: names[i] gets SeriesColors[i mod len] and the
// average series is always magenta.
func (p *Palette) Assign(names []string) {
	m := make(map[string]color.RGBA, len(names)+1)
	for i, name := range names {
		m[name] = SeriesColors[i%len(SeriesColors)]
	}
	m[AverageName] = Magenta
	p.colors.Store(&m)
}

// Color returns the assigned color, falling back to the first series color.
func (p *Palette) Color(name string) color.RGBA {
	if m := p.colors.Load(); m != nil {
		if c, ok := (*m)[name]; ok {
			return c
		}
	}
	if name == AverageName {
		return Magenta
	}
	return SeriesColors[0]
}
