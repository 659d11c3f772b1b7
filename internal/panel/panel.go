// Package panel turns chart panel definitions into raster images.
package panel

import (
	"errors"
	"image"
	"image/color"
	"math"

	"github.com/Rei0925/MFWeb/internal/market"
)

// ErrNoData is returned for panels with nothing drawable.
var ErrNoData = errors.New("panel: no series with at least two points")

// Series is one line on a panel.
type Series struct {
	Name   string
	Color  color.RGBA
	Points []market.Point
}

// Panel describes one chart quadrant. Revision changes whenever the content
// changes; renderers may reuse output for an unchanged revision.
type Panel struct {
	Title    string
	Series   []Series
	YMin     float64
	YMax     float64
	Revision uint64
}

// Renderer rasterizes a panel at the requested size.
type Renderer interface {
	Render(p Panel, width, height int) (image.Image, error)
}

// YRange pads the value range of series by 5% each way and rounds both ends
// up to whole units. ok is false when there are no points.
func YRange(series []Series) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, s := range series {
		for _, p := range s.Points {
			lo = math.Min(lo, p.Value)
			hi = math.Max(hi, p.Value)
		}
	}
	if math.IsInf(lo, 1) {
		return 0, 0, false
	}
	lo, hi = math.Ceil(lo*0.95), math.Ceil(hi*1.05)
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi, true
}

// New builds a panel with its Y range derived from the series.
func New(title string, revision uint64, series ...Series) Panel {
	p := Panel{Title: title, Series: series, Revision: revision}
	p.YMin, p.YMax, _ = YRange(series)
	return p
}
