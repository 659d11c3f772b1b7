package panel

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"time"

	"github.com/golang/freetype/truetype"
	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

var (
	backgroundColor = drawing.Color{R: 24, G: 26, B: 27, A: 255}
	axisColor       = drawing.Color{R: 150, G: 150, B: 150, A: 255}
	textColor       = drawing.Color{R: 229, G: 229, B: 229, A: 255}
)

// ChartRenderer draws panels as dark-themed time-series line charts.
type ChartRenderer struct {
	// Font replaces the go-chart default. It must carry glyphs for company
	// names; the built-in Roboto has no CJK coverage.
	Font *truetype.Font
}

func toDrawing(c color.RGBA) drawing.Color {
	return drawing.Color{R: c.R, G: c.G, B: c.B, A: c.A}
}

// Render implements Renderer. Series with fewer than two points are skipped
// because go-chart cannot scale a single sample.
func (r ChartRenderer) Render(p Panel, width, height int) (image.Image, error) {
	var series []chart.Series
	for _, s := range p.Series {
		if len(s.Points) < 2 {
			continue
		}
		xs := make([]time.Time, len(s.Points))
		ys := make([]float64, len(s.Points))
		for i, pt := range s.Points {
			xs[i], ys[i] = pt.Time, pt.Value
		}
		series = append(series, chart.TimeSeries{
			Name:    s.Name,
			XValues: xs,
			YValues: ys,
			Style:   chart.Style{StrokeColor: toDrawing(s.Color), StrokeWidth: 2},
		})
	}
	if len(series) == 0 {
		return nil, ErrNoData
	}

	axisStyle := chart.Style{FontColor: textColor, StrokeColor: axisColor, FontSize: 9}
	ch := chart.Chart{
		Title:      p.Title,
		TitleStyle: chart.Style{FontColor: textColor, FontSize: 14},
		Width:      width,
		Height:     height,
		Font:       r.Font,
		Background: chart.Style{
			FillColor: backgroundColor,
			Padding:   chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16},
		},
		Canvas: chart.Style{FillColor: backgroundColor},
		XAxis: chart.XAxis{
			Style:          axisStyle,
			ValueFormatter: chart.TimeValueFormatterWithFormat("15:04:05"),
		},
		YAxis: chart.YAxis{
			Style: axisStyle,
			Range: &chart.ContinuousRange{Min: p.YMin, Max: p.YMax},
			ValueFormatter: func(v any) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.0f", f)
				}
				return ""
			},
		},
		Series: series,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch, chart.Style{
		FillColor:   backgroundColor,
		FontColor:   textColor,
		StrokeColor: axisColor,
	})}

	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render %q: %w", p.Title, err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		return nil, fmt.Errorf("decode %q: %w", p.Title, err)
	}
	return img, nil
}
