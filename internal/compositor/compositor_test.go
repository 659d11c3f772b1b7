package compositor

import (
	"errors"
	"image"
	"image/color"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Rei0925/MFWeb/internal/frame"
	"github.com/Rei0925/MFWeb/internal/market"
	"github.com/Rei0925/MFWeb/internal/panel"
	"github.com/Rei0925/MFWeb/internal/ticker"
	"golang.org/x/image/font/basicfont"
)

type stubSource struct {
	companies []market.Company
}

func (s *stubSource) Companies() []market.Company { return s.companies }

func (s *stubSource) PriceHistory(name string, n int) []market.Point {
	for _, c := range s.companies {
		if c.Name == name {
			return series(c.Price, n)
		}
	}
	return nil
}

func (s *stubSource) AverageHistory(n int) []market.Point { return series(1000, n) }

func (s *stubSource) News() []market.NewsItem { return nil }

func series(v float64, n int) []market.Point {
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	pts := make([]market.Point, min(n, 3))
	for i := range pts {
		pts[i] = market.Point{Time: base.Add(time.Duration(i) * 5 * time.Second), Value: v + float64(i)}
	}
	return pts
}

// solidRenderer paints each panel a color derived from its title.
type solidRenderer struct {
	mu     sync.Mutex
	colors map[string]color.RGBA
	fail   map[string]bool
	calls  []string
}

func (r *solidRenderer) Render(p panel.Panel, w, h int) (image.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, p.Title)
	if r.fail[p.Title] {
		return nil, errors.New("boom")
	}
	return image.NewUniform(r.colors[p.Title]), nil
}

const (
	testW = 200
	testH = 140
	testT = 40
)

func newTestCompositor(t *testing.T, r panel.Renderer) (*Compositor, *frame.Cache, *stubSource) {
	t.Helper()
	src := &stubSource{companies: []market.Company{
		{Name: "A", Price: 100}, {Name: "B", Price: 200}, {Name: "C", Price: 300},
	}}
	measure := func(s string) int { return len(s) * 7 }
	engine := ticker.NewEngine(ticker.Config{FrameWidth: testW, Step: 3}, src, measure)
	cache := frame.NewCache(testW, testH)
	c := New(Config{Width: testW, Height: testH, TickerHeight: testT}, src, engine, cache, r,
		basicfont.Face7x13, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.now = func() time.Time { return time.Date(2024, 1, 1, 12, 34, 56, 0, time.UTC) }
	return c, cache, src
}

func newSolid() *solidRenderer {
	return &solidRenderer{
		colors: map[string]color.RGBA{
			allTitle:           {10, 0, 0, 255},
			market.AverageName: {20, 0, 0, 255},
			"A":                {30, 0, 0, 255},
			"B":                {40, 0, 0, 255},
			"C":                {50, 0, 0, 255},
		},
		fail: map[string]bool{},
	}
}

func TestRenderPlacesQuadrants(t *testing.T) {
	r := newSolid()
	c, cache, _ := newTestCompositor(t, r)
	c.Rotate()
	c.Refresh()

	f := c.Render()
	if cache.Load() != f {
		t.Fatal("rendered frame was not published")
	}
	if f.Width() != testW || f.Height() != testH {
		t.Fatalf("size = %dx%d", f.Width(), f.Height())
	}

	qw, qh := c.QuadrantSize()
	tests := []struct {
		name string
		x, y int
		want uint8
	}{
		{"all", qw / 2, qh / 2, 10},
		{"average", qw + qw/2, qh / 2, 20},
		{"pair A", qw / 2, qh + qh/2, 30},
		{"pair B", qw + qw/2, qh + qh/2, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Image.RGBAAt(tt.x, tt.y).R; got != tt.want {
				t.Errorf("pixel R = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRotateCyclesPairs(t *testing.T) {
	c, _, _ := newTestCompositor(t, newSolid())

	var got [][]string
	for range 3 {
		c.Rotate()
		got = append(got, c.Pair())
	}
	want := [][]string{{"A", "B"}, {"C"}, {"A", "B"}}
	for i := range want {
		if len(got[i]) != len(want[i]) {
			t.Fatalf("rotation %d = %v, want %v", i, got[i], want[i])
		}
		for j := range want[i] {
			if got[i][j] != want[i][j] {
				t.Fatalf("rotation %d = %v, want %v", i, got[i], want[i])
			}
		}
	}
}

func TestOddPairLeavesQuadrantBlank(t *testing.T) {
	r := newSolid()
	c, _, _ := newTestCompositor(t, r)
	c.Rotate()
	c.Rotate() // {"C"}
	c.Refresh()

	f := c.Render()
	qw, qh := c.QuadrantSize()
	if got := f.Image.RGBAAt(qw/2, qh+qh/2).R; got != 50 {
		t.Errorf("pair A pixel R = %d, want 50", got)
	}
	if got := f.Image.RGBAAt(qw+qw/2, qh+qh/2); got != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("empty pair slot = %v, want black", got)
	}
	for _, title := range r.calls {
		if title == "" {
			t.Error("renderer called for the empty slot")
		}
	}
}

func TestRenderReusesPanelsUntilRefresh(t *testing.T) {
	r := newSolid()
	c, _, _ := newTestCompositor(t, r)
	c.Rotate()
	c.Refresh()

	c.Render()
	first := len(r.calls)
	c.Render()
	c.Render()
	if len(r.calls) != first {
		t.Fatalf("renderer calls grew from %d to %d without a data change", first, len(r.calls))
	}

	c.Refresh()
	c.Render()
	if len(r.calls) != first+slotCount {
		t.Fatalf("renderer calls = %d after refresh, want %d", len(r.calls), first+slotCount)
	}
}

func TestFailedPanelIsBlankAndNotRetried(t *testing.T) {
	r := newSolid()
	r.fail[market.AverageName] = true
	c, _, _ := newTestCompositor(t, r)
	c.Rotate()
	c.Refresh()

	f := c.Render()
	c.Render()

	qw, qh := c.QuadrantSize()
	if got := f.Image.RGBAAt(qw+qw/2, qh/2); got != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("failed panel pixel = %v, want black", got)
	}
	if got := f.Image.RGBAAt(qw/2, qh/2).R; got != 10 {
		t.Errorf("healthy panel pixel R = %d, want 10", got)
	}

	n := 0
	for _, title := range r.calls {
		if title == market.AverageName {
			n++
		}
	}
	if n != 1 {
		t.Errorf("failing panel rendered %d times, want 1", n)
	}
}

func TestClockBackground(t *testing.T) {
	c, _, _ := newTestCompositor(t, newSolid())
	f := c.Render()

	// Glyph pixels of the clock land right of this point; the strip left of
	// the ticker start stays black.
	stripTop := testH - testT
	if got := f.Image.RGBAAt(0, stripTop+1); got != stripColor {
		t.Errorf("strip pixel = %v, want %v", got, stripColor)
	}

	tw := len("12:34:56") * 7
	tx := testW - tw - 10
	lit := false
	for y := stripTop; y < testH; y++ {
		for x := tx; x < tx+tw; x++ {
			if f.Image.RGBAAt(x, y) == clockColor {
				lit = true
			}
		}
	}
	if !lit {
		t.Error("clock text not drawn")
	}
}

func TestSequenceIncreases(t *testing.T) {
	c, _, _ := newTestCompositor(t, newSolid())
	a := c.Render()
	b := c.Render()
	if b.Seq <= a.Seq {
		t.Fatalf("seq %d then %d", a.Seq, b.Seq)
	}
}

func TestFillRoundRectCorners(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 20, 10))
	white := color.RGBA{255, 255, 255, 255}
	fillRoundRect(img, img.Rect, 5, white)

	if img.RGBAAt(0, 0) == white {
		t.Error("corner pixel filled")
	}
	if img.RGBAAt(10, 5) != white {
		t.Error("center pixel not filled")
	}
	if img.RGBAAt(10, 0) != white {
		t.Error("top edge center not filled")
	}
}
