// Package compositor renders the dashboard frame: four chart quadrants, the
// scrolling ticker strip and the clock.
package compositor

import (
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Rei0925/MFWeb/internal/frame"
	"github.com/Rei0925/MFWeb/internal/market"
	"github.com/Rei0925/MFWeb/internal/metrics"
	"github.com/Rei0925/MFWeb/internal/panel"
	"github.com/Rei0925/MFWeb/internal/ticker"
	"golang.org/x/image/font"
)

// Quadrant slots, left to right then top to bottom.
const (
	SlotAll = iota
	SlotAverage
	SlotPairA
	SlotPairB
	slotCount
)

const allTitle = "全社"

var (
	stripColor = color.RGBA{0, 0, 0, 255}
	clockColor = color.RGBA{192, 192, 192, 255}
)

// Config sets frame geometry and data window.
type Config struct {
	Width        int
	Height       int
	TickerHeight int
	History      int // points per chart series
}

// Compositor owns the panel definitions and produces frames. Render, Refresh
// and Rotate may run on different goroutines.
type Compositor struct {
	cfg     Config
	source  market.Source
	ticker  *ticker.Engine
	cache   *frame.Cache
	memo    *panel.Memo
	face    font.Face
	logger  *slog.Logger
	palette market.Palette
	now     func() time.Time

	mu        sync.Mutex
	panels    [slotCount]panel.Panel
	pair      []string
	pairIndex int

	revision atomic.Uint64
	seq      atomic.Uint64
}

// New creates a compositor. face is used only by Render and must not be shared
// with other goroutines.
func New(cfg Config, source market.Source, engine *ticker.Engine, cache *frame.Cache, renderer panel.Renderer, face font.Face, logger *slog.Logger) *Compositor {
	if cfg.History <= 0 {
		cfg.History = 50
	}
	c := &Compositor{
		cfg:    cfg,
		source: source,
		ticker: engine,
		cache:  cache,
		memo:   panel.NewMemo(renderer),
		face:   face,
		logger: logger,
		now:    time.Now,
	}
	c.panels[SlotAll].Title = allTitle
	c.panels[SlotAverage].Title = market.AverageName
	return c
}

// QuadrantSize is the size of each chart panel.
func (c *Compositor) QuadrantSize() (int, int) {
	return c.cfg.Width / 2, (c.cfg.Height - c.cfg.TickerHeight) / 2
}

// Refresh reloads chart data from the source and reassigns series colors.
func (c *Compositor) Refresh() {
	companies := c.source.Companies()

	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(companies)+len(c.pair))
	seen := make(map[string]bool)
	for _, n := range companyNames(companies) {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	for _, n := range c.pair {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	c.palette.Assign(names)

	var all []panel.Series
	for _, n := range names {
		if pts := c.source.PriceHistory(n, c.cfg.History); len(pts) > 0 {
			all = append(all, panel.Series{Name: n, Color: c.palette.Color(n), Points: pts})
		}
	}
	var avg []panel.Series
	if pts := c.source.AverageHistory(c.cfg.History); len(pts) > 0 {
		s := panel.Series{Name: market.AverageName, Color: c.palette.Color(market.AverageName), Points: pts}
		all = append(all, s)
		avg = append(avg, s)
	}

	c.panels[SlotAll] = panel.New(allTitle, c.revision.Add(1), all...)
	c.panels[SlotAverage] = panel.New(market.AverageName, c.revision.Add(1), avg...)
	c.rebuildPairLocked()
}

// Rotate shows the next pair of companies in the two lower quadrants, wrapping
// after the last pair.
func (c *Compositor) Rotate() {
	pairs := market.Pairs(c.source.Companies())

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(pairs) == 0 {
		c.pair = nil
		c.pairIndex = 0
	} else {
		c.pairIndex %= len(pairs)
		c.pair = pairs[c.pairIndex]
		c.pairIndex = (c.pairIndex + 1) % len(pairs)
	}
	c.rebuildPairLocked()
}

// Pair returns the companies currently shown in the lower quadrants.
func (c *Compositor) Pair() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.pair...)
}

func (c *Compositor) rebuildPairLocked() {
	for i, slot := range []int{SlotPairA, SlotPairB} {
		if i >= len(c.pair) {
			c.panels[slot] = panel.Panel{Revision: c.revision.Add(1)}
			continue
		}
		name := c.pair[i]
		var series []panel.Series
		if pts := c.source.PriceHistory(name, c.cfg.History); len(pts) > 0 {
			series = append(series, panel.Series{Name: name, Color: c.palette.Color(name), Points: pts})
		}
		c.panels[slot] = panel.New(name, c.revision.Add(1), series...)
	}
}

func (c *Compositor) currentPanels() [slotCount]panel.Panel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.panels
}

// Render draws one frame and publishes it to the cache.
func (c *Compositor) Render() *frame.Frame {
	start := time.Now()
	w, h := c.cfg.Width, c.cfg.Height
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	fill(img, img.Rect, color.Black)

	c.drawPanels(img)

	stripTop := h - c.cfg.TickerHeight
	fill(img, image.Rect(0, stripTop, w, h), stripColor)

	m := c.face.Metrics()
	ascent, descent := m.Ascent.Ceil(), m.Descent.Ceil()
	baseline := stripTop + (c.cfg.TickerHeight+ascent-descent)/2

	c.drawTicker(img, baseline)
	c.drawClock(img, stripTop, baseline, m.Height.Ceil())

	f := &frame.Frame{Image: img, Seq: c.seq.Add(1), RenderedAt: c.now()}
	c.cache.Publish(f)
	metrics.ObserveFrame(time.Since(start))
	return f
}

func (c *Compositor) drawPanels(img *image.RGBA) {
	qw, qh := c.QuadrantSize()
	origins := [slotCount]image.Point{{0, 0}, {qw, 0}, {0, qh}, {qw, qh}}

	for slot, p := range c.currentPanels() {
		// An empty slot keeps the background.
		if len(p.Series) == 0 {
			continue
		}
		rendered, fresh, err := c.memo.Render(slot, p, qw, qh)
		if err != nil {
			if fresh {
				metrics.IncPanelFailures()
				c.logger.Debug("Panel left blank", "slot", slot, "title", p.Title, "error", err)
			}
			continue
		}
		dst := image.Rectangle{Min: origins[slot], Max: origins[slot].Add(image.Pt(qw, qh))}
		draw.Draw(img, dst, rendered, rendered.Bounds().Min, draw.Src)
	}
}

func (c *Compositor) drawTicker(img *image.RGBA, baseline int) {
	snap := c.ticker.Snapshot()
	space := font.MeasureString(c.face, " ").Ceil()
	x := snap.Offset
	for i, seg := range snap.Segments {
		if x >= c.cfg.Width {
			break
		}
		w := font.MeasureString(c.face, seg.Text).Ceil()
		if x+w > 0 {
			drawString(img, c.face, seg.Text, x, baseline, seg.Color)
		}
		x += w
		if i < len(snap.Segments)-1 {
			x += space
		}
	}
}

func (c *Compositor) drawClock(img *image.RGBA, stripTop, baseline, fontHeight int) {
	text := c.now().Format("15:04:05")
	tw := font.MeasureString(c.face, text).Ceil()
	tx := c.cfg.Width - tw - 10

	bgHeight := fontHeight + 4
	bgTop := stripTop + (c.cfg.TickerHeight-bgHeight)/2
	bg := image.Rect(tx-8, bgTop, tx+tw+8, bgTop+bgHeight)
	fillRoundRect(img, bg, 5, stripColor)
	drawString(img, c.face, text, tx, baseline, clockColor)
}

func companyNames(companies []market.Company) []string {
	names := make([]string, len(companies))
	for i, c := range companies {
		names[i] = c.Name
	}
	return names
}
