// Package ticker scrolls market quotes and news headlines across the bottom
// strip of the dashboard.
package ticker

import (
	"sync"
	"sync/atomic"

	"github.com/Rei0925/MFWeb/internal/market"
)

// Config controls scrolling.
type Config struct {
	FrameWidth int // reset position after each pass
	Step       int // pixels moved per tick
}

// Snapshot is the state the compositor draws. It is immutable once published.
type Snapshot struct {
	Segments []Segment
	Offset   int
	Width    int
	Mode     Mode
	Passes   uint64
}

// Engine owns the ticker state. Tick must be driven from a single goroutine;
// Snapshot may be called from any goroutine.
type Engine struct {
	cfg     Config
	source  market.Source
	measure func(string) int

	mu       sync.Mutex
	segments []Segment
	width    int
	offset   int
	mode     Mode
	pending  []market.NewsItem
	baseline prices
	passes   uint64
	onWrap   func(from, to Mode)

	snap atomic.Pointer[Snapshot]
}

// NewEngine builds the opening quote line with every change at zero and
// positions it just off the right edge.
func NewEngine(cfg Config, source market.Source, measure func(string) int) *Engine {
	if cfg.Step <= 0 {
		cfg.Step = 3
	}
	e := &Engine{
		cfg:     cfg,
		source:  source,
		measure: measure,
		mode:    ModeQuotes,
		offset:  cfg.FrameWidth,
	}
	e.baseline = snapshotPrices(source, 0)
	e.setSegments(quoteSegments(source.Companies(), e.baseline, e.baseline))
	e.publish()
	return e
}

// OnWrap registers fn to run after every completed pass, outside the engine lock.
func (e *Engine) OnWrap(fn func(from, to Mode)) {
	e.mu.Lock()
	e.onWrap = fn
	e.mu.Unlock()
}

// Tick moves the text one step left. Once the text has fully left the screen
// the next content is loaded exactly once and the offset resets to the frame
// width.
func (e *Engine) Tick() {
	e.mu.Lock()
	e.offset -= e.cfg.Step
	wrapped := e.offset+e.width < 0
	from := e.mode
	if wrapped {
		e.advance()
		e.offset = e.cfg.FrameWidth
		e.passes++
	}
	to := e.mode
	hook := e.onWrap
	e.publish()
	e.mu.Unlock()

	if wrapped && hook != nil {
		hook(from, to)
	}
}

// advance runs the end-of-pass transition. Callers hold mu.
func (e *Engine) advance() {
	switch e.mode {
	case ModeQuotes:
		current := snapshotPrices(e.source, e.baseline.average)
		e.setSegments(quoteSegments(e.source.Companies(), current, e.baseline))
		e.baseline = current
		e.pending = e.source.News()
		e.mode = NextMode(ModeQuotes, len(e.pending) > 0)
	case ModeNews:
		if len(e.pending) > 0 {
			e.setSegments(newsSegments(e.pending))
		} else {
			e.setSegments([]Segment{{Text: "", Color: market.White}})
		}
		e.pending = nil
		e.mode = NextMode(ModeNews, false)
	}
}

func (e *Engine) setSegments(segs []Segment) {
	e.segments = segs
	e.width = TextWidth(segs, e.measure)
}

func (e *Engine) publish() {
	e.snap.Store(&Snapshot{
		Segments: e.segments,
		Offset:   e.offset,
		Width:    e.width,
		Mode:     e.mode,
		Passes:   e.passes,
	})
}

// Snapshot returns the latest published state.
func (e *Engine) Snapshot() *Snapshot {
	return e.snap.Load()
}
