package ticker

import (
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/Rei0925/MFWeb/internal/market"
)

// fakeSource is a mutable market.Source for driving the engine.
type fakeSource struct {
	mu        sync.Mutex
	companies []market.Company
	average   float64
	news      []market.NewsItem
}

func (f *fakeSource) Companies() []market.Company {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]market.Company(nil), f.companies...)
}

func (f *fakeSource) PriceHistory(string, int) []market.Point { return nil }

func (f *fakeSource) AverageHistory(int) []market.Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	return []market.Point{{Value: f.average}}
}

func (f *fakeSource) News() []market.NewsItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]market.NewsItem(nil), f.news...)
}

func (f *fakeSource) setPrice(name string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.companies {
		if f.companies[i].Name == name {
			f.companies[i].Price = price
		}
	}
}

// tenPerRune measures every rune as 10 px.
func tenPerRune(s string) int { return utf8.RuneCountInString(s) * 10 }

func newSource() *fakeSource {
	return &fakeSource{
		companies: []market.Company{{Name: "Alpha", Price: 100}, {Name: "Beta", Price: 50}},
		average:   75,
	}
}

func joined(segs []Segment) string {
	var sb strings.Builder
	for _, s := range segs {
		sb.WriteString(s.Text)
	}
	return sb.String()
}

func TestNextMode(t *testing.T) {
	tests := []struct {
		current Mode
		pending bool
		want    Mode
	}{
		{ModeQuotes, false, ModeQuotes},
		{ModeQuotes, true, ModeNews},
		{ModeNews, false, ModeQuotes},
		{ModeNews, true, ModeQuotes},
	}
	for _, tt := range tests {
		if got := NextMode(tt.current, tt.pending); got != tt.want {
			t.Errorf("NextMode(%v, %v) = %v, want %v", tt.current, tt.pending, got, tt.want)
		}
	}
}

func TestInitialQuotesHaveZeroDeltas(t *testing.T) {
	e := NewEngine(Config{FrameWidth: 1920, Step: 3}, newSource(), tenPerRune)
	snap := e.Snapshot()

	if snap.Offset != 1920 {
		t.Errorf("initial offset = %d, want 1920", snap.Offset)
	}
	if snap.Mode != ModeQuotes {
		t.Errorf("initial mode = %v", snap.Mode)
	}
	want := "国内平均 75 円 0 ｜ Alpha 100円 0｜ Beta 50円 0"
	if got := joined(snap.Segments); got != want {
		t.Errorf("text = %q, want %q", got, want)
	}
	for _, s := range snap.Segments {
		if s.Text == "0" && s.Color != market.Gray {
			t.Errorf("flat change colored %v", s.Color)
		}
	}
}

func TestTextWidthIncludesSpaces(t *testing.T) {
	segs := []Segment{{Text: "ab"}, {Text: "cde"}, {Text: "f"}}
	if got := TextWidth(segs, tenPerRune); got != 60+20 {
		t.Errorf("TextWidth = %d, want 80", got)
	}
	if got := TextWidth(nil, tenPerRune); got != 0 {
		t.Errorf("TextWidth(nil) = %d", got)
	}
}

func TestTickWrapsExactlyOnce(t *testing.T) {
	const frameWidth, step = 100, 3
	e := NewEngine(Config{FrameWidth: frameWidth, Step: step}, newSource(), tenPerRune)
	width := e.Snapshot().Width

	wraps := 0
	e.OnWrap(func(Mode, Mode) { wraps++ })

	n := (frameWidth+width)/step + 1
	for i := 1; i < n; i++ {
		e.Tick()
		if got, want := e.Snapshot().Offset, frameWidth-i*step; got != want {
			t.Fatalf("tick %d: offset = %d, want %d", i, got, want)
		}
	}
	if wraps != 0 {
		t.Fatalf("wrapped early after %d ticks", n-1)
	}

	e.Tick()
	if wraps != 1 {
		t.Fatalf("wraps = %d after %d ticks, want 1", wraps, n)
	}
	if got := e.Snapshot().Offset; got != frameWidth {
		t.Errorf("offset after wrap = %d, want %d", got, frameWidth)
	}
	if got := e.Snapshot().Passes; got != 1 {
		t.Errorf("passes = %d, want 1", got)
	}
}

func tickUntilWrap(t *testing.T, e *Engine) {
	t.Helper()
	start := e.Snapshot().Passes
	for range 100000 {
		e.Tick()
		if e.Snapshot().Passes != start {
			return
		}
	}
	t.Fatal("engine never wrapped")
}

func TestQuoteDeltasAgainstPreviousRebuild(t *testing.T) {
	src := newSource()
	e := NewEngine(Config{FrameWidth: 10, Step: 50}, src, tenPerRune)

	src.setPrice("Alpha", 130)
	src.setPrice("Beta", 40)
	tickUntilWrap(t, e)

	segs := e.Snapshot().Segments
	text := joined(segs)
	if !strings.Contains(text, " Alpha 130円 +30") || !strings.Contains(text, " Beta 40円 -10") {
		t.Fatalf("unexpected quotes %q", text)
	}
	for _, s := range segs {
		switch s.Text {
		case "+30":
			if s.Color != market.Red {
				t.Errorf("rise colored %v, want red", s.Color)
			}
		case "-10":
			if s.Color != market.Green {
				t.Errorf("fall colored %v, want green", s.Color)
			}
		}
	}

	// Baseline moved to the prices just shown.
	tickUntilWrap(t, e)
	text = joined(e.Snapshot().Segments)
	if !strings.Contains(text, " Alpha 130円 0") || !strings.Contains(text, " Beta 40円 0") {
		t.Errorf("deltas should reset after rebuild, got %q", text)
	}
}

func TestNewsCycle(t *testing.T) {
	src := newSource()
	src.news = []market.NewsItem{{Genre: "経済", Content: "first"}, {Genre: "市場", Content: "second"}}

	var transitions [][2]Mode
	e := NewEngine(Config{FrameWidth: 10, Step: 1000}, src, tenPerRune)
	e.OnWrap(func(from, to Mode) { transitions = append(transitions, [2]Mode{from, to}) })

	tickUntilWrap(t, e)
	if e.Snapshot().Mode != ModeNews {
		t.Fatalf("mode = %v after quotes pass with pending news", e.Snapshot().Mode)
	}

	// News captured at the quotes pass is what gets shown, even if the source changes.
	src.mu.Lock()
	src.news = nil
	src.mu.Unlock()

	tickUntilWrap(t, e)
	snap := e.Snapshot()
	if snap.Mode != ModeQuotes {
		t.Errorf("mode after news pass = %v, want quotes", snap.Mode)
	}
	if len(snap.Segments) != 1 || snap.Segments[0].Color != market.White {
		t.Fatalf("news should be a single white segment, got %+v", snap.Segments)
	}
	want := "   【経済】 first" + newsSeparator + "   【市場】 second"
	if snap.Segments[0].Text != want {
		t.Errorf("news text = %q, want %q", snap.Segments[0].Text, want)
	}

	tickUntilWrap(t, e)
	if e.Snapshot().Mode != ModeQuotes {
		t.Error("with no pending news the ticker should stay on quotes")
	}

	wantTransitions := [][2]Mode{{ModeQuotes, ModeNews}, {ModeNews, ModeQuotes}, {ModeQuotes, ModeQuotes}}
	if len(transitions) != len(wantTransitions) {
		t.Fatalf("transitions = %v", transitions)
	}
	for i := range wantTransitions {
		if transitions[i] != wantTransitions[i] {
			t.Errorf("transition %d = %v, want %v", i, transitions[i], wantTransitions[i])
		}
	}
}

func TestSnapshotConcurrentReads(t *testing.T) {
	e := NewEngine(Config{FrameWidth: 200, Step: 3}, newSource(), tenPerRune)

	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				s := e.Snapshot()
				if s.Width != TextWidth(s.Segments, tenPerRune) {
					t.Errorf("snapshot width %d does not match its segments", s.Width)
					return
				}
			}
		}
	}()

	for range 5000 {
		e.Tick()
	}
	close(done)
	wg.Wait()
}
