package cast

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Rei0925/MFWeb/internal/compositor"
	"github.com/Rei0925/MFWeb/internal/events"
	"github.com/Rei0925/MFWeb/internal/ffmpeg"
	"github.com/Rei0925/MFWeb/internal/frame"
	"github.com/Rei0925/MFWeb/internal/hls"
	"github.com/Rei0925/MFWeb/internal/market"
	"github.com/Rei0925/MFWeb/internal/panel"
	"github.com/Rei0925/MFWeb/internal/process"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type flatRenderer struct{}

func (flatRenderer) Render(panel.Panel, int, int) (image.Image, error) {
	return image.NewUniform(color.RGBA{0, 0, 80, 255}), nil
}

type recorder struct {
	mu  sync.Mutex
	evs []events.Event
}

func (r *recorder) Publish(ev events.Event) {
	r.mu.Lock()
	r.evs = append(r.evs, ev)
	r.mu.Unlock()
}

func (r *recorder) castStates() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []bool
	for _, ev := range r.evs {
		if e, ok := ev.(events.CastStateChangedEvent); ok {
			out = append(out, e.Running)
		}
	}
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Width, cfg.Height, cfg.TickerHeight = 64, 48, 16
	cfg.FontSize = 10
	cfg.FrameInterval = 5 * time.Millisecond
	cfg.TickerInterval = time.Millisecond
	cfg.TickerStep = 8
	cfg.RotateInterval = 20 * time.Millisecond
	cfg.RefreshInterval = 20 * time.Millisecond
	cfg.MarketInterval = 5 * time.Millisecond
	cfg.FeedInterval = 5 * time.Millisecond
	return cfg
}

func newTestService(t *testing.T, encoder *hls.Manager, bus Publisher) (*Service, *frame.Cache) {
	t.Helper()
	font, err := compositor.LoadFont("")
	if err != nil {
		t.Fatalf("LoadFont: %v", err)
	}
	cfg := testConfig()
	sim := market.NewSimulator(market.SimulatorConfig{
		Companies:  []market.Company{{Name: "A", Price: 100}, {Name: "B", Price: 200}, {Name: "C", Price: 300}},
		NewsChance: 0.5,
		Seed:       7,
	})
	cache := frame.NewCache(cfg.Width, cfg.Height)
	return New(cfg, sim, cache, flatRenderer{}, font, encoder, bus, testLogger()), cache
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before timeout")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStartStop(t *testing.T) {
	bus := &recorder{}
	s, cache := newTestService(t, nil, bus)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start() = %v, want ErrAlreadyRunning", err)
	}

	waitFor(t, func() bool { return cache.Published() >= 3 })
	waitFor(t, func() bool { return s.Status().TickerPasses >= 1 })

	st := s.Status()
	if !st.Running || st.StartedAt == nil || st.FrameSeq == 0 || st.TickerMode == "" {
		t.Errorf("Status() = %+v", st)
	}
	if len(st.Pair) == 0 {
		t.Error("no company pair selected")
	}
	if f := cache.Load(); f.Width() != 64 || f.Height() != 48 {
		t.Errorf("frame %dx%d", f.Width(), f.Height())
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}

	published := cache.Published()
	time.Sleep(30 * time.Millisecond)
	if cache.Published() != published {
		t.Error("frames still rendered after Stop")
	}
	if s.Status().Running || s.Running() {
		t.Error("still running after Stop")
	}

	got := bus.castStates()
	if len(got) != 2 || !got[0] || got[1] {
		t.Errorf("cast state events = %v, want [true false]", got)
	}
}

func TestFirstPairShownAtStart(t *testing.T) {
	font, err := compositor.LoadFont("")
	if err != nil {
		t.Fatalf("LoadFont: %v", err)
	}
	cfg := testConfig()
	cfg.RotateInterval = time.Hour
	cfg.RefreshInterval = time.Hour
	sim := market.NewSimulator(market.SimulatorConfig{
		Companies: []market.Company{{Name: "A", Price: 100}, {Name: "B", Price: 200}, {Name: "C", Price: 300}, {Name: "D", Price: 400}},
		Seed:      3,
	})
	s := New(cfg, sim, frame.NewCache(cfg.Width, cfg.Height), flatRenderer{}, font, nil, nil, testLogger())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	time.Sleep(50 * time.Millisecond)
	if got := s.Status().Pair; len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Errorf("pair = %v, want [A B]", got)
	}
}

func TestRestart(t *testing.T) {
	s, _ := newTestService(t, nil, nil)
	for range 2 {
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if err := s.Stop(); err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
	}
}

func newEncoder(t *testing.T, binary string) *hls.Manager {
	t.Helper()
	params := ffmpeg.DefaultHLSParams()
	params.Binary = binary
	params.Width, params.Height = 64, 48
	params.OutputDir = filepath.Join(t.TempDir(), "hls")
	return hls.NewManager(hls.Config{
		Params:          params,
		GracefulTimeout: 200 * time.Millisecond,
		KillTimeout:     200 * time.Millisecond,
	}, testLogger(), testLogger(), nil)
}

func TestEncoderFed(t *testing.T) {
	bin := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\ntrap '' INT\ncat > /dev/null\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	s, _ := newTestService(t, newEncoder(t, bin), nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, func() bool {
		enc := s.Status().Encoder
		return enc != nil && enc.State == process.StateRunning && enc.Written > 0
	})

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if enc := s.Status().Encoder; enc.State != process.StateStopped {
		t.Errorf("encoder state after Stop = %s", enc.State)
	}
}

func TestEncoderFailureKeepsRendering(t *testing.T) {
	s, cache := newTestService(t, newEncoder(t, "/nonexistent/ffmpeg"), nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	waitFor(t, func() bool { return cache.Published() >= 2 })
	enc := s.Status().Encoder
	if enc.State != process.StateStopped || enc.LastError == "" {
		t.Errorf("encoder = %+v", enc)
	}
	if s.Status().EncoderError == "" {
		t.Error("launch failure not reported in Status")
	}

	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	if got := s.Status().EncoderError; got != "" {
		t.Errorf("EncoderError after Stop = %q", got)
	}
}
