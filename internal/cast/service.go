// Package cast wires rendering, the ticker and distribution into one
// start/stop unit.
package cast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang/freetype/truetype"

	"github.com/Rei0925/MFWeb/internal/compositor"
	"github.com/Rei0925/MFWeb/internal/events"
	"github.com/Rei0925/MFWeb/internal/frame"
	"github.com/Rei0925/MFWeb/internal/hls"
	"github.com/Rei0925/MFWeb/internal/market"
	"github.com/Rei0925/MFWeb/internal/metrics"
	"github.com/Rei0925/MFWeb/internal/panel"
	"github.com/Rei0925/MFWeb/internal/scheduler"
	"github.com/Rei0925/MFWeb/internal/ticker"
)

// ErrAlreadyRunning is returned by Start when the caster is active.
var ErrAlreadyRunning = errors.New("cast: already running")

// Stepper is implemented by sources that advance on their own schedule.
type Stepper interface {
	Step()
}

// Publisher receives cast and ticker events.
type Publisher interface {
	Publish(ev events.Event)
}

// Config holds geometry and job periods.
type Config struct {
	Width        int
	Height       int
	TickerHeight int
	FontSize     float64
	History      int

	FrameInterval   time.Duration
	TickerInterval  time.Duration
	TickerStep      int
	RotateInterval  time.Duration
	RefreshInterval time.Duration
	MarketInterval  time.Duration
	FeedInterval    time.Duration
	StopTimeout     time.Duration
}

// DefaultConfig returns the stock 1080p layout and timings.
func DefaultConfig() Config {
	return Config{
		Width:           1920,
		Height:          1080,
		TickerHeight:    40,
		FontSize:        16,
		History:         50,
		FrameInterval:   150 * time.Millisecond,
		TickerInterval:  25 * time.Millisecond,
		TickerStep:      3,
		RotateInterval:  10 * time.Second,
		RefreshInterval: 5 * time.Second,
		MarketInterval:  time.Second,
		FeedInterval:    16 * time.Millisecond,
		StopTimeout:     2 * time.Second,
	}
}

type job struct {
	name     string
	interval time.Duration
	fn       func()
	delayed  bool
}

// Status is a snapshot of the caster.
type Status struct {
	Running         bool       `json:"running"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FrameSeq        uint64     `json:"frame_seq"`
	FramesPublished uint64     `json:"frames_published"`
	TickerMode      string     `json:"ticker_mode,omitempty"`
	TickerPasses    uint64     `json:"ticker_passes"`
	Pair            []string   `json:"pair,omitempty"`
	Encoder         *hls.Stats `json:"encoder,omitempty"`
	EncoderError    string     `json:"encoder_error,omitempty"`
}

// Service owns one caster instance. At most one session runs at a time.
type Service struct {
	cfg      Config
	source   market.Source
	cache    *frame.Cache
	renderer panel.Renderer
	font     *truetype.Font
	encoder  *hls.Manager
	bus      Publisher
	logger   *slog.Logger

	mu        sync.Mutex
	sched     *scheduler.Scheduler
	comp      *compositor.Compositor
	engine    *ticker.Engine
	startedAt time.Time
	encErr    error
}

// New creates a stopped service. encoder and bus may be nil; without an
// encoder only the frame cache is fed.
func New(cfg Config, source market.Source, cache *frame.Cache, renderer panel.Renderer, font *truetype.Font,
	encoder *hls.Manager, bus Publisher, logger *slog.Logger,
) *Service {
	return &Service{
		cfg:      cfg,
		source:   source,
		cache:    cache,
		renderer: renderer,
		font:     font,
		encoder:  encoder,
		bus:      bus,
		logger:   logger,
	}
}

// Start builds a fresh ticker and compositor and schedules every job. ctx
// bounds encoder startup only. An encoder that fails to launch is logged and
// left stopped; rendering and multipart streaming still run.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sched != nil {
		return ErrAlreadyRunning
	}

	measure := compositor.Measurer(compositor.NewFace(s.font, s.cfg.FontSize))
	engine := ticker.NewEngine(ticker.Config{FrameWidth: s.cfg.Width, Step: s.cfg.TickerStep}, s.source, measure)
	engine.OnWrap(s.onWrap(engine))

	comp := compositor.New(compositor.Config{
		Width:        s.cfg.Width,
		Height:       s.cfg.Height,
		TickerHeight: s.cfg.TickerHeight,
		History:      s.cfg.History,
	}, s.source, engine, s.cache, s.renderer, compositor.NewFace(s.font, s.cfg.FontSize), s.logger)
	comp.Rotate()
	comp.Refresh()

	sched := scheduler.New(context.Background(), s.logger)
	// Rotate and Refresh already ran above, so their jobs wait one period;
	// otherwise the first pair would be skipped.
	jobs := []job{
		{"render", s.cfg.FrameInterval, func() { comp.Render() }, false},
		{"ticker", s.cfg.TickerInterval, engine.Tick, false},
		{"rotate", s.cfg.RotateInterval, comp.Rotate, true},
		{"refresh", s.cfg.RefreshInterval, comp.Refresh, true},
	}
	if st, ok := s.source.(Stepper); ok {
		jobs = append(jobs, job{"market", s.cfg.MarketInterval, st.Step, false})
	}
	for _, j := range jobs {
		schedule := sched.Every
		if j.delayed {
			schedule = sched.After
		}
		if err := schedule(j.name, j.interval, j.fn); err != nil {
			_ = sched.Stop(s.cfg.StopTimeout)
			return fmt.Errorf("schedule %s: %w", j.name, err)
		}
	}

	if s.encoder != nil {
		if err := s.encoder.Start(ctx); err != nil {
			s.logger.Warn("HLS encoder not started, serving multipart only", "error", err)
			s.encErr = err
		}
		if err := sched.Every("feed", s.cfg.FeedInterval, s.encoder.Feed(s.cache)); err != nil {
			s.encoder.Stop()
			_ = sched.Stop(s.cfg.StopTimeout)
			return fmt.Errorf("schedule feed: %w", err)
		}
	}

	s.sched, s.comp, s.engine = sched, comp, engine
	s.startedAt = time.Now()
	s.logger.Info("Caster started", "size", fmt.Sprintf("%dx%d", s.cfg.Width, s.cfg.Height))
	s.publish(true)
	return nil
}

// Stop cancels every job, stops the encoder and waits up to StopTimeout.
// Calling Stop on a stopped service does nothing.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sched == nil {
		return nil
	}

	err := s.sched.Stop(s.cfg.StopTimeout)
	if s.encoder != nil {
		s.encoder.Stop()
	}
	s.sched, s.comp, s.engine = nil, nil, nil
	s.startedAt = time.Time{}
	s.encErr = nil
	s.logger.Info("Caster stopped")
	s.publish(false)
	if err != nil {
		return fmt.Errorf("stop jobs: %w", err)
	}
	return nil
}

// Running reports whether a session is active.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched != nil
}

// Status reports the caster state.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:         s.sched != nil,
		FrameSeq:        s.cache.Load().Seq,
		FramesPublished: s.cache.Published(),
	}
	if !s.startedAt.IsZero() {
		t := s.startedAt
		st.StartedAt = &t
	}
	if s.engine != nil {
		snap := s.engine.Snapshot()
		st.TickerMode = snap.Mode.String()
		st.TickerPasses = snap.Passes
	}
	if s.comp != nil {
		st.Pair = s.comp.Pair()
	}
	if s.encoder != nil {
		stats := s.encoder.Stats()
		st.Encoder = &stats
	}
	if s.encErr != nil {
		st.EncoderError = s.encErr.Error()
	}
	return st
}

func (s *Service) onWrap(engine *ticker.Engine) func(from, to ticker.Mode) {
	return func(from, to ticker.Mode) {
		metrics.IncTickerPass(from.String())
		if s.bus == nil {
			return
		}
		s.bus.Publish(events.TickerModeChangedEvent{
			From:      from.String(),
			To:        to.String(),
			Passes:    engine.Snapshot().Passes,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func (s *Service) publish(running bool) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.CastStateChangedEvent{
		Running:   running,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
