package hls

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Rei0925/MFWeb/internal/encoders"
	"github.com/Rei0925/MFWeb/internal/events"
	"github.com/Rei0925/MFWeb/internal/ffmpeg"
	"github.com/Rei0925/MFWeb/internal/frame"
	"github.com/Rei0925/MFWeb/internal/metrics"
	"github.com/Rei0925/MFWeb/internal/metrics/collectors"
	"github.com/Rei0925/MFWeb/internal/process"
)

// ErrAlreadyRunning is returned by Start when a session is active.
var ErrAlreadyRunning = errors.New("hls: encoder already running")

// Publisher receives encoder state changes.
type Publisher interface {
	Publish(ev events.Event)
}

// Config controls an encoder session.
type Config struct {
	Params        ffmpeg.HLSParams
	QueueCapacity int
	// AutoEncoder replaces Params.Encoder with the best one ffmpeg lists.
	AutoEncoder bool
	// Progress enables the -progress socket feeding encoder metrics.
	Progress bool

	PollInterval      time.Duration // writer sleep when the queue is empty
	WriterJoinTimeout time.Duration
	GracefulTimeout   time.Duration // SIGINT to SIGKILL
	KillTimeout       time.Duration
}

func (c *Config) setDefaults() {
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Millisecond
	}
	if c.WriterJoinTimeout <= 0 {
		c.WriterJoinTimeout = time.Second
	}
	if c.GracefulTimeout <= 0 {
		c.GracefulTimeout = 5 * time.Second
	}
	if c.KillTimeout <= 0 {
		c.KillTimeout = 2 * time.Second
	}
}

// Stats is a point-in-time view of the session.
type Stats struct {
	State       process.State `json:"state"`
	Encoder     string        `json:"encoder,omitempty"`
	PID         int           `json:"pid,omitempty"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	Queued      int           `json:"queued"`
	Capacity    int           `json:"capacity"`
	Dropped     uint64        `json:"dropped"`
	Written     uint64        `json:"written"`
	WriteErrors uint64        `json:"write_errors"`
	LastError   string        `json:"last_error,omitempty"`
}

// Manager owns at most one ffmpeg encoder session:
// stopped → starting → running → stopping → stopped.
type Manager struct {
	cfg          Config
	logger       *slog.Logger
	ffmpegLogger *slog.Logger
	bus          Publisher
	queue        *Queue

	running     atomic.Bool
	written     atomic.Uint64
	writeErrors atomic.Uint64

	mu           sync.Mutex
	state        process.State
	encoder      string
	startedAt    time.Time
	lastErr      string
	proc         *process.Process
	logFile      *os.File
	progress     *collectors.ProgressCollector
	cancelWriter context.CancelFunc
	writerDone   chan struct{}
}

// NewManager creates a stopped manager. bus may be nil.
func NewManager(cfg Config, logger, ffmpegLogger *slog.Logger, bus Publisher) *Manager {
	cfg.setDefaults()
	m := &Manager{
		cfg:          cfg,
		logger:       logger,
		ffmpegLogger: ffmpegLogger,
		bus:          bus,
		queue:        NewQueue(cfg.QueueCapacity),
		state:        process.StateStopped,
	}
	metrics.SetEncoderState(process.StateStopped.Gauge())
	return m
}

// Start launches ffmpeg and the writer. ctx bounds startup only; the session
// runs until Stop. On failure everything acquired is released and the
// manager stays stopped.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != process.StateStopped {
		return ErrAlreadyRunning
	}
	m.setStateLocked(process.StateStarting, "")

	if err := m.launchLocked(ctx); err != nil {
		m.releaseLocked()
		m.lastErr = err.Error()
		m.setStateLocked(process.StateStopped, err.Error())
		return err
	}

	m.startedAt = time.Now()
	m.lastErr = ""
	m.running.Store(true)
	m.setStateLocked(process.StateRunning, "")
	return nil
}

func (m *Manager) launchLocked(ctx context.Context) error {
	params := m.cfg.Params
	if params.OutputDir == "" {
		params.OutputDir = ffmpeg.DefaultHLSParams().OutputDir
	}

	if m.cfg.AutoEncoder {
		list, err := encoders.List(ctx, params.Binary)
		if err != nil {
			m.logger.Warn("Encoder discovery failed, keeping configured encoder", "encoder", params.Encoder, "error", err)
		} else {
			params.Encoder = encoders.Select(append([]string{params.Encoder}, encoders.DefaultPreference...), list)
		}
	}

	if err := os.MkdirAll(params.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	logFile, err := os.OpenFile(params.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open ffmpeg log: %w", err)
	}
	m.logFile = logFile

	if m.cfg.Progress {
		sock := filepath.Join(os.TempDir(), "mfweb-progress-"+uuid.NewString()+".sock")
		pc := collectors.NewProgressCollector(sock, m.logger)
		if err := pc.Start(); err != nil {
			m.logger.Warn("Progress socket unavailable, encoder metrics disabled", "error", err)
		} else {
			m.progress = pc
			params.ProgressURL = pc.URL()
		}
	}

	proc := process.New("ffmpeg", ffmpeg.BuildHLSCommand(params), m.logger,
		process.WithOutput(logFile),
		process.WithLogParser(m.ffmpegLogger, ffmpeg.ParseLogLevel),
		process.WithTimeouts(m.cfg.GracefulTimeout, m.cfg.KillTimeout),
	)

	stdin, err := proc.Start()
	if err != nil {
		return fmt.Errorf("launch ffmpeg: %w", err)
	}
	m.proc = proc
	m.encoder = params.Encoder

	m.queue.Drain()
	writerCtx, cancel := context.WithCancel(context.Background())
	m.cancelWriter = cancel
	m.writerDone = make(chan struct{})
	go m.writeLoop(writerCtx, stdin, params, m.writerDone)
	go m.watch(proc)

	m.logger.Info("HLS encoder started", "encoder", params.Encoder, "dir", params.OutputDir, "pid", proc.Pid())
	return nil
}

// Stop ends the session. It is idempotent and bounded by the writer join
// and process stop timeouts.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked("")
}

func (m *Manager) stopLocked(reason string) {
	if m.state == process.StateStopped {
		return
	}
	m.setStateLocked(process.StateStopping, "")
	m.running.Store(false)

	if m.cancelWriter != nil {
		m.cancelWriter()
		select {
		case <-m.writerDone:
		case <-time.After(m.cfg.WriterJoinTimeout):
			m.logger.Warn("Frame writer did not stop in time", "timeout", m.cfg.WriterJoinTimeout)
		}
	}

	m.releaseLocked()
	if reason != "" {
		m.lastErr = reason
	}
	m.setStateLocked(process.StateStopped, reason)
	m.logger.Info("HLS encoder stopped")
}

// releaseLocked frees every session resource that was acquired.
func (m *Manager) releaseLocked() {
	if m.proc != nil {
		code := m.proc.Stop()
		m.logger.Debug("ffmpeg stopped", "exit_code", code)
		m.proc = nil
	}
	if m.progress != nil {
		m.progress.Stop()
		m.progress = nil
	}
	if m.logFile != nil {
		if err := m.logFile.Close(); err != nil {
			m.logger.Debug("Closing ffmpeg log failed", "error", err)
		}
		m.logFile = nil
	}
	if n := m.queue.Drain(); n > 0 {
		m.logger.Debug("Discarded queued frames", "count", n)
	}
	m.cancelWriter = nil
	m.writerDone = nil
	m.encoder = ""
	m.startedAt = time.Time{}
}

// watch ends the session if ffmpeg exits while it is running.
func (m *Manager) watch(proc *process.Process) {
	<-proc.Done()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.proc != proc {
		return
	}
	reason := fmt.Sprintf("ffmpeg exited with code %d", proc.ExitCode())
	m.logger.Error("Encoder exited unexpectedly", "exit_code", proc.ExitCode(), "log", m.cfg.Params.LogPath())
	m.stopLocked(reason)
}

func (m *Manager) writeLoop(ctx context.Context, stdin io.Writer, params ffmpeg.HLSParams, done chan<- struct{}) {
	defer close(done)

	w := bufio.NewWriterSize(stdin, params.FrameSize())
	buf := make([]byte, 0, params.FrameSize())
	warnedSize := false

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		f, ok := m.queue.Poll()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.cfg.PollInterval):
			}
			continue
		}

		if f.Width() != params.Width || f.Height() != params.Height {
			if !warnedSize {
				m.logger.Warn("Skipping frames with unexpected size", "got", fmt.Sprintf("%dx%d", f.Width(), f.Height()),
					"want", fmt.Sprintf("%dx%d", params.Width, params.Height))
				warnedSize = true
			}
			continue
		}

		buf = f.AppendBGRA(buf[:0])
		_, err := w.Write(buf)
		if err == nil {
			err = w.Flush()
		}
		if err != nil {
			m.writeErrors.Add(1)
			if ctx.Err() == nil {
				m.logger.Warn("Frame write failed, writer exiting", "error", err)
			}
			return
		}
		m.written.Add(1)
		metrics.IncFramesWritten()
	}
}

// Offer hands f to the running session. It never blocks and returns false
// when stopped or when the queue is full.
func (m *Manager) Offer(f *frame.Frame) bool {
	if !m.running.Load() {
		return false
	}
	return m.queue.Offer(f)
}

// Feed returns a job that offers the cached frame on every call.
func (m *Manager) Feed(cache *frame.Cache) func() {
	return func() {
		m.Offer(cache.Load())
	}
}

// State returns the session state.
func (m *Manager) State() process.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats returns counters and session details.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		State:       m.state,
		Encoder:     m.encoder,
		Queued:      m.queue.Len(),
		Capacity:    m.queue.Cap(),
		Dropped:     m.queue.Dropped(),
		Written:     m.written.Load(),
		WriteErrors: m.writeErrors.Load(),
		LastError:   m.lastErr,
	}
	if m.proc != nil {
		s.PID = m.proc.Pid()
	}
	if !m.startedAt.IsZero() {
		t := m.startedAt
		s.StartedAt = &t
	}
	return s
}

// EncoderStatus adapts Stats for the metrics SSE exporter.
func (m *Manager) EncoderStatus() (state string, queued int, dropped uint64) {
	s := m.Stats()
	return string(s.State), s.Queued, s.Dropped
}

func (m *Manager) setStateLocked(s process.State, reason string) {
	m.state = s
	metrics.SetEncoderState(s.Gauge())
	if m.bus != nil {
		m.bus.Publish(events.EncoderStateChangedEvent{
			State:     string(s),
			Error:     reason,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}
