// Package metrics provides Prometheus metrics for rendering, encoding and
// streaming.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mfweb"

var (
	framesRendered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "compositor",
		Name:      "frames_total",
		Help:      "Frames rendered and published to the cache",
	})

	renderSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "compositor",
		Name:      "render_seconds",
		Help:      "Time spent rendering one frame",
		Buckets:   []float64{.005, .01, .025, .05, .1, .15, .25, .5},
	})

	panelFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "compositor",
		Name:      "panel_failures_total",
		Help:      "Panel renders that failed and were left blank",
	})

	tickerPasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ticker",
		Name:      "passes_total",
		Help:      "Completed ticker scroll passes by the mode that was shown",
	}, []string{"mode"})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hls",
		Name:      "queue_depth",
		Help:      "Frames waiting for the encoder",
	})

	framesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hls",
		Name:      "frames_dropped_total",
		Help:      "Frames dropped because the encoder queue was full",
	})

	framesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hls",
		Name:      "frames_written_total",
		Help:      "Frames written to the encoder",
	})

	encoderState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hls",
		Name:      "encoder_state",
		Help:      "Encoder session state (0 stopped, 1 starting, 2 running, 3 stopping)",
	})

	encoderFPS = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hls",
		Name:      "encoder_fps",
		Help:      "Encoding rate reported by ffmpeg",
	})

	encoderSpeed = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hls",
		Name:      "encoder_speed",
		Help:      "ffmpeg processing speed multiplier",
	})

	encoderDropped = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hls",
		Name:      "encoder_dropped_frames",
		Help:      "Frames ffmpeg reports as dropped",
	})

	encoderDuplicated = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hls",
		Name:      "encoder_duplicate_frames",
		Help:      "Frames ffmpeg reports as duplicated",
	})

	mjpegClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "mjpeg",
		Name:      "clients",
		Help:      "Open multipart JPEG connections",
	})

	mjpegParts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "mjpeg",
		Name:      "parts_total",
		Help:      "JPEG parts written to clients",
	})

	mjpegBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "mjpeg",
		Name:      "bytes_total",
		Help:      "JPEG bytes written to clients",
	})

	progressMu sync.RWMutex
	progress   EncoderProgress
)

// EncoderProgress is the last progress block reported by ffmpeg.
type EncoderProgress struct {
	FPS             float64   `json:"fps"`
	Speed           float64   `json:"speed"`
	DroppedFrames   float64   `json:"dropped_frames"`
	DuplicateFrames float64   `json:"duplicate_frames"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ObserveFrame records one published frame.
func ObserveFrame(took time.Duration) {
	framesRendered.Inc()
	renderSeconds.Observe(took.Seconds())
}

// IncPanelFailures counts a panel left blank.
func IncPanelFailures() { panelFailures.Inc() }

// IncTickerPass counts a completed scroll pass.
func IncTickerPass(mode string) { tickerPasses.WithLabelValues(mode).Inc() }

// SetQueueDepth reports the encoder queue length.
func SetQueueDepth(n int) { queueDepth.Set(float64(n)) }

// IncFramesDropped counts a frame refused by a full queue.
func IncFramesDropped() { framesDropped.Inc() }

// IncFramesWritten counts a frame delivered to ffmpeg.
func IncFramesWritten() { framesWritten.Inc() }

// SetEncoderState reports the encoder session state.
func SetEncoderState(state int) { encoderState.Set(float64(state)) }

// SetEncoderProgress updates the ffmpeg progress gauges.
func SetEncoderProgress(p EncoderProgress) {
	encoderFPS.Set(p.FPS)
	encoderSpeed.Set(p.Speed)
	encoderDropped.Set(p.DroppedFrames)
	encoderDuplicated.Set(p.DuplicateFrames)

	progressMu.Lock()
	progress = p
	progressMu.Unlock()
}

// ResetEncoderProgress zeroes the progress gauges after the encoder exits.
func ResetEncoderProgress() {
	SetEncoderProgress(EncoderProgress{})
}

// GetEncoderProgress returns the last reported progress.
func GetEncoderProgress() EncoderProgress {
	progressMu.RLock()
	defer progressMu.RUnlock()
	return progress
}

// MJPEGClientConnected adjusts the client gauge on connect.
func MJPEGClientConnected() { mjpegClients.Inc() }

// MJPEGClientDisconnected adjusts the client gauge on disconnect.
func MJPEGClientDisconnected() { mjpegClients.Dec() }

// ObserveMJPEGPart counts one written part of n bytes.
func ObserveMJPEGPart(n int) {
	mjpegParts.Inc()
	mjpegBytes.Add(float64(n))
}

// Handler serves every registered collector in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
