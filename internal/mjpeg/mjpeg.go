// Package mjpeg streams the cached dashboard frame to browsers as a
// multipart/x-mixed-replace JPEG sequence.
package mjpeg

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/oxtoacart/bpool"

	"github.com/Rei0925/MFWeb/internal/events"
	"github.com/Rei0925/MFWeb/internal/frame"
	"github.com/Rei0925/MFWeb/internal/metrics"
)

// Publisher receives client connect and disconnect events.
type Publisher interface {
	Publish(ev events.Event)
}

// Config controls the per-connection loop.
type Config struct {
	Interval   time.Duration // delay between parts
	Quality    int           // JPEG quality 1-100
	MaxClients int           // 0 means unlimited
}

// DefaultConfig returns roughly 30 parts per second at quality 90.
func DefaultConfig() Config {
	return Config{Interval: 33 * time.Millisecond, Quality: 90}
}

// Server is an http.Handler running one loop per connected client.
type Server struct {
	cfg    Config
	cache  *frame.Cache
	logger *slog.Logger
	bus    Publisher
	pool   *bpool.SizedBufferPool

	clients   atomic.Int64
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a server reading frames from cache. bus may be nil.
func New(cfg Config, cache *frame.Cache, logger *slog.Logger, bus Publisher) *Server {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = def.Quality
	}
	return &Server{
		cfg:    cfg,
		cache:  cache,
		logger: logger,
		bus:    bus,
		pool:   bpool.NewSizedBufferPool(32, 512*1024),
		done:   make(chan struct{}),
	}
}

// Clients returns the number of open streams.
func (s *Server) Clients() int {
	return int(s.clients.Load())
}

// Close ends every open stream. New requests are refused afterwards.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Server) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// ServeHTTP streams parts until the client leaves, a write fails or the server
// is closed. Each connection is independent of the others.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.closed() {
		http.Error(w, "stream stopped", http.StatusServiceUnavailable)
		return
	}
	n := s.clients.Add(1)
	if s.cfg.MaxClients > 0 && int(n) > s.cfg.MaxClients {
		s.clients.Add(-1)
		http.Error(w, "too many viewers", http.StatusServiceUnavailable)
		return
	}

	flusher, _ := w.(http.Flusher)
	boundary := NewBoundary()

	h := w.Header()
	h.Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	h.Set("Connection", "close")
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", "no-cache")
	w.WriteHeader(http.StatusOK)

	metrics.MJPEGClientConnected()
	s.publish("connected", r.RemoteAddr, int(n))
	s.logger.Debug("Client connected", "remote", r.RemoteAddr, "clients", n)
	defer func() {
		left := s.clients.Add(-1)
		metrics.MJPEGClientDisconnected()
		s.publish("disconnected", r.RemoteAddr, int(left))
		s.logger.Debug("Client disconnected", "remote", r.RemoteAddr, "clients", left)
	}()

	buf := s.pool.Get()
	defer s.pool.Put(buf)

	var lastSeq uint64
	encoded := false
	ctx := r.Context()
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		f := s.cache.Load()
		if !encoded || f.Seq != lastSeq {
			buf.Reset()
			if err := jpeg.Encode(buf, f.Image, &jpeg.Options{Quality: s.cfg.Quality}); err != nil {
				s.logger.Warn("JPEG encode failed", "error", err)
				return
			}
			lastSeq, encoded = f.Seq, true
		}

		if err := WritePart(w, boundary, buf.Bytes()); err != nil {
			s.logger.Debug("Client write failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		metrics.ObserveMJPEGPart(buf.Len())

		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) publish(action, remote string, clients int) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.ViewerEvent{
		Action:    action,
		Remote:    remote,
		Clients:   clients,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// NewBoundary returns a random multipart boundary token.
func NewBoundary() string {
	return "mfweb" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// WritePart writes one multipart body part carrying a JPEG image.
func WritePart(w io.Writer, boundary string, jpegData []byte) error {
	var head bytes.Buffer
	fmt.Fprintf(&head, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", boundary, len(jpegData))
	if _, err := w.Write(head.Bytes()); err != nil {
		return err
	}
	if _, err := w.Write(jpegData); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}
