// Package collectors gathers encoder statistics reported by ffmpeg.
package collectors

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Rei0925/MFWeb/internal/metrics"
)

// ProgressCollector listens on a Unix socket for ffmpeg "-progress" output and
// publishes each completed block to the encoder metrics.
type ProgressCollector struct {
	logger     *slog.Logger
	socketPath string

	listener net.Listener
	quit     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewProgressCollector creates a collector for socketPath.
func NewProgressCollector(socketPath string, logger *slog.Logger) *ProgressCollector {
	return &ProgressCollector{logger: logger, socketPath: socketPath, quit: make(chan struct{})}
}

// URL is the value to pass to ffmpeg's -progress option.
func (c *ProgressCollector) URL() string {
	return "unix://" + c.socketPath
}

// Start binds the socket before returning so ffmpeg can connect right away.
// A stale socket file from a previous run is removed first.
func (c *ProgressCollector) Start() error {
	if err := os.Remove(c.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	l, err := net.Listen("unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("listen %s: %w", c.socketPath, err)
	}
	c.listener = l

	c.wg.Add(1)
	go c.accept()
	return nil
}

// Stop closes the socket, waits for readers and clears the progress gauges.
func (c *ProgressCollector) Stop() {
	c.stopOnce.Do(func() {
		close(c.quit)
		if c.listener != nil {
			c.listener.Close()
		}
		c.wg.Wait()
		os.Remove(c.socketPath)
		metrics.ResetEncoderProgress()
	})
}

func (c *ProgressCollector) accept() {
	defer c.wg.Done()
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				c.logger.Warn("Progress socket accept failed", "error", err)
			}
			return
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.read(conn)
		}()
	}
}

func (c *ProgressCollector) read(conn net.Conn) {
	defer conn.Close()

	// Unblock the scanner when the collector stops.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-done:
		case <-c.quit:
			conn.Close()
		}
	}()

	block := make(map[string]string)
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		block[strings.TrimSpace(key)] = strings.TrimSpace(value)
		if key == "progress" {
			metrics.SetEncoderProgress(ParseProgress(block))
			block = make(map[string]string)
		}
	}
}

// ParseProgress converts one ffmpeg progress block. Missing or malformed
// values are left at zero.
func ParseProgress(block map[string]string) metrics.EncoderProgress {
	p := metrics.EncoderProgress{UpdatedAt: time.Now()}
	p.FPS, _ = strconv.ParseFloat(block["fps"], 64)
	p.DroppedFrames, _ = strconv.ParseFloat(block["drop_frames"], 64)
	p.DuplicateFrames, _ = strconv.ParseFloat(block["dup_frames"], 64)
	p.Speed, _ = strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(block["speed"]), "x"), 64)
	return p
}
