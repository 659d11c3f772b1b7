// Package exporters pushes metric snapshots to the event bus for SSE clients.
package exporters

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/Rei0925/MFWeb/internal/events"
	"github.com/Rei0925/MFWeb/internal/metrics"
)

// EventPublisher is the subset of events.Bus the exporter needs.
type EventPublisher interface {
	Publish(ev events.Event)
}

// EncoderStatus reports the encoder session state and its queue figures.
type EncoderStatus func() (state string, queued int, dropped uint64)

// SSEExporter periodically publishes encoder statistics.
type SSEExporter struct {
	eventBus EventPublisher
	status   EncoderStatus
	interval time.Duration
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSSEExporter creates an exporter that publishes once per second.
func NewSSEExporter(eventBus EventPublisher, status EncoderStatus) *SSEExporter {
	return &SSEExporter{
		eventBus: eventBus,
		status:   status,
		interval: time.Second,
	}
}

// Start begins the export loop.
func (s *SSEExporter) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop ends the loop and waits for it.
func (s *SSEExporter) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *SSEExporter) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.eventBus.Publish(s.snapshot())
		}
	}
}

func (s *SSEExporter) snapshot() events.EncoderMetricsEvent {
	p := metrics.GetEncoderProgress()
	ev := events.EncoderMetricsEvent{
		EventType:       "encoder_metrics",
		FPS:             strconv.FormatFloat(p.FPS, 'f', 2, 64),
		Speed:           strconv.FormatFloat(p.Speed, 'f', 2, 64),
		DroppedFrames:   strconv.FormatFloat(p.DroppedFrames, 'f', 0, 64),
		DuplicateFrames: strconv.FormatFloat(p.DuplicateFrames, 'f', 0, 64),
	}
	if s.status != nil {
		ev.State, ev.QueueDepth, ev.QueueDropped = s.status()
	}
	return ev
}
