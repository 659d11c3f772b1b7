package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/Rei0925/MFWeb/internal/events"
)

// registerSSERoutes registers the application event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Caster lifecycle, encoder session, ticker mode and viewer events",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"cast-state":    events.CastStateChangedEvent{},
		"encoder-state": events.EncoderStateChangedEvent{},
		"ticker-mode":   events.TickerModeChangedEvent{},
		"viewer":        events.ViewerEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 10)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.CastStateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.EncoderStateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.TickerModeChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ViewerEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// The current lifecycle state opens every stream.
		if err := send.Data(events.CastStateChangedEvent{
			Running:   s.options.Caster.Status().Running,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
