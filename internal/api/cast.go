package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Rei0925/MFWeb/internal/api/models"
	"github.com/Rei0925/MFWeb/internal/cast"
	"github.com/Rei0925/MFWeb/internal/metrics"
)

// statusData converts a caster snapshot into the API body.
func (s *Server) statusData() models.StatusData {
	st := s.options.Caster.Status()
	data := models.StatusData{
		Running:         st.Running,
		StartedAt:       st.StartedAt,
		FrameSeq:        st.FrameSeq,
		FramesPublished: st.FramesPublished,
		TickerMode:      st.TickerMode,
		TickerPasses:    st.TickerPasses,
		Pair:            st.Pair,
		EncoderError:    st.EncoderError,
	}
	if s.options.Viewers != nil {
		data.Viewers = s.options.Viewers()
	}
	if e := st.Encoder; e != nil {
		enc := &models.EncoderStatus{
			State:       string(e.State),
			Encoder:     e.Encoder,
			PID:         e.PID,
			StartedAt:   e.StartedAt,
			Queued:      e.Queued,
			Capacity:    e.Capacity,
			Dropped:     e.Dropped,
			Written:     e.Written,
			WriteErrors: e.WriteErrors,
			LastError:   e.LastError,
		}
		if p := metrics.GetEncoderProgress(); !p.UpdatedAt.IsZero() {
			enc.FPS = formatFloat(p.FPS)
			enc.Speed = formatFloat(p.Speed) + "x"
		}
		data.Encoder = enc
	}
	return data
}

func (s *Server) registerCastRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Status",
		Description: "Caster, ticker, viewer and encoder status",
		Tags:        []string{"cast"},
		Security:    []map[string][]string{},
	}, func(ctx context.Context, input *struct{}) (*models.StatusResponse, error) {
		return &models.StatusResponse{Body: s.statusData()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "start-cast",
		Method:      http.MethodPost,
		Path:        "/api/cast/start",
		Summary:     "Start Caster",
		Description: "Start rendering and distribution. Fails with 409 when already running.",
		Tags:        []string{"cast"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 500},
	}, func(ctx context.Context, input *struct{}) (*models.StatusResponse, error) {
		if err := s.options.Caster.Start(ctx); err != nil {
			if errors.Is(err, cast.ErrAlreadyRunning) {
				return nil, huma.Error409Conflict("Caster is already running")
			}
			return nil, huma.Error500InternalServerError("Failed to start caster", err)
		}
		return &models.StatusResponse{Body: s.statusData()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-cast",
		Method:      http.MethodPost,
		Path:        "/api/cast/stop",
		Summary:     "Stop Caster",
		Description: "Stop rendering and the encoder. Stopping a stopped caster succeeds.",
		Tags:        []string{"cast"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, input *struct{}) (*models.StatusResponse, error) {
		if err := s.options.Caster.Stop(); err != nil {
			return nil, huma.Error500InternalServerError("Failed to stop caster", err)
		}
		return &models.StatusResponse{Body: s.statusData()}, nil
	})
}
