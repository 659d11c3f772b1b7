package api

import (
	"context"
	"errors"
	"net/http"
	"os/exec"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Rei0925/MFWeb/internal/api/models"
	"github.com/Rei0925/MFWeb/internal/encoders"
)

func convertEncoders(list *encoders.EncoderList) models.EncoderData {
	infos := make([]models.EncoderInfo, len(list.VideoEncoders))
	for i, e := range list.VideoEncoders {
		infos[i] = models.EncoderInfo{
			Name:        e.Name,
			Description: e.Description,
			HWAccel:     e.HWAccel,
		}
	}
	return models.EncoderData{
		Encoders: infos,
		Selected: encoders.Select(encoders.DefaultPreference, list),
		Count:    len(infos),
	}
}

// registerEncoderRoutes registers encoder discovery.
func (s *Server) registerEncoderRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-encoders",
		Method:      http.MethodGet,
		Path:        "/api/encoders",
		Summary:     "List Encoders",
		Description: "List the video encoders compiled into ffmpeg and the one automatic selection picks",
		Tags:        []string{"encoders"},
		Security:    withAuth(),
		Errors:      []int{401, 500, 503},
	}, func(ctx context.Context, input *struct{}) (*models.EncodersResponse, error) {
		list, err := encoders.List(ctx, s.options.FFmpegBinary)
		if err != nil {
			if errors.Is(err, exec.ErrNotFound) {
				return nil, huma.Error503ServiceUnavailable("ffmpeg is not installed", err)
			}
			return nil, huma.Error500InternalServerError("Failed to list encoders", err)
		}
		return &models.EncodersResponse{Body: convertEncoders(list)}, nil
	})
}
