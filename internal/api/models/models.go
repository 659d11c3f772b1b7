// Package models holds the request and response bodies of the JSON API.
package models

import "time"

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.0.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build timestamp"`
	BuildID   string `json:"build_id" doc:"Build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.11" doc:"Go runtime version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Go compiler"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"OS and architecture"`
}

type VersionResponse struct {
	Body VersionData
}

// Encoder session models
type EncoderStatus struct {
	State       string     `json:"state" example:"running" doc:"stopped, starting, running or stopping"`
	Encoder     string     `json:"encoder,omitempty" example:"h264_nvenc" doc:"Video encoder in use"`
	PID         int        `json:"pid,omitempty" doc:"ffmpeg process id"`
	StartedAt   *time.Time `json:"started_at,omitempty" doc:"When the session started"`
	Queued      int        `json:"queued" example:"3" doc:"Frames waiting for the encoder"`
	Capacity    int        `json:"capacity" example:"100" doc:"Frame queue capacity"`
	Dropped     uint64     `json:"dropped" doc:"Frames dropped because the queue was full"`
	Written     uint64     `json:"written" doc:"Frames written to ffmpeg"`
	WriteErrors uint64     `json:"write_errors" doc:"Failed frame writes"`
	LastError   string     `json:"last_error,omitempty" doc:"Why the last session ended abnormally"`
	FPS         string     `json:"fps,omitempty" example:"60.0" doc:"Encoder frame rate reported by ffmpeg"`
	Speed       string     `json:"speed,omitempty" example:"1.0x" doc:"Encoder speed reported by ffmpeg"`
}

// Caster models
type StatusData struct {
	Running         bool           `json:"running" example:"true" doc:"Whether rendering and distribution are active"`
	StartedAt       *time.Time     `json:"started_at,omitempty" doc:"When the caster started"`
	FrameSeq        uint64         `json:"frame_seq" example:"1042" doc:"Sequence number of the current frame"`
	FramesPublished uint64         `json:"frames_published" doc:"Frames rendered since process start"`
	TickerMode      string         `json:"ticker_mode,omitempty" example:"quotes" doc:"Content of the current ticker pass"`
	TickerPasses    uint64         `json:"ticker_passes" doc:"Completed ticker passes this session"`
	Pair            []string       `json:"pair,omitempty" doc:"Companies in the lower chart quadrants"`
	Viewers         int            `json:"viewers" example:"2" doc:"Open multipart JPEG connections"`
	Encoder         *EncoderStatus `json:"encoder,omitempty" doc:"HLS encoder session, when HLS is enabled"`
	EncoderError    string         `json:"encoder_error,omitempty" doc:"Why the HLS encoder failed to launch at the last start; multipart streaming still runs"`
}

type StatusResponse struct {
	Body StatusData
}

// Log models
type LogEntry struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"hls" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

type LogsData struct {
	Entries []LogEntry `json:"entries" doc:"Buffered log entries, oldest first"`
	Count   int        `json:"count" example:"120" doc:"Number of entries returned"`
}

type LogsResponse struct {
	Body LogsData
}

// Encoder discovery models
type EncoderInfo struct {
	Name        string `json:"name" example:"h264_nvenc" doc:"Encoder name"`
	Description string `json:"description" example:"NVIDIA NVENC H.264 encoder" doc:"Human-readable description"`
	HWAccel     bool   `json:"hwaccel" example:"true" doc:"Whether this is a hardware-accelerated encoder"`
}

type EncoderData struct {
	Encoders []EncoderInfo `json:"encoders" doc:"Video encoders compiled into ffmpeg"`
	Selected string        `json:"selected" example:"h264_nvenc" doc:"Encoder automatic selection would pick"`
	Count    int           `json:"count" example:"12" doc:"Number of encoders"`
}

type EncodersResponse struct {
	Body EncoderData
}
