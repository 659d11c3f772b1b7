// Package ffmpeg builds ffmpeg command lines and parses its log output.
package ffmpeg

import "path/filepath"

// ManifestName and SegmentPattern name the files ffmpeg writes into the HLS
// output directory.
const (
	ManifestName   = "index.m3u8"
	SegmentPattern = "segment_%03d.ts"
)

// HLSParams describes one raw-frames-in, HLS-out encoder invocation.
type HLSParams struct {
	Binary string // ffmpeg executable

	// Input: packed BGRA frames on stdin.
	Width  int
	Height int
	FPS    int

	// Encoder
	Encoder string // h264_nvenc, libx264, ...
	Preset  string
	Bitrate string
	MaxRate string
	BufSize string
	GOP     int

	// HLS muxer
	OutputDir      string
	SegmentSeconds int
	ListSize       int

	ProgressURL string   // unix://... from the progress collector
	ExtraArgs   []string // inserted before the output options
}

// DefaultHLSParams returns the stock low-latency NVENC settings.
func DefaultHLSParams() HLSParams {
	return HLSParams{
		Binary:         "ffmpeg",
		Width:          1920,
		Height:         1080,
		FPS:            60,
		Encoder:        "h264_nvenc",
		Preset:         "p1",
		Bitrate:        "6000k",
		MaxRate:        "8000k",
		BufSize:        "12000k",
		GOP:            120,
		OutputDir:      "stream/hls",
		SegmentSeconds: 1,
		ListSize:       5,
	}
}

// ManifestPath is where ffmpeg writes the playlist.
func (p HLSParams) ManifestPath() string {
	return filepath.Join(p.OutputDir, ManifestName)
}

// LogPath is the append-only ffmpeg output log.
func (p HLSParams) LogPath() string {
	return filepath.Join(p.OutputDir, "ffmpeg.log")
}

// FrameSize is the byte length of one BGRA input frame.
func (p HLSParams) FrameSize() int {
	return p.Width * p.Height * 4
}
