package ffmpeg

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// BuildHLSCommand returns the argv, binary first, for an encoder reading raw
// BGRA frames from stdin and writing a rolling HLS playlist.
func BuildHLSCommand(p HLSParams) []string {
	binary := p.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	args := []string{binary, "-hide_banner", "-loglevel", "level+info", "-y"}

	// Input
	args = append(args,
		"-f", "rawvideo",
		"-pix_fmt", "bgra",
		"-s", fmt.Sprintf("%dx%d", p.Width, p.Height),
		"-r", strconv.Itoa(p.FPS),
		"-i", "-",
	)

	// Frames arrive at whatever pace the feeder manages; pass them as-is.
	args = append(args, "-vsync", "0", "-fflags", "+nobuffer")

	// Encoder
	args = append(args, "-c:v", p.Encoder)
	if preset := PresetFor(p.Encoder, p.Preset); preset != "" {
		args = append(args, "-preset", preset)
	}
	if !IsHardwareEncoder(p.Encoder) {
		// Software encoders reject bgra input for most profiles.
		args = append(args, "-pix_fmt", "yuv420p", "-tune", "zerolatency")
	}
	if p.Bitrate != "" {
		args = append(args, "-b:v", p.Bitrate)
	}
	if p.MaxRate != "" {
		args = append(args, "-maxrate", p.MaxRate)
	}
	if p.BufSize != "" {
		args = append(args, "-bufsize", p.BufSize)
	}
	if p.GOP > 0 {
		args = append(args, "-g", strconv.Itoa(p.GOP))
	}
	args = append(args, "-sc_threshold", "0")

	args = append(args, p.ExtraArgs...)

	if p.ProgressURL != "" {
		args = append(args, "-progress", p.ProgressURL)
	}

	// Output
	args = append(args,
		"-f", "hls",
		"-hls_time", strconv.Itoa(p.SegmentSeconds),
		"-hls_list_size", strconv.Itoa(p.ListSize),
		"-hls_flags", "delete_segments",
		"-hls_segment_filename", filepath.Join(p.OutputDir, SegmentPattern),
		p.ManifestPath(),
	)
	return args
}

// EncodersListCommand returns the argv that lists compiled-in encoders.
func EncodersListCommand(binary string) []string {
	if binary == "" {
		binary = "ffmpeg"
	}
	return []string{binary, "-hide_banner", "-encoders"}
}

// ProbeEncoderCommand returns the argv for a short test encode with encoder.
// It succeeds only if the encoder is usable on this host.
func ProbeEncoderCommand(binary, encoder string) []string {
	if binary == "" {
		binary = "ffmpeg"
	}
	return []string{
		binary, "-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "color=c=black:s=320x240:r=30",
		"-frames:v", "5",
		"-pix_fmt", "yuv420p",
		"-c:v", encoder,
		"-f", "null", "-",
	}
}

var hardwareSuffixes = []string{
	"_vaapi", "_nvenc", "_qsv", "_amf", "_videotoolbox", "_v4l2m2m", "_mmal", "_omx", "_rkmpp",
}

// IsHardwareEncoder reports whether encoder runs on a GPU or media block.
func IsHardwareEncoder(encoder string) bool {
	for _, hw := range hardwareSuffixes {
		if strings.Contains(encoder, hw) {
			return true
		}
	}
	return false
}

// PresetFor adapts preset to encoder. NVENC takes p1..p7; x264 and x265 need
// their own names, so an NVENC preset handed to them maps to ultrafast.
func PresetFor(encoder, preset string) string {
	nvencStyle := len(preset) == 2 && preset[0] == 'p' && preset[1] >= '1' && preset[1] <= '7'
	switch {
	case strings.Contains(encoder, "_nvenc"):
		return preset
	case encoder == "libx264" || encoder == "libx265":
		if nvencStyle {
			return "ultrafast"
		}
		return preset
	case nvencStyle:
		return ""
	default:
		return preset
	}
}
