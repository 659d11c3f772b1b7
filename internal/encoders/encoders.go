// Package encoders discovers which ffmpeg video encoders this host can use.
package encoders

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/Rei0925/MFWeb/internal/ffmpeg"
)

// Fallback is used when no preferred encoder is available.
const Fallback = "libx264"

// DefaultPreference lists encoders in the order Select tries them.
var DefaultPreference = []string{"h264_nvenc", "h264_qsv", "h264_vaapi", "h264_amf", "h264_videotoolbox", "libx264"}

// EncoderType represents the type of encoder (video, audio, subtitle)
type EncoderType string

const (
	VideoEncoder    EncoderType = "V"
	AudioEncoder    EncoderType = "A"
	SubtitleEncoder EncoderType = "S"
	Unknown         EncoderType = "?"
)

// Encoder represents an FFmpeg encoder
type Encoder struct {
	Type        EncoderType `json:"type"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	HWAccel     bool        `json:"hwaccel"`
}

// EncoderList holds the video encoders ffmpeg reports. Other kinds are not
// useful to the caster and are dropped while parsing.
type EncoderList struct {
	VideoEncoders []Encoder `json:"video_encoders"`
}

// Names returns the video encoder names.
func (l *EncoderList) Names() []string {
	names := make([]string, len(l.VideoEncoders))
	for i, e := range l.VideoEncoders {
		names[i] = e.Name
	}
	return names
}

// Has reports whether name is among the video encoders.
func (l *EncoderList) Has(name string) bool {
	for _, e := range l.VideoEncoders {
		if e.Name == name {
			return true
		}
	}
	return false
}

// List runs "ffmpeg -hide_banner -encoders" and parses its output.
func List(ctx context.Context, binary string) (*EncoderList, error) {
	argv := ffmpeg.EncodersListCommand(binary)
	if _, err := exec.LookPath(argv[0]); err != nil {
		return nil, fmt.Errorf("ffmpeg is not installed or not in PATH: %w", err)
	}

	output, err := exec.CommandContext(ctx, argv[0], argv[1:]...).Output()
	if err != nil {
		return nil, fmt.Errorf("list encoders: %w", err)
	}
	return parseEncoderOutput(string(output))
}

// Probe runs a five-frame test encode and reports whether it succeeded.
// Listing an encoder only proves it was compiled in; hardware encoders also
// need a working device and driver.
func Probe(ctx context.Context, binary, encoder string) error {
	argv := ffmpeg.ProbeEncoderCommand(binary, encoder)
	out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if i := strings.LastIndexByte(msg, '\n'); i >= 0 {
			msg = msg[i+1:]
		}
		return fmt.Errorf("probe %s: %w: %s", encoder, err, msg)
	}
	return nil
}

// Select returns the first entry of preferred present in list, or Fallback.
func Select(preferred []string, list *EncoderList) string {
	if list == nil {
		return Fallback
	}
	for _, name := range preferred {
		if list.Has(name) {
			return name
		}
	}
	return Fallback
}

var (
	encoderRegex = regexp.MustCompile(`^\s*([VAS][FSXBD.]{5})\s+(\S+)\s+(.+)$`)
	hwaccelRegex = regexp.MustCompile(`(?i)(nvenc|qsv|amf|vaapi|videotoolbox|vdpau|cuda|v4l2m2m|rkmpp|vulkan)`)
)

// parseEncoderOutput processes the output of ffmpeg -encoders command
func parseEncoderOutput(output string) (*EncoderList, error) {
	result := &EncoderList{VideoEncoders: []Encoder{}}

	scanner := bufio.NewScanner(strings.NewReader(output))

	// The legend above the list also matches the line pattern, so skip
	// everything up to the "------" separator.
	started := false
	for scanner.Scan() {
		line := scanner.Text()

		if !started {
			if strings.HasPrefix(strings.TrimSpace(line), "------") {
				started = true
			}
			continue
		}

		matches := encoderRegex.FindStringSubmatch(line)
		if len(matches) != 4 || matches[1][0] != 'V' {
			continue
		}
		name, description := matches[2], matches[3]
		result.VideoEncoders = append(result.VideoEncoders, Encoder{
			Type:        VideoEncoder,
			Name:        name,
			Description: description,
			HWAccel:     hwaccelRegex.MatchString(name) || hwaccelRegex.MatchString(description),
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading output: %w", err)
	}
	if !started {
		return nil, fmt.Errorf("unrecognized encoder list output")
	}

	return result, nil
}
