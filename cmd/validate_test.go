package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeFFmpeg lists three encoders and fails every probe of h264_nvenc.
func fakeFFmpeg(t *testing.T) string {
	t.Helper()
	script := `#!/bin/sh
case "$*" in
*-encoders*)
	cat <<'OUT'
Encoders:
 V..... = Video
 ------
 V....D libx264              libx264 H.264 / AVC (codec h264)
 V....D h264_nvenc           NVIDIA NVENC H.264 encoder (codec h264)
 V....D h264_vaapi           H.264/AVC (VAAPI) (codec h264)
OUT
	exit 0 ;;
*h264_nvenc*)
	echo 'Cannot load libcuda.so.1' >&2
	exit 1 ;;
esac
exit 0
`
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestValidateEncoders(t *testing.T) {
	bin := fakeFFmpeg(t)
	preferred := []string{"h264_nvenc", "h264_qsv", "h264_vaapi", "libx264"}

	result, err := ValidateEncoders(context.Background(), bin, preferred, 5*time.Second)
	if err != nil {
		t.Fatalf("ValidateEncoders: %v", err)
	}
	if len(result.Available) != 3 {
		t.Errorf("available = %v", result.Available)
	}
	if got := strings.Join(result.Working, ","); got != "h264_vaapi,libx264" {
		t.Errorf("working = %s", got)
	}
	if _, ok := result.Failed["h264_nvenc"]; !ok {
		t.Errorf("failed = %v", result.Failed)
	}
	if _, ok := result.Failed["h264_qsv"]; ok {
		t.Error("unlisted encoder was probed")
	}
	if result.Selected != "h264_vaapi" {
		t.Errorf("selected = %s", result.Selected)
	}
}

func TestValidateEncodersMissingBinary(t *testing.T) {
	if _, err := ValidateEncoders(context.Background(), "/nonexistent/ffmpeg", nil, time.Second); err == nil {
		t.Error("expected error")
	}
}

func TestValidateEncodersCommand(t *testing.T) {
	cmd := CreateValidateEncodersCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--ffmpeg", fakeFFmpeg(t), "--quiet"})

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.String(), "selected: ") {
		t.Errorf("output = %q", out.String())
	}
}
