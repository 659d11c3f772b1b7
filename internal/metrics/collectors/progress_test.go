package collectors

import (
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/Rei0925/MFWeb/internal/metrics"
)

func skipOnMacOS(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("Unix socket path too long on macOS")
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestParseProgress(t *testing.T) {
	p := ParseProgress(map[string]string{
		"fps":         "59.94",
		"drop_frames": "3",
		"dup_frames":  "1",
		"speed":       " 1.25x",
	})
	if p.FPS != 59.94 || p.DroppedFrames != 3 || p.DuplicateFrames != 1 || p.Speed != 1.25 {
		t.Errorf("unexpected %+v", p)
	}

	p = ParseProgress(map[string]string{"fps": "n/a", "speed": "N/A"})
	if p.FPS != 0 || p.Speed != 0 {
		t.Errorf("malformed values should be zero, got %+v", p)
	}
}

func TestProgressCollectorReadsBlocks(t *testing.T) {
	skipOnMacOS(t)
	metrics.ResetEncoderProgress()

	socket := filepath.Join(t.TempDir(), "progress.sock")
	c := NewProgressCollector(socket, testLogger())
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	if c.URL() != "unix://"+socket {
		t.Errorf("URL = %q", c.URL())
	}

	conn, err := net.Dial("unix", socket)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("frame=10\nfps=30\nspeed=0.98x\nprogress=continue\n")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return metrics.GetEncoderProgress().FPS == 30 })

	if _, err := conn.Write([]byte("fps=60\nprogress=continue\n")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return metrics.GetEncoderProgress().FPS == 60 })
}

func TestProgressCollectorStopCleansUp(t *testing.T) {
	skipOnMacOS(t)
	socket := filepath.Join(t.TempDir(), "progress.sock")

	// A stale file from a previous run must not block Start.
	if err := os.WriteFile(socket, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	c := NewProgressCollector(socket, testLogger())
	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// An open client connection must not keep Stop waiting.
	conn, err := net.Dial("unix", socket)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	metrics.SetEncoderProgress(metrics.EncoderProgress{FPS: 12})

	done := make(chan struct{})
	go func() {
		c.Stop()
		c.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on an open connection")
	}

	if _, err := os.Stat(socket); !os.IsNotExist(err) {
		t.Error("socket file should be removed")
	}
	if metrics.GetEncoderProgress().FPS != 0 {
		t.Error("progress should be reset after Stop")
	}
}
