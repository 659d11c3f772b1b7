package process

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProcess(args []string, opts ...Option) *Process {
	opts = append([]Option{WithTimeouts(100*time.Millisecond, 100*time.Millisecond)}, opts...)
	return New("test", args, testLogger(), opts...)
}

// waitDone waits for the process to exit, failing the test on timeout.
func waitDone(t *testing.T, p *Process, timeout time.Duration) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(timeout):
		t.Fatal("timeout waiting for process to exit")
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestStdinReachesProcess(t *testing.T) {
	out := &syncBuffer{}
	p := newTestProcess([]string{"cat"}, WithOutput(out))

	stdin, err := p.Start()
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := io.WriteString(stdin, "hello\nworld\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = stdin.Close()

	waitDone(t, p, time.Second)
	if got := out.String(); got != "hello\nworld\n" {
		t.Errorf("output = %q", got)
	}
	if p.ExitCode() != 0 {
		t.Errorf("exit code = %d", p.ExitCode())
	}
}

func TestGracefulStop(t *testing.T) {
	p := newTestProcess([]string{"sh", "-c", "trap 'exit 0' INT TERM; while :; do sleep 0.1; done"},
		WithTimeouts(time.Second, 100*time.Millisecond))

	if _, err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if code := p.Stop(); code != 0 {
		t.Errorf("Stop() = %d, want 0", code)
	}
}

func TestForceKillOnTimeout(t *testing.T) {
	p := newTestProcess([]string{"sh", "-c", "trap '' INT; sleep 10"},
		WithTimeouts(50*time.Millisecond, 500*time.Millisecond))

	if _, err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	if code := p.Stop(); code != 137 {
		t.Errorf("Stop() = %d, want 137", code)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("stop took %v", elapsed)
	}
}

func TestStopTwice(t *testing.T) {
	p := newTestProcess([]string{"sleep", "10"})
	if _, err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	first := p.Stop()
	second := p.Stop()
	if first != second {
		t.Errorf("Stop() = %d then %d", first, second)
	}
}

func TestStopBeforeStart(t *testing.T) {
	p := newTestProcess([]string{"sleep", "10"})
	if code := p.Stop(); code != 0 {
		t.Errorf("Stop() = %d", code)
	}
	if p.Pid() != 0 {
		t.Errorf("Pid() = %d", p.Pid())
	}
}

func TestExitCode(t *testing.T) {
	p := newTestProcess([]string{"sh", "-c", "exit 42"})
	if _, err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, p, time.Second)
	if p.ExitCode() != 42 {
		t.Errorf("ExitCode() = %d, want 42", p.ExitCode())
	}
	if code := p.Stop(); code != 42 {
		t.Errorf("Stop() after exit = %d", code)
	}
}

func TestStartErrors(t *testing.T) {
	if _, err := newTestProcess(nil).Start(); err == nil {
		t.Error("empty command: expected error")
	}
	if _, err := newTestProcess([]string{"/nonexistent/command/that/does/not/exist"}).Start(); err == nil {
		t.Error("missing binary: expected error")
	}
}

func TestLogParserLevels(t *testing.T) {
	var buf syncBuffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	parse := func(line string) (string, string) {
		if rest, ok := strings.CutPrefix(line, "[error] "); ok {
			return "error", rest
		}
		if rest, ok := strings.CutPrefix(line, "[warning] "); ok {
			return "warning", rest
		}
		return "info", line
	}
	p := newTestProcess([]string{"sh", "-c", `echo "[error] bad"; echo "[warning] careful"; echo plain`},
		WithLogParser(logger, parse))
	if _, err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, p, time.Second)

	out := buf.String()
	for _, want := range []string{"level=ERROR msg=bad", "level=WARN msg=careful", "level=INFO msg=plain"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"fatal":   slog.LevelError,
		"error":   slog.LevelError,
		"warning": slog.LevelWarn,
		"info":    slog.LevelInfo,
		"verbose": slog.LevelDebug,
		"trace":   slog.LevelDebug,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := slogLevel(in); got != want {
			t.Errorf("slogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestStateGauge(t *testing.T) {
	if StateStopped.Gauge() != 0 || StateRunning.Gauge() != 2 || StateError.Gauge() != 4 {
		t.Error("unexpected gauge mapping")
	}
}
