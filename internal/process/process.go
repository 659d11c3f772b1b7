package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// ErrNotStarted is returned by operations that need a running subprocess.
var ErrNotStarted = errors.New("process not started")

// killedExitCode is reported when the subprocess had to be SIGKILLed.
const killedExitCode = 137

// LogParser splits an output line into a level (error, warning, info, debug)
// and the message to log.
type LogParser func(line string) (level, msg string)

// Option configures a Process.
type Option func(*Process)

// WithOutput copies every output line, newline terminated, to w.
func WithOutput(w io.Writer) Option {
	return func(p *Process) { p.output = w }
}

// WithLogParser logs subprocess output through logger, leveled by parse.
func WithLogParser(logger *slog.Logger, parse LogParser) Option {
	return func(p *Process) {
		p.outputLogger = logger
		p.parse = parse
	}
}

// WithTimeouts sets the grace period before SIGKILL and the wait after it.
func WithTimeouts(grace, kill time.Duration) Option {
	return func(p *Process) {
		p.grace = grace
		p.kill = kill
	}
}

// Process manages one subprocess.
type Process struct {
	id           string
	args         []string
	logger       *slog.Logger
	outputLogger *slog.Logger
	parse        LogParser
	output       io.Writer
	grace        time.Duration
	kill         time.Duration

	mu       sync.Mutex
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	exitCode int
	done     chan struct{}
	stopOnce sync.Once
	stopCode int
}

// New creates a process for args; args[0] is the program.
func New(id string, args []string, logger *slog.Logger, opts ...Option) *Process {
	p := &Process{
		id:     id,
		args:   append([]string(nil), args...),
		logger: logger,
		grace:  5 * time.Second,
		kill:   5 * time.Second,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.outputLogger == nil {
		p.outputLogger = logger
	}
	return p
}

// Args returns the command line.
func (p *Process) Args() []string {
	return append([]string(nil), p.args...)
}

// Start launches the subprocess and returns its stdin.
func (p *Process) Start() (io.WriteCloser, error) {
	if len(p.args) == 0 {
		return nil, errors.New("empty command")
	}

	cmd := exec.Command(p.args[0], p.args[1:]...)
	// Own process group, so a kill also reaches helpers holding the pipes.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	outputs := map[string]func() (io.ReadCloser, error){
		"stdout": cmd.StdoutPipe,
		"stderr": cmd.StderrPipe,
	}
	readers := make(map[string]io.Reader, len(outputs))
	for name, open := range outputs {
		r, err := open()
		if err != nil {
			return nil, fmt.Errorf("%s pipe: %w", name, err)
		}
		readers[name] = r
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", p.args[0], err)
	}

	p.mu.Lock()
	p.cmd = cmd
	p.stdin = stdin
	p.mu.Unlock()

	p.logger.Info("Process started", "id", p.id, "pid", cmd.Process.Pid, "command", strings.Join(p.args, " "))

	var (
		drained sync.WaitGroup
		sinkMu  sync.Mutex
	)
	for name, r := range readers {
		drained.Add(1)
		go func() {
			defer drained.Done()
			p.drain(r, name, &sinkMu)
		}()
	}

	go func() {
		drained.Wait()
		code := exitCode(cmd.Wait())
		p.mu.Lock()
		p.exitCode = code
		p.mu.Unlock()
		if code != 0 {
			p.logger.Warn("Process exited", "id", p.id, "exit_code", code)
		} else {
			p.logger.Info("Process exited", "id", p.id)
		}
		close(p.done)
	}()

	return stdin, nil
}

// Pid returns the subprocess pid, or 0 before Start.
func (p *Process) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Done is closed once the subprocess has exited and its output is drained.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitCode returns the exit code after Done is closed.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

// Stop closes stdin, sends SIGINT and waits for exit, killing the process
// group once the grace period runs out. It returns the exit code, 137 when
// killed. Later calls return the same code.
func (p *Process) Stop() int {
	p.mu.Lock()
	cmd, stdin := p.cmd, p.stdin
	p.mu.Unlock()
	if cmd == nil {
		return 0
	}

	p.stopOnce.Do(func() {
		if stdin != nil {
			_ = stdin.Close()
		}
		p.interrupt(cmd)
		p.stopCode = p.await(cmd)
	})
	return p.stopCode
}

func (p *Process) interrupt(cmd *exec.Cmd) {
	select {
	case <-p.done:
		return
	default:
	}
	p.logger.Debug("Interrupting process", "id", p.id, "pid", cmd.Process.Pid)
	if err := cmd.Process.Signal(syscall.SIGINT); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Warn("Failed to send SIGINT", "id", p.id, "error", err)
	}
}

func (p *Process) await(cmd *exec.Cmd) int {
	select {
	case <-p.done:
		return p.ExitCode()
	case <-time.After(p.grace):
	}

	p.logger.Warn("Process ignored SIGINT, killing", "id", p.id, "grace", p.grace)
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		p.logger.Error("Failed to kill process group", "id", p.id, "error", err)
	}
	select {
	case <-p.done:
	case <-time.After(p.kill):
		p.logger.Error("Process still running after SIGKILL", "id", p.id)
	}
	return killedExitCode
}

// exitCode maps a Wait error to a shell-style exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return 1
	}
	if code := exitErr.ExitCode(); code >= 0 {
		return code
	}
	return killedExitCode
}

func (p *Process) drain(r io.Reader, source string, sinkMu *sync.Mutex) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()

		if p.output != nil {
			sinkMu.Lock()
			_, _ = io.WriteString(p.output, line+"\n")
			sinkMu.Unlock()
		}

		level, msg := "info", line
		if p.parse != nil {
			level, msg = p.parse(line)
		}
		p.outputLogger.Log(context.Background(), slogLevel(level), msg, "source", source)
	}
	if err := scanner.Err(); err != nil {
		p.logger.Warn("Error reading output", "id", p.id, "source", source, "error", err)
	}
}

func slogLevel(level string) slog.Level {
	switch level {
	case "fatal", "panic", "error":
		return slog.LevelError
	case "warning", "warn":
		return slog.LevelWarn
	case "debug", "trace", "verbose":
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
