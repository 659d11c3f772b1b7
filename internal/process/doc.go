// Package process runs a single long-lived subprocess fed through its stdin.
//
// Process wraps os/exec with:
//   - a stdin pipe the caller streams into
//   - stdout and stderr copied to an optional sink and logged line by line
//     through a pluggable LogParser
//   - graceful stop: stdin is closed, SIGINT is sent, and the process is
//     killed if it has not exited within the grace period
//
// Example:
//
//	p := process.New("encoder", []string{"ffmpeg", "-i", "-", "out.m3u8"}, logger,
//	    process.WithTimeouts(5*time.Second, 5*time.Second))
//	stdin, err := p.Start()
//	if err != nil {
//	    return err
//	}
//	go feed(stdin)
//	defer p.Stop()
package process
