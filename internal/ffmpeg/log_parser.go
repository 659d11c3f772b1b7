package ffmpeg

import "strings"

// ParseLogLevel extracts the log level from ffmpeg output.
// With -loglevel level+info ffmpeg prefixes lines with "[info] message" or
// "[component @ 0x...] [level] message". The level is stripped and the
// component kept. Lines without a level are info, except periodic
// "frame=... fps=..." status lines, which are debug.
func ParseLogLevel(line string) (level, msg string) {
	if strings.HasPrefix(line, "frame=") || strings.HasPrefix(line, "size=") {
		return "debug", line
	}
	if len(line) < 3 || line[0] != '[' {
		return "info", line
	}

	end := strings.Index(line, "] ")
	if end == -1 {
		return "info", line
	}

	if bracket := line[1:end]; isLogLevel(bracket) {
		return normalize(bracket), line[end+2:]
	}

	component := line[:end+2]
	rest := line[end+2:]
	if len(rest) > 2 && rest[0] == '[' {
		if next := strings.Index(rest, "] "); next != -1 {
			if bracket := rest[1:next]; isLogLevel(bracket) {
				return normalize(bracket), component + rest[next+2:]
			}
		}
	}

	return "info", line
}

func isLogLevel(s string) bool {
	switch s {
	case "quiet", "panic", "fatal", "error", "warning", "info", "verbose", "debug", "trace":
		return true
	}
	return false
}

// normalize folds ffmpeg-only levels onto the ones the process logger knows.
func normalize(level string) string {
	switch level {
	case "panic":
		return "fatal"
	case "verbose":
		return "debug"
	case "quiet":
		return "info"
	}
	return level
}
