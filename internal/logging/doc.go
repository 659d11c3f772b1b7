// Package logging provides slog loggers with per-module levels.
//
// Records fan out to stdout (when stdout is a terminal, pipe or file), the
// systemd journal (when journald is reachable) and an in-memory ring buffer
// that backs the /api/logs endpoint.
//
// Initialize once at startup, then fetch loggers by module name:
//
//	logging.Initialize(logging.Config{
//		Level:   "info",
//		Format:  "text",
//		Modules: map[string]string{"hls": "debug"},
//	})
//
//	logger := logging.GetLogger("hls")
//	logger.Info("Encoder started", "pid", pid)
//
// Loggers obtained before Initialize are kept; their levels are backed by a
// slog.LevelVar and follow later Initialize or SetLevels calls.
//
// Journal entries are tagged with SyslogIdentifier:
//
//	journalctl -t mfweb -f
//	journalctl -t mfweb MFWEB_MODULE=hls
//
// TOML form:
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	hls = "debug"
//	mjpeg = "warn"
package logging
