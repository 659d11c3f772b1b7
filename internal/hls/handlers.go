package hls

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Rei0925/MFWeb/internal/ffmpeg"
)

// Error bodies are plain text and shown as-is by browsers.
const (
	manifestMissing = "HLSマニフェストが存在しません"
	segmentMissing  = "HLSセグメントが存在しません"
)

// Files serves what ffmpeg writes into dir. Existence is checked on every
// request; nothing is cached.
type Files struct {
	dir    string
	logger *slog.Logger
}

// NewFiles serves playlists and segments from dir.
func NewFiles(dir string, logger *slog.Logger) *Files {
	return &Files{dir: dir, logger: logger}
}

// ServeManifest writes the playlist.
func (h *Files) ServeManifest(w http.ResponseWriter, _ *http.Request) {
	data, err := os.ReadFile(filepath.Join(h.dir, ffmpeg.ManifestName))
	if err != nil {
		notFound(w, manifestMissing)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ServeSegment streams one .ts segment named by the "segment" path value.
func (h *Files) ServeSegment(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("segment")
	if name == "" || filepath.Base(name) != name || !strings.HasSuffix(name, ".ts") {
		notFound(w, segmentMissing)
		return
	}

	f, err := os.Open(filepath.Join(h.dir, name))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			h.logger.Warn("Failed to open segment", "segment", name, "error", err)
		}
		notFound(w, segmentMissing)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "video/MP2T")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		// Segments rotate underneath readers and players hang up early.
		h.logger.Debug("Segment copy ended", "segment", name, "error", err)
	}
}

func notFound(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = io.WriteString(w, msg)
}
