package mjpeg

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Rei0925/MFWeb/internal/events"
	"github.com/Rei0925/MFWeb/internal/frame"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCache(w, h int) *frame.Cache {
	cache := frame.NewCache(w, h)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Rect, image.NewUniform(color.RGBA{200, 30, 30, 255}), image.Point{}, draw.Src)
	cache.Publish(&frame.Frame{Image: img, Seq: 1})
	return cache
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before timeout")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// openStream connects and returns a part reader over the response body.
func openStream(t *testing.T, url string) (*http.Response, *multipart.Reader) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/x-mixed-replace" {
		resp.Body.Close()
		t.Fatalf("content type %q: %v", resp.Header.Get("Content-Type"), err)
	}
	return resp, multipart.NewReader(resp.Body, params["boundary"])
}

func readJPEG(t *testing.T, mr *multipart.Reader) image.Image {
	t.Helper()
	part, err := mr.NextPart()
	if err != nil {
		t.Fatalf("NextPart: %v", err)
	}
	if ct := part.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Fatalf("part content type = %q", ct)
	}
	data, err := io.ReadAll(part)
	if err != nil {
		t.Fatalf("read part: %v", err)
	}
	if n, _ := strconv.Atoi(part.Header.Get("Content-Length")); n != len(data) {
		t.Fatalf("Content-Length %d, body %d", n, len(data))
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return img
}

func TestWritePart(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePart(&buf, "tok", []byte("JPEG")); err != nil {
		t.Fatal(err)
	}
	want := "--tok\r\nContent-Type: image/jpeg\r\nContent-Length: 4\r\n\r\nJPEG\r\n"
	if buf.String() != want {
		t.Errorf("part = %q, want %q", buf.String(), want)
	}
}

func TestNewBoundaryUnique(t *testing.T) {
	a, b := NewBoundary(), NewBoundary()
	if a == b || len(a) < 16 {
		t.Errorf("boundaries %q %q", a, b)
	}
}

func TestStreamHeadersAndParts(t *testing.T) {
	s := New(Config{Interval: 5 * time.Millisecond}, testCache(64, 32), testLogger(), nil)
	srv := httptest.NewServer(s)
	defer srv.Close()
	defer s.Close()

	resp, mr := openStream(t, srv.URL)
	defer resp.Body.Close()

	// The client consumes Connection itself and reports it as resp.Close.
	if !resp.Close {
		t.Error("response not marked Connection: close")
	}
	for header, want := range map[string]string{
		"Cache-Control": "no-cache",
		"Pragma":        "no-cache",
	} {
		if got := resp.Header.Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}

	for range 3 {
		img := readJPEG(t, mr)
		if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 32 {
			t.Fatalf("image %v", b)
		}
		r, _, _, _ := img.At(10, 10).RGBA()
		if r>>8 < 150 {
			t.Errorf("pixel red = %d, want the cached frame", r>>8)
		}
	}
}

func TestClientsAreIndependent(t *testing.T) {
	s := New(Config{Interval: 5 * time.Millisecond}, testCache(16, 16), testLogger(), nil)
	srv := httptest.NewServer(s)
	defer srv.Close()
	defer s.Close()

	respA, mrA := openStream(t, srv.URL)
	respB, mrB := openStream(t, srv.URL)
	defer respB.Body.Close()

	readJPEG(t, mrA)
	readJPEG(t, mrB)
	waitFor(t, func() bool { return s.Clients() == 2 })

	respA.Body.Close()
	waitFor(t, func() bool { return s.Clients() == 1 })

	for range 3 {
		readJPEG(t, mrB)
	}
}

func TestMaxClients(t *testing.T) {
	s := New(Config{Interval: 5 * time.Millisecond, MaxClients: 1}, testCache(8, 8), testLogger(), nil)
	srv := httptest.NewServer(s)
	defer srv.Close()
	defer s.Close()

	resp, mr := openStream(t, srv.URL)
	defer resp.Body.Close()
	readJPEG(t, mr)

	second, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	second.Body.Close()
	if second.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("second client status = %d, want 503", second.StatusCode)
	}
	if s.Clients() != 1 {
		t.Errorf("Clients() = %d", s.Clients())
	}
}

func TestCloseEndsStreams(t *testing.T) {
	s := New(Config{Interval: 5 * time.Millisecond}, testCache(8, 8), testLogger(), nil)
	srv := httptest.NewServer(s)
	defer srv.Close()

	resp, mr := openStream(t, srv.URL)
	defer resp.Body.Close()
	readJPEG(t, mr)

	s.Close()
	waitFor(t, func() bool { return s.Clients() == 0 })

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mjpeg", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status after Close = %d", rec.Code)
	}
}

type recorder struct {
	mu  sync.Mutex
	evs []events.ViewerEvent
}

func (r *recorder) Publish(ev events.Event) {
	if e, ok := ev.(events.ViewerEvent); ok {
		r.mu.Lock()
		r.evs = append(r.evs, e)
		r.mu.Unlock()
	}
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.evs)
}

func TestViewerEvents(t *testing.T) {
	bus := &recorder{}
	s := New(Config{Interval: 5 * time.Millisecond}, testCache(8, 8), testLogger(), bus)
	srv := httptest.NewServer(s)
	defer srv.Close()
	defer s.Close()

	resp, mr := openStream(t, srv.URL)
	readJPEG(t, mr)
	resp.Body.Close()
	waitFor(t, func() bool { return bus.len() == 2 })

	bus.mu.Lock()
	defer bus.mu.Unlock()
	if bus.evs[0].Action != "connected" || bus.evs[0].Clients != 1 {
		t.Errorf("first event = %+v", bus.evs[0])
	}
	if bus.evs[1].Action != "disconnected" || bus.evs[1].Clients != 0 {
		t.Errorf("second event = %+v", bus.evs[1])
	}
}
